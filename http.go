package guard

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
)

// RouteGuard turns guard decisions into fiber responses
type RouteGuard struct {
	cfg            Config
	Logger         Logger
	LoadingHandler fiber.Handler
}

// Option configures a RouteGuard
type Option func(*RouteGuard)

// WithLogger sets the guard logger
func WithLogger(l Logger) Option {
	return func(g *RouteGuard) {
		if l != nil {
			g.Logger = l
		}
	}
}

// WithLoadingHandler replaces the default loading placeholder
func WithLoadingHandler(h fiber.Handler) Option {
	return func(g *RouteGuard) {
		if h != nil {
			g.LoadingHandler = h
		}
	}
}

func NewRouteGuard(cfg Config, opts ...Option) *RouteGuard {
	g := &RouteGuard{
		cfg:    cfg,
		Logger: defLogger{},
	}
	g.LoadingHandler = g.defaultLoadingHandler

	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g
}

// Protected guards a page that needs a signed in user, and an admin when
// adminOnly is set.
func (g *RouteGuard) Protected(adminOnly bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		state := MustSource(c).Snapshot()
		return g.apply(c, Protected(state, adminOnly))
	}
}

// Public guards a page reserved to visitors that are not signed in
func (g *RouteGuard) Public() fiber.Handler {
	return func(c *fiber.Ctx) error {
		state := MustSource(c).Snapshot()
		return g.apply(c, Public(state))
	}
}

// For returns the guard handler of route. Unguarded routes get a pass
// through handler.
func (g *RouteGuard) For(route Route) fiber.Handler {
	switch route.Guard {
	case GuardPublic:
		return g.Public()
	case GuardProtected:
		return g.Protected(route.AdminOnly)
	default:
		return func(c *fiber.Ctx) error { return c.Next() }
	}
}

// Mount registers every route of table as a GET handler behind its guard,
// then the fallback sending unmatched GET requests home.
func (g *RouteGuard) Mount(r fiber.Router, table RouteTable) error {
	if err := table.Validate(); err != nil {
		return err
	}

	for _, route := range table {
		r.Get(route.Path, g.For(route), route.Page)
	}

	r.Use(g.fallback(table))
	return nil
}

func (g *RouteGuard) fallback(table RouteTable) fiber.Handler {
	home := g.cfg.GetHomePath()
	return func(c *fiber.Ctx) error {
		if c.Method() != fiber.MethodGet && c.Method() != fiber.MethodHead {
			return fiber.ErrNotFound
		}
		if table.Fallback(c.Path()) == Render || cleanPath(c.Path()) == home {
			return fiber.ErrNotFound
		}
		g.Logger.Debug("no route for %s, redirecting to %s", c.Path(), home)
		return g.redirect(c, home)
	}
}

func (g *RouteGuard) apply(c *fiber.Ctx, d Decision) error {
	switch d {
	case Render:
		return c.Next()
	case ShowLoading:
		return g.LoadingHandler(c)
	case RedirectLogin:
		g.Logger.Debug("guard %s %s: %s", c.Method(), c.Path(), d)
		g.SetRedirect(c)
		return g.redirect(c, g.cfg.GetLoginPath())
	case RedirectHome:
		g.Logger.Debug("guard %s %s: %s", c.Method(), c.Path(), d)
		return g.redirect(c, g.cfg.GetHomePath())
	default:
		g.Logger.Error("guard %s %s: unexpected decision %d", c.Method(), c.Path(), int(d))
		return fiber.ErrInternalServerError
	}
}

func (g *RouteGuard) redirect(c *fiber.Ctx, location string) error {
	statusCode := http.StatusSeeOther
	if c.Method() == fiber.MethodGet || c.Method() == fiber.MethodHead {
		statusCode = http.StatusFound
	}
	return c.Redirect(location, statusCode)
}

// SetRedirect remembers the rejected URL so login can return to it. Only
// GET requests are remembered.
func (g *RouteGuard) SetRedirect(c *fiber.Ctx) {
	if c.Method() != fiber.MethodGet {
		return
	}
	key := g.cfg.GetRejectedRouteKey()
	if key == "" {
		return
	}

	c.Cookie(&fiber.Cookie{
		Name:     key,
		Value:    c.OriginalURL(),
		Path:     "/",
		Expires:  time.Now().Add(time.Minute * 5),
		HTTPOnly: true,
		Secure:   g.cfg.Session.SecureCookies,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

// RedirectAfterLogin returns the remembered rejected URL, or home, and
// clears the cookie. Anything but a local path is ignored.
func (g *RouteGuard) RedirectAfterLogin(c *fiber.Ctx) string {
	home := g.cfg.GetHomePath()
	key := g.cfg.GetRejectedRouteKey()
	if key == "" {
		return home
	}

	r := c.Cookies(key)
	if r == "" {
		return home
	}
	g.cookieDel(c, key)

	if !strings.HasPrefix(r, "/") || strings.HasPrefix(r, "//") || strings.HasPrefix(r, "/\\") {
		return home
	}
	if cleanPath(r) == g.cfg.GetLoginPath() {
		return home
	}
	return r
}

func (g *RouteGuard) cookieDel(c *fiber.Ctx, name string) {
	c.Cookie(&fiber.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Expires:  time.Now().Add(-time.Hour * (24 * 365)),
		HTTPOnly: true,
		Secure:   g.cfg.Session.SecureCookies,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

func (g *RouteGuard) loadingRefresh() int {
	if g.cfg.Routes.LoadingRefresh <= 0 {
		return 1
	}
	return g.cfg.Routes.LoadingRefresh
}

func (g *RouteGuard) defaultLoadingHandler(c *fiber.Ctx) error {
	refresh := g.loadingRefresh()
	c.Set("Refresh", strconv.Itoa(refresh))
	c.Set(fiber.HeaderCacheControl, "no-store")

	err := c.Status(fiber.StatusOK).Render(g.cfg.Routes.LoadingView, fiber.Map{
		"refresh": refresh,
		"path":    c.OriginalURL(),
	})
	if err != nil {
		g.Logger.Debug("loading view unavailable: %s", err)
		return c.Status(fiber.StatusOK).SendString("Loading...")
	}
	return nil
}
