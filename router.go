package guard

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/goliatone/go-router"
)

// ProtectedRoute is Protected for go-router applications. The source is
// read from ctx.Context(), where WithSource and WithContext put it.
func (g *RouteGuard) ProtectedRoute(adminOnly bool) router.MiddlewareFunc {
	return g.routeGuard(func(state State) Decision {
		return Protected(state, adminOnly)
	})
}

// PublicRoute is Public for go-router applications
func (g *RouteGuard) PublicRoute() router.MiddlewareFunc {
	return g.routeGuard(Public)
}

// RouteFor guards a go-router handler with the guard of route
func (g *RouteGuard) RouteFor(route Route) router.MiddlewareFunc {
	return g.routeGuard(route.Decide)
}

func (g *RouteGuard) routeGuard(decide func(State) Decision) router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			src, ok := FromContext(ctx.Context())
			if !ok {
				panic(ErrProviderUnavailable)
			}
			return g.applyRoute(ctx, next, decide(src.Snapshot()))
		}
	}
}

func (g *RouteGuard) applyRoute(ctx router.Context, next router.HandlerFunc, d Decision) error {
	switch d {
	case Render:
		return next(ctx)
	case ShowLoading:
		return g.routeLoading(ctx)
	case RedirectLogin:
		g.Logger.Debug("guard %s %s: %s", ctx.Method(), ctx.Path(), d)
		g.setRouteRedirect(ctx)
		return g.routeRedirect(ctx, g.cfg.GetLoginPath())
	case RedirectHome:
		g.Logger.Debug("guard %s %s: %s", ctx.Method(), ctx.Path(), d)
		return g.routeRedirect(ctx, g.cfg.GetHomePath())
	default:
		return fmt.Errorf("guard %s: unexpected decision %d", ctx.Path(), int(d))
	}
}

func (g *RouteGuard) routeLoading(ctx router.Context) error {
	refresh := g.loadingRefresh()
	ctx.SetHeader("Refresh", strconv.Itoa(refresh))
	ctx.SetHeader("Cache-Control", "no-store")

	return ctx.Status(http.StatusOK).Render(g.cfg.Routes.LoadingView, router.ViewContext{
		"refresh": refresh,
		"path":    ctx.OriginalURL(),
	})
}

func (g *RouteGuard) routeRedirect(ctx router.Context, location string) error {
	status := http.StatusSeeOther
	if m := ctx.Method(); m == http.MethodGet || m == http.MethodHead {
		status = http.StatusFound
	}
	return ctx.Redirect(location, status)
}

func (g *RouteGuard) setRouteRedirect(ctx router.Context) {
	if ctx.Method() != http.MethodGet {
		return
	}
	key := g.cfg.GetRejectedRouteKey()
	if key == "" {
		return
	}

	ctx.Cookie(&router.Cookie{
		Name:     key,
		Value:    ctx.OriginalURL(),
		Expires:  time.Now().Add(time.Minute * 5),
		HTTPOnly: true,
		Secure:   g.cfg.Session.SecureCookies,
		SameSite: "Lax",
	})
}
