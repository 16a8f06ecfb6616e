package guard

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// GuardKind selects the guard wrapping a route's page
type GuardKind int

const (
	// GuardNone leaves the page reachable in every auth state
	GuardNone GuardKind = iota
	// GuardPublic admits only visitors that are not signed in
	GuardPublic
	// GuardProtected admits only signed in users
	GuardProtected
)

func (g GuardKind) String() string {
	switch g {
	case GuardPublic:
		return "public"
	case GuardProtected:
		return "protected"
	default:
		return "none"
	}
}

func (g GuardKind) MarshalText() ([]byte, error) {
	return []byte(g.String()), nil
}

// Route binds a path to a page and its guard
type Route struct {
	Path      string        `json:"path"`
	Name      string        `json:"name"`
	Guard     GuardKind     `json:"guard"`
	AdminOnly bool          `json:"admin_only,omitempty"`
	Page      fiber.Handler `json:"-"`
}

// Decide runs the route's guard against state
func (r Route) Decide(state State) Decision {
	switch r.Guard {
	case GuardPublic:
		return Public(state)
	case GuardProtected:
		return Protected(state, r.AdminOnly)
	default:
		return Render
	}
}

// Pages are the page handlers of the application
type Pages struct {
	Login          fiber.Handler
	Signup         fiber.Handler
	ForgotPassword fiber.Handler
	ResetPassword  fiber.Handler
	Receiver       fiber.Handler
	Admin          fiber.Handler
}

const (
	PathLogin          = "/login"
	PathSignup         = "/signup"
	PathForgotPassword = "/forgot-password"
	PathResetPassword  = "/reset-password"
	PathHome           = "/"
	PathAdmin          = "/admin"
)

// DefaultRoutes is the application route table. Password recovery pages
// carry no guard: a user may need them signed in or not.
func DefaultRoutes(pages Pages) RouteTable {
	return RouteTable{
		{Path: PathLogin, Name: "login", Guard: GuardPublic, Page: pages.Login},
		{Path: PathSignup, Name: "signup", Guard: GuardPublic, Page: pages.Signup},
		{Path: PathForgotPassword, Name: "forgot_password", Guard: GuardNone, Page: pages.ForgotPassword},
		{Path: PathResetPassword, Name: "reset_password", Guard: GuardNone, Page: pages.ResetPassword},
		{Path: PathHome, Name: "receiver", Guard: GuardProtected, Page: pages.Receiver},
		{Path: PathAdmin, Name: "admin", Guard: GuardProtected, AdminOnly: true, Page: pages.Admin},
	}
}

// RouteTable is a static list of routes
type RouteTable []Route

// Lookup finds the route for path. A trailing slash is ignored.
func (t RouteTable) Lookup(path string) (Route, bool) {
	path = cleanPath(path)
	for _, r := range t {
		if r.Path == path {
			return r, true
		}
	}
	return Route{}, false
}

// Fallback is the decision for a request to path: Render when a route
// matches, RedirectHome for anything else.
func (t RouteTable) Fallback(path string) Decision {
	if _, ok := t.Lookup(path); ok {
		return Render
	}
	return RedirectHome
}

// Validate checks paths are unique, rooted, and have a page
func (t RouteTable) Validate() error {
	seen := make(map[string]struct{}, len(t))
	for _, r := range t {
		if !strings.HasPrefix(r.Path, "/") {
			return fmt.Errorf("route %q: path must start with /", r.Path)
		}
		p := cleanPath(r.Path)
		if _, ok := seen[p]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateRoute, p)
		}
		seen[p] = struct{}{}
		if r.Page == nil {
			return fmt.Errorf("route %q has no page handler", r.Path)
		}
	}
	return nil
}

func cleanPath(p string) string {
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	if len(p) > 1 {
		p = strings.TrimRight(p, "/")
	}
	if p == "" {
		return "/"
	}
	return p
}
