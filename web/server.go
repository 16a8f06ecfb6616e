package web

import (
	"github.com/gofiber/fiber/v2"
	fiberrecover "github.com/gofiber/fiber/v2/middleware/recover"
	guard "github.com/goliatone/go-route-guard"
	"github.com/goliatone/go-route-guard/session"
)

// Dependencies are the collaborators NewApp wires together
type Dependencies struct {
	Config   guard.Config
	Provider *session.Provider
	Users    Accounts
	Logger   guard.Logger
}

// NewApp returns the guarded web shell
func NewApp(deps Dependencies) (*fiber.App, error) {
	logger := deps.Logger
	if logger == nil {
		logger = guard.DefaultLogger()
	}

	engine, err := NewViewEngine()
	if err != nil {
		return nil, err
	}

	app := fiber.New(fiber.Config{
		Views:                 engine,
		DisableStartupMessage: true,
	})
	app.Use(fiberrecover.New())
	app.Use(deps.Provider.Middleware())

	rg := guard.NewRouteGuard(deps.Config, guard.WithLogger(logger))
	ctrl := NewController(deps.Provider, deps.Users, rg, logger)
	ctrl.routes = guard.DefaultRoutes(ctrl.Pages())

	// action routes go first, Mount ends with the catch all fallback
	app.Post(guard.PathLogin, rg.Public(), ctrl.LoginPost)
	app.Post(guard.PathSignup, rg.Public(), ctrl.SignupPost)
	app.Post(PathLogout, ctrl.Logout)
	app.Post(guard.PathForgotPassword, ctrl.ForgotPasswordPost)
	app.Post(guard.PathResetPassword, ctrl.ResetPasswordPost)
	app.Post(PathChangePassword, rg.Protected(false), ctrl.ChangePasswordPost)

	if err := rg.Mount(app, ctrl.routes); err != nil {
		return nil, err
	}

	logger.Info("mounted %d guarded routes", len(ctrl.routes))
	return app, nil
}
