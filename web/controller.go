package web

import (
	"context"
	"errors"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/gofiber/fiber/v2"
	guard "github.com/goliatone/go-route-guard"
	"github.com/goliatone/go-route-guard/accounts"
	"github.com/goliatone/go-route-guard/session"
)

const (
	// PathLogout signs the session out
	PathLogout = "/logout"
	// PathChangePassword changes the password of the signed in user
	PathChangePassword = "/change-password"
)

// Accounts is what the pages need from the employee directory
type Accounts interface {
	Register(ctx context.Context, payload accounts.SignupPayload) (*accounts.Employee, error)
	RequestPasswordReset(ctx context.Context, email string) (*accounts.PasswordResetToken, error)
	VerifyPasswordReset(ctx context.Context, token string) (*accounts.Employee, error)
	ResetPassword(ctx context.Context, payload accounts.ResetPasswordPayload) (*accounts.Employee, error)
	ChangePassword(ctx context.Context, id string, payload accounts.ChangePasswordPayload) error
	List(ctx context.Context) ([]accounts.Employee, error)
}

type Views struct {
	Login          string
	Signup         string
	ForgotPassword string
	ResetPassword  string
	Receiver       string
	Admin          string
}

func DefaultViews() Views {
	return Views{
		Login:          "login",
		Signup:         "signup",
		ForgotPassword: "forgot_password",
		ResetPassword:  "reset_password",
		Receiver:       "receiver",
		Admin:          "admin",
	}
}

// Controller serves the pages and the form actions behind them
type Controller struct {
	Views    Views
	Logger   guard.Logger
	provider *session.Provider
	users    Accounts
	guard    *guard.RouteGuard
	routes   guard.RouteTable
}

func NewController(provider *session.Provider, users Accounts, g *guard.RouteGuard, logger guard.Logger) *Controller {
	if logger == nil {
		logger = guard.DefaultLogger()
	}
	return &Controller{
		Views:    DefaultViews(),
		Logger:   logger,
		provider: provider,
		users:    users,
		guard:    g,
	}
}

// Pages lists the page handlers for the route table
func (a *Controller) Pages() guard.Pages {
	return guard.Pages{
		Login:          a.LoginShow,
		Signup:         a.SignupShow,
		ForgotPassword: a.ForgotPasswordShow,
		ResetPassword:  a.ResetPasswordShow,
		Receiver:       a.Receiver,
		Admin:          a.Admin,
	}
}

func (a *Controller) LoginShow(c *fiber.Ctx) error {
	return a.render(c, a.Views.Login, fiber.Map{
		"errors": nil,
		"record": accounts.LoginPayload{},
	})
}

func (a *Controller) LoginPost(c *fiber.Ctx) error {
	payload := new(accounts.LoginPayload)
	if err := c.BodyParser(payload); err != nil {
		a.Logger.Error("login parse payload: %s", err)
		return a.render(c.Status(fiber.StatusBadRequest), a.Views.Login, fiber.Map{
			"message": "Failed to parse form",
			"record":  payload,
		})
	}
	if err := payload.Validate(); err != nil {
		return a.render(c.Status(fiber.StatusUnprocessableEntity), a.Views.Login, fiber.Map{
			"errors": formErrors(err),
			"record": payload,
		})
	}

	state := <-a.provider.Login(session.SessionID(c), payload.Email, payload.Password)
	if !state.IsAuthenticated() {
		return a.render(c.Status(fiber.StatusUnauthorized), a.Views.Login, fiber.Map{
			"message": "Invalid email or password",
			"record":  accounts.LoginPayload{Email: payload.Email},
		})
	}

	return a.signedIn(c, state, a.guard.RedirectAfterLogin(c))
}

func (a *Controller) SignupShow(c *fiber.Ctx) error {
	return a.render(c, a.Views.Signup, fiber.Map{
		"errors":      nil,
		"record":      accounts.SignupPayload{},
		"departments": accounts.Departments,
	})
}

func (a *Controller) SignupPost(c *fiber.Ctx) error {
	payload := new(accounts.SignupPayload)
	if err := c.BodyParser(payload); err != nil {
		a.Logger.Error("signup parse payload: %s", err)
		return a.render(c.Status(fiber.StatusBadRequest), a.Views.Signup, fiber.Map{
			"message":     "Failed to parse form",
			"record":      payload,
			"departments": accounts.Departments,
		})
	}

	emp, err := a.users.Register(c.UserContext(), *payload)
	if err != nil {
		status := fiber.StatusInternalServerError
		data := fiber.Map{
			"record":      payload,
			"departments": accounts.Departments,
		}

		var verrs validation.Errors
		switch {
		case errors.As(err, &verrs):
			status = fiber.StatusUnprocessableEntity
			data["errors"] = formErrors(err)
		case errors.Is(err, accounts.ErrEmailTaken):
			status = fiber.StatusConflict
			data["errors"] = map[string]string{"email": err.Error()}
		default:
			a.Logger.Error("signup register: %s", err)
			data["message"] = "Unable to create the account"
		}
		return a.render(c.Status(status), a.Views.Signup, data)
	}

	state := <-a.provider.Login(session.SessionID(c), emp.Email, payload.Password)
	if !state.IsAuthenticated() {
		return c.Redirect(guard.PathLogin, fiber.StatusSeeOther)
	}
	return a.signedIn(c, state, guard.PathHome)
}

func (a *Controller) Logout(c *fiber.Ctx) error {
	a.provider.Logout(c.UserContext(), session.SessionID(c))
	a.provider.ClearToken(c)
	return c.Redirect(guard.PathLogin, fiber.StatusSeeOther)
}

func (a *Controller) ForgotPasswordShow(c *fiber.Ctx) error {
	return a.render(c, a.Views.ForgotPassword, fiber.Map{
		"record": accounts.EmailPayload{},
	})
}

// ForgotPasswordPost answers the same way whether the email exists or not
func (a *Controller) ForgotPasswordPost(c *fiber.Ctx) error {
	payload := new(accounts.EmailPayload)
	if err := c.BodyParser(payload); err != nil {
		return a.render(c.Status(fiber.StatusBadRequest), a.Views.ForgotPassword, fiber.Map{
			"message": "Failed to parse form",
			"record":  payload,
		})
	}
	if err := payload.Validate(); err != nil {
		return a.render(c.Status(fiber.StatusUnprocessableEntity), a.Views.ForgotPassword, fiber.Map{
			"errors": formErrors(err),
			"record": payload,
		})
	}

	if _, err := a.users.RequestPasswordReset(c.UserContext(), payload.Email); err != nil {
		if errors.Is(err, accounts.ErrEmployeeNotFound) {
			a.Logger.Debug("password reset for unknown email")
		} else {
			a.Logger.Error("password reset request: %s", err)
		}
	}

	return a.render(c, a.Views.ForgotPassword, fiber.Map{
		"message": "If your email is registered, you will receive a password reset link shortly.",
		"record":  accounts.EmailPayload{},
	})
}

// ResetPasswordShow renders the new password form for a usable token
func (a *Controller) ResetPasswordShow(c *fiber.Ctx) error {
	token := c.Query("token")
	data := fiber.Map{
		"token":  token,
		"record": accounts.ResetPasswordPayload{Token: token},
	}

	emp, err := a.users.VerifyPasswordReset(c.UserContext(), token)
	if err != nil {
		if !errors.Is(err, accounts.ErrInvalidResetToken) {
			a.Logger.Error("verify reset token: %s", err)
		}
		data["invalid"] = true
		data["message"] = "Invalid or expired token"
		return a.render(c, a.Views.ResetPassword, data)
	}

	data["email"] = emp.Email
	return a.render(c, a.Views.ResetPassword, data)
}

// ResetPasswordPost redeems a reset token and sends the user to sign in
func (a *Controller) ResetPasswordPost(c *fiber.Ctx) error {
	payload := new(accounts.ResetPasswordPayload)
	if err := c.BodyParser(payload); err != nil {
		return a.render(c.Status(fiber.StatusBadRequest), a.Views.ResetPassword, fiber.Map{
			"message": "Failed to parse form",
			"invalid": true,
		})
	}

	_, err := a.users.ResetPassword(c.UserContext(), *payload)
	if err == nil {
		return c.Redirect(guard.PathLogin, fiber.StatusSeeOther)
	}

	data := fiber.Map{
		"token":  payload.Token,
		"record": accounts.ResetPasswordPayload{Token: payload.Token},
	}
	var verrs validation.Errors
	switch {
	case errors.As(err, &verrs):
		data["errors"] = formErrors(err)
		return a.render(c.Status(fiber.StatusUnprocessableEntity), a.Views.ResetPassword, data)
	case errors.Is(err, accounts.ErrInvalidResetToken):
		data["invalid"] = true
		data["message"] = "Invalid or expired token"
		return a.render(c.Status(fiber.StatusBadRequest), a.Views.ResetPassword, data)
	default:
		a.Logger.Error("reset password: %s", err)
		data["message"] = "Unable to reset the password"
		return a.render(c.Status(fiber.StatusInternalServerError), a.Views.ResetPassword, data)
	}
}

// ChangePasswordPost changes the password of the signed in user
func (a *Controller) ChangePasswordPost(c *fiber.Ctx) error {
	state := guard.StateFromContext(c)
	if !state.IsAuthenticated() || state.User == nil {
		return c.Redirect(guard.PathLogin, fiber.StatusSeeOther)
	}

	payload := new(accounts.ChangePasswordPayload)
	if err := c.BodyParser(payload); err != nil {
		return a.render(c.Status(fiber.StatusBadRequest), a.Views.Receiver, fiber.Map{
			"message": "Failed to parse form",
		})
	}

	err := a.users.ChangePassword(c.UserContext(), state.User.ID, *payload)
	var verrs validation.Errors
	switch {
	case err == nil:
		return a.render(c, a.Views.Receiver, fiber.Map{
			"message": "Password updated",
		})
	case errors.As(err, &verrs):
		return a.render(c.Status(fiber.StatusUnprocessableEntity), a.Views.Receiver, fiber.Map{
			"errors": formErrors(err),
		})
	case errors.Is(err, accounts.ErrWrongPassword):
		return a.render(c.Status(fiber.StatusBadRequest), a.Views.Receiver, fiber.Map{
			"errors": map[string]string{"current_password": "Old password is incorrect"},
		})
	default:
		a.Logger.Error("change password: %s", err)
		return a.render(c.Status(fiber.StatusInternalServerError), a.Views.Receiver, fiber.Map{
			"message": "Unable to change the password",
		})
	}
}

func (a *Controller) Receiver(c *fiber.Ctx) error {
	return a.render(c, a.Views.Receiver, nil)
}

func (a *Controller) Admin(c *fiber.Ctx) error {
	routes := make([]fiber.Map, 0, len(a.routes))
	for _, r := range a.routes {
		routes = append(routes, fiber.Map{
			"Path":      r.Path,
			"Guard":     r.Guard.String(),
			"AdminOnly": r.AdminOnly,
		})
	}

	employees, err := a.users.List(c.UserContext())
	if err != nil {
		a.Logger.Error("list employees: %s", err)
	}

	return a.render(c, a.Views.Admin, fiber.Map{
		"routes":    routes,
		"employees": employees,
	})
}

// signedIn moves the session to a new id before handing out the token
func (a *Controller) signedIn(c *fiber.Ctx, state guard.State, next string) error {
	token, err := a.provider.IssueToken(state)
	if err != nil {
		a.Logger.Error("issue token: %s", err)
		return fiber.ErrInternalServerError
	}
	a.provider.Rotate(c)
	a.provider.SetToken(c, token)
	return c.Redirect(next, fiber.StatusSeeOther)
}

func formErrors(err error) map[string]string {
	out := map[string]string{}
	var verrs validation.Errors
	if !errors.As(err, &verrs) {
		out["form"] = err.Error()
		return out
	}
	for field, ferr := range verrs {
		out[field] = ferr.Error()
	}
	return out
}
