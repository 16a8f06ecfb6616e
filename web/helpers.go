package web

import (
	"maps"

	"github.com/gofiber/fiber/v2"
	guard "github.com/goliatone/go-route-guard"
)

// TemplateUserKey is the view variable holding the signed in user
var TemplateUserKey = "current_user"

// TemplateHelpers returns the auth data every view gets.
//
// In templates:
//
//	{% if is_authenticated %}
//	{% if is_admin %}
//	{% if is_manager %}
//	{{ current_user.Name }}
func TemplateHelpers(state guard.State) fiber.Map {
	state = state.Normalize()
	manager := state.IsAuthenticated() && state.User != nil && state.User.Role.IsAtLeast(guard.RoleManager)
	return fiber.Map{
		TemplateUserKey:    state.User,
		"is_authenticated": state.IsAuthenticated(),
		"is_admin":         state.IsAdmin(),
		"is_manager":       manager,
		"roles":            guard.AllRoles(),
	}
}

// render merges the request auth data under data, data wins on conflicts
func (a *Controller) render(c *fiber.Ctx, view string, data fiber.Map) error {
	out := TemplateHelpers(guard.StateFromContext(c))
	maps.Copy(out, data)
	return c.Render(view, out)
}
