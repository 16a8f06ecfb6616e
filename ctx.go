package guard

import (
	"context"

	"github.com/gofiber/fiber/v2"
)

var sourceCtxKey = &contextKey{"auth_source"}

type contextKey struct {
	name string
}

// LocalsSourceKey is the fiber Locals key holding the request's Source
const LocalsSourceKey = "guard.source"

// WithContext sets the Source in the given context
func WithContext(ctx context.Context, src Source) context.Context {
	return context.WithValue(ctx, sourceCtxKey, src)
}

// FromContext finds the Source in the context.
func FromContext(ctx context.Context) (Source, bool) {
	if ctx == nil {
		return nil, false
	}
	raw, ok := ctx.Value(sourceCtxKey).(Source)
	return raw, ok && raw != nil
}

// WithSource attaches src to the request, both in Locals and in the user
// context so plain context.Context consumers can reach it.
func WithSource(c *fiber.Ctx, src Source) {
	c.Locals(LocalsSourceKey, src)
	c.SetUserContext(WithContext(c.UserContext(), src))
}

// SourceFromContext returns the Source installed by the provider middleware
func SourceFromContext(c *fiber.Ctx) (Source, bool) {
	if src, ok := c.Locals(LocalsSourceKey).(Source); ok && src != nil {
		return src, true
	}
	return FromContext(c.UserContext())
}

// MustSource is SourceFromContext that panics with ErrProviderUnavailable.
// Reaching a guard without a provider means the app was wired wrong.
func MustSource(c *fiber.Ctx) Source {
	src, ok := SourceFromContext(c)
	if !ok {
		panic(ErrProviderUnavailable)
	}
	return src
}

// StateFromContext reads the current state for pages. Requests without a
// provider read as unauthenticated.
func StateFromContext(c *fiber.Ctx) State {
	src, ok := SourceFromContext(c)
	if !ok {
		return Unauthenticated()
	}
	return src.Snapshot()
}

// SourceMiddleware installs a fixed source on every request
func SourceMiddleware(src Source) fiber.Handler {
	return func(c *fiber.Ctx) error {
		WithSource(c, src)
		return c.Next()
	}
}
