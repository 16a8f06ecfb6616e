package session

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	guard "github.com/goliatone/go-route-guard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBadCredentials = errors.New("bad credentials")

type fakeDirectory struct {
	mu      sync.Mutex
	users   map[string]*guard.User
	secrets map[string]string
	gate    chan struct{}
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		users: map[string]*guard.User{
			"u-admin": {ID: "u-admin", Email: "admin@example.com", Role: guard.RoleAdmin},
			"u-emp":   {ID: "u-emp", Email: "emp@example.com", Role: guard.RoleEmployee},
		},
		secrets: map[string]string{
			"admin@example.com": "admin-password",
			"emp@example.com":   "emp-password",
		},
	}
}

func (f *fakeDirectory) wait(ctx context.Context) error {
	f.mu.Lock()
	gate := f.gate
	f.mu.Unlock()
	if gate == nil {
		return nil
	}
	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeDirectory) Authenticate(ctx context.Context, email, password string) (*guard.User, error) {
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	if f.secrets[email] != password {
		return nil, errBadCredentials
	}
	for _, u := range f.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, errBadCredentials
}

func (f *fakeDirectory) FindByID(ctx context.Context, id string) (*guard.User, error) {
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	u, ok := f.users[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return u, nil
}

func newTestProvider(t *testing.T, dir Authenticator, opts ...ProviderOption) *Provider {
	t.Helper()
	opts = append([]ProviderOption{WithLogger(guard.NopLogger())}, opts...)
	return NewProvider(guard.DefaultConfig(), newTestTokens(), dir, opts...)
}

const testSID = "9f1c6f0e-3c1b-4f6e-8a51-2f0e8f9c0a11"

func stateOf(p *Provider, sid string) (guard.State, bool) {
	store, ok := p.lookup(sid)
	if !ok {
		return guard.State{}, false
	}
	return store.Snapshot(), true
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestProviderLogin(t *testing.T) {
	backend := NewMemoryBackend()
	p := newTestProvider(t, newFakeDirectory(), WithBackend(backend))

	state := <-p.Login(testSID, "admin@example.com", "admin-password")
	require.Equal(t, guard.StatusAuthenticated, state.Status)
	assert.True(t, state.IsAdmin())

	saved, ok, err := backend.Load(context.Background(), testSID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "u-admin", saved.User.ID)

	token, err := p.IssueToken(state)
	require.NoError(t, err)
	claims, err := newTestTokens().Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "u-admin", claims.Subject)
}

func TestProviderLoginFailure(t *testing.T) {
	p := newTestProvider(t, newFakeDirectory())

	state := <-p.Login(testSID, "admin@example.com", "wrong")
	assert.Equal(t, guard.StatusUnauthenticated, state.Status)
	assert.Nil(t, state.User)

	_, err := p.IssueToken(state)
	assert.ErrorIs(t, err, ErrNoUser)
}

func TestProviderLoginPassesThroughLoading(t *testing.T) {
	dir := newFakeDirectory()
	dir.gate = make(chan struct{})
	p := newTestProvider(t, dir)

	done := p.Login(testSID, "emp@example.com", "emp-password")

	state, ok := stateOf(p, testSID)
	require.True(t, ok)
	assert.True(t, state.IsLoading())
	assert.Equal(t, guard.ShowLoading, guard.Protected(state, false))

	close(dir.gate)
	state = <-done
	assert.Equal(t, guard.StatusAuthenticated, state.Status)
	current, _ := stateOf(p, testSID)
	assert.Equal(t, guard.Render, guard.Protected(current, false))
}

func TestProviderSupersededCheckIsIgnored(t *testing.T) {
	p := newTestProvider(t, newFakeDirectory())

	release := make(chan struct{})
	slow := p.Check(testSID, func(ctx context.Context) (*guard.User, error) {
		<-release
		return &guard.User{ID: "u-admin", Role: guard.RoleAdmin}, nil
	})

	state := p.Logout(context.Background(), testSID)
	require.Equal(t, guard.StatusUnauthenticated, state.Status)

	close(release)
	<-slow

	current, _ := stateOf(p, testSID)
	assert.Equal(t, guard.StatusUnauthenticated, current.Status, "late login result must not win")
}

func TestProviderLogout(t *testing.T) {
	backend := NewMemoryBackend()
	p := newTestProvider(t, newFakeDirectory(), WithBackend(backend))

	<-p.Login(testSID, "emp@example.com", "emp-password")
	state := p.Logout(context.Background(), testSID)
	assert.Equal(t, guard.StatusUnauthenticated, state.Status)

	_, ok, _ := backend.Load(context.Background(), testSID)
	assert.False(t, ok)
}

func TestProviderForget(t *testing.T) {
	p := newTestProvider(t, newFakeDirectory())
	<-p.Login(testSID, "emp@example.com", "emp-password")
	require.Equal(t, 1, p.Len())

	p.Forget(testSID)
	assert.Equal(t, 0, p.Len())
	_, ok := stateOf(p, testSID)
	assert.False(t, ok)
}

func newGuardedApp(t *testing.T, p *Provider) *fiber.App {
	t.Helper()

	app := fiber.New()
	app.Use(p.Middleware())

	page := func(name string) fiber.Handler {
		return func(c *fiber.Ctx) error { return c.SendString(name) }
	}
	g := guard.NewRouteGuard(guard.DefaultConfig(), guard.WithLogger(guard.NopLogger()))
	require.NoError(t, g.Mount(app, guard.DefaultRoutes(guard.Pages{
		Login:          page("login"),
		Signup:         page("signup"),
		ForgotPassword: page("forgot"),
		ResetPassword:  page("reset"),
		Receiver:       page("receiver"),
		Admin:          page("admin"),
	})))
	return app
}

func get(t *testing.T, app *fiber.App, path string, cookies ...*http.Cookie) (*http.Response, string) {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodGet, path, nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestMiddlewareNewVisitor(t *testing.T) {
	p := newTestProvider(t, newFakeDirectory())
	app := newGuardedApp(t, p)

	resp, _ := get(t, app, "/admin")
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get(fiber.HeaderLocation))

	var sid string
	for _, c := range resp.Cookies() {
		if c.Name == "guard_sid" {
			sid = c.Value
		}
	}
	assert.NotEmpty(t, sid)
	assert.Equal(t, 0, p.Len(), "a signed out visitor needs no store")
}

func TestMiddlewareAnonymousVisitorsAreNotTracked(t *testing.T) {
	p := newTestProvider(t, newFakeDirectory())
	app := newGuardedApp(t, p)

	for i := 0; i < 500; i++ {
		resp, body := get(t, app, "/login")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Equal(t, "login", body)
	}
	assert.Equal(t, 0, p.Len())
}

func TestMiddlewareRestoresFromToken(t *testing.T) {
	dir := newFakeDirectory()
	dir.gate = make(chan struct{})
	p := newTestProvider(t, dir)
	app := newGuardedApp(t, p)

	token, err := newTestTokens().Generate(dir.users["u-emp"])
	require.NoError(t, err)
	cookies := []*http.Cookie{
		{Name: "guard_sid", Value: testSID},
		{Name: "guard_token", Value: token},
	}

	resp, body := get(t, app, "/", cookies...)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Loading...", body)

	close(dir.gate)
	require.Eventually(t, func() bool {
		state, ok := stateOf(p, testSID)
		return ok && !state.IsLoading()
	}, time.Second, 5*time.Millisecond)

	_, body = get(t, app, "/", cookies...)
	assert.Equal(t, "receiver", body)

	resp, _ = get(t, app, "/admin", cookies...)
	assert.Equal(t, "/", resp.Header.Get(fiber.HeaderLocation))
}

func TestMiddlewareRestoresFromBackend(t *testing.T) {
	backend := NewMemoryBackend()
	require.NoError(t, backend.Save(context.Background(), testSID,
		guard.Authenticated(&guard.User{ID: "u-admin", Role: guard.RoleAdmin}), time.Minute))

	p := newTestProvider(t, newFakeDirectory(), WithBackend(backend))
	app := newGuardedApp(t, p)

	_, body := get(t, app, "/admin", &http.Cookie{Name: "guard_sid", Value: testSID})
	assert.Equal(t, "admin", body)

	resp, _ := get(t, app, "/login", &http.Cookie{Name: "guard_sid", Value: testSID})
	assert.Equal(t, "/", resp.Header.Get(fiber.HeaderLocation))
}

func TestMiddlewareInvalidToken(t *testing.T) {
	p := newTestProvider(t, newFakeDirectory())
	app := newGuardedApp(t, p)

	cookies := []*http.Cookie{
		{Name: "guard_sid", Value: testSID},
		{Name: "guard_token", Value: "garbage"},
	}
	get(t, app, "/", cookies...)

	require.Eventually(t, func() bool {
		state, ok := stateOf(p, testSID)
		return ok && state.Status == guard.StatusUnauthenticated
	}, time.Second, 5*time.Millisecond)

	resp, _ := get(t, app, "/", cookies...)
	assert.Equal(t, "/login", resp.Header.Get(fiber.HeaderLocation))
}

func TestMiddlewareReplacesInvalidSessionID(t *testing.T) {
	p := newTestProvider(t, newFakeDirectory())
	app := newGuardedApp(t, p)

	resp, _ := get(t, app, "/login", &http.Cookie{Name: "guard_sid", Value: "not-a-uuid"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	_, ok := stateOf(p, "not-a-uuid")
	assert.False(t, ok)
}

func TestParseSessionID(t *testing.T) {
	sid, err := ParseSessionID(testSID)
	require.NoError(t, err)
	assert.Equal(t, testSID, sid)

	for _, raw := range []string{"", "not-a-uuid", "9f1c6f0e"} {
		_, err := ParseSessionID(raw)
		assert.ErrorIs(t, err, ErrInvalidSessionID, raw)
	}
}

func TestProviderLogoutUnknownSession(t *testing.T) {
	p := newTestProvider(t, newFakeDirectory())

	state := p.Logout(context.Background(), testSID)
	assert.Equal(t, guard.StatusUnauthenticated, state.Status)
	assert.Equal(t, 0, p.Len())
}

func TestProviderRotate(t *testing.T) {
	backend := NewMemoryBackend()
	p := newTestProvider(t, newFakeDirectory(), WithBackend(backend))

	app := fiber.New()
	app.Use(p.Middleware())
	app.Get("/signin", func(c *fiber.Ctx) error {
		state := <-p.Login(SessionID(c), "admin@example.com", "admin-password")
		if !state.IsAuthenticated() {
			return fiber.ErrUnauthorized
		}
		sid := p.Rotate(c)
		assert.Equal(t, sid, SessionID(c))
		assert.True(t, guard.StateFromContext(c).IsAdmin())
		return c.SendString(sid)
	})

	resp, sid := get(t, app, "/signin", &http.Cookie{Name: "guard_sid", Value: testSID})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEqual(t, testSID, sid)

	var cookie string
	for _, c := range resp.Cookies() {
		if c.Name == "guard_sid" {
			cookie = c.Value
		}
	}
	assert.Equal(t, sid, cookie)

	_, ok := stateOf(p, testSID)
	assert.False(t, ok, "old id must be gone")
	_, ok, _ = backend.Load(context.Background(), testSID)
	assert.False(t, ok)

	state, ok := stateOf(p, sid)
	require.True(t, ok)
	assert.True(t, state.IsAdmin())
	saved, ok, _ := backend.Load(context.Background(), sid)
	require.True(t, ok)
	assert.Equal(t, "u-admin", saved.User.ID)
}

func TestProviderIdleSessionsExpire(t *testing.T) {
	clock := newFakeClock()
	p := newTestProvider(t, newFakeDirectory(), WithIdleTimeout(10*time.Minute))
	p.now = clock.Now

	<-p.Login(testSID, "emp@example.com", "wrong")
	require.Equal(t, 1, p.Len())

	clock.Advance(5 * time.Minute)
	_, ok := stateOf(p, testSID)
	require.True(t, ok, "a lookup keeps the session alive")

	clock.Advance(9 * time.Minute)
	assert.Equal(t, 0, p.Sweep())

	clock.Advance(2 * time.Minute)
	assert.Equal(t, 1, p.Sweep())
	assert.Equal(t, 0, p.Len())
}

func TestProviderSignedInSessionsExpireWithToken(t *testing.T) {
	clock := newFakeClock()
	p := newTestProvider(t, newFakeDirectory(), WithIdleTimeout(0))
	p.now = clock.Now

	state := <-p.Login(testSID, "emp@example.com", "emp-password")
	require.True(t, state.IsAuthenticated())

	clock.Advance(p.tokens.TTL() - time.Minute)
	assert.Equal(t, 0, p.Sweep())

	clock.Advance(2 * time.Minute)
	_, ok := stateOf(p, testSID)
	assert.False(t, ok)
	assert.Equal(t, 0, p.Len())
}

func TestProviderSignOutClearsExpiry(t *testing.T) {
	clock := newFakeClock()
	p := newTestProvider(t, newFakeDirectory(), WithIdleTimeout(0))
	p.now = clock.Now

	<-p.Login(testSID, "emp@example.com", "emp-password")
	p.Logout(context.Background(), testSID)

	clock.Advance(2 * p.tokens.TTL())
	assert.Equal(t, 0, p.Sweep(), "signed out sessions only go when idle")
}

func TestProviderJanitor(t *testing.T) {
	clock := newFakeClock()
	p := newTestProvider(t, newFakeDirectory(), WithIdleTimeout(time.Minute))
	p.now = clock.Now

	<-p.Login(testSID, "emp@example.com", "wrong")
	clock.Advance(2 * time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Janitor(ctx, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		return p.Len() == 0
	}, time.Second, 5*time.Millisecond)
}
