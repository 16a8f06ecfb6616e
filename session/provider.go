package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	guard "github.com/goliatone/go-route-guard"
	"github.com/google/uuid"
)

// LocalsSessionKey is the fiber Locals key holding the session id
const LocalsSessionKey = "session.id"

// Authenticator resolves users for the provider
type Authenticator interface {
	Authenticate(ctx context.Context, email, password string) (*guard.User, error)
	FindByID(ctx context.Context, id string) (*guard.User, error)
}

// CheckFunc is one authentication check. A nil user or an error settle the
// session as unauthenticated.
type CheckFunc func(ctx context.Context) (*guard.User, error)

// Provider owns the auth state of every session. It is the only writer of
// the stores it hands to guards.
type Provider struct {
	cfg          guard.Config
	tokens       *TokenService
	users        Authenticator
	backend      Backend
	logger       guard.Logger
	checkTimeout time.Duration
	idleTimeout  time.Duration
	now          func() time.Time

	mu       sync.Mutex
	sessions map[string]*entry
}

// entry is a live session. expiresAt is set while the session is signed
// in and follows the token lifetime.
type entry struct {
	store     *guard.Store
	seenAt    time.Time
	expiresAt time.Time
}

type ProviderOption func(*Provider)

func WithBackend(b Backend) ProviderOption {
	return func(p *Provider) {
		if b != nil {
			p.backend = b
		}
	}
}

func WithLogger(l guard.Logger) ProviderOption {
	return func(p *Provider) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithCheckTimeout bounds every authentication check
func WithCheckTimeout(d time.Duration) ProviderOption {
	return func(p *Provider) {
		if d > 0 {
			p.checkTimeout = d
		}
	}
}

// WithIdleTimeout drops sessions not seen for d. Zero disables it.
func WithIdleTimeout(d time.Duration) ProviderOption {
	return func(p *Provider) {
		if d >= 0 {
			p.idleTimeout = d
		}
	}
}

func NewProvider(cfg guard.Config, tokens *TokenService, users Authenticator, opts ...ProviderOption) *Provider {
	p := &Provider{
		cfg:          cfg,
		tokens:       tokens,
		users:        users,
		backend:      NewMemoryBackend(),
		logger:       guard.DefaultLogger(),
		checkTimeout: 10 * time.Second,
		idleTimeout:  cfg.GetIdleTimeout(),
		now:          time.Now,
		sessions:     make(map[string]*entry),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Middleware binds every request to its session. Known sessions keep their
// store, others are restored from the backend or the token cookie. A
// visitor with neither reads as signed out and gets no store until a check
// runs for it. It must run before any guard.
func (p *Provider) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := c.Cookies(p.cfg.Session.CookieName)
		sid, err := ParseSessionID(raw)
		if err != nil {
			if raw != "" {
				p.logger.Debug("replacing session id: %s", err)
			}
			sid = uuid.NewString()
			p.setCookie(c, p.cfg.Session.CookieName, sid, 0)
		}

		store, ok := p.lookup(sid)
		if !ok {
			store, ok = p.restore(c.UserContext(), sid, c.Cookies(p.cfg.Session.TokenCookie))
		}

		c.Locals(LocalsSessionKey, sid)
		if ok {
			guard.WithSource(c, store)
		} else {
			guard.WithSource(c, guard.StaticSource(guard.Unauthenticated()))
		}
		return c.Next()
	}
}

// ParseSessionID checks that raw is a session id issued by Middleware
func ParseSessionID(raw string) (string, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidSessionID, raw)
	}
	return id.String(), nil
}

// SessionID returns the session id set by Middleware
func SessionID(c *fiber.Ctx) string {
	sid, _ := c.Locals(LocalsSessionKey).(string)
	return sid
}

// Len is the number of live sessions
func (p *Provider) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sessions)
}

// Check runs fn as a new check on sid. The session is loading until fn
// returns; if another check starts meanwhile the result of fn is dropped.
// The returned channel yields the session state once fn is done.
func (p *Provider) Check(sid string, fn CheckFunc) <-chan guard.State {
	store := p.acquire(sid)
	tk := store.Begin()
	done := make(chan guard.State, 1)

	go func() {
		defer close(done)

		if !store.Pending(tk) {
			p.logger.Debug("auth check %d for session %s superseded before start", tk, sid)
			done <- store.Snapshot()
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), p.checkTimeout)
		defer cancel()

		user, err := fn(ctx)
		if err != nil {
			p.logger.Info("auth check for session %s failed: %s", sid, err)
			user = nil
		}

		if !store.Resolve(tk, user) {
			p.logger.Debug("auth check %d for session %s superseded", tk, sid)
		} else {
			p.persist(ctx, sid, store.Snapshot())
		}
		done <- store.Snapshot()
	}()

	return done
}

// Login checks the credentials against the directory
func (p *Provider) Login(sid, email, password string) <-chan guard.State {
	return p.Check(sid, func(ctx context.Context) (*guard.User, error) {
		return p.users.Authenticate(ctx, email, password)
	})
}

// Logout signs the session out. The store passes through loading so any
// check still running for the session is dropped.
func (p *Provider) Logout(ctx context.Context, sid string) guard.State {
	if err := p.backend.Delete(ctx, sid); err != nil {
		p.logger.Error("logout session %s: %s", sid, err)
	}

	store, ok := p.lookup(sid)
	if !ok {
		return guard.Unauthenticated()
	}
	store.Reject(store.Begin())
	return store.Snapshot()
}

// Rotate moves the session of the request to a fresh id and sets the new
// cookie. The old id no longer resolves to anything, so an id planted
// before sign in is worthless afterwards.
func (p *Provider) Rotate(c *fiber.Ctx) string {
	old := SessionID(c)
	sid := uuid.NewString()

	p.mu.Lock()
	e, ok := p.sessions[old]
	if ok {
		delete(p.sessions, old)
		e.seenAt = p.now()
		p.sessions[sid] = e
	}
	p.mu.Unlock()

	ctx := c.UserContext()
	if old != "" {
		if err := p.backend.Delete(ctx, old); err != nil {
			p.logger.Error("rotate session %s: %s", old, err)
		}
	}
	if ok {
		p.persist(ctx, sid, e.store.Snapshot())
		guard.WithSource(c, e.store)
	}

	c.Locals(LocalsSessionKey, sid)
	p.setCookie(c, p.cfg.Session.CookieName, sid, 0)
	return sid
}

// Forget drops the in memory store of sid, as when the browser session
// ends. The persisted state is kept.
func (p *Provider) Forget(sid string) {
	p.mu.Lock()
	delete(p.sessions, sid)
	p.mu.Unlock()
}

// Sweep drops every expired session and returns how many went
func (p *Provider) Sweep() int {
	now := p.now()

	p.mu.Lock()
	defer p.mu.Unlock()

	n := 0
	for sid, e := range p.sessions {
		if p.expired(e, now) {
			delete(p.sessions, sid)
			n++
		}
	}
	return n
}

// Janitor runs Sweep every interval until ctx is done
func (p *Provider) Janitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := p.Sweep(); n > 0 {
				p.logger.Debug("swept %d expired sessions", n)
			}
		}
	}
}

// IssueToken signs a token for an authenticated state
func (p *Provider) IssueToken(state guard.State) (string, error) {
	if !state.IsAuthenticated() || state.User == nil {
		return "", ErrNoUser
	}
	return p.tokens.Generate(state.User)
}

// SetToken writes the token cookie
func (p *Provider) SetToken(c *fiber.Ctx, token string) {
	p.setCookie(c, p.cfg.Session.TokenCookie, token, p.tokens.TTL())
}

// ClearToken removes the token cookie
func (p *Provider) ClearToken(c *fiber.Ctx) {
	p.setCookie(c, p.cfg.Session.TokenCookie, "", -time.Hour*(24*365))
}

// lookup returns the live store of sid and marks the session as seen
func (p *Provider) lookup(sid string) (*guard.Store, bool) {
	now := p.now()

	p.mu.Lock()
	defer p.mu.Unlock()

	e, ok := p.sessions[sid]
	if !ok {
		return nil, false
	}
	if p.expired(e, now) {
		delete(p.sessions, sid)
		return nil, false
	}
	e.seenAt = now
	return e.store, true
}

func (p *Provider) acquire(sid string) *guard.Store {
	if s, ok := p.lookup(sid); ok {
		return s
	}
	return p.track(sid, guard.NewStore())
}

// track registers store under sid, unless another request got there first
func (p *Provider) track(sid string, store *guard.Store) *guard.Store {
	now := p.now()

	p.mu.Lock()
	if e, ok := p.sessions[sid]; ok && !p.expired(e, now) {
		p.mu.Unlock()
		return e.store
	}

	e := &entry{store: store, seenAt: now}
	if store.Snapshot().IsAuthenticated() {
		e.expiresAt = now.Add(p.tokens.TTL())
	}
	p.sessions[sid] = e
	p.mu.Unlock()

	store.Subscribe(func(state guard.State) {
		p.stamp(e, state)
	})
	return store
}

// stamp keeps the expiry of e in step with its state
func (p *Provider) stamp(e *entry, state guard.State) {
	if state.IsLoading() {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if state.IsAuthenticated() {
		e.expiresAt = p.now().Add(p.tokens.TTL())
	} else {
		e.expiresAt = time.Time{}
	}
}

// expired must be called with mu held
func (p *Provider) expired(e *entry, now time.Time) bool {
	if !e.expiresAt.IsZero() && now.After(e.expiresAt) {
		return true
	}
	return p.idleTimeout > 0 && now.Sub(e.seenAt) > p.idleTimeout
}

// restore rebuilds the session of sid from the backend, or starts a token
// check. It reports false when there is nothing to restore from.
func (p *Provider) restore(ctx context.Context, sid, token string) (*guard.Store, bool) {
	state, ok, err := p.backend.Load(ctx, sid)
	if err != nil {
		p.logger.Error("restore session %s: %s", sid, err)
	}
	if ok && !state.IsLoading() {
		return p.track(sid, guard.NewSettledStore(state)), true
	}

	if token == "" {
		return nil, false
	}

	store := p.acquire(sid)
	p.Check(sid, func(ctx context.Context) (*guard.User, error) {
		claims, err := p.tokens.Validate(token)
		if err != nil {
			return nil, err
		}
		return p.users.FindByID(ctx, claims.Subject)
	})
	return store, true
}

func (p *Provider) persist(ctx context.Context, sid string, state guard.State) {
	if state.IsLoading() {
		return
	}
	if err := p.backend.Save(ctx, sid, state, p.tokens.TTL()); err != nil {
		p.logger.Error("persist session %s: %s", sid, err)
	}
}

func (p *Provider) setCookie(c *fiber.Ctx, name, value string, ttl time.Duration) {
	cookie := &fiber.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HTTPOnly: true,
		Secure:   p.cfg.Session.SecureCookies,
		SameSite: fiber.CookieSameSiteLaxMode,
	}
	if ttl != 0 {
		cookie.Expires = time.Now().Add(ttl)
	}
	c.Cookie(cookie)
}
