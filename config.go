package guard

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the options of the guard layer and the services around it
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Routes   RoutesConfig   `yaml:"routes"`
	Session  SessionConfig  `yaml:"session"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Accounts AccountsConfig `yaml:"accounts"`
}

type ServerConfig struct {
	Addr            string `yaml:"addr"`
	ShutdownTimeout int    `yaml:"shutdown_timeout"` // seconds
}

type RoutesConfig struct {
	LoginPath string `yaml:"login_path"`
	HomePath  string `yaml:"home_path"`
	// RejectedRouteKey names the cookie remembering where a visitor was
	// headed before being sent to login.
	RejectedRouteKey string `yaml:"rejected_route_key"`
	LoadingView      string `yaml:"loading_view"`
	LoadingRefresh   int    `yaml:"loading_refresh"` // seconds
}

type SessionConfig struct {
	CookieName      string   `yaml:"cookie_name"`
	TokenCookie     string   `yaml:"token_cookie"`
	SigningKey      string   `yaml:"signing_key"`
	Issuer          string   `yaml:"issuer"`
	Audience        []string `yaml:"audience"`
	TokenExpiration int      `yaml:"token_expiration"` // hours
	SecureCookies   bool     `yaml:"secure_cookies"`
	// IdleTimeout evicts in memory sessions not seen for this long
	IdleTimeout int `yaml:"idle_timeout"` // minutes
}

type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// RedisConfig enables the redis session backend when Addr is set
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

type AccountsConfig struct {
	BcryptCost    int    `yaml:"bcrypt_cost"`
	AdminEmail    string `yaml:"admin_email"`
	AdminPassword string `yaml:"admin_password"`
	// HashidIDs derives employee ids from their email
	HashidIDs bool `yaml:"hashid_ids"`
}

// DefaultSigningKey is the placeholder key of DefaultConfig. Validate
// rejects it, so a real key must come from the config file or
// GUARD_SIGNING_KEY.
const DefaultSigningKey = "change-me-in-production"

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: 5,
		},
		Routes: RoutesConfig{
			LoginPath:        PathLogin,
			HomePath:         PathHome,
			RejectedRouteKey: "rejected_route",
			LoadingView:      "loading",
			LoadingRefresh:   1,
		},
		Session: SessionConfig{
			CookieName:      "guard_sid",
			TokenCookie:     "guard_token",
			SigningKey:      DefaultSigningKey,
			Issuer:          "go-route-guard",
			TokenExpiration: 24,
			IdleTimeout:     30,
		},
		Database: DatabaseConfig{
			DSN: "file:guard.db?cache=shared",
		},
		Redis: RedisConfig{
			Prefix: "guard:session:",
		},
		Accounts: AccountsConfig{
			BcryptCost: 12,
		},
	}
}

// LoadConfig builds a Config from defaults, the optional YAML file at path
// and GUARD_* environment overrides, in that order.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GUARD_SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("GUARD_DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("GUARD_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("GUARD_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("GUARD_ADMIN_EMAIL"); v != "" {
		cfg.Accounts.AdminEmail = v
	}
	if v := os.Getenv("GUARD_ADMIN_PASSWORD"); v != "" {
		cfg.Accounts.AdminPassword = v
	}
	if v := os.Getenv("GUARD_BCRYPT_COST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Accounts.BcryptCost = n
		}
	}
	if v := os.Getenv("GUARD_SECURE_COOKIES"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Session.SecureCookies = b
		}
	}
	// always override in production
	if v := os.Getenv("GUARD_SIGNING_KEY"); v != "" {
		cfg.Session.SigningKey = v
	}
}

// Validate checks the configuration for errors.
func (c Config) Validate() error {
	var errs []string

	if !strings.HasPrefix(c.Routes.LoginPath, "/") {
		errs = append(errs, "routes.login_path must start with /")
	}
	if !strings.HasPrefix(c.Routes.HomePath, "/") {
		errs = append(errs, "routes.home_path must start with /")
	}
	if c.Routes.LoginPath == c.Routes.HomePath {
		errs = append(errs, "routes.login_path and routes.home_path must differ")
	}
	if c.Session.CookieName == "" || c.Session.TokenCookie == "" {
		errs = append(errs, "session cookie names are required")
	}
	switch {
	case c.Session.SigningKey == DefaultSigningKey:
		errs = append(errs, "session.signing_key is the placeholder, set it or GUARD_SIGNING_KEY")
	case len(c.Session.SigningKey) < 16:
		errs = append(errs, "session.signing_key must be at least 16 characters")
	}
	if c.Session.TokenExpiration <= 0 {
		errs = append(errs, "session.token_expiration must be positive")
	}
	if c.Session.IdleTimeout < 0 {
		errs = append(errs, "session.idle_timeout must not be negative")
	}
	if c.Accounts.BcryptCost < 4 || c.Accounts.BcryptCost > 31 {
		errs = append(errs, "accounts.bcrypt_cost must be within 4..31")
	}
	if (c.Accounts.AdminEmail == "") != (c.Accounts.AdminPassword == "") {
		errs = append(errs, "accounts.admin_email and accounts.admin_password go together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(errs, "; "))
	}
	return nil
}

func (c Config) GetLoginPath() string {
	return c.Routes.LoginPath
}

func (c Config) GetHomePath() string {
	return c.Routes.HomePath
}

func (c Config) GetRejectedRouteKey() string {
	return c.Routes.RejectedRouteKey
}

func (c Config) GetTokenTTL() time.Duration {
	return time.Duration(c.Session.TokenExpiration) * time.Hour
}

// GetIdleTimeout is how long an unused in memory session is kept, zero
// keeps them until their token expires.
func (c Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.Session.IdleTimeout) * time.Minute
}

func (c Config) GetShutdownTimeout() time.Duration {
	if c.Server.ShutdownTimeout <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.Server.ShutdownTimeout) * time.Second
}
