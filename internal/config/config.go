package config

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

var (
	ErrMissingSecret = errors.New("JWT_SECRET is not set")
	ErrWeakSecret    = errors.New("JWT_SECRET must be at least 32 bytes")
)

const (
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour

	minSecretLength = 32
)

type AppConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	Development     bool
	// CORSOrigins enables CORS for these origins; empty disables it.
	CORSOrigins []string
}

type DbConfig struct {
	Driver          string // "postgres" or "memory"
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	MaxConnLifetime time.Duration
}

type JWTConfig struct {
	Secret      string
	AccessTTL   time.Duration
	RefreshTTL  time.Duration
	JWTIssuer   string
	JWTAudience string
	JWTAlg      string
	JWTKID      string
}

type CookieConfig struct {
	CookieName     string
	CookieDomain   string
	CookieSecure   bool
	CookieSamesite http.SameSite
}

type RateLimitConfig struct {
	AuthRequests int
	AuthWindow   time.Duration
}

type Config struct {
	AppConfig       *AppConfig
	DbConfig        *DbConfig
	JWTConfig       *JWTConfig
	CookieConfig    *CookieConfig
	RateLimitConfig *RateLimitConfig
}

// LoadConfig reads envFile (if present) and then the process environment.
// A missing .env is not an error; a missing JWT_SECRET is.
func LoadConfig(envFile string, logger *zap.Logger) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			logger.Warn("no .env file loaded, using process environment", zap.String("path", envFile), zap.Error(err))
		}
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from getenv. Split out so tests can feed a map.
func FromEnv(getenv func(string) string) (*Config, error) {
	p := envParser{getenv: getenv}

	/** db config */
	dbConfig := &DbConfig{
		Driver:          p.str("STORE_DRIVER", "postgres"),
		DSN:             getenv("POSTGRES_DSN"),
		MaxOpenConns:    p.int("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    p.int("DB_MAX_IDLE_CONNS", 5),
		MaxConnLifetime: p.duration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
	}

	/** app config */
	appConfig := &AppConfig{
		Port:            p.str("APP_PORT", "8080"),
		ReadTimeout:     p.duration("APP_READ_TIMEOUT", 5*time.Second),
		WriteTimeout:    p.duration("APP_WRITE_TIMEOUT", 10*time.Second),
		IdleTimeout:     p.duration("APP_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: p.duration("APP_SHUTDOWN_TIMEOUT", 15*time.Second),
		Development:     p.bool("APP_DEVELOPMENT", false),
		CORSOrigins:     p.list("APP_CORS_ORIGINS"),
	}

	/** jwt config */
	jwtConfig := &JWTConfig{
		Secret:      getenv("JWT_SECRET"),
		AccessTTL:   p.duration("ACCESS_TTL", DefaultAccessTTL),
		RefreshTTL:  p.duration("REFRESH_TTL", DefaultRefreshTTL),
		JWTIssuer:   getenv("JWT_ISSUER"),
		JWTAudience: getenv("JWT_AUDIENCE"),
		JWTAlg:      p.str("JWT_ALG", "HS256"),
		JWTKID:      getenv("JWT_KID"),
	}

	/** cookie config */
	cookieConfig := &CookieConfig{
		CookieName:     p.str("COOKIE_NAME", "refresh_token"),
		CookieDomain:   getenv("COOKIE_DOMAIN"),
		CookieSecure:   p.bool("COOKIE_SECURE", true),
		CookieSamesite: p.sameSite("COOKIE_SAMESITE"),
	}

	/** rate limit config */
	rateLimitConfig := &RateLimitConfig{
		AuthRequests: p.int("RATE_LIMIT_AUTH", 20),
		AuthWindow:   p.duration("RATE_LIMIT_WINDOW", time.Minute),
	}

	if p.err != nil {
		return nil, p.err
	}

	cfg := &Config{
		AppConfig:       appConfig,
		DbConfig:        dbConfig,
		JWTConfig:       jwtConfig,
		CookieConfig:    cookieConfig,
		RateLimitConfig: rateLimitConfig,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.JWTConfig.Secret == "" {
		return ErrMissingSecret
	}
	if len(c.JWTConfig.Secret) < minSecretLength {
		return ErrWeakSecret
	}
	if c.JWTConfig.AccessTTL <= 0 || c.JWTConfig.RefreshTTL <= 0 {
		return fmt.Errorf("token lifetimes must be positive")
	}
	if c.JWTConfig.RefreshTTL <= c.JWTConfig.AccessTTL {
		return fmt.Errorf("REFRESH_TTL (%s) must exceed ACCESS_TTL (%s)", c.JWTConfig.RefreshTTL, c.JWTConfig.AccessTTL)
	}
	switch c.DbConfig.Driver {
	case "postgres":
		if c.DbConfig.DSN == "" {
			return fmt.Errorf("POSTGRES_DSN is not set")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.DbConfig.Driver)
	}
	return nil
}

// envParser keeps the first parse error so FromEnv reads linearly.
type envParser struct {
	getenv func(string) string
	err    error
}

func (p *envParser) str(key, def string) string {
	if v := p.getenv(key); v != "" {
		return v
	}
	return def
}

func (p *envParser) int(key string, def int) int {
	s := p.getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("%s: %w", key, err)
	}
	return v
}

func (p *envParser) duration(key string, def time.Duration) time.Duration {
	s := p.getenv(key)
	if s == "" {
		return def
	}
	v, err := time.ParseDuration(s)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("%s: %w", key, err)
	}
	return v
}

func (p *envParser) bool(key string, def bool) bool {
	s := p.getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.ParseBool(s)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("%s: %w", key, err)
	}
	return v
}

func (p *envParser) list(key string) []string {
	var out []string
	for _, v := range strings.Split(p.getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func (p *envParser) sameSite(key string) http.SameSite {
	switch strings.ToLower(p.getenv(key)) {
	case "", "strict":
		return http.SameSiteStrictMode
	case "lax":
		return http.SameSiteLaxMode
	case "none":
		return http.SameSiteNoneMode
	default:
		if p.err == nil {
			p.err = fmt.Errorf("%s: expected strict, lax or none", key)
		}
		return http.SameSiteStrictMode
	}
}
