package token

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/mehmetcc/tenantcore/internal/config"
	"github.com/mehmetcc/tenantcore/internal/person"
	"github.com/mehmetcc/tenantcore/pkg/id"
	"golang.org/x/crypto/hkdf"
)

type Codec interface {
	// Issue stamps fresh claims (iat=now, exp=now+TTL, new jti) and signs them.
	Issue(subject id.PublicID, role person.Role, companyID string) (string, *Claims, error)
	Encode(claims *Claims) (string, error)
	// Decode returns ErrTokenExpired only for a correctly signed token whose
	// exp has passed; every other failure is ErrInvalidToken.
	Decode(tokenString string) (*Claims, error)
	Class() Class
	TTL() time.Duration
}

type Option func(*codec)

// WithClock replaces time.Now for both issuing and validation.
func WithClock(now func() time.Time) Option {
	return func(c *codec) {
		c.now = now
	}
}

type codec struct {
	class    Class
	key      []byte
	method   jwt.SigningMethod
	ttl      time.Duration
	issuer   string
	audience string
	kid      string
	now      func() time.Time
	parser   *jwt.Parser
}

func NewCodec(cfg *config.JWTConfig, class Class, opts ...Option) (Codec, error) {
	if cfg.Secret == "" {
		return nil, config.ErrMissingSecret
	}

	var ttl time.Duration
	switch class {
	case ClassAccess:
		ttl = cfg.AccessTTL
	case ClassRefresh:
		ttl = cfg.RefreshTTL
	default:
		return nil, fmt.Errorf("unknown token class %q", class)
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("%s token ttl must be positive", class)
	}

	method, keyLen, err := signingMethod(cfg.JWTAlg)
	if err != nil {
		return nil, err
	}
	key, err := deriveKey(cfg.Secret, class, keyLen)
	if err != nil {
		return nil, err
	}

	c := &codec{
		class:    class,
		key:      key,
		method:   method,
		ttl:      ttl,
		issuer:   cfg.JWTIssuer,
		audience: cfg.JWTAudience,
		kid:      cfg.JWTKID,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{c.method.Alg()}),
		jwt.WithTimeFunc(c.now),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	}
	if c.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(c.issuer))
	}
	if c.audience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(c.audience))
	}
	c.parser = jwt.NewParser(parserOpts...)

	return c, nil
}

func signingMethod(alg string) (jwt.SigningMethod, int, error) {
	switch alg {
	case "", "HS256":
		return jwt.SigningMethodHS256, 32, nil
	case "HS384":
		return jwt.SigningMethodHS384, 48, nil
	case "HS512":
		return jwt.SigningMethodHS512, 64, nil
	default:
		return nil, 0, fmt.Errorf("unsupported JWT_ALG %q", alg)
	}
}

// deriveKey gives each token class its own HMAC key from the one secret.
func deriveKey(secret string, class Class, n int) ([]byte, error) {
	r := hkdf.New(sha256.New, []byte(secret), nil, []byte("tenantcore/jwt/"+string(class)))
	key := make([]byte, n)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("derive %s key: %w", class, err)
	}
	return key, nil
}

func (c *codec) Class() Class { return c.class }

func (c *codec) TTL() time.Duration { return c.ttl }

func (c *codec) Issue(subject id.PublicID, role person.Role, companyID string) (string, *Claims, error) {
	issuedAt := c.now().UTC()
	claims := &Claims{
		Role:      role,
		CompanyID: companyID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   string(subject),
			Issuer:    c.issuer,
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(c.ttl)),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ID:        string(id.NewTokenID()),
		},
	}
	if c.audience != "" {
		claims.Audience = jwt.ClaimStrings{c.audience}
	}

	signed, err := c.Encode(claims)
	if err != nil {
		return "", nil, err
	}
	return signed, claims, nil
}

func (c *codec) Encode(claims *Claims) (string, error) {
	if claims == nil || !claims.complete() {
		return "", ErrInvalidClaims
	}
	jwtToken := jwt.NewWithClaims(c.method, claims)
	if c.kid != "" {
		jwtToken.Header["kid"] = c.kid
	}
	return jwtToken.SignedString(c.key)
}

func (c *codec) Decode(tokenString string) (*Claims, error) {
	var claims Claims
	tkn, err := c.parser.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
		return c.key, nil
	})
	if err != nil {
		// signature is verified before any time check, so a forged
		// token never reports as merely expired
		if errors.Is(err, jwt.ErrTokenSignatureInvalid) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
		if onlyExpired(err) && claims.complete() {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !tkn.Valid || !claims.complete() {
		return nil, ErrInvalidToken
	}
	return &claims, nil
}

// onlyExpired reports whether exp is the sole claim the parser rejected.
// The parser joins every failed check into one error.
func onlyExpired(err error) bool {
	if !errors.Is(err, jwt.ErrTokenExpired) {
		return false
	}
	for _, other := range []error{
		jwt.ErrTokenUsedBeforeIssued,
		jwt.ErrTokenNotValidYet,
		jwt.ErrTokenInvalidIssuer,
		jwt.ErrTokenInvalidAudience,
		jwt.ErrTokenRequiredClaimMissing,
	} {
		if errors.Is(err, other) {
			return false
		}
	}
	return true
}
