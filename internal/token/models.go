package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/mehmetcc/tenantcore/internal/person"
	"github.com/mehmetcc/tenantcore/pkg/id"
)

var (
	ErrInvalidToken  = errors.New("invalid token")
	ErrTokenExpired  = errors.New("token expired")
	ErrInvalidClaims = errors.New("claims are incomplete")
)

// Class selects the lifetime and signing key of a token. It is not written
// into the token: an access token simply fails signature verification under
// the refresh codec and vice versa.
type Class string

const (
	ClassAccess  Class = "access"
	ClassRefresh Class = "refresh"
)

// Claims serialize as sub, role, iat, exp, jti (+ company_id, iss, aud when set).
type Claims struct {
	Role      person.Role `json:"role"`
	CompanyID string      `json:"company_id,omitempty"`
	jwt.RegisteredClaims
}

func (c *Claims) PublicID() id.PublicID { return id.PublicID(c.Subject) }

func (c *Claims) TokenID() id.TokenID { return id.TokenID(c.ID) }

func (c *Claims) Expiry() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// complete reports whether every field the format requires is present.
func (c *Claims) complete() bool {
	return c.Subject != "" &&
		c.ID != "" &&
		c.Role.Valid() &&
		c.IssuedAt != nil &&
		c.ExpiresAt != nil &&
		c.ExpiresAt.After(c.IssuedAt.Time)
}
