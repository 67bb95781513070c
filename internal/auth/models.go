package auth

import (
	"context"
	"time"

	"github.com/mehmetcc/tenantcore/internal/person"
	"github.com/mehmetcc/tenantcore/pkg/id"
)

// TokenPair is handed to the client once; nothing about it is stored.
type TokenPair struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// Principal is the identity the gate attaches to an authenticated request.
type Principal struct {
	UserID    id.PublicID
	Role      person.Role
	CompanyID string
	TokenID   id.TokenID
	ExpiresAt time.Time
}

func (p *Principal) HasRole(roles ...person.Role) bool {
	for _, r := range roles {
		if p.Role == r {
			return true
		}
	}
	return false
}

type contextKey string

const principalContextKey contextKey = "principal"

func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, p)
}

// PrincipalFromContext returns the principal set by AuthGate, if any.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalContextKey).(*Principal)
	return p, ok && p != nil
}
