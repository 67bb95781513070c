package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/mehmetcc/tenantcore/internal/httpx"
	"github.com/mehmetcc/tenantcore/internal/metrics"
	"github.com/mehmetcc/tenantcore/internal/person"
	"github.com/mehmetcc/tenantcore/internal/token"
	"go.uber.org/zap"
)

// AuthGate authenticates requests with an access token in the
// Authorization header. It never touches the person store.
type AuthGate struct {
	codec   token.Codec
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func NewAuthGate(codec token.Codec, m *metrics.Metrics, logger *zap.Logger) (*AuthGate, error) {
	if codec.Class() != token.ClassAccess {
		return nil, fmt.Errorf("auth gate needs an access codec, got %s", codec.Class())
	}
	return &AuthGate{
		codec:   codec,
		metrics: m,
		logger:  logger,
	}, nil
}

// Handler rejects the request with 401 before next runs unless a valid,
// unexpired access token is presented.
func (g *AuthGate) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearerToken(r.Header.Get("Authorization"))
		if !ok {
			g.metrics.GateRejected("missing_header")
			unauthorized(w, "missing or invalid authorization header")
			return
		}

		claims, err := g.codec.Decode(raw)
		if err != nil {
			reason := "invalid"
			if errors.Is(err, token.ErrTokenExpired) {
				reason = "expired"
			}
			g.metrics.GateRejected(reason)
			g.logger.Debug("access token rejected",
				zap.String("reason", reason),
				zap.String("path", r.URL.Path),
				zap.Error(err),
			)
			// expired and forged tokens look the same to the caller
			unauthorized(w, "invalid or expired token")
			return
		}

		principal := &Principal{
			UserID:    claims.PublicID(),
			Role:      claims.Role,
			CompanyID: claims.CompanyID,
			TokenID:   claims.TokenID(),
			ExpiresAt: claims.Expiry(),
		}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
	})
}

// RequireRole must run behind AuthGate. A missing principal is a 401, a
// principal with the wrong role a 403.
func RequireRole(roles ...person.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFromContext(r.Context())
			if !ok {
				unauthorized(w, "authentication required")
				return
			}
			if !p.HasRole(roles...) {
				httpx.WriteError(w, http.StatusForbidden, httpx.ErrorResponse[any]{
					Code:    httpx.ErrForbidden,
					Message: "insufficient role",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(header string) (string, bool) {
	scheme, raw, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.ContainsAny(raw, " \t") {
		return "", false
	}
	return raw, true
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="tenantcore"`)
	httpx.WriteError(w, http.StatusUnauthorized, httpx.ErrorResponse[any]{
		Code:    httpx.ErrUnauthorized,
		Message: message,
	})
}
