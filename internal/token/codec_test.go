package token

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/mehmetcc/tenantcore/internal/config"
	"github.com/mehmetcc/tenantcore/internal/person"
	"github.com/mehmetcc/tenantcore/pkg/id"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	secretOne = "first-secret-0123456789abcdefghijkl"
	secretTwo = "second-secret-0123456789abcdefghijk"
)

func jwtConfig(secret string) *config.JWTConfig {
	return &config.JWTConfig{
		Secret:     secret,
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 7 * 24 * time.Hour,
		JWTAlg:     "HS256",
	}
}

func newCodec(t *testing.T, secret string, class Class, opts ...Option) Codec {
	t.Helper()
	c, err := NewCodec(jwtConfig(secret), class, opts...)
	require.NoError(t, err)
	return c
}

func claimsAt(issuedAt time.Time, ttl time.Duration) *Claims {
	return &Claims{
		Role: person.RoleStaff,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   string(id.NewPublicID()),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(ttl)),
			ID:        string(id.NewTokenID()),
		},
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	c := newCodec(t, secretOne, ClassAccess)
	in := claimsAt(time.Now(), time.Hour)
	in.CompanyID = "7d4c0a1e-5b7e-4f43-9a53-0f2f6f1b9e11"

	signed, err := c.Encode(in)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(signed, "."))

	out, err := c.Decode(signed)
	require.NoError(t, err)
	assert.Equal(t, in.Subject, out.Subject)
	assert.Equal(t, in.Role, out.Role)
	assert.Equal(t, in.CompanyID, out.CompanyID)
	assert.Equal(t, in.ID, out.ID)
	assert.True(t, in.IssuedAt.Equal(out.IssuedAt.Time))
	assert.True(t, in.ExpiresAt.Equal(out.ExpiresAt.Time))
}

func TestIssueStampsLifetime(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	access := newCodec(t, secretOne, ClassAccess, WithClock(clock))
	refresh := newCodec(t, secretOne, ClassRefresh, WithClock(clock))
	subject := id.NewPublicID()

	_, ac, err := access.Issue(subject, person.RoleOwner, "")
	require.NoError(t, err)
	_, rc, err := refresh.Issue(subject, person.RoleOwner, "")
	require.NoError(t, err)

	assert.Equal(t, 15*time.Minute, ac.ExpiresAt.Sub(ac.IssuedAt.Time))
	assert.Equal(t, 7*24*time.Hour, rc.ExpiresAt.Sub(rc.IssuedAt.Time))
	assert.Equal(t, subject, ac.PublicID())
	assert.NotEqual(t, ac.TokenID(), rc.TokenID())
}

func TestWireFormatKeys(t *testing.T) {
	c := newCodec(t, secretOne, ClassAccess)
	signed, _, err := c.Issue(id.NewPublicID(), person.RoleAdmin, "")
	require.NoError(t, err)

	parts := strings.Split(signed, ".")
	require.Len(t, parts, 3)
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(payload, &raw))
	for _, k := range []string{"sub", "role", "iat", "exp", "jti"} {
		assert.Contains(t, raw, k)
	}
	assert.NotContains(t, raw, "company_id")
	assert.NotContains(t, string(payload), secretOne)
}

func TestDecodeExpired(t *testing.T) {
	c := newCodec(t, secretOne, ClassAccess)

	signed, err := c.Encode(claimsAt(time.Now().Add(-2*time.Hour), time.Hour))
	require.NoError(t, err)

	_, err = c.Decode(signed)
	assert.ErrorIs(t, err, ErrTokenExpired)
	assert.NotErrorIs(t, err, ErrInvalidToken)
}

func TestDecodeExpiresExactlyAtExp(t *testing.T) {
	issued := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := issued
	c := newCodec(t, secretOne, ClassAccess, WithClock(func() time.Time { return now }))

	signed, _, err := c.Issue(id.NewPublicID(), person.RoleOwner, "")
	require.NoError(t, err)

	now = issued.Add(15*time.Minute - time.Second)
	_, err = c.Decode(signed)
	require.NoError(t, err)

	now = issued.Add(15 * time.Minute)
	_, err = c.Decode(signed)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestDecodeWrongSecret(t *testing.T) {
	signed, _, err := newCodec(t, secretOne, ClassAccess).Issue(id.NewPublicID(), person.RoleOwner, "")
	require.NoError(t, err)

	_, err = newCodec(t, secretTwo, ClassAccess).Decode(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestDecodeExpiredWithWrongSecretIsInvalid(t *testing.T) {
	signed, err := newCodec(t, secretOne, ClassAccess).Encode(claimsAt(time.Now().Add(-2*time.Hour), time.Hour))
	require.NoError(t, err)

	_, err = newCodec(t, secretTwo, ClassAccess).Decode(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestDecodeExpiredButIncompleteIsInvalid(t *testing.T) {
	c := newCodec(t, secretOne, ClassAccess)
	key, err := deriveKey(secretOne, ClassAccess, 32)
	require.NoError(t, err)
	issued := time.Now().Add(-2 * time.Hour)

	tests := map[string]jwt.MapClaims{
		"missing jti": {
			"sub": "x", "role": "owner", "iat": issued.Unix(), "exp": issued.Add(time.Hour).Unix(),
		},
		"missing role": {
			"sub": "x", "jti": "j", "iat": issued.Unix(), "exp": issued.Add(time.Hour).Unix(),
		},
		"unknown role": {
			"sub": "x", "role": "root", "jti": "j", "iat": issued.Unix(), "exp": issued.Add(time.Hour).Unix(),
		},
		"missing sub": {
			"role": "owner", "jti": "j", "iat": issued.Unix(), "exp": issued.Add(time.Hour).Unix(),
		},
	}

	for name, claims := range tests {
		t.Run(name, func(t *testing.T) {
			signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
			require.NoError(t, err)

			_, err = c.Decode(signed)
			assert.ErrorIs(t, err, ErrInvalidToken)
			assert.NotErrorIs(t, err, ErrTokenExpired)
		})
	}
}

func TestDecodeExpiredWithForeignIssuerIsInvalid(t *testing.T) {
	claims := claimsAt(time.Now().Add(-2*time.Hour), time.Hour)
	claims.Issuer = "someone-else"
	signed, err := newCodec(t, secretOne, ClassAccess).Encode(claims)
	require.NoError(t, err)

	cfg := jwtConfig(secretOne)
	cfg.JWTIssuer = "tenantcore"
	c, err := NewCodec(cfg, ClassAccess)
	require.NoError(t, err)

	_, err = c.Decode(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.NotErrorIs(t, err, ErrTokenExpired)
}

func TestTokenClassesAreNotInterchangeable(t *testing.T) {
	access := newCodec(t, secretOne, ClassAccess)
	refresh := newCodec(t, secretOne, ClassRefresh)
	subject := id.NewPublicID()

	accessToken, _, err := access.Issue(subject, person.RoleStaff, "")
	require.NoError(t, err)
	refreshToken, _, err := refresh.Issue(subject, person.RoleStaff, "")
	require.NoError(t, err)

	_, err = refresh.Decode(accessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = access.Decode(refreshToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestDecodeRejectsMalformedTokens(t *testing.T) {
	c := newCodec(t, secretOne, ClassAccess)
	key, err := deriveKey(secretOne, ClassAccess, 32)
	require.NoError(t, err)

	sign := func(claims jwt.Claims, method jwt.SigningMethod) string {
		s, err := jwt.NewWithClaims(method, claims).SignedString(key)
		require.NoError(t, err)
		return s
	}
	now := time.Now()

	tests := map[string]string{
		"empty":        "",
		"garbage":      "not.a.token",
		"two segments": "eyJhbGciOiJIUzI1NiJ9.eyJzdWIiOiJ4In0",
		"alg none": func() string {
			s, err := jwt.NewWithClaims(jwt.SigningMethodNone, claimsAt(now, time.Hour)).SignedString(jwt.UnsafeAllowNoneSignatureType)
			require.NoError(t, err)
			return s
		}(),
		"other hmac alg": sign(claimsAt(now, time.Hour), jwt.SigningMethodHS512),
		"missing exp": sign(jwt.MapClaims{
			"sub": "x", "role": "owner", "jti": "j", "iat": now.Unix(),
		}, jwt.SigningMethodHS256),
		"missing sub": sign(jwt.MapClaims{
			"role": "owner", "jti": "j", "iat": now.Unix(), "exp": now.Add(time.Hour).Unix(),
		}, jwt.SigningMethodHS256),
		"missing jti": sign(jwt.MapClaims{
			"sub": "x", "role": "owner", "iat": now.Unix(), "exp": now.Add(time.Hour).Unix(),
		}, jwt.SigningMethodHS256),
		"unknown role": sign(jwt.MapClaims{
			"sub": "x", "role": "root", "jti": "j", "iat": now.Unix(), "exp": now.Add(time.Hour).Unix(),
		}, jwt.SigningMethodHS256),
		"wrong type for exp": sign(jwt.MapClaims{
			"sub": "x", "role": "owner", "jti": "j", "iat": now.Unix(), "exp": "tomorrow",
		}, jwt.SigningMethodHS256),
		"issued in the future": sign(claimsAt(now.Add(time.Hour), time.Hour), jwt.SigningMethodHS256),
	}

	for name, tok := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := c.Decode(tok)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestEncodeRejectsIncompleteClaims(t *testing.T) {
	c := newCodec(t, secretOne, ClassAccess)

	_, err := c.Encode(nil)
	assert.ErrorIs(t, err, ErrInvalidClaims)

	bad := claimsAt(time.Now(), time.Hour)
	bad.Role = "superuser"
	_, err = c.Encode(bad)
	assert.ErrorIs(t, err, ErrInvalidClaims)

	inverted := claimsAt(time.Now(), -time.Hour)
	_, err = c.Encode(inverted)
	assert.ErrorIs(t, err, ErrInvalidClaims)
}

func TestIssuerAudienceAndKid(t *testing.T) {
	cfg := jwtConfig(secretOne)
	cfg.JWTIssuer = "tenantcore"
	cfg.JWTAudience = "tenantcore-api"
	cfg.JWTKID = "2026-01"
	cfg.JWTAlg = "HS512"

	c, err := NewCodec(cfg, ClassAccess)
	require.NoError(t, err)
	signed, _, err := c.Issue(id.NewPublicID(), person.RoleOwner, "")
	require.NoError(t, err)

	out, err := c.Decode(signed)
	require.NoError(t, err)
	assert.Equal(t, "tenantcore", out.Issuer)
	assert.Equal(t, jwt.ClaimStrings{"tenantcore-api"}, out.Audience)

	parsed, _, err := jwt.NewParser().ParseUnverified(signed, &Claims{})
	require.NoError(t, err)
	assert.Equal(t, "2026-01", parsed.Header["kid"])
	assert.Equal(t, "HS512", parsed.Header["alg"])

	other := jwtConfig(secretOne)
	other.JWTAlg = "HS512"
	other.JWTIssuer = "someone-else"
	foreign, err := NewCodec(other, ClassAccess)
	require.NoError(t, err)
	_, err = foreign.Decode(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestNewCodecErrors(t *testing.T) {
	_, err := NewCodec(jwtConfig(""), ClassAccess)
	assert.ErrorIs(t, err, config.ErrMissingSecret)

	cfg := jwtConfig(secretOne)
	cfg.JWTAlg = "RS256"
	_, err = NewCodec(cfg, ClassAccess)
	assert.Error(t, err)

	_, err = NewCodec(jwtConfig(secretOne), Class("session"))
	assert.Error(t, err)
}
