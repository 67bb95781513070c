package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/mehmetcc/tenantcore/internal/password"
	"github.com/mehmetcc/tenantcore/internal/person"
	"github.com/mehmetcc/tenantcore/internal/token"
	"github.com/mehmetcc/tenantcore/pkg/id"
	"go.uber.org/zap"
)

type AuthService interface {
	Register(ctx context.Context, email, username, password string) (id.PublicID, error)
	Login(ctx context.Context, email, password string) (*TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*TokenPair, error)
	ChangePassword(ctx context.Context, userID id.PublicID, currentPassword, newPassword string) error
}

type authService struct {
	personRepo person.PersonRepo
	hasher     password.Hasher
	access     token.Codec
	refresh    token.Codec
	// dummyHash is verified against when the email is unknown so that a
	// miss costs the same as a wrong password.
	dummyHash string
	logger    *zap.Logger
}

func NewAuthenticationService(
	personRepo person.PersonRepo,
	hasher password.Hasher,
	access token.Codec,
	refresh token.Codec,
	logger *zap.Logger,
) (AuthService, error) {
	if access.Class() != token.ClassAccess || refresh.Class() != token.ClassRefresh {
		return nil, fmt.Errorf("auth service needs an access and a refresh codec, got %s and %s", access.Class(), refresh.Class())
	}

	seed := make([]byte, 32)
	if _, err := rand.Read(seed); err != nil {
		return nil, fmt.Errorf("%w: %v", password.ErrHashingFailure, err)
	}
	dummy, err := hasher.Hash(base64.RawStdEncoding.EncodeToString(seed))
	if err != nil {
		return nil, err
	}

	return &authService{
		personRepo: personRepo,
		hasher:     hasher,
		access:     access,
		refresh:    refresh,
		dummyHash:  dummy,
		logger:     logger,
	}, nil
}

func (a *authService) Register(ctx context.Context, email, username, plaintext string) (id.PublicID, error) {
	hashed, err := a.hasher.Hash(plaintext)
	if err != nil {
		a.logger.Error("failed to hash password", zap.Error(err))
		return "", err
	}

	publicID, err := a.personRepo.Create(ctx, &person.PersonDTO{
		Email:    email,
		Username: username,
		Password: hashed,
		Role:     person.RoleOwner,
	})
	if err != nil {
		return "", err
	}

	return publicID, nil
}

func (a *authService) Login(ctx context.Context, email, plaintext string) (*TokenPair, error) {
	rec, err := a.personRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		a.hasher.Verify(plaintext, a.dummyHash)
		return nil, ErrInvalidCredentials
	}
	if !a.hasher.Verify(plaintext, rec.Password) || !rec.CanLogin() {
		return nil, ErrInvalidCredentials
	}

	if a.hasher.NeedsRehash(rec.Password) {
		a.rehash(ctx, rec.PublicID, plaintext)
	}

	return a.issuePair(rec.PublicID, rec.Role, rec.CompanyID)
}

// rehash upgrades a legacy or outdated hash after a successful login. It
// never fails the login; the old hash keeps working until the next attempt.
func (a *authService) rehash(ctx context.Context, publicID id.PublicID, plaintext string) {
	hashed, err := a.hasher.Hash(plaintext)
	if err != nil {
		a.logger.Error("failed to rehash password", zap.String("public_id", string(publicID)), zap.Error(err))
		return
	}
	if err := a.personRepo.UpdatePassword(ctx, publicID, hashed); err != nil {
		a.logger.Warn("failed to persist upgraded password hash", zap.String("public_id", string(publicID)), zap.Error(err))
		return
	}
	a.logger.Info("password hash upgraded", zap.String("public_id", string(publicID)))
}

// Refresh trusts the subject and role inside the refresh token. The
// presented token is not revoked and stays usable until it expires.
func (a *authService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if refreshToken == "" {
		return nil, ErrInvalidRefreshToken
	}
	claims, err := a.refresh.Decode(refreshToken)
	if err != nil {
		a.logger.Debug("refresh token rejected", zap.Error(err))
		return nil, ErrInvalidRefreshToken
	}
	return a.issuePair(claims.PublicID(), claims.Role, claims.CompanyID)
}

func (a *authService) ChangePassword(ctx context.Context, userID id.PublicID, currentPassword, newPassword string) error {
	rec, err := a.personRepo.FindByPublicID(ctx, userID)
	if err != nil {
		return err
	}
	if rec == nil || !rec.CanLogin() {
		return ErrUnauthorized
	}
	if !a.hasher.Verify(currentPassword, rec.Password) {
		return ErrUnauthorized
	}

	hashed, err := a.hasher.Hash(newPassword)
	if err != nil {
		a.logger.Error("failed to hash password", zap.Error(err))
		return err
	}
	if err := a.personRepo.UpdatePassword(ctx, userID, hashed); err != nil {
		if errors.Is(err, person.ErrNotFound) {
			return ErrUnauthorized
		}
		return err
	}

	a.logger.Info("password changed", zap.String("public_id", string(userID)))
	return nil
}

func (a *authService) issuePair(subject id.PublicID, role person.Role, companyID string) (*TokenPair, error) {
	accessToken, accessClaims, err := a.access.Issue(subject, role, companyID)
	if err != nil {
		a.logger.Error("failed to sign access token", zap.Error(err))
		return nil, err
	}
	refreshToken, refreshClaims, err := a.refresh.Issue(subject, role, companyID)
	if err != nil {
		a.logger.Error("failed to sign refresh token", zap.Error(err))
		return nil, err
	}

	return &TokenPair{
		AccessToken:      accessToken,
		AccessExpiresAt:  accessClaims.Expiry(),
		RefreshToken:     refreshToken,
		RefreshExpiresAt: refreshClaims.Expiry(),
	}, nil
}
