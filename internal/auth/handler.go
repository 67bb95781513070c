package auth

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/mehmetcc/tenantcore/internal/config"
	"github.com/mehmetcc/tenantcore/internal/httpx"
	"github.com/mehmetcc/tenantcore/internal/metrics"
	"github.com/mehmetcc/tenantcore/internal/password"
	"github.com/mehmetcc/tenantcore/internal/person"
	"go.uber.org/zap"
)

const requestTimeout = 5 * time.Second

type AuthenticationHandler interface {
	Register(w http.ResponseWriter, r *http.Request)
	Login(w http.ResponseWriter, r *http.Request)
	Refresh(w http.ResponseWriter, r *http.Request)
	ChangePassword(w http.ResponseWriter, r *http.Request)
	Me(w http.ResponseWriter, r *http.Request)
	Routes() chi.Router
}

type authenticationHandler struct {
	logger      *zap.Logger
	authService AuthService
	gate        *AuthGate
	cookie      *config.CookieConfig
	metrics     *metrics.Metrics
	validator   *validator.Validate
}

func NewAuthenticationHandler(
	authService AuthService,
	gate *AuthGate,
	cookie *config.CookieConfig,
	m *metrics.Metrics,
	l *zap.Logger,
) AuthenticationHandler {
	return &authenticationHandler{
		logger:      l,
		authService: authService,
		gate:        gate,
		cookie:      cookie,
		metrics:     m,
		validator:   httpx.NewValidator(),
	}
}

func (a *authenticationHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/register", a.Register)
	r.Post("/login", a.Login)
	r.Post("/refresh", a.Refresh)

	r.Group(func(r chi.Router) {
		r.Use(a.gate.Handler)
		r.Post("/change-password", a.ChangePassword)
		r.Get("/me", a.Me)
	})
	return r
}

func (a *authenticationHandler) Register(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	var req registerPersonRequest
	if !httpx.DecodeJSON(w, r, &req, a.validator, a.logger) {
		return
	}

	id, err := a.authService.Register(ctx, req.Email, req.Username, req.Password)
	if err != nil {
		a.metrics.AuthAttempt("register", false)
		switch {
		case errors.Is(err, person.ErrDuplicateEmail):
			a.logger.Debug("duplicate email", zap.String("email", req.Email))
			httpx.WriteError(w, http.StatusConflict, httpx.ErrorResponse[any]{
				Code:    httpx.ErrConflict,
				Message: "email already exists",
			})
		case errors.Is(err, person.ErrDuplicateUsername):
			a.logger.Debug("duplicate username", zap.String("username", req.Username))
			httpx.WriteError(w, http.StatusConflict, httpx.ErrorResponse[any]{
				Code:    httpx.ErrConflict,
				Message: "username already exists",
			})
		default:
			internalError(w, a.logger, "failed to register user", err)
		}
		return
	}

	a.metrics.AuthAttempt("register", true)
	a.logger.Info("person registered",
		append(httpx.ClientMeta(r, a.validator).Fields(), zap.String("public_id", string(id)))...,
	)
	httpx.WriteJSON(w, http.StatusCreated, registerPersonResponse{
		PublicID: string(id),
	})
}

func (a *authenticationHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	var req loginRequest
	if !httpx.DecodeJSON(w, r, &req, a.validator, a.logger) {
		return
	}

	meta := httpx.ClientMeta(r, a.validator)
	pair, err := a.authService.Login(ctx, req.Email, req.Password)
	if err != nil {
		a.metrics.AuthAttempt("login", false)
		if errors.Is(err, ErrInvalidCredentials) {
			a.logger.Info("login rejected", meta.Fields()...)
			httpx.WriteError(w, http.StatusUnauthorized, httpx.ErrorResponse[any]{
				Code:    httpx.ErrInvalidCredentials,
				Message: "invalid email or password",
			})
			return
		}
		internalError(w, a.logger, "login failed", err)
		return
	}

	a.metrics.AuthAttempt("login", true)
	a.logger.Info("login succeeded", meta.Fields()...)
	a.writeTokenPair(w, pair)
}

func (a *authenticationHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	// browsers post with no body and rely on the cookie set at login
	var req refreshRequest
	if r.ContentLength != 0 {
		if !httpx.DecodeJSON(w, r, &req, a.validator, a.logger) {
			return
		}
	}
	if req.RefreshToken == "" {
		if c, err := r.Cookie(a.cookie.CookieName); err == nil {
			req.RefreshToken = c.Value
		}
	}

	pair, err := a.authService.Refresh(ctx, req.RefreshToken)
	if err != nil {
		a.metrics.AuthAttempt("refresh", false)
		if errors.Is(err, ErrInvalidRefreshToken) {
			httpx.WriteError(w, http.StatusUnauthorized, httpx.ErrorResponse[any]{
				Code:    httpx.ErrInvalidRefreshToken,
				Message: "invalid or expired refresh token",
			})
			return
		}
		internalError(w, a.logger, "refresh failed", err)
		return
	}

	a.metrics.AuthAttempt("refresh", true)
	a.logger.Info("token refreshed", httpx.ClientMeta(r, a.validator).Fields()...)
	a.writeTokenPair(w, pair)
}

func (a *authenticationHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		unauthorized(w, "authentication required")
		return
	}

	var req changePasswordRequest
	if !httpx.DecodeJSON(w, r, &req, a.validator, a.logger) {
		return
	}

	err := a.authService.ChangePassword(ctx, principal.UserID, req.CurrentPassword, req.NewPassword)
	if err != nil {
		a.metrics.AuthAttempt("change_password", false)
		if errors.Is(err, ErrUnauthorized) {
			a.logger.Info("change password rejected",
				append(httpx.ClientMeta(r, a.validator).Fields(), zap.String("public_id", string(principal.UserID)))...,
			)
			unauthorized(w, "current password is incorrect")
			return
		}
		internalError(w, a.logger, "change password failed", err)
		return
	}

	a.metrics.AuthAttempt("change_password", true)
	httpx.WriteMessage(w, http.StatusOK, "password changed")
}

func (a *authenticationHandler) Me(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		unauthorized(w, "authentication required")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, principalResponse{
		UserID:    string(principal.UserID),
		Role:      principal.Role,
		CompanyID: principal.CompanyID,
		ExpiresAt: principal.ExpiresAt,
	})
}

func (a *authenticationHandler) writeTokenPair(w http.ResponseWriter, pair *TokenPair) {
	http.SetCookie(w, &http.Cookie{
		Name:     a.cookie.CookieName,
		Value:    pair.RefreshToken,
		Path:     "/auth",
		Domain:   a.cookie.CookieDomain,
		Expires:  pair.RefreshExpiresAt,
		Secure:   a.cookie.CookieSecure,
		HttpOnly: true,
		SameSite: a.cookie.CookieSamesite,
	})
	httpx.WriteJSON(w, http.StatusOK, tokenPairResponse{
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		ExpiresAt:        pair.AccessExpiresAt,
		RefreshExpiresAt: pair.RefreshExpiresAt,
		TokenType:        "Bearer",
	})
}

func internalError(w http.ResponseWriter, logger *zap.Logger, msg string, err error) {
	if errors.Is(err, password.ErrHashingFailure) {
		logger.Error("password hashing failed", zap.Error(err))
	} else {
		logger.Error(msg, zap.Error(err))
	}
	httpx.WriteError(w, http.StatusInternalServerError, httpx.ErrorResponse[any]{
		Code:    httpx.ErrInternal,
		Message: "internal server error",
	})
}

type registerPersonRequest struct {
	Email    string `json:"email"    validate:"required,email,max=254"`
	Username string `json:"username" validate:"required,min=8,max=32"`
	Password string `json:"password" validate:"required,min=8,max=128"`
}

type registerPersonResponse struct {
	PublicID string `json:"public_id"`
}

type loginRequest struct {
	// no email rule: a malformed address fails like any unknown one
	Email    string `json:"email"    validate:"required,max=254"`
	Password string `json:"password" validate:"required,max=128"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"omitempty,max=4096"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required,max=128"`
	NewPassword     string `json:"new_password"     validate:"required,min=8,max=128,nefield=CurrentPassword"`
}

type tokenPairResponse struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	ExpiresAt        time.Time `json:"expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
	TokenType        string    `json:"token_type"`
}

type principalResponse struct {
	UserID    string      `json:"user_id"`
	Role      person.Role `json:"role"`
	CompanyID string      `json:"company_id,omitempty"`
	ExpiresAt time.Time   `json:"expires_at"`
}
