package auth

import "errors"

var (
	// ErrInvalidCredentials covers unknown email, wrong password and
	// disabled accounts alike.
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrUnauthorized        = errors.New("unauthorized")
)
