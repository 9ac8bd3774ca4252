package domain

import "errors"

var (
	ErrAccountNotFound     = errors.New("account not found")
	ErrAccountExists       = errors.New("account already exists")
	ErrSecretNotFound      = errors.New("secret not found")
	ErrIdentityResolution  = errors.New("task service profile init failed")
	ErrCorruptState        = errors.New("state storage is corrupt")
	ErrNoRefreshToken      = errors.New("no refresh token stored for account")
	ErrSessionNotAvailable = errors.New("platform session not available")
)
