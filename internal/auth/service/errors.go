package service

import "errors"

var (
	// ErrInvalidCredentials covers unknown user, wrong password, locked
	// account and wrong MFA code alike. Callers must not learn which.
	ErrInvalidCredentials = errors.New("invalid_credentials")

	ErrEmailTaken        = errors.New("email already registered")
	ErrInvalidEmail      = errors.New("email required")
	ErrWeakPassword      = errors.New("password does not meet policy")
	ErrPasswordReused    = errors.New("new password must differ from the current one")
	ErrInvalidTOTPCode   = errors.New("invalid TOTP code")
	ErrMFANotEnabled     = errors.New("MFA not enabled for this user")
	ErrMFANotEnrolled    = errors.New("MFA enrollment not started")
	ErrMFAAlreadyEnabled = errors.New("MFA already enabled for this user")
	ErrMethodNotAllowed  = errors.New("MFA method not allowed for this challenge")
)
