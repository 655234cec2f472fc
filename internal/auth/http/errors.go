package http

import (
	"errors"
	"net/http"

	"github.com/aussiebroadwan/tally/internal/auth/service"
	"github.com/aussiebroadwan/tally/internal/auth/store"
	"github.com/aussiebroadwan/tally/pkg/autherr"
	"github.com/aussiebroadwan/tally/pkg/authsdk"
	"github.com/aussiebroadwan/tally/pkg/slogx"
)

// writeServiceError maps a service error onto its response. Anything
// unclassified is logged and reported as a bare server error so internals
// never reach the client.
func writeServiceError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		authsdk.ErrInvalidCredentials.WriteError(w)
	case errors.Is(err, autherr.ErrMFAMaxAttempts):
		authsdk.ErrMFAMaxAttempts.WriteError(w)
	case errors.Is(err, service.ErrMethodNotAllowed):
		authsdk.ErrMFAMethodNotAllowed.WriteError(w)
	case errors.Is(err, service.ErrInvalidTOTPCode):
		authsdk.ErrInvalidCode.WriteError(w)
	case errors.Is(err, service.ErrMFAAlreadyEnabled):
		authsdk.ErrMFAAlreadyEnabled.WriteError(w)
	case errors.Is(err, service.ErrMFANotEnabled):
		authsdk.ErrMFANotEnabled.WriteError(w)
	case errors.Is(err, service.ErrMFANotEnrolled):
		authsdk.ErrMFANotEnrolled.WriteError(w)
	case errors.Is(err, service.ErrEmailTaken):
		authsdk.ErrEmailTaken.WriteError(w)
	case errors.Is(err, service.ErrWeakPassword):
		authsdk.ErrWeakPassword.WriteError(w)
	case errors.Is(err, service.ErrPasswordReused):
		authsdk.ErrPasswordReused.WriteError(w)
	case errors.Is(err, service.ErrInvalidEmail):
		authsdk.ErrInvalidRequest.WriteError(w)
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, autherr.ErrInvalidToken),
		errors.Is(err, autherr.ErrValidation):
		authsdk.ErrInvalidToken.WriteError(w)
	default:
		slogx.FromContext(r.Context()).Error(msg, "err", err)
		authsdk.ErrServerError.WriteError(w)
	}
}

// writeTokenError is writeServiceError for endpoints that take a token in
// the body, where an expired token is just another invalid one.
func writeTokenError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	if errors.Is(err, autherr.ErrExpired) {
		authsdk.ErrInvalidToken.WriteError(w)
		return
	}
	writeServiceError(w, r, msg, err)
}
