package authsdk

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/aussiebroadwan/tally/pkg/httpx"
)

// Error codes written by the service.
const (
	ErrorCodeInvalidRequest      = "invalid_request"
	ErrorCodeInvalidCredentials  = "invalid_credentials"
	ErrorCodeInvalidToken        = "invalid_token"
	ErrorCodeMFAChallengeExpired = "mfa_challenge_expired"
	ErrorCodeMFAMaxAttempts      = "mfa_max_attempts"
	ErrorCodeMFAMethodNotAllowed = "mfa_method_not_allowed"
	ErrorCodeMFAAlreadyEnabled   = "mfa_already_enabled"
	ErrorCodeMFANotEnabled       = "mfa_not_enabled"
	ErrorCodeMFANotEnrolled      = "mfa_not_enrolled"
	ErrorCodeInvalidCode         = "invalid_code"
	ErrorCodeEmailTaken          = "email_taken"
	ErrorCodeWeakPassword        = "weak_password"
	ErrorCodePasswordReused      = "password_reused"
	ErrorCodeRateLimitExceeded   = "rate_limit_exceeded"
	ErrorCodeServerError         = "server_error"
)

// APIError is an error response from the service. Handlers write the
// predefined values below; the client decodes every non-2xx response into
// one.
type APIError struct {
	StatusCode  int               `json:"-"`
	Code        string            `json:"error"`
	Description string            `json:"error_description,omitempty"`
	Fields      map[string]string `json:"fields,omitempty"`
}

func (e *APIError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("%s (HTTP %d)", e.Code, e.StatusCode)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// Is matches another *APIError by code, so errors.Is(err, ErrInvalidCredentials)
// holds for any response carrying that code.
func (e *APIError) Is(target error) bool {
	t, ok := target.(*APIError)
	return ok && t.Code == e.Code
}

// WriteError writes e as the response.
func (e *APIError) WriteError(w http.ResponseWriter) {
	httpx.WriteJSON(w, e.StatusCode, httpx.ErrorResponse{
		Error:            e.Code,
		ErrorDescription: e.Description,
		Fields:           e.Fields,
	})
}

var (
	ErrInvalidRequest = &APIError{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeInvalidRequest,
		Description: "the request is malformed or missing required parameters",
	}
	ErrInvalidCredentials = &APIError{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeInvalidCredentials,
		Description: "invalid credentials",
	}
	ErrInvalidToken = &APIError{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeInvalidToken,
		Description: "token is invalid, expired or revoked",
	}
	ErrMFAChallengeExpired = &APIError{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeMFAChallengeExpired,
		Description: "MFA challenge expired or unknown; log in again",
	}
	ErrMFAMaxAttempts = &APIError{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeMFAMaxAttempts,
		Description: "too many failed MFA attempts; log in again",
	}
	ErrMFAMethodNotAllowed = &APIError{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeMFAMethodNotAllowed,
		Description: "MFA method not offered for this challenge",
	}
	ErrMFAAlreadyEnabled = &APIError{
		StatusCode:  http.StatusConflict,
		Code:        ErrorCodeMFAAlreadyEnabled,
		Description: "MFA is already enabled",
	}
	ErrMFANotEnabled = &APIError{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeMFANotEnabled,
		Description: "MFA is not enabled",
	}
	ErrMFANotEnrolled = &APIError{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeMFANotEnrolled,
		Description: "start TOTP enrollment first",
	}
	ErrInvalidCode = &APIError{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeInvalidCode,
		Description: "invalid TOTP code",
	}
	ErrEmailTaken = &APIError{
		StatusCode:  http.StatusConflict,
		Code:        ErrorCodeEmailTaken,
		Description: "email already registered",
	}
	ErrWeakPassword = &APIError{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeWeakPassword,
		Description: "password must be between 8 and 128 characters",
	}
	ErrPasswordReused = &APIError{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodePasswordReused,
		Description: "new password must differ from the current one",
	}
	ErrServerError = &APIError{
		StatusCode:  http.StatusInternalServerError,
		Code:        ErrorCodeServerError,
		Description: "internal error",
	}
)

// parseErrorResponse turns a non-2xx response body into an *APIError. A
// body that is not an error object still yields one with the status code.
func parseErrorResponse(resp *http.Response, body []byte) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	if err := json.Unmarshal(body, apiErr); err != nil || apiErr.Code == "" {
		apiErr.Code = http.StatusText(resp.StatusCode)
		apiErr.Description = string(body)
	}
	return apiErr
}
