package authsdk

import "github.com/aussiebroadwan/tally/pkg/jwtx"

// MFA methods accepted by VerifyMFA.
const (
	MFAMethodTOTP       = "totp"
	MFAMethodBackupCode = "backup_code"
)

// Login states reported in LoginResponse.State.
const (
	LoginStateMFAPending        = "mfa_pending"
	LoginStateBackupCodePending = "backup_code_pending"
	LoginStateAuthenticated     = "authenticated"
)

// ============================================================================
// Account
// ============================================================================

// RegisterRequest is the body of POST /v1/auth/register.
type RegisterRequest struct {
	Email          string `json:"email" validate:"required,email,max=254"`
	Password       string `json:"password" validate:"required"`
	OrganizationID string `json:"organization_id,omitempty" validate:"omitempty,max=64"`
}

// UserResponse describes a credential without any secret material.
type UserResponse struct {
	UserID         string   `json:"user_id"`
	Email          string   `json:"email"`
	OrganizationID string   `json:"organization_id,omitempty"`
	Roles          []string `json:"roles"`
	MFAEnabled     bool     `json:"mfa_enabled"`

	// BackupCodesRemaining is only reported once MFA is enabled.
	BackupCodesRemaining *int `json:"backup_codes_remaining,omitempty"`

	// CreatedAt is Unix epoch milliseconds.
	CreatedAt int64 `json:"created_at"`
}

// ChangePasswordRequest is the body of POST /v1/auth/password.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required"`
}

// ============================================================================
// Login and tokens
// ============================================================================

// LoginRequest is the body of POST /v1/auth/login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,max=254"`
	Password string `json:"password" validate:"required,max=1024"`
}

// MFAVerifyRequest is the body of POST /v1/auth/mfa/verify.
type MFAVerifyRequest struct {
	ChallengeID string `json:"challenge_id" validate:"required"`
	Method      string `json:"method" validate:"required,oneof=totp backup_code"`
	Code        string `json:"code" validate:"required,max=32"`
}

// LoginResponse is returned by login and MFA verification. Tokens is set
// once State is "authenticated"; ChallengeID and Methods while a second
// factor is pending.
type LoginResponse struct {
	State       string         `json:"state"`
	UserID      string         `json:"user_id,omitempty"`
	ChallengeID string         `json:"challenge_id,omitempty"`
	Methods     []string       `json:"methods,omitempty"`
	Tokens      *TokenResponse `json:"tokens,omitempty"`
}

// TokenResponse is an access and refresh token pair. Expiries are Unix
// epoch milliseconds.
type TokenResponse struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	TokenType        string `json:"token_type"`
	AccessExpiresAt  int64  `json:"access_expires_at"`
	RefreshExpiresAt int64  `json:"refresh_expires_at"`
	SessionID        string `json:"session_id"`
}

// RefreshRequest is the body of POST /v1/auth/refresh.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// LogoutRequest is the optional body of POST /v1/auth/logout. The access
// token travels in the Authorization header.
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token,omitempty"`
}

// ============================================================================
// MFA management
// ============================================================================

// TOTPEnrollResponse is returned by POST /v1/mfa/totp/enroll.
type TOTPEnrollResponse struct {
	Secret          string `json:"secret"`
	ProvisioningURI string `json:"provisioning_uri"`
	Issuer          string `json:"issuer"`
	Account         string `json:"account"`

	// QRCode is a base64 PNG of ProvisioningURI.
	QRCode string `json:"qr_code,omitempty"`
}

// TOTPCodeRequest carries a current authenticator code. It is the body of
// the confirm, backup-code regeneration and disable endpoints.
type TOTPCodeRequest struct {
	Code string `json:"code" validate:"required,numeric,min=6,max=8"`
}

// BackupCodesResponse lists newly generated backup codes. They are shown
// once and cannot be retrieved again.
type BackupCodesResponse struct {
	BackupCodes []string `json:"backup_codes"`
}

// ============================================================================
// Discovery and health
// ============================================================================

// JWKSResponse is the JSON Web Key Set at /.well-known/jwks.json.
type JWKSResponse = jwtx.JWKS

// HealthResponse is returned by /livez and /readyz.
type HealthResponse struct {
	Status  string        `json:"status"`
	Uptime  string        `json:"uptime"`
	Version string        `json:"version"`
	Checks  *HealthChecks `json:"checks,omitempty"`
}

// HealthChecks reports each dependency checked by /readyz.
type HealthChecks struct {
	Database string `json:"database"`
	Cache    string `json:"cache"`
	Signer   string `json:"signer"`
}
