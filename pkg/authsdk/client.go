package authsdk

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// Client calls the tally authentication service. Authenticated calls take
// the access token explicitly; the client holds no session state.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient returns a Client with a 10 second request timeout.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Register creates an account.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (*UserResponse, error) {
	var out UserResponse
	if err := c.doJSON(ctx, http.MethodPost, "/v1/auth/register", "", req, &out, http.StatusCreated); err != nil {
		return nil, err
	}
	return &out, nil
}

// Login checks email and password. When the account has MFA enabled the
// response carries a challenge instead of tokens.
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResponse, error) {
	var out LoginResponse
	req := LoginRequest{Email: email, Password: password}
	if err := c.doJSON(ctx, http.MethodPost, "/v1/auth/login", "", req, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyMFA answers a login challenge with a TOTP or backup code.
func (c *Client) VerifyMFA(ctx context.Context, challengeID, method, code string) (*LoginResponse, error) {
	var out LoginResponse
	req := MFAVerifyRequest{ChallengeID: challengeID, Method: method, Code: code}
	if err := c.doJSON(ctx, http.MethodPost, "/v1/auth/mfa/verify", "", req, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// Refresh exchanges a refresh token for a new pair. The presented token is
// revoked by the service.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	var out TokenResponse
	req := RefreshRequest{RefreshToken: refreshToken}
	if err := c.doJSON(ctx, http.MethodPost, "/v1/auth/refresh", "", req, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// Logout revokes the access token and, if non-empty, the refresh token.
func (c *Client) Logout(ctx context.Context, accessToken, refreshToken string) error {
	req := LogoutRequest{RefreshToken: refreshToken}
	return c.doJSON(ctx, http.MethodPost, "/v1/auth/logout", accessToken, req, nil, http.StatusNoContent)
}

// Me returns the account the access token belongs to.
func (c *Client) Me(ctx context.Context, accessToken string) (*UserResponse, error) {
	var out UserResponse
	if err := c.doJSON(ctx, http.MethodGet, "/v1/auth/me", accessToken, nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// ChangePassword replaces the account password.
func (c *Client) ChangePassword(ctx context.Context, accessToken, current, next string) error {
	req := ChangePasswordRequest{CurrentPassword: current, NewPassword: next}
	return c.doJSON(ctx, http.MethodPost, "/v1/auth/password", accessToken, req, nil, http.StatusNoContent)
}

// EnrollTOTP starts TOTP enrollment. MFA stays disabled until ConfirmTOTP.
func (c *Client) EnrollTOTP(ctx context.Context, accessToken string) (*TOTPEnrollResponse, error) {
	var out TOTPEnrollResponse
	if err := c.doJSON(ctx, http.MethodPost, "/v1/mfa/totp/enroll", accessToken, nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// ConfirmTOTP enables MFA with the first authenticator code and returns the
// initial backup codes.
func (c *Client) ConfirmTOTP(ctx context.Context, accessToken, code string) ([]string, error) {
	var out BackupCodesResponse
	req := TOTPCodeRequest{Code: code}
	if err := c.doJSON(ctx, http.MethodPost, "/v1/mfa/totp/confirm", accessToken, req, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return out.BackupCodes, nil
}

// RegenerateBackupCodes replaces every backup code.
func (c *Client) RegenerateBackupCodes(ctx context.Context, accessToken, code string) ([]string, error) {
	var out BackupCodesResponse
	req := TOTPCodeRequest{Code: code}
	if err := c.doJSON(ctx, http.MethodPost, "/v1/mfa/backup-codes", accessToken, req, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return out.BackupCodes, nil
}

// DisableTOTP turns MFA off and discards the secret and backup codes.
func (c *Client) DisableTOTP(ctx context.Context, accessToken, code string) error {
	req := TOTPCodeRequest{Code: code}
	return c.doJSON(ctx, http.MethodDelete, "/v1/mfa/totp", accessToken, req, nil, http.StatusNoContent)
}

// JWKS fetches the token verification keys.
func (c *Client) JWKS(ctx context.Context) (*JWKSResponse, error) {
	var out JWKSResponse
	if err := c.doJSON(ctx, http.MethodGet, "/.well-known/jwks.json", "", nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetLiveness checks if the service is alive.
func (c *Client) GetLiveness(ctx context.Context) (*HealthResponse, error) {
	var out HealthResponse
	if err := c.doJSON(ctx, http.MethodGet, "/livez", "", nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetReadiness checks if the service and its dependencies are ready.
func (c *Client) GetReadiness(ctx context.Context) (*HealthResponse, error) {
	var out HealthResponse
	if err := c.doJSON(ctx, http.MethodGet, "/readyz", "", nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}
