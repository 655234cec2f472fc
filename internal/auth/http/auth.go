package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/aussiebroadwan/tally/internal/auth/domain"
	"github.com/aussiebroadwan/tally/internal/auth/service"
	"github.com/aussiebroadwan/tally/pkg/autherr"
	"github.com/aussiebroadwan/tally/pkg/authsdk"
	"github.com/aussiebroadwan/tally/pkg/httpx"
	"github.com/aussiebroadwan/tally/pkg/jwtx"
)

// AuthHandler serves registration, the login flow and the token lifecycle.
type AuthHandler struct {
	Logins   *service.LoginService
	Accounts *service.AccountService
	MFA      *service.MFAService
}

// HandleRegister handles POST /v1/auth/register.
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req authsdk.RegisterRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.WriteRequestError(w, err)
		return
	}

	c, err := h.Accounts.Register(r.Context(), service.RegisterInput{
		Email:          req.Email,
		Password:       req.Password,
		OrganizationID: req.OrganizationID,
	})
	if err != nil {
		writeServiceError(w, r, "registration failed", err)
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, userResponse(c, nil))
}

// HandleLogin handles POST /v1/auth/login. Every failure, whatever its
// cause, is reported as invalid_credentials.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req authsdk.LoginRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.WriteRequestError(w, err)
		return
	}

	res, err := h.Logins.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeServiceError(w, r, "login failed", err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, loginResponse(res))
}

// HandleVerifyMFA handles POST /v1/auth/mfa/verify.
func (h *AuthHandler) HandleVerifyMFA(w http.ResponseWriter, r *http.Request) {
	var req authsdk.MFAVerifyRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.WriteRequestError(w, err)
		return
	}

	res, err := h.Logins.VerifyMFA(r.Context(), req.ChallengeID, domain.MFAMethod(req.Method), req.Code)
	if err != nil {
		if errors.Is(err, autherr.ErrExpired) {
			authsdk.ErrMFAChallengeExpired.WriteError(w)
			return
		}
		writeServiceError(w, r, "MFA verification failed", err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, loginResponse(res))
}

// HandleRefresh handles POST /v1/auth/refresh.
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var req authsdk.RefreshRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.WriteRequestError(w, err)
		return
	}

	pair, err := h.Logins.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		writeTokenError(w, r, "refresh failed", err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, tokenResponse(pair))
}

// HandleLogout handles POST /v1/auth/logout. The access token comes from the
// Authorization header and may already be expired; the refresh token in the
// body is optional.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	access, ok := httpx.BearerToken(r)
	if !ok {
		authsdk.ErrInvalidToken.WriteError(w)
		return
	}

	var req authsdk.LogoutRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeAndValidate(r, &req); err != nil {
			httpx.WriteRequestError(w, err)
			return
		}
	}

	if err := h.Logins.Logout(r.Context(), access, req.RefreshToken); err != nil {
		writeTokenError(w, r, "logout failed", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleMe handles GET /v1/auth/me.
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := httpx.UserIDFromContext(ctx)

	c, err := h.Accounts.GetCredential(ctx, userID)
	if err != nil {
		writeServiceError(w, r, "failed to load credential", err)
		return
	}

	var remaining *int
	if c.MFAEnabled() {
		n, err := h.MFA.BackupCodesRemaining(ctx, userID)
		if err != nil {
			writeServiceError(w, r, "failed to count backup codes", err)
			return
		}
		remaining = &n
	}

	httpx.WriteJSON(w, http.StatusOK, userResponse(c, remaining))
}

// HandleChangePassword handles POST /v1/auth/password.
func (h *AuthHandler) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req authsdk.ChangePasswordRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.WriteRequestError(w, err)
		return
	}

	ctx := r.Context()
	if err := h.Accounts.ChangePassword(ctx, httpx.UserIDFromContext(ctx), req.CurrentPassword, req.NewPassword); err != nil {
		writeServiceError(w, r, "password change failed", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func userResponse(c domain.Credential, backupCodesRemaining *int) authsdk.UserResponse {
	roles := c.Roles
	if roles == nil {
		roles = []string{}
	}
	return authsdk.UserResponse{
		UserID:               c.UserID,
		Email:                c.Email,
		OrganizationID:       c.OrganizationID,
		Roles:                roles,
		MFAEnabled:           c.MFAEnabled(),
		BackupCodesRemaining: backupCodesRemaining,
		CreatedAt:            millis(c.CreatedAt),
	}
}

func loginResponse(res domain.LoginResult) authsdk.LoginResponse {
	out := authsdk.LoginResponse{
		State:       string(res.State),
		UserID:      res.UserID,
		ChallengeID: res.ChallengeID,
	}
	for _, m := range res.Methods {
		out.Methods = append(out.Methods, string(m))
	}
	if res.Authenticated() {
		t := tokenResponse(*res.Tokens)
		out.Tokens = &t
	}
	return out
}

func tokenResponse(pair jwtx.TokenPair) authsdk.TokenResponse {
	return authsdk.TokenResponse{
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		TokenType:        "Bearer",
		AccessExpiresAt:  millis(pair.AccessExpiresAt),
		RefreshExpiresAt: millis(pair.RefreshExpiresAt),
		SessionID:        pair.SessionID,
	}
}

// millis is the wire form of every timestamp.
func millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}
