package http

import (
	"encoding/base64"
	"net/http"

	"github.com/aussiebroadwan/tally/internal/auth/service"
	"github.com/aussiebroadwan/tally/pkg/authsdk"
	"github.com/aussiebroadwan/tally/pkg/httpx"
)

// MFAHandler handles TOTP enrollment and backup codes for the signed-in user.
type MFAHandler struct {
	MFAService *service.MFAService
}

// HandleEnroll handles POST /v1/mfa/totp/enroll
func (h *MFAHandler) HandleEnroll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	enrollment, err := h.MFAService.Enroll(ctx, httpx.UserIDFromContext(ctx))
	if err != nil {
		writeServiceError(w, r, "failed to enroll TOTP", err)
		return
	}

	resp := authsdk.TOTPEnrollResponse{
		Secret:          enrollment.Secret,
		ProvisioningURI: enrollment.ProvisioningURI,
		Issuer:          enrollment.Issuer,
		Account:         enrollment.Account,
	}
	if len(enrollment.QRCodePNG) > 0 {
		resp.QRCode = base64.StdEncoding.EncodeToString(enrollment.QRCodePNG)
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

// HandleConfirm handles POST /v1/mfa/totp/confirm. The response holds the
// only copy of the backup codes the service will ever hand out.
func (h *MFAHandler) HandleConfirm(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req authsdk.TOTPCodeRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.WriteRequestError(w, err)
		return
	}

	codes, err := h.MFAService.Confirm(ctx, httpx.UserIDFromContext(ctx), req.Code)
	if err != nil {
		writeServiceError(w, r, "failed to confirm TOTP", err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.BackupCodesResponse{BackupCodes: codes})
}

// HandleRegenerateBackupCodes handles POST /v1/mfa/backup-codes
func (h *MFAHandler) HandleRegenerateBackupCodes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req authsdk.TOTPCodeRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.WriteRequestError(w, err)
		return
	}

	codes, err := h.MFAService.RegenerateBackupCodes(ctx, httpx.UserIDFromContext(ctx), req.Code)
	if err != nil {
		writeServiceError(w, r, "failed to regenerate backup codes", err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.BackupCodesResponse{BackupCodes: codes})
}

// HandleRemove handles DELETE /v1/mfa/totp
func (h *MFAHandler) HandleRemove(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req authsdk.TOTPCodeRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.WriteRequestError(w, err)
		return
	}

	if err := h.MFAService.Disable(ctx, httpx.UserIDFromContext(ctx), req.Code); err != nil {
		writeServiceError(w, r, "failed to disable MFA", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
