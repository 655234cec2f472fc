package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/tally/internal/auth/domain"
	"github.com/aussiebroadwan/tally/internal/auth/store"
	"github.com/aussiebroadwan/tally/pkg/cryptox"
	"github.com/aussiebroadwan/tally/pkg/otpx"
	"github.com/aussiebroadwan/tally/pkg/slogx"
)

// MFAService manages TOTP enrollment and backup codes for a signed-in user.
type MFAService struct {
	Store   store.Store
	TOTP    *otpx.Engine
	Secrets *cryptox.SecretBox
	QR      otpx.QRRenderer // optional; enrollment omits the image when nil
	Now     func() time.Time
}

// Enroll generates and stores a sealed TOTP secret. MFA is not enabled
// until Confirm sees a valid code. Calling Enroll again before confirming
// replaces the pending secret.
func (s *MFAService) Enroll(ctx context.Context, userID string) (domain.MFAEnrollment, error) {
	c, err := s.Store.Credentials().GetCredentialByID(ctx, userID)
	if err != nil {
		return domain.MFAEnrollment{}, fmt.Errorf("get credential: %w", err)
	}
	if c.MFAEnabled() {
		return domain.MFAEnrollment{}, ErrMFAAlreadyEnabled
	}

	enrollment, err := s.TOTP.GenerateSecret(c.Email)
	if err != nil {
		return domain.MFAEnrollment{}, fmt.Errorf("generate TOTP secret: %w", err)
	}

	sealed, err := s.Secrets.Seal([]byte(enrollment.Secret))
	if err != nil {
		return domain.MFAEnrollment{}, fmt.Errorf("seal TOTP secret: %w", err)
	}
	if err := s.Store.Credentials().SetMFASecret(ctx, userID, sealed); err != nil {
		return domain.MFAEnrollment{}, fmt.Errorf("store TOTP secret: %w", err)
	}

	out := domain.MFAEnrollment{
		Secret:          enrollment.Secret,
		ProvisioningURI: enrollment.ProvisioningURI,
		Issuer:          s.TOTP.Issuer(),
		Account:         c.Email,
	}
	if s.QR != nil {
		if out.QRCodePNG, err = s.QR.Render(enrollment.ProvisioningURI); err != nil {
			return domain.MFAEnrollment{}, fmt.Errorf("render QR code: %w", err)
		}
	}

	slogx.FromContext(ctx).Info("MFA enrollment started", "user_id", userID)
	return out, nil
}

// Confirm checks the first code from the authenticator app, enables MFA and
// returns a fresh set of backup codes. The plaintext codes are only ever
// returned here.
func (s *MFAService) Confirm(ctx context.Context, userID, code string) ([]string, error) {
	c, err := s.Store.Credentials().GetCredentialByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get credential: %w", err)
	}
	if len(c.MFASecret) == 0 {
		return nil, ErrMFANotEnrolled
	}
	if c.MFAEnabled() {
		return nil, ErrMFAAlreadyEnabled
	}

	if err := s.checkTOTP(c, code); err != nil {
		return nil, err
	}

	codes, hashes, err := s.newBackupCodes()
	if err != nil {
		return nil, err
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.BackupCodes().ReplaceBackupCodes(ctx, userID, hashes); err != nil {
			return fmt.Errorf("store backup codes: %w", err)
		}
		if err := tx.Credentials().EnableMFA(ctx, userID, nowOr(s.Now)); err != nil {
			return fmt.Errorf("enable MFA: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slogx.FromContext(ctx).Info("MFA enabled", "user_id", userID)
	return codes, nil
}

// RegenerateBackupCodes replaces every backup code, used or not, after a
// valid TOTP code.
func (s *MFAService) RegenerateBackupCodes(ctx context.Context, userID, totpCode string) ([]string, error) {
	c, err := s.enabledCredential(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := s.checkTOTP(c, totpCode); err != nil {
		return nil, err
	}

	codes, hashes, err := s.newBackupCodes()
	if err != nil {
		return nil, err
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		return tx.BackupCodes().ReplaceBackupCodes(ctx, userID, hashes)
	})
	if err != nil {
		return nil, fmt.Errorf("replace backup codes: %w", err)
	}

	slogx.FromContext(ctx).Info("backup codes regenerated", "user_id", userID)
	return codes, nil
}

// Disable clears the TOTP secret and all backup codes after a valid TOTP code.
func (s *MFAService) Disable(ctx context.Context, userID, totpCode string) error {
	c, err := s.enabledCredential(ctx, userID)
	if err != nil {
		return err
	}
	if err := s.checkTOTP(c, totpCode); err != nil {
		return err
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.BackupCodes().DeleteBackupCodes(ctx, userID); err != nil {
			return fmt.Errorf("delete backup codes: %w", err)
		}
		if err := tx.Credentials().DisableMFA(ctx, userID); err != nil {
			return fmt.Errorf("disable MFA: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	slogx.FromContext(ctx).Info("MFA disabled", "user_id", userID)
	return nil
}

// BackupCodesRemaining counts the unused backup codes.
func (s *MFAService) BackupCodesRemaining(ctx context.Context, userID string) (int, error) {
	return s.Store.BackupCodes().CountUnusedBackupCodes(ctx, userID)
}

func (s *MFAService) enabledCredential(ctx context.Context, userID string) (domain.Credential, error) {
	c, err := s.Store.Credentials().GetCredentialByID(ctx, userID)
	if err != nil {
		return domain.Credential{}, fmt.Errorf("get credential: %w", err)
	}
	if !c.MFAEnabled() {
		return domain.Credential{}, ErrMFANotEnabled
	}
	return c, nil
}

func (s *MFAService) checkTOTP(c domain.Credential, code string) error {
	secret, err := openSecret(s.Secrets, c.MFASecret)
	if err != nil {
		return err
	}
	if !s.TOTP.VerifyToken(secret, code) {
		return ErrInvalidTOTPCode
	}
	return nil
}

func (s *MFAService) newBackupCodes() (codes, hashes []string, err error) {
	codes, err = s.TOTP.GenerateBackupCodes(otpx.DefaultBackupCodeCount)
	if err != nil {
		return nil, nil, fmt.Errorf("generate backup codes: %w", err)
	}

	hashes = make([]string, len(codes))
	for i, code := range codes {
		if hashes[i], err = s.TOTP.HashBackupCode(code); err != nil {
			return nil, nil, fmt.Errorf("hash backup code: %w", err)
		}
	}
	return codes, hashes, nil
}

// openSecret unseals a stored TOTP secret.
func openSecret(box *cryptox.SecretBox, sealed []byte) (string, error) {
	if len(sealed) == 0 {
		return "", errors.New("no TOTP secret on file")
	}
	plain, err := box.Open(sealed)
	if err != nil {
		return "", fmt.Errorf("open TOTP secret: %w", err)
	}
	return string(plain), nil
}
