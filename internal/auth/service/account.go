package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/aussiebroadwan/tally/internal/auth/domain"
	"github.com/aussiebroadwan/tally/internal/auth/store"
	"github.com/aussiebroadwan/tally/pkg/cryptox"
	"github.com/aussiebroadwan/tally/pkg/idx"
	"github.com/aussiebroadwan/tally/pkg/slogx"
)

const (
	MinPasswordLength = 8
	MaxPasswordLength = 128
)

// RegisterInput is what a new credential is created from.
type RegisterInput struct {
	Email          string
	Password       string
	OrganizationID string
	Roles          []string
}

type AccountService struct {
	Store  store.Store
	Hasher *cryptox.Hasher
}

// Register hashes the password and stores a new credential with a fresh id.
func (s *AccountService) Register(ctx context.Context, in RegisterInput) (domain.Credential, error) {
	email := NormalizeEmail(in.Email)
	if email == "" {
		return domain.Credential{}, ErrInvalidEmail
	}
	if err := ValidatePassword(in.Password); err != nil {
		return domain.Credential{}, err
	}

	hash, err := s.Hasher.Hash(in.Password)
	if err != nil {
		return domain.Credential{}, fmt.Errorf("hash password: %w", err)
	}

	c := domain.Credential{
		UserID:         idx.New().String(),
		Email:          email,
		OrganizationID: in.OrganizationID,
		Roles:          in.Roles,
		PasswordHash:   hash,
	}
	if err := s.Store.Credentials().CreateCredential(ctx, c); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return domain.Credential{}, ErrEmailTaken
		}
		return domain.Credential{}, fmt.Errorf("create credential: %w", err)
	}

	slogx.FromContext(ctx).Info("credential registered", "user_id", c.UserID)
	return s.Store.Credentials().GetCredentialByID(ctx, c.UserID)
}

// ChangePassword replaces the password after checking the current one.
// Existing sessions are left alone.
func (s *AccountService) ChangePassword(ctx context.Context, userID, current, next string) error {
	c, err := s.Store.Credentials().GetCredentialByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrInvalidCredentials
		}
		return err
	}

	ok, err := s.Hasher.Verify(c.PasswordHash, current)
	if err != nil {
		return fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		return ErrInvalidCredentials
	}
	if current == next {
		return ErrPasswordReused
	}
	if err := ValidatePassword(next); err != nil {
		return err
	}

	hash, err := s.Hasher.Hash(next)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.Store.Credentials().UpdatePasswordHash(ctx, userID, hash); err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	slogx.FromContext(ctx).Info("password changed", "user_id", userID)
	return nil
}

// GetCredential fetches the credential for userID.
func (s *AccountService) GetCredential(ctx context.Context, userID string) (domain.Credential, error) {
	return s.Store.Credentials().GetCredentialByID(ctx, userID)
}

// ValidatePassword enforces length bounds only; history and breach checks
// belong to the caller.
func ValidatePassword(password string) error {
	n := utf8.RuneCountInString(password)
	if n < MinPasswordLength {
		return fmt.Errorf("%w: must be at least %d characters", ErrWeakPassword, MinPasswordLength)
	}
	if n > MaxPasswordLength {
		return fmt.Errorf("%w: must be at most %d characters", ErrWeakPassword, MaxPasswordLength)
	}
	return nil
}

// NormalizeEmail trims and lowercases an address for lookup and storage.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func nowOr(now func() time.Time) time.Time {
	if now == nil {
		return time.Now()
	}
	return now()
}
