package service_test

import (
	"context"
	"strings"
	"testing"

	"github.com/aussiebroadwan/tally/internal/auth/service"
	"github.com/stretchr/testify/require"
)

func TestRegister(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	c, err := h.accounts.Register(ctx, service.RegisterInput{
		Email:    " Alice@Example.com",
		Password: testPassword,
		Roles:    []string{"owner"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, c.UserID)
	require.Equal(t, "alice@example.com", c.Email)
	require.Equal(t, []string{"owner"}, c.Roles)
	require.True(t, strings.HasPrefix(c.PasswordHash, "$argon2id$v=19$m=65536,t=3,p=2$"))
	require.False(t, c.MFAEnabled())
}

func TestRegister_Rejects(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.register(t, "alice@example.com")

	tests := []struct {
		name    string
		in      service.RegisterInput
		wantErr error
	}{
		{"duplicate email", service.RegisterInput{Email: "ALICE@example.com", Password: testPassword}, service.ErrEmailTaken},
		{"missing email", service.RegisterInput{Email: "  ", Password: testPassword}, service.ErrInvalidEmail},
		{"short password", service.RegisterInput{Email: "bob@example.com", Password: "short"}, service.ErrWeakPassword},
		{"long password", service.RegisterInput{Email: "bob@example.com", Password: strings.Repeat("a", 129)}, service.ErrWeakPassword},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.accounts.Register(ctx, tt.in)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestChangePassword(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	userID := h.register(t, "alice@example.com")

	require.ErrorIs(t, h.accounts.ChangePassword(ctx, userID, "wrong current", "brand new password"), service.ErrInvalidCredentials)
	require.ErrorIs(t, h.accounts.ChangePassword(ctx, userID, testPassword, testPassword), service.ErrPasswordReused)
	require.ErrorIs(t, h.accounts.ChangePassword(ctx, userID, testPassword, "short"), service.ErrWeakPassword)
	require.ErrorIs(t, h.accounts.ChangePassword(ctx, "missing", testPassword, "brand new password"), service.ErrInvalidCredentials)

	require.NoError(t, h.accounts.ChangePassword(ctx, userID, testPassword, "brand new password"))

	_, err := h.login.Login(ctx, "alice@example.com", testPassword)
	require.ErrorIs(t, err, service.ErrInvalidCredentials)

	res, err := h.login.Login(ctx, "alice@example.com", "brand new password")
	require.NoError(t, err)
	require.True(t, res.Authenticated())
}

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		password string
		ok       bool
	}{
		{"1234567", false},
		{"12345678", true},
		{"пароль12", true}, // counted in runes
		{strings.Repeat("x", 128), true},
		{strings.Repeat("x", 129), false},
	}
	for _, tt := range tests {
		err := service.ValidatePassword(tt.password)
		if tt.ok {
			require.NoError(t, err, tt.password)
		} else {
			require.ErrorIs(t, err, service.ErrWeakPassword, tt.password)
		}
	}
}
