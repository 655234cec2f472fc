package domain

import "github.com/aussiebroadwan/tally/pkg/jwtx"

// LoginState is the position of a login attempt in the sign-in flow.
type LoginState string

const (
	LoginStateCredentialsPending LoginState = "credentials_pending"
	LoginStatePasswordVerified   LoginState = "password_verified"
	LoginStateMFAPending         LoginState = "mfa_pending"
	LoginStateBackupCodePending  LoginState = "backup_code_pending"
	LoginStateAuthenticated      LoginState = "authenticated"
)

// LoginResult is the outcome of a login step. Tokens is only set once the
// state reaches LoginStateAuthenticated; ChallengeID and Methods only while
// a second factor is pending.
type LoginResult struct {
	State       LoginState
	UserID      string
	ChallengeID string
	Methods     []MFAMethod
	Tokens      *jwtx.TokenPair
}

// Authenticated reports whether the result carries a token pair.
func (r LoginResult) Authenticated() bool {
	return r.State == LoginStateAuthenticated && r.Tokens != nil
}
