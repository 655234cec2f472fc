package domain

import "time"

// MFAMethod names a second factor accepted by a challenge.
type MFAMethod string

const (
	MFAMethodTOTP       MFAMethod = "totp"
	MFAMethodBackupCode MFAMethod = "backup_code"
)

// MaxMFAAttempts is the number of wrong codes after which a challenge is
// destroyed.
const MaxMFAAttempts = 3

// MFAChallenge is a pending second-factor step created after the password
// was verified. It is kept in the cache and never persisted.
type MFAChallenge struct {
	ID        string // ULID handed to the client
	UserID    string
	SessionID string // session the issued token pair will carry
	Methods   []MFAMethod
	Attempts  int
	ExpiresAt time.Time
}

// Allows reports whether m may be used to answer the challenge.
func (c MFAChallenge) Allows(m MFAMethod) bool {
	for _, allowed := range c.Methods {
		if allowed == m {
			return true
		}
	}
	return false
}

// MFAEnrollment is returned when a user starts TOTP enrollment.
type MFAEnrollment struct {
	Secret          string // base32, shown once for manual entry
	ProvisioningURI string // otpauth:// URI
	QRCodePNG       []byte
	Issuer          string
	Account         string
}
