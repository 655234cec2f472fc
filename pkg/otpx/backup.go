package otpx

import (
	"io"
	"strings"

	"github.com/aussiebroadwan/tally/pkg/autherr"
)

const (
	// DefaultBackupCodeCount is the size of a generated backup code set.
	DefaultBackupCodeCount = 10
	// BackupCodeLength is the number of characters in a backup code.
	BackupCodeLength = 8

	backupAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	// Largest multiple of len(backupAlphabet) that fits in a byte. Bytes at
	// or above it are discarded so every symbol is equally likely.
	backupRejectAt = 252
)

// GenerateBackupCodes returns count unique 8-character codes drawn from
// A-Z0-9. A count of zero or less yields DefaultBackupCodeCount codes.
func (e *Engine) GenerateBackupCodes(count int) ([]string, error) {
	const op = "otpx.GenerateBackupCodes"
	if count <= 0 {
		count = DefaultBackupCodeCount
	}

	seen := make(map[string]struct{}, count)
	codes := make([]string, 0, count)
	buf := make([]byte, 2*BackupCodeLength)

	for len(codes) < count {
		code := make([]byte, 0, BackupCodeLength)
		for len(code) < BackupCodeLength {
			if _, err := io.ReadFull(e.cfg.Rand, buf); err != nil {
				return nil, autherr.Wrap(autherr.KindConfiguration, op, "read random bytes", err)
			}
			for _, b := range buf {
				if b >= backupRejectAt {
					continue
				}
				code = append(code, backupAlphabet[int(b)%len(backupAlphabet)])
				if len(code) == BackupCodeLength {
					break
				}
			}
		}

		s := string(code)
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		codes = append(codes, s)
	}

	return codes, nil
}

// HashBackupCode hashes the canonical (uppercase) form of code.
func (e *Engine) HashBackupCode(code string) (string, error) {
	return e.hasher.Hash(CanonicalBackupCode(code))
}

// VerifyBackupCode reports whether code matches hash, ignoring case. It
// never errors; a malformed hash is simply a mismatch.
func (e *Engine) VerifyBackupCode(hash, code string) bool {
	ok, err := e.hasher.Verify(hash, CanonicalBackupCode(code))
	return err == nil && ok
}

// CanonicalBackupCode trims surrounding whitespace and uppercases code.
func CanonicalBackupCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// LooksLikeBackupCode reports whether code has the shape of a backup code,
// letting callers skip hash comparisons for obvious garbage.
func LooksLikeBackupCode(code string) bool {
	code = CanonicalBackupCode(code)
	if len(code) != BackupCodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		if !strings.ContainsRune(backupAlphabet, rune(code[i])) {
			return false
		}
	}
	return true
}
