// Package otpx implements time-based one-time passwords (RFC 6238) and
// single-use backup codes on top of github.com/pquerna/otp.
package otpx

import (
	"crypto/rand"
	"crypto/subtle"
	"io"
	"time"

	"github.com/aussiebroadwan/tally/pkg/autherr"
	"github.com/aussiebroadwan/tally/pkg/cryptox"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// Defaults match what common authenticator apps expect.
const (
	DefaultAlgorithm  = "SHA1"
	DefaultDigits     = 6
	DefaultPeriod     = 30 * time.Second
	DefaultSkew       = 1
	DefaultSecretSize = 20 // 160 bits
)

// Config controls TOTP generation and verification.
type Config struct {
	Issuer     string
	Algorithm  string // SHA1, SHA256 or SHA512
	Digits     int    // 6 or 8
	Period     time.Duration
	Skew       uint // steps accepted either side of the current one
	SecretSize uint // bytes

	// Rand is the secret source. Defaults to crypto/rand.
	Rand io.Reader
}

// DefaultConfig returns SHA1, 6 digits, 30 second steps and a skew of one.
func DefaultConfig(issuer string) Config {
	return Config{
		Issuer:     issuer,
		Algorithm:  DefaultAlgorithm,
		Digits:     DefaultDigits,
		Period:     DefaultPeriod,
		Skew:       DefaultSkew,
		SecretSize: DefaultSecretSize,
	}
}

// Enrollment is a freshly generated shared secret and the otpauth:// URI an
// authenticator app scans to import it.
type Enrollment struct {
	Secret          string // base32, no padding
	ProvisioningURI string
}

// Engine generates and verifies TOTP codes and backup codes. It holds only
// immutable configuration and is safe for concurrent use.
type Engine struct {
	cfg       Config
	algorithm otp.Algorithm
	digits    otp.Digits
	period    uint
	hasher    *cryptox.Hasher
}

// NewEngine validates cfg. Backup codes are hashed with hasher.
func NewEngine(cfg Config, hasher *cryptox.Hasher) (*Engine, error) {
	const op = "otpx.NewEngine"

	if hasher == nil {
		return nil, autherr.New(autherr.KindConfiguration, op, "backup code hasher is required")
	}
	if cfg.Issuer == "" {
		return nil, autherr.New(autherr.KindConfiguration, op, "issuer is required")
	}

	var alg otp.Algorithm
	switch cfg.Algorithm {
	case "", "SHA1":
		alg = otp.AlgorithmSHA1
	case "SHA256":
		alg = otp.AlgorithmSHA256
	case "SHA512":
		alg = otp.AlgorithmSHA512
	default:
		return nil, autherr.Newf(autherr.KindConfiguration, op, "unsupported algorithm %q", cfg.Algorithm)
	}

	var digits otp.Digits
	switch cfg.Digits {
	case 0, 6:
		digits = otp.DigitsSix
	case 8:
		digits = otp.DigitsEight
	default:
		return nil, autherr.Newf(autherr.KindConfiguration, op, "digits must be 6 or 8, got %d", cfg.Digits)
	}

	if cfg.Period == 0 {
		cfg.Period = DefaultPeriod
	}
	if cfg.Period < time.Second || cfg.Period%time.Second != 0 {
		return nil, autherr.Newf(autherr.KindConfiguration, op, "period must be a whole number of seconds, got %s", cfg.Period)
	}
	if cfg.SecretSize == 0 {
		cfg.SecretSize = DefaultSecretSize
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.Reader
	}

	return &Engine{
		cfg:       cfg,
		algorithm: alg,
		digits:    digits,
		period:    uint(cfg.Period / time.Second), // #nosec G115 - checked positive above
		hasher:    hasher,
	}, nil
}

// Issuer returns the configured issuer name.
func (e *Engine) Issuer() string { return e.cfg.Issuer }

// GenerateSecret creates a random shared secret for label (usually the
// account email) and the matching provisioning URI.
func (e *Engine) GenerateSecret(label string) (Enrollment, error) {
	const op = "otpx.GenerateSecret"
	if label == "" {
		return Enrollment{}, autherr.New(autherr.KindValidation, op, "label must not be empty")
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      e.cfg.Issuer,
		AccountName: label,
		Period:      e.period,
		SecretSize:  e.cfg.SecretSize,
		Digits:      e.digits,
		Algorithm:   e.algorithm,
		Rand:        e.cfg.Rand,
	})
	if err != nil {
		return Enrollment{}, autherr.Wrap(autherr.KindConfiguration, op, "generate key", err)
	}

	return Enrollment{
		Secret:          key.Secret(),
		ProvisioningURI: key.URL(),
	}, nil
}

// GenerateToken returns the code for the step containing at.
func (e *Engine) GenerateToken(secret string, at time.Time) (string, error) {
	code, err := totp.GenerateCodeCustom(secret, at, e.opts())
	if err != nil {
		return "", autherr.Wrap(autherr.KindValidation, "otpx.GenerateToken", "invalid secret", err)
	}
	return code, nil
}

// VerifyToken checks candidate against the current time using the
// configured skew.
func (e *Engine) VerifyToken(secret, candidate string) bool {
	return e.VerifyTokenAt(secret, candidate, time.Now(), e.cfg.Skew)
}

// VerifyTokenAt checks candidate against the steps within window of at.
// Malformed candidates are rejected before any HMAC is computed. Every step
// in the window is evaluated so the matching offset is not observable.
func (e *Engine) VerifyTokenAt(secret, candidate string, at time.Time, window uint) bool {
	if !e.wellFormed(candidate) {
		return false
	}

	step := time.Duration(e.period) * time.Second
	opts := e.opts()
	match := 0
	valid := 1

	for i := -int(window); i <= int(window); i++ { // #nosec G115 - window is a small skew
		code, err := totp.GenerateCodeCustom(secret, at.Add(time.Duration(i)*step), opts)
		if err != nil {
			valid = 0
			continue
		}
		match |= subtle.ConstantTimeCompare([]byte(code), []byte(candidate))
	}

	return match&valid == 1
}

func (e *Engine) wellFormed(candidate string) bool {
	if len(candidate) != e.digits.Length() {
		return false
	}
	for i := 0; i < len(candidate); i++ {
		if candidate[i] < '0' || candidate[i] > '9' {
			return false
		}
	}
	return true
}

func (e *Engine) opts() totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    e.period,
		Skew:      0,
		Digits:    e.digits,
		Algorithm: e.algorithm,
	}
}
