package cryptox

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"github.com/aussiebroadwan/tally/pkg/autherr"
	"golang.org/x/crypto/argon2"
)

// Enforced Argon2id minimums. A HasherConfig below any of these is rejected.
const (
	MinMemoryKiB   = 64 * 1024 // 64 MiB
	MinIterations  = 3
	MinParallelism = 1
	MinSaltLength  = 16
	MinKeyLength   = 32
)

// Ceilings for parameters read back from a stored hash. A hash above any
// of these is rejected as malformed instead of being computed.
const (
	MaxMemoryKiB  = 4 * 1024 * 1024 // 4 GiB
	MaxIterations = 100
)

// HasherConfig holds the Argon2id cost parameters. Memory is in KiB.
type HasherConfig struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32

	// Pepper is appended to every secret before hashing. Optional; see LoadPepper.
	Pepper string

	// Rand is the salt source. Defaults to crypto/rand.
	Rand io.Reader
}

// DefaultHasherConfig returns the enforced minimums with two lanes.
func DefaultHasherConfig() HasherConfig {
	return HasherConfig{
		MemoryKiB:   MinMemoryKiB,
		Iterations:  MinIterations,
		Parallelism: 2,
		SaltLength:  MinSaltLength,
		KeyLength:   MinKeyLength,
	}
}

// Hasher produces and verifies PHC-format Argon2id hash strings. It holds
// only immutable configuration and is safe for concurrent use.
type Hasher struct {
	cfg HasherConfig
}

// NewHasher validates cfg against the enforced minimums.
func NewHasher(cfg HasherConfig) (*Hasher, error) {
	const op = "cryptox.NewHasher"

	switch {
	case cfg.MemoryKiB < MinMemoryKiB:
		return nil, autherr.Newf(autherr.KindConfiguration, op, "memory cost %d KiB below minimum %d", cfg.MemoryKiB, MinMemoryKiB)
	case cfg.Iterations < MinIterations:
		return nil, autherr.Newf(autherr.KindConfiguration, op, "time cost %d below minimum %d", cfg.Iterations, MinIterations)
	case cfg.Parallelism < MinParallelism:
		return nil, autherr.Newf(autherr.KindConfiguration, op, "parallelism must be at least %d", MinParallelism)
	case cfg.SaltLength < MinSaltLength:
		return nil, autherr.Newf(autherr.KindConfiguration, op, "salt length %d below minimum %d", cfg.SaltLength, MinSaltLength)
	case cfg.KeyLength < MinKeyLength:
		return nil, autherr.Newf(autherr.KindConfiguration, op, "hash length %d below minimum %d", cfg.KeyLength, MinKeyLength)
	}

	if cfg.Rand == nil {
		cfg.Rand = rand.Reader
	}
	return &Hasher{cfg: cfg}, nil
}

// Config returns a copy of the hasher's configuration.
func (h *Hasher) Config() HasherConfig { return h.cfg }

// Hash generates a PHC-format Argon2id hash string including salt and parameters:
//
//	$argon2id$v=19$m=65536,t=3,p=2$<salt>$<digest>
func (h *Hasher) Hash(password string) (string, error) {
	const op = "cryptox.Hash"
	if password == "" {
		return "", autherr.New(autherr.KindValidation, op, "password must not be empty")
	}

	salt := make([]byte, h.cfg.SaltLength)
	if _, err := io.ReadFull(h.cfg.Rand, salt); err != nil {
		return "", autherr.Wrap(autherr.KindConfiguration, op, "read salt", err)
	}

	digest := argon2.IDKey(
		[]byte(password+h.cfg.Pepper),
		salt,
		h.cfg.Iterations,
		h.cfg.MemoryKiB,
		h.cfg.Parallelism,
		h.cfg.KeyLength,
	)

	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.cfg.MemoryKiB,
		h.cfg.Iterations,
		h.cfg.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(digest),
	), nil
}

// Verify compares a plaintext password against a PHC-style Argon2id hash.
// A wrong or empty password is (false, nil); only a malformed hash errors.
func (h *Hasher) Verify(encodedHash, password string) (bool, error) {
	p, err := decodePHC(encodedHash)
	if err != nil {
		return false, err
	}
	if password == "" {
		return false, nil
	}

	computed := argon2.IDKey(
		[]byte(password+h.cfg.Pepper),
		p.salt,
		p.iterations,
		p.memory,
		p.parallelism,
		uint32(len(p.digest)), // #nosec G115 - digest length comes from a decoded base64 segment
	)

	return subtle.ConstantTimeCompare(computed, p.digest) == 1, nil
}

// NeedsRehash reports whether encodedHash was produced with weaker
// parameters than the hasher is currently configured with.
func (h *Hasher) NeedsRehash(encodedHash string) (bool, error) {
	p, err := decodePHC(encodedHash)
	if err != nil {
		return false, err
	}

	return p.memory < h.cfg.MemoryKiB ||
		p.iterations < h.cfg.Iterations ||
		p.parallelism < h.cfg.Parallelism ||
		uint32(len(p.salt)) < h.cfg.SaltLength || // #nosec G115
		uint32(len(p.digest)) < h.cfg.KeyLength, nil // #nosec G115
}

type phcParams struct {
	memory      uint32
	iterations  uint32
	parallelism uint8
	salt        []byte
	digest      []byte
}

// decodePHC parses $argon2id$v=19$m=X,t=Y,p=Z$salt$hash.
func decodePHC(encodedHash string) (phcParams, error) {
	const op = "cryptox.decodePHC"

	// ["", "argon2id", "v=19", "m=X,t=Y,p=Z", "salt", "hash"]
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 || parts[0] != "" {
		return phcParams{}, autherr.New(autherr.KindValidation, op, "invalid hash format: expected 6 parts")
	}
	if parts[1] != "argon2id" {
		return phcParams{}, autherr.New(autherr.KindValidation, op, "invalid hash format: not argon2id")
	}
	if parts[2] != fmt.Sprintf("v=%d", argon2.Version) {
		return phcParams{}, autherr.New(autherr.KindValidation, op, "invalid hash format: wrong version")
	}

	var p phcParams
	var trailing string
	if n, _ := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d%s", &p.memory, &p.iterations, &p.parallelism, &trailing); n != 3 {
		return phcParams{}, autherr.New(autherr.KindValidation, op, "invalid hash format: parameters")
	}
	if p.memory == 0 || p.iterations == 0 || p.parallelism == 0 {
		return phcParams{}, autherr.New(autherr.KindValidation, op, "invalid hash format: zero parameter")
	}
	if p.memory > MaxMemoryKiB || p.iterations > MaxIterations {
		return phcParams{}, autherr.New(autherr.KindValidation, op, "invalid hash format: parameters exceed ceiling")
	}

	var err error
	if p.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil {
		return phcParams{}, autherr.Wrap(autherr.KindValidation, op, "invalid hash format: salt", err)
	}
	if p.digest, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil {
		return phcParams{}, autherr.Wrap(autherr.KindValidation, op, "invalid hash format: digest", err)
	}
	if len(p.salt) == 0 || len(p.digest) == 0 {
		return phcParams{}, autherr.New(autherr.KindValidation, op, "invalid hash format: empty salt or digest")
	}

	return p, nil
}
