package app

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/aussiebroadwan/tally/pkg/cryptox"
	"github.com/aussiebroadwan/tally/pkg/jwtx"
)

// ephemeralKeyBits sizes the throwaway signing key used in dev.
const ephemeralKeyBits = 2048

// LoadKeyMaterial reads the RS256 signing key pair from the configured
// files.
//
// Key modes:
//   - file: AUTH_PRIVATE_KEY_FILE is read on startup (see cmd/keygen).
//     Tokens survive restarts and other services can pin the public key.
//   - ephemeral (dev only): no key file is configured, so a key is
//     generated in memory. All existing tokens become invalid on restart.
func LoadKeyMaterial(cfg Config, logger *slog.Logger) (jwtx.KeyMaterial, error) {
	var material jwtx.KeyMaterial

	if cfg.PrivateKeyFile == "" {
		if cfg.Env != "dev" {
			return material, fmt.Errorf("AUTH_PRIVATE_KEY_FILE is required in %s", cfg.Env)
		}
		pemKey, err := cryptox.GenerateRSAKey(ephemeralKeyBits)
		if err != nil {
			return material, fmt.Errorf("failed to generate ephemeral signing key: %w", err)
		}
		material.PrivateKeyPEM = pemKey
		logger.Warn("no AUTH_PRIVATE_KEY_FILE set; generated an ephemeral signing key, tokens will not survive a restart")
		return material, nil
	}

	pemKey, err := os.ReadFile(cfg.PrivateKeyFile)
	if err != nil {
		return material, fmt.Errorf("failed to read private key: %w", err)
	}
	material.PrivateKeyPEM = pemKey

	if cfg.PublicKeyFile != "" {
		pub, err := os.ReadFile(cfg.PublicKeyFile)
		if err != nil {
			return material, fmt.Errorf("failed to read public key: %w", err)
		}
		material.PublicKeyPEM = pub
	}

	logger.Info("signing key loaded", "private_key_file", cfg.PrivateKeyFile)
	return material, nil
}

// LoadSecretBox builds the cipher that seals TOTP secrets. Without a
// master key file in dev the key is random and sealed secrets are lost on
// restart.
func LoadSecretBox(cfg Config, logger *slog.Logger) (*cryptox.SecretBox, error) {
	if cfg.MasterKeyFile == "" {
		if cfg.Env != "dev" {
			return nil, fmt.Errorf("AUTH_MASTER_KEY_FILE is required in %s", cfg.Env)
		}
		logger.Warn("no AUTH_MASTER_KEY_FILE set; TOTP enrollments will not survive a restart")
	}

	material, err := cryptox.LoadMasterKey(cfg.MasterKeyFile)
	if err != nil {
		return nil, err
	}
	return cryptox.NewSecretBox(material)
}
