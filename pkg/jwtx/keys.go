package jwtx

import (
	"crypto/rsa"

	"github.com/aussiebroadwan/tally/pkg/autherr"
	"github.com/aussiebroadwan/tally/pkg/cryptox"
)

// KeyMaterial is the PEM-encoded RSA key pair. PrivateKeyPEM may be PKCS1
// or PKCS8; PublicKeyPEM is derived from it when omitted. A service given
// only PublicKeyPEM can verify but not sign.
type KeyMaterial struct {
	PrivateKeyPEM []byte
	PublicKeyPEM  []byte
}

type keyring struct {
	private *rsa.PrivateKey // nil for verify-only services
	public  *rsa.PublicKey
	jwk     JWK
}

func loadKeyring(m KeyMaterial) (*keyring, error) {
	const op = "jwtx.loadKeys"

	if len(m.PrivateKeyPEM) == 0 && len(m.PublicKeyPEM) == 0 {
		return nil, autherr.New(autherr.KindConfiguration, op, "no key material configured")
	}

	kr := &keyring{}

	if len(m.PrivateKeyPEM) > 0 {
		priv, err := cryptox.ParseRSAPrivateKey(m.PrivateKeyPEM)
		if err != nil {
			return nil, autherr.Wrap(autherr.KindConfiguration, op, "private key", err)
		}
		if priv.N.BitLen() < 2048 {
			return nil, autherr.New(autherr.KindConfiguration, op, "RSA key must be at least 2048 bits")
		}
		kr.private = priv
		kr.public = &priv.PublicKey
	}

	if len(m.PublicKeyPEM) > 0 {
		pub, err := cryptox.ParseRSAPublicKey(m.PublicKeyPEM)
		if err != nil {
			return nil, autherr.Wrap(autherr.KindConfiguration, op, "public key", err)
		}
		if kr.public != nil && !kr.public.Equal(pub) {
			return nil, autherr.New(autherr.KindConfiguration, op, "public key does not match private key")
		}
		kr.public = pub
	}

	kr.jwk = NewRSAJWK(kr.public)
	return kr, nil
}
