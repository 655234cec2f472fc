package jwtx

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewRSAJWK(t *testing.T) {
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	jwk := NewRSAJWK(&privateKey.PublicKey)
	require.Equal(t, "RSA", jwk.Kty)
	require.Equal(t, "sig", jwk.Use)
	require.Equal(t, "RS256", jwk.Alg)
	require.Equal(t, "AQAB", jwk.E)
	require.Len(t, jwk.Kid, 43, "SHA-256 thumbprint, base64url")

	// Thumbprint is stable for the same key and differs across keys.
	require.Equal(t, jwk.Kid, NewRSAJWK(&privateKey.PublicKey).Kid)
	other, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	require.NotEqual(t, jwk.Kid, NewRSAJWK(&other.PublicKey).Kid)

	pub, err := jwk.PublicKey()
	require.NoError(t, err)
	require.True(t, privateKey.PublicKey.Equal(pub))
}

func TestJWK_PEM_RSA(t *testing.T) {
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	pemStr, err := NewRSAJWK(&privateKey.PublicKey).PEM()
	require.NoError(t, err)

	require.True(t, strings.HasPrefix(pemStr, "-----BEGIN PUBLIC KEY-----"))
	require.True(t, strings.HasSuffix(strings.TrimSpace(pemStr), "-----END PUBLIC KEY-----"))

	block, _ := pem.Decode([]byte(pemStr))
	require.NotNil(t, block, "PEM block should be valid")

	parsedKey, err := x509.ParsePKIXPublicKey(block.Bytes)
	require.NoError(t, err)

	rsaPubKey, ok := parsedKey.(*rsa.PublicKey)
	require.True(t, ok, "Parsed key should be an RSA public key")
	require.Equal(t, privateKey.PublicKey.N, rsaPubKey.N)
	require.Equal(t, privateKey.PublicKey.E, rsaPubKey.E)
}

func TestJWK_InvalidInputs(t *testing.T) {
	tests := []struct {
		name string
		jwk  JWK
	}{
		{"unsupported kty", JWK{Kty: "EC", N: "AQAB", E: "AQAB"}},
		{"bad modulus", JWK{Kty: "RSA", N: "!!!", E: "AQAB"}},
		{"bad exponent", JWK{Kty: "RSA", N: "AQAB", E: "!!!"}},
		{"tiny exponent", JWK{Kty: "RSA", N: "AQAB", E: "AQ"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.jwk.PEM()
			require.Error(t, err)
		})
	}
}

func TestJWKS_JSON(t *testing.T) {
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	raw, err := json.Marshal(JWKS{Keys: []JWK{NewRSAJWK(&privateKey.PublicKey)}})
	require.NoError(t, err)

	var decoded map[string][]map[string]string
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Len(t, decoded["keys"], 1)

	key := decoded["keys"][0]
	for _, field := range []string{"kty", "use", "alg", "kid", "n", "e"} {
		require.NotEmpty(t, key[field], field)
	}
}
