// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package signature_test

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yunusgungor/tauri-windows-plugin-system/internal/signature"
)

func signPKCS1v15(key *rsa.PrivateKey, digest []byte) ([]byte, error) {
	return rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest)
}

func cryptoSHA256() crypto.Hash {
	return crypto.SHA256
}

func selfSignedRSA(t *testing.T, notBefore, notAfter time.Time) (*x509.Certificate, *rsa.PrivateKey) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "test-rsa"},
		NotBefore:    notBefore,
		NotAfter:     notAfter,
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		IsCA:         true,
		BasicConstraintsValid: true,
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)

	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return cert, key
}

func selfSignedECDSA(t *testing.T) (*x509.Certificate, *ecdsa.PrivateKey) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "test-ecdsa"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		IsCA:                  true,
		BasicConstraintsValid: true,
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)

	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return cert, key
}

func selfSignedEd25519(t *testing.T) (*x509.Certificate, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "test-ed25519"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		IsCA:                  true,
		BasicConstraintsValid: true,
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, pub, priv)
	require.NoError(t, err)

	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return cert, priv
}

func TestVerifyRSAPKCS1v15TrustedChain(t *testing.T) {
	cert, key := selfSignedRSA(t, time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
	payload := []byte("archive bytes")
	digest := sha256.Sum256(payload)

	sig, err := signPKCS1v15(key, digest[:])
	require.NoError(t, err)

	v := signature.NewVerifier([]*x509.Certificate{cert}, nil)
	outcome, err := v.Verify(payload, signature.Envelope{
		Algorithm:      signature.AlgorithmRSAPKCS1v15,
		SignatureBytes: sig,
		SignerChain:    []*x509.Certificate{cert},
	})
	require.NoError(t, err)
	assert.Equal(t, signature.Valid, outcome)
}

func TestVerifyRSAPSSUntrustedChain(t *testing.T) {
	cert, key := selfSignedRSA(t, time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
	payload := []byte("archive bytes")
	digest := sha256.Sum256(payload)

	sig, err := rsa.SignPSS(rand.Reader, key, cryptoSHA256(), digest[:], nil)
	require.NoError(t, err)

	// Verifier has no roots configured, so the chain cannot be validated.
	v := signature.NewVerifier(nil, nil)
	outcome, err := v.Verify(payload, signature.Envelope{
		Algorithm:      signature.AlgorithmRSAPSS,
		SignatureBytes: sig,
		SignerChain:    []*x509.Certificate{cert},
	})
	require.NoError(t, err)
	assert.Equal(t, signature.ValidButUntrusted, outcome)
}

func TestVerifyECDSAP256(t *testing.T) {
	cert, key := selfSignedECDSA(t)
	payload := []byte("archive bytes")
	digest := sha256.Sum256(payload)

	sig, err := ecdsa.SignASN1(rand.Reader, key, digest[:])
	require.NoError(t, err)

	v := signature.NewVerifier([]*x509.Certificate{cert}, nil)
	outcome, err := v.Verify(payload, signature.Envelope{
		Algorithm:      signature.AlgorithmECDSAP256,
		SignatureBytes: sig,
		SignerChain:    []*x509.Certificate{cert},
	})
	require.NoError(t, err)
	assert.Equal(t, signature.Valid, outcome)
}

func TestVerifyEd25519(t *testing.T) {
	cert, key := selfSignedEd25519(t)
	payload := []byte("archive bytes")
	digest := sha256.Sum256(payload)
	sig := ed25519.Sign(key, digest[:])

	v := signature.NewVerifier([]*x509.Certificate{cert}, nil)
	outcome, err := v.Verify(payload, signature.Envelope{
		Algorithm:      signature.AlgorithmEd25519,
		SignatureBytes: sig,
		SignerChain:    []*x509.Certificate{cert},
	})
	require.NoError(t, err)
	assert.Equal(t, signature.Valid, outcome)
}

func TestVerifyTamperedPayloadIsInvalid(t *testing.T) {
	cert, key := selfSignedEd25519(t)
	digest := sha256.Sum256([]byte("original"))
	sig := ed25519.Sign(key, digest[:])

	v := signature.NewVerifier([]*x509.Certificate{cert}, nil)
	outcome, err := v.Verify([]byte("tampered"), signature.Envelope{
		Algorithm:      signature.AlgorithmEd25519,
		SignatureBytes: sig,
		SignerChain:    []*x509.Certificate{cert},
	})
	require.Error(t, err)
	assert.Equal(t, signature.Invalid, outcome)
}

func TestVerifyExpiredCertificate(t *testing.T) {
	cert, key := selfSignedRSA(t, time.Now().Add(-48*time.Hour), time.Now().Add(-24*time.Hour))
	payload := []byte("archive bytes")
	digest := sha256.Sum256(payload)
	sig, err := signPKCS1v15(key, digest[:])
	require.NoError(t, err)

	v := signature.NewVerifier([]*x509.Certificate{cert}, nil)
	outcome, err := v.Verify(payload, signature.Envelope{
		Algorithm:      signature.AlgorithmRSAPKCS1v15,
		SignatureBytes: sig,
		SignerChain:    []*x509.Certificate{cert},
	})
	require.Error(t, err)
	assert.Equal(t, signature.Expired, outcome)
}

type alwaysRevoked struct{}

func (alwaysRevoked) IsRevoked(string) bool { return true }

func TestVerifyRevokedCertificate(t *testing.T) {
	cert, key := selfSignedRSA(t, time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
	payload := []byte("archive bytes")
	digest := sha256.Sum256(payload)
	sig, err := signPKCS1v15(key, digest[:])
	require.NoError(t, err)

	v := signature.NewVerifier([]*x509.Certificate{cert}, alwaysRevoked{})
	outcome, err := v.Verify(payload, signature.Envelope{
		Algorithm:      signature.AlgorithmRSAPKCS1v15,
		SignatureBytes: sig,
		SignerChain:    []*x509.Certificate{cert},
	})
	require.Error(t, err)
	assert.Equal(t, signature.Revoked, outcome)
}

func TestVerifyNoSignerChainIsInvalid(t *testing.T) {
	v := signature.NewVerifier(nil, nil)
	outcome, err := v.Verify([]byte("x"), signature.Envelope{Algorithm: signature.AlgorithmEd25519})
	require.Error(t, err)
	assert.Equal(t, signature.Invalid, outcome)
}

func TestProceedPolicyMatrix(t *testing.T) {
	tests := []struct {
		level   signature.TrustLevel
		outcome signature.Outcome
		want    bool
	}{
		{signature.TrustStrict, signature.Valid, true},
		{signature.TrustStrict, signature.ValidButUntrusted, false},
		{signature.TrustStrict, signature.Revoked, false},
		{signature.TrustBasic, signature.Valid, true},
		{signature.TrustBasic, signature.ValidButUntrusted, true},
		{signature.TrustBasic, signature.Invalid, false},
		{signature.TrustBasic, signature.Revoked, false},
		{signature.TrustNone, signature.Invalid, false},
		{signature.TrustNone, signature.Expired, false},
		{signature.TrustNone, signature.ValidButUntrusted, true},
		{signature.TrustNone, signature.Revoked, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, signature.Proceed(tt.level, tt.outcome),
			"level=%s outcome=%s", tt.level, tt.outcome)
	}
}

func TestFingerprintIsStableAndHex(t *testing.T) {
	cert, _ := selfSignedEd25519(t)
	fp1 := signature.Fingerprint(cert)
	fp2 := signature.Fingerprint(cert)
	assert.Equal(t, fp1, fp2)
	assert.Len(t, fp1, 64)
}
