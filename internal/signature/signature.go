// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package signature verifies the detached signature envelope carried
// alongside a plugin archive: it hashes the archive payload, checks the
// signature against the leaf certificate's public key, validates the
// certificate chain against a trust store, and optionally consults a
// revocation oracle. It is a pure function of its inputs plus the trust
// store — no filesystem or network access of its own.
package signature

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"time"

	sigilerr "github.com/yunusgungor/tauri-windows-plugin-system/pkg/errors"
)

// Algorithm identifies the signature scheme used in an Envelope.
type Algorithm string

const (
	AlgorithmRSAPKCS1v15 Algorithm = "rsa-pkcs1v15"
	AlgorithmRSAPSS      Algorithm = "rsa-pss"
	AlgorithmECDSAP256   Algorithm = "ecdsa-p256"
	AlgorithmEd25519     Algorithm = "ed25519"
)

// Outcome is the result of verifying a signature envelope.
type Outcome string

const (
	Valid             Outcome = "valid"
	ValidButUntrusted Outcome = "valid_but_untrusted"
	Invalid           Outcome = "invalid"
	Expired           Outcome = "expired"
	Revoked           Outcome = "revoked"
)

// TrustLevel is the policy knob that decides which Outcomes are acceptable.
// Collapses a four-way Full/SelfSigned/Untrusted/None distinction some
// plugin hosts use down to three host-config levels.
type TrustLevel string

const (
	TrustStrict TrustLevel = "strict"
	TrustBasic  TrustLevel = "basic"
	TrustNone   TrustLevel = "none"
)

// Envelope is the detached signature record carried alongside an archive.
type Envelope struct {
	Algorithm       Algorithm
	DigestAlgorithm string // always "sha256" today; carried for forward compatibility.
	SignatureBytes  []byte
	SignerChain     []*x509.Certificate // leaf first, intermediates, root last (if present).
}

// RevocationOracle reports whether a certificate, identified by its SHA-256
// fingerprint, has been revoked. No third-party OCSP/CRL client exists
// anywhere in the example pack, so this is a small injectable interface
// rather than a hand-rolled network client; the default Verifier uses a
// NoRevocations oracle that always returns false.
type RevocationOracle interface {
	IsRevoked(fingerprint string) bool
}

// NoRevocations is a RevocationOracle that never reports a revocation.
type NoRevocations struct{}

func (NoRevocations) IsRevoked(string) bool { return false }

// Verifier checks signature envelopes against a trust store of root
// certificates.
type Verifier struct {
	roots      *x509.CertPool
	revocation RevocationOracle
	now        func() time.Time
}

// NewVerifier constructs a Verifier anchored to the given root certificates.
func NewVerifier(roots []*x509.Certificate, revocation RevocationOracle) *Verifier {
	if revocation == nil {
		revocation = NoRevocations{}
	}

	pool := x509.NewCertPool()
	for _, root := range roots {
		pool.AddCert(root)
	}

	return &Verifier{roots: pool, revocation: revocation, now: time.Now}
}

// Verify hashes payload, checks the signature against the envelope's leaf
// certificate, validates the chain, and consults the revocation oracle.
func (v *Verifier) Verify(payload []byte, env Envelope) (Outcome, error) {
	if len(env.SignerChain) == 0 {
		return Invalid, sigilerr.New(sigilerr.CodeSignatureInvalid, "signature envelope carries no signer certificate")
	}

	leaf := env.SignerChain[0]
	digest := sha256.Sum256(payload)

	if err := verifySignatureBytes(env.Algorithm, leaf, digest[:], env.SignatureBytes); err != nil {
		return Invalid, sigilerr.Wrap(err, sigilerr.CodeSignatureInvalid, "signature does not verify against leaf certificate")
	}

	now := v.now()
	if now.Before(leaf.NotBefore) || now.After(leaf.NotAfter) {
		return Expired, sigilerr.New(sigilerr.CodeSignatureExpired, "leaf certificate is outside its validity window")
	}

	fingerprint := Fingerprint(leaf)
	if v.revocation.IsRevoked(fingerprint) {
		return Revoked, sigilerr.New(sigilerr.CodeSignatureRevoked, "leaf certificate has been revoked")
	}

	intermediates := x509.NewCertPool()
	for _, cert := range env.SignerChain[1:] {
		intermediates.AddCert(cert)
	}

	_, err := leaf.Verify(x509.VerifyOptions{
		Roots:         v.roots,
		Intermediates: intermediates,
		CurrentTime:   now,
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	})
	if err != nil {
		return ValidButUntrusted, nil
	}

	return Valid, nil
}

// Proceed reports whether outcome is acceptable under level: strict requires
// Valid; basic accepts Valid or ValidButUntrusted; none accepts anything
// except Invalid, Expired, or Revoked.
func Proceed(level TrustLevel, outcome Outcome) bool {
	if outcome == Revoked {
		return false
	}
	switch level {
	case TrustStrict:
		return outcome == Valid
	case TrustBasic:
		return outcome == Valid || outcome == ValidButUntrusted
	case TrustNone:
		return outcome != Invalid && outcome != Expired
	default:
		return false
	}
}

// Fingerprint returns the SHA-256 fingerprint of a certificate's raw bytes,
// as a lowercase hex string (used as an opaque
// lookup key for the revocation oracle and for the registry's stored
// signature_fingerprint field).
func Fingerprint(cert *x509.Certificate) string {
	sum := sha256.Sum256(cert.Raw)
	const hextable = "0123456789abcdef"
	out := make([]byte, len(sum)*2)
	for i, b := range sum {
		out[i*2] = hextable[b>>4]
		out[i*2+1] = hextable[b&0x0f]
	}
	return string(out)
}

func verifySignatureBytes(alg Algorithm, leaf *x509.Certificate, digest, sig []byte) error {
	switch alg {
	case AlgorithmRSAPKCS1v15:
		pub, ok := leaf.PublicKey.(*rsa.PublicKey)
		if !ok {
			return sigilerr.Errorf(sigilerr.CodeSignatureInvalid, "leaf certificate key is not RSA for algorithm %s", alg)
		}
		return rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest, sig)
	case AlgorithmRSAPSS:
		pub, ok := leaf.PublicKey.(*rsa.PublicKey)
		if !ok {
			return sigilerr.Errorf(sigilerr.CodeSignatureInvalid, "leaf certificate key is not RSA for algorithm %s", alg)
		}
		return rsa.VerifyPSS(pub, crypto.SHA256, digest, sig, nil)
	case AlgorithmECDSAP256:
		pub, ok := leaf.PublicKey.(*ecdsa.PublicKey)
		if !ok {
			return sigilerr.Errorf(sigilerr.CodeSignatureInvalid, "leaf certificate key is not ECDSA for algorithm %s", alg)
		}
		if !ecdsa.VerifyASN1(pub, digest, sig) {
			return sigilerr.Errorf(sigilerr.CodeSignatureInvalid, "ECDSA signature verification failed")
		}
		return nil
	case AlgorithmEd25519:
		pub, ok := leaf.PublicKey.(ed25519.PublicKey)
		if !ok {
			return sigilerr.Errorf(sigilerr.CodeSignatureInvalid, "leaf certificate key is not Ed25519 for algorithm %s", alg)
		}
		// Ed25519 signs the message directly, not a pre-hashed digest; callers
		// pass the SHA-256 digest as the message for a uniform envelope across
		// algorithms, matching the envelope's single DigestAlgorithm field.
		if !ed25519.Verify(pub, digest, sig) {
			return sigilerr.Errorf(sigilerr.CodeSignatureInvalid, "Ed25519 signature verification failed")
		}
		return nil
	default:
		return sigilerr.Errorf(sigilerr.CodeSignatureInvalid, "unsupported signature algorithm %q", alg)
	}
}
