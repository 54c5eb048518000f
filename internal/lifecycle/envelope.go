// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package lifecycle

import (
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"crypto/x509"
	"os"

	"github.com/yunusgungor/tauri-windows-plugin-system/internal/signature"
	sigilerr "github.com/yunusgungor/tauri-windows-plugin-system/pkg/errors"
)

// envelopeSuffix is appended to an archive's path to find its detached
// signature. No wire format for this sidecar is specified upstream, so
// this package fixes one: a small JSON document carrying a base64
// signature and a PEM certificate chain, leaf first. This mirrors how the
// permission broker's decision store already picks JSON-on-disk for a
// structured record with no prescribed format.
const envelopeSuffix = ".sig.json"

type envelopeFile struct {
	Algorithm       signature.Algorithm `json:"algorithm"`
	DigestAlgorithm string              `json:"digest_algorithm"`
	Signature       string              `json:"signature"`    // base64
	Certificates    []string            `json:"certificates"` // PEM, leaf first
}

func loadEnvelope(archivePath string) (signature.Envelope, error) {
	data, err := os.ReadFile(archivePath + envelopeSuffix)
	if err != nil {
		return signature.Envelope{}, sigilerr.Wrapf(err, sigilerr.CodeSignatureInvalid,
			"reading detached signature for %s", archivePath)
	}

	var ef envelopeFile
	if err := json.Unmarshal(data, &ef); err != nil {
		return signature.Envelope{}, sigilerr.Wrapf(err, sigilerr.CodeSignatureInvalid,
			"parsing detached signature for %s", archivePath)
	}

	sigBytes, err := base64.StdEncoding.DecodeString(ef.Signature)
	if err != nil {
		return signature.Envelope{}, sigilerr.Wrapf(err, sigilerr.CodeSignatureInvalid,
			"decoding signature bytes for %s", archivePath)
	}

	chain := make([]*x509.Certificate, 0, len(ef.Certificates))
	for _, block := range ef.Certificates {
		decoded, _ := pem.Decode([]byte(block))
		if decoded == nil {
			return signature.Envelope{}, sigilerr.New(sigilerr.CodeSignatureInvalid,
				"malformed PEM certificate in signature envelope")
		}
		cert, err := x509.ParseCertificate(decoded.Bytes)
		if err != nil {
			return signature.Envelope{}, sigilerr.Wrap(err, sigilerr.CodeSignatureInvalid,
				"parsing certificate in signature envelope")
		}
		chain = append(chain, cert)
	}

	return signature.Envelope{
		Algorithm:       ef.Algorithm,
		DigestAlgorithm: ef.DigestAlgorithm,
		SignatureBytes:  sigBytes,
		SignerChain:     chain,
	}, nil
}
