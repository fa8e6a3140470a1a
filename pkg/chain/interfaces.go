// Package chain defines the signer and trust-anchor abstractions used to
// sign and verify health certificates and trust lists.
package chain

import (
	"errors"
	"time"

	"github.com/veraison/go-cose"

	"github.com/fancl20/hcert/pkg/pki"
)

// VerificationResult is the context resolved while looking up a
// verification key. It is returned by value and owned by the caller.
type VerificationResult struct {
	ValidFrom    time.Time
	ValidUntil   time.Time
	ContentTypes []pki.ContentType
}

// ResultOf returns the verification context described by key.
func ResultOf(key pki.TrustedKey) VerificationResult {
	return VerificationResult{
		ValidFrom:    key.ValidFrom(),
		ValidUntil:   key.ValidUntil(),
		ContentTypes: key.ContentTypes(),
	}
}

// Lookup is the outcome of a repository query by kid.
type Lookup struct {
	// Certificates are the candidates matching the kid, in repository order.
	// A kid match is only a filter: callers must try each candidate.
	Certificates []pki.TrustedKey
	// Result describes the first candidate. Nil if there is none.
	Result *VerificationResult
}

// NewLookup builds a Lookup over candidates.
func NewLookup(candidates []pki.TrustedKey) Lookup {
	l := Lookup{Certificates: candidates}
	if len(candidates) > 0 {
		r := ResultOf(candidates[0])
		l.Result = &r
	}
	return l
}

// CryptoService is a signer identity: a private key and the certificate
// binding its public key to a kid.
type CryptoService interface {
	// Headers returns the protected header parameters identifying the
	// signer: algorithm and kid.
	Headers() cose.ProtectedHeader
	// SigningKey returns the key used to sign.
	SigningKey() pki.PrivateKey
	// VerificationKey returns the public key for kid, or ErrUnknownKid if kid
	// is not the kid of this service's certificate.
	VerificationKey(kid []byte) (pki.PublicKey, VerificationResult, error)
	Certificate() *pki.Certificate
	ExportPrivateKeyPEM() (string, error)
	ExportCertificatePEM() string
}

// CertificateRepository resolves trusted certificates by kid.
type CertificateRepository interface {
	// LoadTrustedCertificates returns all trusted certificates with the
	// given kid. Zero candidates is not an error.
	LoadTrustedCertificates(kid []byte) (Lookup, error)
}

// Errors
var (
	ErrUnknownKid = errors.New("kid not known")
)
