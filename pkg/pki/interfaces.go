package pki

import (
	"crypto"
	"errors"
	"time"

	"github.com/veraison/go-cose"
)

// Algorithm identifies a signature algorithm by its COSE identifier.
type Algorithm int64

const (
	// AlgorithmES256 is ECDSA over P-256 with SHA-256.
	AlgorithmES256 = Algorithm(cose.AlgorithmES256)
	// AlgorithmPS256 is RSASSA-PSS with SHA-256.
	AlgorithmPS256 = Algorithm(cose.AlgorithmPS256)
)

// COSE returns the algorithm as understood by go-cose.
func (a Algorithm) COSE() cose.Algorithm {
	return cose.Algorithm(a)
}

func (a Algorithm) String() string {
	return cose.Algorithm(a).String()
}

// PublicKey verifies signatures produced by the matching PrivateKey.
type PublicKey interface {
	Algorithm() Algorithm
	// Verify returns nil if signature is a valid signature of content.
	Verify(content, signature []byte) error
	// Crypto returns the underlying standard library key.
	Crypto() crypto.PublicKey
}

// PrivateKey signs content. The raw key bytes never leave the implementation
// except through explicit PEM export.
type PrivateKey interface {
	Algorithm() Algorithm
	Sign(content []byte) ([]byte, error)
	Public() PublicKey
	// Crypto returns the underlying signer, e.g. for certificate creation.
	Crypto() crypto.Signer
}

// TrustedKey is a verification key together with the window and content
// types it is trusted for.
type TrustedKey interface {
	KID() []byte
	ValidFrom() time.Time
	ValidUntil() time.Time
	ContentTypes() []ContentType
	PublicKey() (PublicKey, error)
}

// Errors
var (
	ErrUnsupportedKeyType = errors.New("unsupported key type")
	ErrInvalidPEM         = errors.New("invalid PEM data")
)
