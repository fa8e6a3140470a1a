package pki

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"fmt"

	"github.com/veraison/go-cose"
)

// EcKey is an ECDSA P-256 private key.
type EcKey struct {
	key *ecdsa.PrivateKey
}

// EcPublicKey is an ECDSA P-256 public key.
type EcPublicKey struct {
	key *ecdsa.PublicKey
}

// RsaKey is an RSA private key used with RSASSA-PSS.
type RsaKey struct {
	key *rsa.PrivateKey
}

// RsaPublicKey is an RSA public key used with RSASSA-PSS.
type RsaPublicKey struct {
	key *rsa.PublicKey
}

// NewPrivateKey wraps a standard library private key. Only ECDSA P-256 and
// RSA keys are supported.
func NewPrivateKey(key crypto.Signer) (PrivateKey, error) {
	switch k := key.(type) {
	case *ecdsa.PrivateKey:
		if k.Curve != elliptic.P256() {
			return nil, fmt.Errorf("%w: ECDSA curve %s", ErrUnsupportedKeyType, k.Curve.Params().Name)
		}
		return &EcKey{key: k}, nil
	case *rsa.PrivateKey:
		return &RsaKey{key: k}, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedKeyType, key)
	}
}

// NewPublicKey wraps a standard library public key. Only ECDSA P-256 and RSA
// keys are supported.
func NewPublicKey(key crypto.PublicKey) (PublicKey, error) {
	switch k := key.(type) {
	case *ecdsa.PublicKey:
		if k.Curve != elliptic.P256() {
			return nil, fmt.Errorf("%w: ECDSA curve %s", ErrUnsupportedKeyType, k.Curve.Params().Name)
		}
		return &EcPublicKey{key: k}, nil
	case *rsa.PublicKey:
		return &RsaPublicKey{key: k}, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedKeyType, key)
	}
}

// GenerateECKey generates a fresh ECDSA P-256 key.
func GenerateECKey() (*EcKey, error) {
	k, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ECDSA key: %w", err)
	}
	return &EcKey{key: k}, nil
}

// GenerateRSAKey generates a fresh RSA key. PS256 requires at least 2048 bits.
func GenerateRSAKey(bits int) (*RsaKey, error) {
	k, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, fmt.Errorf("failed to generate RSA key: %w", err)
	}
	return &RsaKey{key: k}, nil
}

func (k *EcKey) Algorithm() Algorithm { return AlgorithmES256 }

func (k *EcKey) Sign(content []byte) ([]byte, error) {
	return sign(AlgorithmES256, k.key, content)
}

func (k *EcKey) Public() PublicKey { return &EcPublicKey{key: &k.key.PublicKey} }

func (k *EcKey) Crypto() crypto.Signer { return k.key }

func (k *EcPublicKey) Algorithm() Algorithm { return AlgorithmES256 }

func (k *EcPublicKey) Verify(content, signature []byte) error {
	return verify(AlgorithmES256, k.key, content, signature)
}

func (k *EcPublicKey) Crypto() crypto.PublicKey { return k.key }

func (k *RsaKey) Algorithm() Algorithm { return AlgorithmPS256 }

func (k *RsaKey) Sign(content []byte) ([]byte, error) {
	return sign(AlgorithmPS256, k.key, content)
}

func (k *RsaKey) Public() PublicKey { return &RsaPublicKey{key: &k.key.PublicKey} }

func (k *RsaKey) Crypto() crypto.Signer { return k.key }

func (k *RsaPublicKey) Algorithm() Algorithm { return AlgorithmPS256 }

func (k *RsaPublicKey) Verify(content, signature []byte) error {
	return verify(AlgorithmPS256, k.key, content, signature)
}

func (k *RsaPublicKey) Crypto() crypto.PublicKey { return k.key }

// sign and verify delegate the signature math to go-cose so the produced
// signatures use the COSE encoding (raw r||s for ECDSA).
func sign(alg Algorithm, key crypto.Signer, content []byte) ([]byte, error) {
	signer, err := cose.NewSigner(alg.COSE(), key)
	if err != nil {
		return nil, err
	}
	return signer.Sign(rand.Reader, content)
}

func verify(alg Algorithm, key crypto.PublicKey, content, signature []byte) error {
	verifier, err := cose.NewVerifier(alg.COSE(), key)
	if err != nil {
		return err
	}
	return verifier.Verify(content, signature)
}
