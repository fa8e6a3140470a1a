package chain

import (
	"bytes"
	"crypto"
	"fmt"
	"time"

	"github.com/veraison/go-cose"

	"github.com/fancl20/hcert/pkg/pki"
)

const (
	// DefaultCertificateValidity is the lifetime of randomly generated signer
	// certificates.
	DefaultCertificateValidity = 30 * 24 * time.Hour
	// DefaultRSABits is the RSA modulus size of randomly generated keys.
	DefaultRSABits = 2048
)

// KeyCryptoService is a CryptoService holding its key pair in memory.
// The private key is kept internal and only leaves through PEM export.
type KeyCryptoService struct {
	key  pki.PrivateKey
	pub  pki.PublicKey
	cert *pki.Certificate
	kid  []byte
}

var _ CryptoService = (*KeyCryptoService)(nil)

// NewCryptoService pairs key with cert. The kid and the public key are taken
// from the certificate.
func NewCryptoService(key pki.PrivateKey, cert *pki.Certificate) (*KeyCryptoService, error) {
	pub, err := cert.PublicKey()
	if err != nil {
		return nil, err
	}
	if pub.Algorithm() != key.Algorithm() {
		return nil, fmt.Errorf("certificate algorithm %s does not match key algorithm %s",
			pub.Algorithm(), key.Algorithm())
	}
	if k, ok := pub.Crypto().(interface{ Equal(crypto.PublicKey) bool }); ok && !k.Equal(key.Crypto().Public()) {
		return nil, fmt.Errorf("certificate does not match private key")
	}
	return &KeyCryptoService{
		key:  key,
		pub:  pub,
		cert: cert,
		kid:  cert.KID(),
	}, nil
}

// NewFileBasedCryptoService loads a PKCS #8 private key and its certificate
// from PEM text.
func NewFileBasedCryptoService(keyPEM, certPEM string) (*KeyCryptoService, error) {
	key, err := pki.ParsePrivateKeyPEM(keyPEM)
	if err != nil {
		return nil, fmt.Errorf("failed to load private key: %w", err)
	}
	cert, err := pki.ParseCertificatePEM(certPEM)
	if err != nil {
		return nil, fmt.Errorf("failed to load certificate: %w", err)
	}
	return NewCryptoService(key, cert)
}

// RandomOptions configures randomly generated signer identities.
type RandomOptions struct {
	// Clock returns the current time. Defaults to time.Now.
	Clock func() time.Time
	// Validity of the generated certificate. Defaults to
	// DefaultCertificateValidity.
	Validity time.Duration
	// ContentTypes of the generated certificate. Defaults to all.
	ContentTypes []pki.ContentType
	// RSABits is the modulus size for RSA keys. Defaults to DefaultRSABits.
	RSABits int
	// CommonName of the certificate subject.
	CommonName string
}

// InitDefaults initializes the default values for the options.
func (o *RandomOptions) InitDefaults() {
	if o.Clock == nil {
		o.Clock = time.Now
	}
	if o.Validity == 0 {
		o.Validity = DefaultCertificateValidity
	}
	if len(o.ContentTypes) == 0 {
		o.ContentTypes = pki.AllContentTypes
	}
	if o.RSABits == 0 {
		o.RSABits = DefaultRSABits
	}
	if o.CommonName == "" {
		o.CommonName = "hcert signer"
	}
}

// NewRandomECCryptoService creates an ephemeral EC P-256 signer with a
// self-signed certificate valid from now.
func NewRandomECCryptoService(opts RandomOptions) (*KeyCryptoService, error) {
	key, err := pki.GenerateECKey()
	if err != nil {
		return nil, err
	}
	return newRandom(key, opts)
}

// NewRandomRSACryptoService creates an ephemeral RSA-PSS signer with a
// self-signed certificate valid from now.
func NewRandomRSACryptoService(opts RandomOptions) (*KeyCryptoService, error) {
	opts.InitDefaults()
	key, err := pki.GenerateRSAKey(opts.RSABits)
	if err != nil {
		return nil, err
	}
	return newRandom(key, opts)
}

func newRandom(key pki.PrivateKey, opts RandomOptions) (*KeyCryptoService, error) {
	opts.InitDefaults()
	now := opts.Clock()
	cert, err := pki.GenerateSelfSigned(key, pki.Template{
		CommonName:   opts.CommonName,
		NotBefore:    now,
		NotAfter:     now.Add(opts.Validity),
		ContentTypes: opts.ContentTypes,
	})
	if err != nil {
		return nil, err
	}
	return NewCryptoService(key, cert)
}

func (s *KeyCryptoService) Headers() cose.ProtectedHeader {
	return cose.ProtectedHeader{
		cose.HeaderLabelAlgorithm: s.key.Algorithm().COSE(),
		cose.HeaderLabelKeyID:     bytes.Clone(s.kid),
	}
}

func (s *KeyCryptoService) SigningKey() pki.PrivateKey {
	return s.key
}

func (s *KeyCryptoService) VerificationKey(kid []byte) (pki.PublicKey, VerificationResult, error) {
	if !bytes.Equal(s.kid, kid) {
		return nil, VerificationResult{}, fmt.Errorf("%w: %x", ErrUnknownKid, kid)
	}
	return s.pub, ResultOf(s.cert), nil
}

func (s *KeyCryptoService) Certificate() *pki.Certificate {
	return s.cert
}

func (s *KeyCryptoService) ExportPrivateKeyPEM() (string, error) {
	return pki.EncodePrivateKeyPEM(s.key)
}

func (s *KeyCryptoService) ExportCertificatePEM() string {
	return pki.EncodeCertificatePEM(s.cert)
}
