package pki

import (
	"bytes"
	"crypto/sha256"
	"crypto/x509"
	"encoding/asn1"
	"fmt"
	"time"
)

// ContentType is the kind of health certificate a key may sign.
type ContentType string

const (
	// ContentTypeTest marks test certificates.
	ContentTypeTest ContentType = "t"
	// ContentTypeVaccination marks vaccination certificates.
	ContentTypeVaccination ContentType = "v"
	// ContentTypeRecovery marks recovery certificates.
	ContentTypeRecovery ContentType = "r"
)

// AllContentTypes lists every content type in canonical order.
var AllContentTypes = []ContentType{ContentTypeTest, ContentTypeVaccination, ContentTypeRecovery}

// Extended key usages restricting a signer certificate to content types.
var (
	OIDExtKeyUsageTest        = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 1847, 2021, 1, 1}
	OIDExtKeyUsageVaccination = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 1847, 2021, 1, 2}
	OIDExtKeyUsageRecovery    = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 1847, 2021, 1, 3}
)

// OID returns the extended key usage for the content type.
func (c ContentType) OID() asn1.ObjectIdentifier {
	switch c {
	case ContentTypeTest:
		return OIDExtKeyUsageTest
	case ContentTypeVaccination:
		return OIDExtKeyUsageVaccination
	case ContentTypeRecovery:
		return OIDExtKeyUsageRecovery
	}
	return nil
}

// ParseContentType parses a single content type tag.
func ParseContentType(s string) (ContentType, error) {
	switch c := ContentType(s); c {
	case ContentTypeTest, ContentTypeVaccination, ContentTypeRecovery:
		return c, nil
	}
	return "", fmt.Errorf("unknown content type %q", s)
}

// KIDLength is the length of a key identifier in bytes.
const KIDLength = 8

// KeyID derives the key identifier of a DER encoded certificate: the first
// eight bytes of its SHA-256 digest.
func KeyID(der []byte) []byte {
	sum := sha256.Sum256(der)
	return sum[:KIDLength]
}

// Certificate wraps an X.509 certificate with the attributes needed to trust
// it as a health certificate signer.
type Certificate struct {
	cert         *x509.Certificate
	kid          []byte
	publicKey    PublicKey
	contentTypes []ContentType
}

var _ TrustedKey = (*Certificate)(nil)

// NewCertificate wraps cert. The public key must be ECDSA P-256 or RSA.
func NewCertificate(cert *x509.Certificate) (*Certificate, error) {
	pub, err := NewPublicKey(cert.PublicKey)
	if err != nil {
		return nil, err
	}
	if cert.NotAfter.Before(cert.NotBefore) {
		return nil, fmt.Errorf("certificate validity ends before it starts")
	}
	return &Certificate{
		cert:         cert,
		kid:          KeyID(cert.Raw),
		publicKey:    pub,
		contentTypes: contentTypesOf(cert),
	}, nil
}

// ParseCertificate parses a DER encoded certificate.
func ParseCertificate(der []byte) (*Certificate, error) {
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}
	return NewCertificate(cert)
}

func (c *Certificate) KID() []byte { return bytes.Clone(c.kid) }

func (c *Certificate) ValidFrom() time.Time { return c.cert.NotBefore }

func (c *Certificate) ValidUntil() time.Time { return c.cert.NotAfter }

func (c *Certificate) ContentTypes() []ContentType {
	return append([]ContentType(nil), c.contentTypes...)
}

func (c *Certificate) PublicKey() (PublicKey, error) { return c.publicKey, nil }

// X509 returns the wrapped certificate.
func (c *Certificate) X509() *x509.Certificate { return c.cert }

// Raw returns the DER encoding of the certificate.
func (c *Certificate) Raw() []byte { return c.cert.Raw }

// contentTypesOf reads the content-type extended key usages. A certificate
// carrying none of them may sign every content type.
func contentTypesOf(cert *x509.Certificate) []ContentType {
	var types []ContentType
	for _, ct := range AllContentTypes {
		for _, oid := range cert.UnknownExtKeyUsage {
			if oid.Equal(ct.OID()) {
				types = append(types, ct)
				break
			}
		}
	}
	if len(types) == 0 {
		return append([]ContentType(nil), AllContentTypes...)
	}
	return types
}
