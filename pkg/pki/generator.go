package pki

import (
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"fmt"
	"math/big"
	"time"
)

// Template describes a self-signed signer certificate.
type Template struct {
	CommonName   string
	Country      string
	NotBefore    time.Time
	NotAfter     time.Time
	ContentTypes []ContentType
}

// GenerateSelfSigned creates a self-signed certificate for key.
// Validity is truncated to whole seconds, the precision of X.509 times.
func GenerateSelfSigned(key PrivateKey, tpl Template) (*Certificate, error) {
	notBefore := tpl.NotBefore.UTC().Truncate(time.Second)
	notAfter := tpl.NotAfter.UTC().Truncate(time.Second)
	if notAfter.Before(notBefore) {
		return nil, fmt.Errorf("invalid validity: %s is before %s", notAfter, notBefore)
	}

	serialNumberLimit := new(big.Int).Lsh(big.NewInt(1), 128)
	serialNumber, err := rand.Int(rand.Reader, serialNumberLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to generate serial number: %w", err)
	}

	subject := pkix.Name{CommonName: tpl.CommonName}
	if tpl.Country != "" {
		subject.Country = []string{tpl.Country}
	}

	var usages []asn1.ObjectIdentifier
	for _, ct := range tpl.ContentTypes {
		if oid := ct.OID(); oid != nil {
			usages = append(usages, oid)
		}
	}

	var sigAlg x509.SignatureAlgorithm
	switch key.Algorithm() {
	case AlgorithmES256:
		sigAlg = x509.ECDSAWithSHA256
	case AlgorithmPS256:
		sigAlg = x509.SHA256WithRSAPSS
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedKeyType, key.Algorithm())
	}

	signer := key.Crypto()
	cert := x509.Certificate{
		SerialNumber:          serialNumber,
		Subject:               subject,
		Issuer:                subject,
		NotBefore:             notBefore,
		NotAfter:              notAfter,
		KeyUsage:              x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  false,
		SignatureAlgorithm:    sigAlg,
		UnknownExtKeyUsage:    usages,
	}

	der, err := x509.CreateCertificate(rand.Reader, &cert, &cert, signer.Public(), signer)
	if err != nil {
		return nil, fmt.Errorf("failed to create certificate: %w", err)
	}
	return ParseCertificate(der)
}
