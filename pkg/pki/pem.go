package pki

import (
	"crypto"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/pem"
	"fmt"
)

const (
	pemTypeCertificate = "CERTIFICATE"
	pemTypePrivateKey  = "PRIVATE KEY"
)

var (
	oidPublicKeyECDSA = asn1.ObjectIdentifier{1, 2, 840, 10045, 2, 1}
	oidPublicKeyRSA   = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 1}
)

// privateKeyInfo is the PKCS #8 PrivateKeyInfo structure. Optional
// attributes are not read.
type privateKeyInfo struct {
	Version    int
	Algo       pkix.AlgorithmIdentifier
	PrivateKey []byte
}

// ParseCertificatePEM parses a single PEM encoded certificate.
func ParseCertificatePEM(data string) (*Certificate, error) {
	der, err := decodePEM(data, pemTypeCertificate)
	if err != nil {
		return nil, err
	}
	return ParseCertificate(der)
}

// ParsePrivateKeyPEM parses a PEM encoded PKCS #8 private key. The key
// family is selected by the algorithm OID of the PrivateKeyInfo: ECDSA keys
// must be on P-256 and are used with ES256, RSA keys are used with PS256.
func ParsePrivateKeyPEM(data string) (PrivateKey, error) {
	der, err := decodePEM(data, pemTypePrivateKey)
	if err != nil {
		return nil, err
	}
	var info privateKeyInfo
	if _, err := asn1.Unmarshal(der, &info); err != nil {
		return nil, fmt.Errorf("%w: private key info: %v", ErrInvalidPEM, err)
	}

	switch oid := info.Algo.Algorithm; {
	case oid.Equal(oidPublicKeyECDSA), oid.Equal(oidPublicKeyRSA):
	default:
		return nil, fmt.Errorf("%w: algorithm %s", ErrUnsupportedKeyType, oid)
	}

	key, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPEM, err)
	}
	signer, ok := key.(crypto.Signer)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedKeyType, key)
	}
	return NewPrivateKey(signer)
}

// EncodeCertificatePEM returns the PEM armored DER encoding of cert.
func EncodeCertificatePEM(cert *Certificate) string {
	return string(pem.EncodeToMemory(&pem.Block{Type: pemTypeCertificate, Bytes: cert.Raw()}))
}

// EncodePrivateKeyPEM returns key as PEM armored PKCS #8.
func EncodePrivateKeyPEM(key PrivateKey) (string, error) {
	der, err := x509.MarshalPKCS8PrivateKey(key.Crypto())
	if err != nil {
		return "", fmt.Errorf("failed to marshal private key: %w", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: pemTypePrivateKey, Bytes: der})), nil
}

func decodePEM(data, typ string) ([]byte, error) {
	block, _ := pem.Decode([]byte(data))
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block found", ErrInvalidPEM)
	}
	if block.Type != typ {
		return nil, fmt.Errorf("%w: expected %q block, got %q", ErrInvalidPEM, typ, block.Type)
	}
	return block.Bytes, nil
}
