package chain

import (
	"bytes"
	"encoding/hex"
	"errors"
	"sync"

	"github.com/fancl20/hcert/pkg/pki"
)

// PrefilledRepository is a CertificateRepository over a fixed set of
// certificates known in advance, e.g. embedded trust anchors.
type PrefilledRepository struct {
	mu    sync.RWMutex
	order []pki.TrustedKey
	byKID map[string][]pki.TrustedKey // hex kid -> candidates
}

var _ CertificateRepository = (*PrefilledRepository)(nil)

// NewPrefilledRepository creates a repository holding certs.
func NewPrefilledRepository(certs ...pki.TrustedKey) *PrefilledRepository {
	r := &PrefilledRepository{
		byKID: make(map[string][]pki.TrustedKey),
	}
	for _, c := range certs {
		r.Add(c)
	}
	return r
}

// Add adds a certificate to the repository. Certificates sharing a kid are
// all kept.
func (r *PrefilledRepository) Add(cert pki.TrustedKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := hex.EncodeToString(cert.KID())
	r.byKID[k] = append(r.byKID[k], cert)
	r.order = append(r.order, cert)
}

// LoadTrustedCertificates returns every certificate whose kid equals kid,
// in insertion order.
func (r *PrefilledRepository) LoadTrustedCertificates(kid []byte) (Lookup, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	candidates := r.byKID[hex.EncodeToString(kid)]
	return NewLookup(append([]pki.TrustedKey(nil), candidates...)), nil
}

// Certificates returns all certificates in insertion order.
func (r *PrefilledRepository) Certificates() []pki.TrustedKey {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]pki.TrustedKey(nil), r.order...)
}

// CryptoServiceRepository exposes the certificate of a CryptoService as a
// single entry repository, so a signer identity can act as a trust root.
type CryptoServiceRepository struct {
	cs CryptoService
}

var _ CertificateRepository = (*CryptoServiceRepository)(nil)

// NewCryptoServiceRepository creates a repository backed by cs.
func NewCryptoServiceRepository(cs CryptoService) *CryptoServiceRepository {
	return &CryptoServiceRepository{cs: cs}
}

// LoadTrustedCertificates returns the service certificate if kid matches.
func (r *CryptoServiceRepository) LoadTrustedCertificates(kid []byte) (Lookup, error) {
	_, result, err := r.cs.VerificationKey(kid)
	if errors.Is(err, ErrUnknownKid) {
		return Lookup{}, nil
	}
	if err != nil {
		return Lookup{}, err
	}
	cert := r.cs.Certificate()
	if !bytes.Equal(cert.KID(), kid) {
		return Lookup{}, nil
	}
	return Lookup{Certificates: []pki.TrustedKey{cert}, Result: &result}, nil
}
