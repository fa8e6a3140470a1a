package trust

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/fancl20/hcert/pkg/chain"
	"github.com/fancl20/hcert/pkg/pki"
)

// Repository is a CertificateRepository backed by a signed trust list. The
// list is verified against the trust anchors on first use. A successful
// result is cached; failures are returned and retried on the next call.
type Repository struct {
	signed  []byte
	decoder *Decoder
	log     *zap.Logger

	mu     sync.Mutex
	loaded atomic.Pointer[chain.PrefilledRepository]
}

var _ chain.CertificateRepository = (*Repository)(nil)

// NewRepository creates a repository over the signed trust list, trusting
// the signers in roots.
func NewRepository(signed []byte, roots chain.CertificateRepository, opts Options) *Repository {
	return newRepository(signed, NewDecoder(roots, opts))
}

func newRepository(signed []byte, dec *Decoder) *Repository {
	return &Repository{
		signed:  signed,
		decoder: dec,
		log:     dec.opts.Logger,
	}
}

// LoadTrustedCertificates returns the trust list entries matching kid.
func (r *Repository) LoadTrustedCertificates(kid []byte) (chain.Lookup, error) {
	certs, err := r.load()
	if err != nil {
		return chain.Lookup{}, err
	}
	return certs.LoadTrustedCertificates(kid)
}

// Certificates returns every entry of the trust list.
func (r *Repository) Certificates() ([]pki.TrustedKey, error) {
	certs, err := r.load()
	if err != nil {
		return nil, err
	}
	return certs.Certificates(), nil
}

func (r *Repository) load() (*chain.PrefilledRepository, error) {
	if certs := r.loaded.Load(); certs != nil {
		return certs, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if certs := r.loaded.Load(); certs != nil {
		return certs, nil
	}
	list, err := r.decoder.Decode(r.signed)
	if err != nil {
		r.log.Warn("Rejected trust list", zap.Error(err))
		return nil, err
	}
	keys := make([]pki.TrustedKey, len(list))
	for i := range list {
		keys[i] = &list[i]
	}
	certs := chain.NewPrefilledRepository(keys...)
	r.loaded.Store(certs)
	return certs, nil
}
