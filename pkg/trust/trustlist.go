package trust

import (
	"bytes"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/fancl20/hcert/pkg/pki"
)

// TrustedCertificate is a trust list entry: the verification key of one
// trusted issuer with the window and content types it is trusted for.
type TrustedCertificate struct {
	KeyID []byte   `cbor:"i"`
	From  int64    `cbor:"f"`
	Until int64    `cbor:"u"`
	Types []string `cbor:"c"`
	Key   COSEKey  `cbor:"k"`
}

var _ pki.TrustedKey = (*TrustedCertificate)(nil)

// NewTrustedCertificate exports key as a trust list entry.
func NewTrustedCertificate(key pki.TrustedKey) (TrustedCertificate, error) {
	pub, err := key.PublicKey()
	if err != nil {
		return TrustedCertificate{}, err
	}
	ck, err := NewCOSEKey(pub)
	if err != nil {
		return TrustedCertificate{}, err
	}
	var types []string
	for _, ct := range key.ContentTypes() {
		types = append(types, string(ct))
	}
	return TrustedCertificate{
		KeyID: key.KID(),
		From:  key.ValidFrom().Unix(),
		Until: key.ValidUntil().Unix(),
		Types: types,
		Key:   ck,
	}, nil
}

func (c *TrustedCertificate) KID() []byte { return bytes.Clone(c.KeyID) }

func (c *TrustedCertificate) ValidFrom() time.Time { return time.Unix(c.From, 0).UTC() }

func (c *TrustedCertificate) ValidUntil() time.Time { return time.Unix(c.Until, 0).UTC() }

// ContentTypes returns the content types of the entry. Unknown tags are
// skipped.
func (c *TrustedCertificate) ContentTypes() []pki.ContentType {
	var types []pki.ContentType
	for _, t := range c.Types {
		if ct, err := pki.ParseContentType(t); err == nil {
			types = append(types, ct)
		}
	}
	return types
}

func (c *TrustedCertificate) PublicKey() (pki.PublicKey, error) {
	return c.Key.PublicKey()
}

// TrustListV1 is the payload of a version 1 trust list. The validity window
// is part of the payload.
type TrustListV1 struct {
	ValidFrom    int64                `cbor:"f"`
	ValidUntil   int64                `cbor:"u"`
	Certificates []TrustedCertificate `cbor:"c"`
}

// TrustListV2 is the payload of a version 2 trust list. The validity window
// is carried in the protected header of the envelope.
type TrustListV2 struct {
	Certificates []TrustedCertificate `cbor:"c"`
}

// Window is a validity period, both ends inclusive.
type Window struct {
	From  time.Time
	Until time.Time
}

// Contains reports whether t lies within the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.From) && !t.After(w.Until)
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	if encMode, err = cbor.CoreDetEncOptions().EncMode(); err != nil {
		panic(err)
	}
	if decMode, err = (cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyEnforcedAPF,
		IndefLength: cbor.IndefLengthForbidden,
	}).DecMode(); err != nil {
		panic(err)
	}
}

func exportCertificates(keys []pki.TrustedKey) ([]TrustedCertificate, error) {
	certs := make([]TrustedCertificate, 0, len(keys))
	for _, k := range keys {
		c, err := NewTrustedCertificate(k)
		if err != nil {
			return nil, err
		}
		certs = append(certs, c)
	}
	return certs, nil
}
