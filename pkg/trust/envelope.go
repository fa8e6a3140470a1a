package trust

import (
	"crypto/rand"
	"fmt"
	"io"
	"time"

	"github.com/veraison/go-cose"

	"github.com/fancl20/hcert/pkg/chain"
	"github.com/fancl20/hcert/pkg/pki"
)

// Protected header labels of trust list envelopes.
const (
	// HeaderLabelVersion carries the trust list format version.
	HeaderLabelVersion int64 = 42
	// HeaderLabelValidFrom carries the start of a version 2 trust list
	// window, in seconds since the epoch. Lists using the CWT claim labels
	// iat (6) and nbf (5) for the window are not readable: in the COSE header
	// registry those labels are IV and Partial IV and must be byte strings.
	HeaderLabelValidFrom int64 = 43
	// HeaderLabelValidUntil carries the end of a version 2 trust list window,
	// in seconds since the epoch.
	HeaderLabelValidUntil int64 = 44
)

// Envelope is a parsed, not yet verified, trust list COSE_Sign1 message.
type Envelope struct {
	msg cose.Sign1Message
	// KID is the kid of the signer from the protected header.
	KID []byte
	// Version is the format version, 0 if the header is absent.
	Version int64
}

// Parse parses raw as a tagged COSE_Sign1 message and extracts the signer
// kid. The signature is not verified.
func Parse(raw []byte) (*Envelope, error) {
	var msg cose.Sign1Message
	if err := msg.UnmarshalCBOR(raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if msg.Payload == nil {
		return nil, fmt.Errorf("%w: detached payload", ErrMalformedEnvelope)
	}
	e := &Envelope{msg: msg}
	if v, ok := msg.Headers.Protected[cose.HeaderLabelKeyID]; ok {
		e.KID, _ = v.([]byte)
	}
	if len(e.KID) == 0 {
		return nil, ErrMissingKid
	}
	if v, ok := headerInt(msg.Headers.Protected, HeaderLabelVersion); ok {
		e.Version = v
	}
	return e, nil
}

// Payload returns the attached payload.
func (e *Envelope) Payload() []byte {
	return e.msg.Payload
}

// Verify checks the signature against key.
func (e *Envelope) Verify(key pki.PublicKey) error {
	return e.msg.Verify(nil, verifier{key: key})
}

// Window returns the validity window of the trust list. For version 1 the
// payload is decoded to find it.
func (e *Envelope) Window() (Window, error) {
	switch e.Version {
	case 1:
		var list TrustListV1
		if err := decMode.Unmarshal(e.msg.Payload, &list); err != nil {
			return Window{}, fmt.Errorf("%w: payload: %v", ErrMalformedEnvelope, err)
		}
		return Window{From: unix(list.ValidFrom), Until: unix(list.ValidUntil)}, nil
	case 2:
		from, ok := headerInt(e.msg.Headers.Protected, HeaderLabelValidFrom)
		if !ok {
			return Window{}, fmt.Errorf("%w: missing valid-from header", ErrMalformedEnvelope)
		}
		until, ok := headerInt(e.msg.Headers.Protected, HeaderLabelValidUntil)
		if !ok {
			return Window{}, fmt.Errorf("%w: missing valid-until header", ErrMalformedEnvelope)
		}
		return Window{From: unix(from), Until: unix(until)}, nil
	}
	return Window{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, e.Version)
}

// seal signs payload with the identity of cs. The version and any extra
// protected headers are added to the headers of cs.
func seal(cs chain.CryptoService, version int64, extra cose.ProtectedHeader, payload []byte) ([]byte, error) {
	msg := &cose.Sign1Message{
		Headers: cose.Headers{
			Protected:   cose.ProtectedHeader{},
			Unprotected: cose.UnprotectedHeader{},
		},
		Payload: payload,
	}
	for k, v := range cs.Headers() {
		msg.Headers.Protected[k] = v
	}
	msg.Headers.Protected[HeaderLabelVersion] = version
	for k, v := range extra {
		msg.Headers.Protected[k] = v
	}
	if err := msg.Sign(rand.Reader, nil, signer{key: cs.SigningKey()}); err != nil {
		return nil, fmt.Errorf("failed to sign trust list: %w", err)
	}
	return msg.MarshalCBOR()
}

// signer adapts a pki.PrivateKey to cose.Signer.
type signer struct {
	key pki.PrivateKey
}

func (s signer) Algorithm() cose.Algorithm { return s.key.Algorithm().COSE() }

func (s signer) Sign(_ io.Reader, content []byte) ([]byte, error) {
	return s.key.Sign(content)
}

// verifier adapts a pki.PublicKey to cose.Verifier.
type verifier struct {
	key pki.PublicKey
}

func (v verifier) Algorithm() cose.Algorithm { return v.key.Algorithm().COSE() }

func (v verifier) Verify(content, signature []byte) error {
	return v.key.Verify(content, signature)
}

// headerInt looks up an integer header value. Decoded CBOR integers surface
// as int64 or uint64 depending on their sign.
func headerInt(h cose.ProtectedHeader, label int64) (int64, bool) {
	switch v := h[label].(type) {
	case int64:
		return v, true
	case uint64:
		if v > 1<<63-1 {
			return 0, false
		}
		return int64(v), true
	case int:
		return int64(v), true
	}
	return 0, false
}

func unix(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}
