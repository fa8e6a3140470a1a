package trust

import (
	"fmt"

	"github.com/veraison/go-cose"
	"go.uber.org/zap"

	"github.com/fancl20/hcert/pkg/chain"
	"github.com/fancl20/hcert/pkg/pki"
)

// EncoderV1 produces version 1 trust lists, where the window is part of the
// signed payload.
type EncoderV1 struct {
	signer chain.CryptoService
	opts   Options
}

// NewEncoderV1 creates an encoder signing with signer.
func NewEncoderV1(signer chain.CryptoService, opts Options) *EncoderV1 {
	opts.InitDefaults()
	return &EncoderV1{signer: signer, opts: opts}
}

// Encode signs certs with a window starting now.
func (e *EncoderV1) Encode(certs []pki.TrustedKey) ([]byte, error) {
	return e.EncodeWindow(certs, defaultWindow(e.opts))
}

// EncodeWindow signs certs with the window w.
func (e *EncoderV1) EncodeWindow(certs []pki.TrustedKey, w Window) ([]byte, error) {
	entries, err := exportCertificates(certs)
	if err != nil {
		return nil, err
	}
	payload, err := encMode.Marshal(TrustListV1{
		ValidFrom:    w.From.Unix(),
		ValidUntil:   w.Until.Unix(),
		Certificates: entries,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode trust list: %w", err)
	}
	raw, err := seal(e.signer, 1, nil, payload)
	if err != nil {
		return nil, err
	}
	logEncoded(e.opts.Logger, e.signer, 1, w, len(entries))
	return raw, nil
}

// EncoderV2 produces version 2 trust lists. Content and signature are
// separate steps so one content can be signed for several windows.
type EncoderV2 struct {
	signer chain.CryptoService
	opts   Options
}

// NewEncoderV2 creates an encoder signing with signer.
func NewEncoderV2(signer chain.CryptoService, opts Options) *EncoderV2 {
	opts.InitDefaults()
	return &EncoderV2{signer: signer, opts: opts}
}

// Encode returns the signed trust list for certs with a window starting now.
func (e *EncoderV2) Encode(certs []pki.TrustedKey) ([]byte, error) {
	content, err := e.EncodeContent(certs)
	if err != nil {
		return nil, err
	}
	return e.EncodeSignature(content)
}

// EncodeContent returns the canonical CBOR payload listing certs.
func (e *EncoderV2) EncodeContent(certs []pki.TrustedKey) ([]byte, error) {
	entries, err := exportCertificates(certs)
	if err != nil {
		return nil, err
	}
	content, err := encMode.Marshal(TrustListV2{Certificates: entries})
	if err != nil {
		return nil, fmt.Errorf("failed to encode trust list: %w", err)
	}
	return content, nil
}

// EncodeSignature signs content with a window starting now.
func (e *EncoderV2) EncodeSignature(content []byte) ([]byte, error) {
	return e.EncodeSignatureWindow(content, defaultWindow(e.opts))
}

// EncodeSignatureWindow signs content with the window w. The window is
// carried in the protected header.
func (e *EncoderV2) EncodeSignatureWindow(content []byte, w Window) ([]byte, error) {
	raw, err := seal(e.signer, 2, cose.ProtectedHeader{
		HeaderLabelValidFrom:  w.From.Unix(),
		HeaderLabelValidUntil: w.Until.Unix(),
	}, content)
	if err != nil {
		return nil, err
	}
	logEncoded(e.opts.Logger, e.signer, 2, w, -1)
	return raw, nil
}

func defaultWindow(opts Options) Window {
	now := opts.Clock()
	return Window{From: now, Until: now.Add(opts.Validity)}
}

func logEncoded(log *zap.Logger, signer chain.CryptoService, version int64, w Window, n int) {
	fields := []zap.Field{
		zap.Binary("kid", signer.Certificate().KID()),
		zap.Int64("version", version),
		zap.Time("valid_from", w.From),
		zap.Time("valid_until", w.Until),
	}
	if n >= 0 {
		fields = append(fields, zap.Int("certificates", n))
	}
	log.Debug("Trust list signed", fields...)
}
