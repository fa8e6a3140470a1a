package trust

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fancl20/hcert/pkg/chain"
)

// ClockSkew is the tolerance applied to both ends of a trust list window.
const ClockSkew = 300 * time.Second

// Errors
var (
	ErrMalformedEnvelope  = errors.New("malformed trust list envelope")
	ErrMissingKid         = errors.New("trust list has no kid")
	ErrSignatureInvalid   = errors.New("trust list signature invalid")
	ErrUnsupportedVersion = errors.New("unsupported trust list version")
	ErrNotYetValid        = errors.New("trust list not yet valid")
	ErrExpired            = errors.New("trust list expired")
	ErrConflict           = errors.New("conflicting trust list")
	ErrNotFound           = errors.New("trust list not found")
)

// Error describes a rejected trust list. It wraps one of the package errors.
type Error struct {
	KID     []byte
	Version int64
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("trust list (kid %x, version %d): %v", e.KID, e.Version, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Options configures trust list encoding and decoding.
type Options struct {
	// Clock returns the current time. Defaults to time.Now.
	Clock func() time.Time
	// Validity is the window length of encoded trust lists. Defaults to
	// DefaultValidity.
	Validity time.Duration
	// Logger defaults to a no-op logger.
	Logger *zap.Logger
}

// DefaultValidity is the window length of encoded trust lists.
const DefaultValidity = 48 * time.Hour

// InitDefaults initializes the default values for the options.
func (o *Options) InitDefaults() {
	if o.Clock == nil {
		o.Clock = time.Now
	}
	if o.Validity == 0 {
		o.Validity = DefaultValidity
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}

// Decoder verifies signed trust lists against a set of trust anchors.
type Decoder struct {
	roots chain.CertificateRepository
	opts  Options
}

// NewDecoder creates a decoder trusting the signers in roots.
func NewDecoder(roots chain.CertificateRepository, opts Options) *Decoder {
	opts.InitDefaults()
	return &Decoder{roots: roots, opts: opts}
}

// Decode verifies raw and returns the trusted certificates it carries. The
// signature is checked before the version or the window is looked at. Any
// failure rejects the whole list.
func (d *Decoder) Decode(raw []byte) ([]TrustedCertificate, error) {
	env, err := Parse(raw)
	if err != nil {
		return nil, &Error{Err: err}
	}
	fail := func(err error) error {
		return &Error{KID: env.KID, Version: env.Version, Err: err}
	}

	if err := d.verify(env); err != nil {
		return nil, fail(err)
	}

	var certs []TrustedCertificate
	switch env.Version {
	case 1:
		var list TrustListV1
		if err := decMode.Unmarshal(env.Payload(), &list); err != nil {
			return nil, fail(fmt.Errorf("%w: payload: %v", ErrMalformedEnvelope, err))
		}
		if err := d.checkWindow(Window{From: unix(list.ValidFrom), Until: unix(list.ValidUntil)}); err != nil {
			return nil, fail(err)
		}
		certs = list.Certificates
	case 2:
		w, err := env.Window()
		if err != nil {
			return nil, fail(err)
		}
		if err := d.checkWindow(w); err != nil {
			return nil, fail(err)
		}
		var list TrustListV2
		if err := decMode.Unmarshal(env.Payload(), &list); err != nil {
			return nil, fail(fmt.Errorf("%w: payload: %v", ErrMalformedEnvelope, err))
		}
		certs = list.Certificates
	default:
		return nil, fail(fmt.Errorf("%w: %d", ErrUnsupportedVersion, env.Version))
	}
	d.opts.Logger.Debug("Trust list accepted",
		zap.Binary("kid", env.KID),
		zap.Int64("version", env.Version),
		zap.Int("certificates", len(certs)),
	)
	return certs, nil
}

// Authenticate checks the signature and version of raw without looking at
// its window, so lists published ahead of their window are accepted.
func (d *Decoder) Authenticate(raw []byte) (*Envelope, error) {
	env, err := Parse(raw)
	if err != nil {
		return nil, &Error{Err: err}
	}
	if err := d.verify(env); err != nil {
		return nil, &Error{KID: env.KID, Version: env.Version, Err: err}
	}
	if env.Version != 1 && env.Version != 2 {
		return nil, &Error{KID: env.KID, Version: env.Version, Err: fmt.Errorf("%w: %d", ErrUnsupportedVersion, env.Version)}
	}
	return env, nil
}

// verify tries every trust anchor matching the envelope kid. A kid match is
// a filter only; the first candidate whose key verifies wins.
func (d *Decoder) verify(env *Envelope) error {
	lookup, err := d.roots.LoadTrustedCertificates(env.KID)
	if err != nil {
		return fmt.Errorf("failed to load trust anchors: %w", err)
	}
	for i, cand := range lookup.Certificates {
		key, err := cand.PublicKey()
		if err != nil {
			d.opts.Logger.Debug("Skipping trust anchor", zap.Int("candidate", i), zap.Error(err))
			continue
		}
		if err := env.Verify(key); err != nil {
			d.opts.Logger.Debug("Trust anchor did not verify", zap.Int("candidate", i), zap.Error(err))
			continue
		}
		return nil
	}
	return fmt.Errorf("%w: %d candidate(s) for kid %x", ErrSignatureInvalid, len(lookup.Certificates), env.KID)
}

func (d *Decoder) checkWindow(w Window) error {
	now := d.opts.Clock()
	if w.From.After(now.Add(ClockSkew)) {
		return fmt.Errorf("%w: valid from %s", ErrNotYetValid, w.From.Format(time.RFC3339))
	}
	if w.Until.Before(now.Add(-ClockSkew)) {
		return fmt.Errorf("%w: valid until %s", ErrExpired, w.Until.Format(time.RFC3339))
	}
	return nil
}
