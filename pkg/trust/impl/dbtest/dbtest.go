// Package dbtest is a conformance suite for trust.DB implementations.
package dbtest

import (
	"bytes"
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/fancl20/hcert/pkg/chain"
	"github.com/fancl20/hcert/pkg/pki"
	"github.com/fancl20/hcert/pkg/trust"
)

// listsEqual compares two slices of trust lists for equality, ignoring order
func listsEqual(a, b [][]byte) bool {
	a, b = slices.Clone(a), slices.Clone(b)
	slices.SortFunc(a, bytes.Compare)
	slices.SortFunc(b, bytes.Compare)
	return cmp.Equal(a, b)
}

var (
	// DefaultTimeout is the default timeout for running the test harness.
	DefaultTimeout = 5 * time.Second
	// DefaultEpoch is the default start of the generated trust list windows.
	DefaultEpoch = time.Date(2021, 6, 1, 12, 0, 0, 0, time.UTC)
)

// Config holds the configuration for the trust database testing harness.
type Config struct {
	Timeout time.Duration
	Epoch   time.Time
}

// InitDefaults initializes the default values for the config.
func (cfg *Config) InitDefaults() {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Epoch.IsZero() {
		cfg.Epoch = DefaultEpoch
	}
}

// TestableDB extends the trust db interface with methods that are needed for testing.
type TestableDB interface {
	trust.DB
	// Prepare should reset the internal state so that the db is empty and is ready to be tested.
	Prepare(*testing.T, context.Context)
}

// Run should be used to test any implementation of the trust.DB interface.
// An implementation interface should at least have one test method that calls
// this test-suite.
func Run(t *testing.T, db TestableDB, cfg Config) {
	cfg.InitDefaults()
	tests := map[string]func(*testing.T, trust.DB, Config){
		"test insert":     testInsert,
		"test latest":     testLatest,
		"test trust list": testTrustLists,
		"test repository": testRepository,
		"test verified":   testVerifiedInsert,
	}
	// Run test suite on DB directly.
	for name, test := range tests {
		t.Run("DB: "+name, func(t *testing.T) {
			ctx, cancelF := context.WithTimeout(context.Background(), cfg.Timeout)
			defer cancelF()
			db.Prepare(t, ctx)
			test(t, db, cfg)
			db.Close()
		})
	}
}

type fixture struct {
	signer  *chain.KeyCryptoService
	entries []pki.TrustedKey
	v1      *trust.EncoderV1
	v2      *trust.EncoderV2
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	opts := chain.RandomOptions{Clock: func() time.Time { return cfg.Epoch }}
	signer, err := chain.NewRandomECCryptoService(opts)
	if err != nil {
		t.Fatalf("Failed to create signer: %v", err)
	}
	issuer, err := chain.NewRandomECCryptoService(opts)
	if err != nil {
		t.Fatalf("Failed to create issuer: %v", err)
	}
	topts := trust.Options{Clock: func() time.Time { return cfg.Epoch }}
	return &fixture{
		signer:  signer,
		entries: []pki.TrustedKey{issuer.Certificate()},
		v1:      trust.NewEncoderV1(signer, topts),
		v2:      trust.NewEncoderV2(signer, topts),
	}
}

func (f *fixture) window(cfg Config, day int) trust.Window {
	from := cfg.Epoch.Add(time.Duration(day) * 24 * time.Hour)
	return trust.Window{From: from, Until: from.Add(48 * time.Hour)}
}

func (f *fixture) encodeV1(t *testing.T, w trust.Window) []byte {
	t.Helper()
	raw, err := f.v1.EncodeWindow(f.entries, w)
	if err != nil {
		t.Fatalf("EncodeWindow failed: %v", err)
	}
	return raw
}

func (f *fixture) encodeV2(t *testing.T, w trust.Window) []byte {
	t.Helper()
	content, err := f.v2.EncodeContent(f.entries)
	if err != nil {
		t.Fatalf("EncodeContent failed: %v", err)
	}
	raw, err := f.v2.EncodeSignatureWindow(content, w)
	if err != nil {
		t.Fatalf("EncodeSignatureWindow failed: %v", err)
	}
	return raw
}

func testInsert(t *testing.T, db trust.DB, cfg Config) {
	f := newFixture(t, cfg)
	list := f.encodeV1(t, f.window(cfg, 0))

	ctx, cancelF := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancelF()

	in, err := db.InsertTrustList(ctx, list)
	if err != nil {
		t.Fatalf("InsertTrustList failed: %v", err)
	}
	if !in {
		t.Fatal("InsertTrustList should return true for new trust list")
	}

	t.Run("Insert existing", func(t *testing.T) {
		in, err := db.InsertTrustList(ctx, list)
		if err != nil {
			t.Errorf("InsertTrustList failed: %v", err)
		}
		if in {
			t.Error("InsertTrustList should return false for existing trust list")
		}
	})
	t.Run("Insert existing modified", func(t *testing.T) {
		// Signing is randomized, so the same content and window produce
		// different bytes.
		resigned := f.encodeV1(t, f.window(cfg, 0))
		in, err := db.InsertTrustList(ctx, resigned)
		if !errors.Is(err, trust.ErrConflict) {
			t.Errorf("InsertTrustList should return ErrConflict for modified trust list, got %v", err)
		}
		if in {
			t.Error("InsertTrustList should return false for modified trust list")
		}
	})
	t.Run("Insert garbage", func(t *testing.T) {
		in, err := db.InsertTrustList(ctx, []byte("not a trust list"))
		if !errors.Is(err, trust.ErrMalformedEnvelope) {
			t.Errorf("InsertTrustList should return ErrMalformedEnvelope, got %v", err)
		}
		if in {
			t.Error("InsertTrustList should return false for garbage")
		}
	})
	t.Run("Insert version 2", func(t *testing.T) {
		in, err := db.InsertTrustList(ctx, f.encodeV2(t, f.window(cfg, 1)))
		if err != nil {
			t.Errorf("InsertTrustList failed: %v", err)
		}
		if !in {
			t.Error("InsertTrustList should return true for new trust list")
		}
	})
}

func testLatest(t *testing.T, db trust.DB, cfg Config) {
	f := newFixture(t, cfg)
	day0 := f.encodeV1(t, f.window(cfg, 0))
	day2 := f.encodeV2(t, f.window(cfg, 2))
	day1 := f.encodeV1(t, f.window(cfg, 1))

	ctx, cancelF := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancelF()

	t.Run("Non existing signer", func(t *testing.T) {
		raw, err := db.LatestTrustList(ctx, []byte("unknown!"))
		if err != nil {
			t.Errorf("LatestTrustList failed: %v", err)
		}
		if raw != nil {
			t.Errorf("LatestTrustList should return nil for unknown signer, got %x", raw)
		}
	})
	t.Run("Latest single", func(t *testing.T) {
		if _, err := db.InsertTrustList(ctx, day0); err != nil {
			t.Fatalf("InsertTrustList failed: %v", err)
		}
		raw, err := db.LatestTrustList(ctx, f.signer.Certificate().KID())
		if err != nil {
			t.Errorf("LatestTrustList failed: %v", err)
		}
		if !cmp.Equal(raw, day0) {
			t.Errorf("LatestTrustList should return the inserted trust list, got %x, want %x", raw, day0)
		}
	})
	t.Run("Latest multiple in DB", func(t *testing.T) {
		for _, l := range [][]byte{day2, day1} {
			if _, err := db.InsertTrustList(ctx, l); err != nil {
				t.Fatalf("InsertTrustList failed: %v", err)
			}
		}
		raw, err := db.LatestTrustList(ctx, f.signer.Certificate().KID())
		if err != nil {
			t.Errorf("LatestTrustList failed: %v", err)
		}
		if !cmp.Equal(raw, day2) {
			t.Errorf("LatestTrustList should return the trust list with the latest start, got %x, want %x", raw, day2)
		}
	})
}

// impostor claims the kid of the embedded service but signs with key.
type impostor struct {
	chain.CryptoService
	key pki.PrivateKey
}

func (i impostor) SigningKey() pki.PrivateKey { return i.key }

func testVerifiedInsert(t *testing.T, db trust.DB, cfg Config) {
	f := newFixture(t, cfg)
	other := newFixture(t, cfg)
	dec := trust.NewDecoder(chain.NewCryptoServiceRepository(f.signer), trust.Options{
		Clock: func() time.Time { return cfg.Epoch },
	})
	genuine := f.encodeV1(t, f.window(cfg, 0))
	forger := trust.NewEncoderV1(impostor{CryptoService: f.signer, key: other.signer.SigningKey()}, trust.Options{})
	forged, err := forger.EncodeWindow(f.entries, f.window(cfg, 5))
	if err != nil {
		t.Fatalf("EncodeWindow failed: %v", err)
	}

	ctx, cancelF := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancelF()

	in, err := trust.InsertVerified(ctx, db, dec, genuine)
	if err != nil {
		t.Fatalf("InsertVerified failed: %v", err)
	}
	if !in {
		t.Fatal("InsertVerified should return true for new trust list")
	}
	t.Run("Insert future window", func(t *testing.T) {
		in, err := trust.InsertVerified(ctx, db, dec, f.encodeV2(t, f.window(cfg, 10)))
		if err != nil {
			t.Errorf("InsertVerified failed: %v", err)
		}
		if !in {
			t.Error("InsertVerified should accept a list ahead of its window")
		}
	})
	t.Run("Insert forged", func(t *testing.T) {
		in, err := trust.InsertVerified(ctx, db, dec, forged)
		if !errors.Is(err, trust.ErrSignatureInvalid) {
			t.Errorf("InsertVerified should return ErrSignatureInvalid, got %v", err)
		}
		if in {
			t.Error("InsertVerified should return false for forged trust list")
		}
		lists, err := db.TrustLists(ctx, trust.Query{SignerKID: f.signer.Certificate().KID()})
		if err != nil {
			t.Fatalf("TrustLists failed: %v", err)
		}
		for _, l := range lists {
			if bytes.Equal(l, forged) {
				t.Error("forged trust list was stored")
			}
		}
	})
}

func testTrustLists(t *testing.T, db trust.DB, cfg Config) {
	bern := newFixture(t, cfg)
	geneva := newFixture(t, cfg)
	bern0 := bern.encodeV1(t, bern.window(cfg, 0))
	bern3 := bern.encodeV2(t, bern.window(cfg, 3))
	geneva0 := geneva.encodeV2(t, geneva.window(cfg, 0))

	ctx, cancelF := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancelF()

	for _, l := range [][]byte{bern0, bern3, geneva0} {
		if _, err := db.InsertTrustList(ctx, l); err != nil {
			t.Fatalf("InsertTrustList failed: %v", err)
		}
	}

	at := func(d time.Duration) trust.Window {
		ts := cfg.Epoch.Add(d)
		return trust.Window{From: ts, Until: ts}
	}
	tests := map[string]struct {
		query trust.Query
		want  [][]byte
	}{
		"All trust lists": {
			query: trust.Query{},
			want:  [][]byte{bern0, bern3, geneva0},
		},
		"Trust lists of a signer": {
			query: trust.Query{SignerKID: bern.signer.Certificate().KID()},
			want:  [][]byte{bern0, bern3},
		},
		"Active trust lists in a given time": {
			query: trust.Query{Validity: at(time.Hour)},
			want:  [][]byte{bern0, geneva0},
		},
		"Active trust list of a signer": {
			query: trust.Query{SignerKID: bern.signer.Certificate().KID(), Validity: at(73 * time.Hour)},
			want:  [][]byte{bern3},
		},
		"Query time out of range": {
			query: trust.Query{Validity: at(-time.Second)},
		},
		"Non existing signer": {
			query: trust.Query{SignerKID: []byte("unknown!")},
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			lists, err := db.TrustLists(ctx, tc.query)
			if err != nil {
				t.Errorf("TrustLists failed: %v", err)
			}
			if !listsEqual(lists, tc.want) {
				t.Errorf("TrustLists returned %d lists, want %d", len(lists), len(tc.want))
			}
		})
	}
}

func testRepository(t *testing.T, db trust.DB, cfg Config) {
	f := newFixture(t, cfg)

	ctx, cancelF := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancelF()

	if _, err := db.InsertTrustList(ctx, f.encodeV2(t, f.window(cfg, 0))); err != nil {
		t.Fatalf("InsertTrustList failed: %v", err)
	}
	dec := trust.NewDecoder(chain.NewCryptoServiceRepository(f.signer), trust.Options{
		Clock: func() time.Time { return cfg.Epoch.Add(time.Hour) },
	})

	t.Run("Load stored", func(t *testing.T) {
		repo, err := trust.LoadRepository(ctx, db, f.signer.Certificate().KID(), dec)
		if err != nil {
			t.Fatalf("LoadRepository failed: %v", err)
		}
		kid := f.entries[0].KID()
		lookup, err := repo.LoadTrustedCertificates(kid)
		if err != nil {
			t.Fatalf("LoadTrustedCertificates failed: %v", err)
		}
		if len(lookup.Certificates) != 1 {
			t.Fatalf("LoadTrustedCertificates returned %d candidates, want 1", len(lookup.Certificates))
		}
		if got := lookup.Certificates[0].KID(); !cmp.Equal(got, kid) {
			t.Errorf("candidate kid got %x, want %x", got, kid)
		}
	})
	t.Run("Load unknown signer", func(t *testing.T) {
		_, err := trust.LoadRepository(ctx, db, []byte("unknown!"), dec)
		if !errors.Is(err, trust.ErrNotFound) {
			t.Errorf("LoadRepository should return ErrNotFound, got %v", err)
		}
	})
}
