package schema

import (
	"errors"
	"fmt"
	"io/fs"
	"sync"
	"testing"
	"testing/fstest"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/go-cmp/cmp"
	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func vaccination(ver, dob string) map[string]any {
	return map[string]any{
		"ver": ver,
		"nam": map[string]any{
			"fn":  "Musterfrau-Gößinger",
			"fnt": "MUSTERFRAU<GOESSINGER",
			"gn":  "Gabriele",
			"gnt": "GABRIELE",
		},
		"dob": dob,
		"v": []any{map[string]any{
			"tg": "840539006",
			"vp": "1119349007",
			"mp": "EU/1/20/1528",
			"ma": "ORG-100030215",
			"dn": 1,
			"sd": 2,
			"dt": "2021-02-18",
			"co": "AT",
			"is": "Ministry of Health, Austria",
			"ci": "URN:UVCI:01:AT:10807843F94AEE0EE5093FBC254BD813#B",
		}},
	}
}

func encode(t *testing.T, v any) []byte {
	t.Helper()
	raw, err := cbor.Marshal(v)
	if err != nil {
		t.Fatalf("cbor.Marshal failed: %v", err)
	}
	return raw
}

func newObservedService() (*Service, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.WarnLevel)
	return NewService(WithLogger(zap.New(core))), logs
}

func TestValidate(t *testing.T) {
	svc, logs := newObservedService()
	for _, ver := range []string{"1.0.0", "1.2.0", "1.2.1", "1.3.0"} {
		t.Run(ver, func(t *testing.T) {
			gc, err := svc.Validate(encode(t, vaccination(ver, "1998-02-26")))
			if err != nil {
				t.Fatalf("Validate failed: %v", err)
			}
			want := &GreenCertificate{
				SchemaVersion: ver,
				Subject: Person{
					FamilyName:               "Musterfrau-Gößinger",
					FamilyNameTransliterated: "MUSTERFRAU<GOESSINGER",
					GivenName:                "Gabriele",
					GivenNameTransliterated:  "GABRIELE",
				},
				DateOfBirth: "1998-02-26",
				Vaccinations: []Vaccination{{
					Target:                "840539006",
					Vaccine:               "1119349007",
					MedicinalProduct:      "EU/1/20/1528",
					AuthorizationHolder:   "ORG-100030215",
					DoseNumber:            1,
					DoseTotalNumber:       2,
					Date:                  "2021-02-18",
					Country:               "AT",
					CertificateIssuer:     "Ministry of Health, Austria",
					CertificateIdentifier: "URN:UVCI:01:AT:10807843F94AEE0EE5093FBC254BD813#B",
				}},
			}
			if diff := cmp.Diff(want, gc); diff != "" {
				t.Errorf("Validate mismatch (-want +got):\n%s", diff)
			}
		})
	}
	if logs.Len() != 0 {
		t.Errorf("unexpected warnings: %v", logs.All())
	}
}

func TestValidateIgnoresUnknownFields(t *testing.T) {
	payload := vaccination("1.3.0", "1998-02-26")
	payload["xx"] = map[string]any{"nested": true}
	gc, err := NewService().Validate(encode(t, payload))
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if gc.SchemaVersion != "1.3.0" {
		t.Errorf("SchemaVersion got %q, want %q", gc.SchemaVersion, "1.3.0")
	}
}

func TestValidateFallback(t *testing.T) {
	t.Run("older version valid under fallback", func(t *testing.T) {
		svc, logs := newObservedService()
		// Partial dates of birth are only allowed from 1.3.0 on.
		gc, err := svc.Validate(encode(t, vaccination("1.2.1", "1964")))
		if err != nil {
			t.Fatalf("Validate failed: %v", err)
		}
		if gc.DateOfBirth != "1964" {
			t.Errorf("DateOfBirth got %q, want %q", gc.DateOfBirth, "1964")
		}
		warnings := logs.FilterMessage("Payload validated against fallback schema").All()
		if len(warnings) != 1 {
			t.Fatalf("got %d fallback warnings, want 1", len(warnings))
		}
		if got := warnings[0].ContextMap()["declared"]; got != "1.2.1" {
			t.Errorf("declared version got %v, want 1.2.1", got)
		}
	})
	t.Run("older version invalid under fallback", func(t *testing.T) {
		_, err := NewService().Validate(encode(t, vaccination("1.2.1", "1964/05/01")))
		var verr *ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("Validate got %v, want *ValidationError", err)
		}
		if !errors.Is(err, ErrSchemaValidationFailed) {
			t.Errorf("Validate error does not wrap ErrSchemaValidationFailed")
		}
		if verr.Version != FallbackVersion {
			t.Errorf("reported version got %s, want %s", verr.Version, FallbackVersion)
		}
		if !hasError(verr, "pattern", "(root).dob") {
			t.Errorf("missing dob pattern violation in %v", verr.Errors)
		}
	})
	t.Run("current version is terminal", func(t *testing.T) {
		svc, logs := newObservedService()
		payload := vaccination("1.3.0", "1964")
		delete(payload, "nam")
		_, err := svc.Validate(encode(t, payload))
		var verr *ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("Validate got %v, want *ValidationError", err)
		}
		if verr.Version != "1.3.0" {
			t.Errorf("reported version got %s, want 1.3.0", verr.Version)
		}
		if !hasError(verr, "required", "(root)") {
			t.Errorf("missing required violation in %v", verr.Errors)
		}
		if logs.Len() != 0 {
			t.Errorf("unexpected warnings: %v", logs.All())
		}
	})
}

func hasError(verr *ValidationError, keyword, instance string) bool {
	for _, e := range verr.Errors {
		if e.Keyword == keyword && e.Instance == instance {
			return true
		}
	}
	return false
}

func TestValidateRejects(t *testing.T) {
	tests := map[string]struct {
		payload []byte
		want    error
	}{
		"not CBOR": {
			payload: []byte{0xff, 0x00},
			want:    ErrCborDeserializationFailed,
		},
		"not a map": {
			payload: encode(t, []string{"1.3.0"}),
			want:    ErrCborDeserializationFailed,
		},
		"missing version": {
			payload: encode(t, map[string]any{"nam": map[string]any{"fnt": "X"}}),
			want:    ErrCborDeserializationFailed,
		},
		"version not a string": {
			payload: encode(t, map[string]any{"ver": 130}),
			want:    ErrCborDeserializationFailed,
		},
		"unsupported version": {
			payload: encode(t, vaccination("2.0.0", "1998-02-26")),
			want:    ErrSchemaValidationFailed,
		},
		"unsupported older version": {
			payload: encode(t, vaccination("1.1.0", "1998-02-26")),
			want:    ErrSchemaValidationFailed,
		},
	}
	svc := NewService()
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			gc, err := svc.Validate(tc.payload)
			if !errors.Is(err, tc.want) {
				t.Errorf("Validate got %v, want %v", err, tc.want)
			}
			if gc != nil {
				t.Errorf("Validate returned a certificate on error: %+v", gc)
			}
		})
	}
}

func TestCache(t *testing.T) {
	c := NewCache(NewLoader(Embedded()))
	a, err := c.Validator("1.3.0")
	if err != nil {
		t.Fatalf("Validator failed: %v", err)
	}
	b, err := c.Validator("1.3.0")
	if err != nil {
		t.Fatalf("Validator failed: %v", err)
	}
	if a != b {
		t.Error("Validator compiled the same version twice")
	}
	if err := c.Preload(); err != nil {
		t.Errorf("Preload failed: %v", err)
	}
	if _, err := c.Validator("../1.3.0"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("Validator got %v, want %v", err, fs.ErrNotExist)
	}
}

func TestCacheConcurrent(t *testing.T) {
	versions := []string{"1.0.0", "1.2.0", "1.2.1", "1.3.0"}
	payloads := make(map[string][]byte)
	for _, v := range versions {
		payloads[v] = encode(t, vaccination(v, "1998-02-26"))
	}
	// Declares an older version that sorts after 1.3.0 and is not shipped.
	payloads["1.10.0"] = encode(t, vaccination("1.10.0", "1998-02-26"))

	c := NewCache(NewLoader(Embedded()))
	svc := NewService(WithCache(c))

	const workers = 16
	got := make([][]*gojsonschema.Schema, workers)
	errs := make(chan error, workers*(len(versions)+len(payloads)))
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for _, v := range versions {
				s, err := c.Validator(v)
				if err != nil {
					errs <- err
					return
				}
				got[i] = append(got[i], s)
			}
			for v, p := range payloads {
				_, err := svc.Validate(p)
				if v == "1.10.0" {
					if !errors.Is(err, ErrSchemaValidationFailed) {
						errs <- fmt.Errorf("Validate %s got %v, want %v", v, err, ErrSchemaValidationFailed)
					}
					continue
				}
				if err != nil {
					errs <- fmt.Errorf("Validate %s failed: %w", v, err)
				}
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
	for i := range got {
		if len(got[i]) != len(versions) {
			t.Fatalf("worker %d got %d validators, want %d", i, len(got[i]), len(versions))
		}
		for j, v := range versions {
			if got[i][j] != got[0][j] {
				t.Errorf("worker %d got a different validator for %s", i, v)
			}
		}
	}
}

func TestLoader(t *testing.T) {
	versions, err := NewLoader(Embedded()).Versions()
	if err != nil {
		t.Fatalf("Versions failed: %v", err)
	}
	if diff := cmp.Diff([]string{"1.0.0", "1.2.0", "1.2.1", "1.3.0"}, versions); diff != "" {
		t.Errorf("Versions mismatch (-want +got):\n%s", diff)
	}

	broken := NewLoader(fstest.MapFS{
		"json/schema/9.9.9/DCC.combined-schema.json": {Data: []byte(`{"type": 42}`)},
	})
	if _, err := broken.Load("9.9.9"); err == nil || errors.Is(err, fs.ErrNotExist) {
		t.Errorf("Load of invalid schema got %v, want compile error", err)
	}
	if _, err := broken.Load("1.3.0"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("Load of missing schema got %v, want %v", err, fs.ErrNotExist)
	}
}
