package pki

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func generate(t *testing.T, key PrivateKey, types ...ContentType) *Certificate {
	t.Helper()
	now := time.Date(2021, 6, 1, 12, 0, 0, 500, time.UTC)
	cert, err := GenerateSelfSigned(key, Template{
		CommonName:   "Test Signer",
		Country:      "AT",
		NotBefore:    now,
		NotAfter:     now.Add(24 * time.Hour),
		ContentTypes: types,
	})
	if err != nil {
		t.Fatalf("GenerateSelfSigned failed: %v", err)
	}
	return cert
}

func TestGenerateSelfSigned(t *testing.T) {
	key, err := GenerateECKey()
	if err != nil {
		t.Fatalf("GenerateECKey failed: %v", err)
	}
	cert := generate(t, key, ContentTypeVaccination)

	wantFrom := time.Date(2021, 6, 1, 12, 0, 0, 0, time.UTC)
	if !cert.ValidFrom().Equal(wantFrom) {
		t.Errorf("ValidFrom got %v, want %v", cert.ValidFrom(), wantFrom)
	}
	if !cert.ValidUntil().Equal(wantFrom.Add(24 * time.Hour)) {
		t.Errorf("ValidUntil got %v, want %v", cert.ValidUntil(), wantFrom.Add(24*time.Hour))
	}
	if got := cert.X509().Subject.CommonName; got != "Test Signer" {
		t.Errorf("CommonName got %q, want %q", got, "Test Signer")
	}
	x := cert.X509()
	if err := x.CheckSignature(x.SignatureAlgorithm, x.RawTBSCertificate, x.Signature); err != nil {
		t.Errorf("certificate is not self-signed: %v", err)
	}
	pub, err := cert.PublicKey()
	if err != nil {
		t.Fatalf("PublicKey failed: %v", err)
	}
	if pub.Algorithm() != AlgorithmES256 {
		t.Errorf("Algorithm got %v, want %v", pub.Algorithm(), AlgorithmES256)
	}

	if _, err := GenerateSelfSigned(key, Template{
		NotBefore: wantFrom,
		NotAfter:  wantFrom.Add(-time.Second),
	}); err == nil {
		t.Error("GenerateSelfSigned accepted a validity ending before it starts")
	}
}

func TestContentTypes(t *testing.T) {
	key, err := GenerateECKey()
	if err != nil {
		t.Fatalf("GenerateECKey failed: %v", err)
	}
	tests := map[string]struct {
		types []ContentType
		want  []ContentType
	}{
		"none means all": {
			want: AllContentTypes,
		},
		"single": {
			types: []ContentType{ContentTypeTest},
			want:  []ContentType{ContentTypeTest},
		},
		"canonical order": {
			types: []ContentType{ContentTypeRecovery, ContentTypeVaccination},
			want:  []ContentType{ContentTypeVaccination, ContentTypeRecovery},
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			cert := generate(t, key, tc.types...)
			if diff := cmp.Diff(tc.want, cert.ContentTypes()); diff != "" {
				t.Errorf("ContentTypes mismatch (-want +got):\n%s", diff)
			}
		})
	}

	if _, err := ParseContentType("x"); err == nil {
		t.Error("ParseContentType accepted an unknown tag")
	}
}

func TestKeyID(t *testing.T) {
	key, err := GenerateECKey()
	if err != nil {
		t.Fatalf("GenerateECKey failed: %v", err)
	}
	cert := generate(t, key)
	if len(cert.KID()) != KIDLength {
		t.Fatalf("KID length got %d, want %d", len(cert.KID()), KIDLength)
	}
	if !cmp.Equal(cert.KID(), KeyID(cert.Raw())) {
		t.Error("KID is not derived from the DER encoding")
	}

	parsed, err := ParseCertificatePEM(EncodeCertificatePEM(cert))
	if err != nil {
		t.Fatalf("ParseCertificatePEM failed: %v", err)
	}
	if !cmp.Equal(cert.KID(), parsed.KID()) {
		t.Errorf("KID changed across PEM round-trip: got %x, want %x", parsed.KID(), cert.KID())
	}

	// Mutating the returned kid must not affect the certificate.
	kid := cert.KID()
	kid[0] ^= 0xFF
	if cmp.Equal(kid, cert.KID()) {
		t.Error("KID returned internal state")
	}

	other := generate(t, key)
	if cmp.Equal(cert.KID(), other.KID()) {
		t.Error("distinct certificates share a kid")
	}
}
