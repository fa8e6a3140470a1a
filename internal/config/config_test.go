package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return p
}

func TestLoadDefaults(t *testing.T) {
	c, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if diff := cmp.Diff(Defaults(), c); diff != "" {
		t.Errorf("Load mismatch (-want +got):\n%s", diff)
	}
	if c.TrustList.Version != 2 || c.TrustList.Validity != 48*time.Hour {
		t.Errorf("unexpected trust list defaults: %+v", c.TrustList)
	}
}

func TestLoadYAMLAndEnv(t *testing.T) {
	path := writeFile(t, "hcert.yaml", `
log:
  env: prod
  level: debug
store:
  path: /var/lib/hcert/trust.db
signer:
  key_file: signer.key
  cert_file: signer.crt
trust_list:
  version: 1
  validity: 24h
  anchors: [a.crt, b.crt]
`)
	t.Setenv("HCERT_LOG_LEVEL", "warn")
	t.Setenv("HCERT_TRUST_LIST_ANCHORS", "c.crt, d.crt,")
	envFile := writeFile(t, ".env", "HCERT_LOG_LEVEL=error\nHCERT_STORE_PATH=/tmp/other.db\n")

	// Variables loaded from .env files leak into the process environment.
	t.Cleanup(func() { os.Unsetenv("HCERT_STORE_PATH") })

	c, err := Load(path, envFile, filepath.Join(t.TempDir(), "missing.env"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	want := &Config{}
	want.Log.Env = "prod"
	want.Log.Level = "warn"
	want.Store.Path = "/tmp/other.db"
	want.Signer.KeyFile = "signer.key"
	want.Signer.CertFile = "signer.crt"
	want.TrustList.Version = 1
	want.TrustList.Validity = 24 * time.Hour
	want.TrustList.Anchors = []string{"c.crt", "d.crt"}
	if diff := cmp.Diff(want, c); diff != "" {
		t.Errorf("Load mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := map[string]string{
		"bad yaml":    "log: [",
		"bad version": "trust_list:\n  version: 3\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeFile(t, "hcert.yaml", content)); err == nil {
				t.Error("Load should fail")
			}
		})
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load should fail for a missing file")
	}
}
