// Package config loads the configuration of the trustlist command.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the command configuration. Values are read from a YAML file and
// then overridden by HCERT_* environment variables.
type Config struct {
	Log struct {
		// dev | prod
		Env   string `yaml:"env"`
		Level string `yaml:"level"`
	} `yaml:"log"`

	Store struct {
		// Path of the bbolt trust list database.
		Path string `yaml:"path"`
	} `yaml:"store"`

	Signer struct {
		KeyFile  string `yaml:"key_file"`
		CertFile string `yaml:"cert_file"`
	} `yaml:"signer"`

	TrustList struct {
		Version  int           `yaml:"version"`
		Validity time.Duration `yaml:"validity"`
		// Anchors are PEM certificate files of the trusted trust list
		// signers.
		Anchors []string `yaml:"anchors"`
	} `yaml:"trust_list"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() *Config {
	var c Config
	c.setDefaults()
	return &c
}

// Load reads the YAML file at path, then the given .env files, then applies
// the environment overrides. An empty path skips the file. Missing .env
// files are ignored; variables already set in the environment win over
// them.
func Load(path string, envFiles ...string) (*Config, error) {
	var c Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	c.applyEnvOverrides()
	c.setDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) setDefaults() {
	if c.Log.Env == "" {
		c.Log.Env = "dev"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Store.Path == "" {
		c.Store.Path = "hcert.db"
	}
	if c.TrustList.Version == 0 {
		c.TrustList.Version = 2
	}
	if c.TrustList.Validity == 0 {
		c.TrustList.Validity = 48 * time.Hour
	}
}

// Validate checks the configuration values.
func (c *Config) Validate() error {
	if c.TrustList.Version != 1 && c.TrustList.Version != 2 {
		return fmt.Errorf("unsupported trust list version %d", c.TrustList.Version)
	}
	if c.TrustList.Validity < 0 {
		return fmt.Errorf("negative trust list validity %s", c.TrustList.Validity)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if v, ok := getEnvStr("HCERT_LOG_ENV"); ok {
		c.Log.Env = strings.ToLower(v)
	}
	if v, ok := getEnvStr("HCERT_LOG_LEVEL"); ok {
		c.Log.Level = v
	}
	if v, ok := getEnvStr("HCERT_STORE_PATH"); ok {
		c.Store.Path = v
	}
	if v, ok := getEnvStr("HCERT_SIGNER_KEY_FILE"); ok {
		c.Signer.KeyFile = v
	}
	if v, ok := getEnvStr("HCERT_SIGNER_CERT_FILE"); ok {
		c.Signer.CertFile = v
	}
	if v, ok := getEnvInt("HCERT_TRUST_LIST_VERSION"); ok {
		c.TrustList.Version = v
	}
	if v, ok := getEnvDur("HCERT_TRUST_LIST_VALIDITY"); ok {
		c.TrustList.Validity = v
	}
	if v, ok := getEnvCSV("HCERT_TRUST_LIST_ANCHORS"); ok {
		c.TrustList.Anchors = v
	}
}

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}

func getEnvInt(key string) (int, bool) {
	if s, ok := getEnvStr(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, true
		}
	}
	return 0, false
}

func getEnvDur(key string) (time.Duration, bool) {
	if s, ok := getEnvStr(key); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(s)); err == nil {
			return d, true
		}
	}
	return 0, false
}

func getEnvCSV(key string) ([]string, bool) {
	s, ok := getEnvStr(key)
	if !ok {
		return nil, false
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out, true
}
