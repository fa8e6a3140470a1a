// Package schema validates health certificate payloads against the versioned
// DCC JSON schemas.
package schema

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"sync"

	gocache "github.com/patrickmn/go-cache"
	"github.com/xeipuuv/gojsonschema"
)

//go:embed json
var embedded embed.FS

// Embedded returns the schemas shipped with this package.
func Embedded() fs.FS {
	return embedded
}

const schemaDir = "json/schema"

var versionPattern = regexp.MustCompile(`^[0-9]+\.[0-9]+\.[0-9]+$`)

// Loader reads and compiles the combined schema of a version from
// json/schema/<version>/DCC.combined-schema.json.
type Loader struct {
	fsys fs.FS
}

// NewLoader creates a loader reading from fsys.
func NewLoader(fsys fs.FS) *Loader {
	return &Loader{fsys: fsys}
}

// Versions lists the schema versions available to the loader.
func (l *Loader) Versions() ([]string, error) {
	entries, err := fs.ReadDir(l.fsys, schemaDir)
	if err != nil {
		return nil, err
	}
	var versions []string
	for _, e := range entries {
		if e.IsDir() && versionPattern.MatchString(e.Name()) {
			versions = append(versions, e.Name())
		}
	}
	sort.Strings(versions)
	return versions, nil
}

// Load compiles the schema of version. It returns an error wrapping
// fs.ErrNotExist if there is no such schema.
func (l *Loader) Load(version string) (*gojsonschema.Schema, error) {
	if !versionPattern.MatchString(version) {
		return nil, fmt.Errorf("invalid schema version %q: %w", version, fs.ErrNotExist)
	}
	raw, err := fs.ReadFile(l.fsys, path.Join(schemaDir, version, "DCC.combined-schema.json"))
	if err != nil {
		return nil, err
	}
	sl := gojsonschema.NewSchemaLoader()
	sl.Draft = gojsonschema.Draft7
	sl.AutoDetect = false
	s, err := sl.Compile(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema %s: %w", version, err)
	}
	return s, nil
}

// Cache holds compiled schemas by version. A schema is compiled once on
// first use and shared afterwards.
type Cache struct {
	loader *Loader
	mu     sync.Mutex
	c      *gocache.Cache
}

// NewCache creates an empty cache over loader.
func NewCache(loader *Loader) *Cache {
	return &Cache{
		loader: loader,
		c:      gocache.New(gocache.NoExpiration, 0),
	}
}

// Validator returns the compiled schema of version.
func (c *Cache) Validator(version string) (*gojsonschema.Schema, error) {
	if v, ok := c.c.Get(version); ok {
		return v.(*gojsonschema.Schema), nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.c.Get(version); ok {
		return v.(*gojsonschema.Schema), nil
	}
	s, err := c.loader.Load(version)
	if err != nil {
		return nil, err
	}
	c.c.Set(version, s, gocache.NoExpiration)
	return s, nil
}

// Preload compiles every version known to the loader.
func (c *Cache) Preload() error {
	versions, err := c.loader.Versions()
	if err != nil {
		return err
	}
	var errs []error
	for _, v := range versions {
		if _, err := c.Validator(v); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
