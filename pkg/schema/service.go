package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"reflect"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/zap"
)

// FallbackVersion is the schema retried when a payload declaring an older
// version does not validate against it.
const FallbackVersion = "1.3.0"

// Errors
var (
	ErrCborDeserializationFailed = errors.New("CBOR deserialization failed")
	ErrSchemaValidationFailed    = errors.New("schema validation failed")
)

// SchemaError is a single schema violation.
type SchemaError struct {
	// Keyword is the schema keyword that failed, e.g. "required". It is the
	// keyword name only: gojsonschema does not report the schema path.
	Keyword string
	// Instance locates the offending value in the payload.
	Instance    string
	Description string
}

func (e SchemaError) String() string {
	return fmt.Sprintf("%s: %s, %s", e.Keyword, e.Instance, e.Description)
}

// ValidationError reports the violations of the last schema tried.
type ValidationError struct {
	Version string
	Errors  []SchemaError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, se := range e.Errors {
		msgs[i] = se.String()
	}
	return fmt.Sprintf("data does not follow schema %s: [%s]", e.Version, strings.Join(msgs, "; "))
}

func (e *ValidationError) Unwrap() error { return ErrSchemaValidationFailed }

// Service validates CBOR health certificate payloads.
type Service struct {
	cache *Cache
	log   *zap.Logger
	dec   cbor.DecMode
}

// Option configures a Service.
type Option func(*Service)

// WithCache sets the validator cache. Defaults to a cache over the embedded
// schemas.
func WithCache(c *Cache) Option {
	return func(s *Service) { s.cache = c }
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.log = l }
}

// NewService creates a validation service.
func NewService(opts ...Option) *Service {
	s := &Service{}
	for _, o := range opts {
		o(s)
	}
	if s.cache == nil {
		s.cache = NewCache(NewLoader(Embedded()))
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	dec, err := cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic(err)
	}
	s.dec = dec
	return s
}

// Validate checks payload against the schema version it declares and decodes
// it. A payload declaring a version older than FallbackVersion that fails
// its own schema is accepted if it validates against FallbackVersion.
func (s *Service) Validate(payload []byte) (*GreenCertificate, error) {
	var obj map[string]any
	if err := s.dec.Unmarshal(payload, &obj); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCborDeserializationFailed, err)
	}
	version, ok := obj["ver"].(string)
	if !ok {
		return nil, fmt.Errorf("%w: no schema version specified", ErrCborDeserializationFailed)
	}
	doc, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCborDeserializationFailed, err)
	}

	verr, err := s.validate(version, doc)
	if err != nil {
		return nil, err
	}
	if verr != nil {
		if version >= FallbackVersion {
			return nil, verr
		}
		fallback, err := s.validate(FallbackVersion, doc)
		if err != nil {
			return nil, err
		}
		if fallback != nil {
			return nil, fallback
		}
		s.log.Warn("Payload validated against fallback schema",
			zap.String("declared", version),
			zap.String("fallback", FallbackVersion),
			zap.Int("violations", len(verr.Errors)),
		)
	}

	var gc GreenCertificate
	if err := json.Unmarshal(doc, &gc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCborDeserializationFailed, err)
	}
	return &gc, nil
}

// validate returns a non-nil ValidationError if doc violates the schema.
func (s *Service) validate(version string, doc []byte) (*ValidationError, error) {
	validator, err := s.cache.Validator(version)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: schema version %s is not supported", ErrSchemaValidationFailed, version)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchemaValidationFailed, err)
	}
	res, err := validator.Validate(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchemaValidationFailed, err)
	}
	if res.Valid() {
		return nil, nil
	}
	verr := &ValidationError{Version: version}
	for _, re := range res.Errors() {
		verr.Errors = append(verr.Errors, SchemaError{
			Keyword:     re.Type(),
			Instance:    re.Context().String(),
			Description: re.Description(),
		})
	}
	return verr, nil
}
