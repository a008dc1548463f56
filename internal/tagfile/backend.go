package tagfile

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/photontag/tagstreamd/pkg/tagio"
)

// Backend persists one open recording's tag records. It mirrors the
// archive package's file/s3 backend split (pkg/archive/archive.go's
// kind-switch Init), narrowed to what a single append-only recording
// needs: open (refusing to overwrite), append a batch, close.
type Backend interface {
	// Open begins a new recording at path. Implementations must refuse to
	// overwrite an existing file/object at path.
	Open(path string) error
	// Append writes one batch of tags to the currently open recording.
	Append(tags []tagio.Tag) error
	// Close finalizes and releases the currently open recording.
	Close() error
}

// configSchema is the "kind"-discriminated backend configuration shape,
// grounded on pkg/archive/ConfigSchema.go's enum-of-kind backend config.
const configSchema = `
{
  "type": "object",
  "properties": {
    "kind": {
      "description": "Backend type for tag recordings",
      "type": "string",
      "enum": ["fs", "s3"]
    },
    "directory": {
      "description": "Directory for fs backend recordings",
      "type": "string"
    },
    "bucket": {
      "description": "S3 bucket name for s3 backend recordings",
      "type": "string"
    },
    "prefix": {
      "description": "Key prefix applied to every recording object",
      "type": "string"
    },
    "region": {
      "description": "AWS region for the s3 backend",
      "type": "string"
    },
    "endpoint": {
      "description": "S3-compatible endpoint URL (MinIO etc)",
      "type": "string"
    },
    "use-path-style": {
      "description": "Use path-style S3 URLs",
      "type": "boolean"
    },
    "access-key-id": {
      "description": "Static access key for the s3 backend; omit to use the default AWS credential chain",
      "type": "string"
    },
    "secret-access-key": {
      "description": "Static secret key for the s3 backend; required if access-key-id is set",
      "type": "string"
    }
  },
  "required": ["kind"]
}`

// Config selects and parameterizes a Backend, validated against
// configSchema before use.
type Config struct {
	Kind            string `json:"kind"`
	Directory       string `json:"directory,omitempty"`
	Bucket          string `json:"bucket,omitempty"`
	Prefix          string `json:"prefix,omitempty"`
	Region          string `json:"region,omitempty"`
	Endpoint        string `json:"endpoint,omitempty"`
	UsePathStyle    bool   `json:"use-path-style,omitempty"`
	AccessKeyID     string `json:"access-key-id,omitempty"`
	SecretAccessKey string `json:"secret-access-key,omitempty"`
}

// ValidateConfig checks raw against configSchema, following
// internal/config/validate.go's CompileString-then-Validate pattern rather
// than internal/config's own Fatalf-on-error flavor (a misconfigured
// recording backend should return an error up the call stack, not exit the
// whole daemon).
func ValidateConfig(raw json.RawMessage) error {
	sch, err := jsonschema.CompileString("tagfile-backend.schema.json", configSchema)
	if err != nil {
		return fmt.Errorf("tagfile: compile backend schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("tagfile: decode backend config: %w", err)
	}
	return sch.Validate(v)
}

// NewBackend builds the Backend named by cfg.Kind.
func NewBackend(cfg Config) (Backend, error) {
	switch cfg.Kind {
	case "fs", "":
		if cfg.Directory == "" {
			return nil, fmt.Errorf("tagfile: fs backend requires a directory")
		}
		return newFsBackend(cfg.Directory), nil
	case "s3":
		if cfg.Bucket == "" {
			return nil, fmt.Errorf("tagfile: s3 backend requires a bucket")
		}
		return newS3Backend(cfg)
	default:
		return nil, fmt.Errorf("tagfile: unknown backend kind %q", cfg.Kind)
	}
}
