package runconfig

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// runSchema validates a Run document's shape before it is decoded or
// written to disk.
var runSchema = `
{
  "type": "object",
  "properties": {
    "description": {"type": "string"},
    "version": {"type": "string"},
    "timestamp": {"type": "string"},
    "limit": {
      "type": "object",
      "properties": {
        "kind": {"type": "integer", "minimum": 0, "maximum": 3},
        "duration": {"type": "string"},
        "singles-channel": {"type": "integer", "minimum": 0, "maximum": 15},
        "singles-counts": {"type": "integer", "minimum": 0},
        "coincidence-a": {"type": "integer", "minimum": 0, "maximum": 15},
        "coincidence-b": {"type": "integer", "minimum": 0, "maximum": 15},
        "coincidence-window": {"type": "integer", "minimum": 0},
        "coincidence-counts": {"type": "integer", "minimum": 0}
      }
    },
    "save-counts": {"type": "boolean"},
    "save-tags": {
      "type": "object",
      "properties": {
        "kind": {"type": "integer", "minimum": 0, "maximum": 2},
        "save": {"type": "boolean"},
        "path": {"type": "string"}
      }
    },
    "tagmask": {"type": "integer", "minimum": 0, "maximum": 65535},
    "duration": {"type": "integer", "minimum": 0},
    "singles": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "channel": {"type": "integer", "minimum": 0, "maximum": 15},
          "counts": {"type": "integer", "minimum": 0}
        },
        "required": ["channel"]
      }
    },
    "coincidences": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "channel-a": {"type": "integer", "minimum": 0, "maximum": 15},
          "channel-b": {"type": "integer", "minimum": 0, "maximum": 15},
          "window": {"type": "integer", "minimum": 0},
          "counts": {"type": "integer", "minimum": 0}
        },
        "required": ["channel-a", "channel-b"]
      }
    },
    "channel-settings": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "channel": {"type": "integer", "minimum": 0, "maximum": 15},
          "invert": {"type": "boolean"},
          "delay": {"type": "integer", "minimum": 0},
          "threshold": {"type": "number"}
        },
        "required": ["channel"]
      }
    }
  },
  "required": ["description"]
}`

// Validate checks instance against runSchema.
func Validate(instance json.RawMessage) error {
	sch, err := jsonschema.CompileString("runconfig.schema.json", runSchema)
	if err != nil {
		return fmt.Errorf("runconfig: compile schema: %w", err)
	}

	var v any
	if err := json.Unmarshal(instance, &v); err != nil {
		return fmt.Errorf("runconfig: decode instance: %w", err)
	}

	return sch.Validate(v)
}
