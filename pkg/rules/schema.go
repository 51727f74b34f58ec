package rules

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const createSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["name", "rule_type", "latitude", "longitude", "radius_m"],
  "properties": {
    "name": {"type": "string", "minLength": 1, "maxLength": 200},
    "rule_type": {"enum": ["GEOFENCE_ENTER", "PROXIMITY"]},
    "latitude": {"type": "number", "minimum": -90, "maximum": 90},
    "longitude": {"type": "number", "minimum": -180, "maximum": 180},
    "radius_m": {"type": "number", "exclusiveMinimum": 0, "maximum": 1000000},
    "condition": {"type": "string", "maxLength": 2000},
    "webhook_url": {"type": "string", "format": "uri", "maxLength": 2000},
    "webhook_secret": {"type": "string", "maxLength": 200}
  },
  "additionalProperties": false
}`

var createSchema = jsonschema.MustCompileString("rule-create.json", createSchemaJSON)

// ValidateCreatePayload checks a rule-create request body against the
// schema before it touches the store.
func ValidateCreatePayload(raw []byte) error {
	var v any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if err := createSchema.Validate(v); err != nil {
		return fmt.Errorf("schema: %w", err)
	}
	return nil
}
