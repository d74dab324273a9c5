package core

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// SchemaFor derives a JSON schema map from a Go struct type, suitable for a
// Capability's Parameters. Field descriptions come from jsonschema_description
// tags. The schema is inlined (no $ref) so providers can consume it directly.
func SchemaFor[T any]() map[string]any {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	schema := reflector.Reflect(v)

	raw, err := json.Marshal(schema)
	if err != nil {
		return map[string]any{"type": "object"}
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return map[string]any{"type": "object"}
	}
	delete(out, "$schema")
	delete(out, "$id")
	return out
}
