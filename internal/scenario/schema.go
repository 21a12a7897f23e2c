package scenario

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// Schema reflects the scenario document into an indented JSON Schema for editor tooling.
func Schema() ([]byte, error) {
	reflector := jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		DoNotReference:             true,
	}
	schema := reflector.Reflect(&Scenario{})
	if schema == nil {
		return nil, fmt.Errorf("scenario: failed to reflect schema")
	}
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("scenario: marshal schema: %w", err)
	}
	return append(data, '\n'), nil
}
