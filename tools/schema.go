package tools

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
	jsonschemav5 "github.com/santhosh-tekuri/jsonschema/v5"
)

// reflector generates each tool's base parameter schema from its typed Go
// input struct, via jsonschema struct tags (`jsonschema:"description=...,required"`).
var reflector = &jsonschema.Reflector{
	ExpandedStruct:            true,
	DoNotReference:            true,
	AllowAdditionalProperties: false,
}

// generateSchema reflects v's type into a JSON Schema document suitable for
// a tool definition's Parameters field.
func generateSchema(v any) json.RawMessage {
	schema := reflector.Reflect(v)
	schema.Version = "" // the teacher's schemas carry no "$schema" key
	schema.Title = ""
	schema.ID = ""
	raw, err := json.Marshal(schema)
	if err != nil {
		panic(fmt.Sprintf("tools: schema generation failed: %v", err))
	}
	return raw
}

// compileSchema compile-validates a tool's JSON Schema at registration time,
// so a malformed schema fails fast instead of surfacing as a confusing
// validation error on the first tool call.
func compileSchema(name string, schema json.RawMessage) *jsonschemav5.Schema {
	compiler := jsonschemav5.NewCompiler()
	resourceURL := "tool://" + name
	if err := compiler.AddResource(resourceURL, bytes.NewReader(schema)); err != nil {
		panic(fmt.Sprintf("tools: invalid schema for %q: %v", name, err))
	}
	compiled, err := compiler.Compile(resourceURL)
	if err != nil {
		panic(fmt.Sprintf("tools: schema for %q does not compile: %v", name, err))
	}
	return compiled
}

// validateArgs checks raw tool-call arguments against a tool's compiled
// schema before dispatch.
func validateArgs(schema *jsonschemav5.Schema, input json.RawMessage) error {
	if schema == nil {
		return nil
	}
	var v any
	if err := json.Unmarshal(input, &v); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("arguments do not match schema: %w", err)
	}
	return nil
}
