package provider

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Schema is a compiled JSON Schema describing a structured reply.
type Schema struct {
	Name     string
	raw      []byte
	doc      map[string]interface{}
	compiled *jsonschema.Schema
}

// NewSchema compiles raw under the given resource name.
func NewSchema(name string, raw []byte) (*Schema, error) {
	var doc map[string]interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("schema %s is not valid JSON: %w", name, err)
	}
	compiler := jsonschema.NewCompiler()
	resource := name + ".json"
	if err := compiler.AddResource(resource, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	compiled, err := compiler.Compile(resource)
	if err != nil {
		return nil, fmt.Errorf("compile %s schema: %w", name, err)
	}
	return &Schema{Name: name, raw: raw, doc: doc, compiled: compiled}, nil
}

// MustSchema is NewSchema for package-level schemas; it panics on error.
func MustSchema(name string, raw []byte) *Schema {
	s, err := NewSchema(name, raw)
	if err != nil {
		panic(err)
	}
	return s
}

// Document returns the decoded schema for vendors that accept it natively.
func (s *Schema) Document() map[string]interface{} { return s.doc }

// String returns the schema source.
func (s *Schema) String() string { return string(s.raw) }

// Validate checks a JSON document against the schema.
func (s *Schema) Validate(data []byte) error {
	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("reply is not valid JSON: %w", err)
	}
	if err := s.compiled.Validate(doc); err != nil {
		return fmt.Errorf("reply does not match %s schema: %w", s.Name, err)
	}
	return nil
}
