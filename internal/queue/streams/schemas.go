package streams

import "fmt"

const (
	// EventStage carries one research.Event from a running workflow.
	EventStage = "research.stage"
	// EventScheduled is published when the scheduler starts a recurring query.
	EventScheduled = "research.scheduled"

	VersionV1 = "v1"
)

// Definition describes a schema entry managed by the registry.
type Definition struct {
	EventType string
	Version   string
	Schema    []byte
}

var baseDefinitions = []Definition{
	{
		EventType: EventStage,
		Version:   VersionV1,
		Schema: []byte(`{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["run_id", "stage", "status", "at"],
  "properties": {
    "run_id": {"type": "string", "minLength": 1},
    "stage": {"type": "string", "enum": ["planner_agent", "search_agent", "extraction_agent", "writer_agent", "evaluator_agent", "end"]},
    "status": {"type": "string", "enum": ["started", "completed", "failed", "finished"]},
    "message": {"type": "string"},
    "detail": {"type": "object"},
    "took": {"type": "integer", "minimum": 0},
    "at": {"type": "string"}
  },
  "additionalProperties": false
}`),
	},
	{
		EventType: EventScheduled,
		Version:   VersionV1,
		Schema: []byte(`{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["run_id", "schedule", "query"],
  "properties": {
    "run_id": {"type": "string", "minLength": 1},
    "schedule": {"type": "string"},
    "query": {"type": "string", "minLength": 1},
    "next_at": {"type": "string"}
  },
  "additionalProperties": true
}`),
	},
}

// RegisterBaseSchemas loads every known payload schema into reg.
func RegisterBaseSchemas(reg *SchemaRegistry) error {
	for _, def := range baseDefinitions {
		if err := reg.Register(def.EventType, def.Version, def.Schema); err != nil {
			return fmt.Errorf("register %s/%s: %w", def.EventType, def.Version, err)
		}
	}
	return nil
}

// NewBaseRegistry returns a registry preloaded with the base schemas.
func NewBaseRegistry() (*SchemaRegistry, error) {
	reg := NewSchemaRegistry()
	if err := RegisterBaseSchemas(reg); err != nil {
		return nil, err
	}
	return reg, nil
}
