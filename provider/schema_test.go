package provider

import "testing"

func TestNewSchemaRejectsInvalid(t *testing.T) {
	if _, err := NewSchema("bad", []byte(`{"type": `)); err == nil {
		t.Fatalf("expected JSON error")
	}
	if _, err := NewSchema("bad", []byte(`{"type": 12}`)); err == nil {
		t.Fatalf("expected compile error")
	}
}

func TestSchemaValidate(t *testing.T) {
	if err := testSchema.Validate([]byte(`{"answer":"x","items":["a","b"]}`)); err != nil {
		t.Fatalf("expected payload to validate: %v", err)
	}
	if err := testSchema.Validate([]byte(`{"answer":"x","items":["a","b"],"extra":true}`)); err == nil {
		t.Fatalf("expected additionalProperties failure")
	}
	if err := testSchema.Validate([]byte(`[]`)); err == nil {
		t.Fatalf("expected type failure")
	}
	if testSchema.Document()["type"] != "object" {
		t.Fatalf("unexpected document %#v", testSchema.Document())
	}
}
