package http

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"gravecore/pkg/domain"
)

// WriteSchema renders the write view of an entity as a JSON Schema document.
// It checks structure only: field names and JSON types. Value constraints
// such as required, length and URL format are left to domain validation so
// they surface as 422 instead of 400.
func WriteSchema(schema domain.EntitySchema) map[string]any {
	properties := map[string]any{}
	for _, field := range schema.WriteFields() {
		properties[field.Name] = fieldSchema(field)
	}
	return map[string]any{
		"$schema":              "http://json-schema.org/draft-07/schema#",
		"title":                string(schema.Entity),
		"type":                 "object",
		"properties":           properties,
		"additionalProperties": false,
	}
}

func fieldSchema(field domain.FieldSpec) map[string]any {
	stringList := map[string]any{
		"type":  []string{"array", "null"},
		"items": map[string]any{"type": "string"},
	}
	switch field.Column {
	case domain.ColumnInteger:
		return map[string]any{"type": []string{"integer", "null"}}
	case domain.ColumnDateTime:
		return map[string]any{"type": []string{"string", "null"}, "format": "date-time"}
	case domain.ColumnArray, domain.ColumnRelationList:
		return stringList
	default:
		return map[string]any{"type": []string{"string", "null"}}
	}
}

// payloadError reports a request body that fails the write schema.
type payloadError struct {
	reason string
}

func (e *payloadError) Error() string { return "invalid request body: " + e.reason }

// payloadValidator checks request bodies against the compiled write schemas.
type payloadValidator struct {
	schemas map[domain.EntityType]*gojsonschema.Schema
}

func newPayloadValidator() (*payloadValidator, error) {
	v := &payloadValidator{schemas: map[domain.EntityType]*gojsonschema.Schema{}}
	for _, entity := range []domain.EntityType{domain.EntityCemetery, domain.EntityGrave, domain.EntityBurial, domain.EntityCover} {
		schema, ok := domain.SchemaFor(entity)
		if !ok {
			return nil, fmt.Errorf("no schema for %s", entity)
		}
		compiled, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(WriteSchema(schema)))
		if err != nil {
			return nil, fmt.Errorf("compile %s schema: %w", entity, err)
		}
		v.schemas[entity] = compiled
	}
	return v, nil
}

// decode validates body against the entity's write schema and unmarshals it
// into out.
func (v *payloadValidator) decode(entity domain.EntityType, body []byte, out any) error {
	schema, ok := v.schemas[entity]
	if !ok {
		return fmt.Errorf("no schema for %s", entity)
	}
	result, err := schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return &payloadError{reason: err.Error()}
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return &payloadError{reason: strings.Join(msgs, "; ")}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &payloadError{reason: err.Error()}
	}
	return nil
}
