package domain

import (
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"
)

// Group names a serialization view of an entity.
type Group string

const (
	// GroupRead marks fields returned to clients.
	GroupRead Group = "read"
	// GroupWrite marks fields clients may submit.
	GroupWrite Group = "write"
)

// ColumnType is the storage type of a field.
type ColumnType string

const (
	ColumnUUID         ColumnType = "uuid"
	ColumnString       ColumnType = "string"
	ColumnText         ColumnType = "text"
	ColumnInteger      ColumnType = "integer"
	ColumnDateTime     ColumnType = "datetime"
	ColumnArray        ColumnType = "array"
	ColumnRelation     ColumnType = "relation"
	ColumnRelationList ColumnType = "relation_list"
)

// FieldSpec declares one attribute of an entity: its views, storage type and
// validation constraints.
type FieldSpec struct {
	Name      string     `json:"name"`
	Column    ColumnType `json:"column"`
	Groups    []Group    `json:"groups"`
	Required  bool       `json:"required,omitempty"`
	URL       bool       `json:"url,omitempty"`
	MaxLength int        `json:"max_length,omitempty"`
	Min       *int       `json:"min,omitempty"`
	Versioned bool       `json:"versioned,omitempty"`
	// Derived fields are computed from the owning side of a relation and never stored.
	Derived bool       `json:"derived,omitempty"`
	Target  EntityType `json:"target,omitempty"`
	Example string     `json:"example,omitempty"`
}

// InGroup reports whether the field belongs to the view.
func (f FieldSpec) InGroup(group Group) bool {
	for _, g := range f.Groups {
		if g == group {
			return true
		}
	}
	return false
}

// EntitySchema is the declarative description of one entity.
type EntitySchema struct {
	Entity       EntityType  `json:"entity"`
	Resource     string      `json:"resource"`
	ItemsPerPage int         `json:"items_per_page"`
	Fields       []FieldSpec `json:"fields"`
}

// Field looks a field up by name.
func (s EntitySchema) Field(name string) (FieldSpec, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldSpec{}, false
}

// WriteFields returns the fields of the write view.
func (s EntitySchema) WriteFields() []FieldSpec {
	return s.filter(func(f FieldSpec) bool { return f.InGroup(GroupWrite) })
}

// VersionedFields returns the fields tracked by the change log.
func (s EntitySchema) VersionedFields() []FieldSpec {
	return s.filter(func(f FieldSpec) bool { return f.Versioned })
}

func (s EntitySchema) filter(keep func(FieldSpec) bool) []FieldSpec {
	var out []FieldSpec
	for _, f := range s.Fields {
		if keep(f) {
			out = append(out, f)
		}
	}
	return out
}

// DefaultItemsPerPage is the page size used by collection endpoints.
const DefaultItemsPerPage = 30

var (
	readOnly  = []Group{GroupRead}
	readWrite = []Group{GroupRead, GroupWrite}
	minOne    = 1
)

func systemFields() []FieldSpec {
	return []FieldSpec{
		{Name: "id", Column: ColumnUUID, Groups: readOnly},
		{Name: "created_at", Column: ColumnDateTime, Groups: readOnly},
		{Name: "updated_at", Column: ColumnDateTime, Groups: readOnly},
	}
}

var schemas = map[EntityType]EntitySchema{
	EntityCemetery: {
		Entity:       EntityCemetery,
		Resource:     "cemeteries",
		ItemsPerPage: DefaultItemsPerPage,
		Fields: append(systemFields(),
			FieldSpec{Name: "name", Column: ColumnString, Groups: readWrite, Required: true, MaxLength: 255, Versioned: true, Example: "Zuiderbegraafplaats"},
			FieldSpec{Name: "reference", Column: ColumnString, Groups: readWrite, MaxLength: 255, Example: "CEM-001"},
			FieldSpec{Name: "organization", Column: ColumnString, Groups: readWrite, Required: true, URL: true, MaxLength: 255, Versioned: true, Example: "https://example.org/organizations/1"},
			FieldSpec{Name: "grave_ids", Column: ColumnRelationList, Groups: readOnly, Derived: true, Target: EntityGrave},
		),
	},
	EntityGrave: {
		Entity:       EntityGrave,
		Resource:     "graves",
		ItemsPerPage: DefaultItemsPerPage,
		Fields: append(systemFields(),
			FieldSpec{Name: "cemetery_id", Column: ColumnRelation, Groups: readWrite, Versioned: true, Target: EntityCemetery},
			FieldSpec{Name: "reference", Column: ColumnString, Groups: readWrite, MaxLength: 255, Example: "A-12-3"},
			FieldSpec{Name: "accommodation", Column: ColumnString, Groups: readWrite, Required: true, URL: true, MaxLength: 255, Versioned: true, Example: "https://example.org/accommodations/1"},
			FieldSpec{Name: "owner", Column: ColumnString, Groups: readWrite, Required: true, URL: true, MaxLength: 255, Versioned: true, Example: "https://example.org/people/1"},
			FieldSpec{Name: "interested_parties", Column: ColumnArray, Groups: readWrite},
			FieldSpec{Name: "rulings", Column: ColumnArray, Groups: readWrite},
			FieldSpec{Name: "capacity", Column: ColumnInteger, Groups: readWrite, Required: true, Min: &minOne, Versioned: true, Example: "3"},
			FieldSpec{Name: "grave_type", Column: ColumnString, Groups: readWrite, MaxLength: 255, Versioned: true, Example: "family"},
			FieldSpec{Name: "rights_expire_at", Column: ColumnDateTime, Groups: readWrite, Versioned: true},
			FieldSpec{Name: "burial_ids", Column: ColumnRelationList, Groups: readOnly, Derived: true, Target: EntityBurial},
			FieldSpec{Name: "cover_ids", Column: ColumnRelationList, Groups: readOnly, Derived: true, Target: EntityCover},
		),
	},
	EntityBurial: {
		Entity:       EntityBurial,
		Resource:     "burials",
		ItemsPerPage: DefaultItemsPerPage,
		Fields: append(systemFields(),
			FieldSpec{Name: "grave_id", Column: ColumnRelation, Groups: readWrite, Versioned: true, Target: EntityGrave},
			FieldSpec{Name: "reference", Column: ColumnString, Groups: readWrite, MaxLength: 255},
			FieldSpec{Name: "deceased", Column: ColumnString, Groups: readWrite, Required: true, URL: true, MaxLength: 255, Versioned: true, Example: "https://example.org/people/2"},
			FieldSpec{Name: "burial_type", Column: ColumnString, Groups: readWrite, MaxLength: 255, Example: "interment"},
			FieldSpec{Name: "buried_at", Column: ColumnDateTime, Groups: readWrite, Versioned: true},
		),
	},
	EntityCover: {
		Entity:       EntityCover,
		Resource:     "covers",
		ItemsPerPage: DefaultItemsPerPage,
		Fields: append(systemFields(),
			FieldSpec{Name: "reference", Column: ColumnString, Groups: readWrite, MaxLength: 255},
			FieldSpec{Name: "cover_type", Column: ColumnString, Groups: readWrite, Required: true, MaxLength: 255, Versioned: true, Example: "headstone"},
			FieldSpec{Name: "description", Column: ColumnText, Groups: readWrite, MaxLength: 2550},
			FieldSpec{Name: "grave_ids", Column: ColumnRelationList, Groups: readWrite, Versioned: true, Target: EntityGrave},
		),
	},
}

// SchemaFor returns the schema of an entity type.
func SchemaFor(entity EntityType) (EntitySchema, bool) {
	s, ok := schemas[entity]
	return s, ok
}

// SchemaForResource returns the schema whose collection is named resource.
func SchemaForResource(resource string) (EntitySchema, bool) {
	for _, s := range schemas {
		if s.Resource == resource {
			return s, true
		}
	}
	return EntitySchema{}, false
}

// FieldViolation describes one failed constraint.
type FieldViolation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError reports the constraints a record failed.
type ValidationError struct {
	Entity     EntityType       `json:"entity"`
	Violations []FieldViolation `json:"violations"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, v.Field+": "+v.Message)
	}
	return fmt.Sprintf("invalid %s: %s", e.Entity, strings.Join(parts, "; "))
}

// Validate checks a record against the constraints of its schema.
func Validate(record Record) error {
	schema, ok := SchemaFor(record.EntityType())
	if !ok {
		return fmt.Errorf("no schema for %s", record.EntityType())
	}
	values := record.Fields()
	var violations []FieldViolation
	for _, field := range schema.Fields {
		if field.Derived {
			continue
		}
		if msg := checkField(field, values[field.Name]); msg != "" {
			violations = append(violations, FieldViolation{Field: field.Name, Message: msg})
		}
	}
	if len(violations) > 0 {
		return &ValidationError{Entity: schema.Entity, Violations: violations}
	}
	return nil
}

func checkField(field FieldSpec, value any) string {
	switch v := value.(type) {
	case nil:
		if field.Required {
			return "must not be null"
		}
	case string:
		if field.Required && strings.TrimSpace(v) == "" {
			return "must not be blank"
		}
		if field.MaxLength > 0 && utf8.RuneCountInString(v) > field.MaxLength {
			return fmt.Sprintf("must be at most %d characters", field.MaxLength)
		}
		if field.URL && v != "" && !isURL(v) {
			return "must be a valid URL"
		}
	case int:
		if field.Min != nil && v < *field.Min {
			return fmt.Sprintf("must be at least %d", *field.Min)
		}
	}
	return ""
}

func isURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
