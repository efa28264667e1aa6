package domain

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func validGrave() Grave {
	g := NewGrave()
	g.Accommodation = "https://example.org/accommodations/1"
	g.Owner = "https://example.org/people/1"
	g.Capacity = 3
	return *g
}

func TestValidateGrave(t *testing.T) {
	long := strings.Repeat("x", 256)
	cases := []struct {
		name   string
		mutate func(*Grave)
		fields []string
	}{
		{name: "valid", mutate: func(*Grave) {}},
		{name: "missing owner", mutate: func(g *Grave) { g.Owner = "" }, fields: []string{"owner"}},
		{name: "owner not url", mutate: func(g *Grave) { g.Owner = "john" }, fields: []string{"owner"}},
		{name: "capacity zero", mutate: func(g *Grave) { g.Capacity = 0 }, fields: []string{"capacity"}},
		{name: "reference too long", mutate: func(g *Grave) { g.Reference = &long }, fields: []string{"reference"}},
		{name: "several", mutate: func(g *Grave) {
			g.Accommodation = "ftp://x"
			g.GraveType = &long
		}, fields: []string{"accommodation", "grave_type"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g := validGrave()
			tc.mutate(&g)
			err := Validate(g)
			if len(tc.fields) == 0 {
				if err != nil {
					t.Fatalf("expected valid grave, got %v", err)
				}
				return
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if len(verr.Violations) != len(tc.fields) {
				t.Fatalf("expected %d violations, got %+v", len(tc.fields), verr.Violations)
			}
			for i, field := range tc.fields {
				if verr.Violations[i].Field != field {
					t.Fatalf("expected violation on %s, got %s", field, verr.Violations[i].Field)
				}
			}
			if !strings.Contains(verr.Error(), "invalid grave") {
				t.Fatalf("unexpected message %q", verr.Error())
			}
		})
	}
}

func TestValidateOtherEntities(t *testing.T) {
	if err := Validate(Cemetery{Name: "North", Organization: "https://example.org/orgs/1"}); err != nil {
		t.Fatalf("expected valid cemetery: %v", err)
	}
	if err := Validate(Cemetery{Organization: "https://example.org/orgs/1"}); err == nil {
		t.Fatalf("expected blank name to fail")
	}
	when := time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC)
	if err := Validate(Burial{Deceased: "https://example.org/people/9", BuriedAt: &when}); err != nil {
		t.Fatalf("expected valid burial: %v", err)
	}
	if err := Validate(Burial{}); err == nil {
		t.Fatalf("expected missing deceased to fail")
	}
	if err := Validate(Cover{CoverType: "slab"}); err != nil {
		t.Fatalf("expected valid cover: %v", err)
	}
	if err := Validate(Cover{}); err == nil {
		t.Fatalf("expected missing cover type to fail")
	}
}

func TestSchemaViews(t *testing.T) {
	schema, ok := SchemaFor(EntityGrave)
	if !ok {
		t.Fatalf("expected grave schema")
	}
	for _, field := range schema.WriteFields() {
		switch field.Name {
		case "id", "created_at", "updated_at", "burial_ids", "cover_ids":
			t.Fatalf("field %s must not be writable", field.Name)
		}
	}
	if _, ok := schema.Field("capacity"); !ok {
		t.Fatalf("expected capacity field")
	}
	versioned := map[string]bool{}
	for _, f := range schema.VersionedFields() {
		versioned[f.Name] = true
	}
	for _, name := range []string{"accommodation", "owner", "capacity"} {
		if !versioned[name] {
			t.Fatalf("expected %s to be versioned", name)
		}
	}
	bySlug, ok := SchemaForResource("graves")
	if !ok || bySlug.Entity != EntityGrave || bySlug.ItemsPerPage != DefaultItemsPerPage {
		t.Fatalf("unexpected resource lookup %+v", bySlug)
	}
	if _, ok := SchemaForResource("unknown"); ok {
		t.Fatalf("expected unknown resource to be missing")
	}
}

func TestRecordFieldsCoverSchema(t *testing.T) {
	records := []Record{Cemetery{}, Grave{}, Burial{}, Cover{}}
	for _, record := range records {
		schema, _ := SchemaFor(record.EntityType())
		fields := record.Fields()
		if len(fields) != len(schema.Fields) {
			t.Fatalf("%s: fields %d != schema %d", record.EntityType(), len(fields), len(schema.Fields))
		}
		for _, f := range schema.Fields {
			if _, ok := fields[f.Name]; !ok {
				t.Fatalf("%s: missing field %s", record.EntityType(), f.Name)
			}
		}
	}
}
