package core

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"

	"gravecore/pkg/domain"
)

// MaxItemsPerPage caps the page size a client may request.
const MaxItemsPerPage = 100

// DateOp is a comparison applied by a date filter.
type DateOp string

const (
	DateBefore         DateOp = "before"
	DateStrictlyBefore DateOp = "strictly_before"
	DateAfter          DateOp = "after"
	DateStrictlyAfter  DateOp = "strictly_after"
)

// DateFilter keeps records whose datetime field satisfies Op against Value.
type DateFilter struct {
	Field string
	Op    DateOp
	Value time.Time
}

// OrderBy sorts by one field.
type OrderBy struct {
	Field string
	Desc  bool
}

// ListQuery selects and pages a collection. The zero value returns the
// first page of the default size ordered by id.
type ListQuery struct {
	Entity       domain.EntityType
	Search       map[string][]string
	Dates        []DateFilter
	Order        []OrderBy
	Page         int
	ItemsPerPage int
}

// Page is one slice of a filtered collection.
type Page[T any] struct {
	Items        []T `json:"items"`
	TotalItems   int `json:"total_items"`
	Page         int `json:"page"`
	ItemsPerPage int `json:"items_per_page"`
}

// QueryError reports a malformed list parameter.
type QueryError struct {
	Param  string
	Reason string
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("invalid query parameter %q: %s", e.Param, e.Reason)
}

type paging struct {
	Page         int `mapstructure:"page"`
	ItemsPerPage int `mapstructure:"items_per_page"`
}

// ParseListQuery decodes a raw URL query string for the entity's collection.
// Order parameters keep the order they appear in.
func ParseListQuery(entity domain.EntityType, rawQuery string) (ListQuery, error) {
	schema, ok := domain.SchemaFor(entity)
	if !ok {
		return ListQuery{}, fmt.Errorf("no schema for %s", entity)
	}
	q := ListQuery{Entity: entity, Search: map[string][]string{}}
	pagingInput := map[string]any{}

	for _, pair := range strings.Split(rawQuery, "&") {
		if pair == "" {
			continue
		}
		rawKey, rawValue, _ := strings.Cut(pair, "=")
		key, err := url.QueryUnescape(rawKey)
		if err != nil {
			return ListQuery{}, &QueryError{Param: rawKey, Reason: "malformed escape"}
		}
		value, err := url.QueryUnescape(rawValue)
		if err != nil {
			return ListQuery{}, &QueryError{Param: key, Reason: "malformed escape"}
		}

		switch {
		case key == "page" || key == "items_per_page":
			pagingInput[key] = value
		case strings.HasPrefix(key, "order[") && strings.HasSuffix(key, "]"):
			field := strings.TrimSuffix(strings.TrimPrefix(key, "order["), "]")
			def, ok := schema.Field(field)
			if !ok || def.Column == domain.ColumnArray || def.Column == domain.ColumnRelationList {
				return ListQuery{}, &QueryError{Param: key, Reason: "field cannot be ordered"}
			}
			switch strings.ToLower(value) {
			case "", "asc":
				q.Order = append(q.Order, OrderBy{Field: field})
			case "desc":
				q.Order = append(q.Order, OrderBy{Field: field, Desc: true})
			default:
				return ListQuery{}, &QueryError{Param: key, Reason: "direction must be asc or desc"}
			}
		case strings.HasSuffix(key, "]") && strings.Contains(key, "["):
			open := strings.Index(key, "[")
			field, op := key[:open], DateOp(key[open+1:len(key)-1])
			def, ok := schema.Field(field)
			if !ok || def.Column != domain.ColumnDateTime {
				return ListQuery{}, &QueryError{Param: key, Reason: "not a date field"}
			}
			switch op {
			case DateBefore, DateStrictlyBefore, DateAfter, DateStrictlyAfter:
			default:
				return ListQuery{}, &QueryError{Param: key, Reason: "unknown date operator"}
			}
			at, err := parseDate(value)
			if err != nil {
				return ListQuery{}, &QueryError{Param: key, Reason: err.Error()}
			}
			q.Dates = append(q.Dates, DateFilter{Field: field, Op: op, Value: at})
		default:
			def, ok := schema.Field(key)
			if !ok || def.Column == domain.ColumnDateTime {
				return ListQuery{}, &QueryError{Param: key, Reason: "unknown filter"}
			}
			q.Search[key] = append(q.Search[key], value)
		}
	}

	var p paging
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &p,
	})
	if err != nil {
		return ListQuery{}, err
	}
	if err := decoder.Decode(pagingInput); err != nil {
		return ListQuery{}, &QueryError{Param: "page", Reason: "must be an integer"}
	}
	if _, set := pagingInput["page"]; set && p.Page < 1 {
		return ListQuery{}, &QueryError{Param: "page", Reason: "must be at least 1"}
	}
	if _, set := pagingInput["items_per_page"]; set && p.ItemsPerPage < 1 {
		return ListQuery{}, &QueryError{Param: "items_per_page", Reason: "must be at least 1"}
	}
	q.Page = p.Page
	q.ItemsPerPage = p.ItemsPerPage
	return q, nil
}

func parseDate(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02", value); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("expected RFC3339 or YYYY-MM-DD date")
}

// Apply filters, orders and pages records.
func Apply[T domain.Record](records []T, q ListQuery) (Page[T], error) {
	perPage := q.ItemsPerPage
	if perPage <= 0 {
		perPage = domain.DefaultItemsPerPage
		if schema, ok := domain.SchemaFor(q.Entity); ok && schema.ItemsPerPage > 0 {
			perPage = schema.ItemsPerPage
		}
	}
	if perPage > MaxItemsPerPage {
		perPage = MaxItemsPerPage
	}
	page := q.Page
	if page <= 0 {
		page = 1
	}

	type row struct {
		record T
		fields map[string]any
	}
	rows := make([]row, 0, len(records))
	for _, record := range records {
		fields := record.Fields()
		if matchesSearch(fields, q.Search) && matchesDates(fields, q.Dates) {
			rows = append(rows, row{record: record, fields: fields})
		}
	}

	order := append(append([]OrderBy(nil), q.Order...), OrderBy{Field: "id"})
	sort.SliceStable(rows, func(i, j int) bool {
		for _, o := range order {
			c := compareValues(rows[i].fields[o.Field], rows[j].fields[o.Field])
			if c == 0 {
				continue
			}
			if o.Desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})

	out := Page[T]{Items: []T{}, TotalItems: len(rows), Page: page, ItemsPerPage: perPage}
	// compare before multiplying so huge page numbers cannot overflow
	if page-1 >= (len(rows)+perPage-1)/perPage {
		return out, nil
	}
	start := (page - 1) * perPage
	end := start + perPage
	if end > len(rows) {
		end = len(rows)
	}
	for _, r := range rows[start:end] {
		out.Items = append(out.Items, r.record)
	}
	return out, nil
}

func matchesSearch(fields map[string]any, search map[string][]string) bool {
	for field, wanted := range search {
		if !matchesAny(fields[field], wanted) {
			return false
		}
	}
	return true
}

func matchesAny(value any, wanted []string) bool {
	for _, w := range wanted {
		switch v := value.(type) {
		case string:
			if strings.EqualFold(v, w) {
				return true
			}
		case int:
			if strconv.Itoa(v) == w {
				return true
			}
		case []string:
			for _, item := range v {
				if strings.EqualFold(item, w) {
					return true
				}
			}
		}
	}
	return false
}

func matchesDates(fields map[string]any, filters []DateFilter) bool {
	for _, f := range filters {
		at, ok := fields[f.Field].(time.Time)
		if !ok {
			return false
		}
		var keep bool
		switch f.Op {
		case DateBefore:
			keep = !at.After(f.Value)
		case DateStrictlyBefore:
			keep = at.Before(f.Value)
		case DateAfter:
			keep = !at.Before(f.Value)
		case DateStrictlyAfter:
			keep = at.After(f.Value)
		}
		if !keep {
			return false
		}
	}
	return true
}

// compareValues orders nil before any value.
func compareValues(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	switch av := a.(type) {
	case string:
		if bv, ok := b.(string); ok {
			return strings.Compare(strings.ToLower(av), strings.ToLower(bv))
		}
	case int:
		if bv, ok := b.(int); ok {
			switch {
			case av < bv:
				return -1
			case av > bv:
				return 1
			}
			return 0
		}
	case time.Time:
		if bv, ok := b.(time.Time); ok {
			return av.Compare(bv)
		}
	}
	return 0
}
