// Package domain defines the core persistent entities, value types, and
// rule evaluation primitives used by gravecore.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityCemetery identifies a cemetery record.
	EntityCemetery EntityType = "cemetery"
	// EntityGrave identifies a grave record.
	EntityGrave EntityType = "grave"
	// EntityBurial identifies a burial record.
	EntityBurial EntityType = "burial"
	// EntityCover identifies a grave cover record.
	EntityCover EntityType = "cover"
)

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Base contains common fields for all domain records.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewID returns a fresh random identifier.
func NewID() string {
	return uuid.NewString()
}

// Identifier returns the record identifier.
func (b Base) Identifier() string { return b.ID }

// Record is implemented by every persisted entity.
type Record interface {
	EntityType() EntityType
	Identifier() string
	// Fields returns the read view of the record keyed by field name.
	Fields() map[string]any
}

// Cemetery groups the graves of one burial ground.
type Cemetery struct {
	Base
	Name         string   `json:"name"`
	Reference    *string  `json:"reference"`
	Organization string   `json:"organization"`
	GraveIDs     []string `json:"grave_ids"`
}

// Grave is a plot that holds burials and may carry covers.
type Grave struct {
	Base
	CemeteryID        *string    `json:"cemetery_id"`
	Reference         *string    `json:"reference"`
	Accommodation     string     `json:"accommodation"`
	Owner             string     `json:"owner"`
	InterestedParties []string   `json:"interested_parties"`
	Rulings           []string   `json:"rulings"`
	Capacity          int        `json:"capacity"`
	GraveType         *string    `json:"grave_type"`
	RightsExpireAt    *time.Time `json:"rights_expire_at"`
	BurialIDs         []string   `json:"burial_ids"`
	CoverIDs          []string   `json:"cover_ids"`
}

// Burial records the interment of a deceased person.
type Burial struct {
	Base
	GraveID    *string    `json:"grave_id"`
	Reference  *string    `json:"reference"`
	Deceased   string     `json:"deceased"`
	BurialType *string    `json:"burial_type"`
	BuriedAt   *time.Time `json:"buried_at"`
}

// Cover is a monument or slab that may span several graves.
type Cover struct {
	Base
	Reference   *string  `json:"reference"`
	CoverType   string   `json:"cover_type"`
	Description *string  `json:"description"`
	GraveIDs    []string `json:"grave_ids"`
}

// NewCemetery returns a cemetery with its identifier assigned.
func NewCemetery() *Cemetery {
	return &Cemetery{Base: Base{ID: NewID()}}
}

// NewGrave returns a grave with its identifier assigned and a capacity of one.
func NewGrave() *Grave {
	return &Grave{Base: Base{ID: NewID()}, Capacity: 1}
}

// NewBurial returns a burial with its identifier assigned.
func NewBurial() *Burial {
	return &Burial{Base: Base{ID: NewID()}}
}

// NewCover returns a cover with its identifier assigned.
func NewCover() *Cover {
	return &Cover{Base: Base{ID: NewID()}}
}

func (Cemetery) EntityType() EntityType { return EntityCemetery }
func (Grave) EntityType() EntityType    { return EntityGrave }
func (Burial) EntityType() EntityType   { return EntityBurial }
func (Cover) EntityType() EntityType    { return EntityCover }

// Fields implements Record.
func (c Cemetery) Fields() map[string]any {
	return map[string]any{
		"id":           c.ID,
		"name":         c.Name,
		"reference":    stringValue(c.Reference),
		"organization": c.Organization,
		"grave_ids":    cloneIDs(c.GraveIDs),
		"created_at":   c.CreatedAt,
		"updated_at":   c.UpdatedAt,
	}
}

// Fields implements Record.
func (g Grave) Fields() map[string]any {
	return map[string]any{
		"id":                 g.ID,
		"cemetery_id":        stringValue(g.CemeteryID),
		"reference":          stringValue(g.Reference),
		"accommodation":      g.Accommodation,
		"owner":              g.Owner,
		"interested_parties": cloneIDs(g.InterestedParties),
		"rulings":            cloneIDs(g.Rulings),
		"capacity":           g.Capacity,
		"grave_type":         stringValue(g.GraveType),
		"rights_expire_at":   timeValue(g.RightsExpireAt),
		"burial_ids":         cloneIDs(g.BurialIDs),
		"cover_ids":          cloneIDs(g.CoverIDs),
		"created_at":         g.CreatedAt,
		"updated_at":         g.UpdatedAt,
	}
}

// Fields implements Record.
func (b Burial) Fields() map[string]any {
	return map[string]any{
		"id":          b.ID,
		"grave_id":    stringValue(b.GraveID),
		"reference":   stringValue(b.Reference),
		"deceased":    b.Deceased,
		"burial_type": stringValue(b.BurialType),
		"buried_at":   timeValue(b.BuriedAt),
		"created_at":  b.CreatedAt,
		"updated_at":  b.UpdatedAt,
	}
}

// Fields implements Record.
func (c Cover) Fields() map[string]any {
	return map[string]any{
		"id":          c.ID,
		"reference":   stringValue(c.Reference),
		"cover_type":  c.CoverType,
		"description": stringValue(c.Description),
		"grave_ids":   cloneIDs(c.GraveIDs),
		"created_at":  c.CreatedAt,
		"updated_at":  c.UpdatedAt,
	}
}

// stringValue flattens optional strings; absent values become nil.
func stringValue(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func timeValue(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func cloneIDs(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return append([]string(nil), ids...)
}

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported CRUD operations captured in audit trail.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	// ActionRead is only used by audit entries.
	ActionRead Action = "read"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string     `json:"rule"`
	Severity Severity   `json:"severity"`
	Message  string     `json:"message"`
	Entity   EntityType `json:"entity"`
	EntityID string     `json:"entity_id"`
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation `json:"violations"`
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	return "transaction blocked by rules"
}
