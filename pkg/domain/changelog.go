package domain

import (
	"context"
	"fmt"
	"time"
)

// FieldChange captures the old and new value of one versioned field.
type FieldChange struct {
	Field string        `json:"field"`
	Old   ChangePayload `json:"old"`
	New   ChangePayload `json:"new"`
}

// ChangeLogEntry is an immutable record of a committed mutation.
type ChangeLogEntry struct {
	ID       string        `json:"id"`
	Entity   EntityType    `json:"entity"`
	EntityID string        `json:"entity_id"`
	Version  int           `json:"version"`
	Action   Action        `json:"action"`
	Actor    string        `json:"actor"`
	LoggedAt time.Time     `json:"logged_at"`
	Changes  []FieldChange `json:"changes"`
}

// AuditStatus is the outcome of an audited operation.
type AuditStatus string

const (
	AuditStatusSuccess AuditStatus = "success"
	AuditStatusError   AuditStatus = "error"
)

// AuditEntry records an operation performed against an entity, successful
// or not.
type AuditEntry struct {
	ID        string        `json:"id"`
	Operation string        `json:"operation"`
	Entity    EntityType    `json:"entity"`
	Action    Action        `json:"action"`
	EntityID  string        `json:"entity_id"`
	Actor     string        `json:"actor"`
	Status    AuditStatus   `json:"status"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"duration"`
	Timestamp time.Time     `json:"timestamp"`
}

// AnonymousActor is used when no actor is attached to the context.
const AnonymousActor = "anonymous"

type actorKey struct{}

// WithActor attaches the acting user to ctx.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFromContext returns the acting user, or AnonymousActor.
func ActorFromContext(ctx context.Context) string {
	if ctx == nil {
		return AnonymousActor
	}
	if actor, ok := ctx.Value(actorKey{}).(string); ok && actor != "" {
		return actor
	}
	return AnonymousActor
}

// DiffVersioned compares the versioned fields of two records. A nil before
// describes a creation and a nil after a deletion; every versioned field is
// reported in those cases. For updates only changed fields are returned.
func DiffVersioned(before, after Record) ([]FieldChange, error) {
	var entity EntityType
	switch {
	case after != nil:
		entity = after.EntityType()
	case before != nil:
		entity = before.EntityType()
	default:
		return nil, nil
	}
	schema, ok := SchemaFor(entity)
	if !ok {
		return nil, fmt.Errorf("no schema for %s", entity)
	}
	var oldValues, newValues map[string]any
	if before != nil {
		oldValues = before.Fields()
	}
	if after != nil {
		newValues = after.Fields()
	}
	var changes []FieldChange
	for _, field := range schema.VersionedFields() {
		oldPayload, err := payloadOf(oldValues, field.Name)
		if err != nil {
			return nil, err
		}
		newPayload, err := payloadOf(newValues, field.Name)
		if err != nil {
			return nil, err
		}
		if before != nil && after != nil && oldPayload.Equal(newPayload) {
			continue
		}
		changes = append(changes, FieldChange{Field: field.Name, Old: oldPayload, New: newPayload})
	}
	return changes, nil
}

func payloadOf(values map[string]any, field string) (ChangePayload, error) {
	if values == nil {
		return UndefinedChangePayload(), nil
	}
	value := values[field]
	if value == nil {
		return UndefinedChangePayload(), nil
	}
	payload, err := NewChangePayloadFromValue(value)
	if err != nil {
		return ChangePayload{}, fmt.Errorf("encode %s: %w", field, err)
	}
	return payload, nil
}
