package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"gravecore/pkg/domain"
)

// Relationship types written by the projector.
const (
	RelLocatedIn = "LOCATED_IN" // grave -> cemetery
	RelRestsIn   = "RESTS_IN"   // burial -> grave
	RelCovers    = "COVERS"     // cover -> grave
)

var labels = map[domain.EntityType]string{
	domain.EntityCemetery: "Cemetery",
	domain.EntityGrave:    "Grave",
	domain.EntityBurial:   "Burial",
	domain.EntityCover:    "Cover",
}

// relation describes the owning side of a link.
type relation struct {
	relType string
	target  string
}

var relations = map[string]relation{
	"grave/cemetery_id": {relType: RelLocatedIn, target: "Cemetery"},
	"burial/grave_id":   {relType: RelRestsIn, target: "Grave"},
	"cover/grave_ids":   {relType: RelCovers, target: "Grave"},
}

// Projector turns change log entries into graph writes. Entries are applied
// idempotently so replays converge on the same graph.
type Projector struct {
	writer Writer
	logger *slog.Logger
}

// NewProjector builds a projector writing through w.
func NewProjector(w Writer) *Projector {
	return &Projector{writer: w, logger: slog.Default().With("module", "graph-projector")}
}

// Handle decodes one change event; it matches mq.MessageHandler.
func (p *Projector) Handle(ctx context.Context, topic string, message []byte) error {
	var entry domain.ChangeLogEntry
	if err := json.Unmarshal(message, &entry); err != nil {
		return fmt.Errorf("decode change event from %s: %w", topic, err)
	}
	return p.Apply(ctx, entry)
}

// Apply writes one entry.
func (p *Projector) Apply(ctx context.Context, entry domain.ChangeLogEntry) error {
	statements, err := Statements(entry)
	if err != nil {
		return err
	}
	if len(statements) == 0 {
		return nil
	}
	if err := p.writer.WriteBatch(ctx, statements); err != nil {
		return fmt.Errorf("project %s %s v%d: %w", entry.Entity, entry.EntityID, entry.Version, err)
	}
	p.logger.Debug("projected change", "entity", entry.Entity, "entity_id", entry.EntityID, "version", entry.Version)
	return nil
}

// Statements translates an entry into Cypher.
func Statements(entry domain.ChangeLogEntry) ([]Statement, error) {
	label, ok := labels[entry.Entity]
	if !ok {
		return nil, fmt.Errorf("unknown entity %q", entry.Entity)
	}
	if entry.EntityID == "" {
		return nil, fmt.Errorf("%s change without id", entry.Entity)
	}
	if entry.Action == domain.ActionDelete {
		return []Statement{{
			Cypher: fmt.Sprintf(`MATCH (n:%s {id: $id}) DETACH DELETE n`, label),
			Params: map[string]any{"id": entry.EntityID},
		}}, nil
	}

	props := map[string]any{"version": entry.Version, "updated_at": entry.LoggedAt.UTC().Format("2006-01-02T15:04:05Z07:00")}
	var links []Statement
	for _, change := range entry.Changes {
		value, err := decode(change.New)
		if err != nil {
			return nil, fmt.Errorf("decode %s.%s: %w", entry.Entity, change.Field, err)
		}
		rel, isRelation := relations[string(entry.Entity)+"/"+change.Field]
		if !isRelation {
			if scalar(value) {
				props[change.Field] = value
			}
			continue
		}
		links = append(links, linkStatements(label, entry.EntityID, rel, value)...)
	}

	out := []Statement{{
		Cypher: fmt.Sprintf(`MERGE (n:%s {id: $id}) SET n += $props`, label),
		Params: map[string]any{"id": entry.EntityID, "props": props},
	}}
	return append(out, links...), nil
}

func linkStatements(label, id string, rel relation, value any) []Statement {
	detach := Statement{
		Cypher: fmt.Sprintf(`MATCH (n:%s {id: $id})-[r:%s]->() DELETE r`, label, rel.relType),
		Params: map[string]any{"id": id},
	}
	var targets []string
	switch v := value.(type) {
	case string:
		targets = []string{v}
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				targets = append(targets, s)
			}
		}
	}
	if len(targets) == 0 {
		return []Statement{detach}
	}
	attach := Statement{
		Cypher: fmt.Sprintf(`MATCH (n:%s {id: $id}) UNWIND $targets AS target MERGE (t:%s {id: target}) MERGE (n)-[:%s]->(t)`, label, rel.target, rel.relType),
		Params: map[string]any{"id": id, "targets": targets},
	}
	return []Statement{detach, attach}
}

func decode(p domain.ChangePayload) (any, error) {
	if p.IsEmpty() {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(p.Raw(), &v); err != nil {
		return nil, err
	}
	return v, nil
}

func scalar(v any) bool {
	switch v.(type) {
	case nil, string, float64, bool:
		return true
	}
	return false
}
