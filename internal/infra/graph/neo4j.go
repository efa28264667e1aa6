// Package graph mirrors committed changes into a Neo4j graph so cemetery,
// grave, burial and cover links can be traversed.
package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Config holds the Neo4j connection settings.
type Config struct {
	Enabled  bool   `toml:"enabled"`
	URI      string `toml:"uri"`
	Username string `toml:"username"`
	Password string `toml:"password"`
	Database string `toml:"database"`
}

// Validate checks the settings when the projection is enabled.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.URI == "" {
		return fmt.Errorf("uri is required when graph is enabled")
	}
	return nil
}

// Statement is one parameterised Cypher query.
type Statement struct {
	Cypher string
	Params map[string]any
}

// Writer runs statements atomically.
type Writer interface {
	WriteBatch(ctx context.Context, statements []Statement) error
}

// Neo4jStore runs statements against a Neo4j database.
type Neo4jStore struct {
	driver   neo4j.DriverWithContext
	database string
}

// Open connects and verifies connectivity.
func Open(ctx context.Context, cfg Config) (*Neo4jStore, error) {
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	verifyCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := driver.VerifyConnectivity(verifyCtx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("verify neo4j connectivity: %w", err)
	}
	return NewNeo4jStore(driver, cfg.Database), nil
}

// NewNeo4jStore wraps an existing driver. An empty database selects the
// server default.
func NewNeo4jStore(driver neo4j.DriverWithContext, database string) *Neo4jStore {
	return &Neo4jStore{driver: driver, database: database}
}

// WriteBatch runs all statements in one write transaction.
func (s *Neo4jStore) WriteBatch(ctx context.Context, statements []Statement) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database, AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for _, st := range statements {
			if _, err := tx.Run(ctx, st.Cypher, st.Params); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	return err
}

// Related returns the ids of nodes linked to the given node by any of the
// relationship types, in either direction.
func (s *Neo4jStore) Related(ctx context.Context, label, id string, relTypes ...string) ([]string, error) {
	pattern := ""
	for i, rt := range relTypes {
		if i == 0 {
			pattern = ":" + rt
		} else {
			pattern += "|" + rt
		}
	}
	cypher := fmt.Sprintf(`MATCH (n:%s {id: $id})-[%s]-(m) RETURN DISTINCT m.id AS id ORDER BY id`, label, pattern)

	session := s.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database, AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)
	result, err := session.Run(ctx, cypher, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("cypher execution failed: %w", err)
	}
	records, err := result.Collect(ctx)
	if err != nil {
		return nil, fmt.Errorf("collect results: %w", err)
	}
	ids := make([]string, 0, len(records))
	for _, record := range records {
		if v, ok := record.Get("id"); ok {
			if related, ok := v.(string); ok {
				ids = append(ids, related)
			}
		}
	}
	return ids, nil
}

// Health checks connectivity.
func (s *Neo4jStore) Health(ctx context.Context) error {
	return s.driver.VerifyConnectivity(ctx)
}

// Close closes the driver.
func (s *Neo4jStore) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}
