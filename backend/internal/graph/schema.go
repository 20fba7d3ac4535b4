package graph

import (
	"context"
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"
)

// SchemaVersion identifies the migration set below.
const SchemaVersion = "knowledge_graph_schema_v1"

// Migration is one named group of Cypher statements separated by semicolons.
type Migration struct {
	Name        string
	Description string
	Query       string
}

// Migrations returns the schema migrations in apply order. Every statement
// is idempotent.
func Migrations() []Migration {
	return []Migration{
		{
			Name:        "Create Constraints",
			Description: "Unique graph ids and per-graph node ids",
			Query: `
				// Graph headers
				CREATE CONSTRAINT knowledge_graph_id_unique IF NOT EXISTS FOR (g:KnowledgeGraph) REQUIRE g.id IS UNIQUE;

				// Node ids are unique within a graph
				CREATE CONSTRAINT knowledge_node_key IF NOT EXISTS FOR (n:KnowledgeNode) REQUIRE (n.graph_id, n.id) IS UNIQUE;
			`,
		},
		{
			Name:        "Create Indexes",
			Description: "Lookup indexes for graph scans and relationship ids",
			Query: `
				CREATE INDEX knowledge_node_graph IF NOT EXISTS FOR (n:KnowledgeNode) ON (n.graph_id);
				CREATE INDEX knowledge_node_active IF NOT EXISTS FOR (n:KnowledgeNode) ON (n.graph_id, n.is_active);
				CREATE INDEX relationship_id IF NOT EXISTS FOR ()-[r:RELATIONSHIP]-() ON (r.id);
				CREATE INDEX relationship_graph IF NOT EXISTS FOR ()-[r:RELATIONSHIP]-() ON (r.graph_id);
			`,
		},
		{
			Name:        "Backfill Versions",
			Description: "Give entities written before optimistic locking a version",
			Query: `
				MATCH (n:KnowledgeNode) WHERE n.version IS NULL SET n.version = 1;
				MATCH ()-[r:RELATIONSHIP]->() WHERE r.version IS NULL SET r.version = 1;
				MATCH (g:KnowledgeGraph) WHERE g.version IS NULL SET g.version = 1;
			`,
		},
	}
}

// MigrationApplied reports whether SchemaVersion has been recorded.
func (r *Repository) MigrationApplied(ctx context.Context) (bool, error) {
	session := r.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	result, err := session.Run(ctx, `
		MATCH (m:Migration {version: $version})
		RETURN m.applied_at as applied_at
	`, map[string]interface{}{"version": SchemaVersion})
	if err != nil {
		return false, fmt.Errorf("failed to check migration status: %w", err)
	}
	return result.Next(ctx), nil
}

// ApplyMigrations runs every migration statement. Statements that fail are
// logged and skipped unless strict is set.
func (r *Repository) ApplyMigrations(ctx context.Context, strict bool) error {
	session := r.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	migrations := Migrations()
	for i, migration := range migrations {
		r.logger.Info("Running migration",
			zap.Int("step", i+1),
			zap.Int("total", len(migrations)),
			zap.String("name", migration.Name),
			zap.String("description", migration.Description),
		)

		for j, stmt := range SplitStatements(migration.Query) {
			result, err := session.Run(ctx, stmt, nil)
			if err == nil {
				_, err = result.Consume(ctx)
			}
			if err != nil {
				if strict {
					return fmt.Errorf("failed to run migration %q statement %d: %w", migration.Name, j+1, err)
				}
				r.logger.Warn("Migration step had an error",
					zap.String("migration", migration.Name),
					zap.Int("statement", j+1),
					zap.Error(err),
				)
			}
		}

		r.logger.Info("Migration step completed", zap.String("name", migration.Name))
	}

	result, err := session.Run(ctx, `
		MERGE (m:Migration {version: $version})
		SET m.applied_at = datetime(),
		    m.description = 'Knowledge graph constraints, indexes and version backfill'
	`, map[string]interface{}{"version": SchemaVersion})
	if err != nil {
		return fmt.Errorf("failed to mark migration applied: %w", err)
	}
	_, err = result.Consume(ctx)
	return err
}

// SplitStatements splits a Cypher script on semicolons, dropping // and
// /* */ comments and empty statements.
func SplitStatements(script string) []string {
	lines := strings.Split(script, "\n")
	cleaned := make([]string, 0, len(lines))
	for _, line := range lines {
		if idx := strings.Index(line, "//"); idx >= 0 {
			line = line[:idx]
		}
		cleaned = append(cleaned, line)
	}

	var statements []string
	for _, part := range strings.Split(strings.Join(cleaned, "\n"), ";") {
		stmt := strings.TrimSpace(removeBlockComments(part))
		if stmt != "" {
			statements = append(statements, stmt)
		}
	}
	return statements
}

func removeBlockComments(text string) string {
	for {
		start := strings.Index(text, "/*")
		if start < 0 {
			return text
		}
		end := strings.Index(text[start+2:], "*/")
		if end < 0 {
			return text
		}
		text = text[:start] + text[start+end+4:]
	}
}
