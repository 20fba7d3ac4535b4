package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"knowledge-organization/backend/internal/model"
	apperrors "knowledge-organization/backend/pkg/errors"
	"knowledge-organization/backend/pkg/logger"
)

// Repository handles all Neo4j database operations.
//
// Layout: (:KnowledgeGraph {id}) headers, (:KnowledgeNode {graph_id, id})
// nodes and [:RELATIONSHIP {graph_id, id, type}] edges. Nested values
// (properties, metadata) are stored as JSON strings.
type Repository struct {
	driver   neo4j.DriverWithContext
	database string
	logger   *zap.Logger
}

// DriverConfig holds the connection settings for NewDriver.
type DriverConfig struct {
	URI         string
	User        string
	Password    string
	MaxPoolSize int
	Timeout     time.Duration
}

// NewDriver opens a pooled driver and verifies connectivity.
func NewDriver(ctx context.Context, cfg DriverConfig) (neo4j.DriverWithContext, error) {
	driver, err := neo4j.NewDriverWithContext(
		cfg.URI,
		neo4j.BasicAuth(cfg.User, cfg.Password, ""),
		func(c *neo4j.Config) {
			if cfg.MaxPoolSize > 0 {
				c.MaxConnectionPoolSize = cfg.MaxPoolSize
			}
			if cfg.Timeout > 0 {
				c.SocketConnectTimeout = cfg.Timeout
				c.ConnectionAcquisitionTimeout = cfg.Timeout
			}
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Neo4j driver: %w", err)
	}

	verifyCtx := ctx
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		verifyCtx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}
	if err := driver.VerifyConnectivity(verifyCtx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("failed to verify Neo4j connectivity: %w", err)
	}
	return driver, nil
}

// NewRepository creates a new graph repository. database may be empty for
// the server default.
func NewRepository(driver neo4j.DriverWithContext, database string) *Repository {
	return &Repository{
		driver:   driver,
		database: database,
		logger:   logger.Get(),
	}
}

// Close closes the Neo4j driver connection
func (r *Repository) Close() error {
	return r.driver.Close(context.Background())
}

// Ping verifies the driver can reach the server.
func (r *Repository) Ping(ctx context.Context) error {
	return r.driver.VerifyConnectivity(ctx)
}

func (r *Repository) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: mode, DatabaseName: r.database})
}

// storeErr leaves domain errors untouched and wraps driver failures as
// collaborator errors.
func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if apperrors.TypeOf(err) != "" {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return apperrors.NewContextCancelled(op, err)
	}
	return apperrors.NewCollaborator("neo4j", neo4j.IsRetryable(err), fmt.Errorf("failed to %s: %w", op, err))
}

func (r *Repository) CreateGraph(ctx context.Context, g *model.Graph) error {
	session := r.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	params, err := graphParams(g)
	if err != nil {
		return err
	}

	_, err = session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			OPTIONAL MATCH (existing:KnowledgeGraph {id: $id})
			WITH existing
			WHERE existing IS NULL
			CREATE (g:KnowledgeGraph {id: $id})
			SET g.name = $name,
			    g.type = $type,
			    g.version = $version,
			    g.metadata_json = $metadata_json,
			    g.created_at = $created_at,
			    g.updated_at = $updated_at
			RETURN g.id AS id
		`, params)
		if err != nil {
			return nil, err
		}
		if !res.Next(ctx) {
			if err := res.Err(); err != nil {
				return nil, err
			}
			return nil, apperrors.NewConflict("graph", g.ID)
		}
		return nil, nil
	})
	if err != nil {
		return storeErr("create graph", err)
	}
	r.logger.Debug("Graph created", zap.String("graph_id", g.ID), zap.String("name", g.Name))
	return nil
}

func (r *Repository) SaveGraph(ctx context.Context, g *model.Graph) error {
	session := r.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	result, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (g:KnowledgeGraph {id: $id})
			OPTIONAL MATCH (n:KnowledgeNode {graph_id: $id})
			WITH g, count(n) AS node_count
			OPTIONAL MATCH ()-[rel:RELATIONSHIP {graph_id: $id}]->()
			RETURN g.version AS version, node_count, count(rel) AS relationship_count
		`, map[string]interface{}{"id": g.ID})
		if err != nil {
			return nil, err
		}
		if !res.Next(ctx) {
			if err := res.Err(); err != nil {
				return nil, err
			}
			return nil, apperrors.NewNotFound("graph", g.ID)
		}
		record := res.Record()
		if getInt64FromRecord(record, "version") != g.Version {
			return nil, apperrors.NewConflict("graph", g.ID)
		}

		next := shellOf(g)
		next.Version = g.Version + 1
		next.UpdatedAt = time.Now().UTC()
		next.Metadata.NodeCount = getIntFromRecord(record, "node_count")
		next.Metadata.RelationshipCount = getIntFromRecord(record, "relationship_count")
		params, err := graphParams(next)
		if err != nil {
			return nil, err
		}
		params["expected"] = g.Version
		if _, err := tx.Run(ctx, `
			MATCH (g:KnowledgeGraph {id: $id})
			WHERE g.version = $expected
			SET g.name = $name,
			    g.type = $type,
			    g.version = $version,
			    g.metadata_json = $metadata_json,
			    g.updated_at = $updated_at
		`, params); err != nil {
			return nil, err
		}
		return next, nil
	})
	if err != nil {
		return storeErr("save graph", err)
	}
	next := result.(*model.Graph)
	g.Version = next.Version
	g.UpdatedAt = next.UpdatedAt
	g.Metadata.NodeCount = next.Metadata.NodeCount
	g.Metadata.RelationshipCount = next.Metadata.RelationshipCount
	return nil
}

func (r *Repository) LoadGraph(ctx context.Context, graphID string) (*model.Graph, error) {
	session := r.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (g:KnowledgeGraph {id: $id})
			RETURN properties(g) AS props
		`, map[string]interface{}{"id": graphID})
		if err != nil {
			return nil, err
		}
		if !res.Next(ctx) {
			if err := res.Err(); err != nil {
				return nil, err
			}
			return nil, apperrors.NewNotFound("graph", graphID)
		}
		g, err := graphFromProps(getMapFromRecord(res.Record(), "props"))
		if err != nil {
			return nil, err
		}

		res, err = tx.Run(ctx, `
			MATCH (n:KnowledgeNode {graph_id: $id})
			RETURN properties(n) AS props
		`, map[string]interface{}{"id": graphID})
		if err != nil {
			return nil, err
		}
		var nodes []*model.Node
		for res.Next(ctx) {
			n, err := nodeFromProps(getMapFromRecord(res.Record(), "props"))
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, n)
		}
		if err := res.Err(); err != nil {
			return nil, err
		}

		res, err = tx.Run(ctx, `
			MATCH (s:KnowledgeNode)-[rel:RELATIONSHIP {graph_id: $id}]->(t:KnowledgeNode)
			RETURN properties(rel) AS props, s.id AS source_id, t.id AS target_id
		`, map[string]interface{}{"id": graphID})
		if err != nil {
			return nil, err
		}
		rels, err := collectRelationships(ctx, res)
		if err != nil {
			return nil, err
		}

		g.Restore(nodes, rels)
		return g, nil
	})
	if err != nil {
		return nil, storeErr("load graph", err)
	}
	return result.(*model.Graph), nil
}

func (r *Repository) PurgeGraph(ctx context.Context, graphID string) error {
	session := r.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			OPTIONAL MATCH (n:KnowledgeNode {graph_id: $id})
			DETACH DELETE n
			WITH count(*) AS ignored
			OPTIONAL MATCH (g:KnowledgeGraph {id: $id})
			DETACH DELETE g
		`, map[string]interface{}{"id": graphID})
		if err != nil {
			return nil, err
		}
		_, err = res.Consume(ctx)
		return nil, err
	})
	if err != nil {
		return storeErr("purge graph", err)
	}
	r.logger.Info("Graph purged", zap.String("graph_id", graphID))
	return nil
}

func (r *Repository) UpsertNodes(ctx context.Context, graphID string, nodes []*model.Node) error {
	if len(nodes) == 0 {
		return nil
	}
	rows := make([]map[string]interface{}, 0, len(nodes))
	for _, n := range nodes {
		if err := n.Validate(); err != nil {
			return err
		}
		row, err := nodeParams(graphID, n)
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}

	session := r.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if err := requireGraph(ctx, tx, graphID); err != nil {
			return nil, err
		}
		res, err := tx.Run(ctx, `
			UNWIND $rows AS row
			MERGE (n:KnowledgeNode {graph_id: row.graph_id, id: row.id})
			SET n += row
		`, map[string]interface{}{"rows": rows})
		if err != nil {
			return nil, err
		}
		_, err = res.Consume(ctx)
		return nil, err
	})
	return storeErr("upsert nodes", err)
}

func (r *Repository) UpdateNode(ctx context.Context, graphID string, n *model.Node) error {
	if err := n.Validate(); err != nil {
		return err
	}
	next := n.Clone()
	next.Version = n.Version + 1
	next.UpdatedAt = time.Now().UTC()
	row, err := nodeParams(graphID, next)
	if err != nil {
		return err
	}

	session := r.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	_, err = session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (n:KnowledgeNode {graph_id: $graph_id, id: $id})
			RETURN n.version AS version
		`, map[string]interface{}{"graph_id": graphID, "id": n.ID})
		if err != nil {
			return nil, err
		}
		if !res.Next(ctx) {
			if err := res.Err(); err != nil {
				return nil, err
			}
			return nil, apperrors.NewNotFound("node", n.ID)
		}
		if getInt64FromRecord(res.Record(), "version") != n.Version {
			return nil, apperrors.NewConflict("node", n.ID)
		}
		res, err = tx.Run(ctx, `
			MATCH (n:KnowledgeNode {graph_id: $graph_id, id: $id})
			WHERE n.version = $expected
			SET n += $row
		`, map[string]interface{}{"graph_id": graphID, "id": n.ID, "expected": n.Version, "row": row})
		if err != nil {
			return nil, err
		}
		_, err = res.Consume(ctx)
		return nil, err
	})
	if err != nil {
		return storeErr("update node", err)
	}
	n.Version = next.Version
	n.UpdatedAt = next.UpdatedAt
	return nil
}

func (r *Repository) DeactivateNode(ctx context.Context, graphID, nodeID string) ([]string, error) {
	session := r.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	// Explicit transaction: the flag flip and the cascade commit together.
	tx, err := session.BeginTransaction(ctx)
	if err != nil {
		return nil, storeErr("deactivate node", err)
	}
	defer tx.Close(ctx)

	res, err := tx.Run(ctx, `
		MATCH (n:KnowledgeNode {graph_id: $graph_id, id: $id})
		SET n.is_active = false,
		    n.version = n.version + 1,
		    n.updated_at = $now
		WITH n
		OPTIONAL MATCH (n)-[rel:RELATIONSHIP]-()
		WITH n, collect(DISTINCT rel) AS rels
		WITH n, rels, [rel IN rels | rel.id] AS ids
		FOREACH (rel IN rels | DELETE rel)
		RETURN ids
	`, map[string]interface{}{"graph_id": graphID, "id": nodeID, "now": time.Now().UTC()})
	if err != nil {
		return nil, storeErr("deactivate node", err)
	}
	if !res.Next(ctx) {
		if err := res.Err(); err != nil {
			return nil, storeErr("deactivate node", err)
		}
		return nil, apperrors.NewNotFound("node", nodeID)
	}
	removed := getStringSliceFromRecord(res.Record(), "ids")
	if err := tx.Commit(ctx); err != nil {
		return nil, storeErr("deactivate node", err)
	}
	r.logger.Info("Node deactivated",
		zap.String("graph_id", graphID),
		zap.String("node_id", nodeID),
		zap.Int("relationships_removed", len(removed)))
	return sortedCopy(removed), nil
}

func (r *Repository) UpsertRelationships(ctx context.Context, graphID string, rels []*model.Relationship) error {
	if len(rels) == 0 {
		return nil
	}
	rows := make([]map[string]interface{}, 0, len(rels))
	for _, rel := range rels {
		if err := rel.Validate(); err != nil {
			return err
		}
		row, err := relationshipParams(graphID, rel)
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}

	session := r.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			UNWIND $rows AS row
			OPTIONAL MATCH (s:KnowledgeNode {graph_id: row.graph_id, id: row.source_id})
			OPTIONAL MATCH (t:KnowledgeNode {graph_id: row.graph_id, id: row.target_id})
			OPTIONAL MATCH (s)-[other:RELATIONSHIP]->(t)
			WHERE other.id <> row.id
			RETURN row.id AS id, row.source_id AS source_id, row.target_id AS target_id,
			       s IS NOT NULL AS has_source, t IS NOT NULL AS has_target, other.id AS existing
		`, map[string]interface{}{"rows": rows})
		if err != nil {
			return nil, err
		}
		for res.Next(ctx) {
			record := res.Record()
			if !getBoolFromRecord(record, "has_source") {
				return nil, apperrors.NewValidation("relationship.source_id", "unknown node "+getStringFromRecord(record, "source_id"))
			}
			if !getBoolFromRecord(record, "has_target") {
				return nil, apperrors.NewValidation("relationship.target_id", "unknown node "+getStringFromRecord(record, "target_id"))
			}
			if existing := getStringFromRecord(record, "existing"); existing != "" {
				return nil, apperrors.NewValidation("relationship", fmt.Sprintf("%s→%s already linked by %s",
					getStringFromRecord(record, "source_id"), getStringFromRecord(record, "target_id"), existing))
			}
		}
		if err := res.Err(); err != nil {
			return nil, err
		}

		res, err = tx.Run(ctx, `
			UNWIND $rows AS row
			MATCH (s:KnowledgeNode {graph_id: row.graph_id, id: row.source_id})
			MATCH (t:KnowledgeNode {graph_id: row.graph_id, id: row.target_id})
			MERGE (s)-[rel:RELATIONSHIP {graph_id: row.graph_id, id: row.id}]->(t)
			SET rel.type = row.type,
			    rel.weight = row.weight,
			    rel.metadata_json = row.metadata_json,
			    rel.version = row.version,
			    rel.created_at = row.created_at,
			    rel.updated_at = row.updated_at
		`, map[string]interface{}{"rows": rows})
		if err != nil {
			return nil, err
		}
		_, err = res.Consume(ctx)
		return nil, err
	})
	return storeErr("upsert relationships", err)
}

func (r *Repository) DeleteRelationships(ctx context.Context, graphID string, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	session := r.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	result, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH ()-[rel:RELATIONSHIP {graph_id: $graph_id}]->()
			WHERE rel.id IN $ids
			DELETE rel
			RETURN count(*) AS deleted
		`, map[string]interface{}{"graph_id": graphID, "ids": ids})
		if err != nil {
			return nil, err
		}
		record, err := res.Single(ctx)
		if err != nil {
			return nil, err
		}
		return getIntFromRecord(record, "deleted"), nil
	})
	if err != nil {
		return 0, storeErr("delete relationships", err)
	}
	return result.(int), nil
}

// UpdateRelationshipWeights applies every update in one transaction or none.
func (r *Repository) UpdateRelationshipWeights(ctx context.Context, graphID string, updates []model.WeightUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	if err := validateWeights(updates); err != nil {
		return err
	}
	rows := make([]map[string]interface{}, 0, len(updates))
	for _, u := range updates {
		rows = append(rows, map[string]interface{}{"id": u.ID, "weight": u.Weight, "version": u.Version})
	}

	session := r.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			UNWIND $rows AS row
			OPTIONAL MATCH ()-[rel:RELATIONSHIP {graph_id: $graph_id, id: row.id}]->()
			WITH row, rel
			WHERE rel IS NULL OR rel.version <> row.version
			RETURN row.id AS id
		`, map[string]interface{}{"graph_id": graphID, "rows": rows})
		if err != nil {
			return nil, err
		}
		var stale []string
		for res.Next(ctx) {
			stale = append(stale, getStringFromRecord(res.Record(), "id"))
		}
		if err := res.Err(); err != nil {
			return nil, err
		}
		if len(stale) > 0 {
			return nil, apperrors.NewConflict("relationship", stale...)
		}

		res, err = tx.Run(ctx, `
			UNWIND $rows AS row
			MATCH ()-[rel:RELATIONSHIP {graph_id: $graph_id, id: row.id}]->()
			WHERE rel.version = row.version
			SET rel.weight = row.weight,
			    rel.version = rel.version + 1,
			    rel.updated_at = $now
			RETURN count(rel) AS updated
		`, map[string]interface{}{"graph_id": graphID, "rows": rows, "now": time.Now().UTC()})
		if err != nil {
			return nil, err
		}
		record, err := res.Single(ctx)
		if err != nil {
			return nil, err
		}
		if n := getIntFromRecord(record, "updated"); n != len(rows) {
			return nil, apperrors.NewConflict("relationship")
		}
		return nil, nil
	})
	return storeErr("update relationship weights", err)
}

func (r *Repository) RelationshipsByID(ctx context.Context, graphID string, ids []string) ([]*model.Relationship, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	session := r.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			UNWIND range(0, size($ids) - 1) AS idx
			MATCH (s:KnowledgeNode)-[rel:RELATIONSHIP {graph_id: $graph_id, id: $ids[idx]}]->(t:KnowledgeNode)
			RETURN properties(rel) AS props, s.id AS source_id, t.id AS target_id
			ORDER BY idx
		`, map[string]interface{}{"graph_id": graphID, "ids": ids})
		if err != nil {
			return nil, err
		}
		return collectRelationships(ctx, res)
	})
	if err != nil {
		return nil, storeErr("load relationships", err)
	}
	return result.([]*model.Relationship), nil
}

func (r *Repository) RelationshipsForNodes(ctx context.Context, graphID string, nodeIDs []string) ([]*model.Relationship, error) {
	if len(nodeIDs) == 0 {
		return nil, nil
	}
	session := r.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (s:KnowledgeNode)-[rel:RELATIONSHIP {graph_id: $graph_id}]->(t:KnowledgeNode)
			WHERE s.id IN $ids OR t.id IN $ids
			RETURN properties(rel) AS props, s.id AS source_id, t.id AS target_id
			ORDER BY rel.id
		`, map[string]interface{}{"graph_id": graphID, "ids": nodeIDs})
		if err != nil {
			return nil, err
		}
		return collectRelationships(ctx, res)
	})
	if err != nil {
		return nil, storeErr("load relationships", err)
	}
	return result.([]*model.Relationship), nil
}

func (r *Repository) Count(ctx context.Context, graphID string) (int, int, error) {
	session := r.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (g:KnowledgeGraph {id: $id})
			OPTIONAL MATCH (n:KnowledgeNode {graph_id: $id})
			WITH g, count(n) AS node_count
			OPTIONAL MATCH ()-[rel:RELATIONSHIP {graph_id: $id}]->()
			RETURN node_count, count(rel) AS relationship_count
		`, map[string]interface{}{"id": graphID})
		if err != nil {
			return nil, err
		}
		if !res.Next(ctx) {
			if err := res.Err(); err != nil {
				return nil, err
			}
			return nil, apperrors.NewNotFound("graph", graphID)
		}
		record := res.Record()
		return [2]int{getIntFromRecord(record, "node_count"), getIntFromRecord(record, "relationship_count")}, nil
	})
	if err != nil {
		return 0, 0, storeErr("count graph", err)
	}
	counts := result.([2]int)
	return counts[0], counts[1], nil
}

func requireGraph(ctx context.Context, tx neo4j.ManagedTransaction, graphID string) error {
	res, err := tx.Run(ctx, `MATCH (g:KnowledgeGraph {id: $id}) RETURN g.id AS id`, map[string]interface{}{"id": graphID})
	if err != nil {
		return err
	}
	if !res.Next(ctx) {
		if err := res.Err(); err != nil {
			return err
		}
		return apperrors.NewNotFound("graph", graphID)
	}
	return nil
}

func collectRelationships(ctx context.Context, res neo4j.ResultWithContext) ([]*model.Relationship, error) {
	var rels []*model.Relationship
	for res.Next(ctx) {
		record := res.Record()
		rel, err := relationshipFromProps(getMapFromRecord(record, "props"))
		if err != nil {
			return nil, err
		}
		rel.SourceID = getStringFromRecord(record, "source_id")
		rel.TargetID = getStringFromRecord(record, "target_id")
		rels = append(rels, rel)
	}
	if err := res.Err(); err != nil {
		return nil, err
	}
	return rels, nil
}

// ============================================================================
// Property encoding
// ============================================================================

func graphParams(g *model.Graph) (map[string]interface{}, error) {
	meta, err := json.Marshal(g.Metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to encode graph metadata: %w", err)
	}
	return map[string]interface{}{
		"id":            g.ID,
		"name":          g.Name,
		"type":          string(g.Type),
		"version":       g.Version,
		"metadata_json": string(meta),
		"created_at":    g.CreatedAt,
		"updated_at":    g.UpdatedAt,
	}, nil
}

func graphFromProps(props map[string]interface{}) (*model.Graph, error) {
	g := &model.Graph{
		ID:        getStringFromMap(props, "id", ""),
		Name:      getStringFromMap(props, "name", ""),
		Type:      model.GraphType(getStringFromMap(props, "type", string(model.GraphKnowledge))),
		Version:   getInt64FromMap(props, "version", 1),
		CreatedAt: getTimeFromMap(props, "created_at", time.Time{}),
		UpdatedAt: getTimeFromMap(props, "updated_at", time.Time{}),
	}
	if raw := getStringFromMap(props, "metadata_json", ""); raw != "" {
		if err := json.Unmarshal([]byte(raw), &g.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode graph metadata: %w", err)
		}
	}
	return g, nil
}

func nodeParams(graphID string, n *model.Node) (map[string]interface{}, error) {
	props, err := json.Marshal(n.Properties)
	if err != nil {
		return nil, fmt.Errorf("failed to encode node properties: %w", err)
	}
	meta, err := json.Marshal(n.Metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to encode node metadata: %w", err)
	}
	vector := n.Vector
	if vector == nil {
		vector = []float64{}
	}
	return map[string]interface{}{
		"id":               n.ID,
		"graph_id":         graphID,
		"label":            string(n.Label),
		"name":             n.Name,
		"content":          n.Content,
		"vector":           vector,
		"properties_json":  string(props),
		"importance_score": n.ImportanceScore,
		"metadata_json":    string(meta),
		"is_active":        n.IsActive,
		"version":          n.Version,
		"created_at":       n.CreatedAt,
		"updated_at":       n.UpdatedAt,
	}, nil
}

func nodeFromProps(props map[string]interface{}) (*model.Node, error) {
	n := &model.Node{
		ID:              getStringFromMap(props, "id", ""),
		GraphID:         getStringFromMap(props, "graph_id", ""),
		Label:           model.NodeLabel(getStringFromMap(props, "label", string(model.LabelConcept))),
		Name:            getStringFromMap(props, "name", ""),
		Content:         getStringFromMap(props, "content", ""),
		Vector:          getFloat64SliceFromMap(props, "vector"),
		ImportanceScore: getFloat64FromMap(props, "importance_score", 0),
		IsActive:        getBoolFromMap(props, "is_active", true),
		Version:         getInt64FromMap(props, "version", 1),
		CreatedAt:       getTimeFromMap(props, "created_at", time.Time{}),
		UpdatedAt:       getTimeFromMap(props, "updated_at", time.Time{}),
	}
	if raw := getStringFromMap(props, "properties_json", ""); raw != "" {
		if err := json.Unmarshal([]byte(raw), &n.Properties); err != nil {
			return nil, fmt.Errorf("failed to decode node properties: %w", err)
		}
	}
	if raw := getStringFromMap(props, "metadata_json", ""); raw != "" {
		if err := json.Unmarshal([]byte(raw), &n.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode node metadata: %w", err)
		}
	}
	return n, nil
}

func relationshipParams(graphID string, rel *model.Relationship) (map[string]interface{}, error) {
	meta, err := json.Marshal(rel.Metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to encode relationship metadata: %w", err)
	}
	return map[string]interface{}{
		"id":            rel.ID,
		"graph_id":      graphID,
		"type":          string(rel.Type),
		"source_id":     rel.SourceID,
		"target_id":     rel.TargetID,
		"weight":        rel.Weight,
		"metadata_json": string(meta),
		"version":       rel.Version,
		"created_at":    rel.CreatedAt,
		"updated_at":    rel.UpdatedAt,
	}, nil
}

func relationshipFromProps(props map[string]interface{}) (*model.Relationship, error) {
	rel := &model.Relationship{
		ID:        getStringFromMap(props, "id", ""),
		GraphID:   getStringFromMap(props, "graph_id", ""),
		Type:      model.RelationshipType(getStringFromMap(props, "type", string(model.RelRelated))),
		Weight:    getFloat64FromMap(props, "weight", 0),
		Version:   getInt64FromMap(props, "version", 1),
		CreatedAt: getTimeFromMap(props, "created_at", time.Time{}),
		UpdatedAt: getTimeFromMap(props, "updated_at", time.Time{}),
	}
	if raw := getStringFromMap(props, "metadata_json", ""); raw != "" {
		if err := json.Unmarshal([]byte(raw), &rel.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode relationship metadata: %w", err)
		}
	}
	return rel, nil
}
