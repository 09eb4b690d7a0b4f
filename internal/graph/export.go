package graph

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/sirupsen/logrus"

	"github.com/temcen/recurate/pkg/models"
)

const defaultBatchSize = 500

const mergeNodesCypher = `
UNWIND $rows AS row
MERGE (a:Anime {id: row.id})
SET a.title = row.title,
    a.cluster = row.cluster,
    a.x = row.x,
    a.y = row.y,
    a.radius = row.radius,
    a.popularity = row.popularity,
    a.score = row.score`

const mergeEdgesCypher = `
UNWIND $rows AS row
MATCH (a:Anime {id: row.source})
MATCH (b:Anime {id: row.target})
MERGE (a)-[r:SIMILAR_TO]->(b)
SET r.weight = row.weight`

// ExportStats summarizes one export.
type ExportStats struct {
	Nodes   int
	Edges   int
	Batches int
}

// writeSession is the part of neo4j.SessionWithContext the exporter uses.
type writeSession interface {
	ExecuteWrite(ctx context.Context, work neo4j.ManagedTransactionWork, configurers ...func(*neo4j.TransactionConfig)) (any, error)
	Close(ctx context.Context) error
}

// Exporter writes similarity maps into Neo4j as (:Anime)-[:SIMILAR_TO]->(:Anime).
type Exporter struct {
	newSession func(ctx context.Context) writeSession
	batchSize  int
	logger     *logrus.Logger
}

func NewExporter(driver neo4j.DriverWithContext, batchSize int, logger *logrus.Logger) *Exporter {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &Exporter{
		newSession: func(ctx context.Context) writeSession {
			return driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
		},
		batchSize: batchSize,
		logger:    logger,
	}
}

// Export merges every node and edge of m in a single write transaction.
func (e *Exporter) Export(ctx context.Context, m *models.MapResponse) (*ExportStats, error) {
	nodeBatches := batches(nodeRows(m.Nodes), e.batchSize)
	edgeBatches := batches(edgeRows(m.Edges), e.batchSize)

	session := e.newSession(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
		for _, batch := range nodeBatches {
			if err := run(ctx, tx, mergeNodesCypher, batch); err != nil {
				return nil, fmt.Errorf("failed to merge nodes: %w", err)
			}
		}
		for _, batch := range edgeBatches {
			if err := run(ctx, tx, mergeEdgesCypher, batch); err != nil {
				return nil, fmt.Errorf("failed to merge edges: %w", err)
			}
		}
		return nil, nil
	})
	if err != nil {
		return nil, err
	}

	stats := &ExportStats{
		Nodes:   len(m.Nodes),
		Edges:   len(m.Edges),
		Batches: len(nodeBatches) + len(edgeBatches),
	}
	e.logger.WithFields(logrus.Fields{
		"nodes":   stats.Nodes,
		"edges":   stats.Edges,
		"batches": stats.Batches,
	}).Info("Similarity graph exported to Neo4j")

	return stats, nil
}

func run(ctx context.Context, tx neo4j.ManagedTransaction, cypher string, rows []map[string]interface{}) error {
	result, err := tx.Run(ctx, cypher, map[string]interface{}{"rows": rows})
	if err != nil {
		return err
	}
	_, err = result.Consume(ctx)
	return err
}

func nodeRows(nodes []models.MapNode) []map[string]interface{} {
	rows := make([]map[string]interface{}, len(nodes))
	for i, n := range nodes {
		rows[i] = map[string]interface{}{
			"id":         int64(n.ID),
			"title":      n.Title,
			"cluster":    int64(n.Cluster),
			"x":          n.X,
			"y":          n.Y,
			"radius":     n.Radius,
			"popularity": int64(n.Popularity),
			"score":      int64(n.Score),
		}
	}
	return rows
}

func edgeRows(edges []models.MapEdge) []map[string]interface{} {
	rows := make([]map[string]interface{}, len(edges))
	for i, e := range edges {
		rows[i] = map[string]interface{}{
			"source": int64(e.Source),
			"target": int64(e.Target),
			"weight": e.Weight,
		}
	}
	return rows
}

func batches(rows []map[string]interface{}, size int) [][]map[string]interface{} {
	var out [][]map[string]interface{}
	for start := 0; start < len(rows); start += size {
		end := min(start+size, len(rows))
		out = append(out, rows[start:end])
	}
	return out
}
