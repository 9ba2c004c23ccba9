package badger

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
)

// GraphStorage persists versioned semantic graph snapshots on Badger,
// holding the at-most-one-active invariant per job.
type GraphStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewGraphStorage creates a new GraphStorage instance
func NewGraphStorage(db *BadgerDB, logger arbor.ILogger) interfaces.GraphStorage {
	return &GraphStorage{
		db:     db,
		logger: logger,
	}
}

// SaveNewVersion deactivates the current active graph and inserts data as
// the next version. Old versions stay on disk for audit.
func (s *GraphStorage) SaveNewVersion(ctx context.Context, jobID uint64, data models.GraphData) (*models.SemanticGraph, error) {
	version := 1

	query := badgerhold.Where("JobID").Eq(jobID).And("IsActive").Eq(true)
	err := s.db.Store().UpdateMatching(&models.SemanticGraph{}, query, func(record interface{}) error {
		g, ok := record.(*models.SemanticGraph)
		if !ok {
			return fmt.Errorf("unexpected record type %T", record)
		}
		if g.Version >= version {
			version = g.Version + 1
		}
		g.IsActive = false
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to deactivate prior graph for job %d: %w", jobID, err)
	}

	// Inactive versions can still hold the high-water mark after a
	// deactivated run, so check all versions before numbering.
	var versions []models.SemanticGraph
	if err := s.db.Store().Find(&versions, badgerhold.Where("JobID").Eq(jobID)); err != nil {
		return nil, fmt.Errorf("failed to scan graph versions for job %d: %w", jobID, err)
	}
	for i := range versions {
		if versions[i].Version >= version {
			version = versions[i].Version + 1
		}
	}

	graph := models.NewSemanticGraph(jobID, data, version)
	if err := s.db.Store().Insert(graph.ID, graph); err != nil {
		return nil, fmt.Errorf("failed to save graph version %d for job %d: %w", version, jobID, err)
	}

	s.logger.Debug().
		Int64("job_id", int64(jobID)).
		Int("version", version).
		Int("nodes", graph.NodeCount).
		Int("edges", graph.EdgeCount).
		Msg("Semantic graph version saved")

	return graph, nil
}

func (s *GraphStorage) GetActive(ctx context.Context, jobID uint64) (*models.SemanticGraph, error) {
	var graphs []models.SemanticGraph
	query := badgerhold.Where("JobID").Eq(jobID).And("IsActive").Eq(true).Limit(1)
	if err := s.db.Store().Find(&graphs, query); err != nil {
		return nil, fmt.Errorf("failed to get active graph for job %d: %w", jobID, err)
	}
	if len(graphs) == 0 {
		return nil, interfaces.ErrNotFound
	}
	return &graphs[0], nil
}

func (s *GraphStorage) ListVersions(ctx context.Context, jobID uint64) ([]*models.SemanticGraph, error) {
	var graphs []models.SemanticGraph
	query := badgerhold.Where("JobID").Eq(jobID).SortBy("Version")
	if err := s.db.Store().Find(&graphs, query); err != nil {
		return nil, fmt.Errorf("failed to list graph versions for job %d: %w", jobID, err)
	}

	result := make([]*models.SemanticGraph, len(graphs))
	for i := range graphs {
		result[i] = &graphs[i]
	}
	return result, nil
}

func (s *GraphStorage) DeleteByJob(ctx context.Context, jobID uint64) error {
	if err := s.db.Store().DeleteMatching(&models.SemanticGraph{}, badgerhold.Where("JobID").Eq(jobID)); err != nil {
		return fmt.Errorf("failed to delete graphs for job %d: %w", jobID, err)
	}
	return nil
}
