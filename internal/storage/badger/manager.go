package badger

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/interfaces"
)

// Manager implements the StorageManager interface for Badger
type Manager struct {
	db         *BadgerDB
	jobs       interfaces.JobStorage
	messages   interfaces.MessageStorage
	files      interfaces.FileStorage
	sources    interfaces.SourceStorage
	triples    interfaces.TripleStorage
	graphs     interfaces.GraphStorage
	hypotheses interfaces.HypothesisStorage
	papers     interfaces.PaperStorage
	queries    interfaces.QueryStorage
	decisions  interfaces.DecisionStorage
	kv         interfaces.KeyValueStorage
	logger     arbor.ILogger
}

// NewManager creates a new Badger storage manager
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (interfaces.StorageManager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	manager := &Manager{
		db:         db,
		jobs:       NewJobStorage(db, logger),
		messages:   NewMessageStorage(db, logger),
		files:      NewFileStorage(db, logger),
		sources:    NewSourceStorage(db, logger),
		triples:    NewTripleStorage(db, logger),
		graphs:     NewGraphStorage(db, logger),
		hypotheses: NewHypothesisStorage(db, logger),
		papers:     NewPaperStorage(db, logger),
		queries:    NewQueryStorage(db, logger),
		decisions:  NewDecisionStorage(db, logger),
		kv:         NewKVStorage(db, logger),
		logger:     logger,
	}

	logger.Info().Msg("Badger storage manager initialized")

	return manager, nil
}

func (m *Manager) Jobs() interfaces.JobStorage              { return m.jobs }
func (m *Manager) Messages() interfaces.MessageStorage      { return m.messages }
func (m *Manager) Files() interfaces.FileStorage            { return m.files }
func (m *Manager) Sources() interfaces.SourceStorage        { return m.sources }
func (m *Manager) Triples() interfaces.TripleStorage        { return m.triples }
func (m *Manager) Graphs() interfaces.GraphStorage          { return m.graphs }
func (m *Manager) Hypotheses() interfaces.HypothesisStorage { return m.hypotheses }
func (m *Manager) Papers() interfaces.PaperStorage          { return m.papers }
func (m *Manager) Queries() interfaces.QueryStorage         { return m.queries }
func (m *Manager) Decisions() interfaces.DecisionStorage    { return m.decisions }
func (m *Manager) KV() interfaces.KeyValueStorage           { return m.kv }

// DB returns the underlying database connection
func (m *Manager) DB() interface{} {
	if m.db != nil {
		return m.db.Store()
	}
	return nil
}

// DeleteJobCascade removes a job and every child entity it owns. The
// global paper catalog is left untouched; only the job's evidence ledger
// rows go.
func (m *Manager) DeleteJobCascade(ctx context.Context, jobID uint64) error {
	steps := []struct {
		name string
		fn   func() error
	}{
		{"messages", func() error { return m.messages.DeleteByJob(ctx, jobID) }},
		{"files", func() error { return m.files.DeleteByJob(ctx, jobID) }},
		{"sources", func() error { return m.sources.DeleteByJob(ctx, jobID) }},
		{"triples", func() error { return m.triples.DeleteByJob(ctx, jobID) }},
		{"graphs", func() error { return m.graphs.DeleteByJob(ctx, jobID) }},
		{"hypotheses", func() error { return m.hypotheses.DeleteByJob(ctx, jobID) }},
		{"evidence", func() error { return m.papers.DeleteEvidenceByJob(ctx, jobID) }},
		{"queries", func() error { return m.queries.DeleteByJob(ctx, jobID) }},
		{"decisions", func() error { return m.decisions.DeleteByJob(ctx, jobID) }},
	}

	for _, step := range steps {
		if err := step.fn(); err != nil {
			return fmt.Errorf("failed to delete %s for job %d: %w", step.name, jobID, err)
		}
	}

	if err := m.jobs.DeleteJob(ctx, jobID); err != nil {
		return fmt.Errorf("failed to delete job %d: %w", jobID, err)
	}

	m.logger.Info().Int64("job_id", int64(jobID)).Msg("Job and children deleted")
	return nil
}

// Close closes the database connection
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}
