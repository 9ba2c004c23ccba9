// -----------------------------------------------------------------------
// Hypothesis - an enumerated indirect path with filter verdict
// -----------------------------------------------------------------------

package models

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// Hypothesis modes.
const (
	HypothesisModeExplore = "explore"
	HypothesisModeQuery   = "query"
)

// Filter rule names, used as keys of FilterReason.
const (
	FilterRuleHubSuppression    = "hub_suppression"
	FilterRuleGenericPredicates = "generic_predicates"
	FilterRuleEvidenceThreshold = "evidence_threshold"
	FilterRuleNovelty           = "novelty"
)

// Hypothesis is one indirect path through the semantic graph. Each
// generation run replaces the whole active set for the job.
type Hypothesis struct {
	ID          string   `json:"id" badgerhold:"key"`
	JobID       uint64   `json:"job_id" badgerhold:"index"`
	Source      string   `json:"source"`
	Target      string   `json:"target"`
	Path        []string `json:"path"`
	Predicates  []string `json:"predicates"`
	Explanation string   `json:"explanation"`
	Confidence  int      `json:"confidence"`
	Mode        string   `json:"mode"`

	// Filter verdict
	PassedFilter bool              `json:"passed_filter"`
	FilterReason map[string]string `json:"filter_reason,omitempty"`

	// Provenance
	TripleIDs []string `json:"triple_ids,omitempty"`
	SourceIDs []string `json:"source_ids,omitempty"`
	BlockIDs  []string `json:"block_ids,omitempty"`

	Domain    string    `json:"domain,omitempty"`
	IsActive  bool      `json:"is_active" badgerhold:"index"`
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
}

// NewHypothesis creates an active hypothesis for the current generation run.
func NewHypothesis(jobID uint64, mode string, path []string, version int) *Hypothesis {
	h := &Hypothesis{
		ID:        uuid.New().String(),
		JobID:     jobID,
		Mode:      mode,
		Path:      append([]string(nil), path...),
		IsActive:  true,
		Version:   version,
		CreatedAt: time.Now().UTC(),
	}
	if len(path) > 0 {
		h.Source = path[0]
		h.Target = path[len(path)-1]
	}
	return h
}

// Intermediates returns the interior nodes of the path.
func (h *Hypothesis) Intermediates() []string {
	if len(h.Path) <= 2 {
		return nil
	}
	return h.Path[1 : len(h.Path)-1]
}

// PairKey identifies the (source, target) group of this hypothesis.
func (h *Hypothesis) PairKey() string {
	return h.Source + "→" + h.Target
}

// Promising reports a hypothesis rejected only by the evidence-threshold
// rule. Promising hypotheses stay selectable as fetch leads.
func (h *Hypothesis) Promising() bool {
	if h.PassedFilter || len(h.FilterReason) != 1 {
		return false
	}
	_, ok := h.FilterReason[FilterRuleEvidenceThreshold]
	return ok
}

// SortHypotheses orders by confidence desc, then source asc, then target asc.
// The standard ordering for presentation and top-K selection.
func SortHypotheses(hyps []*Hypothesis) {
	sort.SliceStable(hyps, func(i, j int) bool {
		if hyps[i].Confidence != hyps[j].Confidence {
			return hyps[i].Confidence > hyps[j].Confidence
		}
		if hyps[i].Source != hyps[j].Source {
			return hyps[i].Source < hyps[j].Source
		}
		return hyps[i].Target < hyps[j].Target
	})
}
