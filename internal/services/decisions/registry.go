// -----------------------------------------------------------------------
// Decision Handler Registry - one handler per label, validated at startup
// -----------------------------------------------------------------------

package decisions

import (
	"fmt"

	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
)

// Registry resolves decision handlers by label.
type Registry struct {
	handlers map[models.DecisionLabel]interfaces.DecisionHandler
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[models.DecisionLabel]interfaces.DecisionHandler),
	}
}

// Register adds a handler. Last registration wins.
func (r *Registry) Register(h interfaces.DecisionHandler) {
	r.handlers[h.Label()] = h
}

// Get resolves the handler for a label.
func (r *Registry) Get(label models.DecisionLabel) (interfaces.DecisionHandler, bool) {
	h, ok := r.handlers[label]
	return h, ok
}

// ValidateComplete fails startup when any label of the closed set lacks a
// handler. A decision with no handler would strand its job.
func (r *Registry) ValidateComplete() error {
	all := append(append([]models.DecisionLabel{}, models.DiscoveryDecisionLabels...), models.VerificationDecisionLabels...)
	for _, label := range all {
		if _, ok := r.handlers[label]; !ok {
			return fmt.Errorf("no decision handler registered for label %s", label)
		}
	}
	return nil
}
