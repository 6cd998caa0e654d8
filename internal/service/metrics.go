package service

import (
	"errors"

	"github.com/uber-go/tally/v4"
)

// Metrics counts object store operations per entity. A failed operation
// is counted as <op>_fail, a vetoed one as <op>_veto.
type Metrics struct {
	scope tally.Scope
}

func NewMetrics(scope tally.Scope) *Metrics {
	if scope == nil {
		scope = tally.NoopScope
	}
	return &Metrics{scope: scope.SubScope("object_store")}
}

func (m *Metrics) record(object, op string, err error) {
	name := op
	if err != nil {
		var veto *HookVetoError
		if errors.As(err, &veto) {
			name = op + "_veto"
		} else {
			name = op + "_fail"
		}
	}
	m.scope.Tagged(map[string]string{"object": object}).Counter(name).Inc(1)
}
