package event

import (
	"context"
	"strings"
	"sync"

	"github.com/emrgen/ormstore/internal/object"
	"github.com/sirupsen/logrus"
)

// Handler reacts to an event. It may call Payload.Veto to stop the operation.
type Handler func(ctx context.Context, p *Payload)

// Manager is the registry of event handlers. Handlers registered with On
// run for every entity, before the ones registered for a single entity.
type Manager struct {
	mu      sync.RWMutex
	global  map[Event][]Handler
	objects map[string]map[Event][]Handler
}

func NewManager() *Manager {
	return &Manager{
		global:  make(map[Event][]Handler),
		objects: make(map[string]map[Event][]Handler),
	}
}

// On registers h for e on every entity.
func (m *Manager) On(e Event, h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.global[e] = append(m.global[e], h)
}

// OnObject registers h for e on the named entity only.
func (m *Manager) OnObject(name string, e Event, h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()

	name = strings.ToLower(name)
	if m.objects[name] == nil {
		m.objects[name] = make(map[Event][]Handler)
	}
	m.objects[name][e] = append(m.objects[name][e], h)
}

// Fire runs the handlers of e for obj in registration order and stops at
// the first veto. It returns the veto message and whether a veto happened.
func (m *Manager) Fire(ctx context.Context, e Event, obj *object.Object) (string, bool) {
	m.mu.RLock()
	handlers := make([]Handler, 0, len(m.global[e])+len(m.objects[obj.Name()][e]))
	handlers = append(handlers, m.global[e]...)
	handlers = append(handlers, m.objects[obj.Name()][e]...)
	m.mu.RUnlock()

	if len(handlers) == 0 {
		return "", false
	}

	p := &Payload{
		Event:   e,
		Object:  obj.Name(),
		ID:      obj.ID(),
		Data:    obj.Data(),
		Changed: obj.Changed(),
	}
	for _, h := range handlers {
		h(ctx, p)
		if p.Vetoed() {
			logrus.Infof("%s of %s %d vetoed: %s", e, obj.Name(), obj.ID(), p.Message())
			return p.Message(), true
		}
	}

	return "", false
}
