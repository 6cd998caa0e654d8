package event

import (
	"fmt"
)

// Event is a lifecycle point of the object store.
type Event int

const (
	BeforeAdd Event = iota
	AfterAddBeforeCommit
	AfterAdd
	BeforeUpdate
	AfterUpdateBeforeCommit
	AfterUpdate
	BeforeDelete
	AfterDeleteBeforeCommit
	AfterDelete
	BeforePublish
	AfterPublish
	BeforeUnpublish
	AfterUnpublish
	BeforeAddVersion
	AfterAddVersion
)

var names = [...]string{
	BeforeAdd:               "before_add",
	AfterAddBeforeCommit:    "after_add_before_commit",
	AfterAdd:                "after_add",
	BeforeUpdate:            "before_update",
	AfterUpdateBeforeCommit: "after_update_before_commit",
	AfterUpdate:             "after_update",
	BeforeDelete:            "before_delete",
	AfterDeleteBeforeCommit: "after_delete_before_commit",
	AfterDelete:             "after_delete",
	BeforePublish:           "before_publish",
	AfterPublish:            "after_publish",
	BeforeUnpublish:         "before_unpublish",
	AfterUnpublish:          "after_unpublish",
	BeforeAddVersion:        "before_add_version",
	AfterAddVersion:         "after_add_version",
}

// All lists every event in lifecycle order.
func All() []Event {
	events := make([]Event, len(names))
	for i := range names {
		events[i] = Event(i)
	}
	return events
}

func (e Event) String() string {
	if e < 0 || int(e) >= len(names) {
		return fmt.Sprintf("event(%d)", int(e))
	}
	return names[e]
}

// Parse returns the event with the given name.
func Parse(name string) (Event, error) {
	for i, n := range names {
		if n == name {
			return Event(i), nil
		}
	}
	return 0, fmt.Errorf("unknown event %q", name)
}

// Payload is handed to every handler of an event. Data is a snapshot of
// the object values, changing it does not change the object.
type Payload struct {
	Event   Event
	Object  string
	ID      int64
	Data    map[string]any
	Changed []string

	vetoed  bool
	message string
}

// Veto stops the operation. The message is returned to the caller as is.
func (p *Payload) Veto(message string) {
	p.vetoed = true
	p.message = message
}

func (p *Payload) Vetoed() bool {
	return p.vetoed
}

func (p *Payload) Message() string {
	return p.message
}
