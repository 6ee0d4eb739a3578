package pipeline

import (
	"errors"
	"sync"
	"sync/atomic"
)

type Stage string

const (
	StageCloning            Stage = "cloning"
	StageEndpointExtraction Stage = "endpoint_extraction"
	StageSchemaGeneration   Stage = "schema_generation"
	StagePrioritization     Stage = "prioritization"
	StageCodeGeneration     Stage = "code_generation"
	StageCollection         Stage = "collection_generation"
	StagePackaging          Stage = "packaging"
	StageCompleted          Stage = "completed"
	StageErrored            Stage = "errored"
)

type EventType string

const (
	EventStatus     EventType = "status"
	EventEndpoints  EventType = "endpoints"
	EventSchema     EventType = "schema"
	EventPriority   EventType = "priority"
	EventCode       EventType = "code"
	EventCollection EventType = "collection"
	EventCompleted  EventType = "completed"
	EventError      EventType = "error"
)

// Event is one progress report of a streamed run. A stream always ends
// with a completed or error event.
type Event struct {
	Type    EventType `json:"type"`
	Stage   Stage     `json:"stage,omitempty"`
	Message string    `json:"message,omitempty"`
	Data    any       `json:"data,omitempty"`
	// Status is the HTTP status of an error event.
	Status int `json:"status,omitempty"`
}

// EmitFunc delivers an event to the consumer. An error means the consumer
// is gone.
type EmitFunc func(Event) error

// ErrConsumerGone is returned when a run stops because emit failed.
var ErrConsumerGone = errors.New("pipeline: event consumer gone")

// reporter serializes events from parallel branches and latches the first
// emit failure.
type reporter struct {
	mu      sync.Mutex
	emit    EmitFunc
	stopped atomic.Bool
}

func newReporter(emit EmitFunc) *reporter {
	if emit == nil {
		emit = func(Event) error { return nil }
	}
	return &reporter{emit: emit}
}

func (r *reporter) send(ev Event) {
	if r.stopped.Load() {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped.Load() {
		return
	}
	if err := r.emit(ev); err != nil {
		r.stopped.Store(true)
	}
}

func (r *reporter) status(stage Stage, msg string) {
	r.send(Event{Type: EventStatus, Stage: stage, Message: msg})
}

// gone reports whether the consumer has disconnected.
func (r *reporter) gone() bool { return r.stopped.Load() }
