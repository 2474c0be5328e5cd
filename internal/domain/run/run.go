// Package run defines what a pipeline run reports to the outside world while
// it executes: lifecycle events, stage metrics and the output lock. The
// adapters live in internal/infrastructure (kafka, prometheus, redis); the
// Nop variants are used when an adapter is disabled.
package run

import (
	"context"
	"time"
)

// Stage names.
const (
	StageLoad      = "load"
	StageNormalize = "normalize"
	StageWeight    = "weight"
	StageLandIndex = "land_index"
	StageReduce    = "reduce"
	StageCoverage  = "coverage"
	StageCompose   = "compose"
	StageAggregate = "aggregate"
)

// EventType identifies a lifecycle event.
type EventType string

const (
	EventRunStarted     EventType = "run.started"
	EventStageCompleted EventType = "stage.completed"
	EventStageFailed    EventType = "stage.failed"
	EventRunCompleted   EventType = "run.completed"
	EventRunFailed      EventType = "run.failed"
)

// Event is one lifecycle notification.
type Event struct {
	RunID    string        `json:"run_id"`
	Type     EventType     `json:"type"`
	Stage    string        `json:"stage,omitempty"`
	Scenario string        `json:"scenario,omitempty"`
	Activity string        `json:"activity,omitempty"`
	Tables   []string      `json:"tables,omitempty"`
	Gaps     int           `json:"gaps,omitempty"`
	Duration time.Duration `json:"duration_ns,omitempty"`
	Error    string        `json:"error,omitempty"`
	At       time.Time     `json:"at"`
}

// Notifier publishes events. A failing notifier never fails the run; the
// runner logs the error and carries on.
type Notifier interface {
	Notify(ctx context.Context, e Event) error
	Close() error
}

// Recorder receives stage metrics.
type Recorder interface {
	ObserveStage(stage, activity string, d time.Duration, err error)
	TablesWritten(stage string, n int)
	GapsRecorded(kind string, n int)
	RunFinished(status string, d time.Duration)
	// Flush delivers buffered metrics, e.g. to a Pushgateway.
	Flush(ctx context.Context, runID string) error
}

// Locker serializes runs that write to the same output location.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(context.Context) error, err error)
}

// Run statuses.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, Event) error { return nil }
func (NopNotifier) Close() error                        { return nil }

type NopRecorder struct{}

func (NopRecorder) ObserveStage(string, string, time.Duration, error) {}
func (NopRecorder) TablesWritten(string, int)                         {}
func (NopRecorder) GapsRecorded(string, int)                          {}
func (NopRecorder) RunFinished(string, time.Duration)                 {}
func (NopRecorder) Flush(context.Context, string) error               { return nil }

type NopLocker struct{}

func (NopLocker) Acquire(context.Context, string) (func(context.Context) error, error) {
	return func(context.Context) error { return nil }, nil
}

var (
	_ Notifier = NopNotifier{}
	_ Recorder = NopRecorder{}
	_ Locker   = NopLocker{}
)
