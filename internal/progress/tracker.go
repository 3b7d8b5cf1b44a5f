// Package progress keeps in-memory progress records for running operations
// and fans updates out to channel subscribers.
package progress

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"
)

var (
	ErrNotFound          = errors.New("progress record not found")
	ErrOperationFinished = errors.New("operation already finished")
)

const (
	DefaultSuccessGrace = 30 * time.Second
	DefaultFailureGrace = 60 * time.Second
	defaultBuffer       = 16
)

// EventType describes what happened to a record.
type EventType string

const (
	EventStarted   EventType = "started"
	EventUpdated   EventType = "updated"
	EventCompleted EventType = "completed"
	EventFailed    EventType = "failed"
	EventCancelled EventType = "cancelled"
)

// Event carries a snapshot of a record after a change.
type Event struct {
	Type   EventType
	Record Record
}

type Options struct {
	SuccessGrace time.Duration
	FailureGrace time.Duration
	Logger       *slog.Logger
}

// Tracker stores the latest record per operation id. Ids are unique across
// the four record shapes.
type Tracker struct {
	mu          sync.Mutex
	generic     map[string]*Record
	batches     map[string]*Record
	validations map[string]*Record
	migrations  map[string]*Record
	subs        map[string][]*Subscription
	timers      map[string]*time.Timer

	successGrace time.Duration
	failureGrace time.Duration
	logger       *slog.Logger
	now          func() time.Time
}

func New(opts Options) *Tracker {
	if opts.SuccessGrace <= 0 {
		opts.SuccessGrace = DefaultSuccessGrace
	}
	if opts.FailureGrace <= 0 {
		opts.FailureGrace = DefaultFailureGrace
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Tracker{
		generic:      make(map[string]*Record),
		batches:      make(map[string]*Record),
		validations:  make(map[string]*Record),
		migrations:   make(map[string]*Record),
		subs:         make(map[string][]*Subscription),
		timers:       make(map[string]*time.Timer),
		successGrace: opts.SuccessGrace,
		failureGrace: opts.FailureGrace,
		logger:       opts.Logger,
		now:          time.Now,
	}
}

func (t *Tracker) StartOperation(id, operation string, totalSteps int) {
	t.start(t.generic, &Record{Kind: KindGeneric, ID: id, Operation: operation, TotalSteps: totalSteps})
}

func (t *Tracker) UpdateOperation(id string, currentStep int, message string, details map[string]any) error {
	return t.update(t.generic, id, func(r *Record) error {
		r.CurrentStep = currentStep
		r.Message = message
		if details != nil {
			r.Details = details
		}
		return nil
	})
}

func (t *Tracker) StartBatch(id, operation string, totalBatches, totalOperations int) {
	t.start(t.batches, &Record{
		Kind:       KindBatch,
		ID:         id,
		Operation:  operation,
		TotalSteps: totalBatches,
		Batch: &BatchProgress{
			BatchID:         id,
			TotalBatches:    totalBatches,
			TotalOperations: totalOperations,
		},
	})
}

// BatchUpdate moves a batch record forward. Errors and Warnings are appended.
type BatchUpdate struct {
	BatchNumber         int
	CompletedOperations int
	Message             string
	Errors              []string
	Warnings            []string
}

func (t *Tracker) UpdateBatch(id string, u BatchUpdate) error {
	return t.update(t.batches, id, func(r *Record) error {
		b := r.Batch
		b.BatchNumber = u.BatchNumber
		b.CompletedOperations = u.CompletedOperations
		b.Errors = append(b.Errors, u.Errors...)
		b.Warnings = append(b.Warnings, u.Warnings...)
		r.CurrentStep = u.BatchNumber
		r.Message = u.Message
		return nil
	})
}

func (t *Tracker) StartValidation(id, operation string, totalRules int) {
	t.start(t.validations, &Record{
		Kind:       KindValidation,
		ID:         id,
		Operation:  operation,
		TotalSteps: totalRules,
		Validation: &ValidationProgress{TotalRules: totalRules},
	})
}

type ValidationUpdate struct {
	CompletedRules int
	PassedRules    int
	FailedRules    int
	WarningRules   int
	CurrentRule    string
	Message        string
}

func (t *Tracker) UpdateValidation(id string, u ValidationUpdate) error {
	return t.update(t.validations, id, func(r *Record) error {
		v := r.Validation
		v.CompletedRules = u.CompletedRules
		v.PassedRules = u.PassedRules
		v.FailedRules = u.FailedRules
		v.WarningRules = u.WarningRules
		v.CurrentRule = u.CurrentRule
		r.CurrentStep = u.CompletedRules
		r.Message = u.Message
		return nil
	})
}

func (t *Tracker) StartMigration(id, operation, sourceID, targetID string) {
	t.start(t.migrations, &Record{
		Kind:       KindMigration,
		ID:         id,
		Operation:  operation,
		TotalSteps: migrationSteps,
		Migration: &MigrationProgress{
			SourceConnectionID: sourceID,
			TargetConnectionID: targetID,
		},
	})
}

// MigrationUpdate moves a migration record to an active phase. A non-empty
// Message is also appended to the execution log.
type MigrationUpdate struct {
	Phase                  Phase
	Message                string
	EstimatedTimeRemaining time.Duration
	Errors                 []string
	Warnings               []string
}

func (t *Tracker) UpdateMigration(id string, u MigrationUpdate) error {
	return t.update(t.migrations, id, func(r *Record) error {
		m := r.Migration
		if u.Phase != "" {
			if u.Phase.Terminal() {
				return fmt.Errorf("phase %s must be set through complete, fail or cancel", u.Phase)
			}
			if u.Phase.Step() < m.Phase.Step() {
				return fmt.Errorf("cannot move migration %s back from %s to %s", id, m.Phase, u.Phase)
			}
			m.Phase = u.Phase
		}
		if u.Message != "" {
			r.Message = u.Message
			m.ExecutionLog = append(m.ExecutionLog, u.Message)
		}
		m.EstimatedTimeRemaining = u.EstimatedTimeRemaining
		m.Errors = append(m.Errors, u.Errors...)
		m.Warnings = append(m.Warnings, u.Warnings...)
		return nil
	})
}

// CompleteOperation marks the record done at 100% and schedules its purge.
func (t *Tracker) CompleteOperation(id, message string) error {
	return t.finish(id, EventCompleted, t.successGrace, func(r *Record) {
		r.Percentage = 100
		r.CurrentStep = r.TotalSteps
		if r.Migration != nil {
			r.Migration.Phase = PhaseCompleted
		}
		if message != "" {
			r.Message = message
		}
	})
}

// FailOperation marks the record failed with the -1 sentinel.
func (t *Tracker) FailOperation(id, message string) error {
	return t.finish(id, EventFailed, t.failureGrace, func(r *Record) {
		r.Percentage = FailedPercentage
		if r.Migration != nil {
			r.Migration.Phase = PhaseFailed
			if message != "" {
				r.Migration.Errors = append(r.Migration.Errors, message)
			}
		}
		if message != "" {
			r.Message = message
		}
	})
}

// CancelOperation ends the record without marking it failed. It is retained
// for the failure grace period.
func (t *Tracker) CancelOperation(id string) error {
	return t.finish(id, EventCancelled, t.failureGrace, func(r *Record) {
		r.Message = "cancelled"
		if r.Migration != nil {
			r.Migration.Phase = PhaseCancelled
			r.Migration.ExecutionLog = append(r.Migration.ExecutionLog, "Migration cancelled by user")
		}
	})
}

// GetProgress returns a copy of the record with the given id.
func (t *Tracker) GetProgress(id string) (Record, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	r, _ := t.lookup(id)
	if r == nil {
		return Record{}, false
	}
	return r.clone(), true
}

// Active returns copies of all records that have not finished.
func (t *Tracker) Active() []Record {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []Record
	for _, m := range []map[string]*Record{t.generic, t.batches, t.validations, t.migrations} {
		for _, r := range m {
			if !r.Finished {
				out = append(out, r.clone())
			}
		}
	}
	slices.SortFunc(out, func(a, b Record) int { return a.Timestamp.Compare(b.Timestamp) })
	return out
}

// Purge drops a record and closes its subscribers immediately.
func (t *Tracker) Purge(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.purgeLocked(id)
}

// Close stops pending purges and closes every subscription.
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for id, timer := range t.timers {
		timer.Stop()
		delete(t.timers, id)
	}
	for id, subs := range t.subs {
		for _, s := range subs {
			s.closeLocked()
		}
		delete(t.subs, id)
	}
}

func (t *Tracker) start(store map[string]*Record, r *Record) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if timer, ok := t.timers[r.ID]; ok {
		timer.Stop()
		delete(t.timers, r.ID)
	}
	t.deleteLocked(r.ID)

	r.Timestamp = t.now()
	store[r.ID] = r
	t.publishLocked(EventStarted, r)
}

func (t *Tracker) update(store map[string]*Record, id string, mutate func(*Record) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	r, ok := store[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if r.Finished {
		return fmt.Errorf("%w: %s", ErrOperationFinished, id)
	}
	if err := mutate(r); err != nil {
		return err
	}
	r.recompute()
	r.Timestamp = t.now()
	t.publishLocked(EventUpdated, r)
	return nil
}

func (t *Tracker) finish(id string, ev EventType, grace time.Duration, mutate func(*Record)) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	r, _ := t.lookup(id)
	if r == nil {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if r.Finished {
		return fmt.Errorf("%w: %s", ErrOperationFinished, id)
	}
	mutate(r)
	r.Finished = true
	r.Timestamp = t.now()
	t.publishLocked(ev, r)

	t.timers[id] = time.AfterFunc(grace, func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		t.purgeLocked(id)
	})
	return nil
}

func (t *Tracker) lookup(id string) (*Record, map[string]*Record) {
	for _, m := range []map[string]*Record{t.generic, t.batches, t.validations, t.migrations} {
		if r, ok := m[id]; ok {
			return r, m
		}
	}
	return nil, nil
}

func (t *Tracker) deleteLocked(id string) {
	for _, m := range []map[string]*Record{t.generic, t.batches, t.validations, t.migrations} {
		delete(m, id)
	}
}

func (t *Tracker) purgeLocked(id string) {
	if timer, ok := t.timers[id]; ok {
		timer.Stop()
		delete(t.timers, id)
	}
	t.deleteLocked(id)
	for _, s := range t.subs[id] {
		s.closeLocked()
	}
	delete(t.subs, id)
	t.logger.Debug("progress record purged", "id", id)
}

func (t *Tracker) publishLocked(typ EventType, r *Record) {
	subs := t.subs[r.ID]
	if len(subs) == 0 {
		return
	}
	ev := Event{Type: typ, Record: r.clone()}
	for _, s := range subs {
		select {
		case s.ch <- ev:
		default:
			t.logger.Warn("progress subscriber is full, dropping event", "id", r.ID, "event", typ)
		}
	}
}
