package progress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTracker() *Tracker {
	return New(Options{SuccessGrace: 20 * time.Millisecond, FailureGrace: 40 * time.Millisecond})
}

func TestMigrationPhasePercentage(t *testing.T) {
	tr := newTestTracker()
	defer tr.Close()

	tr.StartMigration("m1", "migrate", "A", "B")
	rec, ok := tr.GetProgress("m1")
	require.True(t, ok)
	assert.Equal(t, 0, rec.Percentage)

	require.NoError(t, tr.UpdateMigration("m1", MigrationUpdate{Phase: PhaseValidation, Message: "validating"}))
	rec, _ = tr.GetProgress("m1")
	assert.Equal(t, 20, rec.Percentage)

	require.NoError(t, tr.UpdateMigration("m1", MigrationUpdate{Phase: PhaseExecution, Message: "executing"}))
	rec, _ = tr.GetProgress("m1")
	assert.Equal(t, 60, rec.Percentage)
	assert.Equal(t, 3, rec.CurrentStep)
	assert.Equal(t, []string{"validating", "executing"}, rec.Migration.ExecutionLog)
}

func TestMigrationPhaseCannotMoveBackward(t *testing.T) {
	tr := newTestTracker()
	defer tr.Close()

	tr.StartMigration("m1", "migrate", "A", "B")
	require.NoError(t, tr.UpdateMigration("m1", MigrationUpdate{Phase: PhaseVerification}))
	assert.Error(t, tr.UpdateMigration("m1", MigrationUpdate{Phase: PhaseBackup}))
	assert.Error(t, tr.UpdateMigration("m1", MigrationUpdate{Phase: PhaseCompleted}))

	rec, _ := tr.GetProgress("m1")
	assert.Equal(t, PhaseVerification, rec.Migration.Phase)
	assert.Equal(t, 80, rec.Percentage)
}

func TestPercentageIsMonotonic(t *testing.T) {
	tr := newTestTracker()
	defer tr.Close()

	tr.StartOperation("op", "copy", 10)
	require.NoError(t, tr.UpdateOperation("op", 5, "half", nil))
	require.NoError(t, tr.UpdateOperation("op", 2, "went back", nil))

	rec, _ := tr.GetProgress("op")
	assert.Equal(t, 50, rec.Percentage)
	assert.Equal(t, 2, rec.CurrentStep)
}

func TestBatchProgress(t *testing.T) {
	tr := newTestTracker()
	defer tr.Close()

	tr.StartBatch("m1:batch", "batches", 3, 5)
	require.NoError(t, tr.UpdateBatch("m1:batch", BatchUpdate{BatchNumber: 1, CompletedOperations: 2}))
	require.NoError(t, tr.UpdateBatch("m1:batch", BatchUpdate{BatchNumber: 2, CompletedOperations: 2, Errors: []string{"Batch 2 failed: boom"}}))

	rec, ok := tr.GetProgress("m1:batch")
	require.True(t, ok)
	assert.Equal(t, KindBatch, rec.Kind)
	assert.Equal(t, 40, rec.Percentage)
	assert.Equal(t, []string{"Batch 2 failed: boom"}, rec.Batch.Errors)
}

func TestValidationProgress(t *testing.T) {
	tr := newTestTracker()
	defer tr.Close()

	tr.StartValidation("v1", "validate", 4)
	require.NoError(t, tr.UpdateValidation("v1", ValidationUpdate{CompletedRules: 1, PassedRules: 1, CurrentRule: "r1"}))

	rec, _ := tr.GetProgress("v1")
	assert.Equal(t, 25, rec.Percentage)
	assert.Equal(t, "r1", rec.Validation.CurrentRule)
}

func TestUpdateUnknownAndFinished(t *testing.T) {
	tr := newTestTracker()
	defer tr.Close()

	assert.ErrorIs(t, tr.UpdateOperation("missing", 1, "", nil), ErrNotFound)
	assert.ErrorIs(t, tr.CompleteOperation("missing", ""), ErrNotFound)

	tr.StartOperation("op", "copy", 2)
	require.NoError(t, tr.CompleteOperation("op", "done"))
	assert.ErrorIs(t, tr.UpdateOperation("op", 1, "", nil), ErrOperationFinished)
	assert.ErrorIs(t, tr.FailOperation("op", "late"), ErrOperationFinished)

	rec, _ := tr.GetProgress("op")
	assert.Equal(t, 100, rec.Percentage)
	assert.True(t, rec.Finished)
}

func TestFailSetsSentinelAndPurges(t *testing.T) {
	tr := newTestTracker()
	defer tr.Close()

	tr.StartMigration("m1", "migrate", "A", "B")
	require.NoError(t, tr.UpdateMigration("m1", MigrationUpdate{Phase: PhaseExecution}))
	require.NoError(t, tr.FailOperation("m1", "boom"))

	rec, ok := tr.GetProgress("m1")
	require.True(t, ok)
	assert.Equal(t, FailedPercentage, rec.Percentage)
	assert.Equal(t, PhaseFailed, rec.Migration.Phase)

	assert.Eventually(t, func() bool {
		_, ok := tr.GetProgress("m1")
		return !ok
	}, time.Second, 5*time.Millisecond)
}

func TestCancelOperation(t *testing.T) {
	tr := newTestTracker()
	defer tr.Close()

	tr.StartMigration("m1", "migrate", "A", "B")
	require.NoError(t, tr.CancelOperation("m1"))

	rec, _ := tr.GetProgress("m1")
	assert.Equal(t, PhaseCancelled, rec.Migration.Phase)
	assert.NotEqual(t, FailedPercentage, rec.Percentage)
	assert.ErrorIs(t, tr.CompleteOperation("m1", ""), ErrOperationFinished)
}

func TestSubscriptionReceivesEventsAndClosesOnPurge(t *testing.T) {
	tr := newTestTracker()
	defer tr.Close()

	sub := tr.Subscribe("op", 8)
	tr.StartOperation("op", "copy", 2)
	require.NoError(t, tr.UpdateOperation("op", 1, "step 1", nil))
	require.NoError(t, tr.CompleteOperation("op", "done"))

	var got []EventType
	for ev := range sub.C {
		got = append(got, ev.Type)
	}
	assert.Equal(t, []EventType{EventStarted, EventUpdated, EventCompleted}, got)

	// closing after purge is a no-op
	sub.Close()
}

func TestSubscriptionDoesNotBlockProducer(t *testing.T) {
	tr := newTestTracker()
	defer tr.Close()

	sub := tr.Subscribe("op", 1)
	defer sub.Close()

	tr.StartOperation("op", "copy", 100)
	for i := 1; i <= 50; i++ {
		require.NoError(t, tr.UpdateOperation("op", i, "", nil))
	}

	ev := <-sub.C
	assert.Equal(t, EventStarted, ev.Type)
}

func TestRecordsAreCopies(t *testing.T) {
	tr := newTestTracker()
	defer tr.Close()

	tr.StartMigration("m1", "migrate", "A", "B")
	require.NoError(t, tr.UpdateMigration("m1", MigrationUpdate{Phase: PhaseValidation, Message: "one"}))

	rec, _ := tr.GetProgress("m1")
	rec.Migration.ExecutionLog[0] = "changed"

	again, _ := tr.GetProgress("m1")
	assert.Equal(t, "one", again.Migration.ExecutionLog[0])
}
