package reviewqueue_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"joddb/internal/pipeline"
	"joddb/internal/reviewqueue"
)

var defaultPolicy = reviewqueue.Policy{
	HighAfter: 24 * time.Hour,
	LowBefore: 2 * time.Hour,
}

func ptrTime(t time.Time) *time.Time { return &t }

func queuedTask(id int64, status pipeline.Status, ended time.Time) *pipeline.Task {
	return &pipeline.Task{
		ID:      id,
		Status:  status,
		EndTime: ptrTime(ended),
	}
}

func TestPrioritizeBuckets(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	tasks := []*pipeline.Task{
		queuedTask(1, pipeline.StatusPendingQA, now.Add(-25*time.Hour)),
		queuedTask(2, pipeline.StatusPendingQA, now.Add(-10*time.Hour)),
		queuedTask(3, pipeline.StatusPendingQA, now.Add(-time.Hour)),
	}

	items := reviewqueue.Prioritize(now, tasks, pipeline.StageQA, defaultPolicy)
	require.Len(t, items, 3)
	require.Equal(t, reviewqueue.PriorityHigh, items[0].Priority)
	require.Equal(t, int64(1), items[0].Task.ID)
	require.Equal(t, reviewqueue.PriorityMedium, items[1].Priority)
	require.Equal(t, int64(2), items[1].Task.ID)
	require.Equal(t, reviewqueue.PriorityLow, items[2].Priority)
	require.Equal(t, int64(3), items[2].Task.ID)
}

func TestPrioritizeFIFOWithinBucket(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	tasks := []*pipeline.Task{
		queuedTask(1, pipeline.StatusPendingQA, now.Add(-5*time.Hour)),
		queuedTask(2, pipeline.StatusPendingQA, now.Add(-12*time.Hour)),
		queuedTask(3, pipeline.StatusPendingQA, now.Add(-8*time.Hour)),
	}

	items := reviewqueue.Prioritize(now, tasks, pipeline.StageQA, defaultPolicy)
	require.Len(t, items, 3)
	// All medium; the longest waiter is served first.
	require.Equal(t, int64(2), items[0].Task.ID)
	require.Equal(t, int64(3), items[1].Task.ID)
	require.Equal(t, int64(1), items[2].Task.ID)
}

func TestPrioritizeFiltersByStage(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	tasks := []*pipeline.Task{
		queuedTask(1, pipeline.StatusPendingQA, now.Add(-3*time.Hour)),
		queuedTask(2, pipeline.StatusQAApproved, now.Add(-3*time.Hour)),
		queuedTask(3, pipeline.StatusPendingSupervisor, now.Add(-3*time.Hour)),
		queuedTask(4, pipeline.StatusTesterApproved, now.Add(-3*time.Hour)),
		queuedTask(5, pipeline.StatusInProgress, now.Add(-3*time.Hour)),
	}

	qa := reviewqueue.Prioritize(now, tasks, pipeline.StageQA, defaultPolicy)
	require.Len(t, qa, 1)
	require.Equal(t, int64(1), qa[0].Task.ID)

	tester := reviewqueue.Prioritize(now, tasks, pipeline.StageTester, defaultPolicy)
	require.Len(t, tester, 1)
	require.Equal(t, int64(2), tester[0].Task.ID)

	// Both tester_approved and pending_supervisor sit in the supervisor queue.
	supervisor := reviewqueue.Prioritize(now, tasks, pipeline.StageSupervisor, defaultPolicy)
	require.Len(t, supervisor, 2)
}

func TestPrioritizeFallsBackToUpdatedAt(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	task := &pipeline.Task{
		ID:        7,
		Status:    pipeline.StatusPendingQA,
		UpdatedAt: now.Add(-30 * time.Hour),
	}

	items := reviewqueue.Prioritize(now, []*pipeline.Task{task}, pipeline.StageQA, defaultPolicy)
	require.Len(t, items, 1)
	require.Equal(t, reviewqueue.PriorityHigh, items[0].Priority)
}
