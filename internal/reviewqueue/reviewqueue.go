// Package reviewqueue ranks tasks awaiting a review stage by how long they
// have been waiting. The ranking is computed fresh on every call.
package reviewqueue

import (
	"sort"
	"time"

	"joddb/internal/pipeline"
)

// Priority is a review-queue urgency bucket.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Item is one queued task with its computed urgency.
type Item struct {
	Task     *pipeline.Task
	Priority Priority
	Waiting  time.Duration
}

// Policy sets the wait-time bounds for the urgency buckets.
type Policy struct {
	// HighAfter is the wait beyond which an item is high priority.
	HighAfter time.Duration
	// LowBefore is the wait under which an item is low priority.
	LowBefore time.Duration
}

// Prioritize returns the tasks awaiting the given stage, urgent buckets
// first and oldest waiters first within each bucket. Wait time is measured
// from the task's end of work; a task with no recorded end time falls back
// to its last update.
func Prioritize(now time.Time, tasks []*pipeline.Task, stage pipeline.Stage, policy Policy) []Item {
	var items []Item
	for _, task := range tasks {
		if task == nil {
			continue
		}
		awaiting, ok := pipeline.AwaitingStage(task.Status)
		if !ok || awaiting != stage {
			continue
		}
		waiting := now.Sub(waitAnchor(task))
		if waiting < 0 {
			waiting = 0
		}
		items = append(items, Item{
			Task:     task,
			Priority: bucket(waiting, policy),
			Waiting:  waiting,
		})
	}

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Priority != items[j].Priority {
			return rank(items[i].Priority) < rank(items[j].Priority)
		}
		return items[i].Waiting > items[j].Waiting
	})
	return items
}

func waitAnchor(task *pipeline.Task) time.Time {
	if task.EndTime != nil {
		return *task.EndTime
	}
	return task.UpdatedAt
}

func bucket(waiting time.Duration, policy Policy) Priority {
	switch {
	case policy.HighAfter > 0 && waiting > policy.HighAfter:
		return PriorityHigh
	case policy.LowBefore > 0 && waiting < policy.LowBefore:
		return PriorityLow
	default:
		return PriorityMedium
	}
}

func rank(p Priority) int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	default:
		return 2
	}
}
