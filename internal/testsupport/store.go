package testsupport

import (
	"context"
	"testing"
	"time"

	"joddb/internal/config"
	"joddb/internal/pipeline"
)

// MustOpenStore opens a pipeline.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *pipeline.Store {
	t.Helper()

	store, err := pipeline.Open(cfg)
	if err != nil {
		t.Fatalf("pipeline.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewJobOrder creates a job order for tests using the provided store.
func NewJobOrder(t testing.TB, store *pipeline.Store, code string, totalDevices int, dueDate time.Time) *pipeline.JobOrder {
	t.Helper()

	order, err := store.CreateJobOrder(context.Background(), code, "Test Order "+code, totalDevices, dueDate)
	if err != nil {
		t.Fatalf("store.CreateJobOrder: %v", err)
	}
	return order
}

// NewTask creates an available task for tests using the provided store.
func NewTask(t testing.TB, store *pipeline.Store, orderID int64, serial string, standardSeconds int64) *pipeline.Task {
	t.Helper()

	task, err := store.CreateTask(context.Background(), orderID, serial, "solder main board", standardSeconds)
	if err != nil {
		t.Fatalf("store.CreateTask: %v", err)
	}
	return task
}
