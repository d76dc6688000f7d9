package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"joddb/internal/config"
	"joddb/internal/engine"
	"joddb/internal/pipeline"
	"joddb/internal/services"
	"joddb/internal/testsupport"
)

func newEngine(t *testing.T, cfg *config.Config, store *pipeline.Store, clock func() time.Time) *engine.Engine {
	t.Helper()

	eng, err := engine.New(engine.Dependencies{
		Store:  store,
		Config: cfg,
		Clock:  clock,
	})
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	return eng
}

func TestClaimRequiresAvailableTask(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	order := testsupport.NewJobOrder(t, store, "JO-100", 1, time.Now().Add(48*time.Hour))
	task := testsupport.NewTask(t, store, order.ID, "SN-100", 600)
	eng := newEngine(t, cfg, store, nil)
	ctx := context.Background()

	claimed, err := eng.Claim(ctx, task.ID, "alice")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed.Status != pipeline.StatusInProgress {
		t.Fatalf("status = %s, want in_progress", claimed.Status)
	}
	if claimed.Technician != "alice" {
		t.Fatalf("technician = %q, want alice", claimed.Technician)
	}
	if claimed.StartTime == nil {
		t.Fatal("start time not recorded")
	}

	if _, err := eng.Claim(ctx, task.ID, "bob"); !errors.Is(err, services.ErrInvalidTransition) {
		t.Fatalf("second claim err = %v, want invalid transition", err)
	}
	if _, err := eng.Claim(ctx, task.ID, ""); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("empty technician err = %v, want validation", err)
	}
	if _, err := eng.Claim(ctx, 9999, "alice"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("missing task err = %v, want not found", err)
	}
}

func TestCompleteDerivesActualSeconds(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	order := testsupport.NewJobOrder(t, store, "JO-101", 1, time.Now().Add(48*time.Hour))
	task := testsupport.NewTask(t, store, order.ID, "SN-101", 600)

	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	now := start
	eng := newEngine(t, cfg, store, func() time.Time { return now })
	ctx := context.Background()

	if _, err := eng.Claim(ctx, task.ID, "alice"); err != nil {
		t.Fatalf("claim: %v", err)
	}

	now = start.Add(500 * time.Second)
	if _, err := eng.Complete(ctx, task.ID, "bob", ""); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("wrong owner err = %v, want validation", err)
	}

	completed, err := eng.Complete(ctx, task.ID, "alice", "all joints reflowed")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if completed.Status != pipeline.StatusPendingQA {
		t.Fatalf("status = %s, want pending_qa", completed.Status)
	}
	if completed.ActualSeconds == nil || *completed.ActualSeconds != 500 {
		t.Fatalf("actual seconds = %v, want 500", completed.ActualSeconds)
	}
	if eff, ok := completed.Efficiency(); !ok || eff != 120 {
		t.Fatalf("efficiency = %v ok=%v, want 120", eff, ok)
	}
}

func TestDecideEnforcesStageOrder(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	order := testsupport.NewJobOrder(t, store, "JO-102", 1, time.Now().Add(48*time.Hour))
	task := testsupport.NewTask(t, store, order.ID, "SN-102", 600)
	eng := newEngine(t, cfg, store, nil)
	ctx := context.Background()

	if _, err := eng.Claim(ctx, task.ID, "alice"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if _, err := eng.Complete(ctx, task.ID, "alice", ""); err != nil {
		t.Fatalf("complete: %v", err)
	}

	// Supervisor cannot decide before QA.
	_, _, err := eng.Decide(ctx, engine.DecisionRequest{
		TaskID:   task.ID,
		Stage:    pipeline.StageSupervisor,
		Decision: pipeline.DecisionAccepted,
		Actor:    "sam",
	})
	if !errors.Is(err, services.ErrInvalidTransition) {
		t.Fatalf("premature supervisor err = %v, want invalid transition", err)
	}

	// Rejection without comments is refused.
	_, _, err = eng.Decide(ctx, engine.DecisionRequest{
		TaskID:   task.ID,
		Stage:    pipeline.StageQA,
		Decision: pipeline.DecisionRejected,
		Actor:    "quinn",
	})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("bare rejection err = %v, want validation", err)
	}

	updated, review, err := eng.Decide(ctx, engine.DecisionRequest{
		TaskID:   task.ID,
		Stage:    pipeline.StageQA,
		Decision: pipeline.DecisionAccepted,
		Actor:    "quinn",
	})
	if err != nil {
		t.Fatalf("qa accept: %v", err)
	}
	if updated.Status != pipeline.StatusQAApproved {
		t.Fatalf("status = %s, want qa_approved", updated.Status)
	}
	if review.Pass != 1 || review.Stage != pipeline.StageQA {
		t.Fatalf("review = %+v, want qa pass 1", review)
	}

	// A second QA verdict on the same pass trips the ledger constraint.
	_, _, err = eng.Decide(ctx, engine.DecisionRequest{
		TaskID:   task.ID,
		Stage:    pipeline.StageQA,
		Decision: pipeline.DecisionAccepted,
		Actor:    "quinn",
	})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("duplicate qa err = %v, want validation", err)
	}
}

func TestDecideSkipsTesterWhenDisabled(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithoutTesterStage())
	store := testsupport.MustOpenStore(t, cfg)
	order := testsupport.NewJobOrder(t, store, "JO-103", 1, time.Now().Add(48*time.Hour))
	task := testsupport.NewTask(t, store, order.ID, "SN-103", 600)
	eng := newEngine(t, cfg, store, nil)
	ctx := context.Background()

	if _, err := eng.Claim(ctx, task.ID, "alice"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if _, err := eng.Complete(ctx, task.ID, "alice", ""); err != nil {
		t.Fatalf("complete: %v", err)
	}

	updated, _, err := eng.Decide(ctx, engine.DecisionRequest{
		TaskID:   task.ID,
		Stage:    pipeline.StageQA,
		Decision: pipeline.DecisionAccepted,
		Actor:    "quinn",
	})
	if err != nil {
		t.Fatalf("qa accept: %v", err)
	}
	if updated.Status != pipeline.StatusPendingSupervisor {
		t.Fatalf("status = %s, want pending_supervisor", updated.Status)
	}

	final, _, err := eng.Decide(ctx, engine.DecisionRequest{
		TaskID:   task.ID,
		Stage:    pipeline.StageSupervisor,
		Decision: pipeline.DecisionAccepted,
		Actor:    "sam",
	})
	if err != nil {
		t.Fatalf("supervisor accept: %v", err)
	}
	if final.Status != pipeline.StatusCompleted {
		t.Fatalf("status = %s, want completed", final.Status)
	}
}

func TestSupervisorRequiresAcceptedQAInspection(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithoutTesterStage())
	store := testsupport.MustOpenStore(t, cfg)
	order := testsupport.NewJobOrder(t, store, "JO-104", 1, time.Now().Add(48*time.Hour))
	task := testsupport.NewTask(t, store, order.ID, "SN-104", 600)
	eng := newEngine(t, cfg, store, nil)
	ctx := context.Background()

	if _, err := eng.Claim(ctx, task.ID, "alice"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if _, err := eng.Complete(ctx, task.ID, "alice", ""); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if _, _, err := eng.Decide(ctx, engine.DecisionRequest{
		TaskID:   task.ID,
		Stage:    pipeline.StageQA,
		Decision: pipeline.DecisionAccepted,
		Actor:    "quinn",
	}); err != nil {
		t.Fatalf("qa accept: %v", err)
	}

	// A stale inspection reference is rejected.
	stale := int64(9999)
	_, _, err := eng.Decide(ctx, engine.DecisionRequest{
		TaskID:       task.ID,
		Stage:        pipeline.StageSupervisor,
		Decision:     pipeline.DecisionAccepted,
		Actor:        "sam",
		InspectionID: &stale,
	})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("stale inspection err = %v, want validation", err)
	}

	final, review, err := eng.Decide(ctx, engine.DecisionRequest{
		TaskID:   task.ID,
		Stage:    pipeline.StageSupervisor,
		Decision: pipeline.DecisionAccepted,
		Actor:    "sam",
	})
	if err != nil {
		t.Fatalf("supervisor accept: %v", err)
	}
	if final.Status != pipeline.StatusCompleted {
		t.Fatalf("status = %s, want completed", final.Status)
	}
	if review.InspectionID == nil {
		t.Fatal("supervisor review did not link the qa inspection")
	}
}

func TestRejectionAndRework(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	order := testsupport.NewJobOrder(t, store, "JO-105", 1, time.Now().Add(48*time.Hour))
	task := testsupport.NewTask(t, store, order.ID, "SN-105", 600)
	eng := newEngine(t, cfg, store, nil)
	ctx := context.Background()

	if _, err := eng.Claim(ctx, task.ID, "alice"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if _, err := eng.Complete(ctx, task.ID, "alice", ""); err != nil {
		t.Fatalf("complete: %v", err)
	}

	rejected, _, err := eng.Decide(ctx, engine.DecisionRequest{
		TaskID:   task.ID,
		Stage:    pipeline.StageQA,
		Decision: pipeline.DecisionRejected,
		Comments: "bad solder joint on U4",
		Actor:    "quinn",
	})
	if err != nil {
		t.Fatalf("qa reject: %v", err)
	}
	if rejected.Status != pipeline.StatusReworkRequired {
		t.Fatalf("status = %s, want rework_required", rejected.Status)
	}

	resumed, err := eng.Resume(ctx, task.ID)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if resumed.Status != pipeline.StatusAvailable {
		t.Fatalf("status = %s, want available", resumed.Status)
	}
	if resumed.Pass != 2 {
		t.Fatalf("pass = %d, want 2", resumed.Pass)
	}
	if resumed.Technician != "" || resumed.ActualSeconds != nil {
		t.Fatal("resume did not reset technician and duration")
	}

	// The first pass's rejection stays in the ledger.
	history, err := store.ListReviews(ctx, task.ID)
	if err != nil {
		t.Fatalf("list reviews: %v", err)
	}
	if len(history) != 1 || history[0].Decision != pipeline.DecisionRejected {
		t.Fatalf("history = %+v, want one rejection", history)
	}
}

func TestCloseArchivesReworkTask(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	order := testsupport.NewJobOrder(t, store, "JO-106", 1, time.Now().Add(48*time.Hour))
	task := testsupport.NewTask(t, store, order.ID, "SN-106", 600)
	eng := newEngine(t, cfg, store, nil)
	ctx := context.Background()

	if _, err := eng.Close(ctx, task.ID); !errors.Is(err, services.ErrInvalidTransition) {
		t.Fatalf("close available err = %v, want invalid transition", err)
	}

	if _, err := eng.Claim(ctx, task.ID, "alice"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if _, err := eng.Complete(ctx, task.ID, "alice", ""); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if _, _, err := eng.Decide(ctx, engine.DecisionRequest{
		TaskID:   task.ID,
		Stage:    pipeline.StageQA,
		Decision: pipeline.DecisionRejected,
		Comments: "cracked housing",
		Actor:    "quinn",
	}); err != nil {
		t.Fatalf("qa reject: %v", err)
	}

	closed, err := eng.Close(ctx, task.ID)
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if closed.Status != pipeline.StatusClosed {
		t.Fatalf("status = %s, want closed", closed.Status)
	}
}

// TestFullPipelineScenario walks a two-device job order through the full
// chain: one device passes QA, tester, and supervisor review; the other is
// rejected at QA. The order stays open at 50 percent completion.
func TestFullPipelineScenario(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	order := testsupport.NewJobOrder(t, store, "JO-107", 2, time.Now().Add(72*time.Hour))
	taskA := testsupport.NewTask(t, store, order.ID, "SN-107-A", 600)
	taskB := testsupport.NewTask(t, store, order.ID, "SN-107-B", 600)

	start := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	now := start
	eng := newEngine(t, cfg, store, func() time.Time { return now })
	ctx := context.Background()

	if _, err := eng.Claim(ctx, taskA.ID, "alice"); err != nil {
		t.Fatalf("claim A: %v", err)
	}
	now = start.Add(500 * time.Second)
	doneA, err := eng.Complete(ctx, taskA.ID, "alice", "")
	if err != nil {
		t.Fatalf("complete A: %v", err)
	}
	if eff, ok := doneA.Efficiency(); !ok || eff != 120 {
		t.Fatalf("efficiency A = %v ok=%v, want 120", eff, ok)
	}

	for _, step := range []struct {
		stage pipeline.Stage
		actor string
		want  pipeline.Status
	}{
		{pipeline.StageQA, "quinn", pipeline.StatusQAApproved},
		{pipeline.StageTester, "terry", pipeline.StatusTesterApproved},
		{pipeline.StageSupervisor, "sam", pipeline.StatusCompleted},
	} {
		updated, _, err := eng.Decide(ctx, engine.DecisionRequest{
			TaskID:   taskA.ID,
			Stage:    step.stage,
			Decision: pipeline.DecisionAccepted,
			Actor:    step.actor,
		})
		if err != nil {
			t.Fatalf("%s accept A: %v", step.stage, err)
		}
		if updated.Status != step.want {
			t.Fatalf("%s accept A status = %s, want %s", step.stage, updated.Status, step.want)
		}
	}

	if _, err := eng.Claim(ctx, taskB.ID, "bob"); err != nil {
		t.Fatalf("claim B: %v", err)
	}
	now = now.Add(700 * time.Second)
	if _, err := eng.Complete(ctx, taskB.ID, "bob", ""); err != nil {
		t.Fatalf("complete B: %v", err)
	}
	rejectedB, _, err := eng.Decide(ctx, engine.DecisionRequest{
		TaskID:   taskB.ID,
		Stage:    pipeline.StageQA,
		Decision: pipeline.DecisionRejected,
		Comments: "bad solder",
		Actor:    "quinn",
	})
	if err != nil {
		t.Fatalf("qa reject B: %v", err)
	}
	if rejectedB.Status != pipeline.StatusReworkRequired {
		t.Fatalf("status B = %s, want rework_required", rejectedB.Status)
	}

	// One of two devices completed; the order is still open.
	refreshed, err := store.GetJobOrder(ctx, order.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if refreshed.Status != pipeline.OrderOpen {
		t.Fatalf("order status = %s, want open", refreshed.Status)
	}
}

func TestJobOrderRollsUpWhenAllDevicesComplete(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithoutTesterStage())
	store := testsupport.MustOpenStore(t, cfg)
	order := testsupport.NewJobOrder(t, store, "JO-108", 1, time.Now().Add(48*time.Hour))
	task := testsupport.NewTask(t, store, order.ID, "SN-108", 600)
	eng := newEngine(t, cfg, store, nil)
	ctx := context.Background()

	if _, err := eng.Claim(ctx, task.ID, "alice"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if _, err := eng.Complete(ctx, task.ID, "alice", ""); err != nil {
		t.Fatalf("complete: %v", err)
	}
	for _, step := range []struct {
		stage pipeline.Stage
		actor string
	}{
		{pipeline.StageQA, "quinn"},
		{pipeline.StageSupervisor, "sam"},
	} {
		if _, _, err := eng.Decide(ctx, engine.DecisionRequest{
			TaskID:   task.ID,
			Stage:    step.stage,
			Decision: pipeline.DecisionAccepted,
			Actor:    step.actor,
		}); err != nil {
			t.Fatalf("%s accept: %v", step.stage, err)
		}
	}

	refreshed, err := store.GetJobOrder(ctx, order.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if refreshed.Status != pipeline.OrderDone {
		t.Fatalf("order status = %s, want done", refreshed.Status)
	}
}
