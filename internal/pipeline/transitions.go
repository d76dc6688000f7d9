package pipeline

// Event names a lifecycle operation requested against a task.
type Event string

const (
	EventClaim    Event = "claim"
	EventComplete Event = "complete"
	EventAccept   Event = "accept"
	EventReject   Event = "reject"
	EventResume   Event = "resume"
	EventClose    Event = "close"
)

type transitionKey struct {
	from  Status
	event Event
}

// transitions is the single table of legal state changes. QA acceptance is
// resolved in Next because its target depends on whether the tester stage is
// enabled for the deployment.
var transitions = map[transitionKey]Status{
	{StatusAvailable, EventClaim}:          StatusInProgress,
	{StatusInProgress, EventComplete}:      StatusPendingQA,
	{StatusPendingQA, EventReject}:         StatusReworkRequired,
	{StatusQAApproved, EventAccept}:        StatusTesterApproved,
	{StatusQAApproved, EventReject}:        StatusReworkRequired,
	{StatusTesterApproved, EventAccept}:    StatusCompleted,
	{StatusTesterApproved, EventReject}:    StatusReworkRequired,
	{StatusPendingSupervisor, EventAccept}: StatusCompleted,
	{StatusPendingSupervisor, EventReject}: StatusReworkRequired,
	{StatusReworkRequired, EventResume}:    StatusAvailable,
	{StatusReworkRequired, EventClose}:     StatusClosed,
}

// Next resolves the target status for an event applied to a task in the given
// status. The boolean is false when the transition is illegal. testerStage
// controls where QA acceptance routes the task.
func Next(from Status, event Event, testerStage bool) (Status, bool) {
	if from == StatusPendingQA && event == EventAccept {
		if testerStage {
			return StatusQAApproved, true
		}
		return StatusPendingSupervisor, true
	}
	to, ok := transitions[transitionKey{from, event}]
	return to, ok
}

// DecisionEvent maps a review decision to its lifecycle event.
func DecisionEvent(decision Decision) Event {
	if decision == DecisionAccepted {
		return EventAccept
	}
	return EventReject
}
