package reconciler

import "time"

// Classification is the outcome of three-way reconciliation for one
// observed item.
type Classification string

const (
	ClassNew       Classification = "new"
	ClassUpdated   Classification = "updated"
	ClassUnchanged Classification = "unchanged"
	ClassRepealed  Classification = "repealed"
)

// CycleState tracks the lifecycle of one reconciliation cycle.
type CycleState string

const (
	StateRunning   CycleState = "running"
	StateCompleted CycleState = "completed"
	StateFailed    CycleState = "failed"
	StateCancelled CycleState = "cancelled"
)

// Counts aggregates per-classification totals for a cycle. Failed
// counts items that exhausted their retries or could not be parsed;
// they do not abort the cycle.
type Counts struct {
	New       int `json:"new"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
	Repealed  int `json:"repealed"`
	Failed    int `json:"failed"`
}

// Cycle is the persisted status of one reconciliation cycle.
type Cycle struct {
	ID         string     `json:"id"`
	Source     string     `json:"source"`
	State      CycleState `json:"state"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
	Counts     Counts     `json:"counts"`
	Error      string     `json:"error,omitempty"`
}
