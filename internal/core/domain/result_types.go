package domain

import "time"

type EntryStatus string

const (
	EntrySuccess EntryStatus = "SUCCESS"
	EntryFailure EntryStatus = "FAILURE"
	EntrySkipped EntryStatus = "SKIPPED"
)

type EntryResult struct {
	Record ChangeRecord
	Status EntryStatus
	Reason string
	Err    error
}

type RunStatus string

const (
	RunSuccess        RunStatus = "SUCCESS"
	RunPartialFailure RunStatus = "PARTIAL_FAILURE"
	RunFatal          RunStatus = "FATAL"
)

// ApplyResult is the outcome of one apply run. Cancelled is set when the run
// was asked to stop and drained gracefully before finishing the plan.
type ApplyResult struct {
	RunID       string
	PlanID      string
	Status      RunStatus
	FatalReason string
	Cancelled   bool
	StartedAt   time.Time
	FinishedAt  time.Time
	Entries     []EntryResult
}

// Failed returns the entries that ended in failure, in plan order.
func (r ApplyResult) Failed() []EntryResult {
	var out []EntryResult
	for _, e := range r.Entries {
		if e.Status == EntryFailure {
			out = append(out, e)
		}
	}
	return out
}

// Succeeded returns the entries that were applied successfully.
func (r ApplyResult) Succeeded() []EntryResult {
	var out []EntryResult
	for _, e := range r.Entries {
		if e.Status == EntrySuccess {
			out = append(out, e)
		}
	}
	return out
}
