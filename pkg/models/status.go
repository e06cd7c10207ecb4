package models

// TargetStatus represents the processing status of a target in the checkpoint database
type TargetStatus string

const (
	TargetStatusUnset    TargetStatus = ""          // Zero value = unset/unknown
	TargetStatusPending  TargetStatus = "pending"   // Target discovered but not processed
	TargetStatusSuccess  TargetStatus = "success"   // Target fetched and extracted
	TargetStatusFailure  TargetStatus = "failure"   // Fetch or parse failed, empty result recorded
	TargetStatusSkipped  TargetStatus = "skipped"   // Not fetched (robots.txt)
	TargetStatusNotFound TargetStatus = "not_found" // Target not in database
	TargetStatusDBError  TargetStatus = "db_error"  // Database error occurred
)

// String implements fmt.Stringer for logging
func (s TargetStatus) String() string {
	if s == "" {
		return "unset"
	}
	return string(s)
}

// IsValid returns true if the status is a known operational value
func (s TargetStatus) IsValid() bool {
	switch s {
	case TargetStatusPending, TargetStatusSuccess, TargetStatusFailure, TargetStatusSkipped:
		return true
	}
	return false
}

// IsReplayable reports whether a stored entry can stand in for a fresh fetch on resume
func (s TargetStatus) IsReplayable() bool {
	return s == TargetStatusSuccess || s == TargetStatusSkipped
}

// RunState is the coordinator's position in a run
type RunState string

const (
	RunStateIdle        RunState = "idle"
	RunStateDiscovering RunState = "discovering"
	RunStateIterating   RunState = "iterating"
	RunStateFinalizing  RunState = "finalizing"
	RunStateDone        RunState = "done"
	RunStateAborted     RunState = "aborted"
)

// String implements fmt.Stringer for logging
func (s RunState) String() string { return string(s) }

// IsTerminal reports whether no further transitions can occur
func (s RunState) IsTerminal() bool {
	return s == RunStateDone || s == RunStateAborted
}
