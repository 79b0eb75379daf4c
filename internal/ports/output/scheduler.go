package output

import "time"

// Scheduler fires timed jobs against wall-clock time. Job IDs are stable:
// scheduling an ID that already exists replaces the previous job, so every
// job can be re-derived from persisted state after a restart.
type Scheduler interface {
	RunAt(id string, at time.Time, task func())
	RunEvery(id string, every time.Duration, task func())
	Cancel(id string)
}
