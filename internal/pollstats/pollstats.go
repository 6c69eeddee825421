// Package pollstats keeps process-wide counters for the poll loop,
// served by the status endpoint.
package pollstats

import (
	"sync"
	"time"
)

// CycleReport summarizes one completed poll cycle.
type CycleReport struct {
	StartedAt        time.Time `json:"started_at"`
	DurationMillis   int64     `json:"duration_millis"`
	VersionChanges   int       `json:"version_changes"`
	NewComments      int       `json:"new_comments"`
	JobsDispatched   int       `json:"jobs_dispatched"`
	DeliveryFailures int       `json:"delivery_failures"`
	MetadataFailures int       `json:"metadata_failures"`
}

// Totals accumulates over all cycles since process start.
type Totals struct {
	Cycles              int64 `json:"cycles"`
	VersionChanges      int64 `json:"version_changes"`
	NewComments         int64 `json:"new_comments"`
	JobsDispatched      int64 `json:"jobs_dispatched"`
	DeliveryFailures    int64 `json:"delivery_failures"`
	MetadataFailures    int64 `json:"metadata_failures"`
	TotalDurationMillis int64 `json:"total_duration_millis"`
}

// Snapshot is the point-in-time view returned to callers.
type Snapshot struct {
	Totals      Totals       `json:"totals"`
	LastCycle   *CycleReport `json:"last_cycle,omitempty"`
	GeneratedAt time.Time    `json:"generated_at"`
}

type registry struct {
	mu     sync.RWMutex
	totals Totals
	last   *CycleReport
}

var globalRegistry = &registry{}

func ResetForTests() {
	globalRegistry = &registry{}
}

// RecordCycle folds one finished cycle into the totals and remembers it
// as the latest.
func RecordCycle(report CycleReport) {
	globalRegistry.mu.Lock()
	defer globalRegistry.mu.Unlock()

	globalRegistry.totals.Cycles++
	globalRegistry.totals.VersionChanges += int64(report.VersionChanges)
	globalRegistry.totals.NewComments += int64(report.NewComments)
	globalRegistry.totals.JobsDispatched += int64(report.JobsDispatched)
	globalRegistry.totals.DeliveryFailures += int64(report.DeliveryFailures)
	globalRegistry.totals.MetadataFailures += int64(report.MetadataFailures)
	globalRegistry.totals.TotalDurationMillis += report.DurationMillis

	last := report
	globalRegistry.last = &last
}

// SnapshotNow returns a copy of the current counters.
func SnapshotNow() Snapshot {
	globalRegistry.mu.RLock()
	defer globalRegistry.mu.RUnlock()

	snapshot := Snapshot{
		Totals:      globalRegistry.totals,
		GeneratedAt: time.Now().UTC(),
	}
	if globalRegistry.last != nil {
		last := *globalRegistry.last
		snapshot.LastCycle = &last
	}
	return snapshot
}
