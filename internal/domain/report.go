package domain

import (
	"fmt"
	"time"
)

// Outcome records what happened for one region in one collection pass.
type Outcome struct {
	Region string `json:"region"`
	Mode   Mode   `json:"mode"`

	// Source is the source tag that ultimately produced the stored data, or
	// SourceNone when both sources failed.
	Source string `json:"source"`

	// Records is the number of rows appended to the partition. Zero with a
	// successful Source means the merge found nothing new (a no-op run).
	Records int `json:"records"`

	// Fallback is true when the backup source supplied the data.
	Fallback bool `json:"fallback"`

	// FailureReason is set only when Source is SourceNone.
	FailureReason string `json:"failure_reason,omitempty"`
}

// Succeeded reports whether any source produced a stored batch.
func (o Outcome) Succeeded() bool {
	return o.Source != SourceNone
}

// Report is the orchestrator's only structured return value: one outcome per
// (region, mode) pair, plus run timing. Formatting is the caller's job.
type Report struct {
	Mode       Mode      `json:"mode"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Outcomes   []Outcome `json:"outcomes"`
}

// Succeeded counts outcomes with a producing source.
func (r Report) Succeeded() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Succeeded() {
			n++
		}
	}
	return n
}

// Failed counts outcomes where both sources failed.
func (r Report) Failed() int {
	return len(r.Outcomes) - r.Succeeded()
}

// Summary renders the steady-state "N of M" line. Partial success is the
// expected outcome under real-world API flakiness.
func (r Report) Summary() string {
	return fmt.Sprintf("%d of %d region passes succeeded", r.Succeeded(), len(r.Outcomes))
}
