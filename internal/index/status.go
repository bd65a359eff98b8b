package index

import (
	"fmt"
	"time"

	"github.com/Aman-CERP/labsearch/internal/embed"
)

// State is the orchestrator's lifecycle state.
type State string

const (
	StateIdle     State = "idle"
	StateIndexing State = "indexing"
	StateComplete State = "complete"
	StateError    State = "error"
)

// Trigger records why a run started.
type Trigger string

const (
	TriggerManual         Trigger = "manual"
	TriggerProviderSwitch Trigger = "provider_switch"
	TriggerAuto           Trigger = "auto"
	TriggerWatch          Trigger = "watch"
)

// Status is a point-in-time snapshot of the orchestrator.
type Status struct {
	State       State            `json:"state"`
	Trigger     Trigger          `json:"trigger,omitempty"`
	Current     int              `json:"current"`
	Total       int              `json:"total"`
	Embedded    int              `json:"embedded"`
	Failed      int              `json:"failed"`
	Provider    embed.ProviderID `json:"provider,omitempty"`
	LastIndexed time.Time        `json:"last_indexed,omitempty"`
	LastError   string           `json:"last_error,omitempty"`
	RunID       string           `json:"run_id,omitempty"`
}

// Idle reports whether no run is in progress. Complete and Error are
// idle: they describe the last run.
func (s Status) Idle() bool {
	return s.State != StateIndexing
}

// Report summarizes one run. Embedded + Failed + Skipped == Total.
type Report struct {
	RunID    string           `json:"run_id"`
	Provider embed.ProviderID `json:"provider"`
	Trigger  Trigger          `json:"trigger"`
	Total    int              `json:"total"`
	Embedded int              `json:"embedded"`
	Failed   int              `json:"failed"`
	Skipped  int              `json:"skipped"`
	Cleared  int              `json:"cleared"`
	Pruned   int              `json:"pruned"`
	Duration time.Duration    `json:"duration"`
}

// Summary returns the aggregate outcome of the embed stage, such as
// "7 of 10 embedded".
func (r *Report) Summary() string {
	return fmt.Sprintf("%d of %d embedded", r.Embedded, r.Embedded+r.Failed)
}
