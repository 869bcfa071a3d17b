package stresstest

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/studiowebux/loadhook/internal/hooks"
	"github.com/studiowebux/loadhook/internal/state"
	"github.com/studiowebux/loadhook/internal/types"
)

// Outcome classifies a finished iteration
type Outcome string

const (
	OutcomeSuccess        Outcome = "success"
	OutcomeStatusError    Outcome = "status_error"    // response outside the expected statuses
	OutcomeTransportError Outcome = "transport_error" // no response, after-response hook skipped
	OutcomeHookError      Outcome = "hook_error"
)

// Run statuses
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusStopped   = "stopped" // a Stop hook ended the run
	StatusCancelled = "cancelled"
	StatusFailed    = "failed"
)

// Run represents a load run record
type Run struct {
	ID                   int64
	UUID                 string
	URL                  string
	Hooks                string // hook source label: pattern name or script file
	Goroutines           int
	ConfigYAML           string
	StartedAt            time.Time
	CompletedAt          *time.Time
	Status               string
	TotalIterations      int
	TotalSuccess         int
	TotalStatusErrors    int
	TotalTransportErrors int
	TotalHookErrors      int
	TotalBytes           int64
	AvgDurationMs        float64
	MinDurationMs        int64
	MaxDurationMs        int64
}

// Iteration is the ledger row of one worker iteration
type Iteration struct {
	ID           int64
	RunID        int64
	Worker       int
	Index        int
	Timestamp    time.Time
	ElapsedMs    int64
	Method       string
	URL          string
	StatusCode   int
	Outcome      Outcome
	Phase        string // hook that failed, empty otherwise
	ErrorMessage string
	DurationMs   int64
	RequestSize  int64
	ResponseSize int64
}

// ExecutionConfig contains the runtime configuration for a load run
type ExecutionConfig struct {
	Config *types.RunConfig
	// Hooks builds each worker's hooks. Nil runs the configured request unchanged.
	Hooks hooks.Factory
	// HooksName labels the hook source on the run record
	HooksName string
	// Shared is handed to every worker. Nil keeps all script state per worker.
	Shared  *state.Shared
	Logger  logrus.FieldLogger
	Metrics *Metrics
}

// Validate validates the execution configuration
func (c *ExecutionConfig) Validate() error {
	if c.Config == nil {
		return fmt.Errorf("run config is required")
	}
	return c.Config.Validate()
}

// IsRunning returns true if the run is currently in progress
func (r *Run) IsRunning() bool {
	return r.Status == StatusRunning
}

// IsCompleted returns true if the run has finished
func (r *Run) IsCompleted() bool {
	switch r.Status {
	case StatusCompleted, StatusStopped, StatusCancelled, StatusFailed:
		return true
	default:
		return false
	}
}

// Failures returns the number of failed iterations of any kind
func (r *Run) Failures() int {
	return r.TotalStatusErrors + r.TotalTransportErrors + r.TotalHookErrors
}
