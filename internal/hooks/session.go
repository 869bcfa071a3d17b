package hooks

import (
	"fmt"
	"time"

	"github.com/studiowebux/loadhook/internal/types"
)

// Phase is the per-worker protocol state
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseBeforeRequest
	PhaseInFlight
	PhaseAfterResponse
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseBeforeRequest:
		return "before_request"
	case PhaseInFlight:
		return "in_flight"
	case PhaseAfterResponse:
		return "after_response"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Session drives one worker through
// Idle -> BeforeRequest -> InFlight -> AfterResponse -> Idle.
// It is not safe for concurrent use; each worker owns its own Session.
type Session struct {
	env   *Env
	hooks *Hooks
	phase Phase
	setup bool
}

// NewSession creates a session in the Idle phase. h may be nil.
func NewSession(env *Env, h *Hooks) *Session {
	if h == nil {
		h = &Hooks{}
	}
	return &Session{env: env, hooks: h}
}

// Env returns the worker environment
func (s *Session) Env() *Env {
	return s.env
}

// Phase returns the current protocol phase
func (s *Session) Phase() Phase {
	return s.phase
}

// Iteration returns the index of the iteration about to run or running
func (s *Session) Iteration() int {
	return s.env.Iteration
}

// Setup runs the Setup hook once. Further calls are no-ops.
func (s *Session) Setup() error {
	if s.setup {
		return nil
	}
	if s.phase != PhaseIdle {
		return s.transitionErr(PhaseIdle)
	}
	s.setup = true

	if s.hooks.Setup == nil {
		return nil
	}
	return call(HookSetup, func() error {
		return s.hooks.Setup(s.env)
	})
}

// Begin runs the before-request hook and returns the snapshot to issue.
// On a hook error the session returns to Idle, writes already made to the
// request context are kept, and no request must be issued.
func (s *Session) Begin() (types.Request, error) {
	if s.phase != PhaseIdle {
		return types.Request{}, s.transitionErr(PhaseBeforeRequest)
	}
	s.phase = PhaseBeforeRequest

	if s.hooks.BeforeRequest != nil {
		err := call(HookBeforeRequest, func() error {
			return s.hooks.BeforeRequest(s.env)
		})
		if err != nil {
			s.finish()
			return types.Request{}, err
		}
	}

	s.phase = PhaseInFlight
	return s.env.Request.Snapshot(), nil
}

// Complete hands the received response to the after-response hook
// and returns the session to Idle.
func (s *Session) Complete(res *types.ResponseView) error {
	if s.phase != PhaseInFlight {
		return s.transitionErr(PhaseAfterResponse)
	}
	s.phase = PhaseAfterResponse
	defer s.finish()

	if s.hooks.AfterResponse == nil {
		return nil
	}
	return call(HookAfterResponse, func() error {
		return s.hooks.AfterResponse(s.env, res)
	})
}

// Abort ends an in-flight iteration that produced no response.
// The after-response hook is not invoked.
func (s *Session) Abort() error {
	if s.phase != PhaseInFlight {
		return s.transitionErr(PhaseIdle)
	}
	s.finish()
	return nil
}

// ShouldStop asks the Stop hook whether the run should end. Only valid while Idle.
func (s *Session) ShouldStop() (bool, error) {
	if s.hooks.Stop == nil {
		return false, nil
	}
	if s.phase != PhaseIdle {
		return false, s.transitionErr(PhaseIdle)
	}

	var stop bool
	err := call(HookStop, func() error {
		stop = s.hooks.Stop(s.env)
		return nil
	})
	return stop, err
}

// NextDelay asks the Delay hook how long to pause. Only valid while Idle.
func (s *Session) NextDelay() (time.Duration, error) {
	if s.hooks.Delay == nil {
		return 0, nil
	}
	if s.phase != PhaseIdle {
		return 0, s.transitionErr(PhaseIdle)
	}

	var d time.Duration
	err := call(HookDelay, func() error {
		d = s.hooks.Delay(s.env)
		return nil
	})
	if d < 0 {
		d = 0
	}
	return d, err
}

func (s *Session) finish() {
	s.phase = PhaseIdle
	s.env.Iteration++
}

func (s *Session) transitionErr(to Phase) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.phase, to)
}
