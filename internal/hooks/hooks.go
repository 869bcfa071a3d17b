package hooks

import (
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/studiowebux/loadhook/internal/state"
	"github.com/studiowebux/loadhook/internal/types"
)

// Name identifies a hook in errors, logs and metrics
type Name string

const (
	HookSetup         Name = "setup"
	HookBeforeRequest Name = "before_request"
	HookAfterResponse Name = "after_response"
	HookStop          Name = "stop"
	HookDelay         Name = "delay"
)

var ErrInvalidTransition = errors.New("invalid hook phase transition")

// HookError wraps a failure returned or raised by user hook logic
type HookError struct {
	Hook Name
	Err  error
}

func (e *HookError) Error() string {
	return fmt.Sprintf("%s hook: %v", e.Hook, e.Err)
}

func (e *HookError) Unwrap() error {
	return e.Err
}

// Env is what a hook can reach: the worker's request context and script state.
// One Env exists per worker and is never shared between workers.
type Env struct {
	Worker    int
	Iteration int // zero-based index of the current iteration on this worker
	Request   *types.RequestContext
	State     *state.Store
	Shared    *state.Shared // nil unless shared state was declared
	Log       logrus.FieldLogger
}

// NewEnv creates a worker environment with a request context preloaded from defaults
func NewEnv(worker int, defaults types.RequestConfig, shared *state.Shared, log logrus.FieldLogger) *Env {
	if log == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		log = l
	}
	return &Env{
		Worker:  worker,
		Request: types.NewRequestContext(defaults),
		State:   state.NewStore(),
		Shared:  shared,
		Log:     log.WithField("worker", worker),
	}
}

// Hooks is the set of user callbacks for one worker. Every field is optional;
// a nil field is a no-op for that phase, a nil *Hooks is a stateless passthrough.
type Hooks struct {
	// Setup runs once when the worker environment is created
	Setup func(env *Env) error
	// BeforeRequest may rewrite env.Request before it is issued
	BeforeRequest func(env *Env) error
	// AfterResponse observes the response of the request just issued
	AfterResponse func(env *Env, res *types.ResponseView) error
	// Stop ends the whole run when it returns true. It runs between iterations,
	// where env.Iteration is the number of iterations finished so far.
	Stop func(env *Env) bool
	// Delay pauses the worker before its next iteration
	Delay func(env *Env) time.Duration
}

// Factory builds the hooks for one worker
type Factory func(worker int) (*Hooks, error)

// Static returns a factory handing the same hooks to every worker.
// This is safe because hooks reach state only through their Env.
func Static(h *Hooks) Factory {
	return func(int) (*Hooks, error) {
		return h, nil
	}
}

// call runs fn, turning both returned errors and panics into a *HookError
func call(name Name, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &HookError{Hook: name, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	if e := fn(); e != nil {
		var he *HookError
		if errors.As(e, &he) {
			return e
		}
		return &HookError{Hook: name, Err: e}
	}
	return nil
}
