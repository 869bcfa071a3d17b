package script

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/d5/tengo/v2"
	"github.com/d5/tengo/v2/stdlib"

	"github.com/studiowebux/loadhook/internal/chain"
	"github.com/studiowebux/loadhook/internal/hooks"
	"github.com/studiowebux/loadhook/internal/types"
)

// Variables visible to every script run
const (
	varPhase     = "phase"
	varWorker    = "worker"
	varIteration = "iteration"
	varReq       = "req"
	varRes       = "res"
	varState     = "state"
	varShared    = "shared"
	varStop      = "stop"
	varDelay     = "delay"
	varFail      = "fail"
	varLog       = "log"
	varExtract   = "extract"
)

// Phase values a script sees in the phase variable
const (
	PhaseSetup         = string(hooks.HookSetup)
	PhaseBeforeRequest = string(hooks.HookBeforeRequest)
	PhaseAfterResponse = string(hooks.HookAfterResponse)
)

var ErrScriptFailed = errors.New("script failed")

// Options tunes how a script is compiled
type Options struct {
	// Modules lists the importable standard modules. Empty means every
	// module except os.
	Modules []string
	// MaxAllocs caps object allocations per run, 0 for no limit
	MaxAllocs int64
}

// Program is a compiled hook script. Workers never share a compiled
// instance; Factory clones it for each one.
type Program struct {
	name     string
	compiled *tengo.Compiled
}

// Load reads and compiles the script at path
func Load(path string, opts Options) (*Program, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read script: %w", err)
	}
	return New(filepath.Base(path), src, opts)
}

// New compiles src
func New(name string, src []byte, opts Options) (*Program, error) {
	s := tengo.NewScript(src)
	s.SetImports(stdlib.GetModuleMap(allowedModules(opts.Modules)...))
	if opts.MaxAllocs > 0 {
		s.SetMaxAllocs(opts.MaxAllocs)
	}

	globals := map[string]interface{}{
		varPhase:     "",
		varWorker:    0,
		varIteration: 0,
		varReq:       map[string]interface{}{},
		varRes:       nil,
		varState:     map[string]interface{}{},
		varShared:    nil,
		varStop:      false,
		varDelay:     0,
		varFail:      nil,
		varLog:       &tengo.UserFunction{Name: varLog, Value: discard},
		varExtract:   &tengo.UserFunction{Name: varExtract, Value: discard},
	}
	for k, v := range globals {
		if err := s.Add(k, v); err != nil {
			return nil, fmt.Errorf("failed to declare %s: %w", k, err)
		}
	}

	compiled, err := s.Compile()
	if err != nil {
		return nil, fmt.Errorf("failed to compile %s: %w", name, err)
	}

	return &Program{name: name, compiled: compiled}, nil
}

// Name returns the script file name
func (p *Program) Name() string {
	return p.name
}

// Factory returns a hooks factory giving each worker its own clone
func (p *Program) Factory() hooks.Factory {
	return func(worker int) (*hooks.Hooks, error) {
		w := &runner{compiled: p.compiled.Clone()}
		return w.hooks(), nil
	}
}

func allowedModules(names []string) []string {
	if len(names) > 0 {
		return names
	}
	var allowed []string
	for _, name := range stdlib.AllModuleNames() {
		if name == "os" {
			continue
		}
		allowed = append(allowed, name)
	}
	return allowed
}

func discard(args ...tengo.Object) (tengo.Object, error) {
	return tengo.UndefinedValue, nil
}

// runner is the per-worker script instance
type runner struct {
	compiled *tengo.Compiled
	stop     bool
	delay    time.Duration
}

func (r *runner) hooks() *hooks.Hooks {
	return &hooks.Hooks{
		Setup: func(env *hooks.Env) error {
			if err := r.compiled.Set(varLog, logFunc(env)); err != nil {
				return err
			}
			return r.run(env, PhaseSetup, nil)
		},
		BeforeRequest: func(env *hooks.Env) error {
			return r.run(env, PhaseBeforeRequest, nil)
		},
		AfterResponse: func(env *hooks.Env, res *types.ResponseView) error {
			return r.run(env, PhaseAfterResponse, res)
		},
		Stop: func(env *hooks.Env) bool {
			return r.stop
		},
		Delay: func(env *hooks.Env) time.Duration {
			return r.delay
		},
	}
}

// run executes the script once for phase. With shared state declared the
// whole run holds the shared lock, so a script sees and commits shared
// values atomically.
func (r *runner) run(env *hooks.Env, phase string, res *types.ResponseView) error {
	inputs := map[string]interface{}{
		varPhase:     phase,
		varWorker:    env.Worker,
		varIteration: env.Iteration,
		varReq:       requestToMap(env.Request),
		varRes:       responseToMap(res),
		varState:     env.State.Map(),
		varFail:      nil,
		varExtract:   extractFunc(res),
	}
	for k, v := range inputs {
		if err := r.compiled.Set(k, v); err != nil {
			return fmt.Errorf("failed to set %s: %w", k, err)
		}
	}

	var runErr error
	if env.Shared == nil {
		runErr = r.exec()
	} else {
		env.Shared.Update(func(values map[string]interface{}) {
			if runErr = r.compiled.Set(varShared, copyMap(values)); runErr != nil {
				return
			}
			runErr = r.exec()
			replaceMap(values, r.compiled.Get(varShared).Map())
		})
	}

	if err := r.collectWrites(env); err != nil && runErr == nil {
		return err
	}
	if runErr != nil {
		return runErr
	}
	return r.collectOutputs()
}

// exec runs the program, turning VM panics (integer division by zero and
// the like) into errors so writes made before the failure can be collected
func (r *runner) exec() (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return r.compiled.Run()
}

// collectWrites copies req and state back into the worker environment.
// It runs after failed runs too: writes made before a failure are kept.
func (r *runner) collectWrites(env *hooks.Env) error {
	if err := mapToRequest(r.compiled.Get(varReq).Map(), env.Request); err != nil {
		return err
	}
	env.State.Replace(r.compiled.Get(varState).Map())
	return nil
}

// collectOutputs reads stop, delay and fail after a successful run
func (r *runner) collectOutputs() error {
	r.stop = r.compiled.Get(varStop).Bool()
	r.delay = time.Duration(r.compiled.Get(varDelay).Int64()) * time.Millisecond

	fail := r.compiled.Get(varFail)
	if fail.IsUndefined() {
		return nil
	}
	switch v := fail.Value().(type) {
	case nil:
		return nil
	case bool:
		if !v {
			return nil
		}
		return ErrScriptFailed
	case error:
		return fmt.Errorf("%w: %v", ErrScriptFailed, v)
	default:
		if s := fail.String(); s != "" {
			return fmt.Errorf("%w: %s", ErrScriptFailed, s)
		}
		return nil
	}
}

func logFunc(env *hooks.Env) *tengo.UserFunction {
	return &tengo.UserFunction{
		Name: varLog,
		Value: func(args ...tengo.Object) (tengo.Object, error) {
			parts := make([]interface{}, 0, len(args))
			for _, a := range args {
				s, _ := tengo.ToString(a)
				parts = append(parts, s)
			}
			env.Log.WithField("iteration", env.Iteration).Info(parts...)
			return tengo.UndefinedValue, nil
		},
	}
}

// extractFunc applies an extraction rule ("header:<name>" or a JMESPath
// expression) to the response of the current run. It returns an error value
// when nothing matches and undefined outside after_response.
// extractFunc reads values from the response. It takes one rule string and
// returns a string, or a map of name to rule and returns a map of strings.
// Failures come back as error values.
func extractFunc(res *types.ResponseView) *tengo.UserFunction {
	return &tengo.UserFunction{
		Name: varExtract,
		Value: func(args ...tengo.Object) (tengo.Object, error) {
			if len(args) != 1 {
				return nil, tengo.ErrWrongNumArguments
			}
			if m, ok := args[0].(*tengo.Map); ok {
				return extractMap(res, m)
			}
			raw, ok := tengo.ToString(args[0])
			if !ok {
				return nil, tengo.ErrInvalidArgumentType{Name: "rule", Expected: "string or map", Found: args[0].TypeName()}
			}
			if res == nil {
				return tengo.UndefinedValue, nil
			}

			rule, err := chain.ParseRule(raw)
			if err != nil {
				return errorValue(err), nil
			}
			v, err := chain.Extract(res, rule)
			if err != nil {
				return errorValue(err), nil
			}
			return &tengo.String{Value: v}, nil
		},
	}
}

func extractMap(res *types.ResponseView, m *tengo.Map) (tengo.Object, error) {
	rules := make(map[string]string, len(m.Value))
	for name, obj := range m.Value {
		raw, ok := tengo.ToString(obj)
		if !ok {
			return nil, tengo.ErrInvalidArgumentType{Name: name, Expected: "string", Found: obj.TypeName()}
		}
		rules[name] = raw
	}
	if res == nil {
		return tengo.UndefinedValue, nil
	}

	values, err := chain.ExtractVariables(res, rules)
	if err != nil {
		return errorValue(err), nil
	}
	out := &tengo.Map{Value: make(map[string]tengo.Object, len(values))}
	for name, v := range values {
		out.Value[name] = &tengo.String{Value: v}
	}
	return out, nil
}

func errorValue(err error) *tengo.Error {
	return &tengo.Error{Value: &tengo.String{Value: err.Error()}}
}
