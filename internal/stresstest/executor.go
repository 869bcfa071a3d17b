package stresstest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/studiowebux/loadhook/internal/executor"
	"github.com/studiowebux/loadhook/internal/hooks"
)

const defaultBufferSize = 100

// IterationResult is what a worker reports for one finished iteration
type IterationResult struct {
	Worker       int
	Index        int
	Method       string
	URL          string
	StatusCode   int
	Outcome      Outcome
	Phase        hooks.Name // failing hook, empty otherwise
	Err          error
	Duration     time.Duration
	GotResponse  bool
	RequestSize  int64
	ResponseSize int64
	Timestamp    time.Time
	Elapsed      time.Duration
}

// Executor runs one load run: a fixed set of workers, each driving its own
// hook session until the run is cancelled or the iteration budget is spent
type Executor struct {
	config     *ExecutionConfig
	manager    *Manager // nil disables the ledger
	run        *Run
	stats      *Stats
	log        logrus.FieldLogger
	httpClient *http.Client

	ctx        context.Context
	cancelFunc context.CancelFunc
	group      *errgroup.Group
	started    bool

	resultChan    chan *IterationResult
	collectorDone chan struct{}
	closeOnce     sync.Once
	waitOnce      sync.Once
	waitErr       error

	testStart     time.Time
	statsMu       sync.Mutex
	claimed       int64 // iterations claimed against the budget
	activeWorkers int32
	cancelled     atomic.Bool
	stoppedByHook atomic.Bool
	itersBuf      []*Iteration
	bufferSize    int
}

// NewExecutor validates the configuration, builds the HTTP client and creates
// the run record. Configuration errors surface here, before any request.
func NewExecutor(config *ExecutionConfig, manager *Manager) (*Executor, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	httpClient, err := executor.NewClient(config.Config)
	if err != nil {
		return nil, fmt.Errorf("failed to build HTTP client: %w", err)
	}

	log := config.Logger
	if log == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		log = l
	}

	configYAML, err := yaml.Marshal(config.Config)
	if err != nil {
		return nil, fmt.Errorf("failed to render config: %w", err)
	}

	run := &Run{
		UUID:       uuid.NewString(),
		URL:        config.Config.URL,
		Hooks:      config.HooksName,
		Goroutines: config.Config.Goroutines,
		ConfigYAML: string(configYAML),
		StartedAt:  time.Now(),
		Status:     StatusRunning,
	}
	if manager != nil {
		if err := manager.CreateRun(run); err != nil {
			return nil, fmt.Errorf("failed to create run record: %w", err)
		}
	}

	stats := NewStats()
	stats.TotalIterations = config.Config.Iterations

	ctx, cancel := context.WithCancel(context.Background())

	return &Executor{
		config:        config,
		manager:       manager,
		run:           run,
		stats:         stats,
		log:           log.WithField("run", run.UUID),
		httpClient:    httpClient,
		ctx:           ctx,
		cancelFunc:    cancel,
		resultChan:    make(chan *IterationResult, config.Config.Goroutines*2),
		collectorDone: make(chan struct{}),
		itersBuf:      make([]*Iteration, 0, defaultBufferSize),
		bufferSize:    defaultBufferSize,
	}, nil
}

// Start launches the workers and the result collector
func (e *Executor) Start() {
	e.testStart = time.Now()
	e.started = true

	group, ctx := errgroup.WithContext(e.ctx)
	e.group = group

	for i := 0; i < e.config.Config.Goroutines; i++ {
		id := i
		group.Go(func() error {
			return e.worker(ctx, id)
		})
	}

	go e.collectResults()

	if d := e.config.Config.GetTestDuration(); d > 0 {
		go e.durationTimer(d)
	}

	e.log.WithFields(logrus.Fields{
		"goroutines": e.config.Config.Goroutines,
		"duration":   e.config.Config.GetTestDuration(),
		"iterations": e.config.Config.Iterations,
	}).Info("Run started")
}

// durationTimer cancels the run after the specified duration
func (e *Executor) durationTimer(duration time.Duration) {
	select {
	case <-time.After(duration):
		e.cancelFunc()
	case <-e.ctx.Done():
		return
	}
}

// Wait blocks until every worker has exited and the run is finalized.
// It returns the first worker startup error, if any. Safe to call more than once.
func (e *Executor) Wait() error {
	e.waitOnce.Do(func() {
		if !e.started {
			e.waitErr = errors.New("run was not started")
			return
		}

		e.waitErr = e.group.Wait()
		e.closeResultChan()
		<-e.collectorDone
		e.cancelFunc()

		e.finalize(e.status())
	})
	return e.waitErr
}

// Stop cancels the run and waits for in-flight iterations to finish
func (e *Executor) Stop() {
	e.cancelled.Store(true)
	e.cancelFunc()
	_ = e.Wait()
}

// StopWithContext cancels the run, waiting for workers at most until ctx is done
func (e *Executor) StopWithContext(ctx context.Context) error {
	e.cancelled.Store(true)
	e.cancelFunc()

	done := make(chan struct{})
	go func() {
		_ = e.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Executor) closeResultChan() {
	e.closeOnce.Do(func() {
		close(e.resultChan)
	})
}

func (e *Executor) status() string {
	switch {
	case e.waitErr != nil:
		return StatusFailed
	case e.stoppedByHook.Load():
		return StatusStopped
	case e.cancelled.Load():
		return StatusCancelled
	default:
		return StatusCompleted
	}
}

// GetStats returns a copy of the current statistics (thread-safe)
func (e *Executor) GetStats() *Stats {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()

	statsCopy := e.stats.Clone()
	statsCopy.ActiveWorkers = int(atomic.LoadInt32(&e.activeWorkers))
	return statsCopy
}

// GetRun returns the run record
func (e *Executor) GetRun() *Run {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()
	r := *e.run
	return &r
}

// claim reserves one iteration from the global budget
func (e *Executor) claim() bool {
	budget := int64(e.config.Config.Iterations)
	if budget == 0 {
		return true
	}
	return atomic.AddInt64(&e.claimed, 1) <= budget
}

// worker owns one environment and one session for the whole run.
// It returns an error only when the worker could not start.
func (e *Executor) worker(ctx context.Context, id int) error {
	log := e.log.WithField("worker", id)

	var h *hooks.Hooks
	if e.config.Hooks != nil {
		var err error
		if h, err = e.config.Hooks(id); err != nil {
			return fmt.Errorf("worker %d: failed to build hooks: %w", id, err)
		}
	}

	env := hooks.NewEnv(id, e.config.Config.RequestConfig, e.config.Shared, e.log)
	session := hooks.NewSession(env, h)
	if err := session.Setup(); err != nil {
		return fmt.Errorf("worker %d: %w", id, err)
	}

	for ctx.Err() == nil {
		if !e.claim() {
			return nil
		}

		e.resultChan <- e.iterate(ctx, session)

		stop, err := session.ShouldStop()
		if err != nil {
			e.config.Metrics.observeHookError(string(hooks.HookStop))
			log.WithError(err).Warn("Stop hook failed")
		}
		if stop {
			log.WithField("iteration", session.Iteration()).Info("Stop hook ended the run")
			e.stoppedByHook.Store(true)
			e.cancelFunc()
			return nil
		}

		delay, err := session.NextDelay()
		if err != nil {
			e.config.Metrics.observeHookError(string(hooks.HookDelay))
			log.WithError(err).Warn("Delay hook failed")
		}
		if delay > 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(delay):
			}
		}
	}
	return nil
}

// iterate runs one full iteration. The network call is detached from run
// cancellation so a started iteration always completes; the client timeout
// still bounds it.
func (e *Executor) iterate(ctx context.Context, session *hooks.Session) *IterationResult {
	env := session.Env()
	result := &IterationResult{
		Worker:    env.Worker,
		Index:     session.Iteration(),
		Timestamp: time.Now(),
	}
	log := e.log.WithFields(logrus.Fields{"worker": env.Worker, "iteration": result.Index})
	defer func() {
		result.Elapsed = time.Since(e.testStart)
		e.config.Metrics.observeIteration(result.Outcome, string(result.Phase), result.Duration, result.GotResponse)
	}()

	req, err := session.Begin()
	if err != nil {
		result.fail(OutcomeHookError, hooks.HookBeforeRequest, err)
		log.WithError(err).Warn("Request skipped")
		return result
	}
	result.Method = req.Method
	result.URL = req.URL
	result.RequestSize = int64(len(req.Body))

	atomic.AddInt32(&e.activeWorkers, 1)
	e.config.Metrics.requestStarted()
	res, err := executor.Do(context.WithoutCancel(ctx), e.httpClient, req)
	e.config.Metrics.requestFinished()
	atomic.AddInt32(&e.activeWorkers, -1)

	if err != nil {
		if abortErr := session.Abort(); abortErr != nil {
			log.WithError(abortErr).Error("Session out of phase")
		}
		result.fail(OutcomeTransportError, "", err)
		log.WithError(err).WithField("timeout", executor.IsTimeout(err)).Debug("Transport error")
		return result
	}

	result.GotResponse = true
	result.StatusCode = res.Status
	result.Duration = res.Duration
	result.ResponseSize = int64(res.Size() + executor.EstimateHeaderSize(res.Headers()))

	if err := session.Complete(res); err != nil {
		result.fail(OutcomeHookError, hooks.HookAfterResponse, err)
		log.WithError(err).Warn("Response hook failed")
		return result
	}

	if !e.config.Config.IsExpectedStatus(res.Status) {
		result.Outcome = OutcomeStatusError
		result.Err = fmt.Errorf("unexpected status %d", res.Status)
		return result
	}
	result.Outcome = OutcomeSuccess
	return result
}

func (r *IterationResult) fail(outcome Outcome, phase hooks.Name, err error) {
	r.Outcome = outcome
	r.Phase = phase
	r.Err = err
}

// collectResults folds worker results into the stats and the ledger
func (e *Executor) collectResults() {
	defer close(e.collectorDone)

	for result := range e.resultChan {
		e.statsMu.Lock()
		e.stats.AddResult(result.Worker, result.Outcome, result.GotResponse,
			result.Duration.Milliseconds(), result.ResponseSize)
		e.statsMu.Unlock()

		if e.manager == nil {
			continue
		}

		it := &Iteration{
			RunID:        e.run.ID,
			Worker:       result.Worker,
			Index:        result.Index,
			Timestamp:    result.Timestamp,
			ElapsedMs:    result.Elapsed.Milliseconds(),
			Method:       result.Method,
			URL:          result.URL,
			StatusCode:   result.StatusCode,
			Outcome:      result.Outcome,
			Phase:        string(result.Phase),
			DurationMs:   result.Duration.Milliseconds(),
			RequestSize:  result.RequestSize,
			ResponseSize: result.ResponseSize,
		}
		if result.Err != nil {
			it.ErrorMessage = result.Err.Error()
		}
		e.itersBuf = append(e.itersBuf, it)

		if len(e.itersBuf) >= e.bufferSize {
			e.flushIterations()
		}
	}

	e.flushIterations()
}

// flushIterations writes buffered iterations to the ledger
func (e *Executor) flushIterations() {
	if len(e.itersBuf) == 0 {
		return
	}

	if err := e.manager.SaveIterationsBatch(e.itersBuf); err != nil {
		// Keep running; the run summary is still recorded
		e.log.WithError(err).Error("Failed to save iterations")
	}

	e.itersBuf = e.itersBuf[:0]
}

// finalize completes the run record with final statistics
func (e *Executor) finalize(status string) {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()

	now := time.Now()
	e.run.CompletedAt = &now
	e.run.Status = status
	e.run.TotalIterations = e.stats.CompletedIterations
	e.run.TotalSuccess = e.stats.SuccessCount
	e.run.TotalStatusErrors = e.stats.StatusErrorCount
	e.run.TotalTransportErrors = e.stats.TransportErrorCount
	e.run.TotalHookErrors = e.stats.HookErrorCount
	e.run.TotalBytes = e.stats.TotalBytes
	e.run.AvgDurationMs = e.stats.AvgDurationMs()
	e.run.MinDurationMs = e.stats.Min()
	e.run.MaxDurationMs = e.stats.Max()

	entry := e.log.WithFields(logrus.Fields{
		"status":     status,
		"iterations": e.run.TotalIterations,
		"failures":   e.run.Failures(),
	})
	if e.waitErr != nil {
		entry = entry.WithError(e.waitErr)
	}
	entry.Info("Run finished")

	if e.manager == nil {
		return
	}
	if err := e.manager.UpdateRun(e.run); err != nil {
		e.log.WithError(err).Error("Failed to update run record")
	}
}
