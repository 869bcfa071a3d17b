/*
Package stresstest runs load against an HTTP endpoint with user hooks in the loop.

# Overview

The package implements the worker harness around the hook contract:
  - A fixed number of workers, each with its own request context and script state
  - Optional state shared by every worker, declared explicitly
  - A global iteration budget and a run duration
  - Per-iteration outcomes, run statistics and Prometheus metrics
  - SQLite persistence of runs and iterations

# Architecture

1. Executor (executor.go): worker fan-out, iteration loop, result collection
2. Manager (manager.go): ledger of runs and iterations
3. Metrics (metrics.go): Prometheus collectors on a private registry
4. Config (config.go): execution config, run and iteration records

# Worker Isolation

Each worker owns one hooks.Env and one hooks.Session for the whole run and
runs strictly sequentially:

	claim budget -> Begin (before-request) -> network call -> Complete | Abort
	             -> record -> Stop hook -> Delay hook -> repeat

Nothing in an Env is reachable from another worker. The only cross-worker
state is the optional state.Shared in ExecutionConfig, whose access is
serialized by its own lock. The network phase reads an immutable snapshot of
the request context, so hooks and I/O never touch the same value.

# Outcomes

  - success: response with an expected status
  - status_error: response with another status, the after-response hook still ran
  - transport_error: no response (refused, reset, timeout), the after-response
    hook was skipped
  - hook_error: a hook returned an error or panicked; when the before-request
    hook fails no request is sent

A failure never leaves its iteration: the worker logs it and moves on. There
are no retries.

# Termination

The run ends when the duration elapses, the iteration budget is spent, a Stop
hook returns true, or Stop is called. Workers check for termination between
iterations only. A started iteration finishes, including its after-response
hook, because the network call is detached from run cancellation and bounded
by the per-call timeout instead.

# Example Usage

	manager, err := stresstest.NewManager(config.DatabasePath)
	if err != nil {
		return err
	}
	defer manager.Close()

	exec, err := stresstest.NewExecutor(&stresstest.ExecutionConfig{
		Config: &cfg,
		Hooks:  hooks.Static(hooks.Counter(hooks.CounterOptions{})),
		Logger: log,
	}, manager)
	if err != nil {
		return err
	}

	exec.Start()
	if err := exec.Wait(); err != nil {
		return err
	}
	stats := exec.GetStats()
	fmt.Printf("%d iterations, %d failed\n", stats.CompletedIterations, stats.FailureCount())

# Thread Safety

GetStats and GetRun are safe to call while the run is in progress. Wait, Stop
and StopWithContext may be called from different goroutines.
*/
package stresstest
