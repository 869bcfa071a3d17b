// Package cli wires configuration, hooks, the run ledger and the engine
// together for the loadhook commands.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/studiowebux/loadhook/internal/config"
	"github.com/studiowebux/loadhook/internal/hooks"
	"github.com/studiowebux/loadhook/internal/oauth"
	"github.com/studiowebux/loadhook/internal/parser"
	"github.com/studiowebux/loadhook/internal/script"
	"github.com/studiowebux/loadhook/internal/state"
	"github.com/studiowebux/loadhook/internal/stresstest"
	"github.com/studiowebux/loadhook/internal/types"
)

// ShutdownTimeout bounds how long an interrupted run waits for in-flight iterations
const ShutdownTimeout = 10 * time.Second

const (
	PatternCounter = "counter"
	PatternAuth    = "auth"
)

// HookOptions selects the hooks given to every worker
type HookOptions struct {
	Script        string // script path or name under the scripts directory
	Modules       []string
	MaxAllocs     int64
	Pattern       string // counter or auth, ignored when Script is set
	CounterStart  int
	CounterHeader string
	TokenPath     string
	Shared        bool
	OAuth         oauth.Config
}

// RunOptions contains options for a load run
type RunOptions struct {
	Hooks        HookOptions
	DBPath       string // empty disables the run ledger
	MetricsAddr  string
	OutputFormat string // text, json, yaml
	Logger       *logrus.Logger
	Out          io.Writer
}

// SeedFromFile reads a request file and seeds the loader's request defaults
// with the selected request after resolving its placeholders
func SeedFromFile(loader *config.Loader, path, selector string, vars []string) error {
	requests, err := parser.ParseFile(path)
	if err != nil {
		return err
	}
	req, err := parser.Select(requests, selector)
	if err != nil {
		return err
	}

	values, err := parseVars(vars)
	if err != nil {
		return err
	}
	resolver := parser.NewVariableResolver(values)
	resolver.ResolveRequest(&req)
	if missing := resolver.GetUnresolvedVariables(); len(missing) > 0 {
		return fmt.Errorf("unresolved variables in %s: %s", path, strings.Join(missing, ", "))
	}

	loader.Seed(req.RequestConfig)
	return nil
}

func parseVars(pairs []string) (map[string]string, error) {
	values := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid variable %q, expected key=value", pair)
		}
		values[k] = v
	}
	return values, nil
}

// BuildHooks returns the hook factory, its label for the run record and the
// shared state to hand to workers (nil when none was declared).
// A configured OAuth preflight runs here and seeds the shared state.
func BuildHooks(ctx context.Context, opts HookOptions) (hooks.Factory, string, *state.Shared, error) {
	var shared *state.Shared
	if opts.Shared || opts.OAuth.Enabled() {
		shared = state.NewShared()
	}

	if opts.OAuth.Enabled() {
		if _, err := oauth.Preflight(ctx, opts.OAuth, nil, shared); err != nil {
			return nil, "", nil, fmt.Errorf("oauth preflight: %w", err)
		}
	}

	if opts.Script != "" {
		path, err := config.ResolveScript(opts.Script)
		if err != nil {
			return nil, "", nil, err
		}
		prog, err := script.Load(path, script.Options{Modules: opts.Modules, MaxAllocs: opts.MaxAllocs})
		if err != nil {
			return nil, "", nil, err
		}
		return prog.Factory(), prog.Name(), shared, nil
	}

	switch opts.Pattern {
	case "":
		return hooks.Static(hooks.Passthrough()), "none", shared, nil
	case PatternCounter:
		h := hooks.Counter(hooks.CounterOptions{Start: opts.CounterStart, Header: opts.CounterHeader, Shared: opts.Shared})
		return hooks.Static(h), PatternCounter, shared, nil
	case PatternAuth:
		h, err := hooks.AuthPipeline(hooks.AuthOptions{TokenPath: opts.TokenPath, Shared: shared != nil})
		if err != nil {
			return nil, "", nil, err
		}
		return hooks.Static(h), PatternAuth, shared, nil
	default:
		return nil, "", nil, fmt.Errorf("unknown pattern %q (want %s or %s)", opts.Pattern, PatternCounter, PatternAuth)
	}
}

// Run executes a load run until its duration, iteration budget or a Stop hook
// ends it. An interrupt stops it gracefully.
func Run(ctx context.Context, cfg types.RunConfig, opts RunOptions) error {
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	factory, hooksName, shared, err := BuildHooks(ctx, opts.Hooks)
	if err != nil {
		return err
	}

	var manager *stresstest.Manager
	if opts.DBPath != "" {
		manager, err = stresstest.NewManager(opts.DBPath)
		if err != nil {
			return err
		}
		defer manager.Close()
	}

	var metrics *stresstest.Metrics
	if opts.MetricsAddr != "" {
		metrics = stresstest.NewMetrics()
		srv := serveMetrics(opts.MetricsAddr, metrics, log)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	exec, err := stresstest.NewExecutor(&stresstest.ExecutionConfig{
		Config:    &cfg,
		Hooks:     factory,
		HooksName: hooksName,
		Shared:    shared,
		Logger:    log,
		Metrics:   metrics,
	}, manager)
	if err != nil {
		return err
	}

	// Handle Ctrl+C
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)
	defer signal.Stop(sigChan)

	exec.Start()

	done := make(chan error, 1)
	go func() {
		done <- exec.Wait()
	}()

	select {
	case err = <-done:
	case <-sigChan:
		fmt.Fprintln(os.Stderr, "\nInterrupted, waiting for in-flight iterations...")
		err = stop(exec)
	case <-ctx.Done():
		err = stop(exec)
	}

	summary := newSummary(exec.GetRun(), exec.GetStats())
	output, ferr := formatSummary(summary, opts.OutputFormat)
	if ferr != nil {
		return ferr
	}
	fmt.Fprint(out, output)
	return err
}

func stop(exec *stresstest.Executor) error {
	ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := exec.StopWithContext(ctx); err != nil {
		return fmt.Errorf("workers did not stop in time: %w", err)
	}
	return exec.Wait()
}

func serveMetrics(addr string, metrics *stresstest.Metrics, log logrus.FieldLogger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("Metrics server failed")
		}
	}()
	log.WithField("addr", addr).Info("Serving metrics")
	return srv
}

// Summary is the printable result of a run
type Summary struct {
	UUID           string  `json:"uuid" yaml:"uuid"`
	Status         string  `json:"status" yaml:"status"`
	URL            string  `json:"url" yaml:"url"`
	Hooks          string  `json:"hooks" yaml:"hooks"`
	Goroutines     int     `json:"goroutines" yaml:"goroutines"`
	Iterations     int     `json:"iterations" yaml:"iterations"`
	Responded      int     `json:"responded" yaml:"responded"`
	Success        int     `json:"success" yaml:"success"`
	StatusErrors   int     `json:"status_errors" yaml:"status_errors"`
	TransportErrs  int     `json:"transport_errors" yaml:"transport_errors"`
	HookErrors     int     `json:"hook_errors" yaml:"hook_errors"`
	SuccessRate    float64 `json:"success_rate" yaml:"success_rate"`
	Bytes          int64   `json:"bytes" yaml:"bytes"`
	AvgDurationMs  float64 `json:"avg_ms" yaml:"avg_ms"`
	MinDurationMs  int64   `json:"min_ms" yaml:"min_ms"`
	MaxDurationMs  int64   `json:"max_ms" yaml:"max_ms"`
	P50DurationMs  int64   `json:"p50_ms" yaml:"p50_ms"`
	P95DurationMs  int64   `json:"p95_ms" yaml:"p95_ms"`
	P99DurationMs  int64   `json:"p99_ms" yaml:"p99_ms"`
	ElapsedSeconds float64 `json:"elapsed_s" yaml:"elapsed_s"`
}

func newSummary(run *stresstest.Run, stats *stresstest.Stats) Summary {
	s := Summary{
		UUID:          run.UUID,
		Status:        run.Status,
		URL:           run.URL,
		Hooks:         run.Hooks,
		Goroutines:    run.Goroutines,
		Iterations:    stats.CompletedIterations,
		Responded:     len(stats.Durations),
		Success:       stats.SuccessCount,
		StatusErrors:  stats.StatusErrorCount,
		TransportErrs: stats.TransportErrorCount,
		HookErrors:    stats.HookErrorCount,
		SuccessRate:   stats.SuccessRate(),
		Bytes:         stats.TotalBytes,
		AvgDurationMs: stats.AvgDurationMs(),
		MinDurationMs: stats.Min(),
		MaxDurationMs: stats.Max(),
		P50DurationMs: stats.Percentile(50),
		P95DurationMs: stats.Percentile(95),
		P99DurationMs: stats.Percentile(99),
	}
	if run.CompletedAt != nil {
		s.ElapsedSeconds = run.CompletedAt.Sub(run.StartedAt).Seconds()
	}
	return s
}

// formatSummary formats the summary based on the output format
func formatSummary(s Summary, format string) (string, error) {
	switch format {
	case "json":
		data, err := json.MarshalIndent(s, "", "  ")
		if err != nil {
			return "", err
		}
		return string(data) + "\n", nil

	case "yaml":
		data, err := yaml.Marshal(s)
		if err != nil {
			return "", err
		}
		return string(data), nil

	case "", "text":
		var sb strings.Builder
		sb.WriteString(fmt.Sprintf("Run %s %s%s%s\n", s.UUID, statusColor(s.Status), s.Status, colorReset))
		sb.WriteString(fmt.Sprintf("Target: %s | Hooks: %s | Goroutines: %d\n", s.URL, s.Hooks, s.Goroutines))
		sb.WriteString(fmt.Sprintf("Iterations: %d in %.2fs\n", s.Iterations, s.ElapsedSeconds))
		sb.WriteString(fmt.Sprintf("  success: %d | status errors: %d | transport errors: %d | hook errors: %d (%.1f%% ok)\n",
			s.Success, s.StatusErrors, s.TransportErrs, s.HookErrors, s.SuccessRate))
		if s.Responded > 0 {
			sb.WriteString(fmt.Sprintf("Duration: avg %s | min %s | max %s | p50 %s | p95 %s | p99 %s\n",
				formatMs(s.AvgDurationMs),
				formatMs(float64(s.MinDurationMs)),
				formatMs(float64(s.MaxDurationMs)),
				formatMs(float64(s.P50DurationMs)),
				formatMs(float64(s.P95DurationMs)),
				formatMs(float64(s.P99DurationMs))))
		}
		sb.WriteString(fmt.Sprintf("Received: %s\n", formatBytes(s.Bytes)))
		return sb.String(), nil

	default:
		return "", fmt.Errorf("unknown output format %q", format)
	}
}
