package stresstest

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studiowebux/loadhook/internal/hooks"
	"github.com/studiowebux/loadhook/internal/state"
	"github.com/studiowebux/loadhook/internal/types"
)

// createTestManager creates a new Manager with in-memory SQLite database for testing
func createTestManager(t *testing.T) *Manager {
	t.Helper()
	manager, err := NewManager(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { manager.Close() })
	return manager
}

func testRunConfig(url string, goroutines, iterations int) *types.RunConfig {
	cfg := types.NewRunConfig()
	cfg.URL = url
	cfg.Goroutines = goroutines
	cfg.Iterations = iterations
	cfg.Duration = 0
	return &cfg
}

func runToCompletion(t *testing.T, config *ExecutionConfig, manager *Manager) *Executor {
	t.Helper()
	exec, err := NewExecutor(config, manager)
	require.NoError(t, err)

	exec.Start()
	require.NoError(t, exec.Wait())
	return exec
}

func TestExecutor_BasicExecution(t *testing.T) {
	var requestCount int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&requestCount, 1)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}))
	defer server.Close()

	manager := createTestManager(t)
	exec := runToCompletion(t, &ExecutionConfig{Config: testRunConfig(server.URL, 5, 50)}, manager)

	stats := exec.GetStats()
	assert.Equal(t, 50, stats.CompletedIterations)
	assert.Equal(t, 50, stats.SuccessCount)
	assert.Equal(t, 0, stats.FailureCount())
	assert.Equal(t, int64(50), atomic.LoadInt64(&requestCount))

	total := 0
	for _, n := range stats.PerWorker {
		total += n
	}
	assert.Equal(t, 50, total)

	run := exec.GetRun()
	assert.Equal(t, StatusCompleted, run.Status)
	assert.Equal(t, 50, run.TotalIterations)
	assert.True(t, run.IsCompleted())
}

func TestExecutor_InvalidConfig(t *testing.T) {
	_, err := NewExecutor(&ExecutionConfig{Config: testRunConfig("ftp://example.com", 1, 1)}, nil)
	assert.Error(t, err)

	cfg := testRunConfig("https://example.com", 1, 1)
	cfg.CACert = "testdata/missing-ca.pem"
	_, err = NewExecutor(&ExecutionConfig{Config: cfg}, nil)
	assert.Error(t, err)

	_, err = NewExecutor(&ExecutionConfig{}, nil)
	assert.Error(t, err)
}

func TestExecutor_CounterWorkersIndependent(t *testing.T) {
	var mu sync.Mutex
	seen := make(map[string][]string)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		worker := r.Header.Get("X-Worker")
		seen[worker] = append(seen[worker], r.Header.Get("X-Counter"))
		mu.Unlock()
	}))
	defer server.Close()

	counter := hooks.Counter(hooks.CounterOptions{})
	h := &hooks.Hooks{
		Setup: counter.Setup,
		BeforeRequest: func(env *hooks.Env) error {
			if err := counter.BeforeRequest(env); err != nil {
				return err
			}
			env.Request.Headers.Set("X-Worker", strconv.Itoa(env.Worker))
			return nil
		},
	}

	exec := runToCompletion(t, &ExecutionConfig{
		Config: testRunConfig(server.URL, 8, 400),
		Hooks:  hooks.Static(h),
	}, nil)

	assert.Equal(t, 400, exec.GetStats().SuccessCount)

	total := 0
	for worker, counters := range seen {
		total += len(counters)
		for i, c := range counters {
			require.Equal(t, strconv.Itoa(i), c, "worker %s", worker)
		}
	}
	assert.Equal(t, 400, total)
}

func authHandler(t *testing.T, token func() string, authHits *int64, creds *sync.Map) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth":
			atomic.AddInt64(authHits, 1)
			w.Header().Set("X-Token", token())
			w.WriteHeader(http.StatusOK)
		case "/foo":
			body, _ := io.ReadAll(r.Body)
			cred := r.Header.Get("Authentication")
			if creds != nil {
				creds.Store(cred, true)
			}
			if r.Method != http.MethodPost || string(body) != "foo=bar" || !strings.HasPrefix(cred, "Bearer ") {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}
}

func TestExecutor_AuthPipeline(t *testing.T) {
	var authHits int64
	var creds sync.Map
	server := httptest.NewServer(authHandler(t, func() string { return "T123" }, &authHits, &creds))
	defer server.Close()

	h, err := hooks.AuthPipeline(hooks.AuthOptions{})
	require.NoError(t, err)

	exec := runToCompletion(t, &ExecutionConfig{
		Config: testRunConfig(server.URL, 3, 30),
		Hooks:  hooks.Static(h),
	}, nil)

	stats := exec.GetStats()
	assert.Equal(t, 30, stats.SuccessCount)
	// One authentication per worker that ran at least once
	assert.LessOrEqual(t, atomic.LoadInt64(&authHits), int64(3))

	creds.Range(func(k, _ any) bool {
		assert.Equal(t, "Bearer T123", k)
		return true
	})
}

func TestExecutor_AuthNeverSucceeds(t *testing.T) {
	var paths sync.Map
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths.Store(r.URL.Path, true)
		w.Header().Set("X-Token", "T123")
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	h, err := hooks.AuthPipeline(hooks.AuthOptions{})
	require.NoError(t, err)

	exec := runToCompletion(t, &ExecutionConfig{
		Config: testRunConfig(server.URL, 2, 20),
		Hooks:  hooks.Static(h),
	}, nil)

	stats := exec.GetStats()
	assert.Equal(t, 20, stats.StatusErrorCount)

	paths.Range(func(k, _ any) bool {
		assert.Equal(t, "/auth", k)
		return true
	})
}

func TestExecutor_SharedToken(t *testing.T) {
	var authHits, issued int64
	var creds sync.Map
	token := func() string {
		return "tok-" + strconv.FormatInt(atomic.AddInt64(&issued, 1), 10)
	}
	server := httptest.NewServer(authHandler(t, token, &authHits, &creds))
	defer server.Close()

	h, err := hooks.AuthPipeline(hooks.AuthOptions{Shared: true})
	require.NoError(t, err)
	shared := state.NewShared()

	exec := runToCompletion(t, &ExecutionConfig{
		Config: testRunConfig(server.URL, 8, 200),
		Hooks:  hooks.Static(h),
		Shared: shared,
	}, nil)

	assert.Equal(t, 200, exec.GetStats().SuccessCount)
	assert.True(t, shared.Bool(hooks.KeyAuthenticated))

	want := "Bearer " + shared.String(hooks.KeyToken)
	count := 0
	creds.Range(func(k, _ any) bool {
		count++
		assert.Equal(t, want, k)
		return true
	})
	assert.Equal(t, 1, count)
}

func TestExecutor_TimeoutSkipsAfterResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Slow") != "" {
			select {
			case <-time.After(2 * time.Second):
			case <-r.Context().Done():
			}
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	var before, after []int
	h := &hooks.Hooks{
		BeforeRequest: func(env *hooks.Env) error {
			before = append(before, env.Iteration)
			env.Request.Headers.Del("X-Slow")
			if env.Iteration == 1 {
				env.Request.Headers.Set("X-Slow", "1")
			}
			return nil
		},
		AfterResponse: func(env *hooks.Env, res *types.ResponseView) error {
			after = append(after, env.Iteration)
			return nil
		},
	}

	cfg := testRunConfig(server.URL, 1, 3)
	cfg.Timeoutms = 100
	manager := createTestManager(t)
	exec := runToCompletion(t, &ExecutionConfig{Config: cfg, Hooks: hooks.Static(h)}, manager)

	assert.Equal(t, []int{0, 1, 2}, before)
	assert.Equal(t, []int{0, 2}, after)

	stats := exec.GetStats()
	assert.Equal(t, 1, stats.TransportErrorCount)
	assert.Equal(t, 2, stats.SuccessCount)

	iterations, err := manager.GetIterations(exec.GetRun().ID)
	require.NoError(t, err)
	require.Len(t, iterations, 3)
	assert.Equal(t, OutcomeTransportError, iterations[1].Outcome)
	assert.NotEmpty(t, iterations[1].ErrorMessage)
	assert.Equal(t, 0, iterations[1].StatusCode)
}

func TestExecutor_BeforeRequestErrorSkipsNetwork(t *testing.T) {
	var requestCount int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&requestCount, 1)
	}))
	defer server.Close()

	h := &hooks.Hooks{
		BeforeRequest: func(env *hooks.Env) error {
			if env.Iteration == 2 {
				return errors.New("no credentials yet")
			}
			return nil
		},
	}

	metrics := NewMetrics()
	exec := runToCompletion(t, &ExecutionConfig{
		Config:  testRunConfig(server.URL, 1, 5),
		Hooks:   hooks.Static(h),
		Metrics: metrics,
	}, nil)

	assert.Equal(t, int64(4), atomic.LoadInt64(&requestCount))
	stats := exec.GetStats()
	assert.Equal(t, 1, stats.HookErrorCount)
	assert.Equal(t, 4, stats.SuccessCount)

	assert.Equal(t, 4.0, testutil.ToFloat64(metrics.iterationsTotal.WithLabelValues(string(OutcomeSuccess))))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.hookErrorsTotal.WithLabelValues(string(hooks.HookBeforeRequest))))
}

func TestExecutor_HookPanicDoesNotStopRun(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	h := &hooks.Hooks{
		AfterResponse: func(env *hooks.Env, res *types.ResponseView) error {
			if env.Iteration%2 == 0 {
				panic("boom")
			}
			return nil
		},
	}

	exec := runToCompletion(t, &ExecutionConfig{Config: testRunConfig(server.URL, 1, 6), Hooks: hooks.Static(h)}, nil)

	stats := exec.GetStats()
	assert.Equal(t, 3, stats.HookErrorCount)
	assert.Equal(t, 3, stats.SuccessCount)
}

func TestExecutor_StopHook(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	h := &hooks.Hooks{
		Stop: func(env *hooks.Env) bool {
			return env.Iteration >= 3
		},
	}

	cfg := testRunConfig(server.URL, 1, 0)
	exec := runToCompletion(t, &ExecutionConfig{Config: cfg, Hooks: hooks.Static(h)}, nil)

	assert.Equal(t, 3, exec.GetStats().CompletedIterations)
	assert.Equal(t, StatusStopped, exec.GetRun().Status)
}

func TestExecutor_DurationLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	h := &hooks.Hooks{
		Delay: func(env *hooks.Env) time.Duration {
			return 20 * time.Millisecond
		},
	}

	cfg := testRunConfig(server.URL, 2, 0)
	cfg.Duration = 1

	start := time.Now()
	exec := runToCompletion(t, &ExecutionConfig{Config: cfg, Hooks: hooks.Static(h)}, nil)

	assert.Less(t, time.Since(start), 3*time.Second)
	assert.Greater(t, exec.GetStats().CompletedIterations, 0)
	assert.Equal(t, StatusCompleted, exec.GetRun().Status)
}

func TestExecutor_SetupFailureFailsRun(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	h := &hooks.Hooks{
		Setup: func(env *hooks.Env) error {
			return errors.New("bad script")
		},
	}

	exec, err := NewExecutor(&ExecutionConfig{Config: testRunConfig(server.URL, 2, 10), Hooks: hooks.Static(h)}, nil)
	require.NoError(t, err)

	exec.Start()
	err = exec.Wait()
	require.Error(t, err)

	var he *hooks.HookError
	assert.ErrorAs(t, err, &he)
	assert.Equal(t, StatusFailed, exec.GetRun().Status)
	assert.Equal(t, 0, exec.GetStats().CompletedIterations)
}

func TestExecutor_Stop(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(10 * time.Millisecond)
	}))
	defer server.Close()

	exec, err := NewExecutor(&ExecutionConfig{Config: testRunConfig(server.URL, 4, 0)}, nil)
	require.NoError(t, err)

	exec.Start()
	time.Sleep(100 * time.Millisecond)
	exec.Stop()

	assert.Equal(t, StatusCancelled, exec.GetRun().Status)
	assert.NoError(t, exec.Wait())

	stats := exec.GetStats()
	assert.Greater(t, stats.CompletedIterations, 0)
	assert.Equal(t, 0, stats.TransportErrorCount)
}

func TestExecutor_LedgerPersistence(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("hello"))
	}))
	defer server.Close()

	manager := createTestManager(t)
	exec := runToCompletion(t, &ExecutionConfig{
		Config:    testRunConfig(server.URL, 2, 250),
		Hooks:     hooks.Static(hooks.Counter(hooks.CounterOptions{})),
		HooksName: "counter",
	}, manager)

	run, err := manager.GetRun(exec.GetRun().ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, run.Status)
	assert.Equal(t, 250, run.TotalIterations)
	assert.Equal(t, "counter", run.Hooks)
	assert.Contains(t, run.ConfigYAML, server.URL)
	require.NotNil(t, run.CompletedAt)

	byUUID, err := manager.GetRunByUUID(run.UUID)
	require.NoError(t, err)
	assert.Equal(t, run.ID, byUUID.ID)

	iterations, err := manager.GetIterations(run.ID)
	require.NoError(t, err)
	assert.Len(t, iterations, 250)
	for _, it := range iterations {
		assert.Equal(t, OutcomeSuccess, it.Outcome)
		assert.Equal(t, server.URL+"/"+strconv.Itoa(it.Index), it.URL)
	}

	runs, err := manager.ListRuns(10)
	require.NoError(t, err)
	require.Len(t, runs, 1)

	require.NoError(t, manager.DeleteRun(run.ID))
	iterations, err = manager.GetIterations(run.ID)
	require.NoError(t, err)
	assert.Empty(t, iterations)
}
