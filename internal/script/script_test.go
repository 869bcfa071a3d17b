package script

import (
	"net/http"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studiowebux/loadhook/internal/hooks"
	"github.com/studiowebux/loadhook/internal/state"
	"github.com/studiowebux/loadhook/internal/types"
)

var defaults = types.RequestConfig{Method: "GET", URL: "http://localhost:8080"}

func newSession(t *testing.T, p *Program, worker int, shared *state.Shared) *hooks.Session {
	t.Helper()
	h, err := p.Factory()(worker)
	require.NoError(t, err)

	s := hooks.NewSession(hooks.NewEnv(worker, defaults, shared, nil), h)
	require.NoError(t, s.Setup())
	return s
}

func step(t *testing.T, s *hooks.Session, res *types.ResponseView) types.Request {
	t.Helper()
	req, err := s.Begin()
	require.NoError(t, err)
	require.NoError(t, s.Complete(res))
	return req
}

func withToken(status int, token string) *types.ResponseView {
	h := http.Header{}
	if token != "" {
		h.Set("X-Token", token)
	}
	return types.NewResponseView(status, h, nil, 0)
}

func TestLoad_CompileError(t *testing.T) {
	_, err := New("broken", []byte("if {"), Options{})
	assert.Error(t, err)

	_, err = Load("testdata/missing.tengo", Options{})
	assert.Error(t, err)
}

func TestLoad_OsModuleNotImportable(t *testing.T) {
	_, err := New("os", []byte(`os := import("os")`), Options{})
	assert.Error(t, err)
}

func TestCounterScript(t *testing.T) {
	p, err := Load("testdata/counter.tengo", Options{})
	require.NoError(t, err)
	assert.Equal(t, "counter.tengo", p.Name())

	s := newSession(t, p, 0, nil)
	for i := 0; i < 10; i++ {
		req := step(t, s, withToken(200, ""))
		v, _ := req.Headers.Get("X-Counter")
		assert.Equal(t, strconv.Itoa(i), v)
		assert.Equal(t, "http://localhost:8080/"+strconv.Itoa(i), req.URL)
	}
	assert.Equal(t, 10, s.Env().State.Int("counter"))
}

func TestCounterScript_WorkersIsolated(t *testing.T) {
	p, err := Load("testdata/counter.tengo", Options{})
	require.NoError(t, err)

	a := newSession(t, p, 0, nil)
	b := newSession(t, p, 1, nil)
	for i := 0; i < 5; i++ {
		step(t, a, withToken(200, ""))
	}

	req := step(t, b, withToken(200, ""))
	v, _ := req.Headers.Get("X-Counter")
	assert.Equal(t, "0", v)
}

func TestAuthScript(t *testing.T) {
	p, err := Load("testdata/auth.tengo", Options{})
	require.NoError(t, err)
	s := newSession(t, p, 0, nil)

	first := step(t, s, withToken(200, "T123"))
	assert.Equal(t, "http://localhost:8080/auth", first.URL)

	for i := 0; i < 3; i++ {
		req := step(t, s, withToken(200, ""))
		assert.Equal(t, "POST", req.Method)
		assert.Equal(t, "foo=bar", string(req.Body))
		cred, _ := req.Headers.Get("Authentication")
		assert.Equal(t, "Bearer T123", cred)
	}
}

func TestAuthScript_StaysOnAuthEndpoint(t *testing.T) {
	p, err := Load("testdata/auth.tengo", Options{})
	require.NoError(t, err)
	s := newSession(t, p, 0, nil)

	for i := 0; i < 10; i++ {
		req := step(t, s, withToken(500, "T123"))
		assert.Equal(t, "http://localhost:8080/auth", req.URL)
	}
}

func TestAuthScript_FailIsHookError(t *testing.T) {
	p, err := Load("testdata/auth.tengo", Options{})
	require.NoError(t, err)
	s := newSession(t, p, 0, nil)

	_, err = s.Begin()
	require.NoError(t, err)
	err = s.Complete(withToken(200, ""))

	assert.ErrorIs(t, err, ErrScriptFailed)
	var he *hooks.HookError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, hooks.HookAfterResponse, he.Hook)
}

func TestSharedAuthScript(t *testing.T) {
	p, err := Load("testdata/shared_auth.tengo", Options{})
	require.NoError(t, err)
	shared := state.NewShared()

	const workers = 8
	sessions := make([]*hooks.Session, workers)
	for w := range sessions {
		sessions[w] = newSession(t, p, w, shared)
	}

	var wg sync.WaitGroup
	for w, s := range sessions {
		wg.Add(1)
		go func(w int, s *hooks.Session) {
			defer wg.Done()
			if _, err := s.Begin(); err != nil {
				return
			}
			_ = s.Complete(withToken(200, "tok-"+strconv.Itoa(w)))
		}(w, s)
	}
	wg.Wait()

	token := shared.String("token")
	require.NotEmpty(t, token)

	for _, s := range sessions {
		req := step(t, s, withToken(200, ""))
		cred, _ := req.Headers.Get("Authentication")
		assert.Equal(t, "Bearer "+token, cred)
	}
}

func TestStopAndDelay(t *testing.T) {
	p, err := Load("testdata/stop.tengo", Options{})
	require.NoError(t, err)
	s := newSession(t, p, 0, nil)

	for i := 0; i < 3; i++ {
		stop, err := s.ShouldStop()
		require.NoError(t, err)
		require.False(t, stop, "iteration %d", i)
		step(t, s, withToken(200, ""))
	}

	stop, err := s.ShouldStop()
	require.NoError(t, err)
	assert.True(t, stop)

	d, err := s.NextDelay()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Millisecond, d)
}

func TestRequestRoundTrip(t *testing.T) {
	rc := types.NewRequestContext(types.RequestConfig{
		Method: "PUT",
		URL:    "http://localhost/x",
		Host:   "example.com",
		Header: map[string]string{"Content-Type": "text/plain"},
		Body:   "hello",
	})
	before := rc.Snapshot()

	require.NoError(t, mapToRequest(requestToMap(rc), rc))
	assert.True(t, before.Equal(rc.Snapshot()))
}

func TestExtract(t *testing.T) {
	p, err := Load("testdata/extract.tengo", Options{})
	require.NoError(t, err)
	s := newSession(t, p, 0, nil)

	step(t, s, types.NewResponseView(200, nil, []byte(`{"data":{"token":"T9"}}`), 0))
	assert.Equal(t, "T9", s.Env().State.String("token"))

	_, err = s.Begin()
	require.NoError(t, err)
	err = s.Complete(types.NewResponseView(200, nil, []byte(`{"data":{}}`), 0))
	assert.ErrorIs(t, err, ErrScriptFailed)
	assert.Equal(t, "T9", s.Env().State.String("token"))
}

func TestRuntimeError_KeepsPartialWrites(t *testing.T) {
	p, err := Load("testdata/partial.tengo", Options{})
	require.NoError(t, err)
	s := newSession(t, p, 0, nil)

	_, err = s.Begin()
	var he *hooks.HookError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, hooks.HookBeforeRequest, he.Hook)
	assert.Equal(t, hooks.PhaseIdle, s.Phase())

	env := s.Env()
	assert.Equal(t, "http://localhost:8080/changed", env.Request.URL)
	assert.True(t, env.State.Bool("touched"))
	_, ok := env.State.Get("ratio")
	assert.False(t, ok)
}

func TestRuntimeError_KeepsSharedWrites(t *testing.T) {
	p, err := Load("testdata/partial.tengo", Options{})
	require.NoError(t, err)
	shared := state.NewShared()
	s := newSession(t, p, 0, shared)

	_, err = s.Begin()
	require.Error(t, err)

	v, ok := shared.Get("hits")
	require.True(t, ok)
	n, ok := state.ToInt(v)
	require.True(t, ok)
	assert.Equal(t, 1, n)
	assert.True(t, s.Env().State.Bool("touched"))
}

func TestExtract_Map(t *testing.T) {
	p, err := Load("testdata/extract_map.tengo", Options{})
	require.NoError(t, err)
	s := newSession(t, p, 0, nil)

	h := http.Header{}
	h.Set("X-Session", "S1")
	step(t, s, types.NewResponseView(200, h, []byte(`{"data":{"token":"T9"}}`), 0))
	assert.Equal(t, "T9", s.Env().State.String("token"))
	assert.Equal(t, "S1", s.Env().State.String("session"))

	// A missing header fails the whole extraction and leaves state alone
	_, err = s.Begin()
	require.NoError(t, err)
	err = s.Complete(types.NewResponseView(200, nil, []byte(`{"data":{"token":"T10"}}`), 0))
	assert.ErrorIs(t, err, ErrScriptFailed)
	assert.Equal(t, "T9", s.Env().State.String("token"))
}
