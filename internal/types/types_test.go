package types

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeader_CaseInsensitive(t *testing.T) {
	h := NewHeader(map[string]string{"Content-Type": "text/plain"})

	v, ok := h.Get("content-type")
	require.True(t, ok)
	assert.Equal(t, "text/plain", v)

	h.Set("CONTENT-TYPE", "application/json")
	assert.Equal(t, 1, h.Len())
	v, _ = h.Get("Content-Type")
	assert.Equal(t, "application/json", v)
	assert.Equal(t, []string{"CONTENT-TYPE"}, h.Names())

	_, ok = h.Get("X-Missing")
	assert.False(t, ok)

	h.Del("content-TYPE")
	assert.Equal(t, 0, h.Len())
}

func TestHeader_NilReceiver(t *testing.T) {
	var h *Header

	_, ok := h.Get("anything")
	assert.False(t, ok)
	assert.Equal(t, 0, h.Len())
	assert.Empty(t, h.Names())
	assert.NotNil(t, h.Clone())
	assert.True(t, h.Equal(NewHeader(nil)))
}

func TestHeader_Apply(t *testing.T) {
	h := NewHeader(map[string]string{"x-counter": "3", "Authentication": "Bearer T"})
	dst := http.Header{}
	dst.Set("X-Counter", "old")

	h.Apply(dst)

	assert.Equal(t, http.Header{
		"x-counter":      {"3"},
		"Authentication": {"Bearer T"},
	}, dst)
}

func TestHeader_ApplyKeepsSpelling(t *testing.T) {
	h := NewHeader(nil)
	h.Set("X-API-KEY", "k1")
	h.Set("user-agent", "custom")
	dst := http.Header{"x-api-key": {"old"}}

	h.Apply(dst)

	assert.Equal(t, []string{"k1"}, dst["X-API-KEY"])
	assert.NotContains(t, dst, "x-api-key")
	assert.NotContains(t, dst, "X-Api-Key")
	assert.Equal(t, []string{"custom"}, dst["User-Agent"])
	assert.Len(t, dst, 2)
}

func TestRequestContext_SnapshotIsIsolated(t *testing.T) {
	rc := NewRequestContext(RequestConfig{
		Method: "GET",
		URL:    "http://localhost/base",
		Header: map[string]string{"X-A": "1"},
		Body:   "k1=v1",
	})

	snap := rc.Snapshot()

	rc.Method = "POST"
	rc.Headers.Set("X-A", "2")
	rc.Body[0] = 'K'

	assert.Equal(t, "GET", snap.Method)
	v, _ := snap.Headers.Get("x-a")
	assert.Equal(t, "1", v)
	assert.Equal(t, "k1=v1", string(snap.Body))
}

func TestRequest_Equal(t *testing.T) {
	cfg := RequestConfig{Method: "PUT", URL: "http://h/p", Header: map[string]string{"A": "b"}, Body: "x"}

	a := NewRequestContext(cfg).Snapshot()
	b := NewRequestContext(cfg).Snapshot()
	assert.True(t, a.Equal(b))

	c := NewRequestContext(cfg)
	c.SetBody("y")
	assert.False(t, a.Equal(c.Snapshot()))
}

func TestResponseView_ReadOnly(t *testing.T) {
	body := []byte("hello")
	res := NewResponseView(200, http.Header{"X-Token": {"T1", "T2"}}, body, time.Millisecond)

	v, ok := res.Header("x-token")
	require.True(t, ok)
	assert.Equal(t, "T1, T2", v)

	got := res.Body()
	got[0] = 'j'
	assert.Equal(t, "hello", res.BodyString())

	headers := res.Headers()
	headers["X-Token"] = "changed"
	v, _ = res.Header("X-Token")
	assert.Equal(t, "T1, T2", v)
}

func TestRunConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *RunConfig)
		wantErr string
	}{
		{name: "defaults with url", mutate: func(c *RunConfig) {}},
		{name: "no url", mutate: func(c *RunConfig) { c.URL = "" }, wantErr: "url is required"},
		{name: "relative url", mutate: func(c *RunConfig) { c.URL = "/foo" }, wantErr: "scheme must be http or https"},
		{name: "missing host", mutate: func(c *RunConfig) { c.URL = "http://" }, wantErr: "missing host"},
		{name: "zero goroutines", mutate: func(c *RunConfig) { c.Goroutines = 0 }, wantErr: "goroutines must be greater than 0"},
		{name: "negative iterations", mutate: func(c *RunConfig) { c.Iterations = -1 }, wantErr: "iterations cannot be negative"},
		{name: "cert without key", mutate: func(c *RunConfig) { c.ClientCert = "c.pem" }, wantErr: "must be set together"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewRunConfig()
			cfg.URL = "http://localhost:8080"
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRunConfig_CloneSharesNothing(t *testing.T) {
	cfg := NewRunConfig()
	cfg.Header["A"] = "1"
	cfg.ExpectedStatus = []int{200}

	cloned := cfg.Clone()
	cloned.Header["A"] = "2"
	cloned.ExpectedStatus[0] = 500

	assert.Equal(t, "1", cfg.Header["A"])
	assert.Equal(t, 200, cfg.ExpectedStatus[0])
}

func TestRunConfig_IsExpectedStatus(t *testing.T) {
	cfg := NewRunConfig()
	assert.True(t, cfg.IsExpectedStatus(200))
	assert.True(t, cfg.IsExpectedStatus(307))
	assert.False(t, cfg.IsExpectedStatus(500))

	cfg.ExpectedStatus = []int{201}
	assert.False(t, cfg.IsExpectedStatus(200))
	assert.True(t, cfg.IsExpectedStatus(201))
}
