package types

import (
	"fmt"
	"net/url"
	"time"
)

const (
	DefaultGoroutines = 10
	DefaultDuration   = 10   // seconds
	DefaultTimeoutMs  = 1000 // per call
	DefaultMethod     = "GET"
)

// RequestConfig holds the initial values of every worker's request context
type RequestConfig struct {
	Method string            `json:"method" yaml:"method" mapstructure:"method"`
	Host   string            `json:"host,omitempty" yaml:"host,omitempty" mapstructure:"host"`
	Header map[string]string `json:"header,omitempty" yaml:"header,omitempty" mapstructure:"header"`
	URL    string            `json:"url" yaml:"url" mapstructure:"url"`
	Body   string            `json:"body,omitempty" yaml:"body,omitempty" mapstructure:"body"`
}

// RunConfig is the static configuration consumed at run start.
// Field names follow the keys accepted in config files.
type RunConfig struct {
	Goroutines         int    `json:"goroutines" yaml:"goroutines" mapstructure:"goroutines"`
	Duration           int    `json:"duration" yaml:"duration" mapstructure:"duration"` // seconds, 0 = unlimited
	Timeoutms          int    `json:"timeoutms" yaml:"timeoutms" mapstructure:"timeoutms"`
	Iterations         int    `json:"iterations" yaml:"iterations" mapstructure:"iterations"` // total across workers, 0 = unlimited
	AllowRedirects     bool   `json:"redir" yaml:"redir" mapstructure:"redir"`
	DisableCompression bool   `json:"no_comp" yaml:"no_comp" mapstructure:"no_comp"`
	DisableKeepAlive   bool   `json:"no_keepalive" yaml:"no_keepalive" mapstructure:"no_keepalive"`
	SkipVerify         bool   `json:"skip_verify" yaml:"skip_verify" mapstructure:"skip_verify"`
	ClientCert         string `json:"client_cert,omitempty" yaml:"client_cert,omitempty" mapstructure:"client_cert"`
	ClientKey          string `json:"client_key,omitempty" yaml:"client_key,omitempty" mapstructure:"client_key"`
	CACert             string `json:"ca_cert,omitempty" yaml:"ca_cert,omitempty" mapstructure:"ca_cert"`
	HTTP2              bool   `json:"http2" yaml:"http2" mapstructure:"http2"`
	ExpectedStatus     []int  `json:"expected_status,omitempty" yaml:"expected_status,omitempty" mapstructure:"expected_status"`

	RequestConfig `yaml:",inline" mapstructure:",squash"`
}

// TLSConfig contains the client side TLS settings
type TLSConfig struct {
	CertFile           string
	KeyFile            string
	CAFile             string
	InsecureSkipVerify bool
}

// NewRunConfig returns a config holding the defaults
func NewRunConfig() RunConfig {
	return RunConfig{
		Goroutines: DefaultGoroutines,
		Duration:   DefaultDuration,
		Timeoutms:  DefaultTimeoutMs,
		HTTP2:      true,
		RequestConfig: RequestConfig{
			Method: DefaultMethod,
			Header: make(map[string]string),
		},
	}
}

// Clone returns a copy that shares no maps or slices with c
func (c RunConfig) Clone() RunConfig {
	cloned := c

	cloned.Header = make(map[string]string, len(c.Header))
	for k, v := range c.Header {
		cloned.Header[k] = v
	}
	if c.ExpectedStatus != nil {
		cloned.ExpectedStatus = append([]int(nil), c.ExpectedStatus...)
	}
	return cloned
}

// Validate checks the configuration before a run starts
func (c *RunConfig) Validate() error {
	if c.Goroutines <= 0 {
		return fmt.Errorf("goroutines must be greater than 0")
	}
	if c.Goroutines > 1000 {
		return fmt.Errorf("goroutines cannot exceed 1000")
	}
	if c.Duration < 0 {
		return fmt.Errorf("duration cannot be negative")
	}
	if c.Timeoutms <= 0 {
		return fmt.Errorf("timeoutms must be greater than 0")
	}
	if c.Iterations < 0 {
		return fmt.Errorf("iterations cannot be negative")
	}
	if (c.ClientCert == "") != (c.ClientKey == "") {
		return fmt.Errorf("client_cert and client_key must be set together")
	}
	return ValidateURL(c.URL)
}

// ValidateURL checks that raw is an absolute http(s) URL
func ValidateURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("url is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("malformed url %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("malformed url %q: scheme must be http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("malformed url %q: missing host", raw)
	}
	return nil
}

// GetTestDuration returns the run duration, 0 meaning unlimited
func (c *RunConfig) GetTestDuration() time.Duration {
	return time.Duration(c.Duration) * time.Second
}

// GetRequestTimeout returns the per-call timeout
func (c *RunConfig) GetRequestTimeout() time.Duration {
	if c.Timeoutms <= 0 {
		return DefaultTimeoutMs * time.Millisecond
	}
	return time.Duration(c.Timeoutms) * time.Millisecond
}

// TLS returns the TLS settings, or nil when none are configured
func (c *RunConfig) TLS() *TLSConfig {
	if !c.SkipVerify && c.ClientCert == "" && c.ClientKey == "" && c.CACert == "" {
		return nil
	}
	return &TLSConfig{
		CertFile:           c.ClientCert,
		KeyFile:            c.ClientKey,
		CAFile:             c.CACert,
		InsecureSkipVerify: c.SkipVerify,
	}
}

// IsExpectedStatus reports whether status counts as a successful iteration.
// Without an explicit list, 2xx and 3xx succeed.
func (c *RunConfig) IsExpectedStatus(status int) bool {
	if len(c.ExpectedStatus) == 0 {
		return status >= 200 && status < 400
	}
	for _, s := range c.ExpectedStatus {
		if s == status {
			return true
		}
	}
	return false
}
