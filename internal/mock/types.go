package mock

import "time"

// Path match types
const (
	PathExact  = "exact"
	PathPrefix = "prefix"
	PathRegex  = "regex"
)

// Config represents the target server configuration
type Config struct {
	Addr    string  `json:"addr" yaml:"addr"`       // listen address (default: localhost:8080)
	Token   string  `json:"token" yaml:"token"`     // token issued by token routes, random when empty
	Routes  []Route `json:"routes" yaml:"routes"`   // evaluated in order, first match wins
	Logging bool    `json:"logging" yaml:"logging"` // keep a log of recent requests
}

// Route represents a mock route configuration
type Route struct {
	Name     string            `json:"name,omitempty" yaml:"name,omitempty"`
	Method   string            `json:"method,omitempty" yaml:"method,omitempty"` // empty matches any method
	Path     string            `json:"path" yaml:"path"`
	PathType string            `json:"pathType,omitempty" yaml:"pathType,omitempty"` // exact, prefix, regex (default: exact)
	Status   int               `json:"status,omitempty" yaml:"status,omitempty"`
	Headers  map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	Body     string            `json:"body,omitempty" yaml:"body,omitempty"`
	BodyFile string            `json:"bodyFile,omitempty" yaml:"bodyFile,omitempty"`
	Delay    int               `json:"delay,omitempty" yaml:"delay,omitempty"` // milliseconds

	// IssueToken adds the server token to the response in TokenHeader
	IssueToken  bool   `json:"issueToken,omitempty" yaml:"issueToken,omitempty"`
	TokenHeader string `json:"tokenHeader,omitempty" yaml:"tokenHeader,omitempty"` // default X-Token
	// RequireToken answers 401 unless the request carries "<scheme> <token>" in CredentialHeader
	RequireToken     bool   `json:"requireToken,omitempty" yaml:"requireToken,omitempty"`
	CredentialHeader string `json:"credentialHeader,omitempty" yaml:"credentialHeader,omitempty"` // default Authentication
}

// RequestLog represents a logged request
type RequestLog struct {
	Timestamp   time.Time         `json:"timestamp"`
	Method      string            `json:"method"`
	Path        string            `json:"path"`
	Headers     map[string]string `json:"headers"`
	Body        string            `json:"body"`
	MatchedRule string            `json:"matchedRule"`
	Status      int               `json:"status"`
	Duration    time.Duration     `json:"duration"`
}
