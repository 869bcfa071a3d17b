package mock

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

const maxLogs = 1000

// Server is an HTTP target for trying hooks against
type Server struct {
	config     *Config
	httpServer *http.Server
	listener   net.Listener
	patterns   []*regexp.Regexp // compiled regex per route, nil otherwise
	logs       []RequestLog
	logsMutex  sync.RWMutex
	requests   atomic.Int64
	workdir    string
	log        logrus.FieldLogger
}

// NewServer creates a target server. Routes are validated and defaulted.
func NewServer(config *Config, workdir string, log logrus.FieldLogger) (*Server, error) {
	if err := validateConfig(config); err != nil {
		return nil, err
	}
	if log == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		log = l
	}

	patterns := make([]*regexp.Regexp, len(config.Routes))
	for i, route := range config.Routes {
		if route.PathType == PathRegex {
			patterns[i] = regexp.MustCompile(route.Path)
		}
	}

	return &Server{
		config:   config,
		patterns: patterns,
		logs:     make([]RequestLog, 0),
		workdir:  workdir,
		log:      log,
	}, nil
}

// Start listens on the configured address and serves in the background
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Addr, err)
	}
	s.listener = ln
	s.httpServer = &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.WithError(err).Error("Target server failed")
		}
	}()

	return nil
}

// Stop stops the server
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP answers with the first matching route
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	s.requests.Add(1)

	bodyBytes, _ := io.ReadAll(r.Body)
	r.Body.Close()

	status, body, matchedRule := s.respond(w, r)

	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))

	entry := RequestLog{
		Timestamp:   start,
		Method:      r.Method,
		Path:        r.URL.Path,
		Headers:     flattenHeaders(r.Header),
		Body:        string(bodyBytes),
		MatchedRule: matchedRule,
		Status:      status,
		Duration:    time.Since(start),
	}
	s.log.WithFields(logrus.Fields{
		"method": entry.Method,
		"path":   entry.Path,
		"route":  entry.MatchedRule,
		"status": entry.Status,
	}).Debug("Request served")

	if s.config.Logging {
		s.logRequest(entry)
	}
}

func (s *Server) respond(w http.ResponseWriter, r *http.Request) (int, string, string) {
	route := s.findMatchingRoute(r.Method, r.URL.Path)
	if route == nil {
		return http.StatusNotFound, fmt.Sprintf("No route configured for %s %s", r.Method, r.URL.Path), "none"
	}

	matchedRule := route.Name
	if matchedRule == "" {
		matchedRule = strings.TrimSpace(route.Method + " " + route.Path)
	}

	if route.Delay > 0 {
		select {
		case <-time.After(time.Duration(route.Delay) * time.Millisecond):
		case <-r.Context().Done():
			return http.StatusServiceUnavailable, "", matchedRule
		}
	}

	if route.RequireToken {
		want := "Bearer " + s.config.Token
		if r.Header.Get(route.CredentialHeader) != want {
			return http.StatusUnauthorized, "missing or invalid token", matchedRule
		}
	}

	for key, value := range route.Headers {
		w.Header().Set(key, value)
	}
	if route.IssueToken {
		w.Header().Set(route.TokenHeader, s.config.Token)
	}

	status := route.Status
	if status == 0 {
		status = http.StatusOK
	}

	if route.BodyFile == "" {
		return status, route.Body, matchedRule
	}
	filePath := route.BodyFile
	if !filepath.IsAbs(filePath) {
		filePath = filepath.Join(s.workdir, filePath)
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return http.StatusInternalServerError, fmt.Sprintf("failed to read body file %s: %v", route.BodyFile, err), matchedRule
	}
	return status, string(data), matchedRule
}

// findMatchingRoute finds the first route that matches the method and path
func (s *Server) findMatchingRoute(method, path string) *Route {
	for i := range s.config.Routes {
		route := &s.config.Routes[i]
		if route.Method != "" && !strings.EqualFold(route.Method, method) {
			continue
		}

		matched := false
		switch route.PathType {
		case PathExact:
			matched = route.Path == path
		case PathPrefix:
			matched = strings.HasPrefix(path, route.Path)
		case PathRegex:
			matched = s.patterns[i].MatchString(path)
		}

		if matched {
			return route
		}
	}

	return nil
}

// logRequest adds a request to the log, keeping the most recent ones
func (s *Server) logRequest(entry RequestLog) {
	s.logsMutex.Lock()
	defer s.logsMutex.Unlock()

	s.logs = append(s.logs, entry)
	if len(s.logs) > maxLogs {
		s.logs = s.logs[len(s.logs)-maxLogs:]
	}
}

// GetLogs returns a copy of the logged requests
func (s *Server) GetLogs() []RequestLog {
	s.logsMutex.RLock()
	defer s.logsMutex.RUnlock()

	logs := make([]RequestLog, len(s.logs))
	copy(logs, s.logs)
	return logs
}

// Requests returns how many requests were served
func (s *Server) Requests() int64 {
	return s.requests.Load()
}

// Token returns the token issued by token routes
func (s *Server) Token() string {
	return s.config.Token
}

// GetAddress returns the server base URL
func (s *Server) GetAddress() string {
	if s.listener != nil {
		return "http://" + s.listener.Addr().String()
	}
	return "http://" + s.config.Addr
}

// flattenHeaders converts http.Header to map[string]string (first value only)
func flattenHeaders(headers http.Header) map[string]string {
	result := make(map[string]string)
	for key, values := range headers {
		if len(values) > 0 {
			result[key] = values[0]
		}
	}
	return result
}
