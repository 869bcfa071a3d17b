package executor

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/studiowebux/loadhook/internal/types"
)

const UserAgent = "loadhook"

const (
	TCPDialTimeout        = 5 * time.Second
	TCPKeepAliveInterval  = 30 * time.Second
	TLSHandshakeTimeout   = 5 * time.Second
	IdleConnTimeout       = 90 * time.Second
	ExpectContinueTimeout = 1 * time.Second
)

// NewClient builds the HTTP client one worker uses for the whole run
func NewClient(cfg *types.RunConfig) (*http.Client, error) {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DisableCompression:  cfg.DisableCompression,
		DisableKeepAlives:   cfg.DisableKeepAlive,
		MaxIdleConnsPerHost: cfg.Goroutines,
		IdleConnTimeout:     IdleConnTimeout,
		ForceAttemptHTTP2:   cfg.HTTP2,

		DialContext: (&net.Dialer{
			Timeout:   TCPDialTimeout,
			KeepAlive: TCPKeepAliveInterval,
		}).DialContext,
		TLSHandshakeTimeout:   TLSHandshakeTimeout,
		ExpectContinueTimeout: ExpectContinueTimeout,
	}
	if !cfg.HTTP2 {
		// A non-nil empty map disables the automatic HTTP/2 upgrade
		transport.TLSNextProto = make(map[string]func(string, *tls.Conn) http.RoundTripper)
	}

	if tlsConfig := cfg.TLS(); tlsConfig != nil {
		tlsCfg, err := buildTLSConfig(tlsConfig)
		if err != nil {
			return nil, err
		}
		transport.TLSClientConfig = tlsCfg
	}

	client := &http.Client{
		Timeout:   cfg.GetRequestTimeout(),
		Transport: transport,
	}
	if !cfg.AllowRedirects {
		client.CheckRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}
	return client, nil
}

// buildTLSConfig loads the client certificate (mTLS) and CA pool
func buildTLSConfig(tlsConfig *types.TLSConfig) (*tls.Config, error) {
	tlsCfg := &tls.Config{
		InsecureSkipVerify: tlsConfig.InsecureSkipVerify,
	}

	if tlsConfig.CertFile != "" && tlsConfig.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(tlsConfig.CertFile, tlsConfig.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{cert}
	}

	if tlsConfig.CAFile != "" {
		caCert, err := os.ReadFile(tlsConfig.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate: %w", err)
		}
		caCertPool := x509.NewCertPool()
		if !caCertPool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to parse CA certificate")
		}
		tlsCfg.RootCAs = caCertPool
	}

	return tlsCfg, nil
}

// Do issues req and reads the full response. A nil view with a non-nil
// error means no response was received (transport failure or timeout).
func Do(ctx context.Context, client *http.Client, req types.Request) (*types.ResponseView, error) {
	var bodyReader io.Reader
	if len(req.Body) > 0 {
		bodyReader = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, EscapeURL(req.URL), bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Headers.Apply(httpReq.Header)
	if httpReq.Header.Get("User-Agent") == "" {
		httpReq.Header.Set("User-Agent", UserAgent)
	}
	if req.Host != "" {
		httpReq.Host = req.Host
	}

	startTime := time.Now()
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	duration := time.Since(startTime)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return types.NewResponseView(resp.StatusCode, resp.Header, bodyBytes, duration), nil
}

// IsTimeout reports whether err comes from a request that ran out of time
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ue *url.Error
	if errors.As(err, &ue) {
		return ue.Timeout()
	}
	return false
}

// EscapeURL query-escapes every query parameter value of raw,
// leaving the path and parameter names untouched
func EscapeURL(raw string) string {
	base, query, found := strings.Cut(raw, "?")
	if !found {
		return raw
	}

	params := strings.Split(query, "&")
	for i, p := range params {
		name, value, ok := strings.Cut(p, "=")
		if !ok || strings.Contains(value, "=") {
			continue
		}
		params[i] = name + "=" + url.QueryEscape(value)
	}
	return base + "?" + strings.Join(params, "&")
}

// EstimateHeaderSize approximates the wire size of h
func EstimateHeaderSize(h map[string]string) int {
	size := 0
	for name, value := range h {
		size += len(name) + len(": ") + len(value) + len("\r\n")
	}
	return size
}

// FormatDuration formats duration in milliseconds to human-readable string
func FormatDuration(ms int64) string {
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}
	seconds := float64(ms) / 1000.0
	return fmt.Sprintf("%.2fs", seconds)
}

// FormatSize formats byte size to human-readable string
func FormatSize(bytes int64) string {
	if bytes < 1024 {
		return fmt.Sprintf("%dB", bytes)
	}
	if bytes < 1024*1024 {
		return fmt.Sprintf("%.2fKB", float64(bytes)/1024.0)
	}
	return fmt.Sprintf("%.2fMB", float64(bytes)/(1024.0*1024.0))
}

// IsSuccessStatus returns true if status code is 2xx
func IsSuccessStatus(status int) bool {
	return status >= 200 && status < 300
}

// IsClientErrorStatus returns true if status code is 4xx
func IsClientErrorStatus(status int) bool {
	return status >= 400 && status < 500
}

// IsServerErrorStatus returns true if status code is 5xx
func IsServerErrorStatus(status int) bool {
	return status >= 500 && status < 600
}
