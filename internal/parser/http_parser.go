package parser

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/studiowebux/loadhook/internal/types"
)

var validMethods = []string{"GET", "POST", "PUT", "DELETE", "PATCH", "HEAD", "OPTIONS"}

// Request is one named request read from a request file
type Request struct {
	Name                string `yaml:"name" json:"name"`
	types.RequestConfig `yaml:",inline"`
}

// ParseHTTPFile parses a traditional .http file with ### separators
func ParseHTTPFile(filePath string) ([]Request, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	return ParseHTTP(file)
}

// ParseHTTP parses .http content. Lines starting with # are comments,
// the first non-comment line of a block is "METHOD URL", headers follow
// until a blank line, and the rest is the body.
func ParseHTTP(r io.Reader) ([]Request, error) {
	var requests []Request
	var current *Request
	var bodyLines []string
	inBody := false

	flush := func() {
		if current == nil {
			return
		}
		if inBody && len(bodyLines) > 0 {
			current.Body = strings.TrimRight(strings.Join(bodyLines, "\n"), "\n")
		}
		requests = append(requests, *current)
	}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()

		// New request separator
		if strings.HasPrefix(line, "###") {
			flush()
			current = &Request{
				Name:          strings.TrimSpace(strings.TrimPrefix(line, "###")),
				RequestConfig: types.RequestConfig{Header: make(map[string]string)},
			}
			bodyLines = nil
			inBody = false
			continue
		}

		if strings.HasPrefix(line, "#") && !inBody {
			continue
		}

		// A file without a leading ### holds a single unnamed request
		if current == nil {
			if strings.TrimSpace(line) == "" {
				continue
			}
			current = &Request{RequestConfig: types.RequestConfig{Header: make(map[string]string)}}
		}

		// HTTP method and URL (e.g., GET http://example.com)
		if current.Method == "" {
			parts := strings.Fields(line)
			if len(parts) >= 2 && isMethod(parts[0]) {
				current.Method = strings.ToUpper(parts[0])
				current.URL = parts[1]
			}
			continue
		}

		// Empty line after headers starts body
		if strings.TrimSpace(line) == "" && !inBody {
			inBody = true
			continue
		}

		if !inBody && strings.Contains(line, ":") {
			// Indented lines are body content
			if strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t") {
				inBody = true
				bodyLines = append(bodyLines, line)
				continue
			}

			key, value, _ := strings.Cut(line, ":")
			key = strings.TrimSpace(key)
			value = strings.TrimSpace(value)

			// Header names hold no spaces, quotes or braces
			if key == "" || strings.ContainsAny(key, " \t{[\"'") {
				inBody = true
				bodyLines = append(bodyLines, line)
				continue
			}

			if strings.EqualFold(key, "Host") {
				current.Host = value
				continue
			}
			current.Header[key] = value
			continue
		}

		inBody = true
		bodyLines = append(bodyLines, line)
	}

	flush()

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading file: %w", err)
	}

	for i, req := range requests {
		if req.Method == "" {
			return nil, fmt.Errorf("request %d (%s): missing method line", i+1, req.Name)
		}
	}
	return requests, nil
}

func isMethod(s string) bool {
	s = strings.ToUpper(s)
	for _, m := range validMethods {
		if s == m {
			return true
		}
	}
	return false
}
