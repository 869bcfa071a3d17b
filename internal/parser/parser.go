// Package parser reads request files that seed the initial request context
// of every worker. Supported formats are .http (### separated blocks) and
// YAML or JSON documents holding one request or a list.
package parser

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// ParseFile dispatches on the file extension
func ParseFile(filePath string) ([]Request, error) {
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".http", ".rest":
		return ParseHTTPFile(filePath)
	case ".yaml", ".yml", ".json", ".jsonc":
		return ParseYAMLFile(filePath)
	default:
		return nil, fmt.Errorf("unsupported request file %s", filePath)
	}
}

// Select picks a request by name, or by 1-based index when selector is a
// number. An empty selector picks the first request.
func Select(requests []Request, selector string) (Request, error) {
	if len(requests) == 0 {
		return Request{}, fmt.Errorf("no requests found")
	}
	if selector == "" {
		return requests[0], nil
	}
	for _, r := range requests {
		if r.Name == selector {
			return r, nil
		}
	}
	if n, err := strconv.Atoi(selector); err == nil && n >= 1 && n <= len(requests) {
		return requests[n-1], nil
	}
	return Request{}, fmt.Errorf("request %q not found", selector)
}
