package parser

import (
	"os"
	"regexp"
	"sort"
	"strings"
)

// Variable placeholder pattern: {{varName}}
var varPattern = regexp.MustCompile(`\{\{([^}]+)\}\}`)

// VariableResolver substitutes {{name}} placeholders once, when the request
// file is loaded. Hooks see the resolved values.
type VariableResolver struct {
	vars       map[string]string
	lookupEnv  func(string) (string, bool)
	unresolved map[string]bool
}

// NewVariableResolver creates a resolver over vars. {{env.NAME}} reads the
// process environment.
func NewVariableResolver(vars map[string]string) *VariableResolver {
	if vars == nil {
		vars = make(map[string]string)
	}
	return &VariableResolver{
		vars:       vars,
		lookupEnv:  os.LookupEnv,
		unresolved: make(map[string]bool),
	}
}

// Resolve replaces every placeholder it can. Unknown ones are left as is.
func (vr *VariableResolver) Resolve(input string) string {
	return varPattern.ReplaceAllStringFunc(input, func(match string) string {
		name := strings.TrimSpace(match[2 : len(match)-2])

		if envName, ok := strings.CutPrefix(name, "env."); ok {
			if v, found := vr.lookupEnv(envName); found {
				return v
			}
		} else if v, found := vr.vars[name]; found {
			return v
		}

		vr.unresolved[name] = true
		return match
	})
}

// ResolveRequest resolves the URL, host, header values and body of req in place
func (vr *VariableResolver) ResolveRequest(req *Request) {
	req.URL = vr.Resolve(req.URL)
	req.Host = vr.Resolve(req.Host)
	req.Body = vr.Resolve(req.Body)
	for k, v := range req.Header {
		req.Header[k] = vr.Resolve(v)
	}
}

// GetUnresolvedVariables returns the sorted names that couldn't be resolved
func (vr *VariableResolver) GetUnresolvedVariables() []string {
	names := make([]string, 0, len(vr.unresolved))
	for name := range vr.unresolved {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ExtractVariableNames extracts all unique variable names from a string
func ExtractVariableNames(input string) []string {
	matches := varPattern.FindAllStringSubmatch(input, -1)
	seen := make(map[string]bool)
	var names []string
	for _, match := range matches {
		name := strings.TrimSpace(match[1])
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	return names
}
