package chain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jmespath/go-jmespath"
	"github.com/studiowebux/loadhook/internal/types"
)

// Source tells where a value is captured from
type Source string

const (
	SourceHeader Source = "header"
	SourceBody   Source = "body"
)

var (
	ErrNotFound  = errors.New("value not found in response")
	ErrNotJSON   = errors.New("response is not valid JSON")
	ErrEmptyRule = errors.New("empty extraction rule")
)

// Rule captures one value from a response
type Rule struct {
	Source     Source
	Expression string // header name or JMESPath expression
}

// ParseRule parses "header:<name>" or "body:<jmespath>".
// Without a prefix the rule is a JMESPath expression over the body.
func ParseRule(raw string) (Rule, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Rule{}, ErrEmptyRule
	}

	if prefix, rest, ok := strings.Cut(raw, ":"); ok {
		switch Source(strings.ToLower(prefix)) {
		case SourceHeader:
			return Rule{Source: SourceHeader, Expression: strings.TrimSpace(rest)}, nil
		case SourceBody:
			return compileBodyRule(strings.TrimSpace(rest))
		}
	}
	return compileBodyRule(raw)
}

func compileBodyRule(expr string) (Rule, error) {
	if expr == "" {
		return Rule{}, ErrEmptyRule
	}
	if _, err := jmespath.Compile(expr); err != nil {
		return Rule{}, fmt.Errorf("invalid JMESPath %q: %w", expr, err)
	}
	return Rule{Source: SourceBody, Expression: expr}, nil
}

// Extract applies rule to res
func Extract(res *types.ResponseView, rule Rule) (string, error) {
	switch rule.Source {
	case SourceHeader:
		v, ok := res.Header(rule.Expression)
		if !ok {
			return "", fmt.Errorf("header %s: %w", rule.Expression, ErrNotFound)
		}
		return v, nil
	case SourceBody:
		var jsonData interface{}
		if err := json.Unmarshal(res.Body(), &jsonData); err != nil {
			return "", ErrNotJSON
		}
		return search(rule.Expression, jsonData)
	default:
		return "", fmt.Errorf("unknown extraction source %q", rule.Source)
	}
}

// ExtractVariables applies every named rule to res.
// Keys are variable names, values are rules in ParseRule syntax.
func ExtractVariables(res *types.ResponseView, rules map[string]string) (map[string]string, error) {
	if len(rules) == 0 {
		return nil, nil
	}

	extracted := make(map[string]string, len(rules))
	for varName, raw := range rules {
		rule, err := ParseRule(raw)
		if err != nil {
			return nil, fmt.Errorf("variable %s: %w", varName, err)
		}
		value, err := Extract(res, rule)
		if err != nil {
			return nil, fmt.Errorf("failed to extract variable %s using %s: %w", varName, raw, err)
		}
		extracted[varName] = value
	}

	return extracted, nil
}

func search(expr string, data interface{}) (string, error) {
	result, err := jmespath.Search(expr, data)
	if err != nil {
		return "", fmt.Errorf("JMESPath %s: %w", expr, err)
	}

	// Convert result to string
	switch v := result.(type) {
	case string:
		return v, nil
	case float64:
		return fmt.Sprintf("%g", v), nil
	case bool:
		return fmt.Sprintf("%t", v), nil
	case nil:
		return "", fmt.Errorf("JMESPath %s returned null: %w", expr, ErrNotFound)
	default:
		// Complex types are rendered as JSON
		jsonBytes, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("failed to convert extracted value to string: %w", err)
		}
		return string(jsonBytes), nil
	}
}
