package script

import (
	"fmt"
	"sort"
	"strings"

	"github.com/studiowebux/loadhook/internal/state"
	"github.com/studiowebux/loadhook/internal/types"
)

func requestToMap(r *types.RequestContext) map[string]interface{} {
	headers := make(map[string]interface{}, r.Headers.Len())
	r.Headers.Each(func(name, value string) {
		headers[name] = value
	})
	return map[string]interface{}{
		"method":  r.Method,
		"url":     r.URL,
		"host":    r.Host,
		"headers": headers,
		"body":    r.BodyString(),
	}
}

// responseToMap exposes the response with lower-cased header names
func responseToMap(res *types.ResponseView) interface{} {
	if res == nil {
		return nil
	}
	headers := make(map[string]interface{})
	for name, value := range res.Headers() {
		headers[strings.ToLower(name)] = value
	}
	return map[string]interface{}{
		"status":      res.Status,
		"headers":     headers,
		"body":        res.BodyString(),
		"size":        res.Size(),
		"duration_ms": res.Duration.Milliseconds(),
	}
}

// mapToRequest writes the script's req map back onto r
func mapToRequest(m map[string]interface{}, r *types.RequestContext) error {
	if m == nil {
		return fmt.Errorf("req must remain a map")
	}

	for _, field := range []struct {
		key string
		dst *string
	}{
		{"method", &r.Method},
		{"url", &r.URL},
		{"host", &r.Host},
	} {
		if v, ok := m[field.key]; ok {
			*field.dst = state.ToString(v)
		}
	}

	switch b := m["body"].(type) {
	case nil:
		r.Body = nil
	case []byte:
		r.Body = append([]byte(nil), b...)
	default:
		r.SetBody(state.ToString(b))
	}

	raw, ok := m["headers"].(map[string]interface{})
	if !ok && m["headers"] != nil {
		return fmt.Errorf("req.headers must be a map")
	}
	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	sort.Strings(names)

	headers := types.NewHeader(nil)
	for _, name := range names {
		if raw[name] == nil {
			continue
		}
		headers.Set(name, state.ToString(raw[name]))
	}
	r.Headers = headers
	return nil
}

func copyMap(m map[string]interface{}) map[string]interface{} {
	c := make(map[string]interface{}, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}

// replaceMap makes dst hold exactly src
func replaceMap(dst, src map[string]interface{}) {
	for k := range dst {
		if _, ok := src[k]; !ok {
			delete(dst, k)
		}
	}
	for k, v := range src {
		dst[k] = v
	}
}
