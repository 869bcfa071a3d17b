package types

import (
	"net/http"
	"sort"
	"strings"
)

type headerEntry struct {
	name  string
	value string
}

// Header is a single-valued header map with case-insensitive lookup.
// The spelling of the last Set wins on the wire.
type Header struct {
	entries map[string]headerEntry
}

// NewHeader creates a header map seeded from values
func NewHeader(values map[string]string) *Header {
	h := &Header{entries: make(map[string]headerEntry, len(values))}
	for name, value := range values {
		h.Set(name, value)
	}
	return h
}

// Set overwrites any existing value for name, regardless of case
func (h *Header) Set(name, value string) {
	if h.entries == nil {
		h.entries = make(map[string]headerEntry)
	}
	h.entries[strings.ToLower(name)] = headerEntry{name: name, value: value}
}

// Get returns the value for name and whether it was set
func (h *Header) Get(name string) (string, bool) {
	if h == nil {
		return "", false
	}
	e, ok := h.entries[strings.ToLower(name)]
	return e.value, ok
}

// Del removes name, regardless of case
func (h *Header) Del(name string) {
	if h == nil {
		return
	}
	delete(h.entries, strings.ToLower(name))
}

// Len returns the number of distinct header names
func (h *Header) Len() int {
	if h == nil {
		return 0
	}
	return len(h.entries)
}

// Names returns the wire names sorted case-insensitively
func (h *Header) Names() []string {
	if h == nil {
		return nil
	}
	keys := make([]string, 0, len(h.entries))
	for k := range h.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = h.entries[k].name
	}
	return names
}

// Each calls fn for every header in Names order
func (h *Header) Each(fn func(name, value string)) {
	for _, name := range h.Names() {
		value, _ := h.Get(name)
		fn(name, value)
	}
}

// Clone returns a deep copy. Cloning nil yields an empty header.
func (h *Header) Clone() *Header {
	c := &Header{entries: make(map[string]headerEntry, h.Len())}
	if h == nil {
		return c
	}
	for k, e := range h.entries {
		c.entries[k] = e
	}
	return c
}

// Map returns a copy keyed by wire name
func (h *Header) Map() map[string]string {
	m := make(map[string]string, h.Len())
	h.Each(func(name, value string) {
		m[name] = value
	})
	return m
}

// Apply writes every header onto dst under its own spelling, replacing any
// existing value whatever its case. User-Agent stays canonical: net/http adds
// its default agent unless that exact key is present.
func (h *Header) Apply(dst http.Header) {
	h.Each(func(name, value string) {
		for k := range dst {
			if strings.EqualFold(k, name) {
				delete(dst, k)
			}
		}
		if strings.EqualFold(name, "User-Agent") {
			dst.Set(name, value)
			return
		}
		dst[name] = []string{value}
	})
}

// Equal reports whether both maps hold the same names (by spelling) and values
func (h *Header) Equal(other *Header) bool {
	if h.Len() != other.Len() {
		return false
	}
	if h == nil || other == nil {
		return true
	}
	for k, e := range h.entries {
		if other.entries[k] != e {
			return false
		}
	}
	return true
}
