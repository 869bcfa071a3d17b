package state

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_TypedAccessors(t *testing.T) {
	s := NewStore()

	assert.Equal(t, 0, s.Int("counter"))
	assert.Equal(t, 0, s.Incr("counter"))
	assert.Equal(t, 1, s.Incr("counter"))
	assert.Equal(t, 2, s.Int("counter"))

	s.Set("token", "T123")
	s.Set("authenticated", true)
	s.Set("n64", int64(7))

	assert.Equal(t, "T123", s.String("token"))
	assert.True(t, s.Bool("authenticated"))
	assert.Equal(t, 7, s.Int("n64"))
	assert.Equal(t, "7", s.String("n64"))
	assert.Equal(t, []string{"authenticated", "counter", "n64", "token"}, s.Keys())

	s.Delete("token")
	_, ok := s.Get("token")
	assert.False(t, ok)
}

func TestStore_ReplaceCopies(t *testing.T) {
	s := NewStore()
	src := map[string]any{"a": 1}
	s.Replace(src)
	src["a"] = 2

	assert.Equal(t, 1, s.Int("a"))

	m := s.Map()
	m["a"] = 3
	assert.Equal(t, 1, s.Int("a"))
}

func TestShared_ApplyDeletesNil(t *testing.T) {
	s := NewShared()
	s.Set("token", "x")
	s.Set("keep", true)

	s.Apply(map[string]any{"token": nil, "new": 1})

	snap := s.Snapshot()
	_, hasToken := snap["token"]
	assert.False(t, hasToken)
	assert.Equal(t, true, snap["keep"])
	assert.Equal(t, 1, snap["new"])
}

// TestShared_NoTornReads hammers one key with writers that always write a
// consistent pair and readers that must never see the pair mismatch.
func TestShared_NoTornReads(t *testing.T) {
	s := NewShared()
	s.Update(func(v map[string]any) {
		v["token"] = strings.Repeat("a", 64)
		v["authenticated"] = true
	})

	var wg sync.WaitGroup
	letters := "abcdefgh"
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(ch byte) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				s.Set("token", strings.Repeat(string(ch), 64))
			}
		}(letters[w])
	}

	errs := make(chan string, 1)
	for r := 0; r < 8; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				tok := s.String("token")
				if len(tok) != 64 || strings.Count(tok, tok[:1]) != 64 {
					select {
					case errs <- tok:
					default:
					}
					return
				}
			}
		}()
	}
	wg.Wait()

	select {
	case tok := <-errs:
		t.Fatalf("observed torn token %q", tok)
	default:
	}
}

func TestShared_UpdateIsAtomic(t *testing.T) {
	s := NewShared()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s.Update(func(v map[string]any) {
					n, _ := ToInt(v["n"])
					v["n"] = n + 1
				})
			}
		}()
	}
	wg.Wait()

	v, ok := s.Get("n")
	require.True(t, ok)
	assert.Equal(t, 5000, v)
}

func TestToInt(t *testing.T) {
	tests := []struct {
		in   any
		want int
		ok   bool
	}{
		{in: 3, want: 3, ok: true},
		{in: int64(4), want: 4, ok: true},
		{in: 5.9, want: 5, ok: true},
		{in: "12", want: 12, ok: true},
		{in: "x", want: 0, ok: false},
		{in: nil, want: 0, ok: false},
	}
	for _, tt := range tests {
		got, ok := ToInt(tt.in)
		assert.Equal(t, tt.want, got)
		assert.Equal(t, tt.ok, ok)
	}
}
