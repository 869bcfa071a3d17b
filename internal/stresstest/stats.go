package stresstest

import (
	"sort"
)

// Stats holds runtime statistics for a load run
type Stats struct {
	TotalIterations     int // iteration budget, 0 when unlimited
	CompletedIterations int
	SuccessCount        int
	StatusErrorCount    int
	TransportErrorCount int
	HookErrorCount      int
	ActiveWorkers       int     // workers currently inside the network phase
	Durations           []int64 // for percentile calculation
	TotalDurationMs     int64
	MinDurationMs       int64
	MaxDurationMs       int64
	TotalBytes          int64
	PerWorker           map[int]int // completed iterations by worker
}

// NewStats creates a new Stats instance
func NewStats() *Stats {
	return &Stats{
		Durations:     make([]int64, 0, 1000),
		MinDurationMs: -1,
		MaxDurationMs: -1,
		PerWorker:     make(map[int]int),
	}
}

// AddResult adds an iteration to the statistics.
// Durations are only tracked for iterations that received a response.
func (s *Stats) AddResult(worker int, outcome Outcome, gotResponse bool, durationMs, bytes int64) {
	s.CompletedIterations++
	s.PerWorker[worker]++
	s.TotalBytes += bytes

	switch outcome {
	case OutcomeSuccess:
		s.SuccessCount++
	case OutcomeStatusError:
		s.StatusErrorCount++
	case OutcomeTransportError:
		s.TransportErrorCount++
	case OutcomeHookError:
		s.HookErrorCount++
	}

	if !gotResponse {
		return
	}
	s.TotalDurationMs += durationMs
	s.Durations = append(s.Durations, durationMs)

	if s.MinDurationMs == -1 || durationMs < s.MinDurationMs {
		s.MinDurationMs = durationMs
	}
	if s.MaxDurationMs == -1 || durationMs > s.MaxDurationMs {
		s.MaxDurationMs = durationMs
	}
}

// StatsFromIterations rebuilds the statistics of a recorded run
func StatsFromIterations(iterations []*Iteration) *Stats {
	s := NewStats()
	for _, it := range iterations {
		s.AddResult(it.Worker, it.Outcome, it.StatusCode > 0, it.DurationMs, it.ResponseSize)
	}
	return s
}

// Clone returns a deep copy
func (s *Stats) Clone() *Stats {
	c := *s
	c.Durations = append([]int64(nil), s.Durations...)
	c.PerWorker = make(map[int]int, len(s.PerWorker))
	for k, v := range s.PerWorker {
		c.PerWorker[k] = v
	}
	return &c
}

// FailureCount returns the number of failed iterations of any kind
func (s *Stats) FailureCount() int {
	return s.StatusErrorCount + s.TransportErrorCount + s.HookErrorCount
}

// AvgDurationMs returns the average duration of responded iterations in milliseconds
func (s *Stats) AvgDurationMs() float64 {
	if len(s.Durations) == 0 {
		return 0
	}
	return float64(s.TotalDurationMs) / float64(len(s.Durations))
}

// Min returns the minimum duration, or 0 if no results
func (s *Stats) Min() int64 {
	if s.MinDurationMs == -1 {
		return 0
	}
	return s.MinDurationMs
}

// Max returns the maximum duration, or 0 if no results
func (s *Stats) Max() int64 {
	if s.MaxDurationMs == -1 {
		return 0
	}
	return s.MaxDurationMs
}

// Percentile calculates the percentile value (p should be between 0 and 100)
func (s *Stats) Percentile(p float64) int64 {
	if len(s.Durations) == 0 {
		return 0
	}

	sorted := make([]int64, len(s.Durations))
	copy(sorted, s.Durations)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i] < sorted[j]
	})

	index := (p / 100.0) * float64(len(sorted)-1)
	lower := int(index)
	upper := lower + 1

	if upper >= len(sorted) {
		return sorted[len(sorted)-1]
	}

	// Linear interpolation between lower and upper
	weight := index - float64(lower)
	return int64(float64(sorted[lower])*(1-weight) + float64(sorted[upper])*weight)
}

// SuccessRate returns the success rate as a percentage
func (s *Stats) SuccessRate() float64 {
	if s.CompletedIterations == 0 {
		return 0
	}
	return float64(s.SuccessCount) / float64(s.CompletedIterations) * 100
}

// Progress returns the completion progress as a percentage, 0 without a budget
func (s *Stats) Progress() float64 {
	if s.TotalIterations == 0 {
		return 0
	}
	return float64(s.CompletedIterations) / float64(s.TotalIterations) * 100
}
