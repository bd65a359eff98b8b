package ui

import "strings"

// SparklineChars are the block characters from lowest to highest.
var SparklineChars = []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

// Sparkline keeps the last N throughput samples in a ring buffer.
type Sparkline struct {
	samples []float64
	head    int
	count   int
}

// NewSparkline creates a sparkline holding capacity samples (default 60).
func NewSparkline(capacity int) *Sparkline {
	if capacity <= 0 {
		capacity = 60
	}
	return &Sparkline{samples: make([]float64, capacity)}
}

// Add appends a sample, evicting the oldest when full.
func (s *Sparkline) Add(value float64) {
	s.samples[s.head] = value
	s.head = (s.head + 1) % len(s.samples)
	s.count++
}

// Count returns the number of samples ever added.
func (s *Sparkline) Count() int {
	return s.count
}

// Clear drops every sample.
func (s *Sparkline) Clear() {
	clear(s.samples)
	s.head = 0
	s.count = 0
}

// recent returns up to n of the newest samples, oldest first.
func (s *Sparkline) recent(n int) []float64 {
	held := min(s.count, len(s.samples))
	n = min(n, held)
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		idx := (s.head - n + i + len(s.samples)) % len(s.samples)
		out[i] = s.samples[idx]
	}
	return out
}

// Render draws the newest samples into width cells, scaled to their
// maximum. Missing samples are left-padded with spaces. A width <= 0
// uses the capacity.
func (s *Sparkline) Render(width int) string {
	if width <= 0 {
		width = len(s.samples)
	}
	values := s.recent(width)

	peak := 0.0
	for _, v := range values {
		peak = max(peak, v)
	}

	var sb strings.Builder
	sb.Grow(width * 3)
	sb.WriteString(strings.Repeat(" ", width-len(values)))
	for _, v := range values {
		idx := 0
		if peak > 0 {
			idx = int(v / peak * float64(len(SparklineChars)-1))
		}
		idx = max(0, min(idx, len(SparklineChars)-1))
		sb.WriteRune(SparklineChars[idx])
	}
	return sb.String()
}
