package ui

import (
	"sync"
	"time"
)

// etaSmoothing weighs a new ETA estimate against the previous one.
const etaSmoothing = 0.3

// speedInterval is the minimum time between throughput samples.
const speedInterval = 500 * time.Millisecond

// ProgressTracker accumulates progress events for the TUI.
// It is safe for concurrent use.
type ProgressTracker struct {
	mu          sync.Mutex
	stage       Stage
	current     int
	total       int
	item        string
	stageStart  time.Time
	errors      int
	warnings    int
	lastETA     time.Duration
	lastCurrent int
	lastSample  time.Time
	speed       SpeedStats
	samples     int
	sparkline   *Sparkline
	now         func() time.Time
}

// SpeedStats contains items/sec throughput.
type SpeedStats struct {
	Current float64
	Avg     float64
	Peak    float64
}

// ProgressStats is a snapshot of the tracker.
type ProgressStats struct {
	Stage      Stage
	Current    int
	Total      int
	Progress   float64
	ETA        time.Duration
	Item       string
	ErrorCount int
	WarnCount  int
	Speed      SpeedStats
}

// NewProgressTracker creates a tracker at the extracting stage.
func NewProgressTracker() *ProgressTracker {
	t := &ProgressTracker{
		sparkline: NewSparkline(60),
		now:       time.Now,
	}
	t.stageStart = t.now()
	t.lastSample = t.stageStart
	return t
}

// SetStage moves to stage and resets per-stage counters.
func (p *ProgressTracker) SetStage(stage Stage, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stage = stage
	p.total = total
	p.current = 0
	p.item = ""
	p.stageStart = p.now()
	p.lastETA = 0
	p.lastCurrent = 0
	p.lastSample = p.stageStart
	p.speed = SpeedStats{}
	p.samples = 0
	p.sparkline.Clear()
}

// Update records the current position within the stage.
func (p *ProgressTracker) Update(current, total int, item string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.current = current
	if total > 0 {
		p.total = total
	}
	if item != "" {
		p.item = item
	}

	now := p.now()
	elapsed := now.Sub(p.lastSample)
	if elapsed < speedInterval {
		return
	}
	if delta := current - p.lastCurrent; delta > 0 {
		speed := float64(delta) / elapsed.Seconds()
		p.samples++
		if p.samples == 1 {
			p.speed.Avg = speed
		} else {
			p.speed.Avg = 0.2*speed + 0.8*p.speed.Avg
		}
		p.speed.Current = speed
		p.speed.Peak = max(p.speed.Peak, speed)
		p.sparkline.Add(speed)
	}
	p.lastCurrent = current
	p.lastSample = now
}

// AddError counts an error or warning.
func (p *ProgressTracker) AddError(event ErrorEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if event.IsWarn {
		p.warnings++
	} else {
		p.errors++
	}
}

// Stats returns a snapshot. It advances the ETA smoothing.
func (p *ProgressTracker) Stats() ProgressStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	progress := 0.0
	if p.total > 0 {
		progress = min(float64(p.current)/float64(p.total), 1.0)
	}

	return ProgressStats{
		Stage:      p.stage,
		Current:    p.current,
		Total:      p.total,
		Progress:   progress,
		ETA:        p.eta(progress),
		Item:       p.item,
		ErrorCount: p.errors,
		WarnCount:  p.warnings,
		Speed:      p.speed,
	}
}

// eta estimates the remaining time of the stage. Caller holds the lock.
func (p *ProgressTracker) eta(progress float64) time.Duration {
	if progress <= 0 || progress >= 1 {
		return 0
	}

	elapsed := p.now().Sub(p.stageStart)
	remaining := time.Duration(float64(elapsed)/progress) - elapsed
	if remaining < 0 {
		return 0
	}
	if p.lastETA != 0 {
		remaining = time.Duration(etaSmoothing*float64(remaining) + (1-etaSmoothing)*float64(p.lastETA))
	}
	p.lastETA = remaining
	return remaining
}

// RenderSparkline draws the throughput history at width.
func (p *ProgressTracker) RenderSparkline(width int) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sparkline.Render(width)
}
