package observability

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/ent0n29/voicerelay/internal/relay"
)

// p95Targets are the latency budgets reported next to each stage.
var p95Targets = map[relay.Stage]float64{
	relay.StageTranscription: 2500,
	relay.StageCompletion:    4000,
	relay.StageSynthesis:     3000,
	relay.StageChat:          4000,
}

type StageStats struct {
	Stage       relay.Stage `json:"stage"`
	Samples     int         `json:"samples"`
	Errors      int         `json:"errors"`
	ErrorRate   float64     `json:"error_rate"`
	LastMS      float64     `json:"last_ms"`
	AvgMS       float64     `json:"avg_ms"`
	P50MS       float64     `json:"p50_ms"`
	P95MS       float64     `json:"p95_ms"`
	P99MS       float64     `json:"p99_ms"`
	TargetP95MS float64     `json:"target_p95_ms,omitempty"`
	OverTarget  bool        `json:"over_target,omitempty"`
}

type StageSnapshot struct {
	GeneratedAt time.Time    `json:"generated_at"`
	WindowSize  int          `json:"window_size"`
	Stages      []StageStats `json:"stages"`
}

// latencyRing holds the most recent samples of one stage, oldest overwritten
// first. Error counts cover the same window.
type latencyRing struct {
	ms     []float64
	failed []bool
	pos    int
	count  int
}

func newLatencyRing(size int) *latencyRing {
	return &latencyRing{ms: make([]float64, size), failed: make([]bool, size)}
}

func (r *latencyRing) add(ms float64, failed bool) {
	r.ms[r.pos] = ms
	r.failed[r.pos] = failed
	r.pos = (r.pos + 1) % len(r.ms)
	if r.count < len(r.ms) {
		r.count++
	}
}

func (r *latencyRing) last() float64 {
	return r.ms[(r.pos-1+len(r.ms))%len(r.ms)]
}

func (r *latencyRing) stats(stage relay.Stage) StageStats {
	sorted := append([]float64(nil), r.ms[:r.count]...)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}
	errs := 0
	for _, f := range r.failed[:r.count] {
		if f {
			errs++
		}
	}

	st := StageStats{
		Stage:       stage,
		Samples:     r.count,
		Errors:      errs,
		ErrorRate:   round2(float64(errs) / float64(r.count)),
		LastMS:      round2(r.last()),
		AvgMS:       round2(sum / float64(r.count)),
		P50MS:       round2(percentile(sorted, 50)),
		P95MS:       round2(percentile(sorted, 95)),
		P99MS:       round2(percentile(sorted, 99)),
		TargetP95MS: p95Targets[stage],
	}
	st.OverTarget = st.TargetP95MS > 0 && st.P95MS > st.TargetP95MS
	return st
}

// stageWindow is a set of per-stage rings guarded by one lock.
type stageWindow struct {
	mu    sync.Mutex
	size  int
	rings map[relay.Stage]*latencyRing
}

func newStageWindow(size int) *stageWindow {
	if size <= 0 {
		size = 256
	}
	return &stageWindow{size: size, rings: make(map[relay.Stage]*latencyRing)}
}

func (w *stageWindow) Observe(stage relay.Stage, ms float64, failed bool) {
	if stage == "" || ms < 0 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	ring, ok := w.rings[stage]
	if !ok {
		ring = newLatencyRing(w.size)
		w.rings[stage] = ring
	}
	ring.add(ms, failed)
}

// Snapshot returns stats for every stage seen so far, ordered by name.
func (w *stageWindow) Snapshot() StageSnapshot {
	w.mu.Lock()
	defer w.mu.Unlock()

	stages := make([]StageStats, 0, len(w.rings))
	for stage, ring := range w.rings {
		stages = append(stages, ring.stats(stage))
	}
	sort.Slice(stages, func(i, j int) bool { return stages[i].Stage < stages[j].Stage })

	return StageSnapshot{
		GeneratedAt: time.Now().UTC(),
		WindowSize:  w.size,
		Stages:      stages,
	}
}

// percentile interpolates linearly between the closest ranks of sorted.
func percentile(sorted []float64, p float64) float64 {
	switch n := len(sorted); {
	case n == 0:
		return 0
	case n == 1 || p <= 0:
		return sorted[0]
	case p >= 100:
		return sorted[n-1]
	}
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(rank)
	if lo+1 >= len(sorted) {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo] + (sorted[lo+1]-sorted[lo])*frac
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
