package shim

import (
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// StatsCollector defines the interface for collecting metrics of a minibatch
// loop. Implementations can keep metrics in memory or export them elsewhere.
// The StatsCollector is optional - if not provided, no statistics are collected.
type StatsCollector interface {
	// RecordLoopStart is called when a minibatch loop starts successfully.
	RecordLoopStart()

	// RecordPrefetchStart is called when a prefetch task is launched.
	RecordPrefetchStart()

	// RecordPrefetchComplete is called when a prefetch task has been joined.
	// duration is the time the task spent reading and filling.
	RecordPrefetchComplete(duration time.Duration)

	// RecordWait is called with the time GetMinibatch blocked on the task.
	RecordWait(duration time.Duration)

	// RecordMinibatch is called for each minibatch delivered to the caller.
	RecordMinibatch(samples int)

	// RecordEndOfEpoch is called when the loop reaches the end of an epoch.
	RecordEndOfEpoch()

	// RecordError is called when a minibatch could not be delivered.
	RecordError()

	// RecordDrainTimeout is called when teardown gave up waiting for a task.
	RecordDrainTimeout()

	// GetStats returns a snapshot of the current statistics.
	GetStats() Stats
}

// Stats holds aggregated statistics about minibatch loops.
type Stats struct {
	// LoopsStarted is the number of minibatch loops started.
	LoopsStarted uint64

	// PrefetchesStarted is the number of prefetch tasks launched.
	PrefetchesStarted uint64

	// PrefetchesCompleted is the number of prefetch tasks joined.
	PrefetchesCompleted uint64

	// Minibatches is the number of minibatches delivered.
	Minibatches uint64

	// Samples is the number of samples delivered.
	Samples uint64

	// Epochs is the number of epochs that reached their end.
	Epochs uint64

	// Errors is the number of failed minibatch requests.
	Errors uint64

	// DrainTimeouts is the number of teardowns that abandoned a task.
	DrainTimeouts uint64

	// TotalPrefetchTime is the cumulative time spent in prefetch tasks.
	TotalPrefetchTime time.Duration

	// TotalWaitTime is the cumulative time GetMinibatch blocked.
	TotalWaitTime time.Duration

	// MaxWaitTime is the longest single wait.
	MaxWaitTime time.Duration

	// MinMinibatchSamples is the smallest minibatch delivered.
	MinMinibatchSamples int

	// MaxMinibatchSamples is the largest minibatch delivered.
	MaxMinibatchSamples int

	// StartTime is when statistics collection began.
	StartTime time.Time

	// LastUpdateTime is when statistics were last updated.
	LastUpdateTime time.Time
}

// NoOpStatsCollector is a stats collector that discards all metrics.
// This is the default stats collector when none is specified.
type NoOpStatsCollector struct{}

// RecordLoopStart implements the StatsCollector interface.
func (n *NoOpStatsCollector) RecordLoopStart() {}

// RecordPrefetchStart implements the StatsCollector interface.
func (n *NoOpStatsCollector) RecordPrefetchStart() {}

// RecordPrefetchComplete implements the StatsCollector interface.
func (n *NoOpStatsCollector) RecordPrefetchComplete(duration time.Duration) {}

// RecordWait implements the StatsCollector interface.
func (n *NoOpStatsCollector) RecordWait(duration time.Duration) {}

// RecordMinibatch implements the StatsCollector interface.
func (n *NoOpStatsCollector) RecordMinibatch(samples int) {}

// RecordEndOfEpoch implements the StatsCollector interface.
func (n *NoOpStatsCollector) RecordEndOfEpoch() {}

// RecordError implements the StatsCollector interface.
func (n *NoOpStatsCollector) RecordError() {}

// RecordDrainTimeout implements the StatsCollector interface.
func (n *NoOpStatsCollector) RecordDrainTimeout() {}

// GetStats implements the StatsCollector interface.
func (n *NoOpStatsCollector) GetStats() Stats {
	return Stats{}
}

// BasicStatsCollector is a simple in-memory implementation of StatsCollector.
// All operations are thread-safe, so one collector may be shared by the
// shims of several workers.
type BasicStatsCollector struct {
	mu    sync.RWMutex
	stats Stats

	// Atomic counters for lock-free updates
	loopsStarted        atomic.Uint64
	prefetchesStarted   atomic.Uint64
	prefetchesCompleted atomic.Uint64
	minibatches         atomic.Uint64
	samples             atomic.Uint64
	epochs              atomic.Uint64
	errors              atomic.Uint64
	drainTimeouts       atomic.Uint64
}

// NewBasicStatsCollector creates a new BasicStatsCollector.
func NewBasicStatsCollector() *BasicStatsCollector {
	now := time.Now()
	return &BasicStatsCollector{
		stats: Stats{
			StartTime:           now,
			LastUpdateTime:      now,
			MinMinibatchSamples: math.MaxInt,
		},
	}
}

func (b *BasicStatsCollector) touch() {
	b.mu.Lock()
	b.stats.LastUpdateTime = time.Now()
	b.mu.Unlock()
}

// RecordLoopStart implements the StatsCollector interface.
func (b *BasicStatsCollector) RecordLoopStart() {
	b.loopsStarted.Add(1)
	b.touch()
}

// RecordPrefetchStart implements the StatsCollector interface.
func (b *BasicStatsCollector) RecordPrefetchStart() {
	b.prefetchesStarted.Add(1)
}

// RecordPrefetchComplete implements the StatsCollector interface.
func (b *BasicStatsCollector) RecordPrefetchComplete(duration time.Duration) {
	b.prefetchesCompleted.Add(1)

	b.mu.Lock()
	defer b.mu.Unlock()

	b.stats.LastUpdateTime = time.Now()
	b.stats.TotalPrefetchTime += duration
}

// RecordWait implements the StatsCollector interface.
func (b *BasicStatsCollector) RecordWait(duration time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.stats.LastUpdateTime = time.Now()
	b.stats.TotalWaitTime += duration
	if duration > b.stats.MaxWaitTime {
		b.stats.MaxWaitTime = duration
	}
}

// RecordMinibatch implements the StatsCollector interface.
func (b *BasicStatsCollector) RecordMinibatch(samples int) {
	b.minibatches.Add(1)
	if samples > 0 {
		b.samples.Add(uint64(samples))
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.stats.LastUpdateTime = time.Now()
	if samples < b.stats.MinMinibatchSamples {
		b.stats.MinMinibatchSamples = samples
	}
	if samples > b.stats.MaxMinibatchSamples {
		b.stats.MaxMinibatchSamples = samples
	}
}

// RecordEndOfEpoch implements the StatsCollector interface.
func (b *BasicStatsCollector) RecordEndOfEpoch() {
	b.epochs.Add(1)
	b.touch()
}

// RecordError implements the StatsCollector interface.
func (b *BasicStatsCollector) RecordError() {
	b.errors.Add(1)
	b.touch()
}

// RecordDrainTimeout implements the StatsCollector interface.
func (b *BasicStatsCollector) RecordDrainTimeout() {
	b.drainTimeouts.Add(1)
	b.touch()
}

// GetStats implements the StatsCollector interface.
// It returns a snapshot of the current statistics.
func (b *BasicStatsCollector) GetStats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	stats := b.stats
	stats.LoopsStarted = b.loopsStarted.Load()
	stats.PrefetchesStarted = b.prefetchesStarted.Load()
	stats.PrefetchesCompleted = b.prefetchesCompleted.Load()
	stats.Minibatches = b.minibatches.Load()
	stats.Samples = b.samples.Load()
	stats.Epochs = b.epochs.Load()
	stats.Errors = b.errors.Load()
	stats.DrainTimeouts = b.drainTimeouts.Load()

	if stats.Minibatches == 0 {
		stats.MinMinibatchSamples = 0
	}

	return stats
}

// AveragePrefetchTime returns the average duration of a prefetch task.
// Returns 0 if no task has completed.
func (s *Stats) AveragePrefetchTime() time.Duration {
	if s.PrefetchesCompleted == 0 {
		return 0
	}
	return s.TotalPrefetchTime / time.Duration(s.PrefetchesCompleted)
}

// AverageWaitTime returns the average time GetMinibatch blocked per
// completed prefetch. Returns 0 if no task has completed.
func (s *Stats) AverageWaitTime() time.Duration {
	if s.PrefetchesCompleted == 0 {
		return 0
	}
	return s.TotalWaitTime / time.Duration(s.PrefetchesCompleted)
}

// AverageMinibatchSize returns the average number of samples per minibatch.
// Returns 0 if no minibatch has been delivered.
func (s *Stats) AverageMinibatchSize() float64 {
	if s.Minibatches == 0 {
		return 0
	}
	return float64(s.Samples) / float64(s.Minibatches)
}

// Overlap returns the percentage of prefetch time that was hidden behind the
// caller's own work. Synchronous prefetching stays close to 0.
func (s *Stats) Overlap() float64 {
	if s.TotalPrefetchTime <= 0 {
		return 0
	}
	hidden := s.TotalPrefetchTime - s.TotalWaitTime
	if hidden < 0 {
		return 0
	}
	return float64(hidden) / float64(s.TotalPrefetchTime) * 100
}

// ErrorRate returns the percentage of minibatch requests that failed.
// Returns 0 if nothing was requested.
func (s *Stats) ErrorRate() float64 {
	total := s.Minibatches + s.Errors
	if total == 0 {
		return 0
	}
	return float64(s.Errors) / float64(total) * 100
}

// Duration returns the total duration since statistics collection started.
func (s *Stats) Duration() time.Duration {
	return s.LastUpdateTime.Sub(s.StartTime)
}
