// Package telemetry provides Prometheus metrics and the ops HTTP endpoint
// that exposes them alongside a health check.
package telemetry

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	ContentPolls  prometheus.Counter
	MetadataPolls prometheus.Counter
	PollErrors    prometheus.Counter
	MergedTotal   prometheus.Counter
	DupesTotal    prometheus.Counter
	PrunedTotal   prometheus.Counter
	FlushesTotal  prometheus.Counter
	RecordedTotal prometheus.Counter

	// Histograms (seconds)
	FetchDuration prometheus.Observer

	// Gauges
	LogSizeGauge        prometheus.Gauge
	ActiveSourcesGauge  prometheus.Gauge
	RetiredSourcesGauge prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		ContentPolls = promauto.NewCounter(prometheus.CounterOpts{Name: "chatloom_content_polls_total", Help: "Content poll cycles completed"})
		MetadataPolls = promauto.NewCounter(prometheus.CounterOpts{Name: "chatloom_metadata_polls_total", Help: "Metadata poll cycles completed"})
		PollErrors = promauto.NewCounter(prometheus.CounterOpts{Name: "chatloom_poll_errors_total", Help: "Per-source fetch failures"})
		MergedTotal = promauto.NewCounter(prometheus.CounterOpts{Name: "chatloom_messages_merged_total", Help: "Messages inserted into the merge log"})
		DupesTotal = promauto.NewCounter(prometheus.CounterOpts{Name: "chatloom_duplicates_total", Help: "Messages dropped as duplicates"})
		PrunedTotal = promauto.NewCounter(prometheus.CounterOpts{Name: "chatloom_messages_pruned_total", Help: "Messages evicted by compaction"})
		FlushesTotal = promauto.NewCounter(prometheus.CounterOpts{Name: "chatloom_transcript_flushes_total", Help: "Transcript flush cycles"})
		RecordedTotal = promauto.NewCounter(prometheus.CounterOpts{Name: "chatloom_messages_recorded_total", Help: "Messages written to the transcript"})
		FetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "chatloom_fetch_duration_seconds", Help: "Per-source fetch duration seconds", Buckets: prometheus.DefBuckets})
		LogSizeGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "chatloom_merge_log_size", Help: "Messages currently held in the merge log"})
		ActiveSourcesGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "chatloom_sources_active", Help: "Sources still being polled"})
		RetiredSourcesGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "chatloom_sources_retired", Help: "Sources retired as not live"})
	})
}

// The helpers below are safe to call whether or not Init ran; a run
// without the ops endpoint skips registration entirely.

// CountPoll records one completed poll cycle for the named loop.
func CountPoll(loop string) {
	switch {
	case loop == "metadata" && MetadataPolls != nil:
		MetadataPolls.Inc()
	case loop == "content" && ContentPolls != nil:
		ContentPolls.Inc()
	}
}

// CountPollError records one per-source fetch failure.
func CountPollError() {
	if PollErrors != nil {
		PollErrors.Inc()
	}
}

// CountMerge records one merge cycle's insert statistics.
func CountMerge(added, duplicates, pruned int) {
	if MergedTotal != nil {
		MergedTotal.Add(float64(added))
	}
	if DupesTotal != nil {
		DupesTotal.Add(float64(duplicates))
	}
	if PrunedTotal != nil {
		PrunedTotal.Add(float64(pruned))
	}
}

// CountFlush records one transcript flush and how many rows it wrote.
func CountFlush(saved int) {
	if FlushesTotal != nil {
		FlushesTotal.Inc()
	}
	if RecordedTotal != nil {
		RecordedTotal.Add(float64(saved))
	}
}

// ObserveFetch records one per-source fetch duration.
func ObserveFetch(d time.Duration) {
	if FetchDuration != nil {
		FetchDuration.Observe(d.Seconds())
	}
}

// SetLogSize records the merge log's current length.
func SetLogSize(n int) {
	if LogSizeGauge != nil {
		LogSizeGauge.Set(float64(n))
	}
}

// SetSourceStates records how many sources are active versus retired.
func SetSourceStates(active, retired int) {
	if ActiveSourcesGauge != nil {
		ActiveSourcesGauge.Set(float64(active))
	}
	if RetiredSourcesGauge != nil {
		RetiredSourcesGauge.Set(float64(retired))
	}
}
