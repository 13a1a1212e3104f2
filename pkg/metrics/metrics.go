// Package metrics provides optional Prometheus instrumentation for the
// streaming pipeline.
//
// Metrics are off by default. Call Enable once at startup to install the
// collectors; every Record helper in this package is a no-op until then, so
// library code can call them unconditionally:
//
//	metrics.Enable(
//	    metrics.WithNamespace("remoteplay"),
//	)
//	http.Handle("/metrics", metrics.Handler())
//
// Metrics collected:
//   - remoteplay_frames_total: Counter of frames sent by mode
//   - remoteplay_frame_bytes_total: Counter of payload bytes sent
//   - remoteplay_dirty_blocks: Histogram of dirty block counts per call
//   - remoteplay_encode_duration_seconds: Histogram of encode durations
//   - remoteplay_drops_total: Counter of dropped frames by reason
//   - remoteplay_reconnects_total: Counter of connect attempts by result
//   - remoteplay_acks_total: Counter of acknowledgment bytes received
//   - remoteplay_connection_state: Gauge of the transport state
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config configures the Prometheus collectors.
type Config struct {
	// Namespace is the metrics namespace (default: "remoteplay").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// EncodeBuckets are the histogram buckets for encode duration.
	// Default: prometheus.DefBuckets
	EncodeBuckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// Option configures the Prometheus collectors.
type Option func(*Config)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) Option {
	return func(c *Config) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) Option {
	return func(c *Config) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) Option {
	return func(c *Config) {
		c.ConstLabels = labels
	}
}

// WithEncodeBuckets sets the encode duration histogram buckets.
func WithEncodeBuckets(buckets []float64) Option {
	return func(c *Config) {
		c.EncodeBuckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) Option {
	return func(c *Config) {
		c.Registry = registry
	}
}

// defaultConfig returns the default metrics configuration.
func defaultConfig() Config {
	return Config{
		Namespace:     "remoteplay",
		Subsystem:     "",
		ConstLabels:   nil,
		EncodeBuckets: prometheus.DefBuckets,
		Registry:      prometheus.DefaultRegisterer,
	}
}

// collectors holds the Prometheus collectors for the pipeline.
type collectors struct {
	framesTotal     *prometheus.CounterVec
	frameBytes      prometheus.Counter
	dirtyBlocks     prometheus.Histogram
	encodeDuration  prometheus.Histogram
	dropsTotal      *prometheus.CounterVec
	reconnectsTotal *prometheus.CounterVec
	acksTotal       prometheus.Counter
	connectionState prometheus.Gauge

	gatherer prometheus.Gatherer
}

// global is the singleton collectors instance, nil until Enable.
var (
	global   *collectors
	globalMu sync.Mutex
)

// initCollectors registers the collectors with the configured registry.
func initCollectors(config Config) *collectors {
	factory := promauto.With(config.Registry)

	gatherer := prometheus.DefaultGatherer
	if g, ok := config.Registry.(prometheus.Gatherer); ok {
		gatherer = g
	}

	return &collectors{
		gatherer: gatherer,


		framesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "frames_total",
			Help:        "Total number of frames sent by mode",
			ConstLabels: config.ConstLabels,
		}, []string{"mode"}),

		frameBytes: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "frame_bytes_total",
			Help:        "Total payload bytes handed to the transport",
			ConstLabels: config.ConstLabels,
		}),

		dirtyBlocks: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "dirty_blocks",
			Help:        "Dirty block count per difference scan",
			ConstLabels: config.ConstLabels,
			Buckets:     []float64{0, 1, 10, 50, 100, 200, 400, 800, 1200},
		}),

		encodeDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "encode_duration_seconds",
			Help:        "Frame encode duration in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.EncodeBuckets,
		}),

		dropsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "drops_total",
			Help:        "Total number of frames dropped by reason",
			ConstLabels: config.ConstLabels,
		}, []string{"reason"}),

		reconnectsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "reconnects_total",
			Help:        "Total connect attempts by result",
			ConstLabels: config.ConstLabels,
		}, []string{"result"}),

		acksTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "acks_total",
			Help:        "Total acknowledgment bytes received from the peer",
			ConstLabels: config.ConstLabels,
		}),

		connectionState: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "connection_state",
			Help:        "Transport state (0 disconnected, 1 connecting, 2 connected)",
			ConstLabels: config.ConstLabels,
		}),
	}
}

// Enable installs the Prometheus collectors. The first call wins; later
// calls are no-ops so libraries and applications can both request metrics
// without double registration.
func Enable(opts ...Option) {
	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}

	globalMu.Lock()
	defer globalMu.Unlock()
	if global == nil {
		global = initCollectors(config)
	}
}

// Enabled reports whether Enable has installed the collectors.
func Enabled() bool {
	globalMu.Lock()
	defer globalMu.Unlock()
	return global != nil
}

// Disable removes the installed collectors so a later Enable can take
// effect with a fresh registry. Collectors already registered remain
// registered with their registry; Disable only stops this package from
// recording into them.
func Disable() {
	globalMu.Lock()
	defer globalMu.Unlock()
	global = nil
}

// Handler returns an http.Handler serving the collectors' registry in the
// Prometheus exposition format. When metrics are disabled it serves the
// process-wide default gatherer, so mounting it is always safe.
func Handler() http.Handler {
	globalMu.Lock()
	defer globalMu.Unlock()
	if global != nil {
		return promhttp.HandlerFor(global.gatherer, promhttp.HandlerOpts{})
	}
	return promhttp.Handler()
}

// =============================================================================
// Recording Functions
// =============================================================================

// RecordFrame records one sent frame and its payload size.
// The mode label should be a FrameMode string such as "DIFF".
func RecordFrame(mode string, bytes int) {
	if global != nil {
		global.framesTotal.WithLabelValues(mode).Inc()
		global.frameBytes.Add(float64(bytes))
	}
}

// RecordDirtyBlocks records the dirty block count of one difference scan.
func RecordDirtyBlocks(count int) {
	if global != nil {
		global.dirtyBlocks.Observe(float64(count))
	}
}

// RecordEncodeDuration records how long one frame took to encode.
func RecordEncodeDuration(d time.Duration) {
	if global != nil {
		global.encodeDuration.Observe(d.Seconds())
	}
}

// RecordDrop records a dropped frame. The reason label should be a small
// fixed set such as "queue_full" or "disconnected" to keep cardinality low.
func RecordDrop(reason string) {
	if global != nil {
		global.dropsTotal.WithLabelValues(reason).Inc()
	}
}

// RecordReconnect records the outcome of one connect attempt.
func RecordReconnect(success bool) {
	if global != nil {
		result := "failure"
		if success {
			result = "success"
		}
		global.reconnectsTotal.WithLabelValues(result).Inc()
	}
}

// RecordAck records one acknowledgment byte received from the peer.
func RecordAck() {
	if global != nil {
		global.acksTotal.Inc()
	}
}

// SetConnectionState publishes the current transport state.
func SetConnectionState(state int) {
	if global != nil {
		global.connectionState.Set(float64(state))
	}
}
