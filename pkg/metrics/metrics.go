package metrics

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	Namespace = "indexer"

	// Status label values for success/error metrics
	StatusSuccess = "success"
	StatusError   = "error"

	// Outcome label values for coalesced calls
	OutcomeExecuted = "executed"
	OutcomeShared   = "shared"

	Coalesce = "coalesce"
	Bulk     = "bulk"
	Ingest   = "ingest"
)

// Labels holds constant labels applied to all metrics.
// These are useful for distinguishing metrics from multiple indexer instances.
type Labels struct {
	EVMChainID    uint64 // EVM chain ID (e.g., 43114 for C-Chain mainnet)
	Chain         string // Chain ticker (e.g., "ETH", "MATIC")
	Network       string // Network name (e.g., "mainnet", "regtest")
	Environment   string // Deployment environment (e.g., "production", "staging", "development")
	Region        string // Cloud region (e.g., "us-east-1", "eu-west-1")
	CloudProvider string // Cloud provider (e.g., "aws", "oci", "gcp")
}

// toPrometheusLabels converts Labels to prometheus.Labels map.
// Only non-empty labels are included to avoid empty label values.
func (l Labels) toPrometheusLabels() prometheus.Labels {
	labels := prometheus.Labels{}
	if l.EVMChainID != 0 {
		labels["evm_chain_id"] = strconv.FormatUint(l.EVMChainID, 10)
	}
	if l.Chain != "" {
		labels["chain"] = l.Chain
	}
	if l.Network != "" {
		labels["network"] = l.Network
	}
	if l.Environment != "" {
		labels["environment"] = l.Environment
	}
	if l.Region != "" {
		labels["region"] = l.Region
	}
	if l.CloudProvider != "" {
		labels["cloud_provider"] = l.CloudProvider
	}
	return labels
}

type Metrics struct {
	// Request coalescing
	coalescedCalls    *prometheus.CounterVec
	coalesceInFlight  prometheus.Gauge
	coalesceKeyErrors prometheus.Counter

	// Bulk persistence pipeline
	bulkImports       *prometheus.CounterVec
	bulkChunks        *prometheus.CounterVec
	bulkOperations    *prometheus.CounterVec
	bulkChunkDuration *prometheus.HistogramVec

	// RPC metrics
	rpcCalls    *prometheus.CounterVec
	rpcDuration *prometheus.HistogramVec
	rpcInFlight prometheus.Gauge

	// Kafka ingestion
	ingestMessages  *prometheus.CounterVec
	ingestFlushes   *prometheus.CounterVec
	ingestBatchSize prometheus.Histogram

	// Storage readiness
	storageReady *prometheus.GaugeVec
}

// New creates a new Metrics instance and registers all metrics with the provided registerer.
// Returns an error if any metric registration fails.
// For metrics with constant labels (e.g., evm_chain_id), use NewWithLabels instead.
func New(reg prometheus.Registerer) (*Metrics, error) {
	return NewWithLabels(reg, Labels{})
}

// NewWithLabels creates a new Metrics instance with constant labels applied to all metrics.
// This is useful when running multiple indexer instances and needing to filter by dimensions like evm_chain_id.
func NewWithLabels(reg prometheus.Registerer, labels Labels) (*Metrics, error) {
	promLabels := labels.toPrometheusLabels()
	if len(promLabels) > 0 {
		reg = prometheus.WrapRegistererWith(promLabels, reg)
	}

	return newMetrics(reg)
}

func newMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		coalescedCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Coalesce,
			Name:      "calls_total",
			Help:      "Total coalesced calls by operation and outcome (executed or shared)",
		}, []string{"operation", "outcome"}),
		coalesceInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: Coalesce,
			Name:      "in_flight",
			Help:      "Number of distinct coalesced operations currently executing",
		}),
		coalesceKeyErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Coalesce,
			Name:      "key_errors_total",
			Help:      "Total calls rejected because their arguments could not be serialized",
		}),
		bulkImports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Bulk,
			Name:      "imports_total",
			Help:      "Total bulk imports by collection and status",
		}, []string{"collection", "status"}),
		bulkChunks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Bulk,
			Name:      "chunks_total",
			Help:      "Total bulk-write chunks by collection and status",
		}, []string{"collection", "status"}),
		bulkOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Bulk,
			Name:      "operations_total",
			Help:      "Total write operations committed by collection",
		}, []string{"collection"}),
		bulkChunkDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: Bulk,
			Name:      "chunk_duration_seconds",
			Help:      "Duration of a single bulk-write request",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"collection"}),
		rpcCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "rpc",
			Name:      "calls_total",
			Help:      "Total RPC calls by method and status",
		}, []string{"method", "status"}),
		rpcDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "rpc",
			Name:      "duration_seconds",
			Help:      "RPC call duration in seconds",
			// Buckets cover typical RPC latencies: 1ms, 5ms, 10ms, 25ms, 50ms,
			// 100ms, 250ms, 500ms, 1s, 2.5s, 5s, 10s
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"method"}),
		rpcInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "rpc",
			Name:      "in_flight",
			Help:      "Number of RPC calls currently in progress",
		}),
		ingestMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Ingest,
			Name:      "messages_total",
			Help:      "Total Kafka messages received by status (decoded or error)",
		}, []string{"status"}),
		ingestFlushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Ingest,
			Name:      "flushes_total",
			Help:      "Total ingest batch flushes by status",
		}, []string{"status"}),
		ingestBatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: Ingest,
			Name:      "batch_size",
			Help:      "Number of blocks per ingest flush",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
		storageReady: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "storage",
			Name:      "ready",
			Help:      "1 when the named storage connection is ready, 0 otherwise",
		}, []string{"storage"}),
	}

	err := errors.Join(
		reg.Register(m.coalescedCalls),
		reg.Register(m.coalesceInFlight),
		reg.Register(m.coalesceKeyErrors),
		reg.Register(m.bulkImports),
		reg.Register(m.bulkChunks),
		reg.Register(m.bulkOperations),
		reg.Register(m.bulkChunkDuration),
		reg.Register(m.rpcCalls),
		reg.Register(m.rpcDuration),
		reg.Register(m.rpcInFlight),
		reg.Register(m.ingestMessages),
		reg.Register(m.ingestFlushes),
		reg.Register(m.ingestBatchSize),
		reg.Register(m.storageReady),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

func status(err error) string {
	if err != nil {
		return StatusError
	}
	return StatusSuccess
}

// RecordCoalescedCall records a call that either executed the operation or joined an in-flight one.
func (m *Metrics) RecordCoalescedCall(operation string, executed bool) {
	if m == nil {
		return
	}
	outcome := OutcomeShared
	if executed {
		outcome = OutcomeExecuted
	}
	m.coalescedCalls.WithLabelValues(operation, outcome).Inc()
}

// IncCoalesceInFlight increments the coalesced in-flight gauge.
func (m *Metrics) IncCoalesceInFlight() {
	if m == nil {
		return
	}
	m.coalesceInFlight.Inc()
}

// DecCoalesceInFlight decrements the coalesced in-flight gauge.
func (m *Metrics) DecCoalesceInFlight() {
	if m == nil {
		return
	}
	m.coalesceInFlight.Dec()
}

// IncCoalesceKeyError counts a call whose arguments could not be serialized.
func (m *Metrics) IncCoalesceKeyError() {
	if m == nil {
		return
	}
	m.coalesceKeyErrors.Inc()
}

// RecordBulkChunk records a single bulk-write request against a collection.
func (m *Metrics) RecordBulkChunk(collection string, size int, err error, durationSeconds float64) {
	if m == nil {
		return
	}
	m.bulkChunks.WithLabelValues(collection, status(err)).Inc()
	m.bulkChunkDuration.WithLabelValues(collection).Observe(durationSeconds)
	if err == nil {
		m.bulkOperations.WithLabelValues(collection).Add(float64(size))
	}
}

// RecordBulkImport records the final outcome of a bulk import.
func (m *Metrics) RecordBulkImport(collection string, err error) {
	if m == nil {
		return
	}
	m.bulkImports.WithLabelValues(collection, status(err)).Inc()
}

// IncRPCInFlight increments the RPC in-flight gauge.
func (m *Metrics) IncRPCInFlight() {
	if m == nil {
		return
	}
	m.rpcInFlight.Inc()
}

// DecRPCInFlight decrements the RPC in-flight gauge.
func (m *Metrics) DecRPCInFlight() {
	if m == nil {
		return
	}
	m.rpcInFlight.Dec()
}

// RecordRPCCall records an RPC call with its method, status, and duration.
func (m *Metrics) RecordRPCCall(method string, err error, durationSeconds float64) {
	if m == nil {
		return
	}
	m.rpcCalls.WithLabelValues(method, status(err)).Inc()
	m.rpcDuration.WithLabelValues(method).Observe(durationSeconds)
}

// RecordIngestMessage records a consumed Kafka message and whether it decoded.
func (m *Metrics) RecordIngestMessage(err error) {
	if m == nil {
		return
	}
	m.ingestMessages.WithLabelValues(status(err)).Inc()
}

// RecordIngestFlush records an ingest flush of size blocks.
func (m *Metrics) RecordIngestFlush(size int, err error) {
	if m == nil {
		return
	}
	m.ingestFlushes.WithLabelValues(status(err)).Inc()
	m.ingestBatchSize.Observe(float64(size))
}

// SetStorageReady sets the readiness gauge for the named storage connection.
func (m *Metrics) SetStorageReady(name string, ready bool) {
	if m == nil {
		return
	}
	v := 0.0
	if ready {
		v = 1
	}
	m.storageReady.WithLabelValues(name).Set(v)
}
