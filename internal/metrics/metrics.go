package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ReductionDurationSeconds measures time spent fitting or projecting
	// a dimensional reduction, by method ("pca", "pcaproject", "cca")
	ReductionDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "quiver_reduction_duration_seconds",
			Help:    "Duration of dimensional reduction fits and projections",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// NeighborBuildDurationSeconds measures kNN index construction time by backend
	NeighborBuildDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "quiver_neighbor_build_duration_seconds",
			Help:    "Duration of neighbor index construction",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend"},
	)

	// NeighborSearchesTotal counts kNN searches by backend
	NeighborSearchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quiver_neighbor_searches_total",
			Help: "Total number of kNN searches performed",
		},
		[]string{"backend"},
	)

	// AnchorsFoundTotal counts anchors surviving each pipeline stage
	AnchorsFoundTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quiver_anchors_found_total",
			Help: "Total anchors retained, by stage (mnn, filtered, scored)",
		},
		[]string{"stage"},
	)

	// AnchorFindDurationSeconds measures end-to-end anchor discovery time
	AnchorFindDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "quiver_anchor_find_duration_seconds",
			Help:    "Duration of anchor discovery (projection through scoring)",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
	)

	// TransferCellsTotal counts query cells receiving predictions, by outcome
	TransferCellsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quiver_transfer_cells_total",
			Help: "Total query cells assigned predictions (assigned, unassigned)",
		},
		[]string{"outcome"},
	)

	// TransferDurationSeconds measures label/embedding transfer time
	TransferDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "quiver_transfer_duration_seconds",
			Help:    "Duration of label and embedding transfer",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	// SketchDurationSeconds measures sketch sampling time by method
	SketchDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "quiver_sketch_duration_seconds",
			Help:    "Duration of sketch sampling",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// SketchCellsSampledTotal counts cells selected into sketches
	SketchCellsSampledTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "quiver_sketch_cells_sampled_total",
			Help: "Total cells selected into sketches",
		},
	)

	// DiskScanBytesTotal tracks bytes read from on-disk matrices
	DiskScanBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "quiver_disk_scan_bytes_total",
			Help: "Total bytes read from on-disk expression matrices",
		},
	)

	// DiskScanDurationSeconds measures on-disk matrix scan time by operation
	DiskScanDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "quiver_disk_scan_duration_seconds",
			Help:    "Duration of on-disk matrix scans",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"operation"},
	)

	// FlightOperationsTotal counts Flight operations on the mapping daemon
	FlightOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quiver_flight_operations_total",
			Help: "The total number of processed Arrow Flight operations",
		},
		[]string{"method", "status"},
	)

	// FlightDurationSeconds measures the latency of Flight operations
	FlightDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "quiver_flight_duration_seconds",
			Help:    "Duration of Arrow Flight operations",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// PipelineWarningsTotal counts clamp-and-warn degenerate results
	PipelineWarningsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quiver_pipeline_warnings_total",
			Help: "Total degenerate-result warnings (e.g. k.filter clamped)",
		},
		[]string{"stage"},
	)
)
