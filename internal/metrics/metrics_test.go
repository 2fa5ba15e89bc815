package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestAnchorsFoundTotal(t *testing.T) {
	before := testutil.ToFloat64(AnchorsFoundTotal.WithLabelValues("mnn"))
	AnchorsFoundTotal.WithLabelValues("mnn").Add(128)
	after := testutil.ToFloat64(AnchorsFoundTotal.WithLabelValues("mnn"))
	assert.Equal(t, before+128, after)
}

func TestTransferCellsTotal_Outcomes(t *testing.T) {
	TransferCellsTotal.WithLabelValues("assigned").Inc()
	TransferCellsTotal.WithLabelValues("unassigned").Inc()

	assert.GreaterOrEqual(t, testutil.ToFloat64(TransferCellsTotal.WithLabelValues("assigned")), 1.0)
	assert.GreaterOrEqual(t, testutil.ToFloat64(TransferCellsTotal.WithLabelValues("unassigned")), 1.0)
}

func TestHistogramsObserve(t *testing.T) {
	// Observing must not panic; histograms have no ToFloat64 accessor.
	ReductionDurationSeconds.WithLabelValues("pca").Observe(0.25)
	NeighborBuildDurationSeconds.WithLabelValues("exact").Observe(0.1)
	SketchDurationSeconds.WithLabelValues("leverage").Observe(1.5)
	AnchorFindDurationSeconds.Observe(2.0)
}

func TestDiskScanBytesTotal(t *testing.T) {
	before := testutil.ToFloat64(DiskScanBytesTotal)
	DiskScanBytesTotal.Add(4096)
	assert.Equal(t, before+4096, testutil.ToFloat64(DiskScanBytesTotal))
}
