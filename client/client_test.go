package client

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"testing"
	"time"

	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/23skdu/quiver/internal/integrate"
	"github.com/23skdu/quiver/internal/matrix"
	"github.com/23skdu/quiver/internal/serve"
	"github.com/23skdu/quiver/internal/transfer"
)

func clusteredDataset(t *testing.T, name string, n, nFeat, nClusters int, seed int64) (*matrix.Dataset, []string) {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))

	centers := make([][]float64, nClusters)
	for c := range centers {
		centers[c] = make([]float64, nFeat)
		for j := range centers[c] {
			centers[c][j] = 10 * rng.NormFloat64()
		}
	}

	features := make([]string, nFeat)
	for j := range features {
		features[j] = fmt.Sprintf("gene-%03d", j+1)
	}
	cells := make([]string, n)
	labels := make([]string, n)
	values := make([]float32, n*nFeat)
	for i := 0; i < n; i++ {
		cells[i] = fmt.Sprintf("%s-cell-%d", name, i+1)
		c := i % nClusters
		labels[i] = fmt.Sprintf("type-%d", c)
		for j := 0; j < nFeat; j++ {
			values[i*nFeat+j] = float32(centers[c][j] + 0.3*rng.NormFloat64())
		}
	}
	ds, err := matrix.NewDataset(name, cells, features, values, matrix.KindDense)
	require.NoError(t, err)
	return ds, labels
}

func startMappingServer(t *testing.T) string {
	t.Helper()

	ref, labels := clusteredDataset(t, "atlas", 60, 50, 3, 1)
	opts := integrate.DefaultOptions()
	opts.Dims = 10
	opts.Anchors.KFilter = 0

	srv, err := serve.NewMappingServer(serve.Config{
		Reference: ref,
		Fields:    map[string][]string{"celltype": labels},
		Options:   opts,
	})
	require.NoError(t, err)

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	gs := grpc.NewServer()
	flight.RegisterFlightServiceServer(gs, srv)
	go func() { _ = gs.Serve(lis) }()
	t.Cleanup(gs.Stop)

	time.Sleep(10 * time.Millisecond)
	return lis.Addr().String()
}

func TestClient_MapRoundtrip(t *testing.T) {
	addr := startMappingServer(t)

	c, err := New(addr)
	require.NoError(t, err)
	defer c.Close()

	// Same seed as the reference, so the query shares cluster centers.
	query, _ := clusteredDataset(t, "sample", 40, 50, 3, 1)
	// Distinct cell names: the generator prefixes them with the name.

	ctx := context.Background()
	require.NoError(t, c.PutQuery(ctx, query))

	preds, err := c.Map(ctx, "sample")
	require.NoError(t, err)
	require.Len(t, preds.Cells, 40)

	res := preds.Fields["celltype"]
	require.NotNil(t, res)
	require.Len(t, res.Labels, 40)
	for i, label := range res.Labels {
		assert.GreaterOrEqual(t, res.Scores[i], 0.0)
		assert.LessOrEqual(t, res.Scores[i], 1.0)
		if label != transfer.Unassigned {
			assert.Contains(t, []string{"type-0", "type-1", "type-2"}, label)
		}
	}
}

func TestClient_MapUnknownQuery(t *testing.T) {
	addr := startMappingServer(t)

	c, err := New(addr)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Map(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestClient_DropAndStatus(t *testing.T) {
	addr := startMappingServer(t)

	c, err := New(addr)
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	query, _ := clusteredDataset(t, "sample", 20, 50, 3, 1)
	require.NoError(t, c.PutQuery(ctx, query))

	body, err := c.Status(ctx)
	require.NoError(t, err)
	assert.Contains(t, body, `"queries":1`)
	assert.Contains(t, body, `"atlas"`)

	require.NoError(t, c.Drop(ctx, "sample"))

	err = c.Drop(ctx, "sample")
	require.Error(t, err)
	assert.Equal(t, codes.NotFound, status.Code(err))
}
