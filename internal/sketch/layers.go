package sketch

import (
	"context"
	"fmt"
	"sort"

	qerr "github.com/23skdu/quiver/internal/errors"
	"github.com/23skdu/quiver/internal/matrix"
)

// LayerSketch pairs a layer name with its sketch.
type LayerSketch struct {
	Layer  string
	Sketch *Sketch
}

// ByLayer sketches each layer of a sample-split dataset independently, so
// every sample contributes cells regardless of its size. Layers smaller
// than nPerLayer are an error, consistent with Sample. Results come back
// in sorted layer-name order.
func ByLayer(ctx context.Context, layers map[string]*matrix.Dataset, nPerLayer int, method Method, seed int64) ([]LayerSketch, error) {
	if len(layers) == 0 {
		return nil, qerr.NewDataError("SketchByLayer", "no layers supplied")
	}

	names := make([]string, 0, len(layers))
	for name := range layers {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]LayerSketch, 0, len(names))
	for i, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		// Distinct per-layer seeds keep layers independent but the whole
		// run reproducible.
		sk, err := Sample(ctx, layers[name], nPerLayer, method, seed+int64(i))
		if err != nil {
			return nil, qerr.WrapDataError(err, "SketchByLayer",
				fmt.Sprintf("layer %q", name))
		}
		out = append(out, LayerSketch{Layer: name, Sketch: sk})
	}
	return out, nil
}
