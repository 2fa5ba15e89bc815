// Package integrate sequences the pipeline stages: shared-space
// projection, neighbor search, anchor discovery, and label/embedding
// transfer. It is the only package that composes user-facing error
// messages; stage packages raise typed errors and this one attaches the
// stage they came from.
package integrate

import (
	"context"
	stderrors "errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/23skdu/quiver/internal/anchors"
	qerr "github.com/23skdu/quiver/internal/errors"
	"github.com/23skdu/quiver/internal/matrix"
	"github.com/23skdu/quiver/internal/reduction"
	"github.com/23skdu/quiver/internal/transfer"
)

// Options configures one integration or mapping run.
type Options struct {
	// Method selects the shared-space projector: "pcaproject" fits PCA on
	// the reference and projects the query through the same loadings;
	// "cca" computes a joint decomposition.
	Method string
	// Dims is the shared-space dimensionality.
	Dims int
	// Scale standardizes features to unit variance before projection.
	Scale bool
	// L2 adds unit-normalized embedding variants and matches in them.
	L2 bool
	// Features restricts projection to these anchor features; empty means
	// the intersection of reference and query feature sets.
	Features []string
	// Reference supplies a precomputed reference reduction, skipping the
	// fit. Only meaningful with the pcaproject method; the caller
	// guarantees it was computed over the anchor features.
	Reference *reduction.Reduction

	Anchors anchors.Params
	Weights transfer.Params

	// WeightReduction names the reduction used for transfer weighting.
	// Empty selects the matching space (its .l2 variant when L2 is set).
	WeightReduction string

	Logger *zap.Logger
}

// DefaultOptions mirrors the defaults used throughout the tutorials.
func DefaultOptions() Options {
	return Options{
		Method:  reduction.MethodPCAProject,
		Dims:    30,
		Scale:   true,
		L2:      true,
		Anchors: anchors.DefaultParams(),
		Weights: transfer.DefaultParams(),
	}
}

func (o Options) logger() *zap.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return zap.NewNop()
}

// FindAnchors runs projector, neighbor search, and anchor discovery over a
// reference and a query dataset, returning the anchor set consumed by the
// transfer entry points.
func FindAnchors(ctx context.Context, opts Options, ref, query *matrix.Dataset) (*anchors.AnchorSet, error) {
	if err := validateOptions(opts); err != nil {
		return nil, err
	}
	log := opts.logger()

	features := opts.Features
	if len(features) == 0 {
		features = matrix.Intersect(ref, query)
	}
	if len(features) == 0 {
		return nil, qerr.NewDataError("FindAnchors",
			fmt.Sprintf("datasets %q and %q share no features", ref.Name(), query.Name()))
	}

	refData, err := ref.SelectFeatures(features)
	if err != nil {
		return nil, stageErr(err, "FindAnchors", "features")
	}
	queryData, err := query.SelectFeatures(features)
	if err != nil {
		return nil, stageErr(err, "FindAnchors", "features")
	}
	log.Info("anchor features selected",
		zap.Int("features", len(features)),
		zap.String("reference", ref.Name()),
		zap.String("query", query.Name()))

	refRed, queryRed, err := project(ctx, opts, refData, queryData)
	if err != nil {
		return nil, stageErr(err, "FindAnchors", "projector")
	}
	if opts.L2 {
		refRed = refRed.L2Normalize()
		queryRed = queryRed.L2Normalize()
	}

	set, err := anchors.Find(ctx, log, opts.Anchors, anchors.Inputs{
		RefEmbedding:   refRed,
		QueryEmbedding: queryRed,
		RefData:        refData,
		QueryData:      queryData,
		Features:       features,
	})
	if err != nil {
		return nil, stageErr(err, "FindAnchors", "anchors")
	}
	return set, nil
}

// project builds the shared-space embeddings for both datasets.
func project(ctx context.Context, opts Options, ref, query *matrix.Dataset) (*reduction.Reduction, *reduction.Reduction, error) {
	switch opts.Method {
	case reduction.MethodPCAProject:
		refRed := opts.Reference
		if refRed == nil {
			var err error
			refRed, err = reduction.FitPCA(ctx, ref, opts.Dims, opts.Scale)
			if err != nil {
				return nil, nil, err
			}
		} else if refRed.NumCells() != ref.NumCells() {
			return nil, nil, qerr.NewValidationError("Project", "reference",
				fmt.Sprintf("precomputed reduction covers %d cells, reference has %d",
					refRed.NumCells(), ref.NumCells()))
		} else if refRed.NumDims() < opts.Dims {
			return nil, nil, qerr.NewValidationError("Project", "dims",
				fmt.Sprintf("precomputed reduction has %d dims, %d requested",
					refRed.NumDims(), opts.Dims))
		} else if refRed.NumDims() > opts.Dims {
			refRed = refRed.Truncate(opts.Dims)
		}
		queryRed, err := reduction.ProjectPCA(ctx, query, refRed, opts.Scale)
		if err != nil {
			return nil, nil, err
		}
		return refRed, queryRed, nil

	case reduction.MethodCCA:
		return reduction.FitCCA(ctx, ref, query, opts.Dims, opts.Scale)

	default:
		return nil, nil, qerr.NewValidationError("Project", "method",
			fmt.Sprintf("unknown projection method %q", opts.Method))
	}
}

// weightReduction resolves the reduction used for transfer weighting: a
// named lookup in the anchor set, restricted to the query-side rows.
func weightReduction(opts Options, set *anchors.AnchorSet) (*reduction.Reduction, error) {
	name := opts.WeightReduction
	if name == "" {
		name = opts.Method
		if opts.L2 {
			name += reduction.L2Suffix
		}
	}
	combined, ok := set.Reductions[name]
	if !ok {
		return nil, qerr.NewValidationError("TransferWeights", "weight.reduction",
			fmt.Sprintf("reduction %q not found in anchor set", name))
	}

	// Combined reductions stack reference rows before query rows.
	nr := set.Reference.NumCells()
	nq := set.Query.NumCells()
	if combined.NumCells() != nr+nq {
		return nil, qerr.NewValidationError("TransferWeights", "weight.reduction",
			fmt.Sprintf("reduction %q covers %d cells, anchor set has %d", name, combined.NumCells(), nr+nq))
	}
	dims := combined.NumDims()
	emb := matrix.NewDense(nq, dims, nil)
	for i := 0; i < nq; i++ {
		copy(emb.Row(i), combined.Embeddings.Row(nr+i))
	}
	return &reduction.Reduction{
		Name:       combined.Name,
		Key:        combined.Key,
		Embeddings: emb,
		Stdev:      combined.Stdev,
		Features:   combined.Features,
	}, nil
}

// TransferLabels propagates one or more categorical reference fields onto
// the query cells, computing anchor weights once and reusing them for
// every field. refFields maps field name to labels in reference cell
// order.
func TransferLabels(ctx context.Context, opts Options, set *anchors.AnchorSet, refFields map[string][]string) (map[string]*transfer.LabelResult, error) {
	if set == nil || set.Empty() {
		return nil, noAnchorsErr("TransferLabels")
	}
	if len(refFields) == 0 {
		return nil, qerr.NewValidationError("TransferLabels", "refdata", "no fields to transfer")
	}

	w, err := computeWeights(ctx, opts, set)
	if err != nil {
		return nil, err
	}

	out := make(map[string]*transfer.LabelResult, len(refFields))
	for field, labels := range refFields {
		res, err := transfer.Labels(ctx, opts.Weights.Chunk, set, w, field, labels)
		if err != nil {
			return nil, stageErr(err, "TransferLabels", "transfer")
		}
		out[field] = res
	}
	return out, nil
}

// TransferEmbeddings projects one or more reference coordinate sets (for
// example a UMAP layout) onto the query cells from one weight computation.
func TransferEmbeddings(ctx context.Context, opts Options, set *anchors.AnchorSet, refCoords map[string]*matrix.Dense) (map[string]*matrix.Dense, error) {
	if set == nil || set.Empty() {
		return nil, noAnchorsErr("TransferEmbeddings")
	}
	if len(refCoords) == 0 {
		return nil, qerr.NewValidationError("TransferEmbeddings", "refcoords", "no coordinates to transfer")
	}

	w, err := computeWeights(ctx, opts, set)
	if err != nil {
		return nil, err
	}

	out := make(map[string]*matrix.Dense, len(refCoords))
	for name, coords := range refCoords {
		proj, err := transfer.Embeddings(ctx, opts.Weights.Chunk, set, w, coords)
		if err != nil {
			return nil, stageErr(err, "TransferEmbeddings", "transfer")
		}
		out[name] = proj
	}
	return out, nil
}

func computeWeights(ctx context.Context, opts Options, set *anchors.AnchorSet) (*transfer.Weights, error) {
	weightRed, err := weightReduction(opts, set)
	if err != nil {
		return nil, err
	}
	w, err := transfer.Compute(ctx, opts.Weights, set, weightRed)
	if err != nil {
		return nil, stageErr(err, "TransferWeights", "weights")
	}
	return w, nil
}

// MapResult bundles everything a full mapping run produces.
type MapResult struct {
	Anchors    *anchors.AnchorSet
	Labels     map[string]*transfer.LabelResult
	Embeddings map[string]*matrix.Dense
}

// MapQuery runs the full pipeline: anchor discovery followed by label and
// embedding transfer. Either refFields or refCoords may be empty (but not
// both).
func MapQuery(ctx context.Context, opts Options, ref, query *matrix.Dataset, refFields map[string][]string, refCoords map[string]*matrix.Dense) (*MapResult, error) {
	if len(refFields) == 0 && len(refCoords) == 0 {
		return nil, qerr.NewValidationError("MapQuery", "refdata", "nothing to transfer")
	}

	set, err := FindAnchors(ctx, opts, ref, query)
	if err != nil {
		return nil, err
	}
	if set.Empty() {
		return nil, noAnchorsErr("MapQuery")
	}

	w, err := computeWeights(ctx, opts, set)
	if err != nil {
		return nil, err
	}

	res := &MapResult{Anchors: set}
	if len(refFields) > 0 {
		res.Labels = make(map[string]*transfer.LabelResult, len(refFields))
		for field, labels := range refFields {
			lr, err := transfer.Labels(ctx, opts.Weights.Chunk, set, w, field, labels)
			if err != nil {
				return nil, stageErr(err, "MapQuery", "transfer")
			}
			res.Labels[field] = lr
		}
	}
	if len(refCoords) > 0 {
		res.Embeddings = make(map[string]*matrix.Dense, len(refCoords))
		for name, coords := range refCoords {
			proj, err := transfer.Embeddings(ctx, opts.Weights.Chunk, set, w, coords)
			if err != nil {
				return nil, stageErr(err, "MapQuery", "transfer")
			}
			res.Embeddings[name] = proj
		}
	}
	return res, nil
}

func validateOptions(opts Options) error {
	if opts.Dims <= 0 {
		return qerr.NewValidationError("FindAnchors", "dims", "dims must be positive")
	}
	switch opts.Method {
	case reduction.MethodPCAProject, reduction.MethodCCA:
	default:
		return qerr.NewValidationError("FindAnchors", "method",
			fmt.Sprintf("unknown projection method %q", opts.Method))
	}
	return nil
}

func noAnchorsErr(op string) *qerr.StructuredError {
	return qerr.NewDataError(op,
		"no anchors: the anchor set is empty; nothing can be transferred")
}

// stageErr wraps a stage failure with the entry point and stage name,
// preserving the underlying error's type so callers can still classify it.
func stageErr(err error, op, stage string) error {
	errType := qerr.ErrorTypeComputation
	var se *qerr.StructuredError
	if stderrors.As(err, &se) {
		errType = se.Type
	}
	return qerr.Wrap(err, errType, op, stage+" stage failed").WithContext("stage", stage)
}
