package matrix

import (
	"fmt"
	"math"

	qerr "github.com/23skdu/quiver/internal/errors"
)

// Dataset is an immutable cells x features expression matrix with unique,
// order-significant cell names and unique feature names.
type Dataset struct {
	name     string
	cells    []string
	features []string
	featIdx  map[string]int
	m        Matrix
}

// NewDataset builds a dataset over row-major values using the requested
// representation. KindDisk datasets are built with FromMatrix instead.
func NewDataset(name string, cells, features []string, values []float32, kind Kind) (*Dataset, error) {
	if len(values) != len(cells)*len(features) {
		return nil, qerr.NewValidationError("NewDataset", "values",
			fmt.Sprintf("expected %d values for %d cells x %d features, got %d",
				len(cells)*len(features), len(cells), len(features), len(values)))
	}

	var m Matrix
	switch kind {
	case KindDense:
		m = NewDense(len(cells), len(features), values)
	case KindSparse:
		m = NewSparseFromDense(len(cells), len(features), values)
	default:
		return nil, qerr.NewValidationError("NewDataset", "kind",
			fmt.Sprintf("kind %v cannot be constructed from in-memory values", kind))
	}
	return FromMatrix(name, cells, features, m)
}

// FromMatrix wraps an existing Matrix (including disk-backed ones) as a
// dataset, validating name uniqueness and dimension agreement.
func FromMatrix(name string, cells, features []string, m Matrix) (*Dataset, error) {
	rows, cols := m.Dims()
	if rows != len(cells) {
		return nil, qerr.NewValidationError("FromMatrix", "cells",
			fmt.Sprintf("matrix has %d rows but %d cell names supplied", rows, len(cells)))
	}
	if cols != len(features) {
		return nil, qerr.NewValidationError("FromMatrix", "features",
			fmt.Sprintf("matrix has %d columns but %d feature names supplied", cols, len(features)))
	}
	if dup := firstDuplicate(cells); dup != "" {
		return nil, qerr.NewValidationError("FromMatrix", "cells", "duplicate cell name: "+dup)
	}
	if dup := firstDuplicate(features); dup != "" {
		return nil, qerr.NewValidationError("FromMatrix", "features", "duplicate feature name: "+dup)
	}

	featIdx := make(map[string]int, len(features))
	for i, f := range features {
		featIdx[f] = i
	}
	return &Dataset{
		name:     name,
		cells:    append([]string(nil), cells...),
		features: append([]string(nil), features...),
		featIdx:  featIdx,
		m:        m,
	}, nil
}

// Name returns the dataset name.
func (d *Dataset) Name() string { return d.name }

// NumCells returns the cell count.
func (d *Dataset) NumCells() int { return len(d.cells) }

// NumFeatures returns the feature count.
func (d *Dataset) NumFeatures() int { return len(d.features) }

// Cells returns the ordered cell names. Read-only.
func (d *Dataset) Cells() []string { return d.cells }

// Features returns the feature names. Read-only.
func (d *Dataset) Features() []string { return d.features }

// Matrix returns the underlying expression matrix.
func (d *Dataset) Matrix() Matrix { return d.m }

// Kind reports the representation of the underlying matrix.
func (d *Dataset) Kind() Kind { return d.m.Kind() }

// FeatureIndex returns the column for a feature name.
func (d *Dataset) FeatureIndex(name string) (int, bool) {
	i, ok := d.featIdx[name]
	return i, ok
}

// Row returns cell i's expression vector.
func (d *Dataset) Row(i int) []float32 { return d.m.Row(i) }

// SelectFeatures returns a new dense dataset restricted to the named
// features, in the given order. Unknown features are a validation error.
func (d *Dataset) SelectFeatures(names []string) (*Dataset, error) {
	cols := make([]int, len(names))
	for i, n := range names {
		j, ok := d.featIdx[n]
		if !ok {
			return nil, qerr.NewValidationError("SelectFeatures", "features",
				fmt.Sprintf("feature %q not present in dataset %q", n, d.name))
		}
		cols[i] = j
	}

	out := NewDense(len(d.cells), len(names), nil)
	for i := range d.cells {
		row := d.m.Row(i)
		for k, j := range cols {
			out.Set(i, k, row[j])
		}
	}
	return FromMatrix(d.name, d.cells, names, out)
}

// SelectCells returns a new dense dataset restricted to the given cell
// positions, in the given order. Out-of-range indices are a validation error.
func (d *Dataset) SelectCells(idx []int) (*Dataset, error) {
	cells := make([]string, len(idx))
	out := NewDense(len(idx), len(d.features), nil)
	for r, i := range idx {
		if i < 0 || i >= len(d.cells) {
			return nil, qerr.NewValidationError("SelectCells", "indices",
				fmt.Sprintf("cell index %d out of range [0, %d)", i, len(d.cells)))
		}
		cells[r] = d.cells[i]
		copy(out.Row(r), d.m.Row(i))
	}
	return FromMatrix(d.name, cells, d.features, out)
}

// Intersect returns the feature names present in both datasets, in a's order.
func Intersect(a, b *Dataset) []string {
	var shared []string
	for _, f := range a.features {
		if _, ok := b.featIdx[f]; ok {
			shared = append(shared, f)
		}
	}
	return shared
}

// ScaleStats holds per-feature centering/scaling statistics so a query can
// be standardized with its own (or a reference's) statistics.
type ScaleStats struct {
	Means  []float64
	Stdevs []float64
}

// Standardize centers (and, when scale is true, unit-variance scales) each
// feature column, returning a new dense dataset plus the statistics used.
// Zero-variance columns are a data error when scaling is requested.
func (d *Dataset) Standardize(scale bool) (*Dataset, *ScaleStats, error) {
	n := len(d.cells)
	p := len(d.features)
	if n == 0 {
		return nil, nil, qerr.NewDataError("Standardize", "dataset has no cells")
	}

	stats := &ScaleStats{
		Means:  make([]float64, p),
		Stdevs: make([]float64, p),
	}

	for i := 0; i < n; i++ {
		row := d.m.Row(i)
		for j := 0; j < p; j++ {
			stats.Means[j] += float64(row[j])
		}
	}
	for j := 0; j < p; j++ {
		stats.Means[j] /= float64(n)
	}

	for i := 0; i < n; i++ {
		row := d.m.Row(i)
		for j := 0; j < p; j++ {
			dv := float64(row[j]) - stats.Means[j]
			stats.Stdevs[j] += dv * dv
		}
	}
	for j := 0; j < p; j++ {
		if n > 1 {
			stats.Stdevs[j] = math.Sqrt(stats.Stdevs[j] / float64(n-1))
		}
		if scale && stats.Stdevs[j] == 0 {
			return nil, nil, qerr.NewDataError("Standardize",
				fmt.Sprintf("feature %q has zero variance", d.features[j]))
		}
	}

	out, err := d.ApplyStandardize(stats, scale)
	if err != nil {
		return nil, nil, err
	}
	return out, stats, nil
}

// ApplyStandardize standardizes this dataset with externally supplied
// statistics (e.g. projecting a query through reference scaling).
func (d *Dataset) ApplyStandardize(stats *ScaleStats, scale bool) (*Dataset, error) {
	p := len(d.features)
	if len(stats.Means) != p || len(stats.Stdevs) != p {
		return nil, qerr.NewDataError("ApplyStandardize",
			fmt.Sprintf("statistics cover %d features, dataset has %d", len(stats.Means), p))
	}

	out := NewDense(len(d.cells), p, nil)
	for i := range d.cells {
		row := d.m.Row(i)
		for j := 0; j < p; j++ {
			v := float64(row[j]) - stats.Means[j]
			if scale {
				v /= stats.Stdevs[j]
			}
			out.Set(i, j, float32(v))
		}
	}
	return FromMatrix(d.name, d.cells, d.features, out)
}

func firstDuplicate(names []string) string {
	seen := make(map[string]struct{}, len(names))
	for _, n := range names {
		if _, ok := seen[n]; ok {
			return n
		}
		seen[n] = struct{}{}
	}
	return ""
}
