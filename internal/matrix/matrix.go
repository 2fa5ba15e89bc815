// Package matrix provides the cells x features dataset model shared by the
// integration pipeline. Expression values live behind a closed set of
// representations (dense, sparse, on-disk) implementing one capability
// interface; every transformation returns a new value rather than mutating
// a shared structure.
package matrix

// Kind selects the expression-matrix representation. It is passed
// explicitly to constructors; there is no process-wide default.
type Kind int

const (
	// KindDense stores values as a flat row-major float32 slice.
	KindDense Kind = iota
	// KindSparse stores values in compressed sparse row form.
	KindSparse
	// KindDisk streams values from a directory-backed parquet matrix.
	KindDisk
)

func (k Kind) String() string {
	switch k {
	case KindDense:
		return "dense"
	case KindSparse:
		return "sparse"
	case KindDisk:
		return "disk"
	default:
		return "unknown"
	}
}

// Matrix is the capability interface every representation implements.
// Rows are cells, columns are features.
type Matrix interface {
	// Dims returns (cells, features).
	Dims() (int, int)
	// Row returns cell i's expression vector. The returned slice must be
	// treated as read-only; dense implementations may return a view.
	Row(i int) []float32
	// At returns the value for cell i, feature j.
	At(i, j int) float32
	// Kind reports the representation.
	Kind() Kind
}
