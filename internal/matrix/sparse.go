package matrix

// Sparse is a compressed sparse row matrix: per-cell index/value pairs.
// Single-cell expression matrices are typically >90% zeros, so this is the
// preferred in-memory form for raw counts.
type Sparse struct {
	rows, cols int
	indptr     []int // len rows+1; row i occupies [indptr[i], indptr[i+1])
	indices    []int
	values     []float32
}

// NewSparseFromDense converts a row-major dense slice into CSR form.
func NewSparseFromDense(rows, cols int, data []float32) *Sparse {
	s := &Sparse{
		rows:   rows,
		cols:   cols,
		indptr: make([]int, rows+1),
	}
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if v := data[i*cols+j]; v != 0 {
				s.indices = append(s.indices, j)
				s.values = append(s.values, v)
			}
		}
		s.indptr[i+1] = len(s.values)
	}
	return s
}

// Dims returns (rows, cols).
func (s *Sparse) Dims() (int, int) { return s.rows, s.cols }

// Row materializes row i as a dense vector.
func (s *Sparse) Row(i int) []float32 {
	row := make([]float32, s.cols)
	for p := s.indptr[i]; p < s.indptr[i+1]; p++ {
		row[s.indices[p]] = s.values[p]
	}
	return row
}

// At returns the value at (i, j).
func (s *Sparse) At(i, j int) float32 {
	for p := s.indptr[i]; p < s.indptr[i+1]; p++ {
		if s.indices[p] == j {
			return s.values[p]
		}
	}
	return 0
}

// Kind reports KindSparse.
func (s *Sparse) Kind() Kind { return KindSparse }

// NNZ returns the number of stored non-zero values.
func (s *Sparse) NNZ() int { return len(s.values) }
