package matrix

// Dense is a flat row-major float32 matrix.
type Dense struct {
	rows, cols int
	data       []float32
}

// NewDense wraps data (len rows*cols, row-major) as a Dense matrix.
// A nil data slice allocates a zeroed matrix.
func NewDense(rows, cols int, data []float32) *Dense {
	if data == nil {
		data = make([]float32, rows*cols)
	}
	if len(data) != rows*cols {
		panic("matrix: dense data length mismatch")
	}
	return &Dense{rows: rows, cols: cols, data: data}
}

// Dims returns (rows, cols).
func (d *Dense) Dims() (int, int) { return d.rows, d.cols }

// Row returns a view of row i. Callers must not write through it.
func (d *Dense) Row(i int) []float32 {
	return d.data[i*d.cols : (i+1)*d.cols]
}

// At returns the value at (i, j).
func (d *Dense) At(i, j int) float32 { return d.data[i*d.cols+j] }

// Set writes the value at (i, j). Only constructors use this before a
// matrix is published.
func (d *Dense) Set(i, j int, v float32) { d.data[i*d.cols+j] = v }

// Kind reports KindDense.
func (d *Dense) Kind() Kind { return KindDense }

// Data returns the backing slice (row-major). Read-only.
func (d *Dense) Data() []float32 { return d.data }

// Clone returns a deep copy.
func (d *Dense) Clone() *Dense {
	data := make([]float32, len(d.data))
	copy(data, d.data)
	return &Dense{rows: d.rows, cols: d.cols, data: data}
}
