package diskmat

import (
	"fmt"
	"sync"

	qerr "github.com/23skdu/quiver/internal/errors"
	"github.com/23skdu/quiver/internal/matrix"
)

// diskMatrix streams expression rows from an open Store on demand,
// keeping one block of decoded rows cached. It implements matrix.Matrix
// with KindDisk so a directory-backed matrix can flow through the same
// pipeline stages as an in-memory one.
type diskMatrix struct {
	store *Store
	rows  int
	cols  int

	mu         sync.Mutex
	blockStart int
	block      []float32
	err        error
}

// Dataset wraps the store as a dataset without decoding all values up
// front. Cell names are read in one pass; expression rows are decoded in
// blocks as the pipeline touches them.
func (s *Store) Dataset() (*matrix.Dataset, error) {
	cells := make([]string, 0, s.numRows)
	err := s.scan(0, s.numRows, func(rec CellRecord) error {
		cells = append(cells, rec.Cell)
		return nil
	})
	if err != nil {
		return nil, err
	}
	dm := &diskMatrix{
		store:      s,
		rows:       s.numRows,
		cols:       len(s.features),
		blockStart: -1,
	}
	return matrix.FromMatrix(s.name, cells, s.features, dm)
}

func (m *diskMatrix) Dims() (int, int) { return m.rows, m.cols }

func (m *diskMatrix) Kind() matrix.Kind { return matrix.KindDisk }

// Row returns a copy of row i. A later Row call may evict the cached
// block, so views into it cannot be handed out.
func (m *diskMatrix) Row(i int) []float32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]float32, m.cols)
	if !m.ensure(i) {
		return out
	}
	copy(out, m.block[(i-m.blockStart)*m.cols:(i-m.blockStart+1)*m.cols])
	return out
}

func (m *diskMatrix) At(i, j int) float32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.ensure(i) {
		return 0
	}
	return m.block[(i-m.blockStart)*m.cols+j]
}

// Err reports the first decode failure, if any. Row and At return zeros
// after a failure; callers that need hard guarantees check Err after a
// streaming pass.
func (m *diskMatrix) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// ensure loads the block containing row i. Callers hold mu.
func (m *diskMatrix) ensure(i int) bool {
	if m.err != nil {
		return false
	}
	if m.blockStart >= 0 && i >= m.blockStart && i < m.blockStart+len(m.block)/m.cols {
		return true
	}
	from := (i / readChunkRows) * readChunkRows
	to := from + readChunkRows
	if to > m.rows {
		to = m.rows
	}
	block := make([]float32, 0, (to-from)*m.cols)
	err := m.store.scan(from, to, func(rec CellRecord) error {
		if len(rec.Expression) != m.cols {
			return qerr.NewDataError("ReadMatrix",
				fmt.Sprintf("cell %q has %d values, expected %d", rec.Cell, len(rec.Expression), m.cols))
		}
		block = append(block, rec.Expression...)
		return nil
	})
	if err != nil {
		m.err = err
		return false
	}
	m.blockStart = from
	m.block = block
	return true
}
