// Package diskmat persists expression matrices as zstd-compressed parquet
// directories and reads them back whole, by cell subset, or as row-group
// sized chunks. Feature names and the dataset name travel in the parquet
// file's key/value metadata so a directory is self-describing.
package diskmat

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	qerr "github.com/23skdu/quiver/internal/errors"
	"github.com/23skdu/quiver/internal/matrix"
	"github.com/23skdu/quiver/internal/metrics"
)

const (
	expressionFile = "expression.parquet"
	featMetaKey    = "quiver.features"
	nameMetaKey    = "quiver.dataset"
	featSep        = "\x1f"

	// readChunkRows bounds how many rows a streaming read decodes at once.
	readChunkRows = 4096
)

// CellRecord is the parquet row shape: one cell per row.
type CellRecord struct {
	Cell       string    `parquet:"cell"`
	Expression []float32 `parquet:"expression"`
}

// Write stores a dataset under dir, creating the directory if needed.
func Write(dir string, ds *matrix.Dataset) error {
	start := time.Now()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return qerr.WrapStorageError(err, "WriteMatrix", "create directory")
	}
	path := filepath.Join(dir, expressionFile)
	f, err := os.Create(path)
	if err != nil {
		return qerr.WrapStorageError(err, "WriteMatrix", "create parquet file")
	}
	defer f.Close()

	pw := parquet.NewGenericWriter[CellRecord](f,
		parquet.Compression(&parquet.Zstd),
		parquet.KeyValueMetadata(nameMetaKey, ds.Name()),
		parquet.KeyValueMetadata(featMetaKey, strings.Join(ds.Features(), featSep)),
	)

	rows := make([]CellRecord, 0, readChunkRows)
	cells := ds.Cells()
	for i := 0; i < ds.NumCells(); i++ {
		rows = append(rows, CellRecord{Cell: cells[i], Expression: ds.Row(i)})
		if len(rows) == readChunkRows {
			if _, err := pw.Write(rows); err != nil {
				return qerr.WrapStorageError(err, "WriteMatrix", "write rows")
			}
			rows = rows[:0]
		}
	}
	if len(rows) > 0 {
		if _, err := pw.Write(rows); err != nil {
			return qerr.WrapStorageError(err, "WriteMatrix", "write rows")
		}
	}
	if err := pw.Close(); err != nil {
		return qerr.WrapStorageError(err, "WriteMatrix", "close parquet writer")
	}

	metrics.DiskScanDurationSeconds.WithLabelValues("write").Observe(time.Since(start).Seconds())
	return nil
}

// Store is an open on-disk matrix. It holds the parquet footer metadata;
// expression rows are decoded on demand.
type Store struct {
	dir      string
	file     *os.File
	pf       *parquet.File
	size     int64
	name     string
	features []string
	numRows  int
}

// Open reads the parquet footer of the matrix stored under dir. Cell
// values are not decoded until a Read* call.
func Open(dir string) (*Store, error) {
	path := filepath.Join(dir, expressionFile)
	f, err := os.Open(path)
	if err != nil {
		return nil, qerr.WrapStorageError(err, "OpenMatrix", "open parquet file")
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, qerr.WrapStorageError(err, "OpenMatrix", "stat parquet file")
	}
	pf, err := parquet.OpenFile(f, st.Size())
	if err != nil {
		f.Close()
		return nil, qerr.WrapStorageError(err, "OpenMatrix", "parse parquet footer")
	}

	featJoined, ok := pf.Lookup(featMetaKey)
	if !ok || featJoined == "" {
		f.Close()
		return nil, qerr.NewDataError("OpenMatrix",
			fmt.Sprintf("%s carries no feature metadata", path))
	}
	name, _ := pf.Lookup(nameMetaKey)
	if name == "" {
		name = filepath.Base(dir)
	}

	return &Store{
		dir:      dir,
		file:     f,
		pf:       pf,
		size:     st.Size(),
		name:     name,
		features: strings.Split(featJoined, featSep),
		numRows:  int(pf.NumRows()),
	}, nil
}

// Close releases the underlying file handle.
func (s *Store) Close() error { return s.file.Close() }

// Name returns the stored dataset name.
func (s *Store) Name() string { return s.name }

// Features returns the stored feature names in column order.
func (s *Store) Features() []string { return s.features }

// NumCells returns the stored row count without decoding any values.
func (s *Store) NumCells() int { return s.numRows }

// ReadAll decodes the whole matrix into a dense in-memory dataset.
func (s *Store) ReadAll() (*matrix.Dataset, error) {
	start := time.Now()

	nFeat := len(s.features)
	cells := make([]string, 0, s.numRows)
	values := make([]float32, 0, s.numRows*nFeat)

	err := s.scan(0, s.numRows, func(rec CellRecord) error {
		if len(rec.Expression) != nFeat {
			return qerr.NewDataError("ReadMatrix",
				fmt.Sprintf("cell %q has %d values, expected %d", rec.Cell, len(rec.Expression), nFeat))
		}
		cells = append(cells, rec.Cell)
		values = append(values, rec.Expression...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.DiskScanBytesTotal.Add(float64(s.size))
	metrics.DiskScanDurationSeconds.WithLabelValues("read").Observe(time.Since(start).Seconds())
	return matrix.NewDataset(s.name, cells, s.features, values, matrix.KindDense)
}

// ReadCells decodes only the requested rows, in ascending row order,
// seeking over the gaps instead of decoding them.
func (s *Store) ReadCells(rows []int) (*matrix.Dataset, error) {
	start := time.Now()

	sorted := append([]int(nil), rows...)
	sort.Ints(sorted)
	for i, r := range sorted {
		if r < 0 || r >= s.numRows {
			return nil, qerr.NewValidationError("ReadMatrix", "rows",
				fmt.Sprintf("row %d out of range [0,%d)", r, s.numRows))
		}
		if i > 0 && sorted[i-1] == r {
			return nil, qerr.NewValidationError("ReadMatrix", "rows",
				fmt.Sprintf("row %d requested twice", r))
		}
	}

	nFeat := len(s.features)
	cells := make([]string, 0, len(sorted))
	values := make([]float32, 0, len(sorted)*nFeat)

	pr := parquet.NewGenericReader[CellRecord](s.pf)
	defer pr.Close()

	buf := make([]CellRecord, 1)
	for i := 0; i < len(sorted); {
		if err := pr.SeekToRow(int64(sorted[i])); err != nil {
			return nil, qerr.WrapStorageError(err, "ReadMatrix", "seek to row")
		}
		// Consecutive rows read through without reseeking.
		run := i
		for ; i < len(sorted); i++ {
			if i > run && sorted[i] != sorted[i-1]+1 {
				break
			}
			n, err := pr.Read(buf)
			if err != nil && err != io.EOF {
				return nil, qerr.WrapStorageError(err, "ReadMatrix", "read row")
			}
			if n == 0 {
				return nil, qerr.NewStorageError("ReadMatrix",
					fmt.Sprintf("row %d missing from %s", sorted[i], s.dir))
			}
			rec := buf[0]
			if len(rec.Expression) != nFeat {
				return nil, qerr.NewDataError("ReadMatrix",
					fmt.Sprintf("cell %q has %d values, expected %d", rec.Cell, len(rec.Expression), nFeat))
			}
			cells = append(cells, rec.Cell)
			values = append(values, rec.Expression...)
		}
	}

	metrics.DiskScanBytesTotal.Add(float64(len(sorted)) * float64(nFeat) * 4)
	metrics.DiskScanDurationSeconds.WithLabelValues("subset").Observe(time.Since(start).Seconds())
	return matrix.NewDataset(s.name, cells, s.features, values, matrix.KindDense)
}

// Scan streams the matrix in chunks of at most chunkRows cells. The
// callback receives the starting row offset, the chunk's cell names, and
// its row-major values; returning an error stops the scan.
func (s *Store) Scan(chunkRows int, fn func(offset int, cells []string, values []float32) error) error {
	if chunkRows <= 0 {
		chunkRows = readChunkRows
	}
	start := time.Now()

	nFeat := len(s.features)
	offset := 0
	cells := make([]string, 0, chunkRows)
	values := make([]float32, 0, chunkRows*nFeat)

	flush := func() error {
		if len(cells) == 0 {
			return nil
		}
		if err := fn(offset, cells, values); err != nil {
			return err
		}
		offset += len(cells)
		cells = cells[:0]
		values = values[:0]
		return nil
	}

	err := s.scan(0, s.numRows, func(rec CellRecord) error {
		if len(rec.Expression) != nFeat {
			return qerr.NewDataError("ScanMatrix",
				fmt.Sprintf("cell %q has %d values, expected %d", rec.Cell, len(rec.Expression), nFeat))
		}
		cells = append(cells, rec.Cell)
		values = append(values, rec.Expression...)
		if len(cells) == chunkRows {
			return flush()
		}
		return nil
	})
	if err != nil {
		return err
	}
	if err := flush(); err != nil {
		return err
	}

	metrics.DiskScanBytesTotal.Add(float64(s.size))
	metrics.DiskScanDurationSeconds.WithLabelValues("scan").Observe(time.Since(start).Seconds())
	return nil
}

// scan decodes rows [from, to) in fixed-size batches.
func (s *Store) scan(from, to int, fn func(CellRecord) error) error {
	pr := parquet.NewGenericReader[CellRecord](s.pf)
	defer pr.Close()

	if from > 0 {
		if err := pr.SeekToRow(int64(from)); err != nil {
			return qerr.WrapStorageError(err, "ScanMatrix", "seek to row")
		}
	}

	buf := make([]CellRecord, readChunkRows)
	remaining := to - from
	for remaining > 0 {
		want := remaining
		if want > len(buf) {
			want = len(buf)
		}
		n, err := pr.Read(buf[:want])
		if err != nil && err != io.EOF {
			return qerr.WrapStorageError(err, "ScanMatrix", "read rows")
		}
		if n == 0 {
			return qerr.NewStorageError("ScanMatrix",
				fmt.Sprintf("expected %d more rows in %s", remaining, s.dir))
		}
		for i := 0; i < n; i++ {
			if err := fn(buf[i]); err != nil {
				return err
			}
		}
		remaining -= n
	}
	return nil
}
