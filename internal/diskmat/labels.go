package diskmat

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/parquet-go/parquet-go"

	qerr "github.com/23skdu/quiver/internal/errors"
	"github.com/23skdu/quiver/internal/transfer"
)

const labelsFile = "labels.parquet"

// LabelRecord is the long-format parquet row for per-cell metadata: one
// row per (cell, field) pair.
type LabelRecord struct {
	Cell  string `parquet:"cell"`
	Field string `parquet:"field"`
	Label string `parquet:"label"`
}

// WriteLabels stores categorical fields next to a matrix directory. Each
// field's labels must be in the given cell order.
func WriteLabels(dir string, cells []string, fields map[string][]string) error {
	for field, labels := range fields {
		if len(labels) != len(cells) {
			return qerr.NewValidationError("WriteLabels", "fields",
				fmt.Sprintf("field %q has %d labels for %d cells", field, len(labels), len(cells)))
		}
	}

	f, err := os.Create(filepath.Join(dir, labelsFile))
	if err != nil {
		return qerr.WrapStorageError(err, "WriteLabels", "create parquet file")
	}
	defer f.Close()

	names := make([]string, 0, len(fields))
	for field := range fields {
		names = append(names, field)
	}
	sort.Strings(names)

	pw := parquet.NewGenericWriter[LabelRecord](f, parquet.Compression(&parquet.Zstd))
	rows := make([]LabelRecord, 0, len(cells))
	for _, field := range names {
		labels := fields[field]
		rows = rows[:0]
		for i, cell := range cells {
			rows = append(rows, LabelRecord{Cell: cell, Field: field, Label: labels[i]})
		}
		if _, err := pw.Write(rows); err != nil {
			return qerr.WrapStorageError(err, "WriteLabels", "write rows")
		}
	}
	if err := pw.Close(); err != nil {
		return qerr.WrapStorageError(err, "WriteLabels", "close parquet writer")
	}
	return nil
}

// ReadLabels loads every stored field, reordered to match cells. A cell
// with no stored label is a data error; labels for unknown cells are
// ignored.
func ReadLabels(dir string, cells []string) (map[string][]string, error) {
	path := filepath.Join(dir, labelsFile)
	f, err := os.Open(path)
	if err != nil {
		return nil, qerr.WrapStorageError(err, "ReadLabels", "open parquet file")
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return nil, qerr.WrapStorageError(err, "ReadLabels", "stat parquet file")
	}
	pf, err := parquet.OpenFile(f, st.Size())
	if err != nil {
		return nil, qerr.WrapStorageError(err, "ReadLabels", "parse parquet footer")
	}

	cellPos := make(map[string]int, len(cells))
	for i, c := range cells {
		cellPos[c] = i
	}

	fields := make(map[string][]string)
	pr := parquet.NewGenericReader[LabelRecord](pf)
	defer pr.Close()

	buf := make([]LabelRecord, readChunkRows)
	for {
		n, err := pr.Read(buf)
		for _, rec := range buf[:n] {
			i, ok := cellPos[rec.Cell]
			if !ok {
				continue
			}
			labels, ok := fields[rec.Field]
			if !ok {
				labels = make([]string, len(cells))
				fields[rec.Field] = labels
			}
			labels[i] = rec.Label
		}
		if err == io.EOF || n == 0 {
			break
		}
		if err != nil {
			return nil, qerr.WrapStorageError(err, "ReadLabels", "read rows")
		}
	}

	for field, labels := range fields {
		for i, label := range labels {
			if label == "" {
				return nil, qerr.NewDataError("ReadLabels",
					fmt.Sprintf("field %q carries no label for cell %q", field, cells[i]))
			}
		}
	}
	return fields, nil
}

// PredictionRecord is the long-format parquet row for transfer output.
type PredictionRecord struct {
	Cell  string  `parquet:"cell"`
	Field string  `parquet:"field"`
	Label string  `parquet:"label"`
	Score float64 `parquet:"score"`
}

// WritePredictions stores per-cell transfer results as one parquet file.
func WritePredictions(path string, cells []string, results map[string]*transfer.LabelResult) error {
	f, err := os.Create(path)
	if err != nil {
		return qerr.WrapStorageError(err, "WritePredictions", "create parquet file")
	}
	defer f.Close()

	names := make([]string, 0, len(results))
	for field := range results {
		names = append(names, field)
	}
	sort.Strings(names)

	pw := parquet.NewGenericWriter[PredictionRecord](f, parquet.Compression(&parquet.Zstd))
	rows := make([]PredictionRecord, 0, len(cells))
	for _, field := range names {
		res := results[field]
		if len(res.Labels) != len(cells) || len(res.Scores) != len(cells) {
			return qerr.NewValidationError("WritePredictions", "results",
				fmt.Sprintf("field %q has %d predictions for %d cells", field, len(res.Labels), len(cells)))
		}
		rows = rows[:0]
		for i, cell := range cells {
			rows = append(rows, PredictionRecord{
				Cell:  cell,
				Field: field,
				Label: res.Labels[i],
				Score: res.Scores[i],
			})
		}
		if _, err := pw.Write(rows); err != nil {
			return qerr.WrapStorageError(err, "WritePredictions", "write rows")
		}
	}
	if err := pw.Close(); err != nil {
		return qerr.WrapStorageError(err, "WritePredictions", "close parquet writer")
	}
	return nil
}
