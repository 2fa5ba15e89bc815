package diskmat

import (
	"os"

	"github.com/parquet-go/parquet-go"

	"github.com/23skdu/quiver/internal/anchors"
	qerr "github.com/23skdu/quiver/internal/errors"
)

// AnchorTableRecord is the parquet row for a persisted anchor table. Cell
// names are carried alongside the indices so the table stays readable
// without the datasets at hand.
type AnchorTableRecord struct {
	RefCell    string  `parquet:"ref_cell"`
	QueryCell  string  `parquet:"query_cell"`
	RefIndex   int32   `parquet:"ref_index"`
	QueryIndex int32   `parquet:"query_index"`
	Score      float64 `parquet:"score"`
}

// WriteAnchors persists an anchor table as one parquet file.
func WriteAnchors(path string, set *anchors.AnchorSet) error {
	f, err := os.Create(path)
	if err != nil {
		return qerr.WrapStorageError(err, "WriteAnchors", "create parquet file")
	}
	defer f.Close()

	refCells := set.Reference.Cells()
	queryCells := set.Query.Cells()

	rows := make([]AnchorTableRecord, set.Len())
	for i, a := range set.Anchors {
		rows[i] = AnchorTableRecord{
			RefCell:    refCells[a.RefIndex],
			QueryCell:  queryCells[a.QueryIndex],
			RefIndex:   a.RefIndex,
			QueryIndex: a.QueryIndex,
			Score:      a.Score,
		}
	}

	pw := parquet.NewGenericWriter[AnchorTableRecord](f, parquet.Compression(&parquet.Zstd))
	if len(rows) > 0 {
		if _, err := pw.Write(rows); err != nil {
			return qerr.WrapStorageError(err, "WriteAnchors", "write rows")
		}
	}
	if err := pw.Close(); err != nil {
		return qerr.WrapStorageError(err, "WriteAnchors", "close parquet writer")
	}
	return nil
}
