package diskmat

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"path/filepath"
	"time"

	"github.com/apache/arrow-go/v18/arrow/array"
	duckdb "github.com/marcboeker/go-duckdb"

	qerr "github.com/23skdu/quiver/internal/errors"
	"github.com/23skdu/quiver/internal/metrics"
)

// Query executes a SQL query against the matrix stored under dir through
// an in-memory DuckDB instance. The parquet file is exposed as the view
// "expression". Returns a RecordReader and a cleanup function the caller
// must invoke when done.
func Query(ctx context.Context, dir, query string) (array.RecordReader, func(), error) {
	path := filepath.Join(dir, expressionFile)

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, nil, qerr.WrapStorageError(err, "QueryMatrix", "open duckdb")
	}
	conn, err := db.Conn(ctx)
	if err != nil {
		_ = db.Close()
		return nil, nil, qerr.WrapStorageError(err, "QueryMatrix", "open connection")
	}

	var ar *duckdb.Arrow
	err = conn.Raw(func(c interface{}) error {
		dc, ok := c.(driver.Conn)
		if !ok {
			return fmt.Errorf("not a duckdb driver connection")
		}
		var err error
		ar, err = duckdb.NewArrowFromConn(dc)
		return err
	})
	if err != nil {
		_ = conn.Close()
		_ = db.Close()
		return nil, nil, qerr.WrapStorageError(err, "QueryMatrix", "init arrow interface")
	}

	createViewSQL := fmt.Sprintf("CREATE VIEW expression AS SELECT * FROM read_parquet('%s')", path)
	if _, err := conn.ExecContext(ctx, createViewSQL); err != nil {
		_ = conn.Close()
		_ = db.Close()
		return nil, nil, qerr.WrapStorageError(err, "QueryMatrix", "create view")
	}

	start := time.Now()
	rdr, err := ar.QueryContext(ctx, query)
	if err != nil {
		_ = conn.Close()
		_ = db.Close()
		return nil, nil, qerr.WrapStorageError(err, "QueryMatrix", "execute query")
	}
	metrics.DiskScanDurationSeconds.WithLabelValues("query").Observe(time.Since(start).Seconds())

	cleanup := func() {
		rdr.Release()
		_ = conn.Close()
		_ = db.Close()
	}
	return rdr, cleanup, nil
}

// Description summarizes an on-disk matrix without loading its values.
type Description struct {
	Dataset  string
	Cells    int64
	Features int
}

// Describe reports the matrix dimensions, counting cells through DuckDB
// so the answer reflects the file on disk rather than cached state.
func Describe(ctx context.Context, dir string) (Description, error) {
	s, err := Open(dir)
	if err != nil {
		return Description{}, err
	}
	defer s.Close()

	rdr, cleanup, err := Query(ctx, dir, "SELECT count(*) AS cells FROM expression")
	if err != nil {
		return Description{}, err
	}
	defer cleanup()

	var cells int64
	for rdr.Next() {
		rec := rdr.Record()
		if rec.NumRows() == 0 {
			continue
		}
		switch col := rec.Column(0).(type) {
		case *array.Int64:
			cells = col.Value(0)
		case *array.Uint64:
			cells = int64(col.Value(0))
		default:
			return Description{}, qerr.NewStorageError("DescribeMatrix",
				fmt.Sprintf("unexpected count column type %T", col))
		}
	}
	if err := rdr.Err(); err != nil {
		return Description{}, qerr.WrapStorageError(err, "DescribeMatrix", "read count")
	}

	return Description{
		Dataset:  s.Name(),
		Cells:    cells,
		Features: len(s.Features()),
	}, nil
}
