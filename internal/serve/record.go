package serve

import (
	"fmt"
	"sort"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	qerr "github.com/23skdu/quiver/internal/errors"
	"github.com/23skdu/quiver/internal/transfer"
)

const (
	cellColName = "cell"
	scoreSuffix = ".score"
)

// PredictionsToRecord packs per-cell label predictions into one Arrow
// record: a utf8 "cell" column, then per transferred field a utf8 label
// column and a float64 "<field>.score" column. Field columns appear in
// sorted field order so the schema is deterministic. The caller owns the
// returned record.
func PredictionsToRecord(mem memory.Allocator, cells []string, results map[string]*transfer.LabelResult) (arrow.Record, error) {
	fields := make([]string, 0, len(results))
	for f := range results {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	schemaFields := make([]arrow.Field, 0, 1+2*len(fields))
	schemaFields = append(schemaFields, arrow.Field{Name: cellColName, Type: arrow.BinaryTypes.String})
	for _, f := range fields {
		schemaFields = append(schemaFields,
			arrow.Field{Name: f, Type: arrow.BinaryTypes.String},
			arrow.Field{Name: f + scoreSuffix, Type: arrow.PrimitiveTypes.Float64},
		)
	}
	schema := arrow.NewSchema(schemaFields, nil)

	b := array.NewRecordBuilder(mem, schema)
	defer b.Release()

	cellBuilder := b.Field(0).(*array.StringBuilder)
	for _, c := range cells {
		cellBuilder.Append(c)
	}
	for i, f := range fields {
		res := results[f]
		if len(res.Labels) != len(cells) || len(res.Scores) != len(cells) {
			return nil, qerr.NewDataError("PredictionsToRecord",
				fmt.Sprintf("field %q has %d predictions for %d cells", f, len(res.Labels), len(cells)))
		}
		labelBuilder := b.Field(1 + 2*i).(*array.StringBuilder)
		scoreBuilder := b.Field(2 + 2*i).(*array.Float64Builder)
		for q := range cells {
			labelBuilder.Append(res.Labels[q])
			scoreBuilder.Append(res.Scores[q])
		}
	}
	return b.NewRecord(), nil
}

// PredictionsFromRecord is the inverse of PredictionsToRecord.
func PredictionsFromRecord(rec arrow.Record) ([]string, map[string]*transfer.LabelResult, error) {
	schema := rec.Schema()
	n := int(rec.NumRows())

	cellIdx := schema.FieldIndices(cellColName)
	if len(cellIdx) == 0 {
		return nil, nil, qerr.NewDataError("PredictionsFromRecord",
			fmt.Sprintf("record carries no %q column", cellColName))
	}
	cellArr, ok := rec.Column(cellIdx[0]).(*array.String)
	if !ok {
		return nil, nil, qerr.NewDataError("PredictionsFromRecord", "cell column is not utf8")
	}
	cells := make([]string, n)
	for i := 0; i < n; i++ {
		cells[i] = cellArr.Value(i)
	}

	results := make(map[string]*transfer.LabelResult)
	for i, f := range schema.Fields() {
		if f.Name == cellColName || f.Type.ID() != arrow.STRING || f.Name == "" {
			continue
		}
		scoreIdx := schema.FieldIndices(f.Name + scoreSuffix)
		if len(scoreIdx) == 0 {
			continue
		}
		labelArr, ok := rec.Column(i).(*array.String)
		if !ok {
			continue
		}
		scoreArr, ok := rec.Column(scoreIdx[0]).(*array.Float64)
		if !ok {
			return nil, nil, qerr.NewDataError("PredictionsFromRecord",
				fmt.Sprintf("score column for field %q is not float64", f.Name))
		}

		res := &transfer.LabelResult{
			Field:  f.Name,
			Labels: make([]string, n),
			Scores: make([]float64, n),
		}
		for q := 0; q < n; q++ {
			res.Labels[q] = labelArr.Value(q)
			res.Scores[q] = scoreArr.Value(q)
		}
		results[f.Name] = res
	}
	return cells, results, nil
}
