package matrix

import (
	"fmt"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	qerr "github.com/23skdu/quiver/internal/errors"
)

// Arrow interchange for datasets: one utf8 "cell" column plus one
// FixedSizeList<float32> "expression" column, with feature names carried
// in schema metadata. This is the wire shape used by the Flight surface
// and the parquet bridge.

const (
	cellColName = "cell"
	exprColName = "expression"
	featMetaKey = "quiver.features"
	nameMetaKey = "quiver.dataset"

	// featSep separates feature names in schema metadata. Gene identifiers
	// never contain control characters.
	featSep = "\x1f"
)

// ToRecord converts a dataset into an Arrow record. The caller owns the
// returned record and must Release it.
func ToRecord(mem memory.Allocator, d *Dataset) arrow.Record {
	nCells := d.NumCells()
	nFeat := d.NumFeatures()

	cellBuilder := array.NewStringBuilder(mem)
	defer cellBuilder.Release()
	for _, c := range d.Cells() {
		cellBuilder.Append(c)
	}
	cellArr := cellBuilder.NewArray()
	defer cellArr.Release()

	exprBuilder := array.NewFixedSizeListBuilder(mem, int32(nFeat), arrow.PrimitiveTypes.Float32)
	defer exprBuilder.Release()
	vb := exprBuilder.ValueBuilder().(*array.Float32Builder)
	for i := 0; i < nCells; i++ {
		vb.AppendValues(d.Row(i), nil)
		exprBuilder.Append(true)
	}
	exprArr := exprBuilder.NewArray()
	defer exprArr.Release()

	meta := arrow.NewMetadata(
		[]string{featMetaKey, nameMetaKey},
		[]string{strings.Join(d.Features(), featSep), d.Name()},
	)
	schema := arrow.NewSchema([]arrow.Field{
		{Name: cellColName, Type: arrow.BinaryTypes.String},
		{Name: exprColName, Type: exprArr.DataType()},
	}, &meta)

	return array.NewRecord(schema, []arrow.Array{cellArr, exprArr}, int64(nCells))
}

// FromRecord reconstructs a dense dataset from a record produced by
// ToRecord (or any record with matching columns and metadata).
func FromRecord(rec arrow.Record) (*Dataset, error) {
	schema := rec.Schema()

	cellIdx := schema.FieldIndices(cellColName)
	exprIdx := schema.FieldIndices(exprColName)
	if len(cellIdx) == 0 || len(exprIdx) == 0 {
		return nil, qerr.NewDataError("FromRecord",
			fmt.Sprintf("record must carry %q and %q columns", cellColName, exprColName))
	}

	cellArr, ok := rec.Column(cellIdx[0]).(*array.String)
	if !ok {
		return nil, qerr.NewDataError("FromRecord", "cell column is not utf8")
	}
	listArr, ok := rec.Column(exprIdx[0]).(*array.FixedSizeList)
	if !ok {
		return nil, qerr.NewDataError("FromRecord", "expression column is not a fixed size list")
	}

	width := int(listArr.DataType().(*arrow.FixedSizeListType).Len())
	floatArr, ok := listArr.ListValues().(*array.Float32)
	if !ok {
		return nil, qerr.NewDataError("FromRecord", "expression values are not float32")
	}

	meta := schema.Metadata()
	var features []string
	if i := meta.FindKey(featMetaKey); i >= 0 {
		features = strings.Split(meta.Values()[i], featSep)
	} else {
		// Anonymous features keep projection usable when metadata is absent.
		features = make([]string, width)
		for j := range features {
			features[j] = fmt.Sprintf("feature-%d", j+1)
		}
	}
	if len(features) != width {
		return nil, qerr.NewDataError("FromRecord",
			fmt.Sprintf("metadata lists %d features but expression width is %d", len(features), width))
	}

	name := "query"
	if i := meta.FindKey(nameMetaKey); i >= 0 {
		name = meta.Values()[i]
	}

	n := int(rec.NumRows())
	cells := make([]string, n)
	for i := 0; i < n; i++ {
		cells[i] = cellArr.Value(i)
	}

	values := make([]float32, n*width)
	copy(values, floatArr.Float32Values()[listArr.Offset()*width:])

	return NewDataset(name, cells, features, values, KindDense)
}
