package warehouse

// Type is the backend-neutral column type vocabulary. Each backend maps these
// to its own DDL types and value encodings.
type Type string

const (
	TypeText      Type = "text"
	TypeInt       Type = "int"
	TypeBigInt    Type = "bigint"
	TypeFloat     Type = "float"
	TypeTimestamp Type = "timestamp"
	TypeDate      Type = "date"
)

// Column describes one column of a RowSet.
type Column struct {
	Name string
	Type Type
}

// RowSet is the in-memory table snapshot exchanged with a Store. Values are
// plain Go scalars: nil, string, int64, float64, time.Time. Stages read values
// through the As* coercers in values.go rather than type-asserting, because
// what a backend hands back for a given column type differs (sqlite returns
// TEXT for timestamps, mssql returns []byte for some strings).
type RowSet struct {
	Columns []Column
	Rows    [][]any
}

// NewRowSet allocates a RowSet with the given columns and row capacity.
func NewRowSet(cols []Column, capacity int) *RowSet {
	return &RowSet{Columns: cols, Rows: make([][]any, 0, capacity)}
}

// ColumnIndex returns the position of the named column, or -1.
func (rs *RowSet) ColumnIndex(name string) int {
	for i, c := range rs.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Names returns the column names in declaration order.
func (rs *RowSet) Names() []string {
	out := make([]string, len(rs.Columns))
	for i, c := range rs.Columns {
		out[i] = c.Name
	}
	return out
}

// Append adds a row. The row length must match the column count; a mismatched
// row indicates a stage bug, so this panics rather than silently truncating.
func (rs *RowSet) Append(row []any) {
	if len(row) != len(rs.Columns) {
		panic("warehouse: row width does not match column count")
	}
	rs.Rows = append(rs.Rows, row)
}

// Len returns the number of rows.
func (rs *RowSet) Len() int { return len(rs.Rows) }
