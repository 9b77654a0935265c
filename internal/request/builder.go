package request

import (
	"errors"
	"fmt"
	"time"

	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	metricspb "go.opentelemetry.io/proto/otlp/metrics/v1"
	resourcepb "go.opentelemetry.io/proto/otlp/resource/v1"
)

// ColumnKind distinguishes tag columns from field columns.
type ColumnKind int

const (
	KindTag ColumnKind = iota
	KindField
)

// String returns the string representation of the kind.
func (k ColumnKind) String() string {
	switch k {
	case KindTag:
		return "tag"
	case KindField:
		return "field"
	default:
		return "unknown"
	}
}

// Column declares one non-timestamp column of a table.
type Column struct {
	Name string
	Kind ColumnKind
}

// Tag declares a string tag column.
func Tag(name string) Column {
	return Column{Name: name, Kind: KindTag}
}

// Field declares a numeric field column.
func Field(name string) Column {
	return Column{Name: name, Kind: KindField}
}

var (
	// ErrNoFields is returned by NewBuilder when no field column is declared.
	ErrNoFields = errors.New("request: table needs at least one field column")

	// ErrArity is returned by AddRow when the value count does not match the columns.
	ErrArity = errors.New("request: value count does not match column count")
)

// Builder accumulates rows for one table into a RowInsert. A Builder is not
// safe for concurrent use.
type Builder struct {
	table   string
	columns []Column
	fields  []int // indexes of field columns, in declaration order
	rows    []row
}

type row struct {
	ts     uint64
	tags   []*commonpb.KeyValue
	values []*metricspb.NumberDataPoint
}

// NewBuilder declares a table with the given columns. The timestamp column is
// implicit and supplied to every AddRow call.
func NewBuilder(table string, columns ...Column) (*Builder, error) {
	if table == "" {
		return nil, errors.New("request: empty table name")
	}
	b := &Builder{table: table, columns: columns}
	seen := make(map[string]struct{}, len(columns))
	for i, c := range columns {
		if c.Name == "" {
			return nil, fmt.Errorf("request: column %d has an empty name", i)
		}
		if _, dup := seen[c.Name]; dup {
			return nil, fmt.Errorf("request: duplicate column %q", c.Name)
		}
		seen[c.Name] = struct{}{}
		if c.Kind == KindField {
			b.fields = append(b.fields, i)
		}
	}
	if len(b.fields) == 0 {
		return nil, ErrNoFields
	}
	return b, nil
}

// Table returns the table name.
func (b *Builder) Table() string {
	return b.table
}

// Len returns the number of rows added since the last Build.
func (b *Builder) Len() int {
	return len(b.rows)
}

// AddRow appends one row. values are given in column order: strings for tag
// columns, int, int32, int64, float32 or float64 for field columns.
func (b *Builder) AddRow(ts time.Time, values ...interface{}) error {
	if len(values) != len(b.columns) {
		return fmt.Errorf("%w: got %d, table %s has %d", ErrArity, len(values), b.table, len(b.columns))
	}

	r := row{ts: uint64(ts.UnixNano())}
	for i, c := range b.columns {
		if c.Kind != KindTag {
			continue
		}
		s, ok := values[i].(string)
		if !ok {
			return fmt.Errorf("request: tag %s wants string, got %T", c.Name, values[i])
		}
		r.tags = append(r.tags, stringKV(c.Name, s))
	}
	for _, i := range b.fields {
		dp, err := numberPoint(values[i])
		if err != nil {
			return fmt.Errorf("request: field %s: %w", b.columns[i].Name, err)
		}
		dp.TimeUnixNano = r.ts
		dp.Attributes = r.tags
		r.values = append(r.values, dp)
	}
	b.rows = append(b.rows, r)
	return nil
}

func numberPoint(v interface{}) (*metricspb.NumberDataPoint, error) {
	dp := &metricspb.NumberDataPoint{}
	switch n := v.(type) {
	case int:
		dp.Value = &metricspb.NumberDataPoint_AsInt{AsInt: int64(n)}
	case int32:
		dp.Value = &metricspb.NumberDataPoint_AsInt{AsInt: int64(n)}
	case int64:
		dp.Value = &metricspb.NumberDataPoint_AsInt{AsInt: n}
	case float32:
		dp.Value = &metricspb.NumberDataPoint_AsDouble{AsDouble: float64(n)}
	case float64:
		dp.Value = &metricspb.NumberDataPoint_AsDouble{AsDouble: n}
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
	return dp, nil
}

// Build returns the accumulated rows as a RowInsert and resets the builder
// so it can be reused for the next batch.
func (b *Builder) Build() *RowInsert {
	metrics := make([]*metricspb.Metric, len(b.fields))
	for j, i := range b.fields {
		points := make([]*metricspb.NumberDataPoint, 0, len(b.rows))
		for _, r := range b.rows {
			points = append(points, r.values[j])
		}
		metrics[j] = &metricspb.Metric{
			Name: b.columns[i].Name,
			Data: &metricspb.Metric_Gauge{Gauge: &metricspb.Gauge{DataPoints: points}},
		}
	}

	ri := &RowInsert{
		table: b.table,
		rows:  len(b.rows),
		rm: &metricspb.ResourceMetrics{
			Resource: &resourcepb.Resource{
				Attributes: []*commonpb.KeyValue{stringKV(TableAttribute, b.table)},
			},
			ScopeMetrics: []*metricspb.ScopeMetrics{{
				Scope:   &commonpb.InstrumentationScope{Name: ScopeName},
				Metrics: metrics,
			}},
		},
	}
	b.rows = nil
	return ri
}
