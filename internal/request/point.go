package request

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Point is a single measurement: a table, its tags, its numeric fields and a
// timestamp.
type Point struct {
	Table  string
	Tags   map[string]string
	Fields map[string]interface{}
	Time   time.Time
}

// columns returns the point's columns sorted tags first, then fields.
func (p Point) columns() []Column {
	tags := make([]string, 0, len(p.Tags))
	for k := range p.Tags {
		tags = append(tags, k)
	}
	sort.Strings(tags)
	fields := make([]string, 0, len(p.Fields))
	for k := range p.Fields {
		fields = append(fields, k)
	}
	sort.Strings(fields)

	cols := make([]Column, 0, len(tags)+len(fields))
	for _, t := range tags {
		cols = append(cols, Tag(t))
	}
	for _, f := range fields {
		cols = append(cols, Field(f))
	}
	return cols
}

func (p Point) values(cols []Column) []interface{} {
	vals := make([]interface{}, len(cols))
	for i, c := range cols {
		if c.Kind == KindTag {
			vals[i] = p.Tags[c.Name]
		} else {
			vals[i] = p.Fields[c.Name]
		}
	}
	return vals
}

func schemaKey(table string, cols []Column) string {
	var sb strings.Builder
	sb.WriteString(table)
	for _, c := range cols {
		sb.WriteByte(0)
		sb.WriteString(c.Kind.String())
		sb.WriteByte(':')
		sb.WriteString(c.Name)
	}
	return sb.String()
}

// FromPoints groups points sharing a table and column set into RowInserts,
// in the order each group is first seen.
func FromPoints(points []Point) ([]*RowInsert, error) {
	builders := make(map[string]*Builder)
	var order []*Builder
	for i, p := range points {
		cols := p.columns()
		key := schemaKey(p.Table, cols)
		b, ok := builders[key]
		if !ok {
			var err error
			b, err = NewBuilder(p.Table, cols...)
			if err != nil {
				return nil, fmt.Errorf("point %d: %w", i, err)
			}
			builders[key] = b
			order = append(order, b)
		}
		if err := b.AddRow(p.Time, p.values(cols)...); err != nil {
			return nil, fmt.Errorf("point %d: %w", i, err)
		}
	}

	out := make([]*RowInsert, 0, len(order))
	for _, b := range order {
		out = append(out, b.Build())
	}
	return out, nil
}

// FromInfluxPoint converts an InfluxDB client point. The measurement becomes
// the table. Unsigned fields are narrowed to int64; bool and string fields are
// rejected since only numeric fields are stored.
func FromInfluxPoint(p *write.Point) (Point, error) {
	out := Point{
		Table:  p.Name(),
		Tags:   make(map[string]string, len(p.TagList())),
		Fields: make(map[string]interface{}, len(p.FieldList())),
		Time:   p.Time(),
	}
	for _, t := range p.TagList() {
		out.Tags[t.Key] = t.Value
	}
	for _, f := range p.FieldList() {
		switch v := f.Value.(type) {
		case int64, float64:
			out.Fields[f.Key] = v
		case uint64:
			out.Fields[f.Key] = int64(v)
		default:
			return Point{}, fmt.Errorf("request: influx field %s has unsupported type %T", f.Key, f.Value)
		}
	}
	return out, nil
}
