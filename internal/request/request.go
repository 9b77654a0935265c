// Package request builds the sized work units written through a stream
// inserter. A unit is one table's batch of rows encoded as an OTLP
// ResourceMetrics: one gauge per field column, one data point per row and
// field, tag columns carried as data point attributes.
package request

import (
	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	metricspb "go.opentelemetry.io/proto/otlp/metrics/v1"
	"google.golang.org/protobuf/proto"
)

const (
	// TableAttribute is the resource attribute naming the destination table.
	TableAttribute = "table.name"

	// ScopeName is the instrumentation scope stamped on every unit.
	ScopeName = "stream-inserter"
)

// Unit is one logical write queued for transmission.
type Unit interface {
	// Size is the serialized size in bytes. It is computed on every call.
	Size() int

	// Rows is the number of logical rows carried by the unit.
	Rows() int

	// ResourceMetrics is the wire form of the unit. Callers must not mutate it.
	ResourceMetrics() *metricspb.ResourceMetrics
}

// RowInsert is a batch of rows for a single table.
type RowInsert struct {
	table string
	rows  int
	rm    *metricspb.ResourceMetrics
}

// Table returns the destination table name.
func (r *RowInsert) Table() string {
	return r.table
}

// Rows returns the number of rows in the batch.
func (r *RowInsert) Rows() int {
	return r.rows
}

// Size returns proto.Size of the encoded batch.
func (r *RowInsert) Size() int {
	return proto.Size(r.rm)
}

// ResourceMetrics returns the encoded batch.
func (r *RowInsert) ResourceMetrics() *metricspb.ResourceMetrics {
	return r.rm
}

func stringKV(key, value string) *commonpb.KeyValue {
	return &commonpb.KeyValue{
		Key:   key,
		Value: &commonpb.AnyValue{Value: &commonpb.AnyValue_StringValue{StringValue: value}},
	}
}

// Attribute returns the string value of key in attrs, or "" if absent.
func Attribute(attrs []*commonpb.KeyValue, key string) string {
	for _, kv := range attrs {
		if kv.Key == key {
			return kv.GetValue().GetStringValue()
		}
	}
	return ""
}
