// Package batcher wraps groups of work units into outbound envelopes.
package batcher

import (
	"github.com/szibis/stream-inserter/internal/request"
	colmetricspb "go.opentelemetry.io/proto/otlp/collector/metrics/v1"
	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	metricspb "go.opentelemetry.io/proto/otlp/metrics/v1"
	resourcepb "go.opentelemetry.io/proto/otlp/resource/v1"
)

// DefaultMaxBatchBytes is the envelope byte ceiling used when none is configured.
const DefaultMaxBatchBytes = 2_981_328

// DatabaseAttribute is the resource attribute carrying the destination database.
const DatabaseAttribute = "db.name"

// Envelope is an ordered group of units bound for one database.
type Envelope struct {
	Database string
	Units    []request.Unit
}

// Build wraps units for database. It does no I/O and keeps no state between
// calls.
func Build(units []request.Unit, database string) *Envelope {
	return &Envelope{Database: database, Units: units}
}

// Size returns the summed unit sizes, the quantity bounded by the batch ceiling.
func (e *Envelope) Size() int {
	total := 0
	for _, u := range e.Units {
		total += u.Size()
	}
	return total
}

// Rows returns the number of rows across all units.
func (e *Envelope) Rows() int {
	total := 0
	for _, u := range e.Units {
		total += u.Rows()
	}
	return total
}

// Request renders the envelope as a fresh export request. Each unit gets a new
// Resource carrying the database attribute; the unit's own message is left
// untouched and its scope metrics are shared by reference.
func (e *Envelope) Request() *colmetricspb.ExportMetricsServiceRequest {
	rms := make([]*metricspb.ResourceMetrics, 0, len(e.Units))
	for _, u := range e.Units {
		src := u.ResourceMetrics()
		rms = append(rms, &metricspb.ResourceMetrics{
			Resource:     withDatabase(src.GetResource(), e.Database),
			ScopeMetrics: src.GetScopeMetrics(),
			SchemaUrl:    src.GetSchemaUrl(),
		})
	}
	return &colmetricspb.ExportMetricsServiceRequest{ResourceMetrics: rms}
}

func withDatabase(src *resourcepb.Resource, database string) *resourcepb.Resource {
	attrs := make([]*commonpb.KeyValue, 0, len(src.GetAttributes())+1)
	for _, kv := range src.GetAttributes() {
		if kv.Key == DatabaseAttribute {
			continue
		}
		attrs = append(attrs, kv)
	}
	attrs = append(attrs, &commonpb.KeyValue{
		Key:   DatabaseAttribute,
		Value: &commonpb.AnyValue{Value: &commonpb.AnyValue_StringValue{StringValue: database}},
	})
	return &resourcepb.Resource{
		Attributes:             attrs,
		DroppedAttributesCount: src.GetDroppedAttributesCount(),
	}
}
