package batcher

import (
	metricspb "go.opentelemetry.io/proto/otlp/metrics/v1"
	"google.golang.org/protobuf/proto"
)

type fixedUnit struct {
	rm *metricspb.ResourceMetrics
}

func (f *fixedUnit) Size() int                                   { return proto.Size(f.rm) }
func (f *fixedUnit) Rows() int                                   { return 1 }
func (f *fixedUnit) ResourceMetrics() *metricspb.ResourceMetrics { return f.rm }
