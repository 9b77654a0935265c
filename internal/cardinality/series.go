package cardinality

import (
	"encoding/binary"
	"sort"

	"github.com/cespare/xxhash/v2"
	"github.com/szibis/stream-inserter/internal/request"
	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	metricspb "go.opentelemetry.io/proto/otlp/metrics/v1"
)

// SeriesKey hashes a table name and its tag set. Tag order does not matter.
func SeriesKey(table string, tags []*commonpb.KeyValue) []byte {
	sorted := make([]*commonpb.KeyValue, len(tags))
	copy(sorted, tags)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Key < sorted[j].Key })

	d := xxhash.New()
	_, _ = d.WriteString(table)
	for _, kv := range sorted {
		_, _ = d.Write([]byte{0})
		_, _ = d.WriteString(kv.Key)
		_, _ = d.Write([]byte{'='})
		_, _ = d.WriteString(kv.GetValue().GetStringValue())
	}

	key := make([]byte, 8)
	binary.LittleEndian.PutUint64(key, d.Sum64())
	return key
}

// Observe adds the series of every data point in rm to t and returns how
// many were new. Fields of the same row share a series.
func Observe(t Tracker, rm *metricspb.ResourceMetrics) int {
	if rm == nil {
		return 0
	}
	table := request.Attribute(rm.GetResource().GetAttributes(), request.TableAttribute)

	added := 0
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			for _, dp := range dataPoints(m) {
				if t.Add(SeriesKey(table, dp.Attributes)) {
					added++
				}
			}
		}
	}
	return added
}

func dataPoints(m *metricspb.Metric) []*metricspb.NumberDataPoint {
	switch data := m.Data.(type) {
	case *metricspb.Metric_Gauge:
		return data.Gauge.DataPoints
	case *metricspb.Metric_Sum:
		return data.Sum.DataPoints
	default:
		return nil
	}
}
