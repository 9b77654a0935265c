package inserter

import (
	"strconv"
	"sync"

	"github.com/szibis/stream-inserter/internal/request"
	"github.com/szibis/stream-inserter/internal/transport"
	colmetricspb "go.opentelemetry.io/proto/otlp/collector/metrics/v1"
	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	metricspb "go.opentelemetry.io/proto/otlp/metrics/v1"
	resourcepb "go.opentelemetry.io/proto/otlp/resource/v1"
)

type testUnit struct {
	id   int
	size int
	rm   *metricspb.ResourceMetrics
}

func newUnit(id, size int) *testUnit {
	return &testUnit{
		id:   id,
		size: size,
		rm: &metricspb.ResourceMetrics{
			Resource: &resourcepb.Resource{Attributes: []*commonpb.KeyValue{{
				Key:   "unit.id",
				Value: &commonpb.AnyValue{Value: &commonpb.AnyValue_StringValue{StringValue: strconv.Itoa(id)}},
			}}},
		},
	}
}

func (u *testUnit) Size() int                                   { return u.size }
func (u *testUnit) Rows() int                                   { return 1 }
func (u *testUnit) ResourceMetrics() *metricspb.ResourceMetrics { return u.rm }

// mockStream records every call in order.
type mockStream struct {
	mu        sync.Mutex
	events    []string
	requests  []*colmetricspb.ExportMetricsServiceRequest
	closeErr  error
	finishErr error
	resp      *colmetricspb.ExportMetricsServiceResponse
}

func (m *mockStream) Write(req *colmetricspb.ExportMetricsServiceRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, "write")
	m.requests = append(m.requests, req)
	return nil
}

func (m *mockStream) CloseSend() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, "close_send")
	return m.closeErr
}

func (m *mockStream) Finish() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, "finish")
	if m.finishErr == nil && m.resp == nil {
		m.resp = &colmetricspb.ExportMetricsServiceResponse{}
	}
	return m.finishErr
}

func (m *mockStream) Response() *colmetricspb.ExportMetricsServiceResponse {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resp
}

func (m *mockStream) ChannelState(bool) transport.ChannelState { return transport.StateReady }
func (m *mockStream) Reopen() error                              { return nil }

func (m *mockStream) eventLog() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.events...)
}

func (m *mockStream) deliveredIDs() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []int
	for _, req := range m.requests {
		for _, rm := range req.ResourceMetrics {
			id, _ := strconv.Atoi(request.Attribute(rm.Resource.Attributes, "unit.id"))
			ids = append(ids, id)
		}
	}
	return ids
}

func (m *mockStream) envelopeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

type mockStats struct {
	mu       sync.Mutex
	admitted int
	sent     int
	dropped  int
	retries  int
}

func (m *mockStats) RecordAdmitted(units []request.Unit) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.admitted += len(units)
}

func (m *mockStats) RecordSent(rows, bytes int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent += rows
}

func (m *mockStats) RecordDropped(rows int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropped += rows
}

func (m *mockStats) RecordRetry() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retries++
}
