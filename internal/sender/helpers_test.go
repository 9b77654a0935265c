package sender

import (
	"errors"
	"strconv"
	"sync"

	"github.com/szibis/stream-inserter/internal/request"
	"github.com/szibis/stream-inserter/internal/transport"
	colmetricspb "go.opentelemetry.io/proto/otlp/collector/metrics/v1"
	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	metricspb "go.opentelemetry.io/proto/otlp/metrics/v1"
	resourcepb "go.opentelemetry.io/proto/otlp/resource/v1"
)

// testUnit has a fixed logical size independent of its encoding.
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

var errWrite = errors.New("write failed")

// mockStream records written requests. writeErr decides per write attempt
// (1-based) whether it fails; states are returned by successive probes, the
// last one repeating.
type mockStream struct {
	mu        sync.Mutex
	writes    int
	requests  []*colmetricspb.ExportMetricsServiceRequest
	writeErr  func(attempt int) error
	states    []transport.ChannelState
	probes    int
	blocking  int
	reopens   int
	reopenErr error
}

func (m *mockStream) Write(req *colmetricspb.ExportMetricsServiceRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	if m.writeErr != nil {
		if err := m.writeErr(m.writes); err != nil {
			return err
		}
	}
	m.requests = append(m.requests, req)
	return nil
}

func (m *mockStream) CloseSend() error { return nil }
func (m *mockStream) Finish() error    { return nil }

func (m *mockStream) Response() *colmetricspb.ExportMetricsServiceResponse {
	return &colmetricspb.ExportMetricsServiceResponse{}
}

func (m *mockStream) ChannelState(block bool) transport.ChannelState {
	m.mu.Lock()
	defer m.mu.Unlock()
	if block {
		m.blocking++
	}
	if len(m.states) == 0 {
		return transport.StateReady
	}
	i := m.probes
	if i >= len(m.states) {
		i = len(m.states) - 1
	}
	m.probes++
	return m.states[i]
}

func (m *mockStream) Reopen() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reopens++
	return m.reopenErr
}

// delivered returns unit ids per delivered request, in write order.
func (m *mockStream) delivered() [][]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]int, 0, len(m.requests))
	for _, req := range m.requests {
		var ids []int
		for _, rm := range req.ResourceMetrics {
			id, _ := strconv.Atoi(request.Attribute(rm.Resource.Attributes, "unit.id"))
			ids = append(ids, id)
		}
		out = append(out, ids)
	}
	return out
}

type mockStats struct {
	mu      sync.Mutex
	sent    int
	bytes   int
	dropped int
	retries int
}

func (m *mockStats) RecordSent(rows, bytes int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent += rows
	m.bytes += bytes
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
