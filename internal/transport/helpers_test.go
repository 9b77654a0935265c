package transport

import (
	"errors"
	"io"
	"net"
	"sync"
	"testing"

	colmetricspb "go.opentelemetry.io/proto/otlp/collector/metrics/v1"
	metricspb "go.opentelemetry.io/proto/otlp/metrics/v1"
	"google.golang.org/grpc"
)

// fakeIngest records requests and optionally fails after a number of them.
type fakeIngest struct {
	mu        sync.Mutex
	requests  []*colmetricspb.ExportMetricsServiceRequest
	streams   int
	failAfter int // 0 = never
	failErr   error
}

func (f *fakeIngest) HandleRequests(stream grpc.ServerStream) error {
	f.mu.Lock()
	f.streams++
	f.mu.Unlock()

	received := 0
	for {
		req := new(colmetricspb.ExportMetricsServiceRequest)
		err := stream.RecvMsg(req)
		if errors.Is(err, io.EOF) {
			return stream.SendMsg(&colmetricspb.ExportMetricsServiceResponse{})
		}
		if err != nil {
			return err
		}
		f.mu.Lock()
		f.requests = append(f.requests, req)
		failAfter, failErr := f.failAfter, f.failErr
		f.mu.Unlock()

		received++
		if failAfter > 0 && received >= failAfter {
			return failErr
		}
	}
}

func (f *fakeIngest) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *fakeIngest) streamCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.streams
}

// startServer serves srv on a loopback port and returns its address.
func startServer(t *testing.T, srv IngestServer, opts ...grpc.ServerOption) string {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := grpc.NewServer(opts...)
	RegisterIngestServer(s, srv)
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)
	return lis.Addr().String()
}

func testRequest(name string) *colmetricspb.ExportMetricsServiceRequest {
	return &colmetricspb.ExportMetricsServiceRequest{
		ResourceMetrics: []*metricspb.ResourceMetrics{{
			ScopeMetrics: []*metricspb.ScopeMetrics{{
				Metrics: []*metricspb.Metric{{Name: name}},
			}},
		}},
	}
}
