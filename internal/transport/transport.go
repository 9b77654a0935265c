// Package transport is the streaming RPC the inserter writes envelopes to.
package transport

import (
	colmetricspb "go.opentelemetry.io/proto/otlp/collector/metrics/v1"
	"google.golang.org/grpc"
)

const (
	// ServiceName is the fully qualified ingest service.
	ServiceName = "streaminserter.v1.Ingest"

	// HandleRequestsMethod is the client-streaming write RPC.
	HandleRequestsMethod = "/" + ServiceName + "/HandleRequests"
)

// Stream is a client-streaming write session. Implementations need not be
// safe for concurrent use; the inserter hands it to one goroutine at a time.
type Stream interface {
	// Write sends one request on the stream.
	Write(req *colmetricspb.ExportMetricsServiceRequest) error

	// CloseSend half-closes the stream; no more writes follow.
	CloseSend() error

	// Finish waits for the server's reply and returns the final RPC status
	// as an error (nil for OK). status.Convert(err) yields code, message
	// and details.
	Finish() error

	// Response returns the reply received by Finish, or nil.
	Response() *colmetricspb.ExportMetricsServiceResponse

	// ChannelState reports the state of the underlying connection. With
	// block set it first waits, bounded by the probe timeout, for the state
	// to change.
	ChannelState(block bool) ChannelState

	// Reopen abandons the current stream and opens a new one with a fresh
	// context on the same connection.
	Reopen() error
}

// ChannelState is the coarse connection state used for reconnect decisions.
type ChannelState int

const (
	StateOther ChannelState = iota
	StateReady
	StateTransientFailure
)

// String returns the string representation of the state.
func (s ChannelState) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateTransientFailure:
		return "transient_failure"
	default:
		return "other"
	}
}

// IngestServer is implemented by servers accepting the write stream. The
// handler receives ExportMetricsServiceRequest messages until io.EOF and
// replies once with an ExportMetricsServiceResponse.
type IngestServer interface {
	HandleRequests(stream grpc.ServerStream) error
}

var streamDesc = grpc.StreamDesc{
	StreamName:    "HandleRequests",
	ClientStreams: true,
}

// RegisterIngestServer registers srv on s.
func RegisterIngestServer(s grpc.ServiceRegistrar, srv IngestServer) {
	s.RegisterService(&grpc.ServiceDesc{
		ServiceName: ServiceName,
		HandlerType: (*IngestServer)(nil),
		Streams: []grpc.StreamDesc{{
			StreamName:    streamDesc.StreamName,
			ClientStreams: true,
			Handler: func(impl interface{}, stream grpc.ServerStream) error {
				return impl.(IngestServer).HandleRequests(stream)
			},
		}},
		Metadata: "streaminserter/v1/ingest.proto",
	}, srv)
}
