package transport

import (
	"context"
	"errors"
	"io"
	"time"

	colmetricspb "go.opentelemetry.io/proto/otlp/collector/metrics/v1"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
)

// GRPCStream implements Stream over a client-streaming gRPC call.
type GRPCStream struct {
	conn   *Conn
	parent context.Context
	ctx    context.Context
	cancel context.CancelFunc
	cs     grpc.ClientStream

	// broken holds the terminal error once the server aborted the call.
	broken     error
	sendClosed bool

	finished  bool
	finishErr error
	resp      *colmetricspb.ExportMetricsServiceResponse
}

var _ Stream = (*GRPCStream)(nil)

func (s *GRPCStream) open() error {
	parent := s.parent
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	timer := time.AfterFunc(s.conn.cfg.OpenTimeout, cancel)
	cs, err := s.conn.cc.NewStream(ctx, &streamDesc, HandleRequestsMethod, s.conn.callOpts...)
	if !timer.Stop() && err == nil {
		// The open deadline fired after the stream was created.
		err = context.DeadlineExceeded
	}
	if err != nil {
		cancel()
		se := newStreamError("open", err)
		recordStreamError(se)
		return se
	}

	s.ctx, s.cancel, s.cs = ctx, cancel, cs
	s.broken, s.sendClosed = nil, false
	s.finished, s.finishErr, s.resp = false, nil, nil
	streamsOpenedTotal.Inc()
	return nil
}

// Write sends req. After the server aborts the call every Write fails with
// the call's final status until Reopen.
func (s *GRPCStream) Write(req *colmetricspb.ExportMetricsServiceRequest) error {
	if s.cs == nil {
		return newStreamError("write", ErrStreamNotOpen)
	}
	if s.broken != nil {
		return newStreamError("write", s.broken)
	}

	err := s.cs.SendMsg(req)
	if err == nil {
		streamBytesTotal.Add(float64(proto.Size(req)))
		return nil
	}
	if errors.Is(err, io.EOF) {
		// The call ended; the real status comes from RecvMsg.
		if rerr := s.cs.RecvMsg(new(colmetricspb.ExportMetricsServiceResponse)); rerr != nil {
			err = rerr
		} else {
			err = errors.New("stream closed by server")
		}
	}
	s.broken = err
	se := newStreamError("write", err)
	recordStreamError(se)
	return se
}

// CloseSend half-closes the stream.
func (s *GRPCStream) CloseSend() error {
	if s.cs == nil {
		return newStreamError("close_send", ErrStreamNotOpen)
	}
	if s.sendClosed {
		return nil
	}
	s.sendClosed = true
	if s.broken != nil {
		return newStreamError("close_send", s.broken)
	}
	if err := s.cs.CloseSend(); err != nil {
		se := newStreamError("close_send", err)
		recordStreamError(se)
		return se
	}
	return nil
}

// Finish half-closes the stream if needed, waits for the server's reply and
// returns the call status. Later calls return the first result.
func (s *GRPCStream) Finish() error {
	if s.finished {
		return s.finishErr
	}
	if s.cs == nil {
		return ErrStreamNotOpen
	}
	s.finished = true
	defer s.cancel()

	if s.broken != nil {
		s.finishErr = s.broken
		return s.finishErr
	}
	if !s.sendClosed {
		s.sendClosed = true
		_ = s.cs.CloseSend()
	}

	resp := new(colmetricspb.ExportMetricsServiceResponse)
	if err := s.cs.RecvMsg(resp); err != nil {
		s.finishErr = err
		recordStreamError(newStreamError("finish", err))
		return err
	}
	s.resp = resp
	return nil
}

// Response returns the server's reply after a successful Finish.
func (s *GRPCStream) Response() *colmetricspb.ExportMetricsServiceResponse {
	return s.resp
}

// ChannelState probes the connection the stream runs on.
func (s *GRPCStream) ChannelState(block bool) ChannelState {
	return s.conn.channelState(block)
}

// Reopen cancels the current call and opens a new one on the same connection.
func (s *GRPCStream) Reopen() error {
	if s.cancel != nil {
		s.cancel()
	}
	return s.open()
}
