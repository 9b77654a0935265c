// Package sender drains the pending buffer onto the write stream.
package sender

import (
	"sync/atomic"

	"github.com/szibis/stream-inserter/internal/batcher"
	"github.com/szibis/stream-inserter/internal/buffer"
	"github.com/szibis/stream-inserter/internal/logging"
	"github.com/szibis/stream-inserter/internal/request"
	"github.com/szibis/stream-inserter/internal/transport"
)

var log = logging.Component("sender")

// DropEvent describes an envelope lost after a failed write.
type DropEvent struct {
	Envelope *batcher.Envelope
	Err      error
	Type     transport.ErrorType
}

// StatsRecorder receives per-envelope outcomes.
type StatsRecorder interface {
	RecordSent(rows, bytes int)
	RecordDropped(rows int)
	RecordRetry()
}

// Sender is the single consumer of a pending buffer. It owns the stream from
// Start until Done is closed.
type Sender struct {
	buf           *buffer.Pending[request.Unit]
	stream        transport.Stream
	database      string
	maxBatchBytes int
	onDrop        func(DropEvent)
	stats         StatsRecorder

	state atomic.Int32 // ConnState
	phase atomic.Int32 // Phase
	done  chan struct{}
}

// Option configures a Sender.
type Option func(*Sender)

// WithMaxBatchBytes sets the envelope byte ceiling.
func WithMaxBatchBytes(n int) Option {
	return func(s *Sender) {
		if n > 0 {
			s.maxBatchBytes = n
		}
	}
}

// WithOnDrop registers a callback run on the sender goroutine for every
// dropped envelope.
func WithOnDrop(fn func(DropEvent)) Option {
	return func(s *Sender) {
		s.onDrop = fn
	}
}

// WithStats sets the recorder for sent and dropped envelopes.
func WithStats(stats StatsRecorder) Option {
	return func(s *Sender) {
		s.stats = stats
	}
}

// New creates a sender that writes envelopes for database to stream.
func New(buf *buffer.Pending[request.Unit], stream transport.Stream, database string, opts ...Option) *Sender {
	s := &Sender{
		buf:           buf,
		stream:        stream,
		database:      database,
		maxBatchBytes: batcher.DefaultMaxBatchBytes,
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start runs the loop on a new goroutine.
func (s *Sender) Start() {
	go s.Run()
}

// Run drains the buffer until it is closed and empty, then returns. Done is
// closed on return.
func (s *Sender) Run() {
	defer close(s.done)
	defer s.phase.Store(int32(PhaseStopped))

	for {
		units, ok := s.buf.PopBatch(s.maxBatchBytes)
		if !ok {
			log.Debug("buffer drained, sender stopping")
			return
		}
		if s.buf.Closed() && s.phase.CompareAndSwap(int32(PhaseRunning), int32(PhaseDraining)) {
			log.Debug("draining remaining units", logging.F("pending", s.buf.Len()+len(units)))
		}
		s.transmit(batcher.Build(units, s.database))
	}
}

// Done is closed once Run has returned.
func (s *Sender) Done() <-chan struct{} {
	return s.done
}

// State returns the current connection state.
func (s *Sender) State() ConnState {
	return ConnState(s.state.Load())
}

// Phase returns the current loop phase.
func (s *Sender) Phase() Phase {
	return Phase(s.phase.Load())
}

func (s *Sender) setState(to ConnState) {
	s.state.Store(int32(to))
	connectionState.Set(float64(to))
}

// transmit writes env once. A failed write probes the channel. On a
// transient channel failure the stream is reopened and env is written once
// more. On a ready channel the stream is reopened for the next envelope but
// env is retried only if the write error itself is transient. Anything else
// drops the envelope.
func (s *Sender) transmit(env *batcher.Envelope) {
	req := env.Request()
	s.setState(StateConnected)

	err := s.stream.Write(req)
	if err == nil {
		s.recordSent(env)
		return
	}

	s.setState(StateProbing)
	channel := s.stream.ChannelState(false)
	if channel == transport.StateOther {
		channel = s.stream.ChannelState(true)
	}
	log.Warn("stream write failed", logging.F(
		"error", err.Error(),
		"channel_state", channel.String(),
		"rows", env.Rows(),
	))
	if channel != transport.StateTransientFailure && channel != transport.StateReady {
		s.drop(env, err)
		return
	}

	retry := channel == transport.StateTransientFailure || transport.IsTransient(err)

	s.setState(StateReconnecting)
	if rerr := s.stream.Reopen(); rerr != nil {
		reconnectsTotal.WithLabelValues("error").Inc()
		s.drop(env, rerr)
		return
	}
	reconnectsTotal.WithLabelValues("success").Inc()
	if !retry {
		s.drop(env, err)
		return
	}
	retriesTotal.Inc()
	if s.stats != nil {
		s.stats.RecordRetry()
	}

	if err := s.stream.Write(req); err != nil {
		s.drop(env, err)
		return
	}
	s.setState(StateConnected)
	log.Info("envelope delivered after reconnect", logging.F("rows", env.Rows()))
	s.recordSent(env)
}

func (s *Sender) recordSent(env *batcher.Envelope) {
	rows, size := env.Rows(), env.Size()
	envelopesSentTotal.Inc()
	rowsSentTotal.Add(float64(rows))
	bytesSentTotal.Add(float64(size))
	envelopeBytes.Observe(float64(size))
	if s.stats != nil {
		s.stats.RecordSent(rows, size)
	}
}

func (s *Sender) drop(env *batcher.Envelope, err error) {
	s.setState(StateFailed)
	errType := transport.TypeOf(err)
	rows := env.Rows()

	droppedEnvelopesTotal.WithLabelValues(string(errType)).Inc()
	droppedRowsTotal.WithLabelValues(string(errType)).Add(float64(rows))
	if s.stats != nil {
		s.stats.RecordDropped(rows)
	}
	log.Error("envelope dropped", logging.F(
		"error", err.Error(),
		"error_type", string(errType),
		"units", len(env.Units),
		"rows", rows,
		"bytes", env.Size(),
	))
	if s.onDrop != nil {
		s.onDrop(DropEvent{Envelope: env, Err: err, Type: errType})
	}
}
