// Package inserter is the caller-facing write API: buffered, batched,
// streamed writes with an ordered shutdown.
package inserter

import (
	"errors"
	"sync"

	"github.com/szibis/stream-inserter/internal/batcher"
	"github.com/szibis/stream-inserter/internal/buffer"
	"github.com/szibis/stream-inserter/internal/logging"
	"github.com/szibis/stream-inserter/internal/request"
	"github.com/szibis/stream-inserter/internal/sender"
	"github.com/szibis/stream-inserter/internal/transport"
	colmetricspb "go.opentelemetry.io/proto/otlp/collector/metrics/v1"
)

var (
	// ErrWriteAfterDone is returned by Write and WriteBatch after WriteDone.
	ErrWriteAfterDone = errors.New("inserter: write after WriteDone")
	// ErrAlreadyDone is returned by a second WriteDone.
	ErrAlreadyDone = errors.New("inserter: WriteDone already called")
	// ErrFinishBeforeDone is returned by Finish before WriteDone.
	ErrFinishBeforeDone = errors.New("inserter: Finish called before WriteDone")
	// ErrResponseBeforeFinish is returned by Response before Finish.
	ErrResponseBeforeFinish = errors.New("inserter: Response called before Finish")
)

var log = logging.Component("inserter")

// Stats receives admission and delivery accounting.
type Stats interface {
	RecordAdmitted(units []request.Unit)
	sender.StatsRecorder
}

type options struct {
	capacity      int
	maxBatchBytes int
	onDrop        func(sender.DropEvent)
	stats         Stats
}

// Option configures an Inserter.
type Option func(*options)

// WithCapacity sets the buffer capacity in units.
func WithCapacity(n int) Option {
	return func(o *options) { o.capacity = n }
}

// WithMaxBatchBytes sets the envelope byte ceiling.
func WithMaxBatchBytes(n int) Option {
	return func(o *options) { o.maxBatchBytes = n }
}

// WithOnDrop registers a callback for envelopes lost after a failed write.
// It runs on the sender goroutine and must not call back into the Inserter.
func WithOnDrop(fn func(sender.DropEvent)) Option {
	return func(o *options) { o.onDrop = fn }
}

// WithStats sets the accounting sink.
func WithStats(s Stats) Option {
	return func(o *options) { o.stats = s }
}

// Inserter accepts units from any number of goroutines and streams them in
// admission order through a single background sender. Every Inserter must be
// ended with WriteDone, then Finish.
type Inserter struct {
	buf    *buffer.Pending[request.Unit]
	stream transport.Stream
	sender *sender.Sender
	stats  Stats

	mu        sync.Mutex
	done      bool // WriteDone started
	closed    bool // WriteDone returned
	finished  bool
	finishErr error
	resp      *colmetricspb.ExportMetricsServiceResponse
}

// New starts an inserter writing envelopes for database to stream. The
// stream belongs to the inserter from here on.
func New(stream transport.Stream, database string, opts ...Option) *Inserter {
	o := options{
		capacity:      buffer.DefaultCapacity,
		maxBatchBytes: batcher.DefaultMaxBatchBytes,
	}
	for _, opt := range opts {
		opt(&o)
	}

	buf := buffer.New[request.Unit](o.capacity)
	senderOpts := []sender.Option{
		sender.WithMaxBatchBytes(o.maxBatchBytes),
		sender.WithOnDrop(o.onDrop),
	}
	if o.stats != nil {
		senderOpts = append(senderOpts, sender.WithStats(o.stats))
	}

	ins := &Inserter{
		buf:    buf,
		stream: stream,
		sender: sender.New(buf, stream, database, senderOpts...),
		stats:  o.stats,
	}
	ins.sender.Start()

	log.Debug("inserter started", logging.F(
		"database", database,
		"capacity", buf.Cap(),
		"max_batch_bytes", o.maxBatchBytes,
	))
	return ins
}

// Write admits one unit, blocking while the buffer is full. It returns once
// the unit is buffered, not once it is sent.
func (i *Inserter) Write(unit request.Unit) error {
	if err := i.buf.Push(unit); err != nil {
		return ErrWriteAfterDone
	}
	if i.stats != nil {
		i.stats.RecordAdmitted([]request.Unit{unit})
	}
	return nil
}

// WriteBatch admits units as a contiguous group when they fit in the free
// space, otherwise one at a time so concurrent writers may interleave. If
// WriteDone races with a partially admitted batch, the admitted prefix is
// still sent and ErrWriteAfterDone is returned.
func (i *Inserter) WriteBatch(units []request.Unit) error {
	if err := i.buf.PushAll(units); err != nil {
		return errors.Join(ErrWriteAfterDone, err)
	}
	if i.stats != nil {
		i.stats.RecordAdmitted(units)
	}
	return nil
}

// WriteDone stops admission, waits for the sender to drain every buffered
// unit and half-closes the stream. It returns the half-close error.
func (i *Inserter) WriteDone() error {
	i.mu.Lock()
	if i.done {
		i.mu.Unlock()
		return ErrAlreadyDone
	}
	i.done = true
	i.mu.Unlock()

	i.buf.Close()
	<-i.sender.Done()

	err := i.stream.CloseSend()
	i.mu.Lock()
	i.closed = true
	i.mu.Unlock()
	if err != nil {
		log.Warn("close send failed", logging.F("error", err.Error()))
	}
	return err
}

// Finish returns the final status of the stream as an error; nil means OK.
// It requires a completed WriteDone. Later calls return the first result.
func (i *Inserter) Finish() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if !i.closed {
		return ErrFinishBeforeDone
	}
	if i.finished {
		return i.finishErr
	}
	i.finished = true
	i.finishErr = i.stream.Finish()
	i.resp = i.stream.Response()
	return i.finishErr
}

// Response returns the server's reply recorded by Finish.
func (i *Inserter) Response() (*colmetricspb.ExportMetricsServiceResponse, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if !i.finished {
		return nil, ErrResponseBeforeFinish
	}
	return i.resp, nil
}

// Pending returns the number of buffered units.
func (i *Inserter) Pending() int {
	return i.buf.Len()
}

// SenderState returns the sender's connection state.
func (i *Inserter) SenderState() sender.ConnState {
	return i.sender.State()
}
