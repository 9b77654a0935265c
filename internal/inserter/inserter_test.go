package inserter

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/szibis/stream-inserter/internal/request"
	"github.com/szibis/stream-inserter/internal/sender"
	"github.com/szibis/stream-inserter/internal/transport"
	colmetricspb "go.opentelemetry.io/proto/otlp/collector/metrics/v1"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestInserter_Lifecycle(t *testing.T) {
	stream := &mockStream{}
	stats := &mockStats{}
	ins := New(stream, "public", WithCapacity(10), WithMaxBatchBytes(1000), WithStats(stats))

	if err := ins.Write(newUnit(0, 100)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := ins.WriteBatch([]request.Unit{newUnit(1, 100), newUnit(2, 100)}); err != nil {
		t.Fatalf("WriteBatch: %v", err)
	}
	if err := ins.WriteDone(); err != nil {
		t.Fatalf("WriteDone: %v", err)
	}
	if ins.Pending() != 0 {
		t.Errorf("Pending() = %d after WriteDone", ins.Pending())
	}
	if err := ins.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	resp, err := ins.Response()
	if err != nil || resp == nil {
		t.Fatalf("Response() = %v, %v", resp, err)
	}

	ids := stream.deliveredIDs()
	if len(ids) != 3 || ids[0] != 0 || ids[1] != 1 || ids[2] != 2 {
		t.Errorf("delivered = %v, want [0 1 2]", ids)
	}

	events := stream.eventLog()
	n := len(events)
	if n < 3 || events[n-2] != "close_send" || events[n-1] != "finish" {
		t.Errorf("events = %v, want writes then close_send then finish", events)
	}
	for _, e := range events[:n-2] {
		if e != "write" {
			t.Errorf("events = %v, close_send must follow every write", events)
		}
	}

	stats.mu.Lock()
	defer stats.mu.Unlock()
	if stats.admitted != 3 || stats.sent != 3 {
		t.Errorf("stats admitted=%d sent=%d, want 3/3", stats.admitted, stats.sent)
	}
}

func TestInserter_PreconditionErrors(t *testing.T) {
	stream := &mockStream{}
	ins := New(stream, "public", WithCapacity(4))

	if err := ins.Finish(); !errors.Is(err, ErrFinishBeforeDone) {
		t.Errorf("Finish before WriteDone = %v", err)
	}
	if _, err := ins.Response(); !errors.Is(err, ErrResponseBeforeFinish) {
		t.Errorf("Response before Finish = %v", err)
	}

	if err := ins.WriteDone(); err != nil {
		t.Fatalf("WriteDone: %v", err)
	}
	if err := ins.WriteDone(); !errors.Is(err, ErrAlreadyDone) {
		t.Errorf("second WriteDone = %v", err)
	}
	if err := ins.Write(newUnit(0, 1)); !errors.Is(err, ErrWriteAfterDone) {
		t.Errorf("Write after WriteDone = %v", err)
	}
	if err := ins.WriteBatch([]request.Unit{newUnit(1, 1)}); !errors.Is(err, ErrWriteAfterDone) {
		t.Errorf("WriteBatch after WriteDone = %v", err)
	}
	if _, err := ins.Response(); !errors.Is(err, ErrResponseBeforeFinish) {
		t.Errorf("Response before Finish = %v", err)
	}
	if err := ins.Finish(); err != nil {
		t.Errorf("Finish: %v", err)
	}
	if len(stream.deliveredIDs()) != 0 {
		t.Errorf("rejected writes were delivered: %v", stream.deliveredIDs())
	}
}

func TestInserter_FinishReturnsStatusOnce(t *testing.T) {
	stream := &mockStream{finishErr: status.Error(codes.InvalidArgument, "table missing")}
	ins := New(stream, "public")
	_ = ins.Write(newUnit(0, 1))
	_ = ins.WriteDone()

	err := ins.Finish()
	st := status.Convert(err)
	if st.Code() != codes.InvalidArgument || st.Message() != "table missing" {
		t.Fatalf("Finish status = %v", st)
	}
	if again := ins.Finish(); again != err {
		t.Errorf("second Finish = %v, want first result", again)
	}

	finishes := 0
	for _, e := range stream.eventLog() {
		if e == "finish" {
			finishes++
		}
	}
	if finishes != 1 {
		t.Errorf("stream.Finish called %d times, want 1", finishes)
	}
	resp, rerr := ins.Response()
	if rerr != nil || resp != nil {
		t.Errorf("Response() = %v, %v; want nil reply without error", resp, rerr)
	}
}

func TestInserter_WriteDoneReturnsCloseSendError(t *testing.T) {
	closeErr := errors.New("half-close failed")
	ins := New(&mockStream{closeErr: closeErr}, "public")
	if err := ins.WriteDone(); !errors.Is(err, closeErr) {
		t.Errorf("WriteDone = %v, want %v", err, closeErr)
	}
	if err := ins.Finish(); err != nil {
		t.Errorf("Finish after failed close-send = %v", err)
	}
}

func TestInserter_TwoProducersSmallCapacity(t *testing.T) {
	stream := &mockStream{}
	ins := New(stream, "public", WithCapacity(3), WithMaxBatchBytes(1000))

	var wg sync.WaitGroup
	for p := 0; p < 2; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := p; i < 5; i += 2 {
				if err := ins.Write(newUnit(i, 100)); err != nil {
					t.Errorf("Write: %v", err)
				}
			}
		}(p)
	}
	wg.Wait()

	if err := ins.WriteDone(); err != nil {
		t.Fatalf("WriteDone: %v", err)
	}
	if ins.Pending() != 0 {
		t.Errorf("Pending() = %d", ins.Pending())
	}

	ids := stream.deliveredIDs()
	if len(ids) != 5 {
		t.Fatalf("delivered %d units, want 5: %v", len(ids), ids)
	}
	seen := make(map[int]bool)
	lastByProducer := [2]int{-1, -1}
	for _, id := range ids {
		if seen[id] {
			t.Fatalf("unit %d delivered twice", id)
		}
		seen[id] = true
		if id <= lastByProducer[id%2] {
			t.Errorf("producer %d order broken: %v", id%2, ids)
		}
		lastByProducer[id%2] = id
	}
	if n := stream.envelopeCount(); n > 5 {
		t.Errorf("envelopes = %d", n)
	}
	_ = ins.Finish()
}

func TestInserter_WriteBatchLargerThanCapacity(t *testing.T) {
	stream := &mockStream{}
	ins := New(stream, "public", WithCapacity(2))

	group := make([]request.Unit, 9)
	for i := range group {
		group[i] = newUnit(i, 10)
	}
	done := make(chan error, 1)
	go func() { done <- ins.WriteBatch(group) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("WriteBatch: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("WriteBatch larger than capacity never completed")
	}
	_ = ins.WriteDone()
	_ = ins.Finish()

	ids := stream.deliveredIDs()
	if len(ids) != 9 {
		t.Fatalf("delivered %v", ids)
	}
	for i, id := range ids {
		if id != i {
			t.Fatalf("order broken: %v", ids)
		}
	}
}

func TestInserter_OnDropRunsForFailedEnvelopes(t *testing.T) {
	stream := &failingStream{}
	var mu sync.Mutex
	var dropped []sender.DropEvent
	ins := New(stream, "public", WithOnDrop(func(e sender.DropEvent) {
		mu.Lock()
		defer mu.Unlock()
		dropped = append(dropped, e)
	}))

	_ = ins.Write(newUnit(0, 10))
	_ = ins.WriteDone()
	_ = ins.Finish()

	mu.Lock()
	defer mu.Unlock()
	if len(dropped) != 1 {
		t.Fatalf("dropped = %d, want 1", len(dropped))
	}
	if ins.SenderState() != sender.StateFailed {
		t.Errorf("SenderState() = %v, want failed", ins.SenderState())
	}
}

// failingStream fails every write and never recovers.
type failingStream struct {
	mockStream
}

func (f *failingStream) Write(*colmetricspb.ExportMetricsServiceRequest) error {
	return status.Error(codes.Unavailable, "down")
}

func (f *failingStream) ChannelState(bool) transport.ChannelState {
	return transport.StateOther
}
