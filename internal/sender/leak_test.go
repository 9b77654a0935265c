package sender

import (
	"testing"

	"github.com/szibis/stream-inserter/internal/buffer"
	"github.com/szibis/stream-inserter/internal/request"
	"go.uber.org/goleak"
)

func TestLeakCheck_SenderStops(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	buf := buffer.New[request.Unit](4)
	s := New(buf, &mockStream{}, "public", WithMaxBatchBytes(250))
	s.Start()
	for i := 0; i < 50; i++ {
		if err := buf.Push(newUnit(i, 100)); err != nil {
			t.Fatalf("Push: %v", err)
		}
	}
	buf.Close()
	<-s.Done()
}
