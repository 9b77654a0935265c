package stats

import (
	"math"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestGoodRatio(t *testing.T) {
	tests := []struct {
		good, bad uint64
		want      float64
	}{
		{0, 0, 1},
		{99, 1, 0.99},
		{0, 5, 0},
	}
	for _, tt := range tests {
		if got := goodRatio(tt.good, tt.bad); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("goodRatio(%d, %d) = %g, want %g", tt.good, tt.bad, got, tt.want)
		}
	}
}

func TestBurnRate(t *testing.T) {
	if got := burnRate(0.99, 0.999); math.Abs(got-10) > 1e-6 {
		t.Errorf("burnRate = %g, want 10", got)
	}
	if burnRate(0.5, 1.0) != 0 {
		t.Error("a target of 1.0 has no budget to burn")
	}
}

func TestSLITracker_DeliveryRatio(t *testing.T) {
	tr := NewSLITracker(DefaultSLIConfig())
	if _, ok := tr.DeliveryRatio(2); ok {
		t.Fatal("ratio available without snapshots")
	}

	tr.RecordSnapshot(Snapshot{RowsSent: 100})
	tr.RecordSnapshot(Snapshot{RowsSent: 190, RowsDropped: 10})

	ratio, ok := tr.DeliveryRatio(2)
	if !ok || math.Abs(ratio-0.9) > 1e-9 {
		t.Errorf("DeliveryRatio(2) = %g, %v; want 0.9", ratio, ok)
	}
}

func TestSLITracker_RingWraps(t *testing.T) {
	tr := NewSLITracker(DefaultSLIConfig())
	for i := 0; i < DefaultRingSize+5; i++ {
		tr.RecordSnapshot(Snapshot{RowsSent: uint64(i)})
	}
	if tr.count != DefaultRingSize {
		t.Errorf("count = %d, want %d", tr.count, DefaultRingSize)
	}
	latest, _ := tr.snapshotAt(0)
	if latest.rowsSent != DefaultRingSize+4 {
		t.Errorf("latest rowsSent = %d", latest.rowsSent)
	}
}

func TestSLITracker_WriteMetrics(t *testing.T) {
	tr := NewSLITracker(DefaultSLIConfig())
	for i := 0; i < 10; i++ {
		tr.RecordSnapshot(Snapshot{RowsSent: uint64(i * 10), EnvelopesSent: uint64(i)})
	}
	rec := httptest.NewRecorder()
	tr.WriteSLIMetrics(rec)
	body := rec.Body.String()
	if !strings.Contains(body, `stream_inserter_sli_delivery_ratio{window_snapshots="10"} 1`) {
		t.Errorf("missing 10-snapshot delivery ratio:\n%s", body)
	}
	if strings.Contains(body, `window_snapshots="60"`) {
		t.Error("wrote a window longer than the recorded history")
	}
}
