package stats

import (
	"fmt"
	"math"
	"net/http"
	"sync"
	"time"
)

// Default SLI configuration values.
const (
	DefaultDeliveryTarget = 0.999
	DefaultEnvelopeTarget = 0.995
	DefaultRingSize       = 720
)

// sliWindows are measured in snapshots; with a 30s logging interval they
// cover 5m, 30m, 1h and 6h.
var sliWindows = []int{10, 60, 120, 720}

// SLIConfig holds the SLO targets.
type SLIConfig struct {
	DeliveryTarget float64
	EnvelopeTarget float64
}

// DefaultSLIConfig returns the default targets.
func DefaultSLIConfig() SLIConfig {
	return SLIConfig{
		DeliveryTarget: DefaultDeliveryTarget,
		EnvelopeTarget: DefaultEnvelopeTarget,
	}
}

type sliSnapshot struct {
	rowsSent         uint64
	rowsDropped      uint64
	envelopesSent    uint64
	envelopesDropped uint64
}

// SLITracker computes delivery ratios and burn rates from periodic
// snapshots kept in a fixed-size ring.
type SLITracker struct {
	mu     sync.RWMutex
	config SLIConfig

	ring  []sliSnapshot
	head  int
	count int

	start     time.Time
	snapshots uint64
}

// NewSLITracker creates a tracker with an empty ring.
func NewSLITracker(cfg SLIConfig) *SLITracker {
	return &SLITracker{
		config: cfg,
		ring:   make([]sliSnapshot, DefaultRingSize),
		start:  time.Now(),
	}
}

// RecordSnapshot appends the counters in s to the ring.
func (t *SLITracker) RecordSnapshot(s Snapshot) {
	snap := sliSnapshot{
		rowsSent:         s.RowsSent,
		rowsDropped:      s.RowsDropped,
		envelopesSent:    s.EnvelopesSent,
		envelopesDropped: s.EnvelopesDropped,
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.ring[t.head] = snap
	t.head = (t.head + 1) % len(t.ring)
	if t.count < len(t.ring) {
		t.count++
	}
	t.snapshots++
}

// snapshotAt must be called under mu.
func (t *SLITracker) snapshotAt(back int) (sliSnapshot, bool) {
	if back >= t.count {
		return sliSnapshot{}, false
	}
	return t.ring[(t.head-1-back+len(t.ring))%len(t.ring)], true
}

// DeliveryRatio returns delivered rows over rows with an outcome across the
// last n snapshots. ok is false until n snapshots exist.
func (t *SLITracker) DeliveryRatio(n int) (ratio float64, ok bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	newer, ok1 := t.snapshotAt(0)
	older, ok2 := t.snapshotAt(n - 1)
	if !ok1 || !ok2 {
		return 0, false
	}
	return rowRatio(newer, older), true
}

func rowRatio(newer, older sliSnapshot) float64 {
	return goodRatio(newer.rowsSent-older.rowsSent, newer.rowsDropped-older.rowsDropped)
}

func envelopeRatio(newer, older sliSnapshot) float64 {
	return goodRatio(newer.envelopesSent-older.envelopesSent, newer.envelopesDropped-older.envelopesDropped)
}

// goodRatio is 1 when nothing happened.
func goodRatio(good, bad uint64) float64 {
	total := float64(good) + float64(bad)
	if total == 0 {
		return 1.0
	}
	return float64(good) / total
}

// burnRate is the error rate relative to the allowed one; 1.0 consumes the
// budget exactly at SLO pace.
func burnRate(ratio, target float64) float64 {
	allowed := 1.0 - target
	if allowed <= 0 {
		return 0
	}
	return (1.0 - ratio) / allowed
}

// WriteSLIMetrics writes ratios and burn rates in Prometheus text format.
func (t *SLITracker) WriteSLIMetrics(w http.ResponseWriter) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	latest, ok := t.snapshotAt(0)
	if ok && t.count >= 2 {
		t.writeWindowed(w, "delivery_ratio", "Delivered rows over rows with an outcome", latest, rowRatio, 0)
		t.writeWindowed(w, "delivery_burn_rate", "Row delivery burn rate (1.0 = at SLO pace)", latest, rowRatio, t.config.DeliveryTarget)
		t.writeWindowed(w, "envelope_burn_rate", "Envelope success burn rate (1.0 = at SLO pace)", latest, envelopeRatio, t.config.EnvelopeTarget)
	}

	fmt.Fprintf(w, "# HELP stream_inserter_slo_target Configured SLO target\n")
	fmt.Fprintf(w, "# TYPE stream_inserter_slo_target gauge\n")
	fmt.Fprintf(w, "stream_inserter_slo_target{sli=\"delivery\"} %g\n", t.config.DeliveryTarget)
	fmt.Fprintf(w, "stream_inserter_slo_target{sli=\"envelope\"} %g\n", t.config.EnvelopeTarget)
	fmt.Fprintf(w, "# HELP stream_inserter_sli_uptime_seconds Seconds since SLI tracking started\n")
	fmt.Fprintf(w, "# TYPE stream_inserter_sli_uptime_seconds gauge\n")
	fmt.Fprintf(w, "stream_inserter_sli_uptime_seconds %g\n", math.Floor(time.Since(t.start).Seconds()))
	fmt.Fprintf(w, "# HELP stream_inserter_sli_snapshots_total SLI snapshots recorded\n")
	fmt.Fprintf(w, "# TYPE stream_inserter_sli_snapshots_total counter\n")
	fmt.Fprintf(w, "stream_inserter_sli_snapshots_total %d\n", t.snapshots)
}

// writeWindowed emits one series per window. A zero target writes the ratio
// itself, otherwise its burn rate. Must be called under mu.
func (t *SLITracker) writeWindowed(w http.ResponseWriter, name, help string, latest sliSnapshot,
	ratioFn func(newer, older sliSnapshot) float64, target float64) {
	fmt.Fprintf(w, "# HELP stream_inserter_sli_%s %s\n", name, help)
	fmt.Fprintf(w, "# TYPE stream_inserter_sli_%s gauge\n", name)
	for _, slots := range sliWindows {
		older, ok := t.snapshotAt(slots - 1)
		if !ok {
			continue
		}
		v := ratioFn(latest, older)
		if target > 0 {
			v = burnRate(v, target)
		}
		fmt.Fprintf(w, "stream_inserter_sli_%s{window_snapshots=\"%d\"} %g\n", name, slots, v)
	}
}
