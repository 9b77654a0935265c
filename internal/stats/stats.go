// Package stats keeps in-process delivery accounting for an inserter: rows
// admitted, sent and dropped, and the number of distinct series written.
package stats

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/szibis/stream-inserter/internal/cardinality"
	"github.com/szibis/stream-inserter/internal/logging"
	"github.com/szibis/stream-inserter/internal/request"
)

// Snapshot is a consistent copy of the collector counters.
type Snapshot struct {
	UnitsAdmitted    uint64
	RowsAdmitted     uint64
	RowsSent         uint64
	BytesSent        uint64
	EnvelopesSent    uint64
	RowsDropped      uint64
	EnvelopesDropped uint64
	Retries          uint64
	Series           int64
}

// Collector implements the inserter stats hook. It is safe for concurrent
// use by producers and the sender.
type Collector struct {
	mu      sync.Mutex
	tracker cardinality.Tracker
	snap    Snapshot

	sli *SLITracker
}

// NewCollector creates a collector counting distinct series with tracker.
// A nil tracker disables series counting.
func NewCollector(tracker cardinality.Tracker) *Collector {
	return &Collector{
		tracker: tracker,
		sli:     NewSLITracker(DefaultSLIConfig()),
	}
}

// RecordAdmitted counts units accepted into the buffer.
func (c *Collector) RecordAdmitted(units []request.Unit) {
	rows := 0
	for _, u := range units {
		rows += u.Rows()
		if c.tracker != nil {
			cardinality.Observe(c.tracker, u.ResourceMetrics())
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.snap.UnitsAdmitted += uint64(len(units))
	c.snap.RowsAdmitted += uint64(rows)
}

// RecordSent counts one delivered envelope.
func (c *Collector) RecordSent(rows, bytes int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snap.EnvelopesSent++
	c.snap.RowsSent += uint64(rows)
	c.snap.BytesSent += uint64(bytes)
}

// RecordDropped counts one dropped envelope.
func (c *Collector) RecordDropped(rows int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snap.EnvelopesDropped++
	c.snap.RowsDropped += uint64(rows)
}

// RecordRetry counts one reconnect-and-retry.
func (c *Collector) RecordRetry() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snap.Retries++
}

// Snapshot returns the current counters.
func (c *Collector) Snapshot() Snapshot {
	c.mu.Lock()
	s := c.snap
	c.mu.Unlock()
	if c.tracker != nil {
		s.Series = c.tracker.Count()
	}
	return s
}

// SLI returns the delivery SLI tracker fed by StartPeriodicLogging.
func (c *Collector) SLI() *SLITracker {
	return c.sli
}

// StartPeriodicLogging logs a summary every interval and feeds the SLI
// tracker until ctx is done.
func (c *Collector) StartPeriodicLogging(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s := c.Snapshot()
			c.sli.RecordSnapshot(s)
			logging.Info("stats", logging.F(
				"rows_admitted", s.RowsAdmitted,
				"rows_sent", s.RowsSent,
				"rows_dropped", s.RowsDropped,
				"envelopes_sent", s.EnvelopesSent,
				"bytes_sent", s.BytesSent,
				"retries", s.Retries,
				"series", s.Series,
			))
		}
	}
}

// ServeHTTP writes the counters in Prometheus text format.
func (c *Collector) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	s := c.Snapshot()
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	writeMetric(w, "rows_admitted_total", "counter", "Rows accepted into the buffer", s.RowsAdmitted)
	writeMetric(w, "units_admitted_total", "counter", "Work units accepted into the buffer", s.UnitsAdmitted)
	writeMetric(w, "stats_rows_sent_total", "counter", "Rows delivered to the stream", s.RowsSent)
	writeMetric(w, "stats_rows_dropped_total", "counter", "Rows lost with dropped envelopes", s.RowsDropped)
	writeMetric(w, "stats_envelopes_dropped_total", "counter", "Envelopes dropped after a failed write", s.EnvelopesDropped)
	if c.tracker != nil {
		writeMetric(w, "series_estimate", "gauge", "Estimated distinct series written", uint64(s.Series))
		writeMetric(w, "series_tracker_bytes", "gauge", "Approximate series tracker memory", c.tracker.MemoryUsage())
	}

	c.sli.WriteSLIMetrics(w)
}

func writeMetric(w http.ResponseWriter, name, kind, help string, v uint64) {
	fmt.Fprintf(w, "# HELP stream_inserter_%s %s\n", name, help)
	fmt.Fprintf(w, "# TYPE stream_inserter_%s %s\n", name, kind)
	fmt.Fprintf(w, "stream_inserter_%s %d\n", name, v)
}
