package sender

import "github.com/prometheus/client_golang/prometheus"

var (
	envelopesSentTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stream_inserter_envelopes_sent_total",
		Help: "Total number of envelopes written to the stream",
	})

	rowsSentTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stream_inserter_rows_sent_total",
		Help: "Total number of rows written to the stream",
	})

	bytesSentTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stream_inserter_bytes_sent_total",
		Help: "Total envelope bytes written to the stream",
	})

	envelopeBytes = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "stream_inserter_envelope_bytes",
		Help:    "Size of written envelopes in bytes",
		Buckets: prometheus.ExponentialBuckets(1024, 4, 8),
	})

	retriesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stream_inserter_retries_total",
		Help: "Total number of envelopes retried on a reopened stream",
	})

	reconnectsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stream_inserter_reconnects_total",
		Help: "Total number of stream reopen attempts by result",
	}, []string{"result"})

	droppedEnvelopesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stream_inserter_dropped_envelopes_total",
		Help: "Total number of envelopes dropped after a failed write, by error type",
	}, []string{"error_type"})

	droppedRowsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stream_inserter_dropped_rows_total",
		Help: "Total number of rows lost with dropped envelopes, by error type",
	}, []string{"error_type"})

	connectionState = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "stream_inserter_connection_state",
		Help: "Sender connection state (0=connected, 1=probing, 2=reconnecting, 3=failed)",
	})
)

func init() {
	prometheus.MustRegister(envelopesSentTotal)
	prometheus.MustRegister(rowsSentTotal)
	prometheus.MustRegister(bytesSentTotal)
	prometheus.MustRegister(envelopeBytes)
	prometheus.MustRegister(retriesTotal)
	prometheus.MustRegister(reconnectsTotal)
	prometheus.MustRegister(droppedEnvelopesTotal)
	prometheus.MustRegister(droppedRowsTotal)
	prometheus.MustRegister(connectionState)

	envelopesSentTotal.Add(0)
	rowsSentTotal.Add(0)
	bytesSentTotal.Add(0)
	retriesTotal.Add(0)
	connectionState.Set(0)
}
