package transport

import "github.com/prometheus/client_golang/prometheus"

var (
	streamsOpenedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stream_inserter_streams_opened_total",
		Help: "Total number of write streams opened, including reopens",
	})

	streamErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stream_inserter_stream_errors_total",
		Help: "Total number of stream operation failures by operation and error type",
	}, []string{"op", "error_type"})

	streamBytesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stream_inserter_stream_bytes_total",
		Help: "Total uncompressed bytes written to streams",
	})
)

func init() {
	prometheus.MustRegister(streamsOpenedTotal)
	prometheus.MustRegister(streamErrorsTotal)
	prometheus.MustRegister(streamBytesTotal)

	streamsOpenedTotal.Add(0)
	streamBytesTotal.Add(0)
}

func recordStreamError(e *StreamError) {
	streamErrorsTotal.WithLabelValues(e.Op, string(e.Type)).Inc()
}
