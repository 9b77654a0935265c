package receiver

import "github.com/prometheus/client_golang/prometheus"

var (
	receiverStreamsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stream_inserter_receiver_streams_total",
		Help: "Write streams handled, by final status code",
	}, []string{"code"})

	receiverRequestsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stream_inserter_receiver_requests_total",
		Help: "Envelopes received",
	})

	receiverRowsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stream_inserter_receiver_rows_total",
		Help: "Rows accepted, by database",
	}, []string{"database"})

	receiverRejectedPointsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stream_inserter_receiver_rejected_points_total",
		Help: "Data points rejected for a missing table name",
	})
)

func init() {
	prometheus.MustRegister(
		receiverStreamsTotal,
		receiverRequestsTotal,
		receiverRowsTotal,
		receiverRejectedPointsTotal,
	)
	receiverRequestsTotal.Add(0)
	receiverRejectedPointsTotal.Add(0)
}
