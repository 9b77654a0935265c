package buffer

import "github.com/prometheus/client_golang/prometheus"

var (
	pendingLength = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "stream_inserter_buffer_length",
		Help: "Current number of work units waiting to be sent",
	})

	pendingCapacity = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "stream_inserter_buffer_capacity",
		Help: "Maximum number of work units the buffer admits",
	})

	pendingAdmittedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stream_inserter_buffer_admitted_total",
		Help: "Total number of work units admitted to the buffer",
	})

	pendingBlockedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stream_inserter_buffer_blocked_producers_total",
		Help: "Total number of times a producer blocked on a full buffer",
	})

	pendingSplitGroupsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stream_inserter_buffer_split_groups_total",
		Help: "Total number of grouped writes admitted unit by unit because the group did not fit",
	})
)

func init() {
	prometheus.MustRegister(pendingLength)
	prometheus.MustRegister(pendingCapacity)
	prometheus.MustRegister(pendingAdmittedTotal)
	prometheus.MustRegister(pendingBlockedTotal)
	prometheus.MustRegister(pendingSplitGroupsTotal)

	pendingLength.Set(0)
	pendingCapacity.Set(0)
	pendingAdmittedTotal.Add(0)
	pendingBlockedTotal.Add(0)
	pendingSplitGroupsTotal.Add(0)
}
