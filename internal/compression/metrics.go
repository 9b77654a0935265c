package compression

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	compressionPoolGets     atomic.Int64
	compressionPoolPuts     atomic.Int64
	compressionPoolDiscards atomic.Int64
	compressionPoolNews     atomic.Int64
)

func init() {
	prometheus.MustRegister(
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "stream_inserter_compression_pool_gets_total",
			Help: "Pool.Get() calls for zstd encoders and decoders",
		}, func() float64 { return float64(compressionPoolGets.Load()) }),

		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "stream_inserter_compression_pool_puts_total",
			Help: "Pool.Put() calls for zstd encoders and decoders",
		}, func() float64 { return float64(compressionPoolPuts.Load()) }),

		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "stream_inserter_compression_pool_discards_total",
			Help: "zstd coders discarded after a failed reset",
		}, func() float64 { return float64(compressionPoolDiscards.Load()) }),

		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "stream_inserter_compression_pool_new_total",
			Help: "New zstd coders created (pool miss)",
		}, func() float64 { return float64(compressionPoolNews.Load()) }),
	)
}
