package opfs

import "github.com/prometheus/client_golang/prometheus"

// Keys for opfs metrics.
const (
	Fail = "fail"
	Ok   = "ok"
)

// Collectors for Backend metrics.
var (
	OpenTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "opfs_open_total",
		Help: "Cumulative number of Backend opens, by status.",
	}, []string{"status"})
	OpsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "opfs_ops_total",
		Help: "Cumulative number of Backend operations, by operation and status.",
	}, []string{"op", "status"})
	BytesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "opfs_bytes_total",
		Help: "Cumulative number of bytes read or written through a Backend.",
	}, []string{"op"})
	ErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "opfs_errors_total",
		Help: "Cumulative number of errors returned by Backends, by kind.",
	}, []string{"kind"})
)

// Collectors returns the opfs metric collectors, for registration.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		OpenTotal,
		OpsTotal,
		BytesTotal,
		ErrorsTotal,
	}
}

func observe(op string, n int, err error) {
	if err != nil {
		OpsTotal.WithLabelValues(op, Fail).Inc()
		ErrorsTotal.WithLabelValues(KindOf(err).String()).Inc()
		return
	}
	OpsTotal.WithLabelValues(op, Ok).Inc()

	if n != 0 {
		BytesTotal.WithLabelValues(op).Add(float64(n))
	}
}
