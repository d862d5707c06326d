package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(workerTasksTotal) }

var workerTasksTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "worker_tasks_total",
		Help: "Background tasks by pool and result.",
	},
	[]string{"pool", "result"}, // result: ok|error|rejected
)

func IncWorkerTask(pool, result string) {
	workerTasksTotal.WithLabelValues(norm(pool), norm(result)).Inc()
}
