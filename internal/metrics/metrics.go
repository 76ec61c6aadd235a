package metrics

import (
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registry = prometheus.NewRegistry()

	tasksRunning = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "spawnwait",
		Name:      "tasks_running",
		Help:      "Number of child processes currently running.",
	})

	tasksQueued = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "spawnwait",
		Name:      "tasks_queued",
		Help:      "Number of launches waiting for a free concurrency slot.",
	})

	taskCompletions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "spawnwait",
		Name:      "task_completions_total",
		Help:      "Total task completions by result (success, failure, signaled, error).",
	}, []string{"result"})

	taskDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "spawnwait",
		Name:      "task_duration_seconds",
		Help:      "Wall-clock runtime of tasks in seconds.",
	}, []string{"task"})

	buildInfo = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "spawnwait",
		Name:      "build_info",
		Help:      "Build metadata for the running spawnwait binary.",
	}, []string{"go_version", "vcs", "vcs_revision", "vcs_time", "vcs_modified"})

	buildInfoOnce sync.Once
)

func init() {
	registry.MustRegister(tasksRunning, tasksQueued, taskCompletions, taskDuration, buildInfo)
}

// Registry returns the Prometheus registry containing all spawnwait metrics.
func Registry() *prometheus.Registry {
	return registry
}

// SetSchedulerState records the current running and queued counts.
func SetSchedulerState(running, queued int) {
	tasksRunning.Set(float64(running))
	tasksQueued.Set(float64(queued))
}

// ObserveCompletion records one finished task.
func ObserveCompletion(task, result string, d time.Duration) {
	if result == "" {
		result = "unknown"
	}
	taskCompletions.WithLabelValues(result).Inc()
	if task == "" {
		task = "unknown"
	}
	taskDuration.WithLabelValues(task).Observe(d.Seconds())
}

// EmitBuildInfo publishes build metadata about the running binary.
func EmitBuildInfo() {
	buildInfoOnce.Do(func() {
		labels := prometheus.Labels{
			"go_version":   runtime.Version(),
			"vcs":          "",
			"vcs_revision": "",
			"vcs_time":     "",
			"vcs_modified": "",
		}
		if info, ok := debug.ReadBuildInfo(); ok {
			if info.GoVersion != "" {
				labels["go_version"] = info.GoVersion
			}
			for _, setting := range info.Settings {
				switch setting.Key {
				case "vcs":
					labels["vcs"] = setting.Value
				case "vcs.revision":
					labels["vcs_revision"] = setting.Value
				case "vcs.time":
					labels["vcs_time"] = setting.Value
				case "vcs.modified":
					labels["vcs_modified"] = setting.Value
				}
			}
		}
		buildInfo.With(labels).Set(1)
	})
}
