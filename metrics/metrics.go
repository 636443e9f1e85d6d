// Package metrics exports task and pipeline runs as Prometheus metrics.
//
//	reg := prometheus.NewRegistry()
//	obs := metrics.New("forge")
//	reg.MustRegister(obs)
//	m.Execute(ctx, names, forge.WithObserver(obs))
//	http.Handle("/metrics", metrics.Handler(reg))
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/a2y-d5l/forge"
)

// Observer is a forge.Observer recording runs and a prometheus.Collector
// exposing them. It is safe for concurrent use, so one Observer can watch
// pipelines and services at once.
type Observer struct {
	tasks     *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	running   *prometheus.GaugeVec
	pipelines *prometheus.CounterVec
	pipeDur   prometheus.Histogram
}

// New returns an Observer whose metrics are prefixed with namespace.
func New(namespace string) *Observer {
	return &Observer{
		tasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_total",
			Help:      "Finished task runs by task, status and event handler.",
		}, []string{"task", "status", "handler"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_duration_seconds",
			Help:      "Duration of task runs that were not skipped.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}, []string{"task"}),
		running: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tasks_running",
			Help:      "Task runs in progress.",
		}, []string{"task"}),
		pipelines: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipelines_total",
			Help:      "Finished pipeline runs by outcome.",
		}, []string{"outcome"}),
		pipeDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_duration_seconds",
			Help:      "Duration of pipeline runs.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 4, 8),
		}),
	}
}

func (o *Observer) collectors() []prometheus.Collector {
	return []prometheus.Collector{o.tasks, o.duration, o.running, o.pipelines, o.pipeDur}
}

// Describe implements prometheus.Collector.
func (o *Observer) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range o.collectors() {
		c.Describe(ch)
	}
}

// Collect implements prometheus.Collector.
func (o *Observer) Collect(ch chan<- prometheus.Metric) {
	for _, c := range o.collectors() {
		c.Collect(ch)
	}
}

// HandleEvent implements forge.Observer.
func (o *Observer) HandleEvent(e forge.Event) {
	switch e.Type {
	case forge.EventTaskStarted:
		o.running.WithLabelValues(e.Task.Name).Inc()
	case forge.EventTaskFinished:
		if e.Result == nil {
			return
		}
		r := e.Result
		o.tasks.WithLabelValues(r.Name, r.Status.String(), e.Handler).Inc()
		// tasks skipped by a pipeline hook never started
		if r.SkipReason != forge.SkipPipelineHook {
			o.running.WithLabelValues(r.Name).Dec()
		}
		if r.Status != forge.ResultSkipped {
			o.duration.WithLabelValues(r.Name).Observe(r.Duration.Seconds())
		}
	case forge.EventPipelineFinished:
		if e.Pipeline == nil {
			return
		}
		o.pipelines.WithLabelValues(Outcome(*e.Pipeline)).Inc()
		o.pipeDur.Observe(e.Pipeline.Duration.Seconds())
	}
}

// Outcome labels a pipeline result: "canceled", "succeeded" or "failed".
func Outcome(r forge.PipelineResult) string {
	switch {
	case r.Canceled:
		return "canceled"
	case r.OK():
		return "succeeded"
	default:
		return "failed"
	}
}

// Handler serves the metrics gathered by g in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
