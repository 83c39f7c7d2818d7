package metrics

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Config carries the constant labels stamped on every metric.
type Config struct {
	ServiceName string
	Environment string
}

func (c Config) constLabels() prometheus.Labels {
	service := strings.TrimSpace(c.ServiceName)
	if service == "" {
		service = "studygrove"
	}
	environment := strings.TrimSpace(c.Environment)
	if environment == "" {
		environment = "unknown"
	}
	return prometheus.Labels{"service": service, "env": environment}
}

// TaskMetrics captures task-queue worker health signals.
type TaskMetrics struct {
	executions      *prometheus.CounterVec
	duration        *prometheus.HistogramVec
	dedupDropped    *prometheus.CounterVec
	enqueueFailures *prometheus.CounterVec
}

var (
	taskMetricsOnce sync.Once
	taskMetrics     *TaskMetrics
)

// Tasks returns the singleton task metrics registry.
func Tasks() *TaskMetrics {
	return TasksWithConfig(Config{})
}

// TasksWithConfig returns the singleton task metrics registry using config labels.
func TasksWithConfig(cfg Config) *TaskMetrics {
	taskMetricsOnce.Do(func() {
		taskMetrics = newTaskMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return taskMetrics
}

// ResetTaskMetricsForTest unregisters the singleton's collectors and
// resets it so the next TasksWithConfig can register cleanly.
func ResetTaskMetricsForTest() {
	if taskMetrics != nil {
		prometheus.Unregister(taskMetrics.executions)
		prometheus.Unregister(taskMetrics.duration)
		prometheus.Unregister(taskMetrics.dedupDropped)
		prometheus.Unregister(taskMetrics.enqueueFailures)
	}
	taskMetricsOnce = sync.Once{}
	taskMetrics = nil
}

func newTaskMetrics(registerer prometheus.Registerer, cfg Config) *TaskMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	labels := cfg.constLabels()

	m := &TaskMetrics{
		executions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "studygrove_task_executions_total",
			Help:        "Task handler executions by task name and result.",
			ConstLabels: labels,
		}, []string{"task", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "studygrove_task_duration_seconds",
			Help:        "Task handler execution latency.",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}, []string{"task"}),
		dedupDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "studygrove_task_dedup_dropped_total",
			Help:        "Enqueues collapsed by an in-flight dedup lease.",
			ConstLabels: labels,
		}, []string{"task"}),
		enqueueFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "studygrove_task_enqueue_failures_total",
			Help:        "Task submissions lost to broker errors (healed by reconciliation).",
			ConstLabels: labels,
		}, []string{"task"}),
	}

	registerer.MustRegister(m.executions, m.duration, m.dedupDropped, m.enqueueFailures)
	return m
}

func (m *TaskMetrics) IncExecution(task string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.executions.WithLabelValues(task, result).Inc()
}

func (m *TaskMetrics) ObserveDuration(task string, d time.Duration) {
	if m == nil {
		return
	}
	m.duration.WithLabelValues(task).Observe(d.Seconds())
}

func (m *TaskMetrics) IncDedupDropped(task string) {
	if m == nil {
		return
	}
	m.dedupDropped.WithLabelValues(task).Inc()
}

func (m *TaskMetrics) IncEnqueueFailure(task string) {
	if m == nil {
		return
	}
	m.enqueueFailures.WithLabelValues(task).Inc()
}
