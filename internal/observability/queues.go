package observability

import (
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
)

// QueueInspector reports asynq queue state.
type QueueInspector interface {
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
}

// QueueCollector exports task counts per queue and state at scrape time.
type QueueCollector struct {
	inspector QueueInspector
	queues    []string
	logger    *slog.Logger
	tasks     *prometheus.Desc
	latency   *prometheus.Desc
}

// NewQueueCollector builds a collector for the named queues.
func NewQueueCollector(inspector QueueInspector, logger *slog.Logger, queues ...string) *QueueCollector {
	if logger == nil {
		logger = slog.Default()
	}
	return &QueueCollector{
		inspector: inspector,
		queues:    queues,
		logger:    logger,
		tasks: prometheus.NewDesc("vendai_queue_tasks",
			"Tasks in each asynq queue by state.", []string{"queue", "state"}, nil),
		latency: prometheus.NewDesc("vendai_queue_latency_seconds",
			"Age of the oldest pending task per queue.", []string{"queue"}, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *QueueCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.tasks
	ch <- c.latency
}

// Collect implements prometheus.Collector. Unknown queues report zero.
func (c *QueueCollector) Collect(ch chan<- prometheus.Metric) {
	if c.inspector == nil {
		return
	}
	for _, queue := range c.queues {
		info, err := c.inspector.GetQueueInfo(queue)
		if err != nil && !errors.Is(err, asynq.ErrQueueNotFound) {
			c.logger.Warn("collect queue info", slog.String("queue", queue), slog.Any("error", err))
			continue
		}
		if info == nil {
			info = &asynq.QueueInfo{Queue: queue}
		}
		states := map[string]int{
			"pending":   info.Pending,
			"active":    info.Active,
			"scheduled": info.Scheduled,
			"retry":     info.Retry,
			"archived":  info.Archived,
		}
		for state, n := range states {
			ch <- prometheus.MustNewConstMetric(c.tasks, prometheus.GaugeValue, float64(n), queue, state)
		}
		ch <- prometheus.MustNewConstMetric(c.latency, prometheus.GaugeValue, info.Latency.Seconds(), queue)
	}
}
