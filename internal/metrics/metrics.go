package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	log "github.com/sirupsen/logrus"
)

const (
	namespace = "crypto_alert"
	subsystem = "bot"
)

var (
	CommandsProcessed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "commands_processed",
		Help:      "The total number of processed commands",
	})
	SweepsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "sweeps_total",
		Help:      "Periodic task runs by task name",
	}, []string{"task"})
	SweepsSkipped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "sweeps_skipped_total",
		Help:      "Periodic task runs skipped because the previous run was still in progress",
	}, []string{"task"})
	PriceFetchFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "price_fetch_failures_total",
		Help:      "Price lookups that failed during alert sweeps",
	})
	AlertsTriggered = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "alerts_triggered_total",
		Help:      "Alerts that moved from watching to triggered",
	})
	DeliveriesFailed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "deliveries_failed_total",
		Help:      "Notifications that could not be delivered",
	})
	PersistFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "persist_failures_total",
		Help:      "Alert sweeps whose results could not be written to storage",
	})
	NewsPosted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "news_posted_total",
		Help:      "News items announced",
	})
	WatchingAlerts = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "watching_alerts",
		Help:      "Alerts currently watching",
	})
	DirectorySize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "directory_coins",
		Help:      "Coins in the coin directory",
	})
	NewsCacheSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "news_cache_entries",
		Help:      "Entries in the announced news cache",
	})
)

// Persisted lists the counters carried across restarts, keyed by the name
// they are stored under.
var Persisted = map[string]prometheus.Counter{
	"commands_processed":      CommandsProcessed,
	"alerts_triggered_total":  AlertsTriggered,
	"deliveries_failed_total": DeliveriesFailed,
	"persist_failures_total":  PersistFailures,
	"news_posted_total":       NewsPosted,
}

var registerOnce sync.Once

// Register adds all collectors to the default registry. Safe to call more
// than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			CommandsProcessed,
			SweepsTotal,
			SweepsSkipped,
			PriceFetchFailures,
			AlertsTriggered,
			DeliveriesFailed,
			PersistFailures,
			NewsPosted,
			WatchingAlerts,
			DirectorySize,
			NewsCacheSize,
		)
	})
}

// Value reads the current value of a single counter or gauge.
func Value(metric prometheus.Collector) float64 {
	metricChan := make(chan prometheus.Metric, 1)
	metric.Collect(metricChan)
	close(metricChan)

	m, ok := <-metricChan
	if !ok {
		return 0
	}
	metricProto := &dto.Metric{}
	if err := m.Write(metricProto); err != nil {
		log.Errorf("Failed to read metric value: %v", err)
		return 0
	}

	if metricProto.Counter != nil {
		return metricProto.Counter.GetValue()
	} else if metricProto.Gauge != nil {
		return metricProto.Gauge.GetValue()
	}
	return 0
}
