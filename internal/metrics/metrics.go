package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Cache lookup results.
const (
	ResultHit    = "hit"
	ResultMiss   = "miss"
	ResultReload = "reload"
)

// Write outcomes.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Collector holds the store's Prometheus metrics. A nil *Collector is valid
// and records nothing.
type Collector struct {
	cacheLookups *prometheus.CounterVec
	writes       *prometheus.CounterVec
}

// NewCollector creates the metrics and registers them with reg.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		cacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "auditstore",
				Name:      "cache_lookups_total",
				Help:      "Identity map lookups by entity, key field and result.",
			},
			[]string{"entity", "field", "result"},
		),
		writes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "auditstore",
				Name:      "writes_total",
				Help:      "Write statements issued by entity, operation and outcome.",
			},
			[]string{"entity", "op", "status"},
		),
	}

	for _, col := range []prometheus.Collector{c.cacheLookups, c.writes} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// CacheLookup counts one identity map lookup.
func (c *Collector) CacheLookup(entity, field, result string) {
	if c == nil {
		return
	}
	c.cacheLookups.WithLabelValues(entity, field, result).Inc()
}

// Write counts one write operation; err decides the status label.
func (c *Collector) Write(entity, op string, err error) {
	if c == nil {
		return
	}
	status := StatusOK
	if err != nil {
		status = StatusError
	}
	c.writes.WithLabelValues(entity, op, status).Inc()
}
