package status

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "boundguard"

// Collector exports registry snapshots as prometheus metrics on every
// scrape. Breaker and loop states are exported as their numeric values.
type Collector struct {
	registry *Registry

	breakerState       *prometheus.Desc
	breakerFailures    *prometheus.Desc
	limiterKeys        *prometheus.Desc
	limiterAllowed     *prometheus.Desc
	limiterDenied      *prometheus.Desc
	bulkheadInUse      *prometheus.Desc
	bulkheadMax        *prometheus.Desc
	bulkheadRejected   *prometheus.Desc
	loopState          *prometheus.Desc
	loopConsecutive    *prometheus.Desc
	loopProcessed      *prometheus.Desc
	loopFailed         *prometheus.Desc
	loopRejected       *prometheus.Desc
	collectionSize     *prometheus.Desc
	collectionCapacity *prometheus.Desc
	collectionEvicted  *prometheus.Desc
	sentinelDropped    *prometheus.Desc
}

// NewCollector creates a collector over r.
func NewCollector(r *Registry) *Collector {
	desc := func(subsystem, name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, subsystem, name), help, labels, prometheus.Labels{"service": r.Service()})
	}
	return &Collector{
		registry:           r,
		breakerState:       desc("breaker", "state", "Circuit breaker state (0 closed, 1 open, 2 half-open).", "breaker"),
		breakerFailures:    desc("breaker", "failures", "Consecutive failures counted by the breaker.", "breaker"),
		limiterKeys:        desc("ratelimiter", "keys", "Token buckets currently held.", "limiter"),
		limiterAllowed:     desc("ratelimiter", "allowed_total", "Requests admitted.", "limiter"),
		limiterDenied:      desc("ratelimiter", "denied_total", "Requests rate limited.", "limiter"),
		bulkheadInUse:      desc("bulkhead", "in_use", "Bulkhead slots in use.", "bulkhead"),
		bulkheadMax:        desc("bulkhead", "max_concurrent", "Bulkhead slot count.", "bulkhead"),
		bulkheadRejected:   desc("bulkhead", "rejected_total", "Calls rejected for lack of a slot.", "bulkhead"),
		loopState:          desc("loop", "state", "Loop state (0 idle, 1 running, 2 draining, 3 stopped).", "loop"),
		loopConsecutive:    desc("loop", "consecutive_errors", "Current failure streak.", "loop"),
		loopProcessed:      desc("loop", "processed_total", "Items processed successfully.", "loop"),
		loopFailed:         desc("loop", "failed_total", "Items and polls that failed.", "loop"),
		loopRejected:       desc("loop", "rejected_total", "Items rejected by admission.", "loop"),
		collectionSize:     desc("memory", "size", "Items held by a bounded structure.", "collection"),
		collectionCapacity: desc("memory", "capacity", "Capacity of a bounded structure.", "collection"),
		collectionEvicted:  desc("memory", "evicted_total", "Items evicted from a bounded structure.", "collection"),
		sentinelDropped:    desc("memory", "dropped_total", "Items the sentinel could not store."),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.breakerState, c.breakerFailures,
		c.limiterKeys, c.limiterAllowed, c.limiterDenied,
		c.bulkheadInUse, c.bulkheadMax, c.bulkheadRejected,
		c.loopState, c.loopConsecutive, c.loopProcessed, c.loopFailed, c.loopRejected,
		c.collectionSize, c.collectionCapacity, c.collectionEvicted, c.sentinelDropped,
	} {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	doc := c.registry.Snapshot()

	gauge := func(d *prometheus.Desc, v float64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v, labels...)
	}
	counter := func(d *prometheus.Desc, v float64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, v, labels...)
	}

	for _, b := range doc.Breakers {
		gauge(c.breakerState, float64(b.State), b.Name)
		gauge(c.breakerFailures, float64(b.FailureCount), b.Name)
	}
	for _, l := range doc.RateLimiters {
		gauge(c.limiterKeys, float64(l.Keys), l.Name)
		counter(c.limiterAllowed, float64(l.Allowed), l.Name)
		counter(c.limiterDenied, float64(l.Denied), l.Name)
	}
	for _, b := range doc.Bulkheads {
		gauge(c.bulkheadInUse, float64(b.InUse), b.Name)
		gauge(c.bulkheadMax, float64(b.MaxConcurrent), b.Name)
		counter(c.bulkheadRejected, float64(b.Rejected), b.Name)
	}
	for _, l := range doc.Loops {
		gauge(c.loopState, float64(l.State), l.Name)
		gauge(c.loopConsecutive, float64(l.ConsecutiveErrors), l.Name)
		counter(c.loopProcessed, float64(l.Processed), l.Name)
		counter(c.loopFailed, float64(l.Failed), l.Name)
		counter(c.loopRejected, float64(l.Rejected), l.Name)
	}
	if doc.Memory != nil {
		for _, s := range doc.Memory.Collections {
			gauge(c.collectionSize, float64(s.Size), s.Name)
			gauge(c.collectionCapacity, float64(s.Capacity), s.Name)
			counter(c.collectionEvicted, float64(s.Evicted), s.Name)
		}
		counter(c.sentinelDropped, float64(doc.Memory.Dropped))
	}
}
