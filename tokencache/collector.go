package tokencache

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Counter is implemented by stores that can report how many entries they
// hold. Both Memory and Redis implement it.
type Counter interface {
	Count(ctx context.Context) (int, error)
}

// Count implements Counter.
func (m *Memory) Count(_ context.Context) (int, error) {
	return m.Len(), nil
}

// collectTimeout bounds a single scrape against a remote store.
const collectTimeout = 2 * time.Second

type collector struct {
	store   Counter
	entries *prometheus.Desc
}

// NewCollector returns a prometheus.Collector exporting the number of
// entries held by store as restexec_token_cache_entries.
//
// Example:
//
//	store := tokencache.NewMemory()
//	prometheus.MustRegister(tokencache.NewCollector(store, "memory"))
func NewCollector(store Counter, storeName string) prometheus.Collector {
	return &collector{
		store: store,
		entries: prometheus.NewDesc(
			"restexec_token_cache_entries",
			"Number of access tokens held by the token cache, expired ones included.",
			nil,
			prometheus.Labels{"store": storeName},
		),
	}
}

// Describe implements prometheus.Collector.
func (c *collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.entries
}

// Collect implements prometheus.Collector.
func (c *collector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), collectTimeout)
	defer cancel()

	n, err := c.store.Count(ctx)
	if err != nil {
		ch <- prometheus.NewInvalidMetric(c.entries, err)
		return
	}
	ch <- prometheus.MustNewConstMetric(c.entries, prometheus.GaugeValue, float64(n))
}
