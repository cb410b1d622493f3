package prometheus

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mcloones/mcloones"
	"github.com/mcloones/mcloones/metrics/export/internaldefs"
)

type metricsSource interface {
	MetricsSnapshot() mcloones.MetricsSnapshot
	AuditDropped() uint64
}

type histogramDesc struct {
	id   mcloones.MetricID
	desc *prometheus.Desc
}

// Collector implements prometheus.Collector over a metrics source.
type Collector struct {
	source     metricsSource
	counters   map[mcloones.MetricID]*prometheus.Desc
	order      []mcloones.MetricID
	histograms []histogramDesc
	dropped    *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector reads from source, typically a *mcloones.Manager.
func NewCollector(source metricsSource) *Collector {
	c := &Collector{
		source:   source,
		counters: make(map[mcloones.MetricID]*prometheus.Desc, len(internaldefs.CounterDefs)),
		order:    make([]mcloones.MetricID, 0, len(internaldefs.CounterDefs)),
		dropped:  prometheus.NewDesc(internaldefs.AuditDroppedName, internaldefs.AuditDroppedHelp, nil, nil),
	}
	for _, def := range internaldefs.CounterDefs {
		c.counters[def.ID] = prometheus.NewDesc(def.Name, def.Help, nil, nil)
		c.order = append(c.order, def.ID)
	}
	for _, def := range internaldefs.HistogramDefs {
		c.histograms = append(c.histograms, histogramDesc{
			id:   def.ID,
			desc: prometheus.NewDesc(def.Name, def.Help, nil, nil),
		})
	}
	return c
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, id := range c.order {
		ch <- c.counters[id]
	}
	for _, h := range c.histograms {
		ch <- h.desc
	}
	ch <- c.dropped
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if c.source == nil {
		return
	}
	snapshot := c.source.MetricsSnapshot()

	for _, id := range c.order {
		ch <- prometheus.MustNewConstMetric(c.counters[id], prometheus.CounterValue, float64(snapshot.Counters[id]))
	}

	for _, h := range c.histograms {
		raw, ok := snapshot.Histograms[h.id]
		if !ok {
			continue
		}
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(raw))
		buckets := make(map[float64]uint64, len(internaldefs.HistogramBounds))
		for i, le := range internaldefs.HistogramBounds {
			buckets[le] = cumulative[i]
		}
		ch <- prometheus.MustNewConstHistogram(h.desc, cumulative[len(cumulative)-1], 0, buckets)
	}

	ch <- prometheus.MustNewConstMetric(c.dropped, prometheus.CounterValue, float64(c.source.AuditDropped()))
}

// Handler registers a Collector for source on a private registry and serves it.
func Handler(source metricsSource) (http.Handler, error) {
	reg := prometheus.NewRegistry()
	if err := reg.Register(NewCollector(source)); err != nil {
		return nil, err
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), nil
}
