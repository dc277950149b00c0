package main

import (
	"time"

	"line-topology/internal/metrics"
	"line-topology/internal/publisher"
	"line-topology/internal/topology"
)

// wrapPublisherMetrics adapts our Collector to the PublisherMetrics interface.
func wrapPublisherMetrics(c *metrics.Collector) publisher.PublisherMetrics {
	if c == nil {
		return nil
	}
	return &pubMetrics{c: c}
}

type pubMetrics struct{ c *metrics.Collector }

func (p *pubMetrics) NATSPublishedInc()              { p.c.NATSPublished.Inc() }
func (p *pubMetrics) NATSPublishErrInc()             { p.c.NATSPublishErrs.Inc() }
func (p *pubMetrics) PublishObserve(d time.Duration) { p.c.PublishDuration.Observe(d.Seconds()) }
func (p *pubMetrics) NATSSetConnected(b bool) {
	if b {
		p.c.NATSConnected.Set(1)
	} else {
		p.c.NATSConnected.Set(0)
	}
}

// wrapTopologyMetrics adapts our Collector to topology.Metrics.
func wrapTopologyMetrics(c *metrics.Collector) topology.Metrics {
	if c == nil {
		return nil
	}
	return &topoMetrics{c: c}
}

type topoMetrics struct{ c *metrics.Collector }

func (t *topoMetrics) SectionsAttached(n int)          { t.c.SectionsAttached.Add(float64(n)) }
func (t *topoMetrics) SectionsDetached(n int)          { t.c.SectionsDetached.Add(float64(n)) }
func (t *topoMetrics) StationsOrphaned(n int)          { t.c.StationsOrphaned.Add(float64(n)) }
func (t *topoMetrics) Rejected(reason string)          { t.c.Rejections.WithLabelValues(reason).Inc() }
func (t *topoMetrics) LinesTracked(n int)              { t.c.LinesTracked.Set(float64(n)) }
func (t *topoMetrics) MutationObserve(d time.Duration) { t.c.MutationDuration.Observe(d.Seconds()) }
