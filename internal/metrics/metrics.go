package metrics

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	reg *prometheus.Registry

	LinesTracked prometheus.Gauge

	SectionsAttached prometheus.Counter
	SectionsDetached prometheus.Counter
	StationsOrphaned prometheus.Counter
	Rejections       *prometheus.CounterVec // reason label: duplicate|disconnected|topology|invalid|not_in_path

	NATSPublished   prometheus.Counter
	NATSPublishErrs prometheus.Counter
	NATSConnected   prometheus.Gauge

	MutationDuration prometheus.Histogram
	PublishDuration  prometheus.Histogram
}

func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		LinesTracked: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "topology_lines_tracked",
			Help: "Number of lines with a path held in memory.",
		}),
		SectionsAttached: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "topology_sections_attached_total",
			Help: "Total sections attached to line paths.",
		}),
		SectionsDetached: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "topology_sections_detached_total",
			Help: "Total sections removed from line paths.",
		}),
		StationsOrphaned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "topology_stations_orphaned_total",
			Help: "Total stations cut off a line path by interior removals.",
		}),
		Rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "topology_rejections_total",
			Help: "Mutations rejected by path invariants.",
		}, []string{"reason"}),
		NATSPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "topology_nats_published_total",
			Help: "Total NATS messages published.",
		}),
		NATSPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "topology_nats_publish_errors_total",
			Help: "Total NATS publish errors.",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "topology_nats_connected",
			Help: "1 if NATS connection is established, 0 otherwise.",
		}),
		MutationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "topology_mutation_duration_seconds",
			Help:    "Duration of successful path mutations including commit.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 15),
		}),
		PublishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "topology_publish_duration_seconds",
			Help:    "Duration to marshal and publish a NATS message.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}),
	}

	reg.MustRegister(
		c.LinesTracked,
		c.SectionsAttached, c.SectionsDetached, c.StationsOrphaned, c.Rejections,
		c.NATSPublished, c.NATSPublishErrs, c.NATSConnected,
		c.MutationDuration, c.PublishDuration,
	)

	return c
}

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// Serve starts an HTTP server exposing /metrics on the given address.
func (c *Collector) Serve(addr string, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", "error", err)
		}
	}()
	logger.Info("metrics listening", "addr", addr)
	return srv
}
