// Package obs holds the scan's Prometheus counters.
package obs

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	datasetsProcessed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scan_datasets_processed_total",
		Help: "Datasets enumerated by the scan loop.",
	})

	resourcesProcessed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scan_resources_processed_total",
		Help: "Resources that went through download/parse/extract.",
	})

	resourcesSkipped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scan_resources_skipped_total",
			Help: "Resources skipped, by reason.",
		},
		[]string{"reason"},
	)

	findingsPersisted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scan_findings_persisted_total",
		Help: "Resources with at least one valid CPF persisted.",
	})

	cpfsFound = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scan_cpfs_found_total",
		Help: "Valid CPFs persisted across all findings.",
	})
)

// Init registers the counters with the default registry. Call once
// from main; the counters work unregistered too, which keeps tests
// from fighting over the registry.
func Init() {
	prometheus.MustRegister(datasetsProcessed, resourcesProcessed,
		resourcesSkipped, findingsPersisted, cpfsFound)
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

func IncDatasets() { datasetsProcessed.Inc() }

func IncResources() { resourcesProcessed.Inc() }

func IncSkipped(reason string) { resourcesSkipped.WithLabelValues(reason).Inc() }

func IncFindings() { findingsPersisted.Inc() }

func AddCPFs(n int) { cpfsFound.Add(float64(n)) }
