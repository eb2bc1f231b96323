package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/arcafs/arca/pkg/metrics"
	"github.com/arcafs/arca/pkg/signals"
)

// ObserveSignals subscribes object traffic counters to the engine's domain
// events: downloads and download volume per bucket, deletions split into
// delete markers and destroyed versions.
//
// No-op if metrics are not enabled (InitRegistry not called).
func ObserveSignals(hub *signals.Hub) {
	if !metrics.IsEnabled() {
		return
	}

	reg := metrics.GetRegistry()

	downloads := promauto.With(reg).NewCounterVec(
		prometheus.CounterOpts{
			Name: "arca_object_downloads_total",
			Help: "Total number of object downloads by bucket",
		},
		[]string{"bucket"},
	)
	downloadBytes := promauto.With(reg).NewCounterVec(
		prometheus.CounterOpts{
			Name: "arca_object_download_bytes_total",
			Help: "Total bytes of object content served by bucket",
		},
		[]string{"bucket"},
	)
	deletes := promauto.With(reg).NewCounterVec(
		prometheus.CounterOpts{
			Name: "arca_object_deletes_total",
			Help: "Total number of object deletions by bucket and mode",
		},
		[]string{"bucket", "mode"}, // "marker", "version"
	)

	hub.On(signals.FileDownloaded, func(e signals.Event) {
		downloads.WithLabelValues(e.Bucket).Inc()
		downloadBytes.WithLabelValues(e.Bucket).Add(float64(e.Size))
	})
	hub.On(signals.FileDeleted, func(e signals.Event) {
		mode := "version"
		if e.FileID == "" {
			mode = "marker"
		}
		deletes.WithLabelValues(e.Bucket, mode).Inc()
	})
}
