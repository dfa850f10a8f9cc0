// Package metrics records reconciliation and verification outcomes as
// Prometheus counters and exports them in the node_exporter textfile format.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ochairo/carbonrepo/internal/domain/entities"
)

const namespace = "carbonrepo"

const (
	checksTotal        = "checks_total"
	assetsTotal        = "asset_verifications_total"
	mismatchesTotal    = "hash_mismatches_total"
	itemsTotal         = "items_processed_total"
	lastRunTimestamp   = "last_run_timestamp_seconds"
	assetResultMatch   = "match"
	assetResultMiss    = "mismatch"
	assetResultError   = "error"
	assetResultNoValue = "unrecorded"
)

// Recorder owns a private registry so repeated construction in one process
// never trips duplicate registration
type Recorder struct {
	registry   *prometheus.Registry
	checks     *prometheus.CounterVec
	assets     *prometheus.CounterVec
	mismatches prometheus.Counter
	items      *prometheus.CounterVec
	lastRun    *prometheus.GaugeVec
}

// NewRecorder creates a recorder with all collectors registered
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		checks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      checksTotal,
			Help:      "Reconciliation outcomes by status",
		}, []string{"status"}),
		assets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      assetsTotal,
			Help:      "Asset verifications by result",
		}, []string{"result"}),
		mismatches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      mismatchesTotal,
			Help:      "Assets whose digest differed from the recorded one",
		}),
		items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      itemsTotal,
			Help:      "Tracked items processed by operation and result",
		}, []string{"operation", "result"}),
		lastRun: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      lastRunTimestamp,
			Help:      "Unix time of the last completed run by operation",
		}, []string{"operation"}),
	}

	r.registry.MustRegister(r.checks, r.assets, r.mismatches, r.items, r.lastRun)
	return r
}

// Registry exposes the underlying gatherer
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// ObserveAsset counts one asset verification
func (r *Recorder) ObserveAsset(v entities.AssetVerification) {
	switch {
	case v.Failed():
		r.assets.WithLabelValues(assetResultError).Inc()
	case v.Mismatched():
		r.assets.WithLabelValues(assetResultMiss).Inc()
		r.mismatches.Inc()
	case v.Matched != nil:
		r.assets.WithLabelValues(assetResultMatch).Inc()
	default:
		r.assets.WithLabelValues(assetResultNoValue).Inc()
	}
}

// ObserveItem counts one processed item for operation
func (r *Recorder) ObserveItem(operation string, err error) {
	result := "ok"
	if err != nil {
		result = "failed"
	}
	r.items.WithLabelValues(operation, result).Inc()
}

// MarkRun records the completion time of operation
func (r *Recorder) MarkRun(operation string) {
	r.lastRun.WithLabelValues(operation).SetToCurrentTime()
}

// Observe adapts the recorder to an engine event stream
func (r *Recorder) Observe(ev entities.Event) {
	switch ev.Kind {
	case entities.EventItemChecked:
		r.checks.WithLabelValues(string(ev.Status)).Inc()
	case entities.EventAssetVerified:
		if ev.Asset != nil {
			r.ObserveAsset(*ev.Asset)
		}
	case entities.EventItemUpdated:
		r.ObserveItem("update", nil)
	case entities.EventItemFailed:
		r.ObserveItem("update", ev.Err)
	case entities.EventItemVerified:
		r.ObserveItem("verify", ev.Err)
	case entities.EventCheckFinished:
		r.MarkRun("check")
	case entities.EventVerifyFinished:
		r.MarkRun("verify")
	}
}

// WriteTextfile writes every collected metric to path in the Prometheus
// text exposition format, creating the parent directory if needed
func (r *Recorder) WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create metrics directory: %w", err)
		}
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}
