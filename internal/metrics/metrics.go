package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds every activelabel metric. A private registry keeps the
// textfile output free of Go runtime collectors.
var Registry = prometheus.NewRegistry()

var (
	EmbeddingRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "activelabel",
			Name:      "embedding_requests_total",
			Help:      "Total number of embedding requests",
		},
		[]string{"provider", "model", "status"},
	)

	EmbeddingRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "activelabel",
			Name:      "embedding_request_duration_seconds",
			Help:      "Embedding request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"provider", "model"},
	)

	EmbeddedTextsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "activelabel",
			Name:      "embedded_texts_total",
			Help:      "Total number of texts sent for embedding",
		},
		[]string{"provider", "model"},
	)

	PlatformRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "activelabel",
			Name:      "platform_requests_total",
			Help:      "Annotation platform GraphQL calls",
		},
		[]string{"operation", "status"},
	)

	ExperimentRoundsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "activelabel",
			Name:      "experiment_rounds_total",
			Help:      "Training rounds completed per sampling strategy",
		},
		[]string{"strategy"},
	)

	ExperimentLastAUC = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "activelabel",
			Name:      "experiment_last_roc_auc",
			Help:      "ROC-AUC of the most recent round per sampling strategy",
		},
		[]string{"strategy"},
	)
)

var registerOnce sync.Once

// Register adds all metrics to Registry. Safe to call more than once.
func Register() {
	registerOnce.Do(func() {
		Registry.MustRegister(
			EmbeddingRequestsTotal,
			EmbeddingRequestDuration,
			EmbeddedTextsTotal,
			PlatformRequestsTotal,
			ExperimentRoundsTotal,
			ExperimentLastAUC,
		)
	})
}

// WriteTextfile writes the registry in the node_exporter textfile format.
func WriteTextfile(path string) error {
	Register()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, Registry); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}
