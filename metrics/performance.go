package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type PerformanceMetrics struct {
	RequestDuration  *prometheus.HistogramVec
	ImageProcessTime *prometheus.HistogramVec
	ImageSizeBytes   *prometheus.HistogramVec
}

func InitializePerformanceMetrics(registry prometheus.Registerer, constLabels prometheus.Labels) *PerformanceMetrics {
	metrics := &PerformanceMetrics{
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "request_duration_seconds",
			Help:        "Request duration in seconds",
			ConstLabels: constLabels,
			Buckets:     prometheus.DefBuckets,
		}, []string{"outcome"}),

		ImageProcessTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "image_process_time_seconds",
			Help:        "Image processing time in seconds",
			ConstLabels: constLabels,
			Buckets:     []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"operation"}),

		ImageSizeBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "image_size_bytes",
			Help:        "Served image size in bytes",
			ConstLabels: constLabels,
			Buckets:     []float64{1024, 10240, 102400, 1048576, 10485760}, // 1KB to 10MB
		}, []string{"outcome"}),
	}

	registry.MustRegister(
		metrics.RequestDuration,
		metrics.ImageProcessTime,
		metrics.ImageSizeBytes,
	)

	return metrics
}

// TimeFunction measures the execution time of a function
func TimeFunction[T any](fn func() (T, error), operation string, metrics *PerformanceMetrics) (T, error) {
	start := time.Now()
	result, err := fn()
	duration := time.Since(start).Seconds()

	if metrics != nil {
		metrics.ImageProcessTime.WithLabelValues(operation).Observe(duration)
	}

	return result, err
}

// TimeOperation returns a func that records the elapsed time when called
func TimeOperation(operation string, metrics *PerformanceMetrics) func() {
	start := time.Now()
	return func() {
		if metrics != nil {
			metrics.ImageProcessTime.WithLabelValues(operation).Observe(time.Since(start).Seconds())
		}
	}
}
