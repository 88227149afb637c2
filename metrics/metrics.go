package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"text2phenotype.com/recognizer/types"
)

const namespace = "recognizer"

// Recognition holds the recognizer's collectors. It implements recognizer.Observer
// for one configuration through ForConfiguration.
type Recognition struct {
	instances       *prometheus.CounterVec
	scoringFailures *prometheus.CounterVec
	noGuess         *prometheus.CounterVec
	duration        *prometheus.HistogramVec
}

func NewRecognition() *Recognition {
	return &Recognition{
		instances: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "instances_total",
			Help:      "Number of recognized test instances",
		}, []string{"configuration"}),
		scoringFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scoring_failures_total",
			Help:      "Number of (model, instance) pairs the model could not score",
		}, []string{"configuration", "label"}),
		noGuess: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "no_guess_total",
			Help:      "Number of instances no model could score",
		}, []string{"configuration"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "recognition_seconds",
			Help:      "Duration of one recognition call over a whole test set",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"configuration"}),
	}
}

func (m *Recognition) Register(registerer prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.instances, m.scoringFailures, m.noGuess, m.duration} {
		if err := registerer.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *Recognition) ObserveDuration(configuration string, d time.Duration) {
	m.duration.WithLabelValues(configuration).Observe(d.Seconds())
}

func (m *Recognition) ForConfiguration(configuration string) *ConfigurationObserver {
	return &ConfigurationObserver{metrics: m, configuration: configuration}
}

type ConfigurationObserver struct {
	metrics       *Recognition
	configuration string
}

func (o *ConfigurationObserver) ScoringFailed(_ int, label string, _ error) {
	o.metrics.scoringFailures.WithLabelValues(o.configuration, label).Inc()
}

func (o *ConfigurationObserver) InstanceRecognized(_ int, guess types.Guess) {
	o.metrics.instances.WithLabelValues(o.configuration).Inc()
	if guess.IsNone() {
		o.metrics.noGuess.WithLabelValues(o.configuration).Inc()
	}
}
