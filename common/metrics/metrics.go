package metrics

import (
	"fmt"
	"time"

	"grading_system/common/constants/verdict"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	strategyLabel = "strategy"
	verdictLabel  = "verdict"
)

// Collector keeps grading metrics in its own registry, so that several collectors may coexist
type Collector struct {
	Registry   *prometheus.Registry
	Registerer prometheus.Registerer

	GradedCases     *prometheus.CounterVec
	GradingDuration *prometheus.HistogramVec
	AwardedPoints   *prometheus.CounterVec
}

func NewCollector() *Collector {
	registry := prometheus.NewRegistry()
	c := &Collector{
		Registry:   registry,
		Registerer: registry,
	}

	c.GradedCases = c.createGraderCounter(
		"graded_cases_total",
		"Number of graded test cases by primary verdict",
		[]string{strategyLabel, verdictLabel},
	)

	c.AwardedPoints = c.createGraderCounter(
		"awarded_points_total",
		"Total points awarded for graded test cases",
		[]string{strategyLabel},
	)

	c.GradingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "gs",
			Subsystem: "grader",
			Name:      "grading_duration_seconds",
			Help:      "Time spent on grading one test case, including compilation of judge code",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		},
		[]string{strategyLabel},
	)
	c.Registerer.MustRegister(c.GradingDuration)
	return c
}

func (c *Collector) createGraderCounter(
	name string,
	help string,
	labelNames []string,
) *prometheus.CounterVec {
	counter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gs",
			Subsystem: "grader",
			Name:      name,
			Help:      help,
		},
		labelNames,
	)
	c.Registerer.MustRegister(counter)
	return counter
}

func (c *Collector) ProcessResult(strategy string, flag verdict.Flag, points int, duration time.Duration) {
	c.GradedCases.With(prometheus.Labels{
		strategyLabel: strategy,
		verdictLabel:  flag.Primary().String(),
	}).Inc()

	labels := prometheus.Labels{strategyLabel: strategy}
	c.AwardedPoints.With(labels).Add(float64(points))
	c.GradingDuration.With(labels).Observe(duration.Seconds())
}

// WriteToTextfile saves metrics in the format of node exporter textfile collector
func (c *Collector) WriteToTextfile(path string) error {
	err := prometheus.WriteToTextfile(path, c.Registry)
	if err != nil {
		return fmt.Errorf("can not write metrics to %s, error: %v", path, err)
	}
	return nil
}
