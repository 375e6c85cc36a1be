/*
Copyright 2025 The Strife.ML Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package metrics declares the prometheus collectors of the pipeline.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"sigs.k8s.io/controller-runtime/pkg/metrics"
)

const (
	// --- Subsystems ---
	SamplesSubsystem   = "samples"
	TrainerSubsystem   = "trainer"
	ModelSubsystem     = "model"
	DeciderSubsystem   = "decider"
	SchedulerSubsystem = "scheduler"

	Namespace = "strifeml"

	// Batch outcomes.
	BatchBuilt   = "built"
	BatchSkipped = "skipped"

	// Training run outcomes.
	TrainingSucceeded = "succeeded"
	TrainingRejected  = "rejected"
	TrainingFailed    = "failed"

	// Scheduler firing skip reasons.
	SkipInactive = "inactive"
	SkipInFlight = "in_flight"

	// Scheduled task kinds.
	TaskOneShot   = "one_shot"
	TaskRecurring = "recurring"
)

var (
	// DecisionLatencyBuckets covers inference latency from 50us to 5s.
	DecisionLatencyBuckets = []float64{
		0.00005, 0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5,
	}

	// TrainingDurationBuckets covers a training execution from 1ms to 10 minutes.
	TrainingDurationBuckets = []float64{
		0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600,
	}
)

var (
	samplesAdded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: SamplesSubsystem,
			Name:      "added_total",
			Help:      "Number of samples appended to a sample store.",
		},
		[]string{"set"},
	)

	trainerSamples = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: TrainerSubsystem,
			Name:      "samples",
			Help:      "Number of samples received by the trainer.",
		},
	)

	trainerActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: TrainerSubsystem,
			Name:      "active",
			Help:      "1 once the trainer has received enough samples to start training.",
		},
	)

	batches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: TrainerSubsystem,
			Name:      "batches_total",
			Help:      "Number of batch construction attempts broken out by outcome.",
		},
		[]string{"outcome"},
	)

	skippedFirings = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: TrainerSubsystem,
			Name:      "skipped_firings_total",
			Help:      "Number of training firings that did nothing, broken out by reason.",
		},
		[]string{"reason"},
	)

	trainingRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: TrainerSubsystem,
			Name:      "runs_total",
			Help:      "Number of training executions broken out by outcome.",
		},
		[]string{"outcome"},
	)

	trainingDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: TrainerSubsystem,
			Name:      "run_duration_seconds",
			Help:      "Wall time of a training execution.",
			Buckets:   TrainingDurationBuckets,
		},
	)

	trainingLoss = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: TrainerSubsystem,
			Name:      "last_loss",
			Help:      "Loss reported by the most recent training execution.",
		},
	)

	modelsPublished = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: ModelSubsystem,
			Name:      "published_total",
			Help:      "Number of models published to a model slot.",
		},
	)

	modelsDiscarded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: ModelSubsystem,
			Name:      "discarded_total",
			Help:      "Number of pending models replaced before any decider claimed them.",
		},
	)

	modelsClaimed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: ModelSubsystem,
			Name:      "claimed_total",
			Help:      "Number of models claimed by a decider.",
		},
	)

	decisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: DeciderSubsystem,
			Name:      "decisions_total",
			Help:      "Number of decisions completed broken out by result.",
		},
		[]string{"result"},
	)

	decisionLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: DeciderSubsystem,
			Name:      "decision_duration_seconds",
			Help:      "Time from submission to completion of a decision.",
			Buckets:   DecisionLatencyBuckets,
		},
	)

	schedulerDispatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: SchedulerSubsystem,
			Name:      "dispatches_total",
			Help:      "Number of scheduled tasks dispatched to the work queue.",
		},
		[]string{"kind"},
	)
)

var registerMetrics sync.Once

// Register all metrics.
func Register(customCollectors ...prometheus.Collector) {
	registerMetrics.Do(func() {
		metrics.Registry.MustRegister(samplesAdded)
		metrics.Registry.MustRegister(trainerSamples)
		metrics.Registry.MustRegister(trainerActive)
		metrics.Registry.MustRegister(batches)
		metrics.Registry.MustRegister(skippedFirings)
		metrics.Registry.MustRegister(trainingRuns)
		metrics.Registry.MustRegister(trainingDuration)
		metrics.Registry.MustRegister(trainingLoss)
		metrics.Registry.MustRegister(modelsPublished)
		metrics.Registry.MustRegister(modelsDiscarded)
		metrics.Registry.MustRegister(modelsClaimed)
		metrics.Registry.MustRegister(decisions)
		metrics.Registry.MustRegister(decisionLatency)
		metrics.Registry.MustRegister(schedulerDispatches)
		for _, collector := range customCollectors {
			metrics.Registry.MustRegister(collector)
		}
	})
}

// RecordSampleAdded counts one sample appended to the named set.
func RecordSampleAdded(set string) {
	samplesAdded.WithLabelValues(set).Inc()
}

// RecordTrainerSamples records the trainer's running sample count and activity.
func RecordTrainerSamples(total int, active bool) {
	trainerSamples.Set(float64(total))
	if active {
		trainerActive.Set(1)
	} else {
		trainerActive.Set(0)
	}
}

// RecordBatch counts one batch construction attempt.
func RecordBatch(outcome string) {
	batches.WithLabelValues(outcome).Inc()
}

// RecordSkippedFiring counts a training firing that found nothing to do.
func RecordSkippedFiring(reason string) {
	skippedFirings.WithLabelValues(reason).Inc()
}

// RecordTrainingRun records the outcome, duration and loss of one training execution.
func RecordTrainingRun(outcome string, duration time.Duration, loss float64) {
	trainingRuns.WithLabelValues(outcome).Inc()
	trainingDuration.Observe(duration.Seconds())
	if outcome != TrainingFailed {
		trainingLoss.Set(loss)
	}
}

// RecordModelPublished counts a publication; discarded reports whether an
// unclaimed model was replaced.
func RecordModelPublished(discarded bool) {
	modelsPublished.Inc()
	if discarded {
		modelsDiscarded.Inc()
	}
}

// RecordModelClaimed counts a successful claim.
func RecordModelClaimed() {
	modelsClaimed.Inc()
}

// RecordDecision records one completed decision.
func RecordDecision(err error, elapsed time.Duration) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	decisions.WithLabelValues(result).Inc()
	decisionLatency.Observe(elapsed.Seconds())
}

// RecordSchedulerDispatch counts a due task handed to the work queue.
func RecordSchedulerDispatch(kind string) {
	schedulerDispatches.WithLabelValues(kind).Inc()
}
