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

// Command strifeml-demo runs the continual training pipeline against a
// simulated agent: samples stream into a trainer that retrains a linear model
// in the background while a decider keeps serving predictions.
package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"os"
	"time"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/version"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
	"k8s.io/utils/clock"
	ctrl "sigs.k8s.io/controller-runtime"
	crmetrics "sigs.k8s.io/controller-runtime/pkg/metrics"

	"github.com/Strife-AI/Strife.ML/internal/config"
	"github.com/Strife-AI/Strife.ML/internal/logging"
	"github.com/Strife-AI/Strife.ML/internal/metrics"
	"github.com/Strife-AI/Strife.ML/pkg/async"
	"github.com/Strife-AI/Strife.ML/pkg/codec"
	"github.com/Strife-AI/Strife.ML/pkg/decider"
	"github.com/Strife-AI/Strife.ML/pkg/linear"
	"github.com/Strife-AI/Strife.ML/pkg/model"
	"github.com/Strife-AI/Strife.ML/pkg/rng"
	"github.com/Strife-AI/Strife.ML/pkg/samples"
	"github.com/Strife-AI/Strife.ML/pkg/trainer"
)

const (
	ridgeLambda  = 1e-3
	learningRate = 0.5
)

func main() {
	if err := run(); err != nil {
		os.Exit(1)
	}
}

func run() error {
	opts := newOptions()
	opts.addFlags(pflag.CommandLine)
	pflag.Parse()

	if opts.ShowVersion {
		fmt.Println(version.Print("strifeml-demo"))
		return nil
	}

	opts.complete()
	logger := logging.InitLogging(&opts.ZapOptions)
	setupLog := logger.WithName("setup")

	if err := opts.validate(); err != nil {
		setupLog.Error(err, "Invalid flags")
		return err
	}

	cfg, err := config.Load(opts.ConfigFile)
	if err != nil {
		setupLog.Error(err, "Failed to load pipeline config")
		return err
	}
	metrics.Register()

	ctx := ctrl.SetupSignalHandler()
	if opts.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Duration)
		defer cancel()
	}

	seed := rng.New(cfg.Seed)
	queue := async.NewWorkQueue(cfg.WorkQueue, logger)
	queue.Start(ctx)
	defer queue.Shutdown()
	sched := async.NewScheduler(queue, clock.RealClock{}, logger)

	repo := samples.NewRepository[linear.Features, linear.Target](seed)
	store, err := repo.CreateSampleSet("agent")
	if err != nil {
		setupLog.Error(err, "Failed to create sample set")
		return err
	}
	// Group by reward sign so sequences ending in rare outcomes are drawn as
	// often as common ones.
	byReward := samples.CreateGroupIndex[bool](store).SetSelector(func(s sample) bool {
		return s.Output.Value >= 0
	})

	inputs := opts.Features * cfg.Trainer.SequenceLength
	network, err := linear.NewRegressor(inputs, ridgeLambda, learningRate)
	if err != nil {
		setupLog.Error(err, "Failed to create network")
		return err
	}
	initial, err := linear.NewRegressor(inputs, ridgeLambda, learningRate)
	if err != nil {
		setupLog.Error(err, "Failed to create network")
		return err
	}

	trainLog := logger.WithName("demo")
	tr, err := trainer.New(cfg.Trainer, network, model.Codec[*linear.Regressor](linear.Codec{}), sched,
		trainer.Hooks[linear.Features, linear.Target, *linear.Regressor]{
			SampleSink:       func(s sample) { store.AddSample(s) },
			SequenceSelector: byReward.TryPickRandomSequence,
			OnTrainingComplete: func(result model.TrainingResult, p model.Published[*linear.Regressor]) {
				trainLog.V(logging.VERBOSE).Info("Model trained", "version", p.Version, "runID", p.RunID, "loss", result.Loss)
			},
		}, logger)
	if err != nil {
		setupLog.Error(err, "Failed to create trainer")
		return err
	}
	d := decider.New[linear.Features, linear.Target](initial, tr.Slot(), queue, logger)

	var agentSeed uint64
	if cfg.Seed != 0 {
		agentSeed = cfg.Seed + 1
	}
	env := newAgent(rng.New(agentSeed), opts.Features, opts.Noise)
	tr.StartRunning()
	defer tr.StopRunning()

	setupLog.Info("Starting pipeline", "version", version.Version, "features", opts.Features,
		"sequenceLength", cfg.Trainer.SequenceLength, "batchSize", cfg.Trainer.BatchSize)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return sched.Run(ctx, cfg.Scheduler.TickInterval)
	})
	g.Go(func() error {
		return produceSamples(ctx, env, tr, opts.SamplesPerSecond)
	})
	g.Go(func() error {
		return requestDecisions(ctx, logger.WithName("demo"), env, d, cfg.Trainer.SequenceLength, opts.DecisionInterval)
	})
	if opts.MetricsAddr != "" {
		g.Go(func() error {
			return serveMetrics(ctx, logger.WithName("metrics"), opts.MetricsAddr)
		})
	}

	if err := g.Wait(); err != nil {
		setupLog.Error(err, "Pipeline failed")
		return err
	}
	setupLog.Info("Pipeline stopped", "samples", tr.TotalSamples(), "modelVersion", d.Version(),
		"sampleFields", schemaFields(store.Schema()))
	return nil
}

func produceSamples(ctx context.Context, env *agent, tr *trainer.Trainer[linear.Features, linear.Target, *linear.Regressor], rate float64) error {
	ticker := time.NewTicker(time.Duration(float64(time.Second) / rate))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			tr.AddSample(env.step())
		}
	}
}

func requestDecisions(
	ctx context.Context,
	logger logr.Logger,
	env *agent,
	d *decider.Decider[linear.Features, linear.Target, *linear.Regressor],
	sequenceLength int,
	interval time.Duration,
) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	row := make([]linear.Features, sequenceLength)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		for i := range row {
			row[i] = env.observe()
		}
		want := env.truth(row[len(row)-1])
		h := d.MakeDecision(samples.GridOf(row))

		out, err := h.Wait(ctx)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil
		}
		if err != nil {
			logger.Error(err, "Decision failed")
			continue
		}
		logger.Info("Decision", "modelVersion", d.Version(), "predicted", out[0].Value,
			"expected", want, "absError", math.Abs(out[0].Value-want), "latency", h.Elapsed())
	}
}

func serveMetrics(ctx context.Context, logger logr.Logger, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(crmetrics.Registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error(err, "Metrics server shutdown failed")
		}
	}()

	logger.Info("Serving metrics", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}

func schemaFields(s *codec.Schema) []string {
	if s == nil {
		return nil
	}
	return s.Names()
}
