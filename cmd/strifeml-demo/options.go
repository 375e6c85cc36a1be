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

package main

import (
	"errors"
	"flag"
	"fmt"
	"time"

	"github.com/spf13/pflag"
	uberzap "go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	"github.com/Strife-AI/Strife.ML/internal/logging"
)

const zapLogLevelFlagName = "zap-log-level"

// options are the command line options of the demo host.
type options struct {
	ConfigFile       string
	MetricsAddr      string
	Duration         time.Duration
	SamplesPerSecond float64
	DecisionInterval time.Duration
	Features         int
	Noise            float64
	LogVerbosity     int
	ShowVersion      bool
	ZapOptions       zap.Options

	fs *pflag.FlagSet
}

func newOptions() *options {
	return &options{
		MetricsAddr:      ":9090",
		SamplesPerSecond: 200,
		DecisionInterval: 250 * time.Millisecond,
		Features:         3,
		Noise:            0.1,
		LogVerbosity:     logging.DEFAULT,
		ZapOptions:       zap.Options{Development: true},
	}
}

func (opts *options) addFlags(fs *pflag.FlagSet) {
	opts.fs = fs

	fs.StringVar(&opts.ConfigFile, "config", opts.ConfigFile,
		"Pipeline configuration file. STRIFEML_* environment variables override its values.")
	fs.StringVar(&opts.MetricsAddr, "metrics-bind-address", opts.MetricsAddr,
		"Address the /metrics endpoint binds to. Empty disables it.")
	fs.DurationVar(&opts.Duration, "duration", opts.Duration,
		"How long to run. Zero runs until interrupted.")
	fs.Float64Var(&opts.SamplesPerSecond, "samples-per-second", opts.SamplesPerSecond,
		"Rate at which the simulated agent produces labeled samples.")
	fs.DurationVar(&opts.DecisionInterval, "decision-interval", opts.DecisionInterval,
		"Interval between two decision requests.")
	fs.IntVar(&opts.Features, "features", opts.Features,
		"Number of values per observation.")
	fs.Float64Var(&opts.Noise, "noise", opts.Noise,
		"Amplitude of the uniform noise added to every label.")
	fs.IntVarP(&opts.LogVerbosity, "v", "v", opts.LogVerbosity,
		"Number for the log level verbosity.")
	fs.BoolVar(&opts.ShowVersion, "version", opts.ShowVersion,
		"Print version information and exit.")

	// zap binds to a standard library FlagSet.
	gofs := flag.NewFlagSet("zap", flag.ExitOnError)
	opts.ZapOptions.BindFlags(gofs)
	fs.AddGoFlagSet(gofs)
}

// complete derives the zap level from -v unless --zap-log-level was given.
func (opts *options) complete() {
	f := opts.fs.Lookup(zapLogLevelFlagName)
	if f != nil && !f.Changed {
		lvl := -1 * opts.LogVerbosity
		opts.ZapOptions.Level = uberzap.NewAtomicLevelAt(zapcore.Level(int8(lvl)))
	}
}

func (opts *options) validate() error {
	var errs []error
	if opts.Duration < 0 {
		errs = append(errs, fmt.Errorf("--duration must be >= 0, got %s", opts.Duration))
	}
	if opts.SamplesPerSecond <= 0 {
		errs = append(errs, fmt.Errorf("--samples-per-second must be > 0, got %g", opts.SamplesPerSecond))
	}
	if opts.DecisionInterval <= 0 {
		errs = append(errs, fmt.Errorf("--decision-interval must be > 0, got %s", opts.DecisionInterval))
	}
	if opts.Features <= 0 {
		errs = append(errs, fmt.Errorf("--features must be > 0, got %d", opts.Features))
	}
	if opts.Noise < 0 {
		errs = append(errs, fmt.Errorf("--noise must be >= 0, got %g", opts.Noise))
	}
	return errors.Join(errs...)
}
