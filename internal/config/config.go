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

// Package config holds the tunables of the training/serving pipeline.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
	ctrl "sigs.k8s.io/controller-runtime"

	"github.com/Strife-AI/Strife.ML/internal/logging"
)

const (
	// EnvPrefix is the prefix of environment variables that override file values,
	// e.g. STRIFEML_TRAINER_BATCHSIZE=64.
	EnvPrefix = "STRIFEML"

	DefaultBatchSize                = 32
	DefaultSequenceLength           = 1
	DefaultTrainsPerSecond          = 1.0
	DefaultMinSamplesBeforeTraining = 32
	DefaultWorkQueueName            = "strifeml"
	DefaultTickInterval             = 10 * time.Millisecond
)

// TrainerConfig configures batch construction and the training cadence.
type TrainerConfig struct {
	// BatchSize is the number of sequences per training batch.
	BatchSize int `yaml:"batchSize" mapstructure:"batchSize"`

	// SequenceLength is the number of temporally consecutive samples per row.
	SequenceLength int `yaml:"sequenceLength" mapstructure:"sequenceLength"`

	// TrainsPerSecond is the rate of the recurring training task.
	TrainsPerSecond float64 `yaml:"trainsPerSecond" mapstructure:"trainsPerSecond"`

	// MinSamplesBeforeTraining is the sample count at which training becomes active.
	MinSamplesBeforeTraining int `yaml:"minSamplesBeforeTraining" mapstructure:"minSamplesBeforeTraining"`
}

// Period returns the interval between two training firings.
func (c TrainerConfig) Period() time.Duration {
	return time.Duration(float64(time.Second) / c.TrainsPerSecond)
}

// WorkQueueConfig configures the worker pool.
type WorkQueueConfig struct {
	// Name labels the queue's depth and latency metrics. Empty disables them.
	Name string `yaml:"name" mapstructure:"name"`

	// Workers is the fixed number of worker goroutines.
	Workers int `yaml:"workers" mapstructure:"workers"`
}

// SchedulerConfig configures the driver loop that advances the scheduler.
type SchedulerConfig struct {
	TickInterval time.Duration `yaml:"tickInterval" mapstructure:"tickInterval"`
}

// PipelineConfig is the top level configuration document.
type PipelineConfig struct {
	Trainer   TrainerConfig   `yaml:"trainer" mapstructure:"trainer"`
	WorkQueue WorkQueueConfig `yaml:"workQueue" mapstructure:"workQueue"`
	Scheduler SchedulerConfig `yaml:"scheduler" mapstructure:"scheduler"`

	// Seed seeds the sampling RNG. Zero means seed from the clock.
	Seed uint64 `yaml:"seed" mapstructure:"seed"`
}

// Default returns a configuration with every field set to its default.
func Default() PipelineConfig {
	return PipelineConfig{
		Trainer: TrainerConfig{
			BatchSize:                DefaultBatchSize,
			SequenceLength:           DefaultSequenceLength,
			TrainsPerSecond:          DefaultTrainsPerSecond,
			MinSamplesBeforeTraining: DefaultMinSamplesBeforeTraining,
		},
		WorkQueue: WorkQueueConfig{
			Name:    DefaultWorkQueueName,
			Workers: defaultWorkers(),
		},
		Scheduler: SchedulerConfig{
			TickInterval: DefaultTickInterval,
		},
	}
}

// Validate checks for invalid configuration values.
func (c *TrainerConfig) Validate() error {
	if c.BatchSize <= 0 {
		return fmt.Errorf("batchSize must be > 0, got %d", c.BatchSize)
	}
	if c.SequenceLength <= 0 {
		return fmt.Errorf("sequenceLength must be > 0, got %d", c.SequenceLength)
	}
	if c.TrainsPerSecond <= 0 {
		return fmt.Errorf("trainsPerSecond must be > 0, got %.2f", c.TrainsPerSecond)
	}
	if c.MinSamplesBeforeTraining < 0 {
		return fmt.Errorf("minSamplesBeforeTraining must be >= 0, got %d", c.MinSamplesBeforeTraining)
	}
	return nil
}

// Validate checks for invalid configuration values.
func (c *PipelineConfig) Validate() error {
	if err := c.Trainer.Validate(); err != nil {
		return fmt.Errorf("trainer: %w", err)
	}
	if c.WorkQueue.Workers <= 0 {
		return fmt.Errorf("workQueue: workers must be > 0, got %d", c.WorkQueue.Workers)
	}
	if c.Scheduler.TickInterval <= 0 {
		return fmt.Errorf("scheduler: tickInterval must be > 0, got %s", c.Scheduler.TickInterval)
	}
	return nil
}

// Parse decodes a YAML document on top of the defaults and validates the result.
// Fields missing from the document keep their default value.
func Parse(data []byte) (PipelineConfig, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return PipelineConfig{}, fmt.Errorf("parse pipeline config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return PipelineConfig{}, fmt.Errorf("invalid pipeline config: %w", err)
	}
	ctrl.Log.V(logging.DEBUG).Info("Parsed pipeline config",
		"batchSize", cfg.Trainer.BatchSize,
		"sequenceLength", cfg.Trainer.SequenceLength,
		"trainsPerSecond", cfg.Trainer.TrainsPerSecond,
		"workers", cfg.WorkQueue.Workers)
	return cfg, nil
}

// Load reads the configuration from path (any format viper understands) with
// STRIFEML_* environment overrides. An empty path loads defaults plus environment.
func Load(path string) (PipelineConfig, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return PipelineConfig{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg PipelineConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return PipelineConfig{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return PipelineConfig{}, fmt.Errorf("invalid pipeline config: %w", err)
	}

	ctrl.Log.Info("Loaded pipeline config",
		"file", v.ConfigFileUsed(),
		"batchSize", cfg.Trainer.BatchSize,
		"sequenceLength", cfg.Trainer.SequenceLength,
		"trainsPerSecond", cfg.Trainer.TrainsPerSecond,
		"minSamplesBeforeTraining", cfg.Trainer.MinSamplesBeforeTraining,
		"workers", cfg.WorkQueue.Workers,
		"tickInterval", cfg.Scheduler.TickInterval)
	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override keys absent from the file.
func setDefaults(v *viper.Viper, d PipelineConfig) {
	v.SetDefault("trainer.batchSize", d.Trainer.BatchSize)
	v.SetDefault("trainer.sequenceLength", d.Trainer.SequenceLength)
	v.SetDefault("trainer.trainsPerSecond", d.Trainer.TrainsPerSecond)
	v.SetDefault("trainer.minSamplesBeforeTraining", d.Trainer.MinSamplesBeforeTraining)
	v.SetDefault("workQueue.name", d.WorkQueue.Name)
	v.SetDefault("workQueue.workers", d.WorkQueue.Workers)
	v.SetDefault("scheduler.tickInterval", d.Scheduler.TickInterval)
	v.SetDefault("seed", d.Seed)
}
