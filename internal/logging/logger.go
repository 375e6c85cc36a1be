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

// Package logging wires logr on top of zap for every component of the pipeline.
package logging

import (
	"context"
	"os"

	"github.com/go-logr/logr"
	uberzap "go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/log"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"
)

// Verbosity levels passed to logr's V().
const (
	DEFAULT = 0
	VERBOSE = 3
	DEBUG   = 4
	TRACE   = 5
)

// atomicLevel is shared by InitLogging and SetLevel so verbosity can be
// changed after the global logger has been installed.
var atomicLevel = uberzap.NewAtomicLevelAt(zapcore.InfoLevel)

// InitLogging installs a zap-backed logger as the controller-runtime global
// logger and returns it. Options may be nil.
func InitLogging(opts *zap.Options) logr.Logger {
	if opts == nil {
		opts = &zap.Options{}
	}
	if opts.Level != nil {
		switch lvl := opts.Level.(type) {
		case uberzap.AtomicLevel:
			atomicLevel.SetLevel(lvl.Level())
		case zapcore.Level:
			atomicLevel.SetLevel(lvl)
		}
	}
	logger := zap.New(
		zap.UseFlagOptions(opts),
		zap.Level(atomicLevel),
		zap.RawZapOpts(uberzap.AddCaller()),
	)
	ctrl.SetLogger(logger)
	return logger
}

// SetVerbosity adjusts the level of every logger created by InitLogging.
// A verbosity of DEBUG enables logger.V(DEBUG) lines.
func SetVerbosity(v int) {
	atomicLevel.SetLevel(zapcore.Level(-1 * v))
}

// NewTestLogger creates a new Zap logger using the dev mode.
func NewTestLogger() logr.Logger {
	return zap.New(
		zap.UseDevMode(true),
		zap.Level(uberzap.NewAtomicLevelAt(zapcore.Level(-1*TRACE))),
		zap.RawZapOpts(uberzap.AddCaller()),
	)
}

// NewTestLoggerIntoContext creates a new Zap logger using the dev mode and inserts it into the given context.
func NewTestLoggerIntoContext(ctx context.Context) context.Context {
	return log.IntoContext(ctx, NewTestLogger())
}

// Fatal calls logger.Error followed by os.Exit(1).
//
// This is a utility function for main packages and should not be used in library code.
func Fatal(logger logr.Logger, err error, msg string, keysAndValues ...interface{}) {
	logger.Error(err, msg, keysAndValues...)
	os.Exit(1)
}
