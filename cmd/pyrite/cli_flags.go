// Copyright The Pyrite Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"flag"
	"os"
	"time"

	"github.com/peterbourgon/ff/v3"
	log "github.com/sirupsen/logrus"

	"github.com/pyrite-profiler/pyrite/config"
)

const (
	// Default values for CLI flags
	defaultArgDuration  = 10 * time.Second
	defaultArgFormat    = "json"
	defaultArgOutputDir = "profiles"
)

// Help strings for command line arguments
var (
	adaptiveHelp = "Enable adaptive sampling: the sampling interval is " +
		"coarsened while the host is above the CPU or memory threshold."
	cpuThresholdHelp = "Host CPU usage (percent) above which adaptive " +
		"sampling backs off."
	durationHelp = "How long to run the demo workload and profile it. " +
		"Zero runs until interrupted."
	formatHelp          = "Output format of exported profiles (json, pprof)."
	memoryThresholdHelp = "Process memory usage (MiB) above which adaptive " +
		"sampling backs off."
	monitorIntervalHelp = "Set the resource monitor interval."
	outputDirHelp       = "Directory to write exported profiles into."
	sampleIntervalHelp  = "Set the base interval between capture ticks."
	sampleRateHelp      = "Probability [0..1] that a session start request " +
		"actually starts profiling."
	sessionRateHelp = "Probability [0..1] that this process ever profiles, " +
		"rolled once at startup."
	verboseModeHelp = "Enable verbose logging and debugging capabilities."
	versionHelp     = "Show version."
)

type arguments struct {
	adaptive        bool
	cpuThreshold    float64
	duration        time.Duration
	format          string
	memoryThreshold uint64
	monitorInterval time.Duration
	outputDir       string
	sampleInterval  time.Duration
	sampleRate      float64
	sessionRate     float64
	verboseMode     bool
	version         bool

	fs *flag.FlagSet
}

func parseArgs() (*arguments, error) {
	var args arguments

	fs := flag.NewFlagSet("pyrite", flag.ExitOnError)

	// Please keep the parameters ordered alphabetically in the source-code.
	fs.BoolVar(&args.adaptive, "adaptive", true, adaptiveHelp)
	fs.Float64Var(&args.cpuThreshold, "cpu-threshold",
		config.DefaultCPUThresholdPercent, cpuThresholdHelp)
	fs.DurationVar(&args.duration, "duration", defaultArgDuration, durationHelp)
	fs.StringVar(&args.format, "format", defaultArgFormat, formatHelp)
	fs.Uint64Var(&args.memoryThreshold, "memory-threshold",
		config.DefaultMemoryThresholdMiB, memoryThresholdHelp)
	fs.DurationVar(&args.monitorInterval, "monitor-interval",
		config.DefaultMonitorInterval, monitorIntervalHelp)
	fs.StringVar(&args.outputDir, "output-dir", defaultArgOutputDir, outputDirHelp)
	fs.DurationVar(&args.sampleInterval, "sample-interval",
		config.DefaultSampleInterval, sampleIntervalHelp)
	fs.Float64Var(&args.sampleRate, "sample-rate", 1.0, sampleRateHelp)
	fs.Float64Var(&args.sessionRate, "session-rate", 1.0, sessionRateHelp)
	fs.BoolVar(&args.verboseMode, "v", false, "Shorthand for -verbose.")
	fs.BoolVar(&args.verboseMode, "verbose", false, verboseModeHelp)
	fs.BoolVar(&args.version, "version", false, versionHelp)

	fs.Usage = func() {
		fs.PrintDefaults()
	}

	args.fs = fs

	return &args, ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("PYRITE"),
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ff.PlainParser),
		ff.WithIgnoreUndefined(true),
		ff.WithAllowMissingConfigFile(true),
	)
}

// dump logs the arguments.
func (args *arguments) dump() {
	log.Debug("Command line arguments:")
	args.fs.VisitAll(func(f *flag.Flag) {
		log.Debugf("%s: %v", f.Name, f.Value)
	})
}
