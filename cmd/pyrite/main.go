// Copyright The Pyrite Authors
// SPDX-License-Identifier: Apache-2.0

// The pyrite command profiles a built-in demo workload and writes the
// resulting artifacts to disk. It exists to exercise and demonstrate the
// profiler library end to end; real applications embed a pyrite.Session
// directly.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/pyrite-profiler/pyrite"
	"github.com/pyrite-profiler/pyrite/config"
	"github.com/pyrite-profiler/pyrite/reporter"
	"github.com/pyrite-profiler/pyrite/vc"
)

type exitCode int

const (
	exitSuccess exitCode = 0
	exitFailure exitCode = 1

	// Go 'flag' package calls os.Exit(2) on flag parse errors, if ExitOnError is set
	exitParseError exitCode = 2
)

func main() {
	os.Exit(int(mainWithExitCode()))
}

func mainWithExitCode() exitCode {
	args, err := parseArgs()
	if err != nil {
		return parseError("Failure to parse arguments: %v", err)
	}

	if args.version {
		fmt.Printf("%s\n", vc.Version())
		return exitSuccess
	}

	if args.verboseMode {
		log.SetLevel(log.DebugLevel)
		// Dump the arguments in debug mode.
		args.dump()
	}

	if code := sanityCheck(args); code != exitSuccess {
		return code
	}

	// Context to drive the main goroutine and the demo workload.
	mainCtx, mainCancel := signal.NotifyContext(context.Background(),
		unix.SIGINT, unix.SIGTERM, unix.SIGABRT)
	defer mainCancel()

	log.Infof("Starting pyrite %s (revision %s, build timestamp %s)",
		vc.Version(), vc.Revision(), vc.BuildTimestamp())

	var exporter reporter.Exporter
	switch args.format {
	case "json":
		if exporter, err = reporter.NewFileExporter(args.outputDir); err != nil {
			return failure("Failed to create JSON exporter: %v", err)
		}
	case "pprof":
		if exporter, err = reporter.NewPprofExporter(args.outputDir); err != nil {
			return failure("Failed to create pprof exporter: %v", err)
		}
	}

	cfg := config.Default()
	cfg.SampleRate = args.sampleRate
	cfg.SessionSampleRate = args.sessionRate
	cfg.SampleInterval = args.sampleInterval
	cfg.Adaptive = args.adaptive
	cfg.CPUThresholdPercent = args.cpuThreshold
	cfg.MemoryThresholdMiB = args.memoryThreshold
	cfg.MonitorInterval = args.monitorInterval
	// The demo run is bounded by -duration or a signal, not by the cap.
	cfg.MaxSessionDuration = 0

	session, err := pyrite.NewSession(cfg, exporter)
	if err != nil {
		return failure("Failed to create profiling session: %v", err)
	}
	defer session.Close(context.Background())

	stopWorkload := startWorkload(mainCtx)
	defer stopWorkload()

	if _, err = session.Start(pyrite.StartOptions{Name: "demo-workload"}); err != nil {
		return failure("Failed to start profiling: %v", err)
	}

	if args.duration > 0 {
		select {
		case <-mainCtx.Done():
			log.Info("Interrupted, stopping profiling")
		case <-time.After(args.duration):
		}
	} else {
		<-mainCtx.Done()
		log.Info("Interrupted, stopping profiling")
	}

	item, err := session.Stop(context.Background())
	if err != nil {
		return failure("Failed to export profile: %v", err)
	}
	if item != nil {
		log.Infof("Exported profile %s: %d samples, %d unique stacks, %d workers",
			item.ProfileID, len(item.Samples), len(item.Stacks),
			len(item.WorkerMetadata))
	}

	return exitSuccess
}

func sanityCheck(args *arguments) exitCode {
	if args.format != "json" && args.format != "pprof" {
		return parseError("Invalid output format: %s", args.format)
	}
	if args.sampleRate < 0 || args.sampleRate > 1 {
		return parseError("Invalid sample rate: %f", args.sampleRate)
	}
	if args.sessionRate < 0 || args.sessionRate > 1 {
		return parseError("Invalid session rate: %f", args.sessionRate)
	}
	return exitSuccess
}

func parseError(msg string, args ...any) exitCode {
	log.Errorf(msg, args...)
	return exitParseError
}

func failure(msg string, args ...any) exitCode {
	log.Errorf(msg, args...)
	return exitFailure
}
