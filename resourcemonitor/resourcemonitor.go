// Copyright The Pyrite Authors
// SPDX-License-Identifier: Apache-2.0

// Package resourcemonitor periodically measures host CPU usage and process
// memory and pushes the readings into a Sink, typically the adaptive
// sampling controller.
//
// CPU usage is derived from the user and system tick counters in
// /proc/stat, as the delta between two consecutive reads. On platforms
// where /proc/stat is unavailable the monitor degrades gracefully and
// reports zero CPU usage.
package resourcemonitor // import "github.com/pyrite-profiler/pyrite/resourcemonitor"

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	sysconf "github.com/tklauser/go-sysconf"
	"github.com/tklauser/numcpus"

	"github.com/pyrite-profiler/pyrite/periodiccaller"
	"github.com/pyrite-profiler/pyrite/stringutil"
	"github.com/pyrite-profiler/pyrite/times"
)

// Sink receives resource readings. Implementations must be safe for calls
// from the monitor goroutine.
type Sink interface {
	UpdateResources(cpuPct float64, memMiB uint64)
}

// Monitor reads CPU and memory usage at a fixed, jittered interval.
type Monitor struct {
	sink     Sink
	interval time.Duration

	// procStatPath is the file to read CPU tick counters from.
	procStatPath string

	// file is the open proc stat file, rewound on every read. nil when the
	// monitor runs degraded.
	file *os.File

	// scannerBuffer backs the line scanner in parse(). The monitor runs on
	// a single goroutine, so reusing it is safe.
	scannerBuffer [8192]byte

	// userHZ is the ticks per second, the unit for the values in /proc/stat.
	userHZ uint32

	// nCPUs is the number of online CPUs.
	nCPUs uint32

	prevUser   uint64
	prevSystem uint64
	prevTime   time.Time

	onceStart sync.Once
	onceStop  sync.Once
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithProcStatPath overrides the /proc/stat location, for tests.
func WithProcStatPath(path string) Option {
	return func(m *Monitor) { m.procStatPath = path }
}

// New creates a Monitor pushing readings into sink every interval.
func New(sink Sink, interval time.Duration, opts ...Option) *Monitor {
	m := &Monitor{
		sink:         sink,
		interval:     interval,
		procStatPath: "/proc/stat",
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start begins periodic measurement until ctx is canceled. The returned
// function stops the monitor and releases its resources.
func (m *Monitor) Start(ctx context.Context) func() {
	var stopPeriodic func()

	m.onceStart.Do(func() {
		if err := m.initialize(); err != nil {
			log.Warnf("CPU monitoring degraded, reporting zero usage: %v", err)
		}
		stopPeriodic = periodiccaller.StartWithJitter(ctx, m.interval,
			times.MonitorJitter, m.report)
	})

	return func() {
		m.onceStop.Do(func() {
			if stopPeriodic != nil {
				stopPeriodic()
			}
			if m.file != nil {
				m.file.Close()
				m.file = nil
			}
		})
	}
}

func (m *Monitor) initialize() error {
	file, err := os.Open(m.procStatPath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", m.procStatPath, err)
	}
	m.file = file

	// From 'man 5 proc': the counters are measured in units of USER_HZ,
	// use sysconf(_SC_CLK_TCK) to obtain the right value.
	userHZ, err := sysconf.Sysconf(sysconf.SC_CLK_TCK)
	if err != nil || userHZ <= 0 {
		log.Warnf("Failed to get value of USER_HZ / SC_CLK_TCK (using 100 as default)")
		userHZ = 100
	}
	m.userHZ = uint32(userHZ)

	nCPUs, err := numcpus.GetOnline()
	if err != nil || nCPUs <= 0 {
		log.Warnf("Failed to get number of online CPUs (using 1 as default)")
		nCPUs = 1
	}
	m.nCPUs = uint32(nCPUs)

	// Prime the delta calculation so the first reading does not show a
	// bogus 100% spike.
	m.prevTime = time.Now()
	if m.prevUser, m.prevSystem, err = m.parse(); err != nil {
		m.file.Close()
		m.file = nil
		return fmt.Errorf("failed to init CPU delta values: %w", err)
	}

	return nil
}

// parse reads the aggregated user and system CPU tick counters from the
// first "cpu" line of the proc stat file.
func (m *Monitor) parse() (user, system uint64, err error) {
	// Rewind instead of open/close at every interval.
	if _, err = m.file.Seek(0, io.SeekStart); err != nil {
		return 0, 0, err
	}

	scanner := bufio.NewScanner(m.file)
	scanner.Buffer(m.scannerBuffer[:], cap(m.scannerBuffer))

	for scanner.Scan() {
		// The underlying bytes change with the next Scan(), so no
		// reference may outlive the loop iteration.
		line := stringutil.ByteSlice2String(scanner.Bytes())

		if !strings.HasPrefix(line, "cpu ") {
			continue
		}

		var fields [5]string
		n := stringutil.FieldsN(line, fields[:])
		if n < 4 {
			return 0, 0, fmt.Errorf("failed to find at least 4 fields in '%s'", line)
		}

		if user, err = strconv.ParseUint(fields[1], 10, 64); err != nil {
			return 0, 0, errors.New("failed to parse CPU user value")
		}
		if system, err = strconv.ParseUint(fields[3], 10, 64); err != nil {
			return 0, 0, errors.New("failed to parse CPU system value")
		}

		return user, system, nil
	}

	if err = scanner.Err(); err != nil {
		return 0, 0, fmt.Errorf("failed to parse %s: %w", m.procStatPath, err)
	}

	return 0, 0, fmt.Errorf("failed to find 'cpu' keyword in %s", m.procStatPath)
}

// cpuUsage returns the average CPU usage since the previous call as a
// percentage across all online CPUs.
func (m *Monitor) cpuUsage() (float64, error) {
	user, system, err := m.parse()
	if err != nil {
		return 0, err
	}

	now := time.Now()
	duration := now.Sub(m.prevTime)
	m.prevTime = now

	var load uint64

	// Handle wrap-around of the tick counters.
	if user < m.prevUser {
		load = (math.MaxUint64 - m.prevUser) + user + 1
	} else {
		load = user - m.prevUser
	}
	if system < m.prevSystem {
		load += (math.MaxUint64 - m.prevSystem) + system + 1
	} else {
		load += system - m.prevSystem
	}

	m.prevUser = user
	m.prevSystem = system

	return cpuPercent(load, duration, m.userHZ, m.nCPUs), nil
}

// cpuPercent converts a tick delta over a wall clock duration into a
// percentage of total available CPU time, capped at 100.
func cpuPercent(loadTicks uint64, duration time.Duration, userHZ, nCPUs uint32) float64 {
	maxTicks := float64(nCPUs*userHZ) * (float64(duration) / float64(time.Second))
	if maxTicks <= 0 {
		return 0
	}
	pct := float64(loadTicks) * 100 / maxTicks
	return min(pct, 100)
}

// memoryMiB returns the amount of memory the Go runtime has obtained from
// the OS, in MiB.
func memoryMiB() uint64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return ms.Sys / (1 << 20)
}

func (m *Monitor) report() {
	var cpuPct float64
	if m.file != nil {
		var err error
		if cpuPct, err = m.cpuUsage(); err != nil {
			log.Errorf("Failed to measure CPU usage: %v", err)
			cpuPct = 0
		}
	}
	m.sink.UpdateResources(cpuPct, memoryMiB())
}
