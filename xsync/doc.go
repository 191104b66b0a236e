// Copyright The Pyrite Authors
// SPDX-License-Identifier: Apache-2.0

// Package xsync provides synchronization primitives that tie the lock to the
// data it protects, making it harder to access shared state without holding
// the corresponding lock.
package xsync // import "github.com/pyrite-profiler/pyrite/xsync"
