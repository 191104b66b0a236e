// Copyright The Pyrite Authors
// SPDX-License-Identifier: Apache-2.0

// Package stringutil provides allocation-free string parsing helpers for
// hot paths like /proc parsing.
package stringutil // import "github.com/pyrite-profiler/pyrite/stringutil"

import (
	"unsafe"
)

var asciiSpace = [256]uint8{'\t': 1, '\n': 1, '\v': 1, '\f': 1, '\r': 1, ' ': 1}

// FieldsN splits the string s around each instance of one or more consecutive
// space characters, filling f with substrings of s.
// If s contains more fields than len(f), the last element of f is set to the
// unparsed remainder of s starting with the first non-space character.
// f stays untouched if s is empty or contains only white space.
//
// Apart from the mentioned differences, FieldsN is like an allocation-free
// strings.Fields.
func FieldsN(s string, f []string) int {
	n := len(f)
	si := 0
	for i := 0; i < n-1; i++ {
		// Find the start of the next field.
		for si < len(s) && asciiSpace[s[si]] != 0 {
			si++
		}
		fieldStart := si

		// Find the end of the field.
		for si < len(s) && asciiSpace[s[si]] == 0 {
			si++
		}
		if fieldStart >= si {
			return i
		}

		f[i] = s[fieldStart:si]
	}

	// Find the start of the next field.
	for si < len(s) && asciiSpace[s[si]] != 0 {
		si++
	}

	// Put the remainder of s as last element of f.
	if si < len(s) {
		f[n-1] = s[si:]
		return n
	}

	return n - 1
}

// ByteSlice2String converts a byte slice into a string without a heap
// allocation. The byte slice must not be modified as long as the returned
// string is in use.
func ByteSlice2String(b []byte) string {
	return unsafe.String(unsafe.SliceData(b), len(b))
}
