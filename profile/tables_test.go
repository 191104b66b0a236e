// Copyright The Pyrite Authors
// SPDX-License-Identifier: Apache-2.0

package profile

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFrameTableInternIdempotent(t *testing.T) {
	table := newFrameTable()

	id1 := table.Intern(frameA())
	id2 := table.Intern(frameB())
	id3 := table.Intern(frameA())

	assert.Equal(t, FrameID(0), id1)
	assert.Equal(t, FrameID(1), id2)
	assert.Equal(t, id1, id3)
	assert.Equal(t, 2, table.Len())
}

func TestFrameTableIdentityIncludesAllFields(t *testing.T) {
	table := newFrameTable()

	base := frameA()
	sameNameOtherLine := frameA()
	sameNameOtherLine.Line++

	assert.NotEqual(t, table.Intern(base), table.Intern(sameNameOtherLine))
	assert.Equal(t, 2, table.Len())
}

func TestStackTableInternIdempotent(t *testing.T) {
	table := newStackTable()

	id1 := table.Intern([]FrameID{0, 1, 2})
	id2 := table.Intern([]FrameID{0, 1})
	id3 := table.Intern([]FrameID{0, 1, 2})

	assert.Equal(t, StackID(0), id1)
	assert.Equal(t, StackID(1), id2)
	assert.Equal(t, id1, id3)
	assert.Equal(t, 2, table.Len())
}

func TestStackTableCopiesInput(t *testing.T) {
	table := newStackTable()

	ids := []FrameID{3, 4}
	id := table.Intern(ids)

	// Mutating the caller's slice must not corrupt the interned sequence.
	ids[0] = 99
	assert.Equal(t, id, table.Intern([]FrameID{3, 4}))
	assert.Equal(t, 1, table.Len())
}

func TestHashFrameIDsDistinguishesOrder(t *testing.T) {
	assert.NotEqual(t, hashFrameIDs([]FrameID{1, 2}), hashFrameIDs([]FrameID{2, 1}))
	assert.Equal(t, hashFrameIDs([]FrameID{1, 2}), hashFrameIDs([]FrameID{1, 2}))
}
