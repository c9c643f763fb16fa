// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package sets

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSet(t *testing.T) {
	// Sets are created empty.
	s := Make[int](10)
	assert.Len(t, s, 0)

	// Check inserting and recovery.
	s.Insert(3, 7)
	assert.Len(t, s, 2)
	assert.True(t, s.Has(3))
	assert.True(t, s.Has(7))
	assert.False(t, s.Has(5))

	s.Insert(5, 1)
	assert.Equal(t, []int{1, 3, 5, 7}, Sorted(s))

	// Keys not in the set are ignored.
	s.Delete(5, 11)
	assert.Equal(t, []int{1, 3, 7}, Sorted(s))
	assert.Empty(t, Sorted(Make[int]()))
}
