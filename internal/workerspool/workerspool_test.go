// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package workerspool

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_WaitToStart(t *testing.T) {
	pool := New(3)
	require.Equal(t, 3, pool.Size())

	var running, maxRunning atomic.Int32
	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		pool.WaitToStart(func() {
			defer wg.Done()
			current := running.Add(1)
			for {
				prev := maxRunning.Load()
				if current <= prev || maxRunning.CompareAndSwap(prev, current) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			running.Add(-1)
		})
	}
	wg.Wait()
	assert.LessOrEqual(t, int(maxRunning.Load()), 3)
	assert.Greater(t, int(maxRunning.Load()), 0)
}

func TestPool_NoParallelism(t *testing.T) {
	pool := New(0)
	assert.False(t, pool.IsEnabled())
	var count int
	pool.WaitToStart(func() { count++ })
	assert.Equal(t, 1, count)
	assert.False(t, pool.StartIfAvailable(func() { count++ }))
	assert.Equal(t, 1, count)
}

func TestPool_StartIfAvailable(t *testing.T) {
	pool := New(1)
	release := make(chan struct{})
	done := make(chan struct{})
	require.True(t, pool.StartIfAvailable(func() {
		<-release
		close(done)
	}))
	assert.False(t, pool.StartIfAvailable(func() {}))
	close(release)
	<-done
}

func TestPool_ParallelFor(t *testing.T) {
	for _, size := range []int{0, 1, 4} {
		pool := New(size)
		const n = 1000
		var covered [n]atomic.Int32
		pool.ParallelFor(n, 16, func(start, end int) {
			for ii := start; ii < end; ii++ {
				covered[ii].Add(1)
			}
		})
		for ii := range n {
			require.Equalf(t, int32(1), covered[ii].Load(), "size=%d, element %d", size, ii)
		}
	}
}
