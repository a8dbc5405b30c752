// Copyright 2026 The yolofe Authors. SPDX-License-Identifier: Apache-2.0

package workerspool

import (
	"fmt"
	"runtime"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_ForEach(t *testing.T) {
	for _, parallelism := range []int{0, 1, 3, -1} {
		t.Run(fmt.Sprintf("parallelism=%d", parallelism), func(t *testing.T) {
			pool := New().SetMaxParallelism(parallelism)
			var running, maxRunning, count atomic.Int32
			done := make([]bool, 50)
			err := pool.ForEach(len(done), func(i int) error {
				current := running.Add(1)
				for {
					prev := maxRunning.Load()
					if current <= prev || maxRunning.CompareAndSwap(prev, current) {
						break
					}
				}
				runtime.Gosched()
				done[i] = true
				count.Add(1)
				running.Add(-1)
				return nil
			})
			require.NoError(t, err)
			assert.Equal(t, int32(50), count.Load())
			for i, d := range done {
				assert.Truef(t, d, "task %d not run", i)
			}
			if parallelism > 0 {
				assert.LessOrEqual(t, int(maxRunning.Load()), parallelism)
			}
			if parallelism == 0 {
				assert.Equal(t, int32(1), maxRunning.Load())
			}
		})
	}
}

func TestPool_ForEachError(t *testing.T) {
	pool := New().SetMaxParallelism(0)
	var count atomic.Int32
	err := pool.ForEach(10, func(i int) error {
		count.Add(1)
		if i >= 3 {
			return fmt.Errorf("task %d failed", i)
		}
		return nil
	})
	require.EqualError(t, err, "task 3 failed")
	// Inline execution: no new tasks started after the first failure.
	assert.Equal(t, int32(4), count.Load())

	pool.SetMaxParallelism(4)
	err = pool.ForEach(20, func(i int) error {
		if i%5 == 2 {
			return fmt.Errorf("task %d failed", i)
		}
		return nil
	})
	require.Error(t, err)
}
