/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package lock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

func TestKeyedMutexSerializesSameKey(t *testing.T) {
	m := NewKeyedMutex()
	var inside, max atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := m.Lock(context.Background(), "iou-1")
			if !assert.NoError(t, err) {
				return
			}
			defer unlock()
			n := inside.Inc()
			if n > max.Load() {
				max.Store(n)
			}
			time.Sleep(time.Millisecond)
			inside.Dec()
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), max.Load())
	assert.Empty(t, m.entries)
}

func TestKeyedMutexIndependentKeys(t *testing.T) {
	m := NewKeyedMutex()
	unlockA, err := m.Lock(context.Background(), "a")
	require.NoError(t, err)
	unlockB, ok := m.TryLock("b")
	require.True(t, ok)

	_, ok = m.TryLock("a")
	assert.False(t, ok)

	unlockA()
	unlockA()
	unlockB()
	unlock, ok := m.TryLock("a")
	require.True(t, ok)
	unlock()
	assert.Empty(t, m.entries)
}

func TestKeyedMutexCancellation(t *testing.T) {
	m := NewKeyedMutex()
	unlock, err := m.Lock(context.Background(), "a")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = m.Lock(ctx, "a")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	unlock()
	unlock, err = m.Lock(context.Background(), "a")
	require.NoError(t, err)
	unlock()
	assert.Empty(t, m.entries)
}
