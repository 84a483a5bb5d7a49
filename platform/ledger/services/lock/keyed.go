/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package lock

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap/zapcore"

	"github.com/hyperledger-labs/fsc-iou/platform/common/services/logging"
	"github.com/hyperledger-labs/fsc-iou/platform/view/view"
)

var logger = logging.MustGetLogger("ledger.lock")

type entry struct {
	ch      chan struct{}
	waiters int
}

// KeyedMutex serializes the holders of the same key. Different keys do not contend.
type KeyedMutex struct {
	lock    sync.Mutex
	entries map[string]*entry
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{entries: map[string]*entry{}}
}

// Lock blocks until id is free or ctx is done. The returned function releases id and
// can be called more than once.
func (m *KeyedMutex) Lock(ctx context.Context, id string) (func(), error) {
	e := m.entry(id)
	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		m.release(id, e, false)
		return nil, errors.Wrapf(ctx.Err(), "failed acquiring lock on [%s]", id)
	}
	if logger.IsEnabledFor(zapcore.DebugLevel) {
		logger.Debugf("lock on [%s] acquired", id)
	}
	return m.unlocker(id, e), nil
}

// TryLock acquires id only if it is free
func (m *KeyedMutex) TryLock(id string) (func(), bool) {
	e := m.entry(id)
	select {
	case e.ch <- struct{}{}:
		return m.unlocker(id, e), true
	default:
		m.release(id, e, false)
		return nil, false
	}
}

func (m *KeyedMutex) entry(id string) *entry {
	m.lock.Lock()
	defer m.lock.Unlock()
	e, ok := m.entries[id]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		m.entries[id] = e
	}
	e.waiters++
	return e
}

func (m *KeyedMutex) unlocker(id string, e *entry) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			m.release(id, e, true)
		})
	}
}

func (m *KeyedMutex) release(id string, e *entry, held bool) {
	if held {
		<-e.ch
	}
	m.lock.Lock()
	defer m.lock.Unlock()
	e.waiters--
	if e.waiters == 0 {
		delete(m.entries, id)
	}
}

var mutexLookUp = &KeyedMutex{}

// GetKeyedMutex returns the keyed mutex registered in the passed service provider
func GetKeyedMutex(sp view.ServiceProvider) (*KeyedMutex, error) {
	s, err := sp.GetService(mutexLookUp)
	if err != nil {
		return nil, errors.Wrap(err, "cannot get keyed mutex")
	}
	return s.(*KeyedMutex), nil
}
