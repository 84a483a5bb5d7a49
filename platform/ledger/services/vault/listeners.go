/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package vault

import (
	"runtime/debug"
	"sync"

	"github.com/pkg/errors"
)

// FinalityListener is notified once about the finality of a transaction
type FinalityListener interface {
	OnStatus(txID string, status TxStatus)
}

// FinalityListenerFunc adapts a function to a FinalityListener
type FinalityListenerFunc func(txID string, status TxStatus)

func (f *FinalityListenerFunc) OnStatus(txID string, status TxStatus) {
	(*f)(txID, status)
}

type listenerManager struct {
	mutex     sync.Mutex
	listeners map[string][]FinalityListener
}

func newListenerManager() *listenerManager {
	return &listenerManager{listeners: map[string][]FinalityListener{}}
}

func (c *listenerManager) add(txID string, l FinalityListener) error {
	if len(txID) == 0 {
		return errors.Errorf("tx id must be not empty")
	}
	if l == nil {
		return errors.Errorf("listener must be not nil")
	}
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.listeners[txID] = append(c.listeners[txID], l)
	return nil
}

func (c *listenerManager) remove(txID string, toRemove FinalityListener) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	ls := c.listeners[txID]
	for i, l := range ls {
		if l == toRemove {
			ls = append(ls[:i], ls[i+1:]...)
			break
		}
	}
	if len(ls) == 0 {
		delete(c.listeners, txID)
		return
	}
	c.listeners[txID] = ls
}

// invoke notifies and forgets the listeners of txID
func (c *listenerManager) invoke(txID string, status TxStatus) {
	c.mutex.Lock()
	listeners := c.listeners[txID]
	delete(c.listeners, txID)
	c.mutex.Unlock()

	for _, l := range listeners {
		c.safeInvoke(l, txID, status)
	}
}

func (c *listenerManager) safeInvoke(l FinalityListener, txID string, status TxStatus) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("caught panic while dispatching finality of [%s:%s]: [%s][%s]", txID, status, r, debug.Stack())
		}
	}()
	l.OnStatus(txID, status)
}
