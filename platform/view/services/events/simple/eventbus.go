/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package simple

import (
	"runtime/debug"
	"sync"

	"github.com/hyperledger-labs/fsc-iou/platform/common/services/logging"
	"github.com/hyperledger-labs/fsc-iou/platform/view/services/events"
)

var logger = logging.MustGetLogger("fsc.view.events")

type eventBus struct {
	handlers map[string][]events.Listener
	lock     sync.RWMutex
}

func NewEventBus() *eventBus {
	return &eventBus{
		handlers: make(map[string][]events.Listener),
	}
}

// Publish delivers the event to the listeners of its topic, in subscription order.
// A panicking listener does not prevent the delivery to the others.
func (e *eventBus) Publish(event events.Event) {
	if event == nil {
		return
	}

	e.lock.RLock()
	subs := append([]events.Listener{}, e.handlers[event.Topic()]...)
	e.lock.RUnlock()

	for _, sub := range subs {
		notify(sub, event)
	}
}

func (e *eventBus) Subscribe(topic string, receiver events.Listener) {
	if receiver == nil {
		return
	}

	e.lock.Lock()
	defer e.lock.Unlock()
	e.handlers[topic] = append(e.handlers[topic], receiver)
}

func (e *eventBus) Unsubscribe(topic string, receiver events.Listener) {
	if receiver == nil {
		return
	}

	e.lock.Lock()
	defer e.lock.Unlock()

	handlers, ok := e.handlers[topic]
	if !ok {
		// no subscriber for this topic
		return
	}
	idx := findIndex(handlers, receiver)
	if idx == -1 {
		return
	}
	handlers = append(handlers[:idx:idx], handlers[idx+1:]...)
	if len(handlers) > 0 {
		e.handlers[topic] = handlers
	} else {
		delete(e.handlers, topic)
	}
}

func notify(l events.Listener, event events.Event) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("listener panicked on topic [%s]: %v\n%s", event.Topic(), r, debug.Stack())
		}
	}()
	l.OnReceive(event)
}

// findIndex returns the position of receiver in handlers.
// Returns -1 if not found
func findIndex(handlers []events.Listener, receiver events.Listener) int {
	for i, h := range handlers {
		if h == receiver {
			return i
		}
	}
	return -1
}
