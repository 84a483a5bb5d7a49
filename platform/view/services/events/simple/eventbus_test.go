/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package simple

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hyperledger-labs/fsc-iou/platform/view/services/events"
)

type message struct {
	topic string
	msg   string
}

func (m *message) Topic() string        { return m.topic }
func (m *message) Message() interface{} { return m.msg }

type recorder struct {
	received []string
}

func (r *recorder) OnReceive(event events.Event) {
	r.received = append(r.received, event.Message().(string))
}

func TestPublishSubscribe(t *testing.T) {
	bus := NewEventBus()
	r1, r2 := &recorder{}, &recorder{}
	bus.Subscribe("committed", r1)
	bus.Subscribe("committed", r2)
	bus.Subscribe("other", r2)
	bus.Subscribe("committed", nil)

	bus.Publish(&message{"committed", "tx1"})
	bus.Publish(&message{"other", "x"})
	bus.Publish(&message{"nobody", "y"})
	bus.Publish(nil)

	assert.Equal(t, []string{"tx1"}, r1.received)
	assert.Equal(t, []string{"tx1", "x"}, r2.received)

	bus.Unsubscribe("committed", r1)
	bus.Unsubscribe("committed", r1)
	bus.Unsubscribe("missing", r1)
	bus.Publish(&message{"committed", "tx2"})
	assert.Equal(t, []string{"tx1"}, r1.received)
	assert.Equal(t, []string{"tx1", "x", "tx2"}, r2.received)

	bus.Unsubscribe("committed", r2)
	bus.Unsubscribe("other", r2)
	assert.Empty(t, bus.handlers)
}

func TestPanickingListener(t *testing.T) {
	bus := NewEventBus()
	var panicking events.ListenerFunc = func(events.Event) { panic("boom") }
	r := &recorder{}
	bus.Subscribe("t", &panicking)
	bus.Subscribe("t", r)

	assert.NotPanics(t, func() { bus.Publish(&message{"t", "m"}) })
	assert.Equal(t, []string{"m"}, r.received)

	bus.Unsubscribe("t", &panicking)
	assert.Len(t, bus.handlers["t"], 1)
}
