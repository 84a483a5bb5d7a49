/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package events

// Event models an event published on a topic
type Event interface {
	// Topic returns the topic the event belongs to
	Topic() string
	// Message returns the payload of the event
	Message() interface{}
}

// Listener is notified of the events published on the topics it subscribed to
type Listener interface {
	// OnReceive is called synchronously by the publisher, it must not block
	OnReceive(event Event)
}

type Publisher interface {
	Publish(event Event)
}

type Subscriber interface {
	Subscribe(topic string, receiver Listener)
	Unsubscribe(topic string, receiver Listener)
}

type EventSystem interface {
	Publisher
	Subscriber
}

// ListenerFunc adapts a function to a Listener. Only pointers to ListenerFunc can be unsubscribed.
type ListenerFunc func(event Event)

func (f *ListenerFunc) OnReceive(event Event) {
	(*f)(event)
}
