/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package web

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/hyperledger-labs/fsc-iou/platform/ledger/services/finality"
	"github.com/hyperledger-labs/fsc-iou/platform/view/services/events"
)

// Event is the message pushed to the monitoring clients
type Event struct {
	RequestID string    `json:"requestId,omitempty"`
	Message   string    `json:"message"`
	TxID      string    `json:"txId,omitempty"`
	Contract  string    `json:"contract,omitempty"`
	Command   string    `json:"command,omitempty"`
	Time      time.Time `json:"time"`
}

// Monitor pushes the progress of the requests and the transactions committed to the local vault
// to every connected web socket
type Monitor struct {
	mutex   sync.Mutex
	streams map[*WSStream]struct{}
	events  chan *Event
	stop    chan struct{}
	once    sync.Once
}

func NewMonitor(bufferSize int) *Monitor {
	return &Monitor{
		streams: map[*WSStream]struct{}{},
		events:  make(chan *Event, bufferSize),
		stop:    make(chan struct{}),
	}
}

// OnReceive turns a committed transaction into a monitoring event
func (m *Monitor) OnReceive(event events.Event) {
	c, ok := event.Message().(*finality.Committed)
	if !ok {
		return
	}
	m.Publish(&Event{
		Message:  fmt.Sprintf("committed [%s] of [%s.%s]", c.TxID, c.Contract, c.Command),
		TxID:     c.TxID,
		Contract: c.Contract,
		Command:  c.Command,
		Time:     c.Time,
	})
}

// Publish queues e for delivery. It never blocks, e is dropped when the queue is full.
func (m *Monitor) Publish(e *Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	select {
	case m.events <- e:
	default:
		webLogger.Debugf("monitoring queue full, dropping [%s]", e.Message)
	}
}

func (m *Monitor) Start() {
	go m.loop()
}

func (m *Monitor) Stop() {
	m.once.Do(func() {
		close(m.stop)
		m.mutex.Lock()
		defer m.mutex.Unlock()
		for s := range m.streams {
			_ = s.Close()
			delete(m.streams, s)
		}
	})
}

// Clients returns the number of connected web sockets
func (m *Monitor) Clients() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return len(m.streams)
}

func (m *Monitor) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	stream, err := NewWSStream(w, r)
	if err != nil {
		webLogger.Warnf("failed opening monitoring stream: %s", err)
		return
	}
	m.mutex.Lock()
	m.streams[stream] = struct{}{}
	m.mutex.Unlock()

	stream.Drain()
	m.remove(stream)
}

func (m *Monitor) loop() {
	for {
		select {
		case <-m.stop:
			return
		case e := <-m.events:
			for _, s := range m.snapshot() {
				if err := s.Send(e); err != nil {
					m.remove(s)
				}
			}
		}
	}
}

func (m *Monitor) snapshot() []*WSStream {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	res := make([]*WSStream, 0, len(m.streams))
	for s := range m.streams {
		res = append(res, s)
	}
	return res
}

func (m *Monitor) remove(s *WSStream) {
	m.mutex.Lock()
	_, ok := m.streams[s]
	delete(m.streams, s)
	m.mutex.Unlock()
	if ok {
		_ = s.Close()
	}
}
