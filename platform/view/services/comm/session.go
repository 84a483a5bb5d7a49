/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package comm

import (
	"sync"

	"github.com/hyperledger-labs/fsc-iou/platform/view/view"
)

// session is one end of an in-process session. Messages sent on one end are delivered,
// in order, to the incoming channel of the other end.
type session struct {
	info      view.SessionInfo
	contextID string
	self      view.Identity
	peer      *session
	owner     *Endpoint
	incoming  chan *view.Message

	closeOnce sync.Once
	closed    chan struct{}
}

func newSession(id, contextID, callerViewID string, caller, self, endpoint view.Identity) *session {
	return &session{
		info: view.SessionInfo{
			ID:           id,
			Caller:       caller,
			CallerViewID: callerViewID,
			Endpoint:     endpoint,
		},
		contextID: contextID,
		self:      self,
		incoming:  make(chan *view.Message, defaultInboxSize),
		closed:    make(chan struct{}),
	}
}

// Info returns a view.SessionInfo.
func (s *session) Info() view.SessionInfo {
	info := s.info
	info.Closed = s.isClosed() || s.peer.isClosed()
	return info
}

// Send sends the payload to the endpoint.
func (s *session) Send(payload []byte) error {
	return s.sendWithStatus(payload, view.OK)
}

// SendError sends an error to the endpoint with the passed payload.
func (s *session) SendError(payload []byte) error {
	return s.sendWithStatus(payload, view.ERROR)
}

// Receive returns a channel of messages received from the endpoint
func (s *session) Receive() <-chan *view.Message {
	return s.incoming
}

// Close releases all the resources allocated by this session.
// The other end can still drain the messages already delivered.
func (s *session) Close() {
	s.closeOnce.Do(func() {
		close(s.closed)
		if s.owner != nil {
			s.owner.untrack(s)
		}
		logger.Debugf("session [%s] of [%s] closed", s.info.ID, s.self)
	})
}

func (s *session) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

func (s *session) sendWithStatus(payload []byte, status int32) error {
	if s.isClosed() || s.peer.isClosed() {
		return ErrSessionClosed
	}
	msg := &view.Message{
		SessionID: s.info.ID,
		ContextID: s.contextID,
		Caller:    s.info.CallerViewID,
		From:      s.self,
		Status:    status,
		Payload:   payload,
	}
	select {
	case s.peer.incoming <- msg:
		return nil
	case <-s.peer.closed:
		return ErrSessionClosed
	case <-s.closed:
		return ErrSessionClosed
	}
}
