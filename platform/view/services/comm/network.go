/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package comm provides reliable, ordered, point-to-point sessions between known parties
// living in the same process.
package comm

import (
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/zap/zapcore"

	"github.com/hyperledger-labs/fsc-iou/platform/common/services/logging"
	"github.com/hyperledger-labs/fsc-iou/platform/view/view"
)

var logger = logging.MustGetLogger("fsc.view.comm")

var (
	// ErrSessionClosed is returned when a message is sent when the session is closed.
	ErrSessionClosed = errors.New("session closed")
	// ErrPeerUnreachable is returned when a session is opened towards an offline or unknown party.
	ErrPeerUnreachable = errors.New("peer unreachable")
)

const defaultInboxSize = 64

// Handler is notified of the sessions opened by remote parties
type Handler interface {
	NewSessionReceived(session view.Session, callerViewID, contextID string, caller view.Identity)
}

// JoinListener is notified every time a party comes online
type JoinListener func(party view.Identity)

// Network routes messages between the endpoints that joined it
type Network struct {
	lock      sync.RWMutex
	endpoints map[string]*Endpoint
	listeners []JoinListener
}

func NewNetwork() *Network {
	return &Network{endpoints: map[string]*Endpoint{}}
}

// Join brings the passed party online. Incoming sessions are dispatched to handler.
// Joining again after Leave models a reconnection: join listeners are notified.
func (n *Network) Join(id view.Identity, handler Handler) *Endpoint {
	n.lock.Lock()
	e, ok := n.endpoints[id.UniqueID()]
	if !ok {
		e = &Endpoint{network: n, id: id, sessions: map[string]*session{}}
		n.endpoints[id.UniqueID()] = e
	}
	e.setHandler(handler)
	e.online.Store(true)
	listeners := append([]JoinListener{}, n.listeners...)
	n.lock.Unlock()

	logger.Debugf("party [%s] joined", id)
	for _, l := range listeners {
		go l(id)
	}
	return e
}

// Leave takes the passed party offline and closes its sessions
func (n *Network) Leave(id view.Identity) {
	n.lock.RLock()
	e, ok := n.endpoints[id.UniqueID()]
	n.lock.RUnlock()
	if !ok {
		return
	}
	e.online.Store(false)
	e.closeAll()
	logger.Debugf("party [%s] left", id)
}

// IsOnline returns true if the passed party joined and did not leave
func (n *Network) IsOnline(id view.Identity) bool {
	n.lock.RLock()
	defer n.lock.RUnlock()
	e, ok := n.endpoints[id.UniqueID()]
	return ok && e.online.Load()
}

// AddJoinListener registers a listener invoked, asynchronously, when a party joins
func (n *Network) AddJoinListener(l JoinListener) {
	n.lock.Lock()
	defer n.lock.Unlock()
	n.listeners = append(n.listeners, l)
}

func (n *Network) endpoint(id view.Identity) (*Endpoint, bool) {
	n.lock.RLock()
	defer n.lock.RUnlock()
	e, ok := n.endpoints[id.UniqueID()]
	if !ok || !e.online.Load() {
		return nil, false
	}
	return e, true
}

// Endpoint is the attachment point of a party to the network
type Endpoint struct {
	network *Network
	id      view.Identity
	handler Handler
	online  atomic.Bool

	lock     sync.Mutex
	sessions map[string]*session
}

// Identity returns the identity of the party owning this endpoint
func (e *Endpoint) Identity() view.Identity {
	return e.id
}

// NewSession opens a session towards the passed party on behalf of callerViewID.
// The remote party is handed the other end of the session through its Handler.
func (e *Endpoint) NewSession(callerViewID, contextID string, to view.Identity) (view.Session, error) {
	if !e.online.Load() {
		return nil, errors.Wrapf(ErrPeerUnreachable, "party [%s] is offline", e.id)
	}
	remote, ok := e.network.endpoint(to)
	if !ok {
		return nil, errors.Wrapf(ErrPeerUnreachable, "cannot open session to [%s]", to)
	}

	id := uuid.New().String()
	local := newSession(id, contextID, callerViewID, e.id, e.id, to)
	other := newSession(id, contextID, callerViewID, e.id, to, e.id)
	local.peer, other.peer = other, local
	local.owner, other.owner = e, remote

	e.track(local)
	remote.track(other)

	if logger.IsEnabledFor(zapcore.DebugLevel) {
		logger.Debugf("session [%s] opened [%s]->[%s] for [%s]", id, e.id, to, callerViewID)
	}
	go remote.getHandler().NewSessionReceived(other, callerViewID, contextID, e.id)
	return local, nil
}

func (e *Endpoint) setHandler(h Handler) {
	e.lock.Lock()
	defer e.lock.Unlock()
	e.handler = h
}

func (e *Endpoint) getHandler() Handler {
	e.lock.Lock()
	defer e.lock.Unlock()
	return e.handler
}

func (e *Endpoint) track(s *session) {
	e.lock.Lock()
	defer e.lock.Unlock()
	e.sessions[s.info.ID] = s
}

func (e *Endpoint) untrack(s *session) {
	e.lock.Lock()
	defer e.lock.Unlock()
	delete(e.sessions, s.info.ID)
}

func (e *Endpoint) closeAll() {
	e.lock.Lock()
	sessions := make([]*session, 0, len(e.sessions))
	for _, s := range e.sessions {
		sessions = append(sessions, s)
	}
	e.lock.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}

var networkLookUp = &Network{}

// GetNetwork returns the network registered in the passed service provider
func GetNetwork(sp view.ServiceProvider) (*Network, error) {
	s, err := sp.GetService(networkLookUp)
	if err != nil {
		return nil, errors.Wrap(err, "cannot get network")
	}
	return s.(*Network), nil
}
