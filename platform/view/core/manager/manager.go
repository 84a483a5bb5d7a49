/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package manager

import (
	"context"
	"runtime/debug"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/zap/zapcore"

	"github.com/hyperledger-labs/fsc-iou/platform/common/services/logging"
	"github.com/hyperledger-labs/fsc-iou/platform/view/view"
)

var logger = logging.MustGetLogger("fsc.view.manager")

// Factory is used to create instances of a view from JSON input
type Factory interface {
	NewView(in []byte) (view.View, error)
}

// CommLayer opens sessions towards remote parties
type CommLayer interface {
	NewSession(callerViewID, contextID string, to view.Identity) (view.Session, error)
}

// IdentityChecker tells if an identity belongs to this node
type IdentityChecker interface {
	IsMe(id view.Identity) bool
}

// Manager runs views on behalf of a single party. Initiators are started with InitiateView;
// responders are spawned when a remote party opens a session on behalf of the initiator
// they are registered for.
type Manager struct {
	me       view.Identity
	sp       view.ServiceProvider
	checker  IdentityChecker
	commLock sync.RWMutex
	comm     CommLayer

	ctxLock sync.RWMutex
	ctx     context.Context

	viewsSync  sync.RWMutex
	responders map[string]view.View

	factoriesSync sync.RWMutex
	factories     map[string]Factory

	active atomic.Int32
}

func New(me view.Identity, sp view.ServiceProvider, checker IdentityChecker) *Manager {
	return &Manager{
		me:         me,
		sp:         sp,
		checker:    checker,
		ctx:        context.Background(),
		responders: map[string]view.View{},
		factories:  map[string]Factory{},
	}
}

// Start binds the manager to its communication layer. ctx is the parent context of every responder.
func (cm *Manager) Start(ctx context.Context, comm CommLayer) {
	cm.ctxLock.Lock()
	cm.ctx = ctx
	cm.ctxLock.Unlock()

	cm.commLock.Lock()
	cm.comm = comm
	cm.commLock.Unlock()
}

func (cm *Manager) Me() view.Identity {
	return cm.me
}

func (cm *Manager) GetService(v interface{}) (interface{}, error) {
	return cm.sp.GetService(v)
}

func (cm *Manager) RegisterFactory(id string, factory Factory) error {
	if logger.IsEnabledFor(zapcore.DebugLevel) {
		logger.Debugf("register view factory [%s]", id)
	}
	cm.factoriesSync.Lock()
	defer cm.factoriesSync.Unlock()
	cm.factories[id] = factory
	return nil
}

// NewView creates a view using the factory registered under the passed id
func (cm *Manager) NewView(id string, in []byte) (f view.View, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("new view triggered panic: %s\n%s\n", r, debug.Stack())
			err = errors.Errorf("failed creating view [%s]", r)
		}
	}()

	cm.factoriesSync.RLock()
	factory, ok := cm.factories[id]
	cm.factoriesSync.RUnlock()
	if !ok {
		return nil, errors.Errorf("no factory found for id [%s]", id)
	}
	return factory.NewView(in)
}

// RegisterResponder registers responder to answer the sessions opened by initiatedBy,
// a view or the identifier of a view.
func (cm *Manager) RegisterResponder(responder view.View, initiatedBy interface{}) error {
	var id string
	switch t := initiatedBy.(type) {
	case view.View:
		id = GetIdentifier(t)
	case string:
		id = t
	default:
		return errors.Errorf("initiatedBy must be a view or a string")
	}

	cm.viewsSync.Lock()
	defer cm.viewsSync.Unlock()
	logger.Debugf("registering responder [%s] for initiator [%s]", GetIdentifier(responder), id)
	cm.responders[id] = responder
	return nil
}

// GetResponder returns the responder registered for initiatedBy
func (cm *Manager) GetResponder(initiatedBy interface{}) (view.View, error) {
	var id string
	switch t := initiatedBy.(type) {
	case view.View:
		id = GetIdentifier(t)
	case string:
		id = t
	default:
		return nil, errors.Errorf("initiatedBy must be a view or a string")
	}

	cm.viewsSync.RLock()
	defer cm.viewsSync.RUnlock()
	responder, ok := cm.responders[id]
	if !ok {
		return nil, errors.Errorf("responder not found for [%s]", id)
	}
	return responder, nil
}

// InitiateView runs the passed view as initiator in a fresh context
func (cm *Manager) InitiateView(v view.View, c context.Context) (interface{}, error) {
	if c == nil {
		c = cm.context()
	}
	viewContext := newContext(c, cm, uuid.New().String(), nil)
	viewContext.initiator = v

	cm.active.Inc()
	defer cm.active.Dec()
	defer viewContext.Dispose()

	if logger.IsEnabledFor(zapcore.DebugLevel) {
		logger.Debugf("[%s] initiate view [%s] in context [%s]", cm.me, GetName(v), viewContext.ID())
	}
	res, err := viewContext.RunView(v, view.WithSameContext())
	if err != nil {
		logger.Debugf("[%s] view [%s] failed [%s]", cm.me, GetName(v), err)
		return nil, err
	}
	return res, nil
}

// NewSessionReceived spawns the responder registered for the remote initiator
func (cm *Manager) NewSessionReceived(session view.Session, callerViewID, contextID string, caller view.Identity) {
	responder, err := cm.GetResponder(callerViewID)
	if err != nil {
		logger.Warnf("[%s] no responder for session [%s] from [%s]: %s", cm.me, session.Info().ID, caller, err)
		_ = session.SendError([]byte(err.Error()))
		session.Close()
		return
	}

	s := &trackedSession{Session: session}
	viewContext := newContext(cm.context(), cm, contextID, s)

	cm.active.Inc()
	defer cm.active.Dec()
	defer viewContext.Dispose()

	if _, err := viewContext.RunView(responder, view.WithSameContext()); err != nil {
		logger.Errorf("[%s] responder [%s] failed: %s", cm.me, GetName(responder), err)
		if !s.sent.Load() {
			// the initiator is still waiting for an answer
			_ = s.SendError([]byte(err.Error()))
		}
	}
}

// ActiveViews returns the number of views in execution
func (cm *Manager) ActiveViews() int {
	return int(cm.active.Load())
}

func (cm *Manager) context() context.Context {
	cm.ctxLock.RLock()
	defer cm.ctxLock.RUnlock()
	return cm.ctx
}

func (cm *Manager) newSession(caller view.View, contextID string, party view.Identity) (view.Session, error) {
	cm.commLock.RLock()
	comm := cm.comm
	cm.commLock.RUnlock()
	if comm == nil {
		return nil, errors.New("manager not started, no communication layer")
	}
	return comm.NewSession(GetIdentifier(caller), contextID, party)
}

// trackedSession remembers if the responder answered at least once
type trackedSession struct {
	view.Session
	sent atomic.Bool
}

func (s *trackedSession) Send(payload []byte) error {
	s.sent.Store(true)
	return s.Session.Send(payload)
}

func (s *trackedSession) SendError(payload []byte) error {
	s.sent.Store(true)
	return s.Session.SendError(payload)
}

var managerLookUp = &Manager{}

// GetManager returns the view manager registered in the passed service provider
func GetManager(sp view.ServiceProvider) (*Manager, error) {
	s, err := sp.GetService(managerLookUp)
	if err != nil {
		return nil, errors.Wrap(err, "cannot get view manager")
	}
	return s.(*Manager), nil
}
