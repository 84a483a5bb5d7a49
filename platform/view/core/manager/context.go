/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package manager

import (
	"context"
	"runtime/debug"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap/zapcore"

	"github.com/hyperledger-labs/fsc-iou/platform/view/services/registry"
	"github.com/hyperledger-labs/fsc-iou/platform/view/view"
)

type ctx struct {
	context   context.Context
	manager   *Manager
	localSP   *registry.ServiceProvider
	id        string
	session   view.Session
	initiator view.View

	// shared by the child contexts
	*shared
}

type shared struct {
	sessionsLock       sync.Mutex
	sessions           map[string]view.Session
	callbacksLock      sync.Mutex
	errorCallbackFuncs []func()
}

func newContext(c context.Context, manager *Manager, contextID string, session view.Session) *ctx {
	return &ctx{
		context: c,
		manager: manager,
		localSP: registry.New(),
		id:      contextID,
		session: session,
		shared:  &shared{sessions: map[string]view.Session{}},
	}
}

func (ctx *ctx) ID() string {
	return ctx.id
}

func (ctx *ctx) Initiator() view.View {
	return ctx.initiator
}

func (ctx *ctx) Me() view.Identity {
	return ctx.manager.me
}

func (ctx *ctx) IsMe(id view.Identity) bool {
	if ctx.manager.checker != nil {
		return ctx.manager.checker.IsMe(id)
	}
	return ctx.manager.me.Equal(id)
}

func (ctx *ctx) Context() context.Context {
	return ctx.context
}

func (ctx *ctx) Session() view.Session {
	return ctx.session
}

func (ctx *ctx) OnError(callback func()) {
	ctx.callbacksLock.Lock()
	defer ctx.callbacksLock.Unlock()
	ctx.errorCallbackFuncs = append(ctx.errorCallbackFuncs, callback)
}

// PutService registers a service visible only to this context
func (ctx *ctx) PutService(service interface{}) error {
	return ctx.localSP.RegisterService(service)
}

func (ctx *ctx) GetService(v interface{}) (interface{}, error) {
	// first search locally then globally
	s, err := ctx.localSP.GetService(v)
	if err == nil {
		return s, nil
	}
	return ctx.manager.GetService(v)
}

// GetSession returns the session to party opened on behalf of caller, opening it if needed.
// Sessions are scoped by caller view and cached for the lifetime of the context.
func (ctx *ctx) GetSession(caller view.View, party view.Identity) (view.Session, error) {
	ctx.sessionsLock.Lock()
	defer ctx.sessionsLock.Unlock()

	if ctx.session != nil && ctx.session.Info().Endpoint.Equal(party) && !ctx.session.Info().Closed {
		return ctx.session, nil
	}

	key := GetIdentifier(caller) + party.UniqueID()
	s, ok := ctx.sessions[key]
	if ok && s.Info().Closed {
		if logger.IsEnabledFor(zapcore.DebugLevel) {
			logger.Debugf("removing session [%s], it is closed", s.Info().ID)
		}
		delete(ctx.sessions, key)
		ok = false
	}
	if ok {
		return s, nil
	}
	if caller == nil {
		return nil, errors.Errorf("a session should already exist, passed nil view")
	}

	if logger.IsEnabledFor(zapcore.DebugLevel) {
		logger.Debugf("[%s] creating new session [to:%s]", ctx.manager.me, party)
	}
	s, err := ctx.manager.newSession(caller, ctx.id, party)
	if err != nil {
		return nil, err
	}
	ctx.sessions[key] = s
	return s, nil
}

func (ctx *ctx) RunView(v view.View, opts ...view.RunViewOption) (res interface{}, err error) {
	options, err := view.CompileRunViewOptions(opts...)
	if err != nil {
		return nil, errors.Wrap(err, "failed compiling options")
	}

	cc := ctx
	if !options.SameContext || options.Session != nil || options.AsInitiator {
		cc = ctx.child(v, options)
	}
	if options.Ctx != nil {
		cc = cc.withContext(options.Ctx)
	}

	defer func() {
		if r := recover(); r != nil {
			cc.cleanup()
			res = nil

			logger.Errorf("caught panic while running view with [%v][%s]", r, debug.Stack())

			switch e := r.(type) {
			case error:
				err = errors.WithMessage(e, "caught panic")
			case string:
				err = errors.New(e)
			default:
				err = errors.Errorf("caught panic [%v]", e)
			}
		}
	}()

	if v == nil && options.Call == nil {
		return nil, errors.Errorf("no view passed")
	}
	if options.Call != nil {
		res, err = options.Call(cc)
	} else {
		res, err = v.Call(cc)
	}
	if err != nil {
		cc.cleanup()
		return nil, err
	}
	return res, nil
}

// Dispose closes all the sessions opened by this context
func (ctx *ctx) Dispose() {
	ctx.sessionsLock.Lock()
	defer ctx.sessionsLock.Unlock()

	if ctx.session != nil {
		ctx.session.Close()
	}
	for _, s := range ctx.sessions {
		s.Close()
	}
	ctx.sessions = map[string]view.Session{}
}

func (ctx *ctx) child(v view.View, options *view.RunViewOptions) *ctx {
	c := *ctx
	if options.AsInitiator {
		c.initiator = v
		c.session = nil
	}
	if options.Session != nil {
		c.session = options.Session
	}
	return &c
}

func (ctx *ctx) withContext(c context.Context) *ctx {
	cc := *ctx
	cc.context = c
	return &cc
}

func (ctx *ctx) cleanup() {
	ctx.callbacksLock.Lock()
	callbacks := ctx.errorCallbackFuncs
	ctx.errorCallbackFuncs = nil
	ctx.callbacksLock.Unlock()

	logger.Debugf("cleaning up context [%s][%d]", ctx.ID(), len(callbacks))
	for _, callbackFunc := range callbacks {
		ctx.safeInvoke(callbackFunc)
	}
}

func (ctx *ctx) safeInvoke(f func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Debugf("function [%v] panicked [%s]", f, r)
		}
	}()
	f()
}
