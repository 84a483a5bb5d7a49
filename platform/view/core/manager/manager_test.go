/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package manager

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperledger-labs/fsc-iou/platform/view/services/comm"
	"github.com/hyperledger-labs/fsc-iou/platform/view/services/registry"
	"github.com/hyperledger-labs/fsc-iou/platform/view/services/session"
	"github.com/hyperledger-labs/fsc-iou/platform/view/view"
)

type pingView struct {
	to view.Identity
}

func (p *pingView) Call(context view.Context) (interface{}, error) {
	s, err := session.NewJSON(context, context.Initiator(), p.to)
	if err != nil {
		return nil, err
	}
	// the responder might have already answered with an error and closed
	if err := s.Send("ping"); err != nil && !errors.Is(err, comm.ErrSessionClosed) {
		return nil, err
	}
	var answer string
	if err := s.ReceiveWithTimeout(&answer, 5*time.Second); err != nil {
		return nil, err
	}
	return answer, nil
}

type pongView struct{}

func (p *pongView) Call(context view.Context) (interface{}, error) {
	s := session.JSON(context)
	var msg string
	if err := s.Receive(&msg); err != nil {
		return nil, err
	}
	return nil, s.Send(msg + "-pong")
}

type panicView struct{}

func (p *panicView) Call(context view.Context) (interface{}, error) {
	panic("responder exploded")
}

type pingFactory struct{}

func (p *pingFactory) NewView(in []byte) (view.View, error) {
	v := &pingView{}
	if err := json.Unmarshal(in, &v.to); err != nil {
		return nil, err
	}
	return v, nil
}

func newParty(t *testing.T, n *comm.Network, name string) *Manager {
	id := view.Identity(name)
	m := New(id, registry.New(), nil)
	m.Start(context.Background(), n.Join(id, m))
	return m
}

func TestInitiatorResponder(t *testing.T) {
	n := comm.NewNetwork()
	alice := newParty(t, n, "alice")
	bob := newParty(t, n, "bob")
	require.NoError(t, bob.RegisterResponder(&pongView{}, &pingView{}))

	res, err := alice.InitiateView(&pingView{to: bob.Me()}, context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ping-pong", res)
	assert.Equal(t, 0, alice.ActiveViews())
}

func TestResponderPanicIsReported(t *testing.T) {
	n := comm.NewNetwork()
	alice := newParty(t, n, "alice")
	bob := newParty(t, n, "bob")
	require.NoError(t, bob.RegisterResponder(&panicView{}, &pingView{}))

	_, err := alice.InitiateView(&pingView{to: bob.Me()}, context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, session.ErrRemote))
	assert.Contains(t, err.Error(), "responder exploded")
}

func TestMissingResponder(t *testing.T) {
	n := comm.NewNetwork()
	alice := newParty(t, n, "alice")
	bob := newParty(t, n, "bob")

	_, err := alice.InitiateView(&pingView{to: bob.Me()}, context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "responder not found")
}

func TestFactoriesAndErrorCallbacks(t *testing.T) {
	n := comm.NewNetwork()
	alice := newParty(t, n, "alice")
	require.NoError(t, alice.RegisterFactory("ping", &pingFactory{}))

	raw, err := json.Marshal(view.Identity("bob"))
	require.NoError(t, err)
	v, err := alice.NewView("ping", raw)
	require.NoError(t, err)
	assert.Equal(t, view.Identity("bob"), v.(*pingView).to)

	_, err = alice.NewView("pong", nil)
	assert.Error(t, err)

	called := false
	_, err = alice.InitiateView(nil, context.Background())
	assert.Error(t, err)

	_, err = alice.InitiateView(&pingView{}, context.Background())
	assert.Error(t, err, "sessions to unknown parties must fail")

	_, err = alice.InitiateView(callbackView(func(c view.Context) (interface{}, error) {
		c.OnError(func() { called = true })
		panic(errors.New("boom"))
	}), context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.True(t, called)
}

type callbackView func(c view.Context) (interface{}, error)

func (f callbackView) Call(c view.Context) (interface{}, error) {
	return f(c)
}
