/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package statetest provides parties and a toy contract to test the protocols built on states
package statetest

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hyperledger-labs/fsc-iou/platform/ledger/services/state"
	"github.com/hyperledger-labs/fsc-iou/platform/view/core/manager"
	"github.com/hyperledger-labs/fsc-iou/platform/view/services/comm"
	"github.com/hyperledger-labs/fsc-iou/platform/view/services/registry"
	"github.com/hyperledger-labs/fsc-iou/platform/view/services/sig"
	"github.com/hyperledger-labs/fsc-iou/platform/view/view"
)

// TB is the subset of testing.TB the helpers need
type TB interface {
	require.TestingT
	Helper()
}

// Party is a node with a fresh signing identity, a contract registry with the note contract
// and a view manager bound to the passed network
type Party struct {
	Name      string
	Identity  view.Identity
	Manager   *manager.Manager
	SP        *registry.ServiceProvider
	Sig       *sig.Service
	Contracts *state.Registry
	Settings  *state.Settings
	network   *comm.Network
}

func NewParty(t TB, n *comm.Network, name string, notary view.Identity) *Party {
	t.Helper()
	_, sk, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	id, signer := sig.NewSigner(sk)

	p := &Party{
		Name:      name,
		Identity:  id,
		SP:        registry.New(),
		Sig:       sig.NewService(),
		Contracts: state.NewRegistry(),
		Settings:  &state.Settings{Notary: notary, SessionTimeout: 2 * time.Second, NotaryTimeout: 2 * time.Second, NotaryRetries: 2, RetryDelay: 10 * time.Millisecond},
		network:   n,
	}
	require.NoError(t, p.Sig.RegisterSigner(id, signer))
	require.NoError(t, p.Contracts.Register(NoteContract, &Contract{}))
	require.NoError(t, p.SP.RegisterService(p.Sig))
	require.NoError(t, p.SP.RegisterService(p.Contracts))
	require.NoError(t, p.SP.RegisterService(p.Settings))

	p.Manager = manager.New(id, p.SP, p.Sig)
	p.Join()
	return p
}

// Join brings the party online
func (p *Party) Join() {
	p.Manager.Start(context.Background(), p.network.Join(p.Identity, p.Manager))
}

// Leave takes the party offline
func (p *Party) Leave() {
	p.network.Leave(p.Identity)
}

func (p *Party) Initiate(v view.View) (interface{}, error) {
	return p.Manager.InitiateView(v, context.Background())
}

// Sign signs tx with the party's identity
func (p *Party) Sign(t TB, tx *state.Transaction) {
	t.Helper()
	signer, err := p.Sig.GetSigner(p.Identity)
	require.NoError(t, err)
	require.NoError(t, tx.Sign(p.Identity, signer))
}
