/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package ledgertest wires parties with a vault, an outbox and a notary on an in-process network
package ledgertest

import (
	"github.com/stretchr/testify/require"

	"github.com/hyperledger-labs/fsc-iou/platform/ledger/services/finality"
	"github.com/hyperledger-labs/fsc-iou/platform/ledger/services/notary"
	"github.com/hyperledger-labs/fsc-iou/platform/ledger/services/state"
	"github.com/hyperledger-labs/fsc-iou/platform/ledger/services/state/statetest"
	"github.com/hyperledger-labs/fsc-iou/platform/ledger/services/vault"
	"github.com/hyperledger-labs/fsc-iou/platform/view/services/comm"
	"github.com/hyperledger-labs/fsc-iou/platform/view/services/db/driver"
	"github.com/hyperledger-labs/fsc-iou/platform/view/services/db/driver/memory"
	"github.com/hyperledger-labs/fsc-iou/platform/view/services/events"
	"github.com/hyperledger-labs/fsc-iou/platform/view/services/events/simple"
	"github.com/hyperledger-labs/fsc-iou/platform/view/services/kvs"
	"github.com/hyperledger-labs/fsc-iou/platform/view/view"
)

type Node struct {
	*statetest.Party
	KVS         *kvs.KVS
	Vault       *vault.Vault
	Distributor *finality.Distributor
	Events      events.EventSystem
}

type Network struct {
	Comm   *comm.Network
	Notary *Node
	// NotaryService is the uniqueness authority run by Notary
	NotaryService *notary.Service
}

// NewNetwork returns a network with a notary, validating or not
func NewNetwork(t statetest.TB, validating bool) *Network {
	n := &Network{Comm: comm.NewNetwork()}
	n.Notary = n.newNode(t, "notary", memory.New(), nil)

	signer, err := n.Notary.Sig.GetSigner(n.Notary.Identity)
	require.NoError(t, err)
	var contracts *state.Registry
	if validating {
		contracts = n.Notary.Contracts
	}
	n.NotaryService = notary.NewService(n.Notary.Identity, signer, n.Notary.KVS, n.Notary.Sig, contracts)
	require.NoError(t, n.Notary.SP.RegisterService(n.NotaryService))
	require.NoError(t, n.Notary.Manager.RegisterResponder(&notary.NotarizeResponderView{}, notary.NewNotarizeView(nil)))
	return n
}

// NewNode returns a party using the network notary, its storage kept in memory
func (n *Network) NewNode(t statetest.TB, name string) *Node {
	return n.newNode(t, name, memory.New(), n.Notary.Identity)
}

// NewNodeWithPersistence returns a party storing its state in persistence
func (n *Network) NewNodeWithPersistence(t statetest.TB, name string, persistence driver.Persistence) *Node {
	return n.newNode(t, name, persistence, n.Notary.Identity)
}

func (n *Network) newNode(t statetest.TB, name string, persistence driver.Persistence, notaryID view.Identity) *Node {
	p := statetest.NewParty(t, n.Comm, name, notaryID)
	store, err := kvs.New(persistence, kvs.DefaultNamespace, 100)
	require.NoError(t, err)

	node := &Node{
		Party:  p,
		KVS:    store,
		Vault:  vault.New(store, p.Sig),
		Events: simple.NewEventBus(),
	}
	node.Distributor = finality.NewDistributor(store, p.Manager, p.Sig)
	require.NoError(t, p.SP.RegisterService(node.Vault))
	require.NoError(t, p.SP.RegisterService(node.Distributor))
	require.NoError(t, p.SP.RegisterService(events.NewService(node.Events)))
	require.NoError(t, p.Manager.RegisterResponder(&finality.AcceptCommittedView{}, finality.NewDeliverView(nil, nil)))
	return node
}
