/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package views

import (
	"github.com/hyperledger-labs/fsc-iou/iou/contract"
	"github.com/hyperledger-labs/fsc-iou/iou/states"
	"github.com/hyperledger-labs/fsc-iou/platform/common/services/logging"
	"github.com/hyperledger-labs/fsc-iou/platform/ledger/services/lock"
	"github.com/hyperledger-labs/fsc-iou/platform/ledger/services/state"
	"github.com/hyperledger-labs/fsc-iou/platform/ledger/services/vault"
	"github.com/hyperledger-labs/fsc-iou/platform/view/services/endpoint"
	"github.com/hyperledger-labs/fsc-iou/platform/view/view"
)

var logger = logging.MustGetLogger("iou.views")

// resolve returns the identity of the party named name
func resolve(context view.Context, name string) (view.Identity, error) {
	directory, err := endpoint.GetService(context)
	if err != nil {
		return nil, err
	}
	id, err := directory.Resolve(name)
	if err != nil {
		return nil, state.NewViolation(contract.IOU, "party named [%s] cannot be found", name)
	}
	return id, nil
}

// lockObligation serializes the attempts of this node on the obligation linearID
func lockObligation(context view.Context, linearID string) (func(), error) {
	m, err := lock.GetKeyedMutex(context)
	if err != nil {
		return nil, err
	}
	return m.Lock(context.Context(), linearID)
}

// current returns the current version of the obligation linearID from the local vault
func current(context view.Context, linearID string) (*state.StateAndRef, *states.IOU, error) {
	v, err := vault.GetVault(context)
	if err != nil {
		return nil, nil, err
	}
	ref, err := v.LookupCurrent(contract.IOU, linearID)
	if err != nil {
		return nil, nil, err
	}
	iou := &states.IOU{}
	if err := ref.State.Unmarshal(iou); err != nil {
		return nil, nil, err
	}
	return ref, iou, nil
}

// singleOutput returns the only obligation tx creates
func singleOutput(tx *state.Transaction) (*states.IOU, error) {
	outs := tx.OutputsOf(contract.IOU)
	if len(outs) != 1 {
		return nil, state.NewViolation(contract.IOU, "this must be an IOU transaction, expected one IOU output, got [%d]", len(outs))
	}
	iou := &states.IOU{}
	if err := outs[0].Unmarshal(iou); err != nil {
		return nil, err
	}
	return iou, nil
}

func expectCommand(tx *state.Transaction, kind string) error {
	if tx.Command.Contract != contract.IOU || tx.Command.Kind != kind {
		return state.NewViolation(contract.IOU, "invalid command, expected [%s.%s], was [%s.%s]", contract.IOU, kind, tx.Command.Contract, tx.Command.Kind)
	}
	return nil
}
