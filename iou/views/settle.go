/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package views

import (
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/hyperledger-labs/fsc-iou/iou/cash"
	"github.com/hyperledger-labs/fsc-iou/iou/contract"
	"github.com/hyperledger-labs/fsc-iou/iou/states"
	"github.com/hyperledger-labs/fsc-iou/platform/ledger/services/flows"
	"github.com/hyperledger-labs/fsc-iou/platform/ledger/services/state"
	"github.com/hyperledger-labs/fsc-iou/platform/view/view"
)

// Settle contains the input to pay back part of an IOU
type Settle struct {
	// LinearID identifies the IOU
	LinearID string
	// Amount is the payment, in the currency of the IOU
	Amount states.Amount
}

// SettleIOUView is run by the borrower to pay Amount of the IOU to its lender in cash
type SettleIOUView struct {
	Settle
}

func (s *SettleIOUView) Call(context view.Context) (interface{}, error) {
	settings, err := state.GetSettings(context)
	if err != nil {
		return nil, err
	}
	wallet, err := cash.GetWallet(context)
	if err != nil {
		return nil, err
	}
	unlock, err := lockObligation(context, s.LinearID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	input, iou, err := current(context, s.LinearID)
	if err != nil {
		return nil, err
	}
	if !context.IsMe(iou.Borrower) {
		return nil, state.NewViolation(contract.IOU, "IOU settlement flow must be initiated by the borrower")
	}
	paid, err := iou.Pay(s.Amount)
	if err != nil {
		return nil, state.NewViolation(contract.IOU, "cannot settle [%s] of [%s]: %s", s.Amount, s.LinearID, err)
	}

	tx := state.NewTransaction(settings.Notary)
	tx.AddInput(input)
	payers, err := wallet.GenerateSpend(tx, iou.Borrower, iou.Lender, s.Amount)
	if err != nil {
		return nil, err
	}
	if !paid.IsFullyPaid() {
		if err := tx.AddOutput(contract.IOU, paid); err != nil {
			return nil, err
		}
	}
	tx.SetCommand(contract.IOU, contract.Settle, append(view.Identities{iou.Lender, iou.Borrower}, payers...)...)

	committed, err := flows.Finalize(context, "iou.settle", tx)
	if err != nil {
		return nil, errors.WithMessagef(err, "failed settling [%s] of IOU [%s]", s.Amount, s.LinearID)
	}
	logger.Infof("settled [%s] of IOU [%s], remaining [%s], in [%s]", s.Amount, s.LinearID, paid.Remaining(), committed.ID())
	return committed, nil
}

type SettleIOUViewFactory struct{}

func (c *SettleIOUViewFactory) NewView(in []byte) (view.View, error) {
	f := &SettleIOUView{}
	if err := json.Unmarshal(in, &f.Settle); err != nil {
		return nil, errors.Wrapf(err, "failed unmarshalling input")
	}
	return f, nil
}

// SettleIOUResponderView is run by the lender receiving a payment.
// The payment itself is checked by the contracts; the lender only checks it is the one being paid.
type SettleIOUResponderView struct{}

func (s *SettleIOUResponderView) Call(context view.Context) (interface{}, error) {
	tx, err := state.ReceiveTransaction(context)
	if err != nil {
		return nil, err
	}
	return context.RunView(state.NewEndorseView(tx, func(context view.Context, tx *state.Transaction) error {
		if err := expectCommand(tx, contract.Settle); err != nil {
			return err
		}
		ins := tx.InputsOf(contract.IOU)
		if len(ins) != 1 {
			return state.NewViolation(contract.IOU, "expected one IOU input, got [%d]", len(ins))
		}
		iou := &states.IOU{}
		if err := ins[0].State.Unmarshal(iou); err != nil {
			return err
		}
		if !context.IsMe(iou.Lender) {
			return state.NewViolation(contract.IOU, "not the lender of [%s]", iou.LinearID)
		}
		return nil
	}))
}
