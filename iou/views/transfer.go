/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package views

import (
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/hyperledger-labs/fsc-iou/iou/contract"
	"github.com/hyperledger-labs/fsc-iou/platform/ledger/services/flows"
	"github.com/hyperledger-labs/fsc-iou/platform/ledger/services/state"
	"github.com/hyperledger-labs/fsc-iou/platform/view/view"
)

// Transfer contains the input to move an IOU to a new lender
type Transfer struct {
	// LinearID identifies the IOU
	LinearID string
	// NewLender is the name of the new lender's node
	NewLender string
}

// TransferIOUView is run by the current lender to transfer the IOU to a new lender
type TransferIOUView struct {
	Transfer
}

func (t *TransferIOUView) Call(context view.Context) (interface{}, error) {
	newLender, err := resolve(context, t.NewLender)
	if err != nil {
		return nil, err
	}
	settings, err := state.GetSettings(context)
	if err != nil {
		return nil, err
	}
	unlock, err := lockObligation(context, t.LinearID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	input, iou, err := current(context, t.LinearID)
	if err != nil {
		return nil, err
	}
	if !context.IsMe(iou.Lender) {
		return nil, state.NewViolation(contract.IOU, "IOU transfer can only be initiated by the IOU lender")
	}

	tx := state.NewTransaction(settings.Notary)
	tx.AddInput(input)
	if err := tx.AddOutput(contract.IOU, iou.WithNewLender(newLender)); err != nil {
		return nil, err
	}
	tx.SetCommand(contract.IOU, contract.Transfer, iou.Borrower, iou.Lender, newLender)

	committed, err := flows.Finalize(context, "iou.transfer", tx)
	if err != nil {
		return nil, errors.WithMessagef(err, "failed transferring IOU [%s] to [%s]", t.LinearID, t.NewLender)
	}
	logger.Infof("transferred IOU [%s] to [%s] in [%s]", t.LinearID, t.NewLender, committed.ID())
	return committed, nil
}

type TransferIOUViewFactory struct{}

func (c *TransferIOUViewFactory) NewView(in []byte) (view.View, error) {
	f := &TransferIOUView{}
	if err := json.Unmarshal(in, &f.Transfer); err != nil {
		return nil, errors.Wrapf(err, "failed unmarshalling input")
	}
	return f, nil
}

// TransferIOUResponderView is run by the borrower and the new lender asked to sign a transfer
type TransferIOUResponderView struct{}

func (t *TransferIOUResponderView) Call(context view.Context) (interface{}, error) {
	tx, err := state.ReceiveTransaction(context)
	if err != nil {
		return nil, err
	}
	return context.RunView(state.NewEndorseView(tx, func(context view.Context, tx *state.Transaction) error {
		if err := expectCommand(tx, contract.Transfer); err != nil {
			return err
		}
		_, err := singleOutput(tx)
		return err
	}))
}
