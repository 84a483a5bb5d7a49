/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package views

import (
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/hyperledger-labs/fsc-iou/iou/contract"
	"github.com/hyperledger-labs/fsc-iou/iou/states"
	"github.com/hyperledger-labs/fsc-iou/platform/ledger/services/flows"
	"github.com/hyperledger-labs/fsc-iou/platform/ledger/services/state"
	"github.com/hyperledger-labs/fsc-iou/platform/view/view"
)

// Issue contains the input to issue an IOU
type Issue struct {
	// Amount the borrower owes the lender
	Amount states.Amount
	// Lender is the name of the lender's node
	Lender string
}

// IssueIOUView is run by the borrower to record that it owes Amount to the lender
type IssueIOUView struct {
	Issue
}

func (i *IssueIOUView) Call(context view.Context) (interface{}, error) {
	lender, err := resolve(context, i.Lender)
	if err != nil {
		return nil, err
	}
	settings, err := state.GetSettings(context)
	if err != nil {
		return nil, err
	}
	borrower := context.Me()

	iou := states.NewIOU(i.Amount, lender, borrower)
	unlock, err := lockObligation(context, iou.LinearID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	tx := state.NewTransaction(settings.Notary)
	if err := tx.AddOutput(contract.IOU, iou); err != nil {
		return nil, err
	}
	tx.SetCommand(contract.IOU, contract.Issue, lender, borrower)

	committed, err := flows.Finalize(context, "iou.issue", tx)
	if err != nil {
		return nil, errors.WithMessagef(err, "failed issuing IOU of [%s] to [%s]", i.Amount, i.Lender)
	}
	logger.Infof("issued IOU [%s] of [%s] to [%s] in [%s]", iou.LinearID, i.Amount, i.Lender, committed.ID())
	return committed, nil
}

type IssueIOUViewFactory struct{}

func (c *IssueIOUViewFactory) NewView(in []byte) (view.View, error) {
	f := &IssueIOUView{}
	if err := json.Unmarshal(in, &f.Issue); err != nil {
		return nil, errors.Wrapf(err, "failed unmarshalling input")
	}
	return f, nil
}

// IssueIOUResponderView is run by the lender asked to sign a new IOU
type IssueIOUResponderView struct{}

func (i *IssueIOUResponderView) Call(context view.Context) (interface{}, error) {
	tx, err := state.ReceiveTransaction(context)
	if err != nil {
		return nil, err
	}
	return context.RunView(state.NewEndorseView(tx, func(context view.Context, tx *state.Transaction) error {
		if err := expectCommand(tx, contract.Issue); err != nil {
			return err
		}
		iou, err := singleOutput(tx)
		if err != nil {
			return err
		}
		if !context.IsMe(iou.Lender) {
			return state.NewViolation(contract.IOU, "not the lender of [%s]", iou.LinearID)
		}
		return nil
	}))
}
