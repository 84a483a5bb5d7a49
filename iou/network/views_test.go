/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package network_test

import (
	"github.com/pkg/errors"

	"github.com/hyperledger-labs/fsc-iou/iou/contract"
	"github.com/hyperledger-labs/fsc-iou/iou/states"
	"github.com/hyperledger-labs/fsc-iou/platform/ledger/services/flows"
	"github.com/hyperledger-labs/fsc-iou/platform/ledger/services/state"
	"github.com/hyperledger-labs/fsc-iou/platform/view/view"
)

// unwelcomeIssueView issues an IOU to a lender answering with rejectingResponder
type unwelcomeIssueView struct {
	lender view.Identity
	amount states.Amount
}

func (p *unwelcomeIssueView) Call(context view.Context) (interface{}, error) {
	settings, err := state.GetSettings(context)
	if err != nil {
		return nil, err
	}
	iou := states.NewIOU(p.amount, p.lender, context.Me())
	tx := state.NewTransaction(settings.Notary)
	if err := tx.AddOutput(contract.IOU, iou); err != nil {
		return nil, err
	}
	tx.SetCommand(contract.IOU, contract.Issue, p.lender, context.Me())
	return flows.Finalize(context, "iou.issue", tx)
}

type rejectingResponder struct{}

func (r *rejectingResponder) Call(context view.Context) (interface{}, error) {
	tx, err := state.ReceiveTransaction(context)
	if err != nil {
		return nil, err
	}
	return context.RunView(state.NewEndorseView(tx, func(view.Context, *state.Transaction) error {
		return errors.New("not today")
	}))
}

// replayTransferView transfers a version of an IOU that may have been consumed already
type replayTransferView struct {
	input     *state.StateAndRef
	newLender view.Identity
}

func (r *replayTransferView) Call(context view.Context) (interface{}, error) {
	settings, err := state.GetSettings(context)
	if err != nil {
		return nil, err
	}
	iou := &states.IOU{}
	if err := r.input.State.Unmarshal(iou); err != nil {
		return nil, err
	}
	tx := state.NewTransaction(settings.Notary)
	tx.AddInput(r.input)
	if err := tx.AddOutput(contract.IOU, iou.WithNewLender(r.newLender)); err != nil {
		return nil, err
	}
	tx.SetCommand(contract.IOU, contract.Transfer, iou.Borrower, iou.Lender, r.newLender)
	return flows.Finalize(context, "iou.transfer", tx)
}
