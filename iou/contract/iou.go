/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package contract

import (
	"github.com/hyperledger-labs/fsc-iou/iou/states"
	"github.com/hyperledger-labs/fsc-iou/platform/ledger/services/state"
	"github.com/hyperledger-labs/fsc-iou/platform/view/view"
)

const (
	IOU = "iou"

	Issue    = "Issue"
	Transfer = "Transfer"
	Settle   = "Settle"
)

// IOUContract governs the life of obligations: issue, transfer to a new lender, settlement in cash
type IOUContract struct{}

func (c *IOUContract) Verify(tx *state.Transaction) error {
	if tx.Command.Contract != IOU {
		return state.NewViolation(IOU, "obligations cannot be touched by a [%s] command", tx.Command.Contract)
	}
	ins, err := iouInputs(tx)
	if err != nil {
		return err
	}
	outs, err := iouOutputs(tx)
	if err != nil {
		return err
	}

	switch tx.Command.Kind {
	case Issue:
		return verifyIssue(tx, ins, outs)
	case Transfer:
		return verifyTransfer(tx, ins, outs)
	case Settle:
		return verifySettle(tx, ins, outs)
	default:
		return state.NewViolation(IOU, "unknown command [%s]", tx.Command.Kind)
	}
}

func verifyIssue(tx *state.Transaction, ins, outs []*states.IOU) error {
	if len(ins) != 0 {
		return state.NewViolation(IOU, "no inputs should be consumed when issuing an IOU")
	}
	if len(outs) != 1 {
		return state.NewViolation(IOU, "only one output state should be created when issuing an IOU")
	}
	out := outs[0]
	if !out.Paid.IsZero() {
		return state.NewViolation(IOU, "a newly issued IOU must have a paid amount of zero")
	}
	if len(tx.InputsOf(Cash)) != 0 || len(tx.OutputsOf(Cash)) != 0 {
		return state.NewViolation(IOU, "no cash should move when issuing an IOU")
	}
	if !tx.Command.Signers.Match(view.Identities{out.Lender, out.Borrower}) {
		return state.NewViolation(IOU, "both lender and borrower together only may sign IOU issue transaction")
	}
	return nil
}

func verifyTransfer(tx *state.Transaction, ins, outs []*states.IOU) error {
	if len(ins) != 1 {
		return state.NewViolation(IOU, "an IOU transfer transaction should only consume one input state")
	}
	if len(outs) != 1 {
		return state.NewViolation(IOU, "an IOU transfer transaction should only create one output state")
	}
	in, out := ins[0], outs[0]
	if in.LinearID != out.LinearID || !in.Borrower.Equal(out.Borrower) || in.Amount != out.Amount || in.Paid != out.Paid {
		return state.NewViolation(IOU, "only the lender property may change")
	}
	if in.Lender.Equal(out.Lender) {
		return state.NewViolation(IOU, "the lender property must change in a transfer")
	}
	if len(tx.InputsOf(Cash)) != 0 || len(tx.OutputsOf(Cash)) != 0 {
		return state.NewViolation(IOU, "no cash should move when transferring an IOU")
	}
	if !tx.Command.Signers.Match(view.Identities{in.Borrower, in.Lender, out.Lender}) {
		return state.NewViolation(IOU, "the borrower, old lender and new lender only must sign an IOU transfer transaction")
	}
	return nil
}

func verifySettle(tx *state.Transaction, ins, outs []*states.IOU) error {
	if len(ins) != 1 {
		return state.NewViolation(IOU, "there must be one input IOU")
	}
	in := ins[0]

	var paid states.Amount
	switch len(outs) {
	case 0:
		paid = in.Amount
	case 1:
		out := outs[0]
		if out.LinearID != in.LinearID || !out.Lender.Equal(in.Lender) || !out.Borrower.Equal(in.Borrower) || out.Amount != in.Amount {
			return state.NewViolation(IOU, "the borrower may only change the paid property when settling")
		}
		if out.IsFullyPaid() {
			return state.NewViolation(IOU, "there must be no output IOU as it has been fully settled")
		}
		paid = out.Paid
	default:
		return state.NewViolation(IOU, "there must be at most one output IOU")
	}

	delta, err := paid.Minus(in.Paid)
	if err != nil {
		return state.NewViolation(IOU, "invalid payment: %s", err)
	}
	if !delta.IsPositive() {
		return state.NewViolation(IOU, "the paid amount must strictly increase")
	}

	received, err := cashTo(tx, in.Lender, in.Amount.Currency)
	if err != nil {
		return err
	}
	if received != delta {
		return state.NewViolation(IOU, "the lender must receive exactly [%s], got [%s]", delta, received)
	}

	signers := view.Identities{in.Lender, in.Borrower}
	cashIns, err := cashInputs(tx)
	if err != nil {
		return err
	}
	for _, c := range cashIns {
		signers = append(signers, c.Owner)
	}
	if !tx.Command.Signers.Match(signers.Dedup()) {
		return state.NewViolation(IOU, "both lender and borrower together with the payers only must sign IOU settle transaction")
	}
	return nil
}

func iouInputs(tx *state.Transaction) ([]*states.IOU, error) {
	var res []*states.IOU
	for _, in := range tx.InputsOf(IOU) {
		i := &states.IOU{}
		if err := in.State.Unmarshal(i); err != nil {
			return nil, state.NewViolation(IOU, "malformed input [%s]: %s", in.Ref, err)
		}
		if err := i.Validate(); err != nil {
			return nil, state.NewViolation(IOU, "invalid input [%s]: %s", in.Ref, err)
		}
		res = append(res, i)
	}
	return res, nil
}

func iouOutputs(tx *state.Transaction) ([]*states.IOU, error) {
	var res []*states.IOU
	for _, out := range tx.OutputsOf(IOU) {
		i := &states.IOU{}
		if err := out.Unmarshal(i); err != nil {
			return nil, state.NewViolation(IOU, "malformed output: %s", err)
		}
		if err := i.Validate(); err != nil {
			return nil, state.NewViolation(IOU, "invalid output: %s", err)
		}
		if out.LinearID != i.LinearID {
			return nil, state.NewViolation(IOU, "output linear id [%s] does not match the state [%s]", out.LinearID, i.LinearID)
		}
		if !out.Participants.Match(i.Participants()) {
			return nil, state.NewViolation(IOU, "the participants of an output must be its lender and borrower")
		}
		res = append(res, i)
	}
	return res, nil
}

// cashTo sums the cash outputs of currency owned by owner
func cashTo(tx *state.Transaction, owner view.Identity, currency string) (states.Amount, error) {
	outs, err := cashOutputs(tx)
	if err != nil {
		return states.Amount{}, err
	}
	sum := states.Amount{Currency: currency}
	for _, c := range outs {
		if !c.Owner.Equal(owner) || c.Amount.Currency != currency {
			continue
		}
		if sum, err = sum.Plus(c.Amount); err != nil {
			return states.Amount{}, state.NewViolation(IOU, "invalid payment: %s", err)
		}
	}
	return sum, nil
}
