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
	Cash = "cash"

	CashIssue = "Issue"
	CashMove  = "Move"
)

// CashContract governs the payment asset. Cash is created by its issuer and, once issued,
// only moves between owners: the cash of every issuer and currency is conserved
// and every owner of consumed cash signs.
type CashContract struct{}

func (c *CashContract) Verify(tx *state.Transaction) error {
	ins, err := cashInputs(tx)
	if err != nil {
		return err
	}
	outs, err := cashOutputs(tx)
	if err != nil {
		return err
	}

	if tx.Command.Contract == Cash {
		switch tx.Command.Kind {
		case CashIssue:
			return verifyCashIssue(tx, ins, outs)
		case CashMove:
			if len(ins) == 0 {
				return state.NewViolation(Cash, "a move must consume cash")
			}
			return verifyCashMove(tx, ins, outs)
		default:
			return state.NewViolation(Cash, "unknown command [%s]", tx.Command.Kind)
		}
	}
	// cash moved as the payment leg of another contract's command
	return verifyCashMove(tx, ins, outs)
}

func verifyCashIssue(tx *state.Transaction, ins, outs []*states.Cash) error {
	if len(ins) != 0 {
		return state.NewViolation(Cash, "no inputs should be consumed when issuing cash")
	}
	if len(outs) == 0 {
		return state.NewViolation(Cash, "issuing cash must create at least one output")
	}
	if len(tx.Inputs) != 0 || len(tx.Outputs) != len(outs) {
		return state.NewViolation(Cash, "a cash issue transaction can only create cash")
	}
	var issuers view.Identities
	for _, out := range outs {
		issuers = append(issuers, out.Issuer)
	}
	if !tx.Command.Signers.Match(issuers.Dedup()) {
		return state.NewViolation(Cash, "the issuers only must sign a cash issue transaction")
	}
	return nil
}

func verifyCashMove(tx *state.Transaction, ins, outs []*states.Cash) error {
	in, err := sumByIssuer(ins)
	if err != nil {
		return err
	}
	out, err := sumByIssuer(outs)
	if err != nil {
		return err
	}
	if len(in) != len(out) {
		return state.NewViolation(Cash, "cash must be conserved per issuer, inputs [%v] outputs [%v]", in, out)
	}
	for k, a := range in {
		if out[k] != a {
			return state.NewViolation(Cash, "cash must be conserved for [%s] of issuer [%s], inputs [%s] outputs [%s]", k.currency, k.issuer, a, out[k])
		}
	}
	for _, c := range ins {
		if !tx.Command.Signers.Contain(c.Owner) {
			return state.NewViolation(Cash, "the owner of consumed cash must sign")
		}
	}
	return nil
}

// backing identifies cash that is interchangeable: same currency, same issuer
type backing struct {
	currency string
	issuer   string
}

func sumByIssuer(cash []*states.Cash) (map[backing]states.Amount, error) {
	sums := map[backing]states.Amount{}
	for _, c := range cash {
		k := backing{currency: c.Amount.Currency, issuer: c.Issuer.UniqueID()}
		s, ok := sums[k]
		if !ok {
			s = c.Amount.Zero()
		}
		s, err := s.Plus(c.Amount)
		if err != nil {
			return nil, state.NewViolation(Cash, "invalid amount: %s", err)
		}
		sums[k] = s
	}
	return sums, nil
}

func cashInputs(tx *state.Transaction) ([]*states.Cash, error) {
	var res []*states.Cash
	for _, in := range tx.InputsOf(Cash) {
		c := &states.Cash{}
		if err := in.State.Unmarshal(c); err != nil {
			return nil, state.NewViolation(Cash, "malformed input [%s]: %s", in.Ref, err)
		}
		if err := c.Validate(); err != nil {
			return nil, state.NewViolation(Cash, "invalid input [%s]: %s", in.Ref, err)
		}
		res = append(res, c)
	}
	return res, nil
}

func cashOutputs(tx *state.Transaction) ([]*states.Cash, error) {
	var res []*states.Cash
	for _, out := range tx.OutputsOf(Cash) {
		c := &states.Cash{}
		if err := out.Unmarshal(c); err != nil {
			return nil, state.NewViolation(Cash, "malformed output: %s", err)
		}
		if err := c.Validate(); err != nil {
			return nil, state.NewViolation(Cash, "invalid output: %s", err)
		}
		if !out.Participants.Match(c.Participants()) {
			return nil, state.NewViolation(Cash, "the only participant of an output must be its owner")
		}
		res = append(res, c)
	}
	return res, nil
}
