/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package statetest

import (
	"github.com/hyperledger-labs/fsc-iou/platform/ledger/services/state"
	"github.com/hyperledger-labs/fsc-iou/platform/view/view"
)

const (
	NoteContract = "note"
	Issue        = "Issue"
	Move         = "Move"
)

// Note is a linear state owned by a single party
type Note struct {
	ID     string        `json:"id"`
	Owner  view.Identity `json:"owner"`
	Issuer view.Identity `json:"issuer"`
	Value  int64         `json:"value"`
}

func (n *Note) Participants() view.Identities {
	return view.Identities{n.Owner, n.Issuer}.Dedup()
}

func (n *Note) GetLinearID() string {
	return n.ID
}

// Contract accepts issues signed by the issuer and moves signed by the current owner that keep the value
type Contract struct{}

func (c *Contract) Verify(tx *state.Transaction) error {
	ins := tx.InputsOf(NoteContract)
	outs := tx.OutputsOf(NoteContract)
	switch tx.Command.Kind {
	case Issue:
		if len(ins) != 0 || len(outs) != 1 {
			return state.NewViolation(NoteContract, "issue must have no inputs and one output")
		}
		out := &Note{}
		if err := outs[0].Unmarshal(out); err != nil {
			return err
		}
		if out.Value <= 0 {
			return state.NewViolation(NoteContract, "value must be positive")
		}
		if !tx.Command.Signers.Contain(out.Issuer) {
			return state.NewViolation(NoteContract, "issuer must sign")
		}
	case Move:
		if len(ins) != 1 || len(outs) != 1 {
			return state.NewViolation(NoteContract, "move must have one input and one output")
		}
		in, out := &Note{}, &Note{}
		if err := ins[0].State.Unmarshal(in); err != nil {
			return err
		}
		if err := outs[0].Unmarshal(out); err != nil {
			return err
		}
		if in.Value != out.Value || in.ID != out.ID {
			return state.NewViolation(NoteContract, "move must keep the note")
		}
		if !tx.Command.Signers.Contain(in.Owner) || !tx.Command.Signers.Contain(out.Owner) {
			return state.NewViolation(NoteContract, "old and new owner must sign")
		}
	default:
		return state.NewViolation(NoteContract, "unknown command [%s]", tx.Command.Kind)
	}
	return nil
}

// NewIssue returns an issue transaction of a note of value from issuer to owner
func NewIssue(notary view.Identity, id string, issuer, owner view.Identity, value int64) *state.Transaction {
	tx := state.NewTransaction(notary)
	if err := tx.AddOutput(NoteContract, &Note{ID: id, Owner: owner, Issuer: issuer, Value: value}); err != nil {
		panic(err)
	}
	tx.SetCommand(NoteContract, Issue, issuer, owner)
	return tx
}

// NewMove returns a transaction moving the note in input to newOwner
func NewMove(notary view.Identity, input *state.StateAndRef, newOwner view.Identity) *state.Transaction {
	in := &Note{}
	if err := input.State.Unmarshal(in); err != nil {
		panic(err)
	}
	tx := state.NewTransaction(notary)
	tx.AddInput(input)
	out := *in
	out.Owner = newOwner
	if err := tx.AddOutput(NoteContract, &out); err != nil {
		panic(err)
	}
	tx.SetCommand(NoteContract, Move, in.Owner, newOwner)
	return tx
}
