/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package contract_test

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperledger-labs/fsc-iou/iou/contract"
	"github.com/hyperledger-labs/fsc-iou/iou/states"
	"github.com/hyperledger-labs/fsc-iou/platform/ledger/services/state"
	"github.com/hyperledger-labs/fsc-iou/platform/view/services/sig"
	"github.com/hyperledger-labs/fsc-iou/platform/view/view"
)

type fixture struct {
	notary, lender, borrower, newLender, bank view.Identity
	registry                                  *state.Registry
}

func newFixture(t *testing.T) *fixture {
	f := &fixture{
		notary:    newIdentity(t),
		lender:    newIdentity(t),
		borrower:  newIdentity(t),
		newLender: newIdentity(t),
		bank:      newIdentity(t),
		registry:  state.NewRegistry(),
	}
	require.NoError(t, contract.Register(f.registry))
	return f
}

func newIdentity(t *testing.T) view.Identity {
	_, sk, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	id, _ := sig.NewSigner(sk)
	return id
}

func eur(q int64) states.Amount {
	return states.MustAmount(q, "EUR")
}

func committed(tx *state.Transaction, i int) *state.StateAndRef {
	return &state.StateAndRef{Ref: tx.OutputRef(i), State: tx.Outputs[i]}
}

func (f *fixture) issue(t *testing.T, amount states.Amount) (*state.Transaction, *states.IOU) {
	iou := states.NewIOU(amount, f.lender, f.borrower)
	tx := state.NewTransaction(f.notary)
	require.NoError(t, tx.AddOutput(contract.IOU, iou))
	tx.SetCommand(contract.IOU, contract.Issue, f.lender, f.borrower)
	return tx, iou
}

func (f *fixture) cash(t *testing.T, owner view.Identity, amounts ...states.Amount) *state.Transaction {
	tx := state.NewTransaction(f.notary)
	for _, a := range amounts {
		require.NoError(t, tx.AddOutput(contract.Cash, &states.Cash{Amount: a, Owner: owner, Issuer: f.bank}))
	}
	tx.SetCommand(contract.Cash, contract.CashIssue, f.bank)
	return tx
}

// settle builds a settlement of iou paying amount from cash, the change going back to payer
func (f *fixture) settle(t *testing.T, input *state.StateAndRef, iou *states.IOU, cash *state.StateAndRef, payer view.Identity, amount states.Amount) *state.Transaction {
	c := &states.Cash{}
	require.NoError(t, cash.State.Unmarshal(c))
	tx := state.NewTransaction(f.notary)
	tx.AddInput(input)
	tx.AddInput(cash)
	paid, err := iou.Pay(amount)
	require.NoError(t, err)
	if !paid.IsFullyPaid() {
		require.NoError(t, tx.AddOutput(contract.IOU, paid))
	}
	require.NoError(t, tx.AddOutput(contract.Cash, &states.Cash{Amount: amount, Owner: iou.Lender, Issuer: c.Issuer}))
	change, err := c.Amount.Minus(amount)
	require.NoError(t, err)
	if change.IsPositive() {
		require.NoError(t, tx.AddOutput(contract.Cash, &states.Cash{Amount: change, Owner: payer, Issuer: c.Issuer}))
	}
	tx.SetCommand(contract.IOU, contract.Settle, iou.Lender, iou.Borrower, payer)
	return tx
}

func assertViolation(t *testing.T, err error, contains string) {
	t.Helper()
	require.Error(t, err)
	assert.ErrorIs(t, err, state.ErrValidation)
	assert.Contains(t, err.Error(), contains)
}

func TestIssue(t *testing.T) {
	f := newFixture(t)

	tx, _ := f.issue(t, eur(100000))
	assert.NoError(t, f.registry.Verify(tx))

	tx, _ = f.issue(t, eur(0))
	assertViolation(t, f.registry.Verify(tx), "must be positive")

	tx, _ = f.issue(t, eur(100))
	tx.SetCommand(contract.IOU, contract.Issue, f.lender)
	assertViolation(t, f.registry.Verify(tx), "both lender and borrower")

	tx, _ = f.issue(t, eur(100))
	tx.SetCommand(contract.IOU, contract.Issue, f.lender, f.borrower, f.bank)
	assertViolation(t, f.registry.Verify(tx), "both lender and borrower")

	iou := states.NewIOU(eur(100), f.lender, f.lender)
	tx = state.NewTransaction(f.notary)
	require.NoError(t, tx.AddOutput(contract.IOU, iou))
	tx.SetCommand(contract.IOU, contract.Issue, f.lender)
	assertViolation(t, f.registry.Verify(tx), "must differ")

	iou = states.NewIOU(eur(100), f.lender, f.borrower)
	iou.Paid = eur(10)
	tx = state.NewTransaction(f.notary)
	require.NoError(t, tx.AddOutput(contract.IOU, iou))
	tx.SetCommand(contract.IOU, contract.Issue, f.lender, f.borrower)
	assertViolation(t, f.registry.Verify(tx), "paid amount of zero")

	tx, iou = f.issue(t, eur(100))
	require.NoError(t, tx.AddOutput(contract.IOU, iou))
	assertViolation(t, f.registry.Verify(tx), "only one output")

	tx, _ = f.issue(t, eur(100))
	tx.SetCommand(contract.IOU, "Cancel", f.lender, f.borrower)
	assertViolation(t, f.registry.Verify(tx), "unknown command")
}

func TestTransfer(t *testing.T) {
	f := newFixture(t)
	issued, iou := f.issue(t, eur(100000))
	input := committed(issued, 0)

	transfer := func(out *states.IOU, signers ...view.Identity) *state.Transaction {
		tx := state.NewTransaction(f.notary)
		tx.AddInput(input)
		require.NoError(t, tx.AddOutput(contract.IOU, out))
		tx.SetCommand(contract.IOU, contract.Transfer, signers...)
		return tx
	}

	tx := transfer(iou.WithNewLender(f.newLender), f.borrower, f.lender, f.newLender)
	assert.NoError(t, f.registry.Verify(tx))

	tx = transfer(iou.WithNewLender(f.newLender), f.borrower, f.lender)
	assertViolation(t, f.registry.Verify(tx), "must sign")

	tx = transfer(iou.WithNewLender(f.lender), f.borrower, f.lender)
	assertViolation(t, f.registry.Verify(tx), "must change")

	changed := iou.WithNewLender(f.newLender)
	changed.Amount = eur(1)
	tx = transfer(changed, f.borrower, f.lender, f.newLender)
	assertViolation(t, f.registry.Verify(tx), "only the lender property may change")

	tx = transfer(iou.WithNewLender(f.newLender), f.borrower, f.lender, f.newLender)
	tx.AddInput(committed(issued, 0))
	assertViolation(t, f.registry.Verify(tx), "consumed twice")
}

func TestSettle(t *testing.T) {
	f := newFixture(t)
	issued, iou := f.issue(t, eur(100000))
	input := committed(issued, 0)
	funds := f.cash(t, f.borrower, eur(50000), eur(70000))
	require.NoError(t, f.registry.Verify(funds))

	t.Run("partial", func(t *testing.T) {
		tx := f.settle(t, input, iou, committed(funds, 0), f.borrower, eur(40000))
		assert.Len(t, tx.OutputsOf(contract.IOU), 1)
		assert.NoError(t, f.registry.Verify(tx))
	})

	t.Run("full", func(t *testing.T) {
		half, err := iou.Pay(eur(30000))
		require.NoError(t, err)
		prev := state.NewTransaction(f.notary)
		require.NoError(t, prev.AddOutput(contract.IOU, half))
		tx := f.settle(t, committed(prev, 0), half, committed(funds, 1), f.borrower, eur(70000))
		assert.Len(t, tx.OutputsOf(contract.IOU), 0)
		assert.NoError(t, f.registry.Verify(tx))
	})

	t.Run("fully paid output", func(t *testing.T) {
		tx := f.settle(t, input, iou, committed(funds, 0), f.borrower, eur(40000))
		paid, err := iou.Pay(iou.Amount)
		require.NoError(t, err)
		tx.Outputs = tx.Outputs[1:]
		require.NoError(t, tx.AddOutput(contract.IOU, paid))
		assertViolation(t, f.registry.Verify(tx), "fully settled")
	})

	t.Run("lender paid less", func(t *testing.T) {
		tx := f.settle(t, input, iou, committed(funds, 0), f.borrower, eur(40000))
		out := &states.IOU{}
		require.NoError(t, tx.Outputs[0].Unmarshal(out))
		out.Paid = eur(45000)
		tx.Outputs = tx.Outputs[1:]
		require.NoError(t, tx.AddOutput(contract.IOU, out))
		assertViolation(t, f.registry.Verify(tx), "must receive exactly")
	})

	t.Run("cash not conserved", func(t *testing.T) {
		tx := f.settle(t, input, iou, committed(funds, 0), f.borrower, eur(40000))
		// drop the change
		tx.Outputs = tx.Outputs[:len(tx.Outputs)-1]
		assertViolation(t, f.registry.Verify(tx), "conserved")
	})

	t.Run("payer must sign", func(t *testing.T) {
		thirdParty := f.cash(t, f.newLender, eur(50000))
		tx := f.settle(t, input, iou, committed(thirdParty, 0), f.newLender, eur(40000))
		assert.NoError(t, f.registry.Verify(tx))
		tx.SetCommand(contract.IOU, contract.Settle, f.lender, f.borrower)
		assertViolation(t, f.registry.Verify(tx), "owner of consumed cash must sign")
	})

	t.Run("no payment", func(t *testing.T) {
		tx := state.NewTransaction(f.notary)
		tx.AddInput(input)
		require.NoError(t, tx.AddOutput(contract.IOU, iou))
		tx.SetCommand(contract.IOU, contract.Settle, f.lender, f.borrower)
		assertViolation(t, f.registry.Verify(tx), "strictly increase")
	})

	t.Run("wrong currency", func(t *testing.T) {
		usd := f.cash(t, f.borrower, states.MustAmount(50000, "USD"))
		c := committed(usd, 0)
		tx := state.NewTransaction(f.notary)
		tx.AddInput(input)
		tx.AddInput(c)
		paid, err := iou.Pay(eur(40000))
		require.NoError(t, err)
		require.NoError(t, tx.AddOutput(contract.IOU, paid))
		require.NoError(t, tx.AddOutput(contract.Cash, &states.Cash{Amount: states.MustAmount(50000, "USD"), Owner: f.lender, Issuer: f.bank}))
		tx.SetCommand(contract.IOU, contract.Settle, f.lender, f.borrower)
		assertViolation(t, f.registry.Verify(tx), "must receive exactly")
	})
}

func TestCash(t *testing.T) {
	f := newFixture(t)

	funds := f.cash(t, f.borrower, eur(100))
	assert.NoError(t, f.registry.Verify(funds))

	bad := f.cash(t, f.borrower, eur(100))
	bad.SetCommand(contract.Cash, contract.CashIssue, f.borrower)
	assertViolation(t, f.registry.Verify(bad), "issuers only")

	bad = f.cash(t, f.borrower, eur(0))
	assertViolation(t, f.registry.Verify(bad), "must be positive")

	move := state.NewTransaction(f.notary)
	move.AddInput(committed(funds, 0))
	require.NoError(t, move.AddOutput(contract.Cash, &states.Cash{Amount: eur(60), Owner: f.lender, Issuer: f.bank}))
	require.NoError(t, move.AddOutput(contract.Cash, &states.Cash{Amount: eur(40), Owner: f.borrower, Issuer: f.bank}))
	move.SetCommand(contract.Cash, contract.CashMove, f.borrower)
	assert.NoError(t, f.registry.Verify(move))

	move.SetCommand(contract.Cash, contract.CashMove, f.lender)
	assertViolation(t, f.registry.Verify(move), "must sign")

	// obligations cannot ride along a cash command
	issued, _ := f.issue(t, eur(100))
	move.Outputs = append(move.Outputs, issued.Outputs[0])
	move.SetCommand(contract.Cash, contract.CashMove, f.borrower)
	assertViolation(t, f.registry.Verify(move), "cannot be touched")
}

func TestOutputParticipants(t *testing.T) {
	f := newFixture(t)

	// an obligation hidden from its borrower
	tx, _ := f.issue(t, eur(100))
	tx.Outputs[0].Participants = view.Identities{f.lender}
	assertViolation(t, f.registry.Verify(tx), "lender and borrower")

	tx, _ = f.issue(t, eur(100))
	tx.Outputs[0].Participants = view.Identities{f.lender, f.borrower, f.bank}
	assertViolation(t, f.registry.Verify(tx), "lender and borrower")

	tx, _ = f.issue(t, eur(100))
	tx.Outputs[0].Participants = view.Identities{f.borrower, f.lender}
	assert.NoError(t, f.registry.Verify(tx), "order does not matter")

	// cash reported to someone else than its owner
	funds := f.cash(t, f.borrower, eur(100))
	funds.Outputs[0].Participants = view.Identities{f.bank}
	assertViolation(t, f.registry.Verify(funds), "must be its owner")

	funds = f.cash(t, f.borrower, eur(100))
	funds.Outputs[0].Participants = view.Identities{f.borrower, f.lender}
	assertViolation(t, f.registry.Verify(funds), "must be its owner")

	// the payment of a settlement hidden from the lender
	issued, iou := f.issue(t, eur(100))
	funds = f.cash(t, f.borrower, eur(100))
	settle := f.settle(t, committed(issued, 0), iou, committed(funds, 0), f.borrower, eur(40))
	for i := range settle.Outputs {
		if settle.Outputs[i].Contract == contract.Cash {
			settle.Outputs[i].Participants = view.Identities{f.borrower}
		}
	}
	assertViolation(t, f.registry.Verify(settle), "must be its owner")
}
