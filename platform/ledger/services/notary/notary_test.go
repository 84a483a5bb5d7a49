/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package notary_test

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/hyperledger-labs/fsc-iou/platform/ledger/services/notary"
	"github.com/hyperledger-labs/fsc-iou/platform/ledger/services/state"
	"github.com/hyperledger-labs/fsc-iou/platform/ledger/services/state/statetest"
	"github.com/hyperledger-labs/fsc-iou/platform/view/services/comm"
	"github.com/hyperledger-labs/fsc-iou/platform/view/services/db/driver/memory"
	"github.com/hyperledger-labs/fsc-iou/platform/view/services/kvs"
)

type fixture struct {
	network                     *comm.Network
	notary, alice, bob, charlie *statetest.Party
	service                     *notary.Service
}

func newFixture(t *testing.T, validating bool) *fixture {
	n := comm.NewNetwork()
	f := &fixture{network: n}
	f.notary = statetest.NewParty(t, n, "notary", nil)
	f.alice = statetest.NewParty(t, n, "alice", f.notary.Identity)
	f.bob = statetest.NewParty(t, n, "bob", f.notary.Identity)
	f.charlie = statetest.NewParty(t, n, "charlie", f.notary.Identity)

	store, err := kvs.New(memory.New(), kvs.DefaultNamespace, 100)
	require.NoError(t, err)
	signer, err := f.notary.Sig.GetSigner(f.notary.Identity)
	require.NoError(t, err)
	var contracts *state.Registry
	if validating {
		contracts = f.notary.Contracts
	}
	f.service = notary.NewService(f.notary.Identity, signer, store, f.notary.Sig, contracts)
	require.NoError(t, f.notary.SP.RegisterService(f.service))
	require.NoError(t, f.notary.Manager.RegisterResponder(&notary.NotarizeResponderView{}, notary.NewNotarizeView(nil)))
	return f
}

// issue returns a notarized issue of a note owned by alice
func (f *fixture) issue(t *testing.T) *state.Transaction {
	tx := statetest.NewIssue(f.notary.Identity, "n1", f.alice.Identity, f.alice.Identity, 10)
	f.alice.Sign(t, tx)
	_, err := f.service.Notarize(tx)
	require.NoError(t, err)
	return tx
}

func (f *fixture) move(t *testing.T, issue *state.Transaction, to *statetest.Party) *state.Transaction {
	tx := statetest.NewMove(f.notary.Identity, &state.StateAndRef{Ref: issue.OutputRef(0), State: issue.Outputs[0]}, to.Identity)
	f.alice.Sign(t, tx)
	to.Sign(t, tx)
	return tx
}

func TestNotarize(t *testing.T) {
	f := newFixture(t, false)
	issue := f.issue(t)
	move := f.move(t, issue, f.bob)

	sigma, err := f.service.Notarize(move)
	require.NoError(t, err)
	require.NoError(t, move.VerifyNotarySignature(sigma))
	assert.True(t, f.service.IsCommitted(move.ID()))

	// retry after a lost answer
	again, err := f.service.Notarize(move)
	require.NoError(t, err)
	assert.Equal(t, sigma, again)

	// double spend
	doubleSpend := f.move(t, issue, f.charlie)
	_, err = f.service.Notarize(doubleSpend)
	require.Error(t, err)
	assert.True(t, errors.Is(err, state.ErrConflict))
	var conflict *state.ConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, issue.OutputRef(0), conflict.Ref)
	assert.Equal(t, move.ID(), conflict.ConsumingTx)
	assert.False(t, f.service.IsCommitted(doubleSpend.ID()))
}

func TestNotarizeRejectsMalformedTransactions(t *testing.T) {
	f := newFixture(t, false)
	issue := f.issue(t)

	unsigned := statetest.NewMove(f.notary.Identity, &state.StateAndRef{Ref: issue.OutputRef(0), State: issue.Outputs[0]}, f.bob.Identity)
	f.alice.Sign(t, unsigned)
	_, err := f.service.Notarize(unsigned)
	assert.True(t, errors.Is(err, state.ErrMalformedSignatureSet))

	// a rejected transaction does not consume its inputs
	move := f.move(t, issue, f.bob)
	_, err = f.service.Notarize(move)
	require.NoError(t, err)

	elsewhere := statetest.NewIssue(f.alice.Identity, "n2", f.alice.Identity, f.alice.Identity, 10)
	f.alice.Sign(t, elsewhere)
	_, err = f.service.Notarize(elsewhere)
	assert.True(t, errors.Is(err, state.ErrValidation))
}

func TestValidatingNotary(t *testing.T) {
	invalid := func(f *fixture) *state.Transaction {
		tx := statetest.NewIssue(f.notary.Identity, "n1", f.alice.Identity, f.alice.Identity, -5)
		f.alice.Sign(t, tx)
		return tx
	}

	f := newFixture(t, true)
	_, err := f.service.Notarize(invalid(f))
	assert.True(t, errors.Is(err, state.ErrValidation))

	f = newFixture(t, false)
	_, err = f.service.Notarize(invalid(f))
	assert.NoError(t, err)
}

func TestConcurrentDoubleSpend(t *testing.T) {
	f := newFixture(t, false)
	issue := f.issue(t)

	const attempts = 16
	var wins, conflicts atomic.Int32
	var wg sync.WaitGroup
	wg.Add(attempts)
	for i := 0; i < attempts; i++ {
		to := f.bob
		if i%2 == 0 {
			to = f.charlie
		}
		tx := f.move(t, issue, to)
		go func() {
			defer wg.Done()
			_, err := f.service.Notarize(tx)
			switch {
			case err == nil:
				wins.Inc()
			case errors.Is(err, state.ErrConflict):
				conflicts.Inc()
			default:
				t.Errorf("unexpected error: %s", err)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, int32(attempts-1), conflicts.Load())
}

func TestNotarizeView(t *testing.T) {
	f := newFixture(t, false)
	issue := f.issue(t)
	move := f.move(t, issue, f.bob)

	res, err := f.alice.Initiate(notary.NewNotarizeView(move))
	require.NoError(t, err)
	require.NoError(t, move.VerifyNotarySignature(res.([]byte)))

	_, err = f.alice.Initiate(notary.NewNotarizeView(f.move(t, issue, f.charlie)))
	require.Error(t, err)
	assert.True(t, errors.Is(err, state.ErrConflict))
	var conflict *state.ConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, move.ID(), conflict.ConsumingTx)

	f.notary.Leave()
	_, err = f.alice.Initiate(notary.NewNotarizeView(move))
	require.Error(t, err)
	assert.True(t, errors.Is(err, state.ErrNotaryUnavailable))
	assert.True(t, state.IsRetryable(err))

	f.notary.Join()
	res, err = f.alice.Initiate(notary.NewNotarizeView(move))
	require.NoError(t, err)
	require.NoError(t, move.VerifyNotarySignature(res.([]byte)))
}

func TestNotarizeChecksInputs(t *testing.T) {
	f := newFixture(t, false)
	issue := f.issue(t)

	notarize := func(in state.TransactionState) (*state.Transaction, error) {
		tx := statetest.NewMove(f.notary.Identity, &state.StateAndRef{Ref: issue.OutputRef(0), State: in}, f.bob.Identity)
		f.alice.Sign(t, tx)
		f.bob.Sign(t, tx)
		_, err := f.service.Notarize(tx)
		return tx, err
	}

	// same reference, inflated content
	note := &statetest.Note{}
	require.NoError(t, issue.Outputs[0].Unmarshal(note))
	note.Value = 1000000
	forged := issue.Outputs[0]
	var err error
	forged.Data, err = json.Marshal(note)
	require.NoError(t, err)
	tx, err := notarize(forged)
	assert.True(t, errors.Is(err, state.ErrValidation))
	assert.False(t, f.service.IsCommitted(tx.ID()))

	// an output of a transaction the notary never committed
	other := statetest.NewIssue(f.notary.Identity, "n2", f.alice.Identity, f.alice.Identity, 10)
	unknown := statetest.NewMove(f.notary.Identity, &state.StateAndRef{Ref: other.OutputRef(0), State: other.Outputs[0]}, f.bob.Identity)
	f.alice.Sign(t, unknown)
	f.bob.Sign(t, unknown)
	_, err = f.service.Notarize(unknown)
	assert.True(t, errors.Is(err, state.ErrValidation))

	// the refused attempts consumed nothing
	tx, err = notarize(issue.Outputs[0])
	require.NoError(t, err)
	assert.True(t, f.service.IsCommitted(tx.ID()))
}

func TestNotarizeRejectsRepeatedInput(t *testing.T) {
	f := newFixture(t, false)
	issue := f.issue(t)
	in := &state.StateAndRef{Ref: issue.OutputRef(0), State: issue.Outputs[0]}

	tx := statetest.NewMove(f.notary.Identity, in, f.bob.Identity)
	tx.AddInput(in)
	f.alice.Sign(t, tx)
	f.bob.Sign(t, tx)
	_, err := f.service.Notarize(tx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, state.ErrValidation))
	assert.False(t, errors.Is(err, state.ErrConflict))
	assert.False(t, f.service.IsCommitted(tx.ID()))

	// the input is still spendable
	_, err = f.service.Notarize(f.move(t, issue, f.bob))
	assert.NoError(t, err)
}
