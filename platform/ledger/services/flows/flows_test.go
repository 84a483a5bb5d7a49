/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package flows_test

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperledger-labs/fsc-iou/platform/ledger/ledgertest"
	"github.com/hyperledger-labs/fsc-iou/platform/ledger/services/flows"
	"github.com/hyperledger-labs/fsc-iou/platform/ledger/services/state"
	"github.com/hyperledger-labs/fsc-iou/platform/ledger/services/state/statetest"
	"github.com/hyperledger-labs/fsc-iou/platform/ledger/services/vault"
	"github.com/hyperledger-labs/fsc-iou/platform/view/view"
)

type finalizeView struct {
	tx *state.Transaction
}

func (f *finalizeView) Call(context view.Context) (interface{}, error) {
	return flows.Finalize(context, "note.issue", f.tx)
}

type endorseView struct {
	reject bool
}

func (e *endorseView) Call(context view.Context) (interface{}, error) {
	tx, err := state.ReceiveTransaction(context)
	if err != nil {
		return nil, err
	}
	return context.RunView(state.NewEndorseView(tx, func(view.Context, *state.Transaction) error {
		if e.reject {
			return errors.New("no thanks")
		}
		return nil
	}))
}

type node struct {
	*ledgertest.Node
	recorder *flows.Recorder
}

func newNode(t *testing.T, n *ledgertest.Network, name string, reject bool) *node {
	ln := n.NewNode(t, name)
	r := flows.NewRecorder(ln.KVS)
	require.NoError(t, ln.SP.RegisterService(r))
	require.NoError(t, ln.Manager.RegisterResponder(&endorseView{reject: reject}, &finalizeView{}))
	return &node{Node: ln, recorder: r}
}

func statuses(t *testing.T, r *flows.Recorder) []flows.Status {
	records, err := r.List()
	require.NoError(t, err)
	var res []flows.Status
	for _, rec := range records {
		res = append(res, rec.Status)
	}
	return res
}

func TestFinalize(t *testing.T) {
	n := ledgertest.NewNetwork(t, true)
	alice, bob := newNode(t, n, "alice", false), newNode(t, n, "bob", false)

	tx := statetest.NewIssue(n.Notary.Identity, "n1", alice.Identity, bob.Identity, 10)
	res, err := alice.Initiate(&finalizeView{tx: tx})
	require.NoError(t, err)
	committed := res.(*state.Transaction)
	assert.Equal(t, vault.Valid, bob.Vault.Status(committed.ID()))

	records, err := alice.recorder.List()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, flows.Committed, records[0].Status)
	assert.Equal(t, "note.issue", records[0].Kind)
	assert.Equal(t, committed.ID(), records[0].TxID)
	assert.NotEmpty(t, records[0].Tx.NotarySignature)

	got, err := alice.recorder.Get(records[0].ID)
	require.NoError(t, err)
	assert.Equal(t, records[0].ID, got.ID)
	_, err = alice.recorder.Get("missing")
	assert.True(t, errors.Is(err, state.ErrNotFound))
}

func TestFinalizeRecordsFailures(t *testing.T) {
	n := ledgertest.NewNetwork(t, true)
	alice, bob := newNode(t, n, "alice", false), newNode(t, n, "bob", true)

	tx := statetest.NewIssue(n.Notary.Identity, "n1", alice.Identity, bob.Identity, 10)
	_, err := alice.Initiate(&finalizeView{tx: tx})
	assert.True(t, errors.Is(err, state.ErrCounterpartyRejected))
	records, err := alice.recorder.List()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, flows.Failed, records[0].Status)
	assert.Contains(t, records[0].Error, "no thanks")
	assert.False(t, n.NotaryService.IsCommitted(tx.ID()))

	pending, err := alice.recorder.Pending()
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestFinalizeKeepsUnnotarizedAttempts(t *testing.T) {
	n := ledgertest.NewNetwork(t, true)
	alice, bob := newNode(t, n, "alice", false), newNode(t, n, "bob", false)
	n.Notary.Leave()

	tx := statetest.NewIssue(n.Notary.Identity, "n1", alice.Identity, bob.Identity, 10)
	_, err := alice.Initiate(&finalizeView{tx: tx})
	require.Error(t, err)
	assert.True(t, errors.Is(err, state.ErrNotaryUnavailable))
	assert.Equal(t, []flows.Status{flows.Notarizing}, statuses(t, alice.recorder))

	// the notary comes back, recovery completes the attempt
	n.Notary.Join()
	report, err := flows.Recover(alice.Manager)
	require.NoError(t, err)
	assert.Len(t, report.Resumed, 1)
	assert.Equal(t, []flows.Status{flows.Committed}, statuses(t, alice.recorder))
	assert.Equal(t, vault.Valid, alice.Vault.Status(tx.ID()))
	assert.Equal(t, vault.Valid, bob.Vault.Status(tx.ID()))
}

func TestRecovery(t *testing.T) {
	n := ledgertest.NewNetwork(t, true)
	alice, bob, charlie := newNode(t, n, "alice", false), newNode(t, n, "bob", false), newNode(t, n, "charlie", false)

	// crashed while soliciting: aborted
	soliciting := statetest.NewIssue(n.Notary.Identity, "n1", alice.Identity, bob.Identity, 10)
	rec, err := alice.recorder.Start("note.issue", soliciting)
	require.NoError(t, err)
	require.NoError(t, alice.recorder.Transition(rec, flows.Soliciting, soliciting))

	// crashed after the notary committed, before the local commit: resumed
	issue := statetest.NewIssue(n.Notary.Identity, "n2", alice.Identity, bob.Identity, 10)
	alice.Sign(t, issue)
	bob.Sign(t, issue)
	_, err = n.NotaryService.Notarize(issue)
	require.NoError(t, err)
	time.Sleep(time.Millisecond)
	rec, err = alice.recorder.Start("note.issue", issue)
	require.NoError(t, err)
	require.NoError(t, alice.recorder.Transition(rec, flows.Notarizing, issue))

	// crashed while notarizing a transaction that lost a race: failed
	input := &state.StateAndRef{Ref: issue.OutputRef(0), State: issue.Outputs[0]}
	winner := statetest.NewMove(n.Notary.Identity, input, alice.Identity)
	bob.Sign(t, winner)
	alice.Sign(t, winner)
	_, err = n.NotaryService.Notarize(winner)
	require.NoError(t, err)
	loser := statetest.NewMove(n.Notary.Identity, input, charlie.Identity)
	bob.Sign(t, loser)
	charlie.Sign(t, loser)
	time.Sleep(time.Millisecond)
	rec, err = alice.recorder.Start("note.move", loser)
	require.NoError(t, err)
	require.NoError(t, alice.recorder.Transition(rec, flows.Notarizing, loser))

	report, err := flows.Recover(alice.Manager)
	require.NoError(t, err)
	assert.Len(t, report.Aborted, 1)
	assert.Len(t, report.Resumed, 1)
	assert.Len(t, report.Failed, 1)
	assert.Empty(t, report.Pending)
	assert.Equal(t, []flows.Status{flows.Aborted, flows.Committed, flows.Failed}, statuses(t, alice.recorder))

	assert.Equal(t, vault.Valid, alice.Vault.Status(issue.ID()))
	assert.Equal(t, vault.Valid, bob.Vault.Status(issue.ID()))
	assert.False(t, n.NotaryService.IsCommitted(soliciting.ID()))

	// terminal records do not move
	records, err := alice.recorder.List()
	require.NoError(t, err)
	assert.Error(t, alice.recorder.Transition(records[0], flows.Notarizing, nil))

	// nothing left to recover
	report, err = flows.Recover(alice.Manager)
	require.NoError(t, err)
	assert.Empty(t, report.Aborted)
	assert.Empty(t, report.Resumed)
}
