/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package finality_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/hyperledger-labs/fsc-iou/platform/ledger/ledgertest"
	"github.com/hyperledger-labs/fsc-iou/platform/ledger/services/finality"
	"github.com/hyperledger-labs/fsc-iou/platform/ledger/services/state"
	"github.com/hyperledger-labs/fsc-iou/platform/ledger/services/state/statetest"
	"github.com/hyperledger-labs/fsc-iou/platform/ledger/services/vault"
	"github.com/hyperledger-labs/fsc-iou/platform/view/services/db/driver/memory"
	"github.com/hyperledger-labs/fsc-iou/platform/view/services/events"
	"github.com/hyperledger-labs/fsc-iou/platform/view/services/kvs"
	"github.com/hyperledger-labs/fsc-iou/platform/view/view"
)

type recorder struct {
	lock sync.Mutex
	txs  []string
}

func (r *recorder) OnReceive(event events.Event) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.txs = append(r.txs, event.Message().(*finality.Committed).TxID)
}

func (r *recorder) received() []string {
	r.lock.Lock()
	defer r.lock.Unlock()
	return append([]string{}, r.txs...)
}

func subscribe(node *ledgertest.Node) *recorder {
	r := &recorder{}
	node.Events.Subscribe(finality.CommittedTopic, r)
	return r
}

func signedIssue(t *testing.T, n *ledgertest.Network, issuer, owner *ledgertest.Node) *state.Transaction {
	tx := statetest.NewIssue(n.Notary.Identity, "n1", issuer.Identity, owner.Identity, 10)
	issuer.Sign(t, tx)
	owner.Sign(t, tx)
	return tx
}

func signedMove(t *testing.T, n *ledgertest.Network, input *state.Transaction, owner, to *ledgertest.Node) *state.Transaction {
	tx := statetest.NewMove(n.Notary.Identity, &state.StateAndRef{Ref: input.OutputRef(0), State: input.Outputs[0]}, to.Identity)
	owner.Sign(t, tx)
	to.Sign(t, tx)
	return tx
}

func TestOrderingAndFinality(t *testing.T) {
	n := ledgertest.NewNetwork(t, false)
	alice, bob := n.NewNode(t, "alice"), n.NewNode(t, "bob")
	aliceEvents, bobEvents := subscribe(alice), subscribe(bob)

	issue := signedIssue(t, n, alice, bob)
	res, err := alice.Initiate(finality.NewOrderingAndFinalityView(issue))
	require.NoError(t, err)
	committed := res.(*state.Transaction)
	require.NoError(t, committed.VerifyNotarySignature(committed.NotarySignature))

	assert.Equal(t, vault.Valid, alice.Vault.Status(issue.ID()))
	assert.Equal(t, vault.Valid, bob.Vault.Status(issue.ID()))
	assert.Equal(t, []string{issue.ID()}, aliceEvents.received())
	assert.Equal(t, []string{issue.ID()}, bobEvents.received())

	current, err := bob.Vault.LookupCurrent(statetest.NoteContract, "n1")
	require.NoError(t, err)
	assert.Equal(t, issue.OutputRef(0), current.Ref)

	pending, err := alice.Distributor.Pending(bob.Identity)
	require.NoError(t, err)
	assert.Zero(t, pending)
	delivered, failed := alice.Distributor.Stats()
	assert.Equal(t, int64(1), delivered)
	assert.Zero(t, failed)
}

func TestDoubleSpendIsRejected(t *testing.T) {
	n := ledgertest.NewNetwork(t, false)
	alice, bob, charlie := n.NewNode(t, "alice"), n.NewNode(t, "bob"), n.NewNode(t, "charlie")

	issue := signedIssue(t, n, alice, bob)
	_, err := alice.Initiate(finality.NewOrderingAndFinalityView(issue))
	require.NoError(t, err)

	first := signedMove(t, n, issue, bob, alice)
	second := signedMove(t, n, issue, bob, charlie)
	_, err = bob.Initiate(finality.NewOrderingAndFinalityView(first))
	require.NoError(t, err)

	_, err = bob.Initiate(finality.NewOrderingAndFinalityView(second))
	require.Error(t, err)
	assert.True(t, errors.Is(err, state.ErrConflict))
	assert.False(t, state.IsRetryable(err))
	assert.Equal(t, vault.Unknown, bob.Vault.Status(second.ID()))
	assert.Equal(t, vault.Unknown, charlie.Vault.Status(second.ID()))

	current, err := alice.Vault.LookupCurrent(statetest.NoteContract, "n1")
	require.NoError(t, err)
	assert.Equal(t, first.OutputRef(0), current.Ref)
}

func TestUnsignedTransactionIsNotSubmitted(t *testing.T) {
	n := ledgertest.NewNetwork(t, false)
	alice, bob := n.NewNode(t, "alice"), n.NewNode(t, "bob")

	tx := statetest.NewIssue(n.Notary.Identity, "n1", alice.Identity, bob.Identity, 10)
	alice.Sign(t, tx)
	_, err := alice.Initiate(finality.NewOrderingAndFinalityView(tx))
	assert.True(t, errors.Is(err, state.ErrMalformedSignatureSet))
	assert.False(t, n.NotaryService.IsCommitted(tx.ID()))
}

func TestNotaryUnavailable(t *testing.T) {
	n := ledgertest.NewNetwork(t, false)
	alice, bob := n.NewNode(t, "alice"), n.NewNode(t, "bob")
	n.Notary.Leave()

	issue := signedIssue(t, n, alice, bob)
	_, err := alice.Initiate(finality.NewOrderingAndFinalityView(issue))
	require.Error(t, err)
	assert.True(t, errors.Is(err, state.ErrNotaryUnavailable))
	assert.Equal(t, vault.Unknown, alice.Vault.Status(issue.ID()))

	// the same transaction can be submitted again once the notary is back
	n.Notary.Join()
	_, err = alice.Initiate(finality.NewOrderingAndFinalityView(issue))
	require.NoError(t, err)
	assert.Equal(t, vault.Valid, bob.Vault.Status(issue.ID()))
}

func TestDeliveryToOfflineParty(t *testing.T) {
	n := ledgertest.NewNetwork(t, false)
	alice, bob := n.NewNode(t, "alice"), n.NewNode(t, "bob")
	n.Comm.AddJoinListener(alice.Distributor.OnJoin)
	// the periodic flush stays out of the way, the join triggers the delivery
	alice.Distributor.Start(context.Background(), time.Hour)
	defer alice.Distributor.Stop()

	issue := signedIssue(t, n, alice, bob)
	bob.Leave()
	_, err := alice.Initiate(finality.NewOrderingAndFinalityView(issue))
	require.NoError(t, err, "finality does not depend on distribution")
	assert.Equal(t, vault.Valid, alice.Vault.Status(issue.ID()))
	assert.Equal(t, vault.Unknown, bob.Vault.Status(issue.ID()))

	pending, err := alice.Distributor.Pending(bob.Identity)
	require.NoError(t, err)
	assert.Equal(t, 1, pending)

	bob.Join()
	assert.Eventually(t, func() bool {
		return bob.Vault.Status(issue.ID()) == vault.Valid
	}, 5*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool {
		pending, err := alice.Distributor.Pending(bob.Identity)
		return err == nil && pending == 0
	}, 5*time.Second, 10*time.Millisecond)
}

func TestRetryLoopAndRedelivery(t *testing.T) {
	n := ledgertest.NewNetwork(t, false)
	alice, bob := n.NewNode(t, "alice"), n.NewNode(t, "bob")
	bobEvents := subscribe(bob)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	alice.Distributor.Start(ctx, 20*time.Millisecond)

	issue := signedIssue(t, n, alice, bob)
	bob.Leave()
	_, err := alice.Initiate(finality.NewOrderingAndFinalityView(issue))
	require.NoError(t, err)

	// no join listener, the periodic flush delivers
	bob.Join()
	assert.Eventually(t, func() bool {
		pending, err := alice.Distributor.Pending(bob.Identity)
		return err == nil && pending == 0
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, vault.Valid, bob.Vault.Status(issue.ID()))

	// a second copy is acknowledged and ignored
	require.NoError(t, alice.Distributor.Distribute(context.Background(), issue))
	assert.Equal(t, []string{issue.ID()}, bobEvents.received())
	unconsumed, err := bob.Vault.Unconsumed(statetest.NoteContract, nil)
	require.NoError(t, err)
	assert.Len(t, unconsumed, 1)
}

func TestForgedDeliveryIsRefused(t *testing.T) {
	n := ledgertest.NewNetwork(t, false)
	alice, bob := n.NewNode(t, "alice"), n.NewNode(t, "bob")

	issue := signedIssue(t, n, alice, bob)
	issue.NotarySignature = []byte("forged")
	_, err := alice.Initiate(finality.NewDeliverView(issue, bob.Identity))
	require.Error(t, err)
	assert.True(t, errors.Is(err, state.ErrMalformedSignatureSet))
	assert.Equal(t, vault.Unknown, bob.Vault.Status(issue.ID()))

	rogue := signedIssue(t, n, alice, bob)
	rogue.Notary = alice.Identity
	alice.Sign(t, rogue)
	bob.Sign(t, rogue)
	signer, err := alice.Sig.GetSigner(alice.Identity)
	require.NoError(t, err)
	rogue.NotarySignature, err = signer.Sign([]byte(rogue.ID()))
	require.NoError(t, err)
	_, err = alice.Initiate(finality.NewDeliverView(rogue, bob.Identity))
	require.Error(t, err)
	assert.True(t, errors.Is(err, state.ErrValidation))
	assert.Equal(t, vault.Unknown, bob.Vault.Status(rogue.ID()))
}

type blockingInitiator struct {
	calls    atomic.Int32
	inflight atomic.Int32
}

func (b *blockingInitiator) InitiateView(v view.View, ctx context.Context) (interface{}, error) {
	b.calls.Inc()
	b.inflight.Inc()
	defer b.inflight.Dec()
	<-ctx.Done()
	return nil, ctx.Err()
}

type nobody struct{}

func (nobody) IsMe(view.Identity) bool { return false }

func TestStopWaitsForBackgroundFlushes(t *testing.T) {
	store, err := kvs.New(memory.New(), kvs.DefaultNamespace, 10)
	require.NoError(t, err)
	initiator := &blockingInitiator{}
	d := finality.NewDistributor(store, initiator, nobody{})

	bob := view.Identity("bob")
	tx := statetest.NewIssue(view.Identity("notary"), "n1", view.Identity("alice"), bob, 10)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.Error(t, d.Distribute(ctx, tx))
	pending, err := d.Pending(bob)
	require.NoError(t, err)
	require.Equal(t, 1, pending)

	d.Start(context.Background(), time.Hour)
	require.Eventually(t, func() bool { return initiator.inflight.Load() == 1 }, 5*time.Second, 10*time.Millisecond)

	d.Stop()
	assert.Equal(t, int32(0), initiator.inflight.Load())
	store.Stop()

	// a stopped distributor does not touch the closed store
	calls := initiator.calls.Load()
	d.OnJoin(bob)
	assert.Never(t, func() bool { return initiator.calls.Load() != calls }, 100*time.Millisecond, 10*time.Millisecond)
}

func TestDeliveryWithForgedInputIsRefused(t *testing.T) {
	n := ledgertest.NewNetwork(t, false)
	alice, bob, charlie := n.NewNode(t, "alice"), n.NewNode(t, "bob"), n.NewNode(t, "charlie")

	issue := signedIssue(t, n, alice, bob)
	_, err := alice.Initiate(finality.NewOrderingAndFinalityView(issue))
	require.NoError(t, err)

	// bob moves the note to charlie claiming a higher value, under a notary signature the real notary would not give
	note := &statetest.Note{}
	require.NoError(t, issue.Outputs[0].Unmarshal(note))
	note.Value = 1000000
	inflated := issue.Outputs[0]
	inflated.Data, err = json.Marshal(note)
	require.NoError(t, err)
	forged := statetest.NewMove(n.Notary.Identity, &state.StateAndRef{Ref: issue.OutputRef(0), State: inflated}, charlie.Identity)
	bob.Sign(t, forged)
	charlie.Sign(t, forged)
	signer, err := n.Notary.Sig.GetSigner(n.Notary.Identity)
	require.NoError(t, err)
	forged.NotarySignature, err = signer.Sign([]byte(forged.ID()))
	require.NoError(t, err)

	// alice resolves the input from her own vault
	_, err = bob.Initiate(finality.NewDeliverView(forged, alice.Identity))
	require.Error(t, err)
	assert.True(t, errors.Is(err, state.ErrValidation))
	assert.Equal(t, vault.Unknown, alice.Vault.Status(forged.ID()))

	// charlie never saw the issue and checks it against the shipped dependency
	require.NoError(t, forged.AttachDependencies(bob.Vault))
	_, err = bob.Initiate(finality.NewDeliverView(forged, charlie.Identity))
	require.Error(t, err)
	assert.True(t, errors.Is(err, state.ErrValidation))
	assert.Equal(t, vault.Unknown, charlie.Vault.Status(forged.ID()))

	// the genuine move is accepted by charlie through the same path
	genuine := signedMove(t, n, issue, bob, charlie)
	res, err := bob.Initiate(finality.NewOrderingAndFinalityView(genuine))
	require.NoError(t, err)
	assert.NotEmpty(t, res.(*state.Transaction).Dependencies)
	assert.Equal(t, vault.Valid, charlie.Vault.Status(genuine.ID()))
	stored, err := charlie.Vault.GetTransaction(genuine.ID())
	require.NoError(t, err)
	assert.Empty(t, stored.Dependencies)
}
