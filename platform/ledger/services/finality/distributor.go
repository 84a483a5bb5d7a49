/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package finality

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"go.uber.org/zap/zapcore"

	"github.com/hyperledger-labs/fsc-iou/platform/ledger/services/lock"
	"github.com/hyperledger-labs/fsc-iou/platform/ledger/services/state"
	"github.com/hyperledger-labs/fsc-iou/platform/view/services/kvs"
	"github.com/hyperledger-labs/fsc-iou/platform/view/view"
)

const outboxPrefix = "finality.outbox"

// DefaultRetryInterval is the period of the outbox flushing loop
const DefaultRetryInterval = 5 * time.Second

// ViewInitiator runs views as initiator in a fresh context
type ViewInitiator interface {
	InitiateView(v view.View, ctx context.Context) (interface{}, error)
}

// IdentityChecker tells if an identity belongs to this node
type IdentityChecker interface {
	IsMe(id view.Identity) bool
}

type outboxEntry struct {
	Party  view.Identity      `json:"party"`
	Tx     *state.Transaction `json:"tx"`
	Queued time.Time          `json:"queued"`
}

// Distributor delivers committed transactions to their participants at least once.
// Every delivery goes through a persistent outbox; an entry leaves the outbox only
// once the recipient acknowledged it. Entries of the same recipient are delivered in order.
type Distributor struct {
	kvs       *kvs.KVS
	initiator ViewInitiator
	me        IdentityChecker
	locks     *lock.KeyedMutex

	delivered atomic.Int64
	failed    atomic.Int64

	// background flushes run under ctx and are awaited by Stop
	mutex  sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewDistributor(kvs *kvs.KVS, initiator ViewInitiator, me IdentityChecker) *Distributor {
	return &Distributor{
		kvs:       kvs,
		initiator: initiator,
		me:        me,
		locks:     lock.NewKeyedMutex(),
	}
}

// Distribute queues tx for every participant that is not this node and tries to deliver it right away.
// The returned error reports the parties that could not be reached; their copies stay queued.
func (d *Distributor) Distribute(ctx context.Context, tx *state.Transaction) error {
	var errs error
	for _, party := range tx.Participants() {
		if d.me.IsMe(party) {
			continue
		}
		if err := d.enqueue(party, tx); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if _, err := d.Flush(ctx, party); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

func (d *Distributor) enqueue(party view.Identity, tx *state.Transaction) error {
	key, err := kvs.CreateCompositeKey(outboxPrefix, []string{
		party.UniqueID(),
		fmt.Sprintf("%020d", time.Now().UnixNano()),
		tx.ID(),
	})
	if err != nil {
		return err
	}
	if err := d.kvs.Put(key, &outboxEntry{Party: party, Tx: tx, Queued: time.Now()}); err != nil {
		return errors.WithMessagef(err, "failed queueing [%s] for [%s]", tx.ID(), party)
	}
	return nil
}

// Flush delivers the queued transactions of party in order. It stops at the first failure.
func (d *Distributor) Flush(ctx context.Context, party view.Identity) (int, error) {
	unlock, err := d.locks.Lock(ctx, party.UniqueID())
	if err != nil {
		return 0, err
	}
	defer unlock()

	keys, entries, err := d.pending(party.UniqueID())
	if err != nil {
		return 0, err
	}
	for i, e := range entries {
		if _, err := d.initiator.InitiateView(NewDeliverView(e.Tx, e.Party), ctx); err != nil {
			d.failed.Inc()
			return i, errors.WithMessagef(err, "delivery of [%s] to [%s] failed, [%d] pending", e.Tx.ID(), party, len(entries)-i)
		}
		if err := d.kvs.Delete(keys[i]); err != nil {
			return i, errors.WithMessagef(err, "failed removing [%s] from the outbox", e.Tx.ID())
		}
		d.delivered.Inc()
		if logger.IsEnabledFor(zapcore.DebugLevel) {
			logger.Debugf("delivered [%s] to [%s]", e.Tx.ID(), party)
		}
	}
	return len(entries), nil
}

// FlushAll flushes the outbox of every party with pending deliveries
func (d *Distributor) FlushAll(ctx context.Context) error {
	_, entries, err := d.pending()
	if err != nil {
		return err
	}
	seen := map[string]bool{}
	var errs error
	for _, e := range entries {
		if seen[e.Party.UniqueID()] {
			continue
		}
		seen[e.Party.UniqueID()] = true
		if _, err := d.Flush(ctx, e.Party); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

// Pending returns the number of deliveries queued for party
func (d *Distributor) Pending(party view.Identity) (int, error) {
	_, entries, err := d.pending(party.UniqueID())
	return len(entries), err
}

// OnJoin flushes the outbox of a party that just came online. It does nothing once the
// distributor is stopped.
func (d *Distributor) OnJoin(party view.Identity) {
	d.spawn(func(ctx context.Context) {
		n, err := d.Flush(ctx, party)
		if err != nil {
			logger.Infof("flushing outbox of [%s] on join: %s", party, err)
			return
		}
		if n != 0 {
			logger.Infof("delivered [%d] queued transactions to [%s]", n, party)
		}
	})
}

// Start flushes the whole outbox right away, then every interval until ctx is done or Stop is called
func (d *Distributor) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultRetryInterval
	}
	d.mutex.Lock()
	d.ctx, d.cancel = context.WithCancel(ctx)
	d.mutex.Unlock()

	d.spawn(func(ctx context.Context) {
		if err := d.FlushAll(ctx); err != nil {
			logger.Infof("outbox not empty after start: %s", err)
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				logger.Debugf("distributor stopped: %s", ctx.Err())
				return
			case <-ticker.C:
				if err := d.FlushAll(ctx); err != nil {
					logger.Debugf("outbox not empty: %s", err)
				}
			}
		}
	})
}

// Stop cancels the background flushes and waits for them to return.
// The outbox must not be closed before Stop returns.
func (d *Distributor) Stop() {
	d.mutex.Lock()
	if d.cancel != nil {
		d.cancel()
	}
	d.mutex.Unlock()
	d.wg.Wait()
}

// spawn runs f in a tracked goroutine, unless the distributor is not running
func (d *Distributor) spawn(f func(ctx context.Context)) bool {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if d.ctx == nil || d.ctx.Err() != nil {
		return false
	}
	ctx := d.ctx
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		f(ctx)
	}()
	return true
}

// Stats returns the number of successful and failed deliveries
func (d *Distributor) Stats() (delivered, failed int64) {
	return d.delivered.Load(), d.failed.Load()
}

func (d *Distributor) pending(attrs ...string) ([]string, []*outboxEntry, error) {
	it, err := d.kvs.GetByPartialCompositeID(outboxPrefix, attrs)
	if err != nil {
		return nil, nil, err
	}
	defer it.Close()

	var keys []string
	var entries []*outboxEntry
	for it.HasNext() {
		e := &outboxEntry{}
		key, err := it.Next(e)
		if err != nil {
			return nil, nil, errors.Wrap(err, "failed reading outbox")
		}
		keys = append(keys, key)
		entries = append(entries, e)
	}
	return keys, entries, nil
}

var distributorLookUp = &Distributor{}

// GetDistributor returns the distributor registered in the passed service provider
func GetDistributor(sp view.ServiceProvider) (*Distributor, error) {
	s, err := sp.GetService(distributorLookUp)
	if err != nil {
		return nil, errors.Wrap(err, "cannot get distributor")
	}
	return s.(*Distributor), nil
}
