/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package vault

import (
	"sort"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap/zapcore"

	"github.com/hyperledger-labs/fsc-iou/platform/common/services/logging"
	"github.com/hyperledger-labs/fsc-iou/platform/ledger/services/state"
	"github.com/hyperledger-labs/fsc-iou/platform/view/services/kvs"
	"github.com/hyperledger-labs/fsc-iou/platform/view/view"
)

var logger = logging.MustGetLogger("ledger.vault")

const (
	txPrefix         = "vault.tx"
	unconsumedPrefix = "vault.unconsumed"
	linearPrefix     = "vault.linear"
	consumedPrefix   = "vault.consumed"
)

// TxStatus is the status of a transaction as seen by this vault
type TxStatus int

const (
	Unknown TxStatus = iota
	Valid
)

func (s TxStatus) String() string {
	switch s {
	case Valid:
		return "Valid"
	default:
		return "Unknown"
	}
}

// IdentityChecker tells if an identity belongs to this node
type IdentityChecker interface {
	IsMe(id view.Identity) bool
}

type txRecord struct {
	Transaction *state.Transaction `json:"transaction"`
	Committed   time.Time          `json:"committed"`
}

// Vault stores the committed transactions this node takes part in together with
// the unconsumed states it is a participant of
type Vault struct {
	kvs       *kvs.KVS
	me        IdentityChecker
	listeners *listenerManager
}

func New(kvs *kvs.KVS, me IdentityChecker) *Vault {
	return &Vault{kvs: kvs, me: me, listeners: newListenerManager()}
}

// Commit records a notarized transaction: its inputs become consumed and its outputs with a local
// participant become unconsumed. Committing a known transaction is a no-op and returns false.
// Outputs that a later transaction already consumed are not resurrected.
func (v *Vault) Commit(tx *state.Transaction) (bool, error) {
	txID := tx.ID()
	fresh := false
	err := v.kvs.Update(func(t *kvs.Tx) error {
		exists, err := t.Exists(txKey(txID))
		if err != nil {
			return err
		}
		if exists {
			return nil
		}
		fresh = true

		for _, in := range tx.Inputs {
			if err := t.Put(consumedKey(in.Ref), txID); err != nil {
				return err
			}
			if err := t.Delete(unconsumedKey(in.State.Contract, in.Ref)); err != nil {
				return err
			}
			if len(in.State.LinearID) != 0 {
				if err := t.Delete(linearKey(in.State.Contract, in.State.LinearID, in.Ref)); err != nil {
					return err
				}
			}
		}

		for i, out := range tx.Outputs {
			if !v.isRelevant(out) {
				continue
			}
			ref := state.StateRef{TxID: txID, Index: i}
			consumed, err := t.Exists(consumedKey(ref))
			if err != nil {
				return err
			}
			if consumed {
				logger.Debugf("output [%s] already consumed, skipping", ref)
				continue
			}
			sr := &state.StateAndRef{Ref: ref, State: out}
			if err := t.Put(unconsumedKey(out.Contract, ref), sr); err != nil {
				return err
			}
			if len(out.LinearID) != 0 {
				if err := t.Put(linearKey(out.Contract, out.LinearID, ref), sr); err != nil {
					return err
				}
			}
		}
		return t.Put(txKey(txID), &txRecord{Transaction: tx.WithoutDependencies(), Committed: time.Now()})
	})
	if err != nil {
		return false, errors.WithMessagef(err, "failed committing [%s]", txID)
	}
	if fresh {
		if logger.IsEnabledFor(zapcore.DebugLevel) {
			logger.Debugf("committed [%s]", tx)
		}
		v.listeners.invoke(txID, Valid)
	} else {
		logger.Debugf("transaction [%s] already committed", txID)
	}
	return fresh, nil
}

func (v *Vault) isRelevant(out state.TransactionState) bool {
	for _, p := range out.Participants {
		if v.me.IsMe(p) {
			return true
		}
	}
	return false
}

// Status returns Valid if the transaction was committed to this vault
func (v *Vault) Status(txID string) TxStatus {
	if v.kvs.Exists(txKey(txID)) {
		return Valid
	}
	return Unknown
}

// GetTransaction returns a committed transaction
func (v *Vault) GetTransaction(txID string) (*state.Transaction, error) {
	r := &txRecord{}
	if err := v.kvs.Get(txKey(txID), r); err != nil {
		if errors.Is(err, kvs.ErrStateNotFound) {
			return nil, errors.Wrapf(state.ErrNotFound, "transaction [%s]", txID)
		}
		return nil, err
	}
	return r.Transaction, nil
}

// Transactions returns the committed transactions in commit order
func (v *Vault) Transactions() ([]*state.Transaction, error) {
	it, err := v.kvs.GetByPartialCompositeID(txPrefix, nil)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var records []*txRecord
	for it.HasNext() {
		r := &txRecord{}
		if _, err := it.Next(r); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Committed.Before(records[j].Committed)
	})
	res := make([]*state.Transaction, len(records))
	for i, r := range records {
		res[i] = r.Transaction
	}
	return res, nil
}

// IsConsumed returns true, together with the consuming transaction, if ref was consumed by a committed transaction
func (v *Vault) IsConsumed(ref state.StateRef) (bool, string, error) {
	var txID string
	if err := v.kvs.Get(consumedKey(ref), &txID); err != nil {
		if errors.Is(err, kvs.ErrStateNotFound) {
			return false, "", nil
		}
		return false, "", err
	}
	return true, txID, nil
}

// Unconsumed returns the unconsumed states of contract accepted by filter, sorted by reference
func (v *Vault) Unconsumed(contract string, filter func(*state.StateAndRef) bool) ([]*state.StateAndRef, error) {
	return v.scan(unconsumedPrefix, []string{contract}, filter)
}

// LookupCurrent returns the only unconsumed version of the linear state identified by linearID
func (v *Vault) LookupCurrent(contract, linearID string) (*state.StateAndRef, error) {
	res, err := v.scan(linearPrefix, []string{contract, linearID}, nil)
	if err != nil {
		return nil, err
	}
	switch len(res) {
	case 0:
		return nil, errors.Wrapf(state.ErrNotFound, "no current version of [%s:%s]", contract, linearID)
	case 1:
		return res[0], nil
	default:
		logger.Errorf("found [%d] current versions of [%s:%s]", len(res), contract, linearID)
		return nil, errors.Wrapf(state.ErrAmbiguous, "[%d] current versions of [%s:%s]", len(res), contract, linearID)
	}
}

func (v *Vault) scan(prefix string, attrs []string, filter func(*state.StateAndRef) bool) ([]*state.StateAndRef, error) {
	it, err := v.kvs.GetByPartialCompositeID(prefix, attrs)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var res []*state.StateAndRef
	for it.HasNext() {
		sr := &state.StateAndRef{}
		if _, err := it.Next(sr); err != nil {
			return nil, errors.Wrapf(err, "failed reading state under [%s]", prefix)
		}
		if filter == nil || filter(sr) {
			res = append(res, sr)
		}
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].Ref.TxID != res[j].Ref.TxID {
			return res[i].Ref.TxID < res[j].Ref.TxID
		}
		return res[i].Ref.Index < res[j].Ref.Index
	})
	return res, nil
}

// AddFinalityListener registers l to be notified when txID gets committed.
// If txID is already committed, l is notified immediately.
func (v *Vault) AddFinalityListener(txID string, l FinalityListener) error {
	if err := v.listeners.add(txID, l); err != nil {
		return err
	}
	if v.Status(txID) == Valid {
		v.listeners.invoke(txID, Valid)
	}
	return nil
}

func (v *Vault) RemoveFinalityListener(txID string, l FinalityListener) {
	v.listeners.remove(txID, l)
}

func txKey(txID string) string {
	return kvs.CreateCompositeKeyOrPanic(txPrefix, []string{txID})
}

func unconsumedKey(contract string, ref state.StateRef) string {
	return kvs.CreateCompositeKeyOrPanic(unconsumedPrefix, []string{contract, ref.String()})
}

func linearKey(contract, linearID string, ref state.StateRef) string {
	return kvs.CreateCompositeKeyOrPanic(linearPrefix, []string{contract, linearID, ref.String()})
}

func consumedKey(ref state.StateRef) string {
	return kvs.CreateCompositeKeyOrPanic(consumedPrefix, []string{ref.String()})
}

var vaultLookUp = &Vault{}

// GetVault returns the vault registered in the passed service provider
func GetVault(sp view.ServiceProvider) (*Vault, error) {
	s, err := sp.GetService(vaultLookUp)
	if err != nil {
		return nil, errors.Wrap(err, "cannot get vault")
	}
	return s.(*Vault), nil
}
