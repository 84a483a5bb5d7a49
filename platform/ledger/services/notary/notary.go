/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package notary

import (
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap/zapcore"

	"github.com/hyperledger-labs/fsc-iou/platform/common/services/logging"
	"github.com/hyperledger-labs/fsc-iou/platform/ledger/services/state"
	"github.com/hyperledger-labs/fsc-iou/platform/view/services/kvs"
	"github.com/hyperledger-labs/fsc-iou/platform/view/services/sig"
	"github.com/hyperledger-labs/fsc-iou/platform/view/view"
)

var logger = logging.MustGetLogger("ledger.notary")

const (
	consumedPrefix  = "notary.consumed"
	committedPrefix = "notary.committed"
	producedPrefix  = "notary.produced"
)

type commitRecord struct {
	Signature []byte    `json:"signature"`
	Inputs    int       `json:"inputs"`
	Committed time.Time `json:"committed"`
}

// Service is the uniqueness authority: it commits a transaction only if each of its inputs
// is an output it committed earlier, unchanged and not consumed by another committed
// transaction, and co-signs the committed ones
type Service struct {
	identity view.Identity
	signer   sig.Signer
	kvs      *kvs.KVS
	vp       state.VerifierProvider
	// contracts is set for validating notaries only
	contracts *state.Registry
}

// NewService returns a notary signing as identity. If contracts is not nil,
// the notary also runs contract verification before committing.
func NewService(identity view.Identity, signer sig.Signer, kvs *kvs.KVS, vp state.VerifierProvider, contracts *state.Registry) *Service {
	return &Service{
		identity:  identity,
		signer:    signer,
		kvs:       kvs,
		vp:        vp,
		contracts: contracts,
	}
}

func (s *Service) Identity() view.Identity {
	return s.identity
}

// Notarize commits tx and returns the notary signature over its ID.
// Checking and marking the inputs happens in a single atomic update, so of two
// transactions sharing an input exactly one commits. Notarizing a committed
// transaction again returns the same signature.
func (s *Service) Notarize(tx *state.Transaction) ([]byte, error) {
	txID := tx.ID()
	if !s.identity.Equal(tx.Notary) {
		return nil, state.NewViolation(tx.Command.Contract, "transaction [%s] is assigned to another notary", txID)
	}

	var sigma []byte
	err := s.kvs.Update(func(t *kvs.Tx) error {
		record := &commitRecord{}
		err := t.Get(committedKey(txID), record)
		if err == nil {
			logger.Debugf("transaction [%s] already committed, returning the same signature", txID)
			sigma = record.Signature
			return nil
		}
		if !errors.Is(err, kvs.ErrStateNotFound) {
			return err
		}

		if err := tx.VerifySignatures(s.vp); err != nil {
			return err
		}
		if s.contracts != nil {
			if err := s.contracts.Verify(tx); err != nil {
				return err
			}
		}

		seen := map[state.StateRef]bool{}
		for _, in := range tx.Inputs {
			if seen[in.Ref] {
				return state.NewViolation(tx.Command.Contract, "input [%s] consumed twice by [%s]", in.Ref, txID)
			}
			seen[in.Ref] = true
		}

		for _, in := range tx.Inputs {
			if err := checkProduced(t, tx, in); err != nil {
				return err
			}
			var consumingTx string
			err := t.Get(consumedKey(in.Ref), &consumingTx)
			if err == nil {
				return &state.ConflictError{Ref: in.Ref, ConsumingTx: consumingTx}
			}
			if !errors.Is(err, kvs.ErrStateNotFound) {
				return err
			}
			if err := t.Put(consumedKey(in.Ref), txID); err != nil {
				return err
			}
		}
		for i := range tx.Outputs {
			h, err := tx.Outputs[i].Hash()
			if err != nil {
				return state.NewViolation(tx.Command.Contract, "invalid output [%d] of [%s]: %s", i, txID, err)
			}
			if err := t.Put(producedKey(state.StateRef{TxID: txID, Index: i}), h); err != nil {
				return err
			}
		}

		sigma, err = s.signer.Sign([]byte(txID))
		if err != nil {
			return errors.Wrapf(err, "failed signing [%s]", txID)
		}
		return t.Put(committedKey(txID), &commitRecord{Signature: sigma, Inputs: len(tx.Inputs), Committed: time.Now()})
	})
	if err != nil {
		if logger.IsEnabledFor(zapcore.DebugLevel) {
			logger.Debugf("notarization of [%s] failed: %s", txID, err)
		}
		return nil, err
	}
	logger.Infof("notarized [%s]", txID)
	return sigma, nil
}

// IsCommitted returns true if the notary committed txID
func (s *Service) IsCommitted(txID string) bool {
	return s.kvs.Exists(committedKey(txID))
}

// checkProduced refuses an input that this notary never committed as an output,
// or whose content differs from the committed output
func checkProduced(t *kvs.Tx, tx *state.Transaction, in state.StateAndRef) error {
	var produced string
	err := t.Get(producedKey(in.Ref), &produced)
	if errors.Is(err, kvs.ErrStateNotFound) {
		return state.NewViolation(tx.Command.Contract, "input [%s] was never committed", in.Ref)
	}
	if err != nil {
		return err
	}
	h, err := in.State.Hash()
	if err != nil || h != produced {
		return state.NewViolation(tx.Command.Contract, "input [%s] differs from the committed output it references", in.Ref)
	}
	return nil
}

func consumedKey(ref state.StateRef) string {
	return kvs.CreateCompositeKeyOrPanic(consumedPrefix, []string{ref.String()})
}

func producedKey(ref state.StateRef) string {
	return kvs.CreateCompositeKeyOrPanic(producedPrefix, []string{ref.String()})
}

func committedKey(txID string) string {
	return kvs.CreateCompositeKeyOrPanic(committedPrefix, []string{txID})
}

var serviceLookUp = &Service{}

// GetService returns the notary service registered in the passed service provider
func GetService(sp view.ServiceProvider) (*Service, error) {
	s, err := sp.GetService(serviceLookUp)
	if err != nil {
		return nil, errors.Wrap(err, "cannot get notary service")
	}
	return s.(*Service), nil
}
