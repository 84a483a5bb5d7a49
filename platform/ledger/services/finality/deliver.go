/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package finality

import (
	"github.com/pkg/errors"

	"github.com/hyperledger-labs/fsc-iou/platform/ledger/services/state"
	"github.com/hyperledger-labs/fsc-iou/platform/ledger/services/vault"
	"github.com/hyperledger-labs/fsc-iou/platform/view/services/session"
	"github.com/hyperledger-labs/fsc-iou/platform/view/services/sig"
	"github.com/hyperledger-labs/fsc-iou/platform/view/view"
)

type deliverView struct {
	tx    *state.Transaction
	party view.Identity
}

// NewDeliverView returns a view that hands the committed tx to party and waits for its acknowledgement
func NewDeliverView(tx *state.Transaction, party view.Identity) *deliverView {
	return &deliverView{tx: tx, party: party}
}

func (d *deliverView) Call(context view.Context) (interface{}, error) {
	settings, _ := state.GetSettings(context)
	s, err := session.NewJSON(context, d, d.party)
	if err != nil {
		return nil, errors.Wrapf(state.ErrSessionTimeout, "cannot reach [%s]: %s", d.party, err)
	}
	if err := s.Send(d.tx); err != nil {
		return nil, errors.Wrapf(state.ErrSessionTimeout, "failed delivering to [%s]: %s", d.party, err)
	}
	reply := &state.Reply{}
	if err := s.ReceiveWithTimeout(reply, settings.SessionTimeoutOrDefault()); err != nil {
		return nil, errors.Wrapf(state.ErrSessionTimeout, "no acknowledgement from [%s]: %s", d.party, err)
	}
	return nil, reply.Err()
}

// AcceptCommittedView receives a committed transaction, checks its notary, its required signatures
// and that its inputs are the outputs they reference, and commits it to the local vault. Deliveries of known transactions are acknowledged and ignored.
type AcceptCommittedView struct{}

func (a *AcceptCommittedView) Call(context view.Context) (interface{}, error) {
	tx, err := state.ReceiveTransaction(context)
	if err != nil {
		return nil, err
	}
	s := session.JSON(context)
	fresh, err := a.accept(context, tx)
	if err != nil {
		logger.Warnf("refusing delivery of [%s]: %s", tx.ID(), err)
		if err := s.Send(state.ReplyFromError(err)); err != nil {
			logger.Errorf("failed answering delivery of [%s]: %s", tx.ID(), err)
		}
		return nil, err
	}
	if fresh {
		publishCommitted(context, tx)
	}
	if err := s.Send(state.Accepted()); err != nil {
		return nil, errors.Wrapf(err, "failed acknowledging [%s]", tx.ID())
	}
	return tx, nil
}

func (a *AcceptCommittedView) accept(context view.Context, tx *state.Transaction) (bool, error) {
	v, err := vault.GetVault(context)
	if err != nil {
		return false, err
	}
	if v.Status(tx.ID()) == vault.Valid {
		return false, nil
	}
	sigService, err := sig.GetService(context)
	if err != nil {
		return false, err
	}
	if settings, err := state.GetSettings(context); err == nil && !settings.Notary.IsNone() && !settings.Notary.Equal(tx.Notary) {
		return false, state.NewViolation(tx.Command.Contract, "transaction [%s] notarized by an unknown notary", tx.ID())
	}
	if err := tx.VerifyNotarySignature(tx.NotarySignature); err != nil {
		return false, errors.Wrap(state.ErrMalformedSignatureSet, err.Error())
	}
	if err := tx.VerifySignatures(sigService); err != nil {
		return false, err
	}
	if err := tx.VerifyInputs(v); err != nil {
		return false, err
	}
	return v.Commit(tx)
}
