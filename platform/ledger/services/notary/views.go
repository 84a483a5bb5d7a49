/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package notary

import (
	"github.com/pkg/errors"

	"github.com/hyperledger-labs/fsc-iou/platform/ledger/services/state"
	"github.com/hyperledger-labs/fsc-iou/platform/view/services/session"
	"github.com/hyperledger-labs/fsc-iou/platform/view/view"
)

type notarizeView struct {
	tx *state.Transaction
}

// NewNotarizeView returns a view that submits tx to its notary and returns the notary signature.
// Timeouts and unreachable notaries are reported as state.ErrNotaryUnavailable.
func NewNotarizeView(tx *state.Transaction) *notarizeView {
	return &notarizeView{tx: tx}
}

func (n *notarizeView) Call(context view.Context) (interface{}, error) {
	settings, _ := state.GetSettings(context)
	txID := n.tx.ID()

	s, err := session.NewJSON(context, n, n.tx.Notary)
	if err != nil {
		return nil, errors.Wrapf(state.ErrNotaryUnavailable, "cannot reach notary for [%s]: %s", txID, err)
	}
	if err := s.Send(n.tx); err != nil {
		s.Session().Close()
		return nil, errors.Wrapf(state.ErrNotaryUnavailable, "failed submitting [%s]: %s", txID, err)
	}
	reply := &state.Reply{}
	if err := s.ReceiveWithTimeout(reply, settings.NotaryTimeoutOrDefault()); err != nil {
		// a late answer must not be read by the next attempt
		s.Session().Close()
		return nil, errors.Wrapf(state.ErrNotaryUnavailable, "no decision for [%s]: %s", txID, err)
	}
	if err := reply.Err(); err != nil {
		return nil, errors.WithMessagef(err, "notary refused [%s]", txID)
	}
	if err := n.tx.VerifyNotarySignature(reply.NotarySignature); err != nil {
		return nil, err
	}
	return reply.NotarySignature, nil
}

type NotarizeResponderView struct{}

func (n *NotarizeResponderView) Call(context view.Context) (interface{}, error) {
	service, err := GetService(context)
	if err != nil {
		return nil, err
	}
	tx, err := state.ReceiveTransaction(context)
	if err != nil {
		return nil, err
	}

	s := session.JSON(context)
	sigma, err := service.Notarize(tx)
	if err != nil {
		if err := s.Send(state.ReplyFromError(err)); err != nil {
			logger.Errorf("failed sending refusal of [%s]: %s", tx.ID(), err)
		}
		return nil, err
	}
	if err := s.Send(&state.Reply{Kind: state.ReplyOK, NotarySignature: sigma}); err != nil {
		return nil, errors.Wrapf(err, "failed sending notary signature of [%s]", tx.ID())
	}
	return sigma, nil
}
