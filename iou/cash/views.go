/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package cash

import (
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/hyperledger-labs/fsc-iou/iou/contract"
	"github.com/hyperledger-labs/fsc-iou/iou/states"
	"github.com/hyperledger-labs/fsc-iou/platform/ledger/services/flows"
	"github.com/hyperledger-labs/fsc-iou/platform/ledger/services/state"
	"github.com/hyperledger-labs/fsc-iou/platform/view/view"
)

// SelfIssue contains the input to issue cash to the calling party
type SelfIssue struct {
	Amount states.Amount
}

// SelfIssueCashView funds the calling party with fresh cash it issues itself
type SelfIssueCashView struct {
	SelfIssue
}

func (s *SelfIssueCashView) Call(context view.Context) (interface{}, error) {
	if err := s.Amount.Validate(); err != nil {
		return nil, state.NewViolation(contract.Cash, "%s", err)
	}
	if !s.Amount.IsPositive() {
		return nil, state.NewViolation(contract.Cash, "amount [%s] must be positive", s.Amount)
	}
	settings, err := state.GetSettings(context)
	if err != nil {
		return nil, err
	}
	me := context.Me()
	tx := state.NewTransaction(settings.Notary)
	if err := tx.AddOutput(contract.Cash, &states.Cash{Amount: s.Amount, Owner: me, Issuer: me}); err != nil {
		return nil, err
	}
	tx.SetCommand(contract.Cash, contract.CashIssue, me)
	logger.Infof("self issuing [%s]", s.Amount)
	return flows.Finalize(context, "cash.issue", tx)
}

type SelfIssueCashViewFactory struct{}

func (f *SelfIssueCashViewFactory) NewView(in []byte) (view.View, error) {
	v := &SelfIssueCashView{}
	if err := json.Unmarshal(in, &v.SelfIssue); err != nil {
		return nil, errors.Wrapf(err, "failed unmarshalling input")
	}
	return v, nil
}

// BalancesView returns the cash the calling party owns, per currency
type BalancesView struct{}

func (b *BalancesView) Call(context view.Context) (interface{}, error) {
	wallet, err := GetWallet(context)
	if err != nil {
		return nil, err
	}
	return wallet.Balances(context.Me())
}

type BalancesViewFactory struct{}

func (f *BalancesViewFactory) NewView([]byte) (view.View, error) {
	return &BalancesView{}, nil
}
