/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package sdk

import (
	"context"

	"github.com/pkg/errors"

	"github.com/hyperledger-labs/fsc-iou/iou/cash"
	"github.com/hyperledger-labs/fsc-iou/iou/contract"
	"github.com/hyperledger-labs/fsc-iou/iou/views"
	"github.com/hyperledger-labs/fsc-iou/platform/common/services/logging"
	"github.com/hyperledger-labs/fsc-iou/platform/ledger/services/state"
	"github.com/hyperledger-labs/fsc-iou/platform/ledger/services/vault"
	"github.com/hyperledger-labs/fsc-iou/platform/view/core/manager"
	"github.com/hyperledger-labs/fsc-iou/platform/view/services/assert"
)

var logger = logging.MustGetLogger("iou-sdk")

// Factory identifiers of the IOU views
const (
	IssueIOU     = "iou.issue"
	TransferIOU  = "iou.transfer"
	SettleIOU    = "iou.settle"
	QueryIOU     = "iou.query"
	ListIOUs     = "iou.list"
	SelfIssue    = "cash.issue"
	CashBalances = "cash.balances"
)

type Registry interface {
	GetService(v interface{}) (interface{}, error)

	RegisterService(service interface{}) error
}

// SDK installs the IOU application on a node running the ledger platform
type SDK struct {
	registry Registry
}

func NewSDK(registry Registry) *SDK {
	return &SDK{registry: registry}
}

func (p *SDK) Install() error {
	logger.Infof("IOU application enabled, installing...")

	contracts, err := state.GetRegistry(p.registry)
	if err != nil {
		return errors.WithMessage(err, "the ledger platform must be installed first")
	}
	if err := contract.Register(contracts); err != nil {
		return err
	}
	v, err := vault.GetVault(p.registry)
	if err != nil {
		return err
	}
	assert.NoError(p.registry.RegisterService(cash.NewWallet(v)), "failed registering wallet")

	viewManager, err := manager.GetManager(p.registry)
	if err != nil {
		return err
	}
	assert.NoError(viewManager.RegisterResponder(&views.IssueIOUResponderView{}, &views.IssueIOUView{}))
	assert.NoError(viewManager.RegisterResponder(&views.TransferIOUResponderView{}, &views.TransferIOUView{}))
	assert.NoError(viewManager.RegisterResponder(&views.SettleIOUResponderView{}, &views.SettleIOUView{}))

	assert.NoError(viewManager.RegisterFactory(IssueIOU, &views.IssueIOUViewFactory{}))
	assert.NoError(viewManager.RegisterFactory(TransferIOU, &views.TransferIOUViewFactory{}))
	assert.NoError(viewManager.RegisterFactory(SettleIOU, &views.SettleIOUViewFactory{}))
	assert.NoError(viewManager.RegisterFactory(QueryIOU, &views.QueryViewFactory{}))
	assert.NoError(viewManager.RegisterFactory(ListIOUs, &views.ListIOUsViewFactory{}))
	assert.NoError(viewManager.RegisterFactory(SelfIssue, &cash.SelfIssueCashViewFactory{}))
	assert.NoError(viewManager.RegisterFactory(CashBalances, &cash.BalancesViewFactory{}))
	return nil
}

func (p *SDK) Start(context.Context) error {
	return nil
}
