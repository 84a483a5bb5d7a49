/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package ledger

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/hyperledger-labs/fsc-iou/platform/common/services/logging"
	"github.com/hyperledger-labs/fsc-iou/platform/ledger/services/finality"
	"github.com/hyperledger-labs/fsc-iou/platform/ledger/services/flows"
	"github.com/hyperledger-labs/fsc-iou/platform/ledger/services/lock"
	"github.com/hyperledger-labs/fsc-iou/platform/ledger/services/notary"
	"github.com/hyperledger-labs/fsc-iou/platform/ledger/services/state"
	"github.com/hyperledger-labs/fsc-iou/platform/ledger/services/vault"
	"github.com/hyperledger-labs/fsc-iou/platform/view/core/manager"
	"github.com/hyperledger-labs/fsc-iou/platform/view/services/assert"
	"github.com/hyperledger-labs/fsc-iou/platform/view/services/comm"
	"github.com/hyperledger-labs/fsc-iou/platform/view/services/endpoint"
	"github.com/hyperledger-labs/fsc-iou/platform/view/services/kvs"
	"github.com/hyperledger-labs/fsc-iou/platform/view/services/sig"
)

var logger = logging.MustGetLogger("ledger-sdk")

const (
	notaryConfigKey         = "iou.notary"
	validatingConfigKey     = "iou.validating"
	sessionTimeoutConfigKey = "iou.timeouts.session"
	notaryTimeoutConfigKey  = "iou.timeouts.notary"
	notaryRetriesConfigKey  = "iou.retries.notary"
	retryDelayConfigKey     = "iou.retries.delay"
	retryIntervalConfigKey  = "iou.distribution.retryInterval"
)

type Registry interface {
	GetService(v interface{}) (interface{}, error)

	RegisterService(service interface{}) error
}

// ConfigService is the node configuration the ledger platform reads
type ConfigService interface {
	GetString(key string) string
	GetBool(key string) bool
	GetInt(key string) int
	GetDuration(key string) time.Duration
}

// SDK installs the ledger platform: contracts, vault, flow records, distribution and,
// on the node named as notary, the uniqueness service
type SDK struct {
	configService ConfigService
	registry      Registry

	settings    *state.Settings
	distributor *finality.Distributor
}

func NewSDK(configService ConfigService, registry Registry) *SDK {
	return &SDK{configService: configService, registry: registry}
}

func (p *SDK) Install() error {
	logger.Infof("Ledger platform enabled, installing...")

	viewManager, err := manager.GetManager(p.registry)
	if err != nil {
		return errors.WithMessage(err, "the view platform must be installed first")
	}
	store, err := kvs.GetService(p.registry)
	if err != nil {
		return err
	}
	sigService, err := sig.GetService(p.registry)
	if err != nil {
		return err
	}

	contracts := state.NewRegistry()
	assert.NoError(p.registry.RegisterService(contracts), "failed registering contracts")

	p.settings = &state.Settings{
		SessionTimeout: p.configService.GetDuration(sessionTimeoutConfigKey),
		NotaryTimeout:  p.configService.GetDuration(notaryTimeoutConfigKey),
		NotaryRetries:  p.configService.GetInt(notaryRetriesConfigKey),
		RetryDelay:     p.configService.GetDuration(retryDelayConfigKey),
	}
	assert.NoError(p.registry.RegisterService(p.settings), "failed registering settings")

	assert.NoError(p.registry.RegisterService(vault.New(store, sigService)), "failed registering vault")
	assert.NoError(p.registry.RegisterService(flows.NewRecorder(store)), "failed registering flow recorder")
	assert.NoError(p.registry.RegisterService(lock.NewKeyedMutex()), "failed registering locks")

	p.distributor = finality.NewDistributor(store, viewManager, sigService)
	assert.NoError(p.registry.RegisterService(p.distributor), "failed registering distributor")
	assert.NoError(viewManager.RegisterResponder(&finality.AcceptCommittedView{}, finality.NewDeliverView(nil, nil)))

	if p.isNotary() {
		me := viewManager.Me()
		signer, err := sigService.GetSigner(me)
		if err != nil {
			return err
		}
		var validator *state.Registry
		if p.configService.GetBool(validatingConfigKey) {
			validator = contracts
		}
		assert.NoError(p.registry.RegisterService(notary.NewService(me, signer, store, sigService, validator)), "failed registering notary")
		assert.NoError(viewManager.RegisterResponder(&notary.NotarizeResponderView{}, notary.NewNotarizeView(nil)))
		logger.Infof("uniqueness service enabled, validating [%v]", validator != nil)
	}
	return nil
}

// Start resolves the notary, resumes the attempts a crash left unfinished and starts
// delivering the outbox, on reconnection of the recipients and periodically
func (p *SDK) Start(ctx context.Context) error {
	directory, err := endpoint.GetService(p.registry)
	if err != nil {
		return err
	}
	p.settings.Notary, err = directory.Resolve(p.configService.GetString(notaryConfigKey))
	if err != nil {
		return errors.WithMessagef(err, "failed resolving notary")
	}

	network, err := comm.GetNetwork(p.registry)
	if err != nil {
		return err
	}
	network.AddJoinListener(p.distributor.OnJoin)
	p.distributor.Start(ctx, p.configService.GetDuration(retryIntervalConfigKey))

	viewManager, err := manager.GetManager(p.registry)
	if err != nil {
		return err
	}
	report, err := flows.Recover(viewManager)
	if err != nil {
		return errors.WithMessage(err, "failed recovering unfinished flows")
	}
	if len(report.Aborted)+len(report.Resumed)+len(report.Failed)+len(report.Pending) != 0 {
		logger.Infof("recovery: aborted [%d], resumed [%d], failed [%d], pending [%d]",
			len(report.Aborted), len(report.Resumed), len(report.Failed), len(report.Pending))
	}
	return nil
}

// Stop waits for the background deliveries, the storage they read is closed next
func (p *SDK) Stop() {
	if p.distributor != nil {
		p.distributor.Stop()
	}
}

func (p *SDK) isNotary() bool {
	name := p.configService.GetString(notaryConfigKey)
	return len(name) != 0 && name == p.configService.GetString("fsc.id")
}
