/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package view

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/hyperledger-labs/fsc-iou/platform/common/services/logging"
	"github.com/hyperledger-labs/fsc-iou/platform/view/core/manager"
	"github.com/hyperledger-labs/fsc-iou/platform/view/services/assert"
	"github.com/hyperledger-labs/fsc-iou/platform/view/services/comm"
	_ "github.com/hyperledger-labs/fsc-iou/platform/view/services/db/driver/badger"
	_ "github.com/hyperledger-labs/fsc-iou/platform/view/services/db/driver/memory"
	"github.com/hyperledger-labs/fsc-iou/platform/view/services/endpoint"
	"github.com/hyperledger-labs/fsc-iou/platform/view/services/events"
	"github.com/hyperledger-labs/fsc-iou/platform/view/services/events/simple"
	"github.com/hyperledger-labs/fsc-iou/platform/view/services/kms"
	"github.com/hyperledger-labs/fsc-iou/platform/view/services/kvs"
	"github.com/hyperledger-labs/fsc-iou/platform/view/services/sig"
	"github.com/hyperledger-labs/fsc-iou/platform/view/view"
)

var logger = logging.MustGetLogger("view-sdk")

const (
	defaultKeyLabel = "default"
	drainTimeout    = 5 * time.Second
)

type Registry interface {
	GetService(v interface{}) (interface{}, error)

	RegisterService(service interface{}) error
}

// ConfigService is the node configuration the view platform reads
type ConfigService interface {
	kvs.ConfigProvider
	GetString(key string) string
}

// SDK installs the view platform: storage, keys, signatures, directory, events and the view manager
// attached to the in-process network
type SDK struct {
	configService ConfigService
	registry      Registry
	network       *comm.Network

	kvs         *kvs.KVS
	identity    view.Identity
	viewManager *manager.Manager
}

func NewSDK(configService ConfigService, registry Registry, network *comm.Network) *SDK {
	return &SDK{configService: configService, registry: registry, network: network}
}

func (p *SDK) Install() error {
	logger.Infof("View platform enabled, installing...")

	assert.NoError(p.registry.RegisterService(p.configService), "failed registering config provider")
	assert.NoError(p.registry.RegisterService(p.network), "failed registering network")
	assert.NoError(p.registry.RegisterService(events.NewService(simple.NewEventBus())))

	// KVS
	defaultKVS, err := kvs.NewWithConfig(p.configService, kvs.DefaultNamespace)
	if err != nil {
		return errors.Wrap(err, "failed creating kvs")
	}
	assert.NoError(p.registry.RegisterService(defaultKVS))
	p.kvs = defaultKVS

	// Keys and Sig Service
	id, signer, err := kms.New(defaultKVS).LoadOrGenerate(defaultKeyLabel)
	if err != nil {
		return errors.WithMessage(err, "failed loading the node key")
	}
	signerService := sig.NewService()
	assert.NoError(signerService.RegisterSigner(id, signer))
	assert.NoError(p.registry.RegisterService(signerService))
	p.identity = id

	// Endpoint Service
	endpointService := endpoint.NewService()
	if name := p.configService.GetString("fsc.id"); len(name) != 0 {
		assert.NoError(endpointService.Bind(name, id), "failed binding own identity")
	}
	assert.NoError(p.registry.RegisterService(endpointService), "failed registering endpoint service")

	// View Manager
	p.viewManager = manager.New(id, p.registry, signerService)
	if err := p.registry.RegisterService(p.viewManager); err != nil {
		return err
	}
	return nil
}

// Start attaches the view manager to the network
func (p *SDK) Start(ctx context.Context) error {
	if p.viewManager == nil {
		return errors.New("view platform not installed")
	}
	p.viewManager.Start(ctx, p.network.Join(p.identity, p.viewManager))
	logger.Infof("joined the network as [%s]", p.identity)
	return nil
}

// Stop takes the node offline and closes its storage
func (p *SDK) Stop() {
	if p.viewManager == nil {
		return
	}
	p.network.Leave(p.identity)
	p.drain()
	p.kvs.Stop()
	logger.Infof("left the network as [%s]", p.identity)
}

// drain waits, up to drainTimeout, for the views still running to return
func (p *SDK) drain() {
	deadline := time.Now().Add(drainTimeout)
	for p.viewManager.ActiveViews() > 0 {
		if time.Now().After(deadline) {
			logger.Warnf("closing storage with [%d] views still running", p.viewManager.ActiveViews())
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// Identity returns the identity of the node, set at install time
func (p *SDK) Identity() view.Identity {
	return p.identity
}
