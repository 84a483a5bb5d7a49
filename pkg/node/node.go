/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package node

import (
	"context"
	"log"
	"runtime/debug"
	"time"

	"github.com/pkg/errors"

	"github.com/hyperledger-labs/fsc-iou/pkg/api"
	"github.com/hyperledger-labs/fsc-iou/platform/common/services/logging"
	ledgersdk "github.com/hyperledger-labs/fsc-iou/platform/ledger/sdk"
	"github.com/hyperledger-labs/fsc-iou/platform/ledger/services/vault"
	"github.com/hyperledger-labs/fsc-iou/platform/view/core/config"
	"github.com/hyperledger-labs/fsc-iou/platform/view/core/manager"
	viewsdk "github.com/hyperledger-labs/fsc-iou/platform/view/sdk"
	"github.com/hyperledger-labs/fsc-iou/platform/view/services/comm"
	"github.com/hyperledger-labs/fsc-iou/platform/view/services/endpoint"
	registry2 "github.com/hyperledger-labs/fsc-iou/platform/view/services/registry"
	"github.com/hyperledger-labs/fsc-iou/platform/view/view"
)

var logger = logging.MustGetLogger("fsc")

// Stoppable is implemented by the sdks holding resources to release when the node stops
type Stoppable interface {
	Stop()
}

// PostStart enables a platform to execute additional tasks after all platforms have started
type PostStart interface {
	PostStart(context.Context) error
}

// Node is a party of the network: the view and ledger platforms plus the installed applications
type Node struct {
	registry      *registry2.ServiceProvider
	configService *config.Provider
	viewSDK       *viewsdk.SDK
	sdks          []api.SDK
	context       context.Context
	cancel        context.CancelFunc
	installed     bool
	running       bool
}

var _ api.Node = (*Node)(nil)

// New returns a node configured by the core.yaml found in confPath, attached to network
func New(confPath string, network *comm.Network) (*Node, error) {
	configService, err := config.NewProvider(confPath)
	if err != nil {
		return nil, err
	}
	registry := registry2.New()
	viewSDK := viewsdk.NewSDK(configService, registry, network)
	return &Node{
		registry:      registry,
		configService: configService,
		viewSDK:       viewSDK,
		sdks: []api.SDK{
			viewSDK,
			ledgersdk.NewSDK(configService, registry),
		},
	}, nil
}

func (n *Node) ConfigService() *config.Provider {
	return n.configService
}

// Name returns the name of the node, fsc.id in its configuration
func (n *Node) Name() string {
	return n.configService.GetString("fsc.id")
}

// Identity returns the identity of the node, available once installed
func (n *Node) Identity() view.Identity {
	return n.viewSDK.Identity()
}

// Install installs the sdks, the node identity is available afterwards
func (n *Node) Install() (err error) {
	if n.installed {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Install triggered panic: %s\n%s\n", r, debug.Stack())
			err = errors.Errorf("Install triggered panic: %s", r)
		}
	}()

	logger.Infof("Installing sdks...")
	for _, p := range n.sdks {
		if err := p.Install(); err != nil {
			logger.Errorf("Failed installing platform [%s]", err)
			return err
		}
	}
	logger.Infof("Installing sdks...done")
	n.installed = true
	return nil
}

func (n *Node) Start() (err error) {
	if err := n.Install(); err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Start triggered panic: %s\n%s\n", r, debug.Stack())
			err = errors.Errorf("Start triggered panic: %s", r)
			n.Stop()
		}
	}()

	n.running = true
	n.context, n.cancel = context.WithCancel(context.Background())

	logger.Info("Starting sdks...")
	for _, p := range n.sdks {
		if err := p.Start(n.context); err != nil {
			logger.Errorf("Failed starting platform [%s]", err)
			return err
		}
	}
	logger.Infof("Starting sdks...done")

	logger.Info("Post-starting sdks...")
	for _, p := range n.sdks {
		ps, ok := p.(PostStart)
		if ok {
			if err := ps.PostStart(n.context); err != nil {
				logger.Errorf("Failed post-starting platform [%s]", err)
				return err
			}
		}
	}
	logger.Infof("Post-starting sdks...done")

	logger.Infof("Started node [%s] with identity [%s]", n.Name(), n.Identity())
	return nil
}

func (n *Node) Stop() {
	if !n.running {
		return
	}
	n.running = false
	if n.cancel != nil {
		n.cancel()
	}
	for i := len(n.sdks) - 1; i >= 0; i-- {
		if s, ok := n.sdks[i].(Stoppable); ok {
			s.Stop()
		}
	}
	logger.Infof("Stopped node [%s]", n.Name())
}

func (n *Node) InstallSDK(p api.SDK) error {
	if n.installed {
		return errors.New("failed installing platform, the system is already installed")
	}

	n.sdks = append(n.sdks, p)
	return nil
}

// Bind lets the node resolve name to id
func (n *Node) Bind(name string, id view.Identity) error {
	directory, err := endpoint.GetService(n.registry)
	if err != nil {
		return err
	}
	return directory.Bind(name, id)
}

func (n *Node) RegisterFactory(id string, factory api.Factory) error {
	m, err := manager.GetManager(n.registry)
	if err != nil {
		return err
	}
	return m.RegisterFactory(id, factory)
}

func (n *Node) RegisterResponder(responder view.View, initiatedBy interface{}) error {
	m, err := manager.GetManager(n.registry)
	if err != nil {
		return err
	}
	return m.RegisterResponder(responder, initiatedBy)
}

func (n *Node) RegisterService(service interface{}) error {
	return n.registry.RegisterService(service)
}

func (n *Node) GetService(v interface{}) (interface{}, error) {
	return n.registry.GetService(v)
}

func (n *Node) Registry() *registry2.ServiceProvider {
	return n.registry
}

// InitiateView runs v as initiator in a fresh context bound to the lifetime of the node
func (n *Node) InitiateView(v view.View) (interface{}, error) {
	if !n.running {
		return nil, errors.New("node not running")
	}
	m, err := manager.GetManager(n.registry)
	if err != nil {
		return nil, err
	}
	return m.InitiateView(v, n.context)
}

func (n *Node) CallView(fid string, in []byte) (interface{}, error) {
	m, err := manager.GetManager(n.registry)
	if err != nil {
		return nil, err
	}
	f, err := m.NewView(fid, in)
	if err != nil {
		return nil, errors.WithMessagef(err, "failed instantiating view [%s]", fid)
	}
	return n.InitiateView(f)
}

func (n *Node) IsTxFinal(txid string, opts ...api.ServiceOption) error {
	options, err := api.CompileServiceOptions(opts...)
	if err != nil {
		return err
	}
	v, err := vault.GetVault(n.registry)
	if err != nil {
		return err
	}
	if v.Status(txid) == vault.Valid {
		return nil
	}
	if options.Timeout <= 0 {
		return errors.Errorf("transaction [%s] not committed", txid)
	}

	done := make(chan struct{}, 1)
	var l vault.FinalityListenerFunc = func(string, vault.TxStatus) {
		select {
		case done <- struct{}{}:
		default:
		}
	}
	if err := v.AddFinalityListener(txid, &l); err != nil {
		return err
	}
	defer v.RemoveFinalityListener(txid, &l)
	if v.Status(txid) == vault.Valid {
		return nil
	}

	select {
	case <-done:
		return nil
	case <-time.After(options.Timeout):
		return errors.Errorf("transaction [%s] not committed after [%s]", txid, options.Timeout)
	}
}
