/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package network boots a set of IOU nodes, the notary included, on one in-process network.
package network

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"

	"github.com/hyperledger-labs/fsc-iou/iou/sdk"
	"github.com/hyperledger-labs/fsc-iou/iou/web"
	"github.com/hyperledger-labs/fsc-iou/pkg/node"
	"github.com/hyperledger-labs/fsc-iou/platform/common/services/logging"
	"github.com/hyperledger-labs/fsc-iou/platform/view/services/comm"
)

var logger = logging.MustGetLogger("iou.network")

const configFileName = "core.yaml"

// Network is a set of IOU nodes sharing an in-process network
type Network struct {
	comm      *comm.Network
	confPaths map[string]string
	nodes     []*node.Node
	servers   map[string]*web.Server
}

// Load returns a network with a node for every sub directory of dir holding a core.yaml
func Load(dir string) (*Network, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "failed reading topology [%s]", dir)
	}
	var confPaths []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		confPath := filepath.Join(dir, e.Name())
		if _, err := os.Stat(filepath.Join(confPath, configFileName)); err == nil {
			confPaths = append(confPaths, confPath)
		}
	}
	if len(confPaths) == 0 {
		return nil, errors.Errorf("no node configuration found in [%s]", dir)
	}
	return New(confPaths...)
}

// New returns a network with a node for every configuration directory
func New(confPaths ...string) (*Network, error) {
	n := &Network{
		comm:      comm.NewNetwork(),
		confPaths: map[string]string{},
		servers:   map[string]*web.Server{},
	}
	for _, confPath := range confPaths {
		p, err := n.newNode(confPath)
		if err != nil {
			return nil, err
		}
		if _, exists := n.confPaths[p.Name()]; exists {
			return nil, errors.Errorf("node [%s] declared twice", p.Name())
		}
		n.confPaths[p.Name()] = confPath
		n.nodes = append(n.nodes, p)
	}
	// the notary starts first, the parties resolve it when they start
	sort.SliceStable(n.nodes, func(i, j int) bool {
		return isNotary(n.nodes[i]) && !isNotary(n.nodes[j])
	})
	return n, nil
}

// Install installs every node and lets each node resolve the names of all the others
func (n *Network) Install() error {
	for _, p := range n.nodes {
		if err := p.Install(); err != nil {
			return errors.WithMessagef(err, "failed installing [%s]", p.Name())
		}
	}
	return n.bindAll()
}

// Start starts the nodes, notary first, and the web servers of the nodes configuring an address
func (n *Network) Start() error {
	if err := n.Install(); err != nil {
		return err
	}
	for _, p := range n.nodes {
		if err := n.start(p); err != nil {
			return err
		}
	}
	return nil
}

// Stop stops the web servers and the nodes, in reverse start order
func (n *Network) Stop() {
	for i := len(n.nodes) - 1; i >= 0; i-- {
		n.stop(n.nodes[i])
	}
}

// StopNode takes the named node offline, its storage is released
func (n *Network) StopNode(name string) error {
	p := n.Node(name)
	if p == nil {
		return errors.Errorf("node [%s] not found", name)
	}
	n.stop(p)
	return nil
}

// Restart replaces the named node with a fresh instance reading the same configuration,
// as after a crash. What the node stored durably survives. The node key must be among it:
// the other nodes refuse to rebind the name to a new identity.
func (n *Network) Restart(name string) error {
	confPath, ok := n.confPaths[name]
	if !ok {
		return errors.Errorf("node [%s] not found", name)
	}
	for i, p := range n.nodes {
		if p.Name() != name {
			continue
		}
		n.stop(p)
		fresh, err := n.newNode(confPath)
		if err != nil {
			return err
		}
		if err := fresh.Install(); err != nil {
			return errors.WithMessagef(err, "failed installing [%s]", name)
		}
		n.nodes[i] = fresh
		if err := n.bindAll(); err != nil {
			return err
		}
		return n.start(fresh)
	}
	return errors.Errorf("node [%s] not found", name)
}

// Node returns the named node, nil if there is none
func (n *Network) Node(name string) *node.Node {
	for _, p := range n.nodes {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// Nodes returns the nodes in start order
func (n *Network) Nodes() []*node.Node {
	return n.nodes
}

// Server returns the web server of the named node, nil if it has none
func (n *Network) Server(name string) *web.Server {
	return n.servers[name]
}

func (n *Network) newNode(confPath string) (*node.Node, error) {
	p, err := node.New(confPath, n.comm)
	if err != nil {
		return nil, errors.WithMessagef(err, "failed loading node from [%s]", confPath)
	}
	if len(p.Name()) == 0 {
		return nil, errors.Errorf("fsc.id not set in [%s]", confPath)
	}
	if err := p.InstallSDK(sdk.NewSDK(p.Registry())); err != nil {
		return nil, err
	}
	return p, nil
}

func (n *Network) bindAll() error {
	for _, p := range n.nodes {
		for _, other := range n.nodes {
			if err := p.Bind(other.Name(), other.Identity()); err != nil {
				return errors.WithMessagef(err, "failed binding [%s] in [%s]", other.Name(), p.Name())
			}
		}
	}
	return nil
}

func (n *Network) start(p *node.Node) error {
	if err := p.Start(); err != nil {
		return errors.WithMessagef(err, "failed starting [%s]", p.Name())
	}
	address := p.ConfigService().GetString(web.AddressConfigKey)
	if len(address) == 0 {
		return nil
	}
	server := web.NewServer(address, p)
	if err := server.Start(); err != nil {
		return errors.WithMessagef(err, "failed starting web server of [%s]", p.Name())
	}
	n.servers[p.Name()] = server
	logger.Infof("[%s] serving on [%s]", p.Name(), server.Addr())
	return nil
}

func (n *Network) stop(p *node.Node) {
	if server, ok := n.servers[p.Name()]; ok {
		if err := server.Stop(); err != nil {
			logger.Warnf("failed stopping web server of [%s]: %s", p.Name(), err)
		}
		delete(n.servers, p.Name())
	}
	p.Stop()
}

func isNotary(p *node.Node) bool {
	return p.ConfigService().GetString("iou.notary") == p.Name()
}
