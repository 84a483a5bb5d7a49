/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package web exposes the IOU flows of a node over http and pushes what the node commits
// to the monitoring web sockets.
package web

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/hyperledger-labs/fsc-iou/platform/common/services/logging"
	"github.com/hyperledger-labs/fsc-iou/platform/ledger/services/finality"
	"github.com/hyperledger-labs/fsc-iou/platform/view/services/events"
)

var webLogger = logging.MustGetLogger("iou.web")

const (
	// AddressConfigKey is the configuration key of the address the server listens on
	AddressConfigKey = "fsc.web.address"

	monitorBufferSize = 256
	shutdownTimeout   = 5 * time.Second
)

type Server struct {
	address  string
	node     Node
	monitor  *Monitor
	handler  *HttpHandler
	server   *http.Server
	listener net.Listener
}

// NewServer returns a server for the flows of node, listening on address once started
func NewServer(address string, node Node) *Server {
	monitor := NewMonitor(monitorBufferSize)
	handler := NewHttpHandler(webLogger)
	NewControllers(node, monitor).Register(handler)
	return &Server{
		address: address,
		node:    node,
		monitor: monitor,
		handler: handler,
	}
}

// Handler returns the router of the server, usable without listening
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) Monitor() *Monitor {
	return s.monitor
}

// Start subscribes the monitor to the committed transactions and starts serving
func (s *Server) Start() error {
	subscriber, err := events.GetSubscriber(s.node)
	if err != nil {
		return errors.WithMessage(err, "failed getting event subscriber")
	}
	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return errors.Wrapf(err, "failed listening on [%s]", s.address)
	}
	s.listener = listener
	subscriber.Subscribe(finality.CommittedTopic, s.monitor)
	s.monitor.Start()

	s.server = &http.Server{Handler: s.handler}
	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			webLogger.Errorf("web server on [%s] stopped: %s", s.Addr(), err)
		}
	}()
	webLogger.Infof("serving on [%s]", s.Addr())
	return nil
}

// Addr returns the address the server listens on, the configured one until started
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.address
}

func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}
	if subscriber, err := events.GetSubscriber(s.node); err == nil {
		subscriber.Unsubscribe(finality.CommittedTopic, s.monitor)
	}
	s.monitor.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.server.Shutdown(ctx)
}
