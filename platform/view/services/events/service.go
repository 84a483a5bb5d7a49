/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package events

import (
	"github.com/pkg/errors"

	"github.com/hyperledger-labs/fsc-iou/platform/view/view"
)

// Service exposes the event system of a node through its registry
type Service struct {
	EventSystem EventSystem
}

// NewService returns a service over the passed event system
func NewService(system EventSystem) *Service {
	return &Service{EventSystem: system}
}

func (s *Service) GetSubscriber() Subscriber {
	return s.EventSystem
}

func (s *Service) GetPublisher() Publisher {
	return s.EventSystem
}

func lookup(sp view.ServiceProvider) (*Service, error) {
	s, err := sp.GetService(&Service{})
	if err != nil {
		return nil, errors.Wrap(err, "event service not registered")
	}
	service, ok := s.(*Service)
	if !ok || service.EventSystem == nil {
		return nil, errors.New("event service without an event system")
	}
	return service, nil
}

// GetSubscriber returns the subscriber of the node behind sp
func GetSubscriber(sp view.ServiceProvider) (Subscriber, error) {
	s, err := lookup(sp)
	if err != nil {
		return nil, err
	}
	return s.GetSubscriber(), nil
}

// GetPublisher returns the publisher of the node behind sp
func GetPublisher(sp view.ServiceProvider) (Publisher, error) {
	s, err := lookup(sp)
	if err != nil {
		return nil, err
	}
	return s.GetPublisher(), nil
}
