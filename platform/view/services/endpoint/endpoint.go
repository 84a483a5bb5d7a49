/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package endpoint is the directory resolving human-readable party names to identities.
package endpoint

import (
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/hyperledger-labs/fsc-iou/platform/common/services/logging"
	"github.com/hyperledger-labs/fsc-iou/platform/view/view"
)

var logger = logging.MustGetLogger("fsc.view.endpoint")

// ErrNotFound is returned when a name or an identity is not bound
var ErrNotFound = errors.New("identity not found")

type Service struct {
	lock   sync.RWMutex
	byName map[string]view.Identity
	byID   map[string]string
}

func NewService() *Service {
	return &Service{
		byName: map[string]view.Identity{},
		byID:   map[string]string{},
	}
}

// Bind binds name to id. Rebinding a name to a different identity fails.
func (r *Service) Bind(name string, id view.Identity) error {
	if len(name) == 0 || id.IsNone() {
		return errors.New("name and identity must be set")
	}

	r.lock.Lock()
	defer r.lock.Unlock()
	if bound, ok := r.byName[name]; ok {
		if bound.Equal(id) {
			return nil
		}
		return errors.Errorf("name [%s] already bound to [%s]", name, bound)
	}
	r.byName[name] = id
	r.byID[id.UniqueID()] = name
	logger.Debugf("bound [%s] to [%s]", name, id)
	return nil
}

// Resolve returns the identity bound to name
func (r *Service) Resolve(name string) (view.Identity, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	id, ok := r.byName[name]
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "no identity bound to [%s]", name)
	}
	return id, nil
}

// Name returns the name bound to id
func (r *Service) Name(id view.Identity) (string, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	name, ok := r.byID[id.UniqueID()]
	if !ok {
		return "", errors.Wrapf(ErrNotFound, "no name bound to [%s]", id)
	}
	return name, nil
}

// NameOrID returns the name bound to id, or the string representation of id
func (r *Service) NameOrID(id view.Identity) string {
	if name, err := r.Name(id); err == nil {
		return name
	}
	return id.String()
}

// Names returns the bound names in lexical order
func (r *Service) Names() []string {
	r.lock.RLock()
	defer r.lock.RUnlock()
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var serviceLookUp = &Service{}

// GetService returns the directory registered in the passed service provider
func GetService(sp view.ServiceProvider) (*Service, error) {
	s, err := sp.GetService(serviceLookUp)
	if err != nil {
		return nil, errors.Wrap(err, "cannot get endpoint service from registry")
	}
	return s.(*Service), nil
}
