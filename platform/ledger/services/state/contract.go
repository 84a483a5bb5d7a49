/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package state

import (
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/hyperledger-labs/fsc-iou/platform/view/view"
)

// Contract decides if a transaction is a legal transition of the states it governs.
// Verify must be pure: same transaction, same answer, no side effects.
type Contract interface {
	Verify(tx *Transaction) error
}

// ContractFunc adapts a function to a Contract
type ContractFunc func(tx *Transaction) error

func (f ContractFunc) Verify(tx *Transaction) error {
	return f(tx)
}

// Registry binds contract names to contracts
type Registry struct {
	lock      sync.RWMutex
	contracts map[string]Contract
}

func NewRegistry() *Registry {
	return &Registry{contracts: map[string]Contract{}}
}

func (r *Registry) Register(name string, contract Contract) error {
	if len(name) == 0 || contract == nil {
		return errors.New("contract name and implementation must be set")
	}
	r.lock.Lock()
	defer r.lock.Unlock()
	if _, ok := r.contracts[name]; ok {
		return errors.Errorf("contract [%s] already registered", name)
	}
	r.contracts[name] = contract
	return nil
}

// Verify runs every contract the transaction touches, through its command, inputs or outputs.
// The first violation is returned.
func (r *Registry) Verify(tx *Transaction) error {
	if len(tx.Command.Kind) == 0 {
		return NewViolation(tx.Command.Contract, "missing command")
	}
	if len(tx.Command.Signers) == 0 {
		return NewViolation(tx.Command.Contract, "command without required signers")
	}
	seen := map[StateRef]bool{}
	for _, in := range tx.Inputs {
		if seen[in.Ref] {
			return NewViolation(in.State.Contract, "input [%s] consumed twice", in.Ref)
		}
		seen[in.Ref] = true
	}

	names := map[string]bool{tx.Command.Contract: true}
	for _, in := range tx.Inputs {
		names[in.State.Contract] = true
	}
	for _, out := range tx.Outputs {
		names[out.Contract] = true
	}
	sorted := make([]string, 0, len(names))
	for name := range names {
		sorted = append(sorted, name)
	}
	sort.Strings(sorted)

	r.lock.RLock()
	defer r.lock.RUnlock()
	for _, name := range sorted {
		c, ok := r.contracts[name]
		if !ok {
			return NewViolation(name, "unknown contract")
		}
		if err := c.Verify(tx); err != nil {
			if errors.Is(err, ErrValidation) {
				return err
			}
			return &Violation{Contract: name, Reason: err.Error()}
		}
	}
	return nil
}

var registryLookUp = &Registry{}

// GetRegistry returns the contract registry registered in the passed service provider
func GetRegistry(sp view.ServiceProvider) (*Registry, error) {
	s, err := sp.GetService(registryLookUp)
	if err != nil {
		return nil, errors.Wrap(err, "cannot get contract registry")
	}
	return s.(*Registry), nil
}
