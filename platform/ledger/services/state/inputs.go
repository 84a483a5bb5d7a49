/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package state

import (
	"bytes"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/hyperledger-labs/fsc-iou/platform/view/services/hash"
	"github.com/hyperledger-labs/fsc-iou/platform/view/services/sig"
	"github.com/hyperledger-labs/fsc-iou/platform/view/view"
)

// TransactionResolver returns the committed transactions known locally
type TransactionResolver interface {
	GetTransaction(txID string) (*Transaction, error)
}

// Hash returns the hex encoded SHA-256 of the canonical encoding of the state
func (s *TransactionState) Hash() (string, error) {
	raw, err := s.canonical()
	if err != nil {
		return "", err
	}
	return hash.SHA256Hex(raw), nil
}

// Equal returns true if s and o have the same canonical encoding
func (s *TransactionState) Equal(o *TransactionState) bool {
	a, err := s.canonical()
	if err != nil {
		return false
	}
	b, err := o.canonical()
	if err != nil {
		return false
	}
	return bytes.Equal(a, b)
}

func (s *TransactionState) canonical() ([]byte, error) {
	// re-encoding the data drops the whitespace differences of the raw message
	var data interface{}
	decoder := json.NewDecoder(bytes.NewReader(s.Data))
	decoder.UseNumber()
	if err := decoder.Decode(&data); err != nil {
		return nil, errors.Wrapf(err, "invalid data in state of contract [%s]", s.Contract)
	}
	raw, err := json.Marshal(&struct {
		Contract     string          `json:"contract"`
		LinearID     string          `json:"linearId,omitempty"`
		Participants view.Identities `json:"participants"`
		Data         interface{}     `json:"data"`
	}{s.Contract, s.LinearID, s.Participants, data})
	if err != nil {
		return nil, errors.Wrapf(err, "failed encoding state of contract [%s]", s.Contract)
	}
	return raw, nil
}

// VerifyNotarySignature checks that sigma is the signature of the notary of t over its ID
func (t *Transaction) VerifyNotarySignature(sigma []byte) error {
	v, err := sig.NewVerifier(t.Notary)
	if err != nil {
		return errors.WithMessagef(err, "invalid notary identity for [%s]", t.ID())
	}
	if err := v.Verify([]byte(t.ID()), sigma); err != nil {
		return errors.Wrapf(err, "invalid notary signature on [%s]", t.ID())
	}
	return nil
}

// AttachDependencies ships with t the transactions producing its inputs, as found by resolver,
// so that the parties missing them can check the inputs. Dependencies are not covered by the ID.
func (t *Transaction) AttachDependencies(resolver TransactionResolver) error {
	var deps []*Transaction
	seen := map[string]bool{}
	for _, in := range t.Inputs {
		if seen[in.Ref.TxID] {
			continue
		}
		seen[in.Ref.TxID] = true
		dep, err := resolver.GetTransaction(in.Ref.TxID)
		if err != nil {
			return errors.WithMessagef(err, "cannot resolve input [%s]", in.Ref)
		}
		deps = append(deps, dep.WithoutDependencies())
	}
	t.Dependencies = deps
	return nil
}

// WithoutDependencies returns a shallow copy of t carrying no dependency
func (t *Transaction) WithoutDependencies() *Transaction {
	c := *t
	c.Dependencies = nil
	return &c
}

// VerifyInputs checks that every input carries exactly the output it references.
// The producing transaction is taken from resolver, when it knows it, or from the dependencies
// shipped with t, which must be notarized by the notary of t.
func (t *Transaction) VerifyInputs(resolver TransactionResolver) error {
	seen := map[StateRef]bool{}
	for _, in := range t.Inputs {
		if seen[in.Ref] {
			return NewViolation(t.Command.Contract, "input [%s] consumed twice", in.Ref)
		}
		seen[in.Ref] = true

		producer, err := t.producer(resolver, in.Ref.TxID)
		if err != nil {
			return err
		}
		if in.Ref.Index < 0 || in.Ref.Index >= len(producer.Outputs) {
			return NewViolation(t.Command.Contract, "input [%s] references a missing output", in.Ref)
		}
		if !producer.Outputs[in.Ref.Index].Equal(&in.State) {
			return NewViolation(t.Command.Contract, "input [%s] differs from the committed output it references", in.Ref)
		}
	}
	return nil
}

func (t *Transaction) producer(resolver TransactionResolver, txID string) (*Transaction, error) {
	if resolver != nil {
		tx, err := resolver.GetTransaction(txID)
		if err == nil {
			return tx, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	for _, dep := range t.Dependencies {
		if dep == nil || dep.ID() != txID {
			continue
		}
		if !dep.Notary.Equal(t.Notary) {
			return nil, NewViolation(t.Command.Contract, "input transaction [%s] notarized elsewhere", txID)
		}
		if err := dep.VerifyNotarySignature(dep.NotarySignature); err != nil {
			return nil, NewViolation(t.Command.Contract, "input transaction [%s] not notarized: %s", txID, err)
		}
		return dep, nil
	}
	return nil, NewViolation(t.Command.Contract, "cannot resolve input transaction [%s]", txID)
}

var resolverType = (*TransactionResolver)(nil)

// GetTransactionResolver returns the resolver registered in sp, nil if there is none
func GetTransactionResolver(sp view.ServiceProvider) TransactionResolver {
	s, err := sp.GetService(resolverType)
	if err != nil {
		return nil
	}
	return s.(TransactionResolver)
}
