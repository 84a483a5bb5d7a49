/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package kms loads the signing keys of a node, generating them on first use.
package kms

import (
	"crypto/ed25519"
	"crypto/rand"
	"io"

	"github.com/pkg/errors"

	"github.com/hyperledger-labs/fsc-iou/platform/common/services/logging"
	"github.com/hyperledger-labs/fsc-iou/platform/view/services/kvs"
	"github.com/hyperledger-labs/fsc-iou/platform/view/services/sig"
	"github.com/hyperledger-labs/fsc-iou/platform/view/view"
)

var logger = logging.MustGetLogger("fsc.view.kms")

const keyPrefix = "fsc.kms"

type KVS interface {
	Exists(id string) bool
	Put(id string, state interface{}) error
	Get(id string, state interface{}) error
}

type storedKey struct {
	Seed []byte `json:"seed"`
}

type KMS struct {
	kvs  KVS
	rand io.Reader
}

func New(kvs KVS) *KMS {
	return &KMS{kvs: kvs, rand: rand.Reader}
}

// LoadOrGenerate returns the identity and signer stored under label.
// A new key is generated and stored if none exists, so a restarted node keeps its identity.
func (k *KMS) LoadOrGenerate(label string) (view.Identity, sig.Signer, error) {
	key, err := kvs.CreateCompositeKey(keyPrefix, []string{label})
	if err != nil {
		return nil, nil, errors.Wrapf(err, "invalid key label [%s]", label)
	}

	if k.kvs.Exists(key) {
		stored := &storedKey{}
		if err := k.kvs.Get(key, stored); err != nil {
			return nil, nil, errors.WithMessagef(err, "failed loading key [%s]", label)
		}
		if len(stored.Seed) != ed25519.SeedSize {
			return nil, nil, errors.Errorf("key [%s] is corrupted", label)
		}
		id, signer := sig.NewSigner(ed25519.NewKeyFromSeed(stored.Seed))
		logger.Debugf("loaded key [%s] for [%s]", label, id)
		return id, signer, nil
	}

	_, sk, err := ed25519.GenerateKey(k.rand)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "failed generating key [%s]", label)
	}
	if err := k.kvs.Put(key, &storedKey{Seed: sk.Seed()}); err != nil {
		return nil, nil, errors.WithMessagef(err, "failed storing key [%s]", label)
	}
	id, signer := sig.NewSigner(sk)
	logger.Infof("generated key [%s] for [%s]", label, id)
	return id, signer, nil
}
