/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package sig

import (
	"crypto/ed25519"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap/zapcore"

	"github.com/hyperledger-labs/fsc-iou/platform/common/services/logging"
	"github.com/hyperledger-labs/fsc-iou/platform/view/view"
)

var logger = logging.MustGetLogger("fsc.view.sig")

var (
	// ErrNoSigner is returned when no signer is bound to an identity
	ErrNoSigner = errors.New("signer not found")
	// ErrInvalidSignature is returned by verifiers on signature mismatch
	ErrInvalidSignature = errors.New("invalid signature")
)

// Signer is an interface which wraps the Sign method.
type Signer interface {
	// Sign signs message bytes and returns the signature or an error on failure.
	Sign(message []byte) ([]byte, error)
}

// Verifier is an interface which wraps the Verify method.
type Verifier interface {
	// Verify verifies the signature over the passed message.
	Verify(message, sigma []byte) error
}

// Service binds the identities of this node to their signers.
// Identities are ed25519 public keys, any identity can be turned into a verifier.
type Service struct {
	lock    sync.RWMutex
	signers map[string]Signer
}

func NewService() *Service {
	return &Service{signers: map[string]Signer{}}
}

func (o *Service) RegisterSigner(identity view.Identity, signer Signer) error {
	if signer == nil {
		return errors.New("invalid signer, expected a valid instance")
	}

	idHash := identity.UniqueID()
	o.lock.Lock()
	defer o.lock.Unlock()
	if _, ok := o.signers[idHash]; ok {
		logger.Warnf("another signer bound to [%s]", identity)
		return nil
	}
	o.signers[idHash] = signer
	if logger.IsEnabledFor(zapcore.DebugLevel) {
		logger.Debugf("signer for [id:%s] registered", idHash)
	}
	return nil
}

// IsMe returns true if a signer is bound to the passed identity
func (o *Service) IsMe(identity view.Identity) bool {
	o.lock.RLock()
	defer o.lock.RUnlock()
	_, ok := o.signers[identity.UniqueID()]
	return ok
}

func (o *Service) GetSigner(identity view.Identity) (Signer, error) {
	o.lock.RLock()
	defer o.lock.RUnlock()
	signer, ok := o.signers[identity.UniqueID()]
	if !ok {
		return nil, errors.Wrapf(ErrNoSigner, "identity [%s]", identity)
	}
	return signer, nil
}

func (o *Service) GetVerifier(identity view.Identity) (Verifier, error) {
	return NewVerifier(identity)
}

// NewVerifier returns the verifier of the passed identity
func NewVerifier(identity view.Identity) (Verifier, error) {
	if len(identity) != ed25519.PublicKeySize {
		return nil, errors.Errorf("identity [%s] is not an ed25519 public key", identity)
	}
	return &ed25519Verifier{pk: ed25519.PublicKey(identity)}, nil
}

// NewSigner returns the signer for the passed private key together with its identity
func NewSigner(sk ed25519.PrivateKey) (view.Identity, Signer) {
	return view.Identity(sk.Public().(ed25519.PublicKey)), &ed25519Signer{sk: sk}
}

type ed25519Signer struct {
	sk ed25519.PrivateKey
}

func (s *ed25519Signer) Sign(message []byte) ([]byte, error) {
	return ed25519.Sign(s.sk, message), nil
}

type ed25519Verifier struct {
	pk ed25519.PublicKey
}

func (v *ed25519Verifier) Verify(message, sigma []byte) error {
	if !ed25519.Verify(v.pk, message, sigma) {
		return ErrInvalidSignature
	}
	return nil
}

var serviceLookUp = &Service{}

// GetService returns the signature service registered in the passed service provider
func GetService(sp view.ServiceProvider) (*Service, error) {
	s, err := sp.GetService(serviceLookUp)
	if err != nil {
		return nil, errors.Wrap(err, "cannot get signature service from registry")
	}
	return s.(*Service), nil
}
