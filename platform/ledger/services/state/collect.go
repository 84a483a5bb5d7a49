/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package state

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap/zapcore"

	"github.com/hyperledger-labs/fsc-iou/platform/common/services/logging"
	"github.com/hyperledger-labs/fsc-iou/platform/view/services/session"
	"github.com/hyperledger-labs/fsc-iou/platform/view/services/sig"
	"github.com/hyperledger-labs/fsc-iou/platform/view/view"
)

var logger = logging.MustGetLogger("ledger.state")

// CollectStatus is the state of the initiator side of a signature collection
type CollectStatus string

const (
	Built           CollectStatus = "Built"
	LocallySigned   CollectStatus = "LocallySigned"
	Soliciting      CollectStatus = "Soliciting"
	PartiallySigned CollectStatus = "PartiallySigned"
	FullySigned     CollectStatus = "FullySigned"
)

// TransitionListener is notified every time a signature collection changes state
type TransitionListener func(status CollectStatus, tx *Transaction)

type collectEndorsementsView struct {
	tx           *Transaction
	timeout      time.Duration
	onTransition TransitionListener
}

type CollectOption func(*collectEndorsementsView)

// WithTimeout bounds the wait for each counterparty
func WithTimeout(d time.Duration) CollectOption {
	return func(v *collectEndorsementsView) {
		v.timeout = d
	}
}

// WithTransitionListener registers a listener of the collection state changes
func WithTransitionListener(l TransitionListener) CollectOption {
	return func(v *collectEndorsementsView) {
		v.onTransition = l
	}
}

// NewCollectEndorsementsView returns a view that verifies tx, signs it with the local keys among
// its required signers and collects the remaining signatures from the counterparties owning them.
// The view returns the fully signed transaction.
func NewCollectEndorsementsView(tx *Transaction, opts ...CollectOption) *collectEndorsementsView {
	v := &collectEndorsementsView{tx: tx}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

type solicitation struct {
	party view.Identity
	reply *Reply
	err   error
}

func (c *collectEndorsementsView) Call(context view.Context) (interface{}, error) {
	registry, err := GetRegistry(context)
	if err != nil {
		return nil, err
	}
	sigService, err := sig.GetService(context)
	if err != nil {
		return nil, err
	}
	if c.timeout <= 0 {
		settings, _ := GetSettings(context)
		c.timeout = settings.SessionTimeoutOrDefault()
	}

	tx := c.tx
	c.transition(Built)
	if err := registry.Verify(tx); err != nil {
		return nil, errors.WithMessagef(err, "local verification of [%s] failed", tx.ID())
	}
	if resolver := GetTransactionResolver(context); resolver != nil && len(tx.Inputs) != 0 && len(tx.Dependencies) == 0 {
		if err := tx.AttachDependencies(resolver); err != nil {
			return nil, errors.WithMessagef(err, "failed resolving the inputs of [%s]", tx.ID())
		}
	}

	for _, signer := range tx.Command.Signers {
		if !sigService.IsMe(signer) {
			continue
		}
		s, err := sigService.GetSigner(signer)
		if err != nil {
			return nil, err
		}
		if err := tx.Sign(signer, s); err != nil {
			return nil, err
		}
	}
	c.transition(LocallySigned)

	missing := tx.MissingSigners()
	if len(missing) != 0 {
		c.transition(Soliciting)
		if logger.IsEnabledFor(zapcore.DebugLevel) {
			logger.Debugf("collecting [%d] signatures for [%s]", len(missing), tx.ID())
		}

		results := make([]solicitation, len(missing))
		var wg sync.WaitGroup
		wg.Add(len(missing))
		for i, party := range missing {
			go func(i int, party view.Identity) {
				defer wg.Done()
				results[i] = c.solicit(context, party)
			}(i, party)
		}
		wg.Wait()

		if err := c.merge(sigService, results); err != nil {
			return nil, err
		}
	}

	if err := tx.VerifySignatures(sigService); err != nil {
		logger.Errorf("signature set of [%s] is malformed after collection: %s", tx.ID(), err)
		return nil, err
	}
	c.transition(FullySigned)
	return tx, nil
}

func (c *collectEndorsementsView) solicit(context view.Context, party view.Identity) solicitation {
	s, err := session.NewJSON(context, context.Initiator(), party)
	if err != nil {
		return solicitation{party: party, err: errors.Wrapf(ErrSessionTimeout, "cannot reach [%s]: %s", party, err)}
	}
	if err := s.Send(c.tx); err != nil {
		return solicitation{party: party, err: errors.Wrapf(ErrSessionTimeout, "failed sending to [%s]: %s", party, err)}
	}
	reply := &Reply{}
	err = s.ReceiveWithTimeout(reply, c.timeout)
	switch {
	case err == nil:
		return solicitation{party: party, reply: reply}
	case errors.Is(err, session.ErrTimeout):
		return solicitation{party: party, err: errors.Wrapf(ErrSessionTimeout, "[%s] did not answer: %s", party, err)}
	case errors.Is(err, session.ErrRemote):
		return solicitation{party: party, reply: Rejected(err.Error())}
	default:
		return solicitation{party: party, err: err}
	}
}

// merge adds the signatures of the accepting parties. Any rejection fails the whole collection.
func (c *collectEndorsementsView) merge(vp VerifierProvider, results []solicitation) error {
	id := []byte(c.tx.ID())
	var rejections []Rejection
	var transient, failure error
	for _, r := range results {
		if r.err != nil {
			logger.Warnf("solicitation of [%s] failed: %s", r.party, r.err)
			if IsRetryable(r.err) {
				transient = r.err
			} else {
				failure = r.err
			}
			continue
		}
		if r.reply.Kind != ReplyOK {
			rejections = append(rejections, Rejection{Party: r.party, Reason: r.reply.Reason})
			continue
		}
		for _, s := range r.reply.Signatures {
			if !c.tx.Command.Signers.Contain(s.Signer) {
				rejections = append(rejections, Rejection{Party: r.party, Reason: "signature by a party that is not a required signer"})
				break
			}
			if err := VerifySignature(vp, s, id); err != nil {
				rejections = append(rejections, Rejection{Party: r.party, Reason: err.Error()})
				break
			}
			c.tx.AppendSignature(s)
		}
		c.transition(PartiallySigned)
	}

	switch {
	case len(rejections) != 0:
		return &RejectionError{Rejections: rejections}
	case failure != nil:
		return failure
	case transient != nil:
		return transient
	}
	return nil
}

func (c *collectEndorsementsView) transition(status CollectStatus) {
	if c.onTransition != nil {
		c.onTransition(status, c.tx)
	}
}

type receiveTransactionView struct{}

// NewReceiveTransactionView returns a view that reads the transaction sent on the responder session
func NewReceiveTransactionView() *receiveTransactionView {
	return &receiveTransactionView{}
}

func (r *receiveTransactionView) Call(context view.Context) (interface{}, error) {
	tx := &Transaction{}
	if err := session.JSON(context).Receive(tx); err != nil {
		return nil, errors.WithMessage(err, "failed receiving transaction")
	}
	return tx, nil
}

// ReceiveTransaction reads the transaction sent on the responder session of context
func ReceiveTransaction(context view.Context) (*Transaction, error) {
	res, err := context.RunView(NewReceiveTransactionView())
	if err != nil {
		return nil, err
	}
	return res.(*Transaction), nil
}

// AcceptanceFunc is the flow specific check a responder runs before countersigning
type AcceptanceFunc func(context view.Context, tx *Transaction) error

type endorseView struct {
	tx         *Transaction
	acceptance AcceptanceFunc
}

// NewEndorseView returns a view that verifies tx and its inputs, runs acceptance and answers on the responder
// session with the signatures of the local keys among the required signers, or with a rejection.
func NewEndorseView(tx *Transaction, acceptance AcceptanceFunc) *endorseView {
	return &endorseView{tx: tx, acceptance: acceptance}
}

func (e *endorseView) Call(context view.Context) (interface{}, error) {
	s := session.JSON(context)
	registry, err := GetRegistry(context)
	if err != nil {
		return nil, err
	}
	sigService, err := sig.GetService(context)
	if err != nil {
		return nil, err
	}

	reject := func(cause error) (interface{}, error) {
		logger.Infof("rejecting [%s]: %s", e.tx.ID(), cause)
		if err := s.Send(Rejected(cause.Error())); err != nil {
			logger.Errorf("failed sending rejection of [%s]: %s", e.tx.ID(), err)
		}
		return nil, errors.Wrapf(ErrCounterpartyRejected, "rejected [%s]: %s", e.tx.ID(), cause)
	}

	if err := registry.Verify(e.tx); err != nil {
		return reject(err)
	}
	if err := e.tx.VerifyInputs(GetTransactionResolver(context)); err != nil {
		return reject(err)
	}
	if e.acceptance != nil {
		if err := e.acceptance(context, e.tx); err != nil {
			return reject(err)
		}
	}

	var signatures []Signature
	id := []byte(e.tx.ID())
	for _, signer := range e.tx.Command.Signers {
		if !sigService.IsMe(signer) {
			continue
		}
		sk, err := sigService.GetSigner(signer)
		if err != nil {
			return reject(err)
		}
		sigma, err := sk.Sign(id)
		if err != nil {
			return reject(err)
		}
		signatures = append(signatures, Signature{Signer: signer, Sigma: sigma})
	}
	if len(signatures) == 0 {
		return reject(errors.New("not a required signer"))
	}
	for _, s := range signatures {
		e.tx.AppendSignature(s)
	}
	if err := s.Send(Accepted(signatures...)); err != nil {
		return nil, errors.Wrapf(err, "failed sending signatures of [%s]", e.tx.ID())
	}
	return e.tx, nil
}
