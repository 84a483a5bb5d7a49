/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package state

import (
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"

	"github.com/hyperledger-labs/fsc-iou/pkg/utils"
	"github.com/hyperledger-labs/fsc-iou/platform/view/services/hash"
	"github.com/hyperledger-labs/fsc-iou/platform/view/services/sig"
	"github.com/hyperledger-labs/fsc-iou/platform/view/view"
)

// StateRef points to an output of a committed transaction
type StateRef struct {
	TxID  string `json:"txId"`
	Index int    `json:"index"`
}

func (r StateRef) String() string {
	return fmt.Sprintf("%s:%d", r.TxID, r.Index)
}

// Participant is implemented by the states that know which parties must be informed of them
type Participant interface {
	Participants() view.Identities
}

// Linear is implemented by the states that evolve through versions sharing the same identifier
type Linear interface {
	GetLinearID() string
}

// TransactionState is an output of a transaction, the JSON encoding of a state governed by Contract
type TransactionState struct {
	Contract     string          `json:"contract"`
	LinearID     string          `json:"linearId,omitempty"`
	Participants view.Identities `json:"participants"`
	Data         json.RawMessage `json:"data"`
}

// Unmarshal decodes the state data into v
func (s *TransactionState) Unmarshal(v interface{}) error {
	if err := json.Unmarshal(s.Data, v); err != nil {
		return errors.Wrapf(err, "failed unmarshalling state of contract [%s]", s.Contract)
	}
	return nil
}

// StateAndRef is a committed state together with its reference
type StateAndRef struct {
	Ref   StateRef         `json:"ref"`
	State TransactionState `json:"state"`
}

// Command tells the contracts which transition the transaction performs and who must sign it
type Command struct {
	Contract string          `json:"contract"`
	Kind     string          `json:"kind"`
	Signers  view.Identities `json:"signers"`
}

type Signature struct {
	Signer view.Identity `json:"signer"`
	Sigma  []byte        `json:"sigma"`
}

// Transaction consumes committed states and produces new ones.
// Its ID is the hash of its content, signatures excluded. Signatures are taken over the ID.
type Transaction struct {
	Nonce           string             `json:"nonce"`
	Notary          view.Identity      `json:"notary"`
	Inputs          []StateAndRef      `json:"inputs"`
	Outputs         []TransactionState `json:"outputs"`
	Command         Command            `json:"command"`
	Signatures      []Signature        `json:"signatures,omitempty"`
	NotarySignature []byte             `json:"notarySignature,omitempty"`
	// Dependencies are the notarized transactions producing the inputs
	Dependencies []*Transaction `json:"dependencies,omitempty"`
}

func NewTransaction(notary view.Identity) *Transaction {
	return &Transaction{
		Nonce:  utils.GenerateUUID(),
		Notary: notary,
	}
}

// content is the part of the transaction covered by the ID
type content struct {
	Nonce   string             `json:"nonce"`
	Notary  view.Identity      `json:"notary"`
	Inputs  []StateAndRef      `json:"inputs"`
	Outputs []TransactionState `json:"outputs"`
	Command Command            `json:"command"`
}

// ID returns the hex encoded SHA-256 of the canonical encoding of the transaction content
func (t *Transaction) ID() string {
	raw, err := json.Marshal(&content{
		Nonce:   t.Nonce,
		Notary:  t.Notary,
		Inputs:  t.Inputs,
		Outputs: t.Outputs,
		Command: t.Command,
	})
	if err != nil {
		panic(fmt.Sprintf("cannot marshal transaction content: %s", err))
	}
	return hash.SHA256Hex(raw)
}

func (t *Transaction) AddInput(in *StateAndRef) {
	t.Inputs = append(t.Inputs, *in)
	t.Signatures = nil
}

// AddOutput appends state as an output governed by contract
func (t *Transaction) AddOutput(contract string, state Participant) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return errors.Wrapf(err, "failed marshalling output for contract [%s]", contract)
	}
	out := TransactionState{
		Contract:     contract,
		Participants: state.Participants(),
		Data:         raw,
	}
	if l, ok := state.(Linear); ok {
		out.LinearID = l.GetLinearID()
	}
	t.Outputs = append(t.Outputs, out)
	t.Signatures = nil
	return nil
}

func (t *Transaction) SetCommand(contract, kind string, signers ...view.Identity) {
	t.Command = Command{Contract: contract, Kind: kind, Signers: view.Identities(signers).Dedup()}
	t.Signatures = nil
}

// InputsOf returns the inputs governed by contract
func (t *Transaction) InputsOf(contract string) []StateAndRef {
	var res []StateAndRef
	for _, in := range t.Inputs {
		if in.State.Contract == contract {
			res = append(res, in)
		}
	}
	return res
}

// OutputsOf returns the outputs governed by contract
func (t *Transaction) OutputsOf(contract string) []TransactionState {
	var res []TransactionState
	for _, out := range t.Outputs {
		if out.Contract == contract {
			res = append(res, out)
		}
	}
	return res
}

// OutputRef returns the reference the i-th output gets once the transaction is committed
func (t *Transaction) OutputRef(i int) StateRef {
	return StateRef{TxID: t.ID(), Index: i}
}

// Sign appends the signature of signer over the transaction ID, replacing a previous one by the same identity
func (t *Transaction) Sign(id view.Identity, signer sig.Signer) error {
	sigma, err := signer.Sign([]byte(t.ID()))
	if err != nil {
		return errors.Wrapf(err, "failed signing transaction [%s]", t.ID())
	}
	t.AppendSignature(Signature{Signer: id, Sigma: sigma})
	return nil
}

func (t *Transaction) AppendSignature(s Signature) {
	for i, existing := range t.Signatures {
		if existing.Signer.Equal(s.Signer) {
			t.Signatures[i] = s
			return
		}
	}
	t.Signatures = append(t.Signatures, s)
}

func (t *Transaction) HasBeenSignedBy(id view.Identity) bool {
	for _, s := range t.Signatures {
		if s.Signer.Equal(id) {
			return true
		}
	}
	return false
}

// MissingSigners returns the required signers that did not sign yet
func (t *Transaction) MissingSigners() view.Identities {
	return t.Command.Signers.Filter(func(id view.Identity) bool {
		return !t.HasBeenSignedBy(id)
	})
}

// VerifierProvider returns the verifier of an identity
type VerifierProvider interface {
	GetVerifier(identity view.Identity) (sig.Verifier, error)
}

// VerifySignatures checks that the signers are exactly the required signers and that every signature is valid
func (t *Transaction) VerifySignatures(vp VerifierProvider) error {
	if len(t.Command.Signers) == 0 {
		return errors.Wrapf(ErrMalformedSignatureSet, "transaction [%s] has no required signers", t.ID())
	}
	signers := make(view.Identities, 0, len(t.Signatures))
	for _, s := range t.Signatures {
		if signers.Contain(s.Signer) {
			return errors.Wrapf(ErrMalformedSignatureSet, "duplicate signature by [%s]", s.Signer)
		}
		signers = append(signers, s.Signer)
	}
	if len(signers) != len(t.Command.Signers) || !signers.Match(t.Command.Signers) {
		return errors.Wrapf(ErrMalformedSignatureSet, "signers of [%s] do not match the required signers, missing [%v]", t.ID(), t.MissingSigners())
	}
	id := []byte(t.ID())
	for _, s := range t.Signatures {
		if err := VerifySignature(vp, s, id); err != nil {
			return err
		}
	}
	return nil
}

// VerifySignature checks a single signature over message
func VerifySignature(vp VerifierProvider, s Signature, message []byte) error {
	v, err := vp.GetVerifier(s.Signer)
	if err != nil {
		return errors.Wrapf(ErrMalformedSignatureSet, "no verifier for [%s]: %s", s.Signer, err)
	}
	if err := v.Verify(message, s.Sigma); err != nil {
		return errors.Wrapf(ErrMalformedSignatureSet, "invalid signature by [%s]: %s", s.Signer, err)
	}
	return nil
}

// Participants returns the parties to inform about the transaction: the participants of
// inputs and outputs, and the required signers
func (t *Transaction) Participants() view.Identities {
	var res view.Identities
	for _, in := range t.Inputs {
		res = append(res, in.State.Participants...)
	}
	for _, out := range t.Outputs {
		res = append(res, out.Participants...)
	}
	res = append(res, t.Command.Signers...)
	return res.Dedup()
}

func (t *Transaction) Bytes() ([]byte, error) {
	return json.Marshal(t)
}

func (t *Transaction) String() string {
	return fmt.Sprintf("tx [%s][%s.%s] inputs [%d] outputs [%d] signatures [%d/%d]",
		t.ID(), t.Command.Contract, t.Command.Kind, len(t.Inputs), len(t.Outputs), len(t.Signatures), len(t.Command.Signers))
}
