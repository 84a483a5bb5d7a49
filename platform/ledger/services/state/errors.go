/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package state

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/hyperledger-labs/fsc-iou/platform/view/view"
)

var (
	// ErrValidation is the cause of every contract rule violation. Fatal, never retried.
	ErrValidation = errors.New("validation violation")
	// ErrNotFound is returned when no current version of a state exists
	ErrNotFound = errors.New("not found")
	// ErrAmbiguous is returned when more than one current version of a state exists.
	// It signals a corrupted store and is fatal.
	ErrAmbiguous = errors.New("ambiguous")
	// ErrInsufficientFunds is returned when the payment inputs cannot cover the requested amount
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrCounterpartyRejected is the cause of a RejectionError
	ErrCounterpartyRejected = errors.New("counterparty rejected")
	// ErrConflict is the cause of a ConflictError
	ErrConflict = errors.New("conflict")
	// ErrNotaryUnavailable is returned when the uniqueness authority cannot be reached or does not answer in time
	ErrNotaryUnavailable = errors.New("notary unavailable")
	// ErrSessionTimeout is returned when a counterparty does not answer in time
	ErrSessionTimeout = errors.New("session timeout")
	// ErrMalformedSignatureSet is returned when the signatures do not match the required signers exactly
	ErrMalformedSignatureSet = errors.New("malformed signature set")
)

// IsRetryable returns true if the same attempt can be safely retried
func IsRetryable(err error) bool {
	return errors.Is(err, ErrNotaryUnavailable) || errors.Is(err, ErrSessionTimeout)
}

// Violation is the structured result of a failed contract verification
type Violation struct {
	Contract string
	Reason   string
}

func NewViolation(contract, format string, args ...interface{}) *Violation {
	return &Violation{Contract: contract, Reason: fmt.Sprintf(format, args...)}
}

func (v *Violation) Error() string {
	return fmt.Sprintf("contract [%s] violated: %s", v.Contract, v.Reason)
}

func (v *Violation) Is(target error) bool {
	return target == ErrValidation
}

// Rejection is the answer of a counterparty refusing to sign
type Rejection struct {
	Party  view.Identity
	Reason string
}

// RejectionError collects the rejections of all the sessions of a signature collection
type RejectionError struct {
	Rejections []Rejection
}

func (e *RejectionError) Error() string {
	reasons := make([]string, len(e.Rejections))
	for i, r := range e.Rejections {
		reasons[i] = fmt.Sprintf("[%s]: %s", r.Party, r.Reason)
	}
	return fmt.Sprintf("counterparty rejected: %s", strings.Join(reasons, "; "))
}

func (e *RejectionError) Is(target error) bool {
	return target == ErrCounterpartyRejected
}

// ConflictError reports the input that was already consumed by another committed transaction
type ConflictError struct {
	Ref         StateRef `json:"ref"`
	ConsumingTx string   `json:"consumingTx"`
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict: input [%s] already consumed by [%s]", e.Ref, e.ConsumingTx)
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}
