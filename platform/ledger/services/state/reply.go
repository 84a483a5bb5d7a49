/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package state

import (
	"github.com/pkg/errors"
)

type ReplyKind string

const (
	ReplyOK          ReplyKind = "ok"
	ReplyRejected    ReplyKind = "rejected"
	ReplyValidation  ReplyKind = "validation"
	ReplyConflict    ReplyKind = "conflict"
	ReplyMalformed   ReplyKind = "malformed"
	ReplyUnavailable ReplyKind = "unavailable"
	ReplyError       ReplyKind = "error"
)

// Reply is the typed answer sent back over a session. Failures travel as a kind and a reason.
type Reply struct {
	Kind            ReplyKind      `json:"kind"`
	Reason          string         `json:"reason,omitempty"`
	Signatures      []Signature    `json:"signatures,omitempty"`
	NotarySignature []byte         `json:"notarySignature,omitempty"`
	Conflict        *ConflictError `json:"conflict,omitempty"`
}

func Accepted(signatures ...Signature) *Reply {
	return &Reply{Kind: ReplyOK, Signatures: signatures}
}

func Rejected(reason string) *Reply {
	return &Reply{Kind: ReplyRejected, Reason: reason}
}

// ReplyFromError encodes err into a reply preserving its kind
func ReplyFromError(err error) *Reply {
	var conflict *ConflictError
	switch {
	case errors.As(err, &conflict):
		return &Reply{Kind: ReplyConflict, Reason: err.Error(), Conflict: conflict}
	case errors.Is(err, ErrValidation):
		return &Reply{Kind: ReplyValidation, Reason: err.Error()}
	case errors.Is(err, ErrMalformedSignatureSet):
		return &Reply{Kind: ReplyMalformed, Reason: err.Error()}
	case errors.Is(err, ErrNotaryUnavailable):
		return &Reply{Kind: ReplyUnavailable, Reason: err.Error()}
	case errors.Is(err, ErrCounterpartyRejected):
		return &Reply{Kind: ReplyRejected, Reason: err.Error()}
	default:
		return &Reply{Kind: ReplyError, Reason: err.Error()}
	}
}

// Err decodes the reply into the error it carries, nil if the reply is a success
func (r *Reply) Err() error {
	switch r.Kind {
	case ReplyOK:
		return nil
	case ReplyConflict:
		if r.Conflict != nil {
			return r.Conflict
		}
		return errors.Wrap(ErrConflict, r.Reason)
	case ReplyValidation:
		return &Violation{Contract: "remote", Reason: r.Reason}
	case ReplyMalformed:
		return errors.Wrap(ErrMalformedSignatureSet, r.Reason)
	case ReplyUnavailable:
		return errors.Wrap(ErrNotaryUnavailable, r.Reason)
	case ReplyRejected:
		return errors.Wrap(ErrCounterpartyRejected, r.Reason)
	default:
		return errors.Errorf("remote failure: %s", r.Reason)
	}
}
