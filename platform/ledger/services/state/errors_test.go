/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package state

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/hyperledger-labs/fsc-iou/platform/view/view"
)

func TestErrorKinds(t *testing.T) {
	assert.True(t, IsRetryable(errors.Wrap(ErrNotaryUnavailable, "down")))
	assert.True(t, IsRetryable(errors.Wrap(ErrSessionTimeout, "slow")))
	assert.False(t, IsRetryable(NewViolation("iou", "bad")))
	assert.False(t, IsRetryable(&ConflictError{}))
	assert.False(t, IsRetryable(&RejectionError{}))

	rejection := &RejectionError{Rejections: []Rejection{{Party: view.Identity("bob"), Reason: "no"}, {Party: view.Identity("charlie"), Reason: "never"}}}
	assert.True(t, errors.Is(rejection, ErrCounterpartyRejected))
	assert.Contains(t, rejection.Error(), "no")
	assert.Contains(t, rejection.Error(), "never")

	conflict := &ConflictError{Ref: StateRef{TxID: "a", Index: 1}, ConsumingTx: "b"}
	assert.True(t, errors.Is(errors.WithMessage(conflict, "notarize"), ErrConflict))
	assert.False(t, errors.Is(conflict, ErrValidation))
}

func TestReplyRoundTrip(t *testing.T) {
	assert.NoError(t, Accepted().Err())

	conflict := &ConflictError{Ref: StateRef{TxID: "a", Index: 1}, ConsumingTx: "b"}
	var decoded *ConflictError
	assert.True(t, errors.As(ReplyFromError(conflict).Err(), &decoded))
	assert.Equal(t, conflict, decoded)

	for _, c := range []struct {
		err    error
		kind   ReplyKind
		target error
	}{
		{err: NewViolation("iou", "bad"), kind: ReplyValidation, target: ErrValidation},
		{err: errors.Wrap(ErrMalformedSignatureSet, "dup"), kind: ReplyMalformed, target: ErrMalformedSignatureSet},
		{err: errors.Wrap(ErrNotaryUnavailable, "down"), kind: ReplyUnavailable, target: ErrNotaryUnavailable},
		{err: errors.Wrap(ErrCounterpartyRejected, "no"), kind: ReplyRejected, target: ErrCounterpartyRejected},
	} {
		r := ReplyFromError(c.err)
		assert.Equal(t, c.kind, r.Kind)
		assert.True(t, errors.Is(r.Err(), c.target), "kind %s", c.kind)
	}

	r := ReplyFromError(errors.New("disk on fire"))
	assert.Equal(t, ReplyError, r.Kind)
	assert.Contains(t, r.Err().Error(), "disk on fire")
}
