/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package web

import (
	"net/http"

	"github.com/pkg/errors"

	"github.com/hyperledger-labs/fsc-iou/platform/ledger/services/state"
)

// StatusCode maps the outcome of a flow to the status returned to the client.
// Fatal failures the caller can fix are 4xx, transient ones are 503.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, state.ErrValidation),
		errors.Is(err, state.ErrInsufficientFunds),
		errors.Is(err, state.ErrCounterpartyRejected):
		return http.StatusBadRequest
	case errors.Is(err, state.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, state.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, state.ErrNotaryUnavailable),
		errors.Is(err, state.ErrSessionTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
