/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package contract holds the rules deciding which transactions over obligations and cash are legal
package contract

import (
	"github.com/pkg/errors"

	"github.com/hyperledger-labs/fsc-iou/platform/ledger/services/state"
)

// Register adds the IOU and cash contracts to r
func Register(r *state.Registry) error {
	if err := r.Register(IOU, &IOUContract{}); err != nil {
		return errors.WithMessagef(err, "failed registering contract [%s]", IOU)
	}
	if err := r.Register(Cash, &CashContract{}); err != nil {
		return errors.WithMessagef(err, "failed registering contract [%s]", Cash)
	}
	return nil
}
