/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package states

import (
	"github.com/pkg/errors"

	"github.com/hyperledger-labs/fsc-iou/platform/view/view"
)

// Cash is an amount of money owned by Owner, backed by Issuer
type Cash struct {
	Amount Amount        `json:"amount"`
	Owner  view.Identity `json:"owner"`
	Issuer view.Identity `json:"issuer"`
}

func (c *Cash) Participants() view.Identities {
	return view.Identities{c.Owner}
}

func (c *Cash) Validate() error {
	if c.Owner.IsNone() || c.Issuer.IsNone() {
		return errors.New("owner and issuer must be set")
	}
	if err := c.Amount.Validate(); err != nil {
		return err
	}
	if !c.Amount.IsPositive() {
		return errors.Errorf("cash amount [%s] must be positive", c.Amount)
	}
	return nil
}
