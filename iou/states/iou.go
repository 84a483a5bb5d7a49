/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package states

import (
	"github.com/pkg/errors"

	"github.com/hyperledger-labs/fsc-iou/pkg/utils"
	"github.com/hyperledger-labs/fsc-iou/platform/view/view"
)

// IOU models an obligation of the borrower to pay Amount to the lender
type IOU struct {
	// LinearID is shared by every version of the obligation
	LinearID string `json:"linearId"`
	// Lender is owed the amount
	Lender view.Identity `json:"lender"`
	// Borrower owes the amount
	Borrower view.Identity `json:"borrower"`
	// Amount is the face value of the obligation
	Amount Amount `json:"amount"`
	// Paid is the part of the face value settled so far
	Paid Amount `json:"paid"`
}

// NewIOU returns a fresh, unpaid obligation with a new linear identifier
func NewIOU(amount Amount, lender, borrower view.Identity) *IOU {
	return &IOU{
		LinearID: utils.GenerateUUID(),
		Lender:   lender,
		Borrower: borrower,
		Amount:   amount,
		Paid:     amount.Zero(),
	}
}

func (i *IOU) Participants() view.Identities {
	return view.Identities{i.Lender, i.Borrower}
}

func (i *IOU) GetLinearID() string {
	return i.LinearID
}

// WithNewLender returns a copy of the obligation owed to lender
func (i *IOU) WithNewLender(lender view.Identity) *IOU {
	c := *i
	c.Lender = lender
	return &c
}

// Pay returns a copy of the obligation with amount added to the paid part.
// Paying more than the remaining amount fails.
func (i *IOU) Pay(amount Amount) (*IOU, error) {
	if !amount.IsPositive() {
		return nil, errors.Errorf("payment [%s] must be positive", amount)
	}
	paid, err := i.Paid.Plus(amount)
	if err != nil {
		return nil, err
	}
	if c, err := paid.Cmp(i.Amount); err != nil {
		return nil, err
	} else if c > 0 {
		return nil, errors.Errorf("payment [%s] exceeds the remaining [%s]", amount, i.Remaining())
	}
	c := *i
	c.Paid = paid
	return &c, nil
}

// Remaining returns what the borrower still owes
func (i *IOU) Remaining() Amount {
	r, err := i.Amount.Minus(i.Paid)
	if err != nil {
		return i.Amount.Zero()
	}
	return r
}

func (i *IOU) IsFullyPaid() bool {
	return i.Paid.Quantity == i.Amount.Quantity && i.Paid.Currency == i.Amount.Currency
}

// Validate checks the invariants every version of an obligation satisfies
func (i *IOU) Validate() error {
	if len(i.LinearID) == 0 {
		return errors.New("missing linear id")
	}
	if i.Lender.IsNone() || i.Borrower.IsNone() {
		return errors.New("lender and borrower must be set")
	}
	if i.Lender.Equal(i.Borrower) {
		return errors.New("lender and borrower must differ")
	}
	if err := i.Amount.Validate(); err != nil {
		return err
	}
	if !i.Amount.IsPositive() {
		return errors.Errorf("amount [%s] must be positive", i.Amount)
	}
	if i.Paid.Currency != i.Amount.Currency {
		return errors.Errorf("paid [%s] and amount [%s] must have the same currency", i.Paid, i.Amount)
	}
	if i.Paid.Quantity < 0 || i.Paid.Quantity > i.Amount.Quantity {
		return errors.Errorf("paid [%s] must be between zero and [%s]", i.Paid, i.Amount)
	}
	return nil
}
