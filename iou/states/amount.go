/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package states

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/text/currency"
)

// Amount is a fixed-point quantity of a currency, expressed in minor units
type Amount struct {
	Quantity int64  `json:"quantity"`
	Currency string `json:"currency"`
}

// NewAmount returns an amount of quantity minor units of cur
func NewAmount(quantity int64, cur string) (Amount, error) {
	unit, err := currency.ParseISO(cur)
	if err != nil {
		return Amount{}, errors.Wrapf(err, "invalid currency [%s]", cur)
	}
	return Amount{Quantity: quantity, Currency: unit.String()}, nil
}

// FromMajor returns the amount of major units of cur, 1000 EUR being 100000 minor units
func FromMajor(major int64, cur string) (Amount, error) {
	unit, err := currency.ParseISO(cur)
	if err != nil {
		return Amount{}, errors.Wrapf(err, "invalid currency [%s]", cur)
	}
	factor := pow10(scale(unit))
	if major > math.MaxInt64/factor || major < math.MinInt64/factor {
		return Amount{}, errors.Errorf("amount [%d %s] out of range", major, cur)
	}
	return Amount{Quantity: major * factor, Currency: unit.String()}, nil
}

// MustAmount is NewAmount panicking on invalid currencies
func MustAmount(quantity int64, cur string) Amount {
	a, err := NewAmount(quantity, cur)
	if err != nil {
		panic(err)
	}
	return a
}

// Zero returns the zero amount of the same currency
func (a Amount) Zero() Amount {
	return Amount{Currency: a.Currency}
}

func (a Amount) IsPositive() bool {
	return a.Quantity > 0
}

func (a Amount) IsZero() bool {
	return a.Quantity == 0
}

// Validate checks that the currency is a known ISO code
func (a Amount) Validate() error {
	unit, err := currency.ParseISO(a.Currency)
	if err != nil {
		return errors.Wrapf(err, "invalid currency [%s]", a.Currency)
	}
	if unit.String() != a.Currency {
		return errors.Errorf("currency [%s] is not canonical, expected [%s]", a.Currency, unit)
	}
	return nil
}

func (a Amount) Plus(b Amount) (Amount, error) {
	if err := a.sameCurrency(b); err != nil {
		return Amount{}, err
	}
	if (b.Quantity > 0 && a.Quantity > math.MaxInt64-b.Quantity) || (b.Quantity < 0 && a.Quantity < math.MinInt64-b.Quantity) {
		return Amount{}, errors.Errorf("overflow adding [%s] to [%s]", b, a)
	}
	return Amount{Quantity: a.Quantity + b.Quantity, Currency: a.Currency}, nil
}

func (a Amount) Minus(b Amount) (Amount, error) {
	if err := a.sameCurrency(b); err != nil {
		return Amount{}, err
	}
	if (b.Quantity < 0 && a.Quantity > math.MaxInt64+b.Quantity) || (b.Quantity > 0 && a.Quantity < math.MinInt64+b.Quantity) {
		return Amount{}, errors.Errorf("overflow subtracting [%s] from [%s]", b, a)
	}
	return Amount{Quantity: a.Quantity - b.Quantity, Currency: a.Currency}, nil
}

// Cmp returns -1, 0 or +1 as a is less, equal or greater than b.
// Amounts of different currencies are not comparable.
func (a Amount) Cmp(b Amount) (int, error) {
	if err := a.sameCurrency(b); err != nil {
		return 0, err
	}
	switch {
	case a.Quantity < b.Quantity:
		return -1, nil
	case a.Quantity > b.Quantity:
		return 1, nil
	default:
		return 0, nil
	}
}

// String renders the amount in major units, 1000.00 EUR
func (a Amount) String() string {
	unit, err := currency.ParseISO(a.Currency)
	if err != nil {
		return fmt.Sprintf("%d %s", a.Quantity, a.Currency)
	}
	s := scale(unit)
	if s == 0 {
		return fmt.Sprintf("%d %s", a.Quantity, a.Currency)
	}
	sign := ""
	q := a.Quantity
	if q < 0 {
		sign = "-"
		q = -q
	}
	factor := pow10(s)
	minor := strconv.FormatInt(q%factor, 10)
	return fmt.Sprintf("%s%d.%s%s %s", sign, q/factor, strings.Repeat("0", s-len(minor)), minor, a.Currency)
}

func (a Amount) sameCurrency(b Amount) error {
	if a.Currency != b.Currency {
		return errors.Errorf("currency mismatch [%s] != [%s]", a.Currency, b.Currency)
	}
	return nil
}

func scale(unit currency.Unit) int {
	s, _ := currency.Standard.Rounding(unit)
	return s
}

func pow10(n int) int64 {
	r := int64(1)
	for i := 0; i < n; i++ {
		r *= 10
	}
	return r
}
