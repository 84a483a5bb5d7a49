/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package cash

import (
	"github.com/pkg/errors"
	"go.uber.org/zap/zapcore"

	"github.com/hyperledger-labs/fsc-iou/iou/contract"
	"github.com/hyperledger-labs/fsc-iou/iou/states"
	"github.com/hyperledger-labs/fsc-iou/platform/common/services/logging"
	"github.com/hyperledger-labs/fsc-iou/platform/ledger/services/state"
	"github.com/hyperledger-labs/fsc-iou/platform/view/view"
)

var logger = logging.MustGetLogger("iou.cash")

// Vault gives access to the unconsumed states of a party
type Vault interface {
	Unconsumed(contract string, filter func(*state.StateAndRef) bool) ([]*state.StateAndRef, error)
}

// Wallet selects and spends the cash a party owns
type Wallet struct {
	vault Vault
}

func NewWallet(vault Vault) *Wallet {
	return &Wallet{vault: vault}
}

// Coin is an unconsumed cash state
type Coin struct {
	Ref  state.StateAndRef
	Cash *states.Cash
}

// Coins returns the unconsumed cash of owner in currency, ordered by reference
func (w *Wallet) Coins(owner view.Identity, currency string) ([]*Coin, error) {
	refs, err := w.vault.Unconsumed(contract.Cash, nil)
	if err != nil {
		return nil, errors.WithMessagef(err, "failed loading cash")
	}
	var coins []*Coin
	for _, ref := range refs {
		c := &states.Cash{}
		if err := ref.State.Unmarshal(c); err != nil {
			return nil, err
		}
		if !c.Owner.Equal(owner) || c.Amount.Currency != currency {
			continue
		}
		coins = append(coins, &Coin{Ref: *ref, Cash: c})
	}
	return coins, nil
}

// Balances returns the cash owned by owner, per currency
func (w *Wallet) Balances(owner view.Identity) (map[string]states.Amount, error) {
	refs, err := w.vault.Unconsumed(contract.Cash, nil)
	if err != nil {
		return nil, errors.WithMessagef(err, "failed loading cash")
	}
	balances := map[string]states.Amount{}
	for _, ref := range refs {
		c := &states.Cash{}
		if err := ref.State.Unmarshal(c); err != nil {
			return nil, err
		}
		if !c.Owner.Equal(owner) {
			continue
		}
		b, ok := balances[c.Amount.Currency]
		if !ok {
			b = c.Amount.Zero()
		}
		if balances[c.Amount.Currency], err = b.Plus(c.Amount); err != nil {
			return nil, err
		}
	}
	return balances, nil
}

// Balance returns the cash owned by owner in currency
func (w *Wallet) Balance(owner view.Identity, currency string) (states.Amount, error) {
	coins, err := w.Coins(owner, currency)
	if err != nil {
		return states.Amount{}, err
	}
	return sum(currency, coins)
}

// SelectPaymentInputs picks, first-fit in reference order, the coins of owner covering amount.
// The change is what the selected coins exceed amount by.
func (w *Wallet) SelectPaymentInputs(owner view.Identity, amount states.Amount) ([]*Coin, states.Amount, error) {
	if !amount.IsPositive() {
		return nil, states.Amount{}, state.NewViolation(contract.Cash, "payment [%s] must be positive", amount)
	}
	coins, err := w.Coins(owner, amount.Currency)
	if err != nil {
		return nil, states.Amount{}, err
	}
	var selected []*Coin
	total := amount.Zero()
	for _, coin := range coins {
		if total.Quantity >= amount.Quantity {
			break
		}
		if total, err = total.Plus(coin.Cash.Amount); err != nil {
			return nil, states.Amount{}, err
		}
		selected = append(selected, coin)
	}
	if total.Quantity < amount.Quantity {
		if total.IsZero() {
			return nil, states.Amount{}, errors.Wrapf(state.ErrInsufficientFunds, "borrower has no %s to settle", amount.Currency)
		}
		return nil, states.Amount{}, errors.Wrapf(state.ErrInsufficientFunds, "borrower has only %s but needs %s to settle", total, amount)
	}
	change, err := total.Minus(amount)
	if err != nil {
		return nil, states.Amount{}, err
	}
	if logger.IsEnabledFor(zapcore.DebugLevel) {
		logger.Debugf("selected [%d] coins for [%s], change [%s]", len(selected), amount, change)
	}
	return selected, change, nil
}

// GenerateSpend adds to tx the coins of owner paying amount to recipient, and the change back to owner.
// Coins of different issuers are not interchangeable: the payment and the change get one output per issuer.
// It returns the identities that must sign for the consumed coins.
func (w *Wallet) GenerateSpend(tx *state.Transaction, owner, recipient view.Identity, amount states.Amount) (view.Identities, error) {
	coins, _, err := w.SelectPaymentInputs(owner, amount)
	if err != nil {
		return nil, err
	}
	var signers view.Identities
	for _, coin := range coins {
		tx.AddInput(&coin.Ref)
		signers = append(signers, coin.Cash.Owner)
	}

	remaining := amount
	for _, group := range byIssuer(coins) {
		total, err := sum(amount.Currency, group)
		if err != nil {
			return nil, err
		}
		issuer := group[0].Cash.Issuer
		pay := total
		if remaining.Quantity < total.Quantity {
			pay = remaining
		}
		if pay.IsPositive() {
			if err := tx.AddOutput(contract.Cash, &states.Cash{Amount: pay, Owner: recipient, Issuer: issuer}); err != nil {
				return nil, err
			}
			if remaining, err = remaining.Minus(pay); err != nil {
				return nil, err
			}
		}
		change, err := total.Minus(pay)
		if err != nil {
			return nil, err
		}
		if change.IsPositive() {
			if err := tx.AddOutput(contract.Cash, &states.Cash{Amount: change, Owner: owner, Issuer: issuer}); err != nil {
				return nil, err
			}
		}
	}
	return signers.Dedup(), nil
}

// byIssuer groups coins by issuer, in order of first appearance
func byIssuer(coins []*Coin) [][]*Coin {
	var groups [][]*Coin
	index := map[string]int{}
	for _, coin := range coins {
		k := coin.Cash.Issuer.UniqueID()
		i, ok := index[k]
		if !ok {
			i = len(groups)
			index[k] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], coin)
	}
	return groups
}

func sum(currency string, coins []*Coin) (states.Amount, error) {
	total := states.Amount{Currency: currency}
	for _, c := range coins {
		var err error
		if total, err = total.Plus(c.Cash.Amount); err != nil {
			return states.Amount{}, err
		}
	}
	return total, nil
}

var walletLookUp = &Wallet{}

func GetWallet(sp view.ServiceProvider) (*Wallet, error) {
	s, err := sp.GetService(walletLookUp)
	if err != nil {
		return nil, errors.Wrap(err, "cannot get wallet")
	}
	return s.(*Wallet), nil
}
