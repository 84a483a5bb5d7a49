/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package finality

import (
	"github.com/pkg/errors"

	"github.com/hyperledger-labs/fsc-iou/pkg/utils"
	"github.com/hyperledger-labs/fsc-iou/platform/common/services/logging"
	"github.com/hyperledger-labs/fsc-iou/platform/ledger/services/notary"
	"github.com/hyperledger-labs/fsc-iou/platform/ledger/services/state"
	"github.com/hyperledger-labs/fsc-iou/platform/ledger/services/vault"
	"github.com/hyperledger-labs/fsc-iou/platform/view/services/sig"
	"github.com/hyperledger-labs/fsc-iou/platform/view/view"
)

var logger = logging.MustGetLogger("ledger.finality")

type orderingAndFinalityView struct {
	tx       *state.Transaction
	notarize func(tx *state.Transaction) view.View
}

// NewOrderingAndFinalityView returns a view that submits the fully signed tx to its notary,
// retrying while the notary is unavailable, commits the notarized transaction to the local vault
// and distributes it to the other participants. The view returns the committed transaction.
func NewOrderingAndFinalityView(tx *state.Transaction) *orderingAndFinalityView {
	return &orderingAndFinalityView{
		tx: tx,
		notarize: func(tx *state.Transaction) view.View {
			return notary.NewNotarizeView(tx)
		},
	}
}

func (o *orderingAndFinalityView) Call(context view.Context) (interface{}, error) {
	sigService, err := sig.GetService(context)
	if err != nil {
		return nil, err
	}
	v, err := vault.GetVault(context)
	if err != nil {
		return nil, err
	}
	settings, _ := state.GetSettings(context)

	tx := o.tx
	txID := tx.ID()
	if err := tx.VerifySignatures(sigService); err != nil {
		return nil, errors.WithMessagef(err, "cannot submit [%s]", txID)
	}
	if len(tx.Inputs) != 0 && len(tx.Dependencies) == 0 {
		// the participants that never saw the consumed versions check them against these
		if err := tx.AttachDependencies(v); err != nil {
			return nil, errors.WithMessagef(err, "cannot submit [%s]", txID)
		}
	}

	var sigma []byte
	var lastErr error
	runner := utils.NewRetryRunner(settings.NotaryRetriesOrDefault(), settings.RetryDelayOrDefault(), true).WithContext(context.Context())
	err = runner.RunWithErrors(func() (bool, error) {
		res, err := context.RunView(o.notarize(tx))
		if err == nil {
			sigma = res.([]byte)
			return true, nil
		}
		lastErr = err
		if state.IsRetryable(err) {
			logger.Warnf("notary unavailable for [%s], retrying: %s", txID, err)
			return false, err
		}
		return true, err
	})
	if err != nil {
		if lastErr != nil && state.IsRetryable(lastErr) {
			return nil, errors.WithMessagef(lastErr, "giving up on [%s]", txID)
		}
		return nil, err
	}

	tx.NotarySignature = sigma
	if _, err := v.Commit(tx); err != nil {
		return nil, errors.WithMessagef(err, "notarized [%s] but failed committing it locally", txID)
	}
	publishCommitted(context, tx)

	d, err := GetDistributor(context)
	if err != nil {
		logger.Warnf("no distributor, [%s] is not distributed: %s", txID, err)
		return tx, nil
	}
	if err := d.Distribute(context.Context(), tx); err != nil {
		// the outbox keeps the undelivered copies
		logger.Infof("[%s] not yet delivered to every participant: %s", txID, err)
	}
	return tx, nil
}
