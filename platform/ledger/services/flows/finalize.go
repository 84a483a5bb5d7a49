/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package flows

import (
	"context"

	"github.com/pkg/errors"

	"github.com/hyperledger-labs/fsc-iou/platform/ledger/services/finality"
	"github.com/hyperledger-labs/fsc-iou/platform/ledger/services/state"
	"github.com/hyperledger-labs/fsc-iou/platform/view/view"
)

var collectStatuses = map[state.CollectStatus]Status{
	state.LocallySigned: LocallySigned,
	state.Soliciting:    Soliciting,
	state.FullySigned:   FullySigned,
}

// Finalize drives tx through signature collection, notarization, local commit and distribution,
// recording every step of the attempt. The committed transaction is returned.
// If the notary stays unavailable, the record remains Notarizing and is resumed by recovery.
func Finalize(context view.Context, kind string, tx *state.Transaction, opts ...state.CollectOption) (*state.Transaction, error) {
	recorder, err := GetRecorder(context)
	if err != nil {
		return nil, err
	}
	rec, err := recorder.Start(kind, tx)
	if err != nil {
		return nil, err
	}

	listener := func(status state.CollectStatus, tx *state.Transaction) {
		s, ok := collectStatuses[status]
		if !ok {
			return
		}
		if err := recorder.Transition(rec, s, tx); err != nil {
			logger.Errorf("failed recording [%s] for attempt [%s]: %s", s, rec.ID, err)
		}
	}
	res, err := context.RunView(state.NewCollectEndorsementsView(tx, append(opts, state.WithTransitionListener(listener))...))
	if err != nil {
		return nil, fail(recorder, rec, err)
	}
	signed := res.(*state.Transaction)

	if err := recorder.Transition(rec, Notarizing, signed); err != nil {
		return nil, err
	}
	res, err = context.RunView(finality.NewOrderingAndFinalityView(signed))
	if err != nil {
		if state.IsRetryable(err) {
			if err := recorder.Note(rec, err); err != nil {
				logger.Errorf("failed recording error of attempt [%s]: %s", rec.ID, err)
			}
			return nil, err
		}
		return nil, fail(recorder, rec, err)
	}
	committed := res.(*state.Transaction)
	if err := recorder.Transition(rec, Committed, committed); err != nil {
		logger.Errorf("[%s] committed but failed recording it: %s", committed.ID(), err)
	}
	return committed, nil
}

func fail(recorder *Recorder, rec *Record, cause error) error {
	if err := recorder.Fail(rec, cause); err != nil {
		logger.Errorf("failed recording failure of attempt [%s]: %s", rec.ID, err)
	}
	return cause
}

// RecoveryReport lists what recovery did with the unfinished attempts
type RecoveryReport struct {
	Aborted []string
	Resumed []string
	Failed  []string
	Pending []string
}

type recoverView struct{}

// NewRecoverView returns a view that settles the attempts left unfinished by a crash.
// Attempts that never reached the notary are aborted, nothing of them can be on the ledger.
// Attempts submitted to the notary are submitted again, the notary answers retries of
// committed transactions with the same signature.
func NewRecoverView() *recoverView {
	return &recoverView{}
}

func (r *recoverView) Call(context view.Context) (interface{}, error) {
	recorder, err := GetRecorder(context)
	if err != nil {
		return nil, err
	}
	pending, err := recorder.Pending()
	if err != nil {
		return nil, err
	}

	report := &RecoveryReport{}
	for _, rec := range pending {
		if rec.Status != Notarizing || rec.Tx == nil {
			if err := recorder.Transition(rec, Aborted, nil); err != nil {
				return report, err
			}
			logger.Infof("aborted attempt [%s][%s] left in [%s]", rec.ID, rec.Kind, rec.Status)
			report.Aborted = append(report.Aborted, rec.ID)
			continue
		}

		res, err := context.RunView(finality.NewOrderingAndFinalityView(rec.Tx))
		switch {
		case err == nil:
			if err := recorder.Transition(rec, Committed, res.(*state.Transaction)); err != nil {
				return report, err
			}
			logger.Infof("resumed attempt [%s][%s], [%s] committed", rec.ID, rec.Kind, rec.TxID)
			report.Resumed = append(report.Resumed, rec.ID)
		case state.IsRetryable(err):
			logger.Warnf("attempt [%s] still pending: %s", rec.ID, err)
			if err := recorder.Note(rec, err); err != nil {
				return report, err
			}
			report.Pending = append(report.Pending, rec.ID)
		default:
			if err := recorder.Fail(rec, err); err != nil {
				return report, err
			}
			logger.Infof("attempt [%s][%s] failed on recovery: %s", rec.ID, rec.Kind, err)
			report.Failed = append(report.Failed, rec.ID)
		}
	}
	return report, nil
}

// Recover runs the recovery view with the passed initiator
func Recover(initiator finality.ViewInitiator) (*RecoveryReport, error) {
	res, err := initiator.InitiateView(NewRecoverView(), context.Background())
	if err != nil {
		return nil, errors.WithMessage(err, "recovery failed")
	}
	return res.(*RecoveryReport), nil
}
