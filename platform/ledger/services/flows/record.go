/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package flows

import (
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/hyperledger-labs/fsc-iou/pkg/utils"
	"github.com/hyperledger-labs/fsc-iou/platform/common/services/logging"
	"github.com/hyperledger-labs/fsc-iou/platform/ledger/services/state"
	"github.com/hyperledger-labs/fsc-iou/platform/view/services/kvs"
	"github.com/hyperledger-labs/fsc-iou/platform/view/view"
)

var logger = logging.MustGetLogger("ledger.flows")

const recordPrefix = "flows.record"

// Status is the protocol step an attempt reached
type Status string

const (
	Built         Status = "Built"
	LocallySigned Status = "LocallySigned"
	Soliciting    Status = "Soliciting"
	FullySigned   Status = "FullySigned"
	Notarizing    Status = "Notarizing"
	Committed     Status = "Committed"
	Failed        Status = "Failed"
	Aborted       Status = "Aborted"
)

// IsTerminal returns true if no further transition can happen
func (s Status) IsTerminal() bool {
	return s == Committed || s == Failed || s == Aborted
}

// Record is the durable trace of an initiator attempt
type Record struct {
	ID      string             `json:"id"`
	Kind    string             `json:"kind"`
	Status  Status             `json:"status"`
	TxID    string             `json:"txId,omitempty"`
	Tx      *state.Transaction `json:"tx,omitempty"`
	Error   string             `json:"error,omitempty"`
	Created time.Time          `json:"created"`
	Updated time.Time          `json:"updated"`
}

// Recorder persists the records of the attempts started by this node
type Recorder struct {
	kvs *kvs.KVS
}

func NewRecorder(kvs *kvs.KVS) *Recorder {
	return &Recorder{kvs: kvs}
}

// Start records a new attempt of kind on tx
func (r *Recorder) Start(kind string, tx *state.Transaction) (*Record, error) {
	now := time.Now()
	rec := &Record{
		ID:      utils.GenerateUUID(),
		Kind:    kind,
		Status:  Built,
		Created: now,
		Updated: now,
	}
	if tx != nil {
		rec.TxID = tx.ID()
		rec.Tx = tx
	}
	if err := r.kvs.Put(recordKey(rec.ID), rec); err != nil {
		return nil, errors.WithMessagef(err, "failed recording attempt [%s]", kind)
	}
	return rec, nil
}

// Transition moves rec to status. Terminal records do not move.
func (r *Recorder) Transition(rec *Record, status Status, tx *state.Transaction) error {
	if rec.Status.IsTerminal() {
		return errors.Errorf("record [%s] is already [%s]", rec.ID, rec.Status)
	}
	rec.Status = status
	rec.Updated = time.Now()
	if tx != nil {
		rec.TxID = tx.ID()
		rec.Tx = tx
	}
	logger.Debugf("attempt [%s][%s] is [%s]", rec.ID, rec.Kind, status)
	return r.kvs.Put(recordKey(rec.ID), rec)
}

// Fail marks rec as failed with cause
func (r *Recorder) Fail(rec *Record, cause error) error {
	rec.Error = cause.Error()
	return r.Transition(rec, Failed, nil)
}

// Note stores cause on rec without changing its status
func (r *Recorder) Note(rec *Record, cause error) error {
	rec.Error = cause.Error()
	rec.Updated = time.Now()
	return r.kvs.Put(recordKey(rec.ID), rec)
}

func (r *Recorder) Get(id string) (*Record, error) {
	rec := &Record{}
	if err := r.kvs.Get(recordKey(id), rec); err != nil {
		if errors.Is(err, kvs.ErrStateNotFound) {
			return nil, errors.Wrapf(state.ErrNotFound, "record [%s]", id)
		}
		return nil, err
	}
	return rec, nil
}

// List returns every record, oldest first
func (r *Recorder) List() ([]*Record, error) {
	it, err := r.kvs.GetByPartialCompositeID(recordPrefix, nil)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var res []*Record
	for it.HasNext() {
		rec := &Record{}
		if _, err := it.Next(rec); err != nil {
			return nil, errors.Wrap(err, "failed reading flow record")
		}
		res = append(res, rec)
	}
	sort.SliceStable(res, func(i, j int) bool {
		return res[i].Created.Before(res[j].Created)
	})
	return res, nil
}

// Pending returns the records that did not reach a terminal status
func (r *Recorder) Pending() ([]*Record, error) {
	all, err := r.List()
	if err != nil {
		return nil, err
	}
	var res []*Record
	for _, rec := range all {
		if !rec.Status.IsTerminal() {
			res = append(res, rec)
		}
	}
	return res, nil
}

func recordKey(id string) string {
	return kvs.CreateCompositeKeyOrPanic(recordPrefix, []string{id})
}

var recorderLookUp = &Recorder{}

// GetRecorder returns the flow recorder registered in the passed service provider
func GetRecorder(sp view.ServiceProvider) (*Recorder, error) {
	s, err := sp.GetService(recorderLookUp)
	if err != nil {
		return nil, errors.Wrap(err, "cannot get flow recorder")
	}
	return s.(*Recorder), nil
}
