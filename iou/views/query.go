/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package views

import (
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/hyperledger-labs/fsc-iou/iou/contract"
	"github.com/hyperledger-labs/fsc-iou/iou/states"
	"github.com/hyperledger-labs/fsc-iou/platform/ledger/services/vault"
	"github.com/hyperledger-labs/fsc-iou/platform/view/view"
)

type Query struct {
	LinearID string
}

// QueryView returns the current version of an IOU known to this node
type QueryView struct {
	Query
}

func (q *QueryView) Call(context view.Context) (interface{}, error) {
	_, iou, err := current(context, q.LinearID)
	if err != nil {
		return nil, err
	}
	return iou, nil
}

type QueryViewFactory struct{}

func (c *QueryViewFactory) NewView(in []byte) (view.View, error) {
	f := &QueryView{}
	if err := json.Unmarshal(in, &f.Query); err != nil {
		return nil, errors.Wrapf(err, "failed unmarshalling input")
	}
	return f, nil
}

// ListIOUsView returns the unconsumed IOUs this node is party to
type ListIOUsView struct{}

func (l *ListIOUsView) Call(context view.Context) (interface{}, error) {
	v, err := vault.GetVault(context)
	if err != nil {
		return nil, err
	}
	refs, err := v.Unconsumed(contract.IOU, nil)
	if err != nil {
		return nil, err
	}
	ious := make([]*states.IOU, 0, len(refs))
	for _, ref := range refs {
		iou := &states.IOU{}
		if err := ref.State.Unmarshal(iou); err != nil {
			return nil, err
		}
		ious = append(ious, iou)
	}
	return ious, nil
}

type ListIOUsViewFactory struct{}

func (c *ListIOUsViewFactory) NewView([]byte) (view.View, error) {
	return &ListIOUsView{}, nil
}
