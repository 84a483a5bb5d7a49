/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package session

import (
	"github.com/pkg/errors"

	"github.com/hyperledger-labs/fsc-iou/platform/view/view"
)

var (
	// ErrTimeout is returned when no message arrives within the expected time
	ErrTimeout = errors.New("time out reached")
	// ErrRemote is returned when the remote party answered with an error message
	ErrRemote = errors.New("received error from remote")
)

type Session interface {
	view.Session
}
