/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package api

import (
	"context"

	"github.com/hyperledger-labs/fsc-iou/platform/view/view"
)

// SDK installs the services of a platform into a node and starts them
type SDK interface {
	Install() error

	Start(ctx context.Context) error
}

type Node interface {
	ServiceProvider
	ViewRegistry
	ViewClient

	// InitiateView runs v as initiator in a fresh context
	InitiateView(v view.View) (interface{}, error)

	Start() error

	Stop()
}
