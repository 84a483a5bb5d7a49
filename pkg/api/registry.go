/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package api

import "github.com/hyperledger-labs/fsc-iou/platform/view/view"

type ServiceProvider interface {
	GetService(v interface{}) (interface{}, error)
	RegisterService(service interface{}) error
}

// Factory is used to create instances of the View interface
type Factory interface {
	// NewView returns an instance of the View interface build using the passed argument.
	NewView(in []byte) (view.View, error)
}

// ViewRegistry keeps track of the available views and view factories
type ViewRegistry interface {
	// RegisterFactory binds an id to a View Factory
	RegisterFactory(id string, factory Factory) error

	// RegisterResponder binds a responder to an initiator
	RegisterResponder(responder view.View, initiatedBy interface{}) error
}
