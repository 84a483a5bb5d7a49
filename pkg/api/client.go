/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package api

import (
	"time"

	"github.com/pkg/errors"
)

// ServiceOptions tune a single client call
type ServiceOptions struct {
	// Timeout bounds the wait, zero means no wait
	Timeout time.Duration
}

func CompileServiceOptions(opts ...ServiceOption) (*ServiceOptions, error) {
	options := &ServiceOptions{}
	for _, opt := range opts {
		if err := opt(options); err != nil {
			return nil, err
		}
	}
	return options, nil
}

type ServiceOption func(*ServiceOptions) error

func WithTimeout(timeout time.Duration) ServiceOption {
	return func(o *ServiceOptions) error {
		if timeout < 0 {
			return errors.Errorf("negative timeout [%s]", timeout)
		}
		o.Timeout = timeout
		return nil
	}
}

type ViewClient interface {
	// CallView takes in input a view factory identifier, fid, and an input, in, and invokes the
	// factory f bound to fid on input in. The view returned by the factory is invoked on
	// a freshly created context. This call is blocking until the result is produced or
	// an error is returned.
	CallView(fid string, in []byte) (interface{}, error)
	// IsTxFinal takes in input a transaction id and return nil if the transaction has been committed
	// to the local vault, an error otherwise. With a timeout, it waits up to that long for the commit.
	IsTxFinal(txid string, opts ...ServiceOption) error
}
