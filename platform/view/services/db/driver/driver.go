/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package driver

import (
	"github.com/pkg/errors"
)

// ErrUpdateInProgress is returned by BeginUpdate when another update has not been committed or discarded yet
var ErrUpdateInProgress = errors.New("previous update in progress")

// ErrClosed is returned by the operations on a closed persistence
var ErrClosed = errors.New("persistence closed")

type Read struct {
	Key string
	Raw []byte
}

type ResultsIterator interface {
	// Next returns the next item in the result set. The `Read` is expected to be nil when
	// the iterator gets exhausted
	Next() (*Read, error)
	// Close releases resources occupied by the iterator
	Close()
}

// Persistence models a namespaced key-value store.
// Writes are buffered between BeginUpdate and Commit, and applied atomically on Commit.
type Persistence interface {
	// SetState sets the given value for the given namespace and key. Requires an ongoing update
	SetState(namespace, key string, value []byte) error
	// GetState gets the committed value for the given namespace and key. Missing keys return nil
	GetState(namespace, key string) ([]byte, error)
	// DeleteState deletes the given namespace and key. Requires an ongoing update
	DeleteState(namespace, key string) error
	// GetStateRangeScanIterator returns an iterator over the keys of a namespace in [startKey, endKey).
	// An empty endKey means unbounded. Keys are returned in lexical order
	GetStateRangeScanIterator(namespace string, startKey string, endKey string) (ResultsIterator, error)
	// Close closes this persistence instance
	Close() error
	// BeginUpdate starts a session to update the store
	BeginUpdate() error
	// Commit commits the changes since BeginUpdate
	Commit() error
	// Discard discards the changes since BeginUpdate
	Discard() error
}

// Config provides access to the driver's configuration
type Config interface {
	// IsSet checks to see if the key has been set in any of the data locations
	IsSet(key string) bool
	// UnmarshalKey takes a single key and unmarshals it into a Struct
	UnmarshalKey(key string, rawVal interface{}) error
}

// Driver models the key value storage driver
type Driver interface {
	// New returns a new Persistence for the passed data source and config
	New(dataSourceName string, config Config) (Persistence, error)
}
