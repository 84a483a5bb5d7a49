/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package badger

import (
	"bytes"

	"github.com/dgraph-io/badger/v3"
	"github.com/pkg/errors"

	"github.com/hyperledger-labs/fsc-iou/platform/view/services/db/driver"
	"github.com/hyperledger-labs/fsc-iou/platform/view/services/db/keys"
)

var iteratorOptions = badger.IteratorOptions{
	PrefetchValues: false,
	PrefetchSize:   100,
	Reverse:        false,
	AllVersions:    false,
}

type rangeScanIterator struct {
	txn      *badger.Txn
	it       *badger.Iterator
	prefix   []byte
	startKey string
	endKey   []byte
}

func (r *rangeScanIterator) Next() (*driver.Read, error) {
	if !r.it.ValidForPrefix(r.prefix) {
		return nil, nil
	}

	item := r.it.Item()
	if r.endKey != nil && bytes.Compare(item.Key(), r.endKey) >= 0 {
		return nil, nil
	}

	value, err := item.ValueCopy(nil)
	if err != nil {
		return nil, errors.Wrapf(err, "error iterating on range starting at %s", r.startKey)
	}
	key := string(item.KeyCopy(nil)[len(r.prefix):])

	r.it.Next()

	return &driver.Read{Key: key, Raw: value}, nil
}

func (r *rangeScanIterator) Close() {
	r.it.Close()
	r.txn.Discard()
}

func (db *DB) GetStateRangeScanIterator(namespace string, startKey string, endKey string) (driver.ResultsIterator, error) {
	if db.db.IsClosed() {
		return nil, driver.ErrClosed
	}
	txn := db.db.NewTransaction(false)
	it := txn.NewIterator(iteratorOptions)
	it.Seek([]byte(dbKey(namespace, startKey)))

	var end []byte
	if len(endKey) != 0 {
		end = []byte(dbKey(namespace, endKey))
	}
	return &rangeScanIterator{
		txn:      txn,
		it:       it,
		prefix:   []byte(namespace + keys.NamespaceSeparator),
		startKey: startKey,
		endKey:   end,
	}, nil
}
