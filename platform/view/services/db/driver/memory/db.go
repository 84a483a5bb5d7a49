/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package memory

import (
	"strings"
	"sync"

	"github.com/google/btree"
	"github.com/pkg/errors"

	"github.com/hyperledger-labs/fsc-iou/platform/common/services/logging"
	"github.com/hyperledger-labs/fsc-iou/platform/view/services/db/driver"
	"github.com/hyperledger-labs/fsc-iou/platform/view/services/db/keys"
)

var logger = logging.MustGetLogger("fsc.db.driver.memory")

const degree = 32

type item struct {
	key   string
	value []byte
}

func (i *item) Less(than btree.Item) bool {
	return i.key < than.(*item).key
}

// DB is an ordered in-memory store. Updates are applied to a copy-on-write clone of the
// committed tree and swapped in on Commit.
type DB struct {
	mutex sync.RWMutex
	tree  *btree.BTree
	txn   *btree.BTree
}

func New() *DB {
	return &DB{tree: btree.New(degree)}
}

func (db *DB) Close() error {
	return nil
}

func (db *DB) BeginUpdate() error {
	db.mutex.Lock()
	defer db.mutex.Unlock()

	if db.txn != nil {
		return driver.ErrUpdateInProgress
	}
	db.txn = db.tree.Clone()
	return nil
}

func (db *DB) Commit() error {
	db.mutex.Lock()
	defer db.mutex.Unlock()

	if db.txn == nil {
		return errors.New("no update in progress")
	}
	db.tree = db.txn
	db.txn = nil
	return nil
}

func (db *DB) Discard() error {
	db.mutex.Lock()
	defer db.mutex.Unlock()

	if db.txn == nil {
		return errors.New("no update in progress")
	}
	db.txn = nil
	return nil
}

func (db *DB) SetState(namespace, key string, value []byte) error {
	if len(value) == 0 {
		logger.Warnf("set key [%s:%s] to nil value, will be deleted instead", namespace, key)
		return db.DeleteState(namespace, key)
	}

	db.mutex.Lock()
	defer db.mutex.Unlock()

	if db.txn == nil {
		return errors.New("programming error, writing without ongoing update")
	}
	db.txn.ReplaceOrInsert(&item{key: dbKey(namespace, key), value: append([]byte{}, value...)})
	return nil
}

func (db *DB) DeleteState(namespace, key string) error {
	db.mutex.Lock()
	defer db.mutex.Unlock()

	if db.txn == nil {
		return errors.New("programming error, writing without ongoing update")
	}
	db.txn.Delete(&item{key: dbKey(namespace, key)})
	return nil
}

func (db *DB) GetState(namespace, key string) ([]byte, error) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()

	i := db.tree.Get(&item{key: dbKey(namespace, key)})
	if i == nil {
		return nil, nil
	}
	return append([]byte{}, i.(*item).value...), nil
}

// GetStateRangeScanIterator returns a snapshot of the committed keys in [startKey, endKey)
func (db *DB) GetStateRangeScanIterator(namespace string, startKey string, endKey string) (driver.ResultsIterator, error) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()

	prefix := namespace + keys.NamespaceSeparator
	var reads []*driver.Read
	collect := func(i btree.Item) bool {
		it := i.(*item)
		if !strings.HasPrefix(it.key, prefix) {
			return false
		}
		reads = append(reads, &driver.Read{
			Key: strings.TrimPrefix(it.key, prefix),
			Raw: append([]byte{}, it.value...),
		})
		return true
	}
	if len(endKey) == 0 {
		db.tree.AscendGreaterOrEqual(&item{key: dbKey(namespace, startKey)}, collect)
	} else {
		db.tree.AscendRange(&item{key: dbKey(namespace, startKey)}, &item{key: dbKey(namespace, endKey)}, collect)
	}
	return &rangeIterator{reads: reads}, nil
}

type rangeIterator struct {
	reads []*driver.Read
	cur   int
}

func (r *rangeIterator) Next() (*driver.Read, error) {
	if r.cur >= len(r.reads) {
		return nil, nil
	}
	read := r.reads[r.cur]
	r.cur++
	return read, nil
}

func (r *rangeIterator) Close() {}

func dbKey(namespace, key string) string {
	return namespace + keys.NamespaceSeparator + key
}
