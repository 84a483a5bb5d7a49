/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package badger

import (
	"context"
	"sync"

	"github.com/dgraph-io/badger/v3"
	"github.com/pkg/errors"

	"github.com/hyperledger-labs/fsc-iou/platform/common/services/logging"
	"github.com/hyperledger-labs/fsc-iou/platform/view/services/db/driver"
)

var logger = logging.MustGetLogger("fsc.db.driver.badger")

// Opts are the options of a badger persistence, read from the `opts` section of the persistence config
type Opts struct {
	Path       string
	InMemory   bool
	SyncWrites bool
}

type DB struct {
	db            *badger.DB
	cancelCleaner context.CancelFunc

	txnLock sync.Mutex
	txn     *badger.Txn
}

func OpenDB(opts Opts) (*DB, error) {
	if len(opts.Path) == 0 && !opts.InMemory {
		return nil, errors.Errorf("path cannot be empty")
	}

	// let's pass our logger badger
	opt := badger.DefaultOptions(opts.Path)
	if opts.InMemory {
		opt = badger.DefaultOptions("").WithInMemory(true)
	}
	opt.Logger = logger
	opt.SyncWrites = opts.SyncWrites

	db, err := badger.Open(opt)
	if err != nil {
		return nil, errors.Wrapf(err, "could not open DB at '%s'", opts.Path)
	}

	// count number of key
	counter := uint64(0)
	if err := db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			counter++
		}
		return nil
	}); err != nil {
		return nil, errors.Wrapf(err, "failed to count number of keys")
	}
	logger.Debugf("badger db at [%s] contains [%d] keys", opts.Path, counter)

	// start our auto cleaner
	cancel := autoCleaner(db, defaultGCInterval, defaultGCDiscardRatio)

	return &DB{db: db, cancelCleaner: cancel}, nil
}

func (db *DB) Close() error {
	db.txnLock.Lock()
	if db.txn != nil {
		db.txn.Discard()
		db.txn = nil
	}
	db.txnLock.Unlock()

	if err := db.db.Close(); err != nil {
		return errors.Wrap(err, "could not close DB")
	}

	// stop our auto cleaner if we have one
	if db.cancelCleaner != nil {
		db.cancelCleaner()
	}
	return nil
}

func (db *DB) BeginUpdate() error {
	db.txnLock.Lock()
	defer db.txnLock.Unlock()

	if db.db.IsClosed() {
		return driver.ErrClosed
	}
	if db.txn != nil {
		return driver.ErrUpdateInProgress
	}
	db.txn = db.db.NewTransaction(true)
	return nil
}

func (db *DB) Commit() error {
	db.txnLock.Lock()
	defer db.txnLock.Unlock()

	if db.txn == nil {
		return errors.New("no update in progress")
	}
	err := db.txn.Commit()
	db.txn = nil
	if err != nil {
		return errors.Wrap(err, "could not commit transaction")
	}
	return nil
}

func (db *DB) Discard() error {
	db.txnLock.Lock()
	defer db.txnLock.Unlock()

	if db.txn == nil {
		return errors.New("no update in progress")
	}
	db.txn.Discard()
	db.txn = nil
	return nil
}

func (db *DB) SetState(namespace, key string, value []byte) error {
	if len(value) == 0 {
		logger.Warnf("set key [%s:%s] to nil value, will be deleted instead", namespace, key)
		return db.DeleteState(namespace, key)
	}

	db.txnLock.Lock()
	defer db.txnLock.Unlock()

	if db.txn == nil {
		return errors.New("programming error, writing without ongoing update")
	}
	k := dbKey(namespace, key)
	if err := db.txn.Set([]byte(k), append([]byte{}, value...)); err != nil {
		return errors.Wrapf(err, "could not set value for key %s", k)
	}
	return nil
}

func (db *DB) DeleteState(namespace, key string) error {
	db.txnLock.Lock()
	defer db.txnLock.Unlock()

	if db.txn == nil {
		return errors.New("programming error, writing without ongoing update")
	}
	k := dbKey(namespace, key)
	if err := db.txn.Delete([]byte(k)); err != nil {
		return errors.Wrapf(err, "could not delete value for key %s", k)
	}
	return nil
}

func (db *DB) GetState(namespace, key string) ([]byte, error) {
	if db.db.IsClosed() {
		return nil, driver.ErrClosed
	}
	k := dbKey(namespace, key)

	var value []byte
	err := db.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(k))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return errors.Wrapf(err, "could not retrieve item for key %s", k)
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, errors.Wrapf(err, "could not get value for key %s", k)
	}
	return value, nil
}
