/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package kvs

import (
	"encoding/json"
	"sync"

	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
	"go.uber.org/zap/zapcore"

	"github.com/hyperledger-labs/fsc-iou/platform/common/services/logging"
	"github.com/hyperledger-labs/fsc-iou/platform/view/services/db"
	"github.com/hyperledger-labs/fsc-iou/platform/view/services/db/driver"
	"github.com/hyperledger-labs/fsc-iou/platform/view/services/db/keys"
	"github.com/hyperledger-labs/fsc-iou/platform/view/view"
)

var logger = logging.MustGetLogger("fsc.view.kvs")

const (
	cacheSizeConfigKey       = "fsc.kvs.cache.size"
	persistenceTypeConfigKey = "fsc.kvs.persistence.type"
	persistenceOptsConfigKey = "fsc.kvs.persistence.opts"
	DefaultCacheSize         = 100
	DefaultNamespace         = "_default"
)

// ErrStateNotFound is returned by Get when the state does not exist
var ErrStateNotFound = errors.New("state does not exist")

type cache interface {
	Get(key interface{}) (interface{}, bool)
	Add(key, value interface{}) bool
	Remove(key interface{}) bool
}

// ConfigProvider models the DB configuration provider
type ConfigProvider interface {
	// UnmarshalKey takes a single key and unmarshals it into a Struct
	UnmarshalKey(key string, rawVal interface{}) error
	// IsSet checks to see if the key has been set in any of the data locations
	IsSet(key string) bool
	// GetInt returns the value associated with the key as an integer
	GetInt(key string) int
	// GetString returns the value associated with the key as a string
	GetString(key string) string
}

type Iterator interface {
	HasNext() bool
	Close() error
	Next(state interface{}) (string, error)
}

// KVS stores JSON-encoded states in a namespace of the underlying persistence.
// Writes are serialized; Update applies a set of writes atomically.
type KVS struct {
	namespace string
	store     driver.Persistence

	putMutex sync.RWMutex
	cache    cache
}

// NewWithConfig opens the persistence selected by the configuration and returns a KVS on top of it
func NewWithConfig(cp ConfigProvider, namespace string) (*KVS, error) {
	persistenceType := cp.GetString(persistenceTypeConfigKey)
	if len(persistenceType) == 0 {
		persistenceType = "memory"
	}
	dataSource := ""
	opts := db.NewPrefixConfig(cp, persistenceOptsConfigKey)
	if opts.IsSet("path") {
		if err := opts.UnmarshalKey("path", &dataSource); err != nil {
			return nil, errors.Wrapf(err, "failed getting persistence path")
		}
	}
	persistence, err := db.Open(persistenceType, dataSource, opts)
	if err != nil {
		return nil, errors.WithMessagef(err, "failed opening kvs persistence [%s]", persistenceType)
	}
	cacheSize, err := CacheSizeFromConfig(cp)
	if err != nil {
		return nil, err
	}
	return New(persistence, namespace, cacheSize)
}

// New returns a new KVS instance for the passed namespace using the passed persistence.
// A cacheSize of zero disables caching.
func New(persistence driver.Persistence, namespace string, cacheSize int) (*KVS, error) {
	if err := keys.ValidateNs(namespace); err != nil {
		return nil, err
	}
	var c cache = noCache{}
	if cacheSize > 0 {
		l, err := lru.New(cacheSize)
		if err != nil {
			return nil, errors.Wrapf(err, "failed creating cache")
		}
		c = l
	}
	return &KVS{
		namespace: namespace,
		store:     persistence,
		cache:     c,
	}, nil
}

func (o *KVS) Exists(id string) bool {
	o.putMutex.RLock()
	defer o.putMutex.RUnlock()

	raw, err := o.get(id)
	return err == nil && len(raw) != 0
}

func (o *KVS) Put(id string, state interface{}) error {
	return o.Update(func(tx *Tx) error {
		return tx.Put(id, state)
	})
}

func (o *KVS) Get(id string, state interface{}) error {
	o.putMutex.RLock()
	defer o.putMutex.RUnlock()

	raw, err := o.get(id)
	if err != nil {
		logger.Debugf("failed retrieving state [%s,%s]", o.namespace, logging.Printable(id))
		return errors.Wrapf(err, "failed retrieving state [%s,%s]", o.namespace, logging.Printable(id))
	}
	if len(raw) == 0 {
		return errors.Wrapf(ErrStateNotFound, "state [%s,%s]", o.namespace, logging.Printable(id))
	}
	if err := json.Unmarshal(raw, state); err != nil {
		return errors.Wrapf(err, "failed retrieving state [%s,%s], cannot unmarshal state", o.namespace, logging.Printable(id))
	}

	if logger.IsEnabledFor(zapcore.DebugLevel) {
		logger.Debugf("got state [%s,%s] successfully", o.namespace, logging.Printable(id))
	}
	return nil
}

func (o *KVS) Delete(id string) error {
	return o.Update(func(tx *Tx) error {
		return tx.Delete(id)
	})
}

// Update runs f and applies the writes it buffered in a single atomic commit.
// Nothing is written if f returns an error. Updates are serialized.
func (o *KVS) Update(f func(tx *Tx) error) error {
	o.putMutex.Lock()
	defer o.putMutex.Unlock()

	tx := &Tx{kvs: o, writes: map[string][]byte{}}
	if err := f(tx); err != nil {
		return err
	}
	if len(tx.order) == 0 {
		return nil
	}

	if err := o.store.BeginUpdate(); err != nil {
		return errors.WithMessagef(err, "begin update for [%d] keys failed", len(tx.order))
	}
	for _, id := range tx.order {
		var err error
		if raw := tx.writes[id]; raw == nil {
			err = o.store.DeleteState(o.namespace, id)
		} else {
			err = o.store.SetState(o.namespace, id, raw)
		}
		if err != nil {
			if err1 := o.store.Discard(); err1 != nil {
				logger.Errorf("got error %s; discarding caused %s", err.Error(), err1.Error())
			}
			return errors.Wrapf(err, "failed writing state [%s,%s]", o.namespace, logging.Printable(id))
		}
	}
	if err := o.store.Commit(); err != nil {
		// the content of the cache might not reflect the store anymore
		for _, id := range tx.order {
			o.cache.Remove(id)
		}
		return errors.WithMessagef(err, "committing [%d] keys failed", len(tx.order))
	}
	for _, id := range tx.order {
		if raw := tx.writes[id]; raw == nil {
			o.cache.Remove(id)
		} else {
			o.cache.Add(id, raw)
		}
	}
	return nil
}

func (o *KVS) GetByPartialCompositeID(prefix string, attrs []string) (Iterator, error) {
	startKey, endKey, err := CreateRangeKeysForPartialCompositeKey(prefix, attrs)
	if err != nil {
		return nil, errors.Wrapf(err, "failed building composite key")
	}

	itr, err := o.store.GetStateRangeScanIterator(o.namespace, startKey, endKey)
	if err != nil {
		return nil, errors.Wrapf(err, "store access failure for GetStateRangeScanIterator, ns [%s] range [%s,%s]", o.namespace, startKey, endKey)
	}
	return &it{ri: itr}, nil
}

func (o *KVS) Stop() {
	if err := o.store.Close(); err != nil {
		logger.Errorf("failed stopping kvs [%s]", err)
	}
}

// get must be called holding the putMutex
func (o *KVS) get(id string) ([]byte, error) {
	if cached, ok := o.cache.Get(id); ok {
		return cached.([]byte), nil
	}
	raw, err := o.store.GetState(o.namespace, id)
	if err != nil {
		return nil, err
	}
	if len(raw) != 0 {
		o.cache.Add(id, raw)
	}
	return raw, nil
}

// Tx buffers the writes of an Update. Reads observe the buffered writes.
type Tx struct {
	kvs    *KVS
	writes map[string][]byte
	order  []string
}

func (t *Tx) Get(id string, state interface{}) error {
	raw, err := t.raw(id)
	if err != nil {
		return err
	}
	if len(raw) == 0 {
		return errors.Wrapf(ErrStateNotFound, "state [%s,%s]", t.kvs.namespace, logging.Printable(id))
	}
	return json.Unmarshal(raw, state)
}

func (t *Tx) Exists(id string) (bool, error) {
	raw, err := t.raw(id)
	if err != nil {
		return false, err
	}
	return len(raw) != 0, nil
}

func (t *Tx) Put(id string, state interface{}) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return errors.Wrapf(err, "cannot marshal state with id [%s]", logging.Printable(id))
	}
	t.set(id, raw)
	return nil
}

func (t *Tx) Delete(id string) error {
	t.set(id, nil)
	return nil
}

func (t *Tx) set(id string, raw []byte) {
	if _, ok := t.writes[id]; !ok {
		t.order = append(t.order, id)
	}
	t.writes[id] = raw
}

func (t *Tx) raw(id string) ([]byte, error) {
	if raw, ok := t.writes[id]; ok {
		return raw, nil
	}
	return t.kvs.get(id)
}

type it struct {
	ri   driver.ResultsIterator
	next *driver.Read
}

func (i *it) HasNext() bool {
	var err error
	i.next, err = i.ri.Next()
	if err != nil || i.next == nil {
		return false
	}
	return true
}

func (i *it) Close() error {
	i.ri.Close()
	return nil
}

// Next unmarshals the current state into the given state object.
// It also returns the key of the current state.
func (i *it) Next(state interface{}) (string, error) {
	return i.next.Key, json.Unmarshal(i.next.Raw, state)
}

type noCache struct{}

func (noCache) Get(interface{}) (interface{}, bool) { return nil, false }

func (noCache) Add(interface{}, interface{}) bool { return false }

func (noCache) Remove(interface{}) bool { return false }

// CacheSizeFromConfig returns the KVS cache size from current configuration.
// Returns DefaultCacheSize, if no configuration found.
// Returns an error and DefaultCacheSize, if the loaded value from configuration is invalid (must be >= 0).
func CacheSizeFromConfig(cp ConfigProvider) (int, error) {
	if !cp.IsSet(cacheSizeConfigKey) {
		// no cache size configure, let's use default
		return DefaultCacheSize, nil
	}

	cacheSize := cp.GetInt(cacheSizeConfigKey)
	if cacheSize < 0 {
		return DefaultCacheSize, errors.Errorf("invalid cache size configuration: expect value >= 0, actual %d", cacheSize)
	}
	return cacheSize, nil
}

var kvsLookUp = &KVS{}

// GetService returns the KVS registered in the passed service provider
func GetService(sp view.ServiceProvider) (*KVS, error) {
	s, err := sp.GetService(kvsLookUp)
	if err != nil {
		return nil, errors.Wrap(err, "cannot get kvs")
	}
	return s.(*KVS), nil
}
