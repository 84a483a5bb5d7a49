/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package dbtest contains the conformance tests every persistence driver must pass.
package dbtest

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperledger-labs/fsc-iou/platform/view/services/db/driver"
)

const namespace = "ns"

type Persistence = driver.Persistence

// TestAll runs every conformance test on fresh stores built by newDB
func TestAll(t *testing.T, newDB func(t *testing.T) Persistence) {
	cases := []struct {
		name string
		fn   func(t *testing.T, db Persistence)
	}{
		{"SetGetDelete", TTestSetGetDelete},
		{"WriteRequiresUpdate", TTestWriteRequiresUpdate},
		{"SingleUpdate", TTestSingleUpdate},
		{"Discard", TTestDiscard},
		{"RangeQueries", TTestRangeQueries},
		{"NamespaceIsolation", TTestNamespaceIsolation},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			db := newDB(t)
			defer db.Close()
			c.fn(t, db)
		})
	}
}

func put(t *testing.T, db Persistence, ns, key string, value []byte) {
	require.NoError(t, db.BeginUpdate())
	require.NoError(t, db.SetState(ns, key, value))
	require.NoError(t, db.Commit())
}

func TTestSetGetDelete(t *testing.T, db Persistence) {
	v, err := db.GetState(namespace, "missing")
	require.NoError(t, err)
	assert.Nil(t, v)

	put(t, db, namespace, "k", []byte("v1"))
	v, err = db.GetState(namespace, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), v)

	put(t, db, namespace, "k", []byte("v2"))
	v, err = db.GetState(namespace, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), v)

	require.NoError(t, db.BeginUpdate())
	require.NoError(t, db.DeleteState(namespace, "k"))
	require.NoError(t, db.Commit())
	v, err = db.GetState(namespace, "k")
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TTestWriteRequiresUpdate(t *testing.T, db Persistence) {
	assert.Error(t, db.SetState(namespace, "k", []byte("v")))
	assert.Error(t, db.DeleteState(namespace, "k"))
	assert.Error(t, db.Commit())
	assert.Error(t, db.Discard())
}

func TTestSingleUpdate(t *testing.T, db Persistence) {
	require.NoError(t, db.BeginUpdate())
	assert.ErrorIs(t, db.BeginUpdate(), driver.ErrUpdateInProgress)
	require.NoError(t, db.SetState(namespace, "a", []byte("1")))
	require.NoError(t, db.SetState(namespace, "b", []byte("2")))
	require.NoError(t, db.Commit())

	for k, expected := range map[string]string{"a": "1", "b": "2"} {
		v, err := db.GetState(namespace, k)
		require.NoError(t, err)
		assert.Equal(t, expected, string(v))
	}
}

func TTestDiscard(t *testing.T, db Persistence) {
	put(t, db, namespace, "k", []byte("committed"))

	require.NoError(t, db.BeginUpdate())
	require.NoError(t, db.SetState(namespace, "k", []byte("discarded")))
	require.NoError(t, db.SetState(namespace, "other", []byte("discarded")))
	require.NoError(t, db.Discard())

	v, err := db.GetState(namespace, "k")
	require.NoError(t, err)
	assert.Equal(t, "committed", string(v))
	v, err = db.GetState(namespace, "other")
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TTestRangeQueries(t *testing.T, db Persistence) {
	require.NoError(t, db.BeginUpdate())
	for i := 9; i >= 0; i-- {
		require.NoError(t, db.SetState(namespace, fmt.Sprintf("k%d", i), []byte(fmt.Sprintf("v%d", i))))
	}
	require.NoError(t, db.Commit())

	assert.Equal(t, []string{"k2", "k3", "k4"}, scan(t, db, namespace, "k2", "k5"))
	assert.Equal(t, []string{"k7", "k8", "k9"}, scan(t, db, namespace, "k7", ""))
	assert.Len(t, scan(t, db, namespace, "", ""), 10)
	assert.Empty(t, scan(t, db, namespace, "z", ""))
}

func TTestNamespaceIsolation(t *testing.T, db Persistence) {
	put(t, db, "ns1", "k", []byte("1"))
	put(t, db, "ns2", "k", []byte("2"))

	v, err := db.GetState("ns1", "k")
	require.NoError(t, err)
	assert.Equal(t, "1", string(v))
	assert.Equal(t, []string{"k"}, scan(t, db, "ns2", "", ""))
	assert.Empty(t, scan(t, db, "ns3", "", ""))
}

func scan(t *testing.T, db Persistence, ns, start, end string) []string {
	it, err := db.GetStateRangeScanIterator(ns, start, end)
	require.NoError(t, err)
	defer it.Close()

	var res []string
	for {
		r, err := it.Next()
		require.NoError(t, err)
		if r == nil {
			return res
		}
		res = append(res, r.Key)
	}
}
