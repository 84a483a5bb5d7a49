/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package view

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
)

// Identity wraps the byte representation of a party's public key.
type Identity []byte

// Equal return true if the identities are the same
func (id Identity) Equal(id2 Identity) bool {
	return bytes.Equal(id, id2)
}

// UniqueID returns a unique identifier of this identity
func (id Identity) UniqueID() string {
	if len(id) == 0 {
		return "<empty>"
	}
	h := sha256.Sum256(id)
	return base64.StdEncoding.EncodeToString(h[:])
}

// String returns a string representation of this identity
func (id Identity) String() string {
	return id.UniqueID()
}

// Bytes returns the byte representation of this identity
func (id Identity) Bytes() []byte {
	return id
}

// IsNone returns true if this identity is empty
func (id Identity) IsNone() bool {
	return len(id) == 0
}

// Identities is a list of identities
type Identities []Identity

// Contain returns true if the list contains the passed identity
func (ids Identities) Contain(id Identity) bool {
	for _, identity := range ids {
		if identity.Equal(id) {
			return true
		}
	}
	return false
}

// Match returns true if the two lists contain the same identities, regardless of order and duplicates
func (ids Identities) Match(others Identities) bool {
	for _, id := range ids {
		if !others.Contain(id) {
			return false
		}
	}
	for _, id := range others {
		if !ids.Contain(id) {
			return false
		}
	}
	return true
}

// Dedup returns the list without duplicates, preserving the order of first appearance
func (ids Identities) Dedup() Identities {
	var res Identities
	for _, id := range ids {
		if !res.Contain(id) {
			res = append(res, id)
		}
	}
	return res
}

// Filter returns the identities for which f returns true
func (ids Identities) Filter(f func(Identity) bool) Identities {
	var res Identities
	for _, id := range ids {
		if f(id) {
			res = append(res, id)
		}
	}
	return res
}
