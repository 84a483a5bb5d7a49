/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package hash

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
)

// SHA256 returns the sha256 digest of the passed bytes
func SHA256(raw []byte) []byte {
	digest := sha256.Sum256(raw)
	return digest[:]
}

// SHA256Hex returns the hex encoding of the sha256 digest of the passed bytes.
// It is used to derive content-bound identifiers.
func SHA256Hex(raw []byte) string {
	return hex.EncodeToString(SHA256(raw))
}

// Hashable logs lazily the base64 digest of a payload
type Hashable []byte

func (id Hashable) String() string {
	if len(id) == 0 {
		return ""
	}
	return base64.StdEncoding.EncodeToString(SHA256(id))
}
