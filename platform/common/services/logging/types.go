/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package logging

import (
	"encoding/base64"
	"encoding/hex"
	"strings"
	"unicode"
)

// Base64 logs lazily a byte array in base64 format
func Base64(b []byte) base64Enc {
	return b
}

type base64Enc []byte

func (b base64Enc) String() string {
	return base64.StdEncoding.EncodeToString(b)
}

// Prefix logs lazily the first bytes of an identifier in hex format
func Prefix(b []byte) prefixEnc {
	return b
}

type prefixEnc []byte

func (b prefixEnc) String() string {
	if len(b) > 8 {
		return hex.EncodeToString(b[:8]) + "..."
	}
	return hex.EncodeToString(b)
}

// Printable logs lazily a key replacing the non-printable characters, like the separators of composite keys
func Printable(key string) printable {
	return printable(key)
}

type printable string

func (p printable) String() string {
	return strings.Map(func(r rune) rune {
		if unicode.IsPrint(r) {
			return r
		}
		return '~'
	}, string(p))
}
