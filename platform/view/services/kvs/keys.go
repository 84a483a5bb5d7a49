/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package kvs

import (
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"
)

const (
	minUnicodeRuneValue   = 0            // U+0000
	maxUnicodeRuneValue   = utf8.MaxRune // U+10FFFF - maximum (and unallocated) code point
	compositeKeyNamespace = "\x00"
)

// CreateCompositeKey joins objectType and attributes into a key that sorts attributes
// lexically, so that partial composite keys can be used for range scans.
func CreateCompositeKey(objectType string, attributes []string) (string, error) {
	if err := validateCompositeKeyAttribute(objectType); err != nil {
		return "", err
	}
	var ck strings.Builder
	ck.WriteString(compositeKeyNamespace + objectType + string(rune(minUnicodeRuneValue)))
	for _, att := range attributes {
		if err := validateCompositeKeyAttribute(att); err != nil {
			return "", err
		}
		ck.WriteString(att + string(rune(minUnicodeRuneValue)))
	}
	return ck.String(), nil
}

func CreateCompositeKeyOrPanic(objectType string, attributes []string) string {
	k, err := CreateCompositeKey(objectType, attributes)
	if err != nil {
		panic(err)
	}
	return k
}

// SplitCompositeKey returns the object type and the attributes of a composite key
func SplitCompositeKey(compositeKey string) (string, []string, error) {
	if !strings.HasPrefix(compositeKey, compositeKeyNamespace) {
		return "", nil, errors.Errorf("[%s] is not a composite key", compositeKey)
	}
	parts := strings.Split(compositeKey[len(compositeKeyNamespace):], string(rune(minUnicodeRuneValue)))
	if len(parts) < 2 {
		return "", nil, errors.Errorf("[%s] is not a composite key", compositeKey)
	}
	// the last part is the empty string following the terminator
	return parts[0], parts[1 : len(parts)-1], nil
}

func CreateRangeKeysForPartialCompositeKey(objectType string, attributes []string) (string, string, error) {
	partialCompositeKey, err := CreateCompositeKey(objectType, attributes)
	if err != nil {
		return "", "", err
	}
	startKey := partialCompositeKey
	endKey := partialCompositeKey + string(maxUnicodeRuneValue)

	return startKey, endKey, nil
}

func validateCompositeKeyAttribute(str string) error {
	if !utf8.ValidString(str) {
		return errors.Errorf("not a valid utf8 string: [%x]", str)
	}
	for index, runeValue := range str {
		if runeValue == minUnicodeRuneValue || runeValue == maxUnicodeRuneValue {
			return errors.Errorf(`input contain unicode %#U starting at position [%d]. %#U and %#U are not allowed in the input attribute of a composite key`,
				runeValue, index, minUnicodeRuneValue, maxUnicodeRuneValue)
		}
	}
	return nil
}
