/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package state

import (
	"time"

	"github.com/pkg/errors"

	"github.com/hyperledger-labs/fsc-iou/platform/view/view"
)

const (
	DefaultSessionTimeout = 30 * time.Second
	DefaultNotaryTimeout  = 30 * time.Second
	DefaultNotaryRetries  = 3
	DefaultRetryDelay     = 500 * time.Millisecond
)

// Settings are the ledger parameters of a node
type Settings struct {
	// Notary is the uniqueness authority ordering the transactions built by this node
	Notary view.Identity
	// SessionTimeout bounds the wait for each counterparty's answer
	SessionTimeout time.Duration
	// NotaryTimeout bounds the wait for the notary's decision
	NotaryTimeout time.Duration
	// NotaryRetries is the number of submissions to an unavailable notary before giving up
	NotaryRetries int
	// RetryDelay is the delay before the first retry, doubled at every attempt
	RetryDelay time.Duration
}

// SessionTimeoutOrDefault returns the session timeout, or DefaultSessionTimeout if not set
func (s *Settings) SessionTimeoutOrDefault() time.Duration {
	if s == nil || s.SessionTimeout <= 0 {
		return DefaultSessionTimeout
	}
	return s.SessionTimeout
}

// NotaryTimeoutOrDefault returns the notary timeout, or DefaultNotaryTimeout if not set
func (s *Settings) NotaryTimeoutOrDefault() time.Duration {
	if s == nil || s.NotaryTimeout <= 0 {
		return DefaultNotaryTimeout
	}
	return s.NotaryTimeout
}

func (s *Settings) NotaryRetriesOrDefault() int {
	if s == nil || s.NotaryRetries <= 0 {
		return DefaultNotaryRetries
	}
	return s.NotaryRetries
}

func (s *Settings) RetryDelayOrDefault() time.Duration {
	if s == nil || s.RetryDelay <= 0 {
		return DefaultRetryDelay
	}
	return s.RetryDelay
}

var settingsLookUp = &Settings{}

func GetSettings(sp view.ServiceProvider) (*Settings, error) {
	s, err := sp.GetService(settingsLookUp)
	if err != nil {
		return nil, errors.Wrap(err, "cannot get ledger settings")
	}
	return s.(*Settings), nil
}
