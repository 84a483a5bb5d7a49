/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package utils

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/hyperledger-labs/fsc-iou/platform/common/services/logging"
)

var logger = logging.MustGetLogger("fsc.utils.retry")

// RetryRunner retries a function that may fail, waiting a fixed or doubling delay between attempts
type RetryRunner interface {
	Run(func() error) error
	RunWithErrors(runner func() (bool, error)) error
}

var ErrMaxRetriesExceeded = errors.New("maximum number of retries exceeded")

const Infinitely = -1

type retryRunner struct {
	ctx        context.Context
	delay      time.Duration
	expBackoff bool
	maxTimes   int
}

func NewRetryRunner(maxTimes int, delay time.Duration, expBackoff bool) *retryRunner {
	return &retryRunner{
		ctx:        context.Background(),
		delay:      delay,
		expBackoff: expBackoff,
		maxTimes:   maxTimes,
	}
}

// WithContext stops the retries when ctx is done
func (f *retryRunner) WithContext(ctx context.Context) *retryRunner {
	f.ctx = ctx
	return f
}

func (f *retryRunner) nextDelay() time.Duration {
	d := f.delay
	if f.expBackoff {
		f.delay = 2 * f.delay
	}
	return d
}

func (f *retryRunner) Run(runner func() error) error {
	return f.RunWithErrors(func() (bool, error) {
		err := runner()
		return err == nil, err
	})
}

// RunWithErrors will retry until runner() returns true or until it returns maxTimes false.
// If it returns true, then the error or nil will be returned.
// If it returns maxTimes false, then it will always return an error: either the combination of all errors it encountered or a ErrMaxRetriesExceeded.
func (f *retryRunner) RunWithErrors(runner func() (bool, error)) error {
	var errs error
	for i := 0; f.maxTimes < 0 || i < f.maxTimes; i++ {
		terminate, err := runner()
		if terminate {
			return err
		}
		errs = multierr.Append(errs, err)
		if f.maxTimes >= 0 && i == f.maxTimes-1 {
			break
		}
		logger.Debugf("will retry iteration [%d] after delay, %d errors returned so far", i+1, len(multierr.Errors(errs)))
		select {
		case <-time.After(f.nextDelay()):
		case <-f.ctx.Done():
			return multierr.Append(errs, f.ctx.Err())
		}
	}
	if errs == nil {
		return ErrMaxRetriesExceeded
	}
	return errs
}
