/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package session

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/hyperledger-labs/fsc-iou/platform/common/services/logging"
	"github.com/hyperledger-labs/fsc-iou/platform/view/services/hash"
	"github.com/hyperledger-labs/fsc-iou/platform/view/view"
)

var logger = logging.MustGetLogger("fsc.view.session.json")

const DefaultReceiveTimeout = 30 * time.Second

type jsonSession struct {
	s       Session
	context context.Context
}

// NewJSON opens, or reuses, a session to the passed party and wraps it to exchange JSON messages
func NewJSON(context view.Context, caller view.View, party view.Identity) (*jsonSession, error) {
	s, err := context.GetSession(caller, party)
	if err != nil {
		return nil, err
	}
	return &jsonSession{s: s, context: context.Context()}, nil
}

// JSON wraps the session the context is responding on
func JSON(context view.Context) *jsonSession {
	return &jsonSession{s: context.Session(), context: context.Context()}
}

// Wrap wraps an existing session
func Wrap(ctx context.Context, s view.Session) *jsonSession {
	return &jsonSession{s: s, context: ctx}
}

func (j *jsonSession) Receive(state interface{}) error {
	return j.ReceiveWithTimeout(state, DefaultReceiveTimeout)
}

func (j *jsonSession) ReceiveWithTimeout(state interface{}, d time.Duration) error {
	raw, err := j.ReceiveRawWithTimeout(d)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, state)
}

func (j *jsonSession) ReceiveRawWithTimeout(d time.Duration) ([]byte, error) {
	if d <= 0 {
		d = DefaultReceiveTimeout
	}
	timeout := time.NewTimer(d)
	defer timeout.Stop()

	ch := j.s.Receive()
	var raw []byte
	select {
	case msg := <-ch:
		if msg.Status == view.ERROR {
			return nil, errors.Wrapf(ErrRemote, "[%s]", string(msg.Payload))
		}
		raw = msg.Payload
	case <-timeout.C:
		return nil, errors.Wrapf(ErrTimeout, "waited [%s] on session [%s]", d, j.s.Info().ID)
	case <-j.context.Done():
		return nil, errors.Errorf("context done [%s]", j.context.Err())
	}
	logger.Debugf("json session, received message [%s]", hash.Hashable(raw))
	return raw, nil
}

func (j *jsonSession) Send(state interface{}) error {
	v, err := json.Marshal(state)
	if err != nil {
		return err
	}
	logger.Debugf("json session, send message [%s]", hash.Hashable(v))
	return j.s.Send(v)
}

func (j *jsonSession) SendError(err string) error {
	logger.Debugf("json session, send error [%s]", err)
	return j.s.SendError([]byte(err))
}

func (j *jsonSession) Session() Session {
	return j.s
}
