/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package finality

import (
	"time"

	"github.com/hyperledger-labs/fsc-iou/platform/ledger/services/state"
	"github.com/hyperledger-labs/fsc-iou/platform/view/services/events"
	"github.com/hyperledger-labs/fsc-iou/platform/view/view"
)

// CommittedTopic is the topic of the events published every time a transaction is committed to the local vault
const CommittedTopic = "ledger.committed"

// Committed is the message of a CommittedTopic event
type Committed struct {
	TxID        string             `json:"txId"`
	Contract    string             `json:"contract"`
	Command     string             `json:"command"`
	Time        time.Time          `json:"time"`
	Transaction *state.Transaction `json:"transaction"`
}

type committedEvent struct {
	message *Committed
}

func (c *committedEvent) Topic() string {
	return CommittedTopic
}

func (c *committedEvent) Message() interface{} {
	return c.message
}

func publishCommitted(sp view.ServiceProvider, tx *state.Transaction) {
	publisher, err := events.GetPublisher(sp)
	if err != nil {
		logger.Debugf("no event publisher, [%s] not published: %s", tx.ID(), err)
		return
	}
	publisher.Publish(&committedEvent{message: &Committed{
		TxID:        tx.ID(),
		Contract:    tx.Command.Contract,
		Command:     tx.Command.Kind,
		Time:        time.Now(),
		Transaction: tx,
	}})
}
