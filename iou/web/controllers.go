/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package web

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/hyperledger-labs/fsc-iou/iou/cash"
	"github.com/hyperledger-labs/fsc-iou/iou/contract"
	"github.com/hyperledger-labs/fsc-iou/iou/states"
	"github.com/hyperledger-labs/fsc-iou/iou/views"
	"github.com/hyperledger-labs/fsc-iou/platform/ledger/services/state"
	"github.com/hyperledger-labs/fsc-iou/platform/view/services/endpoint"
	"github.com/hyperledger-labs/fsc-iou/platform/view/view"
)

// Node is the party the controllers start their flows on
type Node interface {
	InitiateView(v view.View) (interface{}, error)
	GetService(v interface{}) (interface{}, error)
}

// IOU is the client representation of an IOU, parties by name
type IOU struct {
	LinearID string        `json:"linearId"`
	Lender   string        `json:"lender"`
	Borrower string        `json:"borrower"`
	Amount   states.Amount `json:"amount"`
	Paid     states.Amount `json:"paid"`
}

// TxResult is returned by the requests that commit a transaction
type TxResult struct {
	TxID     string `json:"txId"`
	LinearID string `json:"linearId,omitempty"`
}

// Controllers start the IOU and cash flows of a node on behalf of http clients
type Controllers struct {
	node    Node
	monitor *Monitor
}

func NewControllers(node Node, monitor *Monitor) *Controllers {
	return &Controllers{node: node, monitor: monitor}
}

// Register binds the routes of the controllers to h
func (c *Controllers) Register(h *HttpHandler) {
	h.RegisterURI("/iou/all", http.MethodGet, &requestHandler{parse: noParams, handle: c.all})
	h.RegisterURI("/iou/issue", http.MethodPost, &requestHandler{parse: parseIssue, handle: c.issue})
	h.RegisterURI("/iou/transfer", http.MethodPut, &requestHandler{parse: parseTransfer, handle: c.transfer})
	h.RegisterURI("/iou/settle", http.MethodPut, &requestHandler{parse: parseSettle, handle: c.settle})
	h.RegisterURI("/cash/issue", http.MethodPost, &requestHandler{parse: parseSelfIssue, handle: c.selfIssue})
	h.RegisterURI("/cash/balance", http.MethodGet, &requestHandler{parse: noParams, handle: c.balance})
	h.RegisterStream("/flows/monitoring", c.monitor.ServeHTTP)
}

func (c *Controllers) all(*ReqContext) (interface{}, int) {
	res, err := c.node.InitiateView(&views.ListIOUsView{})
	if err != nil {
		return c.fail("", err)
	}
	directory, err := endpoint.GetService(c.node)
	if err != nil {
		return c.fail("", err)
	}
	ious := res.([]*states.IOU)
	out := make([]*IOU, len(ious))
	for i, iou := range ious {
		out[i] = &IOU{
			LinearID: iou.LinearID,
			Lender:   directory.NameOrID(iou.Lender),
			Borrower: directory.NameOrID(iou.Borrower),
			Amount:   iou.Amount,
			Paid:     iou.Paid,
		}
	}
	return out, http.StatusOK
}

func (c *Controllers) issue(ctx *ReqContext) (interface{}, int) {
	in := ctx.Query.(*views.Issue)
	requestID := c.progress("", "issuing [%s] to [%s]", in.Amount, in.Lender)
	start := time.Now()
	res, err := c.node.InitiateView(&views.IssueIOUView{Issue: *in})
	if err != nil {
		return c.fail(requestID, err)
	}
	tx := res.(*state.Transaction)
	c.progress(requestID, "Transaction time of %s", time.Since(start))

	result := &TxResult{TxID: tx.ID()}
	if outs := tx.OutputsOf(contract.IOU); len(outs) == 1 {
		result.LinearID = outs[0].LinearID
	}
	return result, http.StatusOK
}

func (c *Controllers) transfer(ctx *ReqContext) (interface{}, int) {
	in := ctx.Query.(*views.Transfer)
	requestID := c.progress("", "transferring [%s] to [%s]", in.LinearID, in.NewLender)
	start := time.Now()
	res, err := c.node.InitiateView(&views.TransferIOUView{Transfer: *in})
	if err != nil {
		return c.fail(requestID, err)
	}
	c.progress(requestID, "Transaction time of %s", time.Since(start))
	return &TxResult{TxID: res.(*state.Transaction).ID(), LinearID: in.LinearID}, http.StatusOK
}

func (c *Controllers) settle(ctx *ReqContext) (interface{}, int) {
	in := ctx.Query.(*views.Settle)
	requestID := c.progress("", "settling [%s] of [%s]", in.Amount, in.LinearID)
	start := time.Now()
	res, err := c.node.InitiateView(&views.SettleIOUView{Settle: *in})
	if err != nil {
		return c.fail(requestID, err)
	}
	c.progress(requestID, "Transaction time of %s", time.Since(start))
	return &TxResult{TxID: res.(*state.Transaction).ID(), LinearID: in.LinearID}, http.StatusOK
}

func (c *Controllers) selfIssue(ctx *ReqContext) (interface{}, int) {
	in := ctx.Query.(*cash.SelfIssue)
	res, err := c.node.InitiateView(&cash.SelfIssueCashView{SelfIssue: *in})
	if err != nil {
		return c.fail("", err)
	}
	return &TxResult{TxID: res.(*state.Transaction).ID()}, http.StatusOK
}

func (c *Controllers) balance(*ReqContext) (interface{}, int) {
	res, err := c.node.InitiateView(&cash.BalancesView{})
	if err != nil {
		return c.fail("", err)
	}
	return res, http.StatusOK
}

// progress publishes a monitoring event for the request, a new request id is drawn when requestID is empty
func (c *Controllers) progress(requestID string, format string, args ...interface{}) string {
	if len(requestID) == 0 {
		requestID = uuid.New().String()
	}
	message := fmt.Sprintf(format, args...)
	webLogger.Infof("[%s] %s", requestID, message)
	c.monitor.Publish(&Event{RequestID: requestID, Message: fmt.Sprintf("Event [%s] - %s", requestID, message)})
	return requestID
}

func (c *Controllers) fail(requestID string, err error) (interface{}, int) {
	status := StatusCode(err)
	webLogger.Warnf("[%s] request failed with [%d]: %s", requestID, status, err)
	if len(requestID) != 0 {
		c.monitor.Publish(&Event{RequestID: requestID, Message: fmt.Sprintf("Event [%s] - failed: %s", requestID, err)})
	}
	return &ResponseErr{Reason: err.Error()}, status
}

type requestHandler struct {
	parse  func(*http.Request) (interface{}, error)
	handle func(*ReqContext) (interface{}, int)
}

func (r *requestHandler) HandleRequest(ctx *ReqContext) (interface{}, int) {
	return r.handle(ctx)
}

func (r *requestHandler) ParseRequest(req *http.Request) (interface{}, error) {
	return r.parse(req)
}

func noParams(*http.Request) (interface{}, error) {
	return nil, nil
}

func parseIssue(req *http.Request) (interface{}, error) {
	q, err := params(req, "amount", "currency", "party")
	if err != nil {
		return nil, err
	}
	amount, err := majorAmount(q["amount"], q["currency"])
	if err != nil {
		return nil, err
	}
	return &views.Issue{Amount: amount, Lender: q["party"]}, nil
}

func parseTransfer(req *http.Request) (interface{}, error) {
	q, err := params(req, "id", "party")
	if err != nil {
		return nil, err
	}
	return &views.Transfer{LinearID: q["id"], NewLender: q["party"]}, nil
}

func parseSettle(req *http.Request) (interface{}, error) {
	q, err := params(req, "id", "amount", "currency")
	if err != nil {
		return nil, err
	}
	amount, err := majorAmount(q["amount"], q["currency"])
	if err != nil {
		return nil, err
	}
	return &views.Settle{LinearID: q["id"], Amount: amount}, nil
}

func parseSelfIssue(req *http.Request) (interface{}, error) {
	q, err := params(req, "amount", "currency")
	if err != nil {
		return nil, err
	}
	amount, err := majorAmount(q["amount"], q["currency"])
	if err != nil {
		return nil, err
	}
	return &cash.SelfIssue{Amount: amount}, nil
}

// params returns the required query parameters of req
func params(req *http.Request, names ...string) (map[string]string, error) {
	values := req.URL.Query()
	res := make(map[string]string, len(names))
	for _, name := range names {
		v := values.Get(name)
		if len(v) == 0 {
			return nil, errors.Errorf("missing parameter [%s]", name)
		}
		res[name] = v
	}
	return res, nil
}

func majorAmount(amount, currency string) (states.Amount, error) {
	major, err := strconv.ParseInt(amount, 10, 64)
	if err != nil {
		return states.Amount{}, errors.Errorf("invalid amount [%s]", amount)
	}
	return states.FromMajor(major, currency)
}
