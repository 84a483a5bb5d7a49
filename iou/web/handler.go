/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package web

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
)

type ResponseErr struct {
	Reason string `json:"reason"`
}

type logger interface {
	Debugf(template string, args ...interface{})
	Warnf(template string, args ...interface{})
	Infof(template string, args ...interface{})
	Errorf(template string, args ...interface{})
}

// ReqContext carries the parsed request to a RequestHandler
type ReqContext struct {
	Req   *http.Request
	Vars  map[string]string
	Query interface{}
}

type RequestHandler interface {
	// HandleRequest dispatches the request in the backend by parsing the given request context
	// and returning a status code and a response back to the client.
	HandleRequest(*ReqContext) (response interface{}, statusCode int)
	// ParseRequest parses the query parameters of the request to handler specific form or returns an error
	ParseRequest(*http.Request) (interface{}, error)
}

type HttpHandler struct {
	r      *mux.Router
	Logger logger
}

func NewHttpHandler(l logger) *HttpHandler {
	return &HttpHandler{r: mux.NewRouter(), Logger: l}
}

func (h *HttpHandler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	h.r.ServeHTTP(w, req)
}

func (h *HttpHandler) RegisterURI(uri string, method string, rh RequestHandler) {
	f := func(backToClient http.ResponseWriter, req *http.Request) {
		h.handle(backToClient, req, rh)
	}
	h.r.HandleFunc(uri, f).Methods(method)
}

// RegisterStream serves uri with f, bypassing content negotiation and json encoding
func (h *HttpHandler) RegisterStream(uri string, f http.HandlerFunc) {
	h.r.HandleFunc(uri, f).Methods(http.MethodGet)
}

func (h *HttpHandler) handle(backToClient http.ResponseWriter, req *http.Request, rh RequestHandler) {
	if _, err := negotiateContentType(req); err != nil {
		sendErr(backToClient, http.StatusBadRequest, "bad content type", h.Logger, err)
		return
	}
	o, err := rh.ParseRequest(req)
	if err != nil {
		sendErr(backToClient, http.StatusBadRequest, err.Error(), h.Logger, err)
		return
	}
	reqCtx := &ReqContext{
		Query: o,
		Req:   req,
		Vars:  mux.Vars(req),
	}

	resultFromBackend, statusCode := rh.HandleRequest(reqCtx)

	response := &bytes.Buffer{}
	if err := json.NewEncoder(response).Encode(resultFromBackend); err != nil {
		sendErr(backToClient, http.StatusInternalServerError, "failed encoding response from backend", h.Logger, err)
		return
	}
	backToClient.Header().Set("Content-Type", "application/json")
	backToClient.WriteHeader(statusCode)
	if _, err := backToClient.Write(response.Bytes()); err != nil {
		h.Logger.Warnf("Failed writing response: %v", err)
	}
}

func sendErr(resp http.ResponseWriter, code int, errToClient string, l logger, errLogged error) {
	if errLogged != nil {
		l.Warnf("Failed processing request: %v", errLogged)
	}
	resp.Header().Set("Content-Type", "application/json")
	resp.WriteHeader(code)
	if err := json.NewEncoder(resp).Encode(&ResponseErr{Reason: errToClient}); err != nil {
		l.Warnf("Failed encoding response: %v", err)
	}
}

func negotiateContentType(req *http.Request) (string, error) {
	acceptReq := req.Header.Get("Accept")
	if len(acceptReq) == 0 {
		return "application/json", nil
	}

	options := strings.Split(acceptReq, ",")
	for _, opt := range options {
		if strings.Contains(opt, "application/json") ||
			strings.Contains(opt, "application/*") ||
			strings.Contains(opt, "*/*") {
			return "application/json", nil
		}
	}

	return "", errors.New("response Content-Type is application/json only")
}
