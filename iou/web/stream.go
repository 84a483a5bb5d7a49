/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package web

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 5 * time.Second

// WSStream is the server end of a monitoring web socket. Only the hub writes to it.
type WSStream struct {
	ws *websocket.Conn
}

func OpenWSServerConn(writer http.ResponseWriter, request *http.Request) (*websocket.Conn, error) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(*http.Request) bool {
			return true
		},
	}
	return upgrader.Upgrade(writer, request, nil)
}

func NewWSStream(writer http.ResponseWriter, request *http.Request) (*WSStream, error) {
	ws, err := OpenWSServerConn(writer, request)
	if err != nil {
		return nil, err
	}
	webLogger.Debugf("upgraded [%s] to web socket", request.RemoteAddr)
	return &WSStream{ws: ws}, nil
}

func (c *WSStream) Send(p interface{}) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return c.Write(data)
}

func (c *WSStream) Write(message []byte) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	err := c.ws.WriteMessage(websocket.TextMessage, message)
	if err != nil {
		webLogger.Debugf("error writing message: %v", err)
	}
	return err
}

// Drain discards what the client sends and returns once the connection is gone
func (c *WSStream) Drain() {
	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *WSStream) Close() error {
	err := c.ws.Close()
	if err != nil {
		webLogger.Debugf("error closing web socket: %v", err)
	}
	return err
}
