// Package protocol defines the snippet wire format and error classification.
//
// The wire format is line-delimited JSON over a TCP stream, compatible with Mobly snippet
// clients. A session starts with a handshake line:
//
//	{"cmd": "initiate", "uid": -1}
//
// which the server answers with {"status": true, "uid": 1}. Each later line is a Request, answered
// by exactly one Response carrying the same ID.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Handshake commands.
const (
	CmdInitiate = "initiate"
	CmdContinue = "continue"
)

// UnknownUID is the uid a client sends when it does not have a session yet.
const UnknownUID = -1

type Handshake struct {
	Cmd string `json:"cmd"`
	UID int    `json:"uid"`
}

type HandshakeReply struct {
	Status bool `json:"status"`
	UID    int  `json:"uid"`
}

// Request is a single RPC invocation. Params are positional.
type Request struct {
	ID     int64         `json:"id"`
	Method string        `json:"method"`
	Params []interface{} `json:"params"`
}

// Response is the reply to a Request. Callback is set for asynchronous RPCs and names the
// callback ID under which the RPC posts its events.
type Response struct {
	ID       int64       `json:"id"`
	Result   interface{} `json:"result"`
	Callback *string     `json:"callback"`
	Error    *string     `json:"error"`
}

// NewResponse builds the Response for a completed RPC.
func NewResponse(id int64, result interface{}, callbackID string, err error) *Response {
	r := &Response{ID: id, Result: result}
	if callbackID != "" {
		r.Callback = &callbackID
	}
	if err != nil {
		msg := err.Error()
		r.Error = &msg
		r.Result = nil
	}
	return r
}

// DecodeHandshake parses the first line of a session.
func DecodeHandshake(line []byte) (*Handshake, error) {
	var h Handshake
	if err := json.Unmarshal(line, &h); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrBadHandshake, err)
	}
	if h.Cmd != CmdInitiate && h.Cmd != CmdContinue {
		return nil, fmt.Errorf("%w: unknown cmd '%s'", ErrBadHandshake, h.Cmd)
	}
	return &h, nil
}

// DecodeRequest parses a request line.
func DecodeRequest(line []byte) (*Request, error) {
	var r Request
	if err := json.Unmarshal(line, &r); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrBadRequest, err)
	}
	if r.Method == "" {
		return nil, fmt.Errorf("%w: missing method", ErrBadRequest)
	}
	return &r, nil
}
