package snippet

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/blesnip/leaudio-snippet/internal/log"
	"github.com/blesnip/leaudio-snippet/pkg/protocol"
)

// RPCError is returned by Client.Call when the server answers with an error message.
type RPCError struct {
	Method  string
	Message string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("%s: %s", e.Method, e.Message)
}

var serverErrors = []error{
	protocol.ErrUnknownMethod,
	protocol.ErrBusy,
	protocol.ErrSessionClosed,
	protocol.ErrRPCTimeout,
}

// Unwrap maps server-side failures back onto their protocol errors so that callers can use
// protocol.ShouldRetry and protocol.MayHaveSucceeded.
func (e *RPCError) Unwrap() error {
	for _, err := range serverErrors {
		if strings.HasPrefix(e.Message, err.Error()) {
			return err
		}
	}
	return nil
}

// Client is a minimal snippet client, used by the interactive shell and tests.
type Client struct {
	conn   net.Conn
	reader *bufio.Reader
	uid    int

	lock   sync.Mutex
	nextID int64
}

// Dial connects to a snippet server and opens a new session.
func Dial(ctx context.Context, address string) (*Client, error) {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, err
	}
	c := &Client{conn: conn, reader: bufio.NewReader(conn)}
	if err := c.handshake(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return c, nil
}

// UID returns the session ID assigned by the server.
func (c *Client) UID() int {
	return c.uid
}

func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) roundTrip(ctx context.Context, request interface{}, reply interface{}) error {
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Time{}
	}
	if err := c.conn.SetDeadline(deadline); err != nil {
		return err
	}
	encoded, err := json.Marshal(request)
	if err != nil {
		return err
	}
	log.Debug("TX: %s", encoded)
	if _, err := c.conn.Write(append(encoded, '\n')); err != nil {
		return err
	}
	line, err := readLine(c.reader)
	if err != nil {
		return err
	}
	log.Debug("RX: %s", line)
	return json.Unmarshal(line, reply)
}

func (c *Client) handshake(ctx context.Context) error {
	var reply protocol.HandshakeReply
	request := protocol.Handshake{Cmd: protocol.CmdInitiate, UID: protocol.UnknownUID}
	if err := c.roundTrip(ctx, &request, &reply); err != nil {
		return err
	}
	if !reply.Status {
		return protocol.ErrBadHandshake
	}
	c.uid = reply.UID
	return nil
}

// Call invokes method and waits for its response. Responses carrying an error message are
// returned together with an *RPCError.
func (c *Client) Call(ctx context.Context, method string, params ...interface{}) (*protocol.Response, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.nextID++
	if params == nil {
		params = []interface{}{}
	}
	request := protocol.Request{ID: c.nextID, Method: method, Params: params}
	var response protocol.Response
	if err := c.roundTrip(ctx, &request, &response); err != nil {
		return nil, err
	}
	if response.ID != request.ID {
		return nil, fmt.Errorf("snippet: response id %d does not match request id %d", response.ID, request.ID)
	}
	if response.Error != nil {
		return &response, &RPCError{Method: method, Message: *response.Error}
	}
	return &response, nil
}
