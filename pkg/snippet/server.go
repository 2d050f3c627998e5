package snippet

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/blesnip/leaudio-snippet/internal/log"
	"github.com/blesnip/leaudio-snippet/pkg/event"
	"github.com/blesnip/leaudio-snippet/pkg/protocol"
)

const (
	DefaultTimeout = 30 * time.Second
	// MaxLineLength bounds a single request line.
	MaxLineLength = 1 << 20
)

// ErrServerClosed is returned by Serve after Close.
var ErrServerClosed = errors.New("snippet: server closed")

// Server dispatches requests to the methods of its snippets.
type Server struct {
	// Timeout bounds the execution of snippet RPCs. Built-in event RPCs are bounded by their own
	// timeout parameter instead.
	Timeout time.Duration

	events   *event.Cache
	snippets []Snippet
	methods  map[string]Method
	builtins map[string]Method

	// rpcLock is a channel-based mutex so that waiting for it can be bounded by a context.
	rpcLock chan struct{}

	nextUID atomic.Int64

	lock     sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	closed   bool
	done     chan struct{}
	sessions sync.WaitGroup
	shutdown sync.Once
}

// NewServer creates a server hosting snippets. Events posted by async methods must go to events.
func NewServer(events *event.Cache, snippets ...Snippet) (*Server, error) {
	s := &Server{
		Timeout:  DefaultTimeout,
		events:   events,
		snippets: snippets,
		methods:  make(map[string]Method),
		rpcLock:  make(chan struct{}, 1),
		conns:    make(map[net.Conn]struct{}),
		done:     make(chan struct{}),
	}
	s.builtins = map[string]Method{
		"eventWaitAndGet": {
			Name:        "eventWaitAndGet",
			Description: "Waits up to timeoutMs for an event (callbackId, name, timeoutMs)",
			Handler:     s.eventWaitAndGet,
		},
		"eventGetAll": {
			Name:        "eventGetAll",
			Description: "Returns and removes all cached events (callbackId, name)",
			Handler:     s.eventGetAll,
		},
		"help": {
			Name:        "help",
			Description: "Lists the available RPCs",
			Handler:     s.help,
		},
		"closeSl": {
			Name:        "closeSl",
			Description: "Stops the snippet server",
			Handler:     s.closeSl,
		},
	}
	for _, snippet := range snippets {
		for _, m := range snippet.Rpcs() {
			if m.Handler == nil {
				return nil, fmt.Errorf("snippet: method %s has no handler", m.Name)
			}
			if _, ok := s.builtins[m.Name]; ok {
				return nil, fmt.Errorf("snippet: method %s shadows a built-in", m.Name)
			}
			if _, ok := s.methods[m.Name]; ok {
				return nil, fmt.Errorf("snippet: duplicate method %s", m.Name)
			}
			s.methods[m.Name] = m
		}
	}
	return s, nil
}

// Serve accepts sessions on l until Close is called. Once the server is closed, Serve returns
// ErrServerClosed only after every snippet has been shut down.
func (s *Server) Serve(l net.Listener) error {
	s.lock.Lock()
	if s.closed {
		s.lock.Unlock()
		return ErrServerClosed
	}
	s.listener = l
	s.lock.Unlock()

	log.Info("Snippet server listening on %s", l.Addr())
	for {
		conn, err := l.Accept()
		if err != nil {
			select {
			case <-s.done:
				// Blocks until a concurrent Close has finished.
				s.Close()
				return ErrServerClosed
			default:
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			return err
		}
		if !s.track(conn) {
			conn.Close()
			s.Close()
			return ErrServerClosed
		}
		s.sessions.Add(1)
		go func() {
			defer s.sessions.Done()
			defer s.untrack(conn)
			s.serveConn(conn)
		}()
	}
}

// Done is closed once the server starts shutting down.
func (s *Server) Done() <-chan struct{} {
	return s.done
}

// Close stops accepting sessions, disconnects clients, and shuts down every snippet.
func (s *Server) Close() error {
	var err error
	s.shutdown.Do(func() {
		s.lock.Lock()
		s.closed = true
		close(s.done)
		if s.listener != nil {
			err = s.listener.Close()
		}
		for conn := range s.conns {
			conn.Close()
		}
		s.lock.Unlock()

		s.sessions.Wait()
		for _, snippet := range s.snippets {
			snippet.Shutdown()
		}
		log.Info("Snippet server stopped")
	})
	return err
}

func (s *Server) track(conn net.Conn) bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.closed {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.lock.Lock()
	defer s.lock.Unlock()
	delete(s.conns, conn)
	conn.Close()
}

// session is one client connection.
type session struct {
	server    *Server
	conn      net.Conn
	uid       int
	callbacks int
	ctx       context.Context
}

func (s *Server) serveConn(conn net.Conn) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-s.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	reader := bufio.NewReaderSize(conn, 4096)
	sess := &session{server: s, conn: conn, ctx: ctx}

	line, err := readLine(reader)
	if err != nil {
		log.Debug("Session from %s closed before handshake: %s", conn.RemoteAddr(), err)
		return
	}
	if !sess.handshake(line) {
		return
	}
	log.Info("Session %d opened from %s", sess.uid, conn.RemoteAddr())
	defer log.Info("Session %d closed", sess.uid)

	for {
		line, err := readLine(reader)
		if err != nil {
			return
		}
		log.Debug("RX %d: %s", sess.uid, line)
		response, stop := sess.handle(line)
		if err := sess.write(response); err != nil {
			log.Warning("Failed to write response to session %d: %s", sess.uid, err)
			return
		}
		if stop {
			// Close waits for sessions, including this one, so it cannot run inline.
			go s.Close()
			return
		}
	}
}

func readLine(reader *bufio.Reader) ([]byte, error) {
	var line []byte
	for {
		chunk, isPrefix, err := reader.ReadLine()
		if err != nil {
			return nil, err
		}
		line = append(line, chunk...)
		if len(line) > MaxLineLength {
			return nil, fmt.Errorf("snippet: request exceeds %d bytes", MaxLineLength)
		}
		if !isPrefix {
			return line, nil
		}
	}
}

func (sess *session) write(v interface{}) error {
	encoded, err := json.Marshal(v)
	if err != nil {
		return err
	}
	log.Debug("TX %d: %s", sess.uid, encoded)
	_, err = sess.conn.Write(append(encoded, '\n'))
	return err
}

func (sess *session) handshake(line []byte) bool {
	h, err := protocol.DecodeHandshake(line)
	if err != nil {
		log.Warning("Rejecting session from %s: %s", sess.conn.RemoteAddr(), err)
		sess.write(&protocol.HandshakeReply{Status: false, UID: protocol.UnknownUID})
		return false
	}
	if h.Cmd == protocol.CmdContinue && h.UID > 0 {
		sess.uid = h.UID
	} else {
		sess.uid = int(sess.server.nextUID.Add(1))
	}
	return sess.write(&protocol.HandshakeReply{Status: true, UID: sess.uid}) == nil
}

// handle executes a request line. stop is true if the server must shut down after the response.
func (sess *session) handle(line []byte) (response *protocol.Response, stop bool) {
	request, err := protocol.DecodeRequest(line)
	if err != nil {
		return protocol.NewResponse(0, nil, "", err), false
	}

	if m, ok := sess.server.builtins[request.Method]; ok {
		params := NewParams(request.Method, request.Params...)
		result, err := m.Handler(sess.ctx, params)
		return protocol.NewResponse(request.ID, result, "", err), request.Method == "closeSl"
	}

	m, ok := sess.server.methods[request.Method]
	if !ok {
		err := fmt.Errorf("%w: %s", protocol.ErrUnknownMethod, request.Method)
		return protocol.NewResponse(request.ID, nil, "", err), false
	}

	values := request.Params
	var callbackID string
	if m.Async {
		sess.callbacks++
		callbackID = fmt.Sprintf("%d-%d", sess.uid, sess.callbacks)
		values = append([]interface{}{callbackID}, values...)
	}
	result, err := sess.server.invoke(sess.ctx, m, NewParams(m.Name, values...))
	if err != nil {
		log.Warning("RPC %s failed: %s", m.Name, err)
		callbackID = ""
	}
	return protocol.NewResponse(request.ID, result, callbackID, err), false
}

// invoke runs a snippet method. Only one snippet method executes at a time across all sessions.
func (s *Server) invoke(ctx context.Context, m Method, params Params) (interface{}, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	select {
	case s.rpcLock <- struct{}{}:
	case <-ctx.Done():
		return nil, rpcContextError(ctx, protocol.ErrBusy)
	}

	type outcome struct {
		result interface{}
		err    error
	}
	finished := make(chan outcome, 1)
	go func() {
		defer func() { <-s.rpcLock }()
		result, err := m.Handler(ctx, params)
		finished <- outcome{result, err}
	}()

	select {
	case o := <-finished:
		if o.err != nil && ctx.Err() != nil && errors.Is(o.err, ctx.Err()) {
			return nil, rpcContextError(ctx, protocol.ErrRPCTimeout)
		}
		return o.result, o.err
	case <-ctx.Done():
		return nil, rpcContextError(ctx, protocol.ErrRPCTimeout)
	}
}

func rpcContextError(ctx context.Context, deadlineErr error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return deadlineErr
	}
	return protocol.ErrSessionClosed
}

func (s *Server) eventWaitAndGet(ctx context.Context, params Params) (interface{}, error) {
	callbackID, err := params.String(0)
	if err != nil {
		return nil, err
	}
	name, err := params.String(1)
	if err != nil {
		return nil, err
	}
	timeoutMs, err := params.Int(2)
	if err != nil {
		return nil, err
	}
	e, err := s.events.WaitAndGet(ctx, callbackID, name, time.Duration(timeoutMs)*time.Millisecond)
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (s *Server) eventGetAll(_ context.Context, params Params) (interface{}, error) {
	callbackID, err := params.String(0)
	if err != nil {
		return nil, err
	}
	name, err := params.String(1)
	if err != nil {
		return nil, err
	}
	return s.events.GetAll(callbackID, name), nil
}

func (s *Server) help(context.Context, Params) (interface{}, error) {
	var lines []string
	for _, m := range s.methods {
		kind := "sync"
		if m.Async {
			kind = "async"
		}
		lines = append(lines, fmt.Sprintf("  %s <%s> %s", m.Name, kind, m.Description))
	}
	for _, m := range s.builtins {
		lines = append(lines, fmt.Sprintf("  %s <builtin> %s", m.Name, m.Description))
	}
	sort.Strings(lines)
	return "Known methods:\n" + strings.Join(lines, "\n"), nil
}

// closeSl only acknowledges the request; the session loop shuts the server down once the reply
// is written.
func (s *Server) closeSl(context.Context, Params) (interface{}, error) {
	return nil, nil
}
