package snippet_test

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/blesnip/leaudio-snippet/pkg/event"
	"github.com/blesnip/leaudio-snippet/pkg/protocol"
	"github.com/blesnip/leaudio-snippet/pkg/snippet"
)

type testSnippet struct {
	events    *event.Cache
	shutdowns atomic.Int32
	// shutdownDelay slows Shutdown down, in milliseconds.
	shutdownDelay atomic.Int64
}

func (t *testSnippet) Rpcs() []snippet.Method {
	return []snippet.Method{
		{
			Name: "echo",
			Handler: func(_ context.Context, p snippet.Params) (interface{}, error) {
				return p.String(0)
			},
		},
		{
			Name:  "startJob",
			Async: true,
			Handler: func(_ context.Context, p snippet.Params) (interface{}, error) {
				callbackID, err := p.String(0)
				if err != nil {
					return nil, err
				}
				name, err := p.String(1)
				if err != nil {
					return nil, err
				}
				e := event.New(callbackID, "onJobDone")
				e.Data["name"] = name
				t.events.Post(e)
				return nil, nil
			},
		},
		{
			Name: "block",
			Handler: func(ctx context.Context, _ snippet.Params) (interface{}, error) {
				<-ctx.Done()
				return nil, ctx.Err()
			},
		},
		{
			Name: "fail",
			Handler: func(context.Context, snippet.Params) (interface{}, error) {
				return nil, errors.New("BLE client is not initialized.")
			},
		},
	}
}

func (t *testSnippet) Shutdown() {
	time.Sleep(time.Duration(t.shutdownDelay.Load()) * time.Millisecond)
	t.shutdowns.Add(1)
}

var _ = Describe("Server", func() {
	var (
		events   *event.Cache
		snip     *testSnippet
		server   *snippet.Server
		client   *snippet.Client
		address  string
		serveErr chan error
		ctx      context.Context
	)

	BeforeEach(func() {
		var err error
		events = event.NewCache()
		snip = &testSnippet{events: events}
		server, err = snippet.NewServer(events, snip)
		Expect(err).ToNot(HaveOccurred())
		server.Timeout = 200 * time.Millisecond

		listener, err := net.Listen("tcp", "127.0.0.1:0")
		Expect(err).ToNot(HaveOccurred())
		address = listener.Addr().String()
		serveErr = make(chan error, 1)
		go func() { serveErr <- server.Serve(listener) }()

		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		client, err = snippet.Dial(ctx, address)
		Expect(err).ToNot(HaveOccurred())
		DeferCleanup(func() {
			client.Close()
			server.Close()
			cancel()
		})
	})

	It("assigns a session id", func() {
		Expect(client.UID()).To(BeNumerically(">", 0))
		other, err := snippet.Dial(ctx, address)
		Expect(err).ToNot(HaveOccurred())
		defer other.Close()
		Expect(other.UID()).ToNot(Equal(client.UID()))
	})

	It("executes synchronous methods", func() {
		response, err := client.Call(ctx, "echo", "hello")
		Expect(err).ToNot(HaveOccurred())
		Expect(response.Result).To(Equal("hello"))
		Expect(response.Callback).To(BeNil())
	})

	It("reports handler errors verbatim", func() {
		response, err := client.Call(ctx, "fail")
		var rpcErr *snippet.RPCError
		Expect(errors.As(err, &rpcErr)).To(BeTrue())
		Expect(rpcErr.Message).To(Equal("BLE client is not initialized."))
		Expect(response.Result).To(BeNil())
	})

	It("reports parameter errors", func() {
		_, err := client.Call(ctx, "echo", 12)
		Expect(err).To(MatchError(ContainSubstring("echo: parameter 0 must be a string")))
	})

	It("rejects unknown methods", func() {
		_, err := client.Call(ctx, "noSuchMethod")
		Expect(err).To(MatchError(ContainSubstring(protocol.ErrUnknownMethod.Error())))
		Expect(errors.Is(err, protocol.ErrUnknownMethod)).To(BeTrue())
		Expect(protocol.ShouldRetry(err)).To(BeFalse())
	})

	It("injects callback ids into async methods", func() {
		response, err := client.Call(ctx, "startJob", "first")
		Expect(err).ToNot(HaveOccurred())
		Expect(response.Callback).ToNot(BeNil())
		callbackID := *response.Callback
		Expect(callbackID).To(Equal(fmt.Sprintf("%d-1", client.UID())))

		second, err := client.Call(ctx, "startJob", "second")
		Expect(err).ToNot(HaveOccurred())
		Expect(*second.Callback).ToNot(Equal(callbackID))

		response, err = client.Call(ctx, "eventWaitAndGet", callbackID, "onJobDone", 1000)
		Expect(err).ToNot(HaveOccurred())
		e, ok := response.Result.(map[string]interface{})
		Expect(ok).To(BeTrue())
		Expect(e["callbackId"]).To(Equal(callbackID))
		Expect(e["name"]).To(Equal("onJobDone"))
		Expect(e["data"]).To(HaveKeyWithValue("name", "first"))
	})

	It("times out waiting for events", func() {
		_, err := client.Call(ctx, "eventWaitAndGet", "1-99", "onJobDone", 20)
		Expect(err).To(MatchError(ContainSubstring("EventSnippetException: timeout.")))
	})

	It("returns all queued events", func() {
		response, err := client.Call(ctx, "startJob", "a")
		Expect(err).ToNot(HaveOccurred())
		callbackID := *response.Callback
		e := event.New(callbackID, "onJobDone")
		events.Post(e)

		response, err = client.Call(ctx, "eventGetAll", callbackID, "onJobDone")
		Expect(err).ToNot(HaveOccurred())
		Expect(response.Result).To(HaveLen(2))

		response, err = client.Call(ctx, "eventGetAll", callbackID, "onJobDone")
		Expect(err).ToNot(HaveOccurred())
		Expect(response.Result).To(BeEmpty())
	})

	It("bounds method execution time", func() {
		_, err := client.Call(ctx, "block")
		Expect(err).To(MatchError(ContainSubstring(protocol.ErrRPCTimeout.Error())))
		Expect(protocol.MayHaveSucceeded(err)).To(BeTrue())
		// The server is still responsive afterwards.
		_, err = client.Call(ctx, "echo", "again")
		Expect(err).ToNot(HaveOccurred())
	})

	It("lists methods", func() {
		response, err := client.Call(ctx, "help")
		Expect(err).ToNot(HaveOccurred())
		Expect(response.Result).To(ContainSubstring("startJob <async>"))
		Expect(response.Result).To(ContainSubstring("eventWaitAndGet <builtin>"))
	})

	It("shuts down on closeSl", func() {
		_, err := client.Call(ctx, "closeSl")
		Expect(err).ToNot(HaveOccurred())
		Eventually(serveErr).Should(Receive(MatchError(snippet.ErrServerClosed)))
		Eventually(snip.shutdowns.Load).Should(BeEquivalentTo(1))
		Expect(server.Close()).To(Succeed())
		Expect(snip.shutdowns.Load()).To(BeEquivalentTo(1))
	})

	It("returns from Serve only after snippets are shut down", func() {
		snip.shutdownDelay.Store(200)
		_, err := client.Call(ctx, "closeSl")
		Expect(err).ToNot(HaveOccurred())
		Eventually(serveErr).Should(Receive(MatchError(snippet.ErrServerClosed)))
		Expect(snip.shutdowns.Load()).To(BeEquivalentTo(1))
	})

	It("returns from Serve only after a signal-driven Close completes", func() {
		snip.shutdownDelay.Store(200)
		go server.Close()
		Eventually(serveErr).Should(Receive(MatchError(snippet.ErrServerClosed)))
		Expect(snip.shutdowns.Load()).To(BeEquivalentTo(1))
	})

	It("rejects duplicate methods", func() {
		_, err := snippet.NewServer(events, snip, snip)
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Handshake", func() {
	It("rejects unknown commands", func() {
		server, err := snippet.NewServer(event.NewCache())
		Expect(err).ToNot(HaveOccurred())
		listener, err := net.Listen("tcp", "127.0.0.1:0")
		Expect(err).ToNot(HaveOccurred())
		go server.Serve(listener)
		defer server.Close()

		conn, err := net.Dial("tcp", listener.Addr().String())
		Expect(err).ToNot(HaveOccurred())
		defer conn.Close()
		_, err = conn.Write([]byte(`{"cmd":"hello","uid":-1}` + "\n"))
		Expect(err).ToNot(HaveOccurred())
		reply := make([]byte, 64)
		n, err := conn.Read(reply)
		Expect(err).ToNot(HaveOccurred())
		Expect(string(reply[:n])).To(MatchJSON(`{"status":false,"uid":-1}`))
	})
})
