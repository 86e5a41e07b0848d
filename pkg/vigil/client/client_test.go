package client

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/petrellis/vigil/pkg/vigil/presence"
	"github.com/petrellis/vigil/pkg/vigil/wire"
)

// syncRenderer records Render calls safely across goroutines.
type syncRenderer struct {
	mu    sync.Mutex
	calls []syncRenderCall
}

type syncRenderCall struct {
	subjectID string
	state     *presence.State
}

func (r *syncRenderer) Render(subjectID string, state *presence.State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, syncRenderCall{subjectID: subjectID, state: state})
}

func (r *syncRenderer) snapshot() []syncRenderCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]syncRenderCall(nil), r.calls...)
}

// statusRecorder collects Monitor notifications.
type statusRecorder struct {
	mu       sync.Mutex
	statuses []Status
}

func (s *statusRecorder) OnStatusChange(status Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = append(s.statuses, status)
}

func (s *statusRecorder) has(kind ConnState, label string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range s.statuses {
		if st.Kind == kind && st.Label == label {
			return true
		}
	}
	return false
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestConnectValidation(t *testing.T) {
	renderer := &syncRenderer{}
	c, err := NewClient().
		WithLogger(zaptest.NewLogger(t)).
		WithRenderer(renderer).
		Build()
	require.NoError(t, err)

	t.Run("empty endpoint", func(t *testing.T) {
		err := c.Connect(context.Background(), "")
		assert.ErrorIs(t, err, ErrInvalidEndpoint)
		assert.Equal(t, StateDisconnected, c.State())
	})

	t.Run("wrong scheme", func(t *testing.T) {
		err := c.Connect(context.Background(), "http://example.com/ws")
		assert.ErrorIs(t, err, ErrInvalidEndpoint)
		assert.Equal(t, StateDisconnected, c.State())
	})

	t.Run("unreachable endpoint transitions to error", func(t *testing.T) {
		err := c.Connect(context.Background(), "ws://127.0.0.1:1/ws")
		assert.Error(t, err)
		assert.NotErrorIs(t, err, ErrInvalidEndpoint)
		assert.Equal(t, StateErrored, c.State())
	})
}

func TestSubscribeValidation(t *testing.T) {
	renderer := &syncRenderer{}
	c, err := NewClient().
		WithLogger(zaptest.NewLogger(t)).
		WithRenderer(renderer).
		Build()
	require.NoError(t, err)

	t.Run("requires a connection", func(t *testing.T) {
		err := c.Subscribe(context.Background(), []string{"123"})
		assert.ErrorIs(t, err, ErrNotConnected)
	})
}

func TestDisconnectIdempotent(t *testing.T) {
	renderer := &syncRenderer{}
	recorder := &statusRecorder{}
	c, err := NewClient().
		WithLogger(zaptest.NewLogger(t)).
		WithRenderer(renderer).
		WithMonitor(recorder).
		Build()
	require.NoError(t, err)

	// No session exists; the call must still settle on disconnected.
	require.NoError(t, c.Disconnect())
	require.NoError(t, c.Disconnect())
	assert.Equal(t, StateDisconnected, c.State())
	assert.True(t, recorder.has(StateDisconnected, "disconnected"))
}

// TestSessionLifecycle drives the full protocol exchange against an
// in-process server: hello, heartbeat negotiation, subscription,
// initial state delivery, and a clean close with a code.
func TestSessionLifecycle(t *testing.T) {
	subscribed := make(chan []string, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		ctx := r.Context()

		err = conn.Write(ctx, websocket.MessageText,
			[]byte(`{"op":1,"d":{"heartbeat_interval":50}}`))
		if err != nil {
			return
		}

		sawSubscribe, sawHeartbeat := false, false
		for !sawSubscribe || !sawHeartbeat {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			env, err := wire.Decode(data)
			if err != nil {
				continue
			}

			switch env.Op {
			case wire.OpSubscribe:
				sawSubscribe = true
				var sub wire.SubscribeData
				_ = json.Unmarshal(env.Data, &sub)
				subscribed <- sub.SubscribeToIDs

				err = conn.Write(ctx, websocket.MessageText, []byte(`{
					"op": 0,
					"t": "INIT_STATE",
					"d": {
						"discord_user": {"id": "42", "username": "ford"},
						"discord_status": "online",
						"activities": [{"type": 0, "name": "Elite"}],
						"client_status": {"web": true}
					}
				}`))
				if err != nil {
					return
				}
			case wire.OpHeartbeat:
				sawHeartbeat = true
			}
		}

		conn.Close(websocket.StatusGoingAway, "server going away")
	}))
	defer srv.Close()

	renderer := &syncRenderer{}
	recorder := &statusRecorder{}
	c, err := NewClient().
		WithLogger(zaptest.NewLogger(t)).
		WithDialTimeout(5 * time.Second).
		WithRenderer(renderer).
		WithMonitor(recorder).
		Build()
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, c.Connect(ctx, wsURL(srv)))
	assert.Equal(t, StateConnected, c.State())
	assert.True(t, recorder.has(StateConnecting, "connecting"))
	assert.True(t, recorder.has(StateConnected, "connected"))

	// Connecting again while live is a no-op.
	require.NoError(t, c.Connect(ctx, wsURL(srv)))

	// Malformed ids are filtered before the request goes out.
	require.NoError(t, c.Subscribe(ctx, ParseSubjects("42, abc")))

	select {
	case ids := <-subscribed:
		assert.Equal(t, []string{"42"}, ids)
	case <-time.After(2 * time.Second):
		t.Fatal("server never saw the subscription")
	}

	// The placeholder shows before any data arrives.
	state, ok := c.Presence("42")
	require.True(t, ok)
	if state.Record == nil {
		assert.True(t, state.Pending)
	}

	// The initial snapshot lands and reaches the renderer.
	require.Eventually(t, func() bool {
		state, ok := c.Presence("42")
		return ok && state.Record != nil
	}, 2*time.Second, 10*time.Millisecond)

	state, _ = c.Presence("42")
	assert.Equal(t, "ford", state.Record.User.Username)
	assert.Equal(t, "online", state.Record.Status)

	var sawRecord bool
	for _, call := range renderer.snapshot() {
		if call.subjectID == "42" && call.state != nil && call.state.Record != nil {
			sawRecord = true
		}
	}
	assert.True(t, sawRecord, "renderer never saw the populated record")

	// The server closes after the first heartbeat; the client reports
	// the close code and keeps the last-known state.
	require.Eventually(t, func() bool {
		return recorder.has(StateDisconnected, "disconnected (1001)")
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, StateDisconnected, c.State())

	state, ok = c.Presence("42")
	require.True(t, ok)
	assert.Equal(t, "ford", state.Record.User.Username)
}

func TestSubscribeWithoutValidSubjects(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		// Hold the connection open without speaking.
		_, _, _ = conn.Read(r.Context())
		conn.Close(websocket.StatusNormalClosure, "")
	}))
	defer srv.Close()

	renderer := &syncRenderer{}
	c, err := NewClient().
		WithLogger(zaptest.NewLogger(t)).
		WithRenderer(renderer).
		Build()
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, c.Connect(ctx, wsURL(srv)))
	defer c.Disconnect()

	err = c.Subscribe(ctx, ParseSubjects("abc, def"))
	assert.ErrorIs(t, err, ErrNoValidSubjects)
	assert.Empty(t, c.Subjects())
	assert.Empty(t, renderer.snapshot())
}

// killableListener tracks accepted connections so a test can sever
// them at the TCP level, simulating a crashed peer. Closing the
// HTTP server is not enough: hijacked WebSocket connections survive
// it and the client would keep reading forever.
type killableListener struct {
	net.Listener
	mu    sync.Mutex
	conns []net.Conn
}

func (l *killableListener) Accept() (net.Conn, error) {
	conn, err := l.Listener.Accept()
	if err == nil {
		l.mu.Lock()
		l.conns = append(l.conns, conn)
		l.mu.Unlock()
	}
	return conn, err
}

func (l *killableListener) killAll() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, conn := range l.conns {
		conn.Close()
	}
}

func TestAbruptServerFailure(t *testing.T) {
	srv := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		_, _, _ = conn.Read(r.Context())
	}))
	listener := &killableListener{Listener: srv.Listener}
	srv.Listener = listener
	srv.Start()
	defer srv.Close()

	renderer := &syncRenderer{}
	recorder := &statusRecorder{}
	c, err := NewClient().
		WithLogger(zaptest.NewLogger(t)).
		WithRenderer(renderer).
		WithMonitor(recorder).
		Build()
	require.NoError(t, err)

	require.NoError(t, c.Connect(context.Background(), wsURL(srv)))

	// Sever the transport under the client; no close frame is sent.
	listener.killAll()

	require.Eventually(t, func() bool {
		return c.State() == StateErrored
	}, 5*time.Second, 10*time.Millisecond)
	assert.True(t, recorder.has(StateErrored, "error"))

	// A fresh connect is the only recovery path, and it is allowed.
	err = c.Connect(context.Background(), "ws://127.0.0.1:1/ws")
	assert.Error(t, err)
}

// TestReconnectReissuesSubscription verifies that a fresh connect
// replays the standing subscription set without another Subscribe
// call, and re-seeds the table with placeholders.
func TestReconnectReissuesSubscription(t *testing.T) {
	subscriptions := make(chan []string, 2)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		ctx := r.Context()
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			env, err := wire.Decode(data)
			if err != nil || env.Op != wire.OpSubscribe {
				continue
			}
			var sub wire.SubscribeData
			_ = json.Unmarshal(env.Data, &sub)
			subscriptions <- sub.SubscribeToIDs
		}
	}))
	defer srv.Close()

	renderer := &syncRenderer{}
	c, err := NewClient().
		WithLogger(zaptest.NewLogger(t)).
		WithRenderer(renderer).
		Build()
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, c.Connect(ctx, wsURL(srv)))
	require.NoError(t, c.Subscribe(ctx, []string{"123", "456"}))

	select {
	case ids := <-subscriptions:
		assert.Equal(t, []string{"123", "456"}, ids)
	case <-time.After(2 * time.Second):
		t.Fatal("server never saw the first subscription")
	}

	require.NoError(t, c.Disconnect())
	assert.Equal(t, StateDisconnected, c.State())

	require.NoError(t, c.Connect(ctx, wsURL(srv)))
	defer c.Disconnect()

	select {
	case ids := <-subscriptions:
		assert.Equal(t, []string{"123", "456"}, ids)
	case <-time.After(2 * time.Second):
		t.Fatal("server never saw the re-issued subscription")
	}

	assert.ElementsMatch(t, []string{"123", "456"}, c.Subjects())
	state, ok := c.Presence("123")
	require.True(t, ok)
	assert.True(t, state.Pending)
}

func TestUserDisconnectClosesSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		// Echo the close handshake by reading until the client closes.
		for {
			if _, _, err := conn.Read(r.Context()); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	renderer := &syncRenderer{}
	recorder := &statusRecorder{}
	c, err := NewClient().
		WithLogger(zaptest.NewLogger(t)).
		WithRenderer(renderer).
		WithMonitor(recorder).
		Build()
	require.NoError(t, err)

	require.NoError(t, c.Connect(context.Background(), wsURL(srv)))
	require.NoError(t, c.Disconnect())

	assert.Equal(t, StateDisconnected, c.State())
	assert.True(t, recorder.has(StateDisconnected, "disconnected"))

	// Disconnecting again stays a no-op.
	require.NoError(t, c.Disconnect())
}

func TestHelloWithoutUsableInterval(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		// Hello with no interval: the connection must stay alive with
		// no heartbeat rather than fail.
		_ = conn.Write(r.Context(), websocket.MessageText, []byte(`{"op":1,"d":{}}`))
		_, _, _ = conn.Read(r.Context())
		conn.Close(websocket.StatusNormalClosure, "")
	}))
	defer srv.Close()

	renderer := &syncRenderer{}
	c, err := NewClient().
		WithLogger(zaptest.NewLogger(t)).
		WithRenderer(renderer).
		Build()
	require.NoError(t, err)

	require.NoError(t, c.Connect(context.Background(), wsURL(srv)))
	defer c.Disconnect()

	// Give the hello time to arrive, then confirm the session is
	// still up and no heartbeat is running.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, StateConnected, c.State())

	c.mu.Lock()
	sess := c.sess
	c.mu.Unlock()
	require.NotNil(t, sess)
	assert.False(t, sess.heartbeat.active())
}

func TestMalformedFramesAreDropped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		ctx := r.Context()

		// Hold the garbage until the client has subscribed.
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			if env, err := wire.Decode(data); err == nil && env.Op == wire.OpSubscribe {
				break
			}
		}

		frames := []string{
			`this is not json`,
			`{"t":"INIT_STATE","d":{}}`,
			`{"op":11}`,
			`{"op":0,"t":"INIT_STATE","d":{"discord_status":"online"}}`,
			`{"op":0,"t":"INIT_STATE","d":{"discord_user":{"id":"8"},"discord_status":"online"}}`,
			`{"op":0,"t":"INIT_STATE","d":{"discord_user":{"id":"7"},"discord_status":"idle"}}`,
		}
		for _, frame := range frames {
			if err := conn.Write(ctx, websocket.MessageText, []byte(frame)); err != nil {
				return
			}
		}
		_, _, _ = conn.Read(ctx)
		conn.Close(websocket.StatusNormalClosure, "")
	}))
	defer srv.Close()

	renderer := &syncRenderer{}
	c, err := NewClient().
		WithLogger(zaptest.NewLogger(t)).
		WithRenderer(renderer).
		Build()
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, c.Connect(ctx, wsURL(srv)))
	defer c.Disconnect()
	require.NoError(t, c.Subscribe(ctx, []string{"7"}))

	// Only the well-formed event for the subscribed subject survives;
	// all the garbage before it is dropped without ending the session.
	require.Eventually(t, func() bool {
		state, ok := c.Presence("7")
		return ok && state.Record != nil
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, StateConnected, c.State())
	assert.Equal(t, []string{"7"}, c.Subjects())

	// The event for the never-subscribed "8" must not enter the table.
	_, ok := c.Presence("8")
	assert.False(t, ok)
}
