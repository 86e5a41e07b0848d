// Package client implements the presence protocol state machine: the
// connection lifecycle, heartbeat liveness, and subscription handling
// over a WebSocket transport. Incoming presence events are handed to
// the reconciler in pkg/vigil/presence; rendering is delegated to the
// configured display collaborator.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/petrellis/vigil/pkg/vigil/o11y"
	"github.com/petrellis/vigil/pkg/vigil/presence"
	"github.com/petrellis/vigil/pkg/vigil/wire"
)

// Client is a presence-streaming client. It owns at most one live
// session at a time; Connect while connecting or connected is a no-op,
// and every close or error path discards the session entirely. A new
// Connect always creates a fresh session.
type Client struct {
	// Configuration
	logger           *zap.Logger
	dialTimeout      time.Duration
	writeChannelSize int
	headers          map[string][]string
	monitor          Monitor
	metrics          *Metrics
	tracer           o11y.TracingProvider

	// Presence state. The reconciler owns the table; the client only
	// reads it for snapshots and the subject gauge.
	table      *presence.Table
	reconciler *presence.Reconciler

	mu        sync.Mutex
	state     ConnState
	sess      *session
	requested []string // standing subscription set, re-issued on reconnect
}

// session is the mutable state of one transport connection. It is
// created by Connect, destroyed on close or error, and never reused.
type session struct {
	conn      *websocket.Conn
	ctx       context.Context
	cancel    context.CancelFunc
	writeCh   chan []byte
	done      chan struct{}
	heartbeat *heartbeat
}

// enqueue queues one frame for the write loop without blocking.
func (s *session) enqueue(data []byte) error {
	select {
	case s.writeCh <- data:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	default:
		return errors.New("write channel is full")
	}
}

// open reports whether the session's transport is still usable.
func (s *session) open() bool {
	return s.ctx.Err() == nil
}

// Connect opens a new session to the given endpoint. The endpoint must
// be a ws:// or wss:// URL, otherwise ErrInvalidEndpoint is returned
// with no state change. When a session is already connecting or
// connected the call is a no-op.
func (c *Client) Connect(ctx context.Context, endpoint string) error {
	if endpoint == "" || (!strings.HasPrefix(endpoint, "ws://") && !strings.HasPrefix(endpoint, "wss://")) {
		return fmt.Errorf("%w: %q", ErrInvalidEndpoint, endpoint)
	}

	c.mu.Lock()
	if c.state == StateConnecting || c.state == StateConnected {
		c.mu.Unlock()
		c.logger.Debug("Connect ignored, a session is already live")
		return nil
	}
	status := c.transitionLocked(StateConnecting, "connecting")
	c.mu.Unlock()
	c.notify(status)

	ctx, span := o11y.StartSpan(c.tracer, ctx, "vigil.connect")
	defer span.End()
	span.SetAttributes(o11y.Label{Key: "endpoint", Value: endpoint})

	dialCtx, cancel := context.WithTimeout(ctx, c.dialTimeout)
	defer cancel()

	dialOptions := &websocket.DialOptions{}
	if c.headers != nil {
		dialOptions.HTTPHeader = make(map[string][]string, len(c.headers))
		for key, values := range c.headers {
			dialOptions.HTTPHeader[key] = values
		}
	}

	conn, _, err := websocket.Dial(dialCtx, endpoint, dialOptions)
	if err != nil {
		c.mu.Lock()
		status = c.transitionLocked(StateErrored, "error")
		c.mu.Unlock()
		c.notify(status)
		span.SetStatus(o11y.SpanStatusError, "dial failed")
		return fmt.Errorf("failed to connect to %s: %w", endpoint, err)
	}

	sessCtx, sessCancel := context.WithCancel(context.Background())
	sess := &session{
		conn:    conn,
		ctx:     sessCtx,
		cancel:  sessCancel,
		writeCh: make(chan []byte, c.writeChannelSize),
		done:    make(chan struct{}),
	}
	sess.heartbeat = newHeartbeat(
		func() error {
			data, err := wire.Encode(wire.HeartbeatMessage())
			if err != nil {
				return err
			}
			return sess.enqueue(data)
		},
		sess.open,
		c.logger,
		c.metrics,
	)

	c.mu.Lock()
	c.sess = sess
	resubscribe := append([]string(nil), c.requested...)
	status = c.transitionLocked(StateConnected, "connected")
	c.mu.Unlock()
	c.notify(status)

	c.metrics.RecordConnect(ctx)
	c.logger.Info("Connected", zap.String("endpoint", endpoint))

	go c.readLoop(sess)
	go c.writeLoop(sess)

	// Re-issue the standing subscription so a reconnect picks up where
	// the operator left off.
	if len(resubscribe) > 0 {
		if err := c.issueSubscription(ctx, sess, resubscribe); err != nil {
			c.logger.Warn("Failed to re-issue subscription", zap.Error(err))
		}
	}

	span.SetStatus(o11y.SpanStatusOK, "")
	return nil
}

// Disconnect closes the current session with a normal-closure code.
// With no session it still transitions to disconnected; the call is
// idempotent either way. Displayed data is left as last-known rather
// than cleared.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	sess := c.sess
	c.sess = nil
	status := c.transitionLocked(StateDisconnected, "disconnected")
	c.mu.Unlock()
	c.notify(status)

	if sess == nil {
		return nil
	}

	// The heartbeat must stop in the same turn that closes the session
	// so no ticker outlives its transport.
	sess.heartbeat.stop()
	sess.cancel()
	sess.conn.Close(websocket.StatusNormalClosure, "client disconnect")
	<-sess.done

	c.logger.Info("Disconnected")
	return nil
}

// Subscribe replaces the requested subject set. The connection must be
// live; ids that are not purely numeric are filtered out, and if
// nothing survives the filter ErrNoValidSubjects is returned and
// nothing is sent. On success every requested subject is immediately
// seeded with a pending placeholder and de-subscribed subjects are
// dropped from the table.
func (c *Client) Subscribe(ctx context.Context, subjects []string) error {
	c.mu.Lock()
	sess := c.sess
	if c.state != StateConnected || sess == nil {
		c.mu.Unlock()
		return ErrNotConnected
	}
	c.mu.Unlock()

	valid := filterSubjects(subjects, c.logger)
	if len(valid) == 0 {
		return ErrNoValidSubjects
	}

	ctx, span := o11y.StartSpan(c.tracer, ctx, "vigil.subscribe")
	defer span.End()

	if err := c.issueSubscription(ctx, sess, valid); err != nil {
		span.SetStatus(o11y.SpanStatusError, "send failed")
		return err
	}

	c.mu.Lock()
	c.requested = valid
	c.mu.Unlock()

	span.SetStatus(o11y.SpanStatusOK, "")
	return nil
}

// issueSubscription sends one SUBSCRIBE frame and reconciles the table
// against the new set: stale subjects are cleared, requested ones are
// seeded as pending so placeholders show before any data arrives.
func (c *Client) issueSubscription(ctx context.Context, sess *session, ids []string) error {
	env, err := wire.SubscribeMessage(ids)
	if err != nil {
		return err
	}
	data, err := wire.Encode(env)
	if err != nil {
		return err
	}
	if err := sess.enqueue(data); err != nil {
		return fmt.Errorf("failed to send subscription: %w", err)
	}

	c.metrics.RecordSubscriptionSent(ctx)
	c.logger.Info("Subscription sent", zap.Strings("subjects", ids))

	c.reconciler.Retain(ids)
	c.reconciler.Seed(ids)
	c.metrics.RecordTrackedSubjects(ctx, c.table.Len())
	return nil
}

// Presence returns the last reconciled state for a subject. It remains
// available after a disconnect (stale, last-known data).
func (c *Client) Presence(subjectID string) (*presence.State, bool) {
	return c.table.Get(subjectID)
}

// Subjects returns the currently tracked subject ids.
func (c *Client) Subjects() []string {
	return c.table.IDs()
}

// State returns the current connection state.
func (c *Client) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// transitionLocked records the new state and returns the status to
// push to the monitor once the lock is released.
func (c *Client) transitionLocked(state ConnState, label string) Status {
	c.state = state
	return Status{Kind: state, Label: label}
}

func (c *Client) notify(status Status) {
	if c.monitor != nil {
		c.monitor.OnStatusChange(status)
	}
}

// readLoop delivers inbound frames in arrival order until the
// transport closes or errors.
func (c *Client) readLoop(sess *session) {
	defer close(sess.done)

	for {
		_, data, err := sess.conn.Read(sess.ctx)
		if err != nil {
			c.handleTransportEnd(sess, err)
			return
		}
		c.handleFrame(sess, data)
	}
}

// writeLoop drains the write channel onto the transport.
func (c *Client) writeLoop(sess *session) {
	for {
		select {
		case <-sess.ctx.Done():
			return
		case data := <-sess.writeCh:
			if err := sess.conn.Write(sess.ctx, websocket.MessageText, data); err != nil {
				if sess.ctx.Err() == nil {
					c.logger.Warn("Failed to write frame", zap.Error(err))
				}
				return
			}
		}
	}
}

// handleTransportEnd runs exactly one state transition for a session
// that stopped reading: disconnected with the close code for clean
// closures, errored for everything else. A session already discarded
// by Disconnect or replaced by a later Connect only gets its resources
// torn down.
func (c *Client) handleTransportEnd(sess *session, err error) {
	sess.heartbeat.stop()
	sess.cancel()

	c.mu.Lock()
	if c.sess != sess {
		c.mu.Unlock()
		return
	}
	c.sess = nil

	if code := websocket.CloseStatus(err); code != -1 {
		status := c.transitionLocked(StateDisconnected, fmt.Sprintf("disconnected (%d)", code))
		c.mu.Unlock()
		c.notify(status)
		c.logger.Info("Connection closed", zap.Int("code", int(code)))
		return
	}

	status := c.transitionLocked(StateErrored, "error")
	c.mu.Unlock()
	c.notify(status)
	c.logger.Warn("Transport error", zap.Error(err))
}

// handleFrame decodes one frame and dispatches it. Nothing here is
// allowed to end the session: undecodable frames, unknown ops, and
// rejected events all degrade to a logged warning.
func (c *Client) handleFrame(sess *session, data []byte) {
	env, err := wire.Decode(data)
	if err != nil {
		c.metrics.RecordDecodeFailure(sess.ctx)
		c.logger.Warn("Dropping undecodable frame", zap.Error(err))
		return
	}
	c.metrics.RecordMessageReceived(sess.ctx, env.Op, len(data))

	switch env.Op {
	case wire.OpHello:
		c.handleHello(sess, env)
	case wire.OpEvent:
		if err := c.reconciler.Apply(env.Type, env.Data); err != nil {
			c.metrics.RecordEventDropped(sess.ctx)
			c.logger.Warn("Dropping presence event",
				zap.String("type", env.Type),
				zap.Error(err))
		}
	case wire.OpHeartbeat:
		c.logger.Debug("Server heartbeat received")
	default:
		// Unknown op codes (such as the server's heartbeat ack) are
		// ignored, not fatal.
		c.logger.Debug("Ignoring unknown op", zap.Stringer("op", env.Op))
	}
}

// handleHello negotiates the heartbeat. A hello without a usable
// interval is logged and otherwise ignored; the connection stays up
// without a heartbeat.
func (c *Client) handleHello(sess *session, env wire.Envelope) {
	var hello wire.HelloData
	if env.Data == nil || json.Unmarshal(env.Data, &hello) != nil || hello.HeartbeatInterval <= 0 {
		c.logger.Warn("Hello without a usable heartbeat interval",
			zap.ByteString("payload", env.Data))
		return
	}

	sess.heartbeat.start(time.Duration(hello.HeartbeatInterval) * time.Millisecond)
	c.logger.Info("Heartbeat negotiated", zap.Int("interval_ms", hello.HeartbeatInterval))
}
