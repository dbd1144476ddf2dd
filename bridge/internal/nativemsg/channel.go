// Package nativemsg owns the single persistent connection to the
// external native helper and demultiplexes its inbound traffic.
package nativemsg

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/asaskevich/EventBus"
	"github.com/smartvideo/ytdlp-bridge/bridge/internal/correlation"
	"github.com/smartvideo/ytdlp-bridge/bridge/internal/protocol"
)

// EventTopic is the bus topic broadcast events are published to when no
// pending handler claims them.
const EventTopic = "native:event"

// Channel multiplexes request/response exchanges and fire-and-forget
// jobs over one helper connection. The connection is established lazily
// on the first send; after a disconnect the next send reconnects.
// There is no queuing while disconnected: a send that cannot establish
// a connection fails immediately with protocol.ErrConnection.
type Channel struct {
	dial     Dialer
	registry *correlation.Registry
	bus      EventBus.Bus

	mu        sync.Mutex
	transport Transport
	closed    bool
}

func NewChannel(dial Dialer, registry *correlation.Registry, bus EventBus.Bus) *Channel {
	return &Channel{
		dial:     dial,
		registry: registry,
		bus:      bus,
	}
}

// Send transmits a fire-and-forget payload. A missing job id is filled
// in with a fresh one. Send never blocks on the helper's reply.
func (c *Channel) Send(req protocol.Request) (string, error) {
	if req.JobID == "" {
		req.JobID = correlation.NewJobID()
	}

	t, err := c.connect()
	if err != nil {
		return "", fmt.Errorf("%w: %v", protocol.ErrConnection, err)
	}

	if err := t.WriteMessage(req); err != nil {
		c.teardown(t)
		return "", fmt.Errorf("%w: %v", protocol.ErrConnection, err)
	}

	slog.Debug("sent native request",
		slog.String("type", string(req.Type)),
		slog.String("id", req.JobID),
	)

	return req.JobID, nil
}

// Request performs a request/response exchange: it registers a pending
// handler for the job id, transmits, and waits for the single matching
// response. No timeout is enforced here; the helper may legitimately
// take very long (probing a large video), so deadlines are the caller's
// business via ctx.
func (c *Channel) Request(ctx context.Context, req protocol.Request) (protocol.Message, error) {
	if req.JobID == "" {
		req.JobID = correlation.NewJobID()
	}

	reply := make(chan protocol.Message, 1)
	c.registry.Register(req.JobID, func(m protocol.Message) { reply <- m })

	if _, err := c.Send(req); err != nil {
		c.registry.Discard(req.JobID)
		return protocol.Message{}, err
	}

	select {
	case <-ctx.Done():
		c.registry.Discard(req.JobID)
		return protocol.Message{}, ctx.Err()
	case msg := <-reply:
		if !msg.OK {
			reason := msg.Error
			if reason == "" {
				reason = "response without success flag"
			}
			return msg, fmt.Errorf("%w: %s", protocol.ErrProtocol, reason)
		}
		return msg, nil
	}
}

// Close tears down the current connection, if any. Pending handlers are
// discarded, never invoked.
func (c *Channel) Close() {
	c.mu.Lock()
	t := c.transport
	c.transport = nil
	c.closed = true
	c.mu.Unlock()

	if t != nil {
		t.Close()
	}
	c.registry.DiscardAll()
}

func (c *Channel) connect() (Transport, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, fmt.Errorf("channel closed")
	}

	if c.transport != nil {
		return c.transport, nil
	}

	t, err := c.dial()
	if err != nil {
		return nil, err
	}

	slog.Info("connected to native helper")

	c.transport = t
	go c.readPump(t)

	return t, nil
}

// teardown discards a dead connection so the next send re-establishes
// it. Only the transport that failed is discarded: a racing reconnect
// must not be torn down by a stale pump.
func (c *Channel) teardown(t Transport) {
	c.mu.Lock()
	if c.transport == t {
		c.transport = nil
	}
	c.mu.Unlock()

	t.Close()
	c.registry.DiscardAll()
}

// readPump drains inbound frames for the lifetime of one connection.
// Dispatch is two-staged and deterministic: correlation resolution is
// always attempted first, only unclaimed messages are broadcast.
// Messages are handed to subscribers in delivery order.
func (c *Channel) readPump(t Transport) {
	for {
		msg, err := t.ReadMessage()
		if err != nil {
			slog.Warn("native channel read failed", slog.Any("err", err))
			c.teardown(t)
			return
		}

		if msg.JobID == "" {
			slog.Warn("dropping native message without job id")
			continue
		}

		if c.registry.Resolve(msg.JobID, msg) {
			continue
		}

		c.bus.Publish(EventTopic, msg)
	}
}
