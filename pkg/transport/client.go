/*
 * Copyright 2025 Axioforce Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package transport owns the physical event channel to the Dynamo backend:
// one websocket connection, a reconnect loop, and typed emit/subscribe
// primitives. This is a long-lived field instrument link, so connect
// failures are retried forever; Disconnect is the only way out.
package transport

import (
	"context"
	"fmt"
	"net/url"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/calebkmiecik/FluxDeluxe/pkg/logger"
	"github.com/calebkmiecik/FluxDeluxe/pkg/models"
)

const (
	defaultDialTimeout    = 2 * time.Second
	initialReconnectDelay = 500 * time.Millisecond
	maxReconnectDelay     = 5 * time.Second
	reconnectMultiplier   = 1.7
	dispatchQueueSize     = 256
)

// Handler receives a decoded event payload. Handlers run on the dispatch
// goroutine and must not block; a blocked handler stalls delivery of every
// queued event behind it.
type Handler func(data any)

type handlerEntry struct {
	fn   Handler
	once bool
}

// Client is the event channel client. A Client may be connected and
// disconnected repeatedly; the underlying websocket connection is recreated,
// never reused, on every attempt.
type Client struct {
	log zerolog.Logger

	mu       sync.RWMutex
	status   models.Connection
	conn     *websocket.Conn
	handlers map[string][]handlerEntry

	writeMu sync.Mutex

	dispatch chan func()

	lifeCtx    context.Context
	lifeCancel context.CancelFunc
	runCancel  context.CancelFunc
	runDone    chan struct{}
	wg         sync.WaitGroup

	dialTimeout time.Duration
}

// NewClient creates a disconnected client. The dispatch goroutine lives for
// the client's lifetime, so Post works across connection epochs; Close
// releases it.
func NewClient(log logger.Logger) *Client {
	c := &Client{
		log:         log.WithComponent("transport"),
		handlers:    make(map[string][]handlerEntry),
		dispatch:    make(chan func(), dispatchQueueSize),
		dialTimeout: defaultDialTimeout,
	}

	c.lifeCtx, c.lifeCancel = context.WithCancel(context.Background())

	c.wg.Add(1)

	go c.dispatchLoop(c.lifeCtx)

	return c
}

// Connect starts the background reconnect loop against host:port, first
// waiting for any prior epoch's loop to exit. Connection state is observed
// through the connect/disconnect events and Status snapshots. Must not be
// called from the dispatch goroutine.
func (c *Client) Connect(host string, port int) {
	c.mu.Lock()
	running := c.runCancel != nil
	done := c.runDone
	c.mu.Unlock()

	// A stale epoch's teardown closes whatever connection it finds; wait it
	// out so it can never touch the new epoch's connection or status.
	if running {
		c.Disconnect()
	}

	if done != nil {
		<-done
	}

	c.mu.Lock()
	c.status = models.Connection{Host: host, TransportPort: port}

	ctx, cancel := context.WithCancel(c.lifeCtx)
	done = make(chan struct{})
	c.runCancel = cancel
	c.runDone = done
	c.mu.Unlock()

	c.wg.Add(1)

	go func() {
		defer close(done)
		c.run(ctx, host, port)
	}()
}

// Disconnect stops the reconnect loop and closes any live connection. Safe to
// call from an event handler: teardown happens on the calling goroutine but
// never waits on the dispatch queue.
func (c *Client) Disconnect() {
	c.mu.Lock()
	cancel := c.runCancel
	conn := c.conn
	c.runCancel = nil
	c.conn = nil
	c.mu.Unlock()

	if cancel == nil {
		return
	}

	cancel()

	if conn != nil {
		_ = conn.Close()
	}
}

// Close disconnects and waits for the background goroutines to exit. Must not
// be called from the dispatch goroutine.
func (c *Client) Close() {
	c.Disconnect()
	c.lifeCancel()
	c.wg.Wait()
}

// Status returns a copy of the connection state.
func (c *Client) Status() models.Connection {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.status
}

// Connected reports whether the channel is currently up. Note this flag can
// lag actual transport readiness; Emit never consults it.
func (c *Client) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.status.Connected
}

// On registers a handler for every future delivery of event.
func (c *Client) On(event string, handler Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.handlers[event] = append(c.handlers[event], handlerEntry{fn: handler})
}

// Once registers a handler removed after its first delivery.
func (c *Client) Once(event string, handler Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.handlers[event] = append(c.handlers[event], handlerEntry{fn: handler, once: true})
}

// Emit sends an event to the backend. It deliberately does not pre-check
// connection state: the connected flag has been observed to lag actual
// transport readiness by tens of milliseconds. Failures are recorded into
// the connection's last_error and logged, never returned.
func (c *Client) Emit(event string, data any) {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil {
		c.recordError(fmt.Errorf("emit %s: no connection", event))
		return
	}

	msg, err := encodeFrame(event, data)
	if err != nil {
		c.recordError(err)
		return
	}

	c.writeMu.Lock()
	err = conn.WriteMessage(websocket.TextMessage, msg)
	c.writeMu.Unlock()

	if err != nil {
		c.recordError(fmt.Errorf("emit %s: %w", event, err))
	}
}

// Post marshals fn onto the dispatch goroutine. Components that must mutate
// dispatch-owned state from another goroutine (timers, callers) go through
// here instead of assuming their execution context.
func (c *Client) Post(fn func()) {
	select {
	case c.dispatch <- fn:
	case <-c.lifeCtx.Done():
	}
}

// run is the reconnect loop: dial with a bounded timeout, read until the
// connection drops, back off, repeat. The schedule starts at 500ms, grows
// ×1.7 to a 5s cap, and resets after any successful connection.
func (c *Client) run(ctx context.Context, host string, port int) {
	defer c.wg.Done()

	bo := newReconnectBackoff()
	addr := channelURL(host, port)

	for {
		if ctx.Err() != nil {
			return
		}

		conn, err := c.dial(ctx, addr)
		if err != nil {
			c.recordError(err)

			if !sleepCtx(ctx, bo.NextBackOff()) {
				return
			}

			continue
		}

		bo.Reset()
		c.onConnected(conn, addr)
		c.readLoop(ctx, conn)
		c.onDisconnected()

		if ctx.Err() != nil {
			return
		}

		if !sleepCtx(ctx, bo.NextBackOff()) {
			return
		}
	}
}

func newReconnectBackoff() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = initialReconnectDelay
	bo.Multiplier = reconnectMultiplier
	bo.MaxInterval = maxReconnectDelay
	bo.RandomizationFactor = 0
	bo.Reset()

	return bo
}

func channelURL(host string, port int) string {
	h := strings.TrimSpace(host)
	h = strings.TrimPrefix(h, "http://")
	h = strings.TrimPrefix(h, "https://")
	h = strings.TrimPrefix(h, "ws://")

	u := url.URL{Scheme: "ws", Host: fmt.Sprintf("%s:%d", h, port), Path: "/"}

	return u.String()
}

func (c *Client) dial(ctx context.Context, addr string) (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, c.dialTimeout)
	defer cancel()

	conn, resp, err := websocket.DefaultDialer.DialContext(dialCtx, addr, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	return conn, nil
}

func (c *Client) onConnected(conn *websocket.Conn, addr string) {
	c.mu.Lock()
	c.conn = conn
	c.status.Connected = true
	c.status.LastConnectTime = time.Now()
	c.status.LastError = ""
	c.mu.Unlock()

	c.log.Info().Str("url", addr).Msg("Channel connected")
	c.dispatchEvent(models.EventConnect, nil)
}

func (c *Client) onDisconnected() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.status.Connected = false
	c.status.LastDisconnectTime = time.Now()
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}

	c.log.Info().Msg("Channel disconnected")
	c.dispatchEvent(models.EventDisconnect, nil)
}

// readLoop decodes inbound messages and queues them for dispatch. It returns
// when the connection errors or the context is canceled (which closes the
// connection out from under the blocking read).
func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) {
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				c.recordError(fmt.Errorf("read: %w", err))
			}

			return
		}

		var (
			event string
			data  any
		)

		switch msgType {
		case websocket.TextMessage:
			event, data, err = decodeTextFrame(msg)
		case websocket.BinaryMessage:
			event, data, err = decodeBinaryFrame(msg)
		default:
			continue
		}

		if err != nil {
			// A malformed frame is no signal, not a reason to drop the link.
			c.log.Warn().Err(err).Msg("Discarding undecodable frame")
			continue
		}

		c.dispatchEvent(event, data)
	}
}

func (c *Client) dispatchEvent(event string, data any) {
	c.Post(func() { c.deliver(event, data) })
}

// deliver runs on the dispatch goroutine only.
func (c *Client) deliver(event string, data any) {
	c.mu.Lock()
	entries := c.handlers[event]

	if len(entries) == 0 {
		c.mu.Unlock()
		return
	}

	kept := entries[:0]
	toRun := make([]Handler, 0, len(entries))

	for _, e := range entries {
		toRun = append(toRun, e.fn)

		if !e.once {
			kept = append(kept, e)
		}
	}

	c.handlers[event] = kept
	c.mu.Unlock()

	for _, fn := range toRun {
		c.safeInvoke(event, fn, data)
	}
}

// safeInvoke shields event delivery from a broken subscriber: one panicking
// handler must not stop delivery to the others.
func (c *Client) safeInvoke(event string, fn Handler, data any) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error().
				Str("event", event).
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Msg("Event handler panicked")
		}
	}()

	fn(data)
}

func (c *Client) dispatchLoop(ctx context.Context) {
	defer c.wg.Done()

	for {
		select {
		case fn := <-c.dispatch:
			fn()
		case <-ctx.Done():
			return
		}
	}
}

func (c *Client) recordError(err error) {
	c.mu.Lock()
	c.status.LastError = err.Error()
	c.mu.Unlock()

	c.log.Debug().Err(err).Msg("Channel error")
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
