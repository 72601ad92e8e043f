// Package server coordinates client connections and fans out room events via
// the Hub type.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/huddlechat/huddle/internal/room"
)

// Hub owns the set of WebSocket clients and is the single place where room
// state is mutated: every register, unregister, and inbound event is applied
// to completion inside Run before the next one is picked up. The registry,
// store, and router therefore need no locking of their own.
type Hub struct {
	router  *room.Router
	metrics *Metrics
	log     *slog.Logger

	clients    map[*Client]bool
	inbound    chan inbound
	register   chan *Client
	unregister chan *Client

	mutex  sync.RWMutex
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewHub wires a hub to the room's event router.
func NewHub(router *room.Router, metrics *Metrics, log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		router:     router,
		metrics:    metrics,
		log:        log,
		clients:    make(map[*Client]bool),
		inbound:    make(chan inbound),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// Register hands a freshly upgraded connection to the hub. An upgrade that
// races shutdown is abandoned; the connection is closed with everything else.
func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.ctx.Done():
		if c.conn != nil {
			_ = c.conn.Close()
		}
	}
}

// Run is the hub's event loop. It should be started in its own goroutine and
// runs until Shutdown is called.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return
		case client := <-h.register:
			h.attach(client)
		case client := <-h.unregister:
			h.disconnect(client)
		case in := <-h.inbound:
			h.handle(in)
		}
	}
}

func (h *Hub) attach(c *Client) {
	if c == nil {
		h.log.Warn("received nil client registration; skipping")
		return
	}

	h.mutex.Lock()
	c.closed = false
	h.clients[c] = true
	count := len(h.clients)
	h.mutex.Unlock()

	h.metrics.ConnectedClients.Set(float64(count))
	h.log.Info("client connected", "addr", c.addr, "session", c.session.ID, "clients", count)

	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		c.writePump()
	}()
	go func() {
		defer h.wg.Done()
		c.readPump()
	}()

	// Greet the new connection with the current roster.
	h.execute(c, h.router.HandleConnect(c.session))
}

func (h *Hub) handle(in inbound) {
	h.metrics.EventsTotal.WithLabelValues(in.envelope.Event).Inc()

	out := h.router.HandleEvent(in.sender.session, in.envelope)

	// Count messages the router actually appended; frames it discarded
	// produce no chat-message delivery.
	for _, d := range out.Deliveries {
		if d.Envelope.Event == room.EventChatMessage {
			h.metrics.MessagesTotal.Inc()
		}
	}

	h.execute(in.sender, out)
}

// execute carries out one router outcome: deliver every envelope to its
// audience, then apply the termination directives. Clients whose send buffer
// is full or closed are dropped and their departure is routed like any other
// disconnect.
func (h *Hub) execute(sender *Client, out room.Outcome) {
	for _, d := range out.Deliveries {
		payload, err := json.Marshal(d.Envelope)
		if err != nil {
			h.log.Error("marshalling outbound envelope failed", "event", d.Envelope.Event, "error", err)
			continue
		}

		var failed []*Client
		for _, c := range h.recipients(sender, d.Audience) {
			if !h.safeSend(c, payload) {
				failed = append(failed, c)
			}
		}
		for _, c := range failed {
			h.metrics.DroppedClients.Inc()
			h.log.Warn("dropping unresponsive client", "addr", c.addr, "session", c.session.ID)
			h.disconnect(c)
		}
	}

	if out.CloseSender && sender != nil {
		h.disconnect(sender)
	}
	if out.CloseAll {
		for _, c := range h.snapshot() {
			h.disconnect(c)
		}
	}

	h.metrics.ActiveParticipants.Set(float64(h.router.Participants()))
}

// disconnect removes a client from the hub and routes the resulting leave
// broadcast, if its session was still bound to an active participant.
// Closing the send channel lets the write pump flush whatever is queued and
// then finish with a close frame, so the client still receives the last
// envelopes addressed to it.
func (h *Hub) disconnect(c *Client) {
	if !h.drop(c) {
		return
	}
	h.execute(c, h.router.HandleDisconnect(c.session))
}

// drop removes the client from the set and closes its send channel,
// reporting false when the client was already gone.
func (h *Hub) drop(c *Client) bool {
	h.mutex.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mutex.Unlock()
		return false
	}
	delete(h.clients, c)
	c.closed = true
	count := len(h.clients)
	h.mutex.Unlock()

	// Close the channel after releasing the lock.
	close(c.send)

	h.metrics.ConnectedClients.Set(float64(count))
	h.log.Info("client disconnected", "addr", c.addr, "session", c.session.ID, "clients", count)
	return true
}

// recipients resolves a delivery audience to concrete clients, relative to
// the connection whose event produced the delivery.
func (h *Hub) recipients(sender *Client, audience room.Audience) []*Client {
	switch audience {
	case room.AudienceSender:
		if sender == nil {
			return nil
		}
		return []*Client{sender}
	case room.AudienceOthers:
		return lo.Filter(h.snapshot(), func(c *Client, _ int) bool { return c != sender })
	default:
		return h.snapshot()
	}
}

func (h *Hub) safeSend(client *Client, message []byte) bool {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error("recovered from panic in safeSend", "panic", r)
		}
	}()

	// Hold the lock during the entire send operation so the channel cannot
	// be closed underneath us.
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	if _, exists := h.clients[client]; !exists || client.closed {
		return false
	}

	select {
	case client.send <- message:
		return true
	default:
		return false
	}
}

// snapshot returns a thread-safe copy of the current client set.
func (h *Hub) snapshot() []*Client {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	return clients
}

// shutdownClients closes every active client connection.
func (h *Hub) shutdownClients() {
	h.log.Info("shutting down all client connections")

	clients := h.snapshot()
	for _, client := range clients {
		if client.conn != nil {
			if err := client.conn.Close(); err != nil && !isExpectedCloseError(err) {
				h.log.Warn("error closing client connection", "addr", client.addr, "error", err)
			}
		}
	}

	h.log.Info("closed client connections", "count", len(clients))
}

// Shutdown stops the run loop, closes all connections, and waits for the
// pump goroutines to finish or the timeout to expire.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.log.Info("initiating hub shutdown")

	h.cancel()
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.log.Info("hub shutdown completed")
		return nil
	case <-time.After(timeout):
		h.log.Warn("hub shutdown timeout reached; some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
