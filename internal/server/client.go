// Package server manages individual WebSocket clients, handling read/write
// pumps, rate limiting, and lifecycle control for each connection.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/huddlechat/huddle/internal/room"
)

const (
	// pongWait is how long a connection may stay silent before it is
	// considered dead; pingPeriod must be shorter so a ping goes out first.
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	writeWait  = 10 * time.Second

	sendBufferSize = 256
)

// Client represents one WebSocket connection. Its session carries the
// participant identity the room router binds on a successful join.
type Client struct {
	conn           *websocket.Conn
	send           chan []byte
	hub            *Hub
	session        *room.Session
	addr           string
	closed         bool
	maxMessageSize int64
	limiter        *tokenBucket
	log            *slog.Logger
}

// NewClient creates a Client for an upgraded connection. The send channel is
// buffered so broadcasts never block the hub loop.
func NewClient(conn *websocket.Conn, hub *Hub, cfg *Config, addr string) *Client {
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}
	session := room.NewSession()

	return &Client{
		conn:           conn,
		send:           make(chan []byte, sendBufferSize),
		hub:            hub,
		session:        session,
		addr:           addr,
		maxMessageSize: cfg.MaxMessageSize,
		limiter:        newTokenBucket(cfg.RateLimitBurst, cfg.RateLimitRefill),
		log:            hub.log.With("addr", addr, "session", session.ID),
	}
}

// setupReadConnection configures read deadlines and the pong handler.
func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.log.Warn("setting initial read deadline failed", "error", err)
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			c.log.Warn("setting read deadline in pong handler failed", "error", err)
		}
		return nil
	})
}

// logReadError classifies a read failure; every read error ends the pump.
func (c *Client) logReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.log.Warn("frame exceeded maximum size", "limit", c.maxMessageSize)
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure):
		c.log.Info("client disconnected", "reason", err)
	case errors.Is(err, io.EOF) || isExpectedCloseError(err):
		c.log.Info("connection closed", "reason", err)
	case websocket.IsUnexpectedCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseMessageTooBig):
		c.log.Warn("unexpected WebSocket error", "error", err)
	default:
		c.log.Warn("WebSocket read error", "error", err)
	}
}

// processFrame decodes a raw frame into an envelope and hands it to the hub
// loop. Frames that are not valid envelopes are discarded; a bad payload
// never costs the connection.
func (c *Client) processFrame(raw []byte) {
	var env room.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		c.log.Debug("discarding malformed frame", "error", err)
		return
	}
	if env.Event == "" {
		c.log.Debug("discarding frame without event name")
		return
	}
	// The run loop stops draining inbound once shutdown begins; abandon the
	// frame rather than blocking the read pump.
	select {
	case c.hub.inbound <- inbound{sender: c, envelope: env}:
	case <-c.hub.ctx.Done():
	}
}

func (c *Client) readPump() {
	defer func() {
		// During hub shutdown the run loop is gone; the connection is being
		// torn down anyway, so the unregister can be abandoned.
		select {
		case c.hub.unregister <- c:
		case <-c.hub.ctx.Done():
		}
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			c.log.Warn("error closing connection in readPump", "error", err)
		}
	}()

	c.setupReadConnection()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.logReadError(err)
			break
		}

		if !c.limiter.take() {
			c.log.Warn("rate limit exceeded; discarding frame")
			continue
		}

		c.processFrame(raw)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.closeConnection()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !c.writeOutbound(message, ok) {
				return
			}
		case <-ticker.C:
			if !c.writePing() {
				return
			}
		case <-c.hub.ctx.Done():
			return
		}
	}
}

func (c *Client) closeConnection() {
	if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
		c.log.Warn("error closing connection in writePump", "error", err)
	}
}

// writeOutbound sends one envelope per frame; clients decode frame-by-frame,
// so envelopes are never batched. A closed send channel ends the pump with a
// close frame, after the hub has let the buffer flush.
func (c *Client) writeOutbound(message []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.log.Warn("setting write deadline failed", "error", err)
		return false
	}

	if !ok {
		if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil && !isExpectedCloseError(err) {
			c.log.Warn("writing close message failed", "error", err)
		}
		return false
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		if !isExpectedCloseError(err) {
			c.log.Warn("writing message failed", "error", err)
		}
		return false
	}
	return true
}

func (c *Client) writePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.log.Warn("setting write deadline for ping failed", "error", err)
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		if !isExpectedCloseError(err) {
			c.log.Warn("writing ping failed", "error", err)
		}
		return false
	}
	return true
}
