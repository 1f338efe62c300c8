package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/conductorhq/conductor/pkg/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 90 * time.Second
	pingPeriod     = 30 * time.Second
	sendBufferSize = 64
)

// Client is one WebSocket connection. Outbound messages go through the
// send channel so a single goroutine owns all writes.
type Client struct {
	id     string
	userID string
	conn   *websocket.Conn
	server *Server
	send   chan protocol.ChannelMessage
	done   chan struct{}
}

// NewClient wraps an upgraded connection.
func NewClient(conn *websocket.Conn, server *Server) *Client {
	return &Client{
		id:     uuid.NewString(),
		conn:   conn,
		server: server,
		send:   make(chan protocol.ChannelMessage, sendBufferSize),
		done:   make(chan struct{}),
	}
}

// ID returns the connection id.
func (c *Client) ID() string { return c.id }

// Enqueue hands a message to the write pump. A full buffer means the
// client cannot keep up; the message is dropped and an error returned
// so the channel layer can log it.
func (c *Client) Enqueue(msg protocol.ChannelMessage) error {
	select {
	case <-c.done:
		return errors.New("connection closed")
	case c.send <- msg:
		return nil
	default:
		return errors.New("send buffer full")
	}
}

// Run drives the read loop; the write pump runs alongside until the
// connection drops.
func (c *Client) Run(ctx context.Context) {
	go c.writePump()
	c.readPump(ctx)
}

// Close tears down the connection.
func (c *Client) Close() {
	select {
	case <-c.done:
	default:
		close(c.done)
	}
	_ = c.conn.Close()
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				slog.Debug("gateway.write_failed", "connection", c.id, "error", err)
				c.Close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		}
	}
}

func (c *Client) readPump(ctx context.Context) {
	// The transport limit must leave room for the JSON envelope around
	// the content, so oversize chat frames reach handleChat's in-band
	// size check instead of tripping a 1009 close.
	limit := int64(1 << 20)
	if max := c.server.cfg.GatewaySnapshot().MaxMessageChars; max > 0 {
		limit = int64(max)*4 + 1024
	}
	c.conn.SetReadLimit(limit)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var frame protocol.ClientFrame
		if err := c.conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("gateway.read_failed", "connection", c.id, "error", err)
			}
			return
		}
		c.server.channels.TouchActivity(c.id)
		c.handleFrame(ctx, frame)
	}
}

func (c *Client) handleFrame(ctx context.Context, frame protocol.ClientFrame) {
	switch frame.Type {
	case protocol.FramePing:
		_ = c.Enqueue(protocol.NewMessage(frame.ConversationID, protocol.TypePong, ""))

	case protocol.FrameJoin:
		if frame.ConversationID == "" {
			c.sendError("", "join requires conversation_id")
			return
		}
		c.server.channels.JoinConversation(c.id, frame.ConversationID)

	case protocol.FrameLeave:
		c.server.channels.LeaveConversation(c.id, frame.ConversationID)

	case protocol.FrameChat:
		c.handleChat(ctx, frame)

	default:
		c.sendError(frame.ConversationID, fmt.Sprintf("unknown frame type %q", frame.Type))
	}
}

// handleChat validates the frame and runs the turn. The turn itself is
// synchronous per frame; ordering within a connection follows the read
// loop.
func (c *Client) handleChat(ctx context.Context, frame protocol.ClientFrame) {
	if frame.ConversationID == "" || frame.Content == "" {
		c.sendError(frame.ConversationID, "chat requires conversation_id and content")
		return
	}
	if max := c.server.cfg.GatewaySnapshot().MaxMessageChars; max > 0 && len(frame.Content) > max {
		c.sendError(frame.ConversationID, fmt.Sprintf("message exceeds %d characters", max))
		return
	}
	if !c.server.limiter.Allow(c.id) {
		c.sendError(frame.ConversationID, "rate limit exceeded, slow down")
		return
	}

	// The sender is implicitly a member of the conversation it writes to.
	c.server.channels.JoinConversation(c.id, frame.ConversationID)

	msg := protocol.NewMessage(frame.ConversationID, protocol.TypeUserMessage, frame.Content)
	if frame.Stream {
		msg.Metadata = map[string]any{"stream": true}
	}

	out := c.server.pipeline.Handle(ctx, msg)

	// Streaming turns deliver their terminal through the stream
	// session; delivering out again would duplicate it.
	if frame.Stream {
		return
	}
	c.server.channels.SendToConversation(frame.ConversationID, out)
}

func (c *Client) sendError(conversationID, text string) {
	_ = c.Enqueue(protocol.NewMessage(conversationID, protocol.TypeError, text))
}
