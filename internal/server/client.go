package server

import (
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/avdeenkov/roomcast/internal/chat"
)

const (
	pongWait      = 60 * time.Second
	pingPeriod    = 54 * time.Second
	writeWait     = 10 * time.Second
	sendQueueSize = 256
)

// Client is one WebSocket connection: it reads inbound frames, decodes them
// into routing events, and drains the hub's outbound queue.
type Client struct {
	id          string
	conn        *websocket.Conn
	hub         *Hub
	send        chan []byte
	addr        string
	limiter     *rateLimiter
	maxFrameLen int64
	log         zerolog.Logger

	sendOnce   sync.Once
	notifyOnce sync.Once
}

// NewClient wraps an upgraded connection. The connection id is minted by
// the caller and identifies this client everywhere in the routing core.
func NewClient(id string, conn *websocket.Conn, hub *Hub, addr string, maxFrameLen int64, limiter *rateLimiter, log zerolog.Logger) *Client {
	if conn != nil {
		conn.SetReadLimit(maxFrameLen)
	}
	return &Client{
		id:          id,
		conn:        conn,
		hub:         hub,
		send:        make(chan []byte, sendQueueSize),
		addr:        addr,
		limiter:     limiter,
		maxFrameLen: maxFrameLen,
		log:         log,
	}
}

func (c *Client) closeSend() {
	c.sendOnce.Do(func() { close(c.send) })
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			c.log.Warn().Err(err).Msg("error closing connection in read pump")
		}
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.logReadError(err)
			return
		}

		if c.limiter != nil && !c.limiter.allow() {
			c.log.Warn().Str("addr", c.addr).Msg("rate limit exceeded; discarding message")
			continue
		}

		ev, err := chat.DecodeInbound(raw)
		if err != nil {
			// Malformed frames are dropped, never echoed back.
			c.log.Debug().Err(err).Str("addr", c.addr).Msg("dropping malformed frame")
			continue
		}

		c.hub.router.Dispatch(c.id, ev)
	}
}

func (c *Client) logReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.log.Warn().Str("addr", c.addr).Int64("limit", c.maxFrameLen).Msg("frame exceeded maximum size")
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure):
		c.log.Debug().Str("addr", c.addr).Msg("client disconnected")
	case errors.Is(err, io.EOF), isExpectedCloseError(err):
		c.log.Debug().Str("addr", c.addr).Msg("connection closed")
	default:
		c.log.Warn().Err(err).Str("addr", c.addr).Msg("websocket read error")
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			c.log.Warn().Err(err).Msg("error closing connection in write pump")
		}
	}()

	for {
		select {
		case payload, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if !c.writeFrame(payload) {
				return
			}
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// writeFrame writes the payload and drains any queued frames into the same
// writer, newline separated.
func (c *Client) writeFrame(payload []byte) bool {
	w, err := c.conn.NextWriter(websocket.TextMessage)
	if err != nil {
		return false
	}
	if _, err := w.Write(payload); err != nil {
		return false
	}

	for range len(c.send) {
		if _, err := w.Write([]byte{'\n'}); err != nil {
			return false
		}
		if _, err := w.Write(<-c.send); err != nil {
			return false
		}
	}

	return w.Close() == nil
}

// isExpectedCloseError reports whether err is routine connection teardown.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "use of closed network connection") ||
		strings.Contains(msg, "websocket: close sent") ||
		strings.Contains(msg, "broken pipe")
}
