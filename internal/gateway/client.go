package gateway

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/quillhq/quill/backend/internal/protocol"
	"github.com/quillhq/quill/backend/internal/ratelimit"
	"github.com/quillhq/quill/backend/internal/room"
)

const (
	writeWait         = 10 * time.Second
	pongWait          = 60 * time.Second
	pingPeriod        = (pongWait * 9) / 10
	maxMessageSize    = 1024 * 1024
	sendBuffer        = 512
	messagesPerSecond = 100
	messageBurst      = 200
)

var errSendBlocked = errors.New("send buffer full or connection closing")

// client is one websocket channel bound to a room. It implements room.Conn.
type client struct {
	id     string
	userID string
	room   *room.Room

	conn    *websocket.Conn
	send    chan []byte
	done    chan struct{}
	closing sync.Once

	limiter *ratelimit.Limiter
	log     zerolog.Logger
}

func newClient(conn *websocket.Conn, userID string, log zerolog.Logger) *client {
	id := uuid.NewString()
	return &client{
		id:      id,
		userID:  userID,
		conn:    conn,
		send:    make(chan []byte, sendBuffer),
		done:    make(chan struct{}),
		limiter: ratelimit.NewLimiter(messagesPerSecond, messageBurst),
		log:     log.With().Str("client", id).Str("user", userID).Logger(),
	}
}

func (c *client) ID() string {
	return c.id
}

func (c *client) UserID() string {
	return c.userID
}

// Send enqueues a frame without blocking. The room evicts us if the buffer
// is full or the channel is closing.
func (c *client) Send(frame []byte) error {
	select {
	case <-c.done:
		return errSendBlocked
	case c.send <- frame:
		return nil
	default:
		return errSendBlocked
	}
}

func (c *client) Close() {
	c.closing.Do(func() {
		close(c.done)
	})
}

func (c *client) readPump() {
	defer func() {
		c.room.RemoveConnection(c)
		c.Close()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	rateLimitWarnings := 0

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warn().Err(err).Msg("read failed")
			}
			return
		}

		if !c.limiter.Allow() {
			rateLimitWarnings++
			if rateLimitWarnings%100 == 1 {
				c.log.Warn().Int("warnings", rateLimitWarnings).Msg("rate limit exceeded")
			}
			if rateLimitWarnings > 1000 {
				c.log.Warn().Msg("disconnecting for excessive rate limit violations")
				return
			}
			continue
		}

		if err := protocol.Validate(frame); err != nil {
			c.log.Warn().Err(err).Msg("invalid frame")
			return
		}

		if err := c.room.HandleFrame(c, frame); err != nil {
			// The room has already evicted us.
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
