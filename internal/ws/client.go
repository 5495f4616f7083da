package ws

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeTimeout      = 10 * time.Second
	heartbeatInterval = 45 * time.Second
	// readIdleLimit должен превышать интервал heartbeat, иначе живое
	// соединение будет закрываться между ping и pong.
	readIdleLimit = heartbeatInterval + 15*time.Second

	maxInboundBytes = 64 * 1024
	outboxSize      = 16
)

// Client — одно подключение стороны сделки. Поток односторонний: сервер
// шлёт события заказов, входящие сообщения используются только для
// поддержания соединения.
type Client struct {
	conn   *websocket.Conn
	hub    *Hub
	userID uuid.UUID
	outbox chan []byte
}

func NewClient(conn *websocket.Conn, hub *Hub, userID uuid.UUID) *Client {
	return &Client{
		conn:   conn,
		hub:    hub,
		userID: userID,
		outbox: make(chan []byte, outboxSize),
	}
}

// Run обслуживает соединение до его закрытия или отмены контекста.
func (c *Client) Run(ctx context.Context) {
	go c.deliverLoop()
	c.keepAliveLoop(ctx)
}

// Close снимает регистрацию в хабе и закрывает соединение.
func (c *Client) Close() {
	c.hub.Unregister(c)
	c.conn.Close()
}

// keepAliveLoop вычитывает входящий поток ради pong-кадров и обнаружения
// обрыва. Любое содержимое от клиента игнорируется.
func (c *Client) keepAliveLoop(ctx context.Context) {
	defer c.Close()

	c.conn.SetReadLimit(maxInboundBytes)
	c.resetReadDeadline()
	c.conn.SetPongHandler(func(string) error {
		c.resetReadDeadline()
		return nil
	})

	for ctx.Err() == nil {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// deliverLoop пишет события из исходящей очереди и периодические ping-кадры.
func (c *Client) deliverLoop() {
	heartbeat := time.NewTicker(heartbeatInterval)
	defer func() {
		heartbeat.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case event, ok := <-c.outbox:
			if !ok {
				c.write(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.write(websocket.TextMessage, event); err != nil {
				return
			}
		case <-heartbeat.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) write(messageType int, payload []byte) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(messageType, payload)
}

func (c *Client) resetReadDeadline() {
	_ = c.conn.SetReadDeadline(time.Now().Add(readIdleLimit))
}
