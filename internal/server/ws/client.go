package ws

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/repolens/repolens/internal/lensmsg"
	"github.com/repolens/repolens/internal/utils"
)

const (
	writeTimeout   = 20 * time.Second
	shutdownReason = "shutdown"
)

// Client is one connected dashboard.
type Client struct {
	ConnID  string
	EventTx chan *lensmsg.Event
	Closed  chan struct{}

	conn      *websocket.Conn
	wsDone    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func NewClient(conn *websocket.Conn) *Client {
	return &Client{
		ConnID:  utils.TokenHex(4),
		EventTx: make(chan *lensmsg.Event, 64),
		Closed:  make(chan struct{}),
		wsDone:  make(chan struct{}),
		conn:    conn,
	}
}

func (c *Client) Start(ctx context.Context) {
	slog.Debug("wsclient start", "connId", c.ConnID)
	c.wg.Add(2)
	go c.writeLoop(ctx)
	go c.readLoop(ctx)
}

func (c *Client) Close() {
	c.closeConnection(websocket.StatusNormalClosure, shutdownReason)
}

func (c *Client) closeConnection(status websocket.StatusCode, reason string) {
	c.closeOnce.Do(func() {
		close(c.wsDone)
		c.conn.Close(status, reason)

		c.wg.Wait()

		close(c.Closed)
		slog.Debug("wsclient closed", "connId", c.ConnID)
	})
}

// readLoop exists to notice the peer going away. Inbound frames are
// discarded; the stream is push-only.
func (c *Client) readLoop(ctx context.Context) {
	defer func() {
		slog.Debug("wsclient reader shutdown", "connId", c.ConnID)
		c.wg.Done()
		go c.closeConnection(websocket.StatusNormalClosure, shutdownReason)
	}()

	for {
		if _, _, err := c.conn.Read(ctx); err != nil {
			if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
				// connection closed by client
			} else if status := websocket.CloseStatus(err); status != websocket.StatusNormalClosure && status != websocket.StatusNoStatusRcvd && status != websocket.StatusGoingAway {
				slog.Warn("wsclient reader", "error", err, "connId", c.ConnID)
			}
			return
		}
	}
}

func (c *Client) writeLoop(ctx context.Context) {
	defer func() {
		slog.Debug("wsclient writer shutdown", "connId", c.ConnID)
		c.wg.Done()
		go c.closeConnection(websocket.StatusNormalClosure, shutdownReason)
	}()

	for {
		select {
		case ev := <-c.EventTx:
			ctxWrite, cancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(ctxWrite, c.conn, ev)
			cancel()
			if err != nil {
				slog.Debug("wsclient writer", "connId", c.ConnID, "eventId", ev.ID, "kind", ev.Kind, "error", err)
				return
			}

		case <-c.wsDone:
			return

		case <-ctx.Done():
			return
		}
	}
}
