// Package bridge exposes the animation session over HTTP: a websocket feed
// of morph target influences, a settings API and process metrics.
package bridge

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/normanking/audioface/internal/session"
	"github.com/rs/zerolog"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 16
)

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// FaceBridge streams session snapshots to websocket clients. A client that
// falls behind misses snapshots; the tick never waits on the network.
type FaceBridge struct {
	upgrader websocket.Upgrader
	logger   zerolog.Logger

	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool
	wg      sync.WaitGroup

	dropped uint64
}

func NewFaceBridge(logger zerolog.Logger) *FaceBridge {
	return &FaceBridge{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger:  logger.With().Str("component", "face_bridge").Logger(),
		clients: make(map[*client]struct{}),
	}
}

// Broadcast implements session.SnapshotSink
func (b *FaceBridge) Broadcast(snap session.Snapshot) {
	data, err := json.Marshal(snap)
	if err != nil {
		b.logger.Error().Err(err).Msg("Failed to marshal snapshot")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for c := range b.clients {
		select {
		case c.send <- data:
		default:
			b.dropped++
		}
	}
}

// ClientCount returns the number of connected clients
func (b *FaceBridge) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Dropped returns how many snapshots were skipped for slow clients
func (b *FaceBridge) Dropped() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.dropped
}

func (b *FaceBridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		conn.Close()
		return
	}
	b.clients[c] = struct{}{}
	n := len(b.clients)
	b.wg.Add(2)
	b.mu.Unlock()

	b.logger.Debug().Int("clients", n).Msg("Client connected")

	go b.writePump(c)
	go b.readPump(c)
}

func (b *FaceBridge) unregister(c *client) {
	b.mu.Lock()
	if _, ok := b.clients[c]; ok {
		delete(b.clients, c)
		close(c.send)
	}
	n := len(b.clients)
	b.mu.Unlock()
	b.logger.Debug().Int("clients", n).Msg("Client disconnected")
}

func (b *FaceBridge) writePump(c *client) {
	defer b.wg.Done()
	defer c.conn.Close()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump only services control frames; clients never send data.
func (b *FaceBridge) readPump(c *client) {
	defer b.wg.Done()
	defer b.unregister(c)

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				b.logger.Debug().Err(err).Msg("WebSocket read error")
			}
			return
		}
	}
}

// Close disconnects every client and waits for their pumps to exit.
func (b *FaceBridge) Close(ctx context.Context) error {
	b.mu.Lock()
	b.closed = true
	for c := range b.clients {
		c.conn.Close()
	}
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
