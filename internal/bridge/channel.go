package bridge

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var (
	writeWait    = 10 * time.Second
	pongWait     = 30 * time.Second
	pingInterval = pongWait * 9 / 10
)

// Channel one-way conduit into the embedded player surface. Send never
// reports whether the surface acted on the payload, only whether the bytes
// left this side.
type Channel interface {
	Send(payload []byte) error
	Close() error
}

// WSChannel Channel implementation over the surface's websocket connection
type WSChannel struct {
	conn *websocket.Conn

	mu     sync.Mutex
	closed bool
}

var _ Channel = &WSChannel{}

// NewWSChannel wrap an upgraded websocket connection
func NewWSChannel(conn *websocket.Conn) *WSChannel {
	return &WSChannel{conn: conn}
}

// Send implement Channel, writes are serialized since gorilla connections
// allow a single concurrent writer
func (ch *WSChannel) Send(payload []byte) error {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.closed {
		return websocket.ErrCloseSent
	}
	ch.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return ch.conn.WriteMessage(websocket.TextMessage, payload)
}

// Close implement Channel, safe to call more than once
func (ch *WSChannel) Close() error {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.closed {
		return nil
	}
	ch.closed = true
	return ch.conn.Close()
}

// ReadPump feed inbound frames into ingest until the connection dies. Runs a
// ping/pong heartbeat so a vanished surface is detected instead of leaking
// the connection. Blocks, call from the upgrade handler goroutine.
func (ch *WSChannel) ReadPump(ingest func(payload []byte)) {
	done := make(chan struct{})
	go ch.heartbeat(done)
	defer func() {
		close(done)
		ch.Close()
	}()

	ch.conn.SetReadDeadline(time.Now().Add(pongWait))
	ch.conn.SetPongHandler(func(string) error {
		ch.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		_, payload, err := ch.conn.ReadMessage()
		if err != nil {
			return
		}
		ingest(payload)
	}
}

func (ch *WSChannel) heartbeat(done <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			ch.mu.Lock()
			closed := ch.closed
			if !closed {
				ch.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			}
			ch.mu.Unlock()
			if closed {
				return
			}
		case <-done:
			return
		}
	}
}
