package portal

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/muurk/screenlink/internal/logging"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 512

	clientBuffer = 8
)

// StatusEvent is one message on the /events feed. It mirrors what the
// physical display shows.
type StatusEvent struct {
	Connected bool   `json:"connected"`
	Message   string `json:"message"`
	Loading   bool   `json:"loading,omitempty"`
	Reset     bool   `json:"reset,omitempty"`
}

// Feed fans status messages out to websocket clients. It satisfies the
// supervisor's presenter interface so it can sit next to the real display.
type Feed struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*feedClient]struct{}
	last    *StatusEvent
}

type feedClient struct {
	conn *websocket.Conn
	send chan StatusEvent
}

// NewFeed returns an empty feed.
func NewFeed() *Feed {
	return &Feed{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  512,
			WriteBufferSize: 1024,
			// The page is always served by the portal itself, but captive
			// browsers report odd origins for it.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[*feedClient]struct{}),
	}
}

// ShowConnectionStatus implements the presenter interface.
func (f *Feed) ShowConnectionStatus(connected bool, message string) {
	f.broadcast(StatusEvent{Connected: connected, Message: message})
}

// ShowLoadingMessage implements the presenter interface.
func (f *Feed) ShowLoadingMessage(message string) {
	f.broadcast(StatusEvent{Message: message, Loading: true})
}

// ResetDisplayState implements the presenter interface.
func (f *Feed) ResetDisplayState() {
	f.mu.Lock()
	f.last = nil
	f.mu.Unlock()
	f.broadcast(StatusEvent{Reset: true})
}

// Last returns the most recent status event.
func (f *Feed) Last() (StatusEvent, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.last == nil {
		return StatusEvent{}, false
	}
	return *f.last, true
}

// Clients returns the number of connected websocket clients.
func (f *Feed) Clients() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clients)
}

func (f *Feed) broadcast(ev StatusEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !ev.Reset {
		last := ev
		f.last = &last
	}
	for c := range f.clients {
		select {
		case c.send <- ev:
		default:
			// Slow client; drop it rather than stall the tick loop.
			f.removeLocked(c)
		}
	}
}

func (f *Feed) removeLocked(c *feedClient) {
	if _, ok := f.clients[c]; ok {
		delete(f.clients, c)
		close(c.send)
	}
}

func (f *Feed) remove(c *feedClient) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removeLocked(c)
}

// CloseAll disconnects every client.
func (f *Feed) CloseAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for c := range f.clients {
		f.removeLocked(c)
	}
}

// ServeHTTP upgrades the request and streams status events until the client
// goes away. The latest event is replayed first.
func (f *Feed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Debug("Websocket upgrade failed", zap.Error(err))
		return
	}
	logging.LogConnection(r.RemoteAddr, "events_subscribed")

	c := &feedClient{conn: conn, send: make(chan StatusEvent, clientBuffer)}
	f.mu.Lock()
	f.clients[c] = struct{}{}
	if f.last != nil {
		c.send <- *f.last
	}
	f.mu.Unlock()

	go f.writePump(c)
	f.readPump(c)
	logging.LogConnection(r.RemoteAddr, "events_closed")
}

// readPump discards client messages and detects disconnects.
func (f *Feed) readPump(c *feedClient) {
	defer f.remove(c)

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (f *Feed) writePump(c *feedClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case ev, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := c.conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
