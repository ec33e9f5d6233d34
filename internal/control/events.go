// ABOUTME: WebSocket event hub pushing session lifecycle and level events
// ABOUTME: Slow subscribers lose events instead of stalling the pipeline
package control

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	// eventSendDepth buffers events per subscriber.
	eventSendDepth = 100

	writeDeadline = 10 * time.Second
	pingInterval  = 30 * time.Second
)

// Event is one message on the /events stream.
type Event struct {
	Type    string    `json:"type"`
	Time    time.Time `json:"time"`
	Session string    `json:"session,omitempty"`
	Stream  string    `json:"stream,omitempty"`
	LevelDB *float64  `json:"level_db,omitempty"`
	Missing int       `json:"missing,omitempty"`
	Error   string    `json:"error,omitempty"`
}

type eventClient struct {
	conn *websocket.Conn
	send chan Event
}

// eventHub fans session events out to websocket subscribers.
type eventHub struct {
	log      *logrus.Entry
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*eventClient]struct{}
	closed  bool
}

func newEventHub(log *logrus.Entry) *eventHub {
	return &eventHub{
		log: log,
		upgrader: websocket.Upgrader{
			// The control surface is for trusted local networks; any
			// origin may subscribe.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*eventClient]struct{}),
	}
}

// broadcast queues an event to every subscriber. A subscriber whose
// buffer is full misses the event.
func (h *eventHub) broadcast(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- ev:
		default:
			h.log.Debugf("event subscriber lagging, dropped %s event", ev.Type)
		}
	}
}

// serve upgrades the request and streams events until the subscriber
// goes away or the hub closes.
func (h *eventHub) serve(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warnf("websocket upgrade: %v", err)
		return
	}

	c := &eventClient{
		conn: conn,
		send: make(chan Event, eventSendDepth),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	h.log.Debugf("event subscriber connected: %s", r.RemoteAddr)

	go h.writer(c)
	h.reader(c)
}

// reader consumes the subscriber side until it disconnects; events
// flow one way only.
func (h *eventHub) reader(c *eventClient) {
	defer h.drop(c)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *eventHub) writer(c *eventClient) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-c.send:
			if !ok {
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, []byte{},
				time.Now().Add(writeDeadline)); err != nil {
				return
			}
		}
	}
}

// drop unregisters a subscriber and releases its connection.
func (h *eventHub) drop(c *eventClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
	c.conn.Close()
}

// closeAll disconnects every subscriber during shutdown.
func (h *eventHub) closeAll() {
	h.mu.Lock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
		c.conn.Close()
	}
	h.mu.Unlock()
}
