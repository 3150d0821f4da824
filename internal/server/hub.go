package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/tatianab/game-forge/internal/sandbox"
)

const (
	writeTimeout   = 2 * time.Second
	restartTimeout = 500 * time.Millisecond
)

// message is the frame control protocol between the hub and host pages.
type message struct {
	Type   string `json:"type"`
	Handle string `json:"handle,omitempty"`
	URL    string `json:"url,omitempty"`
	ID     string `json:"id,omitempty"`
	OK     bool   `json:"ok,omitempty"`
	State  string `json:"state,omitempty"`
}

const (
	msgNavigate      = "navigate"
	msgRestart       = "restart"
	msgState         = "state"
	msgLoaded        = "loaded"
	msgRestartResult = "restart_result"
)

// Hub is the sandbox.Frame backed by every connected host page.
type Hub struct {
	log logrus.FieldLogger

	mu       sync.Mutex
	clients  map[*websocket.Conn]struct{}
	current  *message // last navigation, replayed to new pages
	state    *message
	pending  map[string]chan bool
	onLoaded func(handle string)
}

var _ sandbox.Frame = (*Hub)(nil)

func NewHub(log logrus.FieldLogger) *Hub {
	return &Hub{
		log:     log,
		clients: make(map[*websocket.Conn]struct{}),
		pending: make(map[string]chan bool),
	}
}

// SetLoadHandler sets the callback for load-completion reports.
func (h *Hub) SetLoadHandler(fn func(handle string)) {
	h.mu.Lock()
	h.onLoaded = fn
	h.mu.Unlock()
}

// Clients reports how many host pages are connected.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Navigate tells every page to show url. With no page connected the
// navigation is kept and sent to the next one that connects.
func (h *Hub) Navigate(handle, url string) error {
	msg := &message{Type: msgNavigate, Handle: handle, URL: url}
	h.mu.Lock()
	h.current = msg
	conns := h.snapshotLocked()
	h.mu.Unlock()

	h.broadcast(conns, msg)
	return nil
}

// SetState forwards a runtime state so pages can fade the frame in or out.
func (h *Hub) SetState(s sandbox.State) {
	msg := &message{Type: msgState, State: s.String()}
	h.mu.Lock()
	h.state = msg
	conns := h.snapshotLocked()
	h.mu.Unlock()

	h.broadcast(conns, msg)
}

// Restart asks the pages to call the game's restart entry point and waits
// for the first answer.
func (h *Hub) Restart(ctx context.Context) error {
	id := uuid.NewString()
	result := make(chan bool, 1)

	h.mu.Lock()
	conns := h.snapshotLocked()
	if len(conns) == 0 {
		h.mu.Unlock()
		return sandbox.ErrNoFrame
	}
	h.pending[id] = result
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.pending, id)
		h.mu.Unlock()
	}()

	h.broadcast(conns, &message{Type: msgRestart, ID: id})

	ctx, cancel := context.WithTimeout(ctx, restartTimeout)
	defer cancel()
	select {
	case ok := <-result:
		if !ok {
			return sandbox.ErrNoRestartHook
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) snapshotLocked() []*websocket.Conn {
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for c := range h.clients {
		conns = append(conns, c)
	}
	return conns
}

func (h *Hub) broadcast(conns []*websocket.Conn, msg *message) {
	for _, c := range conns {
		if err := h.write(c, msg); err != nil {
			h.log.WithError(err).WithField("type", msg.Type).Debug("Failed to write to host page")
		}
	}
}

func (h *Hub) write(c *websocket.Conn, msg *message) error {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, c, msg)
}

// ServeHTTP upgrades a host page connection and reads its reports until it
// disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("Failed to accept websocket")
		return
	}
	defer c.Close(websocket.StatusNormalClosure, "")

	h.mu.Lock()
	h.clients[c] = struct{}{}
	replay := []*message{h.current, h.state}
	h.mu.Unlock()
	h.log.WithField("remote", r.RemoteAddr).Info("Host page connected")

	defer func() {
		h.mu.Lock()
		delete(h.clients, c)
		h.mu.Unlock()
		h.log.WithField("remote", r.RemoteAddr).Info("Host page disconnected")
	}()

	for _, msg := range replay {
		if msg != nil {
			if err := h.write(c, msg); err != nil {
				return
			}
		}
	}

	ctx := r.Context()
	for {
		var msg message
		if err := wsjson.Read(ctx, c, &msg); err != nil {
			if websocket.CloseStatus(err) == -1 && !errors.Is(err, context.Canceled) {
				h.log.WithError(err).Debug("Websocket read failed")
			}
			return
		}
		h.handle(msg)
	}
}

func (h *Hub) handle(msg message) {
	switch msg.Type {
	case msgLoaded:
		h.mu.Lock()
		fn := h.onLoaded
		h.mu.Unlock()
		if fn != nil {
			fn(msg.Handle)
		}
	case msgRestartResult:
		h.mu.Lock()
		ch, ok := h.pending[msg.ID]
		h.mu.Unlock()
		if ok {
			select {
			case ch <- msg.OK:
			default:
			}
		}
	default:
		h.log.WithField("type", msg.Type).Debug("Ignoring unknown message")
	}
}
