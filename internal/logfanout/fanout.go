// Package logfanout relays a worker's live build log, over a websocket
// connection, out to any number of viewer connections subscribed to that
// worker's hostname, replaying a bounded backlog to new subscribers.
package logfanout

import (
	"context"
	"sync"

	"github.com/gorilla/websocket"
)

// replayLimit is the per-hostname backlog size, matching the original
// server's 1000-entry last_logs deque.
const replayLimit = 1000

type viewer struct {
	ch chan string
}

type hostState struct {
	viewers   map[*viewer]struct{}
	lastLines []string
}

// Hub fans worker log lines out to viewer connections, one hostState per
// hostname, guarded by a single RWMutex (the original uses one
// Mutex<HashMap<String, WSState>> for the same reason: hostnames come and
// go, a lock per entry would outlive its worker).
type Hub struct {
	mu    sync.RWMutex
	hosts map[string]*hostState
}

// NewHub constructs an empty Hub.
func NewHub() *Hub {
	return &Hub{hosts: make(map[string]*hostState)}
}

func (h *Hub) state(hostname string) *hostState {
	h.mu.Lock()
	defer h.mu.Unlock()
	st, ok := h.hosts[hostname]
	if !ok {
		st = &hostState{viewers: make(map[*viewer]struct{})}
		h.hosts[hostname] = st
	}
	return st
}

// Publish broadcasts a single log line to every viewer currently
// subscribed to hostname and appends it to the replay backlog, dropping
// the oldest entry once the backlog exceeds replayLimit.
func (h *Hub) Publish(hostname, line string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	st, ok := h.hosts[hostname]
	if !ok {
		st = &hostState{viewers: make(map[*viewer]struct{})}
		h.hosts[hostname] = st
	}

	st.lastLines = append(st.lastLines, line)
	if len(st.lastLines) > replayLimit {
		st.lastLines = st.lastLines[len(st.lastLines)-replayLimit:]
	}

	for v := range st.viewers {
		select {
		case v.ch <- line:
		default:
			// viewer is too slow to keep up; drop the line for them
			// rather than blocking every other viewer and the worker.
		}
	}
}

// ServeWorker reads text frames off conn, one per log line, publishing
// each under hostname until the connection closes or ctx is cancelled.
// Mirrors handle_worker_socket's try_for_each loop.
func (h *Hub) ServeWorker(ctx context.Context, hostname string, conn *websocket.Conn) {
	defer conn.Close()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		h.Publish(hostname, string(data))
	}
}

// ServeViewer registers conn as a subscriber to hostname, replays the
// current backlog, then forwards new lines until the connection closes or
// ctx is cancelled. Mirrors handle_viewer_socket.
func (h *Hub) ServeViewer(ctx context.Context, hostname string, conn *websocket.Conn) {
	defer conn.Close()

	st := h.state(hostname)
	v := &viewer{ch: make(chan string, 256)}

	h.mu.Lock()
	backlog := append([]string(nil), st.lastLines...)
	st.viewers[v] = struct{}{}
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(st.viewers, v)
		h.mu.Unlock()
	}()

	for _, line := range backlog {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(line)); err != nil {
			return
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-v.ch:
			if !ok {
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, []byte(line)); err != nil {
				return
			}
		}
	}
}
