package logfanout

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{}

func newTestServer(t *testing.T, hub *Hub) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/worker/", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Error(err)
			return
		}
		hostname := strings.TrimPrefix(r.URL.Path, "/worker/")
		hub.ServeWorker(context.Background(), hostname, conn)
	})
	mux.HandleFunc("/viewer/", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Error(err)
			return
		}
		hostname := strings.TrimPrefix(r.URL.Path, "/viewer/")
		hub.ServeViewer(context.Background(), hostname, conn)
	})
	return httptest.NewServer(mux)
}

func wsURL(srv *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + path
}

func TestPublishFansOutToLiveViewer(t *testing.T) {
	hub := NewHub()
	srv := newTestServer(t, hub)
	defer srv.Close()

	viewerConn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/viewer/worker1"), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer viewerConn.Close()

	time.Sleep(20 * time.Millisecond) // let the server register the viewer

	workerConn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/worker/worker1"), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer workerConn.Close()

	if err := workerConn.WriteMessage(websocket.TextMessage, []byte("building bash")); err != nil {
		t.Fatal(err)
	}

	viewerConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := viewerConn.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "building bash" {
		t.Fatalf("got %q, want %q", data, "building bash")
	}
}

func TestNewViewerReplaysBacklog(t *testing.T) {
	hub := NewHub()
	hub.Publish("worker2", "line one")
	hub.Publish("worker2", "line two")

	srv := newTestServer(t, hub)
	defer srv.Close()

	viewerConn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/viewer/worker2"), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer viewerConn.Close()

	viewerConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, first, err := viewerConn.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	if string(first) != "line one" {
		t.Fatalf("first replayed line = %q, want %q", first, "line one")
	}
	_, second, err := viewerConn.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	if string(second) != "line two" {
		t.Fatalf("second replayed line = %q, want %q", second, "line two")
	}
}

func TestPublishBoundsBacklogSize(t *testing.T) {
	hub := NewHub()
	for i := 0; i < replayLimit+50; i++ {
		hub.Publish("worker3", "line")
	}
	st := hub.state("worker3")
	hub.mu.RLock()
	n := len(st.lastLines)
	hub.mu.RUnlock()
	if n != replayLimit {
		t.Fatalf("backlog size = %d, want %d", n, replayLimit)
	}
}

func TestViewerUnregistersOnDisconnect(t *testing.T) {
	hub := NewHub()
	srv := newTestServer(t, hub)
	defer srv.Close()

	viewerConn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/viewer/worker4"), nil)
	if err != nil {
		t.Fatal(err)
	}
	time.Sleep(20 * time.Millisecond)
	viewerConn.Close()

	// the server only notices a dead viewer connection on its next write
	// attempt, so publish one more line to force that write to fail.
	hub.Publish("worker4", "after-close")
	time.Sleep(50 * time.Millisecond)

	st := hub.state("worker4")
	hub.mu.RLock()
	n := len(st.viewers)
	hub.mu.RUnlock()
	if n != 0 {
		t.Fatalf("viewers = %d, want 0 after disconnect", n)
	}
}
