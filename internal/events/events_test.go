package events

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
)

func testHub(t *testing.T) *Hub {
	t.Helper()
	h := NewHub(log.New(io.Discard, "", 0))
	h.Start()
	t.Cleanup(h.Stop)
	return h
}

func dial(t *testing.T, h *Hub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(h.Handler())
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func TestHubBroadcast(t *testing.T) {
	h := testHub(t)
	conn := dial(t, h)

	// Registration is synchronous in the handler, but give the hub a beat
	// before publishing anyway.
	waitForClients(t, h, 1)

	h.Publish(EventEntriesAdded, map[string]int{"vocabulary": 2, "grammar": 1})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.Event != EventEntriesAdded {
		t.Errorf("event = %q, want %q", msg.Event, EventEntriesAdded)
	}
	if msg.Timestamp.IsZero() {
		t.Error("timestamp not set")
	}
	var payload map[string]int
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if payload["vocabulary"] != 2 || payload["grammar"] != 1 {
		t.Errorf("payload = %v", payload)
	}
}

func TestHubPublishWithoutClients(t *testing.T) {
	h := testHub(t)
	// Nobody is listening; must not block or panic.
	for i := 0; i < 200; i++ {
		h.Publish(EventSyncStarted, nil)
	}
}

func TestHubClientDisconnect(t *testing.T) {
	h := testHub(t)
	conn := dial(t, h)
	waitForClients(t, h, 1)

	conn.Close(websocket.StatusNormalClosure, "done")
	waitForClients(t, h, 0)
}

func TestMirrorFailureString(t *testing.T) {
	f := MirrorFailure{Collection: "vocabulary", ID: "v1", Op: "upsert", Error: "timeout"}
	want := "upsert vocabulary v1: timeout"
	if got := f.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func waitForClients(t *testing.T, h *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if h.ClientCount() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("client count never reached %d (now %d)", want, h.ClientCount())
}
