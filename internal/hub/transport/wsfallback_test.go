package transport

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kandev/coordhub/pkg/wire"
)

func TestWSClientPushDeliversFrameToDialedPeer(t *testing.T) {
	var upgraded *WSClient
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := UpgradeWSClient(w, r, "agent-1", "sess-1", newTestLogger())
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		upgraded = c
		go c.WritePump()
		c.ReadPump(func() {})
	}))
	defer server.Close()

	wsURL := "ws" + server.URL[len("http"):]
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(time.Second)
	for upgraded == nil && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if upgraded == nil {
		t.Fatal("server never completed the upgrade")
	}

	frame, _ := wire.NewNotification(wire.KindMentionDelivery, map[string]string{"hello": "world"})
	if !upgraded.Push(frame) {
		t.Fatal("expected Push to succeed on a fresh client")
	}

	conn.SetReadDeadline(time.Now().Add(time.Second))
	var got wire.Frame
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("expected to read the pushed frame, got error: %v", err)
	}
	if got.Kind != wire.KindMentionDelivery {
		t.Errorf("expected kind %q, got %q", wire.KindMentionDelivery, got.Kind)
	}
}
