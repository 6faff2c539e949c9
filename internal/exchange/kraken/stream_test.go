package kraken

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestStreamRunSubscribesAndReads(t *testing.T) {
	upgrader := websocket.Upgrader{}
	subscribed := make(chan map[string]any, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		var sub map[string]any
		if err := conn.ReadJSON(&sub); err != nil {
			return
		}
		subscribed <- sub
		_ = conn.WriteMessage(websocket.TextMessage,
			[]byte(`{"channel":"ticker","type":"snapshot","data":[{"symbol":"ETH/USD","last":3000.5}]}`))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	s := NewStream("ws"+strings.TrimPrefix(srv.URL, "http"), []string{"ETH/USD"}, WithReconnectDelay(10*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = s.Run(ctx)
		close(done)
	}()

	select {
	case sub := <-subscribed:
		if sub["method"] != "subscribe" {
			t.Fatalf("unexpected subscribe frame %v", sub)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no subscription received")
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if tk, ok := s.Last("ETH/USD", time.Minute); ok {
			if tk.Last != 3000.5 {
				t.Fatalf("unexpected price %v", tk.Last)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("ticker never cached")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not stop on cancel")
	}
}
