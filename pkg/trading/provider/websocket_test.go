package provider

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/xinguang/signaldesk/pkg/trading"
)

func newTickServer(t *testing.T, messages []string) (*httptest.Server, chan subscribeMessage) {
	t.Helper()
	subs := make(chan subscribeMessage, 4)
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var sub subscribeMessage
		if err := conn.ReadJSON(&sub); err != nil {
			return
		}
		subs <- sub

		for _, m := range messages {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(m)); err != nil {
				return
			}
		}
		// hold the connection open until the client goes away
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv, subs
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestWebSocketProviderStream(t *testing.T) {
	srv, subs := newTickServer(t, []string{
		`{"symbol":"SPY","price":101.5,"volume":300,"timestamp":"2024-03-01T15:00:00Z"}`,
		`not json`,
		`[{"symbol":"AAPL","price":180,"high":181,"low":179},{"symbol":"","price":1}]`,
	})

	p := NewWebSocketProvider(WebSocketOptions{URL: wsURL(srv)})
	defer p.Close()

	var mu sync.Mutex
	var got []trading.Tick
	done := make(chan struct{})
	err := p.Subscribe(context.Background(), []string{"SPY", "AAPL"}, func(tick trading.Tick) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, tick)
		if len(got) == 2 {
			close(done)
		}
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	select {
	case sub := <-subs:
		if sub.Action != "subscribe" || len(sub.Symbols) != 2 || sub.Symbols[0] != "AAPL" {
			t.Errorf("unexpected subscribe message %+v", sub)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no subscribe message")
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for ticks")
	}

	mu.Lock()
	if got[0].Symbol != "SPY" || got[0].High != 101.5 || got[0].Volume != 300 {
		t.Errorf("unexpected first tick %+v", got[0])
	}
	if got[1].Symbol != "AAPL" || got[1].High != 181 {
		t.Errorf("unexpected second tick %+v", got[1])
	}
	mu.Unlock()

	latest, err := p.Latest(context.Background(), []string{"SPY", "QQQ"})
	if err != nil || len(latest) != 1 || latest[0].Price != 101.5 {
		t.Errorf("unexpected latest %+v %v", latest, err)
	}

	q, err := p.Quote(context.Background(), "AAPL")
	if err != nil || q.Price != 180 {
		t.Errorf("unexpected quote %+v %v", q, err)
	}
	if _, err := p.Quote(context.Background(), "QQQ"); !errors.Is(err, trading.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := p.History(context.Background(), "SPY", Interval1Min, 10); !errors.Is(err, ErrNoHistory) {
		t.Errorf("expected ErrNoHistory, got %v", err)
	}
}

func TestWebSocketProviderDialError(t *testing.T) {
	p := NewWebSocketProvider(WebSocketOptions{URL: "ws://127.0.0.1:1/none"})
	if err := p.Subscribe(context.Background(), []string{"SPY"}, func(trading.Tick) {}); err == nil {
		t.Error("expected dial error")
	}
	if err := p.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestDecodeTicks(t *testing.T) {
	ticks, err := decodeTicks([]byte(`{"symbol":"SPY","price":0}`))
	if err != nil || len(ticks) != 0 {
		t.Errorf("expected zero-price tick dropped, got %+v %v", ticks, err)
	}
	if _, err := decodeTicks([]byte(`[1,2]`)); err == nil {
		t.Error("expected decode error")
	}
}
