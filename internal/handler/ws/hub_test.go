package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"PolyEdge/internal/domain/models"
)

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/decisions" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func waitClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d clients, have %d", n, h.ClientCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHubBroadcastsToMatchingClients(t *testing.T) {
	h := NewHub(nil)
	e := echo.New()
	e.GET("/ws/decisions", h.Handle)
	srv := httptest.NewServer(e)
	defer srv.Close()

	all := dial(t, srv, "")
	onlyM2 := dial(t, srv, "?market=m2")
	waitClients(t, h, 2)

	ctx := context.Background()
	if err := h.PublishDecision(ctx, "m1", models.Decision{ShouldTrade: true, Direction: models.DirectionUp, Stake: 5}); err != nil {
		t.Fatal(err)
	}
	if err := h.PublishTradeEvent(ctx, models.TradeEvent{Type: models.TradeEventRecorded, Trade: &models.TradeRecord{MarketID: "m2"}}); err != nil {
		t.Fatal(err)
	}

	_ = all.SetReadDeadline(time.Now().Add(2 * time.Second))
	var first, second Envelope
	if err := all.ReadJSON(&first); err != nil {
		t.Fatalf("read: %v", err)
	}
	if err := all.ReadJSON(&second); err != nil {
		t.Fatalf("read: %v", err)
	}
	if first.Type != "decision" || first.MarketID != "m1" || second.Type != models.TradeEventRecorded || second.Seq <= first.Seq {
		t.Fatalf("unexpected frames %+v %+v", first, second)
	}

	_ = onlyM2.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got Envelope
	if err := onlyM2.ReadJSON(&got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.MarketID != "m2" {
		t.Fatalf("filtered client received %+v", got)
	}
	raw, _ := json.Marshal(got.Data)
	if !strings.Contains(string(raw), `"market_id":"m2"`) {
		t.Fatalf("trade payload missing: %s", raw)
	}

	_ = all.Close()
	waitClients(t, h, 1)
	h.Close()
	if h.ClientCount() != 0 {
		t.Fatalf("Close should drop all clients")
	}
}
