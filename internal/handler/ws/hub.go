// Package ws streams decisions and trade events to websocket clients.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"PolyEdge/internal/domain/models"
	domrepo "PolyEdge/internal/domain/repository"
	apimetrics "PolyEdge/internal/service/metrics"
	applogger "PolyEdge/pkg/logger"
)

const (
	sendBuffer   = 64
	writeTimeout = 10 * time.Second
	pongTimeout  = 60 * time.Second
	pingInterval = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Envelope is the frame sent to feed clients.
type Envelope struct {
	Type      string      `json:"type"`
	MarketID  string      `json:"market_id,omitempty"`
	Data      interface{} `json:"data"`
	Seq       int64       `json:"seq"`
	Timestamp time.Time   `json:"timestamp"`
}

// Hub fans events out to connected clients. Slow clients whose buffer is
// full miss frames rather than block publishers.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
	seq     int64
	logger  *applogger.Logger
	now     func() time.Time
}

var _ domrepo.EventPublisher = (*Hub)(nil)

func NewHub(l *applogger.Logger) *Hub {
	if l == nil {
		l = applogger.NewNop()
	}
	return &Hub{
		clients: make(map[*client]struct{}),
		logger:  l,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (h *Hub) PublishDecision(_ context.Context, marketID string, d models.Decision) error {
	return h.broadcast("decision", marketID, d)
}

func (h *Hub) PublishTradeEvent(_ context.Context, ev models.TradeEvent) error {
	marketID := ""
	if ev.Trade != nil {
		marketID = ev.Trade.MarketID
	}
	return h.broadcast(ev.Type, marketID, ev.Trade)
}

func (h *Hub) broadcast(kind, marketID string, data interface{}) error {
	h.mu.Lock()
	h.seq++
	env := Envelope{Type: kind, MarketID: marketID, Data: data, Seq: h.seq, Timestamp: h.now()}
	h.mu.Unlock()

	b, err := json.Marshal(env)
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.matches(marketID) {
			continue
		}
		select {
		case c.send <- b:
		default:
			h.logger.Warn("feed client too slow, dropping frame", applogger.String("type", kind))
		}
	}
	return nil
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Handle upgrades the request. The optional market query parameter limits
// the feed to one market.
func (h *Hub) Handle(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Warn("feed upgrade failed", applogger.Error(err))
		return nil
	}
	cl := &client{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		market: c.QueryParam("market"),
	}
	h.register(cl)
	go cl.writePump()
	go cl.readPump()
	return nil
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*client]struct{})
	h.mu.Unlock()
	for c := range clients {
		close(c.send)
	}
	apimetrics.FeedClients.Set(0)
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	apimetrics.FeedClients.Set(float64(n))
	h.logger.Info("feed client connected", applogger.Int("clients", n))
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()
	if ok {
		apimetrics.FeedClients.Set(float64(n))
		h.logger.Info("feed client disconnected", applogger.Int("clients", n))
	}
}
