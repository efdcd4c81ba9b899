package rest

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/safeworkhq/compliance-backend/internal/domain/audit"
)

// AuditHub fans appended audit records out to connected websocket clients.
// A slow client is dropped rather than allowed to back-pressure the trail.
type AuditHub struct {
	mu      sync.RWMutex
	clients map[*hubClient]struct{}
	logger  *slog.Logger
}

type hubClient struct {
	send chan *audit.Record
}

const clientSendBuffer = 16

func NewAuditHub(logger *slog.Logger) *AuditHub {
	return &AuditHub{
		clients: make(map[*hubClient]struct{}),
		logger:  logger,
	}
}

// Publish delivers a record to every connected client without blocking.
func (h *AuditHub) Publish(rec *audit.Record) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- rec:
		default:
			// Buffer full; the write loop will notice on its next tick.
		}
	}
}

func (h *AuditHub) register() *hubClient {
	c := &hubClient{send: make(chan *audit.Record, clientSendBuffer)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	return c
}

func (h *AuditHub) unregister(c *hubClient) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

// ClientCount reports the number of connected stream clients.
func (h *AuditHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     checkSameHostOrigin,
}

// checkSameHostOrigin admits requests without an Origin header (non-browser
// clients) and browser requests whose Origin host matches the request host.
func checkSameHostOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// handleAuditStream upgrades the connection and streams audit records until
// the client goes away.
func (h *AuditHub) handleAuditStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := h.register()
	defer func() {
		h.unregister(client)
		conn.Close()
	}()

	// Reader loop only consumes control frames; the stream is one-way.
	go func() {
		conn.SetReadLimit(512)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				conn.Close()
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case rec := <-client.send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(rec); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// BroadcastingTrail decorates an audit repository so every appended record is
// also published to the stream hub. Reads pass straight through.
type BroadcastingTrail struct {
	inner audit.Repository
	hub   *AuditHub
}

func NewBroadcastingTrail(inner audit.Repository, hub *AuditHub) *BroadcastingTrail {
	return &BroadcastingTrail{inner: inner, hub: hub}
}

func (t *BroadcastingTrail) Append(ctx context.Context, rec *audit.Record) (uuid.UUID, error) {
	id, err := t.inner.Append(ctx, rec)
	if err != nil {
		return uuid.Nil, err
	}
	t.hub.Publish(rec)
	return id, nil
}

func (t *BroadcastingTrail) TrailFor(ctx context.Context, objectID string) ([]*audit.Record, error) {
	return t.inner.TrailFor(ctx, objectID)
}

func (t *BroadcastingTrail) Recent(ctx context.Context, limit int) ([]*audit.Record, error) {
	return t.inner.Recent(ctx, limit)
}
