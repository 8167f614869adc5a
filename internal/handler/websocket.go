package handler

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/medtrack/internal/model"
	"github.com/vyrodovalexey/medtrack/internal/store"
)

// WebSocket configuration constants.
const (
	writeWait               = 10 * time.Second
	pongWait                = 60 * time.Second
	pingPeriod              = (pongWait * 9) / 10
	maxMessageSize          = 512
	sendBufferSize          = 16
	DefaultSnapshotInterval = time.Minute
)

// WebSocketOption configures a WebSocketHandler.
type WebSocketOption func(*WebSocketHandler)

// WithSnapshotInterval sets how often expiring snapshots are pushed.
func WithSnapshotInterval(d time.Duration) WebSocketOption {
	return func(h *WebSocketHandler) {
		if d > 0 {
			h.interval = d
		}
	}
}

// WithSnapshotDays sets the expiring window of pushed snapshots.
func WithSnapshotDays(days int) WebSocketOption {
	return func(h *WebSocketHandler) {
		h.days = days
	}
}

// wsClient is one connected feed subscriber.
type wsClient struct {
	send   chan model.WebSocketMessage
	cancel context.CancelFunc
}

// WebSocketHandler pushes medicine events and expiring snapshots to
// connected clients.
type WebSocketHandler struct {
	upgrader websocket.Upgrader
	store    store.Store
	logger   *zap.Logger
	interval time.Duration
	days     int
	mu       sync.RWMutex
	clients  map[*websocket.Conn]*wsClient
}

// NewWebSocketHandler creates a new WebSocketHandler instance.
func NewWebSocketHandler(s store.Store, logger *zap.Logger, opts ...WebSocketOption) *WebSocketHandler {
	h := &WebSocketHandler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(_ *http.Request) bool {
				return true
			},
		},
		store:    s,
		logger:   logger,
		interval: DefaultSnapshotInterval,
		days:     DefaultExpiringDays,
		clients:  make(map[*websocket.Conn]*wsClient),
	}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

// RegisterRoutes registers the WebSocket routes with the router.
func (h *WebSocketHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/ws", h.HandleWebSocket).Methods(http.MethodGet)
}

// HandleWebSocket handles WebSocket connection requests.
//
//nolint:contextcheck // WebSocket connections outlive the HTTP request context
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("failed to upgrade connection", zap.Error(err))
		return
	}

	// The request context is cancelled when this handler returns.
	ctx, cancel := context.WithCancel(context.Background())

	c := &wsClient{
		send:   make(chan model.WebSocketMessage, sendBufferSize),
		cancel: cancel,
	}

	h.mu.Lock()
	h.clients[conn] = c
	h.mu.Unlock()

	h.logger.Info("websocket client connected", zap.String("remote_addr", conn.RemoteAddr().String()))

	go h.writePump(ctx, conn, c)
	go h.readPump(ctx, conn, cancel)
}

// Broadcast queues msg for every connected client. Clients whose buffer
// is full miss the message.
func (h *WebSocketHandler) Broadcast(msg model.WebSocketMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for conn, c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.logger.Warn("websocket client too slow, dropping message",
				zap.String("remote_addr", conn.RemoteAddr().String()),
				zap.String("type", msg.Type),
			)
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *WebSocketHandler) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// readPump handles incoming messages from the WebSocket connection.
func (h *WebSocketHandler) readPump(ctx context.Context, conn *websocket.Conn, cancel context.CancelFunc) {
	defer func() {
		cancel()
		h.removeClient(conn)
		if err := conn.Close(); err != nil {
			h.logger.Debug("error closing connection", zap.Error(err))
		}
	}()

	conn.SetReadLimit(maxMessageSize)
	if err := conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		h.logger.Error("failed to set read deadline", zap.Error(err))
		return
	}

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, message, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					h.logger.Warn("websocket read error", zap.Error(err))
				}
				return
			}
			h.logger.Debug("received message", zap.ByteString("message", message))
		}
	}
}

// writePump sends an initial snapshot, then queued events, periodic
// snapshots and pings until ctx is done.
func (h *WebSocketHandler) writePump(ctx context.Context, conn *websocket.Conn, c *wsClient) {
	ticker := time.NewTicker(h.interval)
	pingTicker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		pingTicker.Stop()
	}()

	if err := h.sendSnapshot(ctx, conn); err != nil {
		h.logger.Debug("failed to send snapshot", zap.Error(err))
		return
	}

	for {
		select {
		case <-ctx.Done():
			h.sendCloseMessage(conn)
			return
		case msg := <-c.send:
			if err := h.writeMessage(conn, msg); err != nil {
				h.logger.Debug("failed to send event", zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := h.sendSnapshot(ctx, conn); err != nil {
				h.logger.Debug("failed to send snapshot", zap.Error(err))
				return
			}
		case <-pingTicker.C:
			if err := h.sendPing(conn); err != nil {
				h.logger.Debug("failed to send ping", zap.Error(err))
				return
			}
		}
	}
}

// sendSnapshot sends the medicines in the expiring window.
func (h *WebSocketHandler) sendSnapshot(ctx context.Context, conn *websocket.Conn) error {
	expiring, err := h.store.Expiring(ctx, h.days)
	if err != nil {
		return err
	}

	return h.writeMessage(conn, model.NewExpiringSnapshotMessage(h.days, store.Sorted(expiring)))
}

// writeMessage writes msg as JSON with a deadline.
func (h *WebSocketHandler) writeMessage(conn *websocket.Conn, msg model.WebSocketMessage) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteJSON(msg)
}

// sendPing sends a ping message to the connection.
func (h *WebSocketHandler) sendPing(conn *websocket.Conn) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.PingMessage, nil)
}

// sendCloseMessage sends a close message to the connection.
func (h *WebSocketHandler) sendCloseMessage(conn *websocket.Conn) {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		h.logger.Debug("failed to set write deadline for close", zap.Error(err))
		return
	}

	closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "server shutting down")
	if err := conn.WriteMessage(websocket.CloseMessage, closeMsg); err != nil {
		h.logger.Debug("failed to send close message", zap.Error(err))
	}
}

// removeClient removes a client from the clients map.
func (h *WebSocketHandler) removeClient(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if c, exists := h.clients[conn]; exists {
		c.cancel()
		delete(h.clients, conn)
		h.logger.Info("websocket client disconnected", zap.String("remote_addr", conn.RemoteAddr().String()))
	}
}

// CloseAllConnections closes all active WebSocket connections.
func (h *WebSocketHandler) CloseAllConnections() {
	h.mu.Lock()
	cancels := make([]context.CancelFunc, 0, len(h.clients))
	for _, c := range h.clients {
		cancels = append(cancels, c.cancel)
	}
	h.mu.Unlock()

	// Cancelling lets each writePump send its close frame.
	for _, cancel := range cancels {
		cancel()
	}

	time.Sleep(100 * time.Millisecond)

	h.mu.Lock()
	for conn := range h.clients {
		if err := conn.Close(); err != nil {
			h.logger.Debug("error closing connection", zap.Error(err))
		}
		delete(h.clients, conn)
	}
	h.mu.Unlock()

	h.logger.Info("all websocket connections closed")
}
