package transport

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gateway-fm/activitybot/pkg/types"
)

const (
	statusInterval = time.Second
	writeTimeout   = 5 * time.Second
	backlogSize    = 100
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true // Allow requests without Origin header (same-origin or direct)
		}

		originURL, err := url.Parse(origin)
		if err != nil {
			return false
		}

		if originURL.Host == r.Host {
			return true
		}

		// Allow localhost connections (common for development)
		if originURL.Hostname() == "localhost" || originURL.Hostname() == "127.0.0.1" {
			return true
		}

		return false
	},
}

// Message is one frame on the operator stream.
type Message struct {
	Type   string                `json:"type"` // "backlog", "log", "status"
	Event  *types.LogEvent       `json:"event,omitempty"`
	Events []types.LogEvent      `json:"events,omitempty"`
	Status *types.StatusSnapshot `json:"status,omitempty"`
}

// wsClient serializes writes to one connection.
type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsClient) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// WebSocketServer streams log events and status snapshots to operators.
type WebSocketServer struct {
	api    ActivityAPI
	logger *slog.Logger

	clients   map[*wsClient]bool
	clientsMu sync.RWMutex

	done     chan struct{}
	stopOnce sync.Once
}

// NewWebSocketServer creates a new WebSocket server.
func NewWebSocketServer(api ActivityAPI, logger *slog.Logger) *WebSocketServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebSocketServer{
		api:     api,
		logger:  logger,
		clients: make(map[*wsClient]bool),
		done:    make(chan struct{}),
	}
}

// Handler returns the WebSocket HTTP handler. A new client first receives
// the recent log backlog, then live events and periodic status frames.
func (ws *WebSocketServer) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			ws.logger.Debug("websocket upgrade failed", slog.String("error", err.Error()))
			return
		}
		client := &wsClient{conn: conn}

		// Subscribe before reading the backlog so no event falls between them.
		events, cancel := ws.api.SubscribeLogs()
		backlog := ws.api.Logs(backlogSize)

		if err := ws.send(client, Message{Type: "backlog", Events: backlog}); err != nil {
			cancel()
			conn.Close()
			return
		}
		var lastSeq uint64
		if n := len(backlog); n > 0 {
			lastSeq = backlog[n-1].Seq
		}

		ws.clientsMu.Lock()
		ws.clients[client] = true
		total := len(ws.clients)
		ws.clientsMu.Unlock()
		ws.logger.Debug("websocket client connected", slog.Int("total_clients", total))

		closed := make(chan struct{})
		go ws.forward(client, events, lastSeq, closed)

		defer func() {
			ws.clientsMu.Lock()
			delete(ws.clients, client)
			total := len(ws.clients)
			ws.clientsMu.Unlock()
			cancel()
			close(closed)
			conn.Close()
			ws.logger.Debug("websocket client disconnected", slog.Int("total_clients", total))
		}()

		// Read messages (mainly for ping/pong and close)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					ws.logger.Debug("websocket read error", slog.String("error", err.Error()))
				}
				return
			}
		}
	}
}

// forward relays journal events to one client until it disconnects.
func (ws *WebSocketServer) forward(client *wsClient, events <-chan types.LogEvent, lastSeq uint64, closed <-chan struct{}) {
	for {
		select {
		case <-closed:
			return
		case <-ws.done:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Seq <= lastSeq {
				continue
			}
			if err := ws.send(client, Message{Type: "log", Event: &ev}); err != nil {
				// The read loop notices the broken connection and cleans up.
				return
			}
		}
	}
}

func (ws *WebSocketServer) send(client *wsClient, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		ws.logger.Error("failed to marshal websocket message", slog.String("error", err.Error()))
		return err
	}
	if err := client.write(data); err != nil {
		ws.logger.Debug("failed to write to websocket", slog.String("error", err.Error()))
		return err
	}
	return nil
}

// Start begins the status broadcasting goroutine.
func (ws *WebSocketServer) Start() {
	go ws.broadcastLoop()
}

// Stop stops the WebSocket server and closes all client connections.
func (ws *WebSocketServer) Stop() {
	ws.stopOnce.Do(func() {
		close(ws.done)

		ws.clientsMu.Lock()
		for client := range ws.clients {
			client.conn.Close()
		}
		ws.clients = make(map[*wsClient]bool)
		ws.clientsMu.Unlock()
	})
}

// broadcastLoop sends a status snapshot to every client once per interval.
func (ws *WebSocketServer) broadcastLoop() {
	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ws.done:
			return
		case <-ticker.C:
			if ws.ClientCount() == 0 {
				continue
			}
			status := ws.api.Status()
			ws.broadcast(Message{Type: "status", Status: &status})
		}
	}
}

func (ws *WebSocketServer) broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		ws.logger.Error("failed to marshal websocket message", slog.String("error", err.Error()))
		return
	}

	ws.clientsMu.RLock()
	defer ws.clientsMu.RUnlock()

	for client := range ws.clients {
		if err := client.write(data); err != nil {
			ws.logger.Debug("failed to write to websocket", slog.String("error", err.Error()))
		}
	}
}

// ClientCount returns the number of connected clients.
func (ws *WebSocketServer) ClientCount() int {
	ws.clientsMu.RLock()
	defer ws.clientsMu.RUnlock()
	return len(ws.clients)
}
