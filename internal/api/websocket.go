package api

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/mescon/motion/internal/domain"
	"github.com/mescon/motion/internal/eventbus"
	"github.com/mescon/motion/internal/logger"
	"github.com/mescon/motion/internal/services"
)

// newUpgrader returns an upgrader with origin validation based on the
// configured CORS origins.
func newUpgrader(corsOrigins string) websocket.Upgrader {
	allowedOrigins := make(map[string]bool)
	if corsOrigins != "" && corsOrigins != "*" {
		for _, origin := range strings.Split(corsOrigins, ",") {
			allowedOrigins[strings.TrimSpace(origin)] = true
		}
	}

	return websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			if corsOrigins == "*" {
				return true
			}
			origin := r.Header.Get("Origin")
			if corsOrigins == "" {
				if origin == "" {
					return true // No origin header = same-origin request
				}
				return strings.Contains(origin, r.Host)
			}
			return allowedOrigins[origin]
		},
	}
}

// hubEvents are forwarded to every client as {"type":"event"} messages.
var hubEvents = []domain.EventType{
	domain.MotionCreated,
	domain.MotionStarted,
	domain.MotionStartIgnored,
	domain.MotionRestarted,
	domain.MotionCompleted,
	domain.MotionRemoved,
	domain.NotificationSent,
	domain.NotificationFailed,
}

// hubMessage is the envelope of every frame sent to clients.
type hubMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type WebSocketHub struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan hubMessage
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	done       chan struct{}
	stopOnce   sync.Once
	mu         sync.Mutex
	upgrader   websocket.Upgrader
	logCh      chan logger.LogEntry
	unsubValue func()
}

// NewWebSocketHub streams bus events, log lines and, when registry is not
// nil, every motion value change to connected clients.
func NewWebSocketHub(eventBus eventbus.Publisher, registry *services.MotionRegistry, corsOrigins string) *WebSocketHub {
	h := &WebSocketHub{
		broadcast:  make(chan hubMessage, 256),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
		clients:    make(map[*websocket.Conn]bool),
		upgrader:   newUpgrader(corsOrigins),
	}

	if eventBus != nil {
		for _, t := range hubEvents {
			eventBus.Subscribe(t, func(e domain.Event) {
				h.send(hubMessage{Type: "event", Data: e})
			})
		}
	}

	if registry != nil {
		// Value updates arrive on driver goroutines at tick rate
		h.unsubValue = registry.SubscribeValues(func(u services.ValueUpdate) {
			h.send(hubMessage{Type: "value", Data: u})
		})
	}

	h.logCh = logger.Subscribe()
	go func() {
		for entry := range h.logCh {
			h.send(hubMessage{Type: "log", Data: entry})
		}
	}()

	go h.run()
	return h
}

// send queues msg for broadcast, dropping it when the queue is full or the
// hub has stopped. It never blocks.
func (h *WebSocketHub) send(msg hubMessage) {
	select {
	case <-h.done:
	case h.broadcast <- msg:
	default:
	}
}

func (h *WebSocketHub) run() {
	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for client := range h.clients {
				if err := client.Close(); err != nil {
					logger.Debugf("WebSocket close error: %v", err)
				}
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			logger.Debugf("WebSocket client connected (Total: %d)", len(h.clients))
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				if err := client.Close(); err != nil {
					logger.Debugf("WebSocket close error: %v", err)
				}
				logger.Debugf("WebSocket client disconnected")
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				if err := client.WriteJSON(message); err != nil {
					// Not logged at error level: log lines are broadcast too
					logger.Debugf("WebSocket write error: %v", err)
					if closeErr := client.Close(); closeErr != nil {
						logger.Debugf("WebSocket close error during broadcast: %v", closeErr)
					}
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Stop disconnects every client and detaches the hub from its sources.
// Bus subscriptions stay registered but their messages are discarded.
func (h *WebSocketHub) Stop() {
	h.stopOnce.Do(func() {
		if h.unsubValue != nil {
			h.unsubValue()
		}
		logger.Unsubscribe(h.logCh)
		close(h.done)
	})
}

func (h *WebSocketHub) HandleConnection(c *gin.Context) {
	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Errorf("Failed to upgrade to WebSocket: %v", err)
		return
	}
	select {
	case h.register <- ws:
	case <-h.done:
		_ = ws.Close()
		return
	}

	// Send initial ping to verify connection (safe before ping goroutine starts)
	h.mu.Lock()
	if err := ws.WriteJSON(gin.H{"type": "ping", "timestamp": time.Now()}); err != nil {
		logger.Debugf("Failed to send initial ping: %v", err)
	}
	h.mu.Unlock()

	// Set up ping/pong to keep connection alive
	const (
		pongWait   = 60 * time.Second
		pingPeriod = (pongWait * 9) / 10
	)

	if err := ws.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		logger.Debugf("Failed to set initial read deadline: %v", err)
	}
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	go func() {
		for range ticker.C {
			h.mu.Lock()
			_, exists := h.clients[ws]
			if !exists {
				h.mu.Unlock()
				return // Client disconnected, stop sending pings
			}
			// Write ping while holding mutex to prevent concurrent writes with broadcast
			err := ws.WriteMessage(websocket.PingMessage, nil)
			h.mu.Unlock()
			if err != nil {
				logger.Debugf("WebSocket ping error: %v", err)
				h.drop(ws)
				return
			}
		}
	}()

	defer func() {
		h.drop(ws)
		logger.Debugf("WebSocket client handler exited")
	}()

	// Reads only keep the pong handler running; client frames are ignored.
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			break
		}
	}
}

func (h *WebSocketHub) drop(ws *websocket.Conn) {
	select {
	case h.unregister <- ws:
	case <-h.done:
	}
}

// ClientCount returns the number of connected WebSocket clients
func (h *WebSocketHub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
