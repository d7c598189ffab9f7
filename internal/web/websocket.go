// internal/web/websocket.go
package web

import (
    "net/http"
    "sync"
    "time"

    "github.com/gin-gonic/gin"
    "github.com/gorilla/websocket"
    "github.com/sirupsen/logrus"
    "sitewarden/internal/database"
    "sitewarden/internal/metrics"
)

const (
    MessageCheckResult = "check_result"
    MessageTargets     = "targets"
)

var upgrader = websocket.Upgrader{
    CheckOrigin: func(r *http.Request) bool {
        return true // dashboard may be served from another origin
    },
}

type WSMessage struct {
    Type string      `json:"type"`
    Data interface{} `json:"data"`
}

type WSClient struct {
    conn *websocket.Conn
    send chan WSMessage
    hub  *hub
}

// hub owns the set of connected clients. Broadcasts come from sweep workers,
// so every access goes through mu.
type hub struct {
    mu      sync.Mutex
    clients map[*WSClient]bool
    metrics *metrics.Collector
}

func newHub(metricsCollector *metrics.Collector) *hub {
    return &hub{
        clients: make(map[*WSClient]bool),
        metrics: metricsCollector,
    }
}

func (h *hub) register(client *WSClient) {
    h.mu.Lock()
    h.clients[client] = true
    h.mu.Unlock()
    h.metrics.RecordWebSocketConnection(1)
}

// unregister closes the client's send channel once; it is safe to call twice.
func (h *hub) unregister(client *WSClient) {
    h.mu.Lock()
    _, ok := h.clients[client]
    if ok {
        delete(h.clients, client)
        close(client.send)
    }
    h.mu.Unlock()
    if ok {
        h.metrics.RecordWebSocketConnection(-1)
    }
}

func (h *hub) broadcast(message WSMessage) {
    h.mu.Lock()
    var slow []*WSClient
    for client := range h.clients {
        select {
        case client.send <- message:
        default:
            slow = append(slow, client)
        }
    }
    h.mu.Unlock()

    for _, client := range slow {
        logrus.Debug("Dropping slow websocket client")
        h.unregister(client)
    }
}

func (h *hub) count() int {
    h.mu.Lock()
    defer h.mu.Unlock()
    return len(h.clients)
}

func (h *hub) closeAll() {
    h.mu.Lock()
    clients := make([]*WSClient, 0, len(h.clients))
    for client := range h.clients {
        clients = append(clients, client)
    }
    h.mu.Unlock()

    for _, client := range clients {
        h.unregister(client)
    }
}

func (s *Server) handleWebSocket(c *gin.Context) {
    conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
    if err != nil {
        logrus.WithError(err).Error("Failed to upgrade websocket")
        return
    }

    client := &WSClient{
        conn: conn,
        send: make(chan WSMessage, 256),
        hub:  s.hub,
    }

    // new clients get the current registry before any live results
    if targets, err := s.store.ListTargets(s.baseCtx, database.TargetFilters{}); err == nil {
        client.send <- WSMessage{Type: MessageTargets, Data: targets}
    }
    s.hub.register(client)

    go client.writePump()
    go client.readPump()
}

func (s *Server) publishResult(result *database.CheckResult) {
    s.hub.broadcast(WSMessage{Type: MessageCheckResult, Data: result})
}

func (c *WSClient) writePump() {
    ticker := time.NewTicker(54 * time.Second)
    defer func() {
        ticker.Stop()
        c.conn.Close()
        c.hub.unregister(c)
    }()

    for {
        select {
        case message, ok := <-c.send:
            c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
            if !ok {
                c.conn.WriteMessage(websocket.CloseMessage, []byte{})
                return
            }

            if err := c.conn.WriteJSON(message); err != nil {
                return
            }

        case <-ticker.C:
            c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
            if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
                return
            }
        }
    }
}

func (c *WSClient) readPump() {
    defer func() {
        c.hub.unregister(c)
        c.conn.Close()
    }()

    c.conn.SetReadLimit(512)
    c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
    c.conn.SetPongHandler(func(string) error {
        c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
        return nil
    })

    for {
        if _, _, err := c.conn.ReadMessage(); err != nil {
            break
        }
    }
}
