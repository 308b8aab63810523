package watch

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/conduit-lang/hmr/internal/hmr"
)

// Message types pushed to browser clients
const (
	MessageBuilding = "building"
	MessageUpdate   = "update"
	MessageReload   = "reload"
	MessageNoop     = "noop"
	MessageError    = "error"
	MessageCSS      = "css"
)

// ReloadServer manages WebSocket connections to the browser clients
type ReloadServer struct {
	connections map[*websocket.Conn]bool
	broadcast   chan *ReloadMessage
	register    chan *websocket.Conn
	unregister  chan *websocket.Conn
	done        chan struct{}
	closeOnce   sync.Once
	mutex       sync.RWMutex
	upgrader    websocket.Upgrader
	logger      *zap.Logger
}

// ReloadMessage is one message sent to browsers
type ReloadMessage struct {
	Type       string     `json:"type"`
	Cycle      string     `json:"cycle,omitempty"`
	Timestamp  int64      `json:"timestamp"`
	Files      []string   `json:"files,omitempty"`
	Updated    []string   `json:"updated,omitempty"`
	Added      []string   `json:"added,omitempty"`
	Removed    []string   `json:"removed,omitempty"`
	Failed     []string   `json:"failed,omitempty"`
	Unresolved []string   `json:"unresolved,omitempty"`
	Reason     string     `json:"reason,omitempty"`
	Error      *ErrorInfo `json:"error,omitempty"`
	Duration   float64    `json:"duration,omitempty"` // milliseconds
}

// ErrorInfo holds detailed error information
type ErrorInfo struct {
	Message string `json:"message"`
	Module  string `json:"module,omitempty"`
	File    string `json:"file,omitempty"`
	Phase   string `json:"phase,omitempty"`
}

// NewReloadServer creates a new reload server
func NewReloadServer(logger *zap.Logger) *ReloadServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	rs := &ReloadServer{
		connections: make(map[*websocket.Conn]bool),
		broadcast:   make(chan *ReloadMessage, 256),
		register:    make(chan *websocket.Conn),
		unregister:  make(chan *websocket.Conn),
		done:        make(chan struct{}),
		logger:      logger.Named("reload"),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || isLocalOrigin(origin)
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}

	go rs.run()

	return rs
}

// run handles the WebSocket connection lifecycle
func (rs *ReloadServer) run() {
	for {
		select {
		case <-rs.done:
			rs.logger.Debug("shutting down reload server")
			return

		case conn := <-rs.register:
			rs.mutex.Lock()
			rs.connections[conn] = true
			total := len(rs.connections)
			rs.mutex.Unlock()
			rs.logger.Info("client connected", zap.Int("total", total))

		case conn := <-rs.unregister:
			rs.mutex.Lock()
			if _, ok := rs.connections[conn]; ok {
				delete(rs.connections, conn)
				conn.Close()
			}
			total := len(rs.connections)
			rs.mutex.Unlock()
			rs.logger.Info("client disconnected", zap.Int("total", total))

		case message := <-rs.broadcast:
			rs.sendToAll(message)
		}
	}
}

// sendToAll sends a message to all connected clients
func (rs *ReloadServer) sendToAll(message *ReloadMessage) {
	messageJSON, err := json.Marshal(message)
	if err != nil {
		rs.logger.Error("failed to marshal message", zap.Error(err))
		return
	}

	rs.mutex.RLock()
	var failedConns []*websocket.Conn
	for conn := range rs.connections {
		if err := conn.WriteMessage(websocket.TextMessage, messageJSON); err != nil {
			rs.logger.Warn("failed to send message", zap.Error(err))
			failedConns = append(failedConns, conn)
		}
	}
	rs.mutex.RUnlock()

	if len(failedConns) > 0 {
		rs.mutex.Lock()
		for _, conn := range failedConns {
			if _, ok := rs.connections[conn]; ok {
				conn.Close()
				delete(rs.connections, conn)
			}
		}
		rs.mutex.Unlock()
	}
}

// HandleWebSocket upgrades HTTP connections to WebSocket
func (rs *ReloadServer) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := rs.upgrader.Upgrade(w, r, nil)
	if err != nil {
		rs.logger.Warn("failed to upgrade connection", zap.Error(err))
		return
	}

	select {
	case rs.register <- conn:
	case <-rs.done:
		conn.Close()
		return
	}

	go rs.readMessages(conn)
}

// readMessages drains the client side; it only carries keepalives
func (rs *ReloadServer) readMessages(conn *websocket.Conn) {
	defer func() {
		select {
		case rs.unregister <- conn:
		case <-rs.done:
		}
	}()

	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				rs.logger.Warn("websocket error", zap.Error(err))
			}
			return
		}
	}
}

func (rs *ReloadServer) send(msg *ReloadMessage) {
	msg.Timestamp = time.Now().Unix()
	select {
	case rs.broadcast <- msg:
	case <-rs.done:
	}
}

// NotifyBuilding tells clients a batch of file changes is being processed
func (rs *ReloadServer) NotifyBuilding(files []string) {
	rs.send(&ReloadMessage{Type: MessageBuilding, Files: files})
}

// NotifyResult pushes the outcome of an update cycle
func (rs *ReloadServer) NotifyResult(res *hmr.Result) {
	msg := &ReloadMessage{
		Cycle:    res.Cycle,
		Duration: float64(res.Duration.Microseconds()) / 1000,
	}

	switch res.Outcome {
	case hmr.OutcomeNoop:
		msg.Type = MessageNoop
	case hmr.OutcomeReload:
		msg.Type = MessageReload
		msg.Unresolved = hmr.Strings(res.Unresolved)
		msg.Reason = res.Err().Error()
	default:
		msg.Type = MessageUpdate
		msg.Updated = hmr.Strings(res.Updated)
		msg.Added = hmr.Strings(res.Changes.Added)
		msg.Removed = hmr.Strings(res.Changes.Removed)
		for _, f := range res.Failed {
			msg.Failed = append(msg.Failed, string(f.ID))
		}
	}

	rs.send(msg)
}

// NotifyCSS tells clients to swap the given stylesheets in place
func (rs *ReloadServer) NotifyCSS(files []string) {
	rs.send(&ReloadMessage{Type: MessageCSS, Files: files})
}

// NotifyReload asks clients for a full page reload
func (rs *ReloadServer) NotifyReload(reason string) {
	rs.send(&ReloadMessage{Type: MessageReload, Reason: reason})
}

// NotifyError sends an error message to clients
func (rs *ReloadServer) NotifyError(errorInfo *ErrorInfo) {
	rs.send(&ReloadMessage{Type: MessageError, Error: errorInfo})
}

// ConnectionCount returns the number of active connections
func (rs *ReloadServer) ConnectionCount() int {
	rs.mutex.RLock()
	defer rs.mutex.RUnlock()
	return len(rs.connections)
}

// Close closes all connections and stops the server
func (rs *ReloadServer) Close() {
	rs.closeOnce.Do(func() {
		close(rs.done)

		rs.mutex.Lock()
		defer rs.mutex.Unlock()

		for conn := range rs.connections {
			conn.Close()
		}
		rs.connections = make(map[*websocket.Conn]bool)
	})
}
