package gateway

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mcdev12/loadauction/go/internal/auction/room"
	"github.com/rs/zerolog/log"
)

// ConnectionManager owns the websocket connections and ties each to a Session
type ConnectionManager struct {
	connections map[*Connection]struct{}
	mu          sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig
	registry *room.Registry
}

// Connection is one websocket client. It is the room's delivery handle for that
// client: Send only enqueues, and the write pump does the I/O.
type Connection struct {
	id      string
	Conn    *websocket.Conn
	Manager *ConnectionManager

	session *Session

	sendMu sync.Mutex
	send   chan []byte
	closed bool

	ConnectedAt time.Time
}

// ConnectionConfig holds configuration for websocket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBufferSize  int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConnectionConfig returns default websocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  4096,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBufferSize:  256,
		CheckOrigin: func(r *http.Request) bool {
			// clients are browsers on other origins; there is no auth to protect
			return true
		},
	}
}

// ConnectionStats is what the stats endpoint reports
type ConnectionStats struct {
	TotalConnections int        `json:"total_connections"`
	Rooms            room.Stats `json:"rooms"`
}

func NewConnectionManager(config ConnectionConfig, registry *room.Registry) *ConnectionManager {
	if config.SendBufferSize <= 0 {
		config.SendBufferSize = DefaultConnectionConfig().SendBufferSize
	}
	return &ConnectionManager{
		connections: make(map[*Connection]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:   config,
		registry: registry,
	}
}

// UpgradeConnection upgrades an HTTP request and starts the connection's pumps.
// The client picks its room later with a join message.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		id:          uuid.New().String(),
		Conn:        conn,
		Manager:     cm,
		send:        make(chan []byte, cm.config.SendBufferSize),
		ConnectedAt: time.Now(),
	}
	connection.session = NewSession(connection, cm.registry)

	cm.registerConnection(connection)

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.id).
		Str("remote_addr", r.RemoteAddr).
		Msg("WebSocket connection established")

	return nil
}

func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	cm.connections[conn] = struct{}{}

	log.Debug().
		Str("connection_id", conn.id).
		Int("total_connections", len(cm.connections)).
		Msg("connection registered")
}

// unregisterConnection removes the connection and closes its send channel. Safe to
// call more than once.
func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	_, exists := cm.connections[conn]
	delete(cm.connections, conn)
	total := len(cm.connections)
	cm.mu.Unlock()

	if !exists {
		return
	}

	conn.sendMu.Lock()
	if !conn.closed {
		conn.closed = true
		close(conn.send)
	}
	conn.sendMu.Unlock()

	log.Info().
		Str("connection_id", conn.id).
		Dur("connected_for", time.Since(conn.ConnectedAt)).
		Int("total_connections", total).
		Msg("connection unregistered")
}

// Stats returns connection and room counts
func (cm *ConnectionManager) Stats() ConnectionStats {
	cm.mu.RLock()
	total := len(cm.connections)
	cm.mu.RUnlock()

	return ConnectionStats{
		TotalConnections: total,
		Rooms:            cm.registry.Stats(),
	}
}

// CloseAll sends a going-away close frame to every client. The read pumps then
// exit and detach their sessions.
func (cm *ConnectionManager) CloseAll() {
	cm.mu.RLock()
	conns := make([]*Connection, 0, len(cm.connections))
	for c := range cm.connections {
		conns = append(conns, c)
	}
	cm.mu.RUnlock()

	deadline := time.Now().Add(cm.config.WriteTimeout)
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	for _, c := range conns {
		if err := c.Conn.WriteControl(websocket.CloseMessage, msg, deadline); err != nil {
			log.Debug().Err(err).Str("connection_id", c.id).Msg("failed to send close frame")
		}
		c.Conn.Close()
	}

	if len(conns) > 0 {
		log.Info().Int("connections", len(conns)).Msg("closed all websocket connections")
	}
}

// ID implements room.Sender
func (c *Connection) ID() string {
	return c.id
}

// Send implements room.Sender. It never blocks: a closed connection or a full
// buffer returns an error and the message is dropped for this client.
func (c *Connection) Send(payload []byte) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.closed {
		return ErrConnectionClosed
	}

	select {
	case c.send <- payload:
		return nil
	default:
		log.Warn().
			Str("connection_id", c.id).
			Int("buffered", len(c.send)).
			Msg("connection send buffer full, dropping message")
		return ErrSendBufferFull
	}
}

// writePump handles sending messages to the websocket connection
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.id).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().
					Err(err).
					Str("connection_id", c.id).
					Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump feeds client messages to the session, one at a time, and runs the
// disconnect path when the socket goes away.
func (c *Connection) readPump() {
	defer func() {
		c.session.Close()
		c.Manager.unregisterConnection(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().
					Err(err).
					Str("connection_id", c.id).
					Msg("unexpected WebSocket close error")
			}
			return
		}

		c.session.Handle(message)
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}
