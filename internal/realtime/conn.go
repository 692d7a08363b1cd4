// --- File: internal/realtime/conn.go ---
package realtime

import (
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/tinywideclouds/go-presence-relay/pkg/relay"
)

// conn is one live websocket connection held by this instance. Its id is
// issued at upgrade time and is valid only for the connection's lifetime.
// A conn starts unbound; a register event binds it to a user.
type conn struct {
	id string
	ws *websocket.Conn

	writeMu sync.Mutex // serializes websocket writes

	stateMu sync.Mutex
	userID  string // "" while unbound

	closeOnce sync.Once
}

func newConn(id string, ws *websocket.Conn) *conn {
	return &conn{id: id, ws: ws}
}

func (c *conn) writeEvent(event *relay.Event) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteJSON(event)
}

func (c *conn) bind(userID string) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	c.userID = userID
}

func (c *conn) boundUser() string {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.userID
}

// ConnTable is this instance's view of its local connection handles. It is
// all the relay ever sees of a connection: the directory store owns presence,
// the table only leases the handle for delivery.
type ConnTable struct {
	conns  sync.Map // map[string]*conn
	logger zerolog.Logger
}

// NewConnTable is the constructor for the ConnTable.
func NewConnTable(logger zerolog.Logger) *ConnTable {
	return &ConnTable{logger: logger}
}

// Deliver writes an event to a locally held connection. A send to a
// connection that already closed reports false; the caller treats delivery as
// best-effort either way.
func (t *ConnTable) Deliver(connectionID string, event *relay.Event) bool {
	v, ok := t.conns.Load(connectionID)
	if !ok {
		return false
	}
	c := v.(*conn)
	if err := c.writeEvent(event); err != nil {
		t.logger.Debug().Err(err).Str("conn", connectionID).Msg("Dropped write to dead connection.")
		return false
	}
	return true
}

func (t *ConnTable) add(c *conn)        { t.conns.Store(c.id, c) }
func (t *ConnTable) remove(id string)   { t.conns.Delete(id) }
func (t *ConnTable) has(id string) bool { _, ok := t.conns.Load(id); return ok }
