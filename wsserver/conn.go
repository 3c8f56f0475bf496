// Package wsserver is the WebSocket transport glue for Component B: it
// upgrades HTTP connections, authenticates the handshake, and feeds
// decoded client frames to the epoch engine via the aggregator and
// registry. Built on github.com/clevergo/websocket (a gorilla/websocket
// compatible fork, per the teacher's go.mod), grounded on
// other_examples/xyplex3-RedTeamCoin/server-websocket.go's
// upgrade/register/read-loop shape.
package wsserver

import (
	"net/http"
	"time"

	"github.com/clevergo/websocket"

	"github.com/minepool/coordinator/registry"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// conn adapts a *websocket.Conn to registry.Transport.
type conn struct {
	ws *websocket.Conn
}

var _ registry.Transport = (*conn)(nil)

func (c *conn) WriteBinary(b []byte) error {
	c.ws.SetWriteDeadline(time.Now().Add(writeDeadline))
	return c.ws.WriteMessage(websocket.BinaryMessage, b)
}

func (c *conn) WriteText(s string) error {
	c.ws.SetWriteDeadline(time.Now().Add(writeDeadline))
	return c.ws.WriteMessage(websocket.TextMessage, []byte(s))
}

func (c *conn) Ping() error {
	c.ws.SetWriteDeadline(time.Now().Add(writeDeadline))
	return c.ws.WriteMessage(websocket.PingMessage, []byte{1, 2, 3})
}

func (c *conn) Close() error {
	return c.ws.Close()
}

// writeDeadline bounds individual frame writes so a stalled socket can't
// wedge a session's pump goroutine forever.
const writeDeadline = 10 * time.Second
