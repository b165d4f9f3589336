package api

import (
	"encoding/json" // Frame decoding
	"net/http"      // Origin checks

	"ever_greater/internal/ledger"
	"ever_greater/internal/push"
	"ever_greater/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// clientFrame is the client→server wire format. The only frame the client
// sends is an authenticate request carrying its server-issued session token;
// binding is never trusted to a raw client-supplied user ID.
type clientFrame struct {
	Type  string `json:"type"`  // Frame type, only "authenticate" is known
	Token string `json:"token"` // Session token issued at login
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The HTTP layer already enforces CORS for the API; the push channel is
	// read-only for unauthenticated clients, so any origin may connect
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WSHandler upgrades the request to a websocket push channel. The connection
// starts unbound, immediately receives the current global count, and binds to
// a user only after presenting a valid session token.
func WSHandler(reg *push.Registry, l ledger.Ledger, jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			// Upgrade writes its own error response
			logrus.WithField("error", err.Error()).Debug("websocket upgrade failed")
			return
		}
		id := reg.Add(conn)
		// Every new channel gets the current count right away, like an
		// ordinary broadcast would deliver it
		if count, err := l.GlobalCount(c.Request.Context()); err == nil {
			reg.Send(id, push.CountFrame(count))
		}
		go readLoop(reg, id, conn, jwtSecret)
	}
}

// readLoop consumes client frames until the connection drops. Malformed or
// unverifiable frames are dropped silently; a read error deregisters the
// channel. Disconnecting never aborts any in-flight request.
func readLoop(reg *push.Registry, id string, conn *websocket.Conn, jwtSecret string) {
	defer reg.Remove(id)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var frame clientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			continue
		}
		if frame.Type != "authenticate" || frame.Token == "" {
			continue
		}
		claims, err := utils.ParseJWT(frame.Token, jwtSecret)
		if err != nil {
			// Unverifiable identity claim: no bind, no reply
			continue
		}
		// Rebinding overwrites any prior binding for this connection
		if reg.Bind(id, claims.UserID) {
			reg.Send(id, push.AuthenticatedFrame())
		}
	}
}
