package main

import (
	"net/http"

	"api-rate-validator/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// upgraderFor accepts any origin when origins contains "*" or is empty,
// otherwise only the listed ones.
func upgraderFor(origins []string) websocket.Upgrader {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	return websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return len(allowed) == 0 || allowed["*"] || origin == "" || allowed[origin]
		},
	}
}

// serveAdmissionsWS streams admissions: every client on /ws/admissions,
// one client on /ws/admissions/:client.
func serveAdmissionsWS(hub *ws.Hub, upgrader websocket.Upgrader) gin.HandlerFunc {
	return func(c *gin.Context) {
		group := ws.AllGroup
		if id := c.Param("client"); id != "" {
			group = ws.ClientGroup(id)
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		hub.Register(group, conn)
		defer hub.Unregister(group, conn)

		// read-only feed; reads only detect the close
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}
}
