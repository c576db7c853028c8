package routes

import (
	"net/http"

	"eventflex_back_end_go/auth"
	"eventflex_back_end_go/metrics"
	"eventflex_back_end_go/presence"
	"eventflex_back_end_go/relay"
	"eventflex_back_end_go/services"

	"github.com/gin-gonic/gin"
)

func SetupWebsocketRoutes(r *gin.Engine, ws *services.WebsocketHandler) {
	r.GET("/ws", ws.ServeWs)
}

func SetupPresenceRoutes(r *gin.Engine, gate *auth.Gate, tracker presence.Tracker) {
	r.GET("/api/v1/participants/:participantId/presence", gate.RequireParticipant(), func(c *gin.Context) {
		participantID := c.Param("participantId")
		online, err := tracker.IsOnline(c.Request.Context(), participantID)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"participantId": participantID, "online": online})
	})
}

func SetupSystemRoutes(r *gin.Engine, hub *relay.Hub) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "relay": hub.Stats()})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))
}
