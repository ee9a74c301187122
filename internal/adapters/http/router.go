// Package http exposes the control surface of the engine over a small
// REST API: status snapshot, mute toggles, and the force-restart hook.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/arden/peercall/internal/app"
	"github.com/arden/peercall/internal/config"
)

func SetupRouter(cfg *config.Config, orch *app.Orchestrator) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	log.Info().Str("module", "adapters.http").Msg("router setup")

	api := r.Group("/api")

	api.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, orch.GetStatus())
	})

	api.POST("/controls/mic", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"micEnabled": orch.ToggleMic()})
	})

	api.POST("/controls/video", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"videoEnabled": orch.ToggleVideo()})
	})

	api.POST("/restart", func(c *gin.Context) {
		orch.Restart()
		c.Status(http.StatusAccepted)
	})

	return r
}
