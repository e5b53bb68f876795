package http

import (
	"context"
	"net/http"
	"time"

	"github.com/dkeye/rtcsub/internal/config"
	"github.com/dkeye/rtcsub/internal/session"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Session is the part of the session controller exposed over HTTP.
type Session interface {
	Status() session.Status
	Restart(ctx context.Context) error
}

const restartTimeout = 10 * time.Second

func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Header("X-Request-ID", id)
		c.Set("request_id", id)
		c.Next()
	}
}

func SetupRouter(cfg *config.Config, sess Session, metrics http.Handler) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if metrics != nil {
		r.GET("/metrics", gin.WrapH(metrics))
	}

	log.Info().Str("module", "adapters.http").Msg("router setup")

	api := r.Group("/api")

	api.GET("/session", func(c *gin.Context) {
		c.JSON(http.StatusOK, sess.Status())
	})

	api.POST("/session/restart", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), restartTimeout)
		defer cancel()
		log.Info().Str("module", "adapters.http").Str("request_id", c.GetString("request_id")).Msg("session restart requested")
		if err := sess.Restart(ctx); err != nil {
			log.Error().Str("module", "adapters.http").Err(err).Msg("session restart")
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, sess.Status())
	})

	return r
}
