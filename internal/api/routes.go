package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mkrell/bridgectl/internal/auth"
	"github.com/mkrell/bridgectl/internal/bridge"
)

func (s *Server) registerRoutes() {
	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"uptime":    time.Since(s.start).String(),
			"component": "bridgectl-api",
		})
	})

	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authed := s.engine.Group("/api", s.requireToken())
	authed.GET("/status", s.handleStatus)
	authed.POST("/send", s.handleSend)
}

func (s *Server) requireToken() gin.HandlerFunc {
	if s.cfg.AuthToken == "" {
		return func(c *gin.Context) { c.Next() }
	}
	validator := auth.StaticToken{Token: s.cfg.AuthToken}
	return func(c *gin.Context) {
		token := auth.BearerToken(c.GetHeader("Authorization"))
		if err := validator.Validate(token); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, statusResponse(s.bridge.Status()))
}

func (s *Server) handleSend(c *gin.Context) {
	var req SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if strings.TrimSpace(req.To) == "" || req.Message == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "to and message are required"})
		return
	}

	err := s.bridge.Send(c.Request.Context(), strings.TrimSpace(req.To), []byte(req.Message))
	switch {
	case errors.Is(err, bridge.ErrNotConnected):
		c.JSON(http.StatusConflict, gin.H{"error": "not connected", "state": string(s.bridge.Status().State)})
	case err != nil:
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, gin.H{"status": "sent"})
	}
}
