package server

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/danmuck/wireconv/internal/observability"
	"github.com/danmuck/wireconv/internal/protocol"
	"github.com/gin-gonic/gin"
	json "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// SchemaInfo is one entry of GET /api/schemas.
type SchemaInfo struct {
	TypeCode string `json:"type_code"`
	Fields   int    `json:"fields"`
}

func (s *Server) RegisterRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.Appeared).String(),
			"service": s.ID,
			"version": version,
		})
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.router.GET("/ready", func(c *gin.Context) {
		ready := s.conv.Ready()
		status := http.StatusOK
		if !ready {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{
			"ready":   ready,
			"uptime":  time.Since(s.Appeared).String(),
			"service": s.ID,
			"version": version,
		})
	})

	api := s.router.Group("/api")
	api.POST("/convert/parse", s.handleParse)
	api.GET("/schemas", s.handleSchemas)
	api.POST("/schemas/reload", s.handleReload)
}

func (s *Server) handleParse(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, s.maxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "message too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "read body: " + err.Error()})
		return
	}

	res, err := s.conv.Decode(observability.TransportHTTP, string(body))
	if err != nil {
		if protocol.IsBadRequest(err) {
			c.JSON(http.StatusBadRequest, gin.H{"error": protocol.Reason(err)})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	out, err := json.Marshal(res.Record)
	if err != nil {
		log.Error().Str("service", s.ID).Str("type_code", res.TypeCode).Err(err).Msg("server.parse encode failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", out)
}

func (s *Server) handleSchemas(c *gin.Context) {
	ix := s.conv.Index()
	codes := ix.TypeCodes()
	list := make([]SchemaInfo, 0, len(codes))
	for _, code := range codes {
		list = append(list, SchemaInfo{TypeCode: code, Fields: len(ix.SpecsFor(code))})
	}
	c.JSON(http.StatusOK, gin.H{"schemas": list})
}

func (s *Server) handleReload(c *gin.Context) {
	st, err := s.conv.Reload(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "stats": st})
}
