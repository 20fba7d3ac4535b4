package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"knowledge-organization/backend/internal/builder"
	"knowledge-organization/backend/internal/model"
	"knowledge-organization/backend/internal/optimizer"
	apperrors "knowledge-organization/backend/pkg/errors"
)

// graphService is the part of builder.Service the HTTP layer calls.
type graphService interface {
	BuildGraph(ctx context.Context, req builder.BuildRequest) (*builder.BuildResult, error)
	OptimizeGraphWith(ctx context.Context, graphID string, override optimizer.Config) (*model.GraphMetrics, error)
	GraphMetrics(ctx context.Context, graphID string) (*model.GraphMetrics, error)
	Graph(ctx context.Context, graphID string) (*model.Graph, error)
	DeactivateNode(ctx context.Context, graphID, nodeID string) ([]string, error)
	DeleteGraph(ctx context.Context, graphID string) (nodes, relationships int, err error)
}

// healthProbe reports component state for /health.
type healthProbe interface {
	Status() map[string]string
	Ping(ctx context.Context) error
}

func newRouter(svc graphService, probe healthProbe, registry *prometheus.Registry, log *zap.Logger) *gin.Engine {
	router := gin.New()
	router.Use(ginLogger(log))
	router.Use(gin.Recovery())

	// CORS middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// Health check
	router.GET("/health", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		status := http.StatusOK
		body := gin.H{"status": "ok", "components": probe.Status()}
		if err := probe.Ping(ctx); err != nil {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
			body["error"] = err.Error()
		}
		c.JSON(status, body)
	})

	if registry != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	}

	h := &handlers{svc: svc, log: log}
	api := router.Group("/api")
	{
		api.POST("/graphs", h.buildGraph)
		api.GET("/graphs/:id", h.getGraph)
		api.DELETE("/graphs/:id", h.deleteGraph)
		api.POST("/graphs/:id/optimize", h.optimizeGraph)
		api.GET("/graphs/:id/metrics", h.graphMetrics)
		api.DELETE("/graphs/:id/nodes/:nodeId", h.deactivateNode)
	}
	return router
}

type handlers struct {
	svc graphService
	log *zap.Logger
}

func (h *handlers) buildGraph(c *gin.Context) {
	var req builder.BuildRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.svc.BuildGraph(c.Request.Context(), req)
	if err != nil {
		h.fail(c, "Failed to build graph", err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func (h *handlers) getGraph(c *gin.Context) {
	g, err := h.svc.Graph(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, "Failed to load graph", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"graph":         g,
		"nodes":         g.Nodes(),
		"relationships": g.Relationships(),
	})
}

func (h *handlers) deleteGraph(c *gin.Context) {
	nodes, rels, err := h.svc.DeleteGraph(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, "Failed to delete graph", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":                "deleted",
		"graph_id":              c.Param("id"),
		"nodes_deleted":         nodes,
		"relationships_deleted": rels,
	})
}

func (h *handlers) optimizeGraph(c *gin.Context) {
	// The body is optional; an empty one keeps the default settings.
	var override optimizer.Config
	if c.Request.Body != nil && c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&override); err != nil && !errors.Is(err, io.EOF) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	m, err := h.svc.OptimizeGraphWith(c.Request.Context(), c.Param("id"), override)
	if err != nil {
		h.fail(c, "Failed to optimize graph", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"graph_id": c.Param("id"), "metrics": m})
}

func (h *handlers) graphMetrics(c *gin.Context) {
	m, err := h.svc.GraphMetrics(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, "Failed to calculate metrics", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"graph_id": c.Param("id"), "metrics": m})
}

func (h *handlers) deactivateNode(c *gin.Context) {
	removed, err := h.svc.DeactivateNode(c.Request.Context(), c.Param("id"), c.Param("nodeId"))
	if err != nil {
		h.fail(c, "Failed to deactivate node", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deactivated", "removed_relationships": removed})
}

// fail maps the error taxonomy onto HTTP status codes.
func (h *handlers) fail(c *gin.Context, msg string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.Error(msg, zap.String("path", c.FullPath()), zap.Error(err))
	} else {
		h.log.Debug(msg, zap.String("path", c.FullPath()), zap.Error(err))
	}
	body := gin.H{"error": err.Error(), "type": string(apperrors.TypeOf(err))}
	var conflict *apperrors.ErrConflict
	if errors.As(err, &conflict) {
		body["ids"] = conflict.IDs
	}
	c.JSON(status, body)
}

func statusFor(err error) int {
	switch apperrors.TypeOf(err) {
	case apperrors.ErrorTypeValidation:
		return http.StatusBadRequest
	case apperrors.ErrorTypeComplexity:
		return http.StatusUnprocessableEntity
	case apperrors.ErrorTypeConflict:
		return http.StatusConflict
	case apperrors.ErrorTypeNotFound:
		return http.StatusNotFound
	case apperrors.ErrorTypeCollaborator:
		return http.StatusServiceUnavailable
	case apperrors.ErrorTypeContext:
		return http.StatusRequestTimeout
	}
	return http.StatusInternalServerError
}

// ginLogger is a custom logger middleware for Gin
func ginLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		if raw != "" {
			path = path + "?" + raw
		}

		log.Info("HTTP Request",
			zap.Int("status", status),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Duration("latency", latency),
			zap.String("ip", c.ClientIP()),
		)
	}
}
