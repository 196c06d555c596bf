// Package server exposes the job service over HTTP: spec submission, status
// polling, artifact download, and Prometheus metrics.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Kira7dn/video-create/internal/config"
	"github.com/Kira7dn/video-create/internal/jobs"
	"github.com/Kira7dn/video-create/internal/logger"
)

// Server is the HTTP front end over the job service.
type Server struct {
	settings *config.Settings
	service  *jobs.Service
	registry *prometheus.Registry
	engine   *gin.Engine
}

// New builds the server and its routes. registry may be nil to disable the
// metrics endpoint.
func New(settings *config.Settings, service *jobs.Service, registry *prometheus.Registry) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		settings: settings,
		service:  service,
		registry: registry,
		engine:   gin.New(),
	}
	s.engine.Use(gin.Recovery())
	s.routes()
	return s
}

func (s *Server) routes() {
	video := s.engine.Group("/video")
	video.POST("/create", s.handleCreate)
	video.GET("/status/:job_id", s.handleStatus)
	video.GET("/download/:filename", s.handleDownload)

	if s.registry != nil {
		s.engine.GET("/metrics", gin.WrapH(
			promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))
	}
}

// Run serves until the listener fails.
func (s *Server) Run() error {
	addr := s.settings.Server.Addr()
	logger.Info("http server listening", "addr", addr)
	return s.engine.Run(addr)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) handleCreate(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "missing file field 'file'"})
		return
	}
	if !strings.EqualFold(filepath.Ext(fileHeader.Filename), ".json") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file must have a .json extension"})
		return
	}
	if fileHeader.Size > s.settings.Server.MaxUploadBytes {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file exceeds maximum upload size"})
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, s.settings.Server.MaxUploadBytes+1))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if int64(len(data)) > s.settings.Server.MaxUploadBytes {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file exceeds maximum upload size"})
		return
	}
	if !json.Valid(data) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "file is not valid JSON"})
		return
	}

	jobID, err := s.service.Submit(data)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"job_id": jobID})
}

func (s *Server) handleStatus(c *gin.Context) {
	rec, err := s.service.Status(c.Param("job_id"))
	if errors.Is(err, jobs.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown job id"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	resp := gin.H{"status": rec.Status}
	if rec.Result != "" {
		resp["result"] = rec.Result
	}
	if rec.Error != "" {
		resp["error"] = rec.Error
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleDownload(c *gin.Context) {
	filename := c.Param("filename")
	if strings.ContainsAny(filename, `/\`) || strings.Contains(filename, "..") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid filename"})
		return
	}
	path := filepath.Join(s.settings.Output.Dir, filename)
	if _, err := os.Stat(path); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
		return
	}
	c.FileAttachment(path, filename)
}
