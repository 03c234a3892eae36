// Package server implements the capture HTTP server: every request that
// reaches it, on any method and path, is recorded to the capture store,
// annotated with the detected provider, and broadcast to subscribers.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/better-webhook/better-webhook/internal/broadcast"
	"github.com/better-webhook/better-webhook/internal/capture"
	"github.com/better-webhook/better-webhook/internal/detect"
	"github.com/better-webhook/better-webhook/internal/logging"
	"github.com/better-webhook/better-webhook/sdk/webhook"
)

// dashboardPrefix reserves a path namespace for the server's own endpoints;
// everything else is treated as a webhook to capture.
const dashboardPrefix = "/_dashboard"

// Subscriber is notified after each capture is persisted. Panics are
// swallowed so one bad subscriber cannot take down the capture path.
type Subscriber func(capture.File)

// Options configures a Server.
type Options struct {
	Host         string
	Port         int
	MaxBodyBytes int64
	Store        *capture.Store
	Detector     *detect.Registry
	Hub          *broadcast.Hub
}

// Server is the capture HTTP server.
type Server struct {
	host         string
	port         int
	maxBodyBytes atomic.Int64

	store    *capture.Store
	detector *detect.Registry
	hub      *broadcast.Hub

	subMu       sync.RWMutex
	subscribers []Subscriber

	httpServer *http.Server
	listener   net.Listener
}

// New builds a server; it does not listen until Start.
func New(opts Options) (*Server, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("server: capture store is required")
	}
	detector := opts.Detector
	if detector == nil {
		detector = detect.Default()
	}
	s := &Server{
		host:     opts.Host,
		port:     opts.Port,
		store:    opts.Store,
		detector: detector,
		hub:      opts.Hub,
	}
	max := opts.MaxBodyBytes
	if max <= 0 {
		max = 10 << 20
	}
	s.maxBodyBytes.Store(max)

	engine := gin.New()
	engine.Use(logging.GinLogger(), logging.GinRecovery())

	if s.hub != nil {
		engine.GET(dashboardPrefix+"/ws", gin.WrapH(s.hub.Handler()))
	}
	engine.GET(dashboardPrefix+"/captures", s.handleList)
	engine.GET(dashboardPrefix+"/captures/:id", s.handleGet)
	engine.DELETE(dashboardPrefix+"/captures/:id", s.handleDelete)
	engine.NoRoute(s.handleCapture)

	s.httpServer = &http.Server{
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Subscribe registers a callback invoked after each persisted capture.
func (s *Server) Subscribe(sub Subscriber) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.subscribers = append(s.subscribers, sub)
}

// SetMaxBodyBytes updates the body cap, e.g. after a config reload.
func (s *Server) SetMaxBodyBytes(max int64) {
	if max > 0 {
		s.maxBodyBytes.Store(max)
	}
}

// Addr returns the bound address; valid after Start. Port 0 in Options is
// resolved to the ephemeral port actually chosen.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Start binds the listener and serves until Shutdown. It blocks.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", fmt.Sprintf("%s:%d", s.host, s.port))
	if err != nil {
		return fmt.Errorf("server: listen: %w", err)
	}
	s.listener = listener
	log.Infof("capture server listening on http://%s", listener.Addr())
	if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: serve: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests and closes subscriber resources.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	if s.hub != nil {
		_ = s.hub.Stop(ctx)
	}
	return err
}

// handleCapture records one inbound webhook.
func (s *Server) handleCapture(c *gin.Context) {
	max := s.maxBodyBytes.Load()
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, max+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Failed to read request body"})
		return
	}
	if int64(len(raw)) > max {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"success": false, "message": "Payload too large"})
		return
	}

	rec := s.buildRecord(c.Request, raw)
	rec.Provider = s.detector.Detect(detect.Input{
		Method:  rec.Method,
		Path:    rec.Path,
		Headers: webhook.NormalizeHeaders(c.Request.Header),
		Body:    raw,
	})

	saved, err := s.store.Save(rec)
	if err != nil {
		log.Errorf("failed to persist capture %s: %v", rec.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Failed to persist capture"})
		return
	}
	log.WithFields(log.Fields{"provider": rec.Provider, "file": saved.File}).
		Infof("captured %s %s", rec.Method, rec.Path)

	s.notify(saved)

	c.Header("X-Capture-Id", rec.ID)
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"id":        rec.ID,
		"timestamp": rec.Timestamp,
		"file":      saved.File,
	})
}

// buildRecord assembles the on-disk record, preserving original header
// casing and parsing the body when the content type allows.
func (s *Server) buildRecord(r *http.Request, raw []byte) capture.Record {
	headers := make(map[string]string, len(r.Header))
	for key, values := range r.Header {
		if len(values) > 0 {
			headers[key] = values[0]
		}
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}

	contentType := r.Header.Get("Content-Type")
	return capture.Record{
		ID:            uuid.NewString(),
		Timestamp:     capture.FormatTimestamp(time.Now()),
		Method:        r.Method,
		URL:           fmt.Sprintf("%s://%s%s", scheme, r.Host, r.URL.RequestURI()),
		Path:          r.URL.Path,
		Headers:       headers,
		Query:         r.URL.Query(),
		Body:          parseBody(raw, contentType),
		RawBody:       string(raw),
		ContentType:   contentType,
		ContentLength: int64(len(raw)),
	}
}

// parseBody decodes the raw body per content type: JSON when possible, form
// fields into a map, otherwise the raw string. nil for empty bodies.
func parseBody(raw []byte, contentType string) any {
	if len(raw) == 0 {
		return nil
	}
	mediaType := contentType
	if parsed, _, err := mime.ParseMediaType(contentType); err == nil {
		mediaType = parsed
	}
	switch {
	case mediaType == "application/json" || strings.HasSuffix(mediaType, "+json") || mediaType == "":
		var body any
		if err := json.Unmarshal(raw, &body); err == nil {
			return body
		}
	case mediaType == "application/x-www-form-urlencoded":
		if values, err := url.ParseQuery(string(raw)); err == nil {
			form := make(map[string]any, len(values))
			for key, vals := range values {
				if len(vals) == 1 {
					form[key] = vals[0]
				} else {
					form[key] = vals
				}
			}
			return form
		}
	}
	return string(raw)
}

// notify fans the saved capture out to the hub and callback subscribers.
func (s *Server) notify(f capture.File) {
	if s.hub != nil {
		s.hub.Publish(f)
	}
	s.subMu.RLock()
	subs := make([]Subscriber, len(s.subscribers))
	copy(subs, s.subscribers)
	s.subMu.RUnlock()
	for _, sub := range subs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Warnf("capture subscriber panicked: %v", r)
				}
			}()
			sub(f)
		}()
	}
}

func (s *Server) handleList(c *gin.Context) {
	limit := 0
	if v := c.Query("limit"); v != "" {
		_, _ = fmt.Sscanf(v, "%d", &limit)
	}
	files, err := s.store.List(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Failed to list captures"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "captures": files})
}

func (s *Server) handleGet(c *gin.Context) {
	f, err := s.store.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Capture not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "capture": f})
}

func (s *Server) handleDelete(c *gin.Context) {
	if err := s.store.Delete(c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Capture not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
