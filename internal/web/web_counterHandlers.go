package web

import (
	"bytes"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

// CountResponse is the JSON body of every successful counter call
type CountResponse struct {
	Count  int64  `json:"count"`
	Status string `json:"status"`
}

// ErrorResponse is the JSON body of every failed counter call
type ErrorResponse struct {
	Error  string `json:"error"`
	Status string `json:"status"`
}

// homePage renders the counter page with the current value
func (s *WebServer) homePage(c *gin.Context) {
	snap, err := s.Counter.Get(c.Request.Context())
	if err != nil {
		s.storeFailed(c, "page", err)
		c.String(http.StatusInternalServerError, "500 Internal Server Error: could not load counter")
		return
	}
	s.observeCount(snap.Count)

	data := PageData{
		Title:      "Click Counter",
		Count:      snap.Count,
		AppVersion: s.Config.AppVersion,
	}
	// render into a buffer so a template error can still become a 500
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, "index.html", data); err != nil {
		s.log.Errorf("[WEB]: template error: %v", err)
		c.String(http.StatusInternalServerError, "500 Internal Server Error: template error")
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
}

// increment handles POST /increment
func (s *WebServer) increment(c *gin.Context) {
	count, err := s.Counter.Increment(c.Request.Context())
	if err != nil {
		s.storeFailed(c, "increment", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error(), Status: statusError})
		return
	}
	if s.Metrics != nil {
		s.Metrics.Increments.Inc()
	}
	s.observeCount(count)
	c.JSON(http.StatusOK, CountResponse{Count: count, Status: statusSuccess})
}

// reset handles POST /reset
func (s *WebServer) reset(c *gin.Context) {
	count, err := s.Counter.Reset(c.Request.Context())
	if err != nil {
		s.storeFailed(c, "reset", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error(), Status: statusError})
		return
	}
	if s.Metrics != nil {
		s.Metrics.Resets.Inc()
	}
	s.observeCount(count)
	s.log.Infof("[WEB]: counter reset by %s", c.ClientIP())
	c.JSON(http.StatusOK, CountResponse{Count: count, Status: statusSuccess})
}

// getCount handles GET /api/count
func (s *WebServer) getCount(c *gin.Context) {
	snap, err := s.Counter.Get(c.Request.Context())
	if err != nil {
		s.storeFailed(c, "get", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error(), Status: statusError})
		return
	}
	s.observeCount(snap.Count)
	c.JSON(http.StatusOK, CountResponse{Count: snap.Count, Status: statusSuccess})
}

// healthz reports uptime and whether the store can be read
func (s *WebServer) healthz(c *gin.Context) {
	uptime := time.Since(s.StartTime).Round(time.Second).String()
	snap, err := s.Counter.Get(c.Request.Context())
	if err != nil {
		s.storeFailed(c, "health", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": statusError, "error": err.Error(), "uptime": uptime})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "uptime": uptime, "record": snap.Source.String()})
}

func (s *WebServer) storeFailed(c *gin.Context, op string, err error) {
	s.log.WithField("route", c.FullPath()).Errorf("[WEB]: %s failed: %v", op, err)
	if s.Metrics != nil {
		s.Metrics.StoreErrors.WithLabelValues(op).Inc()
	}
}

func (s *WebServer) observeCount(count int64) {
	if s.Metrics != nil {
		s.Metrics.Current.Set(float64(count))
	}
}
