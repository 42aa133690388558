// Package web provides the HTTP server and web interface for go-clickcount
package web

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/secure"
	"github.com/gin-gonic/gin"
	"github.com/go-while/go-clickcount/internal/config"
	"github.com/go-while/go-clickcount/internal/metrics"
	"github.com/go-while/go-clickcount/internal/store"
	"github.com/sirupsen/logrus"
)

// WebServer represents the web server
type WebServer struct {
	Counter   *store.Counter
	Router    *gin.Engine
	Config    *config.MainConfig
	Metrics   *metrics.Metrics // nil disables /metrics and request observation
	StartTime time.Time        // Track server start time for uptime calculations

	log       *logrus.Entry
	accessLog io.WriteCloser
	templates *template.Template
	httpSrv   *http.Server
}

// PageData is the data rendered into the counter page
type PageData struct {
	Title      string
	Count      int64
	AppVersion string
}

// NewServer creates a new web server instance around counter
func NewServer(counter *store.Counter, cfg *config.MainConfig, m *metrics.Metrics, logger *logrus.Logger) *WebServer {
	if cfg.Web.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	// Configure Gin to trust reverse proxy headers
	router.SetTrustedProxies([]string{"127.0.0.1", "::1", "10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16"})

	// Configure security headers based on SSL setup
	secureConfig := secure.Config{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ReferrerPolicy:        "strict-origin-when-cross-origin",
		ContentSecurityPolicy: "default-src 'self'",
		IsDevelopment:         cfg.Web.Debug,
	}

	// Only add SSL-specific headers if SSL is enabled on the application itself
	// (not when running behind a reverse proxy like nginx with SSL)
	if cfg.Web.SSL {
		secureConfig.SSLRedirect = true
		secureConfig.STSSeconds = 31536000
		secureConfig.STSIncludeSubdomains = true
	}

	server := &WebServer{
		Counter:   counter,
		Router:    router,
		Config:    cfg,
		Metrics:   m,
		StartTime: time.Now(),
		log:       logger.WithField("component", "web"),
		templates: pageTemplates(),
	}
	server.accessLog = server.log.WriterLevel(logrus.InfoLevel)
	server.httpSrv = &http.Server{
		Addr:              cfg.ListenAddress(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	router.Use(server.ApacheLogFormat(server.accessLog))
	router.Use(secure.New(secureConfig))
	router.Use(server.ReverseProxyMiddleware())
	if m != nil {
		router.Use(server.MetricsMiddleware())
	}

	server.setupRoutes()
	return server
}

// setupRoutes configures all HTTP routes
func (s *WebServer) setupRoutes() {
	s.Router.GET("/static/*filepath", staticHandler())
	s.Router.GET("/robots.txt", func(c *gin.Context) {
		c.String(http.StatusOK, "User-agent: *\nDisallow:\n")
	})
	s.Router.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})
	s.Router.GET("/healthz", s.healthz)

	if s.Metrics != nil {
		s.Router.GET(s.Config.Metrics.Path, gin.WrapH(s.Metrics.Handler()))
	}

	// Counter page and API
	s.Router.GET("/", s.homePage)
	s.Router.POST("/increment", s.increment)
	s.Router.POST("/reset", s.reset)
	s.Router.GET("/api/count", s.getCount)
}

// Start serves until Shutdown is called or the listener fails.
// A clean Shutdown returns nil.
func (s *WebServer) Start() error {
	addr := s.httpSrv.Addr

	var err error
	if s.Config.Web.SSL {
		if s.Config.Web.CertFile == "" || s.Config.Web.KeyFile == "" {
			return errors.New("SSL enabled but cert_file or key_file not specified in config")
		}
		s.log.Infof("[WEB]: Starting HTTPS server on %s", addr)
		err = s.httpSrv.ListenAndServeTLS(s.Config.Web.CertFile, s.Config.Web.KeyFile)
	} else {
		s.log.Infof("[WEB]: Starting HTTP server on %s", addr)
		err = s.httpSrv.ListenAndServe()
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting requests and waits for in-flight ones until ctx ends
func (s *WebServer) Shutdown(ctx context.Context) error {
	defer s.accessLog.Close()
	s.log.Infof("[WEB]: Shutting down HTTP server")
	return s.httpSrv.Shutdown(ctx)
}

// ReverseProxyMiddleware handles X-Forwarded headers when running behind a reverse proxy
func (s *WebServer) ReverseProxyMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Handle X-Forwarded-Proto to detect if the original request was HTTPS
		if proto := c.GetHeader("X-Forwarded-Proto"); proto == "https" {
			c.Request.URL.Scheme = "https"
		}

		// Handle X-Forwarded-Host to get the original host
		if host := c.GetHeader("X-Forwarded-Host"); host != "" {
			c.Request.Host = strings.TrimSpace(strings.Split(host, ",")[0])
		}

		c.Next()
	}
}

// ApacheLogFormat writes one combined-log line per request to out
func (s *WebServer) ApacheLogFormat(out io.Writer) gin.HandlerFunc {
	return gin.LoggerWithConfig(gin.LoggerConfig{
		Output:    out,
		SkipPaths: []string{"/ping"},
		Formatter: func(param gin.LogFormatterParams) string {
			return fmt.Sprintf(`%s - - [%s] "%s %s %s" %d %d "%s" "%s"`+"\n",
				param.ClientIP,
				param.TimeStamp.Format("02/Jan/2006:15:04:05 -0700"),
				param.Method,
				param.Path,
				param.Request.Proto,
				param.StatusCode,
				param.BodySize,
				param.Request.Referer(),
				param.Request.UserAgent(),
			)
		},
	})
}

// MetricsMiddleware observes request latency per matched route
func (s *WebServer) MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.Metrics.ObserveRequest(c.Request.Method, c.FullPath(), c.Writer.Status(), time.Since(start))
	}
}
