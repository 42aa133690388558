// Click counter web server for go-clickcount
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-while/go-clickcount/internal/config"
	"github.com/go-while/go-clickcount/internal/logging"
	"github.com/go-while/go-clickcount/internal/metrics"
	"github.com/go-while/go-clickcount/internal/store"
	"github.com/go-while/go-clickcount/internal/web"
	prof "github.com/go-while/go-cpu-mem-profiler"
	"github.com/sirupsen/logrus"
)

const shutdownTimeout = 10 * time.Second

var (
	// command-line flags
	configFile  string
	webaddr     string
	webport     int
	webssl      bool
	webcertFile string
	webkeyFile  string
	webdebug    bool
	storeKind   string
	storePath   string
	logLevel    string
	logFile     string
	withMetrics bool
	pprofAddr   string
	showVersion bool
)

var appVersion = "-unset-"

func main() {
	config.AppVersion = appVersion

	flag.StringVar(&configFile, "config", "", "optional YAML config file (flags override file values)")
	flag.StringVar(&webaddr, "webaddr", config.DefaultListenAddr, "Web server listen address")
	flag.IntVar(&webport, "webport", config.DefaultListenPort, "Web server port")
	flag.BoolVar(&webssl, "webssl", false, "Enable SSL")
	flag.StringVar(&webcertFile, "websslcert", "", "SSL certificate file (/path/to/fullchain.pem)")
	flag.StringVar(&webkeyFile, "websslkey", "", "SSL key file (/path/to/privkey.pem)")
	flag.BoolVar(&webdebug, "debug", false, "gin debug mode")
	flag.StringVar(&storeKind, "backend", config.BackendJSON, "counter storage backend: json or sqlite")
	flag.StringVar(&storePath, "store", "", "path of the counter record (default: click_count.json or click_count.sq3)")
	flag.StringVar(&logLevel, "loglevel", "info", "log level: trace, debug, info, warn, error")
	flag.StringVar(&logFile, "logfile", "", "also write logs to this file, rotated at 5 MB")
	flag.BoolVar(&withMetrics, "metrics", true, "serve prometheus metrics")
	flag.StringVar(&pprofAddr, "pprof", "", "serve pprof on this address (e.g. :51111)")
	flag.BoolVar(&showVersion, "version", false, "print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Println(appVersion)
		return
	}

	mainConfig := config.NewDefaultConfig()
	if configFile != "" {
		if err := mainConfig.LoadFile(configFile); err != nil {
			fmt.Fprintf(os.Stderr, "[WEB]: %v\n", err)
			os.Exit(2)
		}
	}
	applyFlagOverrides(mainConfig, setFlags())
	if err := mainConfig.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "[WEB]: invalid configuration: %v\n", err)
		os.Exit(2)
	}

	logger, err := logging.New(logging.Options{Level: mainConfig.Log.Level, File: mainConfig.Log.File})
	if err != nil {
		fmt.Fprintf(os.Stderr, "[WEB]: %v\n", err)
		os.Exit(3)
	}
	logger.Infof("Starting go-clickcount (version: %s)", appVersion)
	logger.Debugf("[WEB]: Using configuration: %+v", mainConfig.Web)

	if mainConfig.Pprof.Addr != "" {
		p := prof.NewProf()
		go p.PprofWeb(mainConfig.Pprof.Addr)
		logger.Infof("[WEB]: pprof listening on %s", mainConfig.Pprof.Addr)
	}

	if err := serve(mainConfig, logger); err != nil {
		logger.Fatalf("[WEB]: %v", err)
	}
	logger.Infof("[WEB]: Graceful shutdown completed")
} // end main

// serve opens the store, runs the web server and blocks until a signal arrives
func serve(cfg *config.MainConfig, logger *logrus.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	counter, err := store.Open(ctx, cfg.Store.Backend, cfg.StorePath(), logger)
	if err != nil {
		return fmt.Errorf("failed to open %s store at %s: %w", cfg.Store.Backend, cfg.StorePath(), err)
	}
	defer func() {
		if err := counter.Close(); err != nil {
			logger.Errorf("[STORE]: close failed: %v", err)
		}
	}()

	created, err := counter.EnsureRecord(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize counter record: %w", err)
	}
	if created {
		logger.Infof("[STORE]: created new %s record at %s", cfg.Store.Backend, cfg.StorePath())
	} else {
		logger.Infof("[STORE]: using existing %s record at %s", cfg.Store.Backend, cfg.StorePath())
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}
	server := web.NewServer(counter, cfg, m, logger)

	// Start web server in goroutine to make it non-blocking
	webServerErrChan := make(chan error, 1)
	go func() {
		webServerErrChan <- server.Start()
	}()

	scheme := "http"
	if cfg.Web.SSL {
		scheme = "https"
	}
	logger.Infof("[WEB]: Open your browser and go to: %s://localhost:%d", scheme, cfg.Web.ListenPort)
	logger.Infof("[WEB]: Press Ctrl+C to stop the server")

	select {
	case <-ctx.Done():
		logger.Infof("[WEB]: Received shutdown signal, initiating graceful shutdown...")
	case err := <-webServerErrChan:
		if err != nil {
			return fmt.Errorf("web server failed: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-webServerErrChan
}
