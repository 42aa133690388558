package main

import (
	"flag"

	"github.com/go-while/go-clickcount/internal/config"
)

// setFlags returns the names of flags given on the command line
func setFlags() map[string]bool {
	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})
	return set
}

// applyFlagOverrides copies explicitly set flags over file/default values
func applyFlagOverrides(cfg *config.MainConfig, set map[string]bool) {
	if set["webaddr"] {
		cfg.Web.ListenAddr = webaddr
	}
	if set["webport"] {
		cfg.Web.ListenPort = webport
	}
	if set["webssl"] {
		cfg.Web.SSL = webssl
	}
	if set["websslcert"] {
		cfg.Web.CertFile = webcertFile
	}
	if set["websslkey"] {
		cfg.Web.KeyFile = webkeyFile
	}
	if set["debug"] {
		cfg.Web.Debug = webdebug
	}
	if set["backend"] {
		cfg.Store.Backend = storeKind
	}
	if set["store"] {
		cfg.Store.Path = storePath
	}
	if set["loglevel"] {
		cfg.Log.Level = logLevel
	}
	if set["logfile"] {
		cfg.Log.File = logFile
	}
	if set["metrics"] {
		cfg.Metrics.Enabled = withMetrics
	}
	if set["pprof"] {
		cfg.Pprof.Addr = pprofAddr
	}
}
