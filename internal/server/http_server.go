// Package server constructs and starts the relay HTTP service with helpers
// that apply sensible production defaults.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// CreateServer creates an HTTP server for cfg's address and handler.
// WriteTimeout is left unset: upgraded connections manage their own write
// deadlines and would otherwise be cut off after the first interval.
func CreateServer(cfg Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// StartServer listens on the plaintext or TLS path selected by tlsCfg and
// blocks until the server stops.
func StartServer(server *http.Server, tlsCfg TLSConfig, logger *slog.Logger) error {
	if tlsCfg.Enabled {
		logger.Info("server listening", "addr", server.Addr, "tls", true,
			"cert_file", tlsCfg.CertFile, "key_file", tlsCfg.KeyFile)
		return server.ListenAndServeTLS(tlsCfg.CertFile, tlsCfg.KeyFile)
	}

	logger.Info("server listening", "addr", server.Addr, "tls", false)
	return server.ListenAndServe()
}

// ShutdownServer gracefully shuts down the HTTP server. Hijacked websocket
// connections are not tracked by net/http; the hub closes those.
func ShutdownServer(ctx context.Context, server *http.Server, logger *slog.Logger) error {
	logger.Info("shutting down HTTP server")

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
		return err
	}

	logger.Info("HTTP server shutdown completed")
	return nil
}
