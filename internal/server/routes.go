// Package server wires HTTP handlers into a ServeMux for the chat hub
// via routing helpers.
package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Tyrowin/chathub/internal/cid"
)

// Routes configures the application routes: health check, WebSocket
// endpoint, test page, metrics and, when enabled, the log level. Every
// request gets a correlation id.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", HealthHandler)
	mux.HandleFunc("/healthz", HealthHandler)
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/test", TestPageHandler)
	mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	if s.logLevel != nil {
		mux.Handle("/loglevel", s.logLevel)
	}
	return cid.Middleware(mux)
}
