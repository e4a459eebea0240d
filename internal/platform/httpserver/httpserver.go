package httpserver

import (
	"net/http"
	"time"
)

// New builds an HTTP server tuned for the gate API: header reads are
// bounded so a stalled badge reader cannot hold a connection open.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}
