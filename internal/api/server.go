package api

import (
	"fmt"
	"net/http"
	"time"
)

// NewServer creates a configured *http.Server for the batch API. Write
// timeouts are generous since a request runs a whole batch.
func NewServer(port uint16, svc Service) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           NewRouter(svc),
		ReadTimeout:       2 * time.Minute,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
