package metrics

import (
	"errors"
	"expvar"
	"log/slog"
	"net"
	"net/http"
	"time"
)

// Handler returns the mux serving the expvar endpoint at /debug/vars.
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/debug/vars", expvar.Handler())
	return mux
}

// StartServer serves /debug/vars on addr in the background for the lifetime of
// a long transfer. If addr is empty, no server is started and nil is returned.
// The listener is bound before returning so address errors surface immediately.
func StartServer(addr string) (*http.Server, error) {
	if addr == "" {
		slog.Debug("metrics server disabled")
		return nil, nil
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	server := &http.Server{
		Addr:              ln.Addr().String(),
		Handler:           Handler(),
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       30 * time.Second,
	}

	slog.Info("starting metrics server", "addr", server.Addr)

	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", "error", err)
		}
	}()

	return server, nil
}
