package health

import (
	"crypto/tls"
	"encoding/json"
	"errors"
	"expvar"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"tgdispatch/queue"
)

// StatsSource is the queue introspection surface served on /stats.
type StatsSource interface {
	Stats() queue.Stats
	ResetStats()
}

// NewMux registers /healthz, /metrics and, when src is set, /stats and
// /stats/reset.
func NewMux(src StatsSource) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "OK")
	})
	mux.Handle("GET /metrics", expvar.Handler())
	if src == nil {
		return mux
	}
	mux.HandleFunc("GET /stats", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, src.Stats())
	})
	mux.HandleFunc("POST /stats/reset", func(w http.ResponseWriter, r *http.Request) {
		src.ResetStats()
		writeJSON(w, http.StatusOK, src.Stats())
	})
	return mux
}

// Start listens on addr and serves handler in the background. A nil
// tlsConf serves plain HTTP.
func Start(addr string, handler http.Handler, tlsConf *tls.Config) (*http.Server, net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, err
	}
	if tlsConf != nil {
		ln = tls.NewListener(ln, tlsConf)
	}
	server := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server stopped", slog.String("error", err.Error()))
		}
	}()
	return server, ln, nil
}

// StartHealthServer serves only the health, metrics and stats endpoints.
func StartHealthServer(addr string, src StatsSource) (*http.Server, net.Listener, error) {
	return Start(addr, NewMux(src), nil)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
