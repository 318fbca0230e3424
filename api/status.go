// Package api serves read-only batch progress over HTTP, so long runs can
// be watched without tailing logs.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"mstid-music/models"
	"mstid-music/store"
	"mstid-music/utils"
)

// Snapshot is the progress view of the running batch.
type Snapshot struct {
	RunID     string   `json:"run_id"`
	Target    string   `json:"target"`
	Total     int      `json:"total"`
	Done      int      `json:"done"`
	Succeeded int      `json:"succeeded"`
	Rejected  int      `json:"rejected"`
	Failed    int      `json:"failed"`
	InFlight  []string `json:"in_flight"`
}

// StatusSource is implemented by the batch controller.
type StatusSource interface {
	Snapshot() Snapshot
	Event(id string) (*models.Event, error)
}

// Server hosts GET /status and GET /events/{id}.
type Server struct {
	srv *http.Server
}

// Start begins serving on addr in a background goroutine. Returns nil when
// addr is empty (status server disabled).
func Start(addr string, src StatusSource) *Server {
	if addr == "" {
		return nil
	}

	s := &Server{
		srv: &http.Server{
			Addr:         addr,
			Handler:      handlers.CombinedLoggingHandler(os.Stdout, Handler(src)),
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
	}
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			utils.L().Error("status server: %v", err)
		}
	}()
	utils.L().Info("status server listening on %s", addr)
	return s
}

// Handler builds the route table. Split from Start so tests can drive it
// with httptest without opening a listener.
func Handler(src StatusSource) http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/status", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, src.Snapshot())
	}).Methods(http.MethodGet)
	r.HandleFunc("/events/{id}", func(w http.ResponseWriter, req *http.Request) {
		ev, err := src.Event(mux.Vars(req)["id"])
		if err != nil {
			code := http.StatusInternalServerError
			if errors.Is(err, store.ErrNotFound) {
				code = http.StatusNotFound
			}
			writeJSON(w, code, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, ev)
	}).Methods(http.MethodGet)
	return r
}

func (s *Server) Close() {
	if s == nil {
		return
	}
	_ = s.srv.Close()
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
