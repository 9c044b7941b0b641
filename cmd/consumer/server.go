package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/klinok066/robots/internal/messages"
	"github.com/klinok066/robots/internal/metrics"
	"github.com/klinok066/robots/internal/notes"
)

func newServer(addr string, handler http.Handler, logger *slog.Logger) *http.Server {
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("listen and serve", "error", err)
		}
	}()

	return srv
}

type journalServer struct {
	journal *notes.Notes[messages.Message]
	stats   *metrics.Count
	wwwDir  string
	logger  *slog.Logger
}

func newRouter(
	journal *notes.Notes[messages.Message],
	stats *metrics.Count,
	gatherer prometheus.Gatherer,
	wwwDir string,
	logger *slog.Logger,
) *mux.Router {
	s := journalServer{
		journal: journal,
		stats:   stats,
		wwwDir:  wwwDir,
		logger:  logger,
	}

	r := mux.NewRouter()
	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}).Methods(http.MethodGet)
	r.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	r.HandleFunc("/notes", s.handleNotes).Methods(http.MethodGet)
	r.HandleFunc("/notes.txt", s.handleNotesText).Methods(http.MethodGet)
	r.HandleFunc("/notes/latest", s.handlePeek).Methods(http.MethodGet)
	r.HandleFunc("/notes/latest", s.handlePop).Methods(http.MethodDelete)
	r.HandleFunc("/notes/{index:[0-9]+}", s.handleGet).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))

	staticDir := filepath.Join(wwwDir, "static")
	fileServer := http.FileServer(http.Dir(staticDir))
	r.PathPrefix("/static/").Handler(http.StripPrefix("/static/", fileServer))

	return r
}

// handleNotes serves the whole journal, or the inclusive segment [from, to] when both query
// parameters are given.
func (s journalServer) handleNotes(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	if !query.Has("from") && !query.Has("to") {
		values, err := s.journal.SnapshotContext(r.Context())
		if err != nil {
			writeError(w, http.StatusServiceUnavailable, err)
			return
		}
		writeJSON(w, http.StatusOK, values)
		return
	}

	from, err := strconv.Atoi(query.Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("from must be an integer"))
		return
	}
	to, err := strconv.Atoi(query.Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("to must be an integer"))
		return
	}

	segment, err := s.journal.SegmentContext(r.Context(), from, to)
	if errors.Is(err, notes.ErrOutOfRange) {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusOK, segment)
}

func (s journalServer) handleNotesText(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(s.journal.String()))
}

func (s journalServer) handleGet(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(mux.Vars(r)["index"])
	if err != nil {
		// The route only admits digits, so this is an index too large to be held.
		writeError(w, http.StatusNotFound, fmt.Errorf("%w: %v", notes.ErrOutOfRange, err))
		return
	}
	msg, err := s.journal.GetContext(r.Context(), index)
	s.writeNote(w, msg, err)
}

func (s journalServer) handlePeek(w http.ResponseWriter, r *http.Request) {
	msg, err := s.journal.PeekContext(r.Context())
	s.writeNote(w, msg, err)
}

func (s journalServer) handlePop(w http.ResponseWriter, r *http.Request) {
	msg, err := s.journal.PopContext(r.Context())
	if err == nil {
		s.logger.Info("journal: popped note", "id", msg.ID)
	}
	s.writeNote(w, msg, err)
}

func (s journalServer) writeNote(w http.ResponseWriter, msg messages.Message, err error) {
	switch {
	case errors.Is(err, notes.ErrOutOfRange):
		writeError(w, http.StatusNotFound, err)
	case err != nil:
		writeError(w, http.StatusServiceUnavailable, err)
	default:
		writeJSON(w, http.StatusOK, msg)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.MarshalIndent(v, "", "   ")
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, struct {
		Error string `json:"error"`
	}{Error: err.Error()})
}
