package gateway

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/sctg-development/rust-photoacoustic-sub001/config"
	apperrors "github.com/sctg-development/rust-photoacoustic-sub001/errors"
	"github.com/sctg-development/rust-photoacoustic-sub001/graph"
)

type healthResponse struct {
	Status   string `json:"status"`
	Revision uint64 `json:"revision"`
}

type graphResponse struct {
	Revision       uint64                     `json:"revision"`
	Descriptor     graph.Descriptor           `json:"descriptor"`
	ExecutionOrder []string                   `json:"execution_order"`
	Stats          map[string]graph.NodeStats `json:"stats"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if s.consumer.Failed() {
		status = "failed"
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, healthResponse{Status: status, Revision: s.store.Revision()})
}

func (s *Server) handleGraphGet(w http.ResponseWriter, r *http.Request) {
	g := s.consumer.Graph()
	s.writeJSON(w, http.StatusOK, graphResponse{
		Revision:       s.store.Revision(),
		Descriptor:     g.Descriptor(),
		ExecutionOrder: g.ExecutionOrder(),
		Stats:          g.Stats(),
	})
}

func (s *Server) handleGraphPut(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}

	desc, err := graph.ParseJSON(body)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.dispatcher.ApplyGraph(desc)
	if err != nil {
		s.writeError(w, s.statusForError(err), err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleConfigGet(w http.ResponseWriter, r *http.Request) {
	cfg, _ := s.store.Current()
	s.writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleConfigPut(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}

	// YAML is a superset of JSON, so both content types parse here.
	cfg, err := config.Parse(body)
	if err != nil {
		s.writeError(w, s.statusForError(err), err.Error())
		return
	}

	result, err := s.dispatcher.ApplyConfig(cfg)
	if err != nil {
		s.writeError(w, s.statusForError(err), err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.analytics.Snapshot())
}

func (s *Server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	defer r.Body.Close()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestSize+1))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "failed to read request body")
		return nil, false
	}
	if len(body) > maxRequestSize {
		s.writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return nil, false
	}
	return body, true
}

func (s *Server) statusForError(err error) int {
	switch {
	case apperrors.IsValidation(err):
		return http.StatusBadRequest
	case apperrors.IsTransient(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warn("response encoding failed", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, code int, message string) {
	s.requestsFailed.Add(1)
	s.writeJSON(w, code, map[string]any{
		"error":  message,
		"status": code,
	})
}
