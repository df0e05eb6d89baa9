package api

import (
	"encoding/json"
	"net/http"

	"github.com/ccos-project/ccos-core/ccoserr"
)

// orchestrateRequest is the wire shape POST /orchestrate accepts.
type orchestrateRequest struct {
	Goal        string            `json:"goal"`
	Intent      string            `json:"intent"`
	Answers     map[string]string `json:"answers,omitempty"`
	Matches     map[string]string `json:"matches,omitempty"`
	Interactive bool              `json:"interactive,omitempty"`
}

func (s *Server) handleOrchestrate(w http.ResponseWriter, r *http.Request) {
	if s.orch == nil {
		writeError(w, http.StatusServiceUnavailable, ccoserr.New(ccoserr.InternalInvariant, "", "no orchestrator configured"))
		return
	}

	var req orchestrateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ccoserr.New(ccoserr.ParseFailure, "", "invalid JSON body: "+err.Error()))
		return
	}
	if req.Goal == "" {
		writeError(w, http.StatusBadRequest, ccoserr.New(ccoserr.ParseFailure, "", "goal is required"))
		return
	}

	p, err := s.orch.Orchestrate(r.Context(), req.Goal, req.Intent, req.Answers, req.Matches, req.Interactive)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
