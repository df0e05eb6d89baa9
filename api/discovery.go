package api

import (
	"encoding/json"
	"net/http"

	"github.com/ccos-project/ccos-core/ccoserr"
	"github.com/ccos-project/ccos-core/plan"
)

// resolveRequest is the wire shape POST /discovery/resolve accepts.
type resolveRequest struct {
	CapabilityClass string   `json:"capability_class"`
	RequiredInputs  []string `json:"required_inputs"`
	ExpectedOutputs []string `json:"expected_outputs"`
	Rationale       string   `json:"rationale"`
}

type resolveResponse struct {
	Outcome      string              `json:"outcome"`
	Tier         string              `json:"tier"`
	Score        float64             `json:"score"`
	Reason       string              `json:"reason,omitempty"`
	CapabilityID string              `json:"capability_id,omitempty"`
	Summary      *capabilitySummary  `json:"manifest,omitempty"`
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ccoserr.New(ccoserr.ParseFailure, req.CapabilityClass, "invalid JSON body: "+err.Error()))
		return
	}
	if req.CapabilityClass == "" {
		writeError(w, http.StatusBadRequest, ccoserr.New(ccoserr.ParseFailure, "", "capability_class is required"))
		return
	}

	need := plan.CapabilityNeed{
		CapabilityClass: req.CapabilityClass,
		RequiredInputs:  req.RequiredInputs,
		ExpectedOutputs: req.ExpectedOutputs,
		Rationale:       req.Rationale,
	}
	result := s.engine.Resolve(r.Context(), need)

	resp := resolveResponse{
		Outcome: string(result.Outcome),
		Tier:    string(result.Tier),
		Score:   result.Score,
		Reason:  result.Reason,
	}
	if result.Manifest != nil {
		resp.CapabilityID = result.Manifest.ID
		summary := toSummary(result.Manifest)
		resp.Summary = &summary
	}
	writeJSON(w, http.StatusOK, resp)
}
