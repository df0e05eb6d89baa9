package api

import (
	"encoding/json"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/ccos-project/ccos-core/ccoserr"
	"github.com/ccos-project/ccos-core/manifest"
)

// capabilitySummary is the JSON-facing projection of a manifest: enough
// to browse the marketplace without exposing internal schema
// representations directly.
type capabilitySummary struct {
	ID           string                     `json:"id"`
	Name         string                     `json:"name"`
	Description  string                     `json:"description"`
	Version      string                     `json:"version"`
	ProviderKind manifest.ProviderKindTag   `json:"provider_kind"`
	Effects      []string                   `json:"effects,omitempty"`
	Domains      []string                   `json:"domains,omitempty"`
	Categories   []string                   `json:"categories,omitempty"`
	Metadata     map[string]string          `json:"metadata,omitempty"`
}

func toSummary(m *manifest.CapabilityManifest) capabilitySummary {
	return capabilitySummary{
		ID:           m.ID,
		Name:         m.Name,
		Description:  m.Description,
		Version:      m.Version.String(),
		ProviderKind: m.Provider.Kind(),
		Effects:      m.Effects,
		Domains:      m.Domains,
		Categories:   m.Categories,
		Metadata:     m.Metadata,
	}
}

func (s *Server) handleListCapabilities(w http.ResponseWriter, r *http.Request) {
	snapshot := s.mk.Snapshot()
	sort.Slice(snapshot, func(i, j int) bool { return snapshot[i].ID < snapshot[j].ID })

	summaries := make([]capabilitySummary, 0, len(snapshot))
	for _, m := range snapshot {
		summaries = append(summaries, toSummary(m))
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (s *Server) handleGetCapability(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	m, ok := s.mk.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, ccoserr.New(ccoserr.UnknownCapability, id, "capability not registered"))
		return
	}
	writeJSON(w, http.StatusOK, toSummary(m))
}

func (s *Server) handleExecuteCapability(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var inputs interface{}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&inputs); err != nil {
			writeError(w, http.StatusBadRequest, ccoserr.New(ccoserr.ParseFailure, id, "invalid JSON body: "+err.Error()))
			return
		}
	}

	result, err := s.mk.ExecuteCapability(r.Context(), id, inputs)
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// statusForError maps a ccoserr.Kind to the HTTP status that best
// reflects it.
func statusForError(err error) int {
	switch {
	case ccoserr.IsKind(err, ccoserr.UnknownCapability):
		return http.StatusNotFound
	case ccoserr.IsKind(err, ccoserr.AccessDenied):
		return http.StatusForbidden
	case ccoserr.IsKind(err, ccoserr.SchemaViolation), ccoserr.IsKind(err, ccoserr.ParseFailure):
		return http.StatusBadRequest
	case ccoserr.IsKind(err, ccoserr.ResourceViolation):
		return http.StatusTooManyRequests
	case ccoserr.IsKind(err, ccoserr.ExecutionTimeout):
		return http.StatusGatewayTimeout
	case ccoserr.IsKind(err, ccoserr.Cancelled):
		return 499 // client closed request, matching the convention many gateways use
	case ccoserr.IsKind(err, ccoserr.BreakingChange):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
