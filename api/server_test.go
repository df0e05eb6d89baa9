package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ccos-project/ccos-core/chain"
	"github.com/ccos-project/ccos-core/discovery"
	"github.com/ccos-project/ccos-core/executor"
	"github.com/ccos-project/ccos-core/marketplace"
	"github.com/ccos-project/ccos-core/session"
)

func newTestServer(t *testing.T) (*Server, *marketplace.Marketplace) {
	t.Helper()
	registry := executor.NewDefaultRegistry(nil, nil)
	pool := session.NewPool(func(string, string) []string { return nil }, nil)
	c := chain.New(nil)
	emitter := chain.NewEmitter(c, nil)
	mk := marketplace.New(registry, pool, emitter, nil)
	engine := discovery.New(mk, nil)
	return NewServer(mk, engine, nil, nil), mk
}

func TestHandleHealthReturnsOK(t *testing.T) {
	s, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	s.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleListAndGetCapability(t *testing.T) {
	s, mk := newTestServer(t)
	mk.RegisterLocalCapability("demo.echo", "echo", "echoes its input", nil, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/capabilities", nil)
	s.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var summaries []capabilitySummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summaries))
	require.Len(t, summaries, 1)
	assert.Equal(t, "demo.echo", summaries[0].ID)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/capabilities/demo.echo", nil)
	s.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/capabilities/does.not.exist", nil)
	s.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleExecuteCapability(t *testing.T) {
	s, mk := newTestServer(t)
	mk.RegisterLocalCapability("demo.echo", "echo", "echoes its input", func(ctx context.Context, inputs interface{}) (interface{}, error) {
		return inputs, nil
	}, nil)

	body, _ := json.Marshal(map[string]interface{}{"message": "hi"})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/capabilities/demo.echo/execute", bytes.NewReader(body))
	s.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleResolve(t *testing.T) {
	s, mk := newTestServer(t)
	mk.RegisterLocalCapability("demo.echo", "echo", "echoes its input", nil, nil)

	body, _ := json.Marshal(resolveRequest{CapabilityClass: "demo.echo"})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/discovery/resolve", bytes.NewReader(body))
	s.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp resolveResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "found", resp.Outcome)
}

func TestHandleOrchestrateWithoutOrchestratorReturns503(t *testing.T) {
	s, _ := newTestServer(t)
	body, _ := json.Marshal(orchestrateRequest{Goal: "do something"})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/orchestrate", bytes.NewReader(body))
	s.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
