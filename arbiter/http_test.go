package arbiter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ccos-project/ccos-core/discovery"
	"github.com/ccos-project/ccos-core/manifest"
)

func newStubServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.NotEmpty(t, req.Messages)

		resp := chatResponse{Choices: []struct {
			Message chatMessage `json:"message"`
		}{{Message: chatMessage{Role: "assistant", Content: content}}}}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
}

func TestProposeStepsCallsChatCompletionsEndpoint(t *testing.T) {
	server := newStubServer(t, "[{\"name\":\"list issues\",\"capability_class\":\"github.issues.list\"}]")
	defer server.Close()

	cfg := NewConfig(WithAPIKey("test-key"), WithBaseURL(server.URL))
	a := NewHTTPArbiter(cfg, nil)

	snapshot := []*manifest.CapabilityManifest{{ID: "github.issues.list.v1", Description: "lists issues"}}
	content, err := a.ProposeSteps(context.Background(), "summarize issues", "intent-1", map[string]string{"repo": "acme/widgets"}, snapshot)
	require.NoError(t, err)
	assert.Contains(t, content, "github.issues.list")
}

func TestProposeStepsRejectsMissingAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	cfg := NewConfig(WithBaseURL("http://unused"))
	cfg.Provider = "openai"
	a := NewHTTPArbiter(cfg, nil)

	_, err := a.ProposeSteps(context.Background(), "goal", "intent", nil, nil)
	assert.Error(t, err)
}

func TestReplanCallsChatCompletionsEndpoint(t *testing.T) {
	server := newStubServer(t, "[{\"name\":\"alternate step\"}]")
	defer server.Close()

	cfg := NewConfig(WithAPIKey("test-key"), WithBaseURL(server.URL))
	a := NewHTTPArbiter(cfg, nil)

	hints := discovery.DiscoveryHints{
		Found:            []discovery.FoundHint{{ID: "github.issues.list.v1", Name: "list issues"}},
		Missing:          []string{"github.issues.triage"},
		CrossSuggestions: map[string][]string{"github.issues.triage": {"github.issues.list.v1"}},
	}
	content, err := a.Replan(context.Background(), "triage issues", "intent-1", hints)
	require.NoError(t, err)
	assert.Contains(t, content, "alternate step")
}

func TestWithProviderAliasAutoConfiguresFromEnvironment(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "groq-secret")
	cfg := NewConfig(WithProviderAlias("openai.groq"))
	assert.Equal(t, "openai", cfg.Provider)
	assert.Equal(t, "groq-secret", cfg.APIKey)
	assert.Equal(t, "https://api.groq.com/openai/v1", cfg.BaseURL)
}

func TestWithProviderAliasRespectsExplicitOverride(t *testing.T) {
	cfg := NewConfig(WithAPIKey("explicit"), WithBaseURL("https://explicit.example"), WithProviderAlias("openai.groq"))
	assert.Equal(t, "explicit", cfg.APIKey)
	assert.Equal(t, "https://explicit.example", cfg.BaseURL)
}
