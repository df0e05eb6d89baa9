package arbiter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/ccos-project/ccos-core/ccoslog"
	"github.com/ccos-project/ccos-core/discovery"
	"github.com/ccos-project/ccos-core/manifest"
)

// HTTPArbiter calls an OpenAI-compatible chat-completions endpoint to
// propose plan steps and, when asked, to re-plan around a capability
// gap. Grounded on the teacher framework's OpenAIClient.GenerateResponse
// request/response shape.
type HTTPArbiter struct {
	cfg        Config
	httpClient *http.Client
	logger     ccoslog.Logger
}

// NewHTTPArbiter builds an HTTPArbiter from cfg.
func NewHTTPArbiter(cfg Config, logger ccoslog.Logger) *HTTPArbiter {
	if logger == nil {
		logger = ccoslog.NoOp()
	}
	return &HTTPArbiter{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger.WithComponent("arbiter"),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float32       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// ProposeSteps implements orchestrator.Arbiter: builds a prompt
// describing the goal, intent, clarifying answers, and the current
// capability snapshot, and returns the raw completion text for
// orchestrator.ParseProposedSteps to parse.
func (a *HTTPArbiter) ProposeSteps(ctx context.Context, goal, intent string, answers map[string]string, snapshot []*manifest.CapabilityManifest) (string, error) {
	system := "You are a planning assistant. Respond with a JSON array of steps, each an object with " +
		"name, capability_class, required_inputs, expected_outputs, and description fields. " +
		"Ask a clarifying question instead, as a single line ending in '?', if the goal is ambiguous."
	prompt := buildProposePrompt(goal, intent, answers, snapshot)
	return a.complete(ctx, system, prompt)
}

// Replan implements orchestrator.ReplanningArbiter: hands the arbiter
// the Re-planning Hint Emitter's DiscoveryHints so it can propose steps
// around a capability gap (spec.md §4.12).
func (a *HTTPArbiter) Replan(ctx context.Context, goal, intent string, hints discovery.DiscoveryHints) (string, error) {
	system := "You are a planning assistant helping re-plan around a capability gap. " +
		"Respond with a JSON array of steps in the same shape as before, preferring the " +
		"found capabilities and cross-suggestions listed below over the missing ones."
	prompt := buildReplanPrompt(goal, intent, hints)
	return a.complete(ctx, system, prompt)
}

func (a *HTTPArbiter) complete(ctx context.Context, system, prompt string) (string, error) {
	if a.cfg.APIKey == "" && a.cfg.Provider != "ollama" {
		return "", fmt.Errorf("arbiter: no API key configured for provider %q", a.cfg.Provider)
	}

	reqBody := chatRequest{
		Model: a.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: prompt},
		},
		Temperature: a.cfg.Temperature,
		MaxTokens:   a.cfg.MaxTokens,
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("arbiter: failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(a.cfg.BaseURL, "/")+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("arbiter: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if a.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("arbiter: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("arbiter: failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("arbiter: provider returned status %d: %s", resp.StatusCode, string(body))
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("arbiter: failed to parse response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("arbiter: provider returned no choices")
	}

	return parsed.Choices[0].Message.Content, nil
}

func buildProposePrompt(goal, intent string, answers map[string]string, snapshot []*manifest.CapabilityManifest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Goal: %s\nIntent: %s\n", goal, intent)
	if len(answers) > 0 {
		b.WriteString("Clarifying answers:\n")
		for _, k := range sortedKeys(answers) {
			fmt.Fprintf(&b, "- %s: %s\n", k, answers[k])
		}
	}
	b.WriteString("Available capabilities:\n")
	for _, m := range snapshot {
		fmt.Fprintf(&b, "- %s: %s\n", m.ID, m.Description)
	}
	return b.String()
}

func buildReplanPrompt(goal, intent string, hints discovery.DiscoveryHints) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Goal: %s\nIntent: %s\n", goal, intent)
	b.WriteString("Found capabilities:\n")
	for _, f := range hints.Found {
		fmt.Fprintf(&b, "- %s (%s): %s\n", f.ID, f.Name, f.Description)
	}
	b.WriteString("Missing capabilities:\n")
	for _, id := range hints.Missing {
		fmt.Fprintf(&b, "- %s\n", id)
		if suggestions, ok := hints.CrossSuggestions[id]; ok {
			fmt.Fprintf(&b, "  suggested alternatives: %s\n", strings.Join(suggestions, ", "))
		}
	}
	return b.String()
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
