package discovery

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/ccos-project/ccos-core/introspection"
	"github.com/ccos-project/ccos-core/manifest"
	"github.com/ccos-project/ccos-core/plan"
)

// RegistryServer names one external tool-registry server to probe:
// either a curated override or a remote registry entry (spec.md §4.9
// tier 2: "query a curated override list first, then a remote
// registry").
type RegistryServer struct {
	ID             string
	URL            string // direct URL, used when URLEnvOverride is unset or empty
	URLEnvOverride string // environment variable consulted before URL
	AuthEnvVar     string // environment variable carrying the auth header value
}

// resolveURL honours the "server record or environment override" rule.
func (s RegistryServer) resolveURL() (string, error) {
	resolved := s.URL
	if s.URLEnvOverride != "" {
		if v := os.Getenv(s.URLEnvOverride); v != "" {
			resolved = v
		}
	}
	parsed, err := url.Parse(resolved)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return "", fmt.Errorf("registry server %s: invalid or unsupported URL %q", s.ID, resolved)
	}
	return resolved, nil
}

func (s RegistryServer) authHeader() string {
	if s.AuthEnvVar == "" {
		return ""
	}
	return os.Getenv(s.AuthEnvVar)
}

// ExternalRegistry is the discovery engine's tier-2 collaborator: a
// curated override list plus a remote registry, both probed the same
// way via the introspection cache with a live-probe fallback.
type ExternalRegistry interface {
	Candidates(ctx context.Context, need plan.CapabilityNeed) ([]*manifest.CapabilityManifest, error)
	PersistDir() string
}

// HTTPRegistry is the production ExternalRegistry: JSON-over-HTTP tool
// listings, parsed defensively with tidwall/gjson since the response
// body is untrusted input from a third-party server.
type HTTPRegistry struct {
	Curated      []RegistryServer
	Remote       []RegistryServer
	Cache        introspection.Cache
	Client       *http.Client
	PersistToDir string
}

func (r *HTTPRegistry) PersistDir() string { return r.PersistToDir }

// Candidates probes every curated server, then every remote registry
// server, returning every tool it could parse out of their responses.
// Scoring and threshold acceptance happen in the engine, not here.
func (r *HTTPRegistry) Candidates(ctx context.Context, need plan.CapabilityNeed) ([]*manifest.CapabilityManifest, error) {
	var all []*manifest.CapabilityManifest
	for _, server := range append(append([]RegistryServer{}, r.Curated...), r.Remote...) {
		tools, err := r.probe(ctx, server)
		if err != nil {
			continue // a single server failing never aborts the tier (spec.md §4.9 failure semantics)
		}
		all = append(all, tools...)
	}
	if len(all) == 0 {
		return nil, fmt.Errorf("no external registry server returned any tools")
	}
	return all, nil
}

func (r *HTTPRegistry) probe(ctx context.Context, server RegistryServer) ([]*manifest.CapabilityManifest, error) {
	endpoint, err := server.resolveURL()
	if err != nil {
		return nil, err
	}

	const probeKind = "tool_list"
	var body string
	if r.Cache != nil {
		if cached, ok := r.Cache.Get(ctx, endpoint, probeKind); ok {
			if raw, ok := cached.Schema["raw"].(string); ok {
				body = raw
			}
		}
	}

	if body == "" {
		fetched, err := r.fetch(ctx, endpoint, server.authHeader())
		if err != nil {
			return nil, err
		}
		body = fetched
		if r.Cache != nil {
			_ = r.Cache.Put(ctx, endpoint, probeKind, introspection.ProbeResult{
				Schema:     map[string]interface{}{"raw": body},
				CapturedAt: time.Now(),
			})
		}
	}

	return parseToolList(server, endpoint, body), nil
}

func (r *HTTPRegistry) fetch(ctx context.Context, endpoint, authHeader string) (string, error) {
	client := r.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	if authHeader != "" {
		req.Header.Set("Authorization", "Bearer "+authHeader)
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("registry probe %s: unexpected status %d", endpoint, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// parseToolList walks the untrusted response body defensively: gjson
// never panics on malformed JSON, it simply yields zero values, so a
// missing or garbled field degrades to an empty string rather than an
// error.
func parseToolList(server RegistryServer, endpoint, body string) []*manifest.CapabilityManifest {
	tools := gjson.Get(body, "tools")
	if !tools.IsArray() {
		tools = gjson.Parse(body) // tolerate a bare top-level array response too
	}
	var out []*manifest.CapabilityManifest
	tools.ForEach(func(_, tool gjson.Result) bool {
		id := strings.TrimSpace(tool.Get("id").String())
		if id == "" {
			return true // skip, keep iterating
		}
		out = append(out, &manifest.CapabilityManifest{
			ID:          id,
			Name:        tool.Get("name").String(),
			Description: tool.Get("description").String(),
			Version:     manifest.ParseVersion("1.0.0"),
			Provider: manifest.RemoteToolProvider{
				ServerURL: endpoint,
				ToolID:    id,
				Timeout:   30 * time.Second,
			},
			Metadata:   map[string]string{"registry_server": server.ID},
			Provenance: &manifest.Provenance{Source: "discovery"},
		})
		return true
	})
	return out
}
