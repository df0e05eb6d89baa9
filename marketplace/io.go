package marketplace

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ccos-project/ccos-core/manifest"
)

// portableManifest is the YAML/JSON-serialisable projection of a
// CapabilityManifest used by Export/Import/LoadDiscovered. Only the
// exportable provider kinds (manifest.IsSerializable) ever reach this
// shape; Local/Native/Stream/Registry manifests have nothing portable
// to write down and are skipped by Export (spec.md §4.7).
type portableManifest struct {
	ID           string            `yaml:"id" json:"id"`
	Name         string            `yaml:"name" json:"name"`
	Description  string            `yaml:"description" json:"description"`
	Version      string            `yaml:"version" json:"version"`
	ProviderKind string            `yaml:"provider_kind" json:"provider_kind"`
	Provider     map[string]string `yaml:"provider" json:"provider"`
	Permissions  []string          `yaml:"permissions,omitempty" json:"permissions,omitempty"`
	Effects      []string          `yaml:"effects,omitempty" json:"effects,omitempty"`
	Domains      []string          `yaml:"domains,omitempty" json:"domains,omitempty"`
	Categories   []string          `yaml:"categories,omitempty" json:"categories,omitempty"`
	EffectClass  string            `yaml:"effect_class,omitempty" json:"effect_class,omitempty"`
}

// toPortable projects a manifest to its portable form, or reports ok=false
// if its provider kind is not serialisable.
func toPortable(m *manifest.CapabilityManifest) (portableManifest, bool) {
	if !manifest.IsSerializable(m.Provider.Kind()) {
		return portableManifest{}, false
	}
	fields, err := providerFields(m.Provider)
	if err != nil {
		return portableManifest{}, false
	}
	return portableManifest{
		ID:           m.ID,
		Name:         m.Name,
		Description:  m.Description,
		Version:      m.Version.String(),
		ProviderKind: string(m.Provider.Kind()),
		Provider:     fields,
		Permissions:  m.Permissions,
		Effects:      m.Effects,
		Domains:      m.Domains,
		Categories:   m.Categories,
		EffectClass:  m.EffectClass,
	}, true
}

// fromPortable rebuilds a manifest from its portable form.
func fromPortable(p portableManifest) (*manifest.CapabilityManifest, error) {
	provider, err := providerFromFields(manifest.ProviderKindTag(p.ProviderKind), p.Provider)
	if err != nil {
		return nil, fmt.Errorf("marketplace: import %s: %w", p.ID, err)
	}
	return &manifest.CapabilityManifest{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Version:     manifest.ParseVersion(p.Version),
		Provider:    provider,
		Permissions: p.Permissions,
		Effects:     manifest.NormalizeEffects(provider.Kind(), p.Effects),
		Domains:     p.Domains,
		Categories:  p.Categories,
		EffectClass: p.EffectClass,
	}, nil
}

// providerFields flattens a serialisable provider's fields into a string
// map, the only shape that survives a YAML capability script round trip
// cleanly (durations as Go duration strings).
func providerFields(p manifest.Provider) (map[string]string, error) {
	switch v := p.(type) {
	case manifest.HTTPProvider:
		return map[string]string{"base_url": v.BaseURL, "timeout": v.Timeout.String()}, nil
	case manifest.OpenAPIProvider:
		return map[string]string{"base_url": v.BaseURL, "spec_url": v.SpecURL}, nil
	case manifest.RemoteToolProvider:
		return map[string]string{"server_url": v.ServerURL, "tool_id": v.ToolID, "timeout": v.Timeout.String()}, nil
	case manifest.AgentToAgentProvider:
		return map[string]string{"agent_id": v.AgentID, "endpoint": v.Endpoint, "protocol": v.Protocol, "timeout": v.Timeout.String()}, nil
	case manifest.RemoteRTFSProvider:
		return map[string]string{"endpoint": v.Endpoint, "timeout": v.Timeout.String()}, nil
	case manifest.SandboxedProvider:
		return map[string]string{"runtime": v.Runtime, "source": v.Source, "entry_point": v.EntryPoint, "provider_hint": v.ProviderHint}, nil
	default:
		return nil, fmt.Errorf("provider kind %s is not serialisable", p.Kind())
	}
}

func providerFromFields(kind manifest.ProviderKindTag, fields map[string]string) (manifest.Provider, error) {
	dur := func(key string) time.Duration {
		d, _ := time.ParseDuration(fields[key])
		return d
	}
	switch kind {
	case manifest.ProviderHTTP:
		return manifest.HTTPProvider{BaseURL: fields["base_url"], Timeout: dur("timeout")}, nil
	case manifest.ProviderOpenAPI:
		return manifest.OpenAPIProvider{BaseURL: fields["base_url"], SpecURL: fields["spec_url"], Operations: map[string]manifest.OpenAPIOperation{}}, nil
	case manifest.ProviderRemoteTool:
		return manifest.RemoteToolProvider{ServerURL: fields["server_url"], ToolID: fields["tool_id"], Timeout: dur("timeout")}, nil
	case manifest.ProviderAgentToAgent:
		return manifest.AgentToAgentProvider{AgentID: fields["agent_id"], Endpoint: fields["endpoint"], Protocol: fields["protocol"], Timeout: dur("timeout")}, nil
	case manifest.ProviderRemoteRTFS:
		return manifest.RemoteRTFSProvider{Endpoint: fields["endpoint"], Timeout: dur("timeout")}, nil
	case manifest.ProviderSandboxed:
		return manifest.SandboxedProvider{Runtime: fields["runtime"], Source: fields["source"], EntryPoint: fields["entry_point"], ProviderHint: fields["provider_hint"]}, nil
	default:
		return nil, fmt.Errorf("unrecognised or unserialisable provider kind %q", kind)
	}
}

// ExportCapabilityScript writes every exportable manifest currently
// registered to dir, one YAML file per capability named after its id
// (dots replaced with underscores). Non-serialisable manifests (Local,
// Native, Stream, Plugin, Registry providers) are silently skipped —
// they have nothing portable to write.
func (mk *Marketplace) ExportCapabilityScript(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("marketplace: export: %w", err)
	}
	for _, m := range mk.store.Snapshot() {
		portable, ok := toPortable(m)
		if !ok {
			continue
		}
		data, err := yaml.Marshal(portable)
		if err != nil {
			return fmt.Errorf("marketplace: export %s: %w", m.ID, err)
		}
		path := filepath.Join(dir, strings.ReplaceAll(m.ID, ".", "_")+".yaml")
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("marketplace: export %s: %w", m.ID, err)
		}
	}
	return nil
}

// ImportCapabilityScript reads a single capability script file and
// registers it via RegisterCapabilityManifest (respecting the same
// duplicate-id no-op semantics as any other registration path).
func (mk *Marketplace) ImportCapabilityScript(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("marketplace: import %s: %w", path, err)
	}
	var portable portableManifest
	if err := yaml.Unmarshal(data, &portable); err != nil {
		return fmt.Errorf("marketplace: import %s: %w", path, err)
	}
	m, err := fromPortable(portable)
	if err != nil {
		return err
	}
	mk.RegisterCapabilityManifest(m)
	return nil
}

// LoadDiscovered walks dir recursively, importing every *.yaml capability
// script it finds as a non-forced update: a discovered manifest never
// overrides an existing registration with a breaking change, it is
// simply dropped with a warning (spec.md §4.7's discovery-agent fan-out
// integration point, exercised when an external discovery agent drops
// newly found capability scripts into a watched directory).
func (mk *Marketplace) LoadDiscovered(dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".yaml") {
			return nil
		}
		data, readErr := os.ReadFile(path)
		if readErr != nil {
			return fmt.Errorf("marketplace: load-discovered %s: %w", path, readErr)
		}
		var portable portableManifest
		if unmarshalErr := yaml.Unmarshal(data, &portable); unmarshalErr != nil {
			return fmt.Errorf("marketplace: load-discovered %s: %w", path, unmarshalErr)
		}
		m, buildErr := fromPortable(portable)
		if buildErr != nil {
			mk.logger.Warn("load-discovered: skipping unparseable manifest", map[string]interface{}{"path": path, "error": buildErr.Error()})
			return nil
		}
		m.Provenance = &manifest.Provenance{Source: "discovery", RegisteredAt: time.Now()}
		if updateErr := mk.UpdateCapability(m, false); updateErr != nil {
			mk.logger.Warn("load-discovered: rejected breaking update, keeping existing registration", map[string]interface{}{"path": path, "id": m.ID, "error": updateErr.Error()})
		}
		return nil
	})
}

// PersistManifest writes a single manifest to dir as a capability script
// file and registers it, the "persisted to disk and registered in the
// marketplace" step of an external tool-registry discovery hit
// (spec.md §4.9 tier 2). Non-serialisable provider kinds are registered
// but not written to disk.
func (mk *Marketplace) PersistManifest(dir string, m *manifest.CapabilityManifest) error {
	if portable, ok := toPortable(m); ok {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("marketplace: persist %s: %w", m.ID, err)
		}
		data, err := yaml.Marshal(portable)
		if err != nil {
			return fmt.Errorf("marketplace: persist %s: %w", m.ID, err)
		}
		path := filepath.Join(dir, strings.ReplaceAll(m.ID, ".", "_")+".yaml")
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("marketplace: persist %s: %w", m.ID, err)
		}
	}
	mk.RegisterCapabilityManifest(m)
	return nil
}

// RefreshCatalog asks the attached catalog, if any, to rebuild its index
// from the current snapshot.
func (mk *Marketplace) RefreshCatalog() {
	if mk.catalog != nil {
		mk.catalog.Refresh()
	}
}

// Snapshot exposes the current manifest set for discovery/orchestrator
// consumers that need to scan the marketplace directly.
func (mk *Marketplace) Snapshot() []*manifest.CapabilityManifest {
	return mk.store.Snapshot()
}
