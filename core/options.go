package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-config/cfgx"
	opts "github.com/goliatone/go-options"
)

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

// LoadConfig resolves defaults, loaded values and runtime overrides, in that
// order of precedence.
func LoadConfig(ctx context.Context, provider ConfigProvider, resolver OptionsResolver, runtime Config) (Config, error) {
	if provider == nil {
		provider = NewCfgxConfigProvider(nil)
	}
	if resolver == nil {
		resolver = GoOptionsResolver{}
	}
	defaults := DefaultConfig()
	loaded, err := provider.Load(ctx, defaults)
	if err != nil {
		return Config{}, err
	}
	return resolver.Resolve(defaults, loaded, runtime)
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	return cloneRawMap(l.Values), nil
}

// StaticConfigLoader serves a fixed raw map, mostly for tests and embedding.
func StaticConfigLoader(values map[string]any) RawConfigLoader {
	return staticRawConfigLoader{Values: values}
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	raw = normalizeRawDurations(raw)
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(listsReplacedBy(defaults, raw)),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			configToLayerMap(defaults, true),
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			configToLayerMap(loaded, false),
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			configToLayerMap(runtime, false),
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(listsReplacedBy(defaults, merged.Value)),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

// listsReplacedBy drops default lists the raw document sets, so a loaded
// consumer list replaces the defaults instead of merging index by index.
func listsReplacedBy(defaults Config, raw map[string]any) Config {
	if _, ok := raw["consumers"]; ok {
		defaults.Consumers = nil
	}
	if _, ok := raw["publications"]; ok {
		defaults.Publications = nil
	}
	return defaults
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	putString(layer, "name", cfg.Name, includeZero)
	putString(layer, "api_key", cfg.APIKey, includeZero)
	putString(layer, "source_preview_url", cfg.SourcePreviewURL, includeZero)
	putString(layer, "auth_header_mode", string(cfg.AuthHeaderMode), includeZero)
	putString(layer, "transfer_request_shape", string(cfg.TransferRequestShape), includeZero)
	if includeZero || cfg.Concurrency != 0 {
		layer["concurrency"] = cfg.Concurrency
	}

	provider := map[string]any{}
	putString(provider, "id", cfg.Provider.ID, includeZero)
	putString(provider, "management_url", cfg.Provider.ManagementURL, includeZero)
	putString(provider, "protocol_address", cfg.Provider.ProtocolAddress, includeZero)
	putString(provider, "public_url", cfg.Provider.PublicURL, includeZero)
	putString(provider, "internal_public_url", cfg.Provider.InternalPublicURL, includeZero)
	putSection(layer, "provider", provider)

	if includeZero || len(cfg.Publications) > 0 {
		publications := make([]any, 0, len(cfg.Publications))
		for _, pub := range cfg.Publications {
			publications = append(publications, map[string]any{
				"asset_id":               pub.AssetID,
				"contract_definition_id": pub.ContractDefinitionID,
				"policy_id":              pub.PolicyID,
				"source_url":             pub.SourceURL,
			})
		}
		layer["publications"] = publications
	}
	if includeZero || len(cfg.Consumers) > 0 {
		consumers := make([]any, 0, len(cfg.Consumers))
		for _, consumer := range cfg.Consumers {
			consumers = append(consumers, partyToLayerMap(consumer))
		}
		layer["consumers"] = consumers
	}
	if includeZero || strings.TrimSpace(cfg.Prober.ID) != "" {
		layer["prober"] = partyToLayerMap(cfg.Prober)
	}

	poll := map[string]any{}
	if includeZero || cfg.Poll.MaxAttempts != 0 {
		poll["max_attempts"] = cfg.Poll.MaxAttempts
	}
	if includeZero || cfg.Poll.Interval != 0 {
		poll["interval"] = cfg.Poll.Interval
	}
	if includeZero || cfg.Poll.MaxElapsed != 0 {
		poll["max_elapsed"] = cfg.Poll.MaxElapsed
	}
	putSection(layer, "poll", poll)

	httpLayer := map[string]any{}
	if includeZero || cfg.HTTP.Timeout != 0 {
		httpLayer["timeout"] = cfg.HTTP.Timeout
	}
	if includeZero || cfg.HTTP.RequestsPerSecond != 0 {
		httpLayer["requests_per_second"] = cfg.HTTP.RequestsPerSecond
	}
	if includeZero || cfg.HTTP.Burst != 0 {
		httpLayer["burst"] = cfg.HTTP.Burst
	}
	if includeZero || cfg.HTTP.MaxResponseBodyBytes != 0 {
		httpLayer["max_response_body_bytes"] = cfg.HTTP.MaxResponseBodyBytes
	}
	putSection(layer, "http", httpLayer)

	ledger := map[string]any{}
	if includeZero || cfg.Ledger.Enabled {
		ledger["enabled"] = cfg.Ledger.Enabled
	}
	if includeZero || cfg.Ledger.Debug {
		ledger["debug"] = cfg.Ledger.Debug
	}
	putString(ledger, "driver", cfg.Ledger.Driver, includeZero)
	putString(ledger, "dsn", cfg.Ledger.DSN, includeZero)
	putString(ledger, "secret_key", cfg.Ledger.SecretKey, includeZero)
	if includeZero || cfg.Ledger.CacheTTL != 0 {
		ledger["cache_ttl"] = cfg.Ledger.CacheTTL
	}
	putSection(layer, "ledger", ledger)
	return layer
}

func partyToLayerMap(party PartyConfig) map[string]any {
	return map[string]any{
		"id":             party.ID,
		"management_url": party.ManagementURL,
	}
}

func putString(layer map[string]any, key string, value string, includeZero bool) {
	if includeZero || strings.TrimSpace(value) != "" {
		layer[key] = value
	}
}

func putSection(layer map[string]any, key string, section map[string]any) {
	if len(section) > 0 {
		layer[key] = section
	}
}
