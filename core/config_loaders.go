package core

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvLoader maps the deployment environment variables onto raw config keys.
// Consumers are read from CONSUMER_<n>_PID / CONSUMER_<n>_MGMT starting at 1
// and stop at the first gap.
type EnvLoader struct {
	Lookup func(key string) (string, bool)
}

func NewEnvLoader() *EnvLoader {
	return &EnvLoader{Lookup: os.LookupEnv}
}

var envStringKeys = map[string][]string{
	"API_KEY":                  {"api_key"},
	"PROVIDER_PID":             {"provider", "id"},
	"PROVIDER_MGMT":            {"provider", "management_url"},
	"PROVIDER_DSP_DOCKER":      {"provider", "protocol_address"},
	"PROVIDER_PUBLIC_HOST":     {"provider", "public_url"},
	"PROVIDER_PUBLIC_INTERNAL": {"provider", "internal_public_url"},
	"SOURCE_PREVIEW_URL":       {"source_preview_url"},
	"AUTH_HEADER_MODE":         {"auth_header_mode"},
	"TRANSFER_REQUEST_SHAPE":   {"transfer_request_shape"},
	"PROBER_PID":               {"prober", "id"},
	"PROBER_MGMT":              {"prober", "management_url"},
	"POLL_INTERVAL":            {"poll", "interval"},
	"POLL_MAX_ELAPSED":         {"poll", "max_elapsed"},
	"HTTP_TIMEOUT":             {"http", "timeout"},
	"LEDGER_DRIVER":            {"ledger", "driver"},
	"LEDGER_DSN":               {"ledger", "dsn"},
	"LEDGER_SECRET":            {"ledger", "secret_key"},
}

var envIntKeys = map[string][]string{
	"POLL_MAX_ATTEMPTS": {"poll", "max_attempts"},
	"CONCURRENCY":       {"concurrency"},
	"HTTP_BURST":        {"http", "burst"},
}

func (l *EnvLoader) LoadRaw(context.Context) (map[string]any, error) {
	lookup := os.LookupEnv
	if l != nil && l.Lookup != nil {
		lookup = l.Lookup
	}
	raw := map[string]any{}
	for env, path := range envStringKeys {
		if value, ok := lookupTrimmed(lookup, env); ok {
			setRawPath(raw, path, value)
		}
	}
	for env, path := range envIntKeys {
		value, ok := lookupTrimmed(lookup, env)
		if !ok {
			continue
		}
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("core: invalid %s: %w", env, err)
		}
		setRawPath(raw, path, parsed)
	}
	if value, ok := lookupTrimmed(lookup, "HTTP_REQUESTS_PER_SECOND"); ok {
		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, fmt.Errorf("core: invalid HTTP_REQUESTS_PER_SECOND: %w", err)
		}
		setRawPath(raw, []string{"http", "requests_per_second"}, parsed)
	}
	if value, ok := lookupTrimmed(lookup, "LEDGER_ENABLED"); ok {
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("core: invalid LEDGER_ENABLED: %w", err)
		}
		setRawPath(raw, []string{"ledger", "enabled"}, parsed)
	}

	if publication := envPublication(lookup); len(publication) > 0 {
		raw["publications"] = []any{publication}
	}
	if consumers := envConsumers(lookup); len(consumers) > 0 {
		raw["consumers"] = consumers
	}
	return normalizeRawDurations(raw), nil
}

func envPublication(lookup func(string) (string, bool)) map[string]any {
	keys := map[string]string{
		"ASSET_ID":        "asset_id",
		"CONTRACT_DEF_ID": "contract_definition_id",
		"POLICY_ID":       "policy_id",
		"SOURCE_URL":      "source_url",
	}
	found := map[string]string{}
	for env, key := range keys {
		if value, ok := lookupTrimmed(lookup, env); ok {
			found[key] = value
		}
	}
	if len(found) == 0 {
		return nil
	}
	defaults := DefaultConfig().Publications[0]
	publication := map[string]any{
		"asset_id":               defaults.AssetID,
		"contract_definition_id": defaults.ContractDefinitionID,
		"policy_id":              defaults.PolicyID,
		"source_url":             defaults.SourceURL,
	}
	for key, value := range found {
		publication[key] = value
	}
	return publication
}

func envConsumers(lookup func(string) (string, bool)) []any {
	consumers := []any{}
	for i := 1; ; i++ {
		id, hasID := lookupTrimmed(lookup, fmt.Sprintf("CONSUMER_%d_PID", i))
		mgmt, hasMgmt := lookupTrimmed(lookup, fmt.Sprintf("CONSUMER_%d_MGMT", i))
		if !hasID && !hasMgmt {
			break
		}
		consumers = append(consumers, map[string]any{"id": id, "management_url": mgmt})
	}
	return consumers
}

func lookupTrimmed(lookup func(string) (string, bool), key string) (string, bool) {
	value, ok := lookup(key)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	return value, value != ""
}

// YAMLFileLoader reads raw config from a YAML document. A missing file is
// treated as empty unless Required is set.
type YAMLFileLoader struct {
	Path     string
	Required bool
	ReadFile func(path string) ([]byte, error)
}

func NewYAMLFileLoader(path string) *YAMLFileLoader {
	return &YAMLFileLoader{Path: path, ReadFile: os.ReadFile}
}

func (l *YAMLFileLoader) LoadRaw(context.Context) (map[string]any, error) {
	if l == nil || strings.TrimSpace(l.Path) == "" {
		return map[string]any{}, nil
	}
	readFile := l.ReadFile
	if readFile == nil {
		readFile = os.ReadFile
	}
	data, err := readFile(l.Path)
	if err != nil {
		if os.IsNotExist(err) && !l.Required {
			return map[string]any{}, nil
		}
		return nil, fmt.Errorf("core: read config file %s: %w", l.Path, err)
	}
	raw := map[string]any{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("core: parse config file %s: %w", l.Path, err)
	}
	return normalizeRawDurations(raw), nil
}

// MergedConfigLoader deep merges the output of several loaders; later
// loaders win.
type MergedConfigLoader []RawConfigLoader

func (m MergedConfigLoader) LoadRaw(ctx context.Context) (map[string]any, error) {
	merged := map[string]any{}
	for _, loader := range m {
		if loader == nil {
			continue
		}
		raw, err := loader.LoadRaw(ctx)
		if err != nil {
			return nil, err
		}
		mergeRawMaps(merged, raw)
	}
	return merged, nil
}

func mergeRawMaps(target map[string]any, source map[string]any) {
	for key, value := range source {
		sourceMap, sourceIsMap := value.(map[string]any)
		targetMap, targetIsMap := target[key].(map[string]any)
		if sourceIsMap && targetIsMap {
			mergeRawMaps(targetMap, sourceMap)
			continue
		}
		target[key] = cloneValue(value)
	}
}

func setRawPath(raw map[string]any, path []string, value any) {
	current := raw
	for _, key := range path[:len(path)-1] {
		next, ok := current[key].(map[string]any)
		if !ok {
			next = map[string]any{}
			current[key] = next
		}
		current = next
	}
	current[path[len(path)-1]] = value
}

var rawDurationPaths = [][]string{
	{"poll", "interval"},
	{"poll", "max_elapsed"},
	{"http", "timeout"},
	{"ledger", "cache_ttl"},
}

// normalizeRawDurations parses "1s" style strings at known duration keys so
// every loader hands cfgx the same value types.
func normalizeRawDurations(raw map[string]any) map[string]any {
	if raw == nil {
		return map[string]any{}
	}
	for _, path := range rawDurationPaths {
		section, ok := raw[path[0]].(map[string]any)
		if !ok {
			continue
		}
		value, ok := section[path[1]].(string)
		if !ok {
			continue
		}
		if parsed, err := time.ParseDuration(strings.TrimSpace(value)); err == nil {
			section[path[1]] = parsed
		}
	}
	return raw
}

func cloneRawMap(values map[string]any) map[string]any {
	if len(values) == 0 {
		return map[string]any{}
	}
	return CloneDocument(values)
}
