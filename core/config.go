package core

import (
	"fmt"
	"strings"
	"time"
)

type AuthHeaderMode string

const (
	AuthHeaderModeRaw    AuthHeaderMode = "raw"
	AuthHeaderModeBearer AuthHeaderMode = "bearer"
)

// TransferRequestShape selects the JSON-LD rendering of a transfer request.
// Connector versions disagree on which one they accept.
type TransferRequestShape string

const (
	TransferRequestShapeMinimal   TransferRequestShape = "minimal"
	TransferRequestShapeQualified TransferRequestShape = "qualified"
)

const (
	LedgerDriverSQLite   = "sqlite3"
	LedgerDriverPostgres = "postgres"
)

type PartyConfig struct {
	ID            string `koanf:"id" mapstructure:"id"`
	ManagementURL string `koanf:"management_url" mapstructure:"management_url"`
}

type ProviderConfig struct {
	ID              string `koanf:"id" mapstructure:"id"`
	ManagementURL   string `koanf:"management_url" mapstructure:"management_url"`
	ProtocolAddress string `koanf:"protocol_address" mapstructure:"protocol_address"`
	// PublicURL is the data plane address reachable by this host;
	// InternalPublicURL is the address the connector advertises in EDRs.
	PublicURL         string `koanf:"public_url" mapstructure:"public_url"`
	InternalPublicURL string `koanf:"internal_public_url" mapstructure:"internal_public_url"`
}

func (c ProviderConfig) Party() PartyConfig {
	return PartyConfig{ID: c.ID, ManagementURL: c.ManagementURL}
}

type PublicationConfig struct {
	AssetID              string `koanf:"asset_id" mapstructure:"asset_id"`
	ContractDefinitionID string `koanf:"contract_definition_id" mapstructure:"contract_definition_id"`
	PolicyID             string `koanf:"policy_id" mapstructure:"policy_id"`
	SourceURL            string `koanf:"source_url" mapstructure:"source_url"`
}

type PollConfig struct {
	MaxAttempts int           `koanf:"max_attempts" mapstructure:"max_attempts"`
	Interval    time.Duration `koanf:"interval" mapstructure:"interval"`
	MaxElapsed  time.Duration `koanf:"max_elapsed" mapstructure:"max_elapsed"`
}

type HTTPConfig struct {
	Timeout              time.Duration `koanf:"timeout" mapstructure:"timeout"`
	RequestsPerSecond    float64       `koanf:"requests_per_second" mapstructure:"requests_per_second"`
	Burst                int           `koanf:"burst" mapstructure:"burst"`
	MaxResponseBodyBytes int64         `koanf:"max_response_body_bytes" mapstructure:"max_response_body_bytes"`
}

type LedgerConfig struct {
	Enabled   bool          `koanf:"enabled" mapstructure:"enabled"`
	Driver    string        `koanf:"driver" mapstructure:"driver"`
	DSN       string        `koanf:"dsn" mapstructure:"dsn"`
	SecretKey string        `koanf:"secret_key" mapstructure:"secret_key"`
	CacheTTL  time.Duration `koanf:"cache_ttl" mapstructure:"cache_ttl"`
	Debug     bool          `koanf:"debug" mapstructure:"debug"`
}

type Config struct {
	Name                 string               `koanf:"name" mapstructure:"name"`
	APIKey               string               `koanf:"api_key" mapstructure:"api_key"`
	Provider             ProviderConfig       `koanf:"provider" mapstructure:"provider"`
	Publications         []PublicationConfig  `koanf:"publications" mapstructure:"publications"`
	Consumers            []PartyConfig        `koanf:"consumers" mapstructure:"consumers"`
	Prober               PartyConfig          `koanf:"prober" mapstructure:"prober"`
	SourcePreviewURL     string               `koanf:"source_preview_url" mapstructure:"source_preview_url"`
	AuthHeaderMode       AuthHeaderMode       `koanf:"auth_header_mode" mapstructure:"auth_header_mode"`
	TransferRequestShape TransferRequestShape `koanf:"transfer_request_shape" mapstructure:"transfer_request_shape"`
	Concurrency          int                  `koanf:"concurrency" mapstructure:"concurrency"`
	Poll                 PollConfig           `koanf:"poll" mapstructure:"poll"`
	HTTP                 HTTPConfig           `koanf:"http" mapstructure:"http"`
	Ledger               LedgerConfig         `koanf:"ledger" mapstructure:"ledger"`
}

// DefaultConfig matches the local two-consumer connector deployment.
func DefaultConfig() Config {
	return Config{
		Name:   "dataspace",
		APIKey: "SomeOtherApiKey",
		Provider: ProviderConfig{
			ID:                "provider",
			ManagementURL:     "http://localhost:11012/api/management",
			ProtocolAddress:   "http://edc-provider:11003/api/dsp",
			PublicURL:         "http://localhost:11015/api/public",
			InternalPublicURL: "http://edc-provider:11005/api/public",
		},
		Publications: []PublicationConfig{
			{
				AssetID:              "asset-hello-1",
				ContractDefinitionID: "cd-hello-1",
				PolicyID:             "always-true",
				SourceURL:            "http://api:7070/hello",
			},
		},
		Consumers: []PartyConfig{
			{ID: "consumer-1", ManagementURL: "http://localhost:12012/api/management"},
			{ID: "consumer-2", ManagementURL: "http://localhost:22012/api/management"},
		},
		Prober:               PartyConfig{ID: "consumer-3", ManagementURL: "http://localhost:32012/api/management"},
		SourcePreviewURL:     "http://localhost:7070/hello",
		AuthHeaderMode:       AuthHeaderModeRaw,
		TransferRequestShape: TransferRequestShapeMinimal,
		Concurrency:          2,
		Poll: PollConfig{
			MaxAttempts: DefaultPollAttempts,
			Interval:    DefaultPollInterval,
		},
		HTTP: HTTPConfig{
			Timeout:              30 * time.Second,
			MaxResponseBodyBytes: 10 << 20,
		},
		Ledger: LedgerConfig{
			Driver:   LedgerDriverSQLite,
			DSN:      "file:dataspace.db?cache=shared&_foreign_keys=on",
			CacheTTL: time.Minute,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("core: name is required")
	}
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("core: api_key is required")
	}
	if strings.TrimSpace(c.Provider.ID) == "" {
		return fmt.Errorf("core: provider.id is required")
	}
	if strings.TrimSpace(c.Provider.ManagementURL) == "" {
		return fmt.Errorf("core: provider.management_url is required")
	}
	if strings.TrimSpace(c.Provider.ProtocolAddress) == "" {
		return fmt.Errorf("core: provider.protocol_address is required")
	}
	for i, pub := range c.Publications {
		if err := pub.Validate(); err != nil {
			return fmt.Errorf("core: publications[%d]: %w", i, err)
		}
	}
	if len(c.Consumers) == 0 {
		return fmt.Errorf("core: at least one consumer is required")
	}
	seen := map[string]struct{}{}
	for i, consumer := range c.Consumers {
		id := strings.TrimSpace(consumer.ID)
		if id == "" {
			return fmt.Errorf("core: consumers[%d].id is required", i)
		}
		if strings.TrimSpace(consumer.ManagementURL) == "" {
			return fmt.Errorf("core: consumers[%d].management_url is required", i)
		}
		if _, exists := seen[id]; exists {
			return fmt.Errorf("core: consumer id %q is duplicated", id)
		}
		seen[id] = struct{}{}
	}
	if strings.TrimSpace(c.Prober.ID) != "" && strings.TrimSpace(c.Prober.ManagementURL) == "" {
		return fmt.Errorf("core: prober.management_url is required when prober.id is set")
	}
	switch c.AuthHeaderMode {
	case AuthHeaderModeRaw, AuthHeaderModeBearer:
	default:
		return fmt.Errorf("core: invalid auth_header_mode %q", c.AuthHeaderMode)
	}
	switch c.TransferRequestShape {
	case TransferRequestShapeMinimal, TransferRequestShapeQualified:
	default:
		return fmt.Errorf("core: invalid transfer_request_shape %q", c.TransferRequestShape)
	}
	if c.Concurrency < 0 {
		return fmt.Errorf("core: concurrency must be >= 0")
	}
	if c.Poll.MaxAttempts < 1 {
		return fmt.Errorf("core: poll.max_attempts must be >= 1")
	}
	if c.Poll.Interval < 0 || c.Poll.MaxElapsed < 0 {
		return fmt.Errorf("core: poll durations must be >= 0")
	}
	if c.HTTP.RequestsPerSecond < 0 || c.HTTP.Burst < 0 {
		return fmt.Errorf("core: http rate limit must be >= 0")
	}
	if c.Ledger.Enabled {
		switch strings.TrimSpace(c.Ledger.Driver) {
		case LedgerDriverSQLite, LedgerDriverPostgres:
		default:
			return fmt.Errorf("core: unsupported ledger.driver %q", c.Ledger.Driver)
		}
		if strings.TrimSpace(c.Ledger.DSN) == "" {
			return fmt.Errorf("core: ledger.dsn is required when the ledger is enabled")
		}
	}
	return nil
}

func (p PublicationConfig) Validate() error {
	switch {
	case strings.TrimSpace(p.AssetID) == "":
		return fmt.Errorf("asset_id is required")
	case strings.TrimSpace(p.ContractDefinitionID) == "":
		return fmt.Errorf("contract_definition_id is required")
	case strings.TrimSpace(p.PolicyID) == "":
		return fmt.Errorf("policy_id is required")
	case strings.TrimSpace(p.SourceURL) == "":
		return fmt.Errorf("source_url is required")
	}
	return nil
}

func (c Config) Consumer(id string) (PartyConfig, bool) {
	id = strings.TrimSpace(id)
	for _, consumer := range c.Consumers {
		if strings.TrimSpace(consumer.ID) == id {
			return consumer, true
		}
	}
	if id != "" && strings.TrimSpace(c.Prober.ID) == id {
		return c.Prober, true
	}
	return PartyConfig{}, false
}

func (c Config) PollOptions() PollOptions {
	return PollOptions{
		MaxAttempts: c.Poll.MaxAttempts,
		Interval:    c.Poll.Interval,
		MaxElapsed:  c.Poll.MaxElapsed,
	}
}

func (c Config) Counterpart() Counterpart {
	return Counterpart{
		ID:              c.Provider.ID,
		ProtocolAddress: c.Provider.ProtocolAddress,
		PublicEndpoint: EndpointRewriter{
			Internal: c.Provider.InternalPublicURL,
			External: c.Provider.PublicURL,
		},
	}
}
