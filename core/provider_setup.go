package core

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

const (
	assetsPath              = "/v3/assets"
	contractDefinitionsPath = "/v3/contractdefinitions"
)

type ProviderSetupConfig struct {
	Management ManagementAPI
	// Preview executes the diagnostic source fetch. Nil disables it.
	Preview        TransportAdapter
	PreviewTimeout time.Duration
}

// ProviderSetup publishes assets on the provider connector. Every call is
// idempotent: existing objects are left untouched.
type ProviderSetup struct {
	management     ManagementAPI
	preview        TransportAdapter
	previewTimeout time.Duration
	notifier       Notifier
	logger         Logger
}

func NewProviderSetup(cfg ProviderSetupConfig, notifier Notifier, logger Logger) (*ProviderSetup, error) {
	if cfg.Management == nil {
		return nil, badInputError("core: provider setup requires a management api")
	}
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &ProviderSetup{
		management:     cfg.Management,
		preview:        cfg.Preview,
		previewTimeout: cfg.PreviewTimeout,
		notifier:       notifier,
		logger:         glog.Ensure(logger),
	}, nil
}

// Ensure makes the asset and its contract definition exist.
func (s *ProviderSetup) Ensure(ctx context.Context, publication PublicationConfig) error {
	if s == nil {
		return badInputError("core: provider setup is nil")
	}
	startedAt := time.Now()
	err := publication.Validate()
	if err == nil {
		err = s.EnsureAsset(ctx, publication)
	}
	if err == nil {
		err = s.EnsureContractDefinition(ctx, publication)
	}
	fields := map[string]any{
		"provider_id":            s.management.Party(),
		"asset_id":               publication.AssetID,
		"contract_definition_id": publication.ContractDefinitionID,
	}
	if err := observeStage(ctx, s.logger, StageProviderSetup, startedAt, err, fields); err != nil {
		s.narrator().say(ctx, ChannelError, "publishing %s failed: %v", publication.AssetID, err)
		return err
	}
	s.narrator().say(ctx, ChannelProvider, "asset %s is offered under policy %s", publication.AssetID, publication.PolicyID)
	return nil
}

func (s *ProviderSetup) EnsureAsset(ctx context.Context, publication PublicationConfig) error {
	s.narrator().say(ctx, ChannelProvider, "ensuring asset %s", publication.AssetID)
	created, err := s.ensure(ctx, assetsPath, publication.AssetID, assetBody(publication))
	if err != nil {
		return err
	}
	if created {
		s.narrator().say(ctx, ChannelProvider, "asset %s created", publication.AssetID)
	} else {
		s.narrator().say(ctx, ChannelProvider, "asset %s already exists", publication.AssetID)
	}
	return nil
}

func (s *ProviderSetup) EnsureContractDefinition(ctx context.Context, publication PublicationConfig) error {
	s.narrator().say(ctx, ChannelProvider, "ensuring contract definition %s", publication.ContractDefinitionID)
	created, err := s.ensure(ctx, contractDefinitionsPath, publication.ContractDefinitionID, contractDefinitionBody(publication))
	if err != nil {
		return err
	}
	if created {
		s.narrator().say(ctx, ChannelProvider, "contract definition %s created", publication.ContractDefinitionID)
	} else {
		s.narrator().say(ctx, ChannelProvider, "contract definition %s already exists", publication.ContractDefinitionID)
	}
	return nil
}

// ensure creates collection/id from body unless a GET finds it. Only a 404
// leads to creation.
func (s *ProviderSetup) ensure(ctx context.Context, collection string, id string, body Document) (bool, error) {
	_, err := s.management.JSON(ctx, http.MethodGet, collection+"/"+url.PathEscape(id), nil)
	if err == nil {
		return false, nil
	}
	if !IsNotFound(err) {
		return false, err
	}
	if _, err := s.management.JSON(ctx, http.MethodPost, collection, body); err != nil {
		return false, err
	}
	return true, nil
}

// PreviewSource fetches the raw data source without any dataspace
// credentials. The result is narrated only; failures become warnings.
func (s *ProviderSetup) PreviewSource(ctx context.Context, sourceURL string) {
	if s == nil || s.preview == nil || strings.TrimSpace(sourceURL) == "" {
		return
	}
	s.narrator().say(ctx, ChannelProvider, "fetching %s directly, bypassing the dataspace", sourceURL)
	response, err := s.preview.Do(ctx, TransportRequest{
		Method:  http.MethodGet,
		URL:     sourceURL,
		Headers: map[string]string{"Accept": "application/json"},
		Timeout: s.previewTimeout,
	})
	if err == nil && (response.StatusCode < 200 || response.StatusCode > 299) {
		err = &TransportError{StatusCode: response.StatusCode, Method: http.MethodGet, URL: sourceURL, Body: string(response.Body)}
	}
	if err != nil {
		logWithLevel(ctx, s.logger, "warn", "source preview failed", map[string]any{"url": sourceURL, "error": err.Error()})
		s.narrator().say(ctx, ChannelWarn, "source preview failed: %s", firstLine(err.Error()))
		return
	}
	s.narrator().say(ctx, ChannelProvider, "source returned %s", DescribePayload(decodeLenient(response.Body)))
}

func (s *ProviderSetup) narrator() narrator {
	return narrator{notifier: s.notifier, scope: s.management.Party()}
}

func assetBody(publication PublicationConfig) Document {
	return Document{
		"@context": Document{"@vocab": EDCNamespace},
		"@id":      publication.AssetID,
		"@type":    "Asset",
		"properties": Document{
			"name":        publication.AssetID,
			"contenttype": "application/json",
		},
		"dataAddress": Document{
			"@type":               "HttpData",
			EDCNamespace + "type": "HttpData",
			"baseUrl":             publication.SourceURL,
			"proxyPath":           "true",
			"method":              http.MethodGet,
		},
	}
}

func contractDefinitionBody(publication PublicationConfig) Document {
	return Document{
		"@context":         Document{"@vocab": EDCNamespace},
		"@id":              publication.ContractDefinitionID,
		"@type":            "ContractDefinition",
		"accessPolicyId":   publication.PolicyID,
		"contractPolicyId": publication.PolicyID,
		"assetsSelector": []any{
			Document{
				"@type":        "Criterion",
				"operandLeft":  "id",
				"operator":     "=",
				"operandRight": publication.AssetID,
			},
		},
	}
}
