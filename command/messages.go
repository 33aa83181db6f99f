package command

import (
	"strings"

	"github.com/goliatone/go-dataspace/core"
)

const (
	TypeRunAll            = "dataspace.command.run"
	TypeRunTransaction    = "dataspace.command.transaction.run"
	TypeEnsurePublication = "dataspace.command.publication.ensure"
	TypeRunProbes         = "dataspace.command.probes.run"
)

// RunAllMessage runs provider setup and every configured consumer saga.
type RunAllMessage struct{}

func (RunAllMessage) Type() string { return TypeRunAll }

type RunTransactionMessage struct {
	RunID      string
	ConsumerID string
}

func (RunTransactionMessage) Type() string { return TypeRunTransaction }

func (m RunTransactionMessage) Validate() error {
	if strings.TrimSpace(m.ConsumerID) == "" {
		return commandValidationError("consumer_id", "consumer id is required")
	}
	return nil
}

type EnsurePublicationMessage struct {
	Publication core.PublicationConfig
}

func (EnsurePublicationMessage) Type() string { return TypeEnsurePublication }

func (m EnsurePublicationMessage) Validate() error {
	if strings.TrimSpace(m.Publication.AssetID) == "" {
		return commandValidationError("asset_id", "asset id is required")
	}
	if strings.TrimSpace(m.Publication.ContractDefinitionID) == "" {
		return commandValidationError("contract_definition_id", "contract definition id is required")
	}
	if strings.TrimSpace(m.Publication.SourceURL) == "" {
		return commandValidationError("source_url", "source url is required")
	}
	return nil
}

type RunProbesMessage struct {
	RunID    string
	VictimID string
}

func (RunProbesMessage) Type() string { return TypeRunProbes }

func (m RunProbesMessage) Validate() error {
	if strings.TrimSpace(m.VictimID) == "" {
		return commandValidationError("victim_id", "victim consumer id is required")
	}
	return nil
}
