package core

import (
	"context"
	"strings"
)

// ProbeOutcome classifies a reuse probe. A probe never fails; a 4xx
// rejection it was meant to demonstrate is an ExpectedFailure, anything else
// that stopped it is Inconclusive.
type ProbeOutcome string

const (
	ProbeOutcomeOk                ProbeOutcome = "ok"
	ProbeOutcomeExpectedFailure   ProbeOutcome = "expected_failure"
	ProbeOutcomeUnexpectedSuccess ProbeOutcome = "unexpected_success"
	ProbeOutcomeInconclusive      ProbeOutcome = "inconclusive"
)

type ProbeExpectation string

const (
	ProbeExpectRejection ProbeExpectation = "rejection"
	ProbeExpectEither    ProbeExpectation = "either"
)

const (
	ProbeCredentialLookup = "credential_lookup_foreign_transfer"
	ProbeTransferCreation = "transfer_create_foreign_agreement"
	ProbeForeignTokenUse  = "access_foreign_token"
)

type ProbeReport struct {
	Name        string
	Expectation ProbeExpectation
	Outcome     ProbeOutcome
	StatusCode  int
	Detail      string
	Err         error
}

// ProbeTarget is the part of another consumer's completed transaction that
// the probes replay.
type ProbeTarget struct {
	ConsumerID        string
	ProviderID        string
	AgreementID       string
	TransferProcessID string
	Endpoint          string
	Token             string
}

func (t ProbeTarget) Validate() error {
	switch {
	case strings.TrimSpace(t.TransferProcessID) == "":
		return badInputError("core: probe target requires a transfer process id")
	case strings.TrimSpace(t.AgreementID) == "":
		return badInputError("core: probe target requires an agreement id")
	}
	return nil
}

func ProbeTargetFromResult(consumerID string, result TransactionResult) ProbeTarget {
	return ProbeTarget{
		ConsumerID:        consumerID,
		ProviderID:        result.Catalog().ProviderID(),
		AgreementID:       result.Negotiation().AgreementID(),
		TransferProcessID: result.Transfer().TransferProcessID(),
		Endpoint:          result.Credential().ExternalEndpoint(),
		Token:             result.Credential().Token(),
	}
}

// RunReuseProbes replays the victim's identifiers and token from this
// transaction's party. Every probe runs regardless of the others.
func (t *Transaction) RunReuseProbes(ctx context.Context, victim ProbeTarget) []ProbeReport {
	if t == nil {
		return nil
	}
	if err := victim.Validate(); err != nil {
		return []ProbeReport{{Name: "target", Expectation: ProbeExpectEither, Outcome: ProbeOutcomeInconclusive, Detail: err.Error(), Err: err}}
	}
	say := t.narrator()
	say.say(ctx, ChannelWarn, "probing reuse of %s's transaction", victim.ConsumerID)

	reports := make([]ProbeReport, 0, 3)

	_, err := t.LookupCredential(ctx, victim.TransferProcessID)
	reports = append(reports, classifyProbe(ProbeCredentialLookup, ProbeExpectRejection, err))

	_, err = t.CreateTransfer(ctx, victim.AgreementID, victim.ProviderID)
	reports = append(reports, classifyProbe(ProbeTransferCreation, ProbeExpectRejection, err))

	if victim.Token == "" || victim.Endpoint == "" {
		reports = append(reports, ProbeReport{
			Name:        ProbeForeignTokenUse,
			Expectation: ProbeExpectEither,
			Outcome:     ProbeOutcomeOk,
			Detail:      "skipped: no token available",
		})
	} else {
		payload, err := t.FetchResource(ctx, victim.Endpoint, victim.Token)
		report := classifyProbe(ProbeForeignTokenUse, ProbeExpectEither, err)
		if err == nil {
			report.Detail = "token accepted from another party: " + DescribePayload(payload)
		}
		reports = append(reports, report)
	}

	for _, report := range reports {
		fields := t.fields(map[string]any{
			"probe":       report.Name,
			"outcome":     string(report.Outcome),
			"status_code": report.StatusCode,
			"victim_id":   victim.ConsumerID,
		})
		channel := ChannelWarn
		level := "info"
		switch report.Outcome {
		case ProbeOutcomeUnexpectedSuccess:
			channel = ChannelError
			level = "warn"
		case ProbeOutcomeInconclusive:
			level = "warn"
		}
		logWithLevel(ctx, t.logger, level, "reuse probe finished", fields)
		say.say(ctx, channel, "probe %s: %s (%s)", report.Name, report.Outcome, report.Detail)
	}
	return reports
}

func classifyProbe(name string, expectation ProbeExpectation, err error) ProbeReport {
	report := ProbeReport{Name: name, Expectation: expectation}
	if err != nil {
		report.Outcome = ProbeOutcomeInconclusive
		report.Err = err
		report.Detail = firstLine(err.Error())
		if transportErr, ok := AsTransportError(err); ok {
			report.StatusCode = transportErr.StatusCode
			if transportErr.StatusCode >= 400 && transportErr.StatusCode < 500 {
				report.Outcome = ProbeOutcomeExpectedFailure
			}
		}
		return report
	}
	if expectation == ProbeExpectRejection {
		report.Outcome = ProbeOutcomeUnexpectedSuccess
		report.Detail = "counterpart accepted a foreign identifier"
		return report
	}
	report.Outcome = ProbeOutcomeOk
	report.Detail = "accepted"
	return report
}

func firstLine(value string) string {
	if idx := strings.IndexByte(value, '\n'); idx >= 0 {
		return value[:idx]
	}
	return value
}
