package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/goliatone/go-dataspace/core"
)

type transactionView struct {
	ID                string `json:"id"`
	RunID             string `json:"run_id"`
	ConsumerID        string `json:"consumer_id"`
	ProviderID        string `json:"provider_id,omitempty"`
	AssetID           string `json:"asset_id,omitempty"`
	NegotiationID     string `json:"negotiation_id,omitempty"`
	AgreementID       string `json:"agreement_id,omitempty"`
	TransferProcessID string `json:"transfer_process_id,omitempty"`
	Endpoint          string `json:"endpoint,omitempty"`
	TokenFingerprint  string `json:"token_fingerprint,omitempty"`
	Status            string `json:"status"`
	FailedStage       string `json:"failed_stage,omitempty"`
	Error             string `json:"error,omitempty"`
	PayloadShape      string `json:"payload_shape,omitempty"`
	StartedAt         string `json:"started_at,omitempty"`
	FinishedAt        string `json:"finished_at,omitempty"`
}

type probeView struct {
	Name        string `json:"name"`
	VictimID    string `json:"victim_id,omitempty"`
	Expectation string `json:"expectation"`
	Outcome     string `json:"outcome"`
	StatusCode  int    `json:"status_code,omitempty"`
	Detail      string `json:"detail,omitempty"`
}

type pageView struct {
	Items   []transactionView `json:"items"`
	Page    int               `json:"page"`
	PerPage int               `json:"per_page"`
	Total   int               `json:"total"`
}

// newTransactionView never carries the token itself.
func newTransactionView(record core.TransactionRecord) transactionView {
	fingerprint := record.TokenFingerprint
	if fingerprint == "" && record.Token != "" {
		fingerprint = core.TokenFingerprint(record.Token)
	}
	return transactionView{
		ID:                record.ID,
		RunID:             record.RunID,
		ConsumerID:        record.ConsumerID,
		ProviderID:        record.ProviderID,
		AssetID:           record.AssetID,
		NegotiationID:     record.NegotiationID,
		AgreementID:       record.AgreementID,
		TransferProcessID: record.TransferProcessID,
		Endpoint:          record.Endpoint,
		TokenFingerprint:  fingerprint,
		Status:            string(record.Status),
		FailedStage:       string(record.FailedStage),
		Error:             record.Error,
		PayloadShape:      record.PayloadShape,
		StartedAt:         formatTime(record.StartedAt),
		FinishedAt:        formatTime(record.FinishedAt),
	}
}

func newProbeView(victimID string, report core.ProbeReport) probeView {
	detail := report.Detail
	if detail == "" && report.Err != nil {
		detail = report.Err.Error()
	}
	return probeView{
		Name:        report.Name,
		VictimID:    victimID,
		Expectation: string(report.Expectation),
		Outcome:     string(report.Outcome),
		StatusCode:  report.StatusCode,
		Detail:      detail,
	}
}

func newProbeRecordView(record core.ProbeReportRecord) probeView {
	return probeView{
		Name:        record.Name,
		VictimID:    record.VictimID,
		Expectation: string(record.Expectation),
		Outcome:     string(record.Outcome),
		StatusCode:  record.StatusCode,
		Detail:      record.Detail,
	}
}

func formatTime(value time.Time) string {
	if value.IsZero() {
		return ""
	}
	return value.UTC().Format(time.RFC3339)
}

// printer renders command results as text or JSON.
type printer struct {
	out  io.Writer
	json bool
	ok   *color.Color
	bad  *color.Color
}

func newPrinter(opts *RootOptions) *printer {
	p := &printer{
		out:  opts.Stdout,
		json: opts.Format == "json",
		ok:   color.New(color.FgGreen, color.Bold),
		bad:  color.New(color.FgRed, color.Bold),
	}
	if opts.NoColor || p.json {
		p.ok.DisableColor()
		p.bad.DisableColor()
	}
	return p
}

func (p *printer) encode(value any) error {
	encoder := json.NewEncoder(p.out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}

func (p *printer) status(status string) string {
	if status == string(core.TransactionStatusSucceeded) || status == string(core.ProbeOutcomeOk) ||
		status == string(core.ProbeOutcomeExpectedFailure) {
		return p.ok.Sprint(status)
	}
	return p.bad.Sprint(status)
}

func (p *printer) transactions(runID string, views []transactionView) error {
	if p.json {
		return p.encode(map[string]any{"run_id": runID, "transactions": views})
	}
	if runID != "" {
		fmt.Fprintf(p.out, "run %s\n", runID)
	}
	for _, view := range views {
		p.transactionLine(view)
	}
	return nil
}

func (p *printer) transactionLine(view transactionView) {
	if view.Status == string(core.TransactionStatusSucceeded) {
		fmt.Fprintf(p.out, "  %-12s %s agreement=%s transfer=%s token=%s payload=%s\n",
			view.ConsumerID, p.status(view.Status), view.AgreementID, view.TransferProcessID,
			view.TokenFingerprint, view.PayloadShape)
		return
	}
	fmt.Fprintf(p.out, "  %-12s %s stage=%s error=%s\n", view.ConsumerID, p.status(view.Status), view.FailedStage, view.Error)
}

func (p *printer) transaction(view transactionView) error {
	if p.json {
		return p.encode(view)
	}
	fmt.Fprintf(p.out, "id:          %s\n", view.ID)
	fmt.Fprintf(p.out, "run:         %s\n", view.RunID)
	fmt.Fprintf(p.out, "consumer:    %s\n", view.ConsumerID)
	fmt.Fprintf(p.out, "provider:    %s\n", view.ProviderID)
	fmt.Fprintf(p.out, "asset:       %s\n", view.AssetID)
	fmt.Fprintf(p.out, "negotiation: %s\n", view.NegotiationID)
	fmt.Fprintf(p.out, "agreement:   %s\n", view.AgreementID)
	fmt.Fprintf(p.out, "transfer:    %s\n", view.TransferProcessID)
	fmt.Fprintf(p.out, "endpoint:    %s\n", view.Endpoint)
	fmt.Fprintf(p.out, "token:       %s\n", view.TokenFingerprint)
	fmt.Fprintf(p.out, "status:      %s\n", p.status(view.Status))
	if view.FailedStage != "" {
		fmt.Fprintf(p.out, "stage:       %s\n", view.FailedStage)
		fmt.Fprintf(p.out, "error:       %s\n", view.Error)
	}
	fmt.Fprintf(p.out, "started:     %s\n", view.StartedAt)
	fmt.Fprintf(p.out, "finished:    %s\n", view.FinishedAt)
	return nil
}

func (p *printer) page(page pageView) error {
	if p.json {
		return p.encode(page)
	}
	fmt.Fprintf(p.out, "%d transaction(s), page %d\n", page.Total, page.Page)
	for _, view := range page.Items {
		fmt.Fprintf(p.out, "%s %s ", view.ID, view.StartedAt)
		p.transactionLine(view)
	}
	return nil
}

func (p *printer) probes(runID string, views []probeView) error {
	if p.json {
		return p.encode(map[string]any{"run_id": runID, "probes": views})
	}
	if runID != "" {
		fmt.Fprintf(p.out, "probe run %s\n", runID)
	}
	for _, view := range views {
		line := fmt.Sprintf("  %-24s %s expected=%s", view.Name, p.status(view.Outcome), view.Expectation)
		if view.StatusCode != 0 {
			line += fmt.Sprintf(" status=%d", view.StatusCode)
		}
		if view.Detail != "" {
			line += " " + view.Detail
		}
		fmt.Fprintln(p.out, line)
	}
	return nil
}
