package json

import (
	"context"
	"io"
	"os"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/noqdev/iambic-sub001/internal/core/domain"
	"github.com/noqdev/iambic-sub001/internal/core/ports"
	"github.com/noqdev/iambic-sub001/internal/errors"
)

const ReporterTypeJSON = "json"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type Config struct{}

type Reporter struct {
	config Config
	writer io.Writer
	logger ports.Logger
}

func NewReporter(cfg Config, logger ports.Logger) (*Reporter, error) {
	return &Reporter{
		config: cfg,
		writer: os.Stdout,
		logger: logger,
	}, nil
}

type planReport struct {
	PlanID    string        `json:"plan_id"`
	CreatedAt time.Time     `json:"created_at"`
	Summary   map[string]int `json:"summary"`
	Groups    []planGroup   `json:"groups"`
}

type planGroup struct {
	Provider string      `json:"provider"`
	Account  string      `json:"account"`
	Entries  []planEntry `json:"entries"`
}

type planEntry struct {
	Action       string      `json:"action"`
	TemplateType string      `json:"template_type"`
	Identifier   string      `json:"identifier"`
	Deltas       []planDelta `json:"deltas,omitempty"`
}

type planDelta struct {
	Path    string `json:"path"`
	Desired any    `json:"desired"`
	Live    any    `json:"live"`
}

func (r *Reporter) ReportPlan(ctx context.Context, plan domain.Plan) error {
	report := planReport{
		PlanID:    plan.ID,
		CreatedAt: plan.CreatedAt,
		Summary:   map[string]int{},
		Groups:    make([]planGroup, 0, len(plan.Groups)),
	}
	for action, n := range plan.Summary() {
		report.Summary[string(action)] = n
	}
	for _, group := range plan.Groups {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		g := planGroup{Provider: string(group.Provider), Account: string(group.Account)}
		for _, entry := range group.Entries {
			e := planEntry{
				Action:       string(entry.Action),
				TemplateType: string(entry.TemplateType),
				Identifier:   entry.Identifier,
			}
			for _, delta := range entry.Delta {
				e.Deltas = append(e.Deltas, planDelta{Path: delta.Path, Desired: delta.Desired, Live: delta.Live})
			}
			g.Entries = append(g.Entries, e)
		}
		report.Groups = append(report.Groups, g)
	}
	return r.encode(report)
}

type applyReport struct {
	RunID       string       `json:"run_id"`
	PlanID      string       `json:"plan_id"`
	Status      string       `json:"status"`
	FatalReason string       `json:"fatal_reason,omitempty"`
	Cancelled   bool         `json:"cancelled,omitempty"`
	StartedAt   time.Time    `json:"started_at"`
	FinishedAt  time.Time    `json:"finished_at"`
	Entries     []applyEntry `json:"entries"`
}

type applyEntry struct {
	Account      string `json:"account"`
	TemplateType string `json:"template_type"`
	Identifier   string `json:"identifier"`
	Action       string `json:"action"`
	Status       string `json:"status"`
	Reason       string `json:"reason,omitempty"`
	ErrorCode    string `json:"error_code,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

func (r *Reporter) ReportApply(ctx context.Context, result domain.ApplyResult) error {
	report := applyReport{
		RunID:       result.RunID,
		PlanID:      result.PlanID,
		Status:      string(result.Status),
		FatalReason: result.FatalReason,
		Cancelled:   result.Cancelled,
		StartedAt:   result.StartedAt,
		FinishedAt:  result.FinishedAt,
		Entries:     make([]applyEntry, 0, len(result.Entries)),
	}
	for _, entry := range result.Entries {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		e := applyEntry{
			Account:      string(entry.Record.Account),
			TemplateType: string(entry.Record.TemplateType),
			Identifier:   entry.Record.Identifier,
			Action:       string(entry.Record.Action),
			Status:       string(entry.Status),
			Reason:       entry.Reason,
		}
		if entry.Err != nil {
			e.ErrorCode = string(errors.GetCode(entry.Err))
			e.ErrorMessage = entry.Err.Error()
		}
		report.Entries = append(report.Entries, e)
	}
	return r.encode(report)
}

func (r *Reporter) encode(v any) error {
	enc := json.NewEncoder(r.writer)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return errors.Wrap(err, errors.CodeInternal, "failed to encode report")
	}
	return nil
}
