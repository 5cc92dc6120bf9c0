// Package ledger records per-call usage and aggregates spend for budget
// evaluation and cost reports.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/pario-ai/llmrouter/pkg/budget"
	"github.com/pario-ai/llmrouter/pkg/models"
	"github.com/pario-ai/llmrouter/pkg/pricing"
	"github.com/pario-ai/llmrouter/pkg/usagelog"
)

// ErrUnknownPeriod is returned by CostReport for an unsupported period.
var ErrUnknownPeriod = errors.New("unknown report period")

// Options configures a Ledger.
type Options struct {
	Catalog models.Catalog
	Budget  models.BudgetConfig
	// PriciestModel is the model subject to the dedicated daily/monthly cap.
	PriciestModel string
	// ProjectID stamps records that do not carry their own.
	ProjectID string
	// Global is the organization-wide log. Nil means the project log is the
	// only log and global spend is read from it.
	Global usagelog.Store
	Logger *zap.Logger
	// Now overrides the clock in tests.
	Now func() time.Time
}

// Ledger is the pricing and budget ledger over one or two usage logs.
type Ledger struct {
	catalog   models.Catalog
	budget    models.BudgetConfig
	priciest  string
	projectID string
	project   usagelog.Store
	global    usagelog.Store
	logger    *zap.Logger
	now       func() time.Time
}

// New creates a Ledger writing to project and, when set, opts.Global.
func New(project usagelog.Store, opts Options) *Ledger {
	l := &Ledger{
		catalog:   opts.Catalog,
		budget:    opts.Budget,
		priciest:  opts.PriciestModel,
		projectID: opts.ProjectID,
		project:   project,
		global:    opts.Global,
		logger:    opts.Logger,
		now:       opts.Now,
	}
	if l.logger == nil {
		l.logger = zap.NewNop()
	}
	if l.now == nil {
		l.now = time.Now
	}
	return l
}

// UsageInput describes one completed call.
type UsageInput struct {
	Model        string
	Provider     models.Provider
	InputTokens  int
	OutputTokens int
	CachedTokens int
	TaskType     string
	ProjectID    string
}

// Catalog returns the pricing table in force.
func (l *Ledger) Catalog() models.Catalog { return l.catalog }

// BudgetConfig returns the configured limits.
func (l *Ledger) BudgetConfig() models.BudgetConfig { return l.budget }

// PriciestModel returns the model under the dedicated cap.
func (l *Ledger) PriciestModel() string { return l.priciest }

// RecordUsage prices in and appends one record to the project log and, if
// configured, the global log. The record is returned even when an append
// fails so the caller can report what was attempted.
func (l *Ledger) RecordUsage(ctx context.Context, in UsageInput) (models.UsageRecord, error) {
	rec := models.UsageRecord{
		ID:           uuid.NewString(),
		Timestamp:    l.now().UTC(),
		Model:        in.Model,
		Provider:     in.Provider,
		InputTokens:  in.InputTokens,
		OutputTokens: in.OutputTokens,
		CachedTokens: in.CachedTokens,
		Cost:         pricing.CalculateCost(l.catalog, in.Model, in.InputTokens, in.OutputTokens, in.CachedTokens),
		TaskType:     in.TaskType,
		ProjectID:    in.ProjectID,
	}
	if rec.ProjectID == "" {
		rec.ProjectID = l.projectID
	}
	if rec.Provider == "" {
		rec.Provider, _ = l.catalog.ProviderOf(in.Model)
	}

	var err error
	if appendErr := l.project.Append(ctx, rec); appendErr != nil {
		err = multierr.Append(err, fmt.Errorf("project log: %w", appendErr))
	}
	if l.global != nil {
		if appendErr := l.global.Append(ctx, rec); appendErr != nil {
			err = multierr.Append(err, fmt.Errorf("global log: %w", appendErr))
		}
	}
	if err != nil {
		return rec, fmt.Errorf("record usage: %w", err)
	}

	l.logger.Debug("usage recorded",
		zap.String("id", rec.ID),
		zap.String("model", rec.Model),
		zap.Int("input_tokens", rec.InputTokens),
		zap.Int("output_tokens", rec.OutputTokens),
		zap.Float64("cost", rec.Cost),
	)
	return rec, nil
}

func (l *Ledger) globalStore() usagelog.Store {
	if l.global != nil {
		return l.global
	}
	return l.project
}

// sum adds the cost of records in store since the given time. An empty
// model matches every record.
func (l *Ledger) sum(ctx context.Context, store usagelog.Store, since time.Time, model string) (float64, error) {
	recs, err := store.Since(ctx, since)
	if err != nil {
		return 0, fmt.Errorf("read usage log: %w", err)
	}
	var total float64
	for _, r := range recs {
		if model != "" && r.Model != model {
			continue
		}
		total += r.Cost
	}
	return total, nil
}

// DailySpend is the project spend since midnight UTC.
func (l *Ledger) DailySpend(ctx context.Context) (float64, error) {
	return l.sum(ctx, l.project, budget.DayStart(l.now()), "")
}

// MonthlySpend is the project spend since the first of the month UTC.
func (l *Ledger) MonthlySpend(ctx context.Context) (float64, error) {
	return l.sum(ctx, l.project, budget.MonthStart(l.now()), "")
}

// GlobalDailySpend is the organization-wide spend since midnight UTC.
func (l *Ledger) GlobalDailySpend(ctx context.Context) (float64, error) {
	return l.sum(ctx, l.globalStore(), budget.DayStart(l.now()), "")
}

// GlobalMonthlySpend is the organization-wide spend this calendar month.
func (l *Ledger) GlobalMonthlySpend(ctx context.Context) (float64, error) {
	return l.sum(ctx, l.globalStore(), budget.MonthStart(l.now()), "")
}

// OpusDailySpend is today's organization-wide spend on the priciest model.
func (l *Ledger) OpusDailySpend(ctx context.Context) (float64, error) {
	if l.priciest == "" {
		return 0, nil
	}
	return l.sum(ctx, l.globalStore(), budget.DayStart(l.now()), l.priciest)
}

// OpusMonthlySpend is this month's organization-wide spend on the priciest model.
func (l *Ledger) OpusMonthlySpend(ctx context.Context) (float64, error) {
	if l.priciest == "" {
		return 0, nil
	}
	return l.sum(ctx, l.globalStore(), budget.MonthStart(l.now()), l.priciest)
}

// Spend reads every spend figure with one scan per log from the start of
// the month.
func (l *Ledger) Spend(ctx context.Context) (models.Spend, error) {
	now := l.now()
	dayStart, monthStart := budget.DayStart(now), budget.MonthStart(now)

	var s models.Spend
	projectRecs, err := l.project.Since(ctx, monthStart)
	if err != nil {
		return s, fmt.Errorf("read project usage log: %w", err)
	}
	for _, r := range projectRecs {
		s.ProjectMonthly += r.Cost
		if !r.Timestamp.Before(dayStart) {
			s.ProjectDaily += r.Cost
		}
	}

	globalRecs := projectRecs
	if l.global != nil {
		globalRecs, err = l.global.Since(ctx, monthStart)
		if err != nil {
			return s, fmt.Errorf("read global usage log: %w", err)
		}
	}
	for _, r := range globalRecs {
		today := !r.Timestamp.Before(dayStart)
		s.GlobalMonthly += r.Cost
		if today {
			s.GlobalDaily += r.Cost
		}
		if l.priciest != "" && r.Model == l.priciest {
			s.PriciestMonthly += r.Cost
			if today {
				s.PriciestDaily += r.Cost
			}
		}
	}
	return s, nil
}

// CheckBudget evaluates current spend against the configured limits.
func (l *Ledger) CheckBudget(ctx context.Context) (models.BudgetStatus, error) {
	s, err := l.Spend(ctx)
	if err != nil {
		return models.BudgetStatus{}, fmt.Errorf("check budget: %w", err)
	}
	return budget.Evaluate(l.budget, s), nil
}

// CostReport aggregates the project log over period.
func (l *Ledger) CostReport(ctx context.Context, period models.Period) (models.CostReport, error) {
	switch period {
	case models.PeriodDay, models.PeriodWeek, models.PeriodMonth:
	default:
		return models.CostReport{}, fmt.Errorf("%w: %q", ErrUnknownPeriod, period)
	}

	since := budget.PeriodStart(period, l.now())
	recs, err := l.project.Since(ctx, since)
	if err != nil {
		return models.CostReport{}, fmt.Errorf("cost report: %w", err)
	}

	report := models.CostReport{
		Period:     period,
		Since:      since,
		ByModel:    make(map[string]float64),
		ByProvider: make(map[models.Provider]float64),
	}
	for _, r := range recs {
		report.TotalCost += r.Cost
		report.RequestCount++
		report.InputTokens += int64(r.InputTokens)
		report.OutputTokens += int64(r.OutputTokens)
		report.ByModel[r.Model] += r.Cost
		report.ByProvider[r.Provider] += r.Cost
	}
	if report.RequestCount > 0 {
		report.AverageCostPerRequest = report.TotalCost / float64(report.RequestCount)
	}

	report.Budget, err = l.CheckBudget(ctx)
	if err != nil {
		return models.CostReport{}, fmt.Errorf("cost report: %w", err)
	}
	return report, nil
}
