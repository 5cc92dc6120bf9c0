package models

import (
	"fmt"
	"time"
)

// HardLimitAction is what routing does once a budget is exceeded.
type HardLimitAction string

// HardLimitFallbackZeroCost redirects every request to the zero-cost model.
const HardLimitFallbackZeroCost HardLimitAction = "fallback_zero_cost"

// BudgetConfig holds USD limits. A zero limit means unlimited.
type BudgetConfig struct {
	ProjectDaily        float64         `json:"project_daily" yaml:"project_daily" toml:"project_daily"`
	ProjectMonthly      float64         `json:"project_monthly" yaml:"project_monthly" toml:"project_monthly"`
	GlobalDaily         float64         `json:"global_daily" yaml:"global_daily" toml:"global_daily"`
	GlobalMonthly       float64         `json:"global_monthly" yaml:"global_monthly" toml:"global_monthly"`
	PriciestDaily       float64         `json:"priciest_daily" yaml:"priciest_daily" toml:"priciest_daily"`
	PriciestMonthly     float64         `json:"priciest_monthly" yaml:"priciest_monthly" toml:"priciest_monthly"`
	WarningThresholdPct float64         `json:"warning_threshold_percent" yaml:"warning_threshold_percent" toml:"warning_threshold_percent"`
	HardLimitAction     HardLimitAction `json:"hard_limit_action" yaml:"hard_limit_action" toml:"hard_limit_action"`
}

// Spend is the raw spend input to a budget evaluation.
type Spend struct {
	ProjectDaily    float64 `json:"project_daily"`
	ProjectMonthly  float64 `json:"project_monthly"`
	GlobalDaily     float64 `json:"global_daily"`
	GlobalMonthly   float64 `json:"global_monthly"`
	PriciestDaily   float64 `json:"priciest_daily"`
	PriciestMonthly float64 `json:"priciest_monthly"`
}

// BudgetStatus is a live projection of spend against limits. Never persisted.
type BudgetStatus struct {
	Spend

	ProjectDailyRemaining   float64 `json:"project_daily_remaining"`
	ProjectMonthlyRemaining float64 `json:"project_monthly_remaining"`
	GlobalDailyRemaining    float64 `json:"global_daily_remaining"`
	GlobalMonthlyRemaining  float64 `json:"global_monthly_remaining"`

	PercentUsed       float64 `json:"percent_used"`
	GlobalPercentUsed float64 `json:"global_percent_used"`

	IsProjectOverBudget bool `json:"is_project_over_budget"`
	IsGlobalOverBudget  bool `json:"is_global_over_budget"`
	IsOverBudget        bool `json:"is_over_budget"`
	IsOpusOverLimit     bool `json:"is_opus_over_limit"`
	IsWarning           bool `json:"is_warning"`
}

// Period is a cost report window.
type Period string

const (
	PeriodDay   Period = "day"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
)

// ParsePeriod converts a string into a Period.
func ParsePeriod(s string) (Period, error) {
	switch p := Period(s); p {
	case PeriodDay, PeriodWeek, PeriodMonth:
		return p, nil
	default:
		return "", fmt.Errorf("unknown report period %q (use day, week or month)", s)
	}
}

// CostReport aggregates usage records over a period.
type CostReport struct {
	Period                Period               `json:"period"`
	Since                 time.Time            `json:"since"`
	TotalCost             float64              `json:"total_cost"`
	RequestCount          int                  `json:"request_count"`
	AverageCostPerRequest float64              `json:"average_cost_per_request"`
	InputTokens           int64                `json:"input_tokens"`
	OutputTokens          int64                `json:"output_tokens"`
	ByModel               map[string]float64   `json:"by_model"`
	ByProvider            map[Provider]float64 `json:"by_provider"`
	Budget                BudgetStatus         `json:"budget"`
}
