// Package budget projects spend against configured limits and defines the
// UTC calendar windows spend is aggregated over.
package budget

import (
	"time"

	"github.com/pario-ai/llmrouter/pkg/models"
)

// Evaluate builds a BudgetStatus from raw spend. A limit of 0 is unlimited:
// it is never exceeded and contributes 0 to percent used. Limits are
// exceeded only when spend is strictly greater.
func Evaluate(cfg models.BudgetConfig, s models.Spend) models.BudgetStatus {
	st := models.BudgetStatus{Spend: s}

	st.ProjectDailyRemaining = remaining(cfg.ProjectDaily, s.ProjectDaily)
	st.ProjectMonthlyRemaining = remaining(cfg.ProjectMonthly, s.ProjectMonthly)
	st.GlobalDailyRemaining = remaining(cfg.GlobalDaily, s.GlobalDaily)
	st.GlobalMonthlyRemaining = remaining(cfg.GlobalMonthly, s.GlobalMonthly)

	st.PercentUsed = max(percent(s.ProjectDaily, cfg.ProjectDaily), percent(s.ProjectMonthly, cfg.ProjectMonthly))
	st.GlobalPercentUsed = max(percent(s.GlobalDaily, cfg.GlobalDaily), percent(s.GlobalMonthly, cfg.GlobalMonthly))

	st.IsProjectOverBudget = over(s.ProjectDaily, cfg.ProjectDaily) || over(s.ProjectMonthly, cfg.ProjectMonthly)
	st.IsGlobalOverBudget = over(s.GlobalDaily, cfg.GlobalDaily) || over(s.GlobalMonthly, cfg.GlobalMonthly)
	st.IsOverBudget = st.IsProjectOverBudget || st.IsGlobalOverBudget
	st.IsOpusOverLimit = over(s.PriciestDaily, cfg.PriciestDaily) || over(s.PriciestMonthly, cfg.PriciestMonthly)

	if cfg.WarningThresholdPct > 0 {
		st.IsWarning = max(st.PercentUsed, st.GlobalPercentUsed) >= cfg.WarningThresholdPct
	}
	return st
}

func over(spend, limit float64) bool {
	return limit > 0 && spend > limit
}

func percent(spend, limit float64) float64 {
	if limit <= 0 {
		return 0
	}
	return spend / limit * 100
}

// remaining returns headroom under limit, floored at 0. Unlimited budgets
// report 0 headroom; callers check the limit to tell the cases apart.
func remaining(limit, spend float64) float64 {
	if limit <= 0 || spend >= limit {
		return 0
	}
	return limit - spend
}

// DayStart returns midnight UTC of now's calendar day.
func DayStart(now time.Time) time.Time {
	now = now.UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

// MonthStart returns midnight UTC on the first of now's calendar month.
func MonthStart(now time.Time) time.Time {
	now = now.UTC()
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// PeriodStart returns the start of a report window. Week is a rolling seven
// days; day and month are UTC calendar windows.
func PeriodStart(period models.Period, now time.Time) time.Time {
	switch period {
	case models.PeriodMonth:
		return MonthStart(now)
	case models.PeriodWeek:
		return now.UTC().Add(-7 * 24 * time.Hour)
	default: // day
		return DayStart(now)
	}
}
