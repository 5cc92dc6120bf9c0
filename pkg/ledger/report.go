package ledger

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pario-ai/llmrouter/pkg/models"
)

const ruleWidth = 56

// FormatReport renders a cost report as a fixed-width text table.
func FormatReport(r models.CostReport) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Cost report (%s, since %s)\n", r.Period, r.Since.Format("2006-01-02 15:04 MST"))
	b.WriteString(strings.Repeat("=", ruleWidth) + "\n")
	fmt.Fprintf(&b, "%-30s $%12.4f\n", "Total cost:", r.TotalCost)
	fmt.Fprintf(&b, "%-30s %13d\n", "Requests:", r.RequestCount)
	fmt.Fprintf(&b, "%-30s $%12.6f\n", "Average cost/request:", r.AverageCostPerRequest)
	fmt.Fprintf(&b, "%-30s %13d\n", "Input tokens:", r.InputTokens)
	fmt.Fprintf(&b, "%-30s %13d\n", "Output tokens:", r.OutputTokens)

	if len(r.ByModel) > 0 {
		b.WriteString("\n")
		fmt.Fprintf(&b, "%-40s %15s\n", "MODEL", "COST")
		b.WriteString(strings.Repeat("-", ruleWidth) + "\n")
		for _, k := range sortedByCost(r.ByModel) {
			fmt.Fprintf(&b, "%-40s $%14.4f\n", k, r.ByModel[k])
		}
	}

	if len(r.ByProvider) > 0 {
		byProvider := make(map[string]float64, len(r.ByProvider))
		for p, c := range r.ByProvider {
			byProvider[string(p)] = c
		}
		b.WriteString("\n")
		fmt.Fprintf(&b, "%-40s %15s\n", "PROVIDER", "COST")
		b.WriteString(strings.Repeat("-", ruleWidth) + "\n")
		for _, k := range sortedByCost(byProvider) {
			fmt.Fprintf(&b, "%-40s $%14.4f\n", defaultStr(k, "(unknown)"), byProvider[k])
		}
	}

	st := r.Budget
	b.WriteString("\n")
	fmt.Fprintf(&b, "Budget: project today $%.4f, month $%.4f (%.1f%% used)\n", st.ProjectDaily, st.ProjectMonthly, st.PercentUsed)
	fmt.Fprintf(&b, "        global today $%.4f, month $%.4f (%.1f%% used)\n", st.GlobalDaily, st.GlobalMonthly, st.GlobalPercentUsed)

	for _, w := range Warnings(st) {
		b.WriteString("WARNING: " + w + "\n")
	}
	return b.String()
}

// Warnings lists human-readable budget alerts for st, most severe first.
func Warnings(st models.BudgetStatus) []string {
	var out []string
	if st.IsProjectOverBudget {
		out = append(out, "project budget exceeded; routing falls back to the zero-cost model")
	}
	if st.IsGlobalOverBudget {
		out = append(out, "global budget exceeded; routing falls back to the zero-cost model")
	}
	if st.IsOpusOverLimit {
		out = append(out, "priciest-model cap exceeded; it is excluded from routing")
	}
	if st.IsWarning && !st.IsOverBudget {
		out = append(out, fmt.Sprintf("budget usage at %.1f%%", max(st.PercentUsed, st.GlobalPercentUsed)))
	}
	return out
}

func sortedByCost(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if m[keys[i]] != m[keys[j]] {
			return m[keys[i]] > m[keys[j]]
		}
		return keys[i] < keys[j]
	})
	return keys
}

func defaultStr(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
