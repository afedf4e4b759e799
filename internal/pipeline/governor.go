package pipeline

import (
	"fmt"
	"log/slog"

	"github.com/akuhnert/invoiceflow/internal/common"
)

// SpendGovernor gates a batch on the cumulative spend of the current
// accounting period (calendar day). The check runs exactly once per batch
// invocation, before any document is touched; mid-batch spend is not
// re-checked, so a long batch can overshoot the ceiling.
type SpendGovernor struct {
	LimitUSD float64
	Logger   *slog.Logger
}

// Check returns ErrBudgetExceeded when today's spend has reached the limit.
func (g SpendGovernor) Check(periodSpendUSD float64) error {
	if periodSpendUSD >= g.LimitUSD {
		if g.Logger != nil {
			g.Logger.Warn("budget.refused",
				"period_spend_usd", periodSpendUSD, "limit_usd", g.LimitUSD)
		}
		return fmt.Errorf("%w: $%.4f of $%.4f spent",
			common.ErrBudgetExceeded, periodSpendUSD, g.LimitUSD)
	}
	return nil
}
