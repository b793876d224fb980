package alerts

import (
	"context"
	"fmt"

	"finwatch/internal/core"
	"finwatch/internal/log"
	"finwatch/internal/sources"
)

// BalanceWarningFactor sets the approaching-minimum band: balances below
// minimum*factor but at or above the minimum.
const BalanceWarningFactor = 1.5

type BalanceFetcher struct {
	reader sources.AccountReader
	logger *log.Logger
}

func NewBalanceFetcher(reader sources.AccountReader, logger *log.Logger) *BalanceFetcher {
	return &BalanceFetcher{reader: reader, logger: logger}
}

func (f *BalanceFetcher) Name() string { return SourceBalances }

func (f *BalanceFetcher) Fetch(ctx context.Context, req Request) []core.Notification {
	accounts, err := f.reader.ActiveAccounts(ctx, req.UserID)
	if err != nil {
		logFetchError(ctx, f.logger, SourceBalances, req, err)
		return nil
	}

	var out []core.Notification
	for _, a := range accounts {
		n := core.Notification{
			Icon:      "wallet",
			Timestamp: req.Now,
			ActionURL: "/accounts",
			Metadata: core.Metadata{
				AccountID:   a.ID,
				AmountCents: core.Int64Ptr(a.Balance.Cents),
			},
		}
		switch {
		case a.Balance.Cents < a.MinimumBalance.Cents:
			n.ID = "low-balance-" + a.ID
			n.Type = core.LowBalance
			n.Priority = core.PriorityHigh
			n.Title = "Low balance"
			n.Message = fmt.Sprintf("%s is below its minimum balance (%s < %s)", a.Name, a.Balance, a.MinimumBalance)
			n.Color = "red"
		case float64(a.Balance.Cents) < a.MinimumBalance.Scale(BalanceWarningFactor):
			n.ID = "balance-warning-" + a.ID
			n.Type = core.BalanceWarning
			n.Priority = core.PriorityMedium
			n.Title = "Balance approaching minimum"
			n.Message = fmt.Sprintf("%s is at %s, close to its %s minimum", a.Name, a.Balance, a.MinimumBalance)
			n.Color = "orange"
		default:
			continue
		}
		out = append(out, n)
	}
	return out
}
