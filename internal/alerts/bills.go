package alerts

import (
	"context"
	"fmt"

	"finwatch/internal/core"
	"finwatch/internal/log"
	"finwatch/internal/sources"
)

type BillFetcher struct {
	reader sources.BillReader
	logger *log.Logger
}

func NewBillFetcher(reader sources.BillReader, logger *log.Logger) *BillFetcher {
	return &BillFetcher{reader: reader, logger: logger}
}

func (f *BillFetcher) Name() string { return SourceBills }

func (f *BillFetcher) Fetch(ctx context.Context, req Request) []core.Notification {
	bills, err := f.reader.DueBills(ctx, req.UserID, req.Today(), BillReminderWindow)
	if err != nil {
		logFetchError(ctx, f.logger, SourceBills, req, err)
		return nil
	}

	var out []core.Notification
	for _, b := range bills {
		band, ok := BillBand(b.DaysUntilDue)
		if !ok {
			continue
		}
		out = append(out, core.Notification{
			ID:        band.IDPrefix + "-" + b.ID,
			Type:      band.Type,
			Priority:  band.Priority,
			Title:     band.Title,
			Message:   billMessage(b),
			Icon:      "calendar",
			Color:     band.Color,
			Timestamp: req.Now,
			ActionURL: "/bills",
			Metadata: core.Metadata{
				BillID:      b.ID,
				DaysUntil:   core.IntPtr(b.DaysUntilDue),
				AmountCents: core.Int64Ptr(b.Amount.Cents),
			},
		})
	}
	return out
}

func billMessage(b core.DueBill) string {
	switch b.DaysUntilDue {
	case 0:
		return fmt.Sprintf("%s (%s) is due today", b.Name, b.Amount)
	case 1:
		return fmt.Sprintf("%s (%s) is due tomorrow", b.Name, b.Amount)
	default:
		return fmt.Sprintf("%s (%s) is due in %d days", b.Name, b.Amount, b.DaysUntilDue)
	}
}
