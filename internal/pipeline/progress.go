package pipeline

import (
	"fmt"
	"log/slog"

	"github.com/akuhnert/invoiceflow/constants"
	"github.com/akuhnert/invoiceflow/internal/entity"
)

// ProgressFunc is a caller-supplied sink notified after each document
// reaches a terminal state. It is a side channel only: a panic inside the
// sink is swallowed and never stalls or fails the pipeline.
type ProgressFunc func(done, total int, line string)

func notifyProgress(log *slog.Logger, cb ProgressFunc, done, total int, line string) {
	if cb == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil && log != nil {
			log.Warn("batch.progress_sink_panic", "panic", r)
		}
	}()
	cb(done, total, line)
}

var statusIcons = map[constants.ProcessingStatus]string{
	constants.StatusSuccess: "✓",
	constants.StatusReview:  "⚠",
	constants.StatusManual:  "✗",
	constants.StatusError:   "❌",
}

// formatDetail renders the one-line progress summary for a document.
func formatDetail(d entity.ProcessingDetail) string {
	icon, ok := statusIcons[d.Status]
	if !ok {
		icon = "?"
	}
	if len(d.Records) > 0 {
		rec := d.Records[0]
		return fmt.Sprintf("%s %s | %s | %.2f€ | %s",
			icon, orDash(rec.VehicleID), truncate(rec.Seller, 20), rec.TotalPrice, rec.Kategorie)
	}
	return fmt.Sprintf("%s %s | %s", icon, truncate(d.Filename, 30), truncate(d.ErrMsg, 40))
}

func orDash(s string) string {
	if s == "" {
		return "?"
	}
	return s
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
