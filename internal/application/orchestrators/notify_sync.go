package orchestrators

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	goldmarkHTML "github.com/yuin/goldmark/renderer/html"

	emailAdapter "loyalty/internal/adapters/email"
	"loyalty/internal/domain/syncrun"
)

// alertRenderer converts the markdown alert body to HTML. Raw HTML in the
// body is escaped.
var alertRenderer = goldmark.New(
	goldmark.WithExtensions(extension.Table),
	goldmark.WithRendererOptions(
		goldmarkHTML.WithHardWraps(),
	),
)

// SyncAlertNotifier emails operators when a run failed or had failing brands.
type SyncAlertNotifier struct {
	sender     emailAdapter.Sender
	recipients []string
}

var _ RunNotifier = (*SyncAlertNotifier)(nil)

// NewSyncAlertNotifier creates a notifier. With no recipients it never sends.
func NewSyncAlertNotifier(sender emailAdapter.Sender, recipients []string) *SyncAlertNotifier {
	return &SyncAlertNotifier{sender: sender, recipients: recipients}
}

// NotifyRun sends one alert email summarising run.
// PRE: run is finished
// POST: no email is sent when run does not need attention or there are no recipients
func (n *SyncAlertNotifier) NotifyRun(ctx context.Context, run syncrun.Run) error {
	if n.sender == nil || len(n.recipients) == 0 || !run.NeedsAttention() {
		return nil
	}
	body, err := renderRunAlert(run)
	if err != nil {
		return fmt.Errorf("render sync alert: %w", err)
	}
	_, err = n.sender.Send(ctx, emailAdapter.Message{
		To:       n.recipients,
		Subject:  runAlertSubject(run),
		HTML:     body,
		Category: "sync_alert",
	})
	return err
}

func runAlertSubject(run syncrun.Run) string {
	if run.Status == syncrun.StatusFailed {
		return "Loyalty sync run failed"
	}
	return fmt.Sprintf("Loyalty sync: %d brand(s) failed", run.BrandsFailed)
}

// renderRunAlert builds the alert as markdown and renders it to HTML.
func renderRunAlert(run syncrun.Run) (string, error) {
	var md strings.Builder
	fmt.Fprintf(&md, "## Sync run %s\n\n", run.ID)
	fmt.Fprintf(&md, "Status: **%s**  \n", run.Status)
	fmt.Fprintf(&md, "Started: %s  \n", run.StartedAt.UTC().Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(&md, "Duration: %s\n\n", run.Duration().Round(time.Millisecond))
	if run.ErrorMessage != "" {
		fmt.Fprintf(&md, "Error: `%s`\n\n", run.ErrorMessage)
	}
	fmt.Fprintf(&md, "Processed %d records with %d errors across %d brands (%d failed, %d skipped).\n\n",
		run.Processed, run.Errors, run.BrandsProcessed, run.BrandsFailed, run.BrandsSkipped)

	var failed []syncrun.BrandResult
	for _, b := range run.Brands {
		if b.Outcome == syncrun.BrandFailed {
			failed = append(failed, b)
		}
	}
	if len(failed) > 0 {
		md.WriteString("### Failed brands\n\n")
		md.WriteString("| Brand | Window | Reason |\n|---|---|---|\n")
		for _, b := range failed {
			fmt.Fprintf(&md, "| %s | %s to %s | %s |\n",
				tableCell(b.BrandName), b.WindowStart, b.WindowEnd, tableCell(b.Reason))
		}
	}

	var buf bytes.Buffer
	if err := alertRenderer.Convert([]byte(md.String()), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func tableCell(s string) string {
	return strings.NewReplacer("|", "\\|", "\n", " ").Replace(s)
}
