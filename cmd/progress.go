package cmd

import (
	"fmt"
	"os"

	"github.com/Rana718/graftflow/internal/progress"
	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
)

func newBar(description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(100,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetWidth(50),
		progressbar.OptionShowCount(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}

// renderProgress draws events for one record until the subscription closes
// or the record finishes. It closes done when it returns.
func renderProgress(sub *progress.Subscription, label string, done chan<- struct{}) {
	defer close(done)

	bar := newBar("      " + label)
	lastPhase := progress.Phase("")

	for ev := range sub.C {
		rec := ev.Record
		if m := rec.Migration; m != nil && m.Phase != lastPhase && !m.Phase.Terminal() {
			lastPhase = m.Phase
			bar.Describe(fmt.Sprintf("      %-12s", m.Phase))
		}
		if rec.Percentage >= 0 {
			_ = bar.Set(rec.Percentage)
		}

		switch ev.Type {
		case progress.EventCompleted:
			_ = bar.Finish()
			fmt.Fprintln(os.Stderr)
			return
		case progress.EventFailed, progress.EventCancelled:
			_ = bar.Exit()
			fmt.Fprintln(os.Stderr)
			if rec.Message != "" {
				color.Red("   %s", rec.Message)
			}
			return
		}
	}
}
