package output

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/podushkina/meetscribe/internal/meeting"
	"github.com/podushkina/meetscribe/internal/notify"
	"github.com/podushkina/meetscribe/internal/pipeline"
	"github.com/podushkina/meetscribe/internal/quota"
	"github.com/podushkina/meetscribe/internal/task"
)

type Formatter struct {
	w io.Writer
}

func NewFormatter(w io.Writer) *Formatter {
	return &Formatter{w: w}
}

func (f *Formatter) Stage(s pipeline.State) {
	switch s.Stage {
	case pipeline.StageDetecting:
		fmt.Fprintf(f.w, "⏱️  Detecting duration...\n")
	case pipeline.StageCheckingQuota:
		fmt.Fprintf(f.w, "⏱️  Duration: %s\n", formatSeconds(s.DurationSeconds))
	case pipeline.StageTranscribing:
		fmt.Fprintf(f.w, "📝 Transcribing audio... (%d%%)\n", s.Progress)
	case pipeline.StageSummarizing:
		fmt.Fprintf(f.w, "🤖 Generating summary... (%d%%)\n", s.Progress)
	case pipeline.StagePersisting:
		fmt.Fprintf(f.w, "💾 Saving meeting... (%d%%)\n", s.Progress)
	case pipeline.StageCompleted:
		fmt.Fprintf(f.w, "✅ Meeting saved: %s\n", s.MeetingID)
	}
}

func (f *Formatter) Decision(d quota.Decision) {
	switch {
	case d.Blocked():
		f.Error(d.Message())
	case d.NeedsConfirmation():
		f.Warning(d.Message())
	default:
		if d.Metered {
			f.Info(fmt.Sprintf("Uses %d of %d remaining minutes", d.CandidateMinutes, d.RemainingMinutes))
		}
	}
}

func (f *Formatter) Quota(sub quota.Subscription, metered bool) {
	if !metered {
		fmt.Fprintf(f.w, "📦 Plan %s: unlimited minutes (%d used)\n", sub.Plan, sub.UsedMinutes)
		return
	}
	fmt.Fprintf(f.w, "📦 Plan %s: %d of %d minutes used, %d left\n",
		sub.Plan, sub.UsedMinutes, sub.QuotaMinutes, sub.RemainingMinutes())
}

func (f *Formatter) TaskListHeader() {
	fmt.Fprintf(f.w, "📋 Tasks:\n\n")
}

func (f *Formatter) TaskListItem(t task.Task, now time.Time) {
	line := fmt.Sprintf("  %s %s  %s", statusIcon(t.Status), shortID(t.ID), t.Message)
	if t.Status == task.StatusProcessing {
		line += fmt.Sprintf(" (%d%%)", t.ProgressValue())
	}
	if t.Error != "" {
		line += ": " + t.Error
	}
	line += fmt.Sprintf("  [%s ago]", formatDuration(now.Sub(t.UpdatedAt)))
	fmt.Fprintln(f.w, line)
}

// Cards redraws the notification cards.
func (f *Formatter) Cards(cards []notify.Card) {
	if len(cards) == 0 {
		fmt.Fprintf(f.w, "💤 Nothing in progress\n")
		return
	}
	for _, c := range cards {
		switch c.Kind {
		case notify.CardActive:
			fmt.Fprintf(f.w, "⏳ %s %s %d%%\n", c.Message, progressBar(c.Progress, 20), c.Progress)
		case notify.CardCompleted:
			fmt.Fprintf(f.w, "✅ %s\n", c.Message)
		case notify.CardError:
			fmt.Fprintf(f.w, "❌ %s: %s\n", c.Message, c.Error)
		}
	}
}

func (f *Formatter) MeetingListHeader() {
	fmt.Fprintf(f.w, "📁 Meetings:\n\n")
}

func (f *Formatter) MeetingListItem(m meeting.Meeting) {
	fmt.Fprintf(f.w, "  %s  %s (%s)\n", m.CreatedAt.Local().Format("2006-01-02 15:04"), m.Title, formatSeconds(m.DurationSeconds))
}

func (f *Formatter) Error(msg string) {
	fmt.Fprintf(f.w, "❌ %s\n", msg)
}

func (f *Formatter) Info(msg string) {
	fmt.Fprintf(f.w, "ℹ️  %s\n", msg)
}

func (f *Formatter) Success(msg string) {
	fmt.Fprintf(f.w, "✅ %s\n", msg)
}

func (f *Formatter) Warning(msg string) {
	fmt.Fprintf(f.w, "⚠️  %s\n", msg)
}

func (f *Formatter) SetupCheck(name string, ok bool, detail string) {
	if ok {
		fmt.Fprintf(f.w, "  ✅ %s: %s\n", name, detail)
	} else {
		fmt.Fprintf(f.w, "  ❌ %s: %s\n", name, detail)
	}
}

func statusIcon(s task.Status) string {
	switch s {
	case task.StatusCompleted:
		return "✅"
	case task.StatusError:
		return "❌"
	default:
		return "⏳"
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func progressBar(pct, width int) string {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	filled := pct * width / 100
	return "[" + strings.Repeat("█", filled) + strings.Repeat("░", width-filled) + "]"
}

func formatSeconds(s int) string {
	if s <= 0 {
		return "unknown"
	}
	return formatDuration(time.Duration(s) * time.Second)
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	if d < 0 {
		d = 0
	}
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%02ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
