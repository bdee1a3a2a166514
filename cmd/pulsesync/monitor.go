package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/srg/pulsesync/internal/live"
	"github.com/srg/pulsesync/internal/telemetry"
)

const monitorBuffer = 64

// monitor prints live values, one line per event. Colours are used only when
// out is a terminal.
type monitor struct {
	out io.Writer

	hr      *live.Subscription[telemetry.HeartRateSample]
	total   *live.Subscription[int64]
	session *live.Subscription[live.SessionEvent]
	notices *live.Subscription[live.Notice]

	heart  *color.Color
	steps  *color.Color
	link   *color.Color
	notice *color.Color
}

// newMonitor subscribes to feed right away so nothing published before Run is missed.
func newMonitor(out io.Writer, feed *live.Feed) *monitor {
	m := &monitor{
		out:     out,
		hr:      feed.HeartRate.Subscribe(monitorBuffer),
		total:   feed.TotalSteps.Subscribe(monitorBuffer),
		session: feed.Session.Subscribe(monitorBuffer),
		notices: feed.Notices.Subscribe(monitorBuffer),
		heart:  color.New(color.FgRed, color.Bold),
		steps:  color.New(color.FgCyan),
		link:   color.New(color.FgYellow),
		notice: color.New(color.FgGreen),
	}
	if !isTerminal(out) {
		for _, c := range []*color.Color{m.heart, m.steps, m.link, m.notice} {
			c.DisableColor()
		}
	}
	return m
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Run prints events until ctx ends, then releases the subscriptions.
func (m *monitor) Run(ctx context.Context) {
	defer m.hr.Cancel()
	defer m.total.Cancel()
	defer m.session.Cancel()
	defer m.notices.Cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case s := <-m.hr.C():
			m.line(m.heart, "HR", "%d bpm at %s", s.BPM, s.Time().Format("15:04:05"))
		case t := <-m.total.C():
			m.line(m.steps, "STEPS", "%d total", t)
		case ev := <-m.session.C():
			if ev.Connected {
				m.line(m.link, "LINK", "connected to %s", ev.Peripheral.DisplayName())
			} else {
				m.line(m.link, "LINK", "disconnected from %s", ev.Peripheral.DisplayName())
			}
		case n := <-m.notices.C():
			m.line(m.notice, "NOTE", "%s", n.Text)
		}
	}
}

func (m *monitor) line(c *color.Color, label, format string, args ...any) {
	fmt.Fprintf(m.out, "%s %s\n", c.Sprintf("%-6s", label), fmt.Sprintf(format, args...))
}
