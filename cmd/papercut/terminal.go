package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/muesli/termenv"

	"github.com/rendis/papercut/internal/notify"
	"github.com/rendis/papercut/internal/session"
	"github.com/rendis/papercut/internal/streaming"
	"github.com/rendis/papercut/pkg/schema"
)

// Palette, shared with every terminal surface.
var (
	purple = lipgloss.Color("99")
	green  = lipgloss.Color("76")
	red    = lipgloss.Color("204")
	yellow = lipgloss.Color("214")
	dim    = lipgloss.Color("243")
	faint  = lipgloss.Color("238")
)

var (
	accentStyle  = lipgloss.NewStyle().Foreground(purple)
	successStyle = lipgloss.NewStyle().Foreground(green)
	errorStyle   = lipgloss.NewStyle().Foreground(red)
	warnStyle    = lipgloss.NewStyle().Foreground(yellow)
	mutedStyle   = lipgloss.NewStyle().Foreground(dim)
	boldStyle    = lipgloss.NewStyle().Bold(true)
	modalStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(red).Padding(0, 1)
)

// setupColor enables colors only when stderr is a terminal.
func setupColor() {
	if stderrIsTerminal() && !envTruthy("NO_COLOR") {
		lipgloss.SetColorProfile(termenv.ColorProfile())
		return
	}
	lipgloss.SetColorProfile(termenv.Ascii)
}

func stderrIsTerminal() bool {
	info, err := os.Stderr.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}

func envTruthy(key string) bool {
	switch strings.TrimSpace(strings.ToLower(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func successMsg(format string, a ...any) string {
	return successStyle.Render("✓") + " " + fmt.Sprintf(format, a...)
}

func warnMsg(format string, a ...any) string {
	return warnStyle.Render("!") + " " + fmt.Sprintf(format, a...)
}

func errorMsg(format string, a ...any) string {
	return errorStyle.Render("✗") + " " + fmt.Sprintf(format, a...)
}

func infoMsg(format string, a ...any) string {
	return accentStyle.Render("●") + " " + fmt.Sprintf(format, a...)
}

func renderToast(t notify.Toast) string {
	switch t.Severity {
	case schema.SeveritySuccess:
		return successMsg("%s", t.Message)
	case schema.SeverityWarning:
		return warnMsg("%s", t.Message)
	default:
		return errorMsg("%s", t.Message)
	}
}

func renderModal(m notify.Modal) string {
	body := boldStyle.Render("Error") + "\n" + m.Message
	if m.Code != "" {
		body += "\n" + mutedStyle.Render(m.Code)
	}
	return modalStyle.Render(body) + "\n" + mutedStyle.Render("type dismiss to close")
}

func renderState(state schema.CuttingState) string {
	switch state {
	case schema.CuttingActive:
		return successStyle.Render(string(state))
	case schema.CuttingPaused:
		return warnStyle.Render(string(state))
	case schema.CuttingStopped:
		return errorStyle.Render(string(state))
	default:
		return mutedStyle.Render(string(state))
	}
}

func yesNo(v bool) string {
	if v {
		return successStyle.Render("yes")
	}
	return mutedStyle.Render("no")
}

// renderStatus formats a session snapshot for the terminal.
func renderStatus(st session.Status) string {
	var b strings.Builder
	label := func(k string) string { return mutedStyle.Render(fmt.Sprintf("%-10s", k)) }

	fmt.Fprintf(&b, "%s %s\n", label("session"), st.SessionID)
	fmt.Fprintf(&b, "%s %s (%s)\n", label("view"), st.View.Active, st.View.Mode.Label())
	fmt.Fprintf(&b, "%s %s\n", label("cutting"), renderState(st.Cutting))
	fmt.Fprintf(&b, "%s %s\n", label("pattern"), yesNo(st.HasPattern))
	fmt.Fprintf(&b, "%s raster %s  vector %s\n", label("visual"), yesNo(st.HasRaster), yesNo(st.HasVector))
	if st.HeartbeatLive {
		fmt.Fprintf(&b, "%s %s\n", label("heartbeat"), successStyle.Render("live"))
	}

	if len(st.Steps) > 0 {
		t := table.New().
			Border(lipgloss.NormalBorder()).
			BorderStyle(lipgloss.NewStyle().Foreground(faint)).
			Headers("STEP", "DESCRIPTION")
		for _, s := range st.Steps {
			t.Row(strconv.Itoa(s.Index), s.Description)
		}
		b.WriteString(t.String())
		b.WriteString("\n")
	}
	for _, toast := range st.Toasts {
		b.WriteString(renderToast(toast))
		b.WriteString("\n")
	}
	for _, m := range st.Modals {
		if m.Kind == notify.ModalError {
			b.WriteString(renderModal(m))
			b.WriteString("\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// console serializes writes from the shell and the event watcher.
type console struct {
	mu  sync.Mutex
	out io.Writer
}

func (c *console) println(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, s)
}

// terminalDialog asks confirmations on the console. It shares the shell's
// reader so answers and commands come from one stream.
type terminalDialog struct {
	in  *bufio.Reader
	out *console
}

func (d *terminalDialog) Confirm(ctx context.Context, message string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	d.out.mu.Lock()
	fmt.Fprintf(d.out.out, "%s %s %s ", accentStyle.Render("?"), message, mutedStyle.Render("[y/N]"))
	d.out.mu.Unlock()

	line, err := d.in.ReadString('\n')
	if err != nil && line == "" {
		if err == io.EOF {
			return false, nil
		}
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

// watchedEvents are rendered as they happen. Confirmation modals are left to
// the dialog, which prints its own prompt.
var watchedEvents = []string{
	schema.EventToastShown,
	schema.EventModalOpened,
	schema.EventHeartbeatFailed,
	schema.EventCuttingState,
}

// watch prints session events until ctx ends or the stream closes.
func watch(ctx context.Context, events <-chan streaming.SessionEvent, out *console) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if line := renderEvent(ev); line != "" {
				out.println(line)
			}
		}
	}
}

func renderEvent(ev streaming.SessionEvent) string {
	switch ev.Type {
	case schema.EventToastShown:
		if t, ok := ev.Payload.(notify.Toast); ok {
			return renderToast(t)
		}
	case schema.EventModalOpened:
		if m, ok := ev.Payload.(notify.Modal); ok && m.Kind == notify.ModalError {
			return renderModal(m)
		}
	case schema.EventHeartbeatFailed:
		return warnMsg("heartbeat failed: %v", payloadField(ev.Payload, "error"))
	case schema.EventCuttingState:
		if to, ok := payloadField(ev.Payload, "to").(schema.CuttingState); ok {
			return infoMsg("cutting %s", renderState(to))
		}
	}
	return ""
}

func payloadField(payload any, key string) any {
	if m, ok := payload.(map[string]any); ok {
		return m[key]
	}
	return nil
}
