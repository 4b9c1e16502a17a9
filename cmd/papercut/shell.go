package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/rendis/papercut/internal/pipeline"
	"github.com/rendis/papercut/internal/session"
	"github.com/rendis/papercut/pkg/schema"
)

const shellHelp = `commands:
  generate <prompt>     generate a pattern and analyze its steps
  upload <path>         upload a JPG, PNG or GIF image as the pattern
  retry                 re-run step analysis
  view pattern|steps    switch the displayed surface
  mode                  toggle raster/vector visualization
  download              save the current visualization
  print                 print the current visualization
  export-steps          save the steps as text
  start | pause | stop  cutting controls
  dismiss               close the topmost error
  status                show the session state
  journal [since]       list journal events
  reset                 clear the session
  help                  show this help
  quit                  leave the shell`

// errQuit ends the shell loop.
var errQuit = errors.New("quit")

// shell is a line-oriented front for one session.
type shell struct {
	sess *session.Session
	in   *bufio.Reader
	out  *console
}

// run reads commands until quit, EOF or ctx cancellation.
func (sh *shell) run(ctx context.Context) error {
	sh.out.println(infoMsg("papercut %s, session %s. Type help for commands.", version, sh.sess.ID()))
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		sh.out.mu.Lock()
		fmt.Fprint(sh.out.out, accentStyle.Render("papercut> "))
		sh.out.mu.Unlock()

		line, err := sh.in.ReadString('\n')
		if line = strings.TrimSpace(line); line != "" {
			if execErr := sh.exec(ctx, line); errors.Is(execErr, errQuit) {
				return nil
			} else if execErr != nil {
				sh.out.println(errorMsg("%s", describe(execErr)))
			}
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
}

// exec runs one command line. Operation failures are already surfaced as
// toasts or modals; the returned error is for the prompt line.
func (sh *shell) exec(ctx context.Context, line string) error {
	name, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	switch strings.ToLower(name) {
	case "generate", "gen":
		return quiet(sh.sess.Generate(ctx, rest))
	case "upload":
		if rest == "" {
			return fmt.Errorf("usage: upload <path>")
		}
		up, err := pipeline.ReadUpload(rest)
		if err != nil {
			return err
		}
		return quiet(sh.sess.Upload(ctx, up))
	case "retry":
		return quiet(sh.sess.Retry(ctx))
	case "view":
		if rest != string(schema.SurfacePattern) && rest != string(schema.SurfaceSteps) {
			return fmt.Errorf("usage: view pattern|steps")
		}
		return quiet(sh.sess.SwitchView(ctx, schema.Surface(rest)))
	case "mode":
		mode := sh.sess.ToggleMode(ctx)
		sh.out.println(infoMsg("visualization: %s", mode.Label()))
		return nil
	case "download":
		loc, err := sh.sess.Download(ctx)
		sh.reportLocation(loc, err)
		return quiet(err)
	case "print":
		return quiet(sh.sess.Print(ctx))
	case "export-steps", "export":
		loc, err := sh.sess.ExportSteps(ctx)
		sh.reportLocation(loc, err)
		return quiet(err)
	case "start":
		return quiet(sh.sess.StartCutting(ctx))
	case "pause", "resume":
		return quiet(sh.sess.PauseCutting(ctx))
	case "stop":
		return quiet(sh.sess.StopCutting(ctx))
	case "dismiss":
		if !sh.sess.DismissError(ctx) {
			sh.out.println(mutedStyle.Render("nothing to dismiss"))
		}
		return nil
	case "status":
		sh.out.println(renderStatus(sh.sess.Status()))
		return nil
	case "journal":
		return sh.journal(ctx, rest)
	case "reset":
		if err := sh.sess.Reset(ctx); err != nil {
			return err
		}
		sh.out.println(successMsg("session cleared"))
		return nil
	case "help", "?":
		sh.out.println(shellHelp)
		return nil
	case "quit", "exit":
		return errQuit
	default:
		return fmt.Errorf("unknown command %q, type help", name)
	}
}

func (sh *shell) reportLocation(loc string, err error) {
	if err == nil && loc != "" {
		sh.out.println(mutedStyle.Render("saved to " + loc))
	}
}

func (sh *shell) journal(ctx context.Context, arg string) error {
	var since int64
	if arg != "" {
		n, err := strconv.ParseInt(arg, 10, 64)
		if err != nil || n < 0 {
			return fmt.Errorf("usage: journal [since]")
		}
		since = n
	}
	events, err := sh.sess.Journal(ctx, since)
	if err != nil {
		return err
	}
	for _, ev := range events {
		sh.out.println(fmt.Sprintf("%s %s %s %s",
			mutedStyle.Render(fmt.Sprintf("%4d", ev.Sequence)),
			mutedStyle.Render(ev.Timestamp.Format("15:04:05.000")),
			boldStyle.Render(ev.Type),
			string(ev.Payload)))
	}
	return nil
}

// quiet drops errors the session already showed as a toast or modal.
func quiet(err error) error {
	if err == nil || schema.CodeOf(err) != "" {
		return nil
	}
	return err
}

func describe(err error) string {
	if code := schema.CodeOf(err); code != "" {
		return fmt.Sprintf("%s: %s", code, schema.MessageOf(err))
	}
	return err.Error()
}
