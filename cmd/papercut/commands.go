package main

import (
	"bufio"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rendis/papercut/internal/notify"
	"github.com/rendis/papercut/internal/pipeline"
	"github.com/rendis/papercut/internal/session"
	"github.com/rendis/papercut/pkg/mcp"
	"github.com/rendis/papercut/pkg/schema"
)

func (a *app) runShell(cmd *cobra.Command) error {
	ctx := cmd.Context()
	in := bufio.NewReader(cmd.InOrStdin())
	out := &console{out: cmd.OutOrStdout()}

	sess, err := openSession(ctx, a.cfg, &terminalDialog{in: in, out: out}, a.logger)
	if err != nil {
		return err
	}
	defer sess.Close()

	events, cancel, err := sess.Subscribe(ctx, watchedEvents...)
	if err != nil {
		return err
	}
	defer cancel()
	go watch(ctx, events, out)

	sh := &shell{sess: sess, in: in, out: out}
	return sh.run(ctx)
}

type runOptions struct {
	prompt   string
	upload   string
	download bool
	export   bool
	print    bool
	cut      bool
	yes      bool
	json     bool
}

func newRunCmd(a *app) *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Generate or upload a pattern once, then export or cut it",
		Example: `  papercut run --prompt "a butterfly" --export
  papercut run --upload bird.png --download --cut --yes`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if (opts.prompt == "") == (opts.upload == "") {
				return fmt.Errorf("exactly one of --prompt or --upload is required")
			}
			return a.runOnce(cmd, opts)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.prompt, "prompt", "", "Describe the pattern to generate")
	f.StringVar(&opts.upload, "upload", "", "Use this image as the pattern")
	f.BoolVar(&opts.download, "download", false, "Save the visualization")
	f.BoolVar(&opts.export, "export", false, "Save the steps as text")
	f.BoolVar(&opts.print, "print", false, "Print the visualization")
	f.BoolVar(&opts.cut, "cut", false, "Send the steps to the cutting machine")
	f.BoolVar(&opts.yes, "yes", false, "Answer yes to confirmations")
	f.BoolVar(&opts.json, "json", false, "Print the final status as JSON")
	return cmd
}

// runOnce drives one non-interactive pass. Toasts and modals stream to stderr.
func (a *app) runOnce(cmd *cobra.Command, opts runOptions) error {
	ctx := cmd.Context()
	errOut := &console{out: cmd.ErrOrStderr()}

	// The heartbeat has nothing to watch once the process exits.
	cfg := a.cfg
	cfg.Heartbeat = ""
	sess, err := openSession(ctx, cfg, notify.PresetDialog{Default: opts.yes}, a.logger)
	if err != nil {
		return err
	}
	defer sess.Close()

	events, cancel, err := sess.Subscribe(ctx, watchedEvents...)
	if err != nil {
		return err
	}
	defer cancel()
	go watch(ctx, events, errOut)

	if opts.prompt != "" {
		err = sess.Generate(ctx, opts.prompt)
	} else {
		var up pipeline.Upload
		if up, err = pipeline.ReadUpload(opts.upload); err == nil {
			err = sess.Upload(ctx, up)
		}
	}
	if err != nil {
		return err
	}

	if opts.download {
		loc, err := sess.Download(ctx)
		if err != nil {
			return err
		}
		errOut.println(mutedStyle.Render("saved to " + loc))
	}
	if opts.export {
		loc, err := sess.ExportSteps(ctx)
		if err != nil {
			return err
		}
		errOut.println(mutedStyle.Render("saved to " + loc))
	}
	if opts.print {
		if err := sess.Print(ctx); err != nil {
			return err
		}
	}
	if opts.cut {
		if err := sess.StartCutting(ctx); err != nil {
			return err
		}
		if sess.Status().Cutting != schema.CuttingActive {
			return schema.NewError(schema.ErrCodeDispatchFailed, "cutting was not confirmed, pass --yes")
		}
	}

	return printStatus(cmd, sess.Status(), opts.json)
}

func printStatus(cmd *cobra.Command, st session.Status, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(st)
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderStatus(st))
	return nil
}

func newMCPCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the session as MCP tools over stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			// Confirmations arrive as tool arguments; unanswered ones are declined.
			sess, err := openSession(ctx, a.cfg, notify.PresetDialog{}, a.logger)
			if err != nil {
				return err
			}
			defer sess.Close()

			a.logger.Info("mcp server starting", "session_id", sess.ID(), "server_url", a.cfg.ServerURL)
			srv := mcp.NewPapercutServer(mcp.PapercutServerDeps{
				Session: sess,
				Version: version,
				Logger:  a.logger,
			})
			return srv.Serve(ctx)
		},
	}
}
