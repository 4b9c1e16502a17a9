package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rendis/papercut/internal/export"
	"github.com/rendis/papercut/internal/notify"
	"github.com/rendis/papercut/internal/remote"
	"github.com/rendis/papercut/internal/session"
	"github.com/rendis/papercut/internal/store"
	"github.com/rendis/papercut/internal/validation"
)

// openSession wires a Session from cfg. The in-memory journal is used when
// no journal_path is configured.
func openSession(ctx context.Context, cfg Config, dialog notify.Dialog, logger *slog.Logger) (*session.Session, error) {
	decoder, err := validation.NewResponseValidator()
	if err != nil {
		return nil, fmt.Errorf("response validator: %w", err)
	}
	client := remote.New(remote.Config{
		BaseURL: cfg.ServerURL,
		Timeout: cfg.RequestTimeout.D(),
	}, decoder, logger)

	var journal store.Journal
	if cfg.JournalPath != "" {
		lj, err := store.NewLibSQLJournal("file:" + cfg.JournalPath)
		if err != nil {
			return nil, fmt.Errorf("open journal: %w", err)
		}
		if err := lj.Migrate(ctx); err != nil {
			_ = lj.Close()
			return nil, fmt.Errorf("migrate journal: %w", err)
		}
		journal = lj
	}

	sess, err := session.New(ctx, session.Deps{
		Remote:       client,
		Journal:      journal,
		Dialog:       dialog,
		Sink:         export.DirSink{Dir: cfg.ExportDir},
		Printer:      export.CommandPrinter{Command: cfg.PrintCommand, Logger: logger},
		Heartbeat:    cfg.Heartbeat,
		ToastTTL:     cfg.ToastTTL.D(),
		DismissDelay: cfg.DismissDelay.D(),
		ServerURL:    cfg.ServerURL,
		Logger:       logger,
	})
	if err != nil {
		if journal != nil {
			_ = journal.Close()
		}
		return nil, err
	}
	return sess, nil
}
