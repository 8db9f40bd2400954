// Command reminders runs, or with -dry-run previews, the document and file
// reminder jobs once for a given date. It accepts the server's
// configuration flags. Exit status is 1 on any error.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/term"

	"github.com/dmitrijs2005/lfras/internal/logging"
	"github.com/dmitrijs2005/lfras/internal/reminderscli"
	"github.com/dmitrijs2005/lfras/internal/server"
	"github.com/dmitrijs2005/lfras/internal/server/config"
	"github.com/dmitrijs2005/lfras/internal/server/notify"
	"github.com/dmitrijs2005/lfras/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/lfras/internal/server/services"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := run(ctx, os.Args[1:])
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "reminders:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	opts, err := reminderscli.ParseOptions(args)
	if err != nil {
		return err
	}
	cfg, err := config.Load(args)
	if err != nil {
		return err
	}
	logger := logging.NewText(os.Stderr, logging.ParseLevel(cfg.LogLevel))

	reminderCfg, err := cfg.Reminder()
	if err != nil {
		return err
	}

	db, err := repomanager.OpenDB(ctx, cfg.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("db init error: %w", err)
	}
	defer db.Close()

	// a preview never sends, so it does not need a live transport
	var dispatcher notify.Dispatcher = notify.NewLogDispatcher(logger)
	if !opts.DryRun {
		d, closeDispatcher, err := server.NewDispatcher(cfg, logger)
		if err != nil {
			return err
		}
		defer closeDispatcher()
		dispatcher = d
	}

	locker, closeLocker, err := server.NewLocker(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeLocker()

	svc := services.NewReminderService(db, repomanager.NewPostgresRepositoryManager(), dispatcher, reminderCfg, nil, logger, cfg.SiteURL)

	table := term.IsTerminal(int(os.Stdout.Fd()))
	return reminderscli.NewCommand(svc, locker, os.Stdout, table, logger).Execute(ctx, opts)
}
