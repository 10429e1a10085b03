package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/driftmail/driftmail/internal/backend/imap"
	"github.com/driftmail/driftmail/internal/config"
	"github.com/driftmail/driftmail/internal/sync"
)

var version = "dev"

func main() {
	app := &cli.App{
		Name:    "driftmail",
		Usage:   "two-way synchronization between IMAP mailboxes and local maildirs",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to the configuration file",
				Value:   config.DefaultConfigPath(),
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "override the configured log level",
			},
		},
		Commands: []*cli.Command{
			syncCommand(),
			foldersCommand(),
			envelopesCommand(),
			watchCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "driftmail:", err)
		os.Exit(1)
	}
}

func setup(c *cli.Context) (*config.Config, *logrus.Logger, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, nil, err
	}

	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetFormatter(&logrus.TextFormatter{})

	levelName := cfg.LogLevel
	if c.String("log-level") != "" {
		levelName = c.String("log-level")
	}
	level, err := logrus.ParseLevel(levelName)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	return cfg, logger, nil
}

// selectAccounts resolves the --account flag against the configuration,
// defaulting to every configured account.
func selectAccounts(c *cli.Context, cfg *config.Config) ([]config.AccountConfig, error) {
	if name := c.String("account"); name != "" {
		acc, err := cfg.GetAccountByName(name)
		if err != nil {
			return nil, err
		}
		return []config.AccountConfig{*acc}, nil
	}
	return cfg.Accounts, nil
}

func syncCommand() *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "reconcile accounts between the remote server and the local maildir",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "account", Aliases: []string{"a"}, Usage: "sync only this account"},
			&cli.BoolFlag{Name: "dry-run", Usage: "compute and print the patch without applying it"},
		},
		Action: func(c *cli.Context) error {
			cfg, logger, err := setup(c)
			if err != nil {
				return err
			}
			accounts, err := selectAccounts(c, cfg)
			if err != nil {
				return err
			}

			for _, acc := range accounts {
				remote := imap.New(acc.Name, acc.IMAP, logger)
				syncer := sync.New(acc, remote, logger,
					sync.WithDryRun(c.Bool("dry-run")),
					sync.WithSyncRoot(cfg.SyncRoot),
				)

				report, err := syncer.Sync(c.Context)
				if err != nil {
					return err
				}
				printReport(report)
			}
			return nil
		},
	}
}

func printReport(r *sync.Report) {
	if r.Empty() {
		fmt.Printf("%s: up to date\n", r.Account)
		return
	}

	prefix := ""
	if r.DryRun {
		prefix = "[dry-run] "
	}
	for _, created := range r.CreatedFolders {
		fmt.Printf("%s%s: create %s folder %s\n", prefix, r.Account, created.Target, created.Name)
	}
	for _, op := range r.Operations {
		fmt.Printf("%s%s: %s\n", prefix, r.Account, op)
	}
}

func foldersCommand() *cli.Command {
	return &cli.Command{
		Name:  "folders",
		Usage: "list the folders of an account's remote server",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "account", Aliases: []string{"a"}, Required: true},
		},
		Action: func(c *cli.Context) error {
			cfg, logger, err := setup(c)
			if err != nil {
				return err
			}
			acc, err := cfg.GetAccountByName(c.String("account"))
			if err != nil {
				return err
			}

			remote := imap.New(acc.Name, acc.IMAP, logger)
			if err := remote.Connect(c.Context); err != nil {
				return err
			}
			defer remote.Disconnect() //nolint:errcheck

			folders, err := remote.ListFolders(c.Context)
			if err != nil {
				return err
			}
			for _, folder := range folders {
				fmt.Println(folder.Name)
			}
			return nil
		},
	}
}

func envelopesCommand() *cli.Command {
	return &cli.Command{
		Name:  "envelopes",
		Usage: "list envelopes in a remote folder, newest first",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "account", Aliases: []string{"a"}, Required: true},
			&cli.StringFlag{Name: "folder", Aliases: []string{"f"}, Value: "INBOX"},
			&cli.IntFlag{Name: "page", Value: 0},
			&cli.IntFlag{Name: "page-size", Value: 0, Usage: "defaults to the account's page size"},
		},
		Action: func(c *cli.Context) error {
			cfg, logger, err := setup(c)
			if err != nil {
				return err
			}
			acc, err := cfg.GetAccountByName(c.String("account"))
			if err != nil {
				return err
			}

			pageSize := c.Int("page-size")
			if pageSize == 0 {
				pageSize = acc.PageSize
			}
			if pageSize == 0 {
				pageSize = 25
			}

			remote := imap.New(acc.Name, acc.IMAP, logger)
			if err := remote.Connect(c.Context); err != nil {
				return err
			}
			defer remote.Disconnect() //nolint:errcheck

			envelopes, err := remote.ListEnvelopes(c.Context, c.String("folder"), c.Int("page"), pageSize)
			if err != nil {
				return err
			}
			for _, env := range envelopes {
				fmt.Printf("%s\t%s\t%s\t%s\t[%s]\n",
					env.ID, env.Date.Format("2006-01-02 15:04"), env.Sender, env.Subject, env.Flags)
			}
			return nil
		},
	}
}

func watchCommand() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "sync all enabled accounts on a schedule until interrupted",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "schedule", Value: "@every 5m", Usage: "cron spec for sync runs"},
		},
		Action: func(c *cli.Context) error {
			cfg, logger, err := setup(c)
			if err != nil {
				return err
			}

			scheduler := sync.NewScheduler(logger)
			for _, acc := range cfg.Accounts {
				if !acc.Sync {
					logger.WithField("account", acc.Name).Info("sync disabled, not scheduling")
					continue
				}

				acc := acc
				job := func(ctx context.Context) error {
					remote := imap.New(acc.Name, acc.IMAP, logger)
					syncer := sync.New(acc, remote, logger, sync.WithSyncRoot(cfg.SyncRoot))
					report, err := syncer.Sync(ctx)
					if err != nil {
						return err
					}
					printReport(report)
					return nil
				}
				if err := scheduler.Add(c.String("schedule"), acc.Name, job); err != nil {
					return fmt.Errorf("scheduling account %s: %w", acc.Name, err)
				}
			}

			scheduler.Start()
			logger.WithField("schedule", c.String("schedule")).Info("watching for changes")

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
			sig := <-sigChan
			logger.WithField("signal", sig).Info("shutting down")

			scheduler.Stop()
			return nil
		},
	}
}
