// Package sync implements the reconciliation engine: it equalizes
// folders and messages between a remote backend and the local maildir,
// driving all changes through the per-account cache so repeated runs
// are idempotent.
package sync

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/driftmail/driftmail/internal/backend"
	"github.com/driftmail/driftmail/internal/backend/maildir"
	"github.com/driftmail/driftmail/internal/cache"
	"github.com/driftmail/driftmail/internal/config"
)

// ErrSyncDisabled is returned when the account's sync gate is off.
var ErrSyncDisabled = errors.New("synchronization not enabled")

// FolderCreation records one planned or applied folder creation.
type FolderCreation struct {
	Name   string
	Target Target
}

// Report is the outcome of one sync invocation. In dry-run mode it
// holds the computed patch; otherwise it lists what was applied.
type Report struct {
	Account        string
	DryRun         bool
	Folders        []string
	CreatedFolders []FolderCreation
	Operations     []Operation
}

// Empty reports whether the sync had nothing to do.
func (r *Report) Empty() bool {
	return len(r.CreatedFolders) == 0 && len(r.Operations) == 0
}

// Syncer wires one account's remote backend to its local maildir and
// cache. Distinct accounts may sync concurrently; two simultaneous
// syncs of the same account are out of contract.
type Syncer struct {
	account  config.AccountConfig
	remote   backend.Backend
	syncRoot string
	dryRun   bool
	logger   *logrus.Logger
	log      *logrus.Entry
}

// Option configures a Syncer.
type Option func(*Syncer)

// WithDryRun computes the patch without mutating backends or cache.
func WithDryRun(dryRun bool) Option {
	return func(s *Syncer) { s.dryRun = dryRun }
}

// WithSyncRoot sets the global sync root the account may override.
func WithSyncRoot(root string) Option {
	return func(s *Syncer) { s.syncRoot = root }
}

func New(account config.AccountConfig, remote backend.Backend, logger *logrus.Logger, opts ...Option) *Syncer {
	s := &Syncer{
		account: account,
		remote:  remote,
		logger:  logger,
		log:     logger.WithField("account", account.Name),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sync reconciles the whole account: folder pass first, then one
// envelope pass per folder. It returns on the first error, leaving
// already-applied operations in place; partial progress is durable and
// the documented recovery is to run Sync again.
func (s *Syncer) Sync(ctx context.Context) (*Report, error) {
	if !s.account.Sync {
		return nil, fmt.Errorf("account %s: %w", s.account.Name, ErrSyncDisabled)
	}

	root, err := s.resolveSyncRoot()
	if err != nil {
		return nil, fmt.Errorf("account %s: %w", s.account.Name, err)
	}

	local, err := maildir.New(filepath.Join(root, s.account.Name), s.logger)
	if err != nil {
		return nil, fmt.Errorf("account %s: %w", s.account.Name, err)
	}

	store, err := cache.Open(filepath.Join(root, s.account.Name+".sqlite"), s.logger)
	if err != nil {
		return nil, fmt.Errorf("account %s: %w", s.account.Name, err)
	}
	defer store.Close()

	if err := s.remote.Connect(ctx); err != nil {
		return nil, fmt.Errorf("account %s: %w", s.account.Name, err)
	}
	defer s.remote.Disconnect() //nolint:errcheck

	report := &Report{Account: s.account.Name, DryRun: s.dryRun}

	folders, err := syncFolders(ctx, local, s.remote, s.dryRun, report, s.log)
	if err != nil {
		return report, fmt.Errorf("account %s: syncing folders: %w", s.account.Name, err)
	}

	for _, folder := range folders {
		report.Folders = append(report.Folders, folder.name)

		es := &envelopeSyncer{
			account: s.account.Name,
			folder:  folder,
			local:   local,
			remote:  s.remote,
			store:   store,
			dryRun:  s.dryRun,
			log:     s.log,
		}
		ops, err := es.run(ctx)
		report.Operations = append(report.Operations, ops...)
		if err != nil {
			return report, fmt.Errorf("account %s: folder %s: %w", s.account.Name, folder.name, err)
		}
	}

	s.log.WithFields(logrus.Fields{
		"folders":    len(report.Folders),
		"operations": len(report.Operations),
		"dry_run":    s.dryRun,
	}).Info("sync finished")

	return report, nil
}

// resolveSyncRoot picks the account override, then the global setting,
// then the platform data directory, and creates the directory.
func (s *Syncer) resolveSyncRoot() (string, error) {
	root := s.account.SyncRoot
	if root == "" {
		root = s.syncRoot
	}
	if root == "" {
		var err error
		root, err = defaultSyncRoot()
		if err != nil {
			return "", err
		}
		s.log.WithField("sync_root", root).Warn("sync root not set, using data directory")
	}

	if err := os.MkdirAll(root, 0o700); err != nil {
		return "", fmt.Errorf("creating sync root %s: %w", root, err)
	}
	return root, nil
}

func defaultSyncRoot() (string, error) {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "driftmail"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving data directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", "driftmail"), nil
}
