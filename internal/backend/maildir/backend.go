// Package maildir implements the local on-disk backend. Each folder is
// a Maildir-style directory (cur/new/tmp) under the account root; the
// whole state is recoverable by re-reading the tree.
package maildir

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/driftmail/driftmail/internal/backend"
	"github.com/driftmail/driftmail/pkg/types"
)

var subdirs = []string{"cur", "new", "tmp"}

// Backend stores one folder per directory, one message per file.
// Message ids are random UUIDs baked into the filename.
type Backend struct {
	root string
	log  *logrus.Entry
}

var _ backend.Backend = (*Backend)(nil)

func New(root string, logger *logrus.Logger) (*Backend, error) {
	if err := os.MkdirAll(root, 0o700); err != nil {
		return nil, fmt.Errorf("creating maildir root %s: %w", root, err)
	}
	return &Backend{
		root: root,
		log:  logger.WithFields(logrus.Fields{"backend": "maildir", "root": root}),
	}, nil
}

func (b *Backend) Name() string { return "maildir" }

func (b *Backend) Connect(ctx context.Context) error { return nil }

func (b *Backend) Disconnect() error { return nil }

// Folder names are URL-path-escaped on disk so delimiters and slashes
// cannot escape the root.
func (b *Backend) folderPath(name string) string {
	return filepath.Join(b.root, url.PathEscape(name))
}

func (b *Backend) ListFolders(ctx context.Context) ([]types.Folder, error) {
	entries, err := os.ReadDir(b.root)
	if err != nil {
		return nil, b.err("list folders", "", "", err)
	}

	var folders []types.Folder
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name, err := url.PathUnescape(entry.Name())
		if err != nil {
			name = entry.Name()
		}
		folders = append(folders, types.Folder{Delim: "/", Name: name})
	}
	return folders, nil
}

func (b *Backend) AddFolder(ctx context.Context, name string) error {
	for _, sub := range subdirs {
		if err := os.MkdirAll(filepath.Join(b.folderPath(name), sub), 0o700); err != nil {
			return b.err("add folder", name, "", err)
		}
	}
	return nil
}

func (b *Backend) PurgeFolder(ctx context.Context, name string) error {
	for _, sub := range []string{"cur", "new"} {
		dir := filepath.Join(b.folderPath(name), sub)
		entries, err := os.ReadDir(dir)
		if err != nil {
			return b.err("purge folder", name, "", err)
		}
		for _, entry := range entries {
			if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil {
				return b.err("purge folder", name, "", err)
			}
		}
	}
	return nil
}

type entry struct {
	env  types.Envelope
	path string
}

// readFolder lists every message file in cur/ and new/, recovering the
// envelope from the file content and the flags from the filename.
func (b *Backend) readFolder(folder string) ([]entry, error) {
	var entries []entry

	for _, sub := range []string{"cur", "new"} {
		dir := filepath.Join(b.folderPath(folder), sub)
		files, err := os.ReadDir(dir)
		if err != nil {
			if sub == "new" && os.IsNotExist(err) {
				continue
			}
			return nil, err
		}

		names := make([]string, 0, len(files))
		for _, f := range files {
			if !f.IsDir() {
				names = append(names, f.Name())
			}
		}
		sort.Strings(names)

		for _, name := range names {
			path := filepath.Join(dir, name)
			raw, err := os.ReadFile(path)
			if err != nil {
				return nil, err
			}

			env, err := backend.EnvelopeFromRaw(raw)
			if err != nil {
				return nil, fmt.Errorf("message %s: %w", name, err)
			}
			env.ID, env.Flags = parseName(name)
			entries = append(entries, entry{env: env, path: path})
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].env.Date.After(entries[j].env.Date)
	})
	return entries, nil
}

func (b *Backend) ListEnvelopes(ctx context.Context, folder string, page, pageSize int) ([]types.Envelope, error) {
	entries, err := b.readFolder(folder)
	if err != nil {
		return nil, b.err("list envelopes", folder, "", err)
	}

	envelopes := make([]types.Envelope, 0, len(entries))
	for _, e := range entries {
		envelopes = append(envelopes, e.env)
	}

	if pageSize > 0 {
		start := page * pageSize
		if start >= len(envelopes) {
			return nil, nil
		}
		end := start + pageSize
		if end > len(envelopes) {
			end = len(envelopes)
		}
		envelopes = envelopes[start:end]
	}
	return envelopes, nil
}

func (b *Backend) GetMessages(ctx context.Context, folder string, ids []string) ([]types.Message, error) {
	entries, err := b.readFolder(folder)
	if err != nil {
		return nil, b.err("get messages", folder, "", err)
	}

	byID := make(map[string]entry, len(entries))
	for _, e := range entries {
		byID[e.env.ID] = e
	}

	messages := make([]types.Message, 0, len(ids))
	for _, id := range ids {
		e, ok := byID[id]
		if !ok {
			return nil, b.err("get messages", folder, id, os.ErrNotExist)
		}
		raw, err := os.ReadFile(e.path)
		if err != nil {
			return nil, b.err("get messages", folder, id, err)
		}
		messages = append(messages, types.Message{Envelope: e.env, Raw: raw})
	}
	return messages, nil
}

// AddMessage writes the content into tmp/ first and renames it into
// cur/, so readers never observe a partial message.
func (b *Backend) AddMessage(ctx context.Context, folder string, raw []byte, flags types.FlagSet) (string, error) {
	id := uuid.NewString()
	name := formatName(id, flags)

	tmpPath := filepath.Join(b.folderPath(folder), "tmp", name)
	if err := os.WriteFile(tmpPath, raw, 0o600); err != nil {
		return "", b.err("add message", folder, id, err)
	}

	curPath := filepath.Join(b.folderPath(folder), "cur", name)
	if err := os.Rename(tmpPath, curPath); err != nil {
		os.Remove(tmpPath) //nolint:errcheck
		return "", b.err("add message", folder, id, err)
	}

	b.log.WithFields(logrus.Fields{"folder": folder, "id": id}).Debug("added message")
	return id, nil
}

func (b *Backend) findMessage(folder, id string) (string, error) {
	entries, err := b.readFolder(folder)
	if err != nil {
		return "", err
	}
	for _, e := range entries {
		if e.env.ID == id {
			return e.path, nil
		}
	}
	return "", fmt.Errorf("message %s: %w", id, os.ErrNotExist)
}

// SetFlags renames the message file with a rewritten info suffix.
func (b *Backend) SetFlags(ctx context.Context, folder, id string, flags types.FlagSet) error {
	path, err := b.findMessage(folder, id)
	if err != nil {
		return b.err("set flags", folder, id, err)
	}

	newPath := filepath.Join(filepath.Dir(path), formatName(id, flags))
	if newPath == path {
		return nil
	}
	if err := os.Rename(path, newPath); err != nil {
		return b.err("set flags", folder, id, err)
	}
	return nil
}

// CopyMessage duplicates content and flags under a fresh id in the
// destination folder.
func (b *Backend) CopyMessage(ctx context.Context, fromFolder, toFolder, id string) error {
	path, err := b.findMessage(fromFolder, id)
	if err != nil {
		return b.err("copy message", fromFolder, id, err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return b.err("copy message", fromFolder, id, err)
	}

	_, flags := parseName(filepath.Base(path))
	if _, err := b.AddMessage(ctx, toFolder, raw, flags); err != nil {
		return b.err("copy message", fromFolder, id, err)
	}
	return nil
}

func (b *Backend) MoveMessage(ctx context.Context, fromFolder, toFolder, id string) error {
	path, err := b.findMessage(fromFolder, id)
	if err != nil {
		return b.err("move message", fromFolder, id, err)
	}

	dst := filepath.Join(b.folderPath(toFolder), "cur", filepath.Base(path))
	if err := os.Rename(path, dst); err != nil {
		return b.err("move message", fromFolder, id, err)
	}
	return nil
}

func (b *Backend) DeleteMessage(ctx context.Context, folder, id string) error {
	path, err := b.findMessage(folder, id)
	if err != nil {
		return b.err("delete message", folder, id, err)
	}
	if err := os.Remove(path); err != nil {
		return b.err("delete message", folder, id, err)
	}
	return nil
}

func (b *Backend) err(op, folder, id string, err error) *backend.Error {
	return &backend.Error{Backend: "maildir", Op: op, Folder: folder, ID: id, Err: err}
}
