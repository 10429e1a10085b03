// Package memory implements an in-memory backend. The engine tests use
// it as a stand-in for a remote store; it honors the same ordering and
// id semantics as the real backends.
package memory

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"sync"

	"github.com/driftmail/driftmail/internal/backend"
	"github.com/driftmail/driftmail/pkg/types"
)

type message struct {
	id    string
	raw   []byte
	flags types.FlagSet
	env   types.Envelope
}

type folder struct {
	messages []*message
}

// Backend keeps folders and messages in process memory. Ids are
// monotonically increasing decimal strings, never reused.
type Backend struct {
	name string

	mu      sync.RWMutex
	folders map[string]*folder
	nextID  int
}

var _ backend.Backend = (*Backend)(nil)

func New(name string) *Backend {
	return &Backend{
		name:    name,
		folders: make(map[string]*folder),
		nextID:  1,
	}
}

func (b *Backend) Name() string { return b.name }

func (b *Backend) Connect(ctx context.Context) error { return nil }

func (b *Backend) Disconnect() error { return nil }

func (b *Backend) ListFolders(ctx context.Context) ([]types.Folder, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	names := make([]string, 0, len(b.folders))
	for name := range b.folders {
		names = append(names, name)
	}
	sort.Strings(names)

	folders := make([]types.Folder, 0, len(names))
	for _, name := range names {
		folders = append(folders, types.Folder{Delim: "/", Name: name})
	}
	return folders, nil
}

func (b *Backend) AddFolder(ctx context.Context, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.folders[name]; !ok {
		b.folders[name] = &folder{}
	}
	return nil
}

func (b *Backend) PurgeFolder(ctx context.Context, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	f, err := b.folder(name)
	if err != nil {
		return b.err("purge folder", name, "", err)
	}
	f.messages = nil
	return nil
}

func (b *Backend) ListEnvelopes(ctx context.Context, name string, page, pageSize int) ([]types.Envelope, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	f, err := b.folder(name)
	if err != nil {
		return nil, b.err("list envelopes", name, "", err)
	}

	// Newest insertion first, then a stable date sort so equal dates
	// keep that order.
	envelopes := make([]types.Envelope, 0, len(f.messages))
	for i := len(f.messages) - 1; i >= 0; i-- {
		m := f.messages[i]
		env := m.env
		env.Flags = m.flags.Clone()
		envelopes = append(envelopes, env)
	}
	sort.SliceStable(envelopes, func(i, j int) bool {
		return envelopes[i].Date.After(envelopes[j].Date)
	})

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

func (b *Backend) GetMessages(ctx context.Context, name string, ids []string) ([]types.Message, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	f, err := b.folder(name)
	if err != nil {
		return nil, b.err("get messages", name, "", err)
	}

	messages := make([]types.Message, 0, len(ids))
	for _, id := range ids {
		m := f.find(id)
		if m == nil {
			return nil, b.err("get messages", name, id, os.ErrNotExist)
		}
		env := m.env
		env.Flags = m.flags.Clone()
		raw := make([]byte, len(m.raw))
		copy(raw, m.raw)
		messages = append(messages, types.Message{Envelope: env, Raw: raw})
	}
	return messages, nil
}

func (b *Backend) AddMessage(ctx context.Context, name string, raw []byte, flags types.FlagSet) (string, error) {
	env, err := backend.EnvelopeFromRaw(raw)
	if err != nil {
		return "", b.err("add message", name, "", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	f, err := b.folder(name)
	if err != nil {
		return "", b.err("add message", name, "", err)
	}

	id := strconv.Itoa(b.nextID)
	b.nextID++
	env.ID = id

	stored := make([]byte, len(raw))
	copy(stored, raw)
	f.messages = append(f.messages, &message{
		id:    id,
		raw:   stored,
		flags: flags.Clone(),
		env:   env,
	})
	return id, nil
}

func (b *Backend) SetFlags(ctx context.Context, name, id string, flags types.FlagSet) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	f, err := b.folder(name)
	if err != nil {
		return b.err("set flags", name, id, err)
	}
	m := f.find(id)
	if m == nil {
		return b.err("set flags", name, id, os.ErrNotExist)
	}
	m.flags = flags.Clone()
	return nil
}

func (b *Backend) CopyMessage(ctx context.Context, fromFolder, toFolder, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	src, err := b.folder(fromFolder)
	if err != nil {
		return b.err("copy message", fromFolder, id, err)
	}
	dst, err := b.folder(toFolder)
	if err != nil {
		return b.err("copy message", toFolder, id, err)
	}
	m := src.find(id)
	if m == nil {
		return b.err("copy message", fromFolder, id, os.ErrNotExist)
	}

	newID := strconv.Itoa(b.nextID)
	b.nextID++
	env := m.env
	env.ID = newID
	raw := make([]byte, len(m.raw))
	copy(raw, m.raw)
	dst.messages = append(dst.messages, &message{
		id:    newID,
		raw:   raw,
		flags: m.flags.Clone(),
		env:   env,
	})
	return nil
}

func (b *Backend) MoveMessage(ctx context.Context, fromFolder, toFolder, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	src, err := b.folder(fromFolder)
	if err != nil {
		return b.err("move message", fromFolder, id, err)
	}
	dst, err := b.folder(toFolder)
	if err != nil {
		return b.err("move message", toFolder, id, err)
	}

	for i, m := range src.messages {
		if m.id == id {
			src.messages = append(src.messages[:i], src.messages[i+1:]...)
			dst.messages = append(dst.messages, m)
			return nil
		}
	}
	return b.err("move message", fromFolder, id, os.ErrNotExist)
}

func (b *Backend) DeleteMessage(ctx context.Context, name, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	f, err := b.folder(name)
	if err != nil {
		return b.err("delete message", name, id, err)
	}
	for i, m := range f.messages {
		if m.id == id {
			f.messages = append(f.messages[:i], f.messages[i+1:]...)
			return nil
		}
	}
	return b.err("delete message", name, id, os.ErrNotExist)
}

// folder must be called with the mutex held.
func (b *Backend) folder(name string) (*folder, error) {
	f, ok := b.folders[name]
	if !ok {
		return nil, fmt.Errorf("folder %s: %w", name, os.ErrNotExist)
	}
	return f, nil
}

func (f *folder) find(id string) *message {
	for _, m := range f.messages {
		if m.id == id {
			return m
		}
	}
	return nil
}

func (b *Backend) err(op, folder, id string, err error) *backend.Error {
	return &backend.Error{Backend: b.name, Op: op, Folder: folder, ID: id, Err: err}
}
