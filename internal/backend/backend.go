// Package backend defines the capability contract every mail store
// (remote server or local disk) plugs into. The sync engine is generic
// over this interface and never talks wire protocols directly.
package backend

import (
	"context"

	"github.com/driftmail/driftmail/pkg/types"
)

// Backend is the minimal operation set a mail store must support.
//
// ListEnvelopes returns envelopes newest first (date descending); when
// dates are equal the backend's own listing order is preserved. Passing
// page == 0 and pageSize == 0 lists the whole folder.
//
// Implementations must be safe for concurrent use: read operations may
// run in parallel, and mutations on different folders may interleave.
type Backend interface {
	// Name identifies the backend kind in logs and errors.
	Name() string

	Connect(ctx context.Context) error
	Disconnect() error

	ListFolders(ctx context.Context) ([]types.Folder, error)
	AddFolder(ctx context.Context, name string) error
	// PurgeFolder removes every message in the folder. It exists for
	// tests and setup tooling; the live sync path never calls it.
	PurgeFolder(ctx context.Context, name string) error

	ListEnvelopes(ctx context.Context, folder string, page, pageSize int) ([]types.Envelope, error)
	GetMessages(ctx context.Context, folder string, ids []string) ([]types.Message, error)

	AddMessage(ctx context.Context, folder string, raw []byte, flags types.FlagSet) (string, error)
	SetFlags(ctx context.Context, folder, id string, flags types.FlagSet) error
	CopyMessage(ctx context.Context, fromFolder, toFolder, id string) error
	MoveMessage(ctx context.Context, fromFolder, toFolder, id string) error
	DeleteMessage(ctx context.Context, folder, id string) error
}
