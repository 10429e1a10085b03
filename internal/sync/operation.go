package sync

import (
	"fmt"

	"github.com/driftmail/driftmail/pkg/types"
)

// Target names the side of the account a patch operation applies to.
type Target int

const (
	TargetLocal Target = iota
	TargetRemote
)

func (t Target) String() string {
	if t == TargetLocal {
		return "local"
	}
	return "remote"
}

// OpKind discriminates the patch operation variants.
type OpKind int

const (
	// OpAdd inserts a message fetched from the opposite side.
	OpAdd OpKind = iota
	// OpCopy duplicates a message into another folder on the same side.
	OpCopy
	// OpSetFlags replaces the flag set of an existing message.
	OpSetFlags
	// OpDelete removes a message.
	OpDelete
)

func (k OpKind) String() string {
	switch k {
	case OpAdd:
		return "add"
	case OpCopy:
		return "copy"
	case OpSetFlags:
		return "set-flags"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Operation is one element of the patch computed for a folder. In
// dry-run mode the operation list is the whole output of a sync.
type Operation struct {
	Kind   OpKind
	Target Target
	Folder string

	// Hash is the content hash of the logical message.
	Hash string

	// ID is the message id on the target side (set-flags, delete,
	// copy). SourceID is the id on the opposite side an add fetches
	// from.
	ID       string
	SourceID string

	// DstFolder is the copy destination.
	DstFolder string

	Flags types.FlagSet

	// Envelope carries the message metadata for reporting and cache
	// writes.
	Envelope types.Envelope
}

func (o Operation) String() string {
	short := o.Hash
	if len(short) > 8 {
		short = short[:8]
	}
	switch o.Kind {
	case OpAdd:
		return fmt.Sprintf("add %s %s %s (from id %s)", o.Target, o.Folder, short, o.SourceID)
	case OpCopy:
		return fmt.Sprintf("copy %s %s -> %s id %s", o.Target, o.Folder, o.DstFolder, o.ID)
	case OpSetFlags:
		return fmt.Sprintf("set-flags %s %s id %s [%s]", o.Target, o.Folder, o.ID, o.Flags)
	case OpDelete:
		return fmt.Sprintf("delete %s %s id %s", o.Target, o.Folder, o.ID)
	default:
		return fmt.Sprintf("unknown %s %s %s", o.Target, o.Folder, short)
	}
}
