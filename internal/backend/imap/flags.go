package imap

import (
	"github.com/emersion/go-imap"

	"github.com/driftmail/driftmail/pkg/types"
)

// fromIMAPFlags normalizes server-reported flags. \Recent is a session
// artifact and is dropped.
func fromIMAPFlags(flags []string) types.FlagSet {
	set := types.NewFlagSet()
	for _, f := range flags {
		if f == imap.RecentFlag {
			continue
		}
		set.Add(types.NormalizeFlag(f))
	}
	return set
}

func toIMAPFlag(f types.Flag) string {
	switch f {
	case types.FlagSeen:
		return imap.SeenFlag
	case types.FlagAnswered:
		return imap.AnsweredFlag
	case types.FlagFlagged:
		return imap.FlaggedFlag
	case types.FlagDeleted:
		return imap.DeletedFlag
	case types.FlagDraft:
		return imap.DraftFlag
	default:
		return string(f)
	}
}

func toIMAPFlags(set types.FlagSet) []string {
	out := make([]string, 0, len(set))
	for _, name := range set.Names() {
		out = append(out, toIMAPFlag(types.Flag(name)))
	}
	return out
}

func toIMAPFlagsInterface(set types.FlagSet) []interface{} {
	flags := toIMAPFlags(set)
	out := make([]interface{}, len(flags))
	for i, f := range flags {
		out[i] = f
	}
	return out
}
