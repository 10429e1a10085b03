package types

import (
	"sort"
	"strings"
)

// Flag is a single mail-state marker.
type Flag string

// Standard flag vocabulary. Backend-specific flags are normalized into
// these on ingestion; anything else is carried through as a custom flag.
const (
	FlagSeen     Flag = "seen"
	FlagAnswered Flag = "answered"
	FlagFlagged  Flag = "flagged"
	FlagDeleted  Flag = "deleted"
	FlagDraft    Flag = "draft"
)

// NormalizeFlag maps a backend-reported flag name to the standard
// vocabulary. IMAP system flags (`\Seen`, ...) lose their backslash;
// everything is lowercased.
func NormalizeFlag(raw string) Flag {
	name := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(raw), `\`))
	switch name {
	case "seen":
		return FlagSeen
	case "answered", "replied":
		return FlagAnswered
	case "flagged":
		return FlagFlagged
	case "deleted", "trashed":
		return FlagDeleted
	case "draft":
		return FlagDraft
	default:
		return Flag(name)
	}
}

// FlagSet is an unordered set of flags. Adding a flag twice is a no-op.
type FlagSet map[Flag]struct{}

// NewFlagSet builds a set from the given flags.
func NewFlagSet(flags ...Flag) FlagSet {
	s := make(FlagSet, len(flags))
	for _, f := range flags {
		s.Add(f)
	}
	return s
}

// ParseFlags parses a comma-joined list of flag names, normalizing each
// entry. Empty entries are skipped.
func ParseFlags(raw string) FlagSet {
	s := make(FlagSet)
	for _, part := range strings.Split(raw, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		s.Add(NormalizeFlag(part))
	}
	return s
}

func (s FlagSet) Has(f Flag) bool {
	_, ok := s[f]
	return ok
}

func (s FlagSet) Add(f Flag) {
	s[f] = struct{}{}
}

func (s FlagSet) Remove(f Flag) {
	delete(s, f)
}

// Clone returns an independent copy of the set.
func (s FlagSet) Clone() FlagSet {
	c := make(FlagSet, len(s))
	for f := range s {
		c[f] = struct{}{}
	}
	return c
}

// Equal reports whether both sets contain exactly the same flags.
func (s FlagSet) Equal(other FlagSet) bool {
	if len(s) != len(other) {
		return false
	}
	for f := range s {
		if !other.Has(f) {
			return false
		}
	}
	return true
}

// Names returns the flag names in sorted order.
func (s FlagSet) Names() []string {
	names := make([]string, 0, len(s))
	for f := range s {
		names = append(names, string(f))
	}
	sort.Strings(names)
	return names
}

// String renders the set as a comma-joined, sorted list of names. The
// output round-trips through ParseFlags.
func (s FlagSet) String() string {
	return strings.Join(s.Names(), ",")
}
