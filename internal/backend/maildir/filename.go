package maildir

import (
	"sort"
	"strings"

	"github.com/driftmail/driftmail/pkg/types"
)

// Maildir encodes flags in the filename after a ":2," marker, e.g.
// "<id>:2,FS". The id part is stable across flag renames.
const infoMarker = ":2,"

var flagChars = map[byte]types.Flag{
	'S': types.FlagSeen,
	'R': types.FlagAnswered,
	'F': types.FlagFlagged,
	'T': types.FlagDeleted,
	'D': types.FlagDraft,
}

var charFlags = map[types.Flag]byte{
	types.FlagSeen:     'S',
	types.FlagAnswered: 'R',
	types.FlagFlagged:  'F',
	types.FlagDeleted:  'T',
	types.FlagDraft:    'D',
}

// parseName splits a maildir filename into message id and flag set.
// Flag chars outside the standard vocabulary are ignored.
func parseName(name string) (string, types.FlagSet) {
	flags := types.NewFlagSet()

	idx := strings.Index(name, infoMarker)
	if idx < 0 {
		return name, flags
	}

	for i := idx + len(infoMarker); i < len(name); i++ {
		if f, ok := flagChars[name[i]]; ok {
			flags.Add(f)
		}
	}
	return name[:idx], flags
}

// formatName renders a filename for the id with the given flags. Only
// flags with a maildir char are encoded; custom flags are not
// representable on disk and are dropped.
func formatName(id string, flags types.FlagSet) string {
	var chars []byte
	for f, c := range charFlags {
		if flags.Has(f) {
			chars = append(chars, c)
		}
	}
	sort.Slice(chars, func(i, j int) bool { return chars[i] < chars[j] })
	return id + infoMarker + string(chars)
}
