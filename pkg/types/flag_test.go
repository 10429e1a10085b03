package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeFlag(t *testing.T) {
	assert.Equal(t, FlagSeen, NormalizeFlag(`\Seen`))
	assert.Equal(t, FlagAnswered, NormalizeFlag(`\Answered`))
	assert.Equal(t, FlagAnswered, NormalizeFlag("Replied"))
	assert.Equal(t, FlagDeleted, NormalizeFlag("trashed"))
	assert.Equal(t, FlagDraft, NormalizeFlag(`\Draft`))
	assert.Equal(t, Flag("junk"), NormalizeFlag("Junk"))
}

func TestParseFlagsRoundTrip(t *testing.T) {
	set := ParseFlags(`seen,\Flagged, draft`)
	assert.True(t, set.Has(FlagSeen))
	assert.True(t, set.Has(FlagFlagged))
	assert.True(t, set.Has(FlagDraft))
	assert.Len(t, set, 3)

	// String output is sorted and parses back to the same set.
	assert.Equal(t, "draft,flagged,seen", set.String())
	assert.True(t, set.Equal(ParseFlags(set.String())))
}

func TestParseFlagsEmpty(t *testing.T) {
	assert.Empty(t, ParseFlags(""))
	assert.Empty(t, ParseFlags(" , ,"))
}

func TestFlagSetEqual(t *testing.T) {
	a := NewFlagSet(FlagSeen, FlagFlagged)
	b := NewFlagSet(FlagFlagged, FlagSeen)
	c := NewFlagSet(FlagSeen)

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.False(t, c.Equal(a))
}

func TestFlagSetCloneIsIndependent(t *testing.T) {
	a := NewFlagSet(FlagSeen)
	b := a.Clone()
	b.Add(FlagFlagged)

	assert.False(t, a.Has(FlagFlagged))
	assert.True(t, b.Has(FlagFlagged))
}

func TestFlagSetAddIsIdempotent(t *testing.T) {
	s := NewFlagSet()
	s.Add(FlagSeen)
	s.Add(FlagSeen)
	assert.Len(t, s, 1)
}
