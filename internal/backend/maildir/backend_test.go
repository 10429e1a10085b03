package maildir

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/driftmail/driftmail/pkg/types"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	return logger
}

func rawMessage(id, subject string, date time.Time) []byte {
	return []byte(fmt.Sprintf(
		"Message-Id: <%s@localhost>\r\nFrom: alice@localhost\r\nTo: bob@localhost\r\nSubject: %s\r\nDate: %s\r\n\r\n%s\r\n",
		id, subject, date.Format(time.RFC1123Z), subject))
}

func newTestBackend(t *testing.T) *Backend {
	b, err := New(t.TempDir(), testLogger())
	require.NoError(t, err)
	return b
}

func TestAddAndListEnvelopes(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)
	require.NoError(t, b.AddFolder(ctx, "INBOX"))

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i, subject := range []string{"A", "B", "C"} {
		_, err := b.AddMessage(ctx, "INBOX", rawMessage(subject, subject, base.Add(time.Duration(i)*time.Second)), types.NewFlagSet())
		require.NoError(t, err)
	}

	envelopes, err := b.ListEnvelopes(ctx, "INBOX", 0, 0)
	require.NoError(t, err)
	require.Len(t, envelopes, 3)

	// Newest first.
	require.Equal(t, "C", envelopes[0].Subject)
	require.Equal(t, "B", envelopes[1].Subject)
	require.Equal(t, "A", envelopes[2].Subject)
	require.Equal(t, "alice@localhost", envelopes[0].Sender)
	require.Equal(t, "<C@localhost>", envelopes[0].MessageID)
}

func TestListEnvelopesPaging(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)
	require.NoError(t, b.AddFolder(ctx, "INBOX"))

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		subject := fmt.Sprintf("m%d", i)
		_, err := b.AddMessage(ctx, "INBOX", rawMessage(subject, subject, base.Add(time.Duration(i)*time.Second)), types.NewFlagSet())
		require.NoError(t, err)
	}

	page0, err := b.ListEnvelopes(ctx, "INBOX", 0, 2)
	require.NoError(t, err)
	require.Len(t, page0, 2)
	require.Equal(t, "m4", page0[0].Subject)
	require.Equal(t, "m3", page0[1].Subject)

	page2, err := b.ListEnvelopes(ctx, "INBOX", 2, 2)
	require.NoError(t, err)
	require.Len(t, page2, 1)
	require.Equal(t, "m0", page2[0].Subject)

	empty, err := b.ListEnvelopes(ctx, "INBOX", 3, 2)
	require.NoError(t, err)
	require.Empty(t, empty)
}

func TestFlagsSurviveReopen(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()

	b, err := New(root, testLogger())
	require.NoError(t, err)
	require.NoError(t, b.AddFolder(ctx, "INBOX"))

	id, err := b.AddMessage(ctx, "INBOX", rawMessage("a", "A", time.Now()), types.NewFlagSet(types.FlagSeen))
	require.NoError(t, err)
	require.NoError(t, b.SetFlags(ctx, "INBOX", id, types.NewFlagSet(types.FlagSeen, types.FlagFlagged)))

	// A fresh backend over the same tree recovers everything from
	// the filenames alone.
	reopened, err := New(root, testLogger())
	require.NoError(t, err)

	envelopes, err := reopened.ListEnvelopes(ctx, "INBOX", 0, 0)
	require.NoError(t, err)
	require.Len(t, envelopes, 1)
	require.Equal(t, id, envelopes[0].ID)
	require.True(t, envelopes[0].Flags.Equal(types.NewFlagSet(types.FlagSeen, types.FlagFlagged)))
}

func TestSetFlagsKeepsID(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)
	require.NoError(t, b.AddFolder(ctx, "INBOX"))

	id, err := b.AddMessage(ctx, "INBOX", rawMessage("a", "A", time.Now()), types.NewFlagSet())
	require.NoError(t, err)

	require.NoError(t, b.SetFlags(ctx, "INBOX", id, types.NewFlagSet(types.FlagSeen)))
	require.NoError(t, b.SetFlags(ctx, "INBOX", id, types.NewFlagSet(types.FlagSeen)))

	envelopes, err := b.ListEnvelopes(ctx, "INBOX", 0, 0)
	require.NoError(t, err)
	require.Len(t, envelopes, 1)
	require.Equal(t, id, envelopes[0].ID)
}

func TestGetMessages(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)
	require.NoError(t, b.AddFolder(ctx, "INBOX"))

	raw := rawMessage("a", "A", time.Now())
	id, err := b.AddMessage(ctx, "INBOX", raw, types.NewFlagSet())
	require.NoError(t, err)

	messages, err := b.GetMessages(ctx, "INBOX", []string{id})
	require.NoError(t, err)
	require.Len(t, messages, 1)
	require.Equal(t, raw, messages[0].Raw)
	require.Equal(t, id, messages[0].ID)
}

func TestCopyMessage(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)
	require.NoError(t, b.AddFolder(ctx, "INBOX"))
	require.NoError(t, b.AddFolder(ctx, "Archive"))

	id, err := b.AddMessage(ctx, "INBOX", rawMessage("a", "A", time.Now()), types.NewFlagSet(types.FlagSeen))
	require.NoError(t, err)
	require.NoError(t, b.CopyMessage(ctx, "INBOX", "Archive", id))

	src, err := b.ListEnvelopes(ctx, "INBOX", 0, 0)
	require.NoError(t, err)
	dst, err := b.ListEnvelopes(ctx, "Archive", 0, 0)
	require.NoError(t, err)

	require.Len(t, src, 1)
	require.Len(t, dst, 1)
	// The copy got a fresh id but kept content and flags.
	require.NotEqual(t, src[0].ID, dst[0].ID)
	require.Equal(t, src[0].ContentHash(), dst[0].ContentHash())
	require.True(t, dst[0].Flags.Equal(types.NewFlagSet(types.FlagSeen)))
}

func TestMoveMessage(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)
	require.NoError(t, b.AddFolder(ctx, "INBOX"))
	require.NoError(t, b.AddFolder(ctx, "Archive"))

	id, err := b.AddMessage(ctx, "INBOX", rawMessage("a", "A", time.Now()), types.NewFlagSet())
	require.NoError(t, err)
	require.NoError(t, b.MoveMessage(ctx, "INBOX", "Archive", id))

	src, err := b.ListEnvelopes(ctx, "INBOX", 0, 0)
	require.NoError(t, err)
	dst, err := b.ListEnvelopes(ctx, "Archive", 0, 0)
	require.NoError(t, err)

	require.Empty(t, src)
	require.Len(t, dst, 1)
	require.Equal(t, id, dst[0].ID)
}

func TestDeleteMessage(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)
	require.NoError(t, b.AddFolder(ctx, "INBOX"))

	id, err := b.AddMessage(ctx, "INBOX", rawMessage("a", "A", time.Now()), types.NewFlagSet())
	require.NoError(t, err)
	require.NoError(t, b.DeleteMessage(ctx, "INBOX", id))

	envelopes, err := b.ListEnvelopes(ctx, "INBOX", 0, 0)
	require.NoError(t, err)
	require.Empty(t, envelopes)

	err = b.DeleteMessage(ctx, "INBOX", id)
	require.Error(t, err)
}

func TestPurgeFolder(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)
	require.NoError(t, b.AddFolder(ctx, "INBOX"))

	for _, subject := range []string{"A", "B"} {
		_, err := b.AddMessage(ctx, "INBOX", rawMessage(subject, subject, time.Now()), types.NewFlagSet())
		require.NoError(t, err)
	}
	require.NoError(t, b.PurgeFolder(ctx, "INBOX"))

	envelopes, err := b.ListEnvelopes(ctx, "INBOX", 0, 0)
	require.NoError(t, err)
	require.Empty(t, envelopes)

	folders, err := b.ListFolders(ctx)
	require.NoError(t, err)
	require.Len(t, folders, 1)
}

func TestFolderNameEscaping(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)

	name := "[Gmail]/All Mail"
	require.NoError(t, b.AddFolder(ctx, name))

	folders, err := b.ListFolders(ctx)
	require.NoError(t, err)
	require.Len(t, folders, 1)
	require.Equal(t, name, folders[0].Name)

	_, err = b.AddMessage(ctx, name, rawMessage("a", "A", time.Now()), types.NewFlagSet())
	require.NoError(t, err)
}

func TestParseFormatName(t *testing.T) {
	flags := types.NewFlagSet(types.FlagSeen, types.FlagFlagged)
	name := formatName("some-uuid", flags)
	require.Equal(t, "some-uuid:2,FS", name)

	id, parsed := parseName(name)
	require.Equal(t, "some-uuid", id)
	require.True(t, parsed.Equal(flags))

	id, parsed = parseName("bare-name")
	require.Equal(t, "bare-name", id)
	require.Empty(t, parsed)
}
