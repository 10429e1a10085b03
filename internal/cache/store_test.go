package cache

import (
	"context"
	"path/filepath"
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

func testEnvelope(id, messageID string) types.Envelope {
	return types.Envelope{
		ID:        id,
		Flags:     types.NewFlagSet(types.FlagSeen),
		MessageID: messageID,
		Sender:    "alice@localhost",
		Subject:   "hello",
		Date:      time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestOpenCreatesStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "account.sqlite")

	c, err := Open(path, testLogger())
	require.NoError(t, err)
	defer c.Close()

	rows, err := c.ListFolder(context.Background(), "account", "INBOX")
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestUpsertReplacesRow(t *testing.T) {
	c, err := Open(filepath.Join(t.TempDir(), "account.sqlite"), testLogger())
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	env := testEnvelope("42", "<a@localhost>")
	row := NewRow("account", "INBOX", env)
	require.NoError(t, c.Upsert(ctx, row))

	// Same (account, folder, hash) with new flags replaces, not
	// duplicates.
	env.Flags = types.NewFlagSet(types.FlagSeen, types.FlagFlagged)
	require.NoError(t, c.Upsert(ctx, NewRow("account", "INBOX", env)))

	rows, err := c.ListFolder(ctx, "account", "INBOX")
	require.NoError(t, err)
	require.Len(t, rows, 1)

	got := rows[env.ContentHash()]
	require.Equal(t, "flagged,seen", got.Flags)
	require.Equal(t, "42", got.InternalID)
}

func TestLocalAndRemoteSidesAreDistinct(t *testing.T) {
	c, err := Open(filepath.Join(t.TempDir(), "account.sqlite"), testLogger())
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	env := testEnvelope("42", "<a@localhost>")
	require.NoError(t, c.Upsert(ctx, NewRow("account", "INBOX", env)))

	localEnv := env
	localEnv.ID = "some-uuid"
	require.NoError(t, c.Upsert(ctx, NewRow(LocalKey("account"), "INBOX", localEnv)))

	remoteRows, err := c.ListFolder(ctx, "account", "INBOX")
	require.NoError(t, err)
	localRows, err := c.ListFolder(ctx, LocalKey("account"), "INBOX")
	require.NoError(t, err)

	require.Len(t, remoteRows, 1)
	require.Len(t, localRows, 1)

	// Same hash groups both sides; the internal ids differ.
	hash := env.ContentHash()
	require.Equal(t, "42", remoteRows[hash].InternalID)
	require.Equal(t, "some-uuid", localRows[hash].InternalID)
}

func TestDelete(t *testing.T) {
	c, err := Open(filepath.Join(t.TempDir(), "account.sqlite"), testLogger())
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	env := testEnvelope("42", "<a@localhost>")
	require.NoError(t, c.Upsert(ctx, NewRow("account", "INBOX", env)))

	require.NoError(t, c.Delete(ctx, "account", "INBOX", env.ContentHash()))
	// Deleting again is a no-op.
	require.NoError(t, c.Delete(ctx, "account", "INBOX", env.ContentHash()))

	rows, err := c.ListFolder(ctx, "account", "INBOX")
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestFindHash(t *testing.T) {
	c, err := Open(filepath.Join(t.TempDir(), "account.sqlite"), testLogger())
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	env := testEnvelope("42", "<a@localhost>")
	require.NoError(t, c.Upsert(ctx, NewRow("account", "INBOX", env)))

	row, ok, err := c.FindHash(ctx, "account", env.ContentHash(), "Archive")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "INBOX", row.Folder)

	// The folder being reconciled is excluded.
	_, ok, err = c.FindHash(ctx, "account", env.ContentHash(), "INBOX")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "account.sqlite")
	ctx := context.Background()
	env := testEnvelope("42", "<a@localhost>")

	c, err := Open(path, testLogger())
	require.NoError(t, err)
	require.NoError(t, c.Upsert(ctx, NewRow("account", "INBOX", env)))
	require.NoError(t, c.Close())

	c, err = Open(path, testLogger())
	require.NoError(t, err)
	defer c.Close()

	rows, err := c.ListFolder(ctx, "account", "INBOX")
	require.NoError(t, err)
	require.Len(t, rows, 1)

	got := rows[env.ContentHash()].Envelope()
	require.Equal(t, env.MessageID, got.MessageID)
	require.True(t, got.Flags.Equal(env.Flags))
	require.True(t, got.Date.Equal(env.Date))
}

func TestRowEnvelopeRoundTrip(t *testing.T) {
	env := testEnvelope("42", "<a@localhost>")
	row := NewRow("account", "INBOX", env)

	got := row.Envelope()
	require.Equal(t, env.ID, got.ID)
	require.Equal(t, env.MessageID, got.MessageID)
	require.Equal(t, env.Sender, got.Sender)
	require.Equal(t, env.Subject, got.Subject)
	require.True(t, env.Flags.Equal(got.Flags))
	require.True(t, env.Date.Equal(got.Date))
	require.Equal(t, env.ContentHash(), got.ContentHash())
}
