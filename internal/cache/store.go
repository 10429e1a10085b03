package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/driftmail/driftmail/pkg/types"
)

// Row is the last-reconciled state of one logical message on one side.
type Row struct {
	Account    string `db:"account"`
	Folder     string `db:"folder"`
	Hash       string `db:"hash"`
	InternalID string `db:"internal_id"`
	Flags      string `db:"flags"`
	MessageID  string `db:"message_id"`
	Sender     string `db:"sender"`
	Subject    string `db:"subject"`
	Date       string `db:"date"`
}

// NewRow builds a cache row from a live envelope.
func NewRow(account, folder string, env types.Envelope) Row {
	return Row{
		Account:    account,
		Folder:     folder,
		Hash:       env.ContentHash(),
		InternalID: env.ID,
		Flags:      env.Flags.String(),
		MessageID:  env.MessageID,
		Sender:     env.Sender,
		Subject:    env.Subject,
		Date:       env.Date.UTC().Format(time.RFC3339),
	}
}

// Envelope reconstructs the envelope recorded in the row.
func (r Row) Envelope() types.Envelope {
	env := types.Envelope{
		ID:        r.InternalID,
		Flags:     types.ParseFlags(r.Flags),
		MessageID: r.MessageID,
		Sender:    r.Sender,
		Subject:   r.Subject,
	}
	if t, err := time.Parse(time.RFC3339, r.Date); err == nil {
		env.Date = t
	}
	return env
}

// FlagSet parses the comma-joined flags column.
func (r Row) FlagSet() types.FlagSet {
	return types.ParseFlags(r.Flags)
}

// ListFolder returns every cached row for (account side, folder),
// keyed by content hash, ordered newest first within the map values'
// insertion.
func (c *Cache) ListFolder(ctx context.Context, account, folder string) (map[string]Row, error) {
	var rows []Row
	err := c.db.SelectContext(ctx, &rows, `
		SELECT account, folder, hash, internal_id, flags, message_id, sender, subject, date
		FROM envelopes
		WHERE account = ? AND folder = ?
		ORDER BY date DESC`,
		account, folder)
	if err != nil {
		return nil, fmt.Errorf("listing cached envelopes for %s/%s: %w", account, folder, err)
	}

	byHash := make(map[string]Row, len(rows))
	for _, r := range rows {
		byHash[r.Hash] = r
	}
	return byHash, nil
}

// Upsert atomically replaces the row for (account, folder, hash). A
// failed write leaves the previous row intact.
func (c *Cache) Upsert(ctx context.Context, row Row) error {
	tx, err := c.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning cache transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO envelopes
			(account, folder, hash, internal_id, flags, message_id, sender, subject, date)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		row.Account, row.Folder, row.Hash, row.InternalID, row.Flags,
		row.MessageID, row.Sender, row.Subject, row.Date)
	if err != nil {
		return fmt.Errorf("upserting cache row %s/%s/%s: %w", row.Account, row.Folder, row.Hash, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing cache row %s/%s/%s: %w", row.Account, row.Folder, row.Hash, err)
	}
	return nil
}

// FindHash looks the hash up in any other folder of the same side.
// The sync engine uses it to turn a cross-backend upload into a
// same-backend copy when the content is already there.
func (c *Cache) FindHash(ctx context.Context, account, hash, excludeFolder string) (Row, bool, error) {
	var rows []Row
	err := c.db.SelectContext(ctx, &rows, `
		SELECT account, folder, hash, internal_id, flags, message_id, sender, subject, date
		FROM envelopes
		WHERE account = ? AND hash = ? AND folder != ?
		ORDER BY folder
		LIMIT 1`,
		account, hash, excludeFolder)
	if err != nil {
		return Row{}, false, fmt.Errorf("finding hash %s for %s: %w", hash, account, err)
	}
	if len(rows) == 0 {
		return Row{}, false, nil
	}
	return rows[0], true, nil
}

// Delete removes the row for (account, folder, hash). Deleting a
// missing row is a no-op.
func (c *Cache) Delete(ctx context.Context, account, folder, hash string) error {
	_, err := c.db.ExecContext(ctx,
		"DELETE FROM envelopes WHERE account = ? AND folder = ? AND hash = ?",
		account, folder, hash)
	if err != nil {
		return fmt.Errorf("deleting cache row %s/%s/%s: %w", account, folder, hash, err)
	}
	return nil
}
