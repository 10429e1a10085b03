package cache

// migration holds a single schema migration with its target version.
type migration struct {
	version int
	sql     string
}

// One row per (side, folder, hash): the last-reconciled envelope of one
// logical message as seen by one side. The local side's account key is
// the account name suffixed with ":cache"; rows for the same hash
// across sides are the same logical message.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS envelopes (
	account     TEXT NOT NULL,
	folder      TEXT NOT NULL,
	hash        TEXT NOT NULL,
	internal_id TEXT NOT NULL,
	flags       TEXT NOT NULL DEFAULT '',
	message_id  TEXT NOT NULL DEFAULT '',
	sender      TEXT NOT NULL DEFAULT '',
	subject     TEXT NOT NULL DEFAULT '',
	date        TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (account, folder, hash)
);

CREATE INDEX IF NOT EXISTS idx_envelopes_hash ON envelopes(hash);
CREATE INDEX IF NOT EXISTS idx_envelopes_account_folder ON envelopes(account, folder);
`,
	},
}
