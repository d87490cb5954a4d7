package store

// migration represents a single schema migration.
type migration struct {
	Version int
	Name    string
	SQL     string
}

// migrations is the ordered list of all schema migrations.
var migrations = []migration{
	{
		Version: 1,
		Name:    "create model cache",
		SQL: `
			CREATE TABLE model_cache (
				provider    TEXT PRIMARY KEY,
				models      TEXT NOT NULL,
				fetched_on  TEXT NOT NULL,
				updated_at  TEXT NOT NULL DEFAULT (datetime('now'))
			);
		`,
	},
}
