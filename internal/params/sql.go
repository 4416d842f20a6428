package params

const (
	initSchemaSQL = `
CREATE TABLE IF NOT EXISTS params (
    key        TEXT PRIMARY KEY,
    value      TEXT      NOT NULL,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
)`

	upsertParamSQL = `
INSERT INTO params (
                    key,
                    value,
                    updated_at)
VALUES (?, ?, CURRENT_TIMESTAMP)
ON CONFLICT (key) DO UPDATE SET value      = excluded.value,
                                updated_at = excluded.updated_at`

	selectParamSQL = `
SELECT value
FROM params
WHERE key = ?`

	selectKeysSQL = `
SELECT key
FROM params
ORDER BY key`
)
