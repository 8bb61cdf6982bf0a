package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/OFFIS-RIT/newsgraph/pkg/logger"
	"github.com/OFFIS-RIT/newsgraph/pkg/store"

	_ "modernc.org/sqlite"
)

// GraphCache stores graphs in a local SQLite file. Writes go through a single
// connection, reads through a separate query-only pool.
//
// A GraphCache should be created using Open.
type GraphCache struct {
	readDB  *sql.DB
	writeDB *sql.DB
	now     func() time.Time
}

// Open opens (and creates if needed) the database at path. The schema is not
// touched until Init is called.
func Open(path string) (*GraphCache, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create cache dir: %w", err)
		}
	}

	writeDB, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("failed to open write db: %w", err)
	}
	writeDB.SetMaxOpenConns(1)

	readDB, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=query_only(1)")
	if err != nil {
		writeDB.Close()
		return nil, fmt.Errorf("failed to open read db: %w", err)
	}

	return &GraphCache{readDB: readDB, writeDB: writeDB, now: time.Now}, nil
}

func (c *GraphCache) Init(ctx context.Context) error {
	if _, err := c.writeDB.ExecContext(ctx, schemaSQL); err != nil {
		return store.Wrap("initialize sqlite schema", err)
	}
	if err := c.addTopicKeys(ctx); err != nil {
		return store.Wrap("upgrade topics table", err)
	}
	logger.Debug("[Store] SQLite schema ready")
	return nil
}

// addTopicKeys upgrades topic tables created before name_key existed. SQLite
// only folds ASCII, so the folded key is computed in Go.
func (c *GraphCache) addTopicKeys(ctx context.Context) error {
	var n int
	if err := c.writeDB.QueryRowContext(ctx, hasNameKeySQL).Scan(&n); err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	tx, err := c.writeDB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `ALTER TABLE topics ADD COLUMN name_key TEXT`); err != nil {
		return err
	}

	rows, err := tx.QueryContext(ctx, `SELECT id, name FROM topics`)
	if err != nil {
		return err
	}
	names := map[int64]string{}
	for rows.Next() {
		var (
			id   int64
			name string
		)
		if err := rows.Scan(&id, &name); err != nil {
			rows.Close()
			return err
		}
		names[id] = name
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for id, name := range names {
		folded := store.CacheKey{Topic: name}.TopicKey()
		if _, err := tx.ExecContext(ctx, `UPDATE topics SET name_key = ? WHERE id = ?`, folded, id); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx, `CREATE UNIQUE INDEX IF NOT EXISTS topics_name_key ON topics (name_key)`); err != nil {
		return fmt.Errorf("topics differ only in case: %w", err)
	}

	logger.Info("[Store] Added folded topic keys", "topics", len(names))
	return tx.Commit()
}

func (c *GraphCache) Lookup(ctx context.Context, key store.CacheKey) (string, bool, error) {
	key = key.Normalize()

	var raw string
	err := c.readDB.QueryRowContext(ctx, lookupSQL, key.TopicKey(), key.Depth, key.Language, key.TimeRange).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, store.Wrap("lookup graph", err)
	}
	return raw, true, nil
}

func (c *GraphCache) Upsert(ctx context.Context, key store.CacheKey, raw string) error {
	key = key.Normalize()
	now := c.now().UTC()

	tx, err := c.writeDB.BeginTx(ctx, nil)
	if err != nil {
		return store.Wrap("begin transaction", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, insertTopicSQL, key.Topic, key.TopicKey(), now); err != nil {
		return store.Wrap("register topic", err)
	}

	var topicID int64
	if err := tx.QueryRowContext(ctx, topicIDSQL, key.TopicKey()).Scan(&topicID); err != nil {
		return store.Wrap("resolve topic", err)
	}

	if _, err := tx.ExecContext(ctx, upsertGraphSQL, topicID, key.Depth, key.Language, key.TimeRange, raw, now); err != nil {
		return store.Wrap("store graph", err)
	}

	if err := tx.Commit(); err != nil {
		return store.Wrap("commit graph", err)
	}
	return nil
}

func (c *GraphCache) Delete(ctx context.Context, key store.CacheKey) error {
	key = key.Normalize()
	if _, err := c.writeDB.ExecContext(ctx, deleteGraphSQL, key.TopicKey(), key.Depth, key.Language, key.TimeRange); err != nil {
		return store.Wrap("delete graph", err)
	}
	return nil
}

func (c *GraphCache) ListTopics(ctx context.Context) ([]store.Topic, error) {
	rows, err := c.readDB.QueryContext(ctx, listTopicsSQL)
	if err != nil {
		return nil, store.Wrap("list topics", err)
	}
	defer rows.Close()

	var topics []store.Topic
	for rows.Next() {
		var t store.Topic
		if err := rows.Scan(&t.Name, &t.CreatedAt, &t.Graphs); err != nil {
			return nil, store.Wrap("scan topic", err)
		}
		topics = append(topics, t)
	}
	if err := rows.Err(); err != nil {
		return nil, store.Wrap("list topics", err)
	}
	return topics, nil
}

func (c *GraphCache) Close() error {
	return errors.Join(c.readDB.Close(), c.writeDB.Close())
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS topics (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	name       TEXT NOT NULL,
	name_key   TEXT NOT NULL UNIQUE,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS graphs (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	topic_id   INTEGER NOT NULL REFERENCES topics(id) ON DELETE CASCADE,
	depth      INTEGER NOT NULL,
	language   TEXT NOT NULL,
	time_range TEXT NOT NULL,
	raw_json   TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	UNIQUE (topic_id, depth, language, time_range)
);
`

const lookupSQL = `
SELECT g.raw_json
FROM graphs g
JOIN topics t ON t.id = g.topic_id
WHERE t.name_key = ? AND g.depth = ? AND g.language = ? AND g.time_range = ?
`

const hasNameKeySQL = `SELECT COUNT(*) FROM pragma_table_info('topics') WHERE name = 'name_key'`

const insertTopicSQL = `INSERT OR IGNORE INTO topics (name, name_key, created_at) VALUES (?, ?, ?)`

const topicIDSQL = `SELECT id FROM topics WHERE name_key = ?`

const upsertGraphSQL = `
INSERT INTO graphs (topic_id, depth, language, time_range, raw_json, created_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (topic_id, depth, language, time_range) DO UPDATE
SET raw_json   = excluded.raw_json,
    created_at = excluded.created_at
`

const deleteGraphSQL = `
DELETE FROM graphs
WHERE topic_id IN (SELECT id FROM topics WHERE name_key = ?)
  AND depth = ? AND language = ? AND time_range = ?
`

const listTopicsSQL = `
SELECT t.name, t.created_at, COUNT(g.id)
FROM topics t
LEFT JOIN graphs g ON g.topic_id = t.id
GROUP BY t.id, t.name, t.created_at
ORDER BY t.name_key
`
