package pgx

import (
	"context"
	"embed"
	"errors"
	"fmt"

	"github.com/OFFIS-RIT/newsgraph/internal/util"
	"github.com/OFFIS-RIT/newsgraph/pkg/logger"
	"github.com/OFFIS-RIT/newsgraph/pkg/store"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed migrations/*.sql
var migrations embed.FS

type pgxIConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, optionsAndArgs ...any) (pgxv5.Rows, error)
	QueryRow(ctx context.Context, sql string, optionsAndArgs ...any) pgxv5.Row
	Begin(ctx context.Context) (pgxv5.Tx, error)
}

// GraphCache implements store.GraphCache on PostgreSQL. Topic names are
// unique on lower(name); graphs are unique on their full cache key.
type GraphCache struct {
	conn        pgxIConn
	databaseURL string
	close       func()
}

// NewGraphCacheParams configures a GraphCache. DatabaseURL is only needed for
// running migrations in Init.
type NewGraphCacheParams struct {
	Pool        *pgxpool.Pool
	DatabaseURL string
}

func NewGraphCache(params NewGraphCacheParams) *GraphCache {
	return &GraphCache{
		conn:        params.Pool,
		databaseURL: params.DatabaseURL,
		close:       params.Pool.Close,
	}
}

// NewGraphCacheWithConnection wraps an existing connection or transaction.
// Close is a no-op and Init is unavailable.
func NewGraphCacheWithConnection(conn pgxIConn) *GraphCache {
	return &GraphCache{conn: conn, close: func() {}}
}

// Init applies the embedded migrations. Running it against an up to date
// database is a no-op.
func (c *GraphCache) Init(ctx context.Context) error {
	if c.databaseURL == "" {
		return store.Wrap("run migrations", errors.New("no database url configured"))
	}
	if err := Migrate(c.databaseURL); err != nil {
		return store.Wrap("run migrations", err)
	}
	return nil
}

// Migrate runs all pending migrations against databaseURL.
func Migrate(databaseURL string) error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, databaseURL)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Debug("[Store] Schema up to date")
			return nil
		}
		return fmt.Errorf("failed to migrate: %w", err)
	}

	version, _, _ := m.Version()
	logger.Info("[Store] Applied migrations", "version", version)
	return nil
}

func (c *GraphCache) Lookup(ctx context.Context, key store.CacheKey) (string, bool, error) {
	key = key.Normalize()

	var raw string
	err := c.conn.QueryRow(ctx, lookupSQL, key.Topic, key.Depth, key.Language, key.TimeRange).Scan(&raw)
	if errors.Is(err, pgxv5.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, store.Wrap("lookup graph", err)
	}
	return raw, true, nil
}

func (c *GraphCache) Upsert(ctx context.Context, key store.CacheKey, raw string) error {
	key = key.Normalize()

	tx, err := c.conn.Begin(ctx)
	if err != nil {
		return store.Wrap("begin transaction", err)
	}
	defer tx.Rollback(ctx)

	var topicID int64
	if err := tx.QueryRow(ctx, upsertTopicSQL, util.SanitizeDBText(key.Topic)).Scan(&topicID); err != nil {
		return store.Wrap("register topic", err)
	}

	_, err = tx.Exec(ctx, upsertGraphSQL,
		topicID,
		key.Depth,
		key.Language,
		key.TimeRange,
		util.SanitizeDBText(raw),
	)
	if err != nil {
		return store.Wrap("store graph", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return store.Wrap("commit graph", err)
	}
	return nil
}

func (c *GraphCache) Delete(ctx context.Context, key store.CacheKey) error {
	key = key.Normalize()
	if _, err := c.conn.Exec(ctx, deleteGraphSQL, key.Topic, key.Depth, key.Language, key.TimeRange); err != nil {
		return store.Wrap("delete graph", err)
	}
	return nil
}

func (c *GraphCache) ListTopics(ctx context.Context) ([]store.Topic, error) {
	rows, err := c.conn.Query(ctx, listTopicsSQL)
	if err != nil {
		return nil, store.Wrap("list topics", err)
	}
	topics, err := pgxv5.CollectRows(rows, func(row pgxv5.CollectableRow) (store.Topic, error) {
		var t store.Topic
		err := row.Scan(&t.Name, &t.CreatedAt, &t.Graphs)
		return t, err
	})
	if err != nil {
		return nil, store.Wrap("list topics", err)
	}
	return topics, nil
}

func (c *GraphCache) Close() error {
	c.close()
	return nil
}

const lookupSQL = `
SELECT g.raw_json
FROM graphs g
JOIN topics t ON t.id = g.topic_id
WHERE lower(t.name) = lower($1)
  AND g.depth = $2
  AND g.language = $3
  AND g.time_range = $4;
`

// The no-op update makes RETURNING yield the id of an existing row too.
const upsertTopicSQL = `
INSERT INTO topics (name)
VALUES ($1)
ON CONFLICT (lower(name)) DO UPDATE
SET name = topics.name
RETURNING id;
`

const upsertGraphSQL = `
INSERT INTO graphs (topic_id, depth, language, time_range, raw_json)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (topic_id, depth, language, time_range) DO UPDATE
SET raw_json   = EXCLUDED.raw_json,
    created_at = now();
`

const deleteGraphSQL = `
DELETE FROM graphs g
USING topics t
WHERE t.id = g.topic_id
  AND lower(t.name) = lower($1)
  AND g.depth = $2
  AND g.language = $3
  AND g.time_range = $4;
`

const listTopicsSQL = `
SELECT t.name, t.created_at, COUNT(g.id)::int
FROM topics t
LEFT JOIN graphs g ON g.topic_id = t.id
GROUP BY t.id
ORDER BY lower(t.name);
`
