// Package durable is the Postgres-backed Backend implementation: the
// system of record for episodes and patterns (spec.md §4.2, §6).
//
// Adapted from the teacher's internal/app/storage/postgres.Store, which
// runs plain SQL over a *sql.DB with JSON-marshaled metadata columns and
// uuid.NewString() ids. This version switches to jmoiron/sqlx for its
// struct-scanning convenience (the teacher itself lists sqlx in go.mod
// without ever importing it; this gives that dependency its first real
// consumer) and stores the episode/pattern bodies as opaque serialized
// blobs rather than fully-normalized columns, since their internal shape
// (steps, rewards, pattern fields) is still evolving and does not need to
// be queryable at the SQL layer — only the indexed columns used by
// QueryEpisodes need to be columns.
package durable

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/r3e-network/agentmemory/internal/domain/episode"
	"github.com/r3e-network/agentmemory/internal/domain/pattern"
	"github.com/r3e-network/agentmemory/internal/memerr"
	"github.com/r3e-network/agentmemory/internal/storage"
	"github.com/r3e-network/agentmemory/internal/storage/pool"
	"github.com/r3e-network/agentmemory/pkg/serialize"
)

// Store implements storage.Backend against PostgreSQL.
type Store struct {
	db *sqlx.DB
	// stmts caches prepared statements for the store's fixed-text hot-path
	// queries (spec.md §4.10). Nil when Store was built via New against a
	// driver that does not support server-side prepare, such as sqlmock in
	// tests; GetEpisode and GetPattern fall back to an unprepared query in
	// that case.
	stmts *pool.StatementCache
}

var _ storage.Backend = (*Store)(nil)

// Open connects to the postgres:// DSN, applies migrations, and returns a
// ready Store. The DSN's scheme is validated by the caller (internal/config)
// per spec.md §6's protocol boundary check.
func Open(ctx context.Context, dsn string, maxConns int, connMaxIdle time.Duration) (*Store, error) {
	sqlDB, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, memerr.Wrap(memerr.Storage, "open postgres connection", err)
	}
	if maxConns > 0 {
		sqlDB.SetMaxOpenConns(maxConns)
		sqlDB.SetMaxIdleConns(maxConns)
	}
	if connMaxIdle > 0 {
		sqlDB.SetConnMaxIdleTime(connMaxIdle)
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, memerr.Wrap(memerr.Storage, "ping postgres", err)
	}
	if err := Migrate(sqlDB); err != nil {
		return nil, err
	}

	stmts, err := pool.NewStatementCache(sqlDB, 128)
	if err != nil {
		return nil, memerr.Wrap(memerr.Storage, "create prepared statement cache", err)
	}

	return &Store{db: sqlx.NewDb(sqlDB, "postgres"), stmts: stmts}, nil
}

// New wraps an already-open sqlx.DB, for tests using sqlmock.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Name() string { return "durable" }

func (s *Store) Close() error {
	if s.stmts != nil {
		s.stmts.Close()
	}
	return s.db.Close()
}

type episodeRow struct {
	ID           string    `db:"id"`
	TaskType     string    `db:"task_type"`
	Domain       string    `db:"domain"`
	StartTime    time.Time `db:"start_time"`
	Body         []byte    `db:"body"`
	BodyCompress bool      `db:"body_compressed"`
}

// preparedEpisode stages an episode insert inside a transaction. Commit
// finalizes it; Rollback aborts the transaction without writing anything.
type preparedEpisode struct {
	tx *sqlx.Tx
	ep *episode.Episode
}

func (p *preparedEpisode) Commit(_ context.Context) error {
	if err := p.tx.Commit(); err != nil {
		return memerr.Wrap(memerr.Storage, "commit episode transaction", err)
	}
	return nil
}

func (p *preparedEpisode) Rollback(_ context.Context) error {
	if err := p.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return memerr.Wrap(memerr.Storage, "rollback episode transaction", err)
	}
	return nil
}

func (s *Store) PrepareStoreEpisode(ctx context.Context, ep *episode.Episode) (storage.PreparedWrite, error) {
	body, compressed, err := serialize.EncodeEpisode(ep)
	if err != nil {
		return nil, memerr.Wrap(memerr.Serialization, "encode episode", err)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, memerr.Wrap(memerr.Storage, "begin episode transaction", err)
	}

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO episodes (id, task_type, task_description, domain, language, framework, complexity, tags, start_time, end_time, body, body_compressed, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $13)
		ON CONFLICT (id) DO UPDATE SET
			end_time = EXCLUDED.end_time,
			body = EXCLUDED.body,
			body_compressed = EXCLUDED.body_compressed,
			updated_at = EXCLUDED.updated_at
	`,
		ep.EpisodeID, ep.TaskType, ep.TaskDescription, ep.Context.Domain, ep.Context.Language,
		ep.Context.Framework, string(ep.Context.Complexity), pq.Array(ep.Context.Tags),
		ep.StartTime, ep.EndTime, body, compressed, now,
	)
	if err != nil {
		_ = tx.Rollback()
		return nil, memerr.Wrap(memerr.Storage, "insert episode", err)
	}

	return &preparedEpisode{tx: tx, ep: ep}, nil
}

const getEpisodeQuery = `SELECT id, task_type, domain, start_time, body, body_compressed FROM episodes WHERE id = $1`

func (s *Store) GetEpisode(ctx context.Context, id string) (*episode.Episode, error) {
	var row episodeRow
	var err error
	if s.stmts != nil {
		err = s.getEpisodeViaCache(ctx, id, &row)
	} else {
		err = s.db.GetContext(ctx, &row, getEpisodeQuery, id)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return nil, memerr.New(memerr.NotFound, "episode not found").WithDetails("episode_id", id)
	}
	if err != nil {
		return nil, memerr.Wrap(memerr.Storage, "get episode", err)
	}

	ep, err := serialize.DecodeEpisode(row.Body, row.BodyCompress)
	if err != nil {
		return nil, memerr.Wrap(memerr.Serialization, "decode episode", err)
	}
	return ep, nil
}

// getEpisodeViaCache runs getEpisodeQuery through the store's prepared
// statement cache instead of sqlx's own ad hoc prepare-per-call.
func (s *Store) getEpisodeViaCache(ctx context.Context, id string, row *episodeRow) error {
	stmt, err := s.stmts.Prepare(ctx, getEpisodeQuery)
	if err != nil {
		return err
	}
	return stmt.QueryRowContext(ctx, id).Scan(&row.ID, &row.TaskType, &row.Domain, &row.StartTime, &row.Body, &row.BodyCompress)
}

func (s *Store) DeleteEpisode(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM episodes WHERE id = $1`, id)
	if err != nil {
		return memerr.Wrap(memerr.Storage, "delete episode", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return memerr.New(memerr.NotFound, "episode not found").WithDetails("episode_id", id)
	}
	return nil
}

func (s *Store) CountEpisodes(ctx context.Context) (int, error) {
	var count int
	if err := s.db.GetContext(ctx, &count, `SELECT count(*) FROM episodes`); err != nil {
		return 0, memerr.Wrap(memerr.Storage, "count episodes", err)
	}
	return count, nil
}

func (s *Store) ListEpisodesForEviction(ctx context.Context) ([]*episode.Episode, error) {
	return s.queryEpisodes(ctx, storage.QueryFilter{})
}

func (s *Store) QueryEpisodes(ctx context.Context, filter storage.QueryFilter) ([]*episode.Episode, error) {
	return s.queryEpisodes(ctx, filter)
}

func (s *Store) queryEpisodes(ctx context.Context, filter storage.QueryFilter) ([]*episode.Episode, error) {
	query := s.db.Rebind(buildQuery(filter))

	rows, err := s.db.QueryxContext(ctx, query, buildArgs(filter)...)
	if err != nil {
		return nil, memerr.Wrap(memerr.Storage, "query episodes", err)
	}
	defer rows.Close()

	var out []*episode.Episode
	for rows.Next() {
		var row episodeRow
		if err := rows.StructScan(&row); err != nil {
			return nil, memerr.Wrap(memerr.Storage, "scan episode row", err)
		}
		ep, err := serialize.DecodeEpisode(row.Body, row.BodyCompress)
		if err != nil {
			return nil, memerr.Wrap(memerr.Serialization, "decode episode", err)
		}
		out = append(out, ep)
	}
	return out, rows.Err()
}

// buildQuery and buildArgs construct the filtered SELECT together so the
// positional $N placeholders in the SQL text always line up with args,
// regardless of which optional predicates are present.
func buildQuery(filter storage.QueryFilter) string {
	query := `SELECT id, task_type, domain, start_time, body, body_compressed FROM episodes WHERE 1=1`
	n := 0
	next := func() string { n++; return "?" }

	if filter.Domain != "" {
		query += ` AND domain = ` + next()
	}
	if filter.TaskType != "" {
		query += ` AND task_type = ` + next()
	}
	if filter.Start != nil {
		query += ` AND start_time >= ` + next()
	}
	if filter.End != nil {
		query += ` AND start_time <= ` + next()
	}
	query += ` ORDER BY start_time DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ` + next()
	}
	return query
}

func buildArgs(filter storage.QueryFilter) []any {
	var args []any
	if filter.Domain != "" {
		args = append(args, filter.Domain)
	}
	if filter.TaskType != "" {
		args = append(args, filter.TaskType)
	}
	if filter.Start != nil {
		args = append(args, *filter.Start)
	}
	if filter.End != nil {
		args = append(args, *filter.End)
	}
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
	}
	return args
}

type patternRow struct {
	ID    string `db:"id"`
	Body  []byte `db:"body"`
}

type preparedPattern struct {
	tx *sqlx.Tx
}

func (p *preparedPattern) Commit(_ context.Context) error {
	if err := p.tx.Commit(); err != nil {
		return memerr.Wrap(memerr.Storage, "commit pattern transaction", err)
	}
	return nil
}

func (p *preparedPattern) Rollback(_ context.Context) error {
	if err := p.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return memerr.Wrap(memerr.Storage, "rollback pattern transaction", err)
	}
	return nil
}

func (s *Store) PrepareStorePattern(ctx context.Context, p *pattern.Pattern) (storage.PreparedWrite, error) {
	body, err := serialize.EncodePattern(p)
	if err != nil {
		return nil, memerr.Wrap(memerr.Serialization, "encode pattern", err)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, memerr.Wrap(memerr.Storage, "begin pattern transaction", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO patterns (id, variant, confidence, usage_count, success_count, body, created_at, last_used_at)
		VALUES ($1, $2, $3, $4, $5, $6, now(), $7)
		ON CONFLICT (id) DO UPDATE SET
			confidence = EXCLUDED.confidence,
			usage_count = EXCLUDED.usage_count,
			success_count = EXCLUDED.success_count,
			body = EXCLUDED.body,
			last_used_at = EXCLUDED.last_used_at
	`, p.PatternID, string(p.Variant), p.Confidence, p.UsageCount, p.SuccessCount, body, p.LastUsedAt)
	if err != nil {
		_ = tx.Rollback()
		return nil, memerr.Wrap(memerr.Storage, "insert pattern", err)
	}

	return &preparedPattern{tx: tx}, nil
}

const getPatternQuery = `SELECT id, body FROM patterns WHERE id = $1`

func (s *Store) GetPattern(ctx context.Context, id string) (*pattern.Pattern, error) {
	var row patternRow
	var err error
	if s.stmts != nil {
		stmt, prepErr := s.stmts.Prepare(ctx, getPatternQuery)
		if prepErr != nil {
			return nil, memerr.Wrap(memerr.Storage, "prepare get pattern", prepErr)
		}
		err = stmt.QueryRowContext(ctx, id).Scan(&row.ID, &row.Body)
	} else {
		err = s.db.GetContext(ctx, &row, getPatternQuery, id)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return nil, memerr.New(memerr.NotFound, "pattern not found").WithDetails("pattern_id", id)
	}
	if err != nil {
		return nil, memerr.Wrap(memerr.Storage, "get pattern", err)
	}
	return serialize.DecodePattern(row.Body)
}

func (s *Store) DeletePattern(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM patterns WHERE id = $1`, id)
	if err != nil {
		return memerr.Wrap(memerr.Storage, "delete pattern", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return memerr.New(memerr.NotFound, "pattern not found").WithDetails("pattern_id", id)
	}
	return nil
}

func (s *Store) QueryPatterns(ctx context.Context, filter storage.PatternFilter) ([]*pattern.Pattern, error) {
	query := `SELECT id, body FROM patterns WHERE 1=1`
	var args []any
	n := 0
	next := func() string { n++; return "?" }

	if filter.Variant != "" {
		query += ` AND variant = ` + next()
		args = append(args, string(filter.Variant))
	}
	if filter.MinConfidence > 0 {
		query += ` AND confidence >= ` + next()
		args = append(args, filter.MinConfidence)
	}
	query += ` ORDER BY confidence DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ` + next()
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryxContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return nil, memerr.Wrap(memerr.Storage, "query patterns", err)
	}
	defer rows.Close()

	var out []*pattern.Pattern
	for rows.Next() {
		var row patternRow
		if err := rows.StructScan(&row); err != nil {
			return nil, memerr.Wrap(memerr.Storage, "scan pattern row", err)
		}
		p, err := serialize.DecodePattern(row.Body)
		if err != nil {
			return nil, memerr.Wrap(memerr.Serialization, "decode pattern", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
