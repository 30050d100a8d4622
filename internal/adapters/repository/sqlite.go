package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/neighbourhoods/nh-tray/internal/domain/model"
	"github.com/neighbourhoods/nh-tray/pkg/logger"
	"github.com/neighbourhoods/nh-tray/pkg/metrics"

	_ "modernc.org/sqlite"
)

const backendSQLite = "sqlite"

// SQLiteStore is a Store persisted in SQLite. Entries are stored as CBOR
// blobs next to the columns queries filter on.
type SQLiteStore struct {
	settings
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLite opens (or creates) the database at path and migrates it.
// ":memory:" gives a private in-memory database.
func OpenSQLite(path string, opts ...Option) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrBackend, path, err)
	}
	// One connection: every pooled connection to ":memory:" would otherwise
	// see its own empty database, and SQLite serializes writers anyway.
	db.SetMaxOpenConns(1)
	s, err := NewSQLiteStore(db, opts...)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLiteStore wraps an open database and migrates it.
func NewSQLiteStore(db *sql.DB, opts ...Option) (*SQLiteStore, error) {
	s := &SQLiteStore{settings: defaultSettings(), db: db}
	for _, opt := range opts {
		opt(&s.settings)
	}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("%w: migrate: %w", ErrBackend, err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS dimensions (
		entry_hash  TEXT PRIMARY KEY,
		action_hash TEXT NOT NULL,
		body        BLOB NOT NULL
	);
	CREATE TABLE IF NOT EXISTS methods (
		seq         INTEGER PRIMARY KEY AUTOINCREMENT,
		entry_hash  TEXT NOT NULL UNIQUE,
		action_hash TEXT NOT NULL,
		body        BLOB NOT NULL
	);
	CREATE TABLE IF NOT EXISTS assessments (
		seq          INTEGER PRIMARY KEY AUTOINCREMENT,
		action_hash  TEXT NOT NULL,
		entry_hash   TEXT NOT NULL,
		resource_eh  TEXT NOT NULL,
		dimension_eh TEXT NOT NULL,
		author       TEXT NOT NULL,
		timestamp    INTEGER NOT NULL,
		body         BLOB NOT NULL
	);
	CREATE INDEX IF NOT EXISTS assessments_resource ON assessments (resource_eh, dimension_eh);`
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}

// Agent returns the store's agent.
func (s *SQLiteStore) Agent() model.AgentPubKey { return s.agent }

func (s *SQLiteStore) fail(op string, err error) error {
	metrics.RecordStoreError(backendSQLite, op)
	return fmt.Errorf("%w: %s: %w", ErrBackend, op, err)
}

// GetAssessmentsForResources returns assessments matching q.
func (s *SQLiteStore) GetAssessmentsForResources(ctx context.Context, q model.Query) (map[model.EntryHash][]model.Assessment, error) {
	defer observe(backendSQLite, "get_assessments", time.Now())
	return s.query(ctx, "get_assessments", q, nil)
}

// GetMyAssessmentsForResources returns the agent's assessments matching q.
func (s *SQLiteStore) GetMyAssessmentsForResources(ctx context.Context, q model.Query) (map[model.EntryHash][]model.Assessment, error) {
	defer observe(backendSQLite, "get_my_assessments", time.Now())
	return s.query(ctx, "get_my_assessments", q, &s.agent)
}

func inClause(column string, hashes []model.EntryHash, args []any) (string, []any) {
	marks := make([]string, len(hashes))
	for i, h := range hashes {
		marks[i] = "?"
		args = append(args, h.String())
	}
	return column + " IN (" + strings.Join(marks, ",") + ")", args
}

func (s *SQLiteStore) query(ctx context.Context, op string, q model.Query, author *model.AgentPubKey) (map[model.EntryHash][]model.Assessment, error) {
	var (
		where []string
		args  []any
		cond  string
	)
	if len(q.ResourceEhs) > 0 {
		cond, args = inClause("resource_eh", q.ResourceEhs, args)
		where = append(where, cond)
	}
	if len(q.DimensionEhs) > 0 {
		cond, args = inClause("dimension_eh", q.DimensionEhs, args)
		where = append(where, cond)
	}
	if author != nil {
		where = append(where, "author = ?")
		args = append(args, author.String())
	}
	query := "SELECT body FROM assessments"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY seq"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, s.fail(op, err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[model.EntryHash][]model.Assessment)
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, s.fail(op, err)
		}
		var a model.Assessment
		if err := cbor.Unmarshal(body, &a); err != nil {
			return nil, s.fail(op, err)
		}
		out[a.ResourceEh] = append(out[a.ResourceEh], a)
	}
	if err := rows.Err(); err != nil {
		return nil, s.fail(op, err)
	}
	return out, nil
}

// CreateAssessment validates and inserts an assessment.
func (s *SQLiteStore) CreateAssessment(ctx context.Context, in model.CreateAssessmentInput) (model.Record[model.Assessment], error) {
	defer observe(backendSQLite, "create_assessment", time.Now())

	var dim *model.Dimension
	d, err := s.GetDimension(ctx, in.DimensionEh)
	switch {
	case err == nil:
		dim = &d
	case !errors.Is(err, ErrNotFound):
		return model.Record[model.Assessment]{}, err
	}

	rec, err := buildAssessment(&s.settings, in, dim)
	if err != nil {
		metrics.RecordStoreError(backendSQLite, "create_assessment")
		return rec, err
	}
	body, err := cbor.Marshal(rec.Entry)
	if err != nil {
		return model.Record[model.Assessment]{}, s.fail("create_assessment", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO assessments (
		action_hash, entry_hash, resource_eh, dimension_eh, author, timestamp, body
	) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ActionHash.String(), rec.EntryHash.String(), in.ResourceEh.String(), in.DimensionEh.String(),
		rec.Entry.Author.String(), rec.Entry.Timestamp, body,
	)
	if err != nil {
		return model.Record[model.Assessment]{}, s.fail("create_assessment", err)
	}
	metrics.RecordAssessmentCreated(dimensionLabel(dim))
	s.logger.Debug(ctx, "assessment stored",
		logger.String("resource", in.ResourceEh.Short()),
		logger.String("dimension", dimensionLabel(dim)),
		logger.Stringer("value", in.Value),
	)
	return rec, nil
}

// CreateDimension stores d. Creating an identical dimension again returns
// the existing record.
func (s *SQLiteStore) CreateDimension(ctx context.Context, d model.Dimension) (model.Record[model.Dimension], error) {
	if err := d.Validate(); err != nil {
		return model.Record[model.Dimension]{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	eh, err := model.HashEntry(model.KindDimension, d)
	if err != nil {
		return model.Record[model.Dimension]{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	return insertEntry(ctx, s, "dimensions", eh, d)
}

// CreateMethod stores m. Creating an identical method again returns the
// existing record.
func (s *SQLiteStore) CreateMethod(ctx context.Context, m model.Method) (model.Record[model.Method], error) {
	if err := m.Validate(); err != nil {
		return model.Record[model.Method]{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	eh, err := model.HashEntry(model.KindMethod, m)
	if err != nil {
		return model.Record[model.Method]{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	return insertEntry(ctx, s, "methods", eh, m)
}

// insertEntry writes a catalog entry unless it already exists, returning the
// stored record either way.
func insertEntry[T any](ctx context.Context, s *SQLiteStore, table string, eh model.EntryHash, entry T) (model.Record[T], error) {
	op := "create_" + strings.TrimSuffix(table, "s")
	existing, err := getEntry[T](ctx, s, table, eh)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return model.Record[T]{}, err
	}

	body, err := cbor.Marshal(entry)
	if err != nil {
		return model.Record[T]{}, s.fail(op, err)
	}
	rec := model.Record[T]{ActionHash: model.NewActionHash(eh), EntryHash: eh, Entry: entry}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO "+table+" (entry_hash, action_hash, body) VALUES (?, ?, ?)",
		eh.String(), rec.ActionHash.String(), body,
	)
	if err != nil {
		return model.Record[T]{}, s.fail(op, err)
	}
	return rec, nil
}

func getEntry[T any](ctx context.Context, s *SQLiteStore, table string, eh model.EntryHash) (model.Record[T], error) {
	op := "get_" + strings.TrimSuffix(table, "s")
	var (
		action string
		body   []byte
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT action_hash, body FROM "+table+" WHERE entry_hash = ?", eh.String(),
	).Scan(&action, &body)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Record[T]{}, fmt.Errorf("%w: %s %s", ErrNotFound, strings.TrimSuffix(table, "s"), eh.Short())
	}
	if err != nil {
		return model.Record[T]{}, s.fail(op, err)
	}
	return decodeRecord[T](s, op, eh, action, body)
}

func decodeRecord[T any](s *SQLiteStore, op string, eh model.EntryHash, action string, body []byte) (model.Record[T], error) {
	ah, err := model.ParseHash(action)
	if err != nil {
		return model.Record[T]{}, s.fail(op, err)
	}
	var entry T
	if err := cbor.Unmarshal(body, &entry); err != nil {
		return model.Record[T]{}, s.fail(op, err)
	}
	return model.Record[T]{ActionHash: ah, EntryHash: eh, Entry: entry}, nil
}

// GetDimension returns a dimension by entry hash.
func (s *SQLiteStore) GetDimension(ctx context.Context, eh model.EntryHash) (model.Dimension, error) {
	rec, err := getEntry[model.Dimension](ctx, s, "dimensions", eh)
	return rec.Entry, err
}

// GetMethod returns a method by entry hash.
func (s *SQLiteStore) GetMethod(ctx context.Context, eh model.EntryHash) (model.Method, error) {
	rec, err := getEntry[model.Method](ctx, s, "methods", eh)
	return rec.Entry, err
}

// Methods returns every method in creation order.
func (s *SQLiteStore) Methods(ctx context.Context) ([]model.Record[model.Method], error) {
	rows, err := s.db.QueryContext(ctx, "SELECT entry_hash, action_hash, body FROM methods ORDER BY seq")
	if err != nil {
		return nil, s.fail("list_methods", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.Record[model.Method]
	for rows.Next() {
		var (
			entry, action string
			body          []byte
		)
		if err := rows.Scan(&entry, &action, &body); err != nil {
			return nil, s.fail("list_methods", err)
		}
		eh, err := model.ParseHash(entry)
		if err != nil {
			return nil, s.fail("list_methods", err)
		}
		rec, err := decodeRecord[model.Method](s, "list_methods", eh, action, body)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, s.fail("list_methods", err)
	}
	return out, nil
}

// Stats reports counts.
func (s *SQLiteStore) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx, `SELECT
		(SELECT COUNT(*) FROM assessments),
		(SELECT COUNT(DISTINCT resource_eh) FROM assessments),
		(SELECT COUNT(*) FROM dimensions),
		(SELECT COUNT(*) FROM methods)`,
	).Scan(&st.Assessments, &st.Resources, &st.Dimensions, &st.Methods)
	if err != nil {
		return Stats{}, s.fail("stats", err)
	}
	return st, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
