package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/tailored-agentic-units/voice/dispatch"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id                 TEXT PRIMARY KEY,
	language           TEXT NOT NULL,
	voice              TEXT NOT NULL DEFAULT '',
	rate               REAL NOT NULL,
	pitch              REAL NOT NULL,
	trust              REAL NOT NULL DEFAULT 0,
	familiarity        REAL NOT NULL DEFAULT 0,
	rapport            REAL NOT NULL DEFAULT 0,
	shared_experiences INTEGER NOT NULL DEFAULT 0,
	created_at         INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS turns (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	id         TEXT NOT NULL UNIQUE,
	sender     TEXT NOT NULL,
	kind       TEXT NOT NULL,
	content    TEXT NOT NULL,
	ts         INTEGER NOT NULL,
	confidence REAL,
	intent     TEXT NOT NULL DEFAULT '',
	dispatch   TEXT
);

CREATE INDEX IF NOT EXISTS idx_turns_session ON turns(session_id, seq);
`

type sqlStore struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewSQLStore opens (or creates) a SQLite database at path. The special
// path ":memory:" keeps everything in process.
func NewSQLStore(path string, logger *slog.Logger) (Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			logger.Debug("sqlite pragma failed", slog.String("pragma", pragma), slog.String("error", err.Error()))
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &sqlStore{db: db, logger: logger, now: time.Now}, nil
}

func (s *sqlStore) Create(ctx context.Context, prefs Preferences) (string, error) {
	prefs = prefs.Normalize()
	id := uuid.Must(uuid.NewV7()).String()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, language, voice, rate, pitch, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, prefs.Language, prefs.Voice, prefs.Rate, prefs.Pitch, s.now().UnixNano(),
	)
	if err != nil {
		return "", s.wrap(err)
	}
	return id, nil
}

func (s *sqlStore) Append(ctx context.Context, id string, turns ...Turn) ([]Turn, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, s.wrap(err)
	}
	defer tx.Rollback()

	if err := exists(ctx, tx, id); err != nil {
		return nil, err
	}

	var last time.Time
	var lastNanos sql.NullInt64
	err = tx.QueryRowContext(ctx,
		`SELECT ts FROM turns WHERE session_id = ? ORDER BY seq DESC LIMIT 1`, id,
	).Scan(&lastNanos)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, s.wrap(err)
	}
	if lastNanos.Valid {
		last = time.Unix(0, lastNanos.Int64)
	}

	prepared, err := prepare(last, s.now(), turns)
	if err != nil {
		return nil, err
	}

	for _, t := range prepared {
		var confidence sql.NullFloat64
		if t.Confidence != nil {
			confidence = sql.NullFloat64{Float64: *t.Confidence, Valid: true}
		}

		var result sql.NullString
		if t.Dispatch != nil {
			data, err := json.Marshal(t.Dispatch)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrPersist, err)
			}
			result = sql.NullString{String: string(data), Valid: true}
		}

		_, err := tx.ExecContext(ctx,
			`INSERT INTO turns (session_id, id, sender, kind, content, ts, confidence, intent, dispatch)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, t.ID, string(t.Sender), string(t.Kind), t.Content, t.Timestamp.UnixNano(),
			confidence, t.Intent, result,
		)
		if err != nil {
			return nil, s.wrap(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, s.wrap(err)
	}
	return prepared, nil
}

func (s *sqlStore) History(ctx context.Context, id string) ([]Turn, error) {
	if err := exists(ctx, s.db, id); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, sender, kind, content, ts, confidence, intent, dispatch
		 FROM turns WHERE session_id = ? ORDER BY seq ASC`, id,
	)
	if err != nil {
		return nil, s.wrap(err)
	}
	defer rows.Close()

	turns := []Turn{}
	for rows.Next() {
		var (
			t          Turn
			sender     string
			kind       string
			nanos      int64
			confidence sql.NullFloat64
			result     sql.NullString
		)
		if err := rows.Scan(&t.ID, &sender, &kind, &t.Content, &nanos, &confidence, &t.Intent, &result); err != nil {
			return nil, s.wrap(err)
		}

		t.Sender = Sender(sender)
		t.Kind = Kind(kind)
		t.Timestamp = time.Unix(0, nanos)
		if confidence.Valid {
			c := confidence.Float64
			t.Confidence = &c
		}
		if result.Valid {
			var r dispatch.Result
			if err := json.Unmarshal([]byte(result.String), &r); err != nil {
				s.logger.Warn("discarding unreadable dispatch result",
					slog.String("session_id", id),
					slog.String("turn_id", t.ID),
					slog.String("error", err.Error()),
				)
			} else {
				t.Dispatch = &r
			}
		}
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, s.wrap(err)
	}
	return turns, nil
}

func (s *sqlStore) Preferences(ctx context.Context, id string) (Preferences, error) {
	var p Preferences
	err := s.db.QueryRowContext(ctx,
		`SELECT language, voice, rate, pitch FROM sessions WHERE id = ?`, id,
	).Scan(&p.Language, &p.Voice, &p.Rate, &p.Pitch)
	if errors.Is(err, sql.ErrNoRows) {
		return Preferences{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Preferences{}, s.wrap(err)
	}
	return p, nil
}

func (s *sqlStore) SetPreferences(ctx context.Context, id string, prefs Preferences) error {
	prefs = prefs.Normalize()
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET language = ?, voice = ?, rate = ?, pitch = ? WHERE id = ?`,
		prefs.Language, prefs.Voice, prefs.Rate, prefs.Pitch, id,
	)
	return s.affected(res, err, id)
}

func (s *sqlStore) Relationship(ctx context.Context, id string) (Relationship, error) {
	return readRelationship(ctx, s.db, id)
}

func (s *sqlStore) AdvanceRelationship(ctx context.Context, id string, g Growth) (Relationship, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Relationship{}, s.wrap(err)
	}
	defer tx.Rollback()

	rel, err := readRelationship(ctx, tx, id)
	if err != nil {
		return Relationship{}, err
	}
	rel = rel.Apply(g)

	_, err = tx.ExecContext(ctx,
		`UPDATE sessions SET trust = ?, familiarity = ?, rapport = ?, shared_experiences = ? WHERE id = ?`,
		rel.Trust, rel.Familiarity, rel.Rapport, rel.SharedExperiences, id,
	)
	if err != nil {
		return Relationship{}, s.wrap(err)
	}
	if err := tx.Commit(); err != nil {
		return Relationship{}, s.wrap(err)
	}
	return rel, nil
}

func (s *sqlStore) ResetRelationship(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET trust = 0, familiarity = 0, rapport = 0, shared_experiences = 0 WHERE id = ?`, id,
	)
	return s.affected(res, err, id)
}

func (s *sqlStore) Export(ctx context.Context, id string) (Export, error) {
	turns, err := s.History(ctx, id)
	if err != nil {
		return Export{}, err
	}
	rel, err := s.Relationship(ctx, id)
	if err != nil {
		return Export{}, err
	}
	return NewExport(id, turns, rel), nil
}

func (s *sqlStore) Delete(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return s.wrap(err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err := s.affected(res, err, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM turns WHERE session_id = ?`, id); err != nil {
		return s.wrap(err)
	}
	if err := tx.Commit(); err != nil {
		return s.wrap(err)
	}
	return nil
}

func (s *sqlStore) Close() error {
	return s.db.Close()
}

func (s *sqlStore) wrap(err error) error {
	if errors.Is(err, sql.ErrConnDone) || err.Error() == "sql: database is closed" {
		return fmt.Errorf("%w: %v", ErrStoreClosed, err)
	}
	return fmt.Errorf("%w: %v", ErrPersist, err)
}

func (s *sqlStore) affected(res sql.Result, err error, id string) error {
	if err != nil {
		return s.wrap(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return s.wrap(err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func exists(ctx context.Context, q querier, id string) error {
	var one int
	err := q.QueryRowContext(ctx, `SELECT 1 FROM sessions WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersist, err)
	}
	return nil
}

func readRelationship(ctx context.Context, q querier, id string) (Relationship, error) {
	var r Relationship
	err := q.QueryRowContext(ctx,
		`SELECT trust, familiarity, rapport, shared_experiences FROM sessions WHERE id = ?`, id,
	).Scan(&r.Trust, &r.Familiarity, &r.Rapport, &r.SharedExperiences)
	if errors.Is(err, sql.ErrNoRows) {
		return Relationship{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Relationship{}, fmt.Errorf("%w: %v", ErrPersist, err)
	}
	return r, nil
}
