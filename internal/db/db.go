package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"line-topology/internal/network"
	"line-topology/internal/topology"
)

func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

func Ping(ctx context.Context, db *sql.DB) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return db.PingContext(ctx)
}

const schema = `
CREATE TABLE IF NOT EXISTS stations (
  id   BIGSERIAL PRIMARY KEY,
  name TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS lines (
  id               BIGSERIAL PRIMARY KEY,
  name             TEXT NOT NULL,
  start_time       TEXT NOT NULL,
  last_time        TEXT NOT NULL,
  interval_minutes INTEGER NOT NULL,
  extra_fare       INTEGER NOT NULL DEFAULT 0,
  head_id          BIGINT REFERENCES stations(id)
);
ALTER TABLE lines ADD COLUMN IF NOT EXISTS head_id BIGINT REFERENCES stations(id);
CREATE TABLE IF NOT EXISTS sections (
  id           BIGINT,
  line_id      BIGINT NOT NULL REFERENCES lines(id) ON DELETE CASCADE,
  seq          INTEGER NOT NULL,
  source_id    BIGINT NOT NULL REFERENCES stations(id),
  target_id    BIGINT NOT NULL REFERENCES stations(id),
  distance     DOUBLE PRECISION NOT NULL CHECK (distance > 0),
  elapsed_time DOUBLE PRECISION NOT NULL CHECK (elapsed_time >= 0),
  PRIMARY KEY (line_id, seq)
);
ALTER TABLE sections ADD COLUMN IF NOT EXISTS id BIGINT`

// Store persists stations, lines and line sections in Postgres.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store { return &Store{db: db} }

// Migrate creates the tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error { return Ping(ctx, s.db) }

func (s *Store) CreateStation(ctx context.Context, name string) (network.Station, error) {
	st := network.Station{Name: name}
	q := `INSERT INTO stations (name) VALUES ($1) RETURNING id`
	if err := s.db.QueryRowContext(ctx, q, name).Scan(&st.ID); err != nil {
		return network.Station{}, fmt.Errorf("insert station: %w", err)
	}
	return st, nil
}

func (s *Store) GetStation(ctx context.Context, id int64) (network.Station, error) {
	st := network.Station{ID: id}
	err := s.db.QueryRowContext(ctx, `SELECT name FROM stations WHERE id = $1`, id).Scan(&st.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return network.Station{}, fmt.Errorf("%w: %d", topology.ErrStationNotFound, id)
	}
	if err != nil {
		return network.Station{}, fmt.Errorf("query station %d: %w", id, err)
	}
	return st, nil
}

func (s *Store) ListStations(ctx context.Context) ([]network.Station, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM stations ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query stations: %w", err)
	}
	defer rows.Close()
	out := []network.Station{}
	for rows.Next() {
		var st network.Station
		if err := rows.Scan(&st.ID, &st.Name); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *Store) DeleteStation(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM stations WHERE id = $1`, id)
	if isForeignKeyViolation(err) {
		return fmt.Errorf("%w: %d", topology.ErrStationInUse, id)
	}
	if err != nil {
		return fmt.Errorf("delete station %d: %w", id, err)
	}
	return requireAffected(res, fmt.Errorf("%w: %d", topology.ErrStationNotFound, id))
}

func (s *Store) StationExists(ctx context.Context, id int64) (bool, error) {
	return s.exists(ctx, `SELECT EXISTS (SELECT 1 FROM stations WHERE id = $1)`, id)
}

func (s *Store) CreateLine(ctx context.Context, l network.Line) (network.Line, error) {
	q := `INSERT INTO lines (name, start_time, last_time, interval_minutes, extra_fare)
          VALUES ($1, $2, $3, $4, $5) RETURNING id`
	if err := s.db.QueryRowContext(ctx, q, l.Name, l.StartTime, l.LastTime, l.IntervalMinutes, l.ExtraFare).Scan(&l.ID); err != nil {
		return network.Line{}, fmt.Errorf("insert line: %w", err)
	}
	return l, nil
}

func (s *Store) GetLine(ctx context.Context, id int64) (network.Line, error) {
	l := network.Line{ID: id}
	q := `SELECT name, start_time, last_time, interval_minutes, extra_fare FROM lines WHERE id = $1`
	err := s.db.QueryRowContext(ctx, q, id).Scan(&l.Name, &l.StartTime, &l.LastTime, &l.IntervalMinutes, &l.ExtraFare)
	if errors.Is(err, sql.ErrNoRows) {
		return network.Line{}, fmt.Errorf("%w: %d", topology.ErrLineNotFound, id)
	}
	if err != nil {
		return network.Line{}, fmt.Errorf("query line %d: %w", id, err)
	}
	return l, nil
}

func (s *Store) ListLines(ctx context.Context) ([]network.Line, error) {
	q := `SELECT id, name, start_time, last_time, interval_minutes, extra_fare FROM lines ORDER BY id`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query lines: %w", err)
	}
	defer rows.Close()
	out := []network.Line{}
	for rows.Next() {
		var l network.Line
		if err := rows.Scan(&l.ID, &l.Name, &l.StartTime, &l.LastTime, &l.IntervalMinutes, &l.ExtraFare); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// DeleteLine removes the line; its sections go with it (ON DELETE CASCADE).
func (s *Store) DeleteLine(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM lines WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete line %d: %w", id, err)
	}
	return requireAffected(res, fmt.Errorf("%w: %d", topology.ErrLineNotFound, id))
}

func (s *Store) LineExists(ctx context.Context, id int64) (bool, error) {
	return s.exists(ctx, `SELECT EXISTS (SELECT 1 FROM lines WHERE id = $1)`, id)
}

// CommitPath stores the line's head and replaces its sections in one
// transaction, numbering them head to tail.
func (s *Store) CommitPath(ctx context.Context, lineID int64, rec topology.PathRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `UPDATE lines SET head_id = $2 WHERE id = $1`, lineID, nullableID(rec.Head))
	if err != nil {
		return fmt.Errorf("set head of line %d: %w", lineID, err)
	}
	if err := requireAffected(res, fmt.Errorf("%w: %d", topology.ErrLineNotFound, lineID)); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sections WHERE line_id = $1`, lineID); err != nil {
		return fmt.Errorf("clear sections of line %d: %w", lineID, err)
	}
	q := `INSERT INTO sections (id, line_id, seq, source_id, target_id, distance, elapsed_time)
          VALUES ($1, $2, $3, $4, $5, $6, $7)`
	for i, sec := range rec.Sections {
		if _, err := tx.ExecContext(ctx, q, nullableID(sec.ID), lineID, i, sec.SourceID, sec.TargetID, sec.Distance, sec.ElapsedTime); err != nil {
			return fmt.Errorf("insert section %d of line %d: %w", i, lineID, err)
		}
	}
	return tx.Commit()
}

// LoadPaths returns the persisted path of every line that has one. Rows
// written before head_id and sections.id existed come back with zero ids.
func (s *Store) LoadPaths(ctx context.Context) (map[int64]topology.PathRecord, error) {
	out := make(map[int64]topology.PathRecord)

	rows, err := s.db.QueryContext(ctx, `SELECT id, head_id FROM lines WHERE head_id IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("query line heads: %w", err)
	}
	for rows.Next() {
		var id int64
		var head sql.NullInt64
		if err := rows.Scan(&id, &head); err != nil {
			rows.Close()
			return nil, err
		}
		out[id] = topology.PathRecord{Head: head.Int64}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	q := `SELECT id, line_id, source_id, target_id, distance, elapsed_time
          FROM sections ORDER BY line_id, seq`
	rows, err = s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query sections: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var sec topology.Section
		var id sql.NullInt64
		if err := rows.Scan(&id, &sec.LineID, &sec.SourceID, &sec.TargetID, &sec.Distance, &sec.ElapsedTime); err != nil {
			return nil, err
		}
		sec.ID = id.Int64
		rec := out[sec.LineID]
		rec.Sections = append(rec.Sections, sec)
		out[sec.LineID] = rec
	}
	return out, rows.Err()
}

func nullableID(id int64) sql.NullInt64 {
	return sql.NullInt64{Int64: id, Valid: id != 0}
}

func (s *Store) exists(ctx context.Context, q string, id int64) (bool, error) {
	var ok bool
	if err := s.db.QueryRowContext(ctx, q, id).Scan(&ok); err != nil {
		return false, err
	}
	return ok, nil
}

func requireAffected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}
