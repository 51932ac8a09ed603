// Package store keeps game history in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"muehle-agent/internal/domain"
)

// SQLiteGameStore implements domain.GameStore using SQLite.
type SQLiteGameStore struct {
	db *sql.DB

	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// NewSQLiteGameStore opens (or creates) a SQLite database at dbPath and runs
// the schema migration. ":memory:" keeps the history in process.
func NewSQLiteGameStore(dbPath string) (*SQLiteGameStore, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
			return nil, fmt.Errorf("%w: create store dir: %v", domain.ErrStore, err)
		}
	}
	// Pragmas in the DSN apply to every pooled connection, not just the first.
	dsn := dbPath + "?_pragma=foreign_keys(1)"
	if dbPath != ":memory:" {
		dsn += "&_pragma=journal_mode(WAL)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open game db: %v", domain.ErrStore, err)
	}
	if dbPath == ":memory:" {
		// Every pooled connection would see its own empty database.
		db.SetMaxOpenConns(1)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: migrate game db: %v", domain.ErrStore, err)
	}
	now := time.Now()
	return &SQLiteGameStore{
		db:      db,
		entropy: ulid.Monotonic(rand.New(rand.NewSource(now.UnixNano())), 0),
	}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS games (
			id          TEXT PRIMARY KEY,
			source      TEXT NOT NULL,
			white       TEXT NOT NULL,
			black       TEXT NOT NULL,
			winner      TEXT NOT NULL DEFAULT '',
			plies       INTEGER NOT NULL DEFAULT 0,
			final_board TEXT NOT NULL DEFAULT '',
			started_at  TEXT NOT NULL,
			finished_at TEXT
		);
		CREATE TABLE IF NOT EXISTS moves (
			game_id   TEXT NOT NULL REFERENCES games(id) ON DELETE CASCADE,
			ply       INTEGER NOT NULL,
			color     TEXT NOT NULL,
			from_pt   INTEGER,
			to_pt     INTEGER NOT NULL,
			capture   INTEGER,
			board     TEXT NOT NULL,
			PRIMARY KEY (game_id, ply)
		);
		CREATE INDEX IF NOT EXISTS idx_games_started ON games(started_at);
	`)
	return err
}

// Close closes the underlying database connection.
func (s *SQLiteGameStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteGameStore) newID(t time.Time) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), s.entropy).String()
}

// CreateGame inserts rec, assigning an ID and start time when missing.
func (s *SQLiteGameStore) CreateGame(ctx context.Context, rec domain.GameRecord) (domain.GameRecord, error) {
	if rec.StartedAt.IsZero() {
		rec.StartedAt = time.Now().UTC()
	}
	if rec.ID == "" {
		rec.ID = s.newID(rec.StartedAt)
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO games (id, source, white, black, started_at) VALUES (?, ?, ?, ?, ?)",
		rec.ID, rec.Source, rec.White, rec.Black, rec.StartedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return rec, domain.NewSubSystemError("store", "Store.CreateGame", domain.ErrDuplicate, rec.ID)
		}
		return rec, fmt.Errorf("%w: insert game: %v", domain.ErrStore, err)
	}
	return rec, nil
}

// AppendMove records one turn.
func (s *SQLiteGameStore) AppendMove(ctx context.Context, gameID string, mv domain.MoveRecord) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO moves (game_id, ply, color, from_pt, to_pt, capture, board) VALUES (?, ?, ?, ?, ?, ?, ?)",
		gameID, mv.Ply, mv.Color, nullInt(mv.From), mv.To, nullInt(mv.Capture), mv.Board,
	)
	if err != nil {
		if strings.Contains(err.Error(), "FOREIGN KEY") {
			return domain.NewSubSystemError("store", "Store.AppendMove", domain.ErrNotFound, gameID)
		}
		return fmt.Errorf("%w: insert move: %v", domain.ErrStore, err)
	}
	return nil
}

// FinishGame stores the result.
func (s *SQLiteGameStore) FinishGame(ctx context.Context, gameID, winner, finalBoard string, plies int) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE games SET winner = ?, final_board = ?, plies = ?, finished_at = ? WHERE id = ?",
		winner, finalBoard, plies, time.Now().UTC().Format(time.RFC3339Nano), gameID,
	)
	if err != nil {
		return fmt.Errorf("%w: finish game: %v", domain.ErrStore, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NewSubSystemError("store", "Store.FinishGame", domain.ErrNotFound, gameID)
	}
	return nil
}

const gameColumns = "id, source, white, black, winner, plies, final_board, started_at, finished_at"

// GetGame returns one game.
func (s *SQLiteGameStore) GetGame(ctx context.Context, id string) (*domain.GameRecord, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+gameColumns+" FROM games WHERE id = ?", id)
	rec, err := scanGame(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewSubSystemError("store", "Store.GetGame", domain.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// ListGames returns games newest first.
func (s *SQLiteGameStore) ListGames(ctx context.Context, f domain.GameFilter) ([]domain.GameRecord, error) {
	var (
		where []string
		args  []any
	)
	if f.Source != "" {
		where = append(where, "source = ?")
		args = append(args, f.Source)
	}
	if f.Winner != "" {
		where = append(where, "winner = ?")
		args = append(args, f.Winner)
	}
	q := "SELECT " + gameColumns + " FROM games"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY id DESC"
	if f.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: list games: %v", domain.ErrStore, err)
	}
	defer rows.Close()

	var games []domain.GameRecord
	for rows.Next() {
		rec, err := scanGame(rows)
		if err != nil {
			return nil, err
		}
		games = append(games, *rec)
	}
	return games, rows.Err()
}

// Moves returns the moves of a game in ply order.
func (s *SQLiteGameStore) Moves(ctx context.Context, gameID string) ([]domain.MoveRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT ply, color, from_pt, to_pt, capture, board FROM moves WHERE game_id = ? ORDER BY ply", gameID)
	if err != nil {
		return nil, fmt.Errorf("%w: list moves: %v", domain.ErrStore, err)
	}
	defer rows.Close()

	var moves []domain.MoveRecord
	for rows.Next() {
		var (
			mv            domain.MoveRecord
			from, capture sql.NullInt64
		)
		if err := rows.Scan(&mv.Ply, &mv.Color, &from, &mv.To, &capture, &mv.Board); err != nil {
			return nil, fmt.Errorf("%w: scan move: %v", domain.ErrStore, err)
		}
		mv.From = intPtr(from)
		mv.Capture = intPtr(capture)
		moves = append(moves, mv)
	}
	return moves, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanGame(row scanner) (*domain.GameRecord, error) {
	var (
		rec      domain.GameRecord
		started  string
		finished sql.NullString
	)
	err := row.Scan(&rec.ID, &rec.Source, &rec.White, &rec.Black, &rec.Winner, &rec.Plies, &rec.FinalBoard, &started, &finished)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: scan game: %v", domain.ErrStore, err)
	}
	rec.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
	if finished.Valid {
		t, _ := time.Parse(time.RFC3339Nano, finished.String)
		rec.FinishedAt = &t
	}
	return &rec, nil
}

func nullInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

var _ domain.GameStore = (*SQLiteGameStore)(nil)
