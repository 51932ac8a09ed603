package domain

import (
	"context"
	"time"
)

// Game results as stored in GameRecord.Winner.
const (
	ResultWhite = "White"
	ResultBlack = "Black"
	ResultDraw  = "Draw"
)

// Where a recorded game was played.
const (
	SourceSelfPlay = "selfplay"
	SourceGateway  = "gateway"
	SourceLocal    = "local"
)

// GameRecord is one finished or in-progress game in the history store.
type GameRecord struct {
	ID         string     `json:"id"`
	Source     string     `json:"source"`
	White      string     `json:"white"` // difficulty or "human"
	Black      string     `json:"black"`
	Winner     string     `json:"winner,omitempty"` // empty while in progress
	Plies      int        `json:"plies"`
	FinalBoard string     `json:"final_board,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// MoveRecord is one completed turn of a recorded game. Points are 0-based.
type MoveRecord struct {
	Ply     int    `json:"ply"`
	Color   string `json:"color"`
	From    *int   `json:"from,omitempty"`
	To      int    `json:"to"`
	Capture *int   `json:"capture,omitempty"`
	Board   string `json:"board"`
}

// GameFilter narrows GameStore.ListGames.
type GameFilter struct {
	Source string
	Winner string
	Limit  int
}

// GameStore persists game history.
type GameStore interface {
	CreateGame(ctx context.Context, rec GameRecord) (GameRecord, error)
	AppendMove(ctx context.Context, gameID string, mv MoveRecord) error
	FinishGame(ctx context.Context, gameID, winner, finalBoard string, plies int) error
	GetGame(ctx context.Context, id string) (*GameRecord, error)
	ListGames(ctx context.Context, f GameFilter) ([]GameRecord, error)
	Moves(ctx context.Context, gameID string) ([]MoveRecord, error)
	Close() error
}
