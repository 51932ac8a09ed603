package game

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"muehle-agent/internal/board"
	"muehle-agent/internal/domain"
)

// Snapshot keys, one per line as "key: value".
const (
	keyBoard     = "board"
	keyTurn      = "player_turn"
	keyState     = "state"
	keySetupLeft = "setup_pieces_left"
)

// Save writes the snapshot text form of g. A carried piece is saved in place.
func (g *Game) Save(w io.Writer) error {
	b := g.board
	if g.carry != nil {
		b = b.With(g.carry.Point, g.carry.Color)
	}
	_, err := fmt.Fprintf(w, "%s: %s\n%s: %s\n%s: %s\n%s: %d\n",
		keyBoard, b.Encode(),
		keyTurn, g.turn,
		keyState, g.state,
		keySetupLeft, g.setupLeft,
	)
	return err
}

// SnapshotString returns the text form of g.
func (g *Game) SnapshotString() string {
	var sb strings.Builder
	_ = g.Save(&sb)
	return sb.String()
}

// Load parses a snapshot. A single bare 24-character board is also accepted
// and yields a movement-phase game with White to move.
func Load(r io.Reader) (*Game, error) {
	fields := make(map[string]string, 4)
	var bare []string

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			bare = append(bare, line)
			continue
		}
		fields[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSnapshotFormat, err)
	}

	if len(fields) == 0 {
		if len(bare) != 1 {
			return nil, fmt.Errorf("%w: empty snapshot", domain.ErrSnapshotFormat)
		}
		b, err := board.Decode(bare[0])
		if err != nil {
			return nil, err
		}
		return FromPosition(b, board.White, Normal, 0)
	}

	raw, ok := fields[keyBoard]
	if !ok {
		return nil, fmt.Errorf("%w: missing %q", domain.ErrSnapshotFormat, keyBoard)
	}
	b, err := board.Decode(raw)
	if err != nil {
		return nil, err
	}

	turn := board.White
	if v, ok := fields[keyTurn]; ok {
		if turn, err = board.ParseColor(v); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrSnapshotFormat, err)
		}
	}

	setupLeft := 0
	if v, ok := fields[keySetupLeft]; ok {
		if setupLeft, err = strconv.Atoi(v); err != nil {
			return nil, fmt.Errorf("%w: setup pieces %q", domain.ErrSnapshotFormat, v)
		}
	}

	g, err := FromPosition(b, turn, ParseState(fields[keyState]), setupLeft)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSnapshotFormat, err)
	}
	return g, nil
}

// LoadString is Load over a string.
func LoadString(s string) (*Game, error) { return Load(strings.NewReader(s)) }
