package engine

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"

	"muehle-agent/internal/agent"
	"muehle-agent/internal/board"
	"muehle-agent/internal/game"
)

// Image keys understood by every presenter.
const (
	ImageBoard   = "board"
	ImageOutline = "outline"
)

// Background is the clear colour behind the canvas, 0xRRGGBB.
const Background = 0x3F2832

// Sprite is one image drawn at window coordinates (X, Y) with a uniform scale.
type Sprite struct {
	Image string  `json:"image"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Scale float64 `json:"scale"`
}

// Scene is everything a presenter needs to draw one frame.
type Scene struct {
	Frame      uint64   `json:"frame"`
	Width      float64  `json:"width"`
	Height     float64  `json:"height"`
	Background uint32   `json:"background"`
	State      string   `json:"state"`
	Turn       string   `json:"turn"`
	Winner     string   `json:"winner,omitempty"`
	Thinking   bool     `json:"thinking,omitempty"`
	Sprites    []Sprite `json:"sprites"`
}

// EncodeScene renders s as JSON, the form handed to the host's present call.
func EncodeScene(s Scene) ([]byte, error) {
	return json.Marshal(s)
}

// DecodeScene parses a scene produced by EncodeScene.
func DecodeScene(data []byte) (Scene, error) {
	var s Scene
	if err := json.Unmarshal(data, &s); err != nil {
		return Scene{}, fmt.Errorf("decode scene: %w", err)
	}
	return s, nil
}

// Images lists every image key a scene may reference.
func Images() []string {
	keys := []string{
		ImageBoard, "white", "black", "white outlined", "black outlined",
		"take white", "take black", "empty white outlined", "empty black outlined",
		ImageOutline,
	}
	for i := 0; i <= game.SetupPieces; i++ {
		keys = append(keys, setupPanelImage(i))
	}
	for i := 0; i < 16; i++ {
		keys = append(keys, fmt.Sprintf("bottom panel %d", i))
	}
	return keys
}

func setupPanelImage(left int) string { return fmt.Sprintf("bottom panel setup %d", left) }

func bottomPanelImage(white, black agent.Difficulty) string {
	return fmt.Sprintf("bottom panel %d", int(white)*4+int(black))
}

func colorName(c board.Token) string { return strings.ToLower(c.String()) }

// pointImage picks the image for point p. Highlights are only drawn for a
// human player; the end-of-game marks are always drawn.
func pointImage(g *game.Game, p board.Point, human bool) (string, bool) {
	field := g.At(p)
	turn := g.Turn()

	switch g.State() {
	case game.Setup:
		if field.IsColor() {
			return colorName(field), true
		}
		if human {
			return "empty " + colorName(turn) + " outlined", true
		}
		return "", false

	case game.Take:
		if !field.IsColor() {
			return "", false
		}
		if human && field != turn && g.Board().CanCapture(p, turn) {
			return "take " + colorName(field), true
		}
		return colorName(field), true

	case game.Win:
		if !field.IsColor() {
			return "", false
		}
		if field == turn {
			return "take " + colorName(field), true
		}
		return colorName(field) + " outlined", true
	}

	if carry := g.Carry(); carry != nil {
		if field.IsColor() {
			return colorName(field), true
		}
		if human && g.Board().IsMoveValid(carry.Point, p, g.PieceCount(carry.Color)+1) {
			return ImageOutline, true
		}
		return "", false
	}
	if !field.IsColor() {
		return "", false
	}
	if human && field == turn && canMove(g, p) {
		return colorName(field) + " outlined", true
	}
	return colorName(field), true
}

func canMove(g *game.Game, p board.Point) bool {
	if g.PieceCount(g.At(p)) == 3 {
		return len(g.Board().Empties()) > 0
	}
	return g.Board().PointMobility(p) > 0
}

// buildScene draws the board, both panels, the pieces and finally the
// carried piece under the pointer.
func buildScene(g *game.Game, l Layout, white, black agent.Difficulty, mouseX, mouseY float64) []Sprite {
	sprites := make([]Sprite, 0, 4+board.Points)
	at := func(image string, lx, ly float64) {
		x, y := l.ToScreen(lx, ly)
		sprites = append(sprites, Sprite{Image: image, X: x, Y: y, Scale: l.Scale})
	}

	at(ImageBoard, 0, 0)
	at(setupPanelImage(g.SetupLeft()), 0, BoardHeight)
	at(bottomPanelImage(white, black), 0, panelTop)

	human := !computerTurn(g.Turn(), white, black)
	for p := board.Point(0); p < board.Points; p++ {
		img, ok := pointImage(g, p, human)
		if !ok {
			continue
		}
		cx, cy := PointCenter(p)
		at(img, cx-PieceSize/2, cy-PieceSize/2)
	}

	if carry := g.Carry(); carry != nil {
		sprites = append(sprites, Sprite{
			Image: colorName(carry.Color),
			X:     mouseX - PieceSize/2*l.Scale,
			Y:     mouseY - PieceSize/2*l.Scale,
			Scale: l.Scale,
		})
	}
	return sprites
}

func computerTurn(turn board.Token, white, black agent.Difficulty) bool {
	return (turn == board.White && white != agent.Off) || (turn == board.Black && black != agent.Off)
}
