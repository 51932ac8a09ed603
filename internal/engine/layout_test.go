package engine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"muehle-agent/internal/board"
	"muehle-agent/internal/domain"
)

func TestNewLayout(t *testing.T) {
	tests := []struct {
		name       string
		w, h       float64
		scale      float64
		offX, offY float64
	}{
		{"native", 1280, 1600, 1, 0, 0},
		{"wide window", 2560, 1600, 1, 640, 0},
		{"tall window", 640, 1600, 0.5, 0, 400},
		{"zero falls back", 0, 0, 1, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewLayout(tt.w, tt.h)
			assert.InDelta(t, tt.scale, l.Scale, 1e-9)
			assert.InDelta(t, tt.offX, l.OffsetX, 1e-9)
			assert.InDelta(t, tt.offY, l.OffsetY, 1e-9)
		})
	}
}

func TestLayoutRoundTrip(t *testing.T) {
	l := NewLayout(1000, 700)
	x, y := l.ToScreen(640, 1360)
	lx, ly := l.ToLogical(x, y)
	assert.InDelta(t, 640, lx, 1e-9)
	assert.InDelta(t, 1360, ly, 1e-9)
}

func TestPointCenter(t *testing.T) {
	tests := []struct {
		p    board.Point
		x, y float64
	}{
		{0, 640, 170},
		{1, 1110, 170},
		{2, 1110, 640},
		{3, 1110, 1110},
		{4, 640, 1110},
		{5, 170, 1110},
		{6, 170, 640},
		{7, 170, 170},
		{15, 330, 330},
		{17, 790, 490},
		{20, 640, 790},
	}
	for _, tt := range tests {
		x, y := PointCenter(tt.p)
		assert.Equal(t, tt.x, x, "x of point %d", tt.p)
		assert.Equal(t, tt.y, y, "y of point %d", tt.p)
	}
}

func TestPointAt(t *testing.T) {
	for p := board.Point(0); p < board.Points; p++ {
		x, y := PointCenter(p)
		got, err := PointAt(x+40, y-40)
		require.NoError(t, err)
		assert.Equal(t, p, got)
	}

	// The hit area is a square, so the corners count.
	x, y := PointCenter(5)
	got, err := PointAt(x+HitRadius-5, y+HitRadius-5)
	require.NoError(t, err)
	assert.Equal(t, board.Point(5), got)

	_, err = PointAt(640+66, 170)
	assert.True(t, errors.Is(err, domain.ErrOffBoard))
	_, err = PointAt(640, 640)
	assert.True(t, errors.Is(err, domain.ErrOffBoard))
}

func TestPanelIndexAt(t *testing.T) {
	tests := []struct {
		x, y float64
		idx  int
		ok   bool
	}{
		{10, 1370, 0, true},
		{1279, 1470, 3, true},
		{330, 1500, 5, true},
		{960, 1599, 7, true},
		{10, 1300, 0, false},
		{10, 1600, 0, false},
	}
	for _, tt := range tests {
		idx, ok := PanelIndexAt(tt.x, tt.y)
		assert.Equal(t, tt.ok, ok, "(%v, %v)", tt.x, tt.y)
		if tt.ok {
			assert.Equal(t, tt.idx, idx, "(%v, %v)", tt.x, tt.y)
		}
	}
}

func TestRestartHit(t *testing.T) {
	assert.True(t, RestartHit(1200, 1300))
	assert.False(t, RestartHit(1000, 1300))
	assert.False(t, RestartHit(1200, 1370))
}
