package board

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"muehle-agent/internal/domain"
)

const sample = "BBEEEWWEWBWBWEBWEWBWEBEB"

func TestEncodeDecodeVectors(t *testing.T) {
	tests := []struct {
		encoded string
		raw     uint64
	}{
		{"EEEEEEEEEEEEEEEEEEEEEEEE", 0},
		{sample, 0b101000000011110011101110110010110011101100100010},
		{"WEEWEWBWBBEEBWEWEEEBEEEE", 0b110000110011101110100000101100110000001000000000},
	}
	for _, tt := range tests {
		b, err := Decode(tt.encoded)
		require.NoError(t, err)
		assert.Equal(t, Board(tt.raw), b, tt.encoded)
		assert.Equal(t, tt.encoded, Board(tt.raw).Encode())
	}
}

func TestDecode_Errors(t *testing.T) {
	_, err := Decode("EEE")
	assert.ErrorIs(t, err, domain.ErrSnapshotFormat)

	_, err = Decode("XEEEEEEEEEEEEEEEEEEEEEEE")
	assert.ErrorIs(t, err, domain.ErrSnapshotFormat)

	b, err := Decode("  " + sample + "\n")
	require.NoError(t, err)
	assert.Equal(t, sample, b.Encode())
}

func TestAtAndWith(t *testing.T) {
	b := MustDecode(sample)
	want := []Token{Black, Black, Empty, Empty, Empty, White, White, Empty,
		White, Black, White, Black, White, Empty, Black, White,
		Empty, White, Black, White, Empty, Black, Empty, Black}
	for p := Point(0); p < Points; p++ {
		assert.Equal(t, want[p], b.At(p), "point %d", p)
	}

	var e Board
	e = e.With(0, White).With(23, White)
	assert.Equal(t, Board(0b110000000000000000000000000000000000000000000011), e)
	assert.Equal(t, Empty, e.With(0, Empty).At(0))
}

func TestReverse(t *testing.T) {
	b := MustDecode("WWBEEEEWEWBBBEWWBWWBBEBE")
	assert.Equal(t, "BBWEEEEBEBWWWEBBWBBWWEWE", b.Reverse().Encode())
	assert.Equal(t, b, b.Reverse().Reverse())
}

func TestCount(t *testing.T) {
	b := MustDecode(sample)
	assert.Equal(t, 8, b.Count(White))
	assert.Equal(t, 8, b.Count(Black))
	assert.Len(t, b.Empties(), 8)
	assert.Equal(t, []Point{5, 6, 8, 10, 12, 15, 17, 19}, b.PointsOf(White))
}

func TestTokenOpponent(t *testing.T) {
	assert.Equal(t, Black, White.Opponent())
	assert.Equal(t, White, Black.Opponent())
	assert.Equal(t, Empty, Empty.Opponent())
	assert.Equal(t, Empty, Token(0b01).Opponent())
}

func TestParseColor(t *testing.T) {
	c, err := ParseColor("White")
	require.NoError(t, err)
	assert.Equal(t, White, c)
	c, err = ParseColor("b")
	require.NoError(t, err)
	assert.Equal(t, Black, c)
	_, err = ParseColor("red")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestString(t *testing.T) {
	b := MustDecode("WEEEEEEBEEEEEEEEEEEEEEEE")
	lines := b.String()
	assert.Contains(t, lines, "B------------W------------E")
}
