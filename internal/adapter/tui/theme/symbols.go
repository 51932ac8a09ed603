package theme

import (
	"os"
	"strings"
)

// SymbolSet holds the glyphs used to draw the board and status lines,
// allowing runtime switching between Unicode and ASCII fallback sets.
type SymbolSet struct {
	LineH   string
	LineV   string
	Point   string
	White   string
	Black   string
	Target  string
	Bullet  string
	Warning string
}

var unicodeSymbols = SymbolSet{
	LineH:   "─", // ─
	LineV:   "│", // │
	Point:   "·", // ·
	White:   "○", // ○
	Black:   "●", // ●
	Target:  "+",
	Bullet:  "•", // •
	Warning: "⚠", // ⚠
}

var asciiSymbols = SymbolSet{
	LineH:   "-",
	LineV:   "|",
	Point:   ".",
	White:   "W",
	Black:   "B",
	Target:  "+",
	Bullet:  "*",
	Warning: "[!]",
}

// Symbols is the active set.
var Symbols = unicodeSymbols

// DetectUnicodeSupport checks whether the terminal likely supports Unicode.
// MUEHLE_ASCII_SYMBOLS=1 forces ASCII.
func DetectUnicodeSupport() bool {
	if v := os.Getenv("MUEHLE_ASCII_SYMBOLS"); v == "1" || strings.EqualFold(v, "true") {
		return false
	}
	for _, key := range []string{"LC_ALL", "LC_CTYPE", "LANG"} {
		val := strings.ToLower(os.Getenv(key))
		if strings.Contains(val, "utf-8") || strings.Contains(val, "utf8") {
			return true
		}
	}
	return true
}

// InitSymbols picks the symbol set for the current terminal. It can be
// called again if the environment changes (e.g., in tests).
func InitSymbols() {
	if DetectUnicodeSupport() {
		Symbols = unicodeSymbols
	} else {
		Symbols = asciiSymbols
	}
}

// UseASCII switches to the ASCII set unconditionally.
func UseASCII() { Symbols = asciiSymbols }

func init() {
	InitSymbols()
}
