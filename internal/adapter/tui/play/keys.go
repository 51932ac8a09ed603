package play

import (
	"github.com/charmbracelet/bubbles/key"

	"muehle-agent/internal/domain"
)

// keyMap is the terminal key bindings. It implements help.KeyMap.
type keyMap struct {
	Up, Down, Left, Right key.Binding
	Select                key.Binding
	Cancel                key.Binding
	Restart               key.Binding
	WhiteLevel            key.Binding
	BlackLevel            key.Binding
	Copy                  key.Binding
	Paste                 key.Binding
	Help                  key.Binding
	Quit                  key.Binding
}

func defaultKeys() keyMap {
	return keyMap{
		Up:         key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		Down:       key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		Left:       key.NewBinding(key.WithKeys("left", "h"), key.WithHelp("←/h", "left")),
		Right:      key.NewBinding(key.WithKeys("right", "l"), key.WithHelp("→/l", "right")),
		Select:     key.NewBinding(key.WithKeys("enter", " "), key.WithHelp("enter", "pick/place")),
		Cancel:     key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "put back")),
		Restart:    key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "restart")),
		WhiteLevel: key.NewBinding(key.WithKeys("1", "2", "3", "4"), key.WithHelp("1-4", "white level")),
		BlackLevel: key.NewBinding(key.WithKeys("!", "@", "#", "$"), key.WithHelp("⇧1-4", "black level")),
		Copy:       key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "copy")),
		Paste:      key.NewBinding(key.WithKeys("v"), key.WithHelp("v", "paste")),
		Help:       key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		Quit:       key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

// ShortHelp implements help.KeyMap.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Select, k.Restart, k.Copy, k.Help, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Left, k.Right},
		{k.Select, k.Cancel, k.Restart},
		{k.WhiteLevel, k.BlackLevel},
		{k.Copy, k.Paste, k.Help, k.Quit},
	}
}

// levelKeys maps the difficulty keys to the keycode and modifiers the
// export table expects.
var levelKeys = map[string]struct{ code, mods int32 }{
	"1": {domain.Key1, 0},
	"2": {domain.Key2, 0},
	"3": {domain.Key3, 0},
	"4": {domain.Key4, 0},
	"!": {domain.Key1, domain.ModShift},
	"@": {domain.Key2, domain.ModShift},
	"#": {domain.Key3, domain.ModShift},
	"$": {domain.Key4, domain.ModShift},
}
