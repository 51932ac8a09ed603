package play

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"muehle-agent/internal/adapter/tui/components"
	"muehle-agent/internal/adapter/tui/theme"
	"muehle-agent/internal/board"
	"muehle-agent/internal/domain"
	"muehle-agent/internal/engine"
)

// Ensure *Model satisfies tea.Model.
var _ tea.Model = (*Model)(nil)

// Stepper runs one frame, typically a host.Runner guarding a guest.
type Stepper interface {
	Step(ctx context.Context) error
}

// Deps are the dependencies of the board model.
type Deps struct {
	Table  domain.ExportTable
	Scenes *SceneBox
	// Files completes loads for an in-process engine; nil when the table
	// loads its own files.
	Files *LocalPlatform
	// Stepper runs frames; nil calls Table.Frame directly.
	Stepper Stepper
	// Fatal reports frame errors that end the program. The default stops
	// on domain.ErrHostClosed.
	Fatal  func(error) bool
	Bus    domain.EventBus
	FPS    int
	Title  string
	Logger *slog.Logger
}

// pointerNudge offsets clicks from the point centre so that a carried piece
// is told apart from the pieces on the board.
const pointerNudge = 8.0

const sidePanelWidth = 36

// Model is the root Bubble Tea model of the board.
type Model struct {
	deps   Deps
	ctx    context.Context
	logger *slog.Logger

	keys    keyMap
	help    help.Model
	spinner spinner.Model
	events  components.EventStreamModel
	status  components.StatusBarModel

	view    components.BoardView
	cursor  board.Point
	holding bool
	err     error

	width  int
	height int

	programSend func(tea.Msg)
	unsubscribe func()
}

// NewModel creates the board model. ctx bounds every call into the table.
func NewModel(ctx context.Context, deps Deps) *Model {
	if deps.FPS <= 0 {
		deps.FPS = 30
	}
	if deps.Title == "" {
		deps.Title = "Mühle"
	}
	if deps.Scenes == nil {
		deps.Scenes = NewSceneBox()
	}
	if deps.Fatal == nil {
		deps.Fatal = func(err error) bool { return errors.Is(err, domain.ErrHostClosed) }
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	m := &Model{
		deps:    deps,
		ctx:     ctx,
		logger:  logger.With("component", "tui"),
		keys:    defaultKeys(),
		help:    help.New(),
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot)),
		events:  components.NewEventStream(),
		status:  components.NewStatusBar(),
		view:    components.BoardView{SetupLeft: -1, Panel: -1},
	}
	m.events.SetSize(sidePanelWidth, 8)
	return m
}

// SetProgramSender sets the function used to inject messages from the EventBus.
// Must be called before Run().
func (m *Model) SetProgramSender(send func(tea.Msg)) {
	m.programSend = send
}

// Err returns the frame error that ended the program, if any.
func (m *Model) Err() error { return m.err }

// Board returns the decoded last scene.
func (m *Model) Board() components.BoardView { return m.view }

// Cursor returns the selected point.
func (m *Model) Cursor() board.Point { return m.cursor }

// Init subscribes to the EventBus and starts the frame ticker.
func (m *Model) Init() tea.Cmd {
	if m.deps.Bus != nil && m.programSend != nil {
		m.unsubscribe = m.deps.Bus.SubscribeAll(func(_ context.Context, event domain.Event) {
			if event.Type == domain.EventScenePresent {
				return
			}
			m.programSend(EventBusMsg{Event: event})
		})
	}
	return tea.Batch(tickCmd(m.interval()), m.spinner.Tick)
}

func (m *Model) interval() time.Duration {
	return time.Second / time.Duration(m.deps.FPS)
}

// Update handles messages.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.layout()
		return m, nil

	case tickMsg:
		if err := m.frame(); err != nil {
			return m, m.quit()
		}
		return m, tickCmd(m.interval())

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case EventBusMsg:
		m.events.AddEvent(msg.Event)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	var cmd tea.Cmd
	m.events, cmd = m.events.Update(msg)
	return m, cmd
}

func (m *Model) quit() tea.Cmd {
	if m.unsubscribe != nil {
		m.unsubscribe()
		m.unsubscribe = nil
	}
	return tea.Quit
}

// frame completes pending file loads, runs one frame and decodes the
// resulting scene. It returns an error only when the program must end.
func (m *Model) frame() error {
	if m.deps.Files != nil {
		for _, id := range m.deps.Files.Ready() {
			m.report(m.deps.Table.FileLoaded(m.ctx, id), "")
		}
	}

	var err error
	if m.deps.Stepper != nil {
		err = m.deps.Stepper.Step(m.ctx)
	} else {
		err = m.deps.Table.Frame(m.ctx)
	}
	if err != nil {
		if m.deps.Fatal(err) {
			m.err = err
			m.logger.Error("frame loop stopped", "error", err)
			return err
		}
		m.report(err, "")
	}

	if scene, ok := m.deps.Scenes.Latest(); ok {
		m.view = components.ReadScene(scene)
		if m.view.Carry == components.MarkNone {
			m.holding = false
		}
	}
	return nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	ctx := m.ctx
	t := m.deps.Table

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, m.quit()

	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		m.layout()

	case key.Matches(msg, m.keys.Up):
		m.moveCursor(0, -1)
	case key.Matches(msg, m.keys.Down):
		m.moveCursor(0, 1)
	case key.Matches(msg, m.keys.Left):
		m.moveCursor(-1, 0)
	case key.Matches(msg, m.keys.Right):
		m.moveCursor(1, 0)

	case key.Matches(msg, m.keys.Select):
		m.selectPoint()

	case key.Matches(msg, m.keys.Cancel):
		m.holding = false
		m.report(t.KeyDown(ctx, domain.KeyEscape, 0, 0), "")

	case key.Matches(msg, m.keys.Restart):
		m.holding = false
		m.report(t.KeyDown(ctx, domain.KeyR, 0, 0), "new game")

	case key.Matches(msg, m.keys.WhiteLevel), key.Matches(msg, m.keys.BlackLevel):
		lk := levelKeys[msg.String()]
		m.report(t.KeyDown(ctx, lk.code, lk.mods, 0), "")

	case key.Matches(msg, m.keys.Copy):
		m.report(t.KeyDown(ctx, domain.KeyC, domain.ModCtrl, 0), "position copied")

	case key.Matches(msg, m.keys.Paste):
		text := m.deps.Scenes.Clipboard()
		if text == "" {
			m.report(nil, "clipboard is empty")
			break
		}
		if err := t.KeyDown(ctx, domain.KeyV, domain.ModCtrl, 0); err != nil {
			m.report(err, "")
			break
		}
		m.holding = false
		m.report(t.ClipboardPaste(ctx, text), "position pasted")
	}
	return m, nil
}

func (m *Model) moveCursor(dx, dy int) {
	m.cursor = components.Move(m.cursor, dx, dy)
	if m.holding {
		x, y := m.pointer()
		m.report(m.deps.Table.MouseMove(m.ctx, x, y), "")
	}
}

// pointer returns the window coordinates of a click on the cursor point.
func (m *Model) pointer() (float64, float64) {
	scene, _ := m.deps.Scenes.Latest()
	l := engine.NewLayout(scene.Width, scene.Height)
	cx, cy := engine.PointCenter(m.cursor)
	return l.ToScreen(cx+pointerNudge, cy+pointerNudge)
}

// selectPoint emulates the mouse: in the movement phase the first press
// picks a piece up and the second drops it; otherwise one press is a click.
func (m *Model) selectPoint() {
	ctx, t := m.ctx, m.deps.Table
	x, y := m.pointer()
	if err := t.MouseMove(ctx, x, y); err != nil {
		m.report(err, "")
		return
	}

	if m.view.State == "Normal" && !m.holding {
		if err := t.MouseDown(ctx, x, y, domain.MouseLeft); err != nil {
			m.report(err, "")
			return
		}
		m.holding = true
		m.report(nil, "")
		return
	}
	if !m.holding {
		if err := t.MouseDown(ctx, x, y, domain.MouseLeft); err != nil {
			m.report(err, "")
			return
		}
	}
	m.holding = false
	m.report(t.MouseUp(ctx, x, y, domain.MouseLeft), "")
}

// report shows err, or ok when err is nil.
func (m *Model) report(err error, ok string) {
	if err != nil {
		m.status.Message, m.status.IsError = err.Error(), true
		m.logger.Debug("input rejected", "error", err)
		return
	}
	m.status.Message, m.status.IsError = ok, false
}

func (m *Model) layout() {
	m.status.SetWidth(m.width)
	m.help.Width = m.width
	boardHeight := lipgloss.Height(components.RenderBoard(m.view, m.cursor, false))
	h := m.height - boardHeight - 3
	if h < boardHeight-10 {
		h = boardHeight - 10
	}
	if h < 3 {
		h = 3
	}
	m.events.SetSize(sidePanelWidth, h)
}

// View renders the board, the side panel and the status bar.
func (m *Model) View() string {
	title := theme.PanelTitle.Render(m.deps.Title)
	if m.view.Frame > 0 {
		title += theme.TextMuted.Render(fmt.Sprintf("  frame %d", m.view.Frame))
	}

	boardView := components.RenderBoard(m.view, m.cursor, true)
	side := theme.Panel.Width(sidePanelWidth).Render(m.infoView() + "\n\n" + m.events.View())
	body := lipgloss.JoinHorizontal(lipgloss.Top, boardView, " ", side)

	if white, black, ok := m.view.Difficulties(); ok {
		m.status.Players = fmt.Sprintf("white: %s  black: %s", white, black)
	}
	if m.help.ShowAll {
		m.status.Help = ""
	} else {
		m.status.Help = m.help.View(m.keys)
	}

	parts := []string{title, body}
	if m.help.ShowAll {
		parts = append(parts, m.help.View(m.keys))
	}
	parts = append(parts, m.status.View())
	return strings.Join(parts, "\n")
}

func (m *Model) infoView() string {
	v := m.view
	row := func(label, value string) string {
		return theme.StatLabel.Render(fmt.Sprintf("%-8s", label)) + theme.StatValue.Render(value)
	}

	if v.State == "" {
		return theme.TextMuted.Render("Waiting for the first frame...")
	}
	lines := []string{row("state", v.State), row("turn", strings.ToLower(v.Turn))}
	if v.Winner != "" {
		lines = append(lines, row("winner", theme.TextSuccess.Render(strings.ToLower(v.Winner))))
	}
	if v.SetupLeft > 0 {
		lines = append(lines, row("to set", fmt.Sprintf("%d", v.SetupLeft)))
	}
	if v.Carry != components.MarkNone {
		lines = append(lines, row("holding", components.MarkName(v.Carry)))
	}
	if v.Thinking {
		lines = append(lines, m.spinner.View()+" "+theme.TextInfo.Render("thinking"))
	}
	return strings.Join(lines, "\n")
}
