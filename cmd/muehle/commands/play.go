package commands

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"muehle-agent/internal/adapter/tui/play"
	"muehle-agent/internal/agent"
	"muehle-agent/internal/domain"
	"muehle-agent/internal/engine"
	"muehle-agent/internal/usecase/history"
)

// localSession is the engine session id of a terminal game.
const localSession = "local"

// play: run the engine in-process behind the terminal board.
func playCmd() *cobra.Command {
	var white, black, load string
	var noHistory bool

	cmd := &cobra.Command{
		Use:         "play",
		Short:       "Play in the terminal against the computer",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{tuiAnnotation: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := appCtx.Config
			if white != "" {
				cfg.Game.White = white
			}
			if black != "" {
				cfg.Game.Black = black
			}
			if load != "" {
				cfg.Game.Load = load
			}
			w, b, err := appCtx.Players()
			if err != nil {
				return err
			}

			if !noHistory {
				st, err := appCtx.Store()
				if err != nil {
					return err
				}
				rec := history.NewRecorder(st, func(string) string { return domain.SourceLocal }, appCtx.Logger)
				defer rec.Attach(appCtx.Bus)()
			}

			box := play.NewSceneBox()
			files := play.NewLocalPlatform(box, appCtx.Logger)
			eng := engine.New(engine.Options{
				Platform:  files,
				Presenter: box,
				Mover:     appCtx.Agent,
				Bus:       appCtx.Bus,
				Logger:    appCtx.Logger,
				SessionID: localSession,
				White:     w,
				Black:     b,
				LoadPath:  cfg.Game.Load,
				Width:     cfg.Host.Width,
				Height:    cfg.Host.Height,
			})
			defer eng.Close()

			if _, err := eng.Main(ctx, 0, 0); err != nil {
				return err
			}

			model := play.NewModel(ctx, play.Deps{
				Table:  eng,
				Scenes: box,
				Files:  files,
				Bus:    appCtx.Bus,
				FPS:    cfg.Host.FPS,
				Logger: appCtx.Logger,
			})
			p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
			model.SetProgramSender(p.Send)
			if _, err := p.Run(); err != nil {
				return fmt.Errorf("run board: %w", err)
			}

			appCtx.Bus.Publish(ctx, domain.NewEvent(domain.EventSessionClosed, localSession, map[string]int{"plies": eng.Plies()}))
			return model.Err()
		},
	}
	cmd.Flags().StringVar(&white, "white", "", "white computer player: "+difficultyNames())
	cmd.Flags().StringVar(&black, "black", "", "black computer player: "+difficultyNames())
	cmd.Flags().StringVar(&load, "load", "", "snapshot file to start from")
	cmd.Flags().BoolVar(&noHistory, "no-history", false, "do not record the game")
	return cmd
}

func difficultyNames() string {
	return fmt.Sprintf("%s, %s, %s or %s", agent.Off, agent.Easy, agent.Medium, agent.Hard)
}
