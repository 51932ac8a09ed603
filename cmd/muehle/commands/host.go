package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"muehle-agent/internal/adapter/tui/components"
	"muehle-agent/internal/adapter/tui/play"
	"muehle-agent/internal/host"
	"muehle-agent/internal/infra/netguard"
	"muehle-agent/pkg/guestsdk"
)

// host <guest.wasm|url>: load a guest and run its frame loop, headless or
// behind the terminal board.
func hostCmd() *cobra.Command {
	var tui, verbose bool
	var frames int

	cmd := &cobra.Command{
		Use:   "host <guest.wasm|url>",
		Short: "Load a guest module and drive it frame by frame",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := appCtx.Config
			log := appCtx.Logger

			if cfg.Host.BlockPrivateURLs && isURL(args[0]) {
				if err := netguard.CheckURL(args[0]); err != nil {
					return err
				}
			}
			rt, err := appCtx.HostRuntime(ctx)
			if err != nil {
				return err
			}

			box := play.NewSceneBox()
			opts := host.Options{
				Name:      "guest",
				Presenter: box,
				Clipboard: box.SetClipboard,
			}
			if verbose && !tui {
				opts.Stdout, opts.Stderr = cmd.OutOrStdout(), cmd.ErrOrStderr()
			}

			var inst *host.Instance
			select {
			case res := <-host.InitAsync(ctx, rt, args[0], opts):
				if res.Err != nil {
					return res.Err
				}
				inst = res.Instance
			case <-ctx.Done():
				return ctx.Err()
			}
			defer inst.Close(context.Background())
			if v, ok, err := inst.CrateVersion(ctx); err == nil && ok {
				log.Info("guest loaded", "module", inst.Name(), "version", v)
			}
			if err := inst.Resize(ctx, cfg.Host.Width, cfg.Host.Height); err != nil {
				log.Debug("guest rejected resize", "error", err)
			}

			runner := host.NewRunner(inst, host.RunnerConfig{
				FPS:       cfg.Host.FPS,
				MaxTraps:  uint32(cfg.Host.MaxTraps),
				MaxFrames: frames,
			}, log)

			if tui {
				model := play.NewModel(ctx, play.Deps{
					Table:   inst,
					Scenes:  box,
					Stepper: runner,
					Fatal:   host.Stopped,
					Bus:     appCtx.Bus,
					FPS:     cfg.Host.FPS,
					Title:   "Mühle · " + inst.Name(),
					Logger:  log,
				})
				p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
				model.SetProgramSender(p.Send)
				if _, err := p.Run(); err != nil {
					return fmt.Errorf("run board: %w", err)
				}
				return model.Err()
			}

			err = runner.Run(ctx)
			printFinalScene(cmd.OutOrStdout(), box)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&tui, "tui", false, "show the guest on the terminal board")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "copy the guest's stdout and stderr")
	cmd.Flags().IntVar(&frames, "frames", 0, "stop after this many frames (0 = until interrupted)")
	return cmd
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func printFinalScene(w io.Writer, box *play.SceneBox) {
	scene, ok := box.Latest()
	if !ok {
		fmt.Fprintln(w, "guest presented no scene")
		return
	}
	v := components.ReadScene(scene)
	fmt.Fprintln(w, components.RenderBoard(v, 0, false))
	fmt.Fprintf(w, "frame %d  state %s  turn %s\n", v.Frame, v.State, strings.ToLower(v.Turn))
}

// validate <guest.wasm>: compile a module and check its export table.
func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <guest.wasm>",
		Short: "Check that a guest module implements the export table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			wasm, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			rt, err := appCtx.HostRuntime(ctx)
			if err != nil {
				return err
			}
			compiled, err := host.Compile(ctx, rt, wasm)
			if err != nil {
				return err
			}
			defer compiled.Close(ctx)

			exports := compiled.ExportedFunctions()
			optional := 0
			for _, e := range guestsdk.OptionalExports {
				if _, ok := exports[e.Name]; ok {
					optional++
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%d required, %d of %d optional exports)\n",
				args[0], len(guestsdk.RequiredExports), optional, len(guestsdk.OptionalExports))
			return nil
		},
	}
}
