package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	configPath string
	appCtx     *App
)

// tuiAnnotation marks commands that take over the terminal.
const tuiAnnotation = "tui"

func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := newRootCmd()
	err := root.ExecuteContext(ctx)
	if appCtx != nil {
		if cerr := appCtx.Close(context.Background()); cerr != nil && err == nil {
			err = cerr
		}
		appCtx = nil
	}
	return err
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "muehle",
		Short:        "Nine Men's Morris engine, computer player and WASM host",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				configPath = os.Getenv("MUEHLE_CONFIG")
			}
			if configPath == "" {
				configPath = "config.yaml"
			}
			tui := cmd.Annotations[tuiAnnotation] == "true"
			if f := cmd.Flags().Lookup("tui"); f != nil {
				tui = f.Value.String() == "true"
			}
			app, err := newApp(cmd.Context(), configPath, tui)
			if err != nil {
				return err
			}
			appCtx = app
			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (default $MUEHLE_CONFIG or ./config.yaml)")

	root.AddCommand(
		playCmd(),
		analyzeCmd(),
		serveCmd(),
		hostCmd(),
		validateCmd(),
		selfplayCmd(),
		historyCmd(),
	)
	return root
}
