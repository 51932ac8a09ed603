package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"muehle-agent/internal/agent"
	"muehle-agent/internal/usecase/selfplay"
)

// selfplay: play a batch of computer-vs-computer games into the history.
func selfplayCmd() *cobra.Command {
	var white, black string
	var games, maxPlies int

	cmd := &cobra.Command{
		Use:   "selfplay",
		Short: "Play computer-vs-computer games into the history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			runner, err := appCtx.SelfPlay()
			if err != nil {
				return err
			}
			opts := selfplay.Options{Games: games, MaxPlies: maxPlies}
			if white != "" {
				if opts.White, err = agent.ParseDifficulty(white); err != nil {
					return err
				}
			}
			if black != "" {
				if opts.Black, err = agent.ParseDifficulty(black); err != nil {
					return err
				}
			}

			sum, err := runner.Run(cmd.Context(), opts)
			out := cmd.OutOrStdout()
			for _, g := range sum.Games {
				fmt.Fprintf(out, "%s  %-6s vs %-6s  %-5s  %d plies\n", g.ID, g.White, g.Black, g.Winner, g.Plies)
			}
			fmt.Fprintf(out, "white %d  black %d  draws %d\n", sum.WhiteWins, sum.BlackWins, sum.Draws)
			return err
		},
	}
	cmd.Flags().IntVarP(&games, "games", "n", 0, "number of games (default selfplay.games)")
	cmd.Flags().StringVar(&white, "white", "", "white difficulty (default selfplay.white)")
	cmd.Flags().StringVar(&black, "black", "", "black difficulty (default selfplay.black)")
	cmd.Flags().IntVar(&maxPlies, "max-plies", 0, "plies after which a game is a draw (default selfplay.max_plies)")
	return cmd
}
