package commands

import (
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"muehle-agent/internal/board"
	"muehle-agent/internal/domain"
)

// history list|show: read recorded games.
func historyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List and show recorded games",
	}
	cmd.AddCommand(historyListCmd(), historyShowCmd())
	return cmd
}

func historyListCmd() *cobra.Command {
	var f domain.GameFilter
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded games, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := appCtx.Store()
			if err != nil {
				return err
			}
			games, err := st.ListGames(cmd.Context(), f)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, games)
			}
			if len(games) == 0 {
				fmt.Fprintln(out, "no games recorded")
				return nil
			}
			writeGameTable(out, games)
			return nil
		},
	}
	cmd.Flags().StringVar(&f.Source, "source", "", "only games from selfplay, gateway or local")
	cmd.Flags().StringVar(&f.Winner, "winner", "", "only games won by White, Black or drawn (Draw)")
	cmd.Flags().IntVarP(&f.Limit, "limit", "n", 20, "maximum number of games (0 = all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func historyShowCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <game-id>",
		Short: "Show a recorded game with its moves",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, err := appCtx.Store()
			if err != nil {
				return err
			}
			rec, err := st.GetGame(ctx, args[0])
			if err != nil {
				return err
			}
			moves, err := st.Moves(ctx, rec.ID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, struct {
					*domain.GameRecord
					Moves []domain.MoveRecord `json:"moves"`
				}{rec, moves})
			}

			writeGameTable(out, []domain.GameRecord{*rec})
			for _, mv := range moves {
				fmt.Fprintf(out, "%3d. %-5s %s\n", mv.Ply, mv.Color, moveNotation(mv))
			}
			if rec.FinalBoard != "" {
				if b, err := board.Decode(rec.FinalBoard); err == nil {
					fmt.Fprintln(out)
					fmt.Fprintln(out, b)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func writeGameTable(w io.Writer, games []domain.GameRecord) {
	rows := make([][]string, 0, len(games))
	for _, g := range games {
		winner := g.Winner
		if winner == "" {
			winner = "-"
		}
		rows = append(rows, []string{
			g.ID,
			g.StartedAt.Local().Format("2006-01-02 15:04"),
			g.Source,
			g.White,
			g.Black,
			winner,
			strconv.Itoa(g.Plies),
		})
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ID", "STARTED", "SOURCE", "WHITE", "BLACK", "WINNER", "PLIES").
		Rows(rows...)
	fmt.Fprintln(w, t.String())
}

// moveNotation prints a move with 1-based points, as the analyze answers do.
func moveNotation(mv domain.MoveRecord) string {
	pt := func(p *int) string {
		if p == nil {
			return "-"
		}
		return strconv.Itoa(*p + 1)
	}
	return fmt.Sprintf("%s %d %s", pt(mv.From), mv.To+1, pt(mv.Capture))
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
