package commands

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"muehle-agent/internal/agent"
)

// analyze [query...]: answer "<P|M> <W|B> <board>" lines from the arguments,
// or from stdin when there are none.
func analyzeCmd() *cobra.Command {
	var level string

	cmd := &cobra.Command{
		Use:   "analyze [query...]",
		Short: "Answer position queries, one line each",
		Long: `Reads "<P|M> <W|B> <24-char board>" lines and prints the chosen move as
"<from|-> <to> <capture|-> score=<n> depth=<d>" with 1-based points.
Lines come from the arguments or, when there are none, from stdin.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := agent.ParseDifficulty(level)
			if err != nil {
				return err
			}
			if d == agent.Off {
				return fmt.Errorf("analyze needs a playing difficulty, got %s", d)
			}
			session := appCtx.Agent.NewLineSession(d)

			var in io.Reader = cmd.InOrStdin()
			if len(args) > 0 {
				in = strings.NewReader(strings.Join(args, "\n"))
			}
			return answerLines(cmd.Context(), session, in, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	cmd.Flags().StringVarP(&level, "difficulty", "d", "hard", "search difficulty: easy, medium or hard")
	return cmd
}

// answerLines answers every non-empty line of in. A bad line is reported on
// errOut and does not end the session.
func answerLines(ctx context.Context, s *agent.LineSession, in io.Reader, out, errOut io.Writer) error {
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		answer, err := s.Answer(ctx, line)
		if err != nil {
			fmt.Fprintf(errOut, "error: %v\n", err)
			continue
		}
		fmt.Fprintln(out, answer)
	}
	return sc.Err()
}
