package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"muehle-agent/internal/adapter/gateway"
	"muehle-agent/internal/domain"
	"muehle-agent/internal/infra/config"
	"muehle-agent/internal/usecase/history"
	"muehle-agent/internal/usecase/scheduling"
)

// serve: websocket gateway plus the self-play scheduler, until SIGINT/SIGTERM.
func serveCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the websocket gateway and scheduled self-play",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := appCtx.Config
			log := appCtx.Logger
			if addr != "" {
				cfg.Gateway.Addr = addr
				cfg.Gateway.Enabled = true
			}
			if !cfg.Gateway.Enabled && !cfg.Scheduler.Enabled {
				return fmt.Errorf("nothing to serve: enable gateway or scheduler, or pass --addr")
			}

			st, err := appCtx.Store()
			if err != nil {
				return err
			}
			g, ctx := errgroup.WithContext(ctx)

			// --- Scheduler ---
			if cfg.Scheduler.Enabled {
				runner, err := appCtx.SelfPlay()
				if err != nil {
					return err
				}
				sched := scheduling.NewScheduler(log, appCtx.Bus)
				sched.RegisterAction(scheduling.ActionSelfPlay, runner.Action())
				if err := addTasks(sched, cfg.Scheduler.Tasks); err != nil {
					return err
				}
				if err := sched.Start(ctx); err != nil {
					return fmt.Errorf("start scheduler: %w", err)
				}
				log.Info("scheduler started", "tasks", len(cfg.Scheduler.Tasks))
				g.Go(func() error {
					<-ctx.Done()
					return sched.Stop()
				})
			}

			// --- Gateway ---
			if cfg.Gateway.Enabled {
				white, black, err := appCtx.Players()
				if err != nil {
					return err
				}
				auth, err := gateway.NewAuthenticator(cfg.Gateway.Auth)
				if err != nil {
					return fmt.Errorf("gateway auth: %w", err)
				}
				rec := history.NewRecorder(st, func(string) string { return domain.SourceGateway }, log)
				defer rec.Attach(appCtx.Bus)()

				srv := gateway.NewServer(gateway.Deps{
					Agent:   appCtx.Agent,
					Bus:     appCtx.Bus,
					Auth:    auth,
					Metrics: appCtx.Metrics,
					Logger:  log,
					Config:  cfg.Gateway,
					White:   white,
					Black:   black,
				})
				// Start stops the server itself once ctx is done.
				g.Go(func() error { return srv.Start(ctx) })
			}

			err = g.Wait()
			log.Info("shutting down")
			return err
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "gateway listen address; enables the gateway")
	return cmd
}

func addTasks(sched *scheduling.Scheduler, tasks []config.ScheduledTaskConfig) error {
	for _, t := range tasks {
		timeout := t.Timeout
		if timeout <= 0 {
			timeout = scheduling.DefaultTaskTimeout
		}
		err := sched.AddTask(scheduling.ScheduledTask{
			Name:     t.Name,
			Schedule: t.Schedule,
			Action:   scheduling.ScheduledAction(t.Action),
			Timeout:  timeout,
			OneShot:  t.OneShot,
			Games:    t.Games,
			White:    t.White,
			Black:    t.Black,
		})
		if err != nil {
			return fmt.Errorf("scheduler task %q: %w", t.Name, err)
		}
	}
	return nil
}

