package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/yrippert-maker/klg-asutk-app-sub001/internal/config"
	"github.com/yrippert-maker/klg-asutk-app-sub001/internal/domain/notification"
	"github.com/yrippert-maker/klg-asutk-app-sub001/internal/pkg/cron"
	"github.com/yrippert-maker/klg-asutk-app-sub001/internal/pkg/realtime"
	"github.com/yrippert-maker/klg-asutk-app-sub001/internal/pkg/session"
	"github.com/yrippert-maker/klg-asutk-app-sub001/internal/service/inbox"
)

func newWatchCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Stay connected and print notifications as they arrive",
		Long: `Connect to the realtime endpoint for the configured user and keep the
unread badge in sync with the REST API until interrupted.

The scope comes from --user/--org, SESSION_USER_ID/SESSION_ORG_ID, or the
claims of the API token.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			return runWatch(cmd.Context(), cmd.OutOrStdout(), cfg, newLogger(cfg))
		},
	}
}

func runWatch(ctx context.Context, out io.Writer, cfg *config.Config, log *slog.Logger) error {
	scope, err := resolveScope(cfg)
	if err != nil {
		return fmt.Errorf("resolve notification scope: %w", err)
	}

	client, err := newAPIClient(cfg)
	if err != nil {
		return err
	}

	var ending atomic.Bool
	manager, err := realtime.NewManager(realtime.Options{
		BaseURL:              cfg.Realtime.BaseURL,
		Logger:               log,
		HeartbeatInterval:    cfg.Realtime.HeartbeatInterval,
		MaxReconnectAttempts: cfg.Realtime.MaxReconnectAttempts,
		BaseDelay:            cfg.Realtime.BaseDelay,
		MaxDelay:             cfg.Realtime.MaxDelay,
		OnStateChange: func(from, to realtime.State) {
			log.Debug("realtime state", "from", from.String(), "to", to.String())
			if to == realtime.StateTerminated && !ending.Load() {
				log.Warn("realtime reconnect budget exhausted; relying on scheduled refresh")
			}
		},
	})
	if err != nil {
		return err
	}
	defer manager.Close()

	frames, unsubscribe := manager.Subscribe()
	defer unsubscribe()

	updates := make(chan inbox.Snapshot, 1)
	box := inbox.New(ctx, client, manager, inbox.Options{
		PageSize: cfg.API.PageSize,
		Logger:   log,
		OnUpdate: func(snap inbox.Snapshot) {
			// Only the latest badge matters
			select {
			case <-updates:
			default:
			}
			select {
			case updates <- snap:
			default:
			}
		},
	})
	defer box.Close()

	sess := session.New(manager, log)
	if err := sess.Start(scope); err != nil {
		return err
	}

	scheduler := cron.NewScheduler(log)
	if cfg.API.RefreshInterval > 0 {
		cron.NewInboxJobs(box, cfg.API.RefreshInterval).RegisterJobs(scheduler)
	}
	scheduler.Start()
	defer scheduler.Stop()

	fmt.Fprintf(out, "Watching notifications for %s (unread: %d)\n", scope.UserID, box.UnreadCount())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case frame, ok := <-frames:
				if !ok {
					return nil
				}
				printFrame(out, frame)
			case snap := <-updates:
				fmt.Fprintf(out, "unread: %d\n", snap.UnreadCount)
			}
		}
	})
	g.Go(func() error {
		<-gctx.Done()
		ending.Store(true)
		sess.End()
		return nil
	})

	return g.Wait()
}

func printFrame(out io.Writer, frame notification.Frame) {
	title := frame.Title
	if title == "" {
		title = frame.Notification().Title
	}
	fmt.Fprintf(out, "%s  %-24s %s", frame.Timestamp.Local().Format(time.TimeOnly), frame.RawType, title)
	if frame.EntityID != "" {
		fmt.Fprintf(out, "  [%s %s]", frame.EntityType, frame.EntityID)
	}
	fmt.Fprintln(out)
}
