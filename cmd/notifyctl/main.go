package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/yrippert-maker/klg-asutk-app-sub001/internal/config"
	"github.com/yrippert-maker/klg-asutk-app-sub001/internal/domain/notification"
	"github.com/yrippert-maker/klg-asutk-app-sub001/internal/pkg/logger"
	"github.com/yrippert-maker/klg-asutk-app-sub001/internal/pkg/notifyapi"
	"github.com/yrippert-maker/klg-asutk-app-sub001/internal/pkg/session"
)

// globalFlags override the environment configuration
type globalFlags struct {
	apiURL      string
	realtimeURL string
	token       string
	userID      string
	orgID       string
	verbose     bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "notifyctl",
		Short: "Airworthiness notification client",
		Long: `notifyctl talks to the notification API of the airworthiness admin backend.

Available subcommands:
  watch    - Stay connected and print notifications as they arrive
  list     - Print the most recent notifications
  read     - Mark one notification as read
  read-all - Mark every notification as read`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&flags.apiURL, "api-url", "", "REST API base URL (overrides API_BASE_URL)")
	rootCmd.PersistentFlags().StringVar(&flags.realtimeURL, "realtime-url", "", "Realtime base URL (overrides REALTIME_BASE_URL)")
	rootCmd.PersistentFlags().StringVar(&flags.token, "token", "", "Bearer token (overrides API_TOKEN)")
	rootCmd.PersistentFlags().StringVar(&flags.userID, "user", "", "User id (overrides SESSION_USER_ID)")
	rootCmd.PersistentFlags().StringVar(&flags.orgID, "org", "", "Organization id (overrides SESSION_ORG_ID)")
	rootCmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "Debug logging")

	rootCmd.AddCommand(
		newWatchCmd(flags),
		newListCmd(flags),
		newReadCmd(flags),
		newReadAllCmd(flags),
	)
	return rootCmd
}

// load reads the configuration and applies flag overrides
func (f *globalFlags) load() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if f.apiURL != "" {
		cfg.API.BaseURL = f.apiURL
	}
	if f.realtimeURL != "" {
		cfg.Realtime.BaseURL = f.realtimeURL
	}
	if f.token != "" {
		cfg.API.Token = f.token
	}
	if f.userID != "" {
		cfg.Session.UserID = f.userID
	}
	if f.orgID != "" {
		cfg.Session.OrganizationID = f.orgID
	}
	if f.verbose {
		cfg.App.LogLevel = "debug"
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	return logger.NewWithWriter(os.Stderr, cfg.App.Env, cfg.App.LogLevel)
}

func newAPIClient(cfg *config.Config) (*notifyapi.Client, error) {
	return notifyapi.NewClient(cfg.API.BaseURL, notifyapi.StaticToken(cfg.API.Token), nil)
}

func resolveScope(cfg *config.Config) (notification.Scope, error) {
	return session.Resolve(notification.Scope{
		UserID:         cfg.Session.UserID,
		OrganizationID: cfg.Session.OrganizationID,
	}, cfg.API.Token)
}
