package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/yrippert-maker/klg-asutk-app-sub001/internal/domain/notification"
	"github.com/yrippert-maker/klg-asutk-app-sub001/internal/pkg/notifyapi"
)

// listOptions are the flags of the list command
type listOptions struct {
	unreadOnly bool
	perPage    int
}

func newListCmd(flags *globalFlags) *cobra.Command {
	opts := &listOptions{}
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print the most recent notifications",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			client, err := newAPIClient(cfg)
			if err != nil {
				return err
			}
			perPage := opts.perPage
			if perPage <= 0 {
				perPage = cfg.API.PageSize
			}
			return runList(cmd.Context(), cmd.OutOrStdout(), client, notification.ListParams{
				PerPage:    perPage,
				UnreadOnly: opts.unreadOnly,
			})
		},
	}
	cmd.Flags().BoolVar(&opts.unreadOnly, "unread", false, "Only unread notifications")
	cmd.Flags().IntVar(&opts.perPage, "per-page", 0, "Page size (default API_PAGE_SIZE)")
	return cmd
}

func newReadCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "read <id>",
		Short: "Mark one notification as read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			client, err := newAPIClient(cfg)
			if err != nil {
				return err
			}
			if err := client.MarkRead(cmd.Context(), args[0]); err != nil {
				if notifyapi.IsNotFound(err) {
					return fmt.Errorf("notification %s not found", args[0])
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Marked %s as read\n", args[0])
			return nil
		},
	}
}

func newReadAllCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "read-all",
		Short: "Mark every notification as read",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			client, err := newAPIClient(cfg)
			if err != nil {
				return err
			}
			if err := client.MarkAllRead(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "All notifications marked as read")
			return nil
		},
	}
}

func runList(ctx context.Context, out io.Writer, source notification.Source, params notification.ListParams) error {
	items, err := source.List(ctx, params)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		fmt.Fprintln(out, "No notifications")
		return nil
	}
	return printNotifications(out, items)
}

func printNotifications(out io.Writer, items []notification.Notification) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "\tCREATED\tTYPE\tTITLE\tID")
	for _, n := range items {
		marker := " "
		if !n.IsRead {
			marker = "*"
		}
		created := "-"
		if !n.CreatedAt.IsZero() {
			created = n.CreatedAt.Local().Format(time.DateTime)
		}
		kind := string(n.Kind)
		if kind == "" {
			kind = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", marker, created, kind, n.Title, n.ID)
	}
	return w.Flush()
}
