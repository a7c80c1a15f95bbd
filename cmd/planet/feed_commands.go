package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"planet/internal/api"
	"planet/internal/ipc"
)

func newFeedCommand(ctx *commandContext) *cobra.Command {
	feedCmd := &cobra.Command{
		Use:   "feed",
		Short: "Create, follow and inspect feeds",
	}

	feedCmd.AddCommand(newFeedListCommand(ctx))
	feedCmd.AddCommand(newFeedShowCommand(ctx))
	feedCmd.AddCommand(newFeedCreateCommand(ctx))
	feedCmd.AddCommand(newFeedDeleteCommand(ctx))
	feedCmd.AddCommand(newFeedFollowCommand(ctx))
	feedCmd.AddCommand(newFeedUnfollowCommand(ctx))
	feedCmd.AddCommand(newFeedPublishCommand(ctx))
	feedCmd.AddCommand(newFeedUpdateCommand(ctx))

	return feedCmd
}

func newFeedListCommand(ctx *commandContext) *cobra.Command {
	var kind string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List local and followed feeds",
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := ctx.openFeedAccess()
			if err != nil {
				return err
			}
			defer session.Close()

			items, err := session.Access.List(cmd.Context(), kind)
			if err != nil {
				return err
			}
			if asJSON {
				if items == nil {
					items = []api.Feed{}
				}
				return writeJSON(cmd, items)
			}
			out := cmd.OutOrStdout()
			if len(items) == 0 {
				fmt.Fprintln(out, "No feeds")
				return nil
			}
			fmt.Fprint(out, renderTable(tableSpec{
				headers:   []string{"ID", "Name", "Kind", "Articles", "Unread", "Activity"},
				aligns:    []columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
				maxWidths: []int{0, 40},
			}, buildFeedListRows(items)))
			if !session.Access.Live() {
				fmt.Fprintln(out, "Daemon offline; showing stored feeds")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "Filter by kind: local or followed")
	addJSONFlag(cmd, &asJSON)
	return cmd
}

func newFeedShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <feed-id>",
		Short: "Show a feed and its articles",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := ctx.openFeedAccess()
			if err != nil {
				return err
			}
			defer session.Close()

			id := strings.TrimSpace(args[0])
			detail, err := session.Access.Describe(cmd.Context(), id)
			if err != nil {
				return err
			}
			if detail == nil {
				return fmt.Errorf("feed %s not found", id)
			}
			if asJSON {
				return writeJSON(cmd, detail)
			}
			renderFeedDetail(cmd.OutOrStdout(), detail)
			return nil
		},
	}
	addJSONFlag(cmd, &asJSON)
	return cmd
}

func renderFeedDetail(out io.Writer, detail *api.FeedDetail) {
	feed := detail.Feed
	fmt.Fprintf(out, "%s (%s)\n", feed.Name, feedKindLabel(feed))
	fmt.Fprintf(out, "  ID:       %s\n", feed.ID)
	fmt.Fprintf(out, "  Address:  %s\n", feed.Address)
	if about := strings.TrimSpace(feed.About); about != "" {
		fmt.Fprintf(out, "  About:    %s\n", about)
	}
	fmt.Fprintf(out, "  Activity: %s\n", feedActivity(feed))
	fmt.Fprintf(out, "  Articles: %s (%d unread)\n", pluralize(feed.Articles, "article", "articles"), feed.Unread)
	if len(detail.Articles) == 0 {
		return
	}
	fmt.Fprintln(out)
	fmt.Fprint(out, renderTable(tableSpec{
		headers:   []string{"ID", "Title", "State", "Created"},
		aligns:    []columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft},
		maxWidths: []int{0, 50},
	}, buildArticleRows(detail.Articles)))
}

func newFeedCreateCommand(ctx *commandContext) *cobra.Command {
	var about string

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a local feed with a fresh IPNS key",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := strings.TrimSpace(strings.Join(args, " "))
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.FeedCreate(name, about)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created feed %s (%s)\nAddress: %s\n", resp.Feed.Name, resp.Feed.ID, resp.Feed.Address)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&about, "about", "", "Short description of the feed")
	return cmd
}

func newFeedDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <feed-id>",
		Short: "Delete a local feed and remove its key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return feedAction(ctx, cmd, args[0], "Deleted", (*ipc.Client).FeedDelete)
		},
	}
}

func newFeedFollowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "follow <address>",
		Short: "Follow a feed by its IPNS address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Follow(strings.TrimSpace(args[0]))
				if err != nil {
					return err
				}
				name := resp.Feed.Name
				if name == "" {
					name = resp.Feed.Address
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Following %s (%s)\n", name, resp.Feed.ID)
				return nil
			})
		},
	}
}

func newFeedUnfollowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "unfollow <feed-id>",
		Short: "Stop following a feed and drop its stored articles",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return feedAction(ctx, cmd, args[0], "Unfollowed", (*ipc.Client).Unfollow)
		},
	}
}

func newFeedPublishCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "publish <feed-id>",
		Short: "Publish a local feed to IPNS now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return feedAction(ctx, cmd, args[0], "Published", (*ipc.Client).Publish)
		},
	}
}

func newFeedUpdateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "update <feed-id>",
		Short: "Fetch the latest version of a followed feed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return feedAction(ctx, cmd, args[0], "Updated", (*ipc.Client).Update)
		},
	}
}

func feedAction(ctx *commandContext, cmd *cobra.Command, id, verb string, call func(*ipc.Client, string) (*ipc.AckResponse, error)) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("feed id is required")
	}
	return ctx.withClient(func(client *ipc.Client) error {
		if _, err := call(client, id); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s feed %s\n", verb, id)
		return nil
	})
}
