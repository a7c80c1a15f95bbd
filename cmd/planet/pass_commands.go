package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"planet/internal/ipc"
)

// newPassCommands returns the commands that run one publish or update pass
// over every eligible feed.
func newPassCommands(ctx *commandContext) []*cobra.Command {
	publishAll := &cobra.Command{
		Use:   "publish-all",
		Short: "Publish every local feed now",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.PublishAll()
				if resp != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "Published %s\n", pluralize(resp.Feeds, "feed", "feeds"))
				}
				return err
			})
		},
	}

	updateAll := &cobra.Command{
		Use:   "update-all",
		Short: "Fetch updates for every followed feed now",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.UpdateAll()
				if resp != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "Updated %s\n", pluralize(resp.Feeds, "feed", "feeds"))
				}
				return err
			})
		},
	}

	return []*cobra.Command{publishAll, updateAll}
}
