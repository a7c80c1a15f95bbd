package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"planet/internal/ipc"
)

func newTestNotifyCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "test-notify",
		Short: "Push a test message to the configured ntfy topic",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.TestNotification()
				if resp == nil && err == nil {
					err = errors.New("daemon returned no notification result")
				}
				if asJSON && resp != nil {
					if encErr := writeJSON(cmd, resp); encErr != nil {
						return encErr
					}
					return err
				}
				out := cmd.OutOrStdout()
				if resp != nil && resp.Message != "" {
					fmt.Fprintln(out, resp.Message)
				}
				if err != nil {
					return err
				}
				if !resp.Sent {
					if topic := notifyTopic(ctx); topic == "" {
						fmt.Fprintln(out, "Set notifications.ntfy_topic in the config file to enable push alerts")
					}
					return nil
				}
				if resp.Message == "" {
					fmt.Fprintf(out, "Test notification sent to %s\n", notifyTopic(ctx))
				}
				return nil
			})
		},
	}
	addJSONFlag(cmd, &asJSON)
	return cmd
}

func notifyTopic(ctx *commandContext) string {
	cfg := ctx.configValue()
	if cfg == nil {
		return ""
	}
	return strings.TrimSpace(cfg.Notifications.NtfyTopic)
}
