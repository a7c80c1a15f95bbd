package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"planet/internal/ipc"
)

func newNodeCommand(ctx *commandContext) *cobra.Command {
	nodeCmd := &cobra.Command{
		Use:   "node",
		Short: "Control the supervised IPFS node",
	}

	nodeCmd.AddCommand(&cobra.Command{
		Use:   "start",
		Short: "Launch the IPFS node now",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				if _, err := client.NodeStart(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "IPFS node launch requested")
				return nil
			})
		},
	})

	nodeCmd.AddCommand(&cobra.Command{
		Use:   "stop",
		Short: "Shut down the IPFS node and disable auto-launch",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				if _, err := client.NodeStop(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "IPFS node stopped")
				return nil
			})
		},
	})

	var portsJSON bool
	portsCmd := &cobra.Command{
		Use:   "ports",
		Short: "Show negotiated node ports",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Ports()
				if err != nil {
					return err
				}
				if portsJSON {
					return writeJSON(cmd, resp)
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(tableSpec{
					headers: []string{"Port", "Configured", "Active"},
					aligns:  []columnAlignment{alignLeft, alignRight, alignRight},
				}, [][]string{
					{"API", portString(resp.DesiredAPI), portString(resp.APIPort)},
					{"Gateway", portString(resp.DesiredGateway), portString(resp.GatewayPort)},
					{"Swarm", portString(resp.SwarmPort), portString(resp.SwarmPort)},
				}))
				fmt.Fprintf(cmd.OutOrStdout(), "Repository: %s\nBinary: %s\n", resp.RepoPath, resp.BinaryPath)
				return nil
			})
		},
	}
	addJSONFlag(portsCmd, &portsJSON)
	nodeCmd.AddCommand(portsCmd)

	return nodeCmd
}

func portString(port uint16) string {
	if port == 0 {
		return "-"
	}
	return fmt.Sprintf("%d", port)
}
