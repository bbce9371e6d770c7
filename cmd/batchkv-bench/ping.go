package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/batchkv/go-batchkv/client"
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Connect with the configured client and send PING",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		e, err := setup()
		if err != nil {
			return err
		}
		defer e.close(ctx)

		c, err := client.New(ctx, e.client)
		if err != nil {
			return err
		}
		defer c.Close()

		reply, err := c.Ping(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%s)\n", c.ServerAddr(), reply, e.client.Describe())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pingCmd)
}
