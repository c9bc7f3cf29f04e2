package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/kutluhann/xordht/api"
)

var (
	nodeAddr string
	timeout  time.Duration
)

var rootCmd = &cobra.Command{
	Use:          "client",
	Short:        "Get and set values through a node's client API",
	SilenceUsage: true,
}

var getCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Look up the value stored under key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := api.NewClient(nodeAddr)
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		resp, err := client.Get(ctx, []byte(args[0]))
		if err != nil {
			return err
		}
		if !resp.Found() {
			return fmt.Errorf("key %q not found", args[0])
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(resp.Value))
		return nil
	},
}

var setCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Store value under key",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := api.NewClient(nodeAddr)
		if err != nil {
			return err
		}
		return client.Set([]byte(args[0]), []byte(args[1]))
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&nodeAddr, "node", "127.0.0.1:9090", "client API address of a node")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second, "how long to wait for an answer")
	rootCmd.AddCommand(getCmd, setCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
