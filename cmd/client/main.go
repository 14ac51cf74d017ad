// cmd/client is a small CLI wrapper around internal/client's HTTP SDK, for
// poking at a running agreement node by hand.
//
// Usage:
//
//	agreementctl info                      --server http://localhost:8080
//	agreementctl connect 127.0.0.1:8081     --server http://localhost:8080
//	agreementctl propose "new-leader: n2"   --server http://localhost:8080
//	agreementctl raw /info                  --server http://localhost:8080
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"replicated-agreement/internal/client"

	"github.com/spf13/cobra"
)

var (
	serverAddr string
	timeout    time.Duration
)

func main() {
	root := &cobra.Command{
		Use:   "agreementctl",
		Short: "CLI client for an agreement node",
	}

	root.PersistentFlags().StringVarP(&serverAddr, "server", "s",
		"http://localhost:8080", "agreement node address")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second,
		"HTTP request timeout")

	root.AddCommand(infoCmd(), connectCmd(), proposeCmd(), rawCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func infoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Fetch the node's identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(serverAddr, timeout)
			info, err := c.Info(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("node_id=%d address=%s\n", info.NodeID, info.Address)
			return nil
		},
	}
}

func connectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "connect <peer-address>",
		Short: "Ask the node to connect to a peer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(serverAddr, timeout)
			if err := c.Connect(context.Background(), args[0]); err != nil {
				return err
			}
			fmt.Println("connected")
			return nil
		},
	}
}

func rawCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "raw <path>",
		Short: "GET an arbitrary path and print the raw response body (for routes with no structured response, like /info)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(serverAddr, timeout)
			body, err := c.GetRaw(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Println(body)
			return nil
		},
	}
}

func proposeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "propose <value>",
		Short: "Run the agreement algorithm for a value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(serverAddr, timeout)
			if err := c.Propose(context.Background(), args[0]); err != nil {
				return err
			}
			fmt.Println("proposal agreed by majority")
			return nil
		},
	}
}
