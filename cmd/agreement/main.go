// cmd/agreement runs a single-decree Paxos agreement node identified by
// --node-id, listening on --port, exposing the HTTP RPC surface defined in
// internal/agreement.
package main

import (
	"fmt"
	"log"
	"os"

	"replicated-agreement/internal/agreement"

	"github.com/spf13/cobra"
)

func main() {
	var nodeID uint64
	var port string
	var walPath string

	root := &cobra.Command{
		Use:   "agreement",
		Short: "Runs a single-decree Paxos agreement node",
		RunE: func(cmd *cobra.Command, args []string) error {
			addr := fmt.Sprintf("0.0.0.0:%s", port)

			var node *agreement.Node
			if walPath != "" {
				store, err := agreement.NewDurableDataStore(walPath)
				if err != nil {
					return fmt.Errorf("open decree log at %s: %w", walPath, err)
				}
				defer store.Close()
				node = agreement.NewNodeWithStore(nodeID, addr, store)
				log.Printf("node %d: recovered decree log from %s", nodeID, walPath)
			} else {
				node = agreement.NewNode(nodeID, addr)
			}

			log.Printf("Launching node at: http://%s", addr)

			router := node.Router()
			return router.Run(addr)
		},
	}

	root.Flags().Uint64Var(&nodeID, "node-id", 0, "unique node identifier")
	root.Flags().StringVarP(&port, "port", "p", "8080", "listen port")
	root.Flags().StringVar(&walPath, "wal-path", "", "persist learned decrees to this file and replay them on restart (disabled if empty)")
	root.MarkFlagRequired("node-id")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
