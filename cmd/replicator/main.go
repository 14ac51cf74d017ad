// cmd/replicator is the main entrypoint for a replicated-agreement node:
// a single binary that runs the dispatcher, coordinator, or follower role
// depending on the selected subcommand.
//
// Example — three-node cluster with the dispatcher in front:
//
//	./replicator load-balancer --addr :9000
//	./replicator leader         --addr :9001 --dispatcher :9000
//	./replicator follower       --addr :9002 --dispatcher :9000 --coordinator :9001
//	./replicator follower       --addr :9003 --dispatcher :9000 --coordinator :9001
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"replicated-agreement/internal/coordinator"
	"replicated-agreement/internal/dispatcher"
	"replicated-agreement/internal/follower"
	"replicated-agreement/internal/heartbeat"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "replicator",
		Short: "Runs a dispatcher, coordinator (leader), or follower node",
	}

	root.AddCommand(loadBalancerCmd(), leaderCmd(), followerCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func waitForShutdown(label string, closeFn func() error) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Printf("shutting down %s", label)
	if err := closeFn(); err != nil {
		log.Printf("%s shutdown error: %v", label, err)
	}
}

// ─── load-balancer ──────────────────────────────────────────────────────────

func loadBalancerCmd() *cobra.Command {
	var addr string
	var correlate bool

	cmd := &cobra.Command{
		Use:     "load-balancer",
		Aliases: []string{"load_balancer"},
		Short:   "Run the UDP dispatcher that fronts the coordinator and followers",
		RunE: func(cmd *cobra.Command, args []string) error {
			if correlate {
				d, err := dispatcher.NewCorrelated(addr)
				if err != nil {
					return fmt.Errorf("open correlated dispatcher: %w", err)
				}
				go func() {
					if err := d.Serve(); err != nil {
						log.Printf("dispatcher serve error: %v", err)
					}
				}()
				log.Printf("dispatcher (correlated) listening on %s", addr)
				waitForShutdown("dispatcher", d.Close)
				return nil
			}

			d, err := dispatcher.New(addr)
			if err != nil {
				return fmt.Errorf("open dispatcher: %w", err)
			}
			go func() {
				if err := d.Serve(); err != nil {
					log.Printf("dispatcher serve error: %v", err)
				}
			}()
			log.Printf("dispatcher listening on %s", addr)
			waitForShutdown("dispatcher", d.Close)
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":9000", "UDP listen address")
	cmd.Flags().BoolVar(&correlate, "correlate-replies", false,
		"track in-flight requests by request id instead of a single pending-client slot")
	return cmd
}

// ─── leader (coordinator) ───────────────────────────────────────────────────

func leaderCmd() *cobra.Command {
	var addr, dispatcherAddr string
	var multicastGroup, multicastIface string
	var multicastTTL int
	var redisAddr, redisKey, nodeID string

	cmd := &cobra.Command{
		Use:   "leader",
		Short: "Run the coordinator that replicates client requests to followers",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := coordinator.New(addr)
			if err != nil {
				return fmt.Errorf("open coordinator: %w", err)
			}

			if multicastGroup != "" {
				mcast, err := coordinator.NewMulticastTransport(
					eng.Conn(), multicastGroup, multicastIface, multicastTTL)
				if err != nil {
					return fmt.Errorf("configure multicast transport: %w", err)
				}
				eng.WithTransport(mcast)
			}

			if redisAddr != "" {
				client := redis.NewClient(&redis.Options{Addr: redisAddr})
				pub := heartbeat.NewPublisher(client, redisKey, nodeID)
				ctx, cancel := context.WithCancel(context.Background())
				defer cancel()
				go pub.Run(ctx, time.Second)
			}

			go func() {
				if err := eng.RegisterWithDispatcher(dispatcherAddr); err != nil {
					log.Printf("register with dispatcher: %v", err)
				}
			}()

			go func() {
				if err := eng.Serve(); err != nil {
					log.Printf("coordinator serve error: %v", err)
				}
			}()

			log.Printf("coordinator listening on %s", addr)
			waitForShutdown("coordinator", eng.Close)
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":9001", "UDP listen address")
	cmd.Flags().StringVar(&dispatcherAddr, "dispatcher", ":9000", "dispatcher address to register with")
	cmd.Flags().StringVar(&multicastGroup, "multicast-group", "", "enable multicast fan-out to this group (e.g. 224.0.0.1:9999)")
	cmd.Flags().StringVar(&multicastIface, "multicast-iface", "", "network interface to join the multicast group on")
	cmd.Flags().IntVar(&multicastTTL, "multicast-ttl", coordinator.DefaultMulticastTTL, "multicast TTL")
	cmd.Flags().StringVar(&redisAddr, "heartbeat-redis", "", "Redis address to publish leader heartbeats to (disabled if empty)")
	cmd.Flags().StringVar(&redisKey, "heartbeat-key", "replicator:current-leader", "Redis key to publish heartbeats under")
	cmd.Flags().StringVar(&nodeID, "node-id", "leader", "identifier published in heartbeats")
	return cmd
}

// ─── follower ───────────────────────────────────────────────────────────────

func followerCmd() *cobra.Command {
	var addr, dispatcherAddr, coordinatorAddr string
	var redisAddr, redisKey string

	cmd := &cobra.Command{
		Use:   "follower",
		Short: "Run a follower that acks requests forwarded by the coordinator",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := follower.New(addr, coordinatorAddr)
			if err != nil {
				return fmt.Errorf("open follower: %w", err)
			}

			if redisAddr != "" {
				client := redis.NewClient(&redis.Options{Addr: redisAddr})
				reader := heartbeat.NewReader(client, redisKey)
				eng.OnLeaderStale = func() {
					log.Printf("follower %s: coordinator heartbeat is stale", addr)
				}
				ctx, cancel := context.WithCancel(context.Background())
				defer cancel()
				go pollStaleness(ctx, reader, eng)
			}

			go func() {
				if err := eng.RegisterWithCoordinator(); err != nil {
					log.Printf("register with coordinator: %v", err)
				}
			}()
			go func() {
				if err := eng.RegisterWithDispatcher(dispatcherAddr); err != nil {
					log.Printf("register with dispatcher: %v", err)
				}
			}()

			go func() {
				if err := eng.Serve(); err != nil {
					log.Printf("follower serve error: %v", err)
				}
			}()

			log.Printf("follower listening on %s", addr)
			waitForShutdown("follower", eng.Close)
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":9002", "UDP listen address")
	cmd.Flags().StringVar(&dispatcherAddr, "dispatcher", ":9000", "dispatcher address to register with")
	cmd.Flags().StringVar(&coordinatorAddr, "coordinator", ":9001", "coordinator address to forward stray requests to")
	cmd.Flags().StringVar(&redisAddr, "heartbeat-redis", "", "Redis address to read leader heartbeats from (disabled if empty)")
	cmd.Flags().StringVar(&redisKey, "heartbeat-key", "replicator:current-leader", "Redis key heartbeats are published under")
	return cmd
}

func pollStaleness(ctx context.Context, reader *heartbeat.Reader, eng *follower.Engine) {
	t := time.NewTicker(2 * time.Second)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if reader.IsStale(ctx) && eng.OnLeaderStale != nil {
				eng.OnLeaderStale()
			}
		}
	}
}
