package main

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"cascade-chain/core"
	pkgconfig "cascade-chain/pkg/config"
)

func main() {
	rootCmd := &cobra.Command{Use: "cascade-node"}
	rootCmd.AddCommand(startCmd())
	rootCmd.AddCommand(devnetCmd())
	rootCmd.AddCommand(testnetCmd())
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func startCmd() *cobra.Command {
	var env string
	cmd := &cobra.Command{
		Use:   "start",
		Short: "start a single node from its configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := pkgconfig.Load(env)
			if err != nil {
				return err
			}
			return runNode(cmd, *cfg)
		},
	}
	cmd.Flags().StringVar(&env, "config", "", "environment-specific config overlay (cmd/config/<name>.yaml)")
	return cmd
}

// runNode wires a single node's full stack — server, generator,
// bootstrapper, status API, LAN discovery — and blocks until the
// process receives an interrupt, mirroring the devnet/testnet
// lifecycle but for one long-running node.
func runNode(cmd *cobra.Command, cfg pkgconfig.Config) error {
	log, err := core.NewLogger(cfg.Logging.Level, cfg.Logging.File)
	if err != nil {
		return err
	}
	entry := log.WithField("component", "node")

	n, err := core.NewNode(cfg, entry)
	if err != nil {
		return err
	}
	go func() {
		if err := n.ListenAndServe(); err != nil {
			entry.WithError(err).Error("server stopped")
		}
	}()

	bootstrapper := core.NewBootstrapper(n)
	if cfg.Network.BootstrapTimeoutSec > 0 {
		bootstrapper.Timeout = time.Duration(cfg.Network.BootstrapTimeoutSec) * time.Second
	}
	seeds := make([]*core.Peer, 0, len(cfg.Network.SeedPeers))
	for _, addr := range cfg.Network.SeedPeers {
		if p, ok := parseSeedPeer(addr); ok {
			seeds = append(seeds, p)
		}
	}
	known := make([]*core.Peer, 0, len(cfg.Network.BootstrapPeers))
	for _, addr := range cfg.Network.BootstrapPeers {
		if p, ok := parseSeedPeer(addr); ok {
			known = append(known, p)
		}
	}
	bootstrapper.Run(known, seeds)

	gen := core.NewGenerator(n.Chain, n.Dispatch)
	gen.Node = n
	go func() {
		for {
			gen.RunOnce()
		}
	}()

	disco := &core.Discovery{Node: n, Port: fmt.Sprintf("%d", cfg.Network.P2PPort), Log: entry}
	if err := disco.Start("/ip4/0.0.0.0/tcp/0"); err != nil {
		entry.WithError(err).Warn("LAN discovery failed to start")
	} else {
		defer func() { _ = disco.Stop() }()
	}

	if cfg.StatusAPI.Enabled {
		api := &core.StatusAPI{Node: n, ListenAddr: cfg.StatusAPI.ListenAddr}
		if err := api.Start(); err != nil {
			entry.WithError(err).Error("status api failed to start")
		} else {
			defer func() { _ = api.Stop() }()
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "node started on %s:%d\n", cfg.Network.ListenAddr, cfg.Network.P2PPort)
	waitForSignal()
	return n.Close()
}

func parseSeedPeer(hostport string) (*core.Peer, bool) {
	host, port, err := net.SplitHostPort(hostport)
	if err != nil {
		return nil, false
	}
	return &core.Peer{Address: host, Port: port}, true
}

func waitForSignal() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
}

func devnetCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "devnet", Short: "local in-memory developer network"}
	start := &cobra.Command{
		Use:   "start [nodes]",
		Short: "launch N devnet nodes on sequential loopback ports",
		Args:  cobra.RangeArgs(0, 1),
		RunE: func(cmd *cobra.Command, args []string) error {
			nodes := 3
			if len(args) == 1 {
				n, err := strconv.Atoi(args[0])
				if err != nil || n <= 0 {
					return fmt.Errorf("invalid node count: %s", args[0])
				}
				nodes = n
			}
			baseDir, err := os.MkdirTemp("", "cascade-devnet-")
			if err != nil {
				return err
			}
			list, err := core.StartDevNet(nodes, baseDir)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "devnet started with %d nodes\n", len(list))
			waitForSignal()
			for _, n := range list {
				_ = n.Close()
			}
			return nil
		},
	}
	cmd.AddCommand(start)
	return cmd
}

func testnetCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "testnet", Short: "ephemeral test network from a config file"}
	start := &cobra.Command{
		Use:   "start <config.yaml>",
		Short: "start nodes from a list of configurations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var parsed struct {
				Nodes []pkgconfig.Config `yaml:"nodes"`
			}
			if err := yaml.Unmarshal(b, &parsed); err != nil {
				return err
			}
			list, err := core.StartTestNet(parsed.Nodes)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "testnet started with %d nodes\n", len(list))
			waitForSignal()
			for _, n := range list {
				_ = n.Close()
			}
			return nil
		},
	}
	cmd.AddCommand(start)
	return cmd
}
