package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kutluhann/xordht/config"
	"github.com/kutluhann/xordht/daemon"
	"github.com/kutluhann/xordht/logging"
	"github.com/kutluhann/xordht/metrics"
)

var (
	nodeCount    int
	startUDPPort int
	apiPort      int
	httpAddr     string
	dataDir      string
	stagger      time.Duration
	logLevel     string
)

var rootCmd = &cobra.Command{
	Use:   "launcher",
	Short: "Run a local cluster of nodes in one process",
	Long: `launcher starts N nodes on consecutive UDP ports. Node 0 is the genesis
node: it serves the client API and the status server, and every other node
bootstraps from it. Each node logs to <data-dir>/node_N/node.log.`,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	flags := rootCmd.Flags()
	flags.IntVarP(&nodeCount, "nodes", "n", 20, "number of nodes")
	flags.IntVar(&startUDPPort, "port", 9000, "UDP port of node 0; node i uses port+i")
	flags.IntVar(&apiPort, "api-port", 9090, "client API port of node 0")
	flags.StringVar(&httpAddr, "http", "127.0.0.1:8000", "status server address of node 0")
	flags.StringVar(&dataDir, "data-dir", "sim_data", "directory for per-node logs")
	flags.DurationVar(&stagger, "stagger", 100*time.Millisecond, "delay between node starts")
	flags.StringVar(&logLevel, "log-level", "debug", "node log level")
}

func run(cmd *cobra.Command, _ []string) error {
	if nodeCount < 1 {
		return fmt.Errorf("need at least one node")
	}
	if err := os.RemoveAll(dataDir); err != nil {
		return err
	}

	console, err := logging.New(logging.Options{Level: "info"})
	if err != nil {
		return err
	}
	defer console.Sync()

	genesis := fmt.Sprintf("127.0.0.1:%d", startUDPPort)
	var nodes []*daemon.Daemon
	defer func() {
		for i := len(nodes) - 1; i >= 0; i-- {
			nodes[i].Stop()
		}
	}()

	for i := 0; i < nodeCount; i++ {
		cfg := config.Default()
		cfg.ListenHost = "127.0.0.1"
		cfg.NetworkPort = startUDPPort + i
		cfg.APIPort = 0
		if i == 0 {
			cfg.APIPort = apiPort
			cfg.HTTPAddr = httpAddr
		} else {
			cfg.BootstrapPeers = []string{genesis}
		}

		logger, err := logging.New(logging.Options{
			Level:    logLevel,
			Encoding: "console",
			File:     filepath.Join(dataDir, fmt.Sprintf("node_%d", i), "node.log"),
		})
		if err != nil {
			return err
		}

		d, err := daemon.New(cfg, logger, metrics.New())
		if err != nil {
			return fmt.Errorf("node %d: %w", i, err)
		}
		if err := d.Start(); err != nil {
			return fmt.Errorf("node %d: %w", i, err)
		}
		nodes = append(nodes, d)

		console.Info("Node running",
			zap.Int("index", i),
			zap.String("id", d.Machine.ID().Short()),
			zap.Stringer("udp", d.Machine.Addr()))
		time.Sleep(stagger)
	}

	console.Info("Cluster is running",
		zap.Int("nodes", nodeCount),
		zap.String("client_api", fmt.Sprintf("127.0.0.1:%d", apiPort)),
		zap.String("status", "http://"+httpAddr+"/status"))

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	console.Info("Stopping all nodes")
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
