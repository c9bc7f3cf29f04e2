package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kutluhann/xordht/config"
	"github.com/kutluhann/xordht/daemon"
	"github.com/kutluhann/xordht/logging"
	"github.com/kutluhann/xordht/metrics"
)

var (
	cfgFile   string
	port      int
	apiPort   int
	httpAddr  string
	bootstrap []string
	nodeID    string
	logLevel  string
)

var rootCmd = &cobra.Command{
	Use:   "xordht",
	Short: "Kademlia DHT peer over UDP",
	Long: `xordht runs one peer of a Kademlia distributed hash table. Peers find
each other with iterative XOR-distance lookups and replicate values to the
peers closest to each key.`,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	flags := rootCmd.Flags()
	flags.StringVar(&cfgFile, "config", "", "YAML config file")
	flags.IntVar(&port, "port", 0, "UDP port for peer traffic")
	flags.IntVar(&apiPort, "api-port", 0, "UDP port for client get/set requests (0 disables)")
	flags.StringVar(&httpAddr, "http", "", "address of the HTTP status server")
	flags.StringSliceVar(&bootstrap, "bootstrap", nil, "bootstrap peers (host:port)")
	flags.StringVar(&nodeID, "node-id", "", "hex node id (random when empty)")
	flags.StringVar(&logLevel, "log-level", "", "debug, info, warn or error")
}

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.NetworkPort = port
	}
	if flags.Changed("api-port") {
		cfg.APIPort = apiPort
	}
	if flags.Changed("http") {
		cfg.HTTPAddr = httpAddr
	}
	if flags.Changed("bootstrap") {
		cfg.BootstrapPeers = bootstrap
	}
	if flags.Changed("node-id") {
		cfg.NodeID = nodeID
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.New(logging.Options{
		Level:      cfg.LogLevel,
		Encoding:   cfg.LogEncoding,
		File:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAgeDays: cfg.LogMaxAgeDays,
	})
	if err != nil {
		return err
	}
	defer logger.Sync()

	d, err := daemon.New(cfg, logger, metrics.New())
	if err != nil {
		logger.Error("Failed to start node", zap.Error(err))
		return err
	}
	if err := d.Start(); err != nil {
		logger.Error("Failed to bootstrap", zap.Error(err))
		return err
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	logger.Info("Shutting down")
	d.Stop()
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
