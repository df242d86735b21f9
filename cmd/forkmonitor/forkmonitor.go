package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/log"
	"github.com/hc1node/forkmonitor/config"
	"github.com/hc1node/forkmonitor/internal/app"
	"github.com/hc1node/forkmonitor/internal/entity"
	"github.com/hc1node/forkmonitor/pkg/logger"
	"github.com/spf13/cobra"
)

var (
	apiURLFlag      string
	nsqAddrFlag     string
	nsqLookupdFlag  string
	nsqTopicFlag    string
	nsqChannelFlag  string
	clientLevelFlag string
)

func main() {
	// Configure the logger to print everything until the config is loaded
	log.Root().SetHandler(log.LvlFilterHandler(log.LvlInfo, log.StreamHandler(os.Stderr, log.TerminalFormat(true))))

	// Create the command to run the monitor itself
	cmdRun := &cobra.Command{
		Use:   "run",
		Short: "Poll the configured nodes and serve their consensus over a REST API",
		RunE:  runMonitor,
	}
	config.RegisterFlags(cmdRun)

	// Create the commands to inspect a running monitor
	cmdStatus := &cobra.Command{
		Use:   "status",
		Short: "Print the current snapshot of a running monitor",
		RunE:  runStatus,
	}
	cmdStatus.Flags().StringVar(&apiURLFlag, "api.url", "http://127.0.0.1:8000", "REST API of the monitor to query")
	cmdStatus.Flags().StringVar(&clientLevelFlag, "log.level", "warn", "Log level (trace, debug, info, warn, error, crit)")

	cmdWatch := &cobra.Command{
		Use:   "watch",
		Short: "Follow the snapshots broadcast by a monitor over NSQ",
		RunE:  runWatch,
	}
	cmdWatch.Flags().StringVar(&nsqAddrFlag, "nsq.addr", "127.0.0.1:4150", "nsqd to consume snapshots from")
	cmdWatch.Flags().StringVar(&nsqLookupdFlag, "nsq.lookupd", "", "nsqlookupd HTTP address to discover nsqds through (overrides nsq.addr)")
	cmdWatch.Flags().StringVar(&nsqTopicFlag, "nsq.topic", entity.DefaultTopic, "NSQ topic snapshots are broadcast on")
	cmdWatch.Flags().StringVar(&nsqChannelFlag, "nsq.channel", "watch#ephemeral", "NSQ channel to consume on")
	cmdWatch.Flags().StringVar(&clientLevelFlag, "log.level", "info", "Log level (trace, debug, info, warn, error, crit)")

	rootCmd := &cobra.Command{
		Use:          "forkmonitor",
		Short:        "Monitor a set of nodes for consensus and forks",
		SilenceUsage: true,
	}
	rootCmd.AddCommand(cmdRun, cmdStatus, cmdWatch)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runMonitor(cmd *cobra.Command, args []string) error {
	cfg, err := config.NewConfig(cmd, args)
	if err != nil {
		return err
	}
	if err := logger.Setup(logger.Config{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSize:    100,
		MaxBackups: 5,
		MaxAge:     28,
	}); err != nil {
		return err
	}
	return app.Run(cfg)
}

func runStatus(cmd *cobra.Command, args []string) error {
	if err := logger.Setup(logger.Config{Level: clientLevelFlag}); err != nil {
		return err
	}
	return app.Status(context.Background(), apiURLFlag, os.Stdout)
}

func runWatch(cmd *cobra.Command, args []string) error {
	if err := logger.Setup(logger.Config{Level: clientLevelFlag}); err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return app.Watch(ctx, app.WatchConfig{
		Topic:   nsqTopicFlag,
		Channel: nsqChannelFlag,
		NSQD:    nsqAddrFlag,
		Lookupd: nsqLookupdFlag,
	}, os.Stdout)
}
