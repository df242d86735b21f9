package app

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"

	"github.com/ethereum/go-ethereum/log"
	"github.com/hc1node/forkmonitor/config"
	controller "github.com/hc1node/forkmonitor/internal/controller/http"
	"github.com/hc1node/forkmonitor/internal/usecase"
	"github.com/hc1node/forkmonitor/internal/usecase/broker"
	"github.com/hc1node/forkmonitor/internal/usecase/scheduler"
	"github.com/hc1node/forkmonitor/internal/usecase/tracker"
	"github.com/hc1node/forkmonitor/internal/usecase/webapi"
	"github.com/hc1node/forkmonitor/pkg/httpserver"
	"github.com/hc1node/forkmonitor/pkg/netutil"
	"github.com/hc1node/forkmonitor/pkg/nsqd"
	"github.com/julienschmidt/httprouter"
)

// Run starts the monitor and blocks until it is interrupted or the API server
// fails.
func Run(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Waiting signal
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(interrupt)

	go func() {
		select {
		case s := <-interrupt:
			log.Info("SIGNAL: " + s.String() + " Stopping fork monitor...")
			cancel()
		case <-ctx.Done():
		}
	}()
	return run(ctx, cfg, nil)
}

// run wires up all components and serves until the context is cancelled. If
// ready is set, it is invoked with the monitor once everything is running.
func run(ctx context.Context, cfg *config.Config, ready func(*usecase.MonitorUseCase)) error {
	log.Info("Starting fork monitor", "version", cfg.Version, "nodes", len(cfg.Nodes))
	for _, node := range cfg.Nodes {
		log.Info("Monitoring node", "name", node.Name, "endpoint", node.Endpoint)
	}
	// Node state
	nodeTracker, err := tracker.New(cfg.Nodes, tracker.Config{
		Retention: cfg.HistorySize,
		Grace:     cfg.StaleGrace,
	})
	if err != nil {
		return err
	}
	// Message Broker
	var snapshotBroker usecase.SnapshotBroker
	if cfg.NSQ.Enabled() {
		addr := cfg.NSQ.Addr
		if cfg.Embed {
			bind, err := resolveTCP(cfg.NSQ.Bind)
			if err != nil {
				return err
			}
			lookupd, err := resolveTCP(cfg.NSQ.Lookupd)
			if err != nil {
				return err
			}
			daemon, err := nsqd.New(nsqd.Config{
				Datadir:     cfg.NSQ.Datadir,
				TCPListener: bind,
				Lookupd:     lookupd,
			})
			if err != nil {
				log.Error("Failed to create nsqd", "err", err)
				return err
			}
			defer daemon.Close()
			addr = daemon.Addr()
		}
		clusterBroker, err := broker.New(addr, cfg.Topic)
		if err != nil {
			return err
		}
		defer clusterBroker.Close()
		snapshotBroker = clusterBroker
	}
	monitor := usecase.New(nodeTracker, snapshotBroker, cfg.Report)

	// Node RPC client
	nodeWebAPI := webapi.New()
	defer nodeWebAPI.Close()

	poller, err := scheduler.New(cfg.Nodes, nodeWebAPI, nodeTracker, scheduler.Config{
		Interval: cfg.Interval,
		Timeout:  cfg.Timeout,
		Jitter:   cfg.Jitter,
		OnPoll:   monitor.Notify,
	})
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var pend sync.WaitGroup
	pend.Add(2)
	go func() {
		defer pend.Done()
		poller.Run(ctx)
	}()
	go func() {
		defer pend.Done()
		monitor.Watch(ctx)
	}()

	// HTTP Server
	handler := httprouter.New()
	controller.NewRouter(handler, monitor, cfg.CORSOrigins)
	httpServer := httpserver.New(handler, httpserver.Addr(cfg.Host, strconv.Itoa(cfg.Port)))
	log.Info("Serving REST API", "url", netutil.AdvertisedURL(cfg.Host, cfg.Port))

	if ready != nil {
		ready(monitor)
	}
	select {
	case <-ctx.Done():
	case err = <-httpServer.Notify():
		log.Error("Failed to run http server", "err", err)
	}
	// Shutdown
	cancel()
	pend.Wait()

	if shutdownErr := httpServer.Shutdown(); shutdownErr != nil {
		log.Error("app - Run - httpServer.Shutdown:", "err", shutdownErr)
	}
	log.Info("Fork monitor stopped")
	return err
}

// resolveTCP parses an optional TCP address, returning nil for empty input.
func resolveTCP(addr string) (*net.TCPAddr, error) {
	if addr == "" {
		return nil, nil
	}
	tcp, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("invalid nsq address %q: %w", addr, err)
	}
	return tcp, nil
}
