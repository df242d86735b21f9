// Package nsqd runs an in-process NSQ daemon that snapshots can be broadcast
// through without any external broker infrastructure.
package nsqd

import (
	"fmt"
	"net"
	"os"

	"github.com/ethereum/go-ethereum/log"
	nsqlogger "github.com/hc1node/forkmonitor/pkg/logger"
	"github.com/nsqio/nsq/nsqd"
)

// Config is the set of options for the embedded daemon.
type Config struct {
	Datadir     string       // Folder to persist queued messages through restarts
	TCPListener *net.TCPAddr // Listener address for NSQ connections (random port if nil)
	Lookupd     *net.TCPAddr // Optional nsqlookupd to announce topics to
}

type NSQD struct {
	Daemon *nsqd.NSQD
	done   chan error
}

func New(cfg Config) (*NSQD, error) {
	logger := log.New("module", "nsqd")
	logger.Info("Starting embedded message broker", "datadir", cfg.Datadir, "bind", cfg.TCPListener)

	opts := nsqd.NewOptions()
	opts.DataPath = cfg.Datadir

	if cfg.TCPListener != nil {
		opts.TCPAddress = cfg.TCPListener.String()
	} else {
		opts.TCPAddress = "127.0.0.1:0" // Default to a random port, local only
	}
	opts.HTTPAddress = ""  // Disable the HTTP interface
	opts.HTTPSAddress = "" // Disable the HTTPS interface

	opts.LogLevel = nsqd.LOG_INFO                       // We'd like to receive all the broker messages
	opts.Logger = &nsqlogger.NSQDLogger{Logger: logger} // Replace the default stderr logger with ours

	if cfg.Lookupd != nil {
		opts.NSQLookupdTCPAddresses = append(opts.NSQLookupdTCPAddresses, cfg.Lookupd.String())
	}
	if err := os.MkdirAll(cfg.Datadir, 0700); err != nil {
		return nil, err
	}
	daemon, err := nsqd.New(opts)
	if err != nil {
		return nil, err
	}
	n := &NSQD{
		Daemon: daemon,
		done:   make(chan error, 1),
	}
	go func() {
		n.done <- daemon.Main()
	}()
	return n, nil
}

// Addr returns the address producers and consumers can connect to.
func (n *NSQD) Addr() string {
	return n.Daemon.RealTCPAddr().String()
}

// Close terminates the daemon, flushing in memory messages to disk.
func (n *NSQD) Close() error {
	n.Daemon.Exit()
	if err := <-n.done; err != nil {
		return fmt.Errorf("nsqd: %w", err)
	}
	return nil
}
