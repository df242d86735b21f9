// Package scheduler drives the independent per node polling loops.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common/mclock"
	"github.com/ethereum/go-ethereum/log"
	"github.com/hc1node/forkmonitor/internal/entity"
	"github.com/hc1node/forkmonitor/internal/usecase"
)

// Config is the set of options to fine tune the polling loops.
type Config struct {
	Interval time.Duration // Pause between the end of a poll and the start of the next
	Timeout  time.Duration // Upper bound on a single RPC call (Interval if zero)
	Jitter   time.Duration // Random extra pause added to every interval

	Clock  mclock.Clock      // Source of timers (mclock.System if nil)
	OnPoll func(node string) // Invoked after every recorded poll result, if set
}

// Scheduler polls every configured node on its own goroutine, feeding results
// into the tracker. A slow or unreachable node never delays the others.
type Scheduler struct {
	nodes   []entity.NodeIdentity
	webapi  usecase.NodeWebAPI
	tracker usecase.NodeTracker
	config  Config
}

func New(nodes []entity.NodeIdentity, webapi usecase.NodeWebAPI, tracker usecase.NodeTracker, config Config) (*Scheduler, error) {
	if len(nodes) == 0 {
		return nil, errors.New("no nodes to poll")
	}
	if config.Interval <= 0 {
		return nil, fmt.Errorf("invalid poll interval %v", config.Interval)
	}
	if config.Timeout <= 0 {
		config.Timeout = config.Interval
	}
	if config.Jitter < 0 {
		config.Jitter = 0
	}
	if config.Clock == nil {
		config.Clock = mclock.System{}
	}
	return &Scheduler{
		nodes:   nodes,
		webapi:  webapi,
		tracker: tracker,
		config:  config,
	}, nil
}

// Run starts one polling loop per node and blocks until the context is
// cancelled and all loops have returned. In flight RPC calls are abandoned on
// cancellation.
func (s *Scheduler) Run(ctx context.Context) {
	log.Info("Starting momentum polling", "nodes", len(s.nodes), "interval", s.config.Interval, "timeout", s.config.Timeout, "jitter", s.config.Jitter)

	var pend sync.WaitGroup
	for _, node := range s.nodes {
		pend.Add(1)
		go func(node entity.NodeIdentity) {
			defer pend.Done()
			s.loop(ctx, node)
		}(node)
	}
	pend.Wait()

	log.Info("Momentum polling stopped")
}

func (s *Scheduler) loop(ctx context.Context, node entity.NodeIdentity) {
	logger := log.New("node", node.Name)
	logger.Debug("Starting node poller", "endpoint", node.Endpoint)

	// Every loop gets its own source, rand.Rand is not safe for concurrent use
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	connected := false
	for {
		s.poll(ctx, node, logger, &connected)

		wait := s.config.Interval
		if s.config.Jitter > 0 {
			wait += time.Duration(rng.Int63n(int64(s.config.Jitter)))
		}
		timer := s.config.Clock.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			logger.Debug("Node poller stopped")
			return
		case <-timer.C():
		}
	}
}

func (s *Scheduler) poll(ctx context.Context, node entity.NodeIdentity, logger log.Logger, connected *bool) {
	callctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	momentum, err := s.webapi.FetchLatest(callctx, node)
	if ctx.Err() != nil {
		return // Shutting down, the result is meaningless
	}
	if err != nil {
		if *connected {
			logger.Warn("Lost connection to node", "err", err)
		} else {
			logger.Debug("Node still unreachable", "err", err)
		}
		*connected = false
		if err := s.tracker.RecordFailure(node.Name, err); err != nil {
			logger.Error("Failed to record poll failure", "err", err)
			return
		}
	} else {
		if !*connected {
			logger.Info("Connected to node", "height", momentum.Height, "hash", momentum.Hash)
		}
		*connected = true
		logger.Trace("Processed momentum", "height", momentum.Height, "hash", momentum.Hash)
		if err := s.tracker.RecordSuccess(node.Name, momentum); err != nil {
			logger.Error("Failed to record momentum", "err", err)
			return
		}
	}
	if s.config.OnPoll != nil {
		s.config.OnPoll(node.Name)
	}
}
