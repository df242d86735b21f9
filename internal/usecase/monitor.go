package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/hc1node/forkmonitor/internal/entity"
	"github.com/hc1node/forkmonitor/internal/usecase/consensus"
)

type StateSnapshotter interface {
	Snapshot() []entity.NodeState
}

// MonitorUseCase combines the tracked node states with the consensus verdicts
// into snapshots, and watches them for forks and sync issues.
type MonitorUseCase struct {
	tracker StateSnapshotter
	broker  SnapshotBroker // Optional, nil if snapshots are not broadcast

	report time.Duration // Interval of the status table dump, disabled if zero
	now    func() time.Time

	updates chan struct{}
	status  string // Last logged condition, to only log on changes
}

func New(tracker StateSnapshotter, broker SnapshotBroker, report time.Duration) *MonitorUseCase {
	return &MonitorUseCase{
		tracker: tracker,
		broker:  broker,
		report:  report,
		now:     time.Now,
		updates: make(chan struct{}, 1),
	}
}

// Snapshot recomputes the consensus view over the latest tracked states.
func (uc *MonitorUseCase) Snapshot() *entity.Snapshot {
	nodes := uc.tracker.Snapshot()
	return &entity.Snapshot{
		Time:      uc.now(),
		Nodes:     nodes,
		Consensus: consensus.Evaluate(nodes),
	}
}

// Notify signals that a node's state changed. Bursts of notifications are
// coalesced into a single evaluation.
func (uc *MonitorUseCase) Notify(node string) {
	select {
	case uc.updates <- struct{}{}:
	default:
	}
}

// Watch evaluates a new snapshot on every notification until the context is
// cancelled, logging consensus changes and broadcasting the snapshot.
func (uc *MonitorUseCase) Watch(ctx context.Context) {
	var report <-chan time.Time
	if uc.report > 0 {
		ticker := time.NewTicker(uc.report)
		defer ticker.Stop()
		report = ticker.C
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-report:
			log.Info("Current monitor status\n\n" + entity.ReportSnapshot(uc.Snapshot()))
		case <-uc.updates:
			uc.process(uc.Snapshot())
		}
	}
}

// process inspects a single snapshot and forwards it to the broker.
func (uc *MonitorUseCase) process(snap *entity.Snapshot) {
	forked := uc.inspect(snap)
	if uc.broker == nil {
		return
	}
	msg := &entity.Message{MessageType: entity.SnapshotMessage, Snapshot: snap}
	if forked {
		msg.MessageType = entity.ForkMessage
	}
	if err := uc.broker.Publish(msg); err != nil {
		log.Error("Failed to publish snapshot", "err", err)
	}
}

// inspect logs the consensus condition of the snapshot if it changed since the
// last one, and reports whether any fork is visible.
func (uc *MonitorUseCase) inspect(snap *entity.Snapshot) bool {
	var disconnected []string
	for _, node := range snap.Nodes {
		if !node.IsConnected {
			disconnected = append(disconnected, node.Identity.Name)
		}
	}
	var (
		agreed = entity.Agreed(snap.Consensus)
		forks  []entity.ConsensusEntry
	)
	for _, entry := range agreed {
		if entry.Forked() {
			forks = append(forks, entry)
		}
	}
	var (
		status string
		logfn  func(msg string, ctx ...interface{})
		msg    string
		ctx    []interface{}
	)
	switch {
	case len(forks) > 0:
		status = fmt.Sprintf("fork:%d", forks[0].Height)
		logfn, msg = log.Warn, "Fork detected"
		ctx = append([]interface{}{"height", forks[0].Height, "hashes", len(forks[0].Hashes)}, heads(snap)...)

	case snap.Connected() < consensus.MinObservers:
		status = "lost:" + strings.Join(disconnected, ",")
		logfn, msg = log.Warn, "Lost connection, not enough nodes to compare"
		ctx = []interface{}{"disconnected", strings.Join(disconnected, ",")}

	case len(agreed) == 0:
		status = "sync"
		logfn, msg = log.Info, "Nodes are at different heights, waiting for sync"
		ctx = heads(snap)

	default:
		status = fmt.Sprintf("agreed:%d", agreed[0].Height)
		logfn, msg = log.Info, "Nodes in consensus"
		ctx = []interface{}{"height", agreed[0].Height, "hash", agreed[0].Hashes[0]}
		if len(disconnected) > 0 {
			ctx = append(ctx, "disconnected", strings.Join(disconnected, ","))
		}
	}
	if status != uc.status {
		uc.status = status
		logfn(msg, ctx...)
	}
	return len(forks) > 0
}

// heads collects the latest height and hash of every node as log context.
func heads(snap *entity.Snapshot) []interface{} {
	ctx := make([]interface{}, 0, 2*len(snap.Nodes))
	for _, node := range snap.Nodes {
		head, ok := node.Head()
		switch {
		case !node.IsConnected:
			ctx = append(ctx, node.Identity.Name, "disconnected")
		case !ok:
			ctx = append(ctx, node.Identity.Name, "unknown")
		default:
			ctx = append(ctx, node.Identity.Name, fmt.Sprintf("%d/%s", head.Height, head.Hash.TerminalString()))
		}
	}
	return ctx
}
