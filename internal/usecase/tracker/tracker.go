// Package tracker owns the live state of every monitored node.
//
// Each node has its own writer lock, so updates to different nodes never
// contend. Every update produces a fresh immutable NodeState version that is
// swapped in atomically; readers only ever load those versions and so never
// block writers nor observe a half applied update.
package tracker

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common/mclock"
	"github.com/ethereum/go-ethereum/log"
	"github.com/hc1node/forkmonitor/internal/entity"
)

const (
	DefaultRetention = 10 // Records kept per node if unconfigured
)

// ErrUnknownNode is returned when updating a node that was not configured.
var ErrUnknownNode = errors.New("unknown node")

// Config is the set of options to fine tune the tracker.
//
// Staleness is only re-evaluated when a node's state is written, so with a non
// zero Grace a record may be flagged up to one poll interval late (or not at
// all while its node stays disconnected).
type Config struct {
	Retention int           // Maximum number of records retained per node
	Grace     time.Duration // Time a higher height must be known before lower ones go stale

	Clock mclock.Clock     // Source of monotonic time (mclock.System if nil)
	Now   func() time.Time // Source of wall clock time (time.Now if nil)
}

// Tracker maintains the connection status and recent momentum history of a
// fixed set of nodes.
type Tracker struct {
	retention int
	grace     time.Duration
	clock     mclock.Clock
	now       func() time.Time

	order []string              // Node names in configuration order
	nodes map[string]*nodeEntry // Immutable after construction

	logger log.Logger
}

type nodeEntry struct {
	lock  sync.Mutex                       // Serialises writers of this node
	state atomic.Pointer[entity.NodeState] // Latest published version
}

// New creates a tracker for the given nodes, all initially disconnected with
// an empty history.
func New(nodes []entity.NodeIdentity, config Config) (*Tracker, error) {
	if config.Retention <= 0 {
		config.Retention = DefaultRetention
	}
	if config.Grace < 0 {
		return nil, fmt.Errorf("negative stale grace interval %v", config.Grace)
	}
	if config.Clock == nil {
		config.Clock = mclock.System{}
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	t := &Tracker{
		retention: config.Retention,
		grace:     config.Grace,
		clock:     config.Clock,
		now:       config.Now,
		order:     make([]string, 0, len(nodes)),
		nodes:     make(map[string]*nodeEntry, len(nodes)),
		logger:    log.New("module", "tracker"),
	}
	for _, node := range nodes {
		if _, ok := t.nodes[node.Name]; ok {
			return nil, fmt.Errorf("duplicate node %q", node.Name)
		}
		entry := new(nodeEntry)
		entry.state.Store(&entity.NodeState{Identity: node})

		t.order = append(t.order, node.Name)
		t.nodes[node.Name] = entry
	}
	return t, nil
}

// RecordSuccess marks the node connected and merges the observed momentum into
// its history. A height already in the history is not duplicated.
func (t *Tracker) RecordSuccess(name string, momentum entity.Momentum) error {
	entry, ok := t.nodes[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownNode, name)
	}
	entry.lock.Lock()
	defer entry.lock.Unlock()

	var (
		prev = entry.state.Load()
		next = &entity.NodeState{
			Identity:    prev.Identity,
			IsConnected: true,
		}
		seen = t.clock.Now()
	)
	history := make([]entity.MomentumRecord, 0, len(prev.History)+1)
	history = append(history, prev.History...)

	idx := sort.Search(len(history), func(i int) bool { return history[i].Height <= momentum.Height })
	switch {
	case idx < len(history) && history[idx].Height == momentum.Height:
		if history[idx].Hash != momentum.Hash {
			t.logger.Warn("Node changed hash of known height", "node", name, "height", momentum.Height, "old", history[idx].Hash, "new", momentum.Hash)
		}
	default:
		rec := entity.MomentumRecord{
			Momentum:  momentum,
			Timestamp: t.now(),
			Seen:      seen,
		}
		history = append(history, entity.MomentumRecord{})
		copy(history[idx+1:], history[idx:])
		history[idx] = rec
	}
	markStale(history, seen, t.grace)

	if len(history) > t.retention {
		history = history[:t.retention]
	}
	next.History = history
	entry.state.Store(next)
	return nil
}

// markStale flags every record that has a strictly higher record above it
// which has been known for at least the grace interval. History is ordered
// by decreasing height, so the earliest sighting of any higher record is the
// minimum over the prefix.
func markStale(history []entity.MomentumRecord, now mclock.AbsTime, grace time.Duration) {
	if len(history) == 0 {
		return
	}
	earliest := history[0].Seen
	for i := 1; i < len(history); i++ {
		if !history[i].IsStale && now.Sub(earliest) >= grace {
			history[i].IsStale = true
		}
		if history[i].Seen < earliest {
			earliest = history[i].Seen
		}
	}
}

// RecordFailure marks the node disconnected. History is left untouched so the
// last known state stays visible.
func (t *Tracker) RecordFailure(name string, failure error) error {
	entry, ok := t.nodes[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownNode, name)
	}
	entry.lock.Lock()
	defer entry.lock.Unlock()

	prev := entry.state.Load()
	next := &entity.NodeState{
		Identity:    prev.Identity,
		IsConnected: false,
		History:     prev.History,
	}
	if failure != nil {
		next.LastError = failure.Error()
	}
	entry.state.Store(next)
	return nil
}

// Snapshot returns the current state of all nodes in configuration order. The
// returned states share their history with the tracker, but those versions
// are never modified again.
func (t *Tracker) Snapshot() []entity.NodeState {
	states := make([]entity.NodeState, 0, len(t.order))
	for _, name := range t.order {
		states = append(states, *t.nodes[name].state.Load())
	}
	return states
}

// Nodes returns the identities of the tracked nodes in configuration order.
func (t *Tracker) Nodes() []entity.NodeIdentity {
	nodes := make([]entity.NodeIdentity, 0, len(t.order))
	for _, name := range t.order {
		nodes = append(nodes, t.nodes[name].state.Load().Identity)
	}
	return nodes
}
