package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/hc1node/forkmonitor/internal/entity"
	"github.com/stretchr/testify/require"
)

type staticTracker struct {
	lock   sync.Mutex
	states []entity.NodeState
}

func (s *staticTracker) Snapshot() []entity.NodeState {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.states
}

func (s *staticTracker) set(states ...entity.NodeState) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.states = states
}

type recordingBroker struct {
	lock     sync.Mutex
	messages []*entity.Message
}

func (b *recordingBroker) Publish(msg *entity.Message) error {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.messages = append(b.messages, msg)
	return nil
}

func (b *recordingBroker) Messages() []*entity.Message {
	b.lock.Lock()
	defer b.lock.Unlock()
	return append([]*entity.Message(nil), b.messages...)
}

func state(name string, connected bool, height uint64, hash string) entity.NodeState {
	return entity.NodeState{
		Identity:    entity.NodeIdentity{Name: name},
		IsConnected: connected,
		History: []entity.MomentumRecord{{
			Momentum: entity.Momentum{Height: height, Hash: entity.BytesToHash([]byte(hash))},
		}},
	}
}

func TestSnapshot(t *testing.T) {
	tracker := new(staticTracker)
	tracker.set(
		state("A", true, 100, "a"),
		state("B", true, 100, "a"),
		state("C", false, 100, "b"),
	)
	uc := New(tracker, nil, 0)

	snap := uc.Snapshot()
	require.Len(t, snap.Nodes, 3)
	require.Equal(t, []entity.ConsensusEntry{{
		Height:               100,
		AllConnectedReportIt: true,
		HashesMatch:          true,
		Reporters:            2,
		Hashes:               []entity.Hash{entity.BytesToHash([]byte("a"))},
	}}, snap.Consensus)

	again := uc.Snapshot()
	require.Equal(t, snap.Nodes, again.Nodes)
	require.Equal(t, snap.Consensus, again.Consensus)
}

func TestProcessPublishes(t *testing.T) {
	tracker := new(staticTracker)
	broker := new(recordingBroker)
	uc := New(tracker, broker, 0)

	tracker.set(state("A", true, 100, "a"), state("B", true, 100, "a"))
	uc.process(uc.Snapshot())
	require.Equal(t, "agreed:100", uc.status)

	tracker.set(state("A", true, 101, "a"), state("B", true, 101, "b"))
	uc.process(uc.Snapshot())
	require.Equal(t, "fork:101", uc.status)

	tracker.set(state("A", true, 102, "a"), state("B", false, 101, "b"))
	uc.process(uc.Snapshot())
	require.Equal(t, "lost:B", uc.status)

	tracker.set(state("A", true, 103, "a"), state("B", true, 102, "b"))
	uc.process(uc.Snapshot())
	require.Equal(t, "sync", uc.status)

	msgs := broker.Messages()
	require.Len(t, msgs, 4)
	require.Equal(t, entity.SnapshotMessage, msgs[0].MessageType)
	require.Equal(t, entity.ForkMessage, msgs[1].MessageType)
	require.Equal(t, entity.SnapshotMessage, msgs[2].MessageType)
	require.Empty(t, msgs[2].Snapshot.Consensus)
}

func TestWatchCoalescesNotifications(t *testing.T) {
	tracker := new(staticTracker)
	tracker.set(state("A", true, 100, "a"), state("B", true, 100, "a"))

	broker := new(recordingBroker)
	uc := New(tracker, broker, 0)

	// Notifications before the watcher runs collapse into one
	for i := 0; i < 10; i++ {
		uc.Notify("A")
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		uc.Watch(ctx)
		close(done)
	}()
	require.Eventually(t, func() bool { return len(broker.Messages()) == 1 }, 5*time.Second, time.Millisecond)

	uc.Notify("B")
	require.Eventually(t, func() bool { return len(broker.Messages()) == 2 }, 5*time.Second, time.Millisecond)

	cancel()
	<-done
}
