// Package consensus cross compares the momentum histories of connected nodes.
package consensus

import (
	"bytes"
	"sort"

	"github.com/hc1node/forkmonitor/internal/entity"
)

// MinObservers is the number of connected nodes needed to say anything about
// consensus.
const MinObservers = 2

// Evaluate computes a verdict for every height any connected node holds a
// fresh record of, most recent height first. Disconnected nodes and stale
// records take no part in the comparison. Fewer than MinObservers connected
// nodes yield no verdicts at all.
func Evaluate(nodes []entity.NodeState) []entity.ConsensusEntry {
	connected := make([]*entity.NodeState, 0, len(nodes))
	for i := range nodes {
		if nodes[i].IsConnected {
			connected = append(connected, &nodes[i])
		}
	}
	if len(connected) < MinObservers {
		return nil
	}
	type tally struct {
		reporters int
		hashes    map[entity.Hash]struct{}
	}
	tallies := make(map[uint64]*tally)
	for _, node := range connected {
		// History holds at most one record per height, so every record is a
		// distinct reporter for its height.
		for _, rec := range node.History {
			if rec.IsStale {
				continue
			}
			t, ok := tallies[rec.Height]
			if !ok {
				t = &tally{hashes: make(map[entity.Hash]struct{})}
				tallies[rec.Height] = t
			}
			t.reporters++
			t.hashes[rec.Hash] = struct{}{}
		}
	}
	entries := make([]entity.ConsensusEntry, 0, len(tallies))
	for height, t := range tallies {
		entry := entity.ConsensusEntry{
			Height:               height,
			AllConnectedReportIt: t.reporters == len(connected),
			Reporters:            t.reporters,
			Hashes:               make([]entity.Hash, 0, len(t.hashes)),
		}
		for hash := range t.hashes {
			entry.Hashes = append(entry.Hashes, hash)
		}
		sort.Slice(entry.Hashes, func(i, j int) bool {
			return bytes.Compare(entry.Hashes[i][:], entry.Hashes[j][:]) < 0
		})
		if entry.AllConnectedReportIt {
			entry.HashesMatch = len(t.hashes) == 1
		}
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Height > entries[j].Height })
	return entries
}
