package entity

import (
	"encoding/json"
	"time"
)

// ConsensusEntry is the cross node verdict for a single height.
type ConsensusEntry struct {
	Height               uint64 // Height the verdict is about
	AllConnectedReportIt bool   // Whether every connected node has a fresh record at Height
	HashesMatch          bool   // Whether all reports agree; only meaningful if AllConnectedReportIt
	Reporters            int    // Number of connected nodes with a fresh record at Height
	Hashes               []Hash // Distinct hashes reported at Height, sorted
}

// Forked reports whether every connected node saw the height but they disagree
// on its content.
func (e ConsensusEntry) Forked() bool {
	return e.AllConnectedReportIt && !e.HashesMatch
}

type consensusEntryJSON struct {
	Height               uint64 `json:"height"`
	AllConnectedReportIt bool   `json:"all_connected_report_it"`
	HashesMatch          *bool  `json:"hashes_match"`
	Reporters            int    `json:"reporters"`
	Hashes               []Hash `json:"hashes"`
}

// MarshalJSON emits a null match status for heights not seen by every
// connected node.
func (e ConsensusEntry) MarshalJSON() ([]byte, error) {
	enc := consensusEntryJSON{
		Height:               e.Height,
		AllConnectedReportIt: e.AllConnectedReportIt,
		Reporters:            e.Reporters,
		Hashes:               e.Hashes,
	}
	if e.AllConnectedReportIt {
		match := e.HashesMatch
		enc.HashesMatch = &match
	}
	return json.Marshal(&enc)
}

func (e *ConsensusEntry) UnmarshalJSON(input []byte) error {
	var dec consensusEntryJSON
	if err := json.Unmarshal(input, &dec); err != nil {
		return err
	}
	*e = ConsensusEntry{
		Height:               dec.Height,
		AllConnectedReportIt: dec.AllConnectedReportIt,
		Reporters:            dec.Reporters,
		Hashes:               dec.Hashes,
	}
	if dec.AllConnectedReportIt && dec.HashesMatch != nil {
		e.HashesMatch = *dec.HashesMatch
	}
	return nil
}

// Agreed filters the entries down to the heights every connected node reports.
func Agreed(entries []ConsensusEntry) []ConsensusEntry {
	var agreed []ConsensusEntry
	for _, entry := range entries {
		if entry.AllConnectedReportIt {
			agreed = append(agreed, entry)
		}
	}
	return agreed
}

// Snapshot is a point in time view of all monitored nodes together with the
// consensus verdicts computed over it. Snapshots are never modified once made.
type Snapshot struct {
	Time      time.Time        `json:"time"`
	Nodes     []NodeState      `json:"nodes"`
	Consensus []ConsensusEntry `json:"consensus"`
}

// Connected returns the number of nodes whose last poll succeeded.
func (s *Snapshot) Connected() int {
	var n int
	for i := range s.Nodes {
		if s.Nodes[i].IsConnected {
			n++
		}
	}
	return n
}

// Node looks up a node's state by name.
func (s *Snapshot) Node(name string) (NodeState, bool) {
	for _, node := range s.Nodes {
		if node.Identity.Name == name {
			return node, true
		}
	}
	return NodeState{}, false
}
