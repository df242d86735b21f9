package entity

// NodeIdentity names a monitored node and the RPC endpoint it is reached on.
type NodeIdentity struct {
	Name     string `json:"name" mapstructure:"name"`
	Endpoint string `json:"rpc_endpoint" mapstructure:"url"`
}

// NodeState is an immutable version of everything known about a single node.
// History is ordered by strictly decreasing height.
type NodeState struct {
	Identity    NodeIdentity     `json:"identity"`
	IsConnected bool             `json:"is_connected"`
	LastError   string           `json:"last_error,omitempty"`
	History     []MomentumRecord `json:"momentums"`
}

// Head returns the highest momentum the node was seen at, if any.
func (s *NodeState) Head() (MomentumRecord, bool) {
	if len(s.History) == 0 {
		return MomentumRecord{}, false
	}
	return s.History[0], true
}

// Lookup returns the record at the requested height, if retained.
func (s *NodeState) Lookup(height uint64) (MomentumRecord, bool) {
	for _, rec := range s.History {
		if rec.Height == height {
			return rec, true
		}
		if rec.Height < height {
			break
		}
	}
	return MomentumRecord{}, false
}
