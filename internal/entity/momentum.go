package entity

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/mclock"
)

// HashLength is the byte length of a momentum hash.
const HashLength = common.HashLength

// Hash is the content hash of a momentum. Nodes report it as plain hex without
// the 0x prefix, so that is also how it is rendered.
type Hash [HashLength]byte

// ParseHash decodes a hex encoded hash, with or without the 0x prefix.
func ParseHash(s string) (Hash, error) {
	var h Hash
	b, err := hex.DecodeString(strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X"))
	if err != nil {
		return h, fmt.Errorf("invalid hash %q: %v", s, err)
	}
	if len(b) != HashLength {
		return h, fmt.Errorf("invalid hash %q: want %d bytes, have %d", s, HashLength, len(b))
	}
	copy(h[:], b)
	return h, nil
}

// BytesToHash right aligns b into a hash, cropping from the left if too long.
func BytesToHash(b []byte) Hash {
	return Hash(common.BytesToHash(b))
}

func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// TerminalString shortens the hash for log and table output.
func (h Hash) TerminalString() string {
	s := h.String()
	return s[:8] + ".." + s[len(s)-8:]
}

func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

func (h *Hash) UnmarshalText(input []byte) error {
	parsed, err := ParseHash(string(input))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// Momentum is a single chain tip report of a node.
type Momentum struct {
	Height uint64 `json:"height"`
	Hash   Hash   `json:"hash"`
}

// MomentumRecord is a momentum as observed by the monitor for one node.
type MomentumRecord struct {
	Momentum
	Timestamp time.Time `json:"timestamp"` // Wall clock time the height was first observed
	IsStale   bool      `json:"is_stale"`  // Superseded by a higher height for the same node

	Seen mclock.AbsTime `json:"-"` // Monotonic time the height was first observed
}
