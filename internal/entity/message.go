package entity

// DefaultTopic is the NSQ topic snapshots are broadcast on.
const DefaultTopic = "forkmonitor"

type MessageType string

const (
	SnapshotMessage MessageType = "snapshot" // Regular state change
	ForkMessage     MessageType = "fork"     // State change where connected nodes disagree on a height
)

// Message is the envelope published to the broker after every state change.
type Message struct {
	MessageType MessageType `json:"type"`
	Snapshot    *Snapshot   `json:"snapshot"`
}
