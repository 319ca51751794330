// Package core declares the transport-facing contracts shared by the
// session coordinator and its adapters.
package core

// Frame is an encoded outbound message.
type Frame []byte

// SessionID identifies one transport session from handshake to close.
type SessionID string

// SignalConnection abstracts the per-connection messaging transport.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	// TrySend queues a frame without blocking. It returns an error when
	// the connection is closed or its send buffer is full.
	TrySend(Frame) error
	Close()
}

// BroadcastMode controls whether the originator of a broadcast receives
// its own event back.
type BroadcastMode int

const (
	ExcludeSender BroadcastMode = iota
	IncludeSender
)

// PublishResult reports delivery stats/backpressure to the coordinator.
type PublishResult struct {
	SentTo  int
	Dropped []SessionID
}

// RoomInfo is a read-only view for the status surface.
type RoomInfo struct {
	ID          string `json:"id"`
	MemberCount int    `json:"memberCount"`
}
