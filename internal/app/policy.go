package app

import "github.com/dkeye/CodeRoom/internal/core"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	DropFrame
	KickMember
)

// Policy decides what happens to a member whose send buffer was full
// during a broadcast.
type Policy interface {
	OnBackPressure(room string, sid core.SessionID) BackpressureAction
}

// SimplePolicy kicks slow members: a connection that cannot drain its
// buffer is treated like a dead one and flows into the disconnect path.
type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(room string, sid core.SessionID) BackpressureAction {
	return KickMember
}

// DropPolicy tolerates slow members and only drops the frame.
type DropPolicy struct{}

func (DropPolicy) OnBackPressure(room string, sid core.SessionID) BackpressureAction {
	return DropFrame
}
