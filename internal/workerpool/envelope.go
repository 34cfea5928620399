package workerpool

import (
	"photonix-core/internal/eventbus"
)

// Kind tags the payload carried by an Envelope. Unknown kinds are ignored
// by the pool's dispatch loop.
type Kind string

const (
	KindTask      Kind = "task"
	KindResult    Kind = "result"
	KindError     Kind = "error"
	KindLog       Kind = "log"
	KindHeartbeat Kind = "heartbeat"
	KindShutdown  Kind = "shutdown"
)

// Envelope is the single message shape multiplexed over a worker's channel.
type Envelope struct {
	Channel string
	Kind    Kind
	Payload any
	Meta    map[string]string
	Trace   *eventbus.TraceContext
}

// LogPayload is carried by a KindLog envelope; the receiving pool routes it
// to the parent logger at Level.
type LogPayload struct {
	Level   string
	Message string
}
