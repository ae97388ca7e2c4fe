// Package peerconn owns the lifecycle of a single direct device-to-device
// data channel, from negotiation to teardown. Any error or close is terminal
// for an instance; re-establishing contact with the same remote peer means
// allocating a brand-new instance and renegotiating from scratch.
package peerconn

import (
	"errors"

	"github.com/learnchain/course-mesh/internal/models"
)

// Role determines which side starts the negotiation.
type Role string

const (
	// RoleInitiator spontaneously emits a local offer that must be relayed
	// to the remote side out-of-band.
	RoleInitiator Role = "initiator"
	// RoleResponder stays silent until fed the remote offer, then emits its
	// answer.
	RoleResponder Role = "responder"
)

type State int32

const (
	StateNegotiating State = iota
	StateConnected
	StateClosed
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateNegotiating:
		return "negotiating"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// ErrNotConnected is returned by Send on a connection that has not reached
// the connected state or has already been discarded.
var ErrNotConnected = errors.New("peer connection is not connected")

// Handlers are the observable events of one connection.
//
// OnSignal may fire from the goroutine that called ApplyRemoteSignal; it
// must not call back into the connection's owner under a lock the owner
// holds while applying signals. All other handlers are delivered from the
// transport's own goroutines. After OnError or OnClosed no further events
// fire and the instance must be discarded.
type Handlers struct {
	OnSignal    func(payload models.ConnectionPayload)
	OnConnected func()
	OnData      func(payload []byte)
	OnError     func(err error)
	OnClosed    func()
}

// Conn is one direct data channel.
type Conn interface {
	Role() Role
	State() State
	// ApplyRemoteSignal feeds one relayed signal into the connection, in the
	// order received. Candidates arriving before the remote description are
	// queued, never dropped or reordered.
	ApplyRemoteSignal(sigType models.SignalType, payload models.ConnectionPayload) error
	// Send transmits one opaque message. Sending on a discarded instance is
	// a programming error and returns ErrNotConnected.
	Send(payload []byte) error
	// Close tears the connection down without firing OnClosed; the owner
	// initiated the teardown and already knows.
	Close() error
}

// Factory allocates a new connection toward one remote peer.
type Factory func(role Role, handlers Handlers) (Conn, error)
