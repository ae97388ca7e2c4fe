package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/pion/webrtc/v3"
)

// SignalType identifies a signaling message flowing through a room's relay
type SignalType string

const (
	SignalTypePresence  SignalType = "presence"
	SignalTypeOffer     SignalType = "offer"
	SignalTypeAnswer    SignalType = "answer"
	SignalTypeCandidate SignalType = "ice-candidate"
)

// SignalingMessage is one row of the append-only mesh_signaling log.
// Rows are immutable once written; all coordination state is derived by
// observing inserts.
type SignalingMessage struct {
	ID           int64           `json:"id,omitempty"`
	RoomCode     string          `json:"room_code"`
	PeerID       string          `json:"peer_id"`
	PeerName     string          `json:"peer_name"`
	TargetPeerID string          `json:"target_peer_id,omitempty"` // empty means broadcast
	SignalType   SignalType      `json:"signal_type"`
	SignalData   json.RawMessage `json:"signal_data"`
	CreatedAt    time.Time       `json:"created_at"`
}

// PresencePayload is the signal_data of a presence broadcast: the sender's
// display name plus the course ids it can serve.
type PresencePayload struct {
	Name    string   `json:"name"`
	Courses []string `json:"courses"`
}

// ConnectionPayload is the signal_data of an offer, answer or ice-candidate.
// Exactly one field is set, matching the signal type.
type ConnectionPayload struct {
	SDP       *webrtc.SessionDescription `json:"sdp,omitempty"`
	Candidate *webrtc.ICECandidateInit   `json:"candidate,omitempty"`
}

// DecodePresence parses and validates a presence payload.
func DecodePresence(data json.RawMessage) (PresencePayload, error) {
	var p PresencePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("invalid presence payload: %w", err)
	}
	return p, nil
}

// DecodeConnection parses a connection-setup payload and checks it carries
// the field its signal type requires.
func DecodeConnection(sigType SignalType, data json.RawMessage) (ConnectionPayload, error) {
	var p ConnectionPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("invalid %s payload: %w", sigType, err)
	}
	switch sigType {
	case SignalTypeOffer, SignalTypeAnswer:
		if p.SDP == nil {
			return p, fmt.Errorf("%s payload missing sdp", sigType)
		}
	case SignalTypeCandidate:
		if p.Candidate == nil {
			return p, fmt.Errorf("%s payload missing candidate", sigType)
		}
	default:
		return p, fmt.Errorf("not a connection signal type: %s", sigType)
	}
	return p, nil
}
