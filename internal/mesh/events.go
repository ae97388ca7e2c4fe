package mesh

// EventType labels a coordinator event pushed to the UI.
type EventType string

const (
	EventPeerConnected  EventType = "peer_connected"
	EventPeerLost       EventType = "peer_lost"
	EventPeersUpdated   EventType = "peers_updated"
	EventCourseReceived EventType = "course_received"
)

// Event is one observable coordinator state change.
type Event struct {
	Type     EventType `json:"type"`
	PeerID   string    `json:"peerId,omitempty"`
	PeerName string    `json:"peerName,omitempty"`
	CourseID string    `json:"courseId,omitempty"`
}

// PeerSnapshot is a read-only, point-in-time view of one known peer.
type PeerSnapshot struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	AvailableCourses []string `json:"availableCourses"`
	State            string   `json:"state"`
}
