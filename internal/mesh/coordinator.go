// Package mesh implements the room peer coordinator: room membership, peer
// discovery through the signaling relay, direct data-channel connections to
// each discovered peer, and the course-sharing protocol running atop them.
package mesh

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/learnchain/course-mesh/internal/models"
	"github.com/learnchain/course-mesh/internal/peerconn"
	"github.com/learnchain/course-mesh/internal/signaling"
)

// ErrAuthRequired is returned when an anonymous caller tries to create a
// room. This is a usage error, rejected before any network call.
var ErrAuthRequired = errors.New("authentication required to create a room")

// Relay is the room-scoped signaling bus (see package signaling).
type Relay interface {
	OpenRoom(ctx context.Context, roomCode string, handler signaling.Handler) error
	Publish(ctx context.Context, msg models.SignalingMessage) error
	Close() error
}

// RoomStore is the slice of the record store the coordinator needs.
type RoomStore interface {
	CreateRoom(ctx context.Context, room models.Room) error
	FindActiveRoom(ctx context.Context, code string) (*models.Room, error)
	DeactivateRoom(ctx context.Context, code, hostID string) error
	RecentSignals(ctx context.Context, roomCode string, limit int) ([]models.SignalingMessage, error)
}

// CourseCache is the local bundle store the sharing protocol serves from.
type CourseCache interface {
	AllCourseIDs() ([]string, error)
	GetCourse(courseID string) (*models.CourseBundle, error)
	SaveCourse(bundle models.CourseBundle) error
}

type pendingPeer struct {
	conn peerconn.Conn
	name string
	// courses announced before promotion, e.g. when the remote side's
	// channel opened first and its courses envelope beat our own open event
	courses []string
}

type peer struct {
	id      string
	name    string
	conn    peerconn.Conn
	courses []string
}

// Coordinator owns one device's room membership and its map of peers. The
// peers and pending maps belong exclusively to one Coordinator instance; all
// access goes through its public operations or its event handlers, which are
// serialized behind one mutex and run to completion.
type Coordinator struct {
	selfID  string
	relay   Relay
	store   RoomStore
	cache   CourseCache
	dial    peerconn.Factory
	backlog int
	events  chan Event

	mu             sync.Mutex
	selfName       string
	roomCode       string
	hostUserID     string
	isHost         bool
	sharingEnabled bool
	pending        map[string]*pendingPeer
	peers          map[string]*peer
}

// Options wires a Coordinator's collaborators.
type Options struct {
	Relay Relay
	Store RoomStore
	Cache CourseCache
	Dial  peerconn.Factory
	// Backlog is how many recent signaling rows to replay on join.
	Backlog int
}

func NewCoordinator(opts Options) *Coordinator {
	backlog := opts.Backlog
	if backlog <= 0 {
		backlog = 50
	}
	id := uuid.New().String()
	return &Coordinator{
		selfID:         id,
		relay:          opts.Relay,
		store:          opts.Store,
		cache:          opts.Cache,
		dial:           opts.Dial,
		backlog:        backlog,
		events:         make(chan Event, 64),
		selfName:       "Student-" + id[:6],
		sharingEnabled: true,
		pending:        make(map[string]*pendingPeer),
		peers:          make(map[string]*peer),
	}
}

// SelfID is this device's peer id, minted fresh each process lifetime.
func (c *Coordinator) SelfID() string { return c.selfID }

// Events delivers coordinator state changes. Slow consumers miss events
// rather than blocking the coordinator.
func (c *Coordinator) Events() <-chan Event { return c.events }

// SetSharingEnabled gates content transfer. When disabled, incoming
// request_course messages are accepted but never answered; discovery and
// connections still happen.
func (c *Coordinator) SetSharingEnabled(enabled bool) {
	c.mu.Lock()
	c.sharingEnabled = enabled
	c.mu.Unlock()
}

// CreateRoom registers a new active room, opens the relay for its code and
// announces presence. On a registration failure no local state is retained.
func (c *Coordinator) CreateRoom(ctx context.Context, userID, displayName string) (string, error) {
	if userID == "" {
		return "", ErrAuthRequired
	}

	code := GenerateRoomCode()
	room := models.Room{Code: code, HostID: userID, HostName: displayName, IsActive: true}
	if err := c.store.CreateRoom(ctx, room); err != nil {
		return "", err
	}

	// The room identity must be recorded before the relay goes live: the
	// handler can run before OpenRoom returns, and connections made from it
	// capture the room code and display name.
	c.adoptRoom(code, userID, true, displayName)
	if err := c.relay.OpenRoom(ctx, code, c.handleSignal); err != nil {
		c.clearRoom()
		return "", err
	}

	// The presence row lands in the backlog window, so later joiners
	// discover the host without a re-announcement.
	if err := c.announcePresence(ctx); err != nil {
		return code, err
	}
	return code, nil
}

// JoinRoom joins an existing room by code. An absent or inactive room is a
// common outcome and reports false without opening a subscription or
// touching the current room. On success any prior room's connections are
// torn down, the coordinator announces presence, then replays the most
// recent signaling backlog to reach peers who announced before this join.
func (c *Coordinator) JoinRoom(ctx context.Context, code, displayName string) (bool, error) {
	room, err := c.store.FindActiveRoom(ctx, code)
	if err != nil {
		return false, err
	}
	if room == nil {
		return false, nil
	}

	// Identity first, subscription second; see CreateRoom.
	c.adoptRoom(code, "", false, displayName)
	if err := c.relay.OpenRoom(ctx, code, c.handleSignal); err != nil {
		c.clearRoom()
		return false, err
	}

	if err := c.announcePresence(ctx); err != nil {
		return true, err
	}

	backlog, err := c.store.RecentSignals(ctx, code, c.backlog)
	if err != nil {
		log.Printf("mesh: backlog scan failed: %v", err)
		return true, nil
	}
	for _, msg := range backlog {
		c.handleSignal(msg)
	}
	return true, nil
}

// LeaveRoom destroys every owned connection, closes the relay subscription
// and, if this device hosts the room, deactivates it. Calling it with no
// active room is a no-op.
func (c *Coordinator) LeaveRoom(ctx context.Context) error {
	c.mu.Lock()
	if c.roomCode == "" {
		c.mu.Unlock()
		return nil
	}
	code := c.roomCode
	hostID := c.hostUserID
	wasHost := c.isHost

	c.teardownConnsLocked()
	c.roomCode = ""
	c.hostUserID = ""
	c.isHost = false
	c.mu.Unlock()

	c.relay.Close()

	if wasHost {
		if err := c.store.DeactivateRoom(ctx, code, hostID); err != nil {
			return err
		}
	}
	return nil
}

// adoptRoom tears down any prior room's connections and records the new
// room's identity. Entering a room without an explicit LeaveRoom is an
// implicit leave, mirroring the relay's one-room-at-a-time subscription.
func (c *Coordinator) adoptRoom(code, hostID string, isHost bool, displayName string) {
	c.mu.Lock()
	c.teardownConnsLocked()
	c.roomCode = code
	c.hostUserID = hostID
	c.isHost = isHost
	c.selfName = displayName
	c.mu.Unlock()
}

// clearRoom rolls adoptRoom back after a failed subscription, dropping any
// connections made from signals the relay delivered before failing.
func (c *Coordinator) clearRoom() {
	c.mu.Lock()
	c.teardownConnsLocked()
	c.roomCode = ""
	c.hostUserID = ""
	c.isHost = false
	c.mu.Unlock()
}

// teardownConnsLocked closes and forgets every pending and established
// connection. Caller holds c.mu.
func (c *Coordinator) teardownConnsLocked() {
	for id, p := range c.pending {
		p.conn.Close()
		delete(c.pending, id)
	}
	for id, p := range c.peers {
		p.conn.Close()
		delete(c.peers, id)
	}
}

// GetPeers returns a point-in-time view of the established peers.
func (c *Coordinator) GetPeers() []PeerSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snapshots := make([]PeerSnapshot, 0, len(c.peers))
	for _, p := range c.peers {
		courses := make([]string, len(p.courses))
		copy(courses, p.courses)
		snapshots = append(snapshots, PeerSnapshot{
			ID:               p.id,
			Name:             p.name,
			AvailableCourses: courses,
			State:            p.conn.State().String(),
		})
	}
	return snapshots
}

// RequestCourse asks a connected peer to transfer one course bundle.
// Reports false when the peer is unknown, never established or already torn
// down.
func (c *Coordinator) RequestCourse(peerID, courseID string) bool {
	c.mu.Lock()
	p, ok := c.peers[peerID]
	if !ok {
		c.mu.Unlock()
		return false
	}
	conn := p.conn
	c.mu.Unlock()

	if conn.State() != peerconn.StateConnected {
		return false
	}
	payload, err := models.PeerMessage{
		Type:     models.PeerMessageRequestCourse,
		CourseID: courseID,
	}.Encode()
	if err != nil {
		return false
	}
	if err := conn.Send(payload); err != nil {
		log.Printf("mesh: request_course to %s failed: %v", peerID, err)
		return false
	}
	return true
}

func (c *Coordinator) announcePresence(ctx context.Context) error {
	ids, err := c.cache.AllCourseIDs()
	if err != nil {
		log.Printf("mesh: failed to list cached courses: %v", err)
	}

	c.mu.Lock()
	code := c.roomCode
	name := c.selfName
	c.mu.Unlock()

	data, err := json.Marshal(models.PresencePayload{Name: name, Courses: ids})
	if err != nil {
		return err
	}
	return c.relay.Publish(ctx, models.SignalingMessage{
		RoomCode:   code,
		PeerID:     c.selfID,
		PeerName:   name,
		SignalType: models.SignalTypePresence,
		SignalData: data,
	})
}

// handleSignal processes one signaling row observed on the relay. Own
// messages and messages targeted at someone else are always ignored.
func (c *Coordinator) handleSignal(msg models.SignalingMessage) {
	if msg.PeerID == c.selfID {
		return
	}
	if msg.TargetPeerID != "" && msg.TargetPeerID != c.selfID {
		return
	}

	switch msg.SignalType {
	case models.SignalTypePresence:
		payload, err := models.DecodePresence(msg.SignalData)
		if err != nil {
			log.Printf("mesh: dropping malformed presence from %s: %v", msg.PeerID, err)
			return
		}
		c.handlePresence(msg.PeerID, payload)

	case models.SignalTypeOffer:
		payload, err := models.DecodeConnection(msg.SignalType, msg.SignalData)
		if err != nil {
			log.Printf("mesh: dropping malformed offer from %s: %v", msg.PeerID, err)
			return
		}
		c.handleOffer(msg.PeerID, msg.PeerName, payload)

	case models.SignalTypeAnswer, models.SignalTypeCandidate:
		payload, err := models.DecodeConnection(msg.SignalType, msg.SignalData)
		if err != nil {
			log.Printf("mesh: dropping malformed %s from %s: %v", msg.SignalType, msg.PeerID, err)
			return
		}
		c.routeToConnection(msg.PeerID, msg.SignalType, payload)
	}
}

func (c *Coordinator) handlePresence(peerID string, payload models.PresencePayload) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if p, ok := c.peers[peerID]; ok {
		// Re-announcement from an established peer refreshes what we know.
		p.name = payload.Name
		p.courses = payload.Courses
		c.emit(Event{Type: EventPeersUpdated, PeerID: peerID, PeerName: payload.Name})
		return
	}
	if p, ok := c.pending[peerID]; ok {
		p.name = payload.Name
		p.courses = payload.Courses
		return
	}
	c.initiateLocked(peerID, payload.Name, payload.Courses)
}

// initiateLocked allocates an initiator connection toward an unknown peer.
// Its offer and candidates flow back through the relay addressed to that id.
func (c *Coordinator) initiateLocked(peerID, peerName string, courses []string) {
	conn, err := c.dial(peerconn.RoleInitiator, c.connHandlersLocked(peerID))
	if err != nil {
		log.Printf("mesh: failed to dial %s: %v", peerID, err)
		return
	}
	c.pending[peerID] = &pendingPeer{conn: conn, name: peerName, courses: courses}
}

func (c *Coordinator) handleOffer(peerID, peerName string, payload models.ConnectionPayload) {
	c.mu.Lock()

	if _, ok := c.peers[peerID]; ok {
		// Already established with this id; a late offer is stale.
		c.mu.Unlock()
		return
	}

	if existing, ok := c.pending[peerID]; ok {
		// Both sides initiated at once. The lexicographically smaller id
		// keeps its initiator role; the other side drops its own attempt
		// and answers instead.
		if c.selfID < peerID {
			c.mu.Unlock()
			return
		}
		existing.conn.Close()
		delete(c.pending, peerID)
	}

	conn, err := c.dial(peerconn.RoleResponder, c.connHandlersLocked(peerID))
	if err != nil {
		log.Printf("mesh: failed to answer %s: %v", peerID, err)
		c.mu.Unlock()
		return
	}
	c.pending[peerID] = &pendingPeer{conn: conn, name: peerName}
	c.mu.Unlock()

	if err := conn.ApplyRemoteSignal(models.SignalTypeOffer, payload); err != nil {
		log.Printf("mesh: failed to apply offer from %s: %v", peerID, err)
		c.removePeer(peerID)
	}
}

// routeToConnection feeds an answer or candidate to the matching pending or
// established connection. With no match the message is dropped; the remote
// is assumed to have already torn down, or the message is stale.
func (c *Coordinator) routeToConnection(peerID string, sigType models.SignalType, payload models.ConnectionPayload) {
	c.mu.Lock()
	var conn peerconn.Conn
	if p, ok := c.pending[peerID]; ok {
		conn = p.conn
	} else if p, ok := c.peers[peerID]; ok {
		conn = p.conn
	}
	c.mu.Unlock()

	if conn == nil {
		return
	}
	if err := conn.ApplyRemoteSignal(sigType, payload); err != nil {
		log.Printf("mesh: failed to apply %s from %s: %v", sigType, peerID, err)
	}
}

// connHandlersLocked builds the event handlers for one connection; the
// caller holds c.mu. The room code and names are captured here so the signal
// path never needs the coordinator's lock; a connection belongs to exactly
// one room session.
func (c *Coordinator) connHandlersLocked(peerID string) peerconn.Handlers {
	roomCode := c.roomCode
	selfName := c.selfName

	return peerconn.Handlers{
		OnSignal: func(payload models.ConnectionPayload) {
			sigType := models.SignalTypeCandidate
			if payload.SDP != nil {
				if payload.SDP.Type.String() == "offer" {
					sigType = models.SignalTypeOffer
				} else {
					sigType = models.SignalTypeAnswer
				}
			}
			data, err := json.Marshal(payload)
			if err != nil {
				log.Printf("mesh: failed to encode %s for %s: %v", sigType, peerID, err)
				return
			}
			err = c.relay.Publish(context.Background(), models.SignalingMessage{
				RoomCode:     roomCode,
				PeerID:       c.selfID,
				PeerName:     selfName,
				TargetPeerID: peerID,
				SignalType:   sigType,
				SignalData:   data,
			})
			if err != nil {
				// No retry; periodic presence re-announcement papers over
				// transient signaling loss.
				log.Printf("mesh: failed to publish %s to %s: %v", sigType, peerID, err)
			}
		},
		OnConnected: func() { c.promotePeer(peerID) },
		OnData:      func(payload []byte) { c.handlePeerMessage(peerID, payload) },
		OnError: func(err error) {
			log.Printf("mesh: connection to %s errored: %v", peerID, err)
			c.removePeer(peerID)
		},
		OnClosed: func() { c.removePeer(peerID) },
	}
}

// promotePeer moves a connection from pending to the established peers map
// and sends the courses announcement. The send happens under the lock so no
// request_course or course_data can precede it on this connection.
func (c *Coordinator) promotePeer(peerID string) {
	ids, err := c.cache.AllCourseIDs()
	if err != nil {
		log.Printf("mesh: failed to list cached courses: %v", err)
	}

	c.mu.Lock()
	p, ok := c.pending[peerID]
	if !ok {
		c.mu.Unlock()
		return
	}
	delete(c.pending, peerID)
	c.peers[peerID] = &peer{id: peerID, name: p.name, conn: p.conn, courses: p.courses}

	payload, err := models.PeerMessage{
		Type:    models.PeerMessageCourses,
		Name:    c.selfName,
		Courses: ids,
	}.Encode()
	if err == nil {
		if err := p.conn.Send(payload); err != nil {
			log.Printf("mesh: failed to send courses to %s: %v", peerID, err)
		}
	}
	c.emit(Event{Type: EventPeerConnected, PeerID: peerID, PeerName: p.name})
	c.mu.Unlock()
}

// handlePeerMessage processes one course-protocol envelope from a peer.
func (c *Coordinator) handlePeerMessage(peerID string, payload []byte) {
	msg, err := models.DecodePeerMessage(payload)
	if err != nil {
		log.Printf("mesh: dropping bad message from %s: %v", peerID, err)
		return
	}

	switch msg.Type {
	case models.PeerMessageCourses:
		c.mu.Lock()
		if p, ok := c.peers[peerID]; ok {
			p.name = msg.Name
			p.courses = msg.Courses
			c.emit(Event{Type: EventPeersUpdated, PeerID: peerID, PeerName: msg.Name})
		} else if p, ok := c.pending[peerID]; ok {
			p.name = msg.Name
			p.courses = msg.Courses
		}
		c.mu.Unlock()

	case models.PeerMessageRequestCourse:
		c.mu.Lock()
		sharing := c.sharingEnabled
		var conn peerconn.Conn
		if p, ok := c.peers[peerID]; ok {
			conn = p.conn
		}
		c.mu.Unlock()
		if !sharing || conn == nil {
			return
		}
		c.sendCourse(conn, peerID, msg.CourseID)

	case models.PeerMessageCourseData:
		if err := c.cache.SaveCourse(*msg.Course); err != nil {
			log.Printf("mesh: failed to save course %s: %v", msg.Course.ID, err)
			return
		}
		log.Printf("mesh: received course %s from %s", msg.Course.ID, peerID)
		c.mu.Lock()
		c.emit(Event{Type: EventCourseReceived, PeerID: peerID, CourseID: msg.Course.ID})
		c.mu.Unlock()
	}
}

func (c *Coordinator) sendCourse(conn peerconn.Conn, peerID, courseID string) {
	bundle, err := c.cache.GetCourse(courseID)
	if err != nil {
		log.Printf("mesh: failed to load course %s: %v", courseID, err)
		return
	}
	if bundle == nil {
		log.Printf("mesh: course %s not cached locally", courseID)
		return
	}
	payload, err := models.PeerMessage{
		Type:   models.PeerMessageCourseData,
		Course: bundle,
	}.Encode()
	if err != nil {
		return
	}
	if err := conn.Send(payload); err != nil {
		log.Printf("mesh: failed to send course %s to %s: %v", courseID, peerID, err)
		return
	}
	log.Printf("mesh: sent course %s to %s", courseID, peerID)
}

// removePeer drops a peer from both maps and releases its connection. Safe
// to call for ids that are already gone.
func (c *Coordinator) removePeer(peerID string) {
	c.mu.Lock()
	var (
		conn peerconn.Conn
		name string
	)
	if p, ok := c.pending[peerID]; ok {
		conn, name = p.conn, p.name
		delete(c.pending, peerID)
	}
	if p, ok := c.peers[peerID]; ok {
		conn, name = p.conn, p.name
		delete(c.peers, peerID)
	}
	if conn != nil {
		c.emit(Event{Type: EventPeerLost, PeerID: peerID, PeerName: name})
	}
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}

// emit pushes an event without blocking; the caller holds c.mu.
func (c *Coordinator) emit(ev Event) {
	select {
	case c.events <- ev:
	default:
	}
}
