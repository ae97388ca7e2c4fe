package mesh

import (
	"context"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v3"

	"github.com/learnchain/course-mesh/internal/models"
	"github.com/learnchain/course-mesh/internal/peerconn"
	"github.com/learnchain/course-mesh/internal/signaling"
)

// fakeRelay records published rows and tracks the open subscription.
type fakeRelay struct {
	mu         sync.Mutex
	openCalls  int
	openedRoom string
	handler    signaling.Handler
	published  []models.SignalingMessage
	closeCalls int
	openErr    error
	publishErr error
}

func (r *fakeRelay) OpenRoom(_ context.Context, roomCode string, handler signaling.Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.openErr != nil {
		return r.openErr
	}
	r.openCalls++
	r.openedRoom = roomCode
	r.handler = handler
	return nil
}

func (r *fakeRelay) Publish(_ context.Context, msg models.SignalingMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.publishErr != nil {
		return r.publishErr
	}
	r.published = append(r.published, msg)
	return nil
}

func (r *fakeRelay) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closeCalls++
	r.handler = nil
	r.openedRoom = ""
	return nil
}

// eagerRelay hands a canned set of rows to the handler inside OpenRoom,
// before the call returns, the way a live feed can once the subscription is
// acknowledged.
type eagerRelay struct {
	fakeRelay
	deliverOnOpen []models.SignalingMessage
}

func (r *eagerRelay) OpenRoom(ctx context.Context, roomCode string, handler signaling.Handler) error {
	if err := r.fakeRelay.OpenRoom(ctx, roomCode, handler); err != nil {
		return err
	}
	for _, msg := range r.deliverOnOpen {
		msg.RoomCode = roomCode
		handler(msg)
	}
	return nil
}

func (r *fakeRelay) publishedOfType(t models.SignalType) []models.SignalingMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.SignalingMessage
	for _, msg := range r.published {
		if msg.SignalType == t {
			out = append(out, msg)
		}
	}
	return out
}

// fakeStore is an in-memory room/signaling store.
type fakeStore struct {
	mu          sync.Mutex
	rooms       map[string]models.Room
	createErr   error
	backlog     []models.SignalingMessage
	deactivated []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{rooms: make(map[string]models.Room)}
}

func (s *fakeStore) CreateRoom(_ context.Context, room models.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	s.rooms[room.Code] = room
	return nil
}

func (s *fakeStore) FindActiveRoom(_ context.Context, code string) (*models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[code]
	if !ok || !room.IsActive {
		return nil, nil
	}
	copied := room
	return &copied, nil
}

func (s *fakeStore) DeactivateRoom(_ context.Context, code, hostID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if room, ok := s.rooms[code]; ok && room.HostID == hostID {
		room.IsActive = false
		s.rooms[code] = room
		s.deactivated = append(s.deactivated, code)
	}
	return nil
}

func (s *fakeStore) RecentSignals(_ context.Context, _ string, limit int) ([]models.SignalingMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.backlog
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]models.SignalingMessage, len(msgs))
	copy(out, msgs)
	return out, nil
}

// fakeCache is an in-memory CourseCache.
type fakeCache struct {
	mu      sync.Mutex
	courses map[string]models.CourseBundle
}

func newFakeCache(ids ...string) *fakeCache {
	c := &fakeCache{courses: make(map[string]models.CourseBundle)}
	for _, id := range ids {
		c.courses[id] = models.CourseBundle{ID: id, Title: "Course " + id}
	}
	return c
}

func (c *fakeCache) AllCourseIDs() ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.courses))
	for id := range c.courses {
		ids = append(ids, id)
	}
	return ids, nil
}

func (c *fakeCache) GetCourse(courseID string) (*models.CourseBundle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	bundle, ok := c.courses[courseID]
	if !ok {
		return nil, nil
	}
	return &bundle, nil
}

func (c *fakeCache) SaveCourse(bundle models.CourseBundle) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.courses[bundle.ID] = bundle
	return nil
}

func (c *fakeCache) has(courseID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.courses[courseID]
	return ok
}

// fakeConn is a scriptable peer connection. Initiators emit a fake offer
// whose SDP body is a unique token; the harness uses the token to pair the
// two ends when the responder applies it.
type fakeConn struct {
	mu       sync.Mutex
	role     peerconn.Role
	state    peerconn.State
	handlers peerconn.Handlers
	harness  *connHarness
	token    string
	remote   *fakeConn
	sent     [][]byte
	applied  []models.SignalType
	closed   bool
}

func (c *fakeConn) Role() peerconn.Role { return c.role }

func (c *fakeConn) State() peerconn.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *fakeConn) ApplyRemoteSignal(sigType models.SignalType, payload models.ConnectionPayload) error {
	c.mu.Lock()
	c.applied = append(c.applied, sigType)
	c.mu.Unlock()

	switch sigType {
	case models.SignalTypeOffer:
		remote := c.harness.lookup(payload.SDP.SDP)
		if remote != nil {
			c.mu.Lock()
			c.remote = remote
			c.mu.Unlock()
			remote.mu.Lock()
			remote.remote = c
			remote.mu.Unlock()
		}
		answer := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: c.token}
		if c.handlers.OnSignal != nil {
			c.handlers.OnSignal(models.ConnectionPayload{SDP: &answer})
		}
	case models.SignalTypeAnswer:
		// Handshake complete; both ends open their channels.
		c.open()
		c.mu.Lock()
		remote := c.remote
		c.mu.Unlock()
		if remote != nil {
			remote.open()
		}
	}
	return nil
}

func (c *fakeConn) open() {
	c.mu.Lock()
	if c.state != peerconn.StateNegotiating {
		c.mu.Unlock()
		return
	}
	c.state = peerconn.StateConnected
	c.mu.Unlock()
	if c.handlers.OnConnected != nil {
		c.handlers.OnConnected()
	}
}

func (c *fakeConn) Send(payload []byte) error {
	c.mu.Lock()
	if c.state != peerconn.StateConnected {
		c.mu.Unlock()
		return peerconn.ErrNotConnected
	}
	c.sent = append(c.sent, payload)
	remote := c.remote
	c.mu.Unlock()

	if remote != nil && remote.handlers.OnData != nil {
		remote.handlers.OnData(payload)
	}
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.state == peerconn.StateNegotiating || c.state == peerconn.StateConnected {
		c.state = peerconn.StateClosed
	}
	return nil
}

func (c *fakeConn) sentMessages() []models.PeerMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []models.PeerMessage
	for _, payload := range c.sent {
		msg, err := models.DecodePeerMessage(payload)
		if err == nil {
			out = append(out, msg)
		}
	}
	return out
}

// connHarness builds fake connections and pairs them across coordinators.
type connHarness struct {
	mu    sync.Mutex
	seq   int
	conns map[string]*fakeConn
	dials []*fakeConn
}

func newConnHarness() *connHarness {
	return &connHarness{conns: make(map[string]*fakeConn)}
}

func (h *connHarness) factory() peerconn.Factory {
	return func(role peerconn.Role, handlers peerconn.Handlers) (peerconn.Conn, error) {
		h.mu.Lock()
		h.seq++
		conn := &fakeConn{
			role:     role,
			state:    peerconn.StateNegotiating,
			handlers: handlers,
			harness:  h,
			token:    fmt.Sprintf("conn-%d", h.seq),
		}
		h.conns[conn.token] = conn
		h.dials = append(h.dials, conn)
		h.mu.Unlock()

		if role == peerconn.RoleInitiator {
			offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: conn.token}
			if handlers.OnSignal != nil {
				handlers.OnSignal(models.ConnectionPayload{SDP: &offer})
			}
		}
		return conn, nil
	}
}

func (h *connHarness) lookup(token string) *fakeConn {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.conns[token]
}

func (h *connHarness) dialCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.dials)
}

// bus is an in-memory signaling relay shared by several coordinators.
// Published rows are queued and delivered by pump so no handler runs inside
// another handler's stack.
type bus struct {
	mu    sync.Mutex
	subs  map[*busRelay]bool
	queue []models.SignalingMessage
}

func newBus() *bus {
	return &bus{subs: make(map[*busRelay]bool)}
}

// pump delivers queued rows until the bus quiesces.
func (b *bus) pump() {
	for {
		b.mu.Lock()
		if len(b.queue) == 0 {
			b.mu.Unlock()
			return
		}
		msg := b.queue[0]
		b.queue = b.queue[1:]
		var handlers []signaling.Handler
		for sub := range b.subs {
			if sub.roomCode == msg.RoomCode && sub.handler != nil {
				handlers = append(handlers, sub.handler)
			}
		}
		b.mu.Unlock()

		for _, handler := range handlers {
			handler(msg)
		}
	}
}

// busRelay is one coordinator's relay backed by the shared bus.
type busRelay struct {
	bus      *bus
	roomCode string
	handler  signaling.Handler
}

func (r *busRelay) OpenRoom(_ context.Context, roomCode string, handler signaling.Handler) error {
	r.bus.mu.Lock()
	defer r.bus.mu.Unlock()
	r.roomCode = roomCode
	r.handler = handler
	r.bus.subs[r] = true
	return nil
}

func (r *busRelay) Publish(_ context.Context, msg models.SignalingMessage) error {
	r.bus.mu.Lock()
	defer r.bus.mu.Unlock()
	r.bus.queue = append(r.bus.queue, msg)
	return nil
}

func (r *busRelay) Close() error {
	r.bus.mu.Lock()
	defer r.bus.mu.Unlock()
	delete(r.bus.subs, r)
	r.handler = nil
	return nil
}
