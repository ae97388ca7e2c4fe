package peerconn

import (
	"fmt"
	"log"
	"sync"

	"github.com/pion/webrtc/v3"

	"github.com/learnchain/course-mesh/internal/models"
)

const dataChannelLabel = "course"

// NewWebRTCFactory returns a Factory producing pion-backed connections with
// one "course" data channel each, using trickle ICE.
func NewWebRTCFactory(stunServer string) Factory {
	cfg := webrtc.Configuration{}
	if stunServer != "" {
		cfg.ICEServers = []webrtc.ICEServer{{URLs: []string{stunServer}}}
	}
	return func(role Role, handlers Handlers) (Conn, error) {
		return newWebRTCConn(cfg, role, handlers)
	}
}

type webrtcConn struct {
	role     Role
	handlers Handlers
	pc       *webrtc.PeerConnection

	mu        sync.Mutex
	state     State
	dc        *webrtc.DataChannel
	remoteSet bool
	// candidates received before the remote description, applied in order
	// once it lands
	queued []webrtc.ICECandidateInit
}

func newWebRTCConn(cfg webrtc.Configuration, role Role, handlers Handlers) (*webrtcConn, error) {
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}

	c := &webrtcConn{
		role:     role,
		handlers: handlers,
		pc:       pc,
		state:    StateNegotiating,
	}

	pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return
		}
		init := cand.ToJSON()
		c.emitSignal(models.ConnectionPayload{Candidate: &init})
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		switch state {
		case webrtc.PeerConnectionStateFailed:
			c.fail(fmt.Errorf("transport failed"))
		case webrtc.PeerConnectionStateDisconnected, webrtc.PeerConnectionStateClosed:
			c.closedByTransport()
		}
	})

	switch role {
	case RoleInitiator:
		dc, err := pc.CreateDataChannel(dataChannelLabel, nil)
		if err != nil {
			pc.Close()
			return nil, fmt.Errorf("failed to create data channel: %w", err)
		}
		c.bindDataChannel(dc)

		offer, err := pc.CreateOffer(nil)
		if err != nil {
			pc.Close()
			return nil, fmt.Errorf("failed to create offer: %w", err)
		}
		if err := pc.SetLocalDescription(offer); err != nil {
			pc.Close()
			return nil, fmt.Errorf("failed to set local offer: %w", err)
		}
		c.emitSignal(models.ConnectionPayload{SDP: &offer})

	case RoleResponder:
		pc.OnDataChannel(func(dc *webrtc.DataChannel) {
			c.bindDataChannel(dc)
		})

	default:
		pc.Close()
		return nil, fmt.Errorf("unknown role: %q", role)
	}

	return c, nil
}

func (c *webrtcConn) Role() Role { return c.role }

func (c *webrtcConn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *webrtcConn) ApplyRemoteSignal(sigType models.SignalType, payload models.ConnectionPayload) error {
	switch sigType {
	case models.SignalTypeOffer:
		if c.role != RoleResponder {
			return fmt.Errorf("initiator received an offer")
		}
		if err := c.setRemoteDescription(*payload.SDP); err != nil {
			return err
		}
		answer, err := c.pc.CreateAnswer(nil)
		if err != nil {
			return fmt.Errorf("failed to create answer: %w", err)
		}
		if err := c.pc.SetLocalDescription(answer); err != nil {
			return fmt.Errorf("failed to set local answer: %w", err)
		}
		c.emitSignal(models.ConnectionPayload{SDP: &answer})
		return nil

	case models.SignalTypeAnswer:
		if c.role != RoleInitiator {
			return fmt.Errorf("responder received an answer")
		}
		return c.setRemoteDescription(*payload.SDP)

	case models.SignalTypeCandidate:
		c.mu.Lock()
		if !c.remoteSet {
			c.queued = append(c.queued, *payload.Candidate)
			c.mu.Unlock()
			return nil
		}
		c.mu.Unlock()
		return c.pc.AddICECandidate(*payload.Candidate)

	default:
		return fmt.Errorf("not a connection signal: %s", sigType)
	}
}

func (c *webrtcConn) setRemoteDescription(sdp webrtc.SessionDescription) error {
	if err := c.pc.SetRemoteDescription(sdp); err != nil {
		return fmt.Errorf("failed to set remote description: %w", err)
	}

	c.mu.Lock()
	c.remoteSet = true
	queued := c.queued
	c.queued = nil
	c.mu.Unlock()

	for _, cand := range queued {
		if err := c.pc.AddICECandidate(cand); err != nil {
			return fmt.Errorf("failed to apply queued candidate: %w", err)
		}
	}
	return nil
}

func (c *webrtcConn) Send(payload []byte) error {
	c.mu.Lock()
	dc := c.dc
	connected := c.state == StateConnected
	c.mu.Unlock()

	if !connected || dc == nil {
		return ErrNotConnected
	}
	return dc.Send(payload)
}

func (c *webrtcConn) Close() error {
	c.mu.Lock()
	if c.state == StateNegotiating || c.state == StateConnected {
		c.state = StateClosed
	}
	c.mu.Unlock()
	return c.pc.Close()
}

func (c *webrtcConn) bindDataChannel(dc *webrtc.DataChannel) {
	c.mu.Lock()
	c.dc = dc
	c.mu.Unlock()

	dc.OnOpen(func() {
		c.mu.Lock()
		if c.state != StateNegotiating {
			c.mu.Unlock()
			return
		}
		c.state = StateConnected
		c.mu.Unlock()
		if c.handlers.OnConnected != nil {
			c.handlers.OnConnected()
		}
	})

	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		if c.terminal() {
			return
		}
		if c.handlers.OnData != nil {
			c.handlers.OnData(msg.Data)
		}
	})

	dc.OnClose(func() {
		c.closedByTransport()
	})
}

func (c *webrtcConn) emitSignal(payload models.ConnectionPayload) {
	if c.terminal() {
		return
	}
	if c.handlers.OnSignal != nil {
		c.handlers.OnSignal(payload)
	}
}

func (c *webrtcConn) fail(err error) {
	c.mu.Lock()
	if c.state == StateClosed || c.state == StateErrored {
		c.mu.Unlock()
		return
	}
	c.state = StateErrored
	c.mu.Unlock()

	log.Printf("peerconn: transport error: %v", err)
	if c.handlers.OnError != nil {
		c.handlers.OnError(err)
	}
}

func (c *webrtcConn) closedByTransport() {
	c.mu.Lock()
	if c.state == StateClosed || c.state == StateErrored {
		c.mu.Unlock()
		return
	}
	c.state = StateClosed
	c.mu.Unlock()

	if c.handlers.OnClosed != nil {
		c.handlers.OnClosed()
	}
}

func (c *webrtcConn) terminal() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateClosed || c.state == StateErrored
}
