package camera

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/rtp/codecs"
	"github.com/pion/webrtc/v3"

	"github.com/teslashibe/go-piar/internal/log"
)

// DefaultProducerName is the webrtcsink producer advertised by the robot.
const DefaultProducerName = "reachymini"

// H264 NAL unit types we care about.
const (
	nalIDR = 5
	nalSPS = 7
)

// WebRTCSource receives the robot camera through GStreamer webrtcsink signalling
// and exposes the latest decoded picture as a Frame.
type WebRTCSource struct {
	signallingURL string
	producerName  string
	decoder       *Decoder
	log           *slog.Logger

	ws   *websocket.Conn
	wsMu sync.Mutex
	pc   *webrtc.PeerConnection

	myPeerID   string
	producerID string
	sessionID  string

	latest  Frame
	frameMu sync.RWMutex
	seq     uint64

	trackReady chan struct{}
	closed     atomic.Bool
}

// NewWebRTCSource creates a source for the given signalling URL (ws://host:8443).
func NewWebRTCSource(signallingURL string) *WebRTCSource {
	return &WebRTCSource{
		signallingURL: signallingURL,
		producerName:  DefaultProducerName,
		decoder:       NewDecoder(100 * time.Millisecond),
		log:           log.Component("webrtc"),
		trackReady:    make(chan struct{}, 1),
	}
}

// signalMessage covers every message of the webrtcsink signalling protocol we use.
type signalMessage struct {
	Type      string `json:"type"`
	PeerID    string `json:"peerId,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	Producers []struct {
		ID   string            `json:"id"`
		Meta map[string]string `json:"meta"`
	} `json:"producers,omitempty"`
	SDP *sdpPayload `json:"sdp,omitempty"`
	ICE *icePayload `json:"ice,omitempty"`
}

type sdpPayload struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

type icePayload struct {
	Candidate     string  `json:"candidate"`
	SDPMid        *string `json:"sdpMid"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex"`
}

// Connect performs signalling and waits for the first video track.
func (s *WebRTCSource) Connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}

	var err error
	s.ws, _, err = dialer.DialContext(ctx, s.signallingURL, nil)
	if err != nil {
		return fmt.Errorf("signalling connect: %w", err)
	}

	welcome, err := s.readMessage(10 * time.Second)
	if err != nil {
		return fmt.Errorf("welcome: %w", err)
	}
	if welcome.Type != "welcome" {
		return fmt.Errorf("welcome: expected welcome, got %s", welcome.Type)
	}
	s.myPeerID = welcome.PeerID

	if err := s.findProducer(); err != nil {
		return fmt.Errorf("find producer: %w", err)
	}
	if err := s.createPeerConnection(); err != nil {
		return fmt.Errorf("peer connection: %w", err)
	}
	if err := s.send(signalMessage{Type: "startSession", PeerID: s.producerID}); err != nil {
		return fmt.Errorf("start session: %w", err)
	}

	go s.handleSignalling()

	select {
	case <-s.trackReady:
		s.log.Info("video track connected", "producer", s.producerID)
		return nil
	case <-time.After(15 * time.Second):
		return fmt.Errorf("timeout waiting for video")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *WebRTCSource) readMessage(timeout time.Duration) (signalMessage, error) {
	var msg signalMessage
	if timeout > 0 {
		s.ws.SetReadDeadline(time.Now().Add(timeout))
		defer s.ws.SetReadDeadline(time.Time{})
	}
	_, data, err := s.ws.ReadMessage()
	if err != nil {
		return msg, err
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		return msg, fmt.Errorf("decode signalling message: %w", err)
	}
	return msg, nil
}

func (s *WebRTCSource) send(msg signalMessage) error {
	s.wsMu.Lock()
	defer s.wsMu.Unlock()
	return s.ws.WriteJSON(msg)
}

func (s *WebRTCSource) findProducer() error {
	if err := s.send(signalMessage{Type: "list"}); err != nil {
		return err
	}
	list, err := s.readMessage(5 * time.Second)
	if err != nil {
		return err
	}
	for _, p := range list.Producers {
		if p.Meta["name"] == s.producerName {
			s.producerID = p.ID
			return nil
		}
	}
	return fmt.Errorf("%s producer not found in %d producers", s.producerName, len(list.Producers))
}

func (s *WebRTCSource) createPeerConnection() error {
	var err error
	s.pc, err = webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		return err
	}

	if _, err = s.pc.AddTransceiverFromKind(webrtc.RTPCodecTypeVideo, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	}); err != nil {
		return err
	}

	s.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		if track.Kind() == webrtc.RTPCodecTypeVideo {
			go s.handleVideoTrack(track)
		}
	})

	s.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil || s.sessionID == "" {
			return
		}
		init := c.ToJSON()
		msg := signalMessage{
			Type:      "peer",
			SessionID: s.sessionID,
			ICE:       &icePayload{Candidate: init.Candidate, SDPMid: init.SDPMid, SDPMLineIndex: init.SDPMLineIndex},
		}
		if err := s.send(msg); err != nil {
			s.log.Warn("send ice candidate", "err", err)
		}
	})

	s.pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		s.log.Debug("connection state", "state", state.String())
	})

	return nil
}

func (s *WebRTCSource) handleSignalling() {
	for !s.closed.Load() {
		msg, err := s.readMessage(0)
		if err != nil {
			if !s.closed.Load() {
				s.log.Warn("signalling closed", "err", err)
			}
			return
		}

		switch msg.Type {
		case "sessionStarted":
			s.sessionID = msg.SessionID
		case "peer":
			if err := s.handlePeer(msg); err != nil {
				s.log.Warn("peer message", "err", err)
			}
		case "endSession":
			return
		}
	}
}

func (s *WebRTCSource) handlePeer(msg signalMessage) error {
	if msg.SDP != nil && msg.SDP.Type == "offer" {
		offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: msg.SDP.SDP}
		if err := s.pc.SetRemoteDescription(offer); err != nil {
			return fmt.Errorf("set remote description: %w", err)
		}
		answer, err := s.pc.CreateAnswer(nil)
		if err != nil {
			return fmt.Errorf("create answer: %w", err)
		}
		if err := s.pc.SetLocalDescription(answer); err != nil {
			return fmt.Errorf("set local description: %w", err)
		}

		return s.send(signalMessage{
			Type:      "peer",
			SessionID: s.sessionID,
			SDP:       &sdpPayload{Type: answer.Type.String(), SDP: answer.SDP},
		})
	}

	if msg.ICE != nil {
		return s.pc.AddICECandidate(webrtc.ICECandidateInit{
			Candidate:     msg.ICE.Candidate,
			SDPMid:        msg.ICE.SDPMid,
			SDPMLineIndex: msg.ICE.SDPMLineIndex,
		})
	}
	return nil
}

// handleVideoTrack depacketizes H264 and decodes a picture per decoder interval.
// The buffer restarts at every SPS so each decode sees a complete keyframe group.
func (s *WebRTCSource) handleVideoTrack(track *webrtc.TrackRemote) {
	select {
	case s.trackReady <- struct{}{}:
	default:
	}

	depacketizer := &codecs.H264Packet{}
	var stream []byte
	haveKeyframe := false

	for !s.closed.Load() {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			return
		}

		nals, err := depacketizer.Unmarshal(pkt.Payload)
		if err != nil || len(nals) == 0 {
			continue
		}

		types := nalTypes(nals)
		if types[nalSPS] {
			stream = stream[:0]
			haveKeyframe = false
		}
		if types[nalIDR] {
			haveKeyframe = true
		}
		stream = append(stream, nals...)

		if !haveKeyframe || !pkt.Marker || !s.decoder.Due(time.Now()) {
			continue
		}

		data, err := s.decoder.Decode(context.Background(), stream)
		if err != nil {
			s.log.Debug("decode", "err", err)
			continue
		}
		if data != nil {
			s.storeFrame(data)
		}
	}
}

// nalTypes scans an Annex-B buffer and reports which NAL unit types it holds.
func nalTypes(annexB []byte) map[byte]bool {
	types := make(map[byte]bool)
	for i := 0; i+3 < len(annexB); i++ {
		if annexB[i] == 0 && annexB[i+1] == 0 && annexB[i+2] == 1 {
			types[annexB[i+3]&0x1F] = true
			i += 3
		}
	}
	return types
}

func (s *WebRTCSource) storeFrame(data []byte) {
	s.frameMu.Lock()
	defer s.frameMu.Unlock()

	frame, err := FrameFromJPEG(s.seq+1, data, time.Now())
	if err != nil {
		return
	}
	s.seq++
	s.latest = frame
}

// Capture returns the most recently decoded frame.
func (s *WebRTCSource) Capture(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	if s.closed.Load() {
		return Frame{}, ErrClosed
	}

	s.frameMu.RLock()
	defer s.frameMu.RUnlock()

	if s.latest.JPEG == nil {
		return Frame{}, ErrNoFrame
	}
	return s.latest, nil
}

// WaitForFrame polls until the first frame is decoded.
func (s *WebRTCSource) WaitForFrame(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		if _, err := s.Capture(ctx); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for frame: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

// Close tears down the peer connection and signalling socket.
func (s *WebRTCSource) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	if s.pc != nil {
		s.pc.Close()
	}
	if s.ws != nil {
		s.ws.Close()
	}
	return nil
}
