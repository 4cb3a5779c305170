// Package protocol defines the WebSocket message envelope shared by the
// perception loop and its dashboard clients.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType identifies the type of WebSocket message
type MessageType string

const (
	// Server → dashboard messages
	TypeDisplay MessageType = "display" // Label and score fields changed
	TypeReport  MessageType = "report"  // A report went out on the transport
	TypeStatus  MessageType = "status"  // Status line and loop state
	TypeFrame   MessageType = "frame"   // Annotated preview frame

	// Bidirectional
	TypePing MessageType = "ping" // Health check
	TypePong MessageType = "pong" // Health check response
)

// Message is the base wrapper for all WebSocket messages
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"ts,omitempty"` // Unix milliseconds
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(msgType MessageType, data interface{}) (*Message, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal message data: %w", err)
		}
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Data:      rawData,
	}, nil
}

// ParseData unmarshals the message data into the provided struct
func (m *Message) ParseData(v interface{}) error {
	if m.Data == nil {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// Bytes returns the JSON-encoded message
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage parses a JSON message from bytes
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	return &msg, nil
}

// =============================================================================
// Payloads
// =============================================================================

// DisplayData mirrors the two display fields
type DisplayData struct {
	Label string `json:"label"` // Class or "--"
	Score string `json:"score"` // Percentage or "--"
}

// ReportData is one report sent to the consumer
type ReportData struct {
	ID      string `json:"id"`
	Class   string `json:"class"`
	Percent int    `json:"percent"`
	Message string `json:"message"` // Exact wire text, e.g. "dog:87"
	SentAt  int64  `json:"sent_at"` // Unix milliseconds
}

// StatusData describes the loop as a whole
type StatusData struct {
	Status     string `json:"status"`   // Human-readable status line
	Running    bool   `json:"running"`  // Loop is iterating
	Label      string `json:"label"`    // Current display label
	Score      string `json:"score"`    // Current display score
	Throttle   string `json:"throttle"` // "idle" or "cooling"
	LastReport string `json:"last_report,omitempty"`
	Reports    int    `json:"reports"` // Reports sent since start
	Clients    int    `json:"clients"` // Connected dashboard sockets
}

// FrameData contains a preview frame
type FrameData struct {
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	Format  string `json:"format"` // "jpeg", "webp"
	Data    string `json:"data"`   // base64 encoded
	FrameID uint64 `json:"frame_id,omitempty"`
}

// PingData contains ping information
type PingData struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"ts"`
}

// PongData contains pong response
type PongData struct {
	ID        string `json:"id"`
	PingTS    int64  `json:"ping_ts"`
	PongTS    int64  `json:"pong_ts"`
	LatencyMs int64  `json:"latency_ms"`
}
