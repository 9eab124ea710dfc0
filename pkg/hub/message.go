// Package hub fans per-frame tracking output out to websocket clients
// using the channel-based broadcast pattern.
package hub

import (
	"encoding/json"
	"time"
)

// MessageType indicates the websocket message format
type MessageType int

const (
	// JSONMessage is a JSON-encoded envelope
	JSONMessage MessageType = iota
	// BinaryMessage is raw binary data (camera preview JPEGs)
	BinaryMessage
)

// Message represents a message to be broadcast to clients
type Message struct {
	Type MessageType
	Data []byte

	// Kind is the envelope kind, empty for binary frames
	Kind string

	// Droppable messages are skipped for a client whose buffer is full
	// instead of disconnecting it. Preview frames are droppable; the next
	// one replaces them anyway.
	Droppable bool
}

// Envelope kinds sent to pose clients
const (
	KindPose        = "pose"
	KindCalibration = "calibration"
	KindSettings    = "settings"
)

// Envelope wraps every JSON message so clients can switch on Kind
type Envelope struct {
	Kind string    `json:"kind"`
	Time time.Time `json:"time"`
	Data any       `json:"data"`
}

// NewJSONMessage creates a JSON message from pre-encoded bytes
func NewJSONMessage(data []byte) Message {
	return Message{Type: JSONMessage, Data: data}
}

// NewBinaryMessage creates a droppable binary message
func NewBinaryMessage(data []byte) Message {
	return Message{Type: BinaryMessage, Data: data, Droppable: true}
}

// NewEnvelope encodes v inside an Envelope of the given kind
func NewEnvelope(kind string, v any) (Message, error) {
	data, err := json.Marshal(Envelope{Kind: kind, Time: time.Now(), Data: v})
	if err != nil {
		return Message{}, err
	}
	msg := NewJSONMessage(data)
	msg.Kind = kind
	return msg, nil
}
