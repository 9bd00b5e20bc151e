package protocol

import (
	"encoding/json"

	"github.com/lowerthirds/lowerthirds/internal/models"
)

// MessageType identifies the type of WebSocket message. The names are the
// wire contract shared with the browser pages and must not change.
type MessageType string

const (
	// Client -> Server
	TypeJoinChannel  MessageType = "join_channel"
	TypeLeaveChannel MessageType = "leave_channel"

	// Both directions: requests from control clients, broadcasts to rooms
	TypeShowLowerThird MessageType = "show_lower_third"
	TypeHideLowerThird MessageType = "hide_lower_third"
	TypeKillLowerThird MessageType = "kill_lower_third"

	// Server -> Client
	TypeChannelsData  MessageType = "channels_data"
	TypeChannelStatus MessageType = "channel_status"
	TypeReloadClient  MessageType = "reload_client"
	TypeAck           MessageType = "ack"
	TypeError         MessageType = "error"

	// TypeConnect is never sent over the wire. The client transport
	// synthesizes it after every successful (re)connection.
	TypeConnect MessageType = "connect"
)

// Envelope wraps all WebSocket messages with a type field.
type Envelope struct {
	Type MessageType     `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// ChannelsDataMessage is the full channel directory snapshot.
type ChannelsDataMessage struct {
	Channels map[string]models.ChannelInfo `json:"channels"`
}

// ChannelMessage carries only the target channel. Used for join, leave,
// hide and kill.
type ChannelMessage struct {
	Channel string `json:"channel"`
}

// ChannelStatusMessage reports a channel's current overlay state.
type ChannelStatusMessage struct {
	Channel           string             `json:"channel"`
	LowerThirdVisible bool               `json:"lower_third_visible"`
	CurrentLowerThird *models.LowerThird `json:"current_lower_third"`
}

// Status returns the models form of the status payload.
func (m *ChannelStatusMessage) Status() *models.ChannelStatus {
	return &models.ChannelStatus{
		LowerThirdVisible: m.LowerThirdVisible,
		CurrentLowerThird: m.CurrentLowerThird.Clone(),
	}
}

// ShowLowerThirdMessage asks for, or announces, a lower third on a channel.
type ShowLowerThirdMessage struct {
	Channel  string   `json:"channel"`
	ID       string   `json:"id,omitempty"`
	Design   string   `json:"design"`
	Title    string   `json:"title"`
	Subtitle *string  `json:"subtitle"`
	Duration *float64 `json:"duration"`
}

// LowerThird returns the overlay content of the message.
func (m *ShowLowerThirdMessage) LowerThird() *models.LowerThird {
	lt := &models.LowerThird{
		ID:       m.ID,
		Design:   m.Design,
		Title:    m.Title,
		Subtitle: m.Subtitle,
		Duration: m.Duration,
	}
	return lt.Clone()
}

// NewShowLowerThirdMessage builds the broadcast form of a lower third.
func NewShowLowerThirdMessage(channel string, lt *models.LowerThird) ShowLowerThirdMessage {
	return ShowLowerThirdMessage{
		Channel:  channel,
		ID:       lt.ID,
		Design:   lt.Design,
		Title:    lt.Title,
		Subtitle: lt.Subtitle,
		Duration: lt.Duration,
	}
}

// AckMessage answers a control request that succeeded.
type AckMessage struct {
	Request MessageType `json:"request"`
	Channel string      `json:"channel"`
	Status  string      `json:"status"`
}

// ErrorMessage is sent by the server when an error occurs.
type ErrorMessage struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes
const (
	ErrCodeNotFound    = "not_found"
	ErrCodeInvalidMsg  = "invalid_message"
	ErrCodeConcurrency = "concurrency_error"
	ErrCodeInternal    = "internal_error"
)

// NewEnvelope creates an envelope with the given type and data.
func NewEnvelope(msgType MessageType, data interface{}) (*Envelope, error) {
	if data == nil {
		return &Envelope{Type: msgType}, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Envelope{
		Type: msgType,
		Data: raw,
	}, nil
}

// Marshal encodes an envelope with the given type and data.
func Marshal(msgType MessageType, data interface{}) ([]byte, error) {
	env, err := NewEnvelope(msgType, data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(env)
}

// ParseEnvelope parses a JSON message into an envelope.
func ParseEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	if env.Type == "" {
		return nil, invalid("envelope", "missing type")
	}
	return &env, nil
}
