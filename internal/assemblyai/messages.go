package assemblyai

import (
	"encoding/json"
	"fmt"
)

// Inbound message types on the streaming socket.
const (
	MessageTypeBegin       = "Begin"
	MessageTypeTurn        = "Turn"
	MessageTypeTermination = "Termination"
)

// Message is one inbound event from the streaming service. Fields are
// populated according to Type.
type Message struct {
	Type                   string  `json:"type"`
	ID                     string  `json:"id,omitempty"`
	ExpiresAt              int64   `json:"expires_at,omitempty"`
	Transcript             string  `json:"transcript,omitempty"`
	TurnIsFormatted        bool    `json:"turn_is_formatted,omitempty"`
	EndOfTurn              bool    `json:"end_of_turn,omitempty"`
	AudioDurationSeconds   float64 `json:"audio_duration_seconds,omitempty"`
	SessionDurationSeconds float64 `json:"session_duration_seconds,omitempty"`
}

// ParseMessage decodes one inbound streaming message.
func ParseMessage(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, fmt.Errorf("failed to parse streaming message: %w", err)
	}
	if msg.Type == "" {
		return Message{}, fmt.Errorf("streaming message has no type")
	}
	return msg, nil
}

// TerminateMessage returns the encoded termination request sent before
// closing the socket.
func TerminateMessage() []byte {
	data, _ := json.Marshal(struct {
		Type string `json:"type"`
	}{Type: "Terminate"})
	return data
}

// TokenResponse is the temporary-token endpoint payload handed to browser
// capture clients.
type TokenResponse struct {
	Token            string `json:"token"`
	ExpiresInSeconds int    `json:"expires_in_seconds,omitempty"`
}
