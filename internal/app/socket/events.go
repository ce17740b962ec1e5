/*
Package socket owns the live websocket connection bound to the current
session.

This file defines the event names and the JSON frame envelope exchanged
with the backend. Outbound events carry a chat id; inbound events carry a
chat id, a Message, or a Chat.
*/
package socket

import "encoding/json"

// Outbound event names.
const (
	EventJoinChat   = "joinChat"
	EventLeaveChat  = "leaveChat"
	EventTyping     = "typing"
	EventStopTyping = "stopTyping"
)

// Inbound event names.
const (
	EventMessageReceived = "messageReceived"
	EventChatCreated     = "chatCreated"
)

// Frame is the JSON envelope for every socket event in both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewFrame builds a Frame for event with the given payload.
func NewFrame(event string, data any) (Frame, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Frame{}, err
	}

	return Frame{
		Event: event,
		Data:  raw,
	}, nil
}
