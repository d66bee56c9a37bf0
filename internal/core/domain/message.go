package domain

import (
	"bytes"
	"encoding/json"

	"go.trai.ch/zerr"
)

// Signal is a control message that carries no correlation id.
type Signal string

const (
	// SignalInitialised is sent once by a worker that is ready to accept calls.
	SignalInitialised Signal = "initialised"
	// SignalBusy is sent by a worker when it starts processing a call.
	SignalBusy Signal = "busy"
)

// Action is the body of a request.
type Action struct {
	FunctionName string         `json:"functionName"`
	Inputs       map[string]any `json:"inputs"`
}

// Message is the single envelope exchanged over a transport.
//
// A request carries Action and ID, a reply carries ID with Result or Error,
// and a control signal carries only Signal and is encoded as a bare JSON string.
type Message struct {
	ID     string  `json:"id,omitempty"`
	Action *Action `json:"action,omitempty"`
	Result any     `json:"result,omitempty"`
	Error  string  `json:"error,omitempty"`
	Signal Signal  `json:"-"`
}

// NewRequest builds a request message.
func NewRequest(id, functionName string, inputs map[string]any) Message {
	return Message{ID: id, Action: &Action{FunctionName: functionName, Inputs: inputs}}
}

// NewReply builds a success reply.
func NewReply(id string, result any) Message {
	return Message{ID: id, Result: result}
}

// NewErrorReply builds an error reply.
func NewErrorReply(id string, err error) Message {
	return Message{ID: id, Error: err.Error()}
}

// NewSignal builds a control signal message.
func NewSignal(s Signal) Message {
	return Message{Signal: s}
}

// IsSignal reports whether the message is a control signal.
func (m Message) IsSignal() bool {
	return m.Signal != ""
}

// IsRequest reports whether the message is a call request.
func (m Message) IsRequest() bool {
	return m.Signal == "" && m.Action != nil
}

// IsReply reports whether the message answers a request.
func (m Message) IsReply() bool {
	return m.Signal == "" && m.Action == nil && m.ID != ""
}

// Failed reports whether the reply carries an error.
func (m Message) Failed() bool {
	return m.Error != ""
}

// CallArguments returns the call carried by a request.
func (m Message) CallArguments() CallArguments {
	if m.Action == nil {
		return CallArguments{}
	}
	return CallArguments{FunctionName: m.Action.FunctionName, Inputs: m.Action.Inputs}
}

type messageJSON Message

// MarshalJSON implements json.Marshaler.
func (m Message) MarshalJSON() ([]byte, error) {
	if m.IsSignal() {
		return json.Marshal(string(m.Signal))
	}
	return json.Marshal(messageJSON(m))
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *Message) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return zerr.Wrap(ErrInvalidMessage, err.Error())
		}
		if s == "" {
			return zerr.Wrap(ErrInvalidMessage, "empty signal")
		}
		*m = Message{Signal: Signal(s)}
		return nil
	}
	var raw messageJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return zerr.Wrap(ErrInvalidMessage, err.Error())
	}
	*m = Message(raw)
	return nil
}
