package strategy

import (
	"encoding/json"
	"fmt"
)

// Message is the envelope the remote operator sends. Only messages carrying a
// PitStrategyRequest are of interest; everything else on the socket is ignored.
type Message struct {
	PitStrategyRequest *Request `json:"PitStrategyRequest"`
}

// Parse decodes a remote message and returns the request it carries.
func Parse(data []byte) (Request, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Request{}, fmt.Errorf("unmarshal strategy message: %w", err)
	}
	if msg.PitStrategyRequest == nil {
		return Request{}, fmt.Errorf("message has no PitStrategyRequest")
	}
	return *msg.PitStrategyRequest, nil
}

// Decode is Parse with failures swallowed into an absent value. onError, if
// non-nil, receives the reason a message was dropped.
func Decode(data []byte, onError func(error)) (Request, bool) {
	req, err := Parse(data)
	if err != nil {
		if onError != nil {
			onError(err)
		}
		return Request{}, false
	}
	return req, true
}

// Encode wraps a request in its wire envelope.
func Encode(r Request) ([]byte, error) {
	return json.Marshal(Message{PitStrategyRequest: &r})
}
