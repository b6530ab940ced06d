package types

import "encoding/json"

// Client -> Server
//   subscribe:   sessionId
//   unsubscribe: sessionId
//   submitWord:  sessionId, word
//   guessLetter: sessionId, letter
//   leave:       sessionId
//   ping: {}
//
// Server -> Client
//   event:  topic, event, payload
//   result: requestId, payload (session snapshot)
//   error:  requestId, code, error
//   pong: {}

const (
	ClientSubscribe   = "subscribe"
	ClientUnsubscribe = "unsubscribe"
	ClientSubmitWord  = "submitWord"
	ClientGuessLetter = "guessLetter"
	ClientLeave       = "leave"
	ClientPing        = "ping"

	ServerEvent  = "event"
	ServerResult = "result"
	ServerError  = "error"
	ServerPong   = "pong"
)

type ClientMessage struct {
	Type      string `json:"type"`
	RequestID string `json:"requestId,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	Word      string `json:"word,omitempty"`
	Letter    string `json:"letter,omitempty"`
}

type ServerMessage struct {
	Type      string          `json:"type"`
	RequestID string          `json:"requestId,omitempty"`
	Topic     string          `json:"topic,omitempty"`
	Event     string          `json:"event,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Code      string          `json:"code,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// SessionSnapshot is the viewer-specific, pollable state of a game session.
type SessionSnapshot struct {
	SessionID      string   `json:"sessionId"`
	Role           string   `json:"role"`
	GiverID        string   `json:"giverId"`
	GuesserID      string   `json:"guesserId"`
	State          string   `json:"state"`
	Length         int      `json:"length"`
	Masked         string   `json:"masked"`
	Word           string   `json:"word,omitempty"`
	GuessedLetters []string `json:"guessedLetters"`
	IncorrectCount int      `json:"incorrectCount"`
	MaxIncorrect   int      `json:"maxIncorrect"`
	Version        int      `json:"version"`
}
