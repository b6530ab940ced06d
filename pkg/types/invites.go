package types

import "time"

// Invite is the client-facing view of an invite. The word never leaves the
// server through it.
type Invite struct {
	ID         string     `json:"id"`
	Sender     UserRef    `json:"sender"`
	Recipient  UserRef    `json:"recipient"`
	Status     string     `json:"status"`
	CreatedAt  time.Time  `json:"createdAt"`
	ExpiresAt  time.Time  `json:"expiresAt"`
	ResolvedAt *time.Time `json:"resolvedAt,omitempty"`
}

type SendInviteRequest struct {
	RecipientID string `json:"recipientId"`
}

type RespondRequest struct {
	Decision string `json:"decision"`
}

type RespondResponse struct {
	Invite    Invite `json:"invite"`
	SessionID string `json:"sessionId,omitempty"`
	Role      string `json:"role,omitempty"`
}

type SubmitWordRequest struct {
	Word string `json:"word"`
}

type GuessLetterRequest struct {
	Letter string `json:"letter"`
}

// SessionRecord is an archived game as listed in a user's history.
type SessionRecord struct {
	SessionID string    `json:"sessionId"`
	GiverID   string    `json:"giverId"`
	GuesserID string    `json:"guesserId"`
	Word      string    `json:"word"`
	State     string    `json:"state"`
	Incorrect int       `json:"incorrectCount"`
	Reason    string    `json:"reason"`
	ClosedAt  time.Time `json:"closedAt"`
}

type ErrorResponse struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}
