package types

import "time"

// Push event names. User-channel events carry invite lifecycle changes;
// session-channel events carry gameplay. Push is a hint; clients re-fetch
// pending invites or the session snapshot to recover missed events.
const (
	EventInviteReceived  = "inviteReceived"
	EventInviteDeclined  = "inviteDeclined"
	EventInviteCancelled = "inviteCancelled"
	EventInviteExpired   = "inviteExpired"
	EventGameStarted     = "gameStarted"

	EventWordSubmitted = "wordSubmitted"
	EventLetterGuessed = "letterGuessed"
	EventOpponentLeft  = "opponentLeft"
	EventSessionClosed = "sessionClosed"
)

type UserRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type InviteReceived struct {
	InviteID  string    `json:"inviteId"`
	Sender    UserRef   `json:"sender"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// InviteResolved is sent for declined, cancelled and expired invites.
type InviteResolved struct {
	InviteID string `json:"inviteId"`
	Status   string `json:"status"`
}

type GameStarted struct {
	InviteID  string `json:"inviteId"`
	SessionID string `json:"sessionId"`
	Role      string `json:"role"`
}

type WordSubmitted struct {
	SessionID string `json:"sessionId"`
	Length    int    `json:"length"`
	Masked    string `json:"masked"`
}

type LetterGuessed struct {
	SessionID      string `json:"sessionId"`
	Letter         string `json:"letter"`
	Correct        bool   `json:"correct"`
	IncorrectCount int    `json:"incorrectCount"`
	Masked         string `json:"masked"`
	State          string `json:"state"`
	Word           string `json:"word,omitempty"` // only once the game is over
}

type OpponentLeft struct {
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId"`
}

type SessionClosed struct {
	SessionID string `json:"sessionId"`
	Reason    string `json:"reason"`
}
