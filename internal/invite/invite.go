// Package invite owns the invitation lifecycle that pairs two players.
package invite

import (
	"context"
	"time"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusAccepted  Status = "ACCEPTED"
	StatusDeclined  Status = "DECLINED"
	StatusCancelled Status = "CANCELLED"
	StatusExpired   Status = "EXPIRED"
)

func (s Status) Terminal() bool { return s != StatusPending }

type Decision string

const (
	DecisionAccept  Decision = "accept"
	DecisionDecline Decision = "decline"
)

type Invite struct {
	ID          string
	SenderID    string
	RecipientID string
	Status      Status
	CreatedAt   time.Time
	ExpiresAt   time.Time
	ResolvedAt  *time.Time
	Word        string // set once by the giver after acceptance
}

// Involves reports whether userID is the sender or the recipient.
func (i Invite) Involves(userID string) bool {
	return i.SenderID == userID || i.RecipientID == userID
}

// PairKey identifies the unordered pair of participants.
func PairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "|" + b
}

// Store is the ground truth for invitations. Transition is a compare-and-set
// on Status and is the only way an invite leaves PENDING.
type Store interface {
	// Create fails with apperr.ErrDuplicateInvite when a PENDING invite
	// already exists for the unordered pair.
	Create(ctx context.Context, inv Invite) error
	Get(ctx context.Context, id string) (Invite, error)
	// Transition moves id from -> to. It fails with apperr.ErrNotFound for an
	// unknown id and apperr.ErrInvalidState when the current status is not from.
	// Moving back to PENDING clears ResolvedAt and fails with
	// apperr.ErrDuplicateInvite if the pair has another pending invite.
	Transition(ctx context.Context, id string, from, to Status, at time.Time) (Invite, error)
	// SetWord records the secret word on an ACCEPTED invite, once.
	SetWord(ctx context.Context, id, word string) error
	ListPendingFor(ctx context.Context, recipientID string) ([]Invite, error)
	ListPendingFrom(ctx context.Context, senderID string) ([]Invite, error)
	ListPending(ctx context.Context) ([]Invite, error)
	// DeleteResolved removes every DECLINED, CANCELLED and EXPIRED invite and
	// ACCEPTED invites resolved before acceptedBefore, skipping ids in keep.
	// It returns the number removed.
	DeleteResolved(ctx context.Context, acceptedBefore time.Time, keep []string) (int, error)
}
