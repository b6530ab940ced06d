package invite

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/DoyleJ11/hangman-backend/internal/apperr"
)

// MemoryStore keeps invites in a map. State is lost when the process restarts.
type MemoryStore struct {
	mu      sync.RWMutex
	invites map[string]Invite
	pending map[string]string // pair key -> pending invite id
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		invites: make(map[string]Invite),
		pending: make(map[string]string),
	}
}

func (s *MemoryStore) Create(_ context.Context, inv Invite) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.invites[inv.ID]; ok {
		return fmt.Errorf("invite %s already exists", inv.ID)
	}
	key := PairKey(inv.SenderID, inv.RecipientID)
	if id, ok := s.pending[key]; ok {
		return fmt.Errorf("%w: invite %s is pending", apperr.ErrDuplicateInvite, id)
	}
	s.invites[inv.ID] = inv
	if inv.Status == StatusPending {
		s.pending[key] = inv.ID
	}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (Invite, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inv, ok := s.invites[id]
	if !ok {
		return Invite{}, fmt.Errorf("%w: invite %s", apperr.ErrNotFound, id)
	}
	return inv, nil
}

func (s *MemoryStore) Transition(_ context.Context, id string, from, to Status, at time.Time) (Invite, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.invites[id]
	if !ok {
		return Invite{}, fmt.Errorf("%w: invite %s", apperr.ErrNotFound, id)
	}
	if inv.Status != from {
		return inv, fmt.Errorf("%w: invite %s is %s", apperr.ErrInvalidState, id, inv.Status)
	}
	key := PairKey(inv.SenderID, inv.RecipientID)
	if to == StatusPending && from != StatusPending {
		if other, ok := s.pending[key]; ok {
			return inv, fmt.Errorf("%w: invite %s is pending", apperr.ErrDuplicateInvite, other)
		}
		s.pending[key] = id
		inv.ResolvedAt = nil
	}
	inv.Status = to
	if to.Terminal() {
		t := at
		inv.ResolvedAt = &t
	}
	s.invites[id] = inv
	if from == StatusPending && to != StatusPending {
		delete(s.pending, key)
	}
	return inv, nil
}

func (s *MemoryStore) SetWord(_ context.Context, id, word string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.invites[id]
	if !ok {
		return fmt.Errorf("%w: invite %s", apperr.ErrNotFound, id)
	}
	if inv.Status != StatusAccepted || inv.Word != "" {
		return fmt.Errorf("%w: word cannot be set on invite %s", apperr.ErrInvalidState, id)
	}
	inv.Word = word
	s.invites[id] = inv
	return nil
}

func (s *MemoryStore) ListPendingFor(_ context.Context, recipientID string) ([]Invite, error) {
	return s.filter(func(i Invite) bool { return i.Status == StatusPending && i.RecipientID == recipientID }), nil
}

func (s *MemoryStore) ListPendingFrom(_ context.Context, senderID string) ([]Invite, error) {
	return s.filter(func(i Invite) bool { return i.Status == StatusPending && i.SenderID == senderID }), nil
}

func (s *MemoryStore) ListPending(_ context.Context) ([]Invite, error) {
	return s.filter(func(i Invite) bool { return i.Status == StatusPending }), nil
}

func (s *MemoryStore) DeleteResolved(_ context.Context, acceptedBefore time.Time, keep []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, inv := range s.invites {
		if !inv.Status.Terminal() {
			continue
		}
		if inv.Status == StatusAccepted && (inv.ResolvedAt == nil || !inv.ResolvedAt.Before(acceptedBefore)) {
			continue
		}
		if slices.Contains(keep, id) {
			continue
		}
		delete(s.invites, id)
		n++
	}
	return n, nil
}

// filter returns matches newest first.
func (s *MemoryStore) filter(match func(Invite) bool) []Invite {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Invite, 0)
	for _, inv := range s.invites {
		if match(inv) {
			out = append(out, inv)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}
