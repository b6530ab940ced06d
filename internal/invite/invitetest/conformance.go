// Package invitetest checks that an invite.Store honours the contract the
// lifecycle manager relies on.
package invitetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/DoyleJ11/hangman-backend/internal/apperr"
	"github.com/DoyleJ11/hangman-backend/internal/invite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pending(sender, recipient string, createdAt time.Time) invite.Invite {
	return invite.Invite{
		ID:          uuid.NewString(),
		SenderID:    sender,
		RecipientID: recipient,
		Status:      invite.StatusPending,
		CreatedAt:   createdAt,
		ExpiresAt:   createdAt.Add(5 * time.Minute),
	}
}

// Run exercises store. newStore must return an empty store on every call.
func Run(t *testing.T, newStore func(t *testing.T) invite.Store) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	t.Run("create and get", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		inv := pending("alice", "bob", base)
		require.NoError(t, s.Create(ctx, inv))

		got, err := s.Get(ctx, inv.ID)
		require.NoError(t, err)
		assert.Equal(t, inv.SenderID, got.SenderID)
		assert.Equal(t, invite.StatusPending, got.Status)
		assert.True(t, got.CreatedAt.Equal(base))

		_, err = s.Get(ctx, uuid.NewString())
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})

	t.Run("one pending per unordered pair", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.Create(ctx, pending("alice", "bob", base)))
		assert.ErrorIs(t, s.Create(ctx, pending("bob", "alice", base)), apperr.ErrDuplicateInvite)
	})

	t.Run("concurrent creates", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		var wg sync.WaitGroup
		var mu sync.Mutex
		ok := 0
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if s.Create(ctx, pending("alice", "bob", base)) == nil {
					mu.Lock()
					ok++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, ok)
	})

	t.Run("transition is compare and set", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		inv := pending("alice", "bob", base)
		require.NoError(t, s.Create(ctx, inv))

		var wg sync.WaitGroup
		results := make(chan error, 2)
		for _, to := range []invite.Status{invite.StatusAccepted, invite.StatusExpired} {
			wg.Add(1)
			go func(to invite.Status) {
				defer wg.Done()
				_, err := s.Transition(ctx, inv.ID, invite.StatusPending, to, base.Add(time.Minute))
				results <- err
			}(to)
		}
		wg.Wait()
		close(results)

		wins := 0
		for err := range results {
			if err == nil {
				wins++
				continue
			}
			assert.ErrorIs(t, err, apperr.ErrInvalidState)
		}
		assert.Equal(t, 1, wins)

		got, err := s.Get(ctx, inv.ID)
		require.NoError(t, err)
		assert.True(t, got.Status.Terminal())
		require.NotNil(t, got.ResolvedAt)

		_, err = s.Transition(ctx, uuid.NewString(), invite.StatusPending, invite.StatusExpired, base)
		assert.ErrorIs(t, err, apperr.ErrNotFound)

		require.NoError(t, s.Create(ctx, pending("bob", "alice", base)), "pair is free again")
	})

	t.Run("set word once on accepted", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		inv := pending("alice", "bob", base)
		require.NoError(t, s.Create(ctx, inv))

		assert.ErrorIs(t, s.SetWord(ctx, inv.ID, "chaise"), apperr.ErrInvalidState)
		_, err := s.Transition(ctx, inv.ID, invite.StatusPending, invite.StatusAccepted, base)
		require.NoError(t, err)
		require.NoError(t, s.SetWord(ctx, inv.ID, "chaise"))
		assert.ErrorIs(t, s.SetWord(ctx, inv.ID, "table"), apperr.ErrInvalidState)

		got, err := s.Get(ctx, inv.ID)
		require.NoError(t, err)
		assert.Equal(t, "chaise", got.Word)
	})

	t.Run("listing", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		older := pending("alice", "carol", base)
		newer := pending("bob", "carol", base.Add(time.Minute))
		other := pending("carol", "dave", base)
		for _, inv := range []invite.Invite{older, newer, other} {
			require.NoError(t, s.Create(ctx, inv))
		}

		got, err := s.ListPendingFor(ctx, "carol")
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, newer.ID, got[0].ID)
		assert.Equal(t, older.ID, got[1].ID)

		sent, err := s.ListPendingFrom(ctx, "carol")
		require.NoError(t, err)
		require.Len(t, sent, 1)
		assert.Equal(t, other.ID, sent[0].ID)

		_, err = s.Transition(ctx, older.ID, invite.StatusPending, invite.StatusDeclined, base)
		require.NoError(t, err)
		all, err := s.ListPending(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 2)
	})

	t.Run("accepted invite can be reopened", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		inv := pending("alice", "bob", base)
		require.NoError(t, s.Create(ctx, inv))
		_, err := s.Transition(ctx, inv.ID, invite.StatusPending, invite.StatusAccepted, base)
		require.NoError(t, err)

		got, err := s.Transition(ctx, inv.ID, invite.StatusAccepted, invite.StatusPending, base)
		require.NoError(t, err)
		assert.Equal(t, invite.StatusPending, got.Status)
		assert.Nil(t, got.ResolvedAt)

		all, err := s.ListPending(ctx)
		require.NoError(t, err)
		require.Len(t, all, 1)
		assert.Equal(t, inv.ID, all[0].ID)
		assert.ErrorIs(t, s.Create(ctx, pending("bob", "alice", base)), apperr.ErrDuplicateInvite)
	})

	t.Run("delete resolved", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		later := base.Add(2 * time.Hour)

		declined := pending("a", "b", base)
		expired := pending("c", "d", base)
		oldAccepted := pending("e", "f", base)
		liveAccepted := pending("g", "h", base)
		newAccepted := pending("i", "j", base)
		open := pending("k", "l", base)
		for _, inv := range []invite.Invite{declined, expired, oldAccepted, liveAccepted, newAccepted, open} {
			require.NoError(t, s.Create(ctx, inv))
		}
		moves := []struct {
			id string
			to invite.Status
			at time.Time
		}{
			{declined.ID, invite.StatusDeclined, later},
			{expired.ID, invite.StatusExpired, later},
			{oldAccepted.ID, invite.StatusAccepted, base},
			{liveAccepted.ID, invite.StatusAccepted, base},
			{newAccepted.ID, invite.StatusAccepted, later},
		}
		for _, mv := range moves {
			_, err := s.Transition(ctx, mv.id, invite.StatusPending, mv.to, mv.at)
			require.NoError(t, err)
		}

		n, err := s.DeleteResolved(ctx, base.Add(time.Hour), []string{liveAccepted.ID})
		require.NoError(t, err)
		assert.Equal(t, 3, n, "declined and expired go at once, accepted only past retention")

		for _, id := range []string{declined.ID, expired.ID, oldAccepted.ID} {
			_, err = s.Get(ctx, id)
			assert.ErrorIs(t, err, apperr.ErrNotFound)
		}
		for _, id := range []string{liveAccepted.ID, newAccepted.ID, open.ID} {
			_, err = s.Get(ctx, id)
			assert.NoError(t, err)
		}
	})
}
