package invite

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/DoyleJ11/hangman-backend/internal/apperr"
	"github.com/DoyleJ11/hangman-backend/internal/directory"
	"github.com/DoyleJ11/hangman-backend/internal/engine"
	"github.com/DoyleJ11/hangman-backend/internal/fabric"
	"github.com/DoyleJ11/hangman-backend/internal/hub"
	"github.com/DoyleJ11/hangman-backend/pkg/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Sessions is the part of the session registry the manager hands off to.
type Sessions interface {
	StartSession(ctx context.Context, inviteID, senderID, recipientID string) (hub.Roles, error)
	HasLiveSession(ctx context.Context, a, b string) (bool, error)
	LiveSessionIDs(ctx context.Context) ([]string, error)
}

type Config struct {
	TTL time.Duration
	// RequireFriends limits invites to the sender's friends list.
	RequireFriends bool
	// AcceptedRetention keeps accepted invites around for the sweeper. Other
	// resolved invites go on the next sweep.
	AcceptedRetention time.Duration
}

type RespondResult struct {
	Invite    Invite
	SessionID string
	Role      engine.Role
}

type SweepResult struct {
	Expired int
	Deleted int
}

type Manager struct {
	store    Store
	sessions Sessions
	pub      fabric.Publisher
	dir      directory.Directory // optional
	cfg      Config
	log      *zap.Logger
	now      func() time.Time

	mu     sync.Mutex
	timers map[string]*time.Timer
	closed bool
	pairs  pairLocks
}

type Option func(*Manager)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func WithDirectory(dir directory.Directory) Option {
	return func(m *Manager) { m.dir = dir }
}

func NewManager(store Store, sessions Sessions, pub fabric.Publisher, cfg Config, log *zap.Logger, opts ...Option) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	m := &Manager{
		store:    store,
		sessions: sessions,
		pub:      pub,
		cfg:      cfg,
		log:      log.Named("invite"),
		now:      time.Now,
		timers:   make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) Send(ctx context.Context, senderID, recipientID string) (Invite, error) {
	if senderID == "" || recipientID == "" || senderID == recipientID {
		return Invite{}, fmt.Errorf("%w: cannot invite yourself", apperr.ErrInvalidTarget)
	}
	if err := m.checkTarget(ctx, senderID, recipientID); err != nil {
		return Invite{}, err
	}

	unlock := m.pairs.lock(PairKey(senderID, recipientID))
	defer unlock()

	live, err := m.sessions.HasLiveSession(ctx, senderID, recipientID)
	if err != nil {
		return Invite{}, fmt.Errorf("checking live session: %w", err)
	}
	if live {
		return Invite{}, fmt.Errorf("%w: a game is already running for this pair", apperr.ErrDuplicateInvite)
	}

	now := m.now()
	inv := Invite{
		ID:          uuid.NewString(),
		SenderID:    senderID,
		RecipientID: recipientID,
		Status:      StatusPending,
		CreatedAt:   now,
		ExpiresAt:   now.Add(m.cfg.TTL),
	}
	if err := m.store.Create(ctx, inv); err != nil {
		return Invite{}, err
	}
	m.arm(inv.ID, m.cfg.TTL)

	m.log.Info("invite sent", zap.String("invite", inv.ID), zap.String("sender", senderID), zap.String("recipient", recipientID))
	m.pub.Publish(fabric.UserTopic(recipientID), types.EventInviteReceived, types.InviteReceived{
		InviteID:  inv.ID,
		Sender:    m.userRef(ctx, senderID),
		CreatedAt: inv.CreatedAt,
		ExpiresAt: inv.ExpiresAt,
	})
	return inv, nil
}

func (m *Manager) checkTarget(ctx context.Context, senderID, recipientID string) error {
	if m.dir == nil {
		return nil
	}
	if _, err := m.dir.Profile(ctx, recipientID); err != nil {
		if errors.Is(err, directory.ErrUnknownUser) {
			return fmt.Errorf("%w: unknown recipient", apperr.ErrInvalidTarget)
		}
		return fmt.Errorf("looking up recipient: %w", err)
	}
	if !m.cfg.RequireFriends {
		return nil
	}
	friends, err := m.dir.Friends(ctx, senderID)
	if err != nil && !errors.Is(err, directory.ErrUnknownUser) {
		return fmt.Errorf("looking up friends: %w", err)
	}
	if !slices.Contains(friends, recipientID) {
		return fmt.Errorf("%w: recipient is not a friend", apperr.ErrInvalidTarget)
	}
	return nil
}

func (m *Manager) Respond(ctx context.Context, inviteID, actorID string, decision Decision) (RespondResult, error) {
	if decision != DecisionAccept && decision != DecisionDecline {
		return RespondResult{}, fmt.Errorf("%w: unknown decision %q", apperr.ErrInvalidState, decision)
	}

	inv, err := m.store.Get(ctx, inviteID)
	if err != nil {
		return RespondResult{}, err
	}
	if inv.RecipientID != actorID {
		return RespondResult{}, fmt.Errorf("%w: only the recipient can respond", apperr.ErrUnauthorized)
	}
	if inv.Status != StatusPending {
		return RespondResult{}, fmt.Errorf("%w: invite %s is %s", apperr.ErrNotFound, inviteID, inv.Status)
	}

	if decision == DecisionDecline {
		inv, err = m.transition(ctx, inviteID, StatusDeclined)
		if err != nil {
			return RespondResult{}, err
		}
		m.log.Info("invite declined", zap.String("invite", inviteID))
		m.pub.Publish(fabric.UserTopic(inv.SenderID), types.EventInviteDeclined, types.InviteResolved{InviteID: inv.ID, Status: string(inv.Status)})
		return RespondResult{Invite: inv}, nil
	}

	unlock := m.pairs.lock(PairKey(inv.SenderID, inv.RecipientID))
	defer unlock()

	if live, err := m.sessions.HasLiveSession(ctx, inv.SenderID, inv.RecipientID); err != nil {
		return RespondResult{}, fmt.Errorf("checking live session: %w", err)
	} else if live {
		return RespondResult{}, fmt.Errorf("%w: a game is already running for this pair", apperr.ErrInvalidState)
	}

	// ACCEPTED and a live session go together; the caller giving up halfway
	// must not split them.
	hctx := context.WithoutCancel(ctx)
	inv, err = m.transition(hctx, inviteID, StatusAccepted)
	if err != nil {
		return RespondResult{}, err
	}

	roles, err := m.sessions.StartSession(hctx, inv.ID, inv.SenderID, inv.RecipientID)
	if err != nil {
		m.log.Error("starting session for accepted invite", zap.String("invite", inv.ID), zap.Error(err))
		m.reopen(hctx, inv)
		return RespondResult{}, fmt.Errorf("starting session: %w", err)
	}
	m.log.Info("invite accepted", zap.String("invite", inv.ID), zap.String("giver", roles.Giver))

	for _, user := range []string{inv.SenderID, inv.RecipientID} {
		role, _ := roles.RoleOf(user)
		m.pub.Publish(fabric.UserTopic(user), types.EventGameStarted, types.GameStarted{InviteID: inv.ID, SessionID: inv.ID, Role: string(role)})
	}

	role, _ := roles.RoleOf(actorID)
	return RespondResult{Invite: inv, SessionID: inv.ID, Role: role}, nil
}

func (m *Manager) Cancel(ctx context.Context, inviteID, actorID string) (Invite, error) {
	inv, err := m.store.Get(ctx, inviteID)
	if err != nil {
		return Invite{}, err
	}
	if inv.SenderID != actorID {
		return Invite{}, fmt.Errorf("%w: only the sender can cancel", apperr.ErrUnauthorized)
	}
	if inv.Status != StatusPending {
		return Invite{}, fmt.Errorf("%w: invite %s is %s", apperr.ErrInvalidState, inviteID, inv.Status)
	}

	inv, err = m.store.Transition(ctx, inviteID, StatusPending, StatusCancelled, m.now())
	if err != nil {
		return Invite{}, err
	}
	m.disarm(inviteID)

	m.log.Info("invite cancelled", zap.String("invite", inviteID))
	m.pub.Publish(fabric.UserTopic(inv.RecipientID), types.EventInviteCancelled, types.InviteResolved{InviteID: inv.ID, Status: string(inv.Status)})
	return inv, nil
}

// transition leaves PENDING for a response. Losing the race to another
// transition reads as a missing pending invite.
func (m *Manager) transition(ctx context.Context, inviteID string, to Status) (Invite, error) {
	inv, err := m.store.Transition(ctx, inviteID, StatusPending, to, m.now())
	if errors.Is(err, apperr.ErrInvalidState) {
		return Invite{}, fmt.Errorf("%w: invite %s is no longer pending", apperr.ErrNotFound, inviteID)
	}
	if err != nil {
		return Invite{}, err
	}
	m.disarm(inviteID)
	return inv, nil
}

// reopen puts an accepted invite whose session never started back to
// PENDING with its original expiry.
func (m *Manager) reopen(ctx context.Context, inv Invite) {
	if _, err := m.store.Transition(ctx, inv.ID, StatusAccepted, StatusPending, m.now()); err != nil {
		m.log.Error("reopening invite", zap.String("invite", inv.ID), zap.Error(err))
		return
	}
	m.arm(inv.ID, inv.ExpiresAt.Sub(m.now()))
}

// ListPending returns PENDING invites addressed to userID, newest first.
func (m *Manager) ListPending(ctx context.Context, userID string) ([]Invite, error) {
	return m.store.ListPendingFor(ctx, userID)
}

func (m *Manager) ListSent(ctx context.Context, userID string) ([]Invite, error) {
	return m.store.ListPendingFrom(ctx, userID)
}

// Get returns an invite to one of its participants.
func (m *Manager) Get(ctx context.Context, inviteID, actorID string) (Invite, error) {
	inv, err := m.store.Get(ctx, inviteID)
	if err != nil {
		return Invite{}, err
	}
	if !inv.Involves(actorID) {
		return Invite{}, fmt.Errorf("%w: not a participant", apperr.ErrUnauthorized)
	}
	return inv, nil
}

// RecordWord stores the giver's word on the accepted invite.
func (m *Manager) RecordWord(ctx context.Context, inviteID, word string) {
	if err := m.store.SetWord(ctx, inviteID, word); err != nil {
		m.log.Warn("recording word", zap.String("invite", inviteID), zap.Error(err))
	}
}

// Profile resolves a display reference, falling back to the bare id.
func (m *Manager) Profile(ctx context.Context, userID string) types.UserRef {
	return m.userRef(ctx, userID)
}

func (m *Manager) userRef(ctx context.Context, userID string) types.UserRef {
	ref := types.UserRef{ID: userID, Name: userID}
	if m.dir == nil {
		return ref
	}
	p, err := m.dir.Profile(ctx, userID)
	if err != nil {
		m.log.Debug("profile lookup", zap.String("user", userID), zap.Error(err))
		return ref
	}
	ref.Name = p.DisplayName()
	return ref
}

// Resume re-arms expiry timers for invites still pending in a durable store.
func (m *Manager) Resume(ctx context.Context) error {
	pending, err := m.store.ListPending(ctx)
	if err != nil {
		return fmt.Errorf("listing pending invites: %w", err)
	}
	now := m.now()
	for _, inv := range pending {
		m.arm(inv.ID, inv.ExpiresAt.Sub(now))
	}
	m.log.Info("resumed pending invites", zap.Int("count", len(pending)))
	return nil
}

// Sweep expires overdue pending invites whose timer was lost, then deletes
// declined, cancelled and expired invites and accepted ones past retention.
// Accepted invites backing a live session are kept.
func (m *Manager) Sweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	now := m.now()

	pending, err := m.store.ListPending(ctx)
	if err != nil {
		return res, fmt.Errorf("listing pending invites: %w", err)
	}
	for _, inv := range pending {
		if now.Before(inv.ExpiresAt) {
			continue
		}
		if m.expire(ctx, inv.ID) {
			res.Expired++
		}
	}

	live, err := m.sessions.LiveSessionIDs(ctx)
	if err != nil {
		return res, fmt.Errorf("listing live sessions: %w", err)
	}
	res.Deleted, err = m.store.DeleteResolved(ctx, now.Add(-m.cfg.AcceptedRetention), live)
	if err != nil {
		return res, fmt.Errorf("deleting resolved invites: %w", err)
	}
	m.log.Info("sweep done", zap.Int("expired", res.Expired), zap.Int("deleted", res.Deleted))
	return res, nil
}

// expire reports whether this call won the transition out of PENDING.
func (m *Manager) expire(ctx context.Context, inviteID string) bool {
	inv, err := m.store.Transition(ctx, inviteID, StatusPending, StatusExpired, m.now())
	if err != nil {
		if !errors.Is(err, apperr.ErrInvalidState) && !errors.Is(err, apperr.ErrNotFound) {
			m.log.Error("expiring invite", zap.String("invite", inviteID), zap.Error(err))
		}
		return false
	}
	m.disarm(inviteID)

	m.log.Info("invite expired", zap.String("invite", inviteID))
	evt := types.InviteResolved{InviteID: inv.ID, Status: string(inv.Status)}
	m.pub.Publish(fabric.UserTopic(inv.SenderID), types.EventInviteExpired, evt)
	m.pub.Publish(fabric.UserTopic(inv.RecipientID), types.EventInviteExpired, evt)
	return true
}

func (m *Manager) arm(inviteID string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	if t := m.timers[inviteID]; t != nil {
		t.Stop()
	}
	if d < 0 {
		d = 0
	}
	m.timers[inviteID] = time.AfterFunc(d, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		m.expire(ctx, inviteID)
	})
}

func (m *Manager) disarm(inviteID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t := m.timers[inviteID]; t != nil {
		t.Stop()
		delete(m.timers, inviteID)
	}
}

// PendingTimers reports how many expiry timers are armed.
func (m *Manager) PendingTimers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers)
}

// Close stops every expiry timer. Invites stay PENDING in the store; Resume
// or Sweep picks them up after a restart.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	for id, t := range m.timers {
		t.Stop()
		delete(m.timers, id)
	}
}
