package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/DoyleJ11/hangman-backend/internal/apperr"
	"github.com/DoyleJ11/hangman-backend/internal/invite"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const uniqueViolation = "23505"

// The partial unique index keeps one PENDING row per unordered pair.
type inviteRow struct {
	ID          string `gorm:"primaryKey"`
	SenderID    string `gorm:"not null;index"`
	RecipientID string `gorm:"not null;index"`
	PairKey     string `gorm:"not null;uniqueIndex:idx_hangman_invites_pending_pair,where:status = 'PENDING'"`
	Status      string `gorm:"not null;index"`
	CreatedAt   time.Time
	ExpiresAt   time.Time
	ResolvedAt  *time.Time
	Word        string
}

func (inviteRow) TableName() string { return "hangman_invites" }

func toRow(inv invite.Invite) inviteRow {
	return inviteRow{
		ID:          inv.ID,
		SenderID:    inv.SenderID,
		RecipientID: inv.RecipientID,
		PairKey:     invite.PairKey(inv.SenderID, inv.RecipientID),
		Status:      string(inv.Status),
		CreatedAt:   inv.CreatedAt,
		ExpiresAt:   inv.ExpiresAt,
		ResolvedAt:  inv.ResolvedAt,
		Word:        inv.Word,
	}
}

func (r inviteRow) invite() invite.Invite {
	return invite.Invite{
		ID:          r.ID,
		SenderID:    r.SenderID,
		RecipientID: r.RecipientID,
		Status:      invite.Status(r.Status),
		CreatedAt:   r.CreatedAt,
		ExpiresAt:   r.ExpiresAt,
		ResolvedAt:  r.ResolvedAt,
		Word:        r.Word,
	}
}

type InviteStore struct {
	db *gorm.DB
}

var _ invite.Store = (*InviteStore)(nil)

func (s *InviteStore) Create(ctx context.Context, inv invite.Invite) error {
	row := toRow(inv)
	err := s.db.WithContext(ctx).Create(&row).Error
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: pending invite exists for pair", apperr.ErrDuplicateInvite)
	}
	if err != nil {
		return fmt.Errorf("create invite: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func (s *InviteStore) Get(ctx context.Context, id string) (invite.Invite, error) {
	var row inviteRow
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return invite.Invite{}, fmt.Errorf("%w: invite %s", apperr.ErrNotFound, id)
	}
	if err != nil {
		return invite.Invite{}, fmt.Errorf("get invite: %w", err)
	}
	return row.invite(), nil
}

func (s *InviteStore) Transition(ctx context.Context, id string, from, to invite.Status, at time.Time) (invite.Invite, error) {
	updates := map[string]any{"status": string(to)}
	if to.Terminal() {
		updates["resolved_at"] = at
	} else {
		updates["resolved_at"] = nil
	}
	res := s.db.WithContext(ctx).Model(&inviteRow{}).
		Where("id = ? AND status = ?", id, string(from)).
		Updates(updates)
	if isUniqueViolation(res.Error) {
		return invite.Invite{}, fmt.Errorf("%w: pending invite exists for pair", apperr.ErrDuplicateInvite)
	}
	if res.Error != nil {
		return invite.Invite{}, fmt.Errorf("transition invite: %w", res.Error)
	}

	inv, err := s.Get(ctx, id)
	if err != nil {
		return invite.Invite{}, err
	}
	if res.RowsAffected == 0 {
		return inv, fmt.Errorf("%w: invite %s is %s", apperr.ErrInvalidState, id, inv.Status)
	}
	return inv, nil
}

func (s *InviteStore) SetWord(ctx context.Context, id, word string) error {
	res := s.db.WithContext(ctx).Model(&inviteRow{}).
		Where("id = ? AND status = ? AND word = ''", id, string(invite.StatusAccepted)).
		Update("word", word)
	if res.Error != nil {
		return fmt.Errorf("set word: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		if _, err := s.Get(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("%w: word cannot be set on invite %s", apperr.ErrInvalidState, id)
	}
	return nil
}

func (s *InviteStore) ListPendingFor(ctx context.Context, recipientID string) ([]invite.Invite, error) {
	return s.list(ctx, "recipient_id = ? AND status = ?", recipientID, string(invite.StatusPending))
}

func (s *InviteStore) ListPendingFrom(ctx context.Context, senderID string) ([]invite.Invite, error) {
	return s.list(ctx, "sender_id = ? AND status = ?", senderID, string(invite.StatusPending))
}

func (s *InviteStore) ListPending(ctx context.Context) ([]invite.Invite, error) {
	return s.list(ctx, "status = ?", string(invite.StatusPending))
}

func (s *InviteStore) list(ctx context.Context, query string, args ...any) ([]invite.Invite, error) {
	var rows []inviteRow
	err := s.db.WithContext(ctx).Where(query, args...).Order("created_at DESC, id ASC").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list invites: %w", err)
	}
	out := make([]invite.Invite, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.invite())
	}
	return out, nil
}

func (s *InviteStore) DeleteResolved(ctx context.Context, acceptedBefore time.Time, keep []string) (int, error) {
	q := s.db.WithContext(ctx).
		Where("(status IN ? OR (status = ? AND resolved_at < ?))",
			[]string{string(invite.StatusDeclined), string(invite.StatusCancelled), string(invite.StatusExpired)},
			string(invite.StatusAccepted), acceptedBefore)
	if len(keep) > 0 {
		q = q.Where("id NOT IN ?", keep)
	}
	res := q.Delete(&inviteRow{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete resolved invites: %w", res.Error)
	}
	return int(res.RowsAffected), nil
}
