package storage

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/DoyleJ11/hangman-backend/internal/engine"
	"github.com/DoyleJ11/hangman-backend/internal/lobby"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type sessionRow struct {
	SessionID string `gorm:"primaryKey"`
	GiverID   string `gorm:"not null;index"`
	GuesserID string `gorm:"not null;index"`
	Word      string
	State     string `gorm:"not null"`
	Incorrect int
	Guessed   string // letters joined without separator
	CreatedAt time.Time
	ClosedAt  time.Time `gorm:"index"`
	Reason    string
}

func (sessionRow) TableName() string { return "hangman_sessions" }

func (r sessionRow) record() lobby.Record {
	guessed := []string{}
	if r.Guessed != "" {
		guessed = strings.Split(r.Guessed, "")
	}
	return lobby.Record{
		SessionID: r.SessionID,
		GiverID:   r.GiverID,
		GuesserID: r.GuesserID,
		Word:      r.Word,
		State:     engine.Phase(r.State),
		Incorrect: r.Incorrect,
		Guessed:   guessed,
		CreatedAt: r.CreatedAt,
		ClosedAt:  r.ClosedAt,
		Reason:    r.Reason,
	}
}

// History lists archived sessions a user took part in.
type History interface {
	lobby.Archive
	ForUser(ctx context.Context, userID string, limit int) ([]lobby.Record, error)
}

// ArchiveStore persists closed sessions.
type ArchiveStore struct {
	db *gorm.DB
}

var _ History = (*ArchiveStore)(nil)

func (s *ArchiveStore) Save(ctx context.Context, rec lobby.Record) error {
	row := sessionRow{
		SessionID: rec.SessionID,
		GiverID:   rec.GiverID,
		GuesserID: rec.GuesserID,
		Word:      rec.Word,
		State:     string(rec.State),
		Incorrect: rec.Incorrect,
		Guessed:   strings.Join(rec.Guessed, ""),
		CreatedAt: rec.CreatedAt,
		ClosedAt:  rec.ClosedAt,
		Reason:    rec.Reason,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("archive session: %w", err)
	}
	return nil
}

func (s *ArchiveStore) ForUser(ctx context.Context, userID string, limit int) ([]lobby.Record, error) {
	var rows []sessionRow
	err := s.db.WithContext(ctx).
		Where("giver_id = ? OR guesser_id = ?", userID, userID).
		Order("closed_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("session history: %w", err)
	}
	out := make([]lobby.Record, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.record())
	}
	return out, nil
}

// MemoryArchive is the in-process History used without a database.
type MemoryArchive struct {
	mu      sync.RWMutex
	records map[string]lobby.Record
}

var _ History = (*MemoryArchive)(nil)

func NewMemoryArchive() *MemoryArchive {
	return &MemoryArchive{records: make(map[string]lobby.Record)}
}

func (a *MemoryArchive) Save(_ context.Context, rec lobby.Record) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records[rec.SessionID] = rec
	return nil
}

func (a *MemoryArchive) ForUser(_ context.Context, userID string, limit int) ([]lobby.Record, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]lobby.Record, 0)
	for _, rec := range a.records {
		if rec.GiverID == userID || rec.GuesserID == userID {
			out = append(out, rec)
		}
	}
	slices.SortFunc(out, func(x, y lobby.Record) int { return y.ClosedAt.Compare(x.ClosedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
