// Package directory is the consumed Identity Directory contract. User
// profiles and friend relations are owned by another service; Static serves
// them from a seed file for local runs and tests.
package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"
	"sync"
)

var ErrUnknownUser = errors.New("unknown user")

type Profile struct {
	ID        string `json:"id"`
	Firstname string `json:"firstname"`
	Lastname  string `json:"lastname"`
}

func (p Profile) DisplayName() string {
	switch {
	case p.Firstname == "" && p.Lastname == "":
		return p.ID
	case p.Lastname == "":
		return p.Firstname
	case p.Firstname == "":
		return p.Lastname
	}
	return p.Firstname + " " + p.Lastname
}

type Directory interface {
	Profile(ctx context.Context, userID string) (Profile, error)
	Friends(ctx context.Context, userID string) ([]string, error)
}

type entry struct {
	Profile
	Friends []string `json:"friends"`
}

type Static struct {
	mu    sync.RWMutex
	users map[string]entry
}

func NewStatic() *Static {
	return &Static{users: make(map[string]entry)}
}

// Load reads a JSON array of users: [{"id","firstname","lastname","friends":[...]}].
func Load(path string) (*Static, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading directory file: %w", err)
	}
	var entries []entry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("parsing directory file: %w", err)
	}
	d := NewStatic()
	for _, e := range entries {
		d.Add(e.Profile, e.Friends...)
	}
	return d, nil
}

// Add registers a user. Friendship is recorded in both directions.
func (d *Static) Add(p Profile, friends ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	e := d.users[p.ID]
	e.Profile = p
	d.users[p.ID] = e
	for _, f := range friends {
		d.link(p.ID, f)
		d.link(f, p.ID)
	}
}

func (d *Static) link(a, b string) {
	e := d.users[a]
	if e.ID == "" {
		e.ID = a
	}
	if !slices.Contains(e.Friends, b) {
		e.Friends = append(e.Friends, b)
	}
	d.users[a] = e
}

func (d *Static) Profile(_ context.Context, userID string) (Profile, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	e, ok := d.users[userID]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %s", ErrUnknownUser, userID)
	}
	return e.Profile, nil
}

func (d *Static) Friends(_ context.Context, userID string) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	e, ok := d.users[userID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownUser, userID)
	}
	return slices.Clone(e.Friends), nil
}
