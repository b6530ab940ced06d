package hub

import (
	"context"
	"fmt"

	"github.com/DoyleJ11/hangman-backend/internal/apperr"
	"github.com/DoyleJ11/hangman-backend/internal/engine"
	"github.com/DoyleJ11/hangman-backend/internal/lobby"
	"go.uber.org/zap"
)

type HubMsg interface{ isHubMsg() }

type CreateSession struct {
	SessionID string
	Roles     Roles
	Reply     chan CreateResult
}

type CreateResult struct {
	Lobby *lobby.Lobby
	Err   error
}

type GetSession struct {
	SessionID string
	Reply     chan *lobby.Lobby
}

type HasPair struct {
	Roles Roles
	Reply chan bool
}

type ListSessions struct {
	Reply chan []string
}

type RemoveSession struct {
	SessionID string
}

type ShutdownHub struct {
	Done chan struct{}
}

func (CreateSession) isHubMsg() {}
func (GetSession) isHubMsg()    {}
func (HasPair) isHubMsg()       {}
func (ListSessions) isHubMsg()  {}
func (RemoveSession) isHubMsg() {}
func (ShutdownHub) isHubMsg()   {}

// Hub is the session registry: it owns every live game session, keyed by
// the id of the invite that started it.
type Hub struct {
	inbox    chan HubMsg
	sessions map[string]*lobby.Lobby
	pairs    map[string]string // pair key -> session id
	cfg      lobby.Config
	deps     lobby.Deps
	log      *zap.Logger
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewHub starts the registry. deps is copied into every session; its
// OnClose is wrapped so closed sessions leave the registry.
func NewHub(parent context.Context, cfg lobby.Config, deps lobby.Deps) *Hub {
	ctx, cancel := context.WithCancel(parent)
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	h := &Hub{
		inbox:    make(chan HubMsg, 64),
		sessions: make(map[string]*lobby.Lobby),
		pairs:    make(map[string]string),
		cfg:      cfg,
		log:      deps.Log.Named("hub"),
		ctx:      ctx,
		cancel:   cancel,
	}

	onClose := deps.OnClose
	deps.OnClose = func(id string) {
		select {
		case h.inbox <- RemoveSession{SessionID: id}:
		case <-h.ctx.Done():
		}
		if onClose != nil {
			onClose(id)
		}
	}
	deps.Log = deps.Log.Named("session")
	h.deps = deps

	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

// StartSession creates the session for an accepted invite in AWAITING_WORD.
// Starting an already live session returns it again.
func (h *Hub) StartSession(ctx context.Context, inviteID, senderID, recipientID string) (Roles, error) {
	roles := AssignRoles(senderID, recipientID)
	reply := make(chan CreateResult, 1)
	if err := h.send(ctx, CreateSession{SessionID: inviteID, Roles: roles, Reply: reply}); err != nil {
		return Roles{}, err
	}
	select {
	case res := <-reply:
		return roles, res.Err
	case <-ctx.Done():
		return Roles{}, ctx.Err()
	case <-h.ctx.Done():
		return Roles{}, h.ctx.Err()
	}
}

func (h *Hub) Session(ctx context.Context, sessionID string) (*lobby.Lobby, error) {
	reply := make(chan *lobby.Lobby, 1)
	if err := h.send(ctx, GetSession{SessionID: sessionID, Reply: reply}); err != nil {
		return nil, err
	}
	select {
	case lb := <-reply:
		if lb == nil {
			return nil, fmt.Errorf("%w: session %s", apperr.ErrNotFound, sessionID)
		}
		return lb, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-h.ctx.Done():
		return nil, h.ctx.Err()
	}
}

func (h *Hub) HasLiveSession(ctx context.Context, a, b string) (bool, error) {
	reply := make(chan bool, 1)
	if err := h.send(ctx, HasPair{Roles: AssignRoles(a, b), Reply: reply}); err != nil {
		return false, err
	}
	select {
	case ok := <-reply:
		return ok, nil
	case <-ctx.Done():
		return false, ctx.Err()
	case <-h.ctx.Done():
		return false, h.ctx.Err()
	}
}

func (h *Hub) LiveSessionIDs(ctx context.Context) ([]string, error) {
	reply := make(chan []string, 1)
	if err := h.send(ctx, ListSessions{Reply: reply}); err != nil {
		return nil, err
	}
	select {
	case ids := <-reply:
		return ids, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-h.ctx.Done():
		return nil, h.ctx.Err()
	}
}

// Close archives every live session and stops the registry.
func (h *Hub) Close(ctx context.Context) error {
	done := make(chan struct{})
	if err := h.send(ctx, ShutdownHub{Done: done}); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) send(ctx context.Context, m HubMsg) error {
	select {
	case h.inbox <- m:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-h.ctx.Done():
		return fmt.Errorf("%w: registry stopped", apperr.ErrInvalidState)
	}
}

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case CreateSession:
				if lb := h.sessions[msg.SessionID]; lb != nil {
					msg.Reply <- CreateResult{Lobby: lb}
					break
				}
				key := pairKey(msg.Roles)
				if id, ok := h.pairs[key]; ok {
					msg.Reply <- CreateResult{Err: fmt.Errorf("%w: session %s is live for this pair", apperr.ErrDuplicateInvite, id)}
					break
				}
				lb := lobby.NewLobby(h.ctx, msg.SessionID, engine.NewState(msg.Roles.Giver, msg.Roles.Guesser), h.cfg, h.deps)
				h.sessions[msg.SessionID] = lb
				h.pairs[key] = msg.SessionID
				h.log.Info("session created", zap.String("session", msg.SessionID), zap.String("giver", msg.Roles.Giver), zap.String("guesser", msg.Roles.Guesser))
				msg.Reply <- CreateResult{Lobby: lb}

			case GetSession:
				msg.Reply <- h.sessions[msg.SessionID] // May be nil

			case HasPair:
				_, ok := h.pairs[pairKey(msg.Roles)]
				msg.Reply <- ok

			case ListSessions:
				ids := make([]string, 0, len(h.sessions))
				for id := range h.sessions {
					ids = append(ids, id)
				}
				msg.Reply <- ids

			case RemoveSession:
				delete(h.sessions, msg.SessionID)
				for key, id := range h.pairs {
					if id == msg.SessionID {
						delete(h.pairs, key)
					}
				}

			case ShutdownHub:
				h.shutdown()
				close(msg.Done)
				return
			}
		}
	}
}

// shutdown cancels every session and waits until each one has archived.
func (h *Hub) shutdown() {
	h.cancel()
	for _, lb := range h.sessions {
		<-lb.Done()
	}
	clear(h.sessions)
	clear(h.pairs)
}
