package lobby

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/DoyleJ11/hangman-backend/internal/apperr"
	"github.com/DoyleJ11/hangman-backend/internal/engine"
	"github.com/DoyleJ11/hangman-backend/internal/fabric"
	"github.com/DoyleJ11/hangman-backend/pkg/types"
	"go.uber.org/zap"
)

const (
	ReasonIdle      = "idle"
	ReasonFinished  = "finished"
	ReasonAbandoned = "abandoned"
	ReasonShutdown  = "shutdown"
)

type Msg interface{ isLobbyMsg() }

type FromClient struct {
	Cmd   engine.Command
	Reply chan Result
}

func (FromClient) isLobbyMsg() {}

type GetSnapshot struct {
	ViewerID string
	Reply    chan Result
}

func (GetSnapshot) isLobbyMsg() {}

type Leave struct {
	UserID string
	Reply  chan error
}

func (Leave) isLobbyMsg() {}

type TimerFired struct{ Gen int }

func (TimerFired) isLobbyMsg() {}

type Shutdown struct{}

func (Shutdown) isLobbyMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isLobbyMsg() {}

type Result struct {
	Snapshot types.SessionSnapshot
	Err      error
}

type View struct {
	Version int
	State   engine.State
	Left    map[string]bool
}

// Record is the final state of a session, written when it is archived.
type Record struct {
	SessionID string
	GiverID   string
	GuesserID string
	Word      string
	State     engine.Phase
	Incorrect int
	Guessed   []string
	CreatedAt time.Time
	ClosedAt  time.Time
	Reason    string
}

type Archive interface {
	Save(ctx context.Context, rec Record) error
}

type Config struct {
	// IdleTimeout archives a session with no activity.
	IdleTimeout time.Duration
	// FinishedLinger keeps a WON/LOST session readable before archiving.
	FinishedLinger time.Duration
}

type Deps struct {
	Publisher fabric.Publisher
	Archive   Archive
	// OnWord is called once the giver's word is accepted.
	OnWord func(ctx context.Context, sessionID, word string)
	// OnClose is called after the session stops accepting messages.
	OnClose func(sessionID string)
	Log     *zap.Logger
}

type Lobby struct {
	id        string
	inbox     chan Msg
	state     engine.State
	version   int
	left      map[string]bool
	createdAt time.Time
	timer     *time.Timer
	timerGen  int
	cfg       Config
	deps      Deps
	log       *zap.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
}

func NewLobby(parent context.Context, id string, initial engine.State, cfg Config, deps Deps) *Lobby {
	ctx, cancel := context.WithCancel(parent)
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}

	l := &Lobby{
		id:        id,
		inbox:     make(chan Msg, 64), // Small buffer
		state:     initial,
		left:      make(map[string]bool),
		createdAt: time.Now(),
		cfg:       cfg,
		deps:      deps,
		log:       log.With(zap.String("session", id)),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}

	l.primeTimer(cfg.IdleTimeout)
	go l.loop()
	return l
}

func (l *Lobby) ID() string { return l.id }

// Expose the inbox so tests or the hub can send messages.
func (l *Lobby) Inbox() chan<- Msg { return l.inbox }

// Done is closed once the session has been archived.
func (l *Lobby) Done() <-chan struct{} { return l.done }

// Do applies a command and returns the actor's snapshot after it.
func (l *Lobby) Do(ctx context.Context, cmd engine.Command) (types.SessionSnapshot, error) {
	reply := make(chan Result, 1)
	if err := l.send(ctx, FromClient{Cmd: cmd, Reply: reply}); err != nil {
		return types.SessionSnapshot{}, err
	}
	return l.await(ctx, reply)
}

func (l *Lobby) Snapshot(ctx context.Context, viewerID string) (types.SessionSnapshot, error) {
	reply := make(chan Result, 1)
	if err := l.send(ctx, GetSnapshot{ViewerID: viewerID, Reply: reply}); err != nil {
		return types.SessionSnapshot{}, err
	}
	return l.await(ctx, reply)
}

func (l *Lobby) Leave(ctx context.Context, userID string) error {
	reply := make(chan error, 1)
	if err := l.send(ctx, Leave{UserID: userID, Reply: reply}); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-l.done:
		return l.closedErr()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Lobby) send(ctx context.Context, m Msg) error {
	select {
	case l.inbox <- m:
		return nil
	case <-l.done:
		return l.closedErr()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Lobby) await(ctx context.Context, reply <-chan Result) (types.SessionSnapshot, error) {
	select {
	case res := <-reply:
		return res.Snapshot, res.Err
	case <-l.done:
		return types.SessionSnapshot{}, l.closedErr()
	case <-ctx.Done():
		return types.SessionSnapshot{}, ctx.Err()
	}
}

func (l *Lobby) closedErr() error {
	return fmt.Errorf("%w: session %s is closed", apperr.ErrNotFound, l.id)
}

func (l *Lobby) loop() {
	for {
		select {
		case <-l.ctx.Done():
			l.shutdown(ReasonShutdown)
			return

		case m := <-l.inbox:
			switch msg := m.(type) {
			case FromClient:
				events, newState, err := engine.Apply(l.state, msg.Cmd)
				if err != nil {
					msg.Reply <- Result{Err: err}
					break
				}
				if len(events) > 0 {
					l.state = newState
					l.version++
					l.publish(events)
					l.rearm()
				}
				delete(l.left, msg.Cmd.ActorID)
				msg.Reply <- Result{Snapshot: l.snapshot(msg.Cmd.ActorID)}

			case GetSnapshot:
				if _, ok := engine.RoleOf(l.state, msg.ViewerID); !ok {
					msg.Reply <- Result{Err: fmt.Errorf("%w: not a participant", apperr.ErrUnauthorized)}
					break
				}
				delete(l.left, msg.ViewerID)
				if !l.state.Phase.Terminal() {
					l.rearm()
				}
				msg.Reply <- Result{Snapshot: l.snapshot(msg.ViewerID)}

			case Leave:
				if _, ok := engine.RoleOf(l.state, msg.UserID); !ok {
					msg.Reply <- fmt.Errorf("%w: not a participant", apperr.ErrUnauthorized)
					break
				}
				l.left[msg.UserID] = true
				l.deps.Publisher.Publish(fabric.SessionTopic(l.id), types.EventOpponentLeft, types.OpponentLeft{SessionID: l.id, UserID: msg.UserID})
				msg.Reply <- nil
				if l.left[l.state.GiverID] && l.left[l.state.GuesserID] {
					l.shutdown(ReasonAbandoned)
					return
				}

			case TimerFired:
				if msg.Gen != l.timerGen {
					break // stale
				}
				reason := ReasonIdle
				if l.state.Phase.Terminal() {
					reason = ReasonFinished
				}
				l.shutdown(reason)
				return

			case GetState:
				// test-only: reflect internal state without data races
				left := make(map[string]bool, len(l.left))
				for k, v := range l.left {
					left[k] = v
				}
				msg.Reply <- View{Version: l.version, State: l.state, Left: left}

			case Shutdown:
				l.shutdown(ReasonShutdown)
				return
			}
		}
	}
}

func (l *Lobby) publish(events []engine.Event) {
	topic := fabric.SessionTopic(l.id)
	for _, evt := range events {
		switch evt.Type {
		case engine.EvtWordSubmitted:
			l.log.Info("word submitted", zap.Int("length", engine.LetterCount(l.state.Word)))
			if l.deps.OnWord != nil {
				l.deps.OnWord(l.ctx, l.id, l.state.Word)
			}
			l.deps.Publisher.Publish(topic, types.EventWordSubmitted, types.WordSubmitted{
				SessionID: l.id,
				Length:    engine.LetterCount(l.state.Word),
				Masked:    engine.Masked(l.state.Word, l.state.Guessed, false),
			})

		case engine.EvtLetterGuessed:
			terminal := l.state.Phase.Terminal()
			msg := types.LetterGuessed{
				SessionID:      l.id,
				Letter:         evt.Letter,
				Correct:        evt.Correct,
				IncorrectCount: evt.Incorrect,
				Masked:         engine.Masked(l.state.Word, l.state.Guessed, terminal),
				State:          string(l.state.Phase),
			}
			if terminal {
				msg.Word = l.state.Word
			}
			l.deps.Publisher.Publish(topic, types.EventLetterGuessed, msg)

		case engine.EvtGameWon, engine.EvtGameLost:
			l.log.Info("game over", zap.String("state", string(l.state.Phase)), zap.Int("incorrect", l.state.Incorrect))
		}
	}
}

func (l *Lobby) snapshot(viewerID string) types.SessionSnapshot {
	role, _ := engine.RoleOf(l.state, viewerID)
	reveal := role == engine.RoleGiver || l.state.Phase.Terminal()

	snap := types.SessionSnapshot{
		SessionID:      l.id,
		Role:           string(role),
		GiverID:        l.state.GiverID,
		GuesserID:      l.state.GuesserID,
		State:          string(l.state.Phase),
		Length:         engine.LetterCount(l.state.Word),
		Masked:         engine.Masked(l.state.Word, l.state.Guessed, l.state.Phase.Terminal()),
		GuessedLetters: guessedLetters(l.state.Guessed),
		IncorrectCount: l.state.Incorrect,
		MaxIncorrect:   engine.MaxIncorrect,
		Version:        l.version,
	}
	if reveal {
		snap.Word = l.state.Word
	}
	return snap
}

func guessedLetters(guessed map[string]bool) []string {
	out := make([]string, 0, len(guessed))
	for letter := range guessed {
		out = append(out, letter)
	}
	sort.Strings(out)
	return out
}

func (l *Lobby) rearm() {
	if l.state.Phase.Terminal() {
		l.primeTimer(l.cfg.FinishedLinger)
		return
	}
	l.primeTimer(l.cfg.IdleTimeout)
}

// primeTimer replaces the pending timer; fires from older generations are
// dropped by the loop.
func (l *Lobby) primeTimer(d time.Duration) {
	if l.timer != nil {
		l.timer.Stop()
	}
	l.timerGen++
	if d <= 0 {
		l.timer = nil
		return
	}
	gen := l.timerGen
	l.timer = time.AfterFunc(d, func() {
		select {
		case l.inbox <- TimerFired{Gen: gen}:
		case <-l.ctx.Done():
		}
	})
}

func (l *Lobby) shutdown(reason string) {
	if l.timer != nil {
		l.timer.Stop()
	}

	rec := Record{
		SessionID: l.id,
		GiverID:   l.state.GiverID,
		GuesserID: l.state.GuesserID,
		Word:      l.state.Word,
		State:     l.state.Phase,
		Incorrect: l.state.Incorrect,
		Guessed:   guessedLetters(l.state.Guessed),
		CreatedAt: l.createdAt,
		ClosedAt:  time.Now(),
		Reason:    reason,
	}
	if l.deps.Archive != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := l.deps.Archive.Save(ctx, rec); err != nil {
			l.log.Error("archive session", zap.Error(err))
		}
		cancel()
	}

	l.deps.Publisher.Publish(fabric.SessionTopic(l.id), types.EventSessionClosed, types.SessionClosed{SessionID: l.id, Reason: reason})
	l.log.Info("session closed", zap.String("reason", reason), zap.String("state", string(l.state.Phase)))

	l.cancel()
	close(l.done)
	if l.deps.OnClose != nil {
		l.deps.OnClose(l.id)
	}
}
