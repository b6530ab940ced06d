// Package ws bridges channel fabric topics onto websocket connections and
// accepts session commands from connected clients.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/DoyleJ11/hangman-backend/internal/apperr"
	"github.com/DoyleJ11/hangman-backend/internal/engine"
	"github.com/DoyleJ11/hangman-backend/internal/fabric"
	"github.com/DoyleJ11/hangman-backend/internal/httpapi"
	"github.com/DoyleJ11/hangman-backend/internal/hub"
	"github.com/DoyleJ11/hangman-backend/pkg/types"
	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	readTimeout  = 60 * time.Second
	writeTimeout = 3 * time.Second
	eventBuffer  = 32
)

type Options struct {
	// OriginPatterns is passed to websocket.Accept. Empty means same origin only.
	OriginPatterns []string
}

func Handler(fab *fabric.Fabric, sessions *hub.Hub, log *zap.Logger, opts Options) http.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("ws")

	return func(w http.ResponseWriter, r *http.Request) {
		userID := httpapi.UserFrom(r.Context())
		if userID == "" {
			http.Error(w, "missing user", http.StatusUnauthorized)
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: opts.OriginPatterns,
		})
		if err != nil {
			log.Debug("accept", zap.Error(err))
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		client := fab.NewClient(uuid.NewString(), eventBuffer)
		defer client.Close()
		if err := fab.Subscribe(ctx, fabric.UserTopic(userID), client); err != nil {
			conn.Close(websocket.StatusTryAgainLater, "channels unavailable")
			return
		}

		s := &socket{
			userID:   userID,
			client:   client,
			fab:      fab,
			sessions: sessions,
			outbox:   make(chan types.ServerMessage, 16),
			log:      log.With(zap.String("user", userID), zap.String("client", client.ID())),
		}
		s.log.Debug("connected")

		// Writer goroutine
		go func() {
			defer cancel()
			for {
				var msg types.ServerMessage
				select {
				case evt, ok := <-client.Events():
					if !ok {
						conn.Close(websocket.StatusGoingAway, "shutting down")
						return
					}
					msg = eventMessage(evt)
				case msg = <-s.outbox:
				case <-ctx.Done():
					return
				}
				payload, err := json.Marshal(msg)
				if err != nil {
					s.log.Error("marshal", zap.Error(err))
					continue
				}
				wctx, wcancel := context.WithTimeout(ctx, writeTimeout)
				err = conn.Write(wctx, websocket.MessageText, payload)
				wcancel()
				if err != nil {
					return
				}
			}
		}()

		// Reader loop
		for {
			rctx, rcancel := context.WithTimeout(ctx, readTimeout)
			_, data, err := conn.Read(rctx)
			rcancel()
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				default:
					s.log.Debug("read", zap.Error(err))
				}
				return
			}

			var cm types.ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				s.reply(ctx, types.ServerMessage{Type: types.ServerError, Code: "bad_request", Error: "bad json"})
				continue
			}
			s.reply(ctx, s.handle(ctx, cm))
		}
	}
}

type socket struct {
	userID   string
	client   *fabric.Client
	fab      *fabric.Fabric
	sessions *hub.Hub
	outbox   chan types.ServerMessage
	log      *zap.Logger
}

func (s *socket) reply(ctx context.Context, msg types.ServerMessage) {
	select {
	case s.outbox <- msg:
	case <-ctx.Done():
	}
}

func (s *socket) handle(ctx context.Context, cm types.ClientMessage) types.ServerMessage {
	switch cm.Type {
	case types.ClientPing:
		return types.ServerMessage{Type: types.ServerPong, RequestID: cm.RequestID}

	case types.ClientSubscribe:
		// Subscribe before the snapshot so no event falls between the two;
		// the snapshot also rejects non-participants.
		topic := fabric.SessionTopic(cm.SessionID)
		if err := s.fab.Subscribe(ctx, topic, s.client); err != nil {
			return errorMessage(cm.RequestID, err)
		}
		snap, err := s.snapshot(ctx, cm.SessionID)
		if err != nil {
			s.unsubscribe(ctx, topic)
			return errorMessage(cm.RequestID, err)
		}
		return resultMessage(cm.RequestID, snap)

	case types.ClientUnsubscribe:
		if err := s.fab.Unsubscribe(ctx, fabric.SessionTopic(cm.SessionID), s.client); err != nil {
			return errorMessage(cm.RequestID, err)
		}
		return types.ServerMessage{Type: types.ServerResult, RequestID: cm.RequestID}

	case types.ClientSubmitWord:
		return s.command(ctx, cm, engine.Command{Type: engine.CmdSubmitWord, ActorID: s.userID, Word: cm.Word})

	case types.ClientGuessLetter:
		return s.command(ctx, cm, engine.Command{Type: engine.CmdGuessLetter, ActorID: s.userID, Letter: cm.Letter})

	case types.ClientLeave:
		lb, err := s.sessions.Session(ctx, cm.SessionID)
		if err != nil {
			return errorMessage(cm.RequestID, err)
		}
		if err := lb.Leave(ctx, s.userID); err != nil {
			return errorMessage(cm.RequestID, err)
		}
		s.unsubscribe(ctx, fabric.SessionTopic(cm.SessionID))
		return types.ServerMessage{Type: types.ServerResult, RequestID: cm.RequestID}

	default:
		return types.ServerMessage{Type: types.ServerError, RequestID: cm.RequestID, Code: "bad_request", Error: "unknown type"}
	}
}

func (s *socket) unsubscribe(ctx context.Context, topic string) {
	if err := s.fab.Unsubscribe(ctx, topic, s.client); err != nil {
		s.log.Debug("unsubscribe", zap.String("topic", topic), zap.Error(err))
	}
}

func (s *socket) snapshot(ctx context.Context, sessionID string) (types.SessionSnapshot, error) {
	lb, err := s.sessions.Session(ctx, sessionID)
	if err != nil {
		return types.SessionSnapshot{}, err
	}
	return lb.Snapshot(ctx, s.userID)
}

func (s *socket) command(ctx context.Context, cm types.ClientMessage, cmd engine.Command) types.ServerMessage {
	lb, err := s.sessions.Session(ctx, cm.SessionID)
	if err != nil {
		return errorMessage(cm.RequestID, err)
	}
	snap, err := lb.Do(ctx, cmd)
	if err != nil {
		return errorMessage(cm.RequestID, err)
	}
	return resultMessage(cm.RequestID, snap)
}

func eventMessage(evt fabric.Event) types.ServerMessage {
	payload, err := json.Marshal(evt.Payload)
	if err != nil {
		payload = []byte(fmt.Sprintf("%q", err.Error()))
	}
	return types.ServerMessage{Type: types.ServerEvent, Topic: evt.Topic, Event: evt.Type, Payload: payload}
}

func resultMessage(requestID string, snap types.SessionSnapshot) types.ServerMessage {
	payload, _ := json.Marshal(snap)
	return types.ServerMessage{Type: types.ServerResult, RequestID: requestID, Payload: payload}
}

func errorMessage(requestID string, err error) types.ServerMessage {
	code := apperr.CodeOf(err)
	msg := err.Error()
	if code == apperr.CodeInternal {
		msg = "internal error"
	}
	return types.ServerMessage{Type: types.ServerError, RequestID: requestID, Code: string(code), Error: msg}
}
