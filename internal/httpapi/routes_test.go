package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DoyleJ11/hangman-backend/internal/apperr"
	"github.com/DoyleJ11/hangman-backend/internal/fabric"
	"github.com/DoyleJ11/hangman-backend/internal/hub"
	"github.com/DoyleJ11/hangman-backend/internal/invite"
	"github.com/DoyleJ11/hangman-backend/internal/lobby"
	"github.com/DoyleJ11/hangman-backend/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubHistory struct{ recs []lobby.Record }

func (s stubHistory) ForUser(_ context.Context, userID string, limit int) ([]lobby.Record, error) {
	var out []lobby.Record
	for _, r := range s.recs {
		if r.GiverID == userID || r.GuesserID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

func newServer(t *testing.T, hist History) http.Handler {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	fab := fabric.New(ctx, zap.NewNop())
	h := hub.NewHub(ctx, lobby.Config{IdleTimeout: time.Minute, FinishedLinger: time.Minute}, lobby.Deps{Publisher: fab})
	m := invite.NewManager(invite.NewMemoryStore(), h, fab, invite.Config{TTL: time.Minute, AcceptedRetention: time.Hour}, zap.NewNop())
	t.Cleanup(m.Close)

	return SetupRoutes(Deps{
		Invites:  m,
		Sessions: h,
		History:  hist,
		Socket:   http.NotFoundHandler(),
	})
}

func do(t *testing.T, srv http.Handler, user, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if user != "" {
		req.Header.Set(UserHeader, user)
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func sendInvite(t *testing.T, srv http.Handler, from, to string) types.Invite {
	t.Helper()
	rec := do(t, srv, from, http.MethodPost, "/invites", types.SendInviteRequest{RecipientID: to})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody[types.Invite](t, rec)
}

func TestRoutes_HealthzAndIdentity(t *testing.T) {
	srv := newServer(t, nil)

	assert.Equal(t, http.StatusOK, do(t, srv, "", http.MethodGet, "/healthz", nil).Code)

	rec := do(t, srv, "", http.MethodGet, "/invites/pending", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", decodeBody[types.ErrorResponse](t, rec).Code)
}

func TestRoutes_InviteAcceptAndPlay(t *testing.T) {
	srv := newServer(t, nil)

	inv := sendInvite(t, srv, "bob", "alice")
	assert.Equal(t, "PENDING", inv.Status)
	assert.Equal(t, "bob", inv.Sender.ID)

	pending := decodeBody[[]types.Invite](t, do(t, srv, "alice", http.MethodGet, "/invites/pending", nil))
	require.Len(t, pending, 1)
	assert.Equal(t, inv.ID, pending[0].ID)

	sent := decodeBody[[]types.Invite](t, do(t, srv, "bob", http.MethodGet, "/invites/sent", nil))
	require.Len(t, sent, 1)

	assert.Equal(t, http.StatusForbidden, do(t, srv, "mallory", http.MethodGet, "/invites/"+inv.ID, nil).Code)
	assert.Equal(t, http.StatusOK, do(t, srv, "alice", http.MethodGet, "/invites/"+inv.ID, nil).Code)

	rec := do(t, srv, "alice", http.MethodPost, "/invites/"+inv.ID+"/respond", types.RespondRequest{Decision: "accept"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeBody[types.RespondResponse](t, rec)
	assert.Equal(t, inv.ID, resp.SessionID)
	assert.Equal(t, "giver", resp.Role, "alice sorts first")
	assert.Equal(t, "ACCEPTED", resp.Invite.Status)

	session := "/sessions/" + resp.SessionID

	rec = do(t, srv, "bob", http.MethodPost, session+"/word", types.SubmitWordRequest{Word: "chaise"})
	assert.Equal(t, http.StatusForbidden, rec.Code, "guesser cannot submit")

	rec = do(t, srv, "alice", http.MethodPost, session+"/word", types.SubmitWordRequest{Word: "ab"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "invalid_word", decodeBody[types.ErrorResponse](t, rec).Code)

	rec = do(t, srv, "alice", http.MethodPost, session+"/word", types.SubmitWordRequest{Word: "Chaise"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "chaise", decodeBody[types.SessionSnapshot](t, rec).Word)

	rec = do(t, srv, "bob", http.MethodPost, session+"/guess", types.GuessLetterRequest{Letter: "xy"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = do(t, srv, "bob", http.MethodPost, session+"/guess", types.GuessLetterRequest{Letter: "é"})
	require.Equal(t, http.StatusOK, rec.Code)
	snap := decodeBody[types.SessionSnapshot](t, rec)
	assert.Equal(t, "_____e", snap.Masked)
	assert.Empty(t, snap.Word)

	snap = decodeBody[types.SessionSnapshot](t, do(t, srv, "bob", http.MethodGet, session, nil))
	assert.Equal(t, "IN_PROGRESS", snap.State)
	assert.Equal(t, 7, snap.MaxIncorrect)

	assert.Equal(t, http.StatusForbidden, do(t, srv, "mallory", http.MethodGet, session, nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, srv, "bob", http.MethodGet, "/sessions/missing", nil).Code)

	rec = do(t, srv, "alice", http.MethodPost, "/invites", types.SendInviteRequest{RecipientID: "bob"})
	assert.Equal(t, http.StatusConflict, rec.Code, "pair already playing")

	assert.Equal(t, http.StatusNoContent, do(t, srv, "bob", http.MethodPost, session+"/leave", nil).Code)
}

func TestRoutes_DeclineAndCancel(t *testing.T) {
	srv := newServer(t, nil)

	inv := sendInvite(t, srv, "alice", "bob")
	rec := do(t, srv, "alice", http.MethodPost, "/invites/"+inv.ID+"/respond", types.RespondRequest{Decision: "accept"})
	assert.Equal(t, http.StatusForbidden, rec.Code, "sender cannot accept")

	rec = do(t, srv, "alice", http.MethodPost, "/invites", types.SendInviteRequest{RecipientID: "bob"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "duplicate_invite", decodeBody[types.ErrorResponse](t, rec).Code)

	rec = do(t, srv, "bob", http.MethodPost, "/invites/"+inv.ID+"/respond", types.RespondRequest{Decision: "decline"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "DECLINED", decodeBody[types.RespondResponse](t, rec).Invite.Status)

	rec = do(t, srv, "bob", http.MethodPost, "/invites/"+inv.ID+"/respond", types.RespondRequest{Decision: "accept"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	second := sendInvite(t, srv, "alice", "bob")
	assert.Equal(t, http.StatusForbidden, do(t, srv, "bob", http.MethodPost, "/invites/"+second.ID+"/cancel", nil).Code)
	rec = do(t, srv, "alice", http.MethodPost, "/invites/"+second.ID+"/cancel", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "CANCELLED", decodeBody[types.Invite](t, rec).Status)
	assert.Equal(t, http.StatusConflict, do(t, srv, "alice", http.MethodPost, "/invites/"+second.ID+"/cancel", nil).Code)
}

func TestRoutes_BadRequests(t *testing.T) {
	srv := newServer(t, nil)

	rec := do(t, srv, "alice", http.MethodPost, "/invites", types.SendInviteRequest{RecipientID: "alice"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_target", decodeBody[types.ErrorResponse](t, rec).Code)

	req := httptest.NewRequest(http.MethodPost, "/invites", strings.NewReader(`{"recipient":`))
	req.Header.Set(UserHeader, "alice")
	out := httptest.NewRecorder()
	srv.ServeHTTP(out, req)
	assert.Equal(t, http.StatusBadRequest, out.Code)
	assert.Equal(t, "bad_request", decodeBody[types.ErrorResponse](t, out).Code)
}

func TestRoutes_SessionHistory(t *testing.T) {
	closed := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	srv := newServer(t, stubHistory{recs: []lobby.Record{
		{SessionID: "s1", GiverID: "alice", GuesserID: "bob", Word: "chaise", State: "WON", Reason: lobby.ReasonFinished, ClosedAt: closed},
	}})

	recs := decodeBody[[]types.SessionRecord](t, do(t, srv, "bob", http.MethodGet, "/sessions/history", nil))
	require.Len(t, recs, 1)
	assert.Equal(t, "chaise", recs[0].Word)

	recs = decodeBody[[]types.SessionRecord](t, do(t, srv, "carol", http.MethodGet, "/sessions/history", nil))
	assert.Empty(t, recs)
}

func TestStatus(t *testing.T) {
	cases := map[string]int{
		"invalid_target":   http.StatusBadRequest,
		"duplicate_invite": http.StatusConflict,
		"not_found":        http.StatusNotFound,
		"unauthorized":     http.StatusForbidden,
		"invalid_state":    http.StatusConflict,
		"invalid_word":     http.StatusUnprocessableEntity,
		"invalid_letter":   http.StatusUnprocessableEntity,
		"internal":         http.StatusInternalServerError,
	}
	for code, want := range cases {
		assert.Equal(t, want, Status(apperr.Code(code)), code)
	}
}
