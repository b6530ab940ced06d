package httpapi

import (
	"net/http"
	"strconv"

	"github.com/DoyleJ11/hangman-backend/internal/engine"
	"github.com/DoyleJ11/hangman-backend/internal/hub"
	"github.com/DoyleJ11/hangman-backend/pkg/types"
	"github.com/go-chi/chi/v5"
)

const maxHistory = 50

func GetSession(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lb, err := h.Session(r.Context(), chi.URLParam(r, "sessionID"))
		if err != nil {
			writeError(w, err)
			return
		}
		snap, err := lb.Snapshot(r.Context(), UserFrom(r.Context()))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}

func SubmitWord(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.SubmitWordRequest
		if err := decode(w, r, &req); err != nil {
			writeError(w, err)
			return
		}
		command(w, r, h, engine.Command{Type: engine.CmdSubmitWord, ActorID: UserFrom(r.Context()), Word: req.Word})
	}
}

func GuessLetter(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.GuessLetterRequest
		if err := decode(w, r, &req); err != nil {
			writeError(w, err)
			return
		}
		command(w, r, h, engine.Command{Type: engine.CmdGuessLetter, ActorID: UserFrom(r.Context()), Letter: req.Letter})
	}
}

func command(w http.ResponseWriter, r *http.Request, h *hub.Hub, cmd engine.Command) {
	lb, err := h.Session(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, err)
		return
	}
	snap, err := lb.Do(r.Context(), cmd)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func LeaveSession(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lb, err := h.Session(r.Context(), chi.URLParam(r, "sessionID"))
		if err != nil {
			writeError(w, err)
			return
		}
		if err := lb.Leave(r.Context(), UserFrom(r.Context())); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func SessionHistory(hist History) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out := []types.SessionRecord{}
		if hist == nil {
			writeJSON(w, http.StatusOK, out)
			return
		}
		limit := maxHistory
		if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 && v < maxHistory {
			limit = v
		}
		recs, err := hist.ForUser(r.Context(), UserFrom(r.Context()), limit)
		if err != nil {
			writeError(w, err)
			return
		}
		for _, rec := range recs {
			out = append(out, types.SessionRecord{
				SessionID: rec.SessionID,
				GiverID:   rec.GiverID,
				GuesserID: rec.GuesserID,
				Word:      rec.Word,
				State:     string(rec.State),
				Incorrect: rec.Incorrect,
				Reason:    rec.Reason,
				ClosedAt:  rec.ClosedAt,
			})
		}
		writeJSON(w, http.StatusOK, out)
	}
}
