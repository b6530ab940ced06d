package httpapi

import (
	"context"
	"net/http"

	"github.com/DoyleJ11/hangman-backend/internal/invite"
	"github.com/DoyleJ11/hangman-backend/pkg/types"
	"github.com/go-chi/chi/v5"
)

func inviteView(ctx context.Context, m *invite.Manager, inv invite.Invite) types.Invite {
	return types.Invite{
		ID:         inv.ID,
		Sender:     m.Profile(ctx, inv.SenderID),
		Recipient:  m.Profile(ctx, inv.RecipientID),
		Status:     string(inv.Status),
		CreatedAt:  inv.CreatedAt,
		ExpiresAt:  inv.ExpiresAt,
		ResolvedAt: inv.ResolvedAt,
	}
}

func inviteViews(ctx context.Context, m *invite.Manager, invs []invite.Invite) []types.Invite {
	out := make([]types.Invite, 0, len(invs))
	for _, inv := range invs {
		out = append(out, inviteView(ctx, m, inv))
	}
	return out
}

func SendInvite(m *invite.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.SendInviteRequest
		if err := decode(w, r, &req); err != nil {
			writeError(w, err)
			return
		}
		inv, err := m.Send(r.Context(), UserFrom(r.Context()), req.RecipientID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, inviteView(r.Context(), m, inv))
	}
}

func ListPending(m *invite.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		invs, err := m.ListPending(r.Context(), UserFrom(r.Context()))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, inviteViews(r.Context(), m, invs))
	}
}

func ListSent(m *invite.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		invs, err := m.ListSent(r.Context(), UserFrom(r.Context()))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, inviteViews(r.Context(), m, invs))
	}
}

func GetInvite(m *invite.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		inv, err := m.Get(r.Context(), chi.URLParam(r, "inviteID"), UserFrom(r.Context()))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, inviteView(r.Context(), m, inv))
	}
}

func RespondInvite(m *invite.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.RespondRequest
		if err := decode(w, r, &req); err != nil {
			writeError(w, err)
			return
		}
		res, err := m.Respond(r.Context(), chi.URLParam(r, "inviteID"), UserFrom(r.Context()), invite.Decision(req.Decision))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, types.RespondResponse{
			Invite:    inviteView(r.Context(), m, res.Invite),
			SessionID: res.SessionID,
			Role:      string(res.Role),
		})
	}
}

func CancelInvite(m *invite.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		inv, err := m.Cancel(r.Context(), chi.URLParam(r, "inviteID"), UserFrom(r.Context()))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, inviteView(r.Context(), m, inv))
	}
}
