package handlers

import (
	"net/http"
	"time"

	"github.com/codr1/quadra/internal/api/apiutil"
	"github.com/codr1/quadra/internal/api/authz"
	"github.com/codr1/quadra/internal/invitations"
	"github.com/codr1/quadra/internal/models"
)

type createInvitationRequest struct {
	Name              string     `json:"name"`
	Description       string     `json:"description,omitempty"`
	TotalSlots        int64      `json:"total_slots"`
	PricePerSlotCents int64      `json:"price_per_slot_cents"`
	ExpiresAt         *time.Time `json:"expires_at,omitempty"`
}

// POST /api/v1/bookings/{id}/invitations
func (h *Handler) HandleCreateInvitation(w http.ResponseWriter, r *http.Request) {
	user, err := authz.RequireUser(r.Context())
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	reservationID, err := apiutil.PathID(r, "id")
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	var req createInvitationRequest
	if err := apiutil.DecodeJSON(w, r, &req); err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	inv, err := h.Invitations.Create(r.Context(), invitations.CreateParams{
		ReservationID:     reservationID,
		CreatorID:         user.ID,
		Name:              req.Name,
		Description:       req.Description,
		TotalSlots:        req.TotalSlots,
		PricePerSlotCents: req.PricePerSlotCents,
		ExpiresAt:         req.ExpiresAt,
	})
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	_ = apiutil.WriteJSON(w, http.StatusCreated, inv)
}

// POST /api/v1/invitations/{id}/close
func (h *Handler) HandleCloseInvitation(w http.ResponseWriter, r *http.Request) {
	user, err := authz.RequireUser(r.Context())
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	id, err := apiutil.PathID(r, "id")
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	inv, err := h.Invitations.Close(r.Context(), id, user.ID)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	_ = apiutil.WriteJSON(w, http.StatusOK, inv)
}

type guestInfo struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

type acceptRequest struct {
	Token     string    `json:"token"`
	GuestInfo guestInfo `json:"guest_info"`
}

type acceptResponse struct {
	Invitation  models.Invitation           `json:"invitation"`
	Acceptance  models.InvitationAcceptance `json:"acceptance"`
	Participant models.Participant          `json:"participant"`
}

// POST /api/v1/invitations/accept
//
// Anonymous callers join as named guests; an identified caller joins as
// themselves.
func (h *Handler) HandleAcceptInvitation(w http.ResponseWriter, r *http.Request) {
	var req acceptRequest
	if err := apiutil.DecodeJSON(w, r, &req); err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	guest := invitations.Guest{Name: req.GuestInfo.Name, Phone: req.GuestInfo.Phone}
	if user := authz.UserFromContext(r.Context()); user != nil {
		guest.UserID = user.ID
	}

	out, err := h.Invitations.Accept(r.Context(), req.Token, guest)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	_ = apiutil.WriteJSON(w, http.StatusCreated, acceptResponse{
		Invitation:  out.Invitation,
		Acceptance:  out.Acceptance,
		Participant: out.Participant,
	})
}
