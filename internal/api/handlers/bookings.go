package handlers

import (
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/codr1/quadra/internal/api/apiutil"
	"github.com/codr1/quadra/internal/api/authz"
	"github.com/codr1/quadra/internal/apperr"
	"github.com/codr1/quadra/internal/availability"
	"github.com/codr1/quadra/internal/booking"
	"github.com/codr1/quadra/internal/models"
	"github.com/codr1/quadra/internal/rateio"
)

type availabilityResponse struct {
	CourtID int64                `json:"court_id"`
	Date    string               `json:"date"`
	Ranges  []availability.Range `json:"ranges"`
}

// GET /api/v1/courts/{id}/availability?date=&from=&to=
func (h *Handler) HandleAvailability(w http.ResponseWriter, r *http.Request) {
	courtID, err := apiutil.PathID(r, "id")
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	date, err := apiutil.QueryDate(r, "date")
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	from, err := apiutil.QueryClock(r, "from")
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	to, err := apiutil.QueryClock(r, "to")
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	ranges, err := h.Resolver.Resolve(r.Context(), h.DB.Queries, courtID, date, &availability.TimeWindow{Start: from, End: to})
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	if ranges == nil {
		ranges = []availability.Range{}
	}
	_ = apiutil.WriteJSON(w, http.StatusOK, availabilityResponse{CourtID: courtID, Date: date, Ranges: ranges})
}

type createBookingRequest struct {
	CourtID        int64                  `json:"court_id"`
	SlotID         int64                  `json:"slot_id,omitempty"`
	Date           string                 `json:"date"`
	StartTime      string                 `json:"start_time"`
	EndTime        string                 `json:"end_time"`
	Type           models.ReservationType `json:"type"`
	Observations   string                 `json:"observations,omitempty"`
	TeamID         int64                  `json:"team_id,omitempty"`
	MemberIDs      []int64                `json:"member_ids,omitempty"`
	CouponCode     string                 `json:"coupon_code,omitempty"`
	PayWithBalance bool                   `json:"pay_with_balance,omitempty"`
}

// POST /api/v1/bookings
func (h *Handler) HandleCreateBooking(w http.ResponseWriter, r *http.Request) {
	user, err := authz.RequireUser(r.Context())
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	var req createBookingRequest
	if err := apiutil.DecodeJSON(w, r, &req); err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	if req.Type == "" {
		req.Type = models.ReservationSingle
	}

	details, err := h.Bookings.CreateBooking(r.Context(), booking.CreateRequest{
		OrganizerID:    user.ID,
		CourtID:        req.CourtID,
		SlotID:         req.SlotID,
		Date:           req.Date,
		StartTime:      req.StartTime,
		EndTime:        req.EndTime,
		Type:           req.Type,
		Observations:   req.Observations,
		TeamID:         req.TeamID,
		MemberIDs:      req.MemberIDs,
		CouponCode:     req.CouponCode,
		PayWithBalance: req.PayWithBalance,
	})
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/api/v1/bookings/%d", details.Reservation.ID))
	_ = apiutil.WriteJSON(w, http.StatusCreated, details)
}

// GET /api/v1/bookings/{id}
func (h *Handler) HandleGetBooking(w http.ResponseWriter, r *http.Request) {
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
	details, err := h.Bookings.Get(r.Context(), id)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	if !canView(user, details) {
		apiutil.WriteError(w, r, apperr.ErrForbidden)
		return
	}
	_ = apiutil.WriteJSON(w, http.StatusOK, details)
}

// canView lets managers, the organizer and registered participants read a
// reservation.
func canView(user *authz.AuthUser, d booking.Details) bool {
	if user.Manager || d.Reservation.OrganizerID == user.ID {
		return true
	}
	for _, p := range d.Participants {
		if p.UserID.Valid && p.UserID.Int64 == user.ID {
			return true
		}
	}
	return false
}

type editBookingRequest struct {
	SlotID       int64   `json:"slot_id,omitempty"`
	Date         string  `json:"date,omitempty"`
	StartTime    string  `json:"start_time,omitempty"`
	EndTime      string  `json:"end_time,omitempty"`
	Observations *string `json:"observations,omitempty"`
}

// PATCH /api/v1/bookings/{id}
func (h *Handler) HandleEditBooking(w http.ResponseWriter, r *http.Request) {
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
	var req editBookingRequest
	if err := apiutil.DecodeJSON(w, r, &req); err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	details, err := h.Bookings.EditBooking(r.Context(), booking.EditRequest{
		ReservationID: id,
		Actor:         actorFrom(user),
		SlotID:        req.SlotID,
		Date:          req.Date,
		StartTime:     req.StartTime,
		EndTime:       req.EndTime,
		Observations:  req.Observations,
	})
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	_ = apiutil.WriteJSON(w, http.StatusOK, details)
}

// POST /api/v1/bookings/{id}/confirm
func (h *Handler) HandleConfirmBooking(w http.ResponseWriter, r *http.Request) {
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
	res, err := h.Bookings.ConfirmBooking(r.Context(), id, actorFrom(user))
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	_ = apiutil.WriteJSON(w, http.StatusOK, res)
}

type splitShare struct {
	ParticipantID int64           `json:"participant_id"`
	SplitValue    decimal.Decimal `json:"split_value"`
}

type splitRequest struct {
	SplitMode    models.SplitMode `json:"split_mode"`
	Participants []splitShare     `json:"participants"`
}

type splitResponse struct {
	SplitMode    models.SplitMode     `json:"split_mode"`
	Participants []models.Participant `json:"participants"`
}

// POST /api/v1/bookings/{id}/split
func (h *Handler) HandleConfigureSplit(w http.ResponseWriter, r *http.Request) {
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
	var req splitRequest
	if err := apiutil.DecodeJSON(w, r, &req); err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	shares := make([]rateio.Share, len(req.Participants))
	for i, p := range req.Participants {
		shares[i] = rateio.Share{ParticipantID: p.ParticipantID, Value: p.SplitValue}
	}
	participants, err := h.Bookings.ConfigureSplit(r.Context(), booking.SplitRequest{
		ReservationID: id,
		Actor:         actorFrom(user),
		Mode:          req.SplitMode,
		Shares:        shares,
	})
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	_ = apiutil.WriteJSON(w, http.StatusOK, splitResponse{SplitMode: req.SplitMode, Participants: participants})
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

// POST /api/v1/bookings/{id}/cancel
func (h *Handler) HandleCancelBooking(w http.ResponseWriter, r *http.Request) {
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
	var req cancelRequest
	if err := apiutil.DecodeJSON(w, r, &req); err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	result, err := h.Bookings.CancelBooking(r.Context(), id, actorFrom(user), req.Reason)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	_ = apiutil.WriteJSON(w, http.StatusOK, result)
}
