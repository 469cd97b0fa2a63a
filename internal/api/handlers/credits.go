package handlers

import (
	"net/http"

	"github.com/codr1/quadra/internal/api/apiutil"
	"github.com/codr1/quadra/internal/api/authz"
	"github.com/codr1/quadra/internal/models"
)

type balanceResponse struct {
	UserID       int64                `json:"user_id"`
	BalanceCents int64                `json:"balance_cents"`
	MaxDebtCents int64                `json:"max_debt_cents"`
	Entries      []models.CreditEntry `json:"entries"`
}

// GET /api/v1/credits/balance
func (h *Handler) HandleBalance(w http.ResponseWriter, r *http.Request) {
	user, err := authz.RequireUser(r.Context())
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	ctx := r.Context()
	balance, err := h.Ledger.Balance(ctx, user.ID)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	entries, err := h.Ledger.Entries(ctx, user.ID)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	if entries == nil {
		entries = []models.CreditEntry{}
	}
	_ = apiutil.WriteJSON(w, http.StatusOK, balanceResponse{
		UserID:       user.ID,
		BalanceCents: balance,
		MaxDebtCents: h.Ledger.MaxDebtCents(),
		Entries:      entries,
	})
}

type referralRequest struct {
	ReferrerID int64 `json:"referrer_id"`
}

// POST /api/v1/referrals
//
// The caller is the referred user.
func (h *Handler) HandleReferral(w http.ResponseWriter, r *http.Request) {
	user, err := authz.RequireUser(r.Context())
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	var req referralRequest
	if err := apiutil.DecodeJSON(w, r, &req); err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	if err := h.Ledger.ApplyReferralBonus(r.Context(), req.ReferrerID, user.ID); err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
