package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"loyalty/internal/application/orchestrators"
	"loyalty/internal/application/projections"
)

type adjustPointsRequest struct {
	Type         string          `json:"type"`
	Amount       decimal.Decimal `json:"amount"`
	Reason       string          `json:"reason"`
	AdminID      string          `json:"admin_id"`
	CorrectTotal bool            `json:"correct_total"`
}

type adjustPointsResponse struct {
	Member     memberView      `json:"member"`
	Entry      entryView       `json:"entry"`
	TierChange *tierChangeView `json:"tier_change,omitempty"`
	Clamped    bool            `json:"clamped"`
}

// AdjustPoints handles POST /admin/members/{memberID}/points.
func (h *Handler) AdjustPoints(w http.ResponseWriter, r *http.Request) {
	var req adjustPointsRequest
	if err := strictDecode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.AdminID == "" {
		writeError(w, http.StatusBadRequest, "admin_id is required")
		return
	}

	res, err := orchestrators.ExecuteApplyPoints(r.Context(), orchestrators.ApplyPointsInput{
		MemberID:     chi.URLParam(r, "memberID"),
		Type:         req.Type,
		Amount:       req.Amount,
		CorrectTotal: req.CorrectTotal,
		Reference:    req.Reason,
		Actor:        req.AdminID,
		Now:          h.deps.Now(),
	}, orchestrators.ApplyPointsDeps{Runner: h.deps.Runner, MaxAttempts: h.deps.MaxVersionAttempts})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := adjustPointsResponse{
		Member:  newMemberView(res.Member),
		Entry:   newEntryView(res.Entry),
		Clamped: res.Clamped,
	}
	if res.TierChange != nil {
		tc := newTierChangeView(*res.TierChange)
		resp.TierChange = &tc
	}
	writeJSON(w, http.StatusOK, resp)
}

type changeTierRequest struct {
	TierID  string `json:"tier_id"`
	Reason  string `json:"reason"`
	AdminID string `json:"admin_id"`
}

// ChangeTier handles PUT /admin/members/{memberID}/tier. An empty tier_id clears the tier.
func (h *Handler) ChangeTier(w http.ResponseWriter, r *http.Request) {
	var req changeTierRequest
	if err := strictDecode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := orchestrators.ExecuteChangeTier(r.Context(), orchestrators.ChangeTierInput{
		MemberID: chi.URLParam(r, "memberID"),
		TierID:   req.TierID,
		Reason:   req.Reason,
		AdminID:  req.AdminID,
		Now:      h.deps.Now(),
	}, orchestrators.ChangeTierDeps{Runner: h.deps.Runner, MaxAttempts: h.deps.MaxVersionAttempts})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"member":      newMemberView(res.Member),
		"tier_change": newTierChangeView(res.History),
	})
}

type memberLedgerResponse struct {
	Member       memberView        `json:"member"`
	TierName     string            `json:"tier_name,omitempty"`
	Entries      []entryView       `json:"entries"`
	TierHistory  []tierChangeView  `json:"tier_history"`
	Transactions []transactionView `json:"transactions"`
}

// MemberLedger handles GET /admin/members/{memberID}/ledger?limit=N.
func (h *Handler) MemberLedger(w http.ResponseWriter, r *http.Request) {
	s := h.deps.Stores
	res, err := projections.QueryGetMemberLedger(r.Context(), projections.GetMemberLedgerQuery{
		MemberID: chi.URLParam(r, "memberID"),
		Limit:    queryLimit(r),
	}, projections.GetMemberLedgerDeps{
		MemberStore:      s.Members,
		LedgerStore:      s.Ledger,
		TierHistoryStore: s.TierHistory,
		TierStore:        s.Tiers,
		TransactionStore: s.Transactions,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, memberLedgerResponse{
		Member:       newMemberView(res.Member),
		TierName:     res.TierName,
		Entries:      mapSlice(res.Entries, newEntryView),
		TierHistory:  mapSlice(res.TierHistory, newTierChangeView),
		Transactions: mapSlice(res.Transactions, newTransactionView),
	})
}
