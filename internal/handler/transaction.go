package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/promptpix/promptpix/internal/auth"
	"github.com/promptpix/promptpix/internal/handler/dto"
	"github.com/promptpix/promptpix/internal/service"
)

// Purchase handles POST /api/user/purchase. It records a pending transaction
// for the plan; settlement happens outside this service.
func (h *UserHandler) Purchase(w http.ResponseWriter, r *http.Request) {
	var req dto.PurchaseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	if err := dto.Validate(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	tx, err := h.svc.Purchase(r.Context(), auth.UserIDFromContext(r.Context()), req.PlanID)
	if err != nil {
		if errors.Is(err, service.ErrUnknownPlan) {
			writeError(w, http.StatusBadRequest, "Unknown plan")
			return
		}
		h.logger.Error("purchase failed", "error", err)
		writeError(w, http.StatusInternalServerError, msgInternalError)
		return
	}

	writeJSON(w, http.StatusCreated, dto.PurchaseResponse{
		Success:     true,
		Transaction: dto.ToTransactionResponse(tx),
	})
}

// Transactions handles GET /api/user/transactions?plan=basic&plan=business&limit=20.
func (h *UserHandler) Transactions(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	limit := 20
	if l := query.Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed <= 0 || parsed > 100 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 100")
			return
		}
		limit = parsed
	}

	txs, err := h.svc.Transactions(r.Context(), auth.UserIDFromContext(r.Context()), query["plan"], limit)
	if err != nil {
		if errors.Is(err, service.ErrUnknownPlan) {
			writeError(w, http.StatusBadRequest, "Unknown plan")
			return
		}
		h.logger.Error("list transactions failed", "error", err)
		writeError(w, http.StatusInternalServerError, msgInternalError)
		return
	}

	writeJSON(w, http.StatusOK, dto.TransactionListResponse{
		Success:      true,
		Transactions: dto.ToTransactionList(txs),
	})
}
