package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/username/coinfolio/src/logger"
	"github.com/username/coinfolio/src/models"
	"github.com/username/coinfolio/src/services"
	"github.com/username/coinfolio/src/utils"
)

type TransactionHandler struct {
	taxService services.TaxReportService
}

func NewTransactionHandler(taxService services.TaxReportService) *TransactionHandler {
	return &TransactionHandler{taxService: taxService}
}

func (h *TransactionHandler) HandleGetTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required or user ID not found in context", http.StatusUnauthorized)
		return
	}

	txs, err := h.taxService.GetTransactions(userID)
	if err != nil {
		logger.L.Error("Error retrieving transactions", "userID", userID, "error", err)
		utils.SendJSONError(w, "Error retrieving transactions", http.StatusInternalServerError)
		return
	}
	if txs == nil {
		txs = []models.NormalizedTransaction{}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(txs); err != nil {
		logger.L.Error("Error encoding transactions response", "userID", userID, "error", err)
	}
}

// HandleMarkFiled flags transactions as filed with the tax authority.
// Filed transactions stop appearing in sell listings and lot pools.
func (h *TransactionHandler) HandleMarkFiled(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required or user ID not found in context", http.StatusUnauthorized)
		return
	}

	var req struct {
		TransactionIDs []string `json:"transactionIds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.SendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.TransactionIDs) == 0 {
		utils.SendJSONError(w, "At least one transaction id is required", http.StatusBadRequest)
		return
	}

	if err := h.taxService.MarkTransactionsFiled(userID, req.TransactionIDs); err != nil {
		logger.L.Error("Error marking transactions filed", "userID", userID, "error", err)
		utils.SendJSONError(w, "Error marking transactions as filed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message": "Transactions marked as filed",
		"count":   len(req.TransactionIDs),
	})
}

func (h *TransactionHandler) HandleDeleteAllTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required or user ID not found in context", http.StatusUnauthorized)
		return
	}

	if err := h.taxService.DeleteAllTransactions(userID); err != nil {
		logger.L.Error("Error deleting transactions", "userID", userID, "error", err)
		utils.SendJSONError(w, "Error deleting transactions", http.StatusInternalServerError)
		return
	}

	logger.L.Info("Deleted all transactions", "userID", userID)
	w.WriteHeader(http.StatusNoContent)
}
