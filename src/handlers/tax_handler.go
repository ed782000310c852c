package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/username/coinfolio/src/logger"
	"github.com/username/coinfolio/src/models"
	"github.com/username/coinfolio/src/services"
	"github.com/username/coinfolio/src/utils"
)

type TaxReportHandler struct {
	taxService services.TaxReportService
}

func NewTaxReportHandler(taxService services.TaxReportService) *TaxReportHandler {
	return &TaxReportHandler{taxService: taxService}
}

// HandleRequestReport computes a batch capital-gains report for the sells
// named in the request body.
func (h *TaxReportHandler) HandleRequestReport(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required or user ID not found in context", http.StatusUnauthorized)
		return
	}

	var req models.TaxReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.SendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.TaxableEvents) == 0 {
		utils.SendJSONError(w, "At least one taxable event is required", http.StatusBadRequest)
		return
	}

	logger.L.Info("Handling tax report request", "userID", userID, "requestId", req.RequestID, "events", len(req.TaxableEvents))
	report, err := h.taxService.GenerateTaxReport(userID, req)
	if err != nil {
		logger.L.Error("Error generating tax report", "userID", userID, "requestId", req.RequestID, "error", err)
		utils.SendJSONError(w, "An internal error occurred while generating the report", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(report); err != nil {
		logger.L.Error("Error encoding tax report response", "userID", userID, "error", err)
	}
}

// HandleGetSellTransactions lists the unfiled sells of a tax year, with
// ETag support so clients can skip re-downloading unchanged data.
func (h *TaxReportHandler) HandleGetSellTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required or user ID not found in context", http.StatusUnauthorized)
		return
	}

	year, err := strconv.Atoi(r.PathValue("year"))
	if err != nil || year < 2009 || year > 2100 {
		utils.SendJSONError(w, fmt.Sprintf("Invalid year: %q", r.PathValue("year")), http.StatusBadRequest)
		return
	}

	sells, err := h.taxService.GetSellTransactions(userID, year)
	if err != nil {
		logger.L.Error("Error retrieving sell transactions", "userID", userID, "year", year, "error", err)
		utils.SendJSONError(w, fmt.Sprintf("Error retrieving sell transactions for year %d", year), http.StatusInternalServerError)
		return
	}
	if sells == nil {
		sells = []models.NormalizedTransaction{}
	}

	w.Header().Set("Cache-Control", "no-cache, private")
	if etag, etagErr := utils.GenerateETag(sells); etagErr == nil && etag != "" {
		quotedETag := fmt.Sprintf("%q", etag)
		w.Header().Set("ETag", quotedETag)
		for _, clientETag := range strings.Split(r.Header.Get("If-None-Match"), ",") {
			if strings.TrimSpace(clientETag) == quotedETag {
				w.WriteHeader(http.StatusNotModified)
				return
			}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(sells); err != nil {
		logger.L.Error("Error encoding sell transactions response", "userID", userID, "error", err)
	}
}

// HandleGetBuyTransactions lists the unfiled buys of one asset, the raw
// material for a CUSTOM lot selection.
func (h *TaxReportHandler) HandleGetBuyTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required or user ID not found in context", http.StatusUnauthorized)
		return
	}

	asset := strings.ToUpper(strings.TrimSpace(r.PathValue("asset")))
	if asset == "" {
		utils.SendJSONError(w, "Asset is required", http.StatusBadRequest)
		return
	}

	buys, err := h.taxService.GetBuyTransactionsForAsset(userID, asset)
	if err != nil {
		logger.L.Error("Error retrieving buy transactions", "userID", userID, "asset", asset, "error", err)
		utils.SendJSONError(w, fmt.Sprintf("Error retrieving buy transactions for asset %s", asset), http.StatusInternalServerError)
		return
	}
	if buys == nil {
		buys = []models.NormalizedTransaction{}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(buys); err != nil {
		logger.L.Error("Error encoding buy transactions response", "userID", userID, "error", err)
	}
}
