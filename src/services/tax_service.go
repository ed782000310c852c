package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/username/coinfolio/src/database"
	"github.com/username/coinfolio/src/logger"
	"github.com/username/coinfolio/src/metrics"
	"github.com/username/coinfolio/src/models"
	"github.com/username/coinfolio/src/processors"
	"github.com/username/coinfolio/src/utils"
)

const (
	// Cached query results, keyed per user. Every key embeds "user_<id>_"
	// so invalidation can sweep a user's entries in one pass.
	ckSellsByYear = "res_sells_user_%d_year_%d"
	ckBuysByAsset = "res_buys_user_%d_asset_%s"
	ckTaxReport   = "agg_tax_report_user_%d_req_%s_%s"
)

type taxReportServiceImpl struct {
	reportCache *cache.Cache
}

func NewTaxReportService(reportCache *cache.Cache) TaxReportService {
	return &taxReportServiceImpl{reportCache: reportCache}
}

// GetSellTransactions returns the user's sell transactions for a tax year,
// excluding ones already filed.
func (s *taxReportServiceImpl) GetSellTransactions(userID int64, year int) ([]models.NormalizedTransaction, error) {
	cacheKey := fmt.Sprintf(ckSellsByYear, userID, year)
	if cached, found := s.reportCache.Get(cacheKey); found {
		logger.L.Debug("Cache hit for sell transactions", "userID", userID, "year", year)
		return cached.([]models.NormalizedTransaction), nil
	}

	yearStart := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC).Format(time.RFC3339)
	yearEnd := time.Date(year+1, 1, 1, 0, 0, 0, 0, time.UTC).Format(time.RFC3339)
	txs, err := fetchUserTransactions(`
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE user_id = ? AND type = ? AND filed_with_irs = 0
		  AND timestamp >= ? AND timestamp < ?
		ORDER BY timestamp ASC, id ASC`,
		userID, models.TxTypeSell, yearStart, yearEnd)
	if err != nil {
		return nil, err
	}

	s.reportCache.Set(cacheKey, txs, cache.DefaultExpiration)
	return txs, nil
}

// GetBuyTransactionsForAsset returns the user's unfiled buy transactions
// for one asset, oldest first.
func (s *taxReportServiceImpl) GetBuyTransactionsForAsset(userID int64, asset string) ([]models.NormalizedTransaction, error) {
	cacheKey := fmt.Sprintf(ckBuysByAsset, userID, asset)
	if cached, found := s.reportCache.Get(cacheKey); found {
		logger.L.Debug("Cache hit for buy transactions", "userID", userID, "asset", asset)
		return cached.([]models.NormalizedTransaction), nil
	}

	txs, err := fetchUserTransactions(`
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE user_id = ? AND type = ? AND asset_unit = ? AND filed_with_irs = 0
		ORDER BY timestamp ASC, id ASC`,
		userID, models.TxTypeBuy, asset)
	if err != nil {
		return nil, err
	}

	s.reportCache.Set(cacheKey, txs, cache.DefaultExpiration)
	return txs, nil
}

func (s *taxReportServiceImpl) GetTransactions(userID int64) ([]models.NormalizedTransaction, error) {
	return fetchUserTransactions(`
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE user_id = ?
		ORDER BY timestamp DESC, id DESC`, userID)
}

// GenerateTaxReport computes the batch capital-gains report for the
// selected sells. Per-sell problems (unknown sell id, bad method, unknown
// asset) land in the report's failures list; only infrastructure errors
// fail the call.
func (s *taxReportServiceImpl) GenerateTaxReport(userID int64, req models.TaxReportRequest) (*models.TaxReportResult, error) {
	start := time.Now()

	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}

	// The key covers the event list, not just the request id, so reusing
	// an id with a different payload never serves the older report.
	cacheKey := ""
	if eventsHash, err := utils.GenerateETag(req.TaxableEvents); err == nil {
		cacheKey = fmt.Sprintf(ckTaxReport, userID, req.RequestID, eventsHash)
		if cached, found := s.reportCache.Get(cacheKey); found {
			logger.L.Info("Cache hit for tax report", "userID", userID, "requestId", req.RequestID)
			return cached.(*models.TaxReportResult), nil
		}
	}

	batch := processors.BatchRequest{RequestID: req.RequestID}
	var preFailures []models.SellFailure

	for _, event := range req.TaxableEvents {
		method, err := models.ParseTaxMethod(string(event.TaxTreatment))
		if err != nil {
			preFailures = append(preFailures, models.SellFailure{SellID: event.SellID, Reason: err.Error()})
			continue
		}

		sellTx, err := s.getSellTransaction(userID, event.SellID)
		if err != nil {
			preFailures = append(preFailures, models.SellFailure{SellID: event.SellID, Reason: err.Error()})
			continue
		}

		var explicitIDs []string
		if method == models.MethodCustom {
			explicitIDs = event.BuyTransactionIDs
		}

		batch.Sells = append(batch.Sells, processors.SellRequest{
			SellID:            sellTx.ID,
			Asset:             sellTx.Asset(),
			Quantity:          sellTx.AssetAmount.Amount,
			ProceedsFiat:      sellTx.TransactionAmountFiat,
			SoldAt:            sellTx.Timestamp,
			Method:            method,
			ExplicitBuyLotIDs: explicitIDs,
		})
	}

	builder := processors.NewReportBuilder(&dbLotSource{service: s, userID: userID})
	report, err := builder.ComputeBatch(batch)
	if err != nil {
		metrics.TaxReportsGenerated.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("computing tax report batch: %w", err)
	}
	report.Failures = append(preFailures, report.Failures...)

	metrics.TaxReportsGenerated.WithLabelValues("ok").Inc()
	metrics.TaxReportDuration.Observe(time.Since(start).Seconds())
	logger.L.Info("Tax report computed",
		"userID", userID,
		"requestId", report.RequestID,
		"results", len(report.Results),
		"failures", len(report.Failures),
		"duration", time.Since(start))

	if cacheKey != "" {
		s.reportCache.Set(cacheKey, report, cache.DefaultExpiration)
	}
	return report, nil
}

func (s *taxReportServiceImpl) getSellTransaction(userID int64, sellID string) (*models.NormalizedTransaction, error) {
	txs, err := fetchUserTransactions(`
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE user_id = ? AND id = ? AND type = ?`,
		userID, sellID, models.TxTypeSell)
	if err != nil {
		return nil, err
	}
	if len(txs) == 0 {
		return nil, fmt.Errorf("sell transaction not found: %s", sellID)
	}
	return &txs[0], nil
}

// MarkTransactionsFiled flags transactions as reported to the tax
// authority, removing them from future lot pools and sell listings.
func (s *taxReportServiceImpl) MarkTransactionsFiled(userID int64, txIDs []string) error {
	if len(txIDs) == 0 {
		return nil
	}

	placeholders := strings.Repeat("?,", len(txIDs))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]interface{}, 0, len(txIDs)+1)
	args = append(args, userID)
	for _, id := range txIDs {
		args = append(args, id)
	}

	res, err := database.DB.Exec(
		`UPDATE transactions SET filed_with_irs = 1 WHERE user_id = ? AND id IN (`+placeholders+`)`, args...)
	if err != nil {
		return fmt.Errorf("marking transactions filed: %w", err)
	}
	affected, _ := res.RowsAffected()
	logger.L.Info("Marked transactions as filed", "userID", userID, "requested", len(txIDs), "updated", affected)

	s.InvalidateUserCache(userID)
	return nil
}

func (s *taxReportServiceImpl) DeleteAllTransactions(userID int64) error {
	if _, err := database.DB.Exec(`DELETE FROM transactions WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("deleting transactions: %w", err)
	}
	s.InvalidateUserCache(userID)
	return nil
}

func (s *taxReportServiceImpl) InvalidateUserCache(userID int64) {
	invalidateUserCache(s.reportCache, userID)
}

// invalidateUserCache sweeps every cached entry belonging to a user. Keys
// embed "user_<id>_" for exactly this purpose.
func invalidateUserCache(c *cache.Cache, userID int64) {
	marker := fmt.Sprintf("user_%d_", userID)
	for key := range c.Items() {
		if strings.Contains(key, marker) {
			c.Delete(key)
		}
	}
	logger.L.Info("Invalidated all caches for user", "userID", userID)
}

// dbLotSource adapts the transaction store to the engine's LotSource: each
// unfiled buy transaction of the asset becomes one buy lot.
type dbLotSource struct {
	service *taxReportServiceImpl
	userID  int64
}

func (l *dbLotSource) LoadBuyLots(asset string) ([]processors.BuyLot, error) {
	txs, err := l.service.GetBuyTransactionsForAsset(l.userID, asset)
	if err != nil {
		return nil, err
	}

	lots := make([]processors.BuyLot, 0, len(txs))
	for _, tx := range txs {
		if !tx.AssetAmount.Amount.IsPositive() {
			logger.L.Warn("Skipping buy transaction with non-positive quantity", "txId", tx.ID)
			continue
		}
		lots = append(lots, processors.BuyLot{
			ID:           tx.ID,
			Asset:        asset,
			Quantity:     tx.AssetAmount.Amount,
			UnitCostFiat: tx.TransactionAmountFiat.Amount.Div(tx.AssetAmount.Amount),
			FiatUnit:     tx.TransactionAmountFiat.Unit,
			AcquiredAt:   tx.Timestamp,
		})
	}
	return lots, nil
}
