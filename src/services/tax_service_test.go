package services

import (
	"strings"
	"testing"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/username/coinfolio/src/database"
	"github.com/username/coinfolio/src/logger"
	"github.com/username/coinfolio/src/models"
)

const testUserID int64 = 1

func setupTestService(t *testing.T) *taxReportServiceImpl {
	t.Helper()
	logger.InitLogger("error")
	database.InitDB(":memory:")
	// A single connection keeps every query on the same in-memory database.
	database.DB.SetMaxOpenConns(1)
	t.Cleanup(func() { database.DB.Close() })

	_, err := database.DB.Exec(`INSERT INTO users (id, username, password) VALUES (?, ?, ?)`,
		testUserID, "tester", "hash")
	require.NoError(t, err)

	return &taxReportServiceImpl{reportCache: cache.New(time.Minute, time.Minute)}
}

type txFixture struct {
	id          string
	txType      models.TransactionType
	fiatAmount  string
	assetAmount string
	asset       string
	timestamp   time.Time
	filed       bool
}

func insertTx(t *testing.T, f txFixture) {
	t.Helper()
	_, err := database.DB.Exec(`
		INSERT INTO transactions
			(id, user_id, source, type, tx_amount_fiat, tx_amount_unit, fee, fee_unit,
			 asset_amount, asset_unit, asset_value_fiat, asset_value_unit, timestamp,
			 filed_with_irs, hash_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.id, testUserID, models.SourceCoinbaseStandard, f.txType,
		f.fiatAmount, "USD", "0", "USD",
		f.assetAmount, f.asset, f.fiatAmount, "USD",
		f.timestamp.Format(time.RFC3339), f.filed, f.id)
	require.NoError(t, err)
}

func ts(value string) time.Time {
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		panic(err)
	}
	return parsed
}

func TestGetSellTransactions(t *testing.T) {
	svc := setupTestService(t)

	insertTx(t, txFixture{id: "sell-2023", txType: models.TxTypeSell, fiatAmount: "30000", assetAmount: "1", asset: "BTC", timestamp: ts("2023-06-15T12:00:00Z")})
	insertTx(t, txFixture{id: "sell-2024", txType: models.TxTypeSell, fiatAmount: "45000", assetAmount: "1", asset: "BTC", timestamp: ts("2024-03-01T12:00:00Z")})
	insertTx(t, txFixture{id: "sell-filed", txType: models.TxTypeSell, fiatAmount: "20000", assetAmount: "1", asset: "BTC", timestamp: ts("2023-09-01T12:00:00Z"), filed: true})
	insertTx(t, txFixture{id: "buy-2023", txType: models.TxTypeBuy, fiatAmount: "10000", assetAmount: "1", asset: "BTC", timestamp: ts("2023-01-01T12:00:00Z")})

	sells, err := svc.GetSellTransactions(testUserID, 2023)
	require.NoError(t, err)
	require.Len(t, sells, 1, "filed sells and other years should be excluded")
	assert.Equal(t, "sell-2023", sells[0].ID)
	assert.True(t, decimal.RequireFromString("30000").Equal(sells[0].TransactionAmountFiat.Amount))
}

func TestGetSellTransactionsCaching(t *testing.T) {
	svc := setupTestService(t)

	insertTx(t, txFixture{id: "sell-1", txType: models.TxTypeSell, fiatAmount: "30000", assetAmount: "1", asset: "BTC", timestamp: ts("2023-06-15T12:00:00Z")})

	first, err := svc.GetSellTransactions(testUserID, 2023)
	require.NoError(t, err)
	require.Len(t, first, 1)

	// A row inserted behind the cache's back stays invisible until the
	// user's entries are invalidated.
	insertTx(t, txFixture{id: "sell-2", txType: models.TxTypeSell, fiatAmount: "10000", assetAmount: "1", asset: "BTC", timestamp: ts("2023-07-01T12:00:00Z")})

	cached, err := svc.GetSellTransactions(testUserID, 2023)
	require.NoError(t, err)
	assert.Len(t, cached, 1)

	svc.InvalidateUserCache(testUserID)

	fresh, err := svc.GetSellTransactions(testUserID, 2023)
	require.NoError(t, err)
	assert.Len(t, fresh, 2)
}

func TestGenerateTaxReportFIFO(t *testing.T) {
	svc := setupTestService(t)

	insertTx(t, txFixture{id: "buy-old", txType: models.TxTypeBuy, fiatAmount: "10000", assetAmount: "1", asset: "BTC", timestamp: ts("2022-01-01T00:00:00Z")})
	insertTx(t, txFixture{id: "buy-new", txType: models.TxTypeBuy, fiatAmount: "25000", assetAmount: "1", asset: "BTC", timestamp: ts("2023-05-01T00:00:00Z")})
	insertTx(t, txFixture{id: "sell-1", txType: models.TxTypeSell, fiatAmount: "30000", assetAmount: "1", asset: "BTC", timestamp: ts("2023-06-15T00:00:00Z")})

	report, err := svc.GenerateTaxReport(testUserID, models.TaxReportRequest{
		RequestID: "req-1",
		TaxableEvents: []models.TaxableEventParameters{
			{SellID: "sell-1", TaxTreatment: models.MethodFIFO},
		},
	})
	require.NoError(t, err)
	require.Len(t, report.Results, 1)
	assert.Empty(t, report.Failures)

	result := report.Results[0]
	require.Len(t, result.UsedBuyTransactions, 1)
	assert.Equal(t, "buy-old", result.UsedBuyTransactions[0].TransactionID)
	assert.True(t, decimal.RequireFromString("10000").Equal(result.CostBasis.Amount))
	assert.True(t, decimal.RequireFromString("20000").Equal(result.Gain.Amount))
	assert.Equal(t, models.LongTerm, result.UsedBuyTransactions[0].TaxType)
	assert.Nil(t, result.UncoveredQuantity)
}

func TestGenerateTaxReportUncoveredRemainder(t *testing.T) {
	svc := setupTestService(t)

	insertTx(t, txFixture{id: "buy-1", txType: models.TxTypeBuy, fiatAmount: "10000", assetAmount: "0.5", asset: "BTC", timestamp: ts("2023-01-01T00:00:00Z")})
	insertTx(t, txFixture{id: "sell-1", txType: models.TxTypeSell, fiatAmount: "30000", assetAmount: "1", asset: "BTC", timestamp: ts("2023-06-15T00:00:00Z")})

	report, err := svc.GenerateTaxReport(testUserID, models.TaxReportRequest{
		TaxableEvents: []models.TaxableEventParameters{
			{SellID: "sell-1", TaxTreatment: models.MethodFIFO},
		},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, report.RequestID, "missing request id gets generated")
	require.Len(t, report.Results, 1)

	result := report.Results[0]
	require.NotNil(t, result.UncoveredQuantity)
	assert.True(t, decimal.RequireFromString("0.5").Equal(result.UncoveredQuantity.Amount))
	require.NotNil(t, result.UncoveredValue)
	assert.True(t, decimal.RequireFromString("15000").Equal(result.UncoveredValue.Amount))
}

func TestGenerateTaxReportFailures(t *testing.T) {
	svc := setupTestService(t)

	insertTx(t, txFixture{id: "sell-eth", txType: models.TxTypeSell, fiatAmount: "2000", assetAmount: "1", asset: "ETH", timestamp: ts("2023-06-15T00:00:00Z")})

	report, err := svc.GenerateTaxReport(testUserID, models.TaxReportRequest{
		RequestID: "req-fail",
		TaxableEvents: []models.TaxableEventParameters{
			{SellID: "missing-sell", TaxTreatment: models.MethodFIFO},
			{SellID: "sell-eth", TaxTreatment: "BOGUS"},
			{SellID: "sell-eth", TaxTreatment: models.MethodFIFO},
		},
	})
	require.NoError(t, err)
	assert.Empty(t, report.Results)
	require.Len(t, report.Failures, 3)

	reasons := make(map[string]string)
	for _, f := range report.Failures {
		reasons[f.SellID] += f.Reason + ";"
	}
	assert.Contains(t, reasons["missing-sell"], "not found")
	assert.Contains(t, reasons["sell-eth"], "BOGUS")
	assert.Contains(t, reasons["sell-eth"], "no buy lots")
}

func TestGenerateTaxReportCustomSelection(t *testing.T) {
	svc := setupTestService(t)

	insertTx(t, txFixture{id: "buy-a", txType: models.TxTypeBuy, fiatAmount: "10000", assetAmount: "1", asset: "BTC", timestamp: ts("2023-01-01T00:00:00Z")})
	insertTx(t, txFixture{id: "buy-b", txType: models.TxTypeBuy, fiatAmount: "20000", assetAmount: "1", asset: "BTC", timestamp: ts("2023-02-01T00:00:00Z")})
	insertTx(t, txFixture{id: "sell-1", txType: models.TxTypeSell, fiatAmount: "25000", assetAmount: "1", asset: "BTC", timestamp: ts("2023-06-15T00:00:00Z")})

	report, err := svc.GenerateTaxReport(testUserID, models.TaxReportRequest{
		RequestID: "req-custom",
		TaxableEvents: []models.TaxableEventParameters{
			{SellID: "sell-1", TaxTreatment: models.MethodCustom, BuyTransactionIDs: []string{"buy-b"}},
		},
	})
	require.NoError(t, err)
	require.Len(t, report.Results, 1)

	result := report.Results[0]
	require.Len(t, result.UsedBuyTransactions, 1)
	assert.Equal(t, "buy-b", result.UsedBuyTransactions[0].TransactionID)
	assert.True(t, decimal.RequireFromString("5000").Equal(result.Gain.Amount))
}

func TestGenerateTaxReportCachesByRequestID(t *testing.T) {
	svc := setupTestService(t)

	insertTx(t, txFixture{id: "buy-1", txType: models.TxTypeBuy, fiatAmount: "10000", assetAmount: "1", asset: "BTC", timestamp: ts("2023-01-01T00:00:00Z")})
	insertTx(t, txFixture{id: "sell-1", txType: models.TxTypeSell, fiatAmount: "30000", assetAmount: "1", asset: "BTC", timestamp: ts("2023-06-15T00:00:00Z")})

	req := models.TaxReportRequest{
		RequestID: "req-repeat",
		TaxableEvents: []models.TaxableEventParameters{
			{SellID: "sell-1", TaxTreatment: models.MethodFIFO},
		},
	}

	first, err := svc.GenerateTaxReport(testUserID, req)
	require.NoError(t, err)
	second, err := svc.GenerateTaxReport(testUserID, req)
	require.NoError(t, err)
	assert.Same(t, first, second, "repeat of the same request id should be served from cache")
}

func TestGenerateTaxReportRequestIDReuseWithDifferentEvents(t *testing.T) {
	svc := setupTestService(t)

	insertTx(t, txFixture{id: "buy-1", txType: models.TxTypeBuy, fiatAmount: "10000", assetAmount: "1", asset: "BTC", timestamp: ts("2023-01-01T00:00:00Z")})
	insertTx(t, txFixture{id: "sell-1", txType: models.TxTypeSell, fiatAmount: "30000", assetAmount: "0.5", asset: "BTC", timestamp: ts("2023-06-15T00:00:00Z")})
	insertTx(t, txFixture{id: "sell-2", txType: models.TxTypeSell, fiatAmount: "20000", assetAmount: "0.25", asset: "BTC", timestamp: ts("2023-07-01T00:00:00Z")})

	first, err := svc.GenerateTaxReport(testUserID, models.TaxReportRequest{
		RequestID: "req-reused",
		TaxableEvents: []models.TaxableEventParameters{
			{SellID: "sell-1", TaxTreatment: models.MethodFIFO},
		},
	})
	require.NoError(t, err)
	require.Len(t, first.Results, 1)

	// Same request id, different event list: must be computed fresh, not
	// served from the cache entry of the first payload.
	second, err := svc.GenerateTaxReport(testUserID, models.TaxReportRequest{
		RequestID: "req-reused",
		TaxableEvents: []models.TaxableEventParameters{
			{SellID: "sell-2", TaxTreatment: models.MethodFIFO},
		},
	})
	require.NoError(t, err)
	require.Len(t, second.Results, 1)
	assert.Equal(t, "sell-2", second.Results[0].SellTransactionID)
	assert.NotSame(t, first, second)
}

func TestMarkTransactionsFiled(t *testing.T) {
	svc := setupTestService(t)

	insertTx(t, txFixture{id: "sell-1", txType: models.TxTypeSell, fiatAmount: "30000", assetAmount: "1", asset: "BTC", timestamp: ts("2023-06-15T00:00:00Z")})
	insertTx(t, txFixture{id: "sell-2", txType: models.TxTypeSell, fiatAmount: "10000", assetAmount: "1", asset: "BTC", timestamp: ts("2023-07-01T00:00:00Z")})

	require.NoError(t, svc.MarkTransactionsFiled(testUserID, []string{"sell-1"}))

	sells, err := svc.GetSellTransactions(testUserID, 2023)
	require.NoError(t, err)
	require.Len(t, sells, 1)
	assert.Equal(t, "sell-2", sells[0].ID)

	// No-op on an empty id list.
	require.NoError(t, svc.MarkTransactionsFiled(testUserID, nil))
}

func TestDeleteAllTransactions(t *testing.T) {
	svc := setupTestService(t)

	insertTx(t, txFixture{id: "buy-1", txType: models.TxTypeBuy, fiatAmount: "10000", assetAmount: "1", asset: "BTC", timestamp: ts("2023-01-01T00:00:00Z")})
	insertTx(t, txFixture{id: "sell-1", txType: models.TxTypeSell, fiatAmount: "30000", assetAmount: "1", asset: "BTC", timestamp: ts("2023-06-15T00:00:00Z")})

	require.NoError(t, svc.DeleteAllTransactions(testUserID))

	txs, err := svc.GetTransactions(testUserID)
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestDBLotSourceUnitCost(t *testing.T) {
	svc := setupTestService(t)

	insertTx(t, txFixture{id: "buy-1", txType: models.TxTypeBuy, fiatAmount: "15000", assetAmount: "0.5", asset: "BTC", timestamp: ts("2023-01-01T00:00:00Z")})
	insertTx(t, txFixture{id: "buy-zero", txType: models.TxTypeBuy, fiatAmount: "0", assetAmount: "0", asset: "BTC", timestamp: ts("2023-02-01T00:00:00Z")})

	source := &dbLotSource{service: svc, userID: testUserID}
	lots, err := source.LoadBuyLots("BTC")
	require.NoError(t, err)
	require.Len(t, lots, 1, "zero-quantity buys cannot form lots")
	assert.Equal(t, "buy-1", lots[0].ID)
	assert.True(t, decimal.RequireFromString("30000").Equal(lots[0].UnitCostFiat))
	assert.Equal(t, "USD", lots[0].FiatUnit)
}

func TestProcessUploadDeduplicates(t *testing.T) {
	tests := []struct {
		name    string
		source  string
		csvData string
	}{
		{
			// Strike rows carry a natural Reference id.
			name:   "strike with natural row id",
			source: "strike_monthly",
			csvData: `Reference,Date & Time (UTC),Transaction Type,State,Amount USD,Fee USD,Amount BTC,BTC Price
ref-1,Jan 01 2023 12:00:00,Purchase,Completed,-100.00,1.00,0.005,20000.00
`,
		},
		{
			// Coinbase statement rows have no id of their own; dedup must
			// work on the row's economic content alone.
			name:   "coinbase without natural row id",
			source: "coinbase",
			csvData: `Timestamp,Transaction Type,Asset,Quantity Transacted,Spot Price Currency,Spot Price at Transaction,Subtotal,Total (inclusive of fees and/or spread),Fees and/or Spread,Notes
2023-01-01T12:00:00Z,Buy,BTC,0.005,USD,$20000.00,$100.00,$101.00,$1.00,Bought 0.005 BTC
`,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc := setupTestService(t)
			upload := NewUploadService(svc.reportCache)

			result, err := upload.ProcessUpload(strings.NewReader(tc.csvData), testUserID, tc.source)
			require.NoError(t, err)
			assert.Equal(t, 1, result.Imported)
			assert.Equal(t, 0, result.Skipped)

			again, err := upload.ProcessUpload(strings.NewReader(tc.csvData), testUserID, tc.source)
			require.NoError(t, err)
			assert.Equal(t, 0, again.Imported)
			assert.Equal(t, 1, again.Skipped)

			buys, err := svc.GetBuyTransactionsForAsset(testUserID, "BTC")
			require.NoError(t, err)
			assert.Len(t, buys, 1, "re-upload must not duplicate buy lots")
		})
	}
}
