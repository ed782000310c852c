package processors

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/username/coinfolio/src/models"
)

func usd(s string) models.ExchangeAmount {
	return models.NewExchangeAmount(d(s), "USD")
}

func TestBuildTaxableEventFIFOFullCoverage(t *testing.T) {
	soldAt := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	acquired := soldAt.Add(-400 * 24 * time.Hour)
	pool := NewLotPool("BTC", []BuyLot{btcLot("lot1", "1.0", "20000", acquired)})

	sell := SellRequest{
		SellID:       "sell1",
		Asset:        "BTC",
		Quantity:     d("1.0"),
		ProceedsFiat: usd("30000"),
		SoldAt:       soldAt,
		Method:       models.MethodFIFO,
	}
	draws, err := SelectLots(pool, sell.Method, sell.Quantity, nil)
	require.NoError(t, err)

	result, err := BuildTaxableEvent(sell, pool, draws)
	require.NoError(t, err)

	assert.True(t, result.CostBasis.Amount.Equal(d("20000")))
	assert.True(t, result.Gain.Amount.Equal(d("10000")))
	require.Len(t, result.UsedBuyTransactions, 1)
	assert.Equal(t, models.LongTerm, result.UsedBuyTransactions[0].TaxType)
	assert.Nil(t, result.UncoveredQuantity)
	assert.Nil(t, result.UncoveredValue)
}

func TestBuildTaxableEventPartialCoverage(t *testing.T) {
	soldAt := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	acquired := soldAt.Add(-10 * 24 * time.Hour)
	pool := NewLotPool("BTC", []BuyLot{btcLot("lot1", "0.5", "20000", acquired)})

	sell := SellRequest{
		SellID:       "sell1",
		Asset:        "BTC",
		Quantity:     d("1.0"),
		ProceedsFiat: usd("30000"),
		SoldAt:       soldAt,
		Method:       models.MethodFIFO,
	}
	draws, err := SelectLots(pool, sell.Method, sell.Quantity, nil)
	require.NoError(t, err)

	result, err := BuildTaxableEvent(sell, pool, draws)
	require.NoError(t, err)

	require.Len(t, result.UsedBuyTransactions, 1)
	assert.True(t, result.UsedBuyTransactions[0].AmountUsed.Amount.Equal(d("0.5")))
	assert.Equal(t, models.ShortTerm, result.UsedBuyTransactions[0].TaxType)
	assert.True(t, result.CostBasis.Amount.Equal(d("10000")))
	assert.True(t, result.Gain.Amount.Equal(d("20000")))

	require.NotNil(t, result.UncoveredQuantity)
	require.NotNil(t, result.UncoveredValue)
	assert.True(t, result.UncoveredQuantity.Amount.Equal(d("0.5")))
	assert.True(t, result.UncoveredValue.Amount.Equal(d("15000")))

	// Used + uncovered reconcile exactly with the sold quantity.
	total := result.UsedBuyTransactions[0].AmountUsed.Amount.Add(result.UncoveredQuantity.Amount)
	assert.True(t, total.Equal(sell.Quantity))
}

func TestBuildTaxableEventHoldingPeriodBoundary(t *testing.T) {
	soldAt := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		held     time.Duration
		expected models.TaxType
	}{
		{"one day short of a year", 364 * 24 * time.Hour, models.ShortTerm},
		{"exactly 365 days", 365 * 24 * time.Hour, models.LongTerm},
		{"well past a year", 500 * 24 * time.Hour, models.LongTerm},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			pool := NewLotPool("BTC", []BuyLot{btcLot("lot1", "1", "20000", soldAt.Add(-tc.held))})
			sell := SellRequest{
				SellID:       "sell1",
				Asset:        "BTC",
				Quantity:     d("1"),
				ProceedsFiat: usd("30000"),
				SoldAt:       soldAt,
				Method:       models.MethodFIFO,
			}
			draws, err := SelectLots(pool, sell.Method, sell.Quantity, nil)
			require.NoError(t, err)
			result, err := BuildTaxableEvent(sell, pool, draws)
			require.NoError(t, err)
			require.Len(t, result.UsedBuyTransactions, 1)
			assert.Equal(t, tc.expected, result.UsedBuyTransactions[0].TaxType)
		})
	}
}

func TestBuildTaxableEventMixedTerms(t *testing.T) {
	soldAt := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	pool := NewLotPool("BTC", []BuyLot{
		btcLot("old", "0.5", "10000", soldAt.Add(-400*24*time.Hour)),
		btcLot("new", "0.5", "25000", soldAt.Add(-30*24*time.Hour)),
	})

	sell := SellRequest{
		SellID:       "sell1",
		Asset:        "BTC",
		Quantity:     d("1.0"),
		ProceedsFiat: usd("60000"),
		SoldAt:       soldAt,
		Method:       models.MethodFIFO,
	}
	draws, err := SelectLots(pool, sell.Method, sell.Quantity, nil)
	require.NoError(t, err)
	result, err := BuildTaxableEvent(sell, pool, draws)
	require.NoError(t, err)

	require.Len(t, result.UsedBuyTransactions, 2)
	assert.Equal(t, models.LongTerm, result.UsedBuyTransactions[0].TaxType)
	assert.Equal(t, models.ShortTerm, result.UsedBuyTransactions[1].TaxType)
	assert.True(t, result.CostBasis.Amount.Equal(d("17500")))
	assert.True(t, result.Gain.Amount.Equal(d("42500")))
}

func TestBuildTaxableEventFiatUnitMismatch(t *testing.T) {
	soldAt := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	lot := btcLot("lot1", "1", "20000", soldAt.Add(-24*time.Hour))
	lot.FiatUnit = "EUR"
	pool := NewLotPool("BTC", []BuyLot{lot})

	sell := SellRequest{
		SellID:       "sell1",
		Asset:        "BTC",
		Quantity:     d("1"),
		ProceedsFiat: usd("30000"),
		SoldAt:       soldAt,
		Method:       models.MethodFIFO,
	}
	draws, err := SelectLots(pool, sell.Method, sell.Quantity, nil)
	require.NoError(t, err)

	_, err = BuildTaxableEvent(sell, pool, draws)
	assert.ErrorIs(t, err, models.ErrUnitMismatch)
}
