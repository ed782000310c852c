package services

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/username/coinfolio/src/database"
	"github.com/username/coinfolio/src/logger"
	"github.com/username/coinfolio/src/metrics"
	"github.com/username/coinfolio/src/models"
	"github.com/username/coinfolio/src/parsers"
	"github.com/username/coinfolio/src/security/validation"
)

type uploadServiceImpl struct {
	reportCache *cache.Cache
}

func NewUploadService(reportCache *cache.Cache) UploadService {
	return &uploadServiceImpl{reportCache: reportCache}
}

func (s *uploadServiceImpl) ProcessUpload(fileReader io.Reader, userID int64, source string) (*UploadResult, error) {
	overallStartTime := time.Now()
	logger.L.Info("ProcessUpload START", "userID", userID, "source", source)

	parser, err := parsers.GetParser(source)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParsingFailed, err)
	}

	txs, err := parser.Parse(fileReader)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParsingFailed, err)
	}
	if len(txs) == 0 {
		return &UploadResult{}, nil
	}

	dbTx, err := database.DB.Begin()
	if err != nil {
		return nil, fmt.Errorf("error beginning database transaction: %w", err)
	}
	defer dbTx.Rollback()

	stmt, err := dbTx.Prepare(`INSERT INTO transactions
		(id, user_id, source, type, tx_amount_fiat, tx_amount_unit, fee, fee_unit,
		 asset_amount, asset_unit, asset_value_fiat, asset_value_unit,
		 timestamp, address, notes, filed_with_irs, hash_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, fmt.Errorf("error preparing insert statement: %w", err)
	}
	defer stmt.Close()

	result := &UploadResult{Total: len(txs)}
	for _, tx := range txs {
		tx.UserID = userID
		tx.Notes = validation.SanitizeForFormulaInjection(validation.StripUnprintable(tx.Notes))
		tx.Address = validation.StripUnprintable(tx.Address)
		// Hash before assigning a generated id: rows without a natural id
		// must still dedup on re-upload of the same statement.
		tx.HashID = transactionHash(&tx)
		if tx.ID == "" {
			tx.ID = uuid.NewString()
		}

		_, err := stmt.Exec(tx.ID, tx.UserID, tx.Source, tx.Type,
			tx.TransactionAmountFiat.Amount.String(), tx.TransactionAmountFiat.Unit,
			tx.Fee.Amount.String(), tx.Fee.Unit,
			tx.AssetAmount.Amount.String(), tx.AssetAmount.Unit,
			tx.AssetValueFiat.Amount.String(), tx.AssetValueFiat.Unit,
			tx.Timestamp.UTC().Format(time.RFC3339), tx.Address, tx.Notes,
			tx.FiledWithIRS, tx.HashID)
		if err != nil {
			if strings.Contains(strings.ToLower(err.Error()), "unique constraint failed") {
				logger.L.Debug("Skipping duplicate transaction on upload", "userID", userID, "hashId", tx.HashID)
				result.Skipped++
				continue
			}
			return nil, fmt.Errorf("error inserting transaction (ID: %s): %w", tx.ID, err)
		}
		result.Imported++
	}

	if err := dbTx.Commit(); err != nil {
		return nil, fmt.Errorf("error committing transactions: %w", err)
	}

	metrics.TransactionsImported.Add(float64(result.Imported))

	// Simple invalidation keeps data consistent; the next request triggers
	// a full recalculation.
	invalidateUserCache(s.reportCache, userID)

	logger.L.Info("ProcessUpload END", "userID", userID, "imported", result.Imported,
		"skipped", result.Skipped, "duration", time.Since(overallStartTime))
	return result, nil
}

// transactionHash builds the dedup key for an imported transaction: the
// same economic event uploaded twice (even from overlapping statements)
// hashes identically.
func transactionHash(tx *models.NormalizedTransaction) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%s|%s|%s",
		tx.Source, tx.Type,
		tx.Timestamp.UTC().Format(time.RFC3339),
		tx.AssetAmount.String(),
		tx.TransactionAmountFiat.String(),
		tx.ID)
	return hex.EncodeToString(h.Sum(nil))
}
