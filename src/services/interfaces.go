package services

import (
	"errors"
	"io"

	"github.com/username/coinfolio/src/models"
)

var (
	ErrParsingFailed    = errors.New("parsing failed")
	ErrProcessingFailed = errors.New("processing failed")
)

// UploadResult summarizes one CSV import.
type UploadResult struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"` // duplicates already in the store
	Total    int `json:"total"`
}

// UploadService ingests exchange CSV exports into the transaction store.
type UploadService interface {
	ProcessUpload(fileReader io.Reader, userID int64, source string) (*UploadResult, error)
}

// TaxReportService serves transactions from the store and computes
// capital-gains reports with the processors engine.
type TaxReportService interface {
	GetSellTransactions(userID int64, year int) ([]models.NormalizedTransaction, error)
	GetBuyTransactionsForAsset(userID int64, asset string) ([]models.NormalizedTransaction, error)
	GetTransactions(userID int64) ([]models.NormalizedTransaction, error)
	GenerateTaxReport(userID int64, req models.TaxReportRequest) (*models.TaxReportResult, error)
	MarkTransactionsFiled(userID int64, txIDs []string) error
	DeleteAllTransactions(userID int64) error
	InvalidateUserCache(userID int64)
}
