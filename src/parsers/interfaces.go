package parsers

import (
	"io"

	"github.com/username/coinfolio/src/models"
)

// Parser turns one exchange's CSV export into normalized transactions.
type Parser interface {
	Parse(file io.Reader) ([]models.NormalizedTransaction, error)
}
