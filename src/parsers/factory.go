package parsers

import (
	"fmt"

	"github.com/username/coinfolio/src/models"
	"github.com/username/coinfolio/src/parsers/coinbase"
	"github.com/username/coinfolio/src/parsers/strike"
)

func GetParser(source string) (Parser, error) {
	switch source {
	case "coinbase":
		return coinbase.NewParser(models.SourceCoinbaseStandard), nil
	case "coinbase_pro":
		return coinbase.NewParser(models.SourceCoinbaseProFill), nil
	case "strike_monthly":
		return strike.NewParser(models.SourceStrikeMonthly), nil
	case "strike_annual":
		return strike.NewParser(models.SourceStrikeAnnual), nil
	default:
		return nil, fmt.Errorf("no parser available for source: %s", source)
	}
}
