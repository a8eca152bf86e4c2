package wallet

import (
	"github.com/AlexZinkM/pensa-wallet/internal/common"

	"github.com/shopspring/decimal"
)

const usdPlaces = 8

// ValueUSD multiplies a decimal balance by a USD price and formats it as
// "$x" with 8 decimals. An unparsable balance is valued at zero.
func ValueUSD(amount string, price decimal.Decimal) string {
	d, err := decimal.NewFromString(common.StripGrouping(amount))
	if err != nil {
		d = decimal.Zero
	}
	return "$" + d.Mul(price).StringFixed(usdPlaces)
}
