package jupiter

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// toBaseUnits convierte una cantidad decimal a unidades base enteras, truncando.
func toBaseUnits(amount float64, decimals int32) (string, error) {
	d := decimal.NewFromFloat(amount).Shift(decimals).Truncate(0)
	if !d.IsPositive() {
		return "", fmt.Errorf("amount %v is below one base unit (decimals %d)", amount, decimals)
	}
	return d.String(), nil
}

// fromBaseUnits convierte unidades base a cantidad decimal.
func fromBaseUnits(units string, decimals int32) (float64, error) {
	d, err := decimal.NewFromString(units)
	if err != nil {
		return 0, fmt.Errorf("parse base units %q: %w", units, err)
	}
	return d.Shift(-decimals).InexactFloat64(), nil
}
