package domain

import "github.com/shopspring/decimal"

var (
	one        = decimal.NewFromInt(1)
	paisaUnits = decimal.NewFromInt(100)
)

// Split divides a gross amount into the platform fee and the seller payout.
//
// The fee is quantized to 2 decimal places with round-half-up; the payout is
// the exact remainder and is never rounded on its own, so fee + payout always
// equals gross to the paisa even for amounts with more than two fractional
// digits. Every caller that splits money must go through here.
func Split(gross, rate decimal.Decimal) (fee, payout decimal.Decimal, err error) {
	if gross.Sign() <= 0 {
		return decimal.Zero, decimal.Zero, ErrInvalidAmount
	}
	if rate.Sign() < 0 || rate.GreaterThanOrEqual(one) {
		return decimal.Zero, decimal.Zero, ErrInvalidRate
	}

	// decimal.Round is half away from zero, which is half-up for positive amounts.
	fee = gross.Mul(rate).Round(2)
	payout = gross.Sub(fee)
	return fee, payout, nil
}

// ToMinorUnits converts rupees to paisas, the integer unit the gateway speaks.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(paisaUnits).IntPart()
}

// FromMinorUnits converts paisas back to a rupee amount.
func FromMinorUnits(paisas int64) decimal.Decimal {
	return decimal.NewFromInt(paisas).Div(paisaUnits)
}
