// Package sale derives sale totals from line items and maintains the
// editable item list of a sale in progress.
package sale

import (
	"github.com/shopspring/decimal"

	"polisdesk/backend/internal/domain"
)

var hundred = decimal.NewFromInt(100)

type Options struct {
	RoundingEnabled    bool
	RoundingStep       int
	SelectedDebtsTotal decimal.Decimal
}

// Calculate never fails: every input is an already parsed amount and
// rounding items present in the list are ignored.
func Calculate(items []domain.SaleItem, opts Options) domain.SaleTotals {
	subtotal := decimal.Zero
	commission := decimal.Zero
	for _, item := range items {
		if item.Kind == domain.ItemKindRounding {
			continue
		}
		subtotal = subtotal.Add(item.PremiumAmount)
		commission = commission.Add(ItemCommission(item))
	}

	rounding := decimal.Zero
	if opts.RoundingEnabled {
		rounding = RoundingAmount(subtotal, opts.RoundingStep)
	}

	debts := opts.SelectedDebtsTotal
	if debts.IsNegative() {
		debts = decimal.Zero
	}

	return domain.SaleTotals{
		Subtotal:           subtotal,
		RoundingAmount:     rounding,
		SelectedDebtsTotal: debts,
		Total:              subtotal.Add(rounding).Add(debts),
		Commission:         commission,
	}
}

// RoundingAmount is what must be added to subtotal to reach the next
// multiple of step. It never rounds down.
func RoundingAmount(subtotal decimal.Decimal, step int) decimal.Decimal {
	if step < 1 || !subtotal.IsPositive() {
		return decimal.Zero
	}
	s := decimal.NewFromInt(int64(step))
	return subtotal.Div(s).Ceil().Mul(s).Sub(subtotal)
}

// ItemCommission is the agency's commission on one line: a percentage of
// the premium for insurance, the full price for services.
func ItemCommission(item domain.SaleItem) decimal.Decimal {
	switch item.Kind {
	case domain.ItemKindInsurance:
		if item.CommissionPercent == nil {
			return decimal.Zero
		}
		return item.PremiumAmount.Mul(*item.CommissionPercent).Div(hundred)
	case domain.ItemKindService:
		return item.PremiumAmount
	}
	return decimal.Zero
}
