package reconcile

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"

	"polisdesk/backend/internal/money"
)

var (
	ErrBalanceRequired    = errors.New("balance is required")
	ErrNegativeAmount     = errors.New("amount must not be negative")
	ErrReasonRequired     = errors.New("discrepancy reason is required")
	ErrKeepRequired       = errors.New("amount to keep is required")
	ErrWithdrawalMismatch = errors.New("withdrawal does not leave the amount to keep in the drawer")
)

const (
	DiscrepancyNone      = "none"
	DiscrepancySurplus   = "surplus"
	DiscrepancyShortfall = "shortfall"
)

// ValidationError names the offending input field.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Err.Error()
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func invalid(field string, err error) error {
	return &ValidationError{Field: field, Err: err}
}

type OpenInput struct {
	Expected          decimal.Decimal
	Actual            *decimal.Decimal
	DiscrepancyReason string
}

type OpenDecision struct {
	Discrepancy     decimal.Decimal
	DiscrepancyKind string
}

func ValidateOpen(in OpenInput) (OpenDecision, error) {
	if in.Actual == nil {
		return OpenDecision{}, invalid("actual_opening_balance", ErrBalanceRequired)
	}
	if in.Actual.IsNegative() {
		return OpenDecision{}, invalid("actual_opening_balance", ErrNegativeAmount)
	}

	diff, kind := discrepancy(*in.Actual, in.Expected)
	if kind != DiscrepancyNone && strings.TrimSpace(in.DiscrepancyReason) == "" {
		return OpenDecision{}, invalid("discrepancy_reason", ErrReasonRequired)
	}
	return OpenDecision{Discrepancy: diff, DiscrepancyKind: kind}, nil
}

type CloseInput struct {
	Expected          decimal.Decimal
	ActualClosing     *decimal.Decimal
	DiscrepancyReason string
	AmountToKeep      *decimal.Decimal
	ActualWithdrawal  *decimal.Decimal
}

type CloseDecision struct {
	Discrepancy            decimal.Decimal
	DiscrepancyKind        string
	AmountToKeep           decimal.Decimal
	SuggestedWithdrawal    decimal.Decimal
	Withdrawal             decimal.Decimal
	Overridden             bool
	BalanceAfterWithdrawal decimal.Decimal
}

// ValidateClose applies the closing rules in order and returns the first
// failure. A nil ActualWithdrawal takes the suggested withdrawal.
func ValidateClose(in CloseInput) (CloseDecision, error) {
	if in.ActualClosing == nil {
		return CloseDecision{}, invalid("actual_closing_balance", ErrBalanceRequired)
	}
	closing := *in.ActualClosing
	if closing.IsNegative() {
		return CloseDecision{}, invalid("actual_closing_balance", ErrNegativeAmount)
	}

	diff, kind := discrepancy(closing, in.Expected)
	if kind != DiscrepancyNone && strings.TrimSpace(in.DiscrepancyReason) == "" {
		return CloseDecision{}, invalid("discrepancy_reason", ErrReasonRequired)
	}

	keep := decimal.Zero
	if in.AmountToKeep != nil {
		keep = *in.AmountToKeep
	} else if closing.IsPositive() {
		return CloseDecision{}, invalid("amount_to_keep", ErrKeepRequired)
	}
	if keep.IsNegative() {
		return CloseDecision{}, invalid("amount_to_keep", ErrNegativeAmount)
	}

	suggested := SuggestedWithdrawal(closing, keep)
	decision := CloseDecision{
		Discrepancy:         diff,
		DiscrepancyKind:     kind,
		AmountToKeep:        keep,
		SuggestedWithdrawal: suggested,
		Withdrawal:          suggested,
	}

	if in.ActualWithdrawal != nil && !in.ActualWithdrawal.Equal(suggested) {
		w := *in.ActualWithdrawal
		if w.IsNegative() {
			return CloseDecision{}, invalid("actual_withdrawal", ErrNegativeAmount)
		}
		if !money.WithinTolerance(closing.Sub(w), keep) {
			return CloseDecision{}, invalid("actual_withdrawal", ErrWithdrawalMismatch)
		}
		decision.Withdrawal = w
		decision.Overridden = true
	}

	decision.BalanceAfterWithdrawal = closing.Sub(decision.Withdrawal)
	return decision, nil
}

// SuggestedWithdrawal is max(0, closing - keep).
func SuggestedWithdrawal(closing, keep decimal.Decimal) decimal.Decimal {
	w := closing.Sub(keep)
	if w.IsNegative() {
		return decimal.Zero
	}
	return w
}

func discrepancy(actual, expected decimal.Decimal) (decimal.Decimal, string) {
	diff := actual.Sub(expected)
	switch diff.Sign() {
	case 1:
		return diff, DiscrepancySurplus
	case -1:
		return diff, DiscrepancyShortfall
	}
	return diff, DiscrepancyNone
}
