package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"polisdesk/backend/internal/domain"
	"polisdesk/backend/internal/store"
)

func debtSale(t *testing.T, s *Store, total int64) *domain.Sale {
	t.Helper()
	sale, err := s.CreateSale(context.Background(), domain.Sale{
		StoreID:       "main-office",
		ClientID:      "client-1",
		PaymentMethod: domain.PaymentDebt,
		TotalAmount:   decimal.NewFromInt(total),
		Items:         []domain.SaleItem{{Kind: domain.ItemKindInsurance, PremiumAmount: decimal.NewFromInt(total)}},
	}, nil)
	if err != nil {
		t.Fatalf("create debt sale: %v", err)
	}
	return sale
}

func TestDebtLedgerRefusesOverpayment(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()
	sale := debtSale(t, s, 1000)

	if _, err := s.CreateDebtPayment(ctx, domain.DebtPayment{SaleID: sale.ID, Amount: decimal.NewFromInt(600), PaymentMethod: domain.PaymentCash}); err != nil {
		t.Fatalf("first payment: %v", err)
	}
	if _, err := s.CreateDebtPayment(ctx, domain.DebtPayment{SaleID: sale.ID, Amount: decimal.NewFromInt(401), PaymentMethod: domain.PaymentCash}); !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("expected overpayment to be refused, got %v", err)
	}
	if _, err := s.CreateDebtPayment(ctx, domain.DebtPayment{SaleID: "missing", Amount: decimal.NewFromInt(1)}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	payments, _ := s.ListDebtPaymentsBySale(ctx, sale.ID)
	if len(payments) != 1 {
		t.Fatalf("expected one ledger entry, got %d", len(payments))
	}
	if _, err := s.CancelSale(ctx, sale.ID); !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("expected cancel to be refused once paid into, got %v", err)
	}
}

func TestCreateSaleSettlesDebtsAtomically(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()
	debt := debtSale(t, s, 500)

	checkout := domain.Sale{
		StoreID:       "main-office",
		PaymentMethod: domain.PaymentCash,
		TotalAmount:   decimal.NewFromInt(100),
		Items:         []domain.SaleItem{{Kind: domain.ItemKindService, PremiumAmount: decimal.NewFromInt(100)}},
	}
	tooMuch := []domain.DebtPayment{
		{SaleID: debt.ID, Amount: decimal.NewFromInt(300), PaymentMethod: domain.PaymentCash},
		{SaleID: debt.ID, Amount: decimal.NewFromInt(300), PaymentMethod: domain.PaymentCash},
	}
	if _, err := s.CreateSale(ctx, checkout, tooMuch); !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("expected combined overpayment to be refused, got %v", err)
	}
	if sales, _ := s.ListSales(ctx, store.SaleQuery{}); len(sales) != 1 {
		t.Fatalf("rejected checkout must not be stored, got %d sales", len(sales))
	}

	created, err := s.CreateSale(ctx, checkout, []domain.DebtPayment{{SaleID: debt.ID, Amount: decimal.NewFromInt(500), PaymentMethod: domain.PaymentCash}})
	if err != nil {
		t.Fatalf("checkout with debt: %v", err)
	}
	payments, _ := s.ListDebtPaymentsBySale(ctx, debt.ID)
	if len(payments) != 1 || payments[0].SourceSaleID != created.ID {
		t.Fatalf("expected payment linked to checkout, got %+v", payments)
	}
	if _, err := s.CancelSale(ctx, created.ID); !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("a checkout that settled debts must not be voidable, got %v", err)
	}
}

func TestOneOpenShiftPerUser(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	first, err := s.CreateShift(ctx, domain.Shift{StoreID: "main-office", UserID: "agent"})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := s.CreateShift(ctx, domain.Shift{StoreID: "branch-2", UserID: "agent"}); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected second open shift to conflict, got %v", err)
	}

	now := time.Now().UTC()
	closing := decimal.NewFromInt(1500)
	first.ClosedAt = &now
	first.ActualClosingBalance = &closing
	first.ActualWithdrawal = decimal.NewFromInt(500)
	closed, err := s.CloseShift(ctx, *first)
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if closed.Status != domain.ShiftStatusClosed {
		t.Fatalf("expected closed status")
	}
	if _, err := s.CloseShift(ctx, *first); !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("closed shifts are immutable, got %v", err)
	}

	last, err := s.GetLastClosedShift(ctx, "main-office")
	if err != nil || !last.CarriedForward().Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("expected carried forward 1000, got %v, %v", last, err)
	}
	if _, err := s.GetActiveShift(ctx, "", "agent"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected no active shift after close, got %v", err)
	}
}
