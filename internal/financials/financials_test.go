package financials

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"polisdesk/backend/internal/domain"
	"polisdesk/backend/internal/store"
)

type fakeSource struct {
	sales    []domain.Sale
	payments []domain.DebtPayment
	clients  map[string]domain.Client
	stats    domain.NotificationStats
	failOn   string

	lastQuery store.SaleQuery
}

func (f *fakeSource) ListSales(_ context.Context, q store.SaleQuery) ([]domain.Sale, error) {
	f.lastQuery = q
	if f.failOn == "sales" {
		return nil, errors.New("connection reset")
	}
	return f.sales, nil
}

func (f *fakeSource) ListDebtPayments(_ context.Context, _ string, _ time.Time, _ time.Time) ([]domain.DebtPayment, error) {
	if f.failOn == "payments" {
		return nil, errors.New("connection reset")
	}
	return f.payments, nil
}

func (f *fakeSource) GetClientsByIDs(_ context.Context, _ []string) (map[string]domain.Client, error) {
	if f.failOn == "clients" {
		return nil, errors.New("connection reset")
	}
	return f.clients, nil
}

func (f *fakeSource) CountMessages(_ context.Context, _ string, _ time.Time, _ time.Time) (domain.NotificationStats, error) {
	return f.stats, nil
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func insurance(company, product, premium string) domain.SaleItem {
	return domain.SaleItem{Kind: domain.ItemKindInsurance, Company: company, ProductName: product, PremiumAmount: dec(premium)}
}

func service(name, price string) domain.SaleItem {
	return domain.SaleItem{Kind: domain.ItemKindService, ServiceName: name, PremiumAmount: dec(price)}
}

func fixture() (*fakeSource, domain.Shift, time.Time) {
	opened := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	now := opened.Add(8 * time.Hour)

	src := &fakeSource{
		sales: []domain.Sale{
			{ID: "s1", PaymentMethod: domain.PaymentCash, TotalAmount: dec("2000"), Items: []domain.SaleItem{
				insurance("Ингосстрах", "ОСАГО", "1100"), service("Диагностическая карта", "900"),
			}},
			{ID: "s2", PaymentMethod: domain.PaymentCash, TotalAmount: dec("1000"), Items: []domain.SaleItem{
				insurance("Ингосстрах", "ОСАГО", "950"), {Kind: domain.ItemKindRounding, PremiumAmount: dec("50")},
			}},
			{ID: "s3", PaymentMethod: domain.PaymentCard, TotalAmount: dec("15000"), Items: []domain.SaleItem{
				insurance("РЕСО", "КАСКО", "15000"),
			}},
			{ID: "s4", PaymentMethod: domain.PaymentSBP, TotalAmount: dec("900"), Items: []domain.SaleItem{
				service("Диагностическая карта", "900"),
			}},
			{ID: "s5", PaymentMethod: domain.PaymentDebt, TotalAmount: dec("7000"), Items: []domain.SaleItem{
				insurance("Ингосстрах", "ОСАГО", "7000"),
			}},
		},
		payments: []domain.DebtPayment{
			{ID: "p2", SaleID: "old-2", ClientID: "c2", Amount: dec("300"), PaymentMethod: domain.PaymentTransfer, PaidAt: opened.Add(2 * time.Hour)},
			{ID: "p1", SaleID: "old-1", ClientID: "c1", Amount: dec("500"), PaymentMethod: domain.PaymentCash, PaidAt: opened.Add(time.Hour)},
		},
		clients: map[string]domain.Client{
			"c1": {ID: "c1", FullName: "Иванов Иван"},
			"c2": {ID: "c2", FullName: "Петрова Анна"},
		},
		stats: domain.NotificationStats{Sent: 3, Failed: 1},
	}
	shift := domain.Shift{ID: "shift-1", StoreID: "main-office", OpenedAt: opened, ActualOpeningBalance: dec("1000")}
	return src, shift, now
}

func TestCalculateBucketsAndExpectedBalance(t *testing.T) {
	src, shift, now := fixture()

	got, err := Calculate(context.Background(), src, shift, now)
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}

	checks := []struct {
		name string
		got  decimal.Decimal
		want string
	}{
		{"income_cash", got.IncomeCash, "3000"},
		{"income_non_cash", got.IncomeNonCash, "15900"},
		{"income_debt", got.IncomeDebt, "7000"},
		{"debt_repayment_cash", got.DebtRepaymentCash, "500"},
		{"debt_repayment_card", got.DebtRepaymentCard, "300"},
		{"expected_closing_balance", got.ExpectedClosingBalance, "4500"},
	}
	for _, c := range checks {
		if !c.got.Equal(dec(c.want)) {
			t.Fatalf("%s=%s, want %s", c.name, c.got, c.want)
		}
	}
	if !got.ExpectedClosingBalance.Equal(shift.ActualOpeningBalance.Add(got.IncomeCash).Add(got.DebtRepaymentCash)) {
		t.Fatalf("expected closing balance must be opening + cash income + cash repayments")
	}
	if got.SalesCount != 5 || got.Notifications.Sent != 3 || got.Notifications.Failed != 1 {
		t.Fatalf("unexpected counters %+v", got)
	}

	if src.lastQuery.StoreID != "main-office" || src.lastQuery.Status != domain.SaleStatusCompleted {
		t.Fatalf("unexpected sale query %+v", src.lastQuery)
	}
	if !src.lastQuery.From.Equal(shift.OpenedAt) || !src.lastQuery.To.Equal(now) {
		t.Fatalf("expected window [opened, now), got %+v", src.lastQuery)
	}
}

func TestCalculateSummaries(t *testing.T) {
	src, shift, now := fixture()

	got, err := Calculate(context.Background(), src, shift, now)
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}

	if len(got.SalesSummary) != 2 {
		t.Fatalf("expected two product rows, got %+v", got.SalesSummary)
	}
	first := got.SalesSummary[0]
	if first.Product != "КАСКО" || !first.Total.Equal(dec("15000")) || !first.NonCash.Equal(dec("15000")) {
		t.Fatalf("expected КАСКО first by total, got %+v", first)
	}
	osago := got.SalesSummary[1]
	if osago.Count != 3 || !osago.Cash.Equal(dec("2050")) || !osago.NonCash.IsZero() || !osago.Total.Equal(dec("9050")) {
		t.Fatalf("unexpected ОСАГО row %+v", osago)
	}

	if len(got.ServicesSummary) != 1 {
		t.Fatalf("rounding lines must not appear in the services summary: %+v", got.ServicesSummary)
	}
	dk := got.ServicesSummary[0]
	if dk.Count != 2 || !dk.Cash.Equal(dec("900")) || !dk.NonCash.Equal(dec("900")) || !dk.Total.Equal(dec("1800")) {
		t.Fatalf("unexpected service row %+v", dk)
	}

	if len(got.DebtRepayments) != 2 || got.DebtRepayments[0].PaymentID != "p1" {
		t.Fatalf("expected repayments ordered by paid_at, got %+v", got.DebtRepayments)
	}
	if got.DebtRepayments[0].ClientName != "Иванов Иван" || got.DebtRepayments[1].ClientName != "Петрова Анна" {
		t.Fatalf("expected client attribution, got %+v", got.DebtRepayments)
	}
}

func TestCalculatePropagatesQueryFailures(t *testing.T) {
	for _, failOn := range []string{"sales", "payments", "clients"} {
		src, shift, now := fixture()
		src.failOn = failOn
		if _, err := Calculate(context.Background(), src, shift, now); err == nil {
			t.Fatalf("expected %s failure to propagate", failOn)
		}
	}
}

func TestWindowUsesCloseTime(t *testing.T) {
	_, shift, now := fixture()
	closed := shift.OpenedAt.Add(time.Hour)
	shift.ClosedAt = &closed

	from, to := Window(shift, now)
	if !from.Equal(shift.OpenedAt) || !to.Equal(closed) {
		t.Fatalf("unexpected window %s..%s", from, to)
	}
}
