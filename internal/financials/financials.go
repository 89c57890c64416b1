// Package financials derives the cash picture of a shift from the sales and
// debt payments recorded inside its window.
package financials

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"polisdesk/backend/internal/domain"
	"polisdesk/backend/internal/store"
)

// Source is the read-only query surface the aggregator needs.
type Source interface {
	ListSales(ctx context.Context, query store.SaleQuery) ([]domain.Sale, error)
	ListDebtPayments(ctx context.Context, storeID string, from time.Time, to time.Time) ([]domain.DebtPayment, error)
	GetClientsByIDs(ctx context.Context, ids []string) (map[string]domain.Client, error)
	CountMessages(ctx context.Context, storeID string, from time.Time, to time.Time) (domain.NotificationStats, error)
}

// Window returns the [from, to) range a shift covers; an open shift runs
// until now.
func Window(shift domain.Shift, now time.Time) (time.Time, time.Time) {
	to := now
	if shift.ClosedAt != nil {
		to = *shift.ClosedAt
	}
	if to.Before(shift.OpenedAt) {
		to = shift.OpenedAt
	}
	return shift.OpenedAt, to
}

// Calculate recomputes the shift financials. Any query failure is returned
// and no partial result is produced.
func Calculate(ctx context.Context, src Source, shift domain.Shift, now time.Time) (domain.ShiftFinancials, error) {
	from, to := Window(shift, now)

	sales, err := src.ListSales(ctx, store.SaleQuery{
		StoreID: shift.StoreID,
		From:    from,
		To:      to,
		Status:  domain.SaleStatusCompleted,
	})
	if err != nil {
		return domain.ShiftFinancials{}, fmt.Errorf("list shift sales: %w", err)
	}

	payments, err := src.ListDebtPayments(ctx, shift.StoreID, from, to)
	if err != nil {
		return domain.ShiftFinancials{}, fmt.Errorf("list shift debt payments: %w", err)
	}

	stats, err := src.CountMessages(ctx, shift.StoreID, from, to)
	if err != nil {
		return domain.ShiftFinancials{}, fmt.Errorf("count shift messages: %w", err)
	}

	out := domain.ShiftFinancials{
		IncomeCash:        decimal.Zero,
		IncomeNonCash:     decimal.Zero,
		IncomeDebt:        decimal.Zero,
		DebtRepaymentCash: decimal.Zero,
		DebtRepaymentCard: decimal.Zero,
		SalesCount:        len(sales),
		Notifications:     stats,
		WindowFrom:        from,
		WindowTo:          to,
	}

	products := newRollup()
	services := newRollup()
	for _, sale := range sales {
		switch {
		case sale.PaymentMethod == domain.PaymentCash:
			out.IncomeCash = out.IncomeCash.Add(sale.TotalAmount)
		case domain.IsNonCashMethod(sale.PaymentMethod):
			out.IncomeNonCash = out.IncomeNonCash.Add(sale.TotalAmount)
		case sale.PaymentMethod == domain.PaymentDebt:
			out.IncomeDebt = out.IncomeDebt.Add(sale.TotalAmount)
		}

		for _, item := range sale.Items {
			switch item.Kind {
			case domain.ItemKindInsurance:
				products.add(rollupKey{company: item.Company, name: item.ProductName}, sale.PaymentMethod, item.PremiumAmount)
			case domain.ItemKindService:
				services.add(rollupKey{name: item.ServiceName}, sale.PaymentMethod, item.PremiumAmount)
			}
		}
	}
	out.SalesSummary = products.productSummaries()
	out.ServicesSummary = services.serviceSummaries()

	lines, err := repaymentLines(ctx, src, payments)
	if err != nil {
		return domain.ShiftFinancials{}, err
	}
	for _, p := range payments {
		switch {
		case p.PaymentMethod == domain.PaymentCash:
			out.DebtRepaymentCash = out.DebtRepaymentCash.Add(p.Amount)
		case domain.IsNonCashMethod(p.PaymentMethod):
			out.DebtRepaymentCard = out.DebtRepaymentCard.Add(p.Amount)
		}
	}
	out.DebtRepayments = lines

	// non-cash income never reaches the drawer
	out.ExpectedClosingBalance = shift.ActualOpeningBalance.Add(out.IncomeCash).Add(out.DebtRepaymentCash)
	return out, nil
}

func repaymentLines(ctx context.Context, src Source, payments []domain.DebtPayment) ([]domain.DebtRepaymentLine, error) {
	lines := make([]domain.DebtRepaymentLine, 0, len(payments))
	if len(payments) == 0 {
		return lines, nil
	}

	seen := map[string]struct{}{}
	ids := make([]string, 0, len(payments))
	for _, p := range payments {
		if _, ok := seen[p.ClientID]; ok || p.ClientID == "" {
			continue
		}
		seen[p.ClientID] = struct{}{}
		ids = append(ids, p.ClientID)
	}
	clients, err := src.GetClientsByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load debt payment clients: %w", err)
	}

	for _, p := range payments {
		lines = append(lines, domain.DebtRepaymentLine{
			PaymentID:     p.ID,
			SaleID:        p.SaleID,
			ClientID:      p.ClientID,
			ClientName:    clients[p.ClientID].FullName,
			Amount:        p.Amount,
			PaymentMethod: p.PaymentMethod,
			PaidAt:        p.PaidAt,
		})
	}
	sort.SliceStable(lines, func(i, j int) bool {
		return lines[i].PaidAt.Before(lines[j].PaidAt)
	})
	return lines, nil
}

type rollupKey struct {
	company string
	name    string
}

type rollupRow struct {
	count   int
	cash    decimal.Decimal
	nonCash decimal.Decimal
	total   decimal.Decimal
}

type rollup struct {
	rows map[rollupKey]*rollupRow
}

func newRollup() *rollup {
	return &rollup{rows: map[rollupKey]*rollupRow{}}
}

// add counts debt-method lines only in the total.
func (r *rollup) add(key rollupKey, method string, amount decimal.Decimal) {
	row, ok := r.rows[key]
	if !ok {
		row = &rollupRow{}
		r.rows[key] = row
	}
	row.count++
	row.total = row.total.Add(amount)
	switch {
	case method == domain.PaymentCash:
		row.cash = row.cash.Add(amount)
	case domain.IsNonCashMethod(method):
		row.nonCash = row.nonCash.Add(amount)
	}
}

func (r *rollup) sortedKeys() []rollupKey {
	keys := make([]rollupKey, 0, len(r.rows))
	for key := range r.rows {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := r.rows[keys[i]], r.rows[keys[j]]
		if cmp := a.total.Cmp(b.total); cmp != 0 {
			return cmp > 0
		}
		if keys[i].company != keys[j].company {
			return keys[i].company < keys[j].company
		}
		return keys[i].name < keys[j].name
	})
	return keys
}

func (r *rollup) productSummaries() []domain.ProductSummary {
	out := make([]domain.ProductSummary, 0, len(r.rows))
	for _, key := range r.sortedKeys() {
		row := r.rows[key]
		out = append(out, domain.ProductSummary{
			Company: key.company,
			Product: key.name,
			Count:   row.count,
			Cash:    row.cash,
			NonCash: row.nonCash,
			Total:   row.total,
		})
	}
	return out
}

func (r *rollup) serviceSummaries() []domain.ServiceSummary {
	out := make([]domain.ServiceSummary, 0, len(r.rows))
	for _, key := range r.sortedKeys() {
		row := r.rows[key]
		out = append(out, domain.ServiceSummary{
			Name:    key.name,
			Count:   row.count,
			Cash:    row.cash,
			NonCash: row.nonCash,
			Total:   row.total,
		})
	}
	return out
}
