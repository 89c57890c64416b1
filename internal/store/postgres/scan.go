package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"polisdesk/backend/internal/domain"
)

const saleColumns = `id, store_id, client_id, user_id, shift_id, payment_method, status,
		subtotal, rounding_amount, total_amount, commission, created_at`

const debtPaymentColumns = `id, sale_id, store_id, client_id, amount, payment_method, paid_at, created_by, source_sale_id`

const shiftColumns = `id, store_id, user_id, status, opened_at, closed_at,
		expected_opening_balance, actual_opening_balance, opening_discrepancy_reason,
		expected_closing_balance, actual_closing_balance, closing_discrepancy_reason,
		amount_to_keep, actual_withdrawal, financials`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClient(row rowScanner) (domain.Client, error) {
	var client domain.Client
	var phone sql.NullString
	if err := row.Scan(&client.ID, &client.FullName, &phone, &client.CreatedAt); err != nil {
		return domain.Client{}, err
	}
	client.Phone = phone.String
	client.CreatedAt = client.CreatedAt.UTC()
	return client, nil
}

func scanSale(row rowScanner) (domain.Sale, error) {
	var sale domain.Sale
	var clientID, shiftID sql.NullString
	err := row.Scan(
		&sale.ID,
		&sale.StoreID,
		&clientID,
		&sale.UserID,
		&shiftID,
		&sale.PaymentMethod,
		&sale.Status,
		&sale.Subtotal,
		&sale.RoundingAmount,
		&sale.TotalAmount,
		&sale.Commission,
		&sale.CreatedAt,
	)
	if err != nil {
		return domain.Sale{}, err
	}
	sale.ClientID = clientID.String
	sale.ShiftID = shiftID.String
	sale.CreatedAt = sale.CreatedAt.UTC()
	return sale, nil
}

func collectSales(rows *sql.Rows) ([]domain.Sale, error) {
	defer rows.Close()

	sales := make([]domain.Sale, 0, 32)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sales, nil
}

// attachItems loads the line items of every sale in one query.
func (s *Store) attachItems(ctx context.Context, sales []domain.Sale) error {
	if len(sales) == 0 {
		return nil
	}
	ids := make([]string, 0, len(sales))
	index := make(map[string]int, len(sales))
	for i := range sales {
		ids = append(ids, sales[i].ID)
		index[sales[i].ID] = i
		sales[i].Items = []domain.SaleItem{}
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT sale_id, id, kind, product_id, company, product_name, service_id, service_name,
			series, number, premium_amount, commission_percent, quantity, unit_price, linked_to
		FROM sale_items
		WHERE sale_id = ANY($1)
		ORDER BY sale_id, position
	`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var saleID string
		var item domain.SaleItem
		var percent, unitPrice decimal.NullDecimal
		var qty sql.NullInt64
		err := rows.Scan(
			&saleID,
			&item.ID,
			&item.Kind,
			&item.ProductID,
			&item.Company,
			&item.ProductName,
			&item.ServiceID,
			&item.ServiceName,
			&item.Series,
			&item.Number,
			&item.PremiumAmount,
			&percent,
			&qty,
			&unitPrice,
			&item.LinkedTo,
		)
		if err != nil {
			return err
		}
		if percent.Valid {
			p := percent.Decimal
			item.CommissionPercent = &p
		}
		if qty.Valid {
			q := int(qty.Int64)
			item.Quantity = &q
		}
		if unitPrice.Valid {
			u := unitPrice.Decimal
			item.UnitPrice = &u
		}
		i, ok := index[saleID]
		if !ok {
			continue
		}
		sales[i].Items = append(sales[i].Items, item)
	}
	return rows.Err()
}

func collectDebtPayments(rows *sql.Rows) ([]domain.DebtPayment, error) {
	defer rows.Close()

	payments := make([]domain.DebtPayment, 0, 16)
	for rows.Next() {
		var p domain.DebtPayment
		var clientID, sourceSaleID sql.NullString
		err := rows.Scan(
			&p.ID,
			&p.SaleID,
			&p.StoreID,
			&clientID,
			&p.Amount,
			&p.PaymentMethod,
			&p.PaidAt,
			&p.CreatedBy,
			&sourceSaleID,
		)
		if err != nil {
			return nil, err
		}
		p.ClientID = clientID.String
		p.SourceSaleID = sourceSaleID.String
		p.PaidAt = p.PaidAt.UTC()
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return payments, nil
}

func scanDocument(row rowScanner) (domain.DocumentArchive, error) {
	var doc domain.DocumentArchive
	var data []byte
	if err := row.Scan(&doc.ID, &doc.ClientID, &doc.Type, &data, &doc.CreatedBy, &doc.CreatedAt); err != nil {
		return domain.DocumentArchive{}, err
	}
	doc.DocumentData = data
	doc.CreatedAt = doc.CreatedAt.UTC()
	return doc, nil
}

// windowEnd treats a zero upper bound as open-ended.
func windowEnd(to time.Time) time.Time {
	if to.IsZero() {
		return time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)
	}
	return to
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullDecimal(val *decimal.Decimal) any {
	if val == nil {
		return nil
	}
	return *val
}

func nullInt(val *int) any {
	if val == nil {
		return nil
	}
	return *val
}
