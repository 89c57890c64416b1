package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"polisdesk/backend/internal/domain"
	"polisdesk/backend/internal/store"
	"polisdesk/backend/internal/xid"
)

//go:embed schema.sql
var schemaSQL string

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate applies the idempotent schema.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *Store) ListInsuranceProducts(ctx context.Context) ([]domain.InsuranceProduct, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, company, name, series_mask, number_mask, default_commission_percent, linked_service_ids
		FROM insurance_products
		WHERE active = true
		ORDER BY company, name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.InsuranceProduct, 0, 32)
	for rows.Next() {
		var p domain.InsuranceProduct
		var linked []byte
		if err := rows.Scan(&p.ID, &p.Company, &p.Name, &p.SeriesMask, &p.NumberMask, &p.DefaultCommissionPercent, &linked); err != nil {
			return nil, err
		}
		if len(linked) > 0 {
			if err := json.Unmarshal(linked, &p.LinkedServiceIDs); err != nil {
				return nil, fmt.Errorf("decode linked services of %s: %w", p.ID, err)
			}
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) ListCatalogServices(ctx context.Context) ([]domain.ServiceCatalogItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, default_price
		FROM catalog_services
		WHERE active = true
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	services := make([]domain.ServiceCatalogItem, 0, 32)
	for rows.Next() {
		var svc domain.ServiceCatalogItem
		if err := rows.Scan(&svc.ID, &svc.Name, &svc.DefaultPrice); err != nil {
			return nil, err
		}
		services = append(services, svc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return services, nil
}

func (s *Store) CreateClient(ctx context.Context, client domain.Client) (*domain.Client, error) {
	if strings.TrimSpace(client.FullName) == "" {
		return nil, store.ErrInvalidTransaction
	}
	if client.ID == "" {
		client.ID = xid.New("client")
	}
	if client.CreatedAt.IsZero() {
		client.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO clients (id, full_name, phone, created_at)
		VALUES ($1,$2,$3,$4)
	`, client.ID, client.FullName, nullIfEmpty(client.Phone), client.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	created := client
	return &created, nil
}

func (s *Store) GetClient(ctx context.Context, id string) (*domain.Client, error) {
	client, err := scanClient(s.db.QueryRowContext(ctx, `
		SELECT id, full_name, phone, created_at
		FROM clients
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &client, nil
}

func (s *Store) GetClientsByIDs(ctx context.Context, ids []string) (map[string]domain.Client, error) {
	result := make(map[string]domain.Client, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, full_name, phone, created_at
		FROM clients
		WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		client, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		result[client.ID] = client
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) ListClients(ctx context.Context, search string, limit int) ([]domain.Client, error) {
	if limit < 1 {
		limit = 50
	}
	pattern := "%" + strings.ToLower(strings.TrimSpace(search)) + "%"

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, full_name, phone, created_at
		FROM clients
		WHERE lower(full_name) LIKE $1 OR coalesce(phone, '') LIKE $1
		ORDER BY full_name, id
		LIMIT $2
	`, pattern, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	clients := make([]domain.Client, 0, limit)
	for rows.Next() {
		client, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		clients = append(clients, client)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return clients, nil
}

// CreateSale writes the sale, its items and the debt payments settled at
// the same checkout in one serializable transaction.
func (s *Store) CreateSale(ctx context.Context, sale domain.Sale, payments []domain.DebtPayment) (*domain.Sale, error) {
	if strings.TrimSpace(sale.StoreID) == "" || len(sale.Items) == 0 {
		return nil, store.ErrInvalidTransaction
	}
	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}
	if sale.Status == "" {
		sale.Status = domain.SaleStatusCompleted
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO sales (
			id, store_id, client_id, user_id, shift_id, payment_method, status,
			subtotal, rounding_amount, total_amount, commission, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, sale.ID, sale.StoreID, nullIfEmpty(sale.ClientID), sale.UserID, nullIfEmpty(sale.ShiftID), sale.PaymentMethod, sale.Status,
		sale.Subtotal, sale.RoundingAmount, sale.TotalAmount, sale.Commission, sale.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}

	for i, item := range sale.Items {
		if item.ID == "" {
			item.ID = xid.New("item")
			sale.Items[i].ID = item.ID
		}
		_, err := pgTx.ExecContext(ctx, `
			INSERT INTO sale_items (
				id, sale_id, position, kind, product_id, company, product_name, service_id, service_name,
				series, number, premium_amount, commission_percent, quantity, unit_price, linked_to
			)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		`, item.ID, sale.ID, i, item.Kind, item.ProductID, item.Company, item.ProductName, item.ServiceID, item.ServiceName,
			item.Series, item.Number, item.PremiumAmount, nullDecimal(item.CommissionPercent), nullInt(item.Quantity), nullDecimal(item.UnitPrice), item.LinkedTo)
		if err != nil {
			return nil, err
		}
	}

	for _, p := range payments {
		p.SourceSaleID = sale.ID
		if p.PaidAt.IsZero() {
			p.PaidAt = sale.CreatedAt
		}
		if _, err := insertDebtPayment(ctx, pgTx, p); err != nil {
			return nil, err
		}
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	created := sale
	return &created, nil
}

func (s *Store) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	sale, err := scanSale(s.db.QueryRowContext(ctx, `
		SELECT `+saleColumns+`
		FROM sales
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	sales := []domain.Sale{sale}
	if err := s.attachItems(ctx, sales); err != nil {
		return nil, err
	}
	return &sales[0], nil
}

func (s *Store) ListSales(ctx context.Context, query store.SaleQuery) ([]domain.Sale, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+saleColumns+`
		FROM sales
		WHERE ($1 = '' OR store_id = $1)
			AND ($2 = '' OR status = $2)
			AND created_at >= $3
			AND created_at <= $4
		ORDER BY created_at ASC
	`, query.StoreID, query.Status, query.From, windowEnd(query.To))
	if err != nil {
		return nil, err
	}
	sales, err := collectSales(rows)
	if err != nil {
		return nil, err
	}
	if err := s.attachItems(ctx, sales); err != nil {
		return nil, err
	}
	return sales, nil
}

func (s *Store) ListDebtSalesByClient(ctx context.Context, clientID string) ([]domain.Sale, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+saleColumns+`
		FROM sales
		WHERE client_id = $1 AND payment_method = $2 AND status = $3
		ORDER BY created_at ASC
	`, clientID, domain.PaymentDebt, domain.SaleStatusCompleted)
	if err != nil {
		return nil, err
	}
	sales, err := collectSales(rows)
	if err != nil {
		return nil, err
	}
	if err := s.attachItems(ctx, sales); err != nil {
		return nil, err
	}
	return sales, nil
}

func (s *Store) CancelSale(ctx context.Context, id string) (*domain.Sale, error) {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	var status string
	err = pgTx.QueryRowContext(ctx, `SELECT status FROM sales WHERE id = $1 FOR UPDATE`, id).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if status != domain.SaleStatusCompleted {
		return nil, store.ErrInvalidTransaction
	}

	var linked bool
	err = pgTx.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM debt_payments WHERE sale_id = $1 OR source_sale_id = $1)
	`, id).Scan(&linked)
	if err != nil {
		return nil, err
	}
	if linked {
		return nil, store.ErrInvalidTransaction
	}

	if _, err := pgTx.ExecContext(ctx, `UPDATE sales SET status = $2 WHERE id = $1`, id, domain.SaleStatusCancelled); err != nil {
		return nil, err
	}
	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	return s.GetSale(ctx, id)
}

func (s *Store) CreateDebtPayment(ctx context.Context, payment domain.DebtPayment) (*domain.DebtPayment, error) {
	if payment.PaidAt.IsZero() {
		payment.PaidAt = time.Now().UTC()
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	created, err := insertDebtPayment(ctx, pgTx, payment)
	if err != nil {
		return nil, err
	}
	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	return created, nil
}

// insertDebtPayment locks the debt sale and refuses payments beyond its
// outstanding balance.
func insertDebtPayment(ctx context.Context, pgTx *sql.Tx, p domain.DebtPayment) (*domain.DebtPayment, error) {
	if !p.Amount.IsPositive() {
		return nil, store.ErrInvalidTransaction
	}

	var method, status string
	var total decimal.Decimal
	err := pgTx.QueryRowContext(ctx, `
		SELECT payment_method, status, total_amount
		FROM sales
		WHERE id = $1
		FOR UPDATE
	`, p.SaleID).Scan(&method, &status, &total)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if method != domain.PaymentDebt || status != domain.SaleStatusCompleted {
		return nil, store.ErrInvalidTransaction
	}

	var paid decimal.Decimal
	if err := pgTx.QueryRowContext(ctx, `
		SELECT coalesce(sum(amount), 0) FROM debt_payments WHERE sale_id = $1
	`, p.SaleID).Scan(&paid); err != nil {
		return nil, err
	}
	if p.Amount.GreaterThan(total.Sub(paid)) {
		return nil, store.ErrInvalidTransaction
	}

	if p.ID == "" {
		p.ID = xid.New("debtpay")
	}
	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO debt_payments (id, sale_id, store_id, client_id, amount, payment_method, paid_at, created_by, source_sale_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, p.ID, p.SaleID, p.StoreID, nullIfEmpty(p.ClientID), p.Amount, p.PaymentMethod, p.PaidAt, p.CreatedBy, nullIfEmpty(p.SourceSaleID))
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) ListDebtPaymentsBySale(ctx context.Context, saleID string) ([]domain.DebtPayment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+debtPaymentColumns+`
		FROM debt_payments
		WHERE sale_id = $1
		ORDER BY paid_at ASC
	`, saleID)
	if err != nil {
		return nil, err
	}
	return collectDebtPayments(rows)
}

func (s *Store) ListDebtPayments(ctx context.Context, storeID string, from time.Time, to time.Time) ([]domain.DebtPayment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+debtPaymentColumns+`
		FROM debt_payments
		WHERE ($1 = '' OR store_id = $1)
			AND paid_at >= $2
			AND paid_at <= $3
		ORDER BY paid_at ASC
	`, storeID, from, windowEnd(to))
	if err != nil {
		return nil, err
	}
	return collectDebtPayments(rows)
}

func (s *Store) CreateShift(ctx context.Context, shift domain.Shift) (*domain.Shift, error) {
	if strings.TrimSpace(shift.StoreID) == "" || strings.TrimSpace(shift.UserID) == "" {
		return nil, store.ErrInvalidTransaction
	}
	if shift.ID == "" {
		shift.ID = xid.New("shift")
	}
	if shift.OpenedAt.IsZero() {
		shift.OpenedAt = time.Now().UTC()
	}
	shift.Status = domain.ShiftStatusOpen
	shift.ClosedAt = nil
	shift.ActualClosingBalance = nil
	shift.Financials = nil

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO shifts (
			id, store_id, user_id, status, opened_at,
			expected_opening_balance, actual_opening_balance, opening_discrepancy_reason
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, shift.ID, shift.StoreID, shift.UserID, shift.Status, shift.OpenedAt,
		shift.ExpectedOpeningBalance, shift.ActualOpeningBalance, shift.OpeningDiscrepancyReason)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	saved := shift
	return &saved, nil
}

func (s *Store) GetShift(ctx context.Context, id string) (*domain.Shift, error) {
	return s.queryShift(ctx, `
		SELECT `+shiftColumns+`
		FROM shifts
		WHERE id = $1
	`, id)
}

func (s *Store) GetActiveShift(ctx context.Context, storeID string, userID string) (*domain.Shift, error) {
	return s.queryShift(ctx, `
		SELECT `+shiftColumns+`
		FROM shifts
		WHERE user_id = $2 AND status = 'open' AND ($1 = '' OR store_id = $1)
		ORDER BY opened_at DESC
		LIMIT 1
	`, storeID, userID)
}

func (s *Store) GetLastClosedShift(ctx context.Context, storeID string) (*domain.Shift, error) {
	return s.queryShift(ctx, `
		SELECT `+shiftColumns+`
		FROM shifts
		WHERE store_id = $1 AND status = 'closed'
		ORDER BY closed_at DESC
		LIMIT 1
	`, storeID)
}

func (s *Store) CloseShift(ctx context.Context, shift domain.Shift) (*domain.Shift, error) {
	if shift.ClosedAt == nil || shift.ActualClosingBalance == nil {
		return nil, store.ErrInvalidTransaction
	}

	var snapshot any
	if shift.Financials != nil {
		payload, err := json.Marshal(shift.Financials)
		if err != nil {
			return nil, err
		}
		snapshot = payload
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE shifts
		SET status = 'closed',
			closed_at = $2,
			expected_closing_balance = $3,
			actual_closing_balance = $4,
			closing_discrepancy_reason = $5,
			amount_to_keep = $6,
			actual_withdrawal = $7,
			financials = $8
		WHERE id = $1 AND status = 'open'
	`, shift.ID, *shift.ClosedAt, shift.ExpectedClosingBalance, *shift.ActualClosingBalance,
		shift.ClosingDiscrepancyReason, shift.AmountToKeep, shift.ActualWithdrawal, snapshot)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		if _, err := s.GetShift(ctx, shift.ID); err != nil {
			return nil, err
		}
		return nil, store.ErrInvalidTransaction
	}
	return s.GetShift(ctx, shift.ID)
}

func (s *Store) queryShift(ctx context.Context, query string, args ...any) (*domain.Shift, error) {
	var shift domain.Shift
	var closedAt sql.NullTime
	var closing decimal.NullDecimal
	var financials []byte
	err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&shift.ID,
		&shift.StoreID,
		&shift.UserID,
		&shift.Status,
		&shift.OpenedAt,
		&closedAt,
		&shift.ExpectedOpeningBalance,
		&shift.ActualOpeningBalance,
		&shift.OpeningDiscrepancyReason,
		&shift.ExpectedClosingBalance,
		&closing,
		&shift.ClosingDiscrepancyReason,
		&shift.AmountToKeep,
		&shift.ActualWithdrawal,
		&financials,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	shift.OpenedAt = shift.OpenedAt.UTC()
	if closedAt.Valid {
		at := closedAt.Time.UTC()
		shift.ClosedAt = &at
	}
	if closing.Valid {
		v := closing.Decimal
		shift.ActualClosingBalance = &v
	}
	if len(financials) > 0 {
		var snapshot domain.ShiftFinancials
		if err := json.Unmarshal(financials, &snapshot); err != nil {
			return nil, fmt.Errorf("decode shift financials: %w", err)
		}
		shift.Financials = &snapshot
	}
	return &shift, nil
}

func (s *Store) CreateDocument(ctx context.Context, doc domain.DocumentArchive) (*domain.DocumentArchive, error) {
	if strings.TrimSpace(doc.ClientID) == "" || !json.Valid(doc.DocumentData) {
		return nil, store.ErrInvalidTransaction
	}
	if doc.ID == "" {
		doc.ID = xid.New("doc")
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO document_archives (id, client_id, type, document_data, created_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, doc.ID, doc.ClientID, doc.Type, []byte(doc.DocumentData), doc.CreatedBy, doc.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	created := doc
	return &created, nil
}

func (s *Store) GetDocument(ctx context.Context, id string) (*domain.DocumentArchive, error) {
	doc, err := scanDocument(s.db.QueryRowContext(ctx, `
		SELECT id, client_id, type, document_data, created_by, created_at
		FROM document_archives
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &doc, nil
}

func (s *Store) ListDocumentsByClient(ctx context.Context, clientID string, limit int) ([]domain.DocumentArchive, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, client_id, type, document_data, created_by, created_at
		FROM document_archives
		WHERE client_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, clientID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	docs := make([]domain.DocumentArchive, 0, 16)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return docs, nil
}

func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM document_archives WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CreateMessageLog(ctx context.Context, entry domain.MessageLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("msg")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO message_logs (id, store_id, client_id, channel, recipient, status, error_code, message_id, sent_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, entry.ID, entry.StoreID, entry.ClientID, entry.Channel, entry.Recipient, entry.Status, entry.ErrorCode, entry.MessageID, entry.SentBy, entry.CreatedAt)
	return err
}

func (s *Store) CountMessages(ctx context.Context, storeID string, from time.Time, to time.Time) (domain.NotificationStats, error) {
	var stats domain.NotificationStats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			count(*) FILTER (WHERE status = 'sent'),
			count(*) FILTER (WHERE status = 'failed')
		FROM message_logs
		WHERE ($1 = '' OR store_id = $1)
			AND created_at >= $2
			AND created_at <= $3
	`, storeID, from, windowEnd(to)).Scan(&stats.Sent, &stats.Failed)
	if err != nil {
		return domain.NotificationStats{}, err
	}
	return stats, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (
			id, store_id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, entry.ID, entry.StoreID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, store_id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE ($1 = '' OR store_id = $1)
			AND created_at >= $2
			AND created_at < $3
		ORDER BY created_at DESC
		LIMIT $4
	`, storeID, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.StoreID, &entry.ActorUsername, &entry.ActorRole, &entry.Action, &entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidTransaction
	}
	if user.Role == "" {
		user.Role = domain.RoleAgent
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,now())
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrConflict
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidTransaction
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}
