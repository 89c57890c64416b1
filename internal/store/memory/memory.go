package memory

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"polisdesk/backend/internal/domain"
	"polisdesk/backend/internal/store"
	"polisdesk/backend/internal/xid"
)

type Store struct {
	mu              sync.RWMutex
	products        []domain.InsuranceProduct
	services        []domain.ServiceCatalogItem
	clientsByID     map[string]domain.Client
	salesByID       map[string]*domain.Sale
	debtPayments    []domain.DebtPayment
	shiftsByID      map[string]domain.Shift
	activeShiftBy   map[string]string
	documentsByID   map[string]domain.DocumentArchive
	messageLogs     []domain.MessageLog
	auditLogs       []domain.AuditLog
	usersByUsername map[string]domain.UserAccount
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials are read from SEED_ADMIN_PASSWORD and SEED_AGENT_PASSWORD.
// If unset, dev defaults are used with a warning. These credentials are
// never used in production (the backend uses PostgreSQL when DATABASE_URL
// is set).
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	agentPwd := envOr("SEED_AGENT_PASSWORD", "agent123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_AGENT_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_AGENT_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, domain.RoleAdmin},
		{"agent", agentPwd, domain.RoleAgent},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func NewSeeded() *Store {
	services := []domain.ServiceCatalogItem{
		{ID: "svc-diag-card", Name: "Диагностическая карта", DefaultPrice: decimal.NewFromInt(900)},
		{ID: "svc-dkp", Name: "Договор купли-продажи", DefaultPrice: decimal.NewFromInt(500)},
		{ID: "svc-copy", Name: "Ксерокопия", DefaultPrice: decimal.NewFromInt(20)},
		{ID: "svc-photo", Name: "Фотофиксация ТС", DefaultPrice: decimal.NewFromInt(300)},
	}

	products := []domain.InsuranceProduct{
		{
			ID:                       "prod-ingo-osago",
			Company:                  "Ингосстрах",
			Name:                     "ОСАГО",
			SeriesMask:               "AAA",
			NumberMask:               "0000000000",
			DefaultCommissionPercent: decimal.NewFromInt(10),
			LinkedServiceIDs:         []string{"svc-diag-card"},
		},
		{
			ID:                       "prod-reso-osago",
			Company:                  "РЕСО-Гарантия",
			Name:                     "ОСАГО",
			SeriesMask:               "AAA",
			NumberMask:               "0000000000",
			DefaultCommissionPercent: decimal.NewFromInt(8),
			LinkedServiceIDs:         []string{"svc-diag-card"},
		},
		{
			ID:                       "prod-reso-kasko",
			Company:                  "РЕСО-Гарантия",
			Name:                     "КАСКО",
			NumberMask:               "AA**-0000000",
			DefaultCommissionPercent: decimal.NewFromInt(15),
			LinkedServiceIDs:         []string{"svc-photo"},
		},
		{
			ID:                       "prod-alfa-mite",
			Company:                  "АльфаСтрахование",
			Name:                     "Защита от клеща",
			DefaultCommissionPercent: decimal.NewFromInt(30),
		},
	}

	return &Store{
		products:        products,
		services:        services,
		clientsByID:     make(map[string]domain.Client),
		salesByID:       make(map[string]*domain.Sale),
		debtPayments:    make([]domain.DebtPayment, 0, 64),
		shiftsByID:      make(map[string]domain.Shift),
		activeShiftBy:   make(map[string]string),
		documentsByID:   make(map[string]domain.DocumentArchive),
		messageLogs:     make([]domain.MessageLog, 0, 64),
		auditLogs:       make([]domain.AuditLog, 0, 128),
		usersByUsername: seedUsers(),
	}
}

func (s *Store) ListInsuranceProducts(_ context.Context) ([]domain.InsuranceProduct, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.InsuranceProduct, len(s.products))
	copy(result, s.products)
	return result, nil
}

func (s *Store) ListCatalogServices(_ context.Context) ([]domain.ServiceCatalogItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.ServiceCatalogItem, len(s.services))
	copy(result, s.services)
	return result, nil
}

func (s *Store) CreateClient(_ context.Context, client domain.Client) (*domain.Client, error) {
	if strings.TrimSpace(client.FullName) == "" {
		return nil, store.ErrInvalidTransaction
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if client.Phone != "" {
		for _, existing := range s.clientsByID {
			if existing.Phone == client.Phone {
				return nil, store.ErrConflict
			}
		}
	}
	if client.ID == "" {
		client.ID = xid.New("client")
	}
	if client.CreatedAt.IsZero() {
		client.CreatedAt = time.Now().UTC()
	}
	s.clientsByID[client.ID] = client
	copyClient := client
	return &copyClient, nil
}

func (s *Store) GetClient(_ context.Context, id string) (*domain.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	client, ok := s.clientsByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &client, nil
}

func (s *Store) GetClientsByIDs(_ context.Context, ids []string) (map[string]domain.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]domain.Client, len(ids))
	for _, id := range ids {
		if client, ok := s.clientsByID[id]; ok {
			result[id] = client
		}
	}
	return result, nil
}

func (s *Store) ListClients(_ context.Context, search string, limit int) ([]domain.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	needle := strings.ToLower(strings.TrimSpace(search))
	result := make([]domain.Client, 0, 32)
	for _, client := range s.clientsByID {
		if needle != "" && !strings.Contains(strings.ToLower(client.FullName), needle) && !strings.Contains(client.Phone, needle) {
			continue
		}
		result = append(result, client)
	}
	slices.SortFunc(result, func(a, b domain.Client) int {
		if c := cmpString(a.FullName, b.FullName); c != 0 {
			return c
		}
		return cmpString(a.ID, b.ID)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// CreateSale stores the sale together with the debt payments settled at
// the same checkout. Either everything is stored or nothing is.
func (s *Store) CreateSale(_ context.Context, sale domain.Sale, payments []domain.DebtPayment) (*domain.Sale, error) {
	if strings.TrimSpace(sale.StoreID) == "" || len(sale.Items) == 0 {
		return nil, store.ErrInvalidTransaction
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if _, exists := s.salesByID[sale.ID]; exists {
		return nil, store.ErrConflict
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}
	if sale.Status == "" {
		sale.Status = domain.SaleStatusCompleted
	}

	pending := map[string]decimal.Decimal{}
	prepared := make([]domain.DebtPayment, 0, len(payments))
	for _, p := range payments {
		p.SourceSaleID = sale.ID
		if p.PaidAt.IsZero() {
			p.PaidAt = sale.CreatedAt
		}
		outstanding, err := s.outstandingLocked(p.SaleID)
		if err != nil {
			return nil, err
		}
		outstanding = outstanding.Sub(pending[p.SaleID])
		if !p.Amount.IsPositive() || p.Amount.GreaterThan(outstanding) {
			return nil, store.ErrInvalidTransaction
		}
		pending[p.SaleID] = pending[p.SaleID].Add(p.Amount)
		if p.ID == "" {
			p.ID = xid.New("debtpay")
		}
		prepared = append(prepared, p)
	}

	stored := cloneSale(&sale)
	s.salesByID[sale.ID] = stored
	s.debtPayments = append(s.debtPayments, prepared...)
	return cloneSale(stored), nil
}

func (s *Store) GetSale(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.salesByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneSale(sale), nil
}

func (s *Store) ListSales(_ context.Context, query store.SaleQuery) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Sale, 0, 32)
	for _, sale := range s.salesByID {
		if query.StoreID != "" && sale.StoreID != query.StoreID {
			continue
		}
		if query.Status != "" && sale.Status != query.Status {
			continue
		}
		if !inWindow(sale.CreatedAt, query.From, query.To) {
			continue
		}
		result = append(result, *cloneSale(sale))
	}
	slices.SortFunc(result, func(a, b domain.Sale) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return result, nil
}

func (s *Store) ListDebtSalesByClient(_ context.Context, clientID string) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Sale, 0, 8)
	for _, sale := range s.salesByID {
		if sale.ClientID != clientID || sale.PaymentMethod != domain.PaymentDebt || sale.Status != domain.SaleStatusCompleted {
			continue
		}
		result = append(result, *cloneSale(sale))
	}
	slices.SortFunc(result, func(a, b domain.Sale) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return result, nil
}

// CancelSale refuses sales that are already part of the debt ledger, either
// as the debt being repaid or as the checkout that settled other debts.
func (s *Store) CancelSale(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, ok := s.salesByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if sale.Status != domain.SaleStatusCompleted {
		return nil, store.ErrInvalidTransaction
	}
	for _, p := range s.debtPayments {
		if p.SaleID == id || p.SourceSaleID == id {
			return nil, store.ErrInvalidTransaction
		}
	}
	sale.Status = domain.SaleStatusCancelled
	return cloneSale(sale), nil
}

func (s *Store) CreateDebtPayment(_ context.Context, payment domain.DebtPayment) (*domain.DebtPayment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	outstanding, err := s.outstandingLocked(payment.SaleID)
	if err != nil {
		return nil, err
	}
	if !payment.Amount.IsPositive() || payment.Amount.GreaterThan(outstanding) {
		return nil, store.ErrInvalidTransaction
	}
	if payment.ID == "" {
		payment.ID = xid.New("debtpay")
	}
	if payment.PaidAt.IsZero() {
		payment.PaidAt = time.Now().UTC()
	}
	s.debtPayments = append(s.debtPayments, payment)
	copyPayment := payment
	return &copyPayment, nil
}

func (s *Store) ListDebtPaymentsBySale(_ context.Context, saleID string) ([]domain.DebtPayment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.DebtPayment, 0, 4)
	for _, p := range s.debtPayments {
		if p.SaleID == saleID {
			result = append(result, p)
		}
	}
	return result, nil
}

func (s *Store) ListDebtPayments(_ context.Context, storeID string, from time.Time, to time.Time) ([]domain.DebtPayment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.DebtPayment, 0, 16)
	for _, p := range s.debtPayments {
		if storeID != "" && p.StoreID != storeID {
			continue
		}
		if !inWindow(p.PaidAt, from, to) {
			continue
		}
		result = append(result, p)
	}
	slices.SortFunc(result, func(a, b domain.DebtPayment) int {
		return a.PaidAt.Compare(b.PaidAt)
	})
	return result, nil
}

func (s *Store) CreateShift(_ context.Context, shift domain.Shift) (*domain.Shift, error) {
	if strings.TrimSpace(shift.StoreID) == "" || strings.TrimSpace(shift.UserID) == "" {
		return nil, store.ErrInvalidTransaction
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.activeShiftBy[shift.UserID]; exists {
		return nil, store.ErrConflict
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

	s.shiftsByID[shift.ID] = shift
	s.activeShiftBy[shift.UserID] = shift.ID
	copyShift := shift
	return &copyShift, nil
}

func (s *Store) GetShift(_ context.Context, id string) (*domain.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	shift, ok := s.shiftsByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &shift, nil
}

// GetActiveShift finds the user's open shift; an empty storeID matches any
// store.
func (s *Store) GetActiveShift(_ context.Context, storeID string, userID string) (*domain.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	shiftID, exists := s.activeShiftBy[userID]
	if !exists {
		return nil, store.ErrNotFound
	}
	shift, exists := s.shiftsByID[shiftID]
	if !exists || shift.Status != domain.ShiftStatusOpen {
		return nil, store.ErrNotFound
	}
	if storeID != "" && shift.StoreID != storeID {
		return nil, store.ErrNotFound
	}
	return &shift, nil
}

func (s *Store) GetLastClosedShift(_ context.Context, storeID string) (*domain.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var last *domain.Shift
	for _, shift := range s.shiftsByID {
		if shift.StoreID != storeID || shift.Status != domain.ShiftStatusClosed || shift.ClosedAt == nil {
			continue
		}
		if last == nil || shift.ClosedAt.After(*last.ClosedAt) {
			candidate := shift
			last = &candidate
		}
	}
	if last == nil {
		return nil, store.ErrNotFound
	}
	return last, nil
}

// CloseShift persists the closing fields of a currently open shift.
func (s *Store) CloseShift(_ context.Context, shift domain.Shift) (*domain.Shift, error) {
	if shift.ClosedAt == nil || shift.ActualClosingBalance == nil {
		return nil, store.ErrInvalidTransaction
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.shiftsByID[shift.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if current.Status != domain.ShiftStatusOpen {
		return nil, store.ErrInvalidTransaction
	}

	closed := current
	closedAt := *shift.ClosedAt
	closing := *shift.ActualClosingBalance
	closed.Status = domain.ShiftStatusClosed
	closed.ClosedAt = &closedAt
	closed.ExpectedClosingBalance = shift.ExpectedClosingBalance
	closed.ActualClosingBalance = &closing
	closed.ClosingDiscrepancyReason = shift.ClosingDiscrepancyReason
	closed.AmountToKeep = shift.AmountToKeep
	closed.ActualWithdrawal = shift.ActualWithdrawal
	if shift.Financials != nil {
		snapshot := *shift.Financials
		closed.Financials = &snapshot
	}

	s.shiftsByID[closed.ID] = closed
	delete(s.activeShiftBy, closed.UserID)
	copyShift := closed
	return &copyShift, nil
}

func (s *Store) CreateDocument(_ context.Context, doc domain.DocumentArchive) (*domain.DocumentArchive, error) {
	if strings.TrimSpace(doc.ClientID) == "" || !json.Valid(doc.DocumentData) {
		return nil, store.ErrInvalidTransaction
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if doc.ID == "" {
		doc.ID = xid.New("doc")
	}
	if _, exists := s.documentsByID[doc.ID]; exists {
		return nil, store.ErrConflict
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}
	stored := cloneDocument(doc)
	s.documentsByID[doc.ID] = stored
	result := cloneDocument(stored)
	return &result, nil
}

func (s *Store) GetDocument(_ context.Context, id string) (*domain.DocumentArchive, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.documentsByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	result := cloneDocument(doc)
	return &result, nil
}

func (s *Store) ListDocumentsByClient(_ context.Context, clientID string, limit int) ([]domain.DocumentArchive, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.DocumentArchive, 0, 8)
	for _, doc := range s.documentsByID {
		if doc.ClientID == clientID {
			result = append(result, cloneDocument(doc))
		}
	}
	slices.SortFunc(result, func(a, b domain.DocumentArchive) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmpString(b.ID, a.ID)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) DeleteDocument(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.documentsByID[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.documentsByID, id)
	return nil
}

func (s *Store) CreateMessageLog(_ context.Context, entry domain.MessageLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("msg")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.messageLogs = append(s.messageLogs, entry)
	return nil
}

func (s *Store) CountMessages(_ context.Context, storeID string, from time.Time, to time.Time) (domain.NotificationStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stats domain.NotificationStats
	for _, entry := range s.messageLogs {
		if storeID != "" && entry.StoreID != storeID {
			continue
		}
		if !inWindow(entry.CreatedAt, from, to) {
			continue
		}
		switch entry.Status {
		case domain.MessageStatusSent:
			stats.Sent++
		case domain.MessageStatusFailed:
			stats.Failed++
		}
	}
	return stats, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, 64)
	for _, entry := range s.auditLogs {
		if storeID != "" && entry.StoreID != storeID {
			continue
		}
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		result = append(result, entry)
	}

	slices.SortFunc(result, func(a, b domain.AuditLog) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidTransaction
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrConflict
	}
	user.Username = username
	if user.Role == "" {
		user.Role = domain.RoleAgent
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmpString(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidTransaction
	}
	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

// outstandingLocked is the unpaid remainder of a completed debt sale.
// Callers hold s.mu.
func (s *Store) outstandingLocked(saleID string) (decimal.Decimal, error) {
	sale, ok := s.salesByID[saleID]
	if !ok {
		return decimal.Zero, store.ErrNotFound
	}
	if sale.PaymentMethod != domain.PaymentDebt || sale.Status != domain.SaleStatusCompleted {
		return decimal.Zero, store.ErrInvalidTransaction
	}
	outstanding := sale.TotalAmount
	for _, p := range s.debtPayments {
		if p.SaleID == saleID {
			outstanding = outstanding.Sub(p.Amount)
		}
	}
	return outstanding, nil
}

func inWindow(at time.Time, from time.Time, to time.Time) bool {
	if !from.IsZero() && at.Before(from) {
		return false
	}
	if !to.IsZero() && at.After(to) {
		return false
	}
	return true
}

func cmpString(a string, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cloneSale(src *domain.Sale) *domain.Sale {
	if src == nil {
		return nil
	}
	dup := *src
	dupItems := make([]domain.SaleItem, len(src.Items))
	copy(dupItems, src.Items)
	dup.Items = dupItems
	return &dup
}

func cloneDocument(src domain.DocumentArchive) domain.DocumentArchive {
	dup := src
	dup.DocumentData = append(json.RawMessage(nil), src.DocumentData...)
	return dup
}
