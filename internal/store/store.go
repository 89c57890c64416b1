package store

import (
	"context"
	"errors"
	"time"

	"polisdesk/backend/internal/domain"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrInvalidTransaction = errors.New("invalid transaction")
)

// SaleQuery filters sales by creation time within [From, To]. An empty
// StoreID or Status matches everything.
type SaleQuery struct {
	StoreID string
	From    time.Time
	To      time.Time
	Status  string
}

type Repository interface {
	ListInsuranceProducts(ctx context.Context) ([]domain.InsuranceProduct, error)
	ListCatalogServices(ctx context.Context) ([]domain.ServiceCatalogItem, error)

	CreateClient(ctx context.Context, client domain.Client) (*domain.Client, error)
	GetClient(ctx context.Context, id string) (*domain.Client, error)
	GetClientsByIDs(ctx context.Context, ids []string) (map[string]domain.Client, error)
	ListClients(ctx context.Context, search string, limit int) ([]domain.Client, error)

	CreateSale(ctx context.Context, sale domain.Sale, payments []domain.DebtPayment) (*domain.Sale, error)
	GetSale(ctx context.Context, id string) (*domain.Sale, error)
	ListSales(ctx context.Context, query SaleQuery) ([]domain.Sale, error)
	ListDebtSalesByClient(ctx context.Context, clientID string) ([]domain.Sale, error)
	CancelSale(ctx context.Context, id string) (*domain.Sale, error)

	// CreateDebtPayment appends to the ledger. Implementations must refuse a
	// payment that would exceed the sale's outstanding balance.
	CreateDebtPayment(ctx context.Context, payment domain.DebtPayment) (*domain.DebtPayment, error)
	ListDebtPaymentsBySale(ctx context.Context, saleID string) ([]domain.DebtPayment, error)
	// ListDebtPayments returns payments made within [from, to].
	ListDebtPayments(ctx context.Context, storeID string, from time.Time, to time.Time) ([]domain.DebtPayment, error)

	CreateShift(ctx context.Context, shift domain.Shift) (*domain.Shift, error)
	GetShift(ctx context.Context, id string) (*domain.Shift, error)
	GetActiveShift(ctx context.Context, storeID string, userID string) (*domain.Shift, error)
	GetLastClosedShift(ctx context.Context, storeID string) (*domain.Shift, error)
	CloseShift(ctx context.Context, shift domain.Shift) (*domain.Shift, error)

	CreateDocument(ctx context.Context, doc domain.DocumentArchive) (*domain.DocumentArchive, error)
	GetDocument(ctx context.Context, id string) (*domain.DocumentArchive, error)
	ListDocumentsByClient(ctx context.Context, clientID string, limit int) ([]domain.DocumentArchive, error)
	DeleteDocument(ctx context.Context, id string) error

	CreateMessageLog(ctx context.Context, entry domain.MessageLog) error
	CountMessages(ctx context.Context, storeID string, from time.Time, to time.Time) (domain.NotificationStats, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
