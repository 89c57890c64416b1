package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"polisdesk/backend/internal/cache"
	"polisdesk/backend/internal/domain"
	"polisdesk/backend/internal/messaging"
	"polisdesk/backend/internal/store"
	"polisdesk/backend/internal/xid"
)

var (
	ErrAdminRequired     = errors.New("admin role required")
	ErrActorRequired     = errors.New("authenticated user required")
	ErrShiftAlreadyOpen  = errors.New("shift already open")
	ErrNoActiveShift     = errors.New("no open shift")
	ErrShiftNotClosed    = errors.New("shift is not closed")
	ErrFinancialsFailed  = errors.New("shift financials could not be computed")
	ErrInvalidPayment    = errors.New("unsupported payment method")
	ErrUnknownCatalog    = errors.New("unknown catalog item")
	ErrEmptySale         = errors.New("sale has no items")
	ErrClientRequired    = errors.New("client is required for a debt sale")
	ErrDebtSettlement    = errors.New("debts cannot be settled with a debt sale")
	ErrSaleNotVoidable   = errors.New("sale cannot be voided")
	ErrAmountExceedsDebt = errors.New("amount exceeds outstanding debt")
	ErrInvalidDocument   = errors.New("invalid document")
	ErrInvalidMessage    = errors.New("invalid message")
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Options struct {
	DefaultStoreID string
	AgencyName     string
	ReportTTL      time.Duration
	RoundingStep   int
}

type Service struct {
	repo    store.Repository
	reports cache.ReportCache
	relay   messaging.Relay
	opts    Options
	now     func() time.Time
}

func New(repo store.Repository, reports cache.ReportCache, relay messaging.Relay, opts Options) *Service {
	if opts.DefaultStoreID == "" {
		opts.DefaultStoreID = "main-office"
	}
	if opts.AgencyName == "" {
		opts.AgencyName = "Страховое агентство"
	}
	if opts.ReportTTL <= 0 {
		opts.ReportTTL = 30 * 24 * time.Hour
	}
	if opts.RoundingStep < 1 {
		opts.RoundingStep = 100
	}
	if reports == nil {
		reports = cache.NoopReportCache{}
	}

	return &Service{
		repo:    repo,
		reports: reports,
		relay:   relay,
		opts:    opts,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) Catalog(ctx context.Context) (domain.CatalogResponse, error) {
	products, err := s.repo.ListInsuranceProducts(ctx)
	if err != nil {
		return domain.CatalogResponse{}, err
	}
	services, err := s.repo.ListCatalogServices(ctx)
	if err != nil {
		return domain.CatalogResponse{}, err
	}
	return domain.CatalogResponse{Products: products, Services: services}, nil
}

func (s *Service) ListAuditLogs(ctx context.Context, storeID string, date string, limit int) ([]domain.AuditLog, error) {
	if storeID == "" {
		storeID = s.opts.DefaultStoreID
	}
	if limit < 1 {
		limit = 100
	}

	var from time.Time
	if strings.TrimSpace(date) == "" {
		from = s.now().Add(-24 * time.Hour)
	} else {
		parsed, err := time.Parse("2006-01-02", date)
		if err != nil {
			return nil, store.ErrInvalidTransaction
		}
		from = parsed.UTC()
	}
	to := from.Add(24 * time.Hour)

	return s.repo.ListAuditLogs(ctx, storeID, from, to, limit)
}

func (s *Service) logAudit(ctx context.Context, storeID string, action string, entityType string, entityID string, detail string) {
	if storeID == "" {
		storeID = s.opts.DefaultStoreID
	}

	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		StoreID:       storeID,
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     s.now(),
	}); err != nil {
		log.Printf("[audit] WARN: failed to write audit log action=%s entity=%s/%s: %v", action, entityType, entityID, err)
	}
}

func (s *Service) storeID(storeID string) string {
	if strings.TrimSpace(storeID) == "" {
		return s.opts.DefaultStoreID
	}
	return strings.TrimSpace(storeID)
}

func requireActor(ctx context.Context) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || strings.TrimSpace(actor.Username) == "" {
		return domain.Actor{}, ErrActorRequired
	}
	return actor, nil
}

func requireAdmin(ctx context.Context) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return domain.Actor{}, ErrAdminRequired
	}
	return actor, nil
}

// activeShift returns the actor's open shift in storeID.
func (s *Service) activeShift(ctx context.Context, storeID string, userID string) (*domain.Shift, error) {
	shift, err := s.repo.GetActiveShift(ctx, storeID, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNoActiveShift
		}
		return nil, err
	}
	return shift, nil
}

func invalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", store.ErrInvalidTransaction, fmt.Sprintf(format, args...))
}
