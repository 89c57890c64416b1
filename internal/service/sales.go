package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"polisdesk/backend/internal/domain"
	"polisdesk/backend/internal/sale"
	"polisdesk/backend/internal/store"
	"polisdesk/backend/internal/xid"
)

type debtBalance struct {
	sale        domain.Sale
	paid        decimal.Decimal
	outstanding decimal.Decimal
}

// QuoteSale prices a sale without persisting it.
func (s *Service) QuoteSale(ctx context.Context, req domain.SaleCreateRequest) (domain.SaleQuoteResponse, error) {
	editor, _, err := s.composeSale(ctx, req)
	if err != nil {
		return domain.SaleQuoteResponse{}, err
	}
	return domain.SaleQuoteResponse{Items: editor.Items(), Totals: editor.Totals()}, nil
}

func (s *Service) CreateSale(ctx context.Context, req domain.SaleCreateRequest) (domain.SaleResponse, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.SaleResponse{}, err
	}
	req.StoreID = s.storeID(req.StoreID)
	req.ClientID = strings.TrimSpace(req.ClientID)

	if !domain.IsPaymentMethod(req.PaymentMethod) {
		return domain.SaleResponse{}, fmt.Errorf("%w: %q", ErrInvalidPayment, req.PaymentMethod)
	}
	if req.PaymentMethod == domain.PaymentDebt {
		if req.ClientID == "" {
			return domain.SaleResponse{}, ErrClientRequired
		}
		if len(req.SelectedDebtSaleIDs) > 0 {
			return domain.SaleResponse{}, ErrDebtSettlement
		}
	}
	if req.ClientID != "" {
		if _, err := s.repo.GetClient(ctx, req.ClientID); err != nil {
			return domain.SaleResponse{}, err
		}
	}

	shift, err := s.activeShift(ctx, req.StoreID, actor.Username)
	if err != nil {
		return domain.SaleResponse{}, err
	}

	editor, debts, err := s.composeSale(ctx, req)
	if err != nil {
		return domain.SaleResponse{}, err
	}
	totals := editor.Totals()
	now := s.now()

	record := domain.Sale{
		ID:             xid.New("sale"),
		StoreID:        req.StoreID,
		ClientID:       req.ClientID,
		UserID:         actor.Username,
		ShiftID:        shift.ID,
		PaymentMethod:  req.PaymentMethod,
		Status:         domain.SaleStatusCompleted,
		Subtotal:       totals.Subtotal,
		RoundingAmount: totals.RoundingAmount,
		TotalAmount:    totals.Subtotal.Add(totals.RoundingAmount),
		Commission:     totals.Commission,
		CreatedAt:      now,
		Items:          editor.Items(),
	}

	payments := make([]domain.DebtPayment, 0, len(debts))
	for _, debt := range debts {
		payments = append(payments, domain.DebtPayment{
			ID:            xid.New("debtpay"),
			SaleID:        debt.sale.ID,
			StoreID:       req.StoreID,
			ClientID:      debt.sale.ClientID,
			Amount:        debt.outstanding,
			PaymentMethod: req.PaymentMethod,
			PaidAt:        now,
			CreatedBy:     actor.Username,
			SourceSaleID:  record.ID,
		})
	}

	created, err := s.repo.CreateSale(ctx, record, payments)
	if err != nil {
		if errors.Is(err, store.ErrInvalidTransaction) && len(payments) > 0 {
			return domain.SaleResponse{}, fmt.Errorf("%w: selected debts changed, refresh and retry", ErrAmountExceedsDebt)
		}
		return domain.SaleResponse{}, err
	}

	s.logAudit(ctx, created.StoreID, "sale_create", "sale", created.ID,
		fmt.Sprintf("method=%s,total=%s,debts_settled=%d", created.PaymentMethod, created.TotalAmount.StringFixed(2), len(payments)))

	return domain.SaleResponse{Sale: *created, Totals: totals, DebtPayments: payments}, nil
}

// composeSale expands the request through the line-item editor and resolves
// the debts selected for settlement.
func (s *Service) composeSale(ctx context.Context, req domain.SaleCreateRequest) (*sale.Editor, []debtBalance, error) {
	catalog, err := s.Catalog(ctx)
	if err != nil {
		return nil, nil, err
	}
	products := make(map[string]domain.InsuranceProduct, len(catalog.Products))
	for _, p := range catalog.Products {
		products[p.ID] = p
	}
	services := make(map[string]domain.ServiceCatalogItem, len(catalog.Services))
	for _, svc := range catalog.Services {
		services[svc.ID] = svc
	}

	editor := sale.NewEditor(catalog.Services)
	step := req.RoundingStep
	if step < 1 {
		step = s.opts.RoundingStep
	}
	editor.SetRounding(req.RoundingEnabled, step)

	for _, line := range req.Insurance {
		product, ok := products[line.ProductID]
		if !ok {
			return nil, nil, fmt.Errorf("%w: product %q", ErrUnknownCatalog, line.ProductID)
		}
		if _, err := editor.AddInsurance(product, line); err != nil {
			return nil, nil, err
		}
	}
	for _, line := range req.Services {
		svc, ok := services[line.ServiceID]
		if !ok {
			return nil, nil, fmt.Errorf("%w: service %q", ErrUnknownCatalog, line.ServiceID)
		}
		if _, err := editor.AddService(svc, line.Quantity, line.UnitPrice); err != nil {
			return nil, nil, err
		}
	}
	if editor.Empty() {
		return nil, nil, ErrEmptySale
	}

	debts, err := s.selectedDebts(ctx, strings.TrimSpace(req.ClientID), req.SelectedDebtSaleIDs)
	if err != nil {
		return nil, nil, err
	}
	total := decimal.Zero
	for _, debt := range debts {
		total = total.Add(debt.outstanding)
	}
	editor.SetSelectedDebts(total)

	return editor, debts, nil
}

func (s *Service) selectedDebts(ctx context.Context, clientID string, saleIDs []string) ([]debtBalance, error) {
	seen := make(map[string]struct{}, len(saleIDs))
	debts := make([]debtBalance, 0, len(saleIDs))
	for _, id := range saleIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		debtSale, err := s.repo.GetSale(ctx, id)
		if err != nil {
			return nil, err
		}
		if clientID != "" && debtSale.ClientID != clientID {
			return nil, invalidInput("debt %s belongs to another client", id)
		}
		balance, err := s.debtBalance(ctx, *debtSale)
		if err != nil {
			return nil, err
		}
		if !balance.outstanding.IsPositive() {
			return nil, invalidInput("debt %s is already settled", id)
		}
		debts = append(debts, balance)
	}
	return debts, nil
}

func (s *Service) debtBalance(ctx context.Context, debtSale domain.Sale) (debtBalance, error) {
	if debtSale.PaymentMethod != domain.PaymentDebt || debtSale.Status != domain.SaleStatusCompleted {
		return debtBalance{}, invalidInput("sale %s is not an open debt", debtSale.ID)
	}
	payments, err := s.repo.ListDebtPaymentsBySale(ctx, debtSale.ID)
	if err != nil {
		return debtBalance{}, err
	}
	paid := decimal.Zero
	for _, p := range payments {
		paid = paid.Add(p.Amount)
	}
	return debtBalance{sale: debtSale, paid: paid, outstanding: debtSale.TotalAmount.Sub(paid)}, nil
}

// VoidSale cancels a completed sale. A sale referenced by any debt payment
// stays as it is.
func (s *Service) VoidSale(ctx context.Context, req domain.VoidSaleRequest) (domain.SaleResponse, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.SaleResponse{}, err
	}
	if strings.TrimSpace(req.SaleID) == "" {
		return domain.SaleResponse{}, store.ErrInvalidTransaction
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = "unspecified"
	}

	cancelled, err := s.repo.CancelSale(ctx, req.SaleID)
	if err != nil {
		if errors.Is(err, store.ErrInvalidTransaction) {
			return domain.SaleResponse{}, ErrSaleNotVoidable
		}
		return domain.SaleResponse{}, err
	}

	s.logAudit(ctx, cancelled.StoreID, "sale_void", "sale", cancelled.ID, reason)

	return domain.SaleResponse{
		Sale: *cancelled,
		Totals: domain.SaleTotals{
			Subtotal:       cancelled.Subtotal,
			RoundingAmount: cancelled.RoundingAmount,
			Total:          cancelled.TotalAmount,
			Commission:     cancelled.Commission,
		},
	}, nil
}

func (s *Service) RecordDebtPayment(ctx context.Context, req domain.DebtPaymentRequest) (domain.DebtPaymentResponse, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.DebtPaymentResponse{}, err
	}
	req.StoreID = s.storeID(req.StoreID)

	if !domain.IsPaymentMethod(req.PaymentMethod) || req.PaymentMethod == domain.PaymentDebt {
		return domain.DebtPaymentResponse{}, fmt.Errorf("%w: %q", ErrInvalidPayment, req.PaymentMethod)
	}
	if !req.Amount.IsPositive() {
		return domain.DebtPaymentResponse{}, invalidInput("amount must be positive")
	}
	if _, err := s.activeShift(ctx, req.StoreID, actor.Username); err != nil {
		return domain.DebtPaymentResponse{}, err
	}

	debtSale, err := s.repo.GetSale(ctx, req.SaleID)
	if err != nil {
		return domain.DebtPaymentResponse{}, err
	}
	balance, err := s.debtBalance(ctx, *debtSale)
	if err != nil {
		return domain.DebtPaymentResponse{}, err
	}
	if req.Amount.GreaterThan(balance.outstanding) {
		return domain.DebtPaymentResponse{}, fmt.Errorf("%w: outstanding %s", ErrAmountExceedsDebt, balance.outstanding.StringFixed(2))
	}

	payment, err := s.repo.CreateDebtPayment(ctx, domain.DebtPayment{
		ID:            xid.New("debtpay"),
		SaleID:        debtSale.ID,
		StoreID:       req.StoreID,
		ClientID:      debtSale.ClientID,
		Amount:        req.Amount,
		PaymentMethod: req.PaymentMethod,
		PaidAt:        s.now(),
		CreatedBy:     actor.Username,
	})
	if err != nil {
		if errors.Is(err, store.ErrInvalidTransaction) {
			return domain.DebtPaymentResponse{}, ErrAmountExceedsDebt
		}
		return domain.DebtPaymentResponse{}, err
	}

	s.logAudit(ctx, req.StoreID, "debt_payment", "sale", debtSale.ID,
		fmt.Sprintf("amount=%s,method=%s", payment.Amount.StringFixed(2), payment.PaymentMethod))

	return domain.DebtPaymentResponse{
		Payment:     *payment,
		Outstanding: balance.outstanding.Sub(payment.Amount),
	}, nil
}

func (s *Service) ListClientDebts(ctx context.Context, clientID string) (domain.ClientDebtsResponse, error) {
	client, err := s.repo.GetClient(ctx, clientID)
	if err != nil {
		return domain.ClientDebtsResponse{}, err
	}
	sales, err := s.repo.ListDebtSalesByClient(ctx, client.ID)
	if err != nil {
		return domain.ClientDebtsResponse{}, err
	}

	resp := domain.ClientDebtsResponse{ClientID: client.ID, Debts: []domain.ClientDebt{}, Total: decimal.Zero}
	for _, debtSale := range sales {
		balance, err := s.debtBalance(ctx, debtSale)
		if err != nil {
			return domain.ClientDebtsResponse{}, err
		}
		if !balance.outstanding.IsPositive() {
			continue
		}
		resp.Debts = append(resp.Debts, domain.ClientDebt{
			SaleID:      debtSale.ID,
			ClientID:    client.ID,
			SaleTotal:   debtSale.TotalAmount,
			Paid:        balance.paid,
			Outstanding: balance.outstanding,
			CreatedAt:   debtSale.CreatedAt,
		})
		resp.Total = resp.Total.Add(balance.outstanding)
	}
	return resp, nil
}
