package sale

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"polisdesk/backend/internal/domain"
	"polisdesk/backend/internal/mask"
	"polisdesk/backend/internal/xid"
)

var (
	ErrInvalidItem   = errors.New("invalid sale item")
	ErrItemNotFound  = errors.New("sale item not found")
	ErrRoundingItem  = errors.New("rounding item is managed automatically")
	ErrInvalidSeries = errors.New("policy series does not match product mask")
	ErrInvalidNumber = errors.New("policy number does not match product mask")
)

// Editor holds the line items of a sale being composed. The synthetic
// rounding line is kept in sync after every change.
type Editor struct {
	items    []domain.SaleItem
	services map[string]domain.ServiceCatalogItem
	opts     Options
}

func NewEditor(services []domain.ServiceCatalogItem) *Editor {
	byID := make(map[string]domain.ServiceCatalogItem, len(services))
	for _, svc := range services {
		byID[svc.ID] = svc
	}
	return &Editor{services: byID}
}

// AddInsurance adds a policy line and, unless line.SkipLinked is set, every
// service the product is linked to.
func (e *Editor) AddInsurance(product domain.InsuranceProduct, line domain.SaleInsuranceLine) (domain.SaleItem, error) {
	if line.PremiumAmount.IsNegative() {
		return domain.SaleItem{}, fmt.Errorf("%w: negative premium", ErrInvalidItem)
	}

	series := strings.TrimSpace(line.Series)
	number := strings.TrimSpace(line.Number)
	if series != "" || product.SeriesMask != "" {
		if err := mask.Conform(product.SeriesMask, series); err != nil {
			return domain.SaleItem{}, fmt.Errorf("%w: %v", ErrInvalidSeries, err)
		}
		series = mask.Normalize(product.SeriesMask, series)
	}
	if number != "" || product.NumberMask != "" {
		if err := mask.Conform(product.NumberMask, number); err != nil {
			return domain.SaleItem{}, fmt.Errorf("%w: %v", ErrInvalidNumber, err)
		}
		number = mask.Normalize(product.NumberMask, number)
	}

	percent := line.CommissionPercent
	if percent == nil && !product.DefaultCommissionPercent.IsZero() {
		p := product.DefaultCommissionPercent
		percent = &p
	}
	if percent != nil && (percent.IsNegative() || percent.GreaterThan(hundred)) {
		return domain.SaleItem{}, fmt.Errorf("%w: commission percent out of range", ErrInvalidItem)
	}

	item := domain.SaleItem{
		ID:                xid.New("item"),
		Kind:              domain.ItemKindInsurance,
		ProductID:         product.ID,
		Company:           product.Company,
		ProductName:       product.Name,
		Series:            series,
		Number:            number,
		PremiumAmount:     line.PremiumAmount,
		CommissionPercent: percent,
	}
	e.items = append(e.items, item)

	if !line.SkipLinked {
		for _, serviceID := range product.LinkedServiceIDs {
			svc, ok := e.services[serviceID]
			if !ok {
				continue
			}
			e.items = append(e.items, serviceItem(svc, 1, svc.DefaultPrice, item.ID))
		}
	}

	e.sync()
	return item, nil
}

// AddService adds a service line. A nil unitPrice takes the catalog price.
func (e *Editor) AddService(svc domain.ServiceCatalogItem, qty int, unitPrice *decimal.Decimal) (domain.SaleItem, error) {
	price := svc.DefaultPrice
	if unitPrice != nil {
		price = *unitPrice
	}
	if price.IsNegative() {
		return domain.SaleItem{}, fmt.Errorf("%w: negative unit price", ErrInvalidItem)
	}
	if qty < 1 {
		qty = 1
	}

	item := serviceItem(svc, qty, price, "")
	e.items = append(e.items, item)
	e.sync()
	return item, nil
}

// Remove drops an item together with the services auto-linked to it.
func (e *Editor) Remove(id string) error {
	idx := -1
	for i, item := range e.items {
		if item.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ErrItemNotFound
	}
	if e.items[idx].Kind == domain.ItemKindRounding {
		return ErrRoundingItem
	}

	kept := e.items[:0]
	for _, item := range e.items {
		if item.ID == id || item.LinkedTo == id {
			continue
		}
		kept = append(kept, item)
	}
	e.items = kept
	e.sync()
	return nil
}

func (e *Editor) SetRounding(enabled bool, step int) {
	e.opts.RoundingEnabled = enabled
	e.opts.RoundingStep = step
	e.sync()
}

func (e *Editor) SetSelectedDebts(total decimal.Decimal) {
	e.opts.SelectedDebtsTotal = total
	e.sync()
}

func (e *Editor) Items() []domain.SaleItem {
	out := make([]domain.SaleItem, len(e.items))
	copy(out, e.items)
	return out
}

func (e *Editor) Totals() domain.SaleTotals {
	return Calculate(e.items, e.opts)
}

func (e *Editor) Empty() bool {
	for _, item := range e.items {
		if item.Kind != domain.ItemKindRounding {
			return false
		}
	}
	return true
}

func (e *Editor) sync() {
	kept := e.items[:0]
	for _, item := range e.items {
		if item.Kind != domain.ItemKindRounding {
			kept = append(kept, item)
		}
	}
	e.items = kept

	totals := Calculate(e.items, e.opts)
	if totals.RoundingAmount.IsPositive() {
		e.items = append(e.items, domain.SaleItem{
			ID:            xid.New("item"),
			Kind:          domain.ItemKindRounding,
			ServiceName:   "Округление",
			PremiumAmount: totals.RoundingAmount,
		})
	}
}

func serviceItem(svc domain.ServiceCatalogItem, qty int, price decimal.Decimal, linkedTo string) domain.SaleItem {
	q := qty
	p := price
	return domain.SaleItem{
		ID:            xid.New("item"),
		Kind:          domain.ItemKindService,
		ServiceID:     svc.ID,
		ServiceName:   svc.Name,
		PremiumAmount: price.Mul(decimal.NewFromInt(int64(qty))),
		Quantity:      &q,
		UnitPrice:     &p,
		LinkedTo:      linkedTo,
	}
}
