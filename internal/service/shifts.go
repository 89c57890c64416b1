package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/shopspring/decimal"

	"polisdesk/backend/internal/cache"
	"polisdesk/backend/internal/domain"
	"polisdesk/backend/internal/financials"
	"polisdesk/backend/internal/money"
	"polisdesk/backend/internal/reconcile"
	"polisdesk/backend/internal/report"
	"polisdesk/backend/internal/store"
	"polisdesk/backend/internal/xid"
)

// shiftUser resolves whose shift a request addresses. Only admins may act
// on another user's shift.
func shiftUser(ctx context.Context, requested string) (string, error) {
	userID := strings.TrimSpace(requested)
	if actor, ok := ActorFromContext(ctx); ok && (userID == "" || actor.Role != domain.RoleAdmin) {
		userID = actor.Username
	}
	if userID == "" {
		return "", invalidInput("user_id is required")
	}
	return userID, nil
}

// PreviewOpening reports the drawer balance the next shift should find:
// what the last closed shift left after its withdrawal.
func (s *Service) PreviewOpening(ctx context.Context, storeID string) (domain.ShiftOpeningPreview, error) {
	last, err := s.repo.GetLastClosedShift(ctx, s.storeID(storeID))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.ShiftOpeningPreview{ExpectedOpeningBalance: decimal.Zero}, nil
		}
		return domain.ShiftOpeningPreview{}, err
	}
	return domain.ShiftOpeningPreview{
		ExpectedOpeningBalance: last.CarriedForward(),
		PreviousShiftID:        last.ID,
	}, nil
}

func (s *Service) OpenShift(ctx context.Context, req domain.ShiftOpenRequest) (domain.ShiftResponse, error) {
	storeID := s.storeID(req.StoreID)
	userID, err := shiftUser(ctx, req.UserID)
	if err != nil {
		return domain.ShiftResponse{}, err
	}

	if _, err := s.repo.GetActiveShift(ctx, "", userID); err == nil {
		return domain.ShiftResponse{}, ErrShiftAlreadyOpen
	} else if !errors.Is(err, store.ErrNotFound) {
		return domain.ShiftResponse{}, err
	}

	preview, err := s.PreviewOpening(ctx, storeID)
	if err != nil {
		return domain.ShiftResponse{}, err
	}
	from := reconcile.StateNoShift
	if preview.PreviousShiftID != "" {
		from = reconcile.StateClosed
	}
	if _, err := reconcile.Next(from, reconcile.EventOpen); err != nil {
		return domain.ShiftResponse{}, err
	}

	decision, err := reconcile.ValidateOpen(reconcile.OpenInput{
		Expected:          preview.ExpectedOpeningBalance,
		Actual:            req.ActualOpeningBalance,
		DiscrepancyReason: req.DiscrepancyReason,
	})
	if err != nil {
		return domain.ShiftResponse{}, err
	}

	shift := domain.Shift{
		ID:                       xid.New("shift"),
		StoreID:                  storeID,
		UserID:                   userID,
		Status:                   domain.ShiftStatusOpen,
		OpenedAt:                 s.now(),
		ExpectedOpeningBalance:   preview.ExpectedOpeningBalance,
		ActualOpeningBalance:     *req.ActualOpeningBalance,
		OpeningDiscrepancyReason: strings.TrimSpace(req.DiscrepancyReason),
	}
	saved, err := s.repo.CreateShift(ctx, shift)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return domain.ShiftResponse{}, ErrShiftAlreadyOpen
		}
		return domain.ShiftResponse{}, err
	}

	detail := "opening=" + money.FormatPlain(saved.ActualOpeningBalance)
	if decision.DiscrepancyKind != reconcile.DiscrepancyNone {
		detail += fmt.Sprintf(",discrepancy=%s,reason=%s", decision.Discrepancy.StringFixed(2), saved.OpeningDiscrepancyReason)
	}
	s.logAudit(ctx, storeID, "shift_open", "shift", saved.ID, detail)

	return domain.ShiftResponse{Shift: *saved}, nil
}

func (s *Service) GetActiveShift(ctx context.Context, storeID string, userID string) (domain.ShiftResponse, error) {
	userID, err := shiftUser(ctx, userID)
	if err != nil {
		return domain.ShiftResponse{}, err
	}
	shift, err := s.activeShift(ctx, s.storeID(storeID), userID)
	if err != nil {
		return domain.ShiftResponse{}, err
	}
	return domain.ShiftResponse{Shift: *shift}, nil
}

// PrepareClose moves an open shift to the closing form with freshly
// computed financials. Nothing is persisted.
func (s *Service) PrepareClose(ctx context.Context, storeID string, userID string) (domain.ShiftCloseForm, error) {
	userID, err := shiftUser(ctx, userID)
	if err != nil {
		return domain.ShiftCloseForm{}, err
	}
	shift, err := s.activeShift(ctx, s.storeID(storeID), userID)
	if err != nil {
		return domain.ShiftCloseForm{}, err
	}
	state, err := reconcile.Next(reconcile.StateOpen, reconcile.EventBeginClose)
	if err != nil {
		return domain.ShiftCloseForm{}, err
	}

	fin, err := financials.Calculate(ctx, s.repo, *shift, s.now())
	if err != nil {
		log.Printf("[shift] ERROR: financials for shift=%s: %v", shift.ID, err)
		return domain.ShiftCloseForm{}, fmt.Errorf("%w: %v", ErrFinancialsFailed, err)
	}

	return domain.ShiftCloseForm{
		Shift:                  *shift,
		Financials:             fin,
		ExpectedClosingBalance: fin.ExpectedClosingBalance,
		State:                  string(state),
	}, nil
}

// CloseShift recomputes the financials, validates the counted drawer and
// persists the closed shift. A report that cannot be produced is reported
// in ReportWarning; the shift stays closed.
func (s *Service) CloseShift(ctx context.Context, req domain.ShiftCloseRequest) (domain.ShiftCloseResponse, error) {
	userID, err := shiftUser(ctx, req.UserID)
	if err != nil {
		return domain.ShiftCloseResponse{}, err
	}
	shift, err := s.activeShift(ctx, s.storeID(req.StoreID), userID)
	if err != nil {
		return domain.ShiftCloseResponse{}, err
	}

	state, err := reconcile.Next(reconcile.StateOpen, reconcile.EventBeginClose)
	if err == nil {
		_, err = reconcile.Next(state, reconcile.EventSubmitClose)
	}
	if err != nil {
		return domain.ShiftCloseResponse{}, err
	}

	closedAt := s.now()
	fin, err := financials.Calculate(ctx, s.repo, *shift, closedAt)
	if err != nil {
		log.Printf("[shift] ERROR: financials for shift=%s: %v", shift.ID, err)
		return domain.ShiftCloseResponse{}, fmt.Errorf("%w: %v", ErrFinancialsFailed, err)
	}

	decision, err := reconcile.ValidateClose(reconcile.CloseInput{
		Expected:          fin.ExpectedClosingBalance,
		ActualClosing:     req.ActualClosingBalance,
		DiscrepancyReason: req.DiscrepancyReason,
		AmountToKeep:      req.AmountToKeep,
		ActualWithdrawal:  req.ActualWithdrawal,
	})
	if err != nil {
		return domain.ShiftCloseResponse{}, err
	}

	closing := *req.ActualClosingBalance
	toClose := *shift
	toClose.ClosedAt = &closedAt
	toClose.ExpectedClosingBalance = fin.ExpectedClosingBalance
	toClose.ActualClosingBalance = &closing
	toClose.ClosingDiscrepancyReason = strings.TrimSpace(req.DiscrepancyReason)
	toClose.AmountToKeep = decision.AmountToKeep
	toClose.ActualWithdrawal = decision.Withdrawal
	toClose.Financials = &fin

	closed, err := s.repo.CloseShift(ctx, toClose)
	if err != nil {
		if errors.Is(err, store.ErrInvalidTransaction) {
			return domain.ShiftCloseResponse{}, ErrNoActiveShift
		}
		return domain.ShiftCloseResponse{}, err
	}

	detail := fmt.Sprintf("closing=%s,expected=%s,withdrawal=%s,keep=%s",
		closing.StringFixed(2), fin.ExpectedClosingBalance.StringFixed(2), decision.Withdrawal.StringFixed(2), decision.AmountToKeep.StringFixed(2))
	if decision.Overridden {
		detail += ",withdrawal_overridden=true"
	}
	s.logAudit(ctx, closed.StoreID, "shift_close", "shift", closed.ID, detail)

	resp := domain.ShiftCloseResponse{
		Shift:                  *closed,
		Discrepancy:            decision.Discrepancy,
		DiscrepancyKind:        decision.DiscrepancyKind,
		SuggestedWithdrawal:    decision.SuggestedWithdrawal,
		BalanceAfterWithdrawal: decision.BalanceAfterWithdrawal,
	}
	if _, err := s.buildReport(ctx, *closed); err != nil {
		log.Printf("[shift] WARN: report artifact for shift=%s: %v", closed.ID, err)
		resp.ReportWarning = "Смена закрыта, но отчёт не сохранён. Его можно сформировать повторно."
	} else {
		resp.ReportURL = reportURL(closed.ID)
	}
	return resp, nil
}

// ShiftFinancials returns the snapshot of a closed shift or live figures
// for an open one.
func (s *Service) ShiftFinancials(ctx context.Context, shiftID string) (domain.ShiftFinancials, error) {
	shift, err := s.repo.GetShift(ctx, shiftID)
	if err != nil {
		return domain.ShiftFinancials{}, err
	}
	if shift.Status == domain.ShiftStatusClosed && shift.Financials != nil {
		return *shift.Financials, nil
	}
	fin, err := financials.Calculate(ctx, s.repo, *shift, s.now())
	if err != nil {
		return domain.ShiftFinancials{}, fmt.Errorf("%w: %v", ErrFinancialsFailed, err)
	}
	return fin, nil
}

// ShiftReport returns the printable report of a closed shift, rebuilding
// it from the persisted shift when the stored artifact is gone.
func (s *Service) ShiftReport(ctx context.Context, shiftID string) (string, error) {
	shift, err := s.repo.GetShift(ctx, shiftID)
	if err != nil {
		return "", err
	}
	if shift.Status != domain.ShiftStatusClosed {
		return "", ErrShiftNotClosed
	}

	html, ok, err := s.reports.Get(ctx, cache.ShiftReportKey(shift.ID))
	if err != nil {
		log.Printf("[shift] WARN: report cache read shift=%s: %v", shift.ID, err)
	}
	if ok {
		return html, nil
	}

	html, err = s.buildReport(ctx, *shift)
	if err != nil && html == "" {
		return "", err
	}
	if err != nil {
		log.Printf("[shift] WARN: report cache write shift=%s: %v", shift.ID, err)
	}
	return html, nil
}

// buildReport renders and stores the artifact. On a storage failure the
// rendered html is still returned alongside the error.
func (s *Service) buildReport(ctx context.Context, shift domain.Shift) (string, error) {
	html, err := report.Render(report.FromShift(s.opts.AgencyName, shift, s.now()))
	if err != nil {
		return "", fmt.Errorf("render shift report: %w", err)
	}
	if err := s.reports.Set(ctx, cache.ShiftReportKey(shift.ID), html, s.opts.ReportTTL); err != nil {
		return html, fmt.Errorf("store shift report: %w", err)
	}
	return html, nil
}

func reportURL(shiftID string) string {
	return "/api/v1/shifts/" + shiftID + "/report"
}
