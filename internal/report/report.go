// Package report renders the printable shift report.
package report

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"github.com/shopspring/decimal"

	"polisdesk/backend/internal/domain"
	"polisdesk/backend/internal/money"
)

// ExportShiftData is everything the printable report shows. It is built
// from persisted shift fields only, so a lost artifact can be rebuilt.
type ExportShiftData struct {
	AgencyName               string
	ShiftID                  string
	StoreID                  string
	UserID                   string
	OpenedAt                 time.Time
	ClosedAt                 *time.Time
	ExpectedOpeningBalance   decimal.Decimal
	ActualOpeningBalance     decimal.Decimal
	OpeningDiscrepancyReason string
	ExpectedClosingBalance   decimal.Decimal
	ActualClosingBalance     decimal.Decimal
	ClosingDiscrepancy       decimal.Decimal
	ClosingDiscrepancyReason string
	AmountToKeep             decimal.Decimal
	ActualWithdrawal         decimal.Decimal
	Financials               domain.ShiftFinancials
	GeneratedAt              time.Time
}

func FromShift(agencyName string, shift domain.Shift, generatedAt time.Time) ExportShiftData {
	data := ExportShiftData{
		AgencyName:               agencyName,
		ShiftID:                  shift.ID,
		StoreID:                  shift.StoreID,
		UserID:                   shift.UserID,
		OpenedAt:                 shift.OpenedAt,
		ClosedAt:                 shift.ClosedAt,
		ExpectedOpeningBalance:   shift.ExpectedOpeningBalance,
		ActualOpeningBalance:     shift.ActualOpeningBalance,
		OpeningDiscrepancyReason: shift.OpeningDiscrepancyReason,
		ExpectedClosingBalance:   shift.ExpectedClosingBalance,
		ClosingDiscrepancyReason: shift.ClosingDiscrepancyReason,
		AmountToKeep:             shift.AmountToKeep,
		ActualWithdrawal:         shift.ActualWithdrawal,
		GeneratedAt:              generatedAt,
	}
	if shift.ActualClosingBalance != nil {
		data.ActualClosingBalance = *shift.ActualClosingBalance
		data.ClosingDiscrepancy = shift.ActualClosingBalance.Sub(shift.ExpectedClosingBalance)
	}
	if shift.Financials != nil {
		data.Financials = *shift.Financials
	}
	return data
}

var funcs = template.FuncMap{
	"rub": money.Format,
	"ts": func(t time.Time) string {
		if t.IsZero() {
			return "—"
		}
		return t.Format("02.01.2006 15:04")
	},
	"tsp": func(t *time.Time) string {
		if t == nil {
			return "смена открыта"
		}
		return t.Format("02.01.2006 15:04")
	},
	"nonzero": func(d decimal.Decimal) bool { return !d.IsZero() },
	"method":  MethodLabel,
}

var shiftReportTmpl = template.Must(template.New("shift-report").Funcs(funcs).Parse(`<!doctype html>
<html lang="ru">
<head>
  <meta charset="utf-8" />
  <title>Отчёт по смене {{.ShiftID}}</title>
  <style>
    body { font-family: sans-serif; margin: 24px; }
    table { width: 100%; border-collapse: collapse; margin-top: 8px; }
    th, td { border: 1px solid #ddd; padding: 6px; font-size: 13px; }
    td.num { text-align: right; }
    h2, h3 { margin-bottom: 4px; }
    .warn { color: #b00020; }
  </style>
</head>
<body>
  <h2>{{.AgencyName}}: отчёт по смене</h2>
  <p>Офис: {{.StoreID}} | Агент: {{.UserID}}</p>
  <p>Открыта: {{ts .OpenedAt}} | Закрыта: {{tsp .ClosedAt}}</p>

  <h3>Касса</h3>
  <table>
    <tbody>
      <tr><td>Ожидаемый остаток на начало</td><td class="num">{{rub .ExpectedOpeningBalance}}</td></tr>
      <tr><td>Фактический остаток на начало</td><td class="num">{{rub .ActualOpeningBalance}}</td></tr>
      {{if .OpeningDiscrepancyReason}}<tr><td>Причина расхождения на начало</td><td>{{.OpeningDiscrepancyReason}}</td></tr>{{end}}
      <tr><td>Ожидаемый остаток на конец</td><td class="num">{{rub .ExpectedClosingBalance}}</td></tr>
      <tr><td>Фактический остаток на конец</td><td class="num">{{rub .ActualClosingBalance}}</td></tr>
      {{if nonzero .ClosingDiscrepancy}}<tr class="warn"><td>Расхождение</td><td class="num">{{rub .ClosingDiscrepancy}}</td></tr>{{end}}
      {{if .ClosingDiscrepancyReason}}<tr><td>Причина расхождения</td><td>{{.ClosingDiscrepancyReason}}</td></tr>{{end}}
      <tr><td>Оставлено в кассе</td><td class="num">{{rub .AmountToKeep}}</td></tr>
      <tr><td>Изъято</td><td class="num">{{rub .ActualWithdrawal}}</td></tr>
    </tbody>
  </table>

  {{with .Financials}}
  <h3>Поступления</h3>
  <table>
    <tbody>
      <tr><td>Наличные</td><td class="num">{{rub .IncomeCash}}</td></tr>
      <tr><td>Безналичные</td><td class="num">{{rub .IncomeNonCash}}</td></tr>
      <tr><td>В долг</td><td class="num">{{rub .IncomeDebt}}</td></tr>
      <tr><td>Погашение долгов наличными</td><td class="num">{{rub .DebtRepaymentCash}}</td></tr>
      <tr><td>Погашение долгов безналично</td><td class="num">{{rub .DebtRepaymentCard}}</td></tr>
      <tr><td>Продаж</td><td class="num">{{.SalesCount}}</td></tr>
    </tbody>
  </table>

  <h3>Страхование</h3>
  <table>
    <thead><tr><th>Компания</th><th>Продукт</th><th>Кол-во</th><th>Наличные</th><th>Безнал</th><th>Итого</th></tr></thead>
    <tbody>{{range .SalesSummary}}<tr><td>{{.Company}}</td><td>{{.Product}}</td><td class="num">{{.Count}}</td><td class="num">{{rub .Cash}}</td><td class="num">{{rub .NonCash}}</td><td class="num">{{rub .Total}}</td></tr>{{end}}</tbody>
  </table>

  <h3>Услуги</h3>
  <table>
    <thead><tr><th>Услуга</th><th>Кол-во</th><th>Наличные</th><th>Безнал</th><th>Итого</th></tr></thead>
    <tbody>{{range .ServicesSummary}}<tr><td>{{.Name}}</td><td class="num">{{.Count}}</td><td class="num">{{rub .Cash}}</td><td class="num">{{rub .NonCash}}</td><td class="num">{{rub .Total}}</td></tr>{{end}}</tbody>
  </table>

  {{if .DebtRepayments}}
  <h3>Погашение долгов</h3>
  <table>
    <thead><tr><th>Клиент</th><th>Продажа</th><th>Способ</th><th>Время</th><th>Сумма</th></tr></thead>
    <tbody>{{range .DebtRepayments}}<tr><td>{{.ClientName}}</td><td>{{.SaleID}}</td><td>{{method .PaymentMethod}}</td><td>{{ts .PaidAt}}</td><td class="num">{{rub .Amount}}</td></tr>{{end}}</tbody>
  </table>
  {{end}}

  <h3>Уведомления</h3>
  <p>Отправлено: {{.Notifications.Sent}} | Ошибок: {{.Notifications.Failed}}</p>
  {{end}}

  <p>Сформирован: {{ts .GeneratedAt}}</p>
</body>
</html>
`))

// Render produces a self-contained HTML document.
func Render(data ExportShiftData) (string, error) {
	var buf bytes.Buffer
	if err := shiftReportTmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render shift report: %w", err)
	}
	return buf.String(), nil
}

func MethodLabel(method string) string {
	switch method {
	case domain.PaymentCash:
		return "наличные"
	case domain.PaymentCard:
		return "карта"
	case domain.PaymentSBP:
		return "СБП"
	case domain.PaymentTransfer:
		return "перевод"
	case domain.PaymentDebt:
		return "в долг"
	}
	return method
}
