package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type Actor struct {
	Username string
	Role     string
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type AgentCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type AgentUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type Client struct {
	ID        string    `json:"id"`
	FullName  string    `json:"full_name"`
	Phone     string    `json:"phone"`
	CreatedAt time.Time `json:"created_at"`
}

type ClientCreateRequest struct {
	FullName string `json:"full_name"`
	Phone    string `json:"phone"`
}

type InsuranceProduct struct {
	ID                       string          `json:"id"`
	Company                  string          `json:"company"`
	Name                     string          `json:"name"`
	SeriesMask               string          `json:"series_mask,omitempty"`
	NumberMask               string          `json:"number_mask,omitempty"`
	DefaultCommissionPercent decimal.Decimal `json:"default_commission_percent"`
	LinkedServiceIDs         []string        `json:"linked_service_ids,omitempty"`
}

type ServiceCatalogItem struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	DefaultPrice decimal.Decimal `json:"default_price"`
}

type CatalogResponse struct {
	Products []InsuranceProduct   `json:"products"`
	Services []ServiceCatalogItem `json:"services"`
}

type SaleItem struct {
	ID                string           `json:"id"`
	Kind              string           `json:"kind"`
	ProductID         string           `json:"product_id,omitempty"`
	Company           string           `json:"company,omitempty"`
	ProductName       string           `json:"product_name,omitempty"`
	ServiceID         string           `json:"service_id,omitempty"`
	ServiceName       string           `json:"service_name,omitempty"`
	Series            string           `json:"series,omitempty"`
	Number            string           `json:"number,omitempty"`
	PremiumAmount     decimal.Decimal  `json:"premium_amount"`
	CommissionPercent *decimal.Decimal `json:"commission_percent,omitempty"`
	Quantity          *int             `json:"quantity,omitempty"`
	UnitPrice         *decimal.Decimal `json:"unit_price,omitempty"`
	LinkedTo          string           `json:"linked_to,omitempty"`
}

type Sale struct {
	ID             string          `json:"id"`
	StoreID        string          `json:"store_id"`
	ClientID       string          `json:"client_id"`
	UserID         string          `json:"user_id"`
	ShiftID        string          `json:"shift_id,omitempty"`
	PaymentMethod  string          `json:"payment_method"`
	Status         string          `json:"status"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	RoundingAmount decimal.Decimal `json:"rounding_amount"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	Commission     decimal.Decimal `json:"commission"`
	CreatedAt      time.Time       `json:"created_at"`
	Items          []SaleItem      `json:"items"`
}

// SaleInsuranceLine and SaleServiceLine are what an agent enters; the
// service expands them through the line-item editor.
type SaleInsuranceLine struct {
	ProductID         string           `json:"product_id"`
	PremiumAmount     decimal.Decimal  `json:"premium_amount"`
	CommissionPercent *decimal.Decimal `json:"commission_percent,omitempty"`
	Series            string           `json:"series"`
	Number            string           `json:"number"`
	SkipLinked        bool             `json:"skip_linked,omitempty"`
}

type SaleServiceLine struct {
	ServiceID string           `json:"service_id"`
	Quantity  int              `json:"quantity"`
	UnitPrice *decimal.Decimal `json:"unit_price,omitempty"`
}

type SaleCreateRequest struct {
	StoreID             string              `json:"store_id"`
	ClientID            string              `json:"client_id"`
	PaymentMethod       string              `json:"payment_method"`
	Insurance           []SaleInsuranceLine `json:"insurance"`
	Services            []SaleServiceLine   `json:"services"`
	RoundingEnabled     bool                `json:"rounding_enabled"`
	RoundingStep        int                 `json:"rounding_step"`
	SelectedDebtSaleIDs []string            `json:"selected_debt_sale_ids,omitempty"`
}

type SaleTotals struct {
	Subtotal           decimal.Decimal `json:"subtotal"`
	RoundingAmount     decimal.Decimal `json:"rounding_amount"`
	SelectedDebtsTotal decimal.Decimal `json:"selected_debts_total"`
	Total              decimal.Decimal `json:"total"`
	Commission         decimal.Decimal `json:"commission"`
}

type SaleQuoteResponse struct {
	Items  []SaleItem `json:"items"`
	Totals SaleTotals `json:"totals"`
}

type SaleResponse struct {
	Sale         Sale          `json:"sale"`
	Totals       SaleTotals    `json:"totals"`
	DebtPayments []DebtPayment `json:"debt_payments,omitempty"`
}

type VoidSaleRequest struct {
	SaleID     string `json:"-"`
	Reason     string `json:"reason"`
	ManagerPIN string `json:"manager_pin"`
}

type DebtPayment struct {
	ID            string          `json:"id"`
	SaleID        string          `json:"sale_id"`
	StoreID       string          `json:"store_id"`
	ClientID      string          `json:"client_id"`
	Amount        decimal.Decimal `json:"amount"`
	PaymentMethod string          `json:"payment_method"`
	PaidAt        time.Time       `json:"paid_at"`
	CreatedBy     string          `json:"created_by"`
	// SourceSaleID is set when the debt was settled as part of another sale's checkout.
	SourceSaleID  string          `json:"source_sale_id,omitempty"`
}

type DebtPaymentRequest struct {
	StoreID       string          `json:"store_id"`
	SaleID        string          `json:"sale_id"`
	Amount        decimal.Decimal `json:"amount"`
	PaymentMethod string          `json:"payment_method"`
}

type DebtPaymentResponse struct {
	Payment     DebtPayment     `json:"payment"`
	Outstanding decimal.Decimal `json:"outstanding"`
}

type ClientDebt struct {
	SaleID      string          `json:"sale_id"`
	ClientID    string          `json:"client_id"`
	SaleTotal   decimal.Decimal `json:"sale_total"`
	Paid        decimal.Decimal `json:"paid"`
	Outstanding decimal.Decimal `json:"outstanding"`
	CreatedAt   time.Time       `json:"created_at"`
}

type ClientDebtsResponse struct {
	ClientID string          `json:"client_id"`
	Debts    []ClientDebt    `json:"debts"`
	Total    decimal.Decimal `json:"total"`
}

type Shift struct {
	ID                       string           `json:"id"`
	StoreID                  string           `json:"store_id"`
	UserID                   string           `json:"user_id"`
	Status                   string           `json:"status"`
	OpenedAt                 time.Time        `json:"opened_at"`
	ClosedAt                 *time.Time       `json:"closed_at,omitempty"`
	ExpectedOpeningBalance   decimal.Decimal  `json:"expected_opening_balance"`
	ActualOpeningBalance     decimal.Decimal  `json:"actual_opening_balance"`
	OpeningDiscrepancyReason string           `json:"opening_discrepancy_reason,omitempty"`
	ExpectedClosingBalance   decimal.Decimal  `json:"expected_closing_balance"`
	ActualClosingBalance     *decimal.Decimal `json:"actual_closing_balance,omitempty"`
	ClosingDiscrepancyReason string           `json:"closing_discrepancy_reason,omitempty"`
	AmountToKeep             decimal.Decimal  `json:"amount_to_keep"`
	ActualWithdrawal         decimal.Decimal  `json:"actual_withdrawal"`
	Financials               *ShiftFinancials `json:"financials,omitempty"`
}

// CarriedForward is the cash left in the drawer after the closing withdrawal.
func (s Shift) CarriedForward() decimal.Decimal {
	if s.ActualClosingBalance == nil {
		return decimal.Zero
	}
	return s.ActualClosingBalance.Sub(s.ActualWithdrawal)
}

type ShiftOpenRequest struct {
	StoreID              string           `json:"store_id"`
	UserID               string           `json:"user_id"`
	ActualOpeningBalance *decimal.Decimal `json:"actual_opening_balance"`
	DiscrepancyReason    string           `json:"discrepancy_reason"`
}

type ShiftCloseRequest struct {
	StoreID              string           `json:"store_id"`
	UserID               string           `json:"user_id"`
	ActualClosingBalance *decimal.Decimal `json:"actual_closing_balance"`
	DiscrepancyReason    string           `json:"discrepancy_reason"`
	AmountToKeep         *decimal.Decimal `json:"amount_to_keep"`
	ActualWithdrawal     *decimal.Decimal `json:"actual_withdrawal,omitempty"`
}

type ShiftResponse struct {
	Shift Shift `json:"shift"`
}

type ShiftOpeningPreview struct {
	ExpectedOpeningBalance decimal.Decimal `json:"expected_opening_balance"`
	PreviousShiftID        string          `json:"previous_shift_id,omitempty"`
}

type ShiftCloseForm struct {
	Shift                  Shift           `json:"shift"`
	Financials             ShiftFinancials `json:"financials"`
	ExpectedClosingBalance decimal.Decimal `json:"expected_closing_balance"`
	State                  string          `json:"state"`
}

type ShiftCloseResponse struct {
	Shift                  Shift           `json:"shift"`
	Discrepancy            decimal.Decimal `json:"discrepancy"`
	DiscrepancyKind        string          `json:"discrepancy_kind"`
	SuggestedWithdrawal    decimal.Decimal `json:"suggested_withdrawal"`
	BalanceAfterWithdrawal decimal.Decimal `json:"balance_after_withdrawal"`
	ReportURL              string          `json:"report_url,omitempty"`
	ReportWarning          string          `json:"report_warning,omitempty"`
}

type ShiftFinancials struct {
	IncomeCash             decimal.Decimal     `json:"income_cash"`
	IncomeNonCash          decimal.Decimal     `json:"income_non_cash"`
	IncomeDebt             decimal.Decimal     `json:"income_debt"`
	DebtRepaymentCash      decimal.Decimal     `json:"debt_repayment_cash"`
	DebtRepaymentCard      decimal.Decimal     `json:"debt_repayment_card"`
	ExpectedClosingBalance decimal.Decimal     `json:"expected_closing_balance"`
	SalesCount             int                 `json:"sales_count"`
	SalesSummary           []ProductSummary    `json:"sales_summary"`
	ServicesSummary        []ServiceSummary    `json:"services_summary"`
	DebtRepayments         []DebtRepaymentLine `json:"debt_repayments"`
	Notifications          NotificationStats   `json:"notifications"`
	WindowFrom             time.Time           `json:"window_from"`
	WindowTo               time.Time           `json:"window_to"`
}

type ProductSummary struct {
	Company string          `json:"company"`
	Product string          `json:"product"`
	Count   int             `json:"count"`
	Cash    decimal.Decimal `json:"cash"`
	NonCash decimal.Decimal `json:"non_cash"`
	Total   decimal.Decimal `json:"total"`
}

type ServiceSummary struct {
	Name    string          `json:"name"`
	Count   int             `json:"count"`
	Cash    decimal.Decimal `json:"cash"`
	NonCash decimal.Decimal `json:"non_cash"`
	Total   decimal.Decimal `json:"total"`
}

type DebtRepaymentLine struct {
	PaymentID     string          `json:"payment_id"`
	SaleID        string          `json:"sale_id"`
	ClientID      string          `json:"client_id"`
	ClientName    string          `json:"client_name"`
	Amount        decimal.Decimal `json:"amount"`
	PaymentMethod string          `json:"payment_method"`
	PaidAt        time.Time       `json:"paid_at"`
}

type NotificationStats struct {
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
}

type DocumentArchive struct {
	ID           string          `json:"id"`
	ClientID     string          `json:"client_id"`
	Type         string          `json:"type"`
	DocumentData json.RawMessage `json:"document_data"`
	CreatedBy    string          `json:"created_by"`
	CreatedAt    time.Time       `json:"created_at"`
}

type DocumentArchiveRequest struct {
	Type         string          `json:"type"`
	DocumentData json.RawMessage `json:"document_data"`
}

type DocumentListResponse struct {
	Documents []DocumentArchive `json:"documents"`
}

type MessageSendRequest struct {
	StoreID   string `json:"store_id"`
	ClientID  string `json:"client_id"`
	Channel   string `json:"channel"`
	ChatID    string `json:"chat_id,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Message   string `json:"message"`
	MediaURL  string `json:"media_url,omitempty"`
	MediaType string `json:"media_type,omitempty"`
}

type MessageSendResponse struct {
	Success     bool   `json:"success"`
	MessageID   string `json:"message_id,omitempty"`
	ErrorCode   string `json:"error_code,omitempty"`
	Error       string `json:"error,omitempty"`
	UserMessage string `json:"user_message,omitempty"`
}

type MessageLog struct {
	ID        string    `json:"id"`
	StoreID   string    `json:"store_id"`
	ClientID  string    `json:"client_id"`
	Channel   string    `json:"channel"`
	Recipient string    `json:"recipient"`
	Status    string    `json:"status"`
	ErrorCode string    `json:"error_code,omitempty"`
	MessageID string    `json:"message_id,omitempty"`
	SentBy    string    `json:"sent_by"`
	CreatedAt time.Time `json:"created_at"`
}

type AuditLog struct {
	ID            string    `json:"id"`
	StoreID       string    `json:"store_id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

const (
	ItemKindInsurance = "insurance"
	ItemKindService   = "service"
	ItemKindRounding  = "rounding"
)

const (
	PaymentCash     = "cash"
	PaymentCard     = "card"
	PaymentSBP      = "sbp"
	PaymentTransfer = "transfer"
	PaymentDebt     = "debt"
)

const (
	SaleStatusCompleted = "completed"
	SaleStatusCancelled = "cancelled"
)

const (
	ShiftStatusOpen   = "open"
	ShiftStatusClosed = "closed"
)

const (
	DocumentDKP         = "dkp"
	DocumentReceipt     = "receipt"
	DocumentPND         = "pnd"
	DocumentConsent     = "consent"
	DocumentShiftReport = "shift_report"
)

const (
	ChannelWhatsApp = "whatsapp"
	ChannelTelegram = "telegram"
	ChannelMAX      = "max"
	ChannelSMS      = "sms"
)

const (
	MessageStatusSent   = "sent"
	MessageStatusFailed = "failed"
)

const (
	RoleAgent = "agent"
	RoleAdmin = "admin"
)

// IsNonCashMethod reports payment methods that never touch the drawer.
func IsNonCashMethod(method string) bool {
	switch method {
	case PaymentCard, PaymentSBP, PaymentTransfer:
		return true
	}
	return false
}

func IsPaymentMethod(method string) bool {
	return method == PaymentCash || method == PaymentDebt || IsNonCashMethod(method)
}

func IsDocumentType(docType string) bool {
	switch docType {
	case DocumentDKP, DocumentReceipt, DocumentPND, DocumentConsent, DocumentShiftReport:
		return true
	}
	return false
}

func IsChannel(channel string) bool {
	switch channel {
	case ChannelWhatsApp, ChannelTelegram, ChannelMAX, ChannelSMS:
		return true
	}
	return false
}
