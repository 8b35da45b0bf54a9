package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

const (
	MoveTypeOutInvoice = "out_invoice"
	MoveTypeOutRefund  = "out_refund"
	MoveTypeInInvoice  = "in_invoice"
	MoveTypeInRefund   = "in_refund"
)

const (
	InvoiceStateDraft  = "draft"
	InvoiceStatePosted = "posted"
)

const (
	PaymentStateNotPaid = "not_paid"
	PaymentStatePartial = "partial"
	PaymentStatePaid    = "paid"
)

type Invoice struct {
	ID                   int             `gorm:"primary_key" json:"id"`
	PropertyId           int             `gorm:"uniqueIndex:idx_invoice_remote,priority:1;not null" json:"property_id"`
	RemoteId             *int            `gorm:"uniqueIndex:idx_invoice_remote,priority:2" json:"remote_id"`
	Name                 string          `gorm:"size:64;not null" json:"name"`
	MoveType             string          `gorm:"size:20;not null" json:"move_type"`
	JournalId            int             `gorm:"not null" json:"journal_id"`
	PartnerId            *int            `gorm:"index" json:"partner_id"`
	FolioId              *int            `gorm:"index" json:"folio_id"`
	Date                 time.Time       `gorm:"type:date;not null" json:"date"`
	DateDue              *time.Time      `gorm:"type:date" json:"date_due"`
	Ref                  string          `gorm:"size:255" json:"ref"`
	State                string          `gorm:"size:20;not null;default:draft" json:"state"`
	PaymentState         string          `gorm:"size:20;not null;default:not_paid" json:"payment_state"`
	AmountUntaxed        decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount_untaxed"`
	AmountTax            decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount_tax"`
	AmountTotal          decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount_total"`
	AmountResidual       decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount_residual"`
	FiscalPositionLegacy bool            `gorm:"not null;default:false" json:"fiscal_position_legacy"`
	RemotePaymentIds     datatypes.JSON  `gorm:"type:json" json:"remote_payment_ids"`
	CreateUid            *int            `json:"create_uid"`
	Lines                []InvoiceLine   `gorm:"foreignKey:InvoiceId" json:"lines"`
	CreatedAt            time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsInbound reports whether the invoice is settled by inbound payments.
func (inv Invoice) IsInbound() bool {
	return inv.MoveType == MoveTypeOutInvoice || inv.MoveType == MoveTypeInRefund
}

type InvoiceLine struct {
	ID            int             `gorm:"primary_key" json:"id"`
	InvoiceId     int             `gorm:"index;not null" json:"invoice_id"`
	Name          string          `gorm:"type:text" json:"name"`
	ProductId     *int            `json:"product_id"`
	FolioId       *int            `json:"folio_id"`
	ReservationId *int            `json:"reservation_id"`
	ServiceId     *int            `json:"service_id"`
	Quantity      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"quantity"`
	PriceUnit     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"price_unit"`
	Discount      decimal.Decimal `gorm:"type:decimal(7,2);default:0" json:"discount"`
	PriceSubtotal decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"price_subtotal"`
	PriceTotal    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"price_total"`
	Taxes         []Tax           `gorm:"many2many:invoice_line_taxes" json:"taxes"`
}

// Reconciliation is one allocation of a payment or statement line against an invoice.
type Reconciliation struct {
	ID              int             `gorm:"primary_key" json:"id"`
	PropertyId      int             `gorm:"index;not null" json:"property_id"`
	InvoiceId       int             `gorm:"index;not null" json:"invoice_id"`
	PaymentId       *int            `gorm:"index" json:"payment_id"`
	StatementLineId *int            `gorm:"index" json:"statement_line_id"`
	Amount          decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
}
