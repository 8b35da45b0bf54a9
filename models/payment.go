package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	PaymentTypeInbound  = "inbound"
	PaymentTypeOutbound = "outbound"
)

const (
	PartnerTypeCustomer = "customer"
	PartnerTypeSupplier = "supplier"
)

const (
	PaymentStateDraft  = "draft"
	PaymentStatePosted = "posted"
)

// Remote legs. A legacy internal transfer produces one leg per journal; a
// payment return produces a single "return" leg keyed by the return id.
const (
	LegSource      = "source"
	LegDestination = "destination"
	LegReturn      = "return"
)

// Payment is a posted payment on a bank journal, or a payment return.
type Payment struct {
	ID                 int             `gorm:"primary_key" json:"id"`
	PropertyId         int             `gorm:"uniqueIndex:idx_payment_remote,priority:1;not null" json:"property_id"`
	RemoteId           *int            `gorm:"uniqueIndex:idx_payment_remote,priority:2" json:"remote_id"`
	RemoteLeg          string          `gorm:"uniqueIndex:idx_payment_remote,priority:3;size:20;not null;default:source" json:"remote_leg"`
	JournalId          int             `gorm:"index;not null" json:"journal_id"`
	PartnerId          *int            `gorm:"index" json:"partner_id"`
	FolioId            *int            `gorm:"index" json:"folio_id"`
	PaymentType        string          `gorm:"size:20;not null" json:"payment_type"`
	PartnerType        string          `gorm:"size:20;not null;default:customer" json:"partner_type"`
	IsInternalTransfer bool            `gorm:"not null;default:false" json:"is_internal_transfer"`
	Amount             decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount"`
	ResidualAmount     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"residual_amount"`
	Date               time.Time       `gorm:"type:date;not null" json:"date"`
	Ref                string          `gorm:"size:255" json:"ref"`
	State              string          `gorm:"size:20;not null;default:draft" json:"state"`
	ReturnedPaymentId  *int            `json:"returned_payment_id"`
	CreateUid          *int            `json:"create_uid"`
	CreatedAt          time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

const (
	StatementStateDraft  = "draft"
	StatementStatePosted = "posted"
)

// CashStatement is one day of a cash journal. A day already posted before the
// migration touched it gets a supplementary statement with the next Sequence.
type CashStatement struct {
	ID             int             `gorm:"primary_key" json:"id"`
	PropertyId     int             `gorm:"index;not null" json:"property_id"`
	JournalId      int             `gorm:"uniqueIndex:idx_cash_statement_day,priority:1;not null" json:"journal_id"`
	Date           time.Time       `gorm:"uniqueIndex:idx_cash_statement_day,priority:2;type:date;not null" json:"date"`
	Sequence       int             `gorm:"uniqueIndex:idx_cash_statement_day,priority:3;not null;default:0" json:"sequence"`
	Name           string          `gorm:"size:100" json:"name"`
	BalanceStart   decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"balance_start"`
	BalanceEndReal decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"balance_end_real"`
	State          string          `gorm:"size:20;not null;default:draft" json:"state"`
	PostedAt       *time.Time      `json:"posted_at"`
	Lines          []StatementLine `gorm:"foreignKey:StatementId" json:"lines"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type StatementLine struct {
	ID                 int             `gorm:"primary_key" json:"id"`
	StatementId        int             `gorm:"index;not null" json:"statement_id"`
	PropertyId         int             `gorm:"uniqueIndex:idx_statement_line_remote,priority:1;not null" json:"property_id"`
	RemoteId           *int            `gorm:"uniqueIndex:idx_statement_line_remote,priority:2" json:"remote_id"`
	RemoteLeg          string          `gorm:"uniqueIndex:idx_statement_line_remote,priority:3;size:20;not null;default:source" json:"remote_leg"`
	JournalId          int             `gorm:"index;not null" json:"journal_id"`
	Date               time.Time       `gorm:"type:date;not null" json:"date"`
	Amount             decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount"`
	Residual           decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"residual"`
	PartnerId          *int            `json:"partner_id"`
	FolioId            *int            `gorm:"index" json:"folio_id"`
	Ref                string          `gorm:"size:255" json:"ref"`
	IsInternalTransfer bool            `gorm:"not null;default:false" json:"is_internal_transfer"`
	CreateUid          *int            `json:"create_uid"`
	CreatedAt          time.Time       `gorm:"autoCreateTime" json:"created_at"`
}
